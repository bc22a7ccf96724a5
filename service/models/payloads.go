package models

import (
	"github.com/guregu/null/v6"

	ex "rc/data/extensions"
	dm "rc/data/models"
)

// TablePayload is a table laid out for line charts, one entry in Dates per row of every column
type TablePayload struct {
	Dates   []string        `json:"dates"`
	Columns []SeriesPayload `json:"columns"`
}

type SeriesPayload struct {
	Name   string       `json:"name"`
	Values []null.Float `json:"values"`
}

type CorrelationPayload struct {
	Method  string         `json:"method"`
	Columns []string       `json:"columns"`
	Matrix  [][]null.Float `json:"matrix"`
}

type VolatilityPayload struct {
	Window         int    `json:"window"`
	PeriodsPerYear int    `json:"periodsPerYear"`
	Frequency      string `json:"frequency"`
	TablePayload
}

type SummaryPayload struct {
	PeriodsPerYear int                     `json:"periodsPerYear"`
	Frequency      string                  `json:"frequency"`
	Metrics        []dm.PerformanceMetrics `json:"metrics"`
}

// ActionsPayload is one symbol's dividend and split table
type ActionsPayload struct {
	Symbol string `json:"symbol"`
	TablePayload
}

func MapTableToPayload(t *dm.Table) TablePayload {
	res := TablePayload{
		Dates:   make([]string, len(t.Dates)),
		Columns: make([]SeriesPayload, len(t.Columns)),
	}

	for i, d := range t.Dates {
		res.Dates[i] = ex.FmtShort(d)
	}

	for i, c := range t.Columns {
		res.Columns[i] = SeriesPayload{
			Name:   c.Name,
			Values: c.Values,
		}
	}

	return res
}

func MapCorrelationToPayload(method string, corr *dm.CorrelationMatrix) CorrelationPayload {
	return CorrelationPayload{
		Method:  method,
		Columns: corr.Columns,
		Matrix:  corr.Rows(),
	}
}

// MapActionsToPayload pairs each table with the symbol at the same index
func MapActionsToPayload(symbols []string, tables []*dm.Table) []ActionsPayload {
	res := make([]ActionsPayload, len(tables))
	for i, t := range tables {
		res[i] = ActionsPayload{
			Symbol:       symbols[i],
			TablePayload: MapTableToPayload(t),
		}
	}
	return res
}
