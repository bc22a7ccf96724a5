package core

import (
	"errors"
	"fmt"

	"github.com/guregu/null/v6"

	m "rc/data/models"
)

// DefaultDropNA is what callers should pass when they have no preference
const DefaultDropNA = true

var ErrUnsupportedType = errors.New("unsupported type, expected *models.Table or *models.Series")

// CalculateReturns turns price levels into simple returns, price[t]/price[t-1] - 1.
// A *models.Table gives back a *models.Table with the same columns in the same order,
// a *models.Series gives back a *models.Series. Anything else is ErrUnsupportedType.
//
// With dropNA the dates that have no return are removed. For a table a date is kept
// while at least one column has a return on it. Without dropNA every date is kept and
// undefined returns are no value.
func CalculateReturns(input any, dropNA bool) (any, error) {
	switch v := input.(type) {
	case *m.Table:
		if v == nil {
			return nil, fmt.Errorf("%w: nil table", ErrUnsupportedType)
		}
		return TableReturns(v, dropNA), nil
	case *m.Series:
		if v == nil {
			return nil, fmt.Errorf("%w: nil series", ErrUnsupportedType)
		}
		return SeriesReturns(v, dropNA), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedType, input)
	}
}

func SeriesReturns(s *m.Series, dropNA bool) *m.Series {
	res := &m.Series{
		Name:   s.Name,
		Dates:  s.Dates,
		Values: simpleReturns(s.Values),
	}
	if dropNA {
		return res.DropNA()
	}
	return res.Clone()
}

func TableReturns(t *m.Table, dropNA bool) *m.Table {
	res := &m.Table{
		Dates:   t.Dates,
		Columns: make([]*m.Series, len(t.Columns)),
	}
	for i, c := range t.Columns {
		res.Columns[i] = &m.Series{
			Name:   c.Name,
			Dates:  t.Dates,
			Values: simpleReturns(c.Values),
		}
	}
	if dropNA {
		return res.DropEmptyRows()
	}
	return res.Clone()
}

// simpleReturns is the same length as prices, the first entry never has a value
func simpleReturns(prices []null.Float) []null.Float {
	res := make([]null.Float, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if !prev.Valid || !cur.Valid || prev.Float64 == 0 {
			continue
		}
		res[i] = null.FloatFrom(cur.Float64/prev.Float64 - 1)
	}
	return res
}
