package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/guregu/null/v6"

	ex "rc/data/extensions"
)

var (
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrEmptyColumnName = errors.New("column name is required")
)

// Table is a set of series aligned on one shared date index. Columns keep insertion order.
type Table struct {
	Dates   []time.Time
	Columns []*Series
}

func NewTable(dates []time.Time) (*Table, error) {
	if !ex.IsStrictlyIncreasing(dates) {
		return nil, fmt.Errorf("table: %w", ErrUnorderedDates)
	}
	return &Table{
		Dates:   slices.Clone(dates),
		Columns: []*Series{},
	}, nil
}

// AddColumn appends a copy of values as a new column
func (t *Table) AddColumn(name string, values []null.Float) error {
	if name == "" {
		return ErrEmptyColumnName
	}
	if t.Column(name) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
	}
	if len(values) != len(t.Dates) {
		return fmt.Errorf("column %s: %w (%d dates, %d values)", name, ErrLengthMismatch, len(t.Dates), len(values))
	}

	t.Columns = append(t.Columns, &Series{
		Name:   name,
		Dates:  t.Dates,
		Values: slices.Clone(values),
	})
	return nil
}

// Column returns nil when name is not in the table
func (t *Table) Column(name string) *Series {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) ColumnNames() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}
	return res
}

// Len is the number of dates (rows)
func (t *Table) Len() int {
	return len(t.Dates)
}

func (t *Table) Clone() *Table {
	res := &Table{
		Dates:   slices.Clone(t.Dates),
		Columns: make([]*Series, len(t.Columns)),
	}
	for i, c := range t.Columns {
		res.Columns[i] = &Series{
			Name:   c.Name,
			Dates:  res.Dates,
			Values: slices.Clone(c.Values),
		}
	}
	return res
}

// ForwardFill returns a copy where a missing value takes the last valid value above it in the same column.
// Leading missing values stay missing.
func (t *Table) ForwardFill() *Table {
	res := t.Clone()
	for _, c := range res.Columns {
		last := null.Float{}
		for i, v := range c.Values {
			if v.Valid {
				last = v
				continue
			}
			c.Values[i] = last
		}
	}
	return res
}

// DropEmptyRows returns a copy without the dates where no column has a value
func (t *Table) DropEmptyRows() *Table {
	keep := make([]int, 0, len(t.Dates))
	for i := range t.Dates {
		for _, c := range t.Columns {
			if c.Values[i].Valid {
				keep = append(keep, i)
				break
			}
		}
	}
	return t.selectRows(keep)
}

// CompleteRows returns a copy holding only the dates where every column has a value
func (t *Table) CompleteRows() *Table {
	keep := make([]int, 0, len(t.Dates))
	for i := range t.Dates {
		complete := true
		for _, c := range t.Columns {
			if !c.Values[i].Valid {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	return t.selectRows(keep)
}

func (t *Table) selectRows(rows []int) *Table {
	res := &Table{
		Dates:   make([]time.Time, len(rows)),
		Columns: make([]*Series, len(t.Columns)),
	}
	for j, r := range rows {
		res.Dates[j] = t.Dates[r]
	}
	for i, c := range t.Columns {
		values := make([]null.Float, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		res.Columns[i] = &Series{Name: c.Name, Dates: res.Dates, Values: values}
	}
	return res
}

// AlignSeries outer joins the series on the union of their dates. Column order follows the arguments.
func AlignSeries(series ...*Series) (*Table, error) {
	names := make([]string, len(series))
	for i, s := range series {
		names[i] = s.Name
	}
	if dup, ok := ex.FirstDuplicate(names); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, dup)
	}

	// keyed on the instant so the same date in different locations lines up
	index := map[int64]time.Time{}
	for _, s := range series {
		for _, d := range s.Dates {
			index[d.UnixNano()] = d
		}
	}

	dates := make([]time.Time, 0, len(index))
	for _, d := range index {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	position := make(map[int64]int, len(dates))
	for i, d := range dates {
		position[d.UnixNano()] = i
	}

	table, err := NewTable(dates)
	if err != nil {
		return nil, err
	}

	for _, s := range series {
		values := make([]null.Float, len(dates))
		for i, d := range s.Dates {
			values[position[d.UnixNano()]] = s.Values[i]
		}
		if err := table.AddColumn(s.Name, values); err != nil {
			return nil, err
		}
	}

	return table, nil
}
