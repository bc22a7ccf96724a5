package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/guregu/null/v6"

	ex "rc/data/extensions"
)

var (
	ErrUnorderedDates = errors.New("dates must be strictly increasing")
	ErrLengthMismatch = errors.New("dates and values must be the same length")
)

// Series is one instrument's observations indexed by date. An invalid null.Float is "no value", which is not the same as zero.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []null.Float
}

// NewSeries copies the inputs, so the caller keeps ownership of its slices
func NewSeries(name string, dates []time.Time, values []null.Float) (*Series, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("series %s: %w (%d dates, %d values)", name, ErrLengthMismatch, len(dates), len(values))
	}
	if !ex.IsStrictlyIncreasing(dates) {
		return nil, fmt.Errorf("series %s: %w", name, ErrUnorderedDates)
	}

	return &Series{
		Name:   name,
		Dates:  slices.Clone(dates),
		Values: slices.Clone(values),
	}, nil
}

// NewSeriesFromFloats treats NaN as no value
func NewSeriesFromFloats(name string, dates []time.Time, values []float64) (*Series, error) {
	return NewSeries(name, dates, FloatsToNull(values))
}

// Float wraps a plain float, NaN becomes no value
func Float(v float64) null.Float {
	if math.IsNaN(v) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

func FloatsToNull(values []float64) []null.Float {
	res := make([]null.Float, len(values))
	for i, v := range values {
		res[i] = Float(v)
	}
	return res
}

func (s *Series) Len() int {
	return len(s.Dates)
}

func (s *Series) Clone() *Series {
	return &Series{
		Name:   s.Name,
		Dates:  slices.Clone(s.Dates),
		Values: slices.Clone(s.Values),
	}
}

// DropNA returns a copy without the dates that have no value
func (s *Series) DropNA() *Series {
	res := &Series{
		Name:   s.Name,
		Dates:  make([]time.Time, 0, len(s.Dates)),
		Values: make([]null.Float, 0, len(s.Values)),
	}
	for i, v := range s.Values {
		if v.Valid {
			res.Dates = append(res.Dates, s.Dates[i])
			res.Values = append(res.Values, v)
		}
	}
	return res
}

// Floats returns the values with no value mapped to NaN
func (s *Series) Floats() []float64 {
	res := make([]float64, len(s.Values))
	for i, v := range s.Values {
		res[i] = v.ValueOrZero()
		if !v.Valid {
			res[i] = math.NaN()
		}
	}
	return res
}

// ValidFloats returns only the values that are set, in date order
func (s *Series) ValidFloats() []float64 {
	res := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if v.Valid {
			res = append(res, v.Float64)
		}
	}
	return res
}

// FirstDate returns the earliest date, zero time when empty
func (s *Series) FirstDate() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[0]
}

// LastDate returns the latest date, zero time when empty
func (s *Series) LastDate() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}
