package models

import (
	"math"
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/mat"
)

// CorrelationMatrix is symmetric and indexed by column name on both axes. Undefined pairs hold NaN.
type CorrelationMatrix struct {
	Columns []string
	Values  *mat.SymDense
}

// At returns no value when either name is unknown or the pair is undefined
func (c *CorrelationMatrix) At(a, b string) null.Float {
	i := slices.Index(c.Columns, a)
	j := slices.Index(c.Columns, b)
	if i < 0 || j < 0 {
		return null.Float{}
	}
	return Float(c.Values.At(i, j))
}

// Rows is the matrix as nested nullable values, row order matches Columns
func (c *CorrelationMatrix) Rows() [][]null.Float {
	n := len(c.Columns)
	res := make([][]null.Float, n)
	for i := range n {
		res[i] = make([]null.Float, n)
		for j := range n {
			v := c.Values.At(i, j)
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			res[i][j] = Float(v)
		}
	}
	return res
}

// PerformanceMetrics summarizes one column of returns
type PerformanceMetrics struct {
	Name                 string     `json:"name"`
	Observations         int        `json:"observations"`
	TotalReturn          null.Float `json:"totalReturn"`
	AnnualizedReturn     null.Float `json:"annualizedReturn"`
	AnnualizedVolatility null.Float `json:"annualizedVolatility"`
	MaxDrawdown          null.Float `json:"maxDrawdown"`
	Drawdowns            []Drawdown `json:"drawdowns"`
}

// Drawdown is one fall below a running peak, Depth is the loss from the peak as a positive fraction.
// Length counts periods from Start through Recovery (or the last date), ToTrough from Start through Trough,
// ToRecovery the periods after the trough up to Recovery. Recovery has no value while the loss is not made back.
type Drawdown struct {
	Start      time.Time `json:"start"`
	Trough     time.Time `json:"trough"`
	Recovery   null.Time `json:"recovery"`
	Depth      float64   `json:"depth"`
	Length     int       `json:"length"`
	ToTrough   int       `json:"toTrough"`
	ToRecovery null.Int  `json:"toRecovery"`
}
