package core

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	ex "rc/data/extensions"
	m "rc/data/models"
)

const (
	// 20 sessions, scaled by sqrt(250) to annualize
	DefaultVolatilityWindow         = 20
	DefaultVolatilityPeriodsPerYear = 250

	// DefaultDrawdownEpisodes is how many drawdowns a summary lists per column
	DefaultDrawdownEpisodes = 5
)

var (
	ErrInsufficientObservations = errors.New("not enough observations")
	ErrInvalidWindow            = errors.New("window must be at least 2")
	ErrInvalidAnnualization     = errors.New("periods per year must be positive")
)

// PairwiseCorrelation is Pearson correlation using, for each pair, only the dates where both columns have a value.
// A pair with fewer than two shared observations, or no variance, is NaN.
func PairwiseCorrelation(t *m.Table) *m.CorrelationMatrix {
	n := len(t.Columns)
	corr := mat.NewSymDense(max(n, 1), nil)

	for i := range n {
		for j := range i + 1 {
			x, y := pairwiseComplete(t.Columns[i].Values, t.Columns[j].Values)
			corr.SetSym(i, j, correlation(x, y, i == j))
		}
	}

	return &m.CorrelationMatrix{
		Columns: t.ColumnNames(),
		Values:  sliceSym(corr, n),
	}
}

// CompleteCaseCorrelation drops every date where any column is missing, then correlates what is left
func CompleteCaseCorrelation(t *m.Table) (*m.CorrelationMatrix, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: table has no columns", ErrInsufficientObservations)
	}

	complete := t.CompleteRows()
	if complete.Len() < 2 {
		return nil, fmt.Errorf("%w: %d complete rows, need 2", ErrInsufficientObservations, complete.Len())
	}

	data := make([][]float64, len(complete.Columns))
	for i, c := range complete.Columns {
		data[i] = c.ValidFloats()
	}

	corr := GetCorrelationMatrix(GetCovarianceMatrix(data))
	for i := range corr.SymmetricDim() {
		if !math.IsNaN(corr.At(i, i)) {
			corr.SetSym(i, i, 1)
		}
	}

	return &m.CorrelationMatrix{
		Columns: complete.ColumnNames(),
		Values:  corr,
	}, nil
}

// RollingVolatility is the sample standard deviation over the trailing window, scaled by sqrt(periodsPerYear).
// Dates without a full window of values have no value.
func RollingVolatility(t *m.Table, window, periodsPerYear int) (*m.Table, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWindow, window)
	}
	if periodsPerYear <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidAnnualization, periodsPerYear)
	}

	scale := math.Sqrt(float64(periodsPerYear))
	res, err := m.NewTable(t.Dates)
	if err != nil {
		return nil, err
	}

	for _, c := range t.Columns {
		values := make([]null.Float, len(c.Values))
		buf := make([]float64, window)
		for i := window - 1; i < len(c.Values); i++ {
			full := true
			for k, v := range c.Values[i-window+1 : i+1] {
				if !v.Valid {
					full = false
					break
				}
				buf[k] = v.Float64
			}
			if full {
				values[i] = m.Float(stat.StdDev(buf, nil) * scale)
			}
		}
		if err := res.AddColumn(c.Name, values); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// PerformanceSummary reports compounded and annualized figures for each column of returns,
// with up to topDrawdowns drawdown episodes (negative keeps all of them).
// Missing returns are skipped, a column needs two returns before anything but the count is reported.
func PerformanceSummary(t *m.Table, periodsPerYear, topDrawdowns int) ([]m.PerformanceMetrics, error) {
	if periodsPerYear <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidAnnualization, periodsPerYear)
	}

	res := make([]m.PerformanceMetrics, len(t.Columns))
	for i, c := range t.Columns {
		returns := c.ValidFloats()
		res[i] = m.PerformanceMetrics{
			Name:         c.Name,
			Observations: len(returns),
			Drawdowns:    []m.Drawdown{},
		}
		if len(returns) < 2 {
			continue
		}

		path := wealthPath(returns)
		numPeriods := float64(len(returns))
		finalValue := path[len(path)-1]

		res[i].TotalReturn = m.Float(finalValue - 1)
		// geometric, undefined once the path is wiped out
		if finalValue > 0 {
			res[i].AnnualizedReturn = m.Float(math.Pow(finalValue, float64(periodsPerYear)/numPeriods) - 1)
		}
		res[i].AnnualizedVolatility = m.Float(stat.StdDev(returns, nil) * math.Sqrt(float64(periodsPerYear)))
		res[i].MaxDrawdown = m.Float(maxDrawdown(path))
		res[i].Drawdowns = DrawdownEpisodes(c, topDrawdowns)
	}

	return res, nil
}

// DrawdownEpisodes walks the compounded returns and lists every fall below the running peak, deepest first.
// An episode starts on the first date below the peak and recovers on the first date back at it.
// At most top episodes are kept, a negative top keeps them all.
func DrawdownEpisodes(s *m.Series, top int) []m.Drawdown {
	var dates []time.Time
	var returns []float64
	for i, v := range s.Values {
		if v.Valid {
			dates = append(dates, s.Dates[i])
			returns = append(returns, v.Float64)
		}
	}

	episodes := []m.Drawdown{}
	var current *m.Drawdown
	var start, trough int

	path := wealthPath(returns)
	peak := path[0]
	for i := range returns {
		v := path[i+1]
		if v >= peak {
			peak = v
			if current != nil {
				current.Recovery = null.TimeFrom(dates[i])
				current.Length = i - start + 1
				current.ToRecovery = null.IntFrom(int64(i - trough))
				episodes = append(episodes, *current)
				current = nil
			}
			continue
		}

		depth := (peak - v) / peak
		switch {
		case current == nil:
			start, trough = i, i
			current = &m.Drawdown{Start: dates[i], Trough: dates[i], Depth: depth}
		case depth > current.Depth:
			trough = i
			current.Trough = dates[i]
			current.Depth = depth
		}
		current.ToTrough = trough - start + 1
	}

	if current != nil {
		current.Length = len(returns) - start
		episodes = append(episodes, *current)
	}

	slices.SortStableFunc(episodes, func(a, b m.Drawdown) int {
		return cmp.Compare(b.Depth, a.Depth)
	})
	if top >= 0 && top < len(episodes) {
		episodes = episodes[:top]
	}
	return episodes
}

// wealthPath compounds returns from a starting value of 1, the first entry is the start
func wealthPath(returns []float64) []float64 {
	path := make([]float64, len(returns)+1)
	path[0] = 1
	for i, r := range returns {
		path[i+1] = path[i] * (1 + r)
	}
	return path
}

func maxDrawdown(path []float64) float64 {
	var peak, drawdown float64
	for _, v := range path {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown = max(drawdown, (peak-v)/peak)
		}
	}
	return drawdown
}

func pairwiseComplete(a, b []null.Float) (x, y []float64) {
	for i := range a {
		if a[i].Valid && b[i].Valid {
			x = append(x, a[i].Float64)
			y = append(y, b[i].Float64)
		}
	}
	return
}

func correlation(x, y []float64, diagonal bool) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	r := stat.Correlation(x, y, nil)
	if math.IsInf(r, 0) {
		return math.NaN()
	}
	if diagonal && !math.IsNaN(r) {
		return 1
	}
	return r
}

// sliceSym gives back an empty matrix for an empty table, gonum will not build a zero sized one
func sliceSym(s *mat.SymDense, n int) *mat.SymDense {
	if n == 0 {
		return &mat.SymDense{}
	}
	return s
}

func GetCovarianceMatrix[T ex.Number](data [][]T) *mat.SymDense {
	returnMatrix := ArrToMatrix(data)
	covMatrix := mat.NewSymDense(len(data), nil)
	stat.CovarianceMatrix(covMatrix, returnMatrix, nil)
	return covMatrix
}

// GetCorrelationMatrix builds a correlation matrix from a covariance matrix so diagonal is 1.
// corr_ij = cov_ij / sqrt(cov_ii*cov_jj), a column with no variance gives NaN.
func GetCorrelationMatrix(covMatrix *mat.SymDense) *mat.SymDense {
	n := covMatrix.SymmetricDim()
	corrMatrix := mat.NewSymDense(n, nil)

	for i := range n {
		for j := range i + 1 {
			denominator := math.Sqrt(covMatrix.At(i, i) * covMatrix.At(j, j))
			corr := math.NaN()
			if denominator > 0 {
				corr = covMatrix.At(i, j) / denominator
			}
			corrMatrix.SetSym(i, j, corr)
		}
	}

	return corrMatrix
}

// ArrToMatrix lays each inner slice out as a column, rows are observations
func ArrToMatrix[T ex.Number](data [][]T) *mat.Dense {
	nSymbols := len(data)
	nObservations := len(data[0])
	res := mat.NewDense(nObservations, nSymbols, nil)
	for j, col := range data {
		for i, row := range col {
			res.Set(i, j, float64(row))
		}
	}
	return res
}
