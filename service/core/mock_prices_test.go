package core

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	m "rc/data/models"
	sm "rc/service/models"
)

const (
	mu_a    = 0.08
	mu_b    = 0.10
	mu_c    = 0.12
	sigma_a = 0.15
	sigma_b = 0.20
	sigma_c = 0.25
	corr_ab = 0.5
	corr_ac = 0.0
	corr_bc = 0.0
)

var mockSymbols = []string{"AAA", "BBB", "CCC"}

func day(d int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func days(n int) []time.Time {
	res := make([]time.Time, n)
	for i := range n {
		res[i] = day(i)
	}
	return res
}

func nulls(values ...float64) []null.Float {
	return m.FloatsToNull(values)
}

func mustSeries(t *testing.T, name string, values ...float64) *m.Series {
	t.Helper()
	s, err := m.NewSeriesFromFloats(name, days(len(values)), values)
	if err != nil {
		t.Fatalf("error building series: %v", err)
	}
	return s
}

func mustTable(t *testing.T, columns map[string][]float64, order ...string) *m.Table {
	t.Helper()
	n := len(columns[order[0]])
	table, err := m.NewTable(days(n))
	if err != nil {
		t.Fatalf("error building table: %v", err)
	}
	for _, name := range order {
		if err := table.AddColumn(name, nulls(columns[name]...)); err != nil {
			t.Fatalf("error adding column %s: %v", name, err)
		}
	}
	return table
}

// Helper: correlated daily log returns for three assets, seeded so every run sees the same data
func generateMockReturns(t *testing.T, n int) [][]float64 {
	t.Helper()

	nAssets := 3
	corrData := []float64{
		1.0, corr_ab, corr_ac,
		corr_ab, 1.0, corr_bc,
		corr_ac, corr_bc, 1.0,
	}

	corrMatrix := mat.NewSymDense(nAssets, corrData)
	var chol mat.Cholesky
	if ok := chol.Factorize(corrMatrix); !ok {
		t.Fatalf("Correlation matrix is not positive definite")
	}

	L := new(mat.TriDense)
	chol.LTo(L)

	src := rand.NewPCG(42, 0)
	normalDist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	res := [][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	mu := []float64{mu_a, mu_b, mu_c}
	sigma := []float64{sigma_a, sigma_b, sigma_c}

	z := make([]float64, nAssets)
	for sim := range n {
		for i := range nAssets {
			z[i] = normalDist.Rand()
		}

		correlatedZ := mat.NewVecDense(nAssets, nil)
		correlatedZ.MulVec(L, mat.NewVecDense(nAssets, z))

		for asset := range nAssets {
			res[asset][sim] = calculateLogNormalReturn(t, mu[asset], sigma[asset], correlatedZ.AtVec(asset), sm.Daily)
		}
	}

	return res
}

// Helper: Centralized way to calculate log normal returns
func calculateLogNormalReturn(t *testing.T, mu, sigma, rng, normalization float64) float64 {
	t.Helper()
	return (mu-0.5*math.Pow(sigma, 2))/normalization + (sigma * rng / math.Sqrt(normalization))
}

// Helper: price table compounding the mock log returns, one row more than there are returns
func generateMockPriceTable(t *testing.T, n int) *m.Table {
	t.Helper()

	returns := generateMockReturns(t, n)
	start := []float64{100, 50, 200}

	table, err := m.NewTable(days(n + 1))
	if err != nil {
		t.Fatalf("error building table: %v", err)
	}

	for asset, symbol := range mockSymbols {
		prices := make([]float64, n+1)
		prices[0] = start[asset]
		for sim := range n {
			prices[sim+1] = prices[sim] * math.Exp(returns[asset][sim])
		}
		if err := table.AddColumn(symbol, nulls(prices...)); err != nil {
			t.Fatalf("error adding column %s: %v", symbol, err)
		}
	}

	return table
}
