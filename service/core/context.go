package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
)

// ServiceContext carries what every request needs. Fetchers is keyed by provider name.
type ServiceContext struct {
	Context         context.Context
	Logger          *zap.Logger
	Fetchers        map[string]PriceFetcher
	DefaultProvider string

	// RequestTimeout bounds every /api request, zero means DefaultRequestTimeout
	RequestTimeout time.Duration
}

func (sc *ServiceContext) requestTimeout() time.Duration {
	if sc.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return sc.RequestTimeout
}
