package provider

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workpilot_provider_requests_total",
		Help: "Language model requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workpilot_provider_request_seconds",
		Help:    "Language model request latency.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})
)

// instrumented records metrics and a log line per call. Only provider and model are logged.
type instrumented struct {
	Provider
	log *zap.Logger
}

func (p instrumented) Generate(ctx context.Context, systemPrompt string, turns []Turn, opts Options) (*GenerationResult, error) {
	start := time.Now()
	res, err := p.Provider.Generate(ctx, systemPrompt, turns, opts.withDefaults())
	elapsed := time.Since(start)
	kind := string(p.Kind())
	requestSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var pe *Error
		if errors.As(err, &pe) {
			outcome = string(pe.Kind)
		}
		p.log.Warn("provider call failed",
			zap.String("provider", kind),
			zap.String("model", p.Model()),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed))
	} else {
		fields := []zap.Field{
			zap.String("provider", kind),
			zap.String("model", res.Model),
			zap.Duration("elapsed", elapsed),
		}
		if res.TotalTokens != nil {
			fields = append(fields, zap.Int("total_tokens", *res.TotalTokens))
		}
		p.log.Debug("provider call", fields...)
	}
	requestsTotal.WithLabelValues(kind, outcome).Inc()
	return res, err
}
