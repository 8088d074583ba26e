// Package telemetry installs the OpenTelemetry meter provider the pipeline
// counters record into and exposes it for Prometheus scraping.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns an SDK meter provider backed by a private Prometheus registry.
type Provider struct {
	mp      *sdkmetric.MeterProvider
	handler http.Handler
}

// NewPrometheusProvider builds a meter provider whose readings are served by
// Handler in the Prometheus text format.
func NewPrometheusProvider() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return &Provider{
		mp:      sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.mp
}

// Handler serves the scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
