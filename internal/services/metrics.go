package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"

type pipelineMetrics struct {
	validations metric.Int64Counter
	issues      metric.Int64Counter
	plans       metric.Int64Counter
	seedRecords metric.Int64Counter
	runs        metric.Int64Counter
	saves       metric.Int64Counter
	generations metric.Int64Counter
}

func newPipelineMetrics(mp metric.MeterProvider) (*pipelineMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   pipelineMetrics
		err error
	)
	if m.validations, err = meter.Int64Counter("deskbuilder.validations",
		metric.WithDescription("Manifests validated, by outcome")); err != nil {
		return nil, err
	}
	if m.issues, err = meter.Int64Counter("deskbuilder.preflight.issues",
		metric.WithDescription("Preflight issues reported, by severity")); err != nil {
		return nil, err
	}
	if m.plans, err = meter.Int64Counter("deskbuilder.plans.compiled",
		metric.WithDescription("Dry-run plans compiled")); err != nil {
		return nil, err
	}
	if m.seedRecords, err = meter.Int64Counter("deskbuilder.seed.records",
		metric.WithDescription("Seed records generated")); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("deskbuilder.synthetic.runs",
		metric.WithDescription("Synthetic workflow runs, by status")); err != nil {
		return nil, err
	}
	if m.saves, err = meter.Int64Counter("deskbuilder.manifests.saved",
		metric.WithDescription("Manifest versions stored")); err != nil {
		return nil, err
	}
	if m.generations, err = meter.Int64Counter("deskbuilder.generator.blocks",
		metric.WithDescription("Generated blocks, by outcome")); err != nil {
		return nil, err
	}
	return &m, nil
}

func outcome(ok bool) metric.AddOption {
	if ok {
		return metric.WithAttributes(attribute.String("outcome", "ok"))
	}
	return metric.WithAttributes(attribute.String("outcome", "rejected"))
}

func (m *pipelineMetrics) validated(ctx context.Context, ok bool) {
	m.validations.Add(ctx, 1, outcome(ok))
}

func (m *pipelineMetrics) issue(ctx context.Context, severity string) {
	m.issues.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

func (m *pipelineMetrics) ran(ctx context.Context, status string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
