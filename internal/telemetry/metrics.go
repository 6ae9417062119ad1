// Package telemetry wires OpenTelemetry tracing and the counters operators
// use to spot failures the core deliberately swallows.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dharsanguruparan/SiteVault"

// Counter names, also the keys of Snapshot.
const (
	OrphanedMoves        = "attachment.move.orphaned"
	SourceFailures       = "aggregate.source.failures"
	PartialAggregations  = "aggregate.partial"
	BackfillFailures     = "submission.backfill.failures"
	StorageCleanupErrors = "attachment.cleanup.failures"
)

// Metrics records counters both to the global OpenTelemetry meter and to an
// in-process mirror readable through Snapshot. A nil *Metrics is a no-op.
type Metrics struct {
	counters map[string]metric.Int64Counter
	local    map[string]*atomic.Int64
}

// NewMetrics registers every counter on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{
		counters: make(map[string]metric.Int64Counter),
		local:    make(map[string]*atomic.Int64),
	}
	descriptions := map[string]string{
		OrphanedMoves:        "attachment moves whose object moved but whose record update failed",
		SourceFailures:       "aggregation sources that failed or timed out",
		PartialAggregations:  "document listings served with at least one failed source",
		BackfillFailures:     "submission status backfills that could not be written",
		StorageCleanupErrors: "stored objects left behind after a failed write or delete",
	}
	for name, desc := range descriptions {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return nil, err
		}
		m.counters[name] = c
		m.local[name] = new(atomic.Int64)
	}
	return m, nil
}

// Add increments counter name by n.
func (m *Metrics) Add(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	if c, ok := m.counters[name]; ok {
		c.Add(ctx, n, metric.WithAttributes(attrs...))
	}
	if l, ok := m.local[name]; ok {
		l.Add(n)
	}
}

// Inc increments counter name by one.
func (m *Metrics) Inc(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	m.Add(ctx, name, 1, attrs...)
}

// Snapshot returns the process-local counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	if m == nil {
		return out
	}
	for name, l := range m.local {
		out[name] = l.Load()
	}
	return out
}

// Tracer returns the tracer spans in this module are started from.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
