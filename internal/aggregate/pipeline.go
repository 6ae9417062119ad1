// Package aggregate merges documents from several heterogeneous stores into
// one scope-filtered, deterministically ordered listing.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// DefaultSourceTimeout bounds each source query when none is configured.
const DefaultSourceTimeout = 5 * time.Second

// Statistics counts the merged documents by logical type.
type Statistics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"byType"`
}

// Result is one aggregated listing.
type Result struct {
	Documents  []model.DocumentRecord `json:"documents"`
	Statistics Statistics             `json:"statistics"`
	// FailedSources lists sources that contributed nothing because they
	// failed or timed out.
	FailedSources []model.Source `json:"failedSources,omitempty"`
}

// Partial reports whether some source failed.
func (r Result) Partial() bool { return len(r.FailedSources) > 0 }

// Pipeline fans a listing out to every source.
type Pipeline struct {
	resolver *scope.Resolver
	sources  []Source
	timeout  time.Duration
	metrics  *telemetry.Metrics
	log      *zap.Logger
}

// NewPipeline constructs a Pipeline over sources.
func NewPipeline(resolver *scope.Resolver, sources []Source, timeout time.Duration, metrics *telemetry.Metrics, log *zap.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	return &Pipeline{resolver: resolver, sources: sources, timeout: timeout, metrics: metrics, log: log}
}

type outcome struct {
	queried bool
	records []model.DocumentRecord
	err     error
}

// List returns the documents actor may see, optionally narrowed to siteID
// and to the logical types in types.
func (p *Pipeline) List(ctx context.Context, actor model.Principal, siteID string, types []string) (Result, error) {
	for _, t := range types {
		if !KnownType(t) {
			return Result{}, apperr.Validation("unknown document type " + t)
		}
	}
	ctx, span := telemetry.Tracer().Start(ctx, "aggregate.List")
	defer span.End()

	f := scope.For(actor, p.resolver.Resolve(ctx, actor), siteID)
	if f.Blocked() {
		return build(nil, nil), nil
	}

	outcomes := make([]outcome, len(p.sources))
	var g errgroup.Group
	for i, src := range p.sources {
		var natives []string
		if len(types) > 0 {
			n, ok := translate(src.Name(), types)
			if !ok {
				continue
			}
			natives = n
		}
		g.Go(func() error {
			outcomes[i] = p.fetch(ctx, src, f, natives)
			return nil
		})
	}
	_ = g.Wait()

	var (
		merged  []model.DocumentRecord
		failed  []model.Source
		queried int
	)
	for i, o := range outcomes {
		if !o.queried {
			continue
		}
		queried++
		if o.err != nil {
			name := p.sources[i].Name()
			failed = append(failed, name)
			p.metrics.Inc(ctx, telemetry.SourceFailures, attribute.String("source", string(name)))
			p.log.Warn("document source failed",
				zap.String("source", string(name)),
				zap.String("principal_id", actor.ID),
				zap.Error(o.err))
			continue
		}
		merged = append(merged, o.records...)
	}
	if queried > 0 && len(failed) == queried {
		span.SetStatus(codes.Error, "all sources failed")
		return Result{}, apperr.New(apperr.CodeAggregateUnavailable, "no document source is available")
	}
	if len(failed) > 0 {
		p.metrics.Inc(ctx, telemetry.PartialAggregations)
	}
	return build(merged, failed), nil
}

// fetch queries one source under its own timeout and normalizes the rows
// that are visible under f.
func (p *Pipeline) fetch(ctx context.Context, src Source, f scope.Filter, natives []string) outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx, span := telemetry.Tracer().Start(ctx, "aggregate.source")
	span.SetAttributes(attribute.String("source", string(src.Name())))
	defer span.End()

	rows, err := src.Fetch(ctx, f, natives)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome{queried: true, err: fmt.Errorf("%s: %w", src.Name(), err)}
	}
	records := make([]model.DocumentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := src.Normalize(row)
		if err != nil {
			p.log.Warn("skipping malformed document row", zap.String("source", string(src.Name())), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return outcome{queried: true, records: scope.View(f, records)}
}

// build sorts the merged records and counts them. Counting happens on the
// merged set so types shared by several sources add up once per record.
func build(merged []model.DocumentRecord, failed []model.Source) Result {
	sortRecords(merged)
	stats := Statistics{Total: len(merged), ByType: make(map[string]int)}
	for _, r := range merged {
		stats.ByType[r.Category]++
	}
	if merged == nil {
		merged = []model.DocumentRecord{}
	}
	return Result{Documents: merged, Statistics: stats, FailedSources: failed}
}

// sortRecords orders by creation time descending, then source priority,
// then id, so the result never depends on which source answered first.
func sortRecords(rs []model.DocumentRecord) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Source.Priority() != b.Source.Priority() {
			return a.Source.Priority() < b.Source.Priority()
		}
		return a.ID < b.ID
	})
}
