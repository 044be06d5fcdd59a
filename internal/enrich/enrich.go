// Package enrich adds resources from external knowledge sources to a built graph.
//
// Every source receives the entity store and returns a new store holding
// only the resources it contributed. A failing source never aborts the
// build: the Runner logs the failure and continues with an empty store.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/logging"
)

// ErrNoEnrichmentSource is returned when enrichment is requested without any source.
var ErrNoEnrichmentSource = errors.New("no enrichment source selected")

// ErrUnknownSource is returned for source names with no implementation.
var ErrUnknownSource = errors.New("unknown enrichment source")

// Enricher is an external knowledge source.
type Enricher interface {
	// Name identifies the source in logs and resource metadata.
	Name() string
	// Enrich returns a store with the resources contributed for the
	// entities of in. Relationship edges may be attached to entities of in.
	Enrich(ctx context.Context, in *graph.Store) (*graph.Store, error)
}

// SourceResult reports the outcome of one source.
type SourceResult struct {
	Name     string
	Added    int
	Err      error
	Duration time.Duration
}

// Result is the outcome of a Runner pass.
type Result struct {
	// Store is the union of every source's store in source order.
	Store   *graph.Store
	Sources []SourceResult
}

// Failed returns the names of sources that failed.
func (r *Result) Failed() []string {
	var names []string
	for _, s := range r.Sources {
		if s.Err != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

// Runner runs enrichment sources one after another.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logging.OrNop(logger)}
}

// Run invokes each enricher on in and unions their stores. A source that
// returns an error or panics contributes an empty store.
func (r *Runner) Run(ctx context.Context, in *graph.Store, enrichers ...Enricher) (*Result, error) {
	if len(enrichers) == 0 {
		return nil, ErrNoEnrichmentSource
	}

	result := &Result{}
	stores := make([]*graph.Store, 0, len(enrichers))
	for _, e := range enrichers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		out, err := r.runOne(ctx, e, in)
		sr := SourceResult{Name: e.Name(), Err: err, Duration: time.Since(start)}
		if err != nil {
			r.logger.Warn("enrichment source failed",
				zap.String("source", e.Name()),
				zap.Error(err),
			)
			out = graph.NewStore()
		}
		sr.Added = out.Len()
		r.logger.Info("enrichment source finished",
			zap.String("source", e.Name()),
			zap.Int("resources", sr.Added),
			zap.Duration("duration", sr.Duration),
		)
		result.Sources = append(result.Sources, sr)
		stores = append(stores, out)
	}

	result.Store = stores[0].Union(stores[1:]...)
	return result, nil
}

func (r *Runner) runOne(ctx context.Context, e Enricher, in *graph.Store) (out *graph.Store, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic in %s: %v", e.Name(), p)
		}
	}()
	out, err = e.Enrich(ctx, in)
	if err == nil && out == nil {
		out = graph.NewStore()
	}
	return out, err
}

// Options configures the sources built by FromNames.
type Options struct {
	Schema   *graph.Schema
	Logger   *zap.Logger
	Wikidata WikidataOptions
}

// FromNames builds the named sources in order.
func FromNames(names []string, opts Options) ([]Enricher, error) {
	if len(names) == 0 {
		return nil, ErrNoEnrichmentSource
	}
	enrichers := make([]Enricher, 0, len(names))
	for _, name := range names {
		switch name {
		case SourceSpans:
			enrichers = append(enrichers, NewSpansEnricher(opts.Schema, nil))
		case SourceWikidata:
			enrichers = append(enrichers, NewWikidataEnricher(opts.Schema, opts.Wikidata, opts.Logger))
		default:
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownSource)
		}
	}
	return enrichers, nil
}
