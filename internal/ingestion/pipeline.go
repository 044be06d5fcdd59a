// Package ingestion turns extracted rows into a knowledge graph.
package ingestion

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/relatio-go/internal/enrich"
	"github.com/Benny93/relatio-go/internal/export"
	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/logging"
	"github.com/Benny93/relatio-go/internal/storage"
)

// Phase names reported to the progress callback.
const (
	PhaseClean   = "Cleaning rows"
	PhaseBuild   = "Building instances"
	PhaseLink    = "Linking containment"
	PhaseEnrich  = "Enriching"
	PhaseFlush   = "Serializing quads"
	PhaseStorage = "Loading to storage"
	PhaseWrite   = "Writing output"
)

// PipelineOptions configures RunPipeline.
type PipelineOptions struct {
	// Schema is the schema registry. Nil creates one in the base namespace.
	Schema *graph.Schema
	// Build configures instance construction. Zero namespaces use DefaultNamespaces.
	Build BuildOptions
	// Workers bounds the containment fan-out. Zero uses one per CPU.
	Workers int
	// Enrichers run after linking. None disables enrichment.
	Enrichers []enrich.Enricher
	// Output is the file the graph is written to. Empty skips writing.
	Output string
	// Format overrides the format derived from Output.
	Format export.Format
	// Backend receives the built graph when set.
	Backend storage.StorageBackend
	Metrics *Metrics
	Logger  *zap.Logger
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Rows              int
	Entities          int
	Relations         int
	Triples           int
	SelfLoops         int
	Dropped           int
	ContainsEdges     int
	ExternalResources int
	Quads             int
	Enrichment        []enrich.SourceResult
	DurationSecs      float64
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// RunPipeline runs the full build: clean, build, link, enrich, serialize,
// store and write. The returned dataset holds every emitted quad.
func RunPipeline(
	ctx context.Context,
	rows []Row,
	opts PipelineOptions,
	progress ProgressCallback,
) (*export.Dataset, *PipelineResult, error) {
	start := time.Now()
	logger := logging.OrNop(opts.Logger)
	result := &PipelineResult{}

	if opts.Build.Namespaces == (Namespaces{}) {
		opts.Build.Namespaces = DefaultNamespaces()
	}
	schema := opts.Schema
	if schema == nil {
		base := opts.Build.Namespaces.Base
		if base == "" {
			base = graph.NamespaceBase
		}
		var err error
		if schema, err = graph.NewSchema(base); err != nil {
			return nil, nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	phase := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(name, 0.0)
		}
		began := time.Now()
		if err := fn(); err != nil {
			return err
		}
		opts.Metrics.observePhase(name, time.Since(began))
		logger.Debug("phase finished", zap.String("phase", name), zap.Duration("duration", time.Since(began)))
		if progress != nil {
			progress(name, 1.0)
		}
		return nil
	}

	// Phase 1: Cleaning
	err := phase(PhaseClean, func() error {
		rows = CleanRows(rows)
		result.Rows = len(rows)
		opts.Metrics.recordRows(len(rows))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cleaning rows: %w", err)
	}

	// Phase 2: Instances
	var builder *Builder
	err = phase(PhaseBuild, func() error {
		var err error
		if builder, err = NewBuilder(schema, opts.Build); err != nil {
			return err
		}
		return builder.AddRows(rows)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building instances: %w", err)
	}
	stats := builder.Stats()
	result.Triples = stats.Triples
	result.SelfLoops = stats.SelfLoops
	result.Dropped = stats.Dropped
	result.Entities = builder.Entities().Len()
	result.Relations = builder.Relations().Len()
	opts.Metrics.recordResources(string(graph.KindEntity), result.Entities)
	opts.Metrics.recordResources(string(graph.KindRelation), result.Relations)

	// Phase 3: Containment
	err = phase(PhaseLink, func() error {
		n, err := LinkContainment(ctx, opts.Workers, opts.Metrics, builder.Entities(), builder.Relations())
		result.ContainsEdges = n
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("linking containment: %w", err)
	}

	// Phase 4: Enrichment
	enriched := graph.NewStore()
	if len(opts.Enrichers) > 0 {
		err = phase(PhaseEnrich, func() error {
			res, err := enrich.NewRunner(logger).Run(ctx, builder.Entities(), opts.Enrichers...)
			if err != nil {
				return err
			}
			enriched = res.Store
			result.Enrichment = res.Sources
			for _, name := range res.Failed() {
				opts.Metrics.recordEnrichmentFailure(name)
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("enriching: %w", err)
		}
	}
	result.ExternalResources = enriched.CountByKind(graph.KindExternalEntity)
	opts.Metrics.recordResources(string(graph.KindExternalEntity), result.ExternalResources)

	// Phase 5: Serialization
	merged := schema.Store().Union(builder.Entities(), builder.Relations(), enriched)
	ds := export.NewDataset()
	err = phase(PhaseFlush, func() error {
		ds.AddStores(merged)
		result.Quads = ds.Len()
		opts.Metrics.recordQuads(ds.Len())
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("serializing: %w", err)
	}

	// Phase 6: Storage
	if opts.Backend != nil {
		err = phase(PhaseStorage, func() error {
			return opts.Backend.BulkLoad(ctx, merged, ds.Quads())
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bulk load: %w", err)
		}
	}

	// Phase 7: Output
	if opts.Output != "" {
		err = phase(PhaseWrite, func() error {
			return export.WriteFile(opts.Output, ds, opts.Format)
		})
		if err != nil {
			return nil, nil, err
		}
	}

	result.DurationSecs = time.Since(start).Seconds()
	logger.Info("graph built",
		zap.Int("rows", result.Rows),
		zap.Int("entities", result.Entities),
		zap.Int("relations", result.Relations),
		zap.Int("contains", result.ContainsEdges),
		zap.Int("external", result.ExternalResources),
		zap.Int("quads", result.Quads),
		zap.Float64("seconds", result.DurationSecs),
	)
	return ds, result, nil
}

// LinkContainment links every entity and relation family of the given
// stores. Families never share keys, so they are linked concurrently.
func LinkContainment(ctx context.Context, workers int, metrics *Metrics, stores ...*graph.Store) (int, error) {
	linker := NewContainmentLinker(workers)
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, store := range stores {
		for _, family := range Families(store) {
			g.Go(func() error {
				n, err := linker.Link(gctx, store, family)
				if err != nil {
					return err
				}
				metrics.recordContains(family.String(), n)
				total.Add(int64(n))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(total.Load()), nil
}
