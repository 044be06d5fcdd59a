package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Benny93/relatio-go/internal/enrich"
	"github.com/Benny93/relatio-go/internal/export"
	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/logging"
)

// EntitiesFromDataset rebuilds the entities typed with the schema Entity
// class in ds. Rebuilt entities carry identity only; their edges stay in ds.
// Subjects whose label does not hash back to their IRI are skipped.
func EntitiesFromDataset(ds *export.Dataset, schema *graph.Schema) (*graph.Store, int, error) {
	labels := make(map[string]string)
	for _, q := range ds.Quads() {
		if q.Predicate == graph.RDFSLabel && q.Object.Literal {
			if _, ok := labels[q.Subject]; !ok {
				labels[q.Subject] = q.Object.Value
			}
		}
	}

	instances := graph.NewInstances(schema)
	store := graph.NewStore()
	skipped := 0
	for _, q := range ds.Quads() {
		if q.Predicate != graph.RDFType || q.Object.Value != schema.Entity.IRI || q.Graph == "" {
			continue
		}
		label, ok := labels[q.Subject]
		if !ok {
			skipped++
			continue
		}
		iri, key, err := graph.Identity(graph.KindEntity, q.Graph, label)
		if err != nil {
			return nil, 0, fmt.Errorf("entity %s: %w", q.Subject, err)
		}
		if iri != q.Subject {
			skipped++
			continue
		}
		if store.Contains(key) {
			continue
		}
		if _, err := instances.Entity(store, q.Graph, label); err != nil {
			return nil, 0, fmt.Errorf("entity %s: %w", q.Subject, err)
		}
	}
	return store, skipped, nil
}

// EnrichDataset runs enrichers over the entities of a serialized graph and
// adds their output to ds. It returns the runner result and the number of
// new quads.
func EnrichDataset(
	ctx context.Context,
	ds *export.Dataset,
	schema *graph.Schema,
	enrichers []enrich.Enricher,
	logger *zap.Logger,
) (*enrich.Result, int, error) {
	logger = logging.OrNop(logger)

	entities, skipped, err := EntitiesFromDataset(ds, schema)
	if err != nil {
		return nil, 0, err
	}
	if skipped > 0 {
		logger.Warn("entities skipped while reloading graph", zap.Int("skipped", skipped))
	}

	res, err := enrich.NewRunner(logger).Run(ctx, entities, enrichers...)
	if err != nil {
		return nil, 0, fmt.Errorf("enriching: %w", err)
	}
	added := ds.AddStores(entities, res.Store)
	return res, added, nil
}
