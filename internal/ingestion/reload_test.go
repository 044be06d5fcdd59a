package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/relatio-go/internal/enrich"
	"github.com/Benny93/relatio-go/internal/graph"
)

func TestEntitiesFromDataset(t *testing.T) {
	t.Parallel()

	schema, err := graph.NewSchema(graph.NamespaceBase)
	require.NoError(t, err)
	ds, result, err := RunPipeline(context.Background(), scenarioRows(), PipelineOptions{Schema: schema}, nil)
	require.NoError(t, err)

	entities, skipped, err := EntitiesFromDataset(ds, schema)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, result.Entities, entities.Len())
	assert.NotNil(t, entityByLabel(entities, graph.NamespaceBase, "The congress"))
}

func TestEnrichDataset(t *testing.T) {
	t.Parallel()

	schema, err := graph.NewSchema(graph.NamespaceBase)
	require.NoError(t, err)
	rows := []Row{{Subject: "talks with Angela Merkel", Predicate: "include", Object: "trade"}}
	ds, _, err := RunPipeline(context.Background(), rows, PipelineOptions{Schema: schema}, nil)
	require.NoError(t, err)
	before := ds.Len()

	// Reloaded labels are the formatted ones, so capitalization is gone.
	finder := func(label string) []enrich.Span {
		if label != "Talks with angela merkel" {
			return nil
		}
		return []enrich.Span{{Text: "Angela Merkel", Type: "Person"}}
	}
	res, added, err := EnrichDataset(context.Background(), ds, schema,
		[]enrich.Enricher{enrich.NewSpansEnricher(schema, finder)}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Failed())
	assert.Positive(t, added)
	assert.Equal(t, before+added, ds.Len())

	talks, err := graph.GenerateIRI(graph.KindEntity, graph.NamespaceBase, "talks with Angela Merkel")
	require.NoError(t, err)
	merkel, err := graph.GenerateIRI(graph.KindExternalEntity, graph.NamespaceSpans, "Angela Merkel")
	require.NoError(t, err)
	assert.Contains(t, ds.Quads(), graph.NewQuad(talks, schema.Contains.IRI, merkel, graph.NamespaceSpans))

	_, _, err = EnrichDataset(context.Background(), ds, schema, nil, nil)
	assert.ErrorIs(t, err, enrich.ErrNoEnrichmentSource)
}
