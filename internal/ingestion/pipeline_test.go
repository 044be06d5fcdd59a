package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/relatio-go/internal/enrich"
	"github.com/Benny93/relatio-go/internal/export"
	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/storage"
)

func scenarioRows() []Row {
	return []Row{
		{Subject: "Congress", Predicate: "raises", Object: "rates"},
		{Subject: "Congress", Predicate: "raises", Negated: true, Object: "rates"},
		{Subject: "the Congress", Predicate: "acts"},
	}
}

type failingEnricher struct{}

func (failingEnricher) Name() string { return "broken" }

func (failingEnricher) Enrich(context.Context, *graph.Store) (*graph.Store, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRunPipeline(t *testing.T) {
	t.Parallel()

	schema, err := graph.NewSchema(graph.NamespaceBase)
	require.NoError(t, err)

	var mu sync.Mutex
	var phases []string
	progress := func(phase string, pct float64) {
		mu.Lock()
		defer mu.Unlock()
		if pct == 1.0 {
			phases = append(phases, phase)
		}
	}

	ds, result, err := RunPipeline(context.Background(), scenarioRows(), PipelineOptions{
		Schema: schema,
		Build:  DefaultBuildOptions(),
	}, progress)
	require.NoError(t, err)

	t.Run("Counts", func(t *testing.T) {
		assert.Equal(t, 3, result.Rows)
		assert.Equal(t, 3, result.Entities, "Congress, Rates and The congress")
		assert.Equal(t, 4, result.Relations, "raises and acts with their negations")
		assert.Equal(t, 1, result.SelfLoops)
		assert.Equal(t, 1, result.ContainsEdges)
		assert.Equal(t, ds.Len(), result.Quads)
	})

	t.Run("Phases", func(t *testing.T) {
		assert.Equal(t, []string{PhaseClean, PhaseBuild, PhaseLink, PhaseFlush}, phases)
	})

	t.Run("Quads", func(t *testing.T) {
		iri := func(kind graph.Kind, label string) string {
			v, err := graph.GenerateIRI(kind, graph.NamespaceBase, label)
			require.NoError(t, err)
			return v
		}
		congress := iri(graph.KindEntity, "Congress")
		theCongress := iri(graph.KindEntity, "the Congress")
		rates := iri(graph.KindEntity, "rates")
		raises := iri(graph.KindRelation, "raises")
		notRaises := iri(graph.KindRelation, "not raises")
		acts := iri(graph.KindRelation, "acts")

		quads := ds.Quads()
		assert.Contains(t, quads, graph.NewQuad(congress, raises, rates, graph.NamespaceBase))
		assert.Contains(t, quads, graph.NewQuad(congress, notRaises, rates, graph.NamespaceBase))
		assert.Contains(t, quads, graph.NewQuad(theCongress, acts, theCongress, graph.NamespaceBase))
		assert.Contains(t, quads, graph.NewQuad(theCongress, schema.Contains.IRI, congress, graph.NamespaceBase))
		assert.Contains(t, quads, graph.NewQuad(raises, schema.IsNegOf.IRI, notRaises, graph.NamespaceBase))
		assert.Contains(t, quads, graph.NewQuad(notRaises, graph.OWLInverseOf, raises, graph.NamespaceBase))
		assert.NotContains(t, quads, graph.NewQuad(notRaises, schema.Contains.IRI, raises, graph.NamespaceBase))
	})

	t.Run("SchemaFirst", func(t *testing.T) {
		first := ds.Quads()[0]
		assert.Equal(t, schema.Entity.IRI, first.Subject)
	})
}

func TestRunPipeline_DropBothAbsent(t *testing.T) {
	t.Parallel()

	ds, result, err := RunPipeline(context.Background(), []Row{{Predicate: "grows"}}, PipelineOptions{}, nil)
	require.NoError(t, err)

	assert.Zero(t, result.Entities)
	assert.Equal(t, 1, result.Dropped)

	grows, err := graph.GenerateIRI(graph.KindRelation, graph.NamespaceBase, "grows")
	require.NoError(t, err)
	for _, q := range ds.Quads() {
		assert.NotEqual(t, grows, q.Predicate, "no triple uses the relation")
	}
}

func TestRunPipeline_Enrichment(t *testing.T) {
	t.Parallel()

	schema, err := graph.NewSchema(graph.NamespaceBase)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	rows := []Row{
		{Subject: "the Federal Reserve Board", Predicate: "meets", Object: "Congress"},
	}
	ds, result, err := RunPipeline(context.Background(), rows, PipelineOptions{
		Schema:    schema,
		Enrichers: []enrich.Enricher{enrich.NewSpansEnricher(schema, nil), failingEnricher{}},
		Metrics:   metrics,
	}, nil)
	require.NoError(t, err, "a failing source does not fail the build")

	require.Len(t, result.Enrichment, 2)
	assert.Error(t, result.Enrichment[1].Err)
	assert.Equal(t, 2, result.ExternalResources, "Federal Reserve Board part and Congress marker")

	spansClass, err := graph.GenerateIRI(graph.KindClass, graph.NamespaceSpans, "Entity")
	require.NoError(t, err)
	found := false
	for _, q := range ds.Quads() {
		if q.Subject == spansClass && q.Predicate == graph.RDFSSubClassOf {
			found = true
		}
	}
	assert.True(t, found, "span classes are serialized")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["relatio_enrich_failures_total"])
	assert.True(t, names["relatio_build_rows_total"])
}

func TestRunPipeline_OutputAndBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "graph.nq")
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Initialize("", false))

	ds, _, err := RunPipeline(ctx, scenarioRows(), PipelineOptions{
		Output:  out,
		Backend: backend,
	}, nil)
	require.NoError(t, err)

	written, err := export.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, export.Isomorphic(ds, written), "serialization round-trips")

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds.Len(), stats.Quads)
	assert.Equal(t, 3, stats.ByKind[string(graph.KindEntity)])

	results, err := backend.Search(ctx, "congress", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Congress", results[0].Label)
}

func TestRunPipeline_Errors(t *testing.T) {
	t.Parallel()

	t.Run("BadOutputFormat", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "graph.rdfxml")
		_, _, err := RunPipeline(context.Background(), scenarioRows(), PipelineOptions{Output: out}, nil)
		assert.ErrorIs(t, err, export.ErrUnsupportedFormat)
		_, statErr := os.Stat(out)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("MissingNamespace", func(t *testing.T) {
		t.Parallel()
		opts := PipelineOptions{Build: BuildOptions{Namespaces: Namespaces{Base: graph.NamespaceBase}}}
		_, _, err := RunPipeline(context.Background(), scenarioRows(), opts, nil)
		assert.ErrorIs(t, err, graph.ErrNoNamespace)
	})

	t.Run("LowDimWithoutNamespace", func(t *testing.T) {
		t.Parallel()
		opts := PipelineOptions{Build: BuildOptions{Namespaces: Namespaces{HighDim: graph.NamespaceBase}}}
		rows := []Row{{Subject: "Fed", Predicate: "raises", Object: "rates", LowDim: &Row{Subject: "bank"}}}
		_, _, err := RunPipeline(context.Background(), rows, opts, nil)
		assert.ErrorIs(t, err, graph.ErrNoNamespace)
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var phases []string
		_, _, err := RunPipeline(ctx, scenarioRows(), PipelineOptions{}, func(name string, _ float64) {
			phases = append(phases, name)
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorContains(t, err, "cleaning rows")
		assert.Empty(t, phases)
	})
}

func TestRunPipeline_KeepsInputRows(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{Subject: "nan", Predicate: "none"},
		{Subject: "Congress", Predicate: "raises", Object: "rates"},
	}
	_, res, err := RunPipeline(context.Background(), rows, PipelineOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, "nan", rows[0].Subject)
	assert.Equal(t, "Congress", rows[1].Subject)
}
