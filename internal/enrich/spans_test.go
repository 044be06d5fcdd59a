package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/relatio-go/internal/graph"
)

func TestDefaultSpanFinder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  []string
	}{
		{"the Federal Reserve Board", []string{"Federal Reserve Board"}},
		{"Congress", []string{"Congress"}},
		{"interest rates", nil},
		{"talks between Barack Obama and Angela Merkel", []string{"Barack Obama", "Angela Merkel"}},
		{"The", nil},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			var got []string
			for _, s := range DefaultSpanFinder(tt.label) {
				got = append(got, s.Text)
				assert.Equal(t, SpanTypeProperNoun, s.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpansEnricher_Enrich(t *testing.T) {
	t.Parallel()

	schema := newTestSchema(t)
	f := graph.NewInstances(schema)
	in := graph.NewStore()

	congress, err := f.Entity(in, graph.NamespaceBase, "Congress")
	require.NoError(t, err)
	talks, err := f.Entity(in, graph.NamespaceBase, "talks between Congress and Angela Merkel")
	require.NoError(t, err)
	_, err = f.Entity(in, graph.NamespaceBase, "rates")
	require.NoError(t, err)

	out, err := NewSpansEnricher(schema, nil).Enrich(context.Background(), in)
	require.NoError(t, err)

	merkel := findByLabel(out, "Angela merkel")
	require.NotNil(t, merkel)
	assert.Equal(t, graph.KindExternalEntity, merkel.Kind)
	assert.Equal(t, SourceSpans, merkel.Source)
	assert.Equal(t, graph.NamespaceSpans, merkel.Namespace)

	var parts []string
	for _, ref := range talks.Contains() {
		parts = append(parts, ref.Key)
	}
	assert.ElementsMatch(t, []string{congress.Key(), merkel.Key()}, parts, "existing base entity is reused")

	marker := findByLabel(out, "Congress")
	require.NotNil(t, marker, "a whole-label span marks the entity")
	quads := marker.Quads()
	assert.Contains(t, quads, graph.NewQuad(marker.IRI, graph.OWLSameAs, congress.IRI, graph.NamespaceSpans))
	assert.Contains(t, quads, graph.NewQuad(congress.IRI, graph.OWLSameAs, marker.IRI, graph.NamespaceBase))

	assert.Nil(t, findByLabel(out, "Rates"))
}

func TestSpansEnricher_CustomFinder(t *testing.T) {
	t.Parallel()

	schema := newTestSchema(t)
	f := graph.NewInstances(schema)
	in := graph.NewStore()
	board, err := f.Entity(in, graph.NamespaceBase, "the central bank board")
	require.NoError(t, err)

	finder := func(string) []Span {
		return []Span{{Text: "central bank", Type: "ORG"}}
	}
	out, err := NewSpansEnricher(schema, finder).Enrich(context.Background(), in)
	require.NoError(t, err)

	bank := findByLabel(out, "Central bank")
	require.NotNil(t, bank)
	orgIRI, err := graph.GenerateIRI(graph.KindClass, graph.NamespaceSpans, "ORG")
	require.NoError(t, err)
	assert.Equal(t, orgIRI, bank.TypeIRI)
	require.Len(t, board.Contains(), 1)
	assert.Equal(t, bank.Key(), board.Contains()[0].Key)
}

func TestSpansEnricher_FailureLeavesInputUntouched(t *testing.T) {
	t.Parallel()

	schema := newTestSchema(t)
	f := graph.NewInstances(schema)
	in := graph.NewStore()
	board, err := f.Entity(in, graph.NamespaceBase, "the Federal Reserve board")
	require.NoError(t, err)
	chair, err := f.Entity(in, graph.NamespaceBase, "the Federal Reserve chair")
	require.NoError(t, err)

	calls := 0
	finder := func(string) []Span {
		calls++
		if calls > 1 {
			panic("span model crashed")
		}
		return []Span{{Text: "Federal Reserve"}}
	}

	res, err := NewRunner(nil).Run(context.Background(), in, NewSpansEnricher(schema, finder))
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, 0, res.Store.Len())
	assert.Empty(t, board.Contains())
	assert.Empty(t, chair.Contains())
}

func findByLabel(s *graph.Store, label string) *graph.Resource {
	for _, r := range s.Values() {
		if r.FormattedLabel == label && r.Kind != graph.KindClass {
			return r
		}
	}
	return nil
}
