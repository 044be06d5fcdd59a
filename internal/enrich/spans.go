package enrich

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Benny93/relatio-go/internal/graph"
)

// SourceSpans is the name of the span source.
const SourceSpans = "spans"

// Span is a candidate sub-label found inside an entity label.
type Span struct {
	Text string
	// Type is the span category, used as the class of the created resource.
	Type string
}

// SpanFinder locates candidate spans inside a label.
type SpanFinder func(label string) []Span

// SpanTypeProperNoun is the type assigned by DefaultSpanFinder.
const SpanTypeProperNoun = "ProperNoun"

// leadingArticles are dropped from the start of a span.
var leadingArticles = map[string]struct{}{
	"the": {},
	"a":   {},
	"an":  {},
}

// DefaultSpanFinder returns the runs of capitalized tokens of label.
// Leading articles are not part of a run.
func DefaultSpanFinder(label string) []Span {
	var spans []Span
	var run []string
	flush := func() {
		if len(run) > 0 {
			spans = append(spans, Span{Text: strings.Join(run, " "), Type: SpanTypeProperNoun})
			run = nil
		}
	}

	for _, token := range strings.Fields(label) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return unicode.IsPunct(r) && r != '-' && r != '.'
		})
		token = strings.TrimSuffix(token, ".")
		if token == "" {
			flush()
			continue
		}
		r, _ := utf8.DecodeRuneInString(token)
		if !unicode.IsUpper(r) {
			flush()
			continue
		}
		if _, ok := leadingArticles[strings.ToLower(token)]; ok && len(run) == 0 {
			continue
		}
		run = append(run, token)
	}
	flush()
	return spans
}

// SpansEnricher links entities to the named spans inside their labels.
//
// When the first span covers the whole label, the entity itself is marked
// with a span resource linked by owl:sameAs. Otherwise each span becomes a
// part of the entity: an existing base entity with that label is reused,
// else a span resource is created.
type SpansEnricher struct {
	schema    *graph.Schema
	instances *graph.Instances
	finder    SpanFinder
}

// NewSpansEnricher creates the span source. A nil finder uses DefaultSpanFinder.
func NewSpansEnricher(schema *graph.Schema, finder SpanFinder) *SpansEnricher {
	if finder == nil {
		finder = DefaultSpanFinder
	}
	return &SpansEnricher{
		schema:    schema,
		instances: graph.NewInstances(schema),
		finder:    finder,
	}
}

// Name implements Enricher.
func (s *SpansEnricher) Name() string {
	return SourceSpans
}

// Enrich implements Enricher.
func (s *SpansEnricher) Enrich(ctx context.Context, in *graph.Store) (*graph.Store, error) {
	out := graph.NewStore()
	root, err := s.schema.RegisterClass(graph.NamespaceSpans, "Entity", s.schema.Entity.IRI)
	if err != nil {
		return nil, fmt.Errorf("declaring span class: %w", err)
	}
	out.GetOrAdd(root)

	// Edges onto input entities are applied only once every span resolved.
	type pendingEdge struct {
		entity *graph.Resource
		part   graph.Ref
	}
	var pending []pendingEdge

	for _, entity := range in.ByKind(graph.KindEntity) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entity.Namespace != s.schema.Namespace {
			continue
		}

		spans := s.finder(entity.Label)
		if len(spans) == 0 {
			continue
		}

		if strings.EqualFold(spans[0].Text, entity.FormattedLabel) {
			marker, err := s.span(nil, out, root, spans[0])
			if err != nil {
				return nil, err
			}
			marker.AddQuad(graph.NewQuad(marker.IRI, graph.OWLSameAs, entity.IRI, graph.NamespaceSpans))
			marker.AddQuad(graph.NewQuad(entity.IRI, graph.OWLSameAs, marker.IRI, s.schema.Namespace))
			continue
		}

		for _, sp := range spans {
			part, err := s.span(in, out, root, sp)
			if err != nil {
				return nil, err
			}
			if part == nil || part == entity {
				continue
			}
			pending = append(pending, pendingEdge{entity: entity, part: part.Ref()})
		}
	}

	for _, e := range pending {
		e.entity.AddContains(e.part)
	}
	return out, nil
}

// span returns the resource of sp, reusing a base entity of known when one exists.
func (s *SpansEnricher) span(known, out *graph.Store, root *graph.Resource, sp Span) (*graph.Resource, error) {
	class := root
	if sp.Type != "" {
		c, err := s.schema.RegisterClass(graph.NamespaceSpans, sp.Type, root.IRI)
		if err != nil {
			return nil, fmt.Errorf("declaring span type %q: %w", sp.Type, err)
		}
		class = out.GetOrAdd(c)
	}
	r, err := s.instances.External(known, out, SourceSpans, graph.NamespaceSpans, sp.Text, class.IRI)
	if err != nil {
		return nil, fmt.Errorf("span %q: %w", sp.Text, err)
	}
	return r, nil
}
