package graph

import (
	"fmt"
	"strings"
)

// Term is the object position of a quad: an IRI or a literal.
type Term struct {
	Value    string
	Literal  bool
	Language string
	Datatype string
}

// IRI builds an IRI term.
func IRI(value string) Term {
	return Term{Value: value}
}

// Literal builds a plain literal term.
func Literal(value string) Term {
	return Term{Value: value, Literal: true}
}

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	if !t.Literal {
		return "<" + t.Value + ">"
	}
	s := `"` + EscapeLiteral(t.Value) + `"`
	switch {
	case t.Language != "":
		s += "@" + t.Language
	case t.Datatype != "":
		s += "^^<" + t.Datatype + ">"
	}
	return s
}

// Quad is an immutable (subject, predicate, object, graph) statement.
// An empty Graph denotes the default graph.
type Quad struct {
	Subject   string
	Predicate string
	Object    Term
	Graph     string
}

// NewQuad builds a quad whose object is an IRI.
func NewQuad(subject, predicate, object, graphIRI string) Quad {
	return Quad{Subject: subject, Predicate: predicate, Object: IRI(object), Graph: graphIRI}
}

// Triple returns the quad without its graph component.
func (q Quad) Triple() Quad {
	q.Graph = ""
	return q
}

// String renders the quad in N-Quads syntax, without the trailing newline.
func (q Quad) String() string {
	if q.Graph == "" {
		return fmt.Sprintf("<%s> <%s> %s .", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("<%s> <%s> %s <%s> .", q.Subject, q.Predicate, q.Object, q.Graph)
}

// EscapeLiteral escapes a literal lexical form for N-Triples/N-Quads/Turtle.
func EscapeLiteral(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Quads regenerates the statements of the resource from its relationship state.
//
// Order: label, type, schema declarations, object edges, contains edges,
// negation links, low-dimension link, base link, extra quads.
func (r *Resource) Quads() []Quad {
	g := r.Namespace
	quads := []Quad{
		{Subject: r.IRI, Predicate: RDFSLabel, Object: Literal(r.FormattedLabel), Graph: g},
	}
	if r.TypeIRI != "" {
		quads = append(quads, NewQuad(r.IRI, RDFType, r.TypeIRI, g))
	}

	switch r.Kind {
	case KindClass:
		quads = append(quads, NewQuad(r.IRI, RDFSSubClassOf, r.SuperIRI, g))
	case KindProperty:
		quads = append(quads, NewQuad(r.IRI, RDFSSubPropOf, r.SuperIRI, g))
		if r.Domain != "" {
			quads = append(quads, NewQuad(r.IRI, RDFSDomain, r.Domain, g))
		}
		if r.Range != "" {
			quads = append(quads, NewQuad(r.IRI, RDFSRange, r.Range, g))
		}
	}

	for _, e := range r.edges {
		quads = append(quads, NewQuad(r.IRI, e.Relation.IRI, e.Object.IRI, e.Graph))
	}
	for _, part := range r.contains {
		quads = append(quads, NewQuad(r.IRI, containsIRI(r), part.IRI, part.Namespace))
	}
	if !r.negation.IsZero() {
		quads = append(quads,
			NewQuad(r.IRI, isNegOfIRI(r), r.negation.IRI, g),
			NewQuad(r.IRI, OWLInverseOf, r.negation.IRI, g),
		)
	}
	if !r.lowDim.IsZero() {
		quads = append(quads, NewQuad(r.IRI, hasLowDimIRI(r), r.lowDim.IRI, g))
	}
	if !r.base.IsZero() {
		quads = append(quads, NewQuad(r.base.IRI, OWLSameAs, r.IRI, r.base.Namespace))
	}
	return append(quads, r.extra...)
}

// Flush returns the quads of the resource and marks it flushed.
func (r *Resource) Flush() []Quad {
	r.state = StateFlushed
	return r.Quads()
}

// Schema property IRIs are resolved through the predicates attached to the
// resource at link time; the store-less fallbacks keep Quads usable for
// resources built outside a Builder.
func containsIRI(r *Resource) string {
	if r.predicates != nil && r.predicates.Contains != "" {
		return r.predicates.Contains
	}
	return DefaultPredicates.Contains
}

func isNegOfIRI(r *Resource) string {
	if r.predicates != nil && r.predicates.IsNegOf != "" {
		return r.predicates.IsNegOf
	}
	return DefaultPredicates.IsNegOf
}

func hasLowDimIRI(r *Resource) string {
	if r.predicates != nil && r.predicates.HasLowDim != "" {
		return r.predicates.HasLowDim
	}
	return DefaultPredicates.HasLowDim
}
