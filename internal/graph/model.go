// Package graph provides the resource model of the relatio knowledge graph.
//
// It defines the typed resources (entities, relations, classes, properties
// and resources contributed by external sources), their deterministic
// identity, the deduplicating Store that owns them and the quads they emit
// when the graph is serialized.
package graph

import (
	"fmt"
	"strings"
)

// Kind is the variant of a resource.
type Kind string

const (
	KindEntity         Kind = "Entity"
	KindRelation       Kind = "Relation"
	KindClass          Kind = "Class"
	KindProperty       Kind = "Property"
	KindExternalEntity Kind = "ExternalEntity"
)

// String returns the IRI path segment of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsInstance reports whether resources of this kind carry an rdf:type assertion
// towards a schema resource.
func (k Kind) IsInstance() bool {
	return k == KindEntity || k == KindRelation || k == KindExternalEntity
}

// State is the lifecycle state of a resource.
type State int

const (
	// StateMaterialized means identity is fixed and relationships are mutable.
	StateMaterialized State = iota
	// StateFlushed means the resource has been serialized to quads.
	StateFlushed
)

// Ref is a reference to a resource by identity. Cross-links between stores
// never own the target.
type Ref struct {
	Key       string
	IRI       string
	Namespace string
	Label     string
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Key == ""
}

// Edge is a (relation, object) pair recorded on a subject entity.
type Edge struct {
	Relation Ref
	Object   Ref
	Graph    string
}

// Labeled is implemented by anything exposing an identity key and a
// comparable label.
type Labeled interface {
	Key() string
	Text() string
}

// Emitter is implemented by anything that serializes itself to quads.
type Emitter interface {
	Quads() []Quad
}

// Containable is implemented by resources that accept contains edges.
type Containable interface {
	AddContains(part Ref) bool
}

// Resource is a node of the knowledge graph.
//
// Identity fields (Kind, Source, Namespace, FormattedLabel, IRI, key) are
// fixed at construction; relationship fields may be attached afterwards
// through the Add*/Set* methods.
type Resource struct {
	Kind           Kind
	Source         string // origin of external resources, e.g. "spans"
	Label          string // raw label as first seen
	FormattedLabel string
	Namespace      string
	IRI            string

	// TypeIRI is the rdf:type target of instances.
	TypeIRI string

	// Schema-level fields.
	SuperIRI string // rdfs:subClassOf / rdfs:subPropertyOf target
	Domain   string
	Range    string

	// Relation-specific.
	Negated bool

	key      string
	state    State
	edges    []Edge
	edgeSeen map[string]struct{}
	contains []Ref
	partSeen map[string]struct{}
	negation Ref
	lowDim   Ref
	base     Ref
	extra    []Quad

	predicates *Predicates
}

// NewResource builds a resource and resolves its identity.
func NewResource(kind Kind, namespace, label string) (*Resource, error) {
	iri, key, err := Identity(kind, namespace, label)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Kind:           kind,
		Label:          NormalizeSpace(label),
		FormattedLabel: FormatLabel(kind, label),
		Namespace:      namespace,
		IRI:            iri,
		key:            key,
	}, nil
}

// NewClass builds a schema class. An empty superclass defaults to owl:Class.
func NewClass(namespace, label, superclass string) (*Resource, error) {
	r, err := NewResource(KindClass, namespace, label)
	if err != nil {
		return nil, err
	}
	if superclass == "" {
		superclass = OWLClass
	}
	r.TypeIRI = RDFSClass
	r.SuperIRI = superclass
	return r, nil
}

// NewProperty builds a schema property. An empty superproperty defaults to
// rdf:Property; domain and range are optional.
func NewProperty(namespace, label, superproperty, domain, rng string) (*Resource, error) {
	r, err := NewResource(KindProperty, namespace, label)
	if err != nil {
		return nil, err
	}
	if superproperty == "" {
		superproperty = RDFProperty
	}
	r.TypeIRI = RDFProperty
	r.SuperIRI = superproperty
	r.Domain = domain
	r.Range = rng
	return r, nil
}

// Key returns the identity hash of the resource.
func (r *Resource) Key() string {
	return r.key
}

// Text returns the formatted label.
func (r *Resource) Text() string {
	return r.FormattedLabel
}

// String returns the formatted label.
func (r *Resource) String() string {
	return r.FormattedLabel
}

// Ref returns a reference to the resource.
func (r *Resource) Ref() Ref {
	return Ref{Key: r.key, IRI: r.IRI, Namespace: r.Namespace, Label: r.FormattedLabel}
}

// State returns the lifecycle state.
func (r *Resource) State() State {
	return r.state
}

// AddObject records a (relation, object) edge. Duplicate edges are ignored.
// Returns true if the edge was new.
func (r *Resource) AddObject(relation, object Ref, graphIRI string) bool {
	id := relation.Key + ">" + object.Key + "@" + graphIRI
	if r.edgeSeen == nil {
		r.edgeSeen = make(map[string]struct{})
	}
	if _, ok := r.edgeSeen[id]; ok {
		return false
	}
	r.edgeSeen[id] = struct{}{}
	r.edges = append(r.edges, Edge{Relation: relation, Object: object, Graph: graphIRI})
	return true
}

// Edges returns the recorded (relation, object) edges in insertion order.
func (r *Resource) Edges() []Edge {
	return r.edges
}

// AddContains records that part is contained in r. Labels equal up to case
// are never linked. Returns true if the edge was new.
func (r *Resource) AddContains(part Ref) bool {
	if part.Key == r.key || strings.EqualFold(part.Label, r.FormattedLabel) {
		return false
	}
	if r.partSeen == nil {
		r.partSeen = make(map[string]struct{})
	}
	if _, ok := r.partSeen[part.Key]; ok {
		return false
	}
	r.partSeen[part.Key] = struct{}{}
	r.contains = append(r.contains, part)
	return true
}

// Contains returns the contained resources in insertion order.
func (r *Resource) Contains() []Ref {
	return r.contains
}

// SetNegation links a relation to its negated counterpart.
func (r *Resource) SetNegation(neg Ref) {
	r.negation = neg
}

// Negation returns the negated counterpart of a relation.
func (r *Resource) Negation() Ref {
	return r.negation
}

// SetLowDim links the instance to its low-dimension paraphrase.
func (r *Resource) SetLowDim(ld Ref) {
	r.lowDim = ld
}

// LowDim returns the low-dimension instance, if any.
func (r *Resource) LowDim() Ref {
	return r.lowDim
}

// SetBase links the instance to the same concept in the base namespace.
func (r *Resource) SetBase(base Ref) {
	r.base = base
}

// Base returns the base-namespace instance, if any.
func (r *Resource) Base() Ref {
	return r.base
}

// SetPredicates binds the schema predicates used when emitting links.
func (r *Resource) SetPredicates(p *Predicates) {
	r.predicates = p
}

// AddQuad attaches an arbitrary quad, typically contributed by an external source.
func (r *Resource) AddQuad(q Quad) {
	r.extra = append(r.extra, q)
}

// Describe renders a short human readable identity.
func (r *Resource) Describe() string {
	if r.Source != "" {
		return fmt.Sprintf("%s{%s} %q <%s>", r.Kind, r.Source, r.FormattedLabel, r.IRI)
	}
	return fmt.Sprintf("%s %q <%s>", r.Kind, r.FormattedLabel, r.IRI)
}
