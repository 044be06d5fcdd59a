package graph

import "fmt"

// Predicates holds the IRIs of the schema properties used to link instances.
type Predicates struct {
	Relation  string
	Contains  string
	HasLowDim string
	IsNegOf   string
}

// DefaultPredicates are the predicates of the schema declared in NamespaceBase.
var DefaultPredicates = func() Predicates {
	s, err := NewSchema(NamespaceBase)
	if err != nil {
		panic(err)
	}
	return s.Predicates()
}()

// Schema is the registry of schema-level classes and properties.
//
// A Schema is an explicit value handed to the builder and the assembler;
// nothing is registered process-wide.
type Schema struct {
	Namespace string

	Entity    *Resource
	Relation  *Resource
	Contains  *Resource
	HasLowDim *Resource
	IsNegOf   *Resource

	store *Store
}

// NewSchema declares the core classes and properties in the given namespace.
func NewSchema(namespace string) (*Schema, error) {
	if namespace == "" {
		return nil, fmt.Errorf("schema: %w", ErrNoNamespace)
	}

	entity, err := NewClass(namespace, "Entity", "")
	if err != nil {
		return nil, err
	}
	relation, err := NewProperty(namespace, "relation", "", entity.IRI, entity.IRI)
	if err != nil {
		return nil, err
	}
	contains, err := NewProperty(namespace, "contains", "", entity.IRI, entity.IRI)
	if err != nil {
		return nil, err
	}
	hasLowDim, err := NewProperty(namespace, "hasLowDim", "", entity.IRI, entity.IRI)
	if err != nil {
		return nil, err
	}
	isNegOf, err := NewProperty(namespace, "isNegOf", OWLInverseOf, relation.IRI, relation.IRI)
	if err != nil {
		return nil, err
	}

	return &Schema{
		Namespace: namespace,
		Entity:    entity,
		Relation:  relation,
		Contains:  contains,
		HasLowDim: hasLowDim,
		IsNegOf:   isNegOf,
		store:     NewStore(entity, relation, contains, hasLowDim, isNegOf),
	}, nil
}

// Predicates returns the IRIs of the linking properties.
func (s *Schema) Predicates() Predicates {
	return Predicates{
		Relation:  s.Relation.IRI,
		Contains:  s.Contains.IRI,
		HasLowDim: s.HasLowDim.IRI,
		IsNegOf:   s.IsNegOf.IRI,
	}
}

// RegisterClass declares an additional class, returning the existing one if
// it was already declared.
func (s *Schema) RegisterClass(namespace, label, superclass string) (*Resource, error) {
	c, err := NewClass(namespace, label, superclass)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrAdd(c), nil
}

// RegisterProperty declares an additional property, returning the existing
// one if it was already declared.
func (s *Schema) RegisterProperty(namespace, label, superproperty, domain, rng string) (*Resource, error) {
	p, err := NewProperty(namespace, label, superproperty, domain, rng)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrAdd(p), nil
}

// Store returns the store holding every declared schema resource.
func (s *Schema) Store() *Store {
	return s.store
}
