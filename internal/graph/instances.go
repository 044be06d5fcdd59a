package graph

import (
	"errors"
	"strings"
)

// Instances creates typed instances through a Store so that each concept is
// materialized exactly once.
type Instances struct {
	schema     *Schema
	predicates Predicates
}

// NewInstances returns an instance factory bound to a schema.
func NewInstances(schema *Schema) *Instances {
	return &Instances{schema: schema, predicates: schema.Predicates()}
}

// Schema returns the schema instances are typed against.
func (f *Instances) Schema() *Schema {
	return f.schema
}

// Entity returns the entity for label in namespace, creating it on first use.
// An absent label yields a nil resource and no error.
func (f *Instances) Entity(store *Store, namespace, label string) (*Resource, error) {
	return f.instance(store, KindEntity, namespace, label, f.schema.Entity.IRI)
}

// Relation returns the relation for label, canonicalized to its negative
// form when negated. Constructing either form also constructs the other and
// links the two; an absent label yields a nil resource and no error.
func (f *Instances) Relation(store *Store, namespace, label string, negated bool) (*Resource, error) {
	label = NormalizeSpace(label)
	if label == "" {
		return nil, nil
	}
	if negated && !IsNegatedLabel(label) {
		label = NegateLabel(label)
	}

	rel, err := f.instance(store, KindRelation, namespace, label, f.schema.Relation.IRI)
	if err != nil || rel == nil {
		return rel, err
	}
	if !rel.Negation().IsZero() {
		return rel, nil
	}

	counterpart, err := f.instance(store, KindRelation, namespace, NegateLabel(label), f.schema.Relation.IRI)
	if err != nil {
		return nil, err
	}
	rel.Negated = IsNegatedLabel(rel.FormattedLabel)
	counterpart.Negated = !rel.Negated
	rel.SetNegation(counterpart.Ref())
	counterpart.SetNegation(rel.Ref())
	return rel, nil
}

// External returns an entity contributed by an external source. When a base
// entity with the same label already exists in known, that entity is
// returned instead and nothing is added to store.
func (f *Instances) External(known, store *Store, source, namespace, label, typeIRI string) (*Resource, error) {
	if known != nil {
		_, key, err := Identity(KindEntity, f.schema.Namespace, label)
		if err != nil {
			return nil, ignoreEmpty(err)
		}
		if r := known.Get(key); r != nil {
			return r, nil
		}
		if r := findEntity(known, label); r != nil {
			return r, nil
		}
	}
	r, err := f.instance(store, KindExternalEntity, namespace, label, typeIRI)
	if err != nil || r == nil {
		return r, err
	}
	if r.Source == "" {
		r.Source = source
	}
	return r, nil
}

func (f *Instances) instance(store *Store, kind Kind, namespace, label, typeIRI string) (*Resource, error) {
	iri, key, err := Identity(kind, namespace, label)
	if err != nil {
		return nil, ignoreEmpty(err)
	}
	r, _, err := store.GetOrCreate(key, func() (*Resource, error) {
		return &Resource{
			Kind:           kind,
			Label:          NormalizeSpace(label),
			FormattedLabel: FormatLabel(kind, label),
			Namespace:      namespace,
			IRI:            iri,
			TypeIRI:        typeIRI,
			key:            key,
			predicates:     &f.predicates,
		}, nil
	})
	return r, err
}

// findEntity looks up an entity of any namespace by formatted label.
func findEntity(store *Store, label string) *Resource {
	formatted := FormatLabel(KindEntity, label)
	for _, r := range store.ByKind(KindEntity) {
		if strings.EqualFold(r.FormattedLabel, formatted) {
			return r
		}
	}
	return nil
}

func ignoreEmpty(err error) error {
	if errors.Is(err, ErrEmptyLabel) {
		return nil
	}
	return err
}
