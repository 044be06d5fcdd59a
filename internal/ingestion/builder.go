package ingestion

import (
	"fmt"

	"github.com/Benny93/relatio-go/internal/graph"
)

// MissingEndpointPolicy decides what happens to a triple with exactly one
// absent endpoint.
type MissingEndpointPolicy string

const (
	// FillSelfLoop replaces the absent endpoint with the present one.
	FillSelfLoop MissingEndpointPolicy = "fill"
	// DropTriple discards the triple. Present endpoints are still materialized.
	DropTriple MissingEndpointPolicy = "drop"
)

// Namespaces configures where instances are created.
type Namespaces struct {
	// Base holds the schema and the canonical instance of every concept.
	Base string
	// HighDim holds the primary representation of a row.
	HighDim string
	// LowDim holds the secondary representation of a row.
	LowDim string
}

// DefaultNamespaces places primary instances in the base namespace.
func DefaultNamespaces() Namespaces {
	return Namespaces{
		Base:    graph.NamespaceBase,
		HighDim: graph.NamespaceBase,
		LowDim:  graph.NamespaceLowDim,
	}
}

// BuildOptions configures a Builder.
type BuildOptions struct {
	Namespaces      Namespaces
	LinkBase        bool
	MissingEndpoint MissingEndpointPolicy
	// EdgeGraph is the named graph of (relation, object) edges. Defaults to the base namespace.
	EdgeGraph string
}

// DefaultBuildOptions returns the options used when none are given.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Namespaces:      DefaultNamespaces(),
		MissingEndpoint: FillSelfLoop,
	}
}

// BuildStats counts what a Builder did.
type BuildStats struct {
	Rows      int
	Triples   int
	SelfLoops int
	Dropped   int
	LowDim    int
}

// Triple is the set of instances created for one row representation.
// Absent labels leave the corresponding field nil.
type Triple struct {
	Subject  *graph.Resource
	Relation *graph.Resource
	Object   *graph.Resource
}

// Builder turns extracted rows into entity and relation instances.
//
// Entities and relations live in separate stores; each store may hold
// instances of several namespaces. A Builder is not safe for concurrent use.
type Builder struct {
	opts      BuildOptions
	instances *graph.Instances
	entities  *graph.Store
	relations *graph.Store
	stats     BuildStats
}

// NewBuilder creates a builder typed against schema.
func NewBuilder(schema *graph.Schema, opts BuildOptions) (*Builder, error) {
	if opts.Namespaces.Base == "" {
		opts.Namespaces.Base = schema.Namespace
	}
	if opts.Namespaces.HighDim == "" {
		return nil, fmt.Errorf("high-dimension instances: %w", graph.ErrNoNamespace)
	}
	if opts.MissingEndpoint == "" {
		opts.MissingEndpoint = FillSelfLoop
	}
	if opts.MissingEndpoint != FillSelfLoop && opts.MissingEndpoint != DropTriple {
		return nil, fmt.Errorf("unknown missing endpoint policy %q", opts.MissingEndpoint)
	}
	if opts.EdgeGraph == "" {
		opts.EdgeGraph = opts.Namespaces.Base
	}

	return &Builder{
		opts:      opts,
		instances: graph.NewInstances(schema),
		entities:  graph.NewStore(),
		relations: graph.NewStore(),
	}, nil
}

// Entities returns the entity store.
func (b *Builder) Entities() *graph.Store {
	return b.entities
}

// Relations returns the relation store.
func (b *Builder) Relations() *graph.Store {
	return b.relations
}

// Instances returns the instance factory the builder creates resources with.
func (b *Builder) Instances() *graph.Instances {
	return b.instances
}

// Options returns the effective options.
func (b *Builder) Options() BuildOptions {
	return b.opts
}

// Stats returns counters accumulated so far.
func (b *Builder) Stats() BuildStats {
	return b.stats
}

// AddRows adds every row, stopping at the first configuration error.
func (b *Builder) AddRows(rows []Row) error {
	for i, row := range rows {
		if err := b.Add(row); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

// Add builds the instances of one row and records its edge.
// When the row carries a low-dimension representation, each primary instance
// is linked to its low-dimension counterpart.
func (b *Builder) Add(row Row) error {
	b.stats.Rows++

	hd, err := b.addTriple(row, b.opts.Namespaces.HighDim)
	if err != nil {
		return err
	}
	if row.LowDim == nil {
		return nil
	}
	if b.opts.Namespaces.LowDim == "" {
		return fmt.Errorf("low-dimension instances: %w", graph.ErrNoNamespace)
	}

	ld, err := b.addTriple(*row.LowDim, b.opts.Namespaces.LowDim)
	if err != nil {
		return err
	}
	b.linkLowDim(hd.Subject, ld.Subject)
	b.linkLowDim(hd.Relation, ld.Relation)
	b.linkLowDim(hd.Object, ld.Object)
	return nil
}

func (b *Builder) linkLowDim(hd, ld *graph.Resource) {
	if hd == nil || ld == nil || hd == ld {
		return
	}
	if hd.LowDim().IsZero() {
		b.stats.LowDim++
	}
	hd.SetLowDim(ld.Ref())
}

func (b *Builder) addTriple(row Row, namespace string) (Triple, error) {
	var t Triple
	var err error

	if t.Subject, err = b.entity(namespace, row.Subject); err != nil {
		return t, fmt.Errorf("subject %q: %w", row.Subject, err)
	}
	if t.Relation, err = b.relation(namespace, row.Predicate, row.Negated); err != nil {
		return t, fmt.Errorf("predicate %q: %w", row.Predicate, err)
	}
	if t.Object, err = b.entity(namespace, row.Object); err != nil {
		return t, fmt.Errorf("object %q: %w", row.Object, err)
	}

	if t.Relation == nil {
		return t, nil
	}

	subject, object := t.Subject, t.Object
	switch {
	case subject == nil && object == nil:
		b.stats.Dropped++
		return t, nil
	case subject == nil || object == nil:
		if b.opts.MissingEndpoint == DropTriple {
			b.stats.Dropped++
			return t, nil
		}
		if subject == nil {
			subject = object
		} else {
			object = subject
		}
		b.stats.SelfLoops++
	}

	if subject.AddObject(t.Relation.Ref(), object.Ref(), b.opts.EdgeGraph) {
		b.stats.Triples++
	}
	return t, nil
}

func (b *Builder) entity(namespace, label string) (*graph.Resource, error) {
	e, err := b.instances.Entity(b.entities, namespace, label)
	if err != nil || e == nil {
		return e, err
	}
	if b.opts.LinkBase && namespace != b.opts.Namespaces.Base && e.Base().IsZero() {
		base, err := b.instances.Entity(b.entities, b.opts.Namespaces.Base, e.FormattedLabel)
		if err != nil {
			return nil, err
		}
		e.SetBase(base.Ref())
	}
	return e, nil
}

func (b *Builder) relation(namespace, label string, negated bool) (*graph.Resource, error) {
	r, err := b.instances.Relation(b.relations, namespace, label, negated)
	if err != nil || r == nil {
		return r, err
	}
	if b.opts.LinkBase && namespace != b.opts.Namespaces.Base && r.Base().IsZero() {
		base, err := b.instances.Relation(b.relations, b.opts.Namespaces.Base, r.FormattedLabel, false)
		if err != nil {
			return nil, err
		}
		r.SetBase(base.Ref())
	}
	return r, nil
}
