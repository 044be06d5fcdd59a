package export

import (
	"sort"

	"github.com/Benny93/relatio-go/internal/graph"
)

// Dataset is an ordered, duplicate-free collection of quads with a prefix
// table used when rendering.
type Dataset struct {
	quads    []graph.Quad
	seen     map[graph.Quad]struct{}
	prefixes map[string]string // prefix -> namespace IRI
}

// NewDataset creates an empty dataset bound to the default prefixes.
func NewDataset() *Dataset {
	return &Dataset{
		seen:     make(map[graph.Quad]struct{}),
		prefixes: defaultPrefixes(),
	}
}

// defaultPrefixes inverts graph.Prefixes.
func defaultPrefixes() map[string]string {
	prefixes := make(map[string]string, len(graph.Prefixes))
	for iri, prefix := range graph.Prefixes {
		prefixes[prefix] = iri
	}
	return prefixes
}

// Bind sets a namespace prefix.
func (d *Dataset) Bind(prefix, iri string) {
	d.prefixes[prefix] = iri
}

// Prefixes returns a copy of the prefix table.
func (d *Dataset) Prefixes() map[string]string {
	out := make(map[string]string, len(d.prefixes))
	for k, v := range d.prefixes {
		out[k] = v
	}
	return out
}

// Add appends quads not already present and returns how many were new.
func (d *Dataset) Add(quads ...graph.Quad) int {
	added := 0
	for _, q := range quads {
		if _, ok := d.seen[q]; ok {
			continue
		}
		d.seen[q] = struct{}{}
		d.quads = append(d.quads, q)
		added++
	}
	return added
}

// AddStores flushes each store in order into the dataset.
func (d *Dataset) AddStores(stores ...*graph.Store) int {
	added := 0
	for _, s := range stores {
		if s != nil {
			added += d.Add(s.Flush()...)
		}
	}
	return added
}

// Len returns the number of quads.
func (d *Dataset) Len() int {
	return len(d.quads)
}

// Quads returns the quads in insertion order.
func (d *Dataset) Quads() []graph.Quad {
	return d.quads
}

// Triples returns the quads with their graph dropped, deduplicated, in
// first-seen order.
func (d *Dataset) Triples() []graph.Quad {
	seen := make(map[graph.Quad]struct{}, len(d.quads))
	out := make([]graph.Quad, 0, len(d.quads))
	for _, q := range d.quads {
		t := q.Triple()
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Graphs returns the named graph IRIs in first-seen order. The default graph
// is reported as the empty string.
func (d *Dataset) Graphs() []string {
	seen := make(map[string]struct{})
	var graphs []string
	for _, q := range d.quads {
		if _, ok := seen[q.Graph]; ok {
			continue
		}
		seen[q.Graph] = struct{}{}
		graphs = append(graphs, q.Graph)
	}
	return graphs
}

// Subjects returns the distinct subject IRIs in first-seen order.
func (d *Dataset) Subjects() []string {
	seen := make(map[string]struct{})
	var subjects []string
	for _, q := range d.quads {
		if _, ok := seen[q.Subject]; ok {
			continue
		}
		seen[q.Subject] = struct{}{}
		subjects = append(subjects, q.Subject)
	}
	return subjects
}

// Isomorphic reports whether both datasets hold the same set of triples,
// ignoring graphs and ordering.
func Isomorphic(a, b *Dataset) bool {
	ta, tb := sortedTriples(a), sortedTriples(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

func sortedTriples(d *Dataset) []string {
	triples := d.Triples()
	out := make([]string, len(triples))
	for i, t := range triples {
		out[i] = t.String()
	}
	sort.Strings(out)
	return out
}
