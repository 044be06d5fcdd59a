// Package storage provides the persistent index of a built knowledge graph.
//
// It defines the StorageBackend protocol that all storage implementations
// must satisfy, along with the record types shared across backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Benny93/relatio-go/internal/graph"
)

// ErrReadOnly is returned by write operations on a backend opened read-only.
var ErrReadOnly = errors.New("storage opened read-only")

// ErrNotInitialized is returned when a backend is used before Initialize.
var ErrNotInitialized = errors.New("storage not initialized")

// RecordRef points at another resource.
type RecordRef struct {
	IRI   string `json:"iri"`
	Label string `json:"label"`
}

// RecordEdge is one (relation, object) pair of an entity.
type RecordEdge struct {
	Relation RecordRef `json:"relation"`
	Object   RecordRef `json:"object"`
}

// Record is the persisted form of a resource.
type Record struct {
	Key       string       `json:"key"`
	IRI       string       `json:"iri"`
	Kind      graph.Kind   `json:"kind"`
	Source    string       `json:"source,omitempty"`
	Label     string       `json:"label"`
	Namespace string       `json:"namespace"`
	TypeIRI   string       `json:"type,omitempty"`
	Negated   bool         `json:"negated,omitempty"`
	Negation  *RecordRef   `json:"negation,omitempty"`
	LowDim    *RecordRef   `json:"low_dim,omitempty"`
	Base      *RecordRef   `json:"base,omitempty"`
	Contains  []RecordRef  `json:"contains,omitempty"`
	Edges     []RecordEdge `json:"edges,omitempty"`
}

// NewRecord captures the identity and links of r.
func NewRecord(r *graph.Resource) *Record {
	rec := &Record{
		Key:       r.Key(),
		IRI:       r.IRI,
		Kind:      r.Kind,
		Source:    r.Source,
		Label:     r.FormattedLabel,
		Namespace: r.Namespace,
		TypeIRI:   r.TypeIRI,
		Negated:   r.Negated,
		Negation:  optionalRef(r.Negation()),
		LowDim:    optionalRef(r.LowDim()),
		Base:      optionalRef(r.Base()),
	}
	for _, part := range r.Contains() {
		rec.Contains = append(rec.Contains, toRecordRef(part))
	}
	for _, e := range r.Edges() {
		rec.Edges = append(rec.Edges, RecordEdge{
			Relation: toRecordRef(e.Relation),
			Object:   toRecordRef(e.Object),
		})
	}
	return rec
}

func toRecordRef(ref graph.Ref) RecordRef {
	return RecordRef{IRI: ref.IRI, Label: ref.Label}
}

func optionalRef(ref graph.Ref) *RecordRef {
	if ref.IsZero() {
		return nil
	}
	rr := toRecordRef(ref)
	return &rr
}

// SearchResult represents a search result from the storage backend.
type SearchResult struct {
	// Key is the identity hash of the matching resource.
	Key string

	// Score is the relevance score (higher is better).
	Score float64

	IRI       string
	Label     string
	Kind      graph.Kind
	Namespace string
}

// Stats summarizes the contents of a backend.
type Stats struct {
	Resources int            `json:"resources"`
	Quads     int            `json:"quads"`
	ByKind    map[string]int `json:"by_kind"`
}

// StorageBackend defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Initialize opens or creates the storage backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// BulkLoad replaces the entire store with the resources of store and
	// the serialized quads of the graph.
	BulkLoad(ctx context.Context, store *graph.Store, quads []graph.Quad) error

	// GetResource returns the record with the given key, or nil.
	GetResource(ctx context.Context, key string) (*Record, error)

	// GetResourceByIRI returns the record with the given IRI, or nil.
	GetResourceByIRI(ctx context.Context, iri string) (*Record, error)

	// FindByLabel returns every record whose label equals label,
	// ignoring case.
	FindByLabel(ctx context.Context, label string) ([]*Record, error)

	// Search ranks records by the number of query tokens in their label.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// QuadsFrom returns the quads whose subject is iri.
	QuadsFrom(ctx context.Context, iri string) ([]graph.Quad, error)

	// QuadsTo returns the quads whose IRI object is iri.
	QuadsTo(ctx context.Context, iri string) ([]graph.Quad, error)

	// Stats returns the record and quad counts.
	Stats(ctx context.Context) (Stats, error)
}

// tokenizeForFTS splits text into searchable tokens.
func tokenizeForFTS(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) < 2 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
	}
	return result
}

// tokenIndex maps label tokens to record keys.
type tokenIndex map[string][]string

func (idx tokenIndex) add(rec *Record) {
	for _, token := range tokenizeForFTS(rec.Label) {
		idx[token] = append(idx[token], rec.Key)
	}
}

// rank scores the keys matching query. An exact label match scores one
// point above the token count.
func (idx tokenIndex) rank(query string, limit int, lookup func(key string) *Record) []SearchResult {
	queryTokens := tokenizeForFTS(query)
	if len(queryTokens) == 0 || limit <= 0 {
		return []SearchResult{}
	}

	scores := make(map[string]int)
	for _, token := range queryTokens {
		for _, key := range idx[token] {
			scores[key]++
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for key, score := range scores {
		rec := lookup(key)
		if rec == nil {
			continue
		}
		if strings.EqualFold(rec.Label, strings.TrimSpace(query)) {
			score++
		}
		results = append(results, SearchResult{
			Key:       key,
			Score:     float64(score),
			IRI:       rec.IRI,
			Label:     rec.Label,
			Kind:      rec.Kind,
			Namespace: rec.Namespace,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Label != results[j].Label {
			return results[i].Label < results[j].Label
		}
		return results[i].Key < results[j].Key
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func countByKind(byKind map[string]int, kind graph.Kind) {
	byKind[string(kind)]++
}
