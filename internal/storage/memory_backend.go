package storage

import (
	"context"
	"sync"

	"github.com/Benny93/relatio-go/internal/graph"
)

// MemoryBackend is an in-memory storage backend for testing.
type MemoryBackend struct {
	mu          sync.RWMutex
	initialized bool
	records     map[string]*Record
	byIRI       map[string]string
	byLabel     map[string][]string
	out         map[string][]graph.Quad
	in          map[string][]graph.Quad
	quadCount   int
	byKind      map[string]int
	ftsIndex    tokenIndex
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{}
	m.reset()
	return m
}

func (m *MemoryBackend) reset() {
	m.records = make(map[string]*Record)
	m.byIRI = make(map[string]string)
	m.byLabel = make(map[string][]string)
	m.out = make(map[string][]graph.Quad)
	m.in = make(map[string][]graph.Quad)
	m.quadCount = 0
	m.byKind = make(map[string]int)
	m.ftsIndex = make(tokenIndex)
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// BulkLoad implements StorageBackend.
func (m *MemoryBackend) BulkLoad(ctx context.Context, store *graph.Store, quads []graph.Quad) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	for _, r := range store.Values() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := NewRecord(r)
		m.records[rec.Key] = rec
		m.byIRI[rec.IRI] = rec.Key
		label := normalizeLabel(rec.Label)
		m.byLabel[label] = append(m.byLabel[label], rec.Key)
		countByKind(m.byKind, rec.Kind)
		m.ftsIndex.add(rec)
	}
	for _, q := range quads {
		m.out[q.Subject] = append(m.out[q.Subject], q)
		if !q.Object.Literal {
			m.in[q.Object.Value] = append(m.in[q.Object.Value], q)
		}
	}
	m.quadCount = len(quads)
	return nil
}

// GetResource implements StorageBackend.
func (m *MemoryBackend) GetResource(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[key], nil
}

// GetResourceByIRI implements StorageBackend.
func (m *MemoryBackend) GetResourceByIRI(ctx context.Context, iri string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byIRI[iri]
	if !ok {
		return nil, nil
	}
	return m.records[key], nil
}

// FindByLabel implements StorageBackend.
func (m *MemoryBackend) FindByLabel(ctx context.Context, label string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*Record
	for _, key := range m.byLabel[normalizeLabel(label)] {
		records = append(records, m.records[key])
	}
	return records, nil
}

// Search implements StorageBackend.
func (m *MemoryBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ftsIndex.rank(query, limit, func(key string) *Record {
		return m.records[key]
	}), nil
}

// QuadsFrom implements StorageBackend.
func (m *MemoryBackend) QuadsFrom(ctx context.Context, iri string) ([]graph.Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]graph.Quad(nil), m.out[iri]...), nil
}

// QuadsTo implements StorageBackend.
func (m *MemoryBackend) QuadsTo(ctx context.Context, iri string) ([]graph.Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]graph.Quad(nil), m.in[iri]...), nil
}

// Stats implements StorageBackend.
func (m *MemoryBackend) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKind := make(map[string]int, len(m.byKind))
	for k, v := range m.byKind {
		byKind[k] = v
	}
	return Stats{Resources: len(m.records), Quads: m.quadCount, ByKind: byKind}, nil
}

// IsInitialized reports whether Initialize has been called.
func (m *MemoryBackend) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}
