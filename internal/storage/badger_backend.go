package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/relatio-go/internal/graph"
)

// Key prefixes for different data types
const (
	prefixResource = "r:"   // key -> record
	prefixIRI      = "iri:" // iri -> key
	prefixLabel    = "l:"   // lower(label) \x00 key -> empty
	prefixOut      = "q:o:" // subject \x00 seq -> quad
	prefixIn       = "q:i:" // object \x00 seq -> quad
)

const keySep = "\x00"

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db            *badger.DB
	initialized   bool
	readOnly      bool
	mu            sync.RWMutex
	resourceCount int
	quadCount     int
	byKind        map[string]int
	ftsIndex      tokenIndex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	b.readOnly = readOnly

	if err := b.rebuildIndexFromDB(); err != nil {
		return fmt.Errorf("rebuilding search index: %w", err)
	}
	return nil
}

// rebuildIndexFromDB rebuilds the token index and counts from the database.
func (b *BadgerBackend) rebuildIndexFromDB() error {
	b.resetIndex()

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixResource)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			b.indexRecord(&rec)
		}
		it.Close()

		keysOnly := badger.DefaultIteratorOptions
		keysOnly.Prefix = []byte(prefixOut)
		keysOnly.PrefetchValues = false
		it = txn.NewIterator(keysOnly)
		for it.Rewind(); it.Valid(); it.Next() {
			b.quadCount++
		}
		it.Close()
		return nil
	})
}

func (b *BadgerBackend) resetIndex() {
	b.resourceCount = 0
	b.quadCount = 0
	b.byKind = make(map[string]int)
	b.ftsIndex = make(tokenIndex)
}

func (b *BadgerBackend) indexRecord(rec *Record) {
	b.resourceCount++
	countByKind(b.byKind, rec.Kind)
	b.ftsIndex.add(rec)
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// BulkLoad replaces the entire store with the given resources and quads.
func (b *BadgerBackend) BulkLoad(ctx context.Context, store *graph.Store, quads []graph.Quad) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}
	if b.readOnly {
		return ErrReadOnly
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	b.resetIndex()

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range store.Values() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := NewRecord(r)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		if err := wb.Set(resourceKey(rec.Key), data); err != nil {
			return fmt.Errorf("setting record: %w", err)
		}
		if err := wb.Set(iriKey(rec.IRI), []byte(rec.Key)); err != nil {
			return fmt.Errorf("setting iri index: %w", err)
		}
		if err := wb.Set(labelKey(rec.Label, rec.Key), nil); err != nil {
			return fmt.Errorf("setting label index: %w", err)
		}
		b.indexRecord(rec)
	}

	for i, q := range quads {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshaling quad: %w", err)
		}
		if err := wb.Set(quadKey(prefixOut, q.Subject, i), data); err != nil {
			return fmt.Errorf("setting quad: %w", err)
		}
		if !q.Object.Literal {
			if err := wb.Set(quadKey(prefixIn, q.Object.Value, i), data); err != nil {
				return fmt.Errorf("setting incoming quad: %w", err)
			}
		}
		b.quadCount++
	}

	return wb.Flush()
}

// GetResource retrieves a record by key.
func (b *BadgerBackend) GetResource(ctx context.Context, key string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}
	return b.getResource(key)
}

func (b *BadgerBackend) getResource(key string) (*Record, error) {
	var rec *Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &Record{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", key, err)
	}
	return rec, nil
}

// GetResourceByIRI retrieves a record through the IRI index.
func (b *BadgerBackend) GetResourceByIRI(ctx context.Context, iri string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	var key string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(iriKey(iri))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		key = string(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading iri index: %w", err)
	}
	if key == "" {
		return nil, nil
	}
	return b.getResource(key)
}

// FindByLabel returns the records whose label matches, ignoring case.
func (b *BadgerBackend) FindByLabel(ctx context.Context, label string) ([]*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	prefix := []byte(prefixLabel + normalizeLabel(label) + keySep)
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning label index: %w", err)
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		rec, err := b.getResource(key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Search ranks records by label token matches.
func (b *BadgerBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.ftsIndex == nil {
		return []SearchResult{}, nil
	}
	return b.ftsIndex.rank(query, limit, func(key string) *Record {
		rec, err := b.getResource(key)
		if err != nil {
			return nil
		}
		return rec
	}), nil
}

// QuadsFrom returns the quads with the given subject.
func (b *BadgerBackend) QuadsFrom(ctx context.Context, iri string) ([]graph.Quad, error) {
	return b.scanQuads(prefixOut, iri)
}

// QuadsTo returns the quads with the given IRI object.
func (b *BadgerBackend) QuadsTo(ctx context.Context, iri string) ([]graph.Quad, error) {
	return b.scanQuads(prefixIn, iri)
}

func (b *BadgerBackend) scanQuads(prefix, iri string) ([]graph.Quad, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	var quads []graph.Quad
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix + iri + keySep)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var q graph.Quad
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &q)
			}); err != nil {
				return err
			}
			quads = append(quads, q)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning quads of %s: %w", iri, err)
	}
	return quads, nil
}

// Stats returns the record and quad counts.
func (b *BadgerBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return Stats{}, ErrNotInitialized
	}
	byKind := make(map[string]int, len(b.byKind))
	for k, v := range b.byKind {
		byKind[k] = v
	}
	return Stats{Resources: b.resourceCount, Quads: b.quadCount, ByKind: byKind}, nil
}

// Helper methods for key generation

func resourceKey(key string) []byte {
	return []byte(prefixResource + key)
}

func iriKey(iri string) []byte {
	return []byte(prefixIRI + iri)
}

func labelKey(label, key string) []byte {
	return []byte(prefixLabel + normalizeLabel(label) + keySep + key)
}

func quadKey(prefix, iri string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s%s%08x", prefix, iri, keySep, seq))
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
