package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/relatio-go/internal/graph"
)

// Family selects the resources a containment pass compares with each other.
type Family struct {
	Kind      graph.Kind
	Namespace string
}

// String returns a short name used in logs and metrics.
func (f Family) String() string {
	if prefix, ok := graph.Prefixes[f.Namespace]; ok && prefix != "" {
		return prefix + ":" + string(f.Kind)
	}
	return string(f.Kind)
}

// Families returns the distinct (kind, namespace) pairs of entities and
// relations in store, in insertion order.
func Families(store *graph.Store) []Family {
	seen := make(map[Family]struct{})
	var families []Family
	for _, ref := range store.Snapshot() {
		if ref.Kind != graph.KindEntity && ref.Kind != graph.KindRelation {
			continue
		}
		f := Family{Kind: ref.Kind, Namespace: ref.Namespace}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		families = append(families, f)
	}
	return families
}

// ContainmentLinker discovers labels contained in other labels of the same
// family and records contains edges from the longer to the shorter.
//
// Comparison runs over a read-only snapshot split across workers. Each worker
// writes only its own result slots; edges are applied to the store afterwards
// in snapshot order.
type ContainmentLinker struct {
	workers int
}

// NewContainmentLinker creates a linker using at most workers goroutines.
// A non-positive value uses one worker per CPU.
func NewContainmentLinker(workers int) *ContainmentLinker {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ContainmentLinker{workers: workers}
}

// Link adds contains edges among the resources of family in store and
// returns the number of edges added.
func (l *ContainmentLinker) Link(ctx context.Context, store *graph.Store, family Family) (int, error) {
	var snap []graph.LabelRef
	for _, ref := range store.Snapshot() {
		if ref.Kind == family.Kind && ref.Namespace == family.Namespace {
			snap = append(snap, ref)
		}
	}

	parts, err := l.candidates(ctx, snap, family.Kind == graph.KindRelation)
	if err != nil {
		return 0, fmt.Errorf("linking %s: %w", family, err)
	}

	added := 0
	for i, found := range parts {
		whole := store.Get(snap[i].Key)
		for _, j := range found {
			part := store.Get(snap[j].Key)
			if whole == nil || part == nil {
				continue
			}
			if whole.AddContains(part.Ref()) {
				added++
			}
		}
	}
	return added, nil
}

// candidates returns, for each snapshot entry, the indexes of the entries it contains.
func (l *ContainmentLinker) candidates(ctx context.Context, snap []graph.LabelRef, relations bool) ([][]int, error) {
	n := len(snap)
	if n < 2 {
		return make([][]int, n), nil
	}

	labels := make([]string, n)
	patterns := make([]*regexp.Regexp, n)
	for i, ref := range snap {
		labels[i] = strings.ToLower(ref.Label)
		p, err := regexp.Compile(`\b` + regexp.QuoteMeta(labels[i]) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern for %q: %w", ref.Label, err)
		}
		patterns[i] = p
	}

	results := make([][]int, n)
	chunk := (n + l.workers - 1) / l.workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = containedIn(i, labels, patterns, relations)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// containedIn returns the indexes j whose label is a strictly shorter,
// word-bounded substring of labels[i].
func containedIn(i int, labels []string, patterns []*regexp.Regexp, relations bool) []int {
	whole := labels[i]
	var found []int
	for j, part := range labels {
		if j == i || len(part) >= len(whole) || !strings.Contains(whole, part) {
			continue
		}
		if relations && IsNegationPair(whole, part) {
			continue
		}
		if !patterns[j].MatchString(whole) {
			continue
		}
		found = append(found, j)
	}
	return found
}

// IsNegationPair reports whether one relation label is the explicit negation
// of the other.
func IsNegationPair(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == "not "+b || b == "not "+a
}
