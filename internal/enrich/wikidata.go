package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/logging"
)

// SourceWikidata is the name of the Wikidata source.
const SourceWikidata = "wikidata"

// ErrRateLimited is returned when Wikidata keeps answering 429.
var ErrRateLimited = errors.New("rate limited")

// WikidataOptions configures the Wikidata client.
type WikidataOptions struct {
	BaseURL     string
	Language    string
	Timeout     time.Duration
	Concurrency int
	MaxRetries  int
	// InitialBackoff is the first wait after a 429. Defaults to 500ms.
	InitialBackoff time.Duration
	HTTPClient     *http.Client
}

// DefaultWikidataOptions returns the public endpoint settings.
func DefaultWikidataOptions() WikidataOptions {
	return WikidataOptions{
		BaseURL:     "https://www.wikidata.org/w/api.php",
		Language:    "en",
		Timeout:     10 * time.Second,
		Concurrency: 5,
		MaxRetries:  3,
	}
}

// WikidataHit is one wbsearchentities match.
type WikidataHit struct {
	ID          string `json:"id"`
	ConceptURI  string `json:"concepturi"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type searchResponse struct {
	Search []WikidataHit `json:"search"`
	Error  *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
}

// WikidataEnricher links base entities to their best Wikidata match.
type WikidataEnricher struct {
	schema    *graph.Schema
	instances *graph.Instances
	opts      WikidataOptions
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewWikidataEnricher creates the Wikidata source. Zero option fields take
// their default values.
func NewWikidataEnricher(schema *graph.Schema, opts WikidataOptions, logger *zap.Logger) *WikidataEnricher {
	def := DefaultWikidataOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger = logging.OrNop(logger)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "wikidata",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.8
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &WikidataEnricher{
		schema:    schema,
		instances: graph.NewInstances(schema),
		opts:      opts,
		client:    client,
		breaker:   breaker,
		logger:    logger,
	}
}

// Name implements Enricher.
func (w *WikidataEnricher) Name() string {
	return SourceWikidata
}

// Enrich implements Enricher. Lookups that fail are skipped; only context
// cancellation is reported as an error.
func (w *WikidataEnricher) Enrich(ctx context.Context, in *graph.Store) (*graph.Store, error) {
	var entities []*graph.Resource
	for _, e := range in.ByKind(graph.KindEntity) {
		if e.Namespace == w.schema.Namespace {
			entities = append(entities, e)
		}
	}

	hits := make([]*WikidataHit, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i, e := range entities {
		g.Go(func() error {
			hit, err := w.Lookup(gctx, e.FormattedLabel)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				w.logger.Debug("wikidata lookup failed",
					zap.String("label", e.FormattedLabel),
					zap.Error(err),
				)
				return nil
			}
			hits[i] = hit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wikidata lookups: %w", err)
	}

	out := graph.NewStore()
	class, err := w.schema.RegisterClass(graph.NamespaceWikidata, "Entity", w.schema.Entity.IRI)
	if err != nil {
		return nil, fmt.Errorf("declaring wikidata class: %w", err)
	}
	out.GetOrAdd(class)

	for i, hit := range hits {
		if hit == nil {
			continue
		}
		label := hit.Label
		if label == "" {
			label = entities[i].FormattedLabel
		}
		wd, err := w.instances.External(nil, out, SourceWikidata, graph.NamespaceWikidata, label, class.IRI)
		if err != nil {
			return nil, fmt.Errorf("wikidata entity %q: %w", label, err)
		}
		if wd == nil {
			continue
		}
		wd.AddQuad(graph.NewQuad(wd.IRI, graph.OWLSameAs, hit.ConceptURI, graph.NamespaceWikidata))
		if hit.Description != "" {
			wd.AddQuad(graph.Quad{
				Subject:   wd.IRI,
				Predicate: graph.SKOSDefinition,
				Object:    graph.Literal(hit.Description),
				Graph:     graph.NamespaceWikidata,
			})
		}
		wd.AddQuad(graph.NewQuad(entities[i].IRI, graph.OWLSameAs, wd.IRI, w.schema.Namespace))
	}
	return out, nil
}

// Lookup returns the best match for label, or nil when there is none.
func (w *WikidataEnricher) Lookup(ctx context.Context, label string) (*WikidataHit, error) {
	res, err := w.breaker.Execute(func() (interface{}, error) {
		return w.searchWithRetry(ctx, label)
	})
	if err != nil {
		return nil, err
	}
	return res.(*WikidataHit), nil
}

func (w *WikidataEnricher) searchWithRetry(ctx context.Context, label string) (*WikidataHit, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.InitialBackoff
	b.MaxElapsedTime = 0

	var hit *WikidataHit
	op := func() error {
		h, err := w.search(ctx, label)
		if err != nil {
			var rl *rateLimitError
			if errors.As(err, &rl) {
				if rl.retryAfter > 0 {
					select {
					case <-time.After(rl.retryAfter):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
				}
				return err
			}
			return backoff.Permanent(err)
		}
		hit = h
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.opts.MaxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return hit, nil
}

type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *rateLimitError) Unwrap() error {
	return ErrRateLimited
}

func (w *WikidataEnricher) search(ctx context.Context, label string) (*WikidataHit, error) {
	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", label)
	q.Set("language", w.opts.Language)
	q.Set("type", "item")
	q.Set("limit", "1")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "relatio-go (knowledge graph builder)")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %q: %w", label, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("searching %q: unexpected status %d", label, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response for %q: %w", label, err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("searching %q: %s: %s", label, body.Error.Code, body.Error.Info)
	}
	for _, hit := range body.Search {
		if hit.ConceptURI == "" && hit.ID != "" {
			hit.ConceptURI = graph.WikidataEntity + hit.ID
		}
		if hit.ConceptURI != "" {
			return &hit, nil
		}
	}
	return nil, nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
