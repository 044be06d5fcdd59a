// Package cmd provides CLI command implementations for relatio.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Benny93/relatio-go/internal/config"
	"github.com/Benny93/relatio-go/internal/enrich"
	"github.com/Benny93/relatio-go/internal/export"
	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/ingestion"
	"github.com/Benny93/relatio-go/internal/logging"
	"github.com/Benny93/relatio-go/internal/storage"
	"github.com/Benny93/relatio-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	indexDirName = ".relatio"
	metaFileName = "meta.json"
)

// Globals are the flags shared by every command.
type Globals struct {
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Config  string `short:"c" default:"relatio.yaml" help:"Configuration file"`
	Dir     string `default:"." help:"Directory holding the .relatio index"`
}

// loadConfig reads the configuration file. The default file may be absent.
func (g *Globals) loadConfig() (*config.Config, error) {
	path := g.Config
	optional := path == config.DefaultFile
	if path != "" && !filepath.IsAbs(path) && optional {
		path = filepath.Join(g.Dir, path)
	}
	return config.Load(path, optional)
}

func (g *Globals) logger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	switch {
	case g.Verbose:
		level = "debug"
	case g.Quiet:
		level = "error"
	}
	return logging.New(level, cfg.Log.Development)
}

func (g *Globals) indexDir() string {
	return filepath.Join(g.Dir, indexDirName)
}

// indexMeta is written to .relatio/meta.json after every build.
type indexMeta struct {
	RunID     string                    `json:"run_id"`
	Version   string                    `json:"version"`
	Inputs    []string                  `json:"inputs"`
	Output    string                    `json:"output,omitempty"`
	Stats     *ingestion.PipelineResult `json:"stats"`
	IndexedAt string                    `json:"indexed_at"`
}

// BuildCmd builds a knowledge graph from extracted triples.
type BuildCmd struct {
	Inputs          []string `arg:"" help:"CSV or JSONL files of extracted triples"`
	Output          string   `short:"o" help:"Output file, format taken from its extension"`
	Format          string   `short:"f" help:"Output format override (turtle, trig, ntriples, nquads, jsonld)"`
	Enrich          []string `help:"Enrichment sources to run (spans, wikidata)"`
	NoEnrich        bool     `help:"Skip enrichment"`
	LinkBase        bool     `help:"Link low-dimension instances to base instances"`
	MissingEndpoint string   `help:"Policy for triples with one absent endpoint (fill, drop)"`
	Workers         int      `short:"w" help:"Containment workers (0 = one per CPU)"`
	NoIndex         bool     `help:"Skip writing the .relatio index"`
}

// apply layers the command flags over cfg.
func (c *BuildCmd) apply(cfg *config.Config) error {
	if c.Output != "" {
		cfg.Output = c.Output
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if len(c.Enrich) > 0 {
		cfg.Enrichment.Enabled = true
		cfg.Enrichment.Sources = c.Enrich
	}
	if c.NoEnrich {
		cfg.Enrichment.Enabled = false
	}
	if c.LinkBase {
		cfg.LinkBase = true
	}
	if c.MissingEndpoint != "" {
		cfg.MissingEndpoint = c.MissingEndpoint
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	return cfg.Validate()
}

// Run executes the build command.
func (c *BuildCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if !g.Quiet {
		color.Green("Building graph from %d input(s)", len(c.Inputs))
	}

	b := &graphBuilder{globals: g, cfg: cfg, logger: logger, noIndex: c.NoIndex}
	result, err := b.build(ctx, c.Inputs)
	if err != nil {
		return err
	}

	if !g.Quiet {
		color.Green("\n✓ Build complete")
		printResult(result)
		fmt.Printf("  Output:         %s\n", cfg.Output)
	}
	return nil
}

// graphBuilder runs the pipeline for the build and watch commands.
type graphBuilder struct {
	globals *Globals
	cfg     *config.Config
	logger  *zap.Logger
	metrics *ingestion.Metrics
	noIndex bool
	// backend is reused when set; otherwise the index is opened per build.
	backend storage.StorageBackend
}

func (b *graphBuilder) build(ctx context.Context, inputs []string) (*ingestion.PipelineResult, error) {
	var rows []ingestion.Row
	for _, in := range inputs {
		r, err := ingestion.LoadRows(in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}

	opts, err := pipelineOptions(b.cfg, b.logger)
	if err != nil {
		return nil, err
	}
	opts.Metrics = b.metrics

	indexDir := b.globals.indexDir()
	if !b.noIndex {
		if err := os.MkdirAll(indexDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", indexDirName, err)
		}
		opts.Backend = b.backend
		if opts.Backend == nil {
			store := storage.NewBadgerBackend()
			if err := store.Initialize(filepath.Join(indexDir, "badger"), false); err != nil {
				return nil, fmt.Errorf("initializing storage: %w", err)
			}
			defer func() { _ = store.Close() }()
			opts.Backend = store
		}
	}

	var progress ingestion.ProgressCallback
	if !b.globals.Quiet {
		progress = func(phase string, pct float64) {
			fmt.Printf("\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	_, result, err := ingestion.RunPipeline(ctx, rows, opts, progress)
	if progress != nil {
		fmt.Println()
	}
	if err != nil {
		return nil, fmt.Errorf("running pipeline: %w", err)
	}

	for _, src := range result.Enrichment {
		if src.Err != nil && !b.globals.Quiet {
			color.Yellow("  enrichment source %s failed: %v", src.Name, src.Err)
		}
	}

	if b.noIndex {
		return result, nil
	}
	meta := indexMeta{
		RunID:     uuid.NewString(),
		Version:   Version,
		Inputs:    inputs,
		Output:    b.cfg.Output,
		Stats:     result,
		IndexedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeMeta(indexDir, meta); err != nil {
		return nil, err
	}
	return result, nil
}

// pipelineOptions translates the configuration into pipeline options.
func pipelineOptions(cfg *config.Config, logger *zap.Logger) (ingestion.PipelineOptions, error) {
	schema, err := graph.NewSchema(cfg.Namespaces.Base)
	if err != nil {
		return ingestion.PipelineOptions{}, fmt.Errorf("creating schema: %w", err)
	}

	var format export.Format
	if cfg.Format != "" {
		if format, err = export.ParseFormat(cfg.Format); err != nil {
			return ingestion.PipelineOptions{}, err
		}
	}

	opts := ingestion.PipelineOptions{
		Schema: schema,
		Build: ingestion.BuildOptions{
			Namespaces: ingestion.Namespaces{
				Base:    cfg.Namespaces.Base,
				HighDim: cfg.Namespaces.HighDim,
				LowDim:  cfg.Namespaces.LowDim,
			},
			LinkBase:        cfg.LinkBase,
			MissingEndpoint: ingestion.MissingEndpointPolicy(cfg.MissingEndpoint),
		},
		Workers: cfg.Workers,
		Output:  cfg.Output,
		Format:  format,
		Logger:  logger,
	}

	if cfg.Enrichment.Enabled {
		opts.Enrichers, err = enrich.FromNames(cfg.Enrichment.Sources, enrichOptions(cfg, schema, logger))
		if err != nil {
			return ingestion.PipelineOptions{}, err
		}
	}
	return opts, nil
}

func enrichOptions(cfg *config.Config, schema *graph.Schema, logger *zap.Logger) enrich.Options {
	wd := enrich.DefaultWikidataOptions()
	wd.BaseURL = cfg.Wikidata.BaseURL
	wd.Language = cfg.Wikidata.Language
	wd.Timeout = cfg.Wikidata.Timeout
	wd.Concurrency = cfg.Wikidata.Concurrency
	wd.MaxRetries = cfg.Wikidata.MaxRetries
	return enrich.Options{Schema: schema, Logger: logger, Wikidata: wd}
}

func printResult(result *ingestion.PipelineResult) {
	fmt.Printf("  Rows:           %d\n", result.Rows)
	fmt.Printf("  Entities:       %d\n", result.Entities)
	fmt.Printf("  Relations:      %d\n", result.Relations)
	fmt.Printf("  Self loops:     %d\n", result.SelfLoops)
	fmt.Printf("  Dropped:        %d\n", result.Dropped)
	fmt.Printf("  Contains edges: %d\n", result.ContainsEdges)
	fmt.Printf("  External:       %d\n", result.ExternalResources)
	fmt.Printf("  Quads:          %d\n", result.Quads)
	fmt.Printf("  Duration:       %.2fs\n", result.DurationSecs)
}

// EnrichCmd runs enrichment over a previously written N-Quads graph.
type EnrichCmd struct {
	Input   string   `arg:"" type:"existingfile" help:"N-Quads or N-Triples graph file"`
	Output  string   `short:"o" help:"Output file (defaults to the input file)"`
	Sources []string `help:"Enrichment sources (spans, wikidata)"`
}

// Run executes the enrich command.
func (c *EnrichCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if len(c.Sources) > 0 {
		cfg.Enrichment.Sources = c.Sources
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	ds, err := export.ReadFile(c.Input)
	if err != nil {
		return err
	}
	schema, err := graph.NewSchema(cfg.Namespaces.Base)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	enrichers, err := enrich.FromNames(cfg.Enrichment.Sources, enrichOptions(cfg, schema, logger))
	if err != nil {
		return err
	}

	res, added, err := ingestion.EnrichDataset(ctx, ds, schema, enrichers, logger)
	if err != nil {
		return err
	}

	output := c.Output
	if output == "" {
		output = c.Input
	}
	if err := export.WriteFile(output, ds, ""); err != nil {
		return err
	}

	if !g.Quiet {
		color.Green("✓ Enrichment complete")
		for _, src := range res.Sources {
			if src.Err != nil {
				color.Yellow("  %s: failed: %v", src.Name, src.Err)
				continue
			}
			fmt.Printf("  %s: %d resources\n", src.Name, src.Added)
		}
		fmt.Printf("  New quads:      %d\n", added)
		fmt.Printf("  Output:         %s\n", output)
	}
	return nil
}

// QueryCmd searches the stored graph.
type QueryCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the query command.
func (c *QueryCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := loadStorage(g)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.Search(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n%d. %s (%s)\n", i+1, r.Label, r.Kind)
		fmt.Printf("   IRI:   %s\n", r.IRI)
		fmt.Printf("   Score: %.0f\n", r.Score)
	}
	return nil
}

// DescribeCmd shows a resource with its links and edges.
type DescribeCmd struct {
	Resource string `arg:"" help:"Label or IRI of the resource"`
}

// Run executes the describe command.
func (c *DescribeCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := loadStorage(g)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out, err := mcp.NewServer(store).CallTool(ctx, "relatio_describe", map[string]any{"resource": c.Resource})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// WatchCmd rebuilds the graph whenever input files change.
type WatchCmd struct {
	Path     string        `arg:"" optional:"" default:"." type:"existingdir" help:"Directory of input files"`
	Debounce time.Duration `default:"2s" help:"Quiet period before rebuilding"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	color.Green("Watching %s for changes (Ctrl+C to stop)", c.Path)

	b := &graphBuilder{globals: g, cfg: cfg, logger: logger}
	err = ingestion.WatchInputs(ctx, c.Path, ingestion.WatchOptions{Debounce: c.Debounce, Logger: logger},
		func(ctx context.Context, inputs []string) error {
			result, err := b.build(ctx, inputs)
			if err != nil {
				return err
			}
			color.Green("✓ Rebuilt %d entities, %d quads", result.Entities, result.Quads)
			return nil
		})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// InitCmd writes the default configuration file.
type InitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing file"`
}

// Run executes the init command.
func (c *InitCmd) Run(g *Globals) error {
	path := g.Config
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.Dir, path)
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	color.Green("✓ Wrote %s", path)
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	store, err := loadStorage(g)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := mcp.NewServer(store)

	// stdout carries JSON-RPC only.
	return server.Run(ctx, os.Stdin, os.Stdout)
}

// ServeCmd starts the MCP server with optional metrics and watch mode.
type ServeCmd struct {
	Watch       string `short:"w" type:"existingdir" help:"Rebuild from this input directory on change"`
	MetricsAddr string `help:"Address to expose Prometheus metrics on, e.g. :9464"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	store := storage.NewBadgerBackend()
	if c.Watch != "" {
		if err := os.MkdirAll(g.indexDir(), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", indexDirName, err)
		}
		err = store.Initialize(filepath.Join(g.indexDir(), "badger"), false)
	} else {
		err = openIndex(g, store)
	}
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	metrics, err := ingestion.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if c.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logger.Info("serving metrics", zap.String("addr", c.MetricsAddr))
	}

	if c.Watch != "" {
		// The MCP session owns stdout.
		g.Quiet = true
		b := &graphBuilder{globals: g, cfg: cfg, logger: logger, metrics: metrics, backend: store}
		go func() {
			err := ingestion.WatchInputs(ctx, c.Watch, ingestion.WatchOptions{Logger: logger}, b.rebuild)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch stopped", zap.Error(err))
			}
		}()
	}

	return mcp.NewServer(store).Run(ctx, os.Stdin, os.Stdout)
}

func (b *graphBuilder) rebuild(ctx context.Context, inputs []string) error {
	_, err := b.build(ctx, inputs)
	return err
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// StatusCmd shows index status for the current directory.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	meta, err := readMeta(g.indexDir())
	if err != nil {
		return err
	}

	fmt.Printf("Index status for %s\n", g.indexDir())
	fmt.Printf("  Version:        %s\n", meta.Version)
	fmt.Printf("  Run:            %s\n", meta.RunID)
	fmt.Printf("  Last built:     %s\n", meta.IndexedAt)
	if meta.Output != "" {
		fmt.Printf("  Output:         %s\n", meta.Output)
	}
	for _, in := range meta.Inputs {
		fmt.Printf("  Input:          %s\n", in)
	}
	if meta.Stats != nil {
		printResult(meta.Stats)
	}
	return nil
}

// CleanCmd deletes the index.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	dir := g.indexDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Nothing to clean", dir)
	}

	if !c.Force {
		fmt.Printf("Delete index at %s? [y/N] ", dir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}

	color.Green("Deleted %s", dir)
	return nil
}

// Helper functions

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func loadStorage(g *Globals) (*storage.BadgerBackend, error) {
	store := storage.NewBadgerBackend()
	if err := openIndex(g, store); err != nil {
		return nil, err
	}
	return store, nil
}

// openIndex opens an existing index read-only.
func openIndex(g *Globals, store *storage.BadgerBackend) error {
	dbPath := filepath.Join(g.indexDir(), "badger")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Run 'relatio-go build' first", g.Dir)
	}
	if err := store.Initialize(dbPath, true); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	return nil
}

func writeMeta(dir string, meta indexMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", metaFileName, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", metaFileName, err)
	}
	return nil
}

func readMeta(dir string) (*indexMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no index found at %s. Run 'relatio-go build' first", dir)
		}
		return nil, fmt.Errorf("reading %s: %w", metaFileName, err)
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaFileName, err)
	}
	return &meta, nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Build    BuildCmd    `cmd:"" help:"Build a knowledge graph from extracted triples"`
	Enrich   EnrichCmd   `cmd:"" help:"Enrich a serialized graph with external knowledge"`
	Query    QueryCmd    `cmd:"" help:"Search the stored graph"`
	Describe DescribeCmd `cmd:"" help:"Show a resource with its links and edges"`
	Watch    WatchCmd    `cmd:"" help:"Rebuild the graph when input files change"`
	Init     InitCmd     `cmd:"" help:"Write the default configuration file"`
	Setup    SetupCmd    `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`
	MCP      MCPCmd      `cmd:"" help:"Start MCP server (stdio transport)"`
	Serve    ServeCmd    `cmd:"" help:"Start MCP server with optional metrics and watch mode"`
	Status   StatusCmd   `cmd:"" help:"Show index status"`
	Clean    CleanCmd    `cmd:"" help:"Delete the index"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("relatio-go"),
		kong.Description("Build RDF knowledge graphs from extracted narratives"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
