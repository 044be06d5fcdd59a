package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/relatio-go/internal/config"
	"github.com/Benny93/relatio-go/internal/export"
	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/storage"
)

const scenarioCSV = `subject,predicate,negated,object
Congress,raises,false,rates
Congress,raises,true,rates
the Congress,acts,,
`

func newGlobals(t *testing.T) *Globals {
	t.Helper()
	return &Globals{Quiet: true, Config: config.DefaultFile, Dir: t.TempDir()}
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(scenarioCSV), 0o644))
	return path
}

// buildIndex runs the build command into g.Dir and returns the output path.
func buildIndex(t *testing.T, g *Globals) string {
	t.Helper()
	output := filepath.Join(g.Dir, "graph.nq")
	cmd := &BuildCmd{Inputs: []string{writeInput(t, g.Dir)}, Output: output}
	require.NoError(t, cmd.Run(g))
	return output
}

func TestBuildCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("WritesOutputIndexAndMeta", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		output := buildIndex(t, g)

		ds, err := export.ReadFile(output)
		require.NoError(t, err)
		assert.Positive(t, ds.Len())

		meta, err := readMeta(g.indexDir())
		require.NoError(t, err)
		assert.NotEmpty(t, meta.RunID)
		assert.Equal(t, output, meta.Output)
		require.NotNil(t, meta.Stats)
		assert.Equal(t, 3, meta.Stats.Entities)
		assert.Equal(t, 4, meta.Stats.Relations)
		assert.Equal(t, 1, meta.Stats.ContainsEdges)
		assert.Equal(t, ds.Len(), meta.Stats.Quads)

		store, err := loadStorage(g)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		stats, err := store.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, stats.ByKind[string(graph.KindEntity)])
	})

	t.Run("RebuildKeepsOneRun", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		buildIndex(t, g)
		first, err := readMeta(g.indexDir())
		require.NoError(t, err)

		buildIndex(t, g)
		second, err := readMeta(g.indexDir())
		require.NoError(t, err)
		assert.NotEqual(t, first.RunID, second.RunID)
		assert.Equal(t, first.Stats.Quads, second.Stats.Quads)
	})

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		cmd := &BuildCmd{
			Inputs:  []string{writeInput(t, g.Dir)},
			Output:  filepath.Join(g.Dir, "graph.ttl"),
			NoIndex: true,
		}
		require.NoError(t, cmd.Run(g))

		_, err := os.Stat(g.indexDir())
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(g.Dir, "graph.ttl"))
		assert.NoError(t, err)
	})

	t.Run("DropPolicy", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		cmd := &BuildCmd{
			Inputs:          []string{writeInput(t, g.Dir)},
			Output:          filepath.Join(g.Dir, "graph.nq"),
			MissingEndpoint: "drop",
		}
		require.NoError(t, cmd.Run(g))

		meta, err := readMeta(g.indexDir())
		require.NoError(t, err)
		assert.Equal(t, 0, meta.Stats.SelfLoops)
		assert.Equal(t, 1, meta.Stats.Dropped)
	})

	t.Run("InvalidPolicy", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		cmd := &BuildCmd{Inputs: []string{writeInput(t, g.Dir)}, MissingEndpoint: "guess"}
		assert.ErrorIs(t, cmd.Run(g), config.ErrInvalid)
	})

	t.Run("MissingInput", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		cmd := &BuildCmd{Inputs: []string{filepath.Join(g.Dir, "missing.csv")}}
		assert.Error(t, cmd.Run(g))
	})

	t.Run("ConfigFile", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		cfg := config.Default()
		cfg.Output = filepath.Join(g.Dir, "from-config.trig")
		require.NoError(t, cfg.Save(filepath.Join(g.Dir, config.DefaultFile)))

		cmd := &BuildCmd{Inputs: []string{writeInput(t, g.Dir)}}
		require.NoError(t, cmd.Run(g))
		_, err := os.Stat(cfg.Output)
		assert.NoError(t, err)
	})
}

func TestEnrichCmd_Run(t *testing.T) {
	t.Parallel()

	g := newGlobals(t)
	output := buildIndex(t, g)
	before, err := export.ReadFile(output)
	require.NoError(t, err)

	enriched := filepath.Join(g.Dir, "enriched.nq")
	cmd := &EnrichCmd{Input: output, Output: enriched, Sources: []string{"spans"}}
	require.NoError(t, cmd.Run(g))

	after, err := export.ReadFile(enriched)
	require.NoError(t, err)
	assert.Greater(t, after.Len(), before.Len())
	assert.Contains(t, after.Graphs(), graph.NamespaceSpans)

	t.Run("UnknownSource", func(t *testing.T) {
		cmd := &EnrichCmd{Input: output, Sources: []string{"wordnet"}}
		assert.ErrorIs(t, cmd.Run(g), config.ErrInvalid)
	})
}

func TestQueryCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		cmd := &QueryCmd{Query: "congress", Limit: 10}
		err := cmd.Run(newGlobals(t))
		assert.ErrorContains(t, err, "no index found")
	})

	t.Run("WithIndex", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		buildIndex(t, g)
		cmd := &QueryCmd{Query: "congress", Limit: 10}
		assert.NoError(t, cmd.Run(g))
	})
}

func TestDescribeCmd_Run(t *testing.T) {
	t.Parallel()

	g := newGlobals(t)
	buildIndex(t, g)
	assert.NoError(t, (&DescribeCmd{Resource: "Congress"}).Run(g))

	_, err := loadStorage(newGlobals(t))
	assert.Error(t, err)
}

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		err := (&StatusCmd{}).Run(newGlobals(t))
		assert.ErrorContains(t, err, "no index found")
	})

	t.Run("WithIndex", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		buildIndex(t, g)
		assert.NoError(t, (&StatusCmd{}).Run(g))
	})
}

func TestCleanCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()
		err := (&CleanCmd{Force: true}).Run(newGlobals(t))
		assert.Error(t, err)
	})

	t.Run("Force", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		buildIndex(t, g)

		require.NoError(t, (&CleanCmd{Force: true}).Run(g))
		_, err := os.Stat(g.indexDir())
		assert.True(t, os.IsNotExist(err))
	})
}

func TestInitCmd_Run(t *testing.T) {
	t.Parallel()

	g := newGlobals(t)
	require.NoError(t, (&InitCmd{}).Run(g))

	cfg, err := config.Load(filepath.Join(g.Dir, config.DefaultFile), false)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	assert.Error(t, (&InitCmd{}).Run(g), "existing file is kept")
	assert.NoError(t, (&InitCmd{Force: true}).Run(g))
}

func TestGlobals(t *testing.T) {
	t.Parallel()

	t.Run("ExplicitConfigMustExist", func(t *testing.T) {
		t.Parallel()
		g := newGlobals(t)
		g.Config = filepath.Join(g.Dir, "other.yaml")
		_, err := g.loadConfig()
		assert.Error(t, err)
	})

	t.Run("LogLevelFlags", func(t *testing.T) {
		t.Parallel()
		g := &Globals{Verbose: true}
		logger, err := g.logger(config.Default())
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1), "debug enabled")
	})
}

func TestPipelineOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Format = "turtle"
	cfg.Enrichment.Enabled = true
	cfg.Enrichment.Sources = []string{"spans", "wikidata"}

	opts, err := pipelineOptions(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, export.FormatTurtle, opts.Format)
	assert.Len(t, opts.Enrichers, 2)
	assert.Equal(t, graph.NamespaceLowDim, opts.Build.Namespaces.LowDim)
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeInput(t, dir)
	output := filepath.Join(dir, "graph.nq")

	cli := NewCLI()
	require.NoError(t, cli.Execute([]string{"--quiet", "--dir", dir, "build", input, "-o", output}))
	assert.Equal(t, dir, cli.Dir)

	store := storage.NewBadgerBackend()
	require.NoError(t, store.Initialize(filepath.Join(dir, indexDirName, "badger"), true))
	defer func() { _ = store.Close() }()
	results, err := store.Search(context.Background(), "congress", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.Error(t, NewCLI().Execute([]string{"no-such-command"}))
}
