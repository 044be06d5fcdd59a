package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/storage"
)

type testGraph struct {
	congress   *graph.Resource
	rates      *graph.Resource
	theCongres *graph.Resource
	raises     *graph.Resource
}

// newTestStorage loads a small graph into a memory backend:
// Congress raises interest rates, the Congress contains Congress.
func newTestStorage(t *testing.T) (*storage.MemoryBackend, testGraph) {
	t.Helper()

	schema, err := graph.NewSchema(graph.NamespaceBase)
	require.NoError(t, err)
	f := graph.NewInstances(schema)
	s := graph.NewStore()

	entity := func(label string) *graph.Resource {
		r, err := f.Entity(s, graph.NamespaceBase, label)
		require.NoError(t, err)
		return r
	}

	g := testGraph{
		congress:   entity("Congress"),
		rates:      entity("interest rates"),
		theCongres: entity("the Congress"),
	}
	g.raises, err = f.Relation(s, graph.NamespaceBase, "raises", false)
	require.NoError(t, err)
	g.congress.AddObject(g.raises.Ref(), g.rates.Ref(), graph.NamespaceBase)
	g.theCongres.AddContains(g.congress.Ref())

	merged := schema.Store().Union(s)
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Initialize("", false))
	require.NoError(t, backend.BulkLoad(context.Background(), merged, merged.Quads()))
	t.Cleanup(func() { _ = backend.Close() })
	return backend, g
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	store, _ := newTestStorage(t)
	server := NewServer(store)

	assert.NotNil(t, server)
	assert.NotNil(t, server.storage)
	assert.NotNil(t, server.server)
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	store, _ := newTestStorage(t)
	server := NewServer(store)

	t.Run("ListTools", func(t *testing.T) {
		toolNames := make(map[string]bool)
		for _, tool := range server.ListTools() {
			toolNames[tool.Name] = true
		}

		for _, expected := range []string{
			"relatio_search",
			"relatio_describe",
			"relatio_neighbors",
			"relatio_stats",
		} {
			assert.True(t, toolNames[expected], "Should have tool: %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
			assert.Equal(t, "object", tool.InputSchema.Type)
		}
	})
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	store, g := newTestStorage(t)
	server := NewServer(store)
	ctx := context.Background()

	t.Run("Search", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_search", map[string]any{
			"query": "congress",
			"limit": float64(10),
		})
		require.NoError(t, err)
		assert.Contains(t, result, "Found 2 results")
		assert.Less(t, strings.Index(result, "**Congress**"), strings.Index(result, "**The congress**"))
	})

	t.Run("SearchMissingQuery", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_search", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "No query provided")
	})

	t.Run("SearchNoResults", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_search", map[string]any{"query": "senate"})
		require.NoError(t, err)
		assert.Equal(t, "No results found", result)
	})

	t.Run("DescribeByLabel", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_describe", map[string]any{"resource": "congress"})
		require.NoError(t, err)
		assert.Contains(t, result, "## Congress")
		assert.Contains(t, result, g.congress.IRI)
		assert.Contains(t, result, "raises → Interest rates")
		assert.Contains(t, result, "Referenced by")
	})

	t.Run("DescribeByIRI", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_describe", map[string]any{"resource": g.theCongres.IRI})
		require.NoError(t, err)
		assert.Contains(t, result, "## The congress")
		assert.Contains(t, result, "### Contains (1)")
	})

	t.Run("DescribeRelation", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_describe", map[string]any{"resource": g.raises.IRI})
		require.NoError(t, err)
		assert.Contains(t, result, "**Negated:** false")
		assert.Contains(t, result, "**Negation:** not raises")
	})

	t.Run("DescribeUnknown", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_describe", map[string]any{"resource": "senate"})
		require.NoError(t, err)
		assert.Contains(t, result, "not found")
	})

	t.Run("Neighbors", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_neighbors", map[string]any{
			"resource":  "interest rates",
			"direction": "in",
		})
		require.NoError(t, err)
		assert.Contains(t, result, "### Incoming")
		assert.NotContains(t, result, "### Outgoing")
		assert.Contains(t, result, shorten(g.congress.IRI))
	})

	t.Run("NeighborsBadDirection", func(t *testing.T) {
		_, err := server.CallTool(ctx, "relatio_neighbors", map[string]any{
			"resource":  "Congress",
			"direction": "sideways",
		})
		assert.Error(t, err)
	})

	t.Run("Stats", func(t *testing.T) {
		result, err := server.CallTool(ctx, "relatio_stats", nil)
		require.NoError(t, err)
		assert.Contains(t, result, "- Entity: 3")
		assert.Contains(t, result, "- Relation: 2")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "unknown_tool", map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	store, _ := newTestStorage(t)
	server := NewServer(store)
	ctx := context.Background()

	t.Run("ListResources", func(t *testing.T) {
		resources := server.ListResources()
		require.Len(t, resources, 2)
		for _, res := range resources {
			assert.True(t, strings.HasPrefix(res.URI, "relatio://"))
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MimeType)
		}
	})

	t.Run("ReadOverview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "relatio://overview")
		require.NoError(t, err)
		assert.Contains(t, content, "**Resources:**")
		assert.Contains(t, content, "**Quads:**")
	})

	t.Run("ReadSchema", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "relatio://schema")
		require.NoError(t, err)
		assert.Contains(t, content, "contains")
		assert.Contains(t, content, graph.NamespaceLowDim)
	})

	t.Run("ReadUnknownResource", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "relatio://unknown")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

func TestShorten(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rdfs:label", shorten(graph.RDFSLabel))
	assert.Equal(t, "wd:Q42", shorten(graph.WikidataEntity+"Q42"))
	assert.Equal(t, "ld:x", shorten(graph.NamespaceLowDim+"x"))
	assert.Equal(t, "urn:other", shorten("urn:other"))
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	store, _ := newTestStorage(t)
	server := NewServer(store)

	t.Run("RunWithNilStreams", func(t *testing.T) {
		err := server.Run(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("Session", func(t *testing.T) {
		in := strings.Join([]string{
			`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
			`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			`not json`,
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
			`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"relatio_search","arguments":{"query":"rates"}}}`,
			`{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"relatio://schema"}}`,
			`{"jsonrpc":"2.0","id":5,"method":"bogus"}`,
		}, "\n") + "\n"

		var out bytes.Buffer
		require.NoError(t, server.Run(context.Background(), strings.NewReader(in), &out))

		var responses []map[string]any
		scanner := bufio.NewScanner(&out)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			var resp map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
			responses = append(responses, resp)
		}
		require.Len(t, responses, 5, "notifications and malformed lines get no response")

		info := responses[0]["result"].(map[string]any)["serverInfo"].(map[string]any)
		assert.Equal(t, "relatio-go", info["name"])

		tools := responses[1]["result"].(map[string]any)["tools"].([]any)
		assert.Len(t, tools, 4)

		content := responses[2]["result"].(map[string]any)["content"].([]any)
		assert.Contains(t, content[0].(map[string]any)["text"], "Interest rates")

		assert.EqualValues(t, 4, responses[3]["id"])

		rpcErr := responses[4]["error"].(map[string]any)
		assert.EqualValues(t, -32601, rpcErr["code"])
	})
}
