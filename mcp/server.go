// Package mcp provides the MCP (Model Context Protocol) server for relatio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/relatio-go/internal/graph"
	"github.com/Benny93/relatio-go/internal/storage"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

const (
	defaultSearchLimit = 20
	maxEdgesShown      = 50
)

// Server represents the MCP server.
type Server struct {
	storage StorageBackend
	server  *mcp.Server
}

// StorageBackend is the read side of storage.StorageBackend used by the tools.
type StorageBackend interface {
	GetResource(ctx context.Context, key string) (*storage.Record, error)
	GetResourceByIRI(ctx context.Context, iri string) (*storage.Record, error)
	FindByLabel(ctx context.Context, label string) ([]*storage.Record, error)
	Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	QuadsFrom(ctx context.Context, iri string) ([]graph.Quad, error)
	QuadsTo(ctx context.Context, iri string) ([]graph.Quad, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server.
func NewServer(storage StorageBackend) *Server {
	s := &Server{
		storage: storage,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "relatio-go",
		Version: Version,
	}, nil)

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "relatio_search",
			Description: "Search entities, relations and linked external resources by label. Returns ranked matches.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "relatio_describe",
			Description: "Describe a resource: its identity, negation, low-dimension and base links, contained resources and (relation, object) edges.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"resource": {Type: "string", Description: "Label or IRI of the resource"},
				},
				Required: []string{"resource"},
			},
		},
		{
			Name:        "relatio_neighbors",
			Description: "List the quads that mention a resource as subject, object or both.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"resource":  {Type: "string", Description: "Label or IRI of the resource"},
					"direction": {Type: "string", Description: "out, in or both", Enum: []any{"out", "in", "both"}},
				},
				Required: []string{"resource"},
			},
		},
		{
			Name:        "relatio_stats",
			Description: "Count the stored resources by kind and the stored quads.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "relatio://overview",
			Name:        "Graph Overview",
			Description: "Resource and quad counts of the stored knowledge graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "relatio://schema",
			Name:        "Graph Schema",
			Description: "Classes, properties and named graphs of the relatio knowledge graph",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "relatio_search":
		query, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		return handleSearch(ctx, s.storage, query, int(limit))
	case "relatio_describe":
		resource, _ := args["resource"].(string)
		return handleDescribe(ctx, s.storage, resource)
	case "relatio_neighbors":
		resource, _ := args["resource"].(string)
		direction, _ := args["direction"].(string)
		if direction == "" {
			direction = "both"
		}
		return handleNeighbors(ctx, s.storage, resource, direction)
	case "relatio_stats":
		return getOverview(ctx, s.storage)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "relatio://overview":
		return getOverview(ctx, s.storage)
	case "relatio://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	// One compact JSON message per line.
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// Notifications carry no id and get no response.
		if _, ok := req["id"]; !ok {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{}}
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    "relatio-go",
				"version": Version,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool Handlers

func handleSearch(ctx context.Context, store StorageBackend, query string, limit int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "No query provided", nil
	}

	results, err := store.Search(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, r.Label, r.Kind)
		fmt.Fprintf(&sb, "   IRI: %s\n", r.IRI)
		fmt.Fprintf(&sb, "   Graph: %s\n", shorten(r.Namespace))
		fmt.Fprintf(&sb, "   Score: %.0f\n\n", r.Score)
	}
	sb.WriteString("Next: Use `relatio_describe` on a result for its links and edges.")

	return sb.String(), nil
}

// resolveResource finds a record by IRI, exact label or best search match.
func resolveResource(ctx context.Context, store StorageBackend, ref string) (*storage.Record, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("no resource provided")
	}

	if strings.Contains(ref, "://") {
		rec, err := store.GetResourceByIRI(ctx, ref)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	matches, err := store.FindByLabel(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return preferredRecord(matches), nil
	}

	results, err := store.Search(ctx, ref, 1)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		rec, err := store.GetResource(ctx, results[0].Key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	return nil, fmt.Errorf("resource '%s' not found", ref)
}

// preferredRecord picks entities over relations over external resources,
// then the base namespace.
func preferredRecord(recs []*storage.Record) *storage.Record {
	rank := func(r *storage.Record) int {
		n := 0
		switch r.Kind {
		case graph.KindEntity:
		case graph.KindRelation:
			n = 2
		default:
			n = 4
		}
		if r.Namespace != graph.NamespaceBase {
			n++
		}
		return n
	}
	best := recs[0]
	for _, r := range recs[1:] {
		if rank(r) < rank(best) || (rank(r) == rank(best) && r.IRI < best.IRI) {
			best = r
		}
	}
	return best
}

func handleDescribe(ctx context.Context, store StorageBackend, ref string) (string, error) {
	rec, err := resolveResource(ctx, store, ref)
	if err != nil {
		return err.Error(), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", rec.Label)
	fmt.Fprintf(&sb, "**Kind:** %s\n", rec.Kind)
	fmt.Fprintf(&sb, "**IRI:** %s\n", rec.IRI)
	fmt.Fprintf(&sb, "**Graph:** %s\n", shorten(rec.Namespace))
	if rec.Source != "" {
		fmt.Fprintf(&sb, "**Source:** %s\n", rec.Source)
	}
	if rec.TypeIRI != "" {
		fmt.Fprintf(&sb, "**Type:** %s\n", shorten(rec.TypeIRI))
	}
	if rec.Kind == graph.KindRelation {
		fmt.Fprintf(&sb, "**Negated:** %t\n", rec.Negated)
	}

	writeRef(&sb, "Negation", rec.Negation)
	writeRef(&sb, "Low-dimension form", rec.LowDim)
	writeRef(&sb, "Base form", rec.Base)

	if len(rec.Contains) > 0 {
		fmt.Fprintf(&sb, "\n### Contains (%d)\n", len(rec.Contains))
		for _, part := range rec.Contains {
			fmt.Fprintf(&sb, "  - %s\n", part.Label)
		}
	}

	if len(rec.Edges) > 0 {
		fmt.Fprintf(&sb, "\n### Edges (%d)\n", len(rec.Edges))
		for i, e := range rec.Edges {
			if i == maxEdgesShown {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(rec.Edges)-maxEdgesShown)
				break
			}
			fmt.Fprintf(&sb, "  - %s → %s\n", e.Relation.Label, e.Object.Label)
		}
	}

	incoming, err := store.QuadsTo(ctx, rec.IRI)
	if err != nil {
		return "", err
	}
	if len(incoming) > 0 {
		fmt.Fprintf(&sb, "\n### Referenced by (%d quads)\n", len(incoming))
	}

	sb.WriteString("\nNext: Use `relatio_neighbors` for the raw quads around this resource.")
	return sb.String(), nil
}

func writeRef(sb *strings.Builder, name string, ref *storage.RecordRef) {
	if ref == nil {
		return
	}
	fmt.Fprintf(sb, "**%s:** %s (%s)\n", name, ref.Label, ref.IRI)
}

func handleNeighbors(ctx context.Context, store StorageBackend, ref, direction string) (string, error) {
	if direction != "out" && direction != "in" && direction != "both" {
		return "", fmt.Errorf("invalid direction: %s", direction)
	}

	rec, err := resolveResource(ctx, store, ref)
	if err != nil {
		return err.Error(), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Quads around %s\n", rec.Label)

	if direction != "in" {
		out, err := store.QuadsFrom(ctx, rec.IRI)
		if err != nil {
			return "", err
		}
		writeQuads(&sb, "Outgoing", out)
	}
	if direction != "out" {
		in, err := store.QuadsTo(ctx, rec.IRI)
		if err != nil {
			return "", err
		}
		writeQuads(&sb, "Incoming", in)
	}

	return sb.String(), nil
}

func writeQuads(sb *strings.Builder, title string, quads []graph.Quad) {
	fmt.Fprintf(sb, "\n### %s (%d)\n", title, len(quads))
	if len(quads) == 0 {
		sb.WriteString("  None\n")
		return
	}
	for i, q := range quads {
		if i == maxEdgesShown {
			fmt.Fprintf(sb, "  ... and %d more\n", len(quads)-maxEdgesShown)
			return
		}
		fmt.Fprintf(sb, "  %s %s %s [%s]\n", shorten(q.Subject), shorten(q.Predicate), formatTerm(q.Object), shorten(q.Graph))
	}
}

func formatTerm(t graph.Term) string {
	if t.Literal {
		return fmt.Sprintf("%q", t.Value)
	}
	return shorten(t.Value)
}

// shorten renders iri with the longest matching known prefix.
func shorten(iri string) string {
	best := ""
	for ns := range graph.Prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(best) {
			best = ns
		}
	}
	if best == "" {
		return iri
	}
	return graph.Prefixes[best] + ":" + strings.TrimPrefix(iri, best)
}

// Resource Handlers

func getOverview(ctx context.Context, store StorageBackend) (string, error) {
	stats, err := store.Stats(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# relatio Knowledge Graph Overview\n\n")
	fmt.Fprintf(&sb, "**Resources:** %d\n", stats.Resources)
	fmt.Fprintf(&sb, "**Quads:** %d\n", stats.Quads)

	kinds := make([]string, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	if len(kinds) > 0 {
		sb.WriteString("\n## By Kind\n\n")
		for _, k := range kinds {
			fmt.Fprintf(&sb, "- %s: %d\n", k, stats.ByKind[k])
		}
	}
	return sb.String(), nil
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# relatio Graph Schema\n\n")
	sb.WriteString("## Classes\n\n")
	sb.WriteString("- Entity: a noun phrase in subject or object position\n")
	sb.WriteString("- Relation: a predicate, negated relations are distinct resources\n")
	sb.WriteString("- External resources: spans and Wikidata matches, subclasses of Entity\n")
	sb.WriteString("\n## Properties\n\n")
	sb.WriteString("- contains: an entity or relation whose label includes another\n")
	sb.WriteString("- hasLowDim: a high-dimension instance to its low-dimension form\n")
	sb.WriteString("- isNegOf: a relation to its negation, paired with owl:inverseOf\n")
	sb.WriteString("- Each relation label is also a property linking entities\n")
	sb.WriteString("\n## Named Graphs\n\n")
	fmt.Fprintf(&sb, "- %s base instances and schema\n", graph.NamespaceBase)
	fmt.Fprintf(&sb, "- %s high-dimension instances\n", graph.NamespaceHighDim)
	fmt.Fprintf(&sb, "- %s low-dimension instances\n", graph.NamespaceLowDim)
	fmt.Fprintf(&sb, "- %s named-entity spans\n", graph.NamespaceSpans)
	fmt.Fprintf(&sb, "- %s Wikidata matches\n", graph.NamespaceWikidata)
	return sb.String()
}

// Helper functions

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
