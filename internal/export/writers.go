package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Benny93/relatio-go/internal/graph"
)

// Write serializes the dataset in the given format.
func Write(w io.Writer, d *Dataset, format Format) error {
	var out string
	switch format {
	case FormatNQuads:
		out = NQuads(d)
	case FormatNTriples:
		out = NTriples(d)
	case FormatTurtle:
		out = Turtle(d)
	case FormatTriG:
		out = TriG(d)
	case FormatJSONLD:
		s, err := JSONLD(d)
		if err != nil {
			return err
		}
		out = s
	default:
		return fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
	_, err := io.WriteString(w, out)
	return err
}

// WriteFile serializes the dataset to path. An empty format is derived from
// the file extension.
func WriteFile(path string, d *Dataset, format Format) error {
	if format == "" {
		format = FormatFromFilename(path)
	}
	if _, ok := FormatRegistry[format]; !ok {
		return fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, d, format); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// NQuads renders every quad, one per line.
func NQuads(d *Dataset) string {
	var sb strings.Builder
	for _, q := range d.Quads() {
		sb.WriteString(q.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// NTriples renders every distinct triple, one per line.
func NTriples(d *Dataset) string {
	var sb strings.Builder
	for _, t := range d.Triples() {
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Turtle renders the distinct triples grouped by subject using the prefix table.
func Turtle(d *Dataset) string {
	tw := newTurtleWriter(d.Prefixes())
	tw.writePrefixes()
	tw.writeBlock(d.Triples(), "")
	return tw.String()
}

// TriG renders each named graph as a Turtle block. Quads in the default
// graph are written outside any block.
func TriG(d *Dataset) string {
	byGraph := make(map[string][]graph.Quad)
	for _, q := range d.Quads() {
		byGraph[q.Graph] = append(byGraph[q.Graph], q)
	}

	tw := newTurtleWriter(d.Prefixes())
	tw.writePrefixes()
	if quads, ok := byGraph[""]; ok {
		tw.writeBlock(quads, "")
	}
	for _, g := range d.Graphs() {
		if g == "" {
			continue
		}
		tw.sb.WriteString(tw.iri(g))
		tw.sb.WriteString(" {\n")
		tw.writeBlock(byGraph[g], "    ")
		tw.sb.WriteString("}\n\n")
	}
	return tw.String()
}

// turtleWriter accumulates Turtle/TriG output.
type turtleWriter struct {
	prefixes   map[string]string
	namespaces []string // longest first
	sb         strings.Builder
}

func newTurtleWriter(prefixes map[string]string) *turtleWriter {
	tw := &turtleWriter{prefixes: make(map[string]string, len(prefixes))}
	for prefix, iri := range prefixes {
		tw.prefixes[iri] = prefix
		tw.namespaces = append(tw.namespaces, iri)
	}
	sort.Slice(tw.namespaces, func(i, j int) bool {
		if len(tw.namespaces[i]) != len(tw.namespaces[j]) {
			return len(tw.namespaces[i]) > len(tw.namespaces[j])
		}
		return tw.namespaces[i] < tw.namespaces[j]
	})
	return tw
}

func (w *turtleWriter) writePrefixes() {
	keys := make([]string, 0, len(w.prefixes))
	for iri := range w.prefixes {
		keys = append(keys, w.prefixes[iri])
	}
	sort.Strings(keys)

	inverse := make(map[string]string, len(w.prefixes))
	for iri, prefix := range w.prefixes {
		inverse[prefix] = iri
	}
	for _, prefix := range keys {
		fmt.Fprintf(&w.sb, "@prefix %s: <%s> .\n", prefix, inverse[prefix])
	}
	w.sb.WriteString("\n")
}

// writeBlock writes quads as Turtle statements grouped by subject then
// predicate, in first-seen order.
func (w *turtleWriter) writeBlock(quads []graph.Quad, indent string) {
	type predicateObjects struct {
		predicate string
		objects   []graph.Term
	}
	var subjects []string
	bySubject := make(map[string][]*predicateObjects)
	seen := make(map[graph.Quad]struct{})

	for _, q := range quads {
		t := q.Triple()
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}

		preds, ok := bySubject[q.Subject]
		if !ok {
			subjects = append(subjects, q.Subject)
		}
		var po *predicateObjects
		for _, p := range preds {
			if p.predicate == q.Predicate {
				po = p
				break
			}
		}
		if po == nil {
			po = &predicateObjects{predicate: q.Predicate}
			bySubject[q.Subject] = append(preds, po)
		}
		po.objects = append(po.objects, q.Object)
	}

	for _, s := range subjects {
		preds := bySubject[s]
		w.sb.WriteString(indent)
		w.sb.WriteString(w.iri(s))
		w.sb.WriteString("\n")
		for i, po := range preds {
			objects := make([]string, len(po.objects))
			for j, o := range po.objects {
				objects[j] = w.term(o)
			}
			terminator := " ;"
			if i == len(preds)-1 {
				terminator = " ."
			}
			fmt.Fprintf(&w.sb, "%s    %s %s%s\n", indent, w.predicate(po.predicate), strings.Join(objects, " , "), terminator)
		}
		w.sb.WriteString("\n")
	}
}

func (w *turtleWriter) String() string {
	return w.sb.String()
}

func (w *turtleWriter) predicate(iri string) string {
	if iri == graph.RDFType {
		return "a"
	}
	return w.iri(iri)
}

func (w *turtleWriter) term(t graph.Term) string {
	if !t.Literal {
		return w.iri(t.Value)
	}
	s := `"` + graph.EscapeLiteral(t.Value) + `"`
	switch {
	case t.Language != "":
		s += "@" + t.Language
	case t.Datatype != "":
		s += "^^" + w.iri(t.Datatype)
	}
	return s
}

// localName matches the local parts that may be written as prefixed names.
// Slashes are escaped on output.
var localName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-/]*$`)

// iri renders an IRI as a prefixed name when a bound namespace covers it.
func (w *turtleWriter) iri(iri string) string {
	for _, ns := range w.namespaces {
		if !strings.HasPrefix(iri, ns) {
			continue
		}
		local := iri[len(ns):]
		if local == "" || strings.HasSuffix(local, "/") || !localName.MatchString(local) {
			break
		}
		return w.prefixes[ns] + ":" + strings.ReplaceAll(local, "/", `\/`)
	}
	return "<" + iri + ">"
}

// JSONLD renders the distinct triples as an expanded JSON-LD document with a
// @context holding the prefix table.
func JSONLD(d *Dataset) (string, error) {
	context := make(map[string]any)
	for prefix, iri := range d.Prefixes() {
		if prefix == "" {
			context["@vocab"] = iri
			continue
		}
		context[prefix] = iri
	}

	var order []string
	nodes := make(map[string]map[string]any)
	for _, t := range d.Triples() {
		node, ok := nodes[t.Subject]
		if !ok {
			node = map[string]any{"@id": t.Subject}
			nodes[t.Subject] = node
			order = append(order, t.Subject)
		}
		if t.Predicate == graph.RDFType && !t.Object.Literal {
			types, _ := node["@type"].([]string)
			node["@type"] = append(types, t.Object.Value)
			continue
		}
		values, _ := node[t.Predicate].([]map[string]string)
		node[t.Predicate] = append(values, jsonLDValue(t.Object))
	}

	doc := struct {
		Context map[string]any   `json:"@context"`
		Graph   []map[string]any `json:"@graph"`
	}{Context: context, Graph: make([]map[string]any, 0, len(order))}
	for _, s := range order {
		doc.Graph = append(doc.Graph, nodes[s])
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json-ld: %w", err)
	}
	return string(data) + "\n", nil
}

func jsonLDValue(t graph.Term) map[string]string {
	if !t.Literal {
		return map[string]string{"@id": t.Value}
	}
	v := map[string]string{"@value": t.Value}
	switch {
	case t.Language != "":
		v["@language"] = t.Language
	case t.Datatype != "":
		v["@type"] = t.Datatype
	}
	return v
}
