package ingestion

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Row is one extracted (subject, predicate, object) record.
// An empty label means the value is absent.
type Row struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Negated   bool   `json:"negated"`
	Object    string `json:"object"`

	// LowDim is the secondary representation of the same statement.
	LowDim *Row `json:"low_dim,omitempty"`
}

// IsEmpty reports whether the row carries no label at all.
func (r Row) IsEmpty() bool {
	return r.Subject == "" && r.Predicate == "" && r.Object == ""
}

// ErrUnknownInputFormat is returned for input files that are neither CSV nor JSON Lines.
var ErrUnknownInputFormat = errors.New("unknown input format")

// Column names of the CSV input.
const (
	colSubject   = "subject"
	colPredicate = "predicate"
	colNegated   = "negated"
	colObject    = "object"
	lowDimPrefix = "ld_"
)

// absentValues are spellings of a missing value produced by upstream extractors.
var absentValues = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
	"na":   {},
	"n/a":  {},
}

// CleanLabel maps missing-value spellings to the empty string and collapses
// whitespace.
func CleanLabel(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if _, ok := absentValues[strings.ToLower(label)]; ok {
		return ""
	}
	return label
}

// CleanRows returns normalized copies of rows, dropping rows with nothing in them.
// Predicate underscores become spaces and a predicate marked negated without
// a label loses its negation flag.
func CleanRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		r = cleanRow(r)
		if r.LowDim != nil {
			ld := cleanRow(*r.LowDim)
			if ld.IsEmpty() {
				r.LowDim = nil
			} else {
				r.LowDim = &ld
			}
		}
		if r.IsEmpty() && r.LowDim == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func cleanRow(r Row) Row {
	r.Subject = CleanLabel(r.Subject)
	r.Object = CleanLabel(r.Object)
	r.Predicate = CleanLabel(strings.ReplaceAll(r.Predicate, "_", " "))
	if r.Predicate == "" {
		r.Negated = false
	}
	return r
}

// LoadRows reads rows from a .csv, .jsonl or .ndjson file.
func LoadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".jsonl", ".ndjson":
		return ReadJSONL(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownInputFormat)
	}
}

// ReadCSV reads rows from CSV with a header line. Required columns are
// subject, predicate and object; negated and the ld_ prefixed low-dimension
// columns are optional.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colSubject, colPredicate, colObject} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header: missing column %q", required)
		}
	}
	_, hasLowDim := cols[lowDimPrefix+colPredicate]

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}

		row, err := csvRow(record, cols, "")
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if hasLowDim {
			ld, err := csvRow(record, cols, lowDimPrefix)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: %w", line, err)
			}
			row.LowDim = &ld
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func csvRow(record []string, cols map[string]int, prefix string) (Row, error) {
	field := func(name string) string {
		i, ok := cols[prefix+name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	row := Row{
		Subject:   field(colSubject),
		Predicate: field(colPredicate),
		Object:    field(colObject),
	}
	if v := strings.TrimSpace(field(colNegated)); v != "" {
		negated, err := strconv.ParseBool(v)
		if err != nil {
			return Row{}, fmt.Errorf("parsing %s%s %q: %w", prefix, colNegated, v, err)
		}
		row.Negated = negated
	}
	return row, nil
}

// ReadJSONL reads one JSON encoded Row per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var rows []Row
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading jsonl: %w", err)
	}
	return rows, nil
}
