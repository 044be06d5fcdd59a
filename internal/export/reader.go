package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Benny93/relatio-go/internal/graph"
)

// ErrSyntax is returned for malformed N-Quads input.
var ErrSyntax = errors.New("n-quads syntax error")

// ReadFile parses an N-Quads or N-Triples file into a dataset.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	quads, err := ParseNQuads(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	d := NewDataset()
	d.Add(quads...)
	return d, nil
}

// ParseNQuads reads N-Quads (and therefore N-Triples) statements.
// Blank nodes are not supported.
func ParseNQuads(r io.Reader) ([]graph.Quad, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var quads []graph.Quad
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		q, err := parseStatement(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		quads = append(quads, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading n-quads: %w", err)
	}
	return quads, nil
}

type lexer struct {
	s   string
	pos int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.s) && (l.s[l.pos] == ' ' || l.s[l.pos] == '\t') {
		l.pos++
	}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.s) {
		return 0
	}
	return l.s[l.pos]
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at column %d: %s", ErrSyntax, l.pos+1, fmt.Sprintf(format, args...))
}

func parseStatement(text string) (graph.Quad, error) {
	l := &lexer{s: text}
	var q graph.Quad
	var err error

	l.skipSpace()
	if q.Subject, err = l.iri(); err != nil {
		return q, err
	}
	l.skipSpace()
	if q.Predicate, err = l.iri(); err != nil {
		return q, err
	}
	l.skipSpace()
	if q.Object, err = l.term(); err != nil {
		return q, err
	}
	l.skipSpace()
	if l.peek() == '<' {
		if q.Graph, err = l.iri(); err != nil {
			return q, err
		}
		l.skipSpace()
	}
	if l.peek() != '.' {
		return q, l.errorf("expected '.'")
	}
	l.pos++
	l.skipSpace()
	if l.pos < len(l.s) && l.s[l.pos] != '#' {
		return q, l.errorf("trailing content %q", l.s[l.pos:])
	}
	return q, nil
}

func (l *lexer) iri() (string, error) {
	switch l.peek() {
	case '<':
	case '_':
		return "", l.errorf("blank nodes are not supported")
	default:
		return "", l.errorf("expected IRI")
	}
	end := strings.IndexByte(l.s[l.pos+1:], '>')
	if end < 0 {
		return "", l.errorf("unterminated IRI")
	}
	iri := l.s[l.pos+1 : l.pos+1+end]
	l.pos += end + 2
	return iri, nil
}

func (l *lexer) term() (graph.Term, error) {
	if l.peek() != '"' {
		iri, err := l.iri()
		return graph.IRI(iri), err
	}

	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.s) {
			return graph.Term{}, l.errorf("unterminated literal")
		}
		c := l.s[l.pos]
		if c == '"' {
			l.pos++
			break
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(l.s[l.pos:])
			sb.WriteRune(r)
			l.pos += size
			continue
		}
		if err := l.escape(&sb); err != nil {
			return graph.Term{}, err
		}
	}

	t := graph.Literal(sb.String())
	switch {
	case l.peek() == '@':
		start := l.pos + 1
		l.pos++
		for l.pos < len(l.s) && (isAlnum(l.s[l.pos]) || l.s[l.pos] == '-') {
			l.pos++
		}
		t.Language = l.s[start:l.pos]
	case strings.HasPrefix(l.s[l.pos:], "^^"):
		l.pos += 2
		dt, err := l.iri()
		if err != nil {
			return graph.Term{}, err
		}
		t.Datatype = dt
	}
	return t, nil
}

func (l *lexer) escape(sb *strings.Builder) error {
	if l.pos+1 >= len(l.s) {
		return l.errorf("dangling escape")
	}
	c := l.s[l.pos+1]
	l.pos += 2
	switch c {
	case 't':
		sb.WriteByte('\t')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '"', '\'', '\\':
		sb.WriteByte(c)
	case 'u', 'U':
		n := 4
		if c == 'U' {
			n = 8
		}
		if l.pos+n > len(l.s) {
			return l.errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(l.s[l.pos:l.pos+n], 16, 32)
		if err != nil {
			return l.errorf("bad unicode escape: %v", err)
		}
		sb.WriteRune(rune(code))
		l.pos += n
	default:
		return l.errorf("unknown escape \\%c", c)
	}
	return nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
