package graph

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyLabel is returned when a resource is requested for a missing label.
	ErrEmptyLabel = errors.New("empty label")

	// ErrNoNamespace is returned when a resource kind has no namespace configured.
	ErrNoNamespace = errors.New("no namespace configured")
)

// NormalizeSpace trims a label and collapses inner whitespace runs.
func NormalizeSpace(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// Capitalize upper-cases the first rune and lower-cases the rest.
func Capitalize(label string) string {
	label = NormalizeSpace(label)
	if label == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + strings.ToLower(label[size:])
}

// ToPascalCase joins tokens with their first rune upper-cased.
// Underscores are treated as token separators.
func ToPascalCase(label string) string {
	var sb strings.Builder
	for _, token := range strings.Fields(strings.ReplaceAll(label, "_", " ")) {
		r, size := utf8.DecodeRuneInString(token)
		sb.WriteRune(unicode.ToUpper(r))
		sb.WriteString(token[size:])
	}
	return sb.String()
}

// ToCamelCase is ToPascalCase with the first rune lower-cased.
func ToCamelCase(label string) string {
	pascal := ToPascalCase(label)
	if pascal == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(pascal)
	return string(unicode.ToLower(r)) + pascal[size:]
}

// FormatLabel applies the kind-specific normalization used before hashing.
func FormatLabel(kind Kind, label string) string {
	switch kind {
	case KindEntity, KindExternalEntity:
		return Capitalize(label)
	case KindRelation:
		return strings.ToLower(NormalizeSpace(label))
	case KindClass:
		return ToPascalCase(label)
	case KindProperty:
		return ToCamelCase(label)
	default:
		return NormalizeSpace(label)
	}
}

// Hash returns the hex encoded SHA-1 digest of text.
func Hash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GenerateIRI builds the IRI of a resource.
// Format: {namespace}{Kind}/{sha1(formatted label)}
func GenerateIRI(kind Kind, namespace, label string) (string, error) {
	if namespace == "" {
		return "", fmt.Errorf("%s %q: %w", kind, label, ErrNoNamespace)
	}
	formatted := FormatLabel(kind, label)
	if formatted == "" {
		return "", fmt.Errorf("%s: %w", kind, ErrEmptyLabel)
	}
	return namespace + kind.String() + "/" + Hash(formatted), nil
}

// IdentityHash returns the store key of the resource with the given IRI.
func IdentityHash(iri string) string {
	return Hash(iri)
}

// Identity resolves both the IRI and the store key for a (kind, namespace, label) tuple.
func Identity(kind Kind, namespace, label string) (iri, key string, err error) {
	iri, err = GenerateIRI(kind, namespace, label)
	if err != nil {
		return "", "", err
	}
	return iri, IdentityHash(iri), nil
}

// NegateLabel toggles the canonical "not " prefix of a relation label.
func NegateLabel(label string) string {
	label = strings.ToLower(NormalizeSpace(label))
	if strings.HasPrefix(label, "not ") {
		return label[len("not "):]
	}
	return "not " + label
}

// IsNegatedLabel reports whether a relation label carries the "not " prefix.
func IsNegatedLabel(label string) bool {
	return strings.HasPrefix(strings.ToLower(NormalizeSpace(label)), "not ")
}
