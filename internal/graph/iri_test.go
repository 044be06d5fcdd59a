package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  Kind
		label string
		want  string
	}{
		{KindEntity, "the Federal Reserve", "The federal reserve"},
		{KindEntity, "  congress  ", "Congress"},
		{KindExternalEntity, "BARACK obama", "Barack obama"},
		{KindRelation, "Raise  Rates", "raise rates"},
		{KindClass, "named_entity type", "NamedEntityType"},
		{KindProperty, "has low dim", "hasLowDim"},
		{KindProperty, "contains", "contains"},
		{KindEntity, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLabel(tt.kind, tt.label))
		})
	}
}

func TestGenerateIRI(t *testing.T) {
	t.Parallel()

	t.Run("Deterministic", func(t *testing.T) {
		a, err := GenerateIRI(KindEntity, NamespaceBase, "Congress")
		require.NoError(t, err)
		b, err := GenerateIRI(KindEntity, NamespaceBase, "congress")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Equal(t, NamespaceBase+"Entity/"+Hash("Congress"), a)
	})

	t.Run("KindAndNamespaceSeparateIdentities", func(t *testing.T) {
		entity, _ := GenerateIRI(KindEntity, NamespaceBase, "rates")
		relation, _ := GenerateIRI(KindRelation, NamespaceBase, "rates")
		lowDim, _ := GenerateIRI(KindEntity, NamespaceLowDim, "rates")

		assert.NotEqual(t, entity, relation)
		assert.NotEqual(t, entity, lowDim)
		assert.True(t, strings.HasPrefix(lowDim, NamespaceLowDim+"Entity/"))
	})

	t.Run("HashIsSHA1Hex", func(t *testing.T) {
		assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", Hash("abc"))
	})

	t.Run("EmptyLabel", func(t *testing.T) {
		_, err := GenerateIRI(KindEntity, NamespaceBase, "   ")
		assert.ErrorIs(t, err, ErrEmptyLabel)
	})

	t.Run("NoNamespace", func(t *testing.T) {
		_, err := GenerateIRI(KindRelation, "", "acts")
		assert.ErrorIs(t, err, ErrNoNamespace)
	})
}

func TestNegateLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not raise rates", NegateLabel("Raise rates"))
	assert.Equal(t, "raise rates", NegateLabel("not raise rates"))
	assert.Equal(t, "raise rates", NegateLabel(NegateLabel("raise rates")))
	assert.True(t, IsNegatedLabel("Not grows"))
	assert.False(t, IsNegatedLabel("nothing"))
}
