package ingestion

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	t.Run("NilRegistry", func(t *testing.T) {
		t.Parallel()
		m, err := NewMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, m)

		// A nil *Metrics records nothing.
		m.recordRows(3)
		m.observePhase(PhaseBuild, time.Second)
	})

	t.Run("Records", func(t *testing.T) {
		t.Parallel()
		m, err := NewMetrics(prometheus.NewRegistry())
		require.NoError(t, err)

		m.recordRows(3)
		m.recordResources("Entity", 2)
		m.recordContains("Entity", 1)
		m.recordEnrichmentFailure("wikidata")
		m.recordQuads(10)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.rows))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.resources.WithLabelValues("Entity")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.containsEdges.WithLabelValues("Entity")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichmentFailures.WithLabelValues("wikidata")))
		assert.Equal(t, 10.0, testutil.ToFloat64(m.quads))
	})

	t.Run("DuplicateRegistration", func(t *testing.T) {
		t.Parallel()
		reg := prometheus.NewRegistry()
		_, err := NewMetrics(reg)
		require.NoError(t, err)
		_, err = NewMetrics(reg)
		assert.Error(t, err)
	})
}
