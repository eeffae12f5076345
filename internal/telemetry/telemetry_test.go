package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMetrics(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{Query: "الصلاه", Mode: "hybrid", ResultCount: 5, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "غريب", Mode: "hybrid", Latency: 600 * time.Millisecond})
	m.Record(QueryEvent{Query: "الزكاه", Mode: "keyword", ResultCount: 2, Latency: 100 * time.Millisecond})

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(2), s.ByMode["hybrid"])
	assert.Equal(t, []string{"غريب"}, s.ZeroResults)

	// 30ms → bucket 0, 100ms → bucket 1, 600ms → bucket 3.
	assert.Equal(t, int64(1), s.LatencyHist[0])
	assert.Equal(t, int64(1), s.LatencyHist[1])
	assert.Equal(t, int64(1), s.LatencyHist[3])
}

func TestQueryMetricsZeroResultRing(t *testing.T) {
	m := NewQueryMetrics()
	for i := 0; i < maxZeroResultQueries+10; i++ {
		m.Record(QueryEvent{Query: "q", Mode: "hybrid"})
	}
	assert.Len(t, m.Snapshot().ZeroResults, maxZeroResultQueries)
}

func TestAnalyticsSink(t *testing.T) {
	sink, err := OpenAnalytics(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	sink.Emit(QueryEvent{Query: "الصلاه", Mode: "hybrid", ResultCount: 3, Latency: 42 * time.Millisecond})
	sink.Emit(QueryEvent{Query: "الزكاه", Mode: "semantic", Refined: true, ResultCount: 1})

	require.Eventually(t, func() bool {
		n, err := sink.Count(context.Background())
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond, "detached writes eventually land")
}

func TestNilSinkAndMetrics(t *testing.T) {
	var sink *AnalyticsSink
	sink.Emit(QueryEvent{})

	var m *QueryMetrics
	m.Record(QueryEvent{})
}
