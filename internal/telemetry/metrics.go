// Package telemetry aggregates in-process query metrics and persists
// fire-and-forget analytics events to a local sqlite sink. Nothing in this
// package may delay or fail a search response.
package telemetry

import (
	"sync"
	"time"
)

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Mode        string
	Refined     bool
	ResultCount int
	AyahCount   int
	HadithCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// latencyBuckets are the histogram edges in milliseconds.
var latencyBuckets = []int64{50, 200, 500, 2000}

// QueryMetrics aggregates counters across requests.
type QueryMetrics struct {
	mu          sync.Mutex
	total       int64
	zeroResults []string
	byMode      map[string]int64
	latencyHist []int64
}

// maxZeroResultQueries bounds the zero-result ring.
const maxZeroResultQueries = 100

// NewQueryMetrics creates an empty collector.
func NewQueryMetrics() *QueryMetrics {
	return &QueryMetrics{
		byMode:      make(map[string]int64),
		latencyHist: make([]int64, len(latencyBuckets)+1),
	}
}

// Record folds one event into the aggregates.
func (m *QueryMetrics) Record(ev QueryEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.byMode[ev.Mode]++

	if ev.ResultCount == 0 && ev.AyahCount == 0 && ev.HadithCount == 0 {
		m.zeroResults = append(m.zeroResults, ev.Query)
		if len(m.zeroResults) > maxZeroResultQueries {
			m.zeroResults = m.zeroResults[1:]
		}
	}

	ms := ev.Latency.Milliseconds()
	idx := len(latencyBuckets)
	for i, edge := range latencyBuckets {
		if ms <= edge {
			idx = i
			break
		}
	}
	m.latencyHist[idx]++
}

// Snapshot is a point-in-time copy of the aggregates.
type Snapshot struct {
	Total       int64
	ByMode      map[string]int64
	ZeroResults []string
	LatencyHist []int64
}

// Snapshot copies the current aggregates.
func (m *QueryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Total:       m.total,
		ByMode:      make(map[string]int64, len(m.byMode)),
		ZeroResults: append([]string(nil), m.zeroResults...),
		LatencyHist: append([]int64(nil), m.latencyHist...),
	}
	for k, v := range m.byMode {
		s.ByMode[k] = v
	}
	return s
}
