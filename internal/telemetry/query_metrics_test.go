package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_Add_SingleItem(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")

	items := buf.Items()
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "query1", items[0])
}

func TestCircularBuffer_Add_MultipleItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")

	items := buf.Items()
	assert.Equal(t, []string{"query1", "query2", "query3"}, items)
}

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // evicts query1
	buf.Add("query5") // evicts query2

	items := buf.Items()
	assert.Equal(t, []string{"query3", "query4", "query5"}, items)
}

func TestCircularBuffer_Size(t *testing.T) {
	buf := NewCircularBuffer[string](5)

	assert.Equal(t, 0, buf.Size())

	buf.Add("a")
	assert.Equal(t, 1, buf.Size())

	buf.Add("b")
	buf.Add("c")
	assert.Equal(t, 3, buf.Size())

	buf.Add("d")
	buf.Add("e")
	buf.Add("f") // evicts "a"
	assert.Equal(t, 5, buf.Size())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Equal(t, 0, len(items))
	assert.NotNil(t, items)
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, len(buf.Items()))
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{25 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

func TestQueryMetrics_Record_IncrementsCounts(t *testing.T) {
	m := NewQueryMetrics(nil) // nil store = in-memory only
	defer m.Close()

	m.Record(QueryEvent{
		Query:       "sunset over the ocean",
		QueryType:   QueryTypeWeighted,
		ResultCount: 5,
		Latency:     25 * time.Millisecond,
		Timestamp:   time.Now(),
	})

	m.Record(QueryEvent{
		Query:       "acoustic guitar solo",
		QueryType:   QueryTypeRRF,
		ResultCount: 3,
		Latency:     15 * time.Millisecond,
		Timestamp:   time.Now(),
	})

	m.Record(QueryEvent{
		Query:       "crowd cheering at a concert",
		QueryType:   QueryTypeWeighted,
		ResultCount: 8,
		Latency:     50 * time.Millisecond,
		Timestamp:   time.Now(),
	})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.QueryTypeCounts[QueryTypeWeighted])
	assert.Equal(t, int64(1), snapshot.QueryTypeCounts[QueryTypeRRF])
	assert.Equal(t, int64(3), snapshot.TotalQueries)
}

func TestQueryMetrics_Record_TracksTopTerms(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset mountains", QueryType: QueryTypeWeighted, ResultCount: 3, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset city", QueryType: QueryTypeWeighted, ResultCount: 2, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "mountains city", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()

	var sunsetCount int64
	for _, tc := range snapshot.TopTerms {
		if tc.Term == "sunset" {
			sunsetCount = tc.Count
			break
		}
	}
	assert.Equal(t, int64(3), sunsetCount)
}

func TestQueryMetrics_Record_CapturesZeroResults(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "purple elephant dancing", QueryType: QueryTypeWeighted, ResultCount: 0, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset over water", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "submarine in the desert", QueryType: QueryTypeRRF, ResultCount: 0, Latency: 15 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, 2, len(snapshot.ZeroResultQueries))
	assert.Contains(t, snapshot.ZeroResultQueries, "purple elephant dancing")
	assert.Contains(t, snapshot.ZeroResultQueries, "submarine in the desert")
}

func TestQueryMetrics_Record_TracksDegraded(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "beach waves", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "beach waves", QueryType: QueryTypeWeighted, ResultCount: 3, Degraded: true, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "city lights", QueryType: QueryTypeDynamic, ResultCount: 2, Degraded: true, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.DegradedCount)
	assert.InDelta(t, 66.67, snapshot.DegradedPercentage(), 0.01)
}

func TestQueryMetrics_Record_BucketsLatency(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "fast", QueryType: QueryTypeRRF, ResultCount: 1, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "medium1", QueryType: QueryTypeRRF, ResultCount: 1, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "medium2", QueryType: QueryTypeRRF, ResultCount: 1, Latency: 35 * time.Millisecond})
	m.Record(QueryEvent{Query: "slow", QueryType: QueryTypeRRF, ResultCount: 1, Latency: 200 * time.Millisecond})
	m.Record(QueryEvent{Query: "very slow", QueryType: QueryTypeRRF, ResultCount: 1, Latency: 1 * time.Second})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(2), snapshot.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP500])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP1000])
}

func TestQueryMetrics_Concurrent_ThreadSafe(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	numGoroutines := 100
	eventsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				m.Record(QueryEvent{
					Query:       "test query",
					QueryType:   QueryTypeWeighted,
					ResultCount: 5,
					Latency:     20 * time.Millisecond,
					Timestamp:   time.Now(),
				})
			}
		}()
	}

	wg.Wait()

	snapshot := m.Snapshot()
	assert.Equal(t, int64(numGoroutines*eventsPerGoroutine), snapshot.TotalQueries)
}

func TestQueryMetrics_Snapshot_ReturnsAccurateCounts(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	for i := 0; i < 10; i++ {
		m.Record(QueryEvent{Query: "weighted query", QueryType: QueryTypeWeighted, ResultCount: i, Latency: 10 * time.Millisecond})
	}
	for i := 0; i < 5; i++ {
		m.Record(QueryEvent{Query: "rrf query", QueryType: QueryTypeRRF, ResultCount: i, Latency: 10 * time.Millisecond})
	}
	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "dynamic query", QueryType: QueryTypeDynamic, ResultCount: i, Latency: 10 * time.Millisecond})
	}

	snapshot := m.Snapshot()

	assert.Equal(t, int64(10), snapshot.QueryTypeCounts[QueryTypeWeighted])
	assert.Equal(t, int64(5), snapshot.QueryTypeCounts[QueryTypeRRF])
	assert.Equal(t, int64(3), snapshot.QueryTypeCounts[QueryTypeDynamic])
	assert.Equal(t, int64(18), snapshot.TotalQueries)
}

func TestQueryMetrics_ZeroResultBuffer_MaintainsCapacity(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 5,
		FlushInterval:       0,
	})
	defer m.Close()

	for i := 0; i < 10; i++ {
		m.Record(QueryEvent{
			Query:       "miss" + string(rune('A'+i)),
			QueryType:   QueryTypeWeighted,
			ResultCount: 0,
			Latency:     10 * time.Millisecond,
		})
	}

	snapshot := m.Snapshot()
	assert.Equal(t, 5, len(snapshot.ZeroResultQueries))
	assert.Contains(t, snapshot.ZeroResultQueries, "missF")
	assert.Contains(t, snapshot.ZeroResultQueries, "missJ")
	assert.NotContains(t, snapshot.ZeroResultQueries, "missA")
}

func TestQueryMetrics_TopTerms_LRUEviction(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:    5,
		ZeroResultsCapacity: 100,
		FlushInterval:       0,
	})
	defer m.Close()

	m.Record(QueryEvent{Query: "alpha beta", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "gamma delta", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "epsilon zeta", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "eta theta", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "iota kappa", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.LessOrEqual(t, len(snapshot.TopTerms), 5)
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"sunset beach", []string{"sunset", "beach"}},
		{"SunsetBeach", []string{"sunsetbeach"}}, // lowercased
		{"  spaces  around  ", []string{"spaces", "around"}},
		{"", nil},
		{"a", nil},
		{"ab", nil},
		{"abc", []string{"abc"}}, // minimum length 3
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTerms(tt.query))
		})
	}
}

func TestQueryEvent_IsZeroResult(t *testing.T) {
	zeroResult := QueryEvent{Query: "missing", ResultCount: 0}
	hasResults := QueryEvent{Query: "found", ResultCount: 5}

	assert.True(t, zeroResult.IsZeroResult())
	assert.False(t, hasResults.IsZeroResult())
}

func TestQueryMetricsSnapshot_ZeroResultPercentage(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	// 2 zero-results out of 10 total = 20%
	for i := 0; i < 8; i++ {
		m.Record(QueryEvent{Query: "found", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	}
	for i := 0; i < 2; i++ {
		m.Record(QueryEvent{Query: "missed", QueryType: QueryTypeWeighted, ResultCount: 0, Latency: 10 * time.Millisecond})
	}

	snapshot := m.Snapshot()
	assert.InDelta(t, 20.0, snapshot.ZeroResultPercentage(), 0.01)
}

func TestQueryMetrics_FullLifecycle(t *testing.T) {
	m := NewQueryMetrics(nil)

	m.Record(QueryEvent{Query: "sunset over the ocean", QueryType: QueryTypeWeighted, ResultCount: 10, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "birds chirping", QueryType: QueryTypeRRF, ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "purple elephant", QueryType: QueryTypeDynamic, ResultCount: 0, Latency: 100 * time.Millisecond})

	snapshot := m.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, int64(3), snapshot.TotalQueries)
	assert.Equal(t, 1, len(snapshot.ZeroResultQueries))

	err := m.Close()
	require.NoError(t, err)

	// Record after close is a no-op, not a panic.
	m.Record(QueryEvent{Query: "after close", QueryType: QueryTypeWeighted, ResultCount: 1, Latency: 10 * time.Millisecond})
}

func TestQueryMetrics_ExactRepetition_DetectsRepeats(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "another query", QueryType: QueryTypeWeighted, ResultCount: 3, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(4), snapshot.TotalQueries)
	assert.Equal(t, int64(2), snapshot.ExactRepeatCount)
	assert.InDelta(t, 0.5, snapshot.ExactRepeatRate, 0.01)
}

func TestQueryMetrics_ExactRepetition_CaseInsensitive(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "Sunset Beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "SUNSET BEACH", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(3), snapshot.TotalQueries)
	assert.Equal(t, int64(2), snapshot.ExactRepeatCount)
}

func TestQueryMetrics_ExactRepetition_TrimWhitespace(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "sunset beach", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "  sunset beach  ", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.TotalQueries)
	assert.Equal(t, int64(1), snapshot.ExactRepeatCount)
}

func TestQueryMetrics_ExactRepetition_UniqueQueryCount(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "query a", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "query b", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "query c", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "query a", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "query b", QueryType: QueryTypeWeighted, ResultCount: 5, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(5), snapshot.TotalQueries)
	assert.Equal(t, int64(3), snapshot.UniqueQueryCount)
}

func TestQueryMetrics_SemanticSimilarity_DetectsSimilar(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:         100,
		ZeroResultsCapacity:      100,
		RecentQueriesCapacity:    500,
		RecentEmbeddingsCapacity: 10,
		SimilarityThreshold:      0.95,
	})
	defer m.Close()

	embed1 := []float32{1.0, 0.0, 0.0, 0.0}
	embed2 := []float32{0.99, 0.1, 0.0, 0.0} // very close to embed1
	embed3 := []float32{0.0, 1.0, 0.0, 0.0}  // different direction

	m.RecordQueryEmbedding(embed1)
	m.RecordQueryEmbedding(embed2)
	m.RecordQueryEmbedding(embed3)

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.SimilarQueryCount)
}

func TestQueryMetrics_SemanticSimilarity_EmptyEmbeddingIgnored(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.RecordQueryEmbedding(nil)
	m.RecordQueryEmbedding([]float32{})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(0), snapshot.SimilarQueryCount)
}

func TestQueryMetrics_SemanticSimilarity_BufferEviction(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:         100,
		ZeroResultsCapacity:      100,
		RecentQueriesCapacity:    500,
		RecentEmbeddingsCapacity: 3,
		SimilarityThreshold:      0.95,
	})
	defer m.Close()

	m.RecordQueryEmbedding([]float32{1.0, 0.0})
	m.RecordQueryEmbedding([]float32{0.0, 1.0})
	m.RecordQueryEmbedding([]float32{0.0, 0.0, 1.0})
	m.RecordQueryEmbedding([]float32{0.0, 0.0, 0.0, 1.0}) // evicts first

	// Similar to the evicted [1.0, 0.0], so no similarity should fire.
	m.RecordQueryEmbedding([]float32{0.99, 0.01})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(0), snapshot.SimilarQueryCount)
}

func TestEmbeddingSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, embeddingSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 0.0001)
	assert.InDelta(t, 0.0, embeddingSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0}), 0.0001)
	assert.Greater(t, embeddingSimilarity([]float32{1, 0, 0}, []float32{0.99, 0.1, 0}), 0.95)

	// Mismatched lengths and empty vectors yield 0.
	assert.Equal(t, 0.0, embeddingSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, embeddingSimilarity(nil, nil))
}

func TestRepetitionSummary(t *testing.T) {
	empty := &QueryMetricsSnapshot{TotalQueries: 0}
	assert.Equal(t, "No queries recorded", empty.RepetitionSummary())

	populated := &QueryMetricsSnapshot{
		TotalQueries:     100,
		ExactRepeatRate:  0.15,
		SimilarQueryRate: 0.08,
		UniqueQueryCount: 85,
	}
	summary := populated.RepetitionSummary()
	assert.Contains(t, summary, "exact=15.0%")
	assert.Contains(t, summary, "similar=8.0%")
	assert.Contains(t, summary, "unique=85")
}
