package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderUpdatesCollectors(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	var r Recorder = m

	r.DocumentIndexed()
	r.DocumentIndexed()
	r.DocumentSkipped("unreadable")
	r.SegmentFlushed(2, 10*time.Millisecond)
	r.CommitCompleted(3, 2)
	r.SearchCompleted("miss", 0, time.Millisecond)
	r.SearchCompleted("hit", 4, time.Millisecond)
	r.SearchFailed("parse_error")
	r.CacheHit()
	r.CacheMiss()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsSkippedTotal.WithLabelValues("unreadable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentFlushedDocs))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("parse_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestNopDoesNotPanic(t *testing.T) {
	Nop.DocumentIndexed()
	Nop.SearchCompleted("miss", 1, time.Second)
	Nop.CommitCompleted(1, 1)
}
