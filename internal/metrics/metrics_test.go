package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tsunagu/internal/model"
)

func TestCollector_RecordsAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	collector.RecordFeedRequest(120 * time.Millisecond)
	collector.RecordSourcePosts(model.FeedSourceSocial, 42)
	collector.RecordSourcePosts(model.FeedSourceNearby, 7)
	collector.RecordCacheHit()
	collector.RecordCacheMiss()
	collector.RecordCacheMiss()
	collector.RecordPostCreated(model.ContentTypeProduct)
	collector.RecordStoryCreated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()

	wantLines := []string{
		`tsunagu_feed_source_posts_total{source="social"} 42`,
		`tsunagu_feed_source_posts_total{source="nearby"} 7`,
		`tsunagu_feed_cache_hit_total 1`,
		`tsunagu_feed_cache_miss_total 2`,
		`tsunagu_posts_created_total{content_type="product"} 1`,
		`tsunagu_stories_created_total 1`,
	}
	for _, want := range wantLines {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if !strings.Contains(body, "tsunagu_feed_latency_seconds_count 1") {
		t.Error("metrics output missing feed latency observation")
	}
}
