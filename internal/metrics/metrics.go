// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/tsunagu/internal/feed"
	"github.com/hitoshi/tsunagu/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// feed.MetricsRecorderを実装し、フィード集約とキャッシュの状態を記録する。
type Collector struct {
	feedLatency    prometheus.Histogram
	sourcePosts    *prometheus.CounterVec
	cacheHit       prometheus.Counter
	cacheMiss      prometheus.Counter
	postsCreated   *prometheus.CounterVec
	storiesCreated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsunagu_feed_latency_seconds",
			Help:    "ホームフィード生成のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sourcePosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsunagu_feed_source_posts_total",
			Help: "ソース別に取得した候補投稿の合計数",
		}, []string{"source"}),
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsunagu_feed_cache_hit_total",
			Help: "フィードキャッシュヒットの合計数",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsunagu_feed_cache_miss_total",
			Help: "フィードキャッシュミスの合計数",
		}),
		postsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsunagu_posts_created_total",
			Help: "コンテンツ種別ごとの投稿作成の合計数",
		}, []string{"content_type"}),
		storiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsunagu_stories_created_total",
			Help: "ストーリー作成の合計数",
		}),
	}

	reg.MustRegister(
		c.feedLatency,
		c.sourcePosts,
		c.cacheHit,
		c.cacheMiss,
		c.postsCreated,
		c.storiesCreated,
	)

	return c
}

// RecordFeedRequest はフィード生成のレイテンシを記録する。
func (c *Collector) RecordFeedRequest(duration time.Duration) {
	c.feedLatency.Observe(duration.Seconds())
}

// RecordSourcePosts はソース別の候補投稿数を記録する。
func (c *Collector) RecordSourcePosts(source model.FeedSource, count int) {
	c.sourcePosts.WithLabelValues(string(source)).Add(float64(count))
}

// RecordCacheHit はフィードキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHit.Inc()
}

// RecordCacheMiss はフィードキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMiss.Inc()
}

// RecordPostCreated は投稿作成をコンテンツ種別ラベル付きで記録する。
func (c *Collector) RecordPostCreated(contentType model.ContentType) {
	c.postsCreated.WithLabelValues(string(contentType)).Inc()
}

// RecordStoryCreated はストーリー作成を記録する。
func (c *Collector) RecordStoryCreated() {
	c.storiesCreated.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ feed.MetricsRecorder = (*Collector)(nil)
