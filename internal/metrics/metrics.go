// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ゲートミドルウェア、読み物ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(flow, outcome string)
	RecordCooldownRejected(action string)
	RecordGateDecision(decision string)
	RecordFetchSuccess(feedURL string)
	RecordFetchFailure(feedURL string, reason string)
	RecordParseFailure(feedURL string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcomes     *prometheus.CounterVec
	cooldownRejected *prometheus.CounterVec
	gateDecisions    *prometheus.CounterVec
	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	parseFail        prometheus.Counter
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	itemsUpserted    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_auth_requests_total",
			Help: "認証フロー別・結果別のリクエスト数",
		}, []string{"flow", "outcome"}),
		cooldownRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_cooldown_rejected_total",
			Help: "クールダウン中のため拒否された再送要求の数",
		}, []string{"action"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_gate_decisions_total",
			Help: "保護ページのゲート判定結果の数",
		}, []string{"decision"}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_reading_fetch_success_total",
			Help: "読み物フィード取得成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_reading_fetch_fail_total",
			Help: "読み物フィード取得失敗の合計数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_reading_parse_fail_total",
			Help: "読み物フィードのパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_reading_http_status_total",
			Help: "読み物フィード取得時のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "learnhub_reading_fetch_latency_seconds",
			Help:    "読み物フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_reading_items_upserted_total",
			Help: "保存された読み物記事の合計数",
		}),
	}

	reg.MustRegister(
		c.authOutcomes,
		c.cooldownRejected,
		c.gateDecisions,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.itemsUpserted,
	)

	return c
}

// RecordAuthOutcome は認証フローの結果を記録する。
// outcomeは "success" またはエラーコード。
func (c *Collector) RecordAuthOutcome(flow, outcome string) {
	c.authOutcomes.WithLabelValues(flow, outcome).Inc()
}

// RecordCooldownRejected はクールダウンによる拒否を記録する。
func (c *Collector) RecordCooldownRejected(action string) {
	c.cooldownRejected.WithLabelValues(action).Inc()
}

// RecordGateDecision はゲート判定結果を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordFetchSuccess はフィード取得成功を記録する。
func (c *Collector) RecordFetchSuccess(feedURL string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフィード取得失敗を記録する。
func (c *Collector) RecordFetchFailure(feedURL string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(feedURL string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItemsUpserted は保存された記事数を記録する。
func (c *Collector) RecordItemsUpserted(count int) {
	c.itemsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
