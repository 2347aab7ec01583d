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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(role, decision string)
	RecordLockout(role string)
	RecordVerificationCode(sent bool)
	RecordNotificationFailure(kind string)
	RecordDocumentUpload(stage string)
	RecordReview(status string)
	RecordImportedRows(kind string, count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            *prometheus.CounterVec
	lockouts          *prometheus.CounterVec
	verificationCodes *prometheus.CounterVec
	notifyFail        *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	reviews           *prometheus.CounterVec
	importedRows      *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_login_attempts_total",
			Help: "ロール・判定結果別のログイン試行数",
		}, []string{"role", "decision"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_lockouts_total",
			Help: "ロール別のアカウントロック発生数",
		}, []string{"role"}),
		verificationCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_verification_codes_total",
			Help: "認証コード送信の結果別件数",
		}, []string{"result"}),
		notifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_notification_failures_total",
			Help: "種類別のメール通知失敗数",
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_documents_uploaded_total",
			Help: "ステージ別の書類アップロード数",
		}, []string{"stage"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_document_reviews_total",
			Help: "審査結果別の書類審査数",
		}, []string{"status"}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_imported_rows_total",
			Help: "種類別のExcel取込行数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estadias_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "estadias_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.lockouts,
		c.verificationCodes,
		c.notifyFail,
		c.uploads,
		c.reviews,
		c.importedRows,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン試行の判定結果を記録する。
func (c *Collector) RecordLogin(role, decision string) {
	c.logins.WithLabelValues(role, decision).Inc()
}

// RecordLockout はアカウントロックの発生を記録する。
func (c *Collector) RecordLockout(role string) {
	c.lockouts.WithLabelValues(role).Inc()
}

// RecordVerificationCode は認証コード送信の成否を記録する。
func (c *Collector) RecordVerificationCode(sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	c.verificationCodes.WithLabelValues(result).Inc()
}

// RecordNotificationFailure はメール通知の失敗を記録する。
func (c *Collector) RecordNotificationFailure(kind string) {
	c.notifyFail.WithLabelValues(kind).Inc()
}

// RecordDocumentUpload は書類アップロードを記録する。
func (c *Collector) RecordDocumentUpload(stage string) {
	c.uploads.WithLabelValues(stage).Inc()
}

// RecordReview は書類審査を記録する。
func (c *Collector) RecordReview(status string) {
	c.reviews.WithLabelValues(status).Inc()
}

// RecordImportedRows はExcel取込の行数を記録する。
func (c *Collector) RecordImportedRows(kind string, count int) {
	c.importedRows.WithLabelValues(kind).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordLogin(string, string) {}
func (Nop) RecordLockout(string) {}
func (Nop) RecordVerificationCode(bool) {}
func (Nop) RecordNotificationFailure(string) {}
func (Nop) RecordDocumentUpload(string) {}
func (Nop) RecordReview(string) {}
func (Nop) RecordImportedRows(string, int) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
