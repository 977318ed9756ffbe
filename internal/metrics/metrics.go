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
// IdPクライアント、認証サービス、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordTokenVerification(outcome string)
	RecordOrphanedIdentity(stage string)
	RecordIdPRequest(op, outcome string)
	RecordIdPLatency(op string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations      *prometheus.CounterVec
	logins             *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	orphanedIdentities *prometheus.CounterVec
	idpRequests        *prometheus.CounterVec
	idpLatency         *prometheus.HistogramVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_registrations_total",
			Help: "結果別のユーザー登録数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_logins_total",
			Help: "結果別のログイン数",
		}, []string{"outcome"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_token_verifications_total",
			Help: "結果別のトークン検証数",
		}, []string{"outcome"}),
		orphanedIdentities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_orphaned_identities_total",
			Help: "ローカルプロフィールを持たないまま残ったIdP上のIdentity数",
		}, []string{"stage"}),
		idpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_idp_requests_total",
			Help: "操作・結果別のIdPリクエスト数",
		}, []string{"op", "outcome"}),
		idpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fitauth_idp_request_duration_seconds",
			Help:    "IdPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.tokenVerifications,
		c.orphanedIdentities,
		c.idpRequests,
		c.idpLatency,
		c.httpStatus,
	)

	return c
}

// RecordRegistration はユーザー登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordTokenVerification はトークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(outcome string) {
	c.tokenVerifications.WithLabelValues(outcome).Inc()
}

// RecordOrphanedIdentity は孤立したIdentityの発生を記録する。
func (c *Collector) RecordOrphanedIdentity(stage string) {
	c.orphanedIdentities.WithLabelValues(stage).Inc()
}

// RecordIdPRequest はIdPリクエストの結果を記録する。
func (c *Collector) RecordIdPRequest(op, outcome string) {
	c.idpRequests.WithLabelValues(op, outcome).Inc()
}

// RecordIdPLatency はIdPリクエストのレイテンシを記録する。
func (c *Collector) RecordIdPLatency(op string, duration time.Duration) {
	c.idpLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRegistration(string)              {}
func (Nop) RecordLogin(string)                     {}
func (Nop) RecordTokenVerification(string)         {}
func (Nop) RecordOrphanedIdentity(string)          {}
func (Nop) RecordIdPRequest(string, string)        {}
func (Nop) RecordIdPLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
