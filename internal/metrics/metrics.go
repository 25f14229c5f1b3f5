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
// APIクライアント、ハンドラー、ミドルウェアから利用する。
type MetricsCollector interface {
	ObserveAPICall(method, route string, status int, outcome string, duration time.Duration)
	RecordLogin(success bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiTimeouts prometheus.Counter
	logins      *prometheus.CounterVec
	httpStatus  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_api_requests_total",
			Help: "ローンAPI呼び出しの合計数（結果別）",
		}, []string{"method", "endpoint", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loandesk_api_request_duration_seconds",
			Help:    "ローンAPI呼び出しの所要時間（秒）",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "endpoint"}),
		apiTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loandesk_api_timeouts_total",
			Help: "タイムアウトで中断したローンAPI呼び出しの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_login_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandesk_http_responses_total",
			Help: "コンソールが返したHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiDuration,
		c.apiTimeouts,
		c.logins,
		c.httpStatus,
	)

	return c
}

// ObserveAPICall はローンAPI呼び出しの結果を記録する。apiclient.Observerを実装する。
func (c *Collector) ObserveAPICall(method, route string, _ int, outcome string, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, route, outcome).Inc()
	c.apiDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if outcome == "timeout" {
		c.apiTimeouts.Inc()
	}
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewStatusMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewStatusMiddleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.status)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
