package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_send_total", Help: "Outbound send outcomes"},
		[]string{"provider", "result"},
	)
	SendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "zapgw_send_latency_seconds", Help: "Provider send latency"},
		[]string{"provider"},
	)
	// Delivery-log writes are best-effort; a silently broken log must still be
	// visible here.
	LogWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "zapgw_log_write_failures_total", Help: "Delivery log append failures"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_webhook_events_total", Help: "Normalized webhook events"},
		[]string{"provider", "kind"},
	)
	WebhookRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_webhook_rejected_total", Help: "Webhooks rejected before decoding"},
		[]string{"provider", "reason"},
	)
	Correlations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_correlation_total", Help: "Inbound correlation outcomes"},
		[]string{"outcome"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zapgw_rate_limited_total", Help: "Requests rejected by the rate limiter"},
		[]string{"endpoint"},
	)
	ReceiptReplays = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "zapgw_receipt_replays_total", Help: "Receipt side-table replay passes"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Sends, SendLatency, LogWriteFailures,
		WebhookEvents, WebhookRejected, Correlations, RateLimited, ReceiptReplays)
}
