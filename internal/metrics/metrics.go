package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	TradesExecuted      *prometheus.CounterVec
	TradeFailures       *prometheus.CounterVec
	TradeDuration       prometheus.Histogram
	FeedPublishFailures prometheus.Counter
	ValuationFallbacks  prometheus.Counter
	OracleCacheHits     prometheus.Counter
	OracleCacheMisses   prometheus.Counter
	OracleStaleServes   prometheus.Counter
}

func New(namespace string) *Metrics {
	m := &Metrics{
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Successful trade executions by side",
		}, []string{"side"}),
		TradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_failures_total",
			Help:      "Rejected or failed trades by reason",
		}, []string{"reason"}),
		TradeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_duration_seconds",
			Help:      "Trade execution latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		FeedPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_publish_failures_total",
			Help:      "Best-effort trade post publishes that failed",
		}),
		ValuationFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_fallbacks_total",
			Help:      "Holdings valued at cost basis because no quote resolved",
		}),
		OracleCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_cache_hits_total",
			Help:      "Quote lookups served from cache",
		}),
		OracleCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_cache_misses_total",
			Help:      "Quote lookups that went upstream",
		}),
		OracleStaleServes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_stale_serves_total",
			Help:      "Quote lookups served stale after an upstream failure",
		}),
	}

	prometheus.MustRegister(
		m.TradesExecuted,
		m.TradeFailures,
		m.TradeDuration,
		m.FeedPublishFailures,
		m.ValuationFallbacks,
		m.OracleCacheHits,
		m.OracleCacheMisses,
		m.OracleStaleServes,
	)
	return m
}

type HealthFunc func(ctx context.Context) error

// StartServer exposes /metrics and /healthz on a sidecar port. Run in
// the service main; the returned server is shut down by the caller.
func StartServer(addr string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if healthFn != nil {
			if err := healthFn(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
