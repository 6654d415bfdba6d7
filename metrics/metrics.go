package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gloomers",
			Name:      "messages_total",
			Help:      "Protocol messages handled, by body type and direction (in/out).",
		},
		[]string{"node", "type", "direction"},
	)

	HandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gloomers",
			Name:      "handle_duration_seconds",
			Help:      "Time spent dispatching one inbound message.",
			// 10us .. ~80ms
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
		},
		[]string{"type"},
	)

	GossipRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gloomers",
			Name:      "gossip_rounds_total",
			Help:      "Anti-entropy rounds run.",
		},
		[]string{"node"},
	)

	GossipValuesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gloomers",
			Name:      "gossip_values_sent_total",
			Help:      "Values pushed to neighbors by anti-entropy rounds.",
		},
		[]string{"node"},
	)

	KnownValues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gloomers",
			Name:      "known_values",
			Help:      "Size of the node's replicated value set.",
		},
		[]string{"node"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gloomers",
			Name:      "queue_depth",
			Help:      "Work items waiting for the node's consumer.",
		},
		[]string{"node"},
	)

	DroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gloomers",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped by the simulated network or a failed send.",
		},
		[]string{"reason"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gloomers",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesTotal,
		HandleDuration,
		GossipRoundsTotal,
		GossipValuesSent,
		KnownValues,
		QueueDepth,
		DroppedTotal,
		uptime,
	)
}

// Handler exposes the registry. Mount it with mux.Handle("/metrics", metrics.Handler()).
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is done. Standard output belongs to
// the protocol, so this is the only way to observe a running node from outside.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
