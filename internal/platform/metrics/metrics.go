// Package metrics exports task lifecycle events as prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/taskgate/internal/events"
)

const namespace = "taskgate"

// Collector is an events.EventHandler that counts lifecycle events, tracks
// runs in flight and observes run durations.
type Collector struct {
	eventsTotal *prometheus.CounterVec
	inFlight    prometheus.Gauge
	duration    *prometheus.HistogramVec

	mu      sync.Mutex
	started map[uuid.UUID]time.Time
}

var _ events.EventHandler = (*Collector)(nil)

// NewCollector registers the task metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "events_total",
			Help:      "Task lifecycle events, labelled by kind.",
		}, []string{"kind"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "inflight",
			Help:      "Runs started whose outcome has not been decided.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "run_duration_seconds",
			Help:      "Time from start to outcome, labelled by terminal kind.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		started: make(map[uuid.UUID]time.Time),
	}
}

// HandleEvent implements events.EventHandler.
func (c *Collector) HandleEvent(ctx context.Context, event *events.LifecycleEvent) error {
	c.eventsTotal.WithLabelValues(event.Kind.String()).Inc()

	// killed ids belong to runs of a previous process
	if event.RunID == uuid.Nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case event.Kind == events.KindStarted:
		c.started[event.RunID] = event.CreatedAt
		c.inFlight.Inc()
	case event.Kind.Terminal():
		startedAt, ok := c.started[event.RunID]
		if !ok {
			return nil
		}
		delete(c.started, event.RunID)
		c.inFlight.Dec()
		c.duration.WithLabelValues(event.Kind.String()).Observe(event.CreatedAt.Sub(startedAt).Seconds())
	}
	return nil
}

// StartServer serves /metrics for gatherer and a /healthz probe on addr until
// ctx is cancelled.
func StartServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}()
}
