// Package metrics exposes prometheus instrumentation for agent runs.
//
// All Collector methods are safe on a nil receiver so components can be
// built without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records agent, planner, tool and pool metrics.
type Collector struct {
	turnsTotal          prometheus.Counter
	plannerCallsTotal   *prometheus.CounterVec
	plannerCallDuration prometheus.Histogram
	toolCallsTotal      *prometheus.CounterVec
	tokensTotal         *prometheus.CounterVec
	costTotal           prometheus.Counter
	terminationsTotal   *prometheus.CounterVec
	fanOutSize          *prometheus.HistogramVec
	sessionsInUse       prometheus.Gauge
	sessionWait         prometheus.Histogram
	fallbackRunsTotal   *prometheus.CounterVec
	requestDuration     prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the forage metrics with reg. A nil reg uses the
// default prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.turnsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_turns_total",
		Help:      "Total number of planner turns started",
	})

	c.plannerCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_calls_total",
			Help:      "Total number of planner calls by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	c.plannerCallDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "planner_call_duration_seconds",
		Help:      "Planner call duration in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of browser actions by action and status",
		},
		[]string{"action", "status"},
	)

	c.tokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_tokens_total",
			Help:      "Total number of planner tokens by kind",
		},
		[]string{"kind"},
	)

	c.costTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "planner_cost_usd_total",
		Help:      "Total planner cost in USD",
	})

	c.terminationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_terminations_total",
			Help:      "Total number of agent runs by stop reason",
		},
		[]string{"reason"},
	)

	c.fanOutSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_size",
			Help:      "Number of parallel sub-tasks per fan-out",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 16},
		},
		[]string{"kind"},
	)

	c.sessionsInUse = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions_in_use",
		Help:      "Number of pool sessions currently held",
	})

	c.sessionWait = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "browser_session_wait_seconds",
		Help:      "Time spent waiting for a pool permit",
		Buckets:   prometheus.DefBuckets,
	})

	c.fallbackRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_runs_total",
			Help:      "Total number of fallback summarizer runs by mode and status",
		},
		[]string{"mode", "status"},
	)

	c.requestDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "End-to-end request duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	return c
}

// RecordTurn counts a planner turn.
func (c *Collector) RecordTurn() {
	if c == nil {
		return
	}
	c.turnsTotal.Inc()
}

// RecordPlannerCall records one planner call. purpose is "turn", "map",
// "reduce", "synthesis" or "vision".
func (c *Collector) RecordPlannerCall(purpose string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.plannerCallsTotal.WithLabelValues(purpose, status(err)).Inc()
	c.plannerCallDuration.Observe(duration.Seconds())
}

// RecordToolCall records one browser action.
func (c *Collector) RecordToolCall(action string, failed bool) {
	if c == nil {
		return
	}
	s := "success"
	if failed {
		s = "error"
	}
	c.toolCallsTotal.WithLabelValues(action, s).Inc()
}

// RecordUsage adds planner token counters and cost.
func (c *Collector) RecordUsage(input, output, cacheRead int, costUSD float64) {
	if c == nil {
		return
	}
	c.tokensTotal.WithLabelValues("input").Add(float64(input))
	c.tokensTotal.WithLabelValues("output").Add(float64(output))
	c.tokensTotal.WithLabelValues("cache_read").Add(float64(cacheRead))
	if costUSD > 0 {
		c.costTotal.Add(costUSD)
	}
}

// RecordTermination counts an agent run ending with reason.
func (c *Collector) RecordTermination(reason string) {
	if c == nil {
		return
	}
	c.terminationsTotal.WithLabelValues(reason).Inc()
}

// RecordFanOut observes the width of a parallel fan-out. kind is "fetch" or "map".
func (c *Collector) RecordFanOut(kind string, size int) {
	if c == nil {
		return
	}
	c.fanOutSize.WithLabelValues(kind).Observe(float64(size))
}

// SetSessionsInUse sets the pool in-use gauge.
func (c *Collector) SetSessionsInUse(n int) {
	if c == nil {
		return
	}
	c.sessionsInUse.Set(float64(n))
}

// RecordSessionWait observes time spent blocked on pool admission.
func (c *Collector) RecordSessionWait(d time.Duration) {
	if c == nil {
		return
	}
	c.sessionWait.Observe(d.Seconds())
}

// RecordFallback records a summarizer run. mode is "single" or "map_reduce".
func (c *Collector) RecordFallback(mode string, ok bool) {
	if c == nil {
		return
	}
	s := "success"
	if !ok {
		s = "error"
	}
	c.fallbackRunsTotal.WithLabelValues(mode, s).Inc()
}

// RecordRequest observes an end-to-end request duration.
func (c *Collector) RecordRequest(d time.Duration) {
	if c == nil {
		return
	}
	c.requestDuration.Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
