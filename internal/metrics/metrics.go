// Package metrics exposes Prometheus collectors for the store, the job
// worker and the HTTP surface.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"classroom/internal/recordstore"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	StoreOps      *prometheus.CounterVec
	StoreLatency  *prometheus.HistogramVec
	Subscriptions prometheus.Gauge
	Jobs          *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_store_operations_total",
			Help: "Store backend operations by op and result.",
		}, []string{"op", "result"}),
		StoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroom_store_operation_seconds",
			Help:    "Store backend operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_store_subscriptions_active",
			Help: "Open subscriptions.",
		}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_jobs_processed_total",
			Help: "Queue jobs handled by type and result.",
		}, []string{"type", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveJob counts one handled job.
func (m *Metrics) ObserveJob(jobType string, err error) {
	m.Jobs.WithLabelValues(jobType, result(err)).Inc()
}

// GinMiddleware counts requests by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(recordstore.KindOf(err))
}

// Instrument wraps b so every call is counted and timed.
func (m *Metrics) Instrument(b recordstore.Backend) recordstore.Backend {
	return &instrumented{next: b, m: m}
}

type instrumented struct {
	next recordstore.Backend
	m    *Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	i.m.StoreOps.WithLabelValues(op, result(err)).Inc()
}

func (i *instrumented) Get(ctx context.Context, p recordstore.Path) (any, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, p)
	i.observe("get", start, err)
	return v, err
}

func (i *instrumented) Set(ctx context.Context, p recordstore.Path, v any) error {
	start := time.Now()
	err := i.next.Set(ctx, p, v)
	i.observe("set", start, err)
	return err
}

func (i *instrumented) Update(ctx context.Context, base recordstore.Path, writes []recordstore.Write) error {
	start := time.Now()
	err := i.next.Update(ctx, base, writes)
	i.observe("update", start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, p recordstore.Path) error {
	start := time.Now()
	err := i.next.Delete(ctx, p)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Push(ctx context.Context, p recordstore.Path, v any) (string, error) {
	start := time.Now()
	key, err := i.next.Push(ctx, p, v)
	i.observe("push", start, err)
	return key, err
}

func (i *instrumented) Close() error { return i.next.Close() }
