package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroom/internal/applog"
	"classroom/internal/cloudinary"
	"classroom/internal/config"
	"classroom/internal/media"
	"classroom/internal/metrics"
	"classroom/internal/queue"
	"classroom/internal/recordstore"
	"classroom/internal/store"
)

// Worker consumes queue messages and moves inline images to the object store.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := applog.Init(ctx, cfg.LogProjectID, cfg.LogName+"-worker"); err != nil {
		applog.Printf("cloud logging disabled: %v", err)
	}
	defer applog.Close()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		applog.Println("shutdown signal received")
		cancel()
	}()

	if !cfg.CloudinaryEnabled() {
		applog.Fatal("worker needs CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET")
	}
	if cfg.QueueBackend == "memory" {
		applog.Println("WARNING: memory queue is not shared with the API; no jobs will arrive")
	}

	res, err := store.Open(ctx, cfg)
	if err != nil {
		applog.Fatalf("store open failed: %v", err)
	}
	defer res.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	records := recordstore.New(m.Instrument(res.Backend), recordstore.WithFeed(res.Feed), recordstore.WithGauge(m.Subscriptions))
	defer records.Close()

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		q = queue.NewRedisQueue(res.Redis.Client, cfg.QueueKey)
	case "pubsub":
		ps, err := queue.NewPubSubQueue(ctx, cfg.FirebaseProjectID, cfg.PubSubTopic, cfg.PubSubSubscription)
		if err != nil {
			applog.Fatalf("pubsub init failed: %v", err)
		}
		defer ps.Close()
		q = ps
	default:
		q = queue.NewInMemory(64)
	}

	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	offloader := media.NewOffloader(records, cdn)

	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Printf("metrics server: %v", err)
		}
	}()
	defer metricsSrv.Close()

	messages, err := q.Consume(ctx)
	if err != nil {
		applog.Fatalf("queue consume init failed: %v", err)
	}

	applog.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != media.JobType {
			applog.Printf("skipping message of type %q", msg.Type)
			m.ObserveJob(msg.Type, errors.New("unknown type"))
			continue
		}
		jobCtx, done := context.WithTimeout(ctx, time.Minute)
		err := offloader.Handle(jobCtx, msg)
		done()
		m.ObserveJob(msg.Type, err)
		if err != nil {
			applog.Printf("offload job failed: %v", err)
		}
	}

	applog.Println("worker stopped")
}
