package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroom/internal/applog"
	"classroom/internal/attendance"
	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/internal/cloudinary"
	"classroom/internal/config"
	"classroom/internal/handler"
	"classroom/internal/httpmiddleware"
	"classroom/internal/media"
	"classroom/internal/metrics"
	"classroom/internal/queue"
	"classroom/internal/recordstore"
	"classroom/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := cfg.Validate(); err != nil {
		applog.Fatalf("config: %v", err)
	}

	if err := applog.Init(context.Background(), cfg.LogProjectID, cfg.LogName); err != nil {
		applog.Printf("cloud logging disabled: %v", err)
	}
	defer applog.Close()

	if err := runHTTP(cfg); err != nil {
		applog.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	res, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	records := recordstore.New(m.Instrument(res.Backend),
		recordstore.WithFeed(res.Feed),
		recordstore.WithGauge(m.Subscriptions),
	)
	defer records.Close()

	q, err := openQueue(ctx, cfg, res)
	if err != nil {
		return err
	}
	if c, ok := q.(io.Closer); ok {
		defer c.Close()
	}

	classes := classroom.NewService(records,
		classroom.WithDefaultImage(cfg.DefaultCourseImage),
		classroom.WithLinkBase(cfg.CourseLinkBase),
		classroom.WithImageOffloader(media.NewPublisher(q)),
	)
	att := attendance.NewService(attendance.NewRepository(records), cfg.Location())

	verifier, err := newVerifier(ctx, cfg, res)
	if err != nil {
		return err
	}

	var opts []handler.Option
	if cfg.CloudinaryEnabled() {
		opts = append(opts, handler.WithUploader(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)))
		applog.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		applog.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}
	if cfg.AuthProvider == "jwt" && cfg.DevSessions {
		opts = append(opts, handler.WithSessions(handler.Sessions{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		}))
		applog.Println("WARNING: development sessions enabled at /v1/sessions")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(res.Redis.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
		Formatter: httpmiddleware.LogFormatter("access_token"),
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(m.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "store": cfg.StoreBackend}
		if res.DB != nil {
			ok := res.DB.Healthy(c.Request.Context())
			body["db"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if res.Redis != nil {
			ok := res.Redis.Healthy(c.Request.Context())
			body["redis"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	handler.New(classes, att, opts...).Register(r, verifier, httpmiddleware.RateLimit(limiter))

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket watches are long-lived
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		applog.Printf("Starting server on :%s (store=%s feed=%s queue=%s auth=%s)",
			cfg.HTTPPort, cfg.StoreBackend, cfg.FeedBackend, cfg.QueueBackend, cfg.AuthProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	applog.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.Printf("Server forced shutdown: %v", err)
	}

	applog.Println("Server exited")
	return nil
}

func newVerifier(ctx context.Context, cfg config.App, res *store.Resources) (auth.Verifier, error) {
	if cfg.AuthProvider == "firebase" {
		return auth.NewFirebaseVerifier(ctx, res.Firebase)
	}
	return auth.JWTVerifier{Issuer: cfg.JWTIssuer, SigningKey: cfg.JWTSigningKey}, nil
}

func openQueue(ctx context.Context, cfg config.App, res *store.Resources) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case "redis":
		return queue.NewRedisQueue(res.Redis.Client, cfg.QueueKey), nil
	case "pubsub":
		return queue.NewPubSubQueue(ctx, cfg.FirebaseProjectID, cfg.PubSubTopic, cfg.PubSubSubscription)
	}
	// memory: the API process has no consumer, so offload jobs only
	// run when API and worker share a real queue.
	return queue.NewInMemory(64), nil
}
