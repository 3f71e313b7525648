// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"visitorintel/api/config"
	"visitorintel/api/database"
	"visitorintel/api/enrich"
	"visitorintel/api/handlers"
	"visitorintel/api/intel"
	"visitorintel/api/logger"
	"visitorintel/api/metrics"
	"visitorintel/api/middleware"
	"visitorintel/api/publish"
	"visitorintel/api/store"
	"visitorintel/api/tracking"
	"visitorintel/api/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.Config{Level: cfg.App.LogLevel, Format: cfg.App.LogFormat})
	defer logger.Sync()

	if cfg.App.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	ctx := context.Background()

	// --- PostgreSQL: system of record ---
	dbClient, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	if err := database.Migrate(dbClient.DB); err != nil {
		logger.Fatalf("Failed to migrate PostgreSQL schema: %v", err)
	}

	// --- Redis: geo cache and label allocator (optional) ---
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer rdb.Close()
	}

	visitorStore := store.NewVisitorStore(dbClient.DB)
	userStore := store.NewUserStore(dbClient.DB)

	var publishers []publish.Publisher

	// --- ClickHouse: analytics warehouse (optional) ---
	var statsStore handlers.StatsStore
	if cfg.ClickHouse.Enabled() {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Fatalf("Failed to initialize ClickHouse database: %v", err)
		}
		defer chClient.Close()

		analyticsStore := store.NewAnalyticsStore(chClient)
		if err := analyticsStore.EnsureSchema(ctx); err != nil {
			logger.Fatalf("Failed to prepare ClickHouse schema: %v", err)
		}
		statsStore = analyticsStore
		publishers = append(publishers, analyticsStore)
	} else {
		logger.Infof("CLICKHOUSE_HOST not set; stats endpoints are disabled")
	}

	if cfg.Airtable.Enabled() {
		publishers = append(publishers, publish.NewAirtable(cfg.Airtable.URL, cfg.Airtable.Token, cfg.Airtable.BaseID, cfg.Airtable.Table))
	}
	if cfg.Kafka.Enabled() {
		kafkaPublisher := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warnf("Kafka writer close: %v", err)
			}
		}()
		publishers = append(publishers, kafkaPublisher)
	}
	fanout := publish.NewFanout(publishers...)
	logger.Infof("Visit publishers enabled: %d", fanout.Len())

	// --- Identity engine ---
	var alloc intel.Allocator
	switch cfg.Intel.Allocator {
	case config.AllocatorRedis:
		alloc = store.NewRedisAllocator(rdb, visitorStore)
	default:
		alloc = intel.NewCountAllocator(visitorStore)
	}
	resolver := intel.NewResolver(visitorStore, alloc, cfg.Intel.Similarity)
	deriver := intel.NewDeriver(visitorStore, cfg.Intel.HomeCountry)
	geo := enrich.NewIPInfo(cfg.IPInfo.URL, cfg.IPInfo.Token, rdb, cfg.IPInfo.CacheTTL)
	tracker := tracking.NewService(visitorStore, resolver, deriver, geo, fanout)

	jwtManager := utils.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore, jwtManager, cfg.App.GinMode == gin.ReleaseMode)
	visitHandlers := handlers.NewVisitHandlers(tracker)
	dashboardHandlers := handlers.NewDashboardHandlers(visitorStore)
	statsHandlers := handlers.NewStatsHandlers(statsStore)

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.Server.FrontendOrigin))

	r.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := dbClient.DB.PingContext(hctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.App.Version})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Tracking script endpoints (public)
		api.POST("/log-visit", visitHandlers.LogVisit)
		api.POST("/log-event", visitHandlers.LogEvent)
		api.POST("/log-exit", visitHandlers.LogExit)

		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(jwtManager, cfg.Auth.APIKey))
		{
			dashboard := protected.Group("/dashboard")
			{
				dashboard.GET("/visits", dashboardHandlers.Visits)
				dashboard.GET("/events", dashboardHandlers.Events)
				dashboard.GET("/derived", dashboardHandlers.Derived)
			}

			stats := protected.Group("/stats")
			{
				stats.GET("/visit-counts", statsHandlers.GetVisitCountsOverTime)
				stats.GET("/unique-visitors", statsHandlers.GetUniqueVisitorsOverTime)
				stats.GET("/top-pages", statsHandlers.GetTopPages)
				stats.GET("/bounce-rate", statsHandlers.GetBounceRate)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("%s %s listening on :%s", cfg.App.Name, cfg.App.Version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Infof("Server exiting.")
}
