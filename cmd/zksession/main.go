package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	quoteapp "github.com/wyfcoding/zksession/internal/quote/application"
	"github.com/wyfcoding/zksession/internal/quote/infrastructure/client"
	"github.com/wyfcoding/zksession/internal/quote/infrastructure/ledger"
	quotehttp "github.com/wyfcoding/zksession/internal/quote/interfaces/http"
	sessionapp "github.com/wyfcoding/zksession/internal/session/application"
	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/internal/session/infrastructure/messaging"
	"github.com/wyfcoding/zksession/internal/session/infrastructure/persistence/memory"
	"github.com/wyfcoding/zksession/internal/session/infrastructure/persistence/mysql"
	redisrepo "github.com/wyfcoding/zksession/internal/session/infrastructure/persistence/redis"
	sessionhttp "github.com/wyfcoding/zksession/internal/session/interfaces/http"
	"github.com/wyfcoding/zksession/pkg/cache"
	"github.com/wyfcoding/zksession/pkg/config"
	"github.com/wyfcoding/zksession/pkg/db"
	"github.com/wyfcoding/zksession/pkg/logger"
	"github.com/wyfcoding/zksession/pkg/metrics"
	"github.com/wyfcoding/zksession/pkg/middleware"
	"github.com/wyfcoding/zksession/pkg/mq"
	"github.com/wyfcoding/zksession/pkg/ratelimit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/zksession/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	log := logger.Get()
	slog.SetDefault(log)

	// 3. Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
		if err := m.Register(); err != nil {
			panic(fmt.Sprintf("register metrics failed: %v", err))
		}
	}

	// 4. Persistence
	var (
		sessionRepo domain.SessionRepository
		traderRepo  domain.TraderRepository
		publisher   domain.EventPublisher
		outbox      *messaging.OutboxEventPublisher
		database    *db.DB
	)

	switch cfg.Database.Driver {
	case "mysql":
		database, err = db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			panic(fmt.Sprintf("connect db failed: %v", err))
		}
		defer database.Close()

		if err := database.AutoMigrate(
			&mysql.SessionModel{},
			&mysql.AuthorizedTraderModel{},
			&messaging.OutboxMessage{},
		); err != nil {
			panic(fmt.Sprintf("migrate db failed: %v", err))
		}

		sessionRepo = mysql.NewSessionRepository(database.DB)
		traderRepo = mysql.NewTraderRepository(database.DB)
		outbox = messaging.NewOutboxEventPublisher(database.DB)
		publisher = outbox
	case "memory":
		sessionRepo = memory.NewSessionRepository()
		traderRepo = memory.NewTraderRepository()
		publisher = messaging.NewLogEventPublisher(log)
	default:
		panic(fmt.Sprintf("unsupported database driver: %s", cfg.Database.Driver))
	}

	// 5. Redis（会话快照缓存 + 限流）
	var sessionCache domain.SessionCache
	var limiter ratelimit.RateLimiter
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxPoolSize: cfg.Redis.MaxPoolSize,
		})
		if err != nil {
			panic(fmt.Sprintf("connect redis failed: %v", err))
		}
		defer redisCache.Close()

		sessionCache = redisrepo.NewSessionCache(redisCache.Client(), time.Duration(cfg.Redis.CacheTTL)*time.Second)
		limiter = ratelimit.NewRedisRateLimiter(redisCache.Client())
	}

	// 6. Application
	sessionService := sessionapp.NewSessionApplicationService(
		sessionRepo,
		traderRepo,
		sessionCache,
		publisher,
		cfg.Admin.Addresses,
		time.Duration(cfg.Session.MaxDuration)*time.Second,
		log,
		m,
	)

	okxClient, err := client.NewOKXClient(client.Config{
		BaseURL:    cfg.OKX.BaseURL,
		APIKey:     cfg.OKX.APIKey,
		SecretKey:  cfg.OKX.SecretKey,
		Passphrase: cfg.OKX.Passphrase,
		Timeout:    time.Duration(cfg.OKX.Timeout) * time.Second,
	}, m)
	if err != nil {
		panic(fmt.Sprintf("init aggregator client failed: %v", err))
	}
	quoteService := quoteapp.NewQuoteApplicationService(
		okxClient,
		ledger.NewAdapter(sessionService),
		cfg.OKX.ChainIndex,
		log,
	)

	// 7. HTTP
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware())
	r.Use(middleware.GinLoggingMiddleware())
	r.Use(middleware.GinCORSMiddleware())
	r.Use(middleware.GinWalletIdentityMiddleware())
	if m != nil {
		r.Use(middleware.GinMetricsMiddleware(m))
	}
	if cfg.RateLimit.Enabled && limiter != nil {
		r.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}

	api := r.Group("/api/v1")
	sessionhttp.NewHandler(sessionService).RegisterRoutes(api)
	quotehttp.NewHandler(quoteService).RegisterRoutes(api)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	// 8. Start
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Outbox relay
	if outbox != nil && cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			panic(fmt.Sprintf("init kafka producer failed: %v", err))
		}
		defer producer.Close()

		g.Go(func() error {
			interval := time.Duration(cfg.Kafka.RelayInterval) * time.Millisecond
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := outbox.ProcessOutboxMessages(ctx, producer, cfg.Kafka.EventTopic, cfg.Kafka.RelayBatchSize); err != nil {
						slog.Error("outbox relay failed", "error", err)
					}
					if m != nil {
						if pending, err := outbox.PendingCount(ctx); err == nil {
							m.OutboxPending.Set(float64(pending))
						}
					}
				}
			}
		})

		// 每小时清理一天前已发送的消息
		g.Go(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := outbox.CleanupProcessedMessages(ctx, time.Now().Add(-24*time.Hour)); err != nil {
						slog.Warn("outbox cleanup failed", "error", err)
					}
				}
			}
		})
	}

	// 有效会话 gauge 定时刷新
	if m != nil {
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := sessionService.RefreshActiveSessions(ctx); err != nil {
						slog.Warn("refresh active sessions gauge failed", "error", err)
					}
				}
			}
		})
	}

	// 9. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
