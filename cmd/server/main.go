package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
	"github.com/iliyamo/venue-seat-hold/internal/config"
	"github.com/iliyamo/venue-seat-hold/internal/database"
	"github.com/iliyamo/venue-seat-hold/internal/handler"
	"github.com/iliyamo/venue-seat-hold/internal/middleware"
	"github.com/iliyamo/venue-seat-hold/internal/obs"
	"github.com/iliyamo/venue-seat-hold/internal/queue"
	"github.com/iliyamo/venue-seat-hold/internal/repository"
	"github.com/iliyamo/venue-seat-hold/internal/router"
	"github.com/iliyamo/venue-seat-hold/internal/service"
)

const serviceName = "venue-seat-hold"

func main() {
	logger := log.New(serviceName)
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("tracing: %v", err)
	}

	ledger, closeStore, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}

	hub := broadcast.NewHub(logger)
	var bc broadcast.Broadcaster = hub
	var publisher *queue.Publisher
	if cfg.RabbitMQURL != "" {
		origin := serviceName + "-" + uuid.NewString()[:8]
		publisher, err = queue.NewPublisher(cfg.RabbitMQURL, cfg.SeatEventsExchange, origin, logger)
		if err != nil {
			logger.Fatalf("rabbitmq: %v", err)
		}
		bc = publisher
		go func() {
			if err := queue.StartSeatEventConsumer(ctx, cfg.RabbitMQURL, cfg.SeatEventsExchange, hub, logger); err != nil && ctx.Err() == nil {
				logger.Errorf("seat-event-relay: %v", err)
			}
		}()
		logger.Infof("broadcasting through exchange %q as %s", cfg.SeatEventsExchange, origin)
	}

	svc := service.NewReservationService(ledger, bc, service.Options{
		HoldDuration: cfg.HoldDuration(),
		Logger:       logger,
	})
	go service.NewSweeper(svc, cfg.SweepInterval, logger).Run(ctx)

	var rateLimit echo.MiddlewareFunc
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		logger.Fatalf("rate limit config: %v", err)
	}
	if rlCfg.Enabled {
		redisCfg, err := config.LoadRedisConfig()
		if err != nil {
			logger.Fatalf("redis config: %v", err)
		}
		if rdb := config.NewRedisClient(redisCfg); rdb != nil {
			defer rdb.Close()
			rateLimit = middleware.NewTokenBucket(rlCfg, rdb)
		} else {
			logger.Warnf("redis unreachable at %s, rate limiting disabled", redisCfg.Address())
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Errorf("%s %s %d %s: %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			logger.Debugf("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	router.RegisterRoutes(e)
	router.RegisterSession(e, handler.NewSessionHandler(cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute))
	router.RegisterSeats(e, handler.NewSeatHandler(svc, cfg.LayoutMin, cfg.LayoutMax), router.SeatRoutes{
		JWTSecret:    cfg.JWTSecret,
		AdminKeyHash: cfg.LayoutAdminKeyHash,
		RateLimit:    rateLimit,
	})
	router.RegisterWS(e, hub)

	go func() {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s, store=%s, hold=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.HoldDuration())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warnf("rabbitmq close: %v", err)
		}
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Warnf("store close: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warnf("tracer shutdown: %v", err)
	}
}

// openLedger connects the configured store and prepares its schema.  The
// returned func releases the connection.
func openLedger(ctx context.Context, cfg config.Config, logger *log.Logger) (repository.Ledger, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Infof("mysql ledger at %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
		return repository.NewSQLLedger(db), func(context.Context) error { return db.Close() }, nil
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			return nil, nil, err
		}
		ledger := repository.NewMongoLedger(client, cfg.MongoDB)
		if err := ledger.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		logger.Infof("mongo ledger in database %s", cfg.MongoDB)
		return ledger, client.Disconnect, nil
	default:
		logger.Warn("memory ledger: state is lost on restart")
		return repository.NewMemoryLedger(), func(context.Context) error { return nil }, nil
	}
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
