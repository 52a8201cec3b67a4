package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/api"
	"github.com/Pmanos1/TestBot/internal/config"
	"github.com/Pmanos1/TestBot/internal/engine"
	"github.com/Pmanos1/TestBot/internal/exchange"
	"github.com/Pmanos1/TestBot/internal/feed"
	"github.com/Pmanos1/TestBot/internal/infrastructure"
	"github.com/Pmanos1/TestBot/internal/ledger"
	"github.com/Pmanos1/TestBot/internal/push"
	prediction "github.com/Pmanos1/TestBot/internal/signal"
)

// App defines the application structure and its dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	NC          *nats.Conn
	JS          nats.JetStreamContext
	Ledger      *ledger.PostgresLedger
	Gateway     exchange.Gateway
	Predictor   prediction.Predictor
	Supervisor  *Supervisor
	PushGateway *push.Gateway
	HTTPServer  *http.Server
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init(cfg.LogFile)
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool

	a.Ledger = ledger.NewPostgresLedger(dbPool, a.Logger)
	if err := a.Ledger.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Exchange and prediction service
	a.Gateway = exchange.NewKucoinClient(
		a.Config.ExchangeRESTURL,
		a.Config.APIKey,
		a.Config.APISecret,
		a.Config.APIPassphrase,
		a.Config.Sandbox,
		a.Logger,
	)
	a.Predictor = prediction.NewHTTPPredictor(a.Config.PredictorURL)

	// 4. Trading engine
	eng := a.buildEngine()
	a.Supervisor = NewSupervisor(eng, a.Logger)

	// 5. Dashboard relay
	a.PushGateway = push.NewGateway(js, a.Logger)

	return nil
}

// buildEngine assembles the engine from configuration.
func (a *App) buildEngine() *engine.Engine {
	cfg := a.Config
	engCfg := engine.Config{
		Symbol:           cfg.Symbol,
		HLDiffThreshold:  decimal.NewFromFloat(cfg.HLDiffThreshold),
		ProfitTargetMult: decimal.NewFromFloat(cfg.ProfitTargetMult),
		StopLossMult:     decimal.NewFromFloat(cfg.StopLossMult),
		LimitSlippage:    decimal.NewFromFloat(cfg.LimitSlippage),
		TimeStop:         time.Duration(cfg.TimeStopMinutes) * time.Minute,
		WindowSize:       cfg.BarWindowSize,
	}

	evaluator := engine.NewEvaluator(a.Predictor, a.Logger)
	balances := engine.NewBalanceCache(a.Gateway,
		time.Duration(cfg.BalanceCacheTTLSeconds)*time.Second, a.Logger)
	executor := engine.NewExecutor(a.Gateway, a.Ledger, a.Logger,
		cfg.Symbol, cfg.OrderType, engCfg.LimitSlippage,
		time.Duration(cfg.ConfirmTimeoutSeconds)*time.Second)
	reconciler := engine.NewReconciler(a.Gateway, a.Ledger, a.Logger, cfg.Symbol)
	marketFeed := feed.NewKucoinFeed(a.Logger, cfg.ExchangeRESTURL, cfg.Symbol)
	sink := newNATSSink(a.JS, a.Logger)

	return engine.New(engCfg, a.Gateway, a.Ledger, marketFeed,
		evaluator, balances, executor, reconciler, sink, a.Logger)
}

// Run starts the trading task and the HTTP server
func (a *App) Run(ctx context.Context) error {
	if err := a.Supervisor.Start(); err != nil {
		return fmt.Errorf("failed to start algo task: %w", err)
	}

	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	a.Supervisor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DB.Close()

	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.Supervisor, a.Ledger, a.Predictor, a.Config, a.Logger)

	algo := r.Group("/algo")
	{
		algo.POST("/start", apiHandler.StartAlgo)
		algo.POST("/stop", apiHandler.StopAlgo)
		algo.POST("/close", apiHandler.CloseAlgo)
		algo.GET("/status", apiHandler.Status)
		algo.GET("/health", apiHandler.Health)
		algo.GET("/trades", apiHandler.Trades)
	}
	r.GET("/config", apiHandler.ShowConfig)

	r.GET("/ws", func(c *gin.Context) {
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
