package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/config"
	"github.com/Pmanos1/TestBot/internal/engine"
	"github.com/Pmanos1/TestBot/internal/ledger"
	"github.com/Pmanos1/TestBot/internal/signal"
)

// Controller is the engine lifecycle surface the HTTP API drives.
type Controller interface {
	// Start launches the trading task. Fails if one is already running.
	Start() error
	// Stop puts a running task into sell-only mode; it exits once flat.
	Stop() error
	// Close halts the task immediately, leaving any open position as-is.
	Close() error
	Running() bool
	Prediction() (high, low float64, ok bool)
	Stats() engine.Stats
	PositionState() engine.PositionState
}

type Handler struct {
	ctrl      Controller
	ledger    ledger.Ledger
	predictor signal.Predictor
	cfg       *config.Config
	logger    *zap.Logger
}

func NewHandler(ctrl Controller, led ledger.Ledger, predictor signal.Predictor, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		ctrl:      ctrl,
		ledger:    led,
		predictor: predictor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Algo lifecycle handlers

func (h *Handler) StartAlgo(c *gin.Context) {
	if err := h.ctrl.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "algo started"})
}

func (h *Handler) StopAlgo(c *gin.Context) {
	if err := h.ctrl.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "algo stopping, will exit once flat"})
}

func (h *Handler) CloseAlgo(c *gin.Context) {
	if err := h.ctrl.Close(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "algo closed"})
}

// Reporting handlers

func (h *Handler) Status(c *gin.Context) {
	stats := h.ctrl.Stats()

	// Ledger sells carry realized PnL and survive restarts, so the reported
	// total comes from a full-table aggregate rather than the in-memory
	// counters or any bounded history page.
	netPnL, err := h.ledger.RealizedPnL(c.Request.Context(), h.cfg.Symbol)
	if err != nil {
		h.logger.Error("failed to sum realized pnl", zap.Error(err))
		netPnL = decimal.Zero
	}

	resp := gin.H{
		"running":      h.ctrl.Running(),
		"position":     string(h.ctrl.PositionState()),
		"symbol":       h.cfg.Symbol,
		"trades_taken": stats.Wins + stats.Losses,
		"wins":         stats.Wins,
		"losses":       stats.Losses,
		"net_pnl":      netPnL,
	}
	if high, low, ok := h.ctrl.Prediction(); ok {
		resp["prediction"] = gin.H{"high": high, "low": low}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Health(c *gin.Context) {
	predictorUp := h.predictor.Ready(c.Request.Context())
	status := http.StatusOK
	if !predictorUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"running":      h.ctrl.Running(),
		"predictor_up": predictorUp,
	})
}

func (h *Handler) Trades(c *gin.Context) {
	records, err := h.ledger.OrdersBySymbol(c.Request.Context(), h.cfg.Symbol, 100)
	if err != nil {
		h.logger.Error("failed to query trades", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// ShowConfig returns the active configuration with credentials masked.
func (h *Handler) ShowConfig(c *gin.Context) {
	entries := map[string]any{
		"PORT":                      h.cfg.Port,
		"EXCHANGE_REST_URL":         h.cfg.ExchangeRESTURL,
		"API_KEY":                   h.cfg.APIKey,
		"API_SECRET":                h.cfg.APISecret,
		"API_PASSPHRASE":            h.cfg.APIPassphrase,
		"SANDBOX":                   h.cfg.Sandbox,
		"PREDICTOR_URL":             h.cfg.PredictorURL,
		"SYMBOL":                    h.cfg.Symbol,
		"ORDER_TYPE":                h.cfg.OrderType,
		"LIMIT_SLIPPAGE":            h.cfg.LimitSlippage,
		"HL_DIFF_THRESHOLD":         h.cfg.HLDiffThreshold,
		"PROFIT_TARGET_MULT":        h.cfg.ProfitTargetMult,
		"STOP_LOSS_MULT":            h.cfg.StopLossMult,
		"TIME_STOP_MINUTES":         h.cfg.TimeStopMinutes,
		"BALANCE_CACHE_TTL_SECONDS": h.cfg.BalanceCacheTTLSeconds,
		"CONFIRM_TIMEOUT_SECONDS":   h.cfg.ConfirmTimeoutSeconds,
		"BAR_WINDOW_SIZE":           h.cfg.BarWindowSize,
	}

	masked := make(map[string]any, len(entries))
	for key, val := range entries {
		if s, ok := val.(string); ok && sensitiveKey(key) {
			masked[key] = maskValue(s)
			continue
		}
		masked[key] = val
	}
	c.JSON(http.StatusOK, masked)
}

func sensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range []string{"SECRET", "PASSPHRASE", "KEY", "TOKEN", "PASSWORD", "DSN"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// maskValue hides a credential while leaving enough to recognize it. Short
// values are fully starred so their length leaks nothing useful.
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 6 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + strings.Repeat("*", len(v)-6) + v[len(v)-3:]
}
