package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	accountContextKey        = "happijack_account"
	defaultHeartbeatInterval = 15 * time.Second
)

var (
	errMissingLotteryClient    = errors.New("lottery client dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
)

// SessionValidator resolves the calling account of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// RateLimitConfig enables per-client throttling when both values are positive.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type Dependencies struct {
	Lottery           *lottery.Client
	SessionValidator  SessionValidator
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Recorder
	RateLimit         RateLimitConfig
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Lottery == nil {
		return nil, errMissingLotteryClient
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.RateLimit.RequestsPerSecond > 0 && deps.RateLimit.Burst > 0 {
		limiter := newRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst, logger)
		router.Use(limiter.middleware)
	}

	handler := &httpHandler{
		lottery:   deps.Lottery,
		sessions:  deps.SessionValidator,
		realtime:  realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/config", handler.handleGetSettings)
	api.GET("/games", handler.handleListGames)
	api.GET("/games/:gameID", handler.handleGetGame)
	api.GET("/games/:gameID/lucky-numbers", handler.handleListLuckyNumbers)
	api.GET("/games/:gameID/lucky-numbers/:value", handler.handleGetLuckyNumber)
	api.GET("/games/:gameID/closest", handler.handleClosest)
	api.GET("/games/:gameID/stream", handler.handleGameStream)
	api.GET("/events/stream", handler.handleAllEventsStream)
	api.GET("/tickets/:ticketID", handler.handleGetTicket)
	api.GET("/tickets/:ticketID/pending-reward", handler.handlePendingReward)
	api.GET("/accounts/:address/tickets", handler.handleAccountTickets)
	api.GET("/accounts/:address/safebox", handler.handleSafeBoxBalance)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)
	protected.POST("/games", handler.handleCreateGame)
	protected.GET("/games/:gameID/ticket", handler.handleMyTicket)
	protected.POST("/games/:gameID/tickets", handler.handleBuyTicket)
	protected.POST("/games/:gameID/verify", handler.handleVerify)
	protected.POST("/tickets/:ticketID/claim", handler.handleClaim)
	protected.POST("/safebox/deposit", handler.handleDeposit)
	protected.POST("/safebox/withdraw", handler.handleWithdraw)
	protected.PUT("/admin/config", handler.handleSetConfig)
	protected.PUT("/admin/tiers", handler.handleSetTiers)
	protected.PUT("/admin/developer", handler.handleSetDeveloper)
	protected.POST("/admin/pause", handler.handlePause)
	protected.POST("/admin/unpause", handler.handleUnpause)

	return router, nil
}

type httpHandler struct {
	lottery   *lottery.Client
	sessions  SessionValidator
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func metricsMiddleware(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		recorder.RequestStarted()
		c.Next()
		recorder.RequestFinished()
		recorder.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Code: "auth.unauthorized"})
		return
	}
	c.Set(accountContextKey, claims.Account())
	c.Next()
}

func callerOf(c *gin.Context) common.Address {
	value, ok := c.Get(accountContextKey)
	if !ok {
		return common.Address{}
	}
	account, _ := value.(common.Address)
	return account
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	paused, err := h.lottery.Root().Paused(c.Request.Context())
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "paused": paused})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"address": callerOf(c)})
}
