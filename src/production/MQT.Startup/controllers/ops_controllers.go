package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
)

// StorePinger is the durable store round-trip used by readiness
type StorePinger interface {
	Ping(ctx context.Context) error
}

// BusStatus reports the bus connection
type BusStatus interface {
	IsConnected() bool
	StateName() string
}

// Controllers holds the ops endpoint dependencies
type Controllers struct {
	store       StorePinger
	bus         BusStatus
	metrics     http.Handler
	pingTimeout time.Duration
	logger      *logger.Logger
}

// NewControllers creates a new Controllers instance
func NewControllers(store StorePinger, bus BusStatus, metrics http.Handler, pingTimeout time.Duration, log *logger.Logger) *Controllers {
	return &Controllers{
		store:       store,
		bus:         bus,
		metrics:     metrics,
		pingTimeout: pingTimeout,
		logger:      log.WithComponent("ops"),
	}
}

// NewRouter builds a gin engine with the ops routes registered
func NewRouter(controllers *Controllers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	SetupOpsRoutes(router, controllers)
	return router
}

// SetupOpsRoutes wires the health and metrics endpoints
func SetupOpsRoutes(router *gin.Engine, controllers *Controllers) {
	router.GET("/health/live", controllers.HealthLive)
	router.GET("/health/ready", controllers.HealthReady)
	router.GET("/metrics", gin.WrapH(controllers.metrics))
}

func (c *Controllers) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// HealthReady is 200 only when the store answers a ping and the bus is subscribed
func (c *Controllers) HealthReady(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.pingTimeout)
	defer cancel()

	body := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"bus":       c.bus.StateName(),
		"db":        true,
	}
	ready := c.bus.IsConnected()

	if err := c.store.Ping(pingCtx); err != nil {
		c.logger.Logger.Warn().Err(err).Msg("Readiness store ping failed")
		body["db"] = false
		body["db_error"] = err.Error()
		ready = false
	}

	if !ready {
		body["status"] = "not_ready"
		ctx.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	ctx.JSON(http.StatusOK, body)
}
