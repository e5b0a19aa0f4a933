// Package httpapi adapts the order workflow to an HTTP/JSON surface.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"orderflow/internal/observability"
	"orderflow/internal/orders"
	"orderflow/internal/realtime"
	"orderflow/internal/reliability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// OrderService defines the behavior needed by the HTTP adapter.
type OrderService interface {
	CreateOrder(ctx context.Context, memberID string, req orders.CreateOrderRequest) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID, memberID string) error
	GetOrder(ctx context.Context, orderID, memberID string) (*orders.Order, error)
	ListOrders(ctx context.Context, memberID string, page orders.Page) ([]*orders.Order, error)
}

// ServerConfig wires a Server. Orders is required; the rest default or stay
// disabled when absent.
type ServerConfig struct {
	Orders  OrderService
	Hub     *realtime.Hub
	Metrics *observability.Metrics
	Limiter *reliability.RateLimiter
	Logf    func(format string, args ...any)
}

// Server exposes the order workflow over HTTP and WebSocket.
type Server struct {
	orders   OrderService
	hub      *realtime.Hub
	metrics  *observability.Metrics
	limiter  *reliability.RateLimiter
	upgrader websocket.Upgrader
	logf     func(format string, args ...any)
}

// NewServer constructs a Server.
func NewServer(cfg ServerConfig) *Server {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Server{
		orders:  cfg.Orders,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		limiter: cfg.Limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logf: logf,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.Handler(s.metrics)))
	if s.hub != nil {
		router.GET("/ws", s.handleWebSocket)
	}

	v1 := router.Group("/v1", s.rateLimit())
	{
		v1.POST("/members/:member_id/orders", s.handleCreateOrder)
		v1.GET("/members/:member_id/orders", s.handleListOrders)
		v1.GET("/members/:member_id/orders/:order_id", s.handleGetOrder)
		v1.DELETE("/members/:member_id/orders/:order_id", s.handleCancelOrder)
	}

	return router
}

// rateLimit applies the shared token bucket to API calls and records time
// spent waiting for a token.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		start := time.Now()
		if err := s.limiter.Wait(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limited"})
			return
		}
		if s.metrics != nil {
			s.metrics.AddRateLimitWait(time.Since(start))
		}
		c.Next()
	}
}

// handleWebSocket upgrades the connection and hands it to the hub. The read
// pump exists only to detect the peer going away.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logf("[http] websocket upgrade failed: %v", err)
		return
	}
	s.hub.Register <- conn

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unregister <- conn
				return
			}
		}
	}()
}
