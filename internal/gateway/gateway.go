// Package gateway exposes the simulator's control surface: start/stop
// a run, read status/stats, and stream stats snapshots over a
// websocket.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/auth"
	"github.com/meridianhealth/claimsim/internal/config"
	"github.com/meridianhealth/claimsim/internal/orchestrator"
	"github.com/meridianhealth/claimsim/pkg/breaker"
)

// Controller is whatever owns orchestrator lifecycle; the gateway
// never constructs an Orchestrator itself, since start() may need to
// rebuild one from a freshly POSTed config.
type Controller interface {
	Start(cfg *config.Config) error
	Stop() error
	Status() (orchestrator.Status, bool)
	Stats() (orchestrator.Stats, bool)
	SystemInfo() (orchestrator.SystemInfo, bool)
}

// WSClient is one connected stats-stream subscriber.
type WSClient struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}
}

// RateLimiter is a sliding-window request limiter guarding the control
// surface itself, distinct from the domain RateLimiter that paces
// claim ingestion.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// Allow reports whether key (typically a client IP) is under its
// request budget for the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := make([]time.Time, 0, len(requests))
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Config configures the HTTP server and request-rate limiting.
type Config struct {
	Addr            string
	JWTSecret       string
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Gateway is the simulator's HTTP control surface.
type Gateway struct {
	router   *gin.Engine
	ctrl     Controller
	verifier *auth.Verifier
	breakers *breaker.Group
	log      *zap.Logger

	wsMu      sync.RWMutex
	wsClients map[uuid.UUID]*WSClient

	rateLimiter *RateLimiter
}

// New builds a Gateway routing requests to ctrl.
func New(cfg Config, ctrl Controller, log *zap.Logger) *Gateway {
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Second
	}
	if cfg.RateLimitMax == 0 {
		cfg.RateLimitMax = 20
	}

	g := &Gateway{
		router:   gin.New(),
		ctrl:     ctrl,
		verifier: auth.New(cfg.JWTSecret),
		breakers: breaker.NewGroup(breaker.Config{MaxFailures: 5, Cooldown: 30 * time.Second, ProbeLimit: 3}),
		log:      log,
		wsClients: make(map[uuid.UUID]*WSClient),
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}
	g.router.Use(gin.Recovery())
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.rateLimitMiddleware())
	g.router.Use(g.tracingMiddleware())

	g.router.GET("/health", g.healthCheck)

	v1 := g.router.Group("/v1/simulations")
	v1.Use(g.authMiddleware())
	{
		v1.POST("/start", g.startSimulation)
		v1.POST("/stop", g.stopSimulation)
		v1.GET("/status", g.getStatus)
		v1.GET("/stats", g.getStats)
		v1.GET("/system", g.getSystemInfo)
		v1.GET("/stream", g.streamStats)
	}
}

// Start runs the HTTP server, blocking until it stops or errors.
func (g *Gateway) Start(addr string) error {
	return g.router.Run(addr)
}

// Handler exposes the gin router so callers can wrap it in their own
// *http.Server for graceful shutdown instead of using Start directly.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := g.verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// StartRequest is the POST /v1/simulations/start body: a path to a
// YAML config file the controller loads and validates.
type StartRequest struct {
	ConfigPath string `json:"config_path" binding:"required"`
}

func (g *Gateway) startSimulation(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	cfg, err := config.Load(req.ConfigPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = g.breakers.Call("orchestrator", func() error {
		return g.ctrl.Start(cfg)
	})
	if err != nil {
		if err == breaker.ErrOpen {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "simulation started"})
}

func (g *Gateway) stopSimulation(c *gin.Context) {
	if err := g.ctrl.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "simulation stopped"})
}

func (g *Gateway) getStatus(c *gin.Context) {
	status, ok := g.ctrl.Status()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no simulation running"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (g *Gateway) getStats(c *gin.Context) {
	stats, ok := g.ctrl.Stats()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no simulation running"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (g *Gateway) getSystemInfo(c *gin.Context) {
	info, ok := g.ctrl.SystemInfo()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no simulation running"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// WebSocket streaming

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) streamStats(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &WSClient{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, 8),
		Done: make(chan struct{}),
	}

	g.wsMu.Lock()
	g.wsClients[client.ID] = client
	g.wsMu.Unlock()

	go g.wsReadPump(client)
	go g.wsWritePump(client)
	go g.wsStatsTicker(client)
}

func (g *Gateway) wsReadPump(client *WSClient) {
	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, client.ID)
		g.wsMu.Unlock()
		close(client.Done)
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) wsWritePump(client *WSClient) {
	for {
		select {
		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.Done:
			return
		}
	}
}

// wsStatsTicker pushes a stats() snapshot to client every second until
// it disconnects.
func (g *Gateway) wsStatsTicker(client *WSClient) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, ok := g.ctrl.Stats()
			if !ok {
				continue
			}
			data, err := json.Marshal(stats)
			if err != nil {
				continue
			}
			select {
			case client.Send <- data:
			default:
			}
		case <-client.Done:
			return
		}
	}
}
