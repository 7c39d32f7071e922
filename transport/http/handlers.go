package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/layer-3/energygate/internal/metrics"
	"github.com/layer-3/energygate/service"
)

// Options configure the websocket endpoint.
type Options struct {
	ReadLimit      int64
	AuthTimeout    time.Duration
	AllowedOrigins []string
	WriteWait      time.Duration
	PongWait       time.Duration
}

// DefaultOptions returns the production endpoint settings.
func DefaultOptions() Options {
	return Options{
		ReadLimit:      64 * 1024,
		AuthTimeout:    60 * time.Second,
		AllowedOrigins: []string{"*"},
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
	}
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// GatewayHandlers contains the HTTP handlers of the gateway
type GatewayHandlers struct {
	gateway  *service.GatewayService
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*wsConn
}

// NewGatewayHandlers creates new gateway handlers
func NewGatewayHandlers(gateway *service.GatewayService, opts Options, logger zerolog.Logger) *GatewayHandlers {
	ctx, cancel := context.WithCancel(context.Background())
	h := &GatewayHandlers{
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[string]*wsConn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// checkOrigin admits requests without an Origin header; wallet clients are
// usually not browsers.
func (h *GatewayHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the request and runs the connection protocol on it.
func (h *GatewayHandlers) WebSocket(c *gin.Context) {
	if h.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server shutting down"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	wc := newWSConn(h.ctx, conn, h.opts, h.logger)
	if !h.track(wc) {
		_ = wc.Close()
		_ = conn.Close()
		return
	}

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()

	go func() {
		defer h.untrack(wc)
		defer metrics.ConnectionsActive.Dec()

		protocol, err := h.gateway.Open(wc.ctx, wc)
		if err != nil {
			// Open closed wc; run the write pump once so the socket is released.
			wc.writePump()
			return
		}
		wc.run(protocol)
	}()
}

// Health reports liveness and the number of open connections.
func (h *GatewayHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Connections(),
	})
}

// Connections returns the number of open websocket connections.
func (h *GatewayHandlers) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection and waits for their goroutines to
// exit. New upgrades are refused afterwards.
func (h *GatewayHandlers) CloseAll() {
	h.mu.Lock()
	h.cancel()
	for _, wc := range h.conns {
		_ = wc.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *GatewayHandlers) track(wc *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.conns[wc.id] = wc
	h.wg.Add(1)
	return true
}

func (h *GatewayHandlers) untrack(wc *wsConn) {
	h.mu.Lock()
	delete(h.conns, wc.id)
	h.mu.Unlock()
	h.wg.Done()
}
