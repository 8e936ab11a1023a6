// Package api exposes ticker registration, read endpoints for positions and
// orders, and a live order stream over WebSocket.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signal-advisor/internal/store"
)

// Options configures the router.
type Options struct {
	// RateLimit is the per-client request rate in requests/sec. Zero disables
	// limiting.
	RateLimit float64
	Burst     int

	// Health serves GET /health. When nil a static ok response is used.
	Health http.Handler
}

// Server holds the API dependencies and the gin engine.
type Server struct {
	Router *gin.Engine

	store store.Store
	hub   *Hub
	log   *slog.Logger
	srv   *http.Server
}

// NewServer builds the router. hub may be nil, in which case /ws is not
// registered.
func NewServer(st store.Store, hub *Hub, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Router: gin.New(),
		store:  st,
		hub:    hub,
		log:    log,
	}

	s.Router.Use(gin.Recovery())
	s.Router.Use(RequestIDMiddleware())
	s.Router.Use(LoggerMiddleware(log))
	if opts.RateLimit > 0 {
		s.Router.Use(RateLimitMiddleware(opts.RateLimit, opts.Burst))
	}

	if opts.Health != nil {
		s.Router.GET("/health", gin.WrapH(opts.Health))
	} else {
		s.Router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if hub != nil {
		s.Router.GET("/ws", func(c *gin.Context) {
			hub.ServeWS(c.Writer, c.Request)
		})
	}

	g := s.Router.Group("/api")
	g.GET("/tickers", s.listTickers)
	g.POST("/tickers", s.addTicker)
	g.DELETE("/tickers/:symbol", s.removeTicker)
	g.GET("/positions", s.listPositions)
	g.GET("/orders", s.listOrders)
	g.GET("/summary", s.summary)

	return s
}

// Start serves on addr in a goroutine.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("api server listening", slog.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server error", slog.Any("err", err))
		}
	}()
}

// Stop shuts the HTTP server down and disconnects stream clients.
func (s *Server) Stop(ctx context.Context) {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.srv != nil {
		s.srv.Shutdown(ctx)
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) listTickers(c *gin.Context) {
	tickers, err := s.store.ListTickers(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, tickers)
}

type addTickerRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) addTicker(c *gin.Context) {
	var req addTickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if store.NormalizeSymbol(req.Symbol) == "" {
		respondError(c, http.StatusBadRequest, "INVALID_SYMBOL", "symbol is required")
		return
	}

	t, err := s.store.AddTicker(c.Request.Context(), req.Symbol)
	switch {
	case errors.Is(err, store.ErrDuplicateSymbol):
		respondError(c, http.StatusConflict, "DUPLICATE_SYMBOL", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.log.Info("ticker added", slog.String("symbol", t.Symbol))
	c.JSON(http.StatusCreated, t)
}

func (s *Server) removeTicker(c *gin.Context) {
	symbol := c.Param("symbol")
	err := s.store.RemoveTicker(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "ticker not found")
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.log.Info("ticker removed", slog.String("symbol", store.NormalizeSymbol(symbol)))
	c.Status(http.StatusNoContent)
}

func (s *Server) listPositions(c *gin.Context) {
	openOnly, _ := strconv.ParseBool(c.DefaultQuery("open", "false"))
	positions, err := s.store.ListPositions(c.Request.Context(), openOnly)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) listOrders(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	orders, err := s.store.ListOrders(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) summary(c *gin.Context) {
	positions, err := s.store.ListPositions(c.Request.Context(), false)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, store.Summarize(positions))
}
