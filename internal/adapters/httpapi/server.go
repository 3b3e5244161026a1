// Package httpapi exposes backtests and market data over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"qyquant/internal/backtest"
	"qyquant/internal/domain"
	"qyquant/internal/jobs"
	"qyquant/internal/ports"
)

const (
	defaultSymbol       = "BTCUSDT"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	shutdownTimeout     = 5 * time.Second
)

// BacktestRunner runs a backtest synchronously.
type BacktestRunner interface {
	Run(ctx context.Context, req backtest.Request) (*domain.BacktestResult, error)
	ProviderName() string
}

// JobService runs backtests in the background.
type JobService interface {
	Submit(ctx context.Context, name string, req backtest.Request) (string, error)
	Status(ctx context.Context, id string) (*domain.JobStatus, error)
}

// Config holds the server dependencies.
type Config struct {
	Addr      string
	Runner    BacktestRunner
	Jobs      JobService
	History   ports.BacktestRepository
	Provider  ports.MarketDataProvider
	CacheName string // reported by the health endpoint
	Logger    ports.Logger
}

// Server is the gin HTTP transport.
type Server struct {
	addr      string
	router    *gin.Engine
	runner    BacktestRunner
	jobs      JobService
	history   ports.BacktestRepository
	provider  ports.MarketDataProvider
	cacheName string
	logger    ports.Logger
}

// NewServer builds the router and registers every route.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Jobs == nil || cfg.History == nil || cfg.Provider == nil || cfg.Logger == nil {
		return nil, errors.New("missing required dependencies for HTTP server")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		router:    router,
		runner:    cfg.Runner,
		jobs:      cfg.Jobs,
		history:   cfg.History,
		provider:  cfg.Provider,
		cacheName: cfg.CacheName,
		logger:    cfg.Logger,
	}
	router.Use(s.logRequests)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/marketdata/price", s.handlePrice)

	bt := api.Group("/backtests")
	bt.POST("/run", s.handleRun)
	bt.GET("/job/:id", s.handleJob)
	bt.GET("/latest", s.handleLatest)
	bt.GET("/history", s.handleHistory)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": s.addr})

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
		"method":  c.Request.Method,
		"path":    c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	})
}

type runBody struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Strategy   string `json:"strategy"`
	Interval   string `json:"interval"`
	Limit      any    `json:"limit"`
	StartTime  any    `json:"startTime"`
	StartTime2 any    `json:"start_time"`
	EndTime    any    `json:"endTime"`
	EndTime2   any    `json:"end_time"`
}

func (s *Server) handleRun(c *gin.Context) {
	var body runBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(c, fmt.Errorf("invalid JSON body: %v: %w", err, ports.ErrInvalidRequest))
		return
	}
	req := backtest.Request{
		Symbol:   orDefault(body.Symbol, defaultSymbol),
		Strategy: body.Strategy,
		Interval: body.Interval,
		Limit:    parseLimit(body.Limit),
		Start:    firstNonNil(body.StartTime, body.StartTime2),
		End:      firstNonNil(body.EndTime, body.EndTime2),
	}

	id, err := s.jobs.Submit(c.Request.Context(), body.Name, req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, gin.H{"job_id": id})
}

func (s *Server) handleJob(c *gin.Context) {
	st, err := s.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, st)
}

func (s *Server) handleLatest(c *gin.Context) {
	req := backtest.Request{
		Symbol:   orDefault(c.Query("symbol"), defaultSymbol),
		Strategy: c.Query("strategy"),
		Interval: c.Query("interval"),
		Limit:    parseLimit(c.Query("limit")),
		Start:    queryAny(c, "startTime", "start_time"),
		End:      queryAny(c, "endTime", "end_time"),
	}
	res, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, res)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	runs, err := s.history.FindRecent(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, runs)
}

func (s *Server) handlePrice(c *gin.Context) {
	symbol := orDefault(c.Query("symbol"), defaultSymbol)
	price, err := s.provider.GetLatestPrice(c.Request.Context(), symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, gin.H{"symbol": strings.ToUpper(symbol), "price": price, "provider": s.provider.Name()})
}

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "provider": s.runner.ProviderName(), "cache": s.cacheName})
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Code: 0, Message: "ok", Data: data})
}

// writeError maps err onto an HTTP status. The body code is status*100.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Code: status * 100, Message: http.StatusText(status)}
	if status == http.StatusInternalServerError {
		body.Message = "internal_error"
		s.logger.Error(c.Request.Context(), err, "Request failed", map[string]interface{}{"path": c.FullPath()})
	} else {
		details := err.Error()
		body.Details = &details
		s.logger.Warn(c.Request.Context(), "Request rejected", map[string]interface{}{"path": c.FullPath(), "status": status, "error": details})
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrUpstreamAPI):
		return http.StatusBadGateway
	case errors.Is(err, ports.ErrInvalidRequest),
		errors.Is(err, ports.ErrMalformedTimestamp),
		errors.Is(err, ports.ErrUnsupportedSymbol):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit accepts a JSON number or a numeric string. Anything else, and
// non-positive values, fall back to the default limit.
func parseLimit(v any) int {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return backtest.DefaultLimit
		}
		n = parsed
	default:
		return backtest.DefaultLimit
	}
	if n <= 0 {
		return backtest.DefaultLimit
	}
	return n
}

func queryAny(c *gin.Context, keys ...string) any {
	for _, k := range keys {
		if v, found := c.GetQuery(k); found && v != "" {
			return v
		}
	}
	return nil
}

func firstNonNil(vs ...any) any {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
