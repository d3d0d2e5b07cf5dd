package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/server/handler"
	"github.com/alanyoungcy/optiondesk/internal/server/middleware"
	"github.com/alanyoungcy/optiondesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // required to open a session; empty disables the check
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Market  *handler.MarketHandler
	Session *handler.SessionHandler
	Options *handler.OptionHandler
	Wallet  *handler.WalletHandler
	Staking *handler.StakingHandler
	Deposit *handler.DepositHandler
}

// Server is the HTTP and websocket API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// hub and limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, sessions middleware.SessionResolver, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	authed := func(fn http.HandlerFunc) http.Handler {
		return middleware.Session(sessions)(middleware.Owner(fn))
	}

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/quotes", h.Market.ListQuotes)
	mux.HandleFunc("GET /api/candles", h.Market.Candles)
	mux.HandleFunc("GET /api/exchange/rate", h.Wallet.Rate)

	mux.Handle("POST /api/session", middleware.APIKey(cfg.APIKey)(http.HandlerFunc(h.Session.Login)))
	mux.Handle("DELETE /api/session", authed(h.Session.Logout))
	mux.Handle("GET /api/me", authed(h.Session.Me))

	mux.Handle("POST /api/options", authed(h.Options.Create))
	mux.Handle("GET /api/options/active", authed(h.Options.ListActive))
	mux.Handle("GET /api/options/history", authed(h.Options.ListHistory))
	mux.Handle("GET /api/options/{id}", authed(h.Options.Get))

	mux.Handle("POST /api/exchange", authed(h.Wallet.Exchange))
	mux.Handle("POST /api/withdraw", authed(h.Wallet.Withdraw))
	mux.Handle("POST /api/deposits", authed(h.Deposit.Create))
	mux.Handle("GET /api/transactions", authed(h.Deposit.Transactions))

	mux.HandleFunc("GET /api/staking", h.Staking.Terms)
	mux.Handle("POST /api/stakes", authed(h.Staking.Stake))
	mux.Handle("GET /api/stakes", authed(h.Staking.List))
	mux.Handle("POST /api/stakes/{id}/unstake", authed(h.Staking.Unstake))

	if hub != nil {
		mux.Handle("GET /ws", authed(hub.HandleWS))
	}

	var root http.Handler = mux
	root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: root,
		logger:  logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
