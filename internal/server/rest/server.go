// Package rest exposes the auth and scraping services over HTTP/JSON.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/services"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

type authService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	RotateRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error)
	ValidateAccessToken(ctx context.Context, token string) (*models.Identity, error)
	Logout(ctx context.Context, id models.Identity, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, id models.Identity) error
	Profile(ctx context.Context, id models.Identity) (*models.User, error)
	ChangePassword(ctx context.Context, id models.Identity, in services.ChangePasswordInput) error
	RequestEmailVerification(ctx context.Context, id models.Identity) error
	ConfirmEmail(ctx context.Context, token string) (*models.User, error)
}

type scrapeService interface {
	Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error)
	ListContent(ctx context.Context, f services.ListFilter) (*models.ContentPage, error)
	GetContent(ctx context.Context, id, contentType string) (*models.ScrapedContent, error)
	SnapshotURL(ctx context.Context, id string) (string, error)
}

type Server struct {
	address string
	logger  logging.Logger
	auth    authService
	scrape  scrapeService
	limiter *rateLimiter
}

func NewServer(address string, l logging.Logger, as authService, ss scrapeService, loginPerMinute int) *Server {
	return &Server{
		address: address,
		logger:  l.With("module", "http_server"),
		auth:    as,
		scrape:  ss,
		limiter: newRateLimiter(loginPerMinute),
	}
}

// Router builds the route table with its middleware chain.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverer, s.logging, securityHeaders)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// Routes hang off the root router: a subrouter would turn a method
	// mismatch into a 404.
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.Handle("/auth/register", http.HandlerFunc(s.handleRegister)).Methods(http.MethodPost)
	r.Handle("/auth/login", s.rateLimit(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	r.Handle("/auth/refresh", http.HandlerFunc(s.handleRefresh)).Methods(http.MethodPost)
	r.Handle("/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	r.Handle("/auth/logout-all", s.requireAuth(http.HandlerFunc(s.handleLogoutAll))).Methods(http.MethodPost)
	r.Handle("/auth/me", s.requireAuth(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	r.Handle("/auth/password", s.requireAuth(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPatch)
	r.Handle("/auth/verify-email", s.requireAuth(http.HandlerFunc(s.handleVerifyEmail))).Methods(http.MethodPost)
	r.Handle("/auth/verify-token", s.rateLimit(http.HandlerFunc(s.handleVerifyToken))).Methods(http.MethodPost)

	r.Handle("/web-scraping/scrape", s.requireAuth(http.HandlerFunc(s.handleScrape))).Methods(http.MethodPost)
	r.Handle("/web-scraping/content", s.requireAuth(http.HandlerFunc(s.handleListContent))).Methods(http.MethodGet)
	r.Handle("/web-scraping/content/{id}", s.requireAuth(http.HandlerFunc(s.handleGetContent))).Methods(http.MethodGet)
	r.Handle("/web-scraping/content/{id}/snapshot", s.requireAuth(http.HandlerFunc(s.handleSnapshot))).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// No WriteTimeout: a crawl answers only when every page is done.
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
