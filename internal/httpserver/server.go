package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/unrolled/secure"

	"accounts/backend/internal/config"
	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/paging"
	"accounts/backend/internal/usecase/account"
	authusecase "accounts/backend/internal/usecase/auth"
)

// AuthService is the slice of the authentication use cases the API needs.
type AuthService interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (*authusecase.Login, bool, error)
	EndSession(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.AuthContext, bool, error)
}

// AccountService is the slice of the account use cases the API needs.
type AccountService interface {
	Register(ctx context.Context, input account.RegisterInput) (int64, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	ListPage(ctx context.Context, pageIndex, pageSize int) (*paging.Page[*domain.User], error)
	Update(ctx context.Context, targetID, actingUserID int64, input account.UpdateInput) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	Analytics(ctx context.Context) ([]domain.RoleAnalytics, error)
	RequestReset(ctx context.Context, email string) error
	ConsumePasswordChange(ctx context.Context, input account.ChangePasswordInput) error
}

type cookieSettings struct {
	name   string
	secure bool
}

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	auth       AuthService
	accounts   AccountService
	validate   *validator.Validate
	cookie     cookieSettings
	logger     logrus.FieldLogger
	addr       string
}

// NewServer constructs a new Server with configured dependencies.
func NewServer(cfg config.Config, auth AuthService, accounts AccountService, logger logrus.FieldLogger) *Server {
	router := chi.NewRouter()

	srv := &Server{
		router:   router,
		auth:     auth,
		accounts: accounts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cookie:   cookieSettings{name: cfg.Session.CookieName, secure: cfg.Session.SecureCookie},
		logger:   logger,
		addr:     cfg.Server.Addr,
	}
	if srv.cookie.name == "" {
		srv.cookie.name = "accounts_session"
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !cfg.IsProduction(),
	})

	requestTimeout := cfg.HTTP.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(withLogging(logger))
	router.Use(middleware.Recoverer)
	router.Use(secureMiddleware.Handler)
	router.Use(withCORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Timeout(requestTimeout))

	srv.httpServer = &http.Server{
		Addr:         srv.addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	srv.registerRoutes()
	return srv
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
