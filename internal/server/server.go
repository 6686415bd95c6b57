package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/questlog/internal/config"
	"github.com/dukerupert/questlog/internal/handler"
	"github.com/dukerupert/questlog/internal/middleware"
	"github.com/dukerupert/questlog/internal/push"
	"github.com/dukerupert/questlog/internal/store"
	"github.com/dukerupert/questlog/internal/task"
	ws "github.com/dukerupert/questlog/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	taskH        *handler.TaskHandler
	profileH     *handler.ProfileHandler
	pushH        *handler.PushHandler
	notifier     *push.Notifier
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	wsOrigins    []string
	proxies      *middleware.ProxyTrust
	logger       *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)

	pushStore := store.NewPushStore(db)

	taskSvc := task.NewService(task.NewSQLTransactor(db), cfg.Policy, logger.With("component", "task"))

	// Level-change notifications go out only when VAPID keys are configured.
	var notifier *push.Notifier
	var taskNotifier handler.Notifier
	if cfg.Push.Enabled() {
		notifier = push.NewNotifier(push.NewService(cfg.Push), pushStore, logger)
		taskNotifier = notifier
	}

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, cfg.SessionTTL, cfg.SecureCookies, logger.With("component", "auth")),
		taskH:        handler.NewTaskHandler(taskSvc, hub, taskNotifier, logger.With("component", "task_handler")),
		profileH:     handler.NewProfileHandler(userStore, cfg.Policy, logger.With("component", "profile")),
		pushH:        handler.NewPushHandler(pushStore, cfg.Push.VAPIDPublicKey, logger.With("component", "push_handler")),
		notifier:     notifier,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		wsOrigins:    cfg.WSOrigins,
		proxies:      cfg.TrustedProxies,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Notifier returns the push notifier, or nil when push is not configured.
func (s *Server) Notifier() *push.Notifier {
	return s.notifier
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, s.proxies.ClientIP, authRateLimit, authRateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)

	// Profile
	mux.HandleFunc("GET /api/me", s.profileH.Me)
	mux.HandleFunc("GET /api/leaderboard", s.profileH.Leaderboard)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)

	// Push subscriptions
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.wsOrigins, s.logger.With("component", "websocket")))
}
