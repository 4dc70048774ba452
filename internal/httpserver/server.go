package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/radiusdt/storefront-notify/internal/analytics"
	"github.com/radiusdt/storefront-notify/internal/config"
	"github.com/radiusdt/storefront-notify/internal/database"
	"github.com/radiusdt/storefront-notify/internal/geo"
	"github.com/radiusdt/storefront-notify/internal/metrics"
	"github.com/radiusdt/storefront-notify/internal/middleware"
	"github.com/radiusdt/storefront-notify/internal/notify"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"github.com/radiusdt/storefront-notify/internal/tracking"
	"go.uber.org/zap"
)

// APIPrefix is the mount point of every notification route.
const APIPrefix = "/api/notification"

// Dependencies holds all external dependencies for the server. Connections
// may be nil; the stores fall back to memory. Explicit stores take
// precedence over the connections.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Mailer     notify.Mailer
	Geo        *geo.Resolver
	RateLimit  *middleware.RateLimitMiddleware

	Notifications storage.NotificationStore
	Events        storage.EventStore
	Users         storage.UserDirectory
	Products      storage.ProductDirectory
}

// Server wraps the HTTP handlers and the notification services.
type Server struct {
	notifications storage.NotificationStore
	dispatcher    *notify.Dispatcher
	tracker       *tracking.Tracker
	analytics     *analytics.Service
	auth          *middleware.AuthMiddleware
	deps          *Dependencies
	logger        *zap.Logger
	config        *config.Config
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewServer wires the stores and services and returns the routed handler.
func NewServer(deps *Dependencies) (http.Handler, error) {
	s, err := newServer(deps)
	if err != nil {
		return nil, err
	}
	return s.routes(), nil
}

func newServer(deps *Dependencies) (*Server, error) {
	cfg, logger := deps.Config, deps.Logger

	notifications := deps.Notifications
	if notifications == nil {
		if deps.DB != nil {
			notifications = storage.NewPostgresNotificationStore(deps.DB.Pool)
		} else {
			notifications = storage.NewInMemoryNotificationStore()
		}
	}
	users := deps.Users
	if users == nil {
		if deps.DB != nil {
			users = storage.NewPostgresUserDirectory(deps.DB.Pool)
		} else {
			users = storage.NewInMemoryUserDirectory()
		}
	}
	products := deps.Products
	if products == nil {
		if deps.DB != nil {
			products = storage.NewPostgresProductDirectory(deps.DB.Pool)
		} else {
			products = storage.NewInMemoryProductDirectory()
		}
	}
	events := deps.Events
	if events == nil {
		events = eventStore(deps)
	}

	var cache analytics.Cache
	if deps.Redis != nil {
		cache = analytics.NewRedisCache(deps.Redis.Client, cfg.Analytics.CacheTTL, logger)
	}
	reports := analytics.NewService(notifications, events, users, cache, deps.Metrics, logger)
	reports.SetWindow(cfg.Analytics.DefaultDays, cfg.Analytics.MaxDays)

	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	links := tracking.NewLinkBuilder(cfg.Tracking.APIBase, cfg.Tracking.SiteURL)

	dispatcher := notify.NewDispatcher(notify.Deps{
		Notifications: notifications,
		Users:         users,
		Products:      products,
		Mailer:        mailer,
		Renderer:      renderer,
		Links:         links,
		Invalidator:   reports,
		Metrics:       deps.Metrics,
		Logger:        logger,
		DefaultSender: cfg.Mail.Sender,
		SiteURL:       cfg.Tracking.SiteURL,
	})

	tracker := tracking.NewTracker(
		notifications,
		events,
		deps.Geo,
		tracking.NewBestEffort(logger, deps.Metrics, 3*time.Second),
		deps.Metrics,
		logger,
	)

	return &Server{
		notifications: notifications,
		dispatcher:    dispatcher,
		tracker:       tracker,
		analytics:     reports,
		auth:          middleware.NewAuthMiddleware(cfg.Auth, logger),
		deps:          deps,
		logger:        logger,
		config:        cfg,
		metrics:       deps.Metrics,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func eventStore(deps *Dependencies) storage.EventStore {
	switch deps.Config.Analytics.EventBackend {
	case "clickhouse":
		if deps.ClickHouse != nil {
			return storage.NewClickHouseEventStore(deps.ClickHouse.Conn)
		}
		deps.Logger.Warn("clickhouse event backend selected without a connection, using memory")
	case "postgres":
		if deps.DB != nil {
			return storage.NewPostgresEventStore(deps.DB.Pool)
		}
	}
	return storage.NewInMemoryEventStore()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	rateLimit := s.deps.RateLimit
	if rateLimit == nil {
		rateLimit = middleware.NewRateLimitMiddleware(s.config.RateLimit, s.logger, s.metrics)
	}
	r.Use(middleware.NewRecoveryMiddleware(s.logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(s.logger, s.metrics).Handler)
	r.Use(rateLimit.Handler)

	r.Get("/health", s.handleHealth)
	if s.config.Metrics.Enabled && s.metrics != nil {
		r.Method(http.MethodGet, s.config.Metrics.Path, s.metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.AuthHeaderName},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Email tracking links must work without credentials.
		r.Get("/t/o", s.handleOpen)
		r.Get("/t/c", s.handleClick)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)
			r.Post("/track", s.handleTrack)
			r.Get("/mine", s.handleInbox)
			r.Get("/mine/unread", s.handleUnread)
			r.Post("/mine/read-all", s.handleReadAll)
			r.Post("/mine/{id}/read", s.handleRead)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Get("/", s.handleList)
			r.Post("/send", s.handleSend)
			r.Post("/push", s.handlePush)
			r.Get("/stats", s.handleStats)
			r.Get("/sessions", s.handleSessions)
			r.Get("/campaigns", s.handleCampaigns)
			r.Patch("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	return r
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	probe := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			checks[name] = "down"
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if s.deps.DB != nil {
		probe("postgres", s.deps.DB.Health)
	}
	if s.deps.Redis != nil {
		probe("redis", s.deps.Redis.Health)
	}
	if s.deps.ClickHouse != nil {
		probe("clickhouse", s.deps.ClickHouse.Health)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}
