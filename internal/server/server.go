package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorebook/internal/handler"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/middleware"
	"github.com/dukerupert/chorebook/internal/store"
	"github.com/dukerupert/chorebook/internal/task"
	ws "github.com/dukerupert/chorebook/internal/websocket"
)

type Config struct {
	// CompleteRateLimit caps completion requests per user per minute. Zero disables it.
	CompleteRateLimit int
	// ApproveRateLimit caps approval requests per approver per minute. Zero disables it.
	ApproveRateLimit int
}

type Server struct {
	db           *sql.DB
	cfg          Config
	hub          *ws.Hub
	profileStore *store.ProfileStore
	routineH     *handler.RoutineHandler
	occurrenceH  *handler.OccurrenceHandler
	pointsH      *handler.PointsHandler
	rewardH      *handler.RewardHandler
	profileH     *handler.ProfileHandler
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, ledgerSvc *ledger.Service, tasks *task.Service, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	profileStore := store.NewProfileStore(db)
	rewardStore := store.NewRewardStore(db)

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		profileStore: profileStore,
		routineH:     handler.NewRoutineHandler(tasks, hub, logger.With("component", "routine")),
		occurrenceH:  handler.NewOccurrenceHandler(tasks, hub, logger.With("component", "occurrence")),
		pointsH:      handler.NewPointsHandler(ledgerSvc, profileStore, hub, logger.With("component", "points")),
		rewardH:      handler.NewRewardHandler(rewardStore, ledgerSvc, hub, logger.With("component", "reward")),
		profileH:     handler.NewProfileHandler(profileStore, logger.With("component", "profile")),
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// RateLimiter returns the limiter so the caller can run its cleanup loop.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else requires an identified user
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	identify := middleware.Identify(s.profileStore, s.logger.With("component", "identity"))
	outerMux.Handle("/", identify(protectedMux))

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

func (s *Server) rateLimitedHandler(scope string, limit int, h http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.Scoped(scope, middleware.ByUser), limit, time.Minute)(h)
}

func adminOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Profiles
	mux.HandleFunc("GET /api/me", s.profileH.Me)
	mux.HandleFunc("GET /api/profiles", s.profileH.List)
	mux.HandleFunc("POST /api/me/pin", s.profileH.SetPIN)
	mux.HandleFunc("DELETE /api/me/pin", s.profileH.ClearPIN)

	// Routines
	mux.HandleFunc("GET /api/routines", s.routineH.List)
	mux.HandleFunc("GET /api/routines/{id}", s.routineH.Get)
	mux.HandleFunc("GET /api/routines/{id}/history", s.routineH.History)
	mux.Handle("POST /api/routines", adminOnly(s.routineH.Create))
	mux.Handle("PUT /api/routines/{id}", adminOnly(s.routineH.Update))
	mux.Handle("DELETE /api/routines/{id}", adminOnly(s.routineH.Delete))

	// Occurrences and approvals
	mux.HandleFunc("GET /api/occurrences", s.occurrenceH.List)
	mux.Handle("POST /api/routines/{id}/complete", s.rateLimitedHandler("complete", s.cfg.CompleteRateLimit, http.HandlerFunc(s.occurrenceH.Complete)))
	mux.Handle("GET /api/approvals", adminOnly(s.occurrenceH.Pending))
	mux.Handle("POST /api/approvals/{id}", s.rateLimitedHandler("approve", s.cfg.ApproveRateLimit, adminOnly(s.occurrenceH.Approve)))

	// Points
	mux.HandleFunc("GET /api/points/leaderboard", s.pointsH.Leaderboard)
	mux.HandleFunc("POST /api/points/redeem", s.pointsH.Redeem)
	mux.HandleFunc("GET /api/profiles/{id}/points", s.pointsH.Balance)
	mux.HandleFunc("GET /api/profiles/{id}/points/history", s.pointsH.History)
	mux.Handle("POST /api/profiles/{id}/points", adminOnly(s.pointsH.Adjust))

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)
	mux.Handle("POST /api/rewards", adminOnly(s.rewardH.Create))
	mux.Handle("PUT /api/rewards/{id}", adminOnly(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", adminOnly(s.rewardH.Delete))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
