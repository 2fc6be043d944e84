package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/service"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
	"github.com/BrandonDHaskell/accessmon/internal/metrics"
)

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	SystemName string
	Clock      clockwork.Clock

	Registry *service.UserRegistry
	Ledger   *service.SessionLedger

	Metrics        *metrics.HTTPMetrics
	MetricsHandler http.Handler
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	systemName string
	clock      clockwork.Clock
	registry   *service.UserRegistry
	ledger     *service.SessionLedger
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		systemName: d.SystemName,
		clock:      d.Clock,
		registry:   d.Registry,
		ledger:     d.Ledger,
	}

	mux.HandleFunc("GET /api/access-history", s.handleListAccessHistory)
	mux.HandleFunc("POST /api/access-history", s.handleRegister)
	mux.HandleFunc("DELETE /api/access-history/{userId}", s.handleRemoveUser)
	mux.HandleFunc("GET /api/system/info", s.handleSystemInfo)

	mux.HandleFunc("POST /api/sessions/login", s.handleLogin)
	mux.HandleFunc("POST /api/sessions/logout", s.handleLogout)
	mux.HandleFunc("GET /api/sessions/user/{userId}", s.handleUserSessions)
	mux.HandleFunc("GET /api/sessions/all", s.handleAllSessions)
	mux.HandleFunc("GET /api/sessions/active", s.handleActiveSessions)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if d.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.MetricsHandler)
	}

	handler := corsMiddleware(requestIDMiddleware(loggingMiddleware(d.Logger, d.Metrics, mux)))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeServiceError maps service sentinels to client errors; anything else
// is logged and reported as internal_error.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, service.ErrDuplicateUser):
		writeError(w, r, http.StatusConflict, "duplicate_user", err.Error())
	case errors.Is(err, service.ErrUnregisteredUser):
		writeError(w, r, http.StatusNotFound, "unregistered_user", err.Error())
	default:
		s.logger.Printf("%s error: %v req_id=%s", op, err, requestIDFrom(r.Context()))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

// ── Access history ──────────────────────────────────────────────────────────

func (s *Server) handleListAccessHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.registry.ListAll(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list_access_history", err)
		return
	}
	respond(w, r, http.StatusOK, accessEntries(recs))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	rec, isNew, err := s.registry.Register(r.Context(), req.UserID, req.Profile())
	if err != nil {
		s.writeServiceError(w, r, "register", err)
		return
	}

	msg := "User login time updated"
	if isNew {
		msg = "User added successfully"
	}
	respond(w, r, http.StatusOK, types.RegisterResponse{
		Success:       true,
		IsNewUser:     isNew,
		UserID:        rec.UserID,
		LastLoginTime: formatTime(rec.LastAccessTime),
		Message:       msg,
	})
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	removed, err := s.registry.Remove(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, "remove_user", err)
		return
	}

	msg := "User not found"
	if removed {
		msg = "User removed successfully"
	}
	respond(w, r, http.StatusOK, types.RemoveUserResponse{
		Success: removed,
		UserID:  userID,
		Message: msg,
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "system_info", err)
		return
	}

	respond(w, r, http.StatusOK, types.SystemInfo{
		SystemName:         s.systemName,
		CurrentUsers:       s.registry.Size(),
		Capacity:           s.registry.Capacity(),
		TotalSessions:      stats.TotalSessions,
		ActiveSessions:     stats.ActiveSessions,
		UniqueUsers:        stats.UniqueUsers,
		RegistrationPolicy: string(s.registry.Policy()),
		LastUpdated:        formatTime(s.clock.Now()),
	})
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	rec, created, err := s.ledger.StartSession(r.Context(), req.UserID)
	if err != nil {
		s.writeServiceError(w, r, "login", err)
		return
	}

	msg := "Login successful"
	if !created {
		msg = "Session already active"
	}
	respond(w, r, http.StatusOK, types.LoginResponse{
		Success:   true,
		UserID:    rec.UserID,
		SessionID: rec.ID,
		LoginTime: formatTime(rec.LoginTime),
		Message:   msg,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	ended, err := s.ledger.EndSession(r.Context(), req.UserID)
	if err != nil {
		s.writeServiceError(w, r, "logout", err)
		return
	}

	msg := "No active session found"
	if ended {
		msg = "Logout successful"
	}
	respond(w, r, http.StatusOK, types.LogoutResponse{
		Success: ended,
		UserID:  req.UserID,
		Message: msg,
	})
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	q := r.URL.Query()

	var (
		recs []types.SessionRecord
		err  error
	)
	if q.Has("from") || q.Has("to") {
		from, ferr := parseBound(q.Get("from"))
		to, terr := parseBound(q.Get("to"))
		if ferr != nil || terr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_input", "from and to must be RFC3339 timestamps")
			return
		}
		recs, err = s.ledger.HistoryBetween(r.Context(), userID, from, to)
	} else {
		recs, err = s.ledger.History(r.Context(), userID)
	}
	if err != nil {
		s.writeServiceError(w, r, "user_sessions", err)
		return
	}

	respond(w, r, http.StatusOK, sessionViews(recs))
}

func (s *Server) handleAllSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ledger.AllSessions(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "all_sessions", err)
		return
	}
	respond(w, r, http.StatusOK, sessionViews(recs))
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ledger.ActiveSessions(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "active_sessions", err)
		return
	}
	respond(w, r, http.StatusOK, sessionViews(recs))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]any{
		"ok":         true,
		"serverTime": formatTime(s.clock.Now()),
	})
}

// parseBound parses an optional RFC3339 query bound; empty means unbounded.
func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
