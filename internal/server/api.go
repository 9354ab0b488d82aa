// Package server is the operator-facing HTTP surface: the workflow
// endpoints, read-only platform/account introspection, the metrics
// scrape target, and the static mount backing local media exposure.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"autosocioly/internal/domain"
	"autosocioly/internal/getlate"
	"autosocioly/internal/metrics"
	"autosocioly/internal/poster"
	"autosocioly/internal/workflow"
)

// Server wires the orchestrator and its collaborators into an HTTP
// handler.
type Server struct {
	orchestrator *workflow.Orchestrator
	registry     *poster.Registry
	accounts     AccountLister
	metrics      *metrics.Registry
	staticDir    string
	logger       *slog.Logger
	started      time.Time
}

// AccountLister is the slice of the posting client the server needs.
type AccountLister interface {
	GetAccounts(ctx context.Context) ([]getlate.Account, error)
}

type Config struct {
	Orchestrator *workflow.Orchestrator
	Registry     *poster.Registry
	Accounts     AccountLister
	Metrics      *metrics.Registry
	StaticDir    string
	Logger       *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		orchestrator: cfg.Orchestrator,
		registry:     cfg.Registry,
		accounts:     cfg.Accounts,
		metrics:      cfg.Metrics,
		staticDir:    cfg.StaticDir,
		logger:       cfg.Logger,
		started:      time.Now(),
	}
}

// Handler builds the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/workflow/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/workflow/{id}/modify", s.handleModify).Methods(http.MethodPost)
	api.HandleFunc("/workflow/{id}/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/workflow/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/workflow/{id}", s.handleCleanup).Methods(http.MethodDelete)
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/platforms", s.handlePlatforms).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.staticDir != "" {
		r.PathPrefix("/static/uploads/").Handler(
			http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(s.staticDir))))
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(handlers.LoggingHandler(os.Stdout, r))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req workflow.StartRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.orchestrator.Start(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req workflow.ModifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.orchestrator.Modify(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type confirmRequest struct {
	Confirmed bool               `json:"confirmed"`
	Options   domain.PostOptions `json:"options,omitempty"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.orchestrator.Confirm(r.Context(), mux.Vars(r)["id"], req.Confirmed, req.Options)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := s.orchestrator.GetStatus(mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Cleanup(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.orchestrator.ListSessions()})
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"platforms": s.registry.PlatformRequirements()})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.GetAccounts(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type validateRequest struct {
	Platform  string   `json:"platform"`
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.registry.Validate(req.Platform, req.Content, req.MediaURLs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// writeDomainError maps the error taxonomy onto response classes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var te *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSourceMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &te):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
