package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/escalation"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/importer"
	"github.com/MikeSquared-Agency/askops/internal/processor"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

// maxBodyBytes bounds request bodies; chat exports are the largest payload.
const maxBodyBytes = 32 << 20

type MessageProcessor interface {
	HandleMessage(ctx context.Context, msg hermes.InboundMessage) (processor.Outcome, error)
	AssignEscalation(ctx context.Context, id, managerID uuid.UUID) (bool, error)
	ResolveEscalation(ctx context.Context, id uuid.UUID, response string, mediaURLs []string) (escalation.ResolveResult, error)
}

type ImportRunner interface {
	Run(ctx context.Context, companyID, transcript string, opts importer.Options) (importer.Report, error)
}

type Store interface {
	FindCategoryByName(ctx context.Context, companyID, name string) (store.Category, error)
	ListItemsByCategory(ctx context.Context, companyID string, categoryID *uuid.UUID) ([]store.KnowledgeItem, error)
	SoftDeleteItem(ctx context.Context, id uuid.UUID) error
	ListEscalations(ctx context.Context, companyID string, status store.EscalationStatus) ([]store.Escalation, error)
}

// Status is reported by GET /api/v1/status.
type Status struct {
	Service       string `json:"service"`
	Store         string `json:"store"`
	LLM           string `json:"llm"`
	Delivery      string `json:"delivery"`
	Bus           string `json:"bus"`
	Lock          string `json:"lock"`
	SweepSchedule string `json:"sweep_schedule"`
}

type Deps struct {
	Processor           MessageProcessor
	Imports             ImportRunner
	Store               Store
	ImportMinConfidence float64
	Status              Status
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.status)

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Post("/messages", s.postMessage)
			r.Post("/imports", s.postImport)
			r.Get("/knowledge", s.listKnowledge)
			r.Get("/escalations", s.listEscalations)
		})

		r.Delete("/knowledge/{itemID}", s.deleteKnowledge)
		r.Post("/escalations/{escalationID}/assign", s.assignEscalation)
		r.Post("/escalations/{escalationID}/resolve", s.resolveEscalation)
	})

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Status
	st.Service = "askops"
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
