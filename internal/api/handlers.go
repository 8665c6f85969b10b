package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/escalation"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/importer"
	"github.com/MikeSquared-Agency/askops/internal/processor"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

type messageRequest struct {
	Phone       string   `json:"phone"`
	DisplayName string   `json:"display_name,omitempty"`
	Text        string   `json:"text"`
	ButtonID    string   `json:"button_id,omitempty"`
	MediaURLs   []string `json:"media_urls,omitempty"`
}

// POST /api/v1/companies/{companyID}/messages
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.deps.Processor.HandleMessage(r.Context(), hermes.InboundMessage{
		CompanyID:   chi.URLParam(r, "companyID"),
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		Text:        req.Text,
		ButtonID:    req.ButtonID,
		MediaURLs:   req.MediaURLs,
	})
	if errors.Is(err, processor.ErrInvalidMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("message failed", "error", err)
		writeError(w, http.StatusInternalServerError, "message processing failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type importRequest struct {
	Transcript    string   `json:"transcript"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	DryRun        bool     `json:"dry_run"`
}

// POST /api/v1/companies/{companyID}/imports
func (s *Server) postImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	opts := importer.Options{MinConfidence: s.deps.ImportMinConfidence, DryRun: req.DryRun}
	if req.MinConfidence != nil {
		if *req.MinConfidence < 0 || *req.MinConfidence > 1 {
			writeError(w, http.StatusBadRequest, "min_confidence must be within [0,1]")
			return
		}
		opts.MinConfidence = *req.MinConfidence
	}

	report, err := s.deps.Imports.Run(r.Context(), chi.URLParam(r, "companyID"), req.Transcript, opts)
	if err != nil {
		s.logger.Error("import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/companies/{companyID}/knowledge?category=
func (s *Server) listKnowledge(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	var categoryID *uuid.UUID
	if name := r.URL.Query().Get("category"); name != "" {
		cat, err := s.deps.Store.FindCategoryByName(r.Context(), companyID, name)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		if err != nil {
			s.logger.Error("category lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "category lookup failed")
			return
		}
		categoryID = &cat.ID
	}

	items, err := s.deps.Store.ListItemsByCategory(r.Context(), companyID, categoryID)
	if err != nil {
		s.logger.Error("list knowledge failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []store.KnowledgeItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// DELETE /api/v1/knowledge/{itemID}
func (s *Server) deleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	err := s.deps.Store.SoftDeleteItem(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		s.logger.Error("delete knowledge failed", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/companies/{companyID}/escalations?status=
func (s *Server) listEscalations(w http.ResponseWriter, r *http.Request) {
	status := store.EscalationStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	escs, err := s.deps.Store.ListEscalations(r.Context(), chi.URLParam(r, "companyID"), status)
	if err != nil {
		s.logger.Error("list escalations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if escs == nil {
		escs = []store.Escalation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": escs, "count": len(escs)})
}

type assignRequest struct {
	ManagerSessionID string `json:"manager_session_id"`
}

// POST /api/v1/escalations/{escalationID}/assign
func (s *Server) assignEscalation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "escalationID")
	if !ok {
		return
	}
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	managerID, err := uuid.Parse(req.ManagerSessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid manager_session_id")
		return
	}

	assigned, err := s.deps.Processor.AssignEscalation(r.Context(), id, managerID)
	if errors.Is(err, escalation.ErrNotManager) {
		writeError(w, http.StatusBadRequest, "manager_session_id is not an active manager of this company")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	if err != nil {
		s.logger.Error("assign failed", "escalation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "assign failed")
		return
	}
	code := http.StatusOK
	if !assigned {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]bool{"assigned": assigned})
}

type resolveRequest struct {
	Response  string   `json:"response"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// POST /api/v1/escalations/{escalationID}/resolve
func (s *Server) resolveEscalation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "escalationID")
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		writeError(w, http.StatusBadRequest, "response is required")
		return
	}

	res, err := s.deps.Processor.ResolveEscalation(r.Context(), id, req.Response, req.MediaURLs)
	if errors.Is(err, escalation.ErrEmptyResponse) {
		writeError(w, http.StatusBadRequest, "response is required")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "escalation not found")
		return
	}
	if err != nil {
		s.logger.Error("resolve failed", "escalation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	code := http.StatusOK
	if !res.Resolved {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{
		"resolved":          res.Resolved,
		"escalation":        res.Escalation,
		"knowledge_item_id": res.KnowledgeItemID,
	})
}
