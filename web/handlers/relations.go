package handlers

import (
	"log/slog"
	"net/http"

	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/pkg/types"
)

// RelationsHandler exposes the relationship engine over HTTP.
type RelationsHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewRelationsHandler creates a handler backed by eng.
func NewRelationsHandler(eng *engine.Engine, logger *slog.Logger) *RelationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationsHandler{engine: eng, logger: logger}
}

// Register mounts every relation and member route on mux.
func (h *RelationsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/relations/validate", h.ValidateRelation)
	mux.HandleFunc("POST /api/relations", h.CreateRelation)
	mux.HandleFunc("POST /api/relations/smart", h.CreateRelationSmart)
	mux.HandleFunc("PATCH /api/relations/{id}", h.UpdateRelation)
	mux.HandleFunc("DELETE /api/relations/{id}", h.DeleteRelation)
	mux.HandleFunc("GET /api/relations", h.ListRelations)
	mux.HandleFunc("GET /api/relations/audit", h.Audit)
	mux.HandleFunc("POST /api/relations/audit/repair", h.RepairReciprocals)
	mux.HandleFunc("GET /api/relations/suggest-direction", h.SuggestDirection)
	mux.HandleFunc("GET /api/relations/resolve", h.ResolveDirection)
	mux.HandleFunc("GET /api/members/with-relations", h.MembersWithRelations)
	mux.HandleFunc("GET /api/members/{id}/suggestions", h.MemberSuggestions)
}

// ValidateRelation handles POST /api/relations/validate.
func (h *RelationsHandler) ValidateRelation(w http.ResponseWriter, r *http.Request) {
	var req RelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, RelationResponse{Error: err.Error()})
		return
	}

	result, err := h.engine.Validate(r.Context(), req.toEngine())
	if err != nil {
		respondRelationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CreateRelation handles POST /api/relations.
func (h *RelationsHandler) CreateRelation(w http.ResponseWriter, r *http.Request) {
	var req RelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, RelationResponse{Error: err.Error()})
		return
	}

	result, err := h.engine.Create(r.Context(), req.toEngine())
	if err != nil {
		respondRelationError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, createdResponse(result))
}

// CreateRelationSmart handles POST /api/relations/smart. A parent or child
// request whose direction contradicts birth dates is retried swapped.
func (h *RelationsHandler) CreateRelationSmart(w http.ResponseWriter, r *http.Request) {
	var req RelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, RelationResponse{Error: err.Error()})
		return
	}

	result, err := h.engine.CreateSmart(r.Context(), req.toEngine())
	if err != nil {
		respondRelationError(w, err)
		return
	}
	resp := createdResponse(&result.CreateResult)
	corrected := result.Corrected
	resp.Corrected = &corrected
	resp.ActualType = result.ActualType
	respondJSON(w, http.StatusCreated, resp)
}

func createdResponse(result *engine.CreateResult) RelationResponse {
	return RelationResponse{
		Success:        true,
		RelationshipID: result.RelationshipID,
		ReciprocalID:   result.ReciprocalID,
		SiblingType:    result.SiblingType,
		Warnings:       result.Warnings,
	}
}

// UpdateRelation handles PATCH /api/relations/{id}.
func (h *RelationsHandler) UpdateRelation(w http.ResponseWriter, r *http.Request) {
	var req UpdateRelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, RelationResponse{Error: err.Error()})
		return
	}

	var update engine.UpdateRequest
	if req.SiblingType != nil {
		st := types.SiblingType(*req.SiblingType)
		update.SiblingType = &st
	}

	result, err := h.engine.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		respondRelationError(w, err)
		return
	}
	reciprocalUpdated := result.ReciprocalUpdated
	respondJSON(w, http.StatusOK, RelationResponse{
		Success:           true,
		RelationshipID:    r.PathValue("id"),
		SiblingType:       result.SiblingType,
		ReciprocalUpdated: &reciprocalUpdated,
	})
}

// DeleteRelation handles DELETE /api/relations/{id}.
func (h *RelationsHandler) DeleteRelation(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		respondRelationError(w, err)
		return
	}
	reciprocalDeleted := result.ReciprocalDeleted
	respondJSON(w, http.StatusOK, RelationResponse{
		Success:           true,
		RelationshipID:    r.PathValue("id"),
		ReciprocalDeleted: &reciprocalDeleted,
	})
}

// ListRelations handles GET /api/relations.
func (h *RelationsHandler) ListRelations(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.ListAll(r.Context())
	if err != nil {
		respondRelationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// Audit handles GET /api/relations/audit[?member_id=].
func (h *RelationsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Audit(r.Context(), r.URL.Query().Get("member_id"))
	if err != nil {
		respondRelationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// RepairReciprocals handles POST /api/relations/audit/repair.
func (h *RelationsHandler) RepairReciprocals(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RepairReciprocals(r.Context())
	if err != nil {
		respondRelationError(w, err)
		return
	}
	h.logger.Info("handlers: reciprocal repair finished", "created", report.Created, "failed", report.Failed)
	respondJSON(w, http.StatusOK, report)
}

// SuggestDirection handles GET /api/relations/suggest-direction?from=&to=&type=.
func (h *RelationsHandler) SuggestDirection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := DirectionQuery{From: q.Get("from"), To: q.Get("to"), Type: q.Get("type")}
	if err := validateRequest(&query); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid direction query", err)
		return
	}

	suggestion, err := h.engine.SuggestDirection(r.Context(), query.From, query.To, types.RelationType(query.Type))
	if err != nil {
		respondRelationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, DirectionSuggestionResponse{Suggestion: suggestion})
}

// ResolveDirection handles GET /api/relations/resolve?current=&selected=&type=.
func (h *RelationsHandler) ResolveDirection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ResolveQuery{Current: q.Get("current"), Selected: q.Get("selected"), Type: q.Get("type")}
	if err := validateRequest(&query); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid resolve query", err)
		return
	}
	respondJSON(w, http.StatusOK, engine.ResolveDirection(query.Current, query.Selected, types.RelationType(query.Type)))
}

// MembersWithRelations handles GET /api/members/with-relations.
func (h *RelationsHandler) MembersWithRelations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.MembersWithRelations(r.Context()))
}

// MemberSuggestions handles GET /api/members/{id}/suggestions.
func (h *RelationsHandler) MemberSuggestions(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.engine.SuggestCandidates(r.Context(), r.PathValue("id"))
	if err != nil {
		respondRelationError(w, err)
		return
	}
	if candidates == nil {
		candidates = []engine.Candidate{}
	}
	respondJSON(w, http.StatusOK, candidates)
}
