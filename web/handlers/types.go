package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/pkg/types"
)

// requestValidate checks request DTOs. It knows the relation and sibling
// type vocabularies through custom tags.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("relationtype", func(fl validator.FieldLevel) bool {
		return types.RelationType(fl.Field().String()).IsValid()
	})
	_ = requestValidate.RegisterValidation("siblingtype", func(fl validator.FieldLevel) bool {
		return types.SiblingType(fl.Field().String()).IsValid()
	})
}

// ErrorResponse is the standard error response format for non-relation endpoints.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RelationRequest is the body of the validate, create and smart-create endpoints.
// The relation type is checked by the engine so that an unknown type yields
// a structured invalid_relation_type issue.
type RelationRequest struct {
	FromMemberID string                  `json:"from_member_id" validate:"required,max=128"`
	ToMemberID   string                  `json:"to_member_id" validate:"required,max=128"`
	RelationType string                  `json:"relation_type" validate:"required,max=32"`
	Metadata     *types.RelationMetadata `json:"metadata,omitempty"`
}

func (r RelationRequest) toEngine() engine.RelationRequest {
	return engine.RelationRequest{
		FromMemberID: r.FromMemberID,
		ToMemberID:   r.ToMemberID,
		Type:         types.RelationType(r.RelationType),
		Metadata:     r.Metadata,
	}
}

// UpdateRelationRequest is the PATCH body. A missing or null sibling_type
// asks the engine to infer it from recorded parents.
type UpdateRelationRequest struct {
	SiblingType *string `json:"sibling_type" validate:"omitempty,siblingtype"`
}

// DirectionQuery holds the query parameters of suggest-direction.
type DirectionQuery struct {
	From string `validate:"required"`
	To   string `validate:"required"`
	Type string `validate:"required,relationtype"`
}

// ResolveQuery holds the query parameters of resolve.
type ResolveQuery struct {
	Current  string `validate:"required"`
	Selected string `validate:"required"`
	Type     string `validate:"required,relationtype"`
}

// RelationResponse is the result envelope of every relation mutation.
type RelationResponse struct {
	Success           bool               `json:"success"`
	RelationshipID    string             `json:"relationship_id,omitempty"`
	ReciprocalID      string             `json:"reciprocal_id,omitempty"`
	Corrected         *bool              `json:"corrected,omitempty"`
	ActualType        types.RelationType `json:"actual_type,omitempty"`
	SiblingType       types.SiblingType  `json:"sibling_type,omitempty"`
	ReciprocalUpdated *bool              `json:"reciprocal_updated,omitempty"`
	ReciprocalDeleted *bool              `json:"reciprocal_deleted,omitempty"`
	Warnings          []engine.Issue     `json:"warnings,omitempty"`
	Error             string             `json:"error,omitempty"`
	Issues            []engine.Issue     `json:"issues,omitempty"`
}

// DirectionSuggestionResponse wraps an optional direction suggestion.
type DirectionSuggestionResponse struct {
	Suggestion *engine.DirectionSuggestion `json:"suggestion"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
