package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 * 1024

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		slog.Warn("handlers: failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

// respondRelationError maps an engine error onto the relation envelope.
// Store causes are logged by the engine and never reach the client.
func respondRelationError(w http.ResponseWriter, err error) {
	var (
		validationErr *engine.ValidationError
		storeErr      *engine.StoreError
	)
	switch {
	case errors.As(err, &validationErr):
		issues := append(append([]engine.Issue{}, validationErr.Errors...), validationErr.Suggestions...)
		respondJSON(w, http.StatusUnprocessableEntity, RelationResponse{Error: validationErr.Error(), Issues: issues})
	case errors.Is(err, engine.ErrRelationNotFound):
		respondJSON(w, http.StatusNotFound, RelationResponse{Error: "Relationship not found"})
	case errors.Is(err, engine.ErrMemberNotFound):
		respondJSON(w, http.StatusNotFound, RelationResponse{Error: "Family member not found"})
	case errors.Is(err, engine.ErrNotSibling), errors.Is(err, engine.ErrInvalidSiblingType):
		respondJSON(w, http.StatusBadRequest, RelationResponse{Error: capitalize(err.Error())})
	case errors.As(err, &storeErr):
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, RelationResponse{Error: storeErr.Error()})
	default:
		slog.Error("handlers: unexpected engine error", "error", err)
		respondJSON(w, http.StatusInternalServerError, RelationResponse{Error: "Internal server error"})
	}
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return validateRequest(dst)
}

// validateRequest runs struct validation and flattens the failures.
func validateRequest(dst interface{}) error {
	err := requestValidate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, ", "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
