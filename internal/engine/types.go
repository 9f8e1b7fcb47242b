// Package engine provides the relationship-graph integrity engine.
// It validates, creates, corrects and deletes directed relationship edges
// between family members, and keeps every edge paired with its reciprocal.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/familytree/pkg/types"
)

// MetadataMode controls how the engine treats the optional relations.metadata column.
type MetadataMode string

const (
	// MetadataAuto probes the store on first use and remembers the answer.
	MetadataAuto MetadataMode = "auto"

	// MetadataOn always writes the metadata column.
	MetadataOn MetadataMode = "on"

	// MetadataOff never writes the metadata column.
	MetadataOff MetadataMode = "off"
)

// Config holds configuration for the relationship engine.
type Config struct {
	// MetadataMode seeds the metadata capability flag (default: auto).
	MetadataMode MetadataMode

	// MaxAncestorDepth bounds the descendant walk of the circular
	// relationship guard (default: 64 generations).
	MaxAncestorDepth int

	// MaxAncestorNodes bounds the number of members visited by the walk (default: 10000).
	MaxAncestorNodes int

	// AncestorTimeout bounds the wall-clock time of the walk (default: 5s).
	AncestorTimeout time.Duration

	// Logger receives store failures and best-effort failures (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MetadataMode:     MetadataAuto,
		MaxAncestorDepth: 64,
		MaxAncestorNodes: 10000,
		AncestorTimeout:  5 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	switch c.MetadataMode {
	case MetadataAuto, MetadataOn, MetadataOff:
	default:
		return fmt.Errorf("MetadataMode must be auto, on or off, got %q", c.MetadataMode)
	}

	if c.MaxAncestorDepth < 1 {
		return fmt.Errorf("MaxAncestorDepth must be >= 1, got %d", c.MaxAncestorDepth)
	}

	if c.MaxAncestorNodes < 1 {
		return fmt.Errorf("MaxAncestorNodes must be >= 1, got %d", c.MaxAncestorNodes)
	}

	if c.AncestorTimeout <= 0 {
		return fmt.Errorf("AncestorTimeout must be > 0, got %v", c.AncestorTimeout)
	}

	return nil
}

// RelationRequest asks for an edge (From, To, Type) in canonical direction.
type RelationRequest struct {
	FromMemberID string                  `json:"from_member_id"`
	ToMemberID   string                  `json:"to_member_id"`
	Type         types.RelationType      `json:"relation_type"`
	Metadata     *types.RelationMetadata `json:"metadata,omitempty"`
}

// CreateResult describes a successfully created edge pair.
type CreateResult struct {
	RelationshipID string            `json:"relationship_id"`
	ReciprocalID   string            `json:"reciprocal_id"`
	SiblingType    types.SiblingType `json:"sibling_type,omitempty"`
	Warnings       []Issue           `json:"warnings,omitempty"`
}

// SmartCreateResult describes the outcome of CreateSmart.
type SmartCreateResult struct {
	CreateResult
	Corrected  bool               `json:"corrected"`
	ActualType types.RelationType `json:"actual_type"`
}

// UpdateRequest changes mutable edge attributes. A nil SiblingType asks the
// engine to re-infer the classification from recorded parents.
type UpdateRequest struct {
	SiblingType *types.SiblingType `json:"sibling_type"`
}

// UpdateResult describes an applied update.
type UpdateResult struct {
	SiblingType       types.SiblingType `json:"sibling_type"`
	ReciprocalUpdated bool              `json:"reciprocal_updated"`
}

// DeleteResult describes an applied delete.
type DeleteResult struct {
	ReciprocalDeleted bool `json:"reciprocal_deleted"`
}

// EventType names a relation change event.
type EventType string

const (
	EventRelationCreated EventType = "relation.created"
	EventRelationUpdated EventType = "relation.updated"
	EventRelationDeleted EventType = "relation.deleted"
)

// Event is emitted after a successful mutation.
type Event struct {
	Type         EventType          `json:"type"`
	RelationID   string             `json:"relation_id"`
	FromMemberID string             `json:"from_member_id"`
	ToMemberID   string             `json:"to_member_id"`
	RelationType types.RelationType `json:"relation_type"`
	Timestamp    time.Time          `json:"timestamp"`
}
