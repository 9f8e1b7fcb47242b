package storage

import (
	"errors"
	"fmt"

	"github.com/scrypster/familytree/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates that an edge already exists for the ordered
	// member pair (unique index on from_member_id, to_member_id).
	ErrDuplicate = errors.New("relation already exists for member pair")

	// ErrMetadataUnsupported indicates that the relations table has no
	// metadata column.
	ErrMetadataUnsupported = errors.New("relations metadata column not supported")
)

// RelationFilter selects edges for ListRelations. Zero-valued fields do not filter.
type RelationFilter struct {
	// MemberIDs restricts results to edges touching any of these members
	// (as either endpoint).
	MemberIDs []string

	// Types restricts results to these relation types.
	Types []types.RelationType
}

// Validate checks the filter for malformed values.
func (f RelationFilter) Validate() error {
	for _, t := range f.Types {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown relation type %q", ErrInvalidInput, t)
		}
	}
	for _, id := range f.MemberIDs {
		if id == "" {
			return fmt.Errorf("%w: empty member id in filter", ErrInvalidInput)
		}
	}
	return nil
}
