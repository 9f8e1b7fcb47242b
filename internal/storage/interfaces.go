// Package storage provides composable storage interfaces for the family tree.
//
// The storage layer is split into small, focused interfaces so the
// relationship engine can depend only on what it uses: a read-only member
// directory and a relationship edge store. Backends in the sqlite and
// postgres subpackages implement both.
package storage

import (
	"context"

	"github.com/scrypster/familytree/pkg/types"
)

// MemberDirectory provides read access to member records.
// The relationship engine never creates or mutates members.
type MemberDirectory interface {
	// GetMembers resolves the given ids to member records.
	// Unknown ids are simply absent from the returned map.
	GetMembers(ctx context.Context, ids []string) (map[string]*types.Member, error)

	// ListMembers returns every member ordered by last name, first name.
	ListMembers(ctx context.Context) ([]*types.Member, error)
}

// MemberWriter seeds the directory. It is used by importers and tests,
// never by the relationship engine.
type MemberWriter interface {
	// UpsertMember creates or replaces a member record.
	UpsertMember(ctx context.Context, member *types.Member) error
}

// RelationStore provides CRUD over relationship edge records.
type RelationStore interface {
	// CreateRelationPair inserts an edge and its reciprocal in one transaction.
	// A reciprocal row that already exists for the same ordered pair is kept.
	// Returns ErrDuplicate when the primary pair already has an edge and
	// ErrMetadataUnsupported when withMetadata is set on a schema without the
	// metadata column.
	CreateRelationPair(ctx context.Context, primary, reciprocal *types.Relation, withMetadata bool) error

	// CreateRelation inserts a single edge.
	CreateRelation(ctx context.Context, rel *types.Relation, withMetadata bool) error

	// GetRelation retrieves an edge by id. Returns ErrNotFound if absent.
	GetRelation(ctx context.Context, id string) (*types.Relation, error)

	// FindRelation returns the edge for the exact ordered pair (from, to).
	// Returns ErrNotFound if no such edge exists.
	FindRelation(ctx context.Context, fromID, toID string) (*types.Relation, error)

	// ListRelations returns edges matching the filter.
	ListRelations(ctx context.Context, filter RelationFilter) ([]*types.Relation, error)

	// UpdateSiblingType sets the sibling classification of an edge by id.
	// A SiblingUnknown value clears the stored classification.
	UpdateSiblingType(ctx context.Context, id string, siblingType types.SiblingType) error

	// UpdateSiblingTypeByPair sets the sibling classification of the edge for
	// the ordered pair (from, to). Returns ErrNotFound if no such edge exists.
	UpdateSiblingTypeByPair(ctx context.Context, fromID, toID string, siblingType types.SiblingType) error

	// DeleteRelation removes an edge by id. Returns ErrNotFound if absent.
	DeleteRelation(ctx context.Context, id string) error

	// DeleteRelationByPair removes the edge (from, to, relType).
	// Returns ErrNotFound if no such edge exists.
	DeleteRelationByPair(ctx context.Context, fromID, toID string, relType types.RelationType) error

	// SupportsMetadata probes whether the relations table has a metadata column.
	SupportsMetadata(ctx context.Context) (bool, error)
}

// Store is the full backing store used by the relationship engine.
type Store interface {
	MemberDirectory
	RelationStore

	// Close releases any resources held by the store.
	Close() error
}
