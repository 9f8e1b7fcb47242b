package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// relationColumns returns the select list for relations and whether it
// includes the metadata column.
func (s *DB) relationColumns() (string, bool) {
	cols := "id, from_member_id, to_member_id, relation_type, sibling_type, created_at, updated_at"
	withMetadata := s.readMetadata.Load()
	if withMetadata {
		cols += ", metadata"
	}
	return cols, withMetadata
}

// CreateRelationPair inserts primary and reciprocal in a single transaction.
// An existing row for the reciprocal's ordered pair is left untouched, which
// lets a create repair a dangling reciprocal instead of failing on it.
func (s *DB) CreateRelationPair(ctx context.Context, primary, reciprocal *types.Relation, withMetadata bool) error {
	if err := validateRelation(primary); err != nil {
		return err
	}
	if err := validateRelation(reciprocal); err != nil {
		return err
	}
	if primary.FromMemberID != reciprocal.ToMemberID || primary.ToMemberID != reciprocal.FromMemberID {
		return fmt.Errorf("%w: reciprocal must reverse the primary edge", storage.ErrInvalidInput)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertRelation(ctx, tx, primary, withMetadata, false); err != nil {
			return err
		}
		return s.insertRelation(ctx, tx, reciprocal, withMetadata, true)
	})
}

// CreateRelation inserts a single edge.
func (s *DB) CreateRelation(ctx context.Context, rel *types.Relation, withMetadata bool) error {
	if err := validateRelation(rel); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertRelation(ctx, tx, rel, withMetadata, false)
	})
}

func (s *DB) insertRelation(ctx context.Context, tx *sql.Tx, rel *types.Relation, withMetadata, ignoreExisting bool) error {
	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	if rel.UpdatedAt.IsZero() {
		rel.UpdatedAt = now
	}

	cols := []string{"id", "from_member_id", "to_member_id", "relation_type", "sibling_type", "created_at", "updated_at"}
	args := []interface{}{
		rel.ID, rel.FromMemberID, rel.ToMemberID, string(rel.Type),
		storedSiblingType(rel.SiblingType), rel.CreatedAt, rel.UpdatedAt,
	}

	if withMetadata {
		var metadata sql.NullString
		if !rel.Metadata.IsEmpty() {
			b, err := json.Marshal(rel.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal relation metadata: %w", err)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}
		cols = append(cols, "metadata")
		args = append(args, metadata)
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO relations (%s) VALUES (%s)", strings.Join(cols, ", "), marks)
	if ignoreExisting {
		query += " ON CONFLICT (from_member_id, to_member_id) DO NOTHING"
	}

	if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return s.classify("insert relation "+rel.ID, err)
	}
	return nil
}

// GetRelation retrieves an edge by id.
func (s *DB) GetRelation(ctx context.Context, id string) (*types.Relation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: relation ID is required", storage.ErrInvalidInput)
	}
	cols, withMetadata := s.relationColumns()
	query := fmt.Sprintf("SELECT %s FROM relations WHERE id = ?", cols)
	rel, err := s.scanRelation(s.db.QueryRowContext(ctx, s.rebind(query), id), withMetadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, s.classify("get relation", err)
	}
	return rel, nil
}

// FindRelation returns the edge for the exact ordered pair (from, to).
func (s *DB) FindRelation(ctx context.Context, fromID, toID string) (*types.Relation, error) {
	cols, withMetadata := s.relationColumns()
	query := fmt.Sprintf("SELECT %s FROM relations WHERE from_member_id = ? AND to_member_id = ?", cols)
	rel, err := s.scanRelation(s.db.QueryRowContext(ctx, s.rebind(query), fromID, toID), withMetadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, s.classify("find relation", err)
	}
	return rel, nil
}

// ListRelations returns edges matching filter ordered by creation.
func (s *DB) ListRelations(ctx context.Context, filter storage.RelationFilter) ([]*types.Relation, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []interface{}
	)
	if len(filter.MemberIDs) > 0 {
		marks, ids := inClause(filter.MemberIDs)
		where = append(where, fmt.Sprintf("(from_member_id IN (%s) OR to_member_id IN (%s))", marks, marks))
		args = append(args, ids...)
		args = append(args, ids...)
	}
	if len(filter.Types) > 0 {
		names := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			names[i] = string(t)
		}
		marks, typeArgs := inClause(names)
		where = append(where, fmt.Sprintf("relation_type IN (%s)", marks))
		args = append(args, typeArgs...)
	}

	cols, withMetadata := s.relationColumns()
	query := fmt.Sprintf("SELECT %s FROM relations", cols)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.classify("list relations", err)
	}
	defer rows.Close()

	var relations []*types.Relation
	for rows.Next() {
		rel, err := s.scanRelation(rows, withMetadata)
		if err != nil {
			return nil, s.classify("scan relation", err)
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("list relations rows", err)
	}
	return relations, nil
}

// UpdateSiblingType sets the sibling classification of an edge by id.
func (s *DB) UpdateSiblingType(ctx context.Context, id string, siblingType types.SiblingType) error {
	return s.execAffectingOne(ctx, "update sibling type",
		"UPDATE relations SET sibling_type = ?, updated_at = ? WHERE id = ?",
		storedSiblingType(siblingType), time.Now().UTC(), id)
}

// UpdateSiblingTypeByPair sets the sibling classification of the (from, to) edge.
func (s *DB) UpdateSiblingTypeByPair(ctx context.Context, fromID, toID string, siblingType types.SiblingType) error {
	return s.execAffectingOne(ctx, "update sibling type by pair",
		"UPDATE relations SET sibling_type = ?, updated_at = ? WHERE from_member_id = ? AND to_member_id = ? AND relation_type = ?",
		storedSiblingType(siblingType), time.Now().UTC(), fromID, toID, string(types.RelationSibling))
}

// DeleteRelation removes an edge by id.
func (s *DB) DeleteRelation(ctx context.Context, id string) error {
	return s.execAffectingOne(ctx, "delete relation",
		"DELETE FROM relations WHERE id = ?", id)
}

// DeleteRelationByPair removes the edge (from, to, relType).
func (s *DB) DeleteRelationByPair(ctx context.Context, fromID, toID string, relType types.RelationType) error {
	return s.execAffectingOne(ctx, "delete relation by pair",
		"DELETE FROM relations WHERE from_member_id = ? AND to_member_id = ? AND relation_type = ?",
		fromID, toID, string(relType))
}

// execAffectingOne runs a statement and returns ErrNotFound when no row changed.
func (s *DB) execAffectingOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return s.classify(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return s.classify(op+": rows affected", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *DB) scanRelation(row rowScanner, withMetadata bool) (*types.Relation, error) {
	var (
		rel         types.Relation
		relType     string
		siblingType sql.NullString
		metadata    sql.NullString
	)
	dest := []interface{}{
		&rel.ID, &rel.FromMemberID, &rel.ToMemberID, &relType, &siblingType, &rel.CreatedAt, &rel.UpdatedAt,
	}
	if withMetadata {
		dest = append(dest, &metadata)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rel.Type = types.RelationType(relType)
	if siblingType.Valid {
		rel.SiblingType = types.SiblingType(siblingType.String)
	} else if rel.Type == types.RelationSibling {
		rel.SiblingType = types.SiblingUnknown
	}
	if metadata.Valid && metadata.String != "" {
		var md types.RelationMetadata
		if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
			return nil, fmt.Errorf("relation %s: failed to unmarshal metadata: %w", rel.ID, err)
		}
		rel.Metadata = &md
	}
	return &rel, nil
}

// storedSiblingType maps the unknown classification to NULL.
func storedSiblingType(st types.SiblingType) sql.NullString {
	if st == types.SiblingUnknown {
		return sql.NullString{Valid: false}
	}
	return nullableString(string(st))
}

func validateRelation(rel *types.Relation) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.ID == "" {
		return fmt.Errorf("%w: relation ID is required", storage.ErrInvalidInput)
	}
	if rel.FromMemberID == "" || rel.ToMemberID == "" {
		return fmt.Errorf("%w: both member IDs are required", storage.ErrInvalidInput)
	}
	if rel.FromMemberID == rel.ToMemberID {
		return fmt.Errorf("%w: relation endpoints must differ", storage.ErrInvalidInput)
	}
	if !rel.Type.IsValid() {
		return fmt.Errorf("%w: unknown relation type %q", storage.ErrInvalidInput, rel.Type)
	}
	if rel.SiblingType != "" && !rel.SiblingType.IsValid() {
		return fmt.Errorf("%w: unknown sibling type %q", storage.ErrInvalidInput, rel.SiblingType)
	}
	return nil
}
