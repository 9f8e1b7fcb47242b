package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

const memberColumns = "id, first_name, last_name, birth_date, gender"

// GetMembers resolves ids to member records. Unknown ids are omitted.
func (s *DB) GetMembers(ctx context.Context, ids []string) (map[string]*types.Member, error) {
	result := make(map[string]*types.Member, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	marks, args := inClause(ids)
	query := fmt.Sprintf("SELECT %s FROM members WHERE id IN (%s)", memberColumns, marks)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.classify("get members", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, s.classify("scan member", err)
		}
		result[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("get members rows", err)
	}
	return result, nil
}

// ListMembers returns every member ordered by last name, first name.
func (s *DB) ListMembers(ctx context.Context) ([]*types.Member, error) {
	query := fmt.Sprintf("SELECT %s FROM members ORDER BY last_name ASC, first_name ASC, id ASC", memberColumns)

	rows, err := s.db.QueryContext(ctx, s.rebind(query))
	if err != nil {
		return nil, s.classify("list members", err)
	}
	defer rows.Close()

	var members []*types.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, s.classify("scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("list members rows", err)
	}
	return members, nil
}

// UpsertMember creates or replaces a member record.
func (s *DB) UpsertMember(ctx context.Context, member *types.Member) error {
	if member == nil || member.ID == "" {
		return fmt.Errorf("%w: member ID is required", storage.ErrInvalidInput)
	}
	if member.FirstName == "" {
		return fmt.Errorf("%w: member first name is required", storage.ErrInvalidInput)
	}
	if !member.Gender.IsValid() {
		return fmt.Errorf("%w: unknown gender %q", storage.ErrInvalidInput, member.Gender)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO members (id, first_name, last_name, birth_date, gender)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			birth_date = excluded.birth_date,
			gender = excluded.gender
	`), member.ID, member.FirstName, member.LastName, nullableDate(member.BirthDate), nullableString(string(member.Gender)))
	if err != nil {
		return s.classify("upsert member", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*types.Member, error) {
	var (
		m         types.Member
		birthDate sql.NullString
		gender    sql.NullString
	)
	if err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &birthDate, &gender); err != nil {
		return nil, err
	}
	bd, err := parseDate(birthDate)
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", m.ID, err)
	}
	m.BirthDate = bd
	if gender.Valid {
		m.Gender = types.Gender(gender.String)
	}
	return &m, nil
}
