// Package postgres provides the PostgreSQL backend for the family tree store.
package postgres

// Schema contains the SQL statements to create the database schema for PostgreSQL.
// All statements are idempotent. The unique index on (from_member_id,
// to_member_id) closes the check-then-insert race for duplicate edges.
const Schema = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL DEFAULT '',
    birth_date DATE,
    gender TEXT CHECK (gender IS NULL OR gender IN ('male', 'female', 'other'))
);

CREATE TABLE IF NOT EXISTS relations (
    id TEXT PRIMARY KEY,
    from_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    to_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL CHECK (relation_type IN ('parent', 'child', 'spouse', 'sibling')),
    sibling_type TEXT CHECK (sibling_type IS NULL OR sibling_type IN ('full', 'half', 'unknown')),
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (from_member_id <> to_member_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_pair ON relations(from_member_id, to_member_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_member_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_members_name ON members(last_name, first_name);
`
