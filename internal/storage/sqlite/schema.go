package sqlite

// Schema creates the members and relations tables.
// The unique index on (from_member_id, to_member_id) enforces at most one
// edge per ordered pair at the store layer, so two concurrent creates for the
// same pair cannot both succeed. Reciprocal edges are maintained by the
// relationship engine; there are no triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL DEFAULT '',
    birth_date TEXT,
    gender TEXT CHECK (gender IS NULL OR gender IN ('male', 'female', 'other'))
);

CREATE TABLE IF NOT EXISTS relations (
    id TEXT PRIMARY KEY,
    from_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    to_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL CHECK (relation_type IN ('parent', 'child', 'spouse', 'sibling')),
    sibling_type TEXT CHECK (sibling_type IS NULL OR sibling_type IN ('full', 'half', 'unknown')),
    metadata TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (from_member_id <> to_member_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_pair ON relations(from_member_id, to_member_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_member_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_members_name ON members(last_name, first_name);
`

// LegacySchema is the relations layout of deployments that predate relation
// metadata. Stores opened with it exercise the metadata-column fallback.
const LegacySchema = `
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL DEFAULT '',
    birth_date TEXT,
    gender TEXT
);

CREATE TABLE IF NOT EXISTS relations (
    id TEXT PRIMARY KEY,
    from_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    to_member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    sibling_type TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_pair ON relations(from_member_id, to_member_id);
`
