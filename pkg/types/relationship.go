package types

import "time"

// RelationMetadata carries optional facts about an edge. It is persisted only
// when the backing schema has a metadata column.
type RelationMetadata struct {
	MarriageDate *time.Time `json:"marriage_date,omitempty"`
	DivorceDate  *time.Time `json:"divorce_date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// IsEmpty reports whether no metadata field is set.
func (m *RelationMetadata) IsEmpty() bool {
	return m == nil || (m.MarriageDate == nil && m.DivorceDate == nil && m.Notes == "")
}

// Relation is a directed relationship edge between two members.
// Every persisted edge (A, B, t) has a reciprocal edge (B, A, t.Reciprocal()).
type Relation struct {
	ID           string            `json:"id"`             // Unique identifier (format: rel:uuid)
	FromMemberID string            `json:"from_member_id"` // Source member
	ToMemberID   string            `json:"to_member_id"`   // Target member
	Type         RelationType      `json:"relation_type"`
	SiblingType  SiblingType       `json:"sibling_type,omitempty"` // Only meaningful for sibling edges
	Metadata     *RelationMetadata `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ReciprocalOf builds the complementary edge for r with the given id.
// Sibling classification and metadata are mirrored.
func (r *Relation) ReciprocalOf(id string) *Relation {
	return &Relation{
		ID:           id,
		FromMemberID: r.ToMemberID,
		ToMemberID:   r.FromMemberID,
		Type:         r.Type.Reciprocal(),
		SiblingType:  r.SiblingType,
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Involves reports whether memberID is either endpoint of r.
func (r *Relation) Involves(memberID string) bool {
	return r.FromMemberID == memberID || r.ToMemberID == memberID
}

// RelationView is a relation joined with display names of both endpoints.
type RelationView struct {
	Relation
	FromMember *MemberSummary `json:"from_member,omitempty"`
	ToMember   *MemberSummary `json:"to_member,omitempty"`
}

// RelatedMember is one outgoing edge of a member resolved to the peer's summary.
type RelatedMember struct {
	RelationID  string        `json:"relation_id"`
	Type        RelationType  `json:"relation_type"`
	SiblingType SiblingType   `json:"sibling_type,omitempty"`
	Member      MemberSummary `json:"member"`
}

// MemberWithRelations is a member augmented with its resolved outgoing edges.
// It drives tree and graph visualizations.
type MemberWithRelations struct {
	Member
	Relations []RelatedMember `json:"relations"`
}
