// Package types defines the core data structures for the family tree:
// members, the directed relationship edges between them, and the enums
// that classify those edges.
package types

// RelationType is the kind of a directed relationship edge.
// An edge (from, to, parent) means "from is the parent of to".
type RelationType string

// SiblingType classifies a sibling edge by the number of shared recorded parents.
type SiblingType string

// Gender is the optional recorded gender of a member.
type Gender string

// Relation type constants
const (
	RelationParent  RelationType = "parent"
	RelationChild   RelationType = "child"
	RelationSpouse  RelationType = "spouse"
	RelationSibling RelationType = "sibling"
)

// Sibling type constants
const (
	// SiblingFull means both recorded parents are shared.
	SiblingFull SiblingType = "full"

	// SiblingHalf means exactly one recorded parent is shared.
	SiblingHalf SiblingType = "half"

	// SiblingUnknown means no shared parent is recorded.
	SiblingUnknown SiblingType = "unknown"
)

// Gender constants
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ValidRelationTypes lists every relation type the engine accepts.
var ValidRelationTypes = []RelationType{
	RelationParent,
	RelationChild,
	RelationSpouse,
	RelationSibling,
}

// IsValid reports whether t is one of the four supported relation types.
func (t RelationType) IsValid() bool {
	for _, v := range ValidRelationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Reciprocal returns the type of the complementary edge: parent and child
// swap, spouse and sibling are symmetric.
func (t RelationType) Reciprocal() RelationType {
	switch t {
	case RelationParent:
		return RelationChild
	case RelationChild:
		return RelationParent
	default:
		return t
	}
}

// IsLineal reports whether t is a parent or child edge.
func (t RelationType) IsLineal() bool {
	return t == RelationParent || t == RelationChild
}

// IsValid reports whether s is a known sibling classification.
func (s SiblingType) IsValid() bool {
	switch s {
	case SiblingFull, SiblingHalf, SiblingUnknown:
		return true
	}
	return false
}

// IsValid reports whether g is a known gender. Empty is valid (not recorded).
func (g Gender) IsValid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}
