package engine

import "github.com/scrypster/familytree/pkg/types"

// Direction is a user-perspective request translated into a canonically
// directed edge. Roles describe each member's part in the resulting edge.
type Direction struct {
	FromMemberID string             `json:"from_member_id"`
	ToMemberID   string             `json:"to_member_id"`
	Type         types.RelationType `json:"relation_type"`
	CurrentRole  types.RelationType `json:"current_role"`
	SelectedRole types.RelationType `json:"selected_role"`
}

// ResolveDirection turns "selected is my <desired>" as seen by the current
// member into a canonical edge. Parent requests always produce a parent edge
// pointing from the older generation to the younger one.
func ResolveDirection(currentID, selectedID string, desired types.RelationType) Direction {
	switch desired {
	case types.RelationParent:
		return Direction{
			FromMemberID: selectedID,
			ToMemberID:   currentID,
			Type:         types.RelationParent,
			CurrentRole:  types.RelationChild,
			SelectedRole: types.RelationParent,
		}
	case types.RelationChild:
		return Direction{
			FromMemberID: currentID,
			ToMemberID:   selectedID,
			Type:         types.RelationParent,
			CurrentRole:  types.RelationParent,
			SelectedRole: types.RelationChild,
		}
	default:
		return Direction{
			FromMemberID: currentID,
			ToMemberID:   selectedID,
			Type:         desired,
			CurrentRole:  desired,
			SelectedRole: desired,
		}
	}
}

// Request converts the direction into a create request.
func (d Direction) Request() RelationRequest {
	return RelationRequest{
		FromMemberID: d.FromMemberID,
		ToMemberID:   d.ToMemberID,
		Type:         d.Type,
	}
}
