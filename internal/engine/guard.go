package engine

import (
	"context"
	"errors"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

var linealTypes = []types.RelationType{types.RelationParent, types.RelationChild}

// parentChild returns the (parent, child) member ids of a lineal edge.
func parentChild(rel *types.Relation) (parentID, childID string) {
	if rel.Type == types.RelationChild {
		return rel.ToMemberID, rel.FromMemberID
	}
	return rel.FromMemberID, rel.ToMemberID
}

// checkCircular reports whether recording parent as a parent of child would
// contradict the existing parent/child graph. The one-hop contradiction
// (child already recorded as parent of parent) is checked first, then a
// bounded breadth-first walk down from child looks for parent among its
// descendants. A walk that hits its bounds yields a warning, not an error.
func (e *Engine) checkCircular(ctx context.Context, parent, child *types.Member) (*Issue, error) {
	circular := newIssue(CodeCircularRelationship, SeverityError,
		"parent_name", parent.FullName(),
		"child_name", child.FullName())

	edges, err := e.store.ListRelations(ctx, storage.RelationFilter{
		MemberIDs: []string{parent.ID, child.ID},
		Types:     linealTypes,
	})
	if err != nil {
		return nil, err
	}
	for _, rel := range edges {
		if p, c := parentChild(rel); p == child.ID && c == parent.ID {
			return &circular, nil
		}
	}

	found, err := e.isDescendant(ctx, parent.ID, child.ID)
	if errors.Is(err, ErrBoundsExceeded) {
		e.logger.Warn("engine: ancestry walk truncated", "parent", parent.ID, "child", child.ID, "error", err)
		truncated := newIssue(CodeAncestryCheckTruncated, SeverityWarning, "reason", err.Error())
		return &truncated, nil
	}
	if err != nil {
		return nil, err
	}
	if found {
		return &circular, nil
	}
	return nil, nil
}

// isDescendant walks the parent/child graph down from rootID one generation
// per store query and reports whether targetID is reached.
func (e *Engine) isDescendant(ctx context.Context, targetID, rootID string) (bool, error) {
	checker := newBoundsChecker(e.walkBounds())
	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	checker.recordNodes(1)

	for depth := 0; len(frontier) > 0; depth++ {
		if err := checker.canContinue(ctx, depth); err != nil {
			return false, err
		}

		edges, err := e.store.ListRelations(ctx, storage.RelationFilter{
			MemberIDs: frontier,
			Types:     linealTypes,
		})
		if err != nil {
			return false, err
		}

		inFrontier := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}

		var next []string
		for _, rel := range edges {
			p, c := parentChild(rel)
			if !inFrontier[p] || visited[c] {
				continue
			}
			if c == targetID {
				return true, nil
			}
			visited[c] = true
			next = append(next, c)
		}
		checker.recordNodes(len(next))
		frontier = next
	}
	return false, nil
}
