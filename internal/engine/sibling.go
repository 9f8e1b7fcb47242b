package engine

import (
	"context"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// InferSiblingType classifies two members by the number of recorded parents
// they share. The result does not depend on argument order.
func (e *Engine) InferSiblingType(ctx context.Context, memberA, memberB string) (types.SiblingType, error) {
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues("infer_sibling_type").Observe(time.Since(start).Seconds())
	}()

	edges, err := e.store.ListRelations(ctx, storage.RelationFilter{
		MemberIDs: []string{memberA, memberB},
		Types:     linealTypes,
	})
	if err != nil {
		return types.SiblingUnknown, err
	}
	return ClassifySiblings(parentsOf(edges, memberA), parentsOf(edges, memberB)), nil
}

// parentsOf collects the recorded parents of memberID from lineal edges,
// reading both the parent edge and its child reciprocal.
func parentsOf(edges []*types.Relation, memberID string) map[string]bool {
	parents := make(map[string]bool)
	for _, rel := range edges {
		if p, c := parentChild(rel); c == memberID {
			parents[p] = true
		}
	}
	return parents
}

// ClassifySiblings maps the size of the shared-parent set to a sibling type:
// two or more shared parents is full, one is half, none is unknown.
func ClassifySiblings(parentsA, parentsB map[string]bool) types.SiblingType {
	shared := 0
	for id := range parentsA {
		if parentsB[id] {
			shared++
		}
	}
	switch {
	case shared >= 2:
		return types.SiblingFull
	case shared == 1:
		return types.SiblingHalf
	default:
		return types.SiblingUnknown
	}
}
