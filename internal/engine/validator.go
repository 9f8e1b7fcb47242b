package engine

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// Age-gap thresholds in whole years.
const (
	minParentAgeGap  = 12
	maxParentAgeGap  = 80
	maxSpouseAgeGap  = 30
	maxSiblingAgeGap = 20
)

// validation is the full outcome of validating a request, including the
// records the mutator needs afterwards.
type validation struct {
	result  *ValidationResult
	from    *types.Member
	to      *types.Member
	reverse *types.Relation // existing (to, from) edge, if any
}

// Validate checks a prospective edge against member data and existing edges.
// A store failure is returned as a *StoreError; rule violations are reported
// in the result and never as an error.
func (e *Engine) Validate(ctx context.Context, req RelationRequest) (*ValidationResult, error) {
	start := time.Now()
	v, err := e.validate(ctx, req)
	operationDuration.WithLabelValues("validate").Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Error("engine: validation store failure", "from", req.FromMemberID, "to", req.ToMemberID, "error", err)
		return nil, &StoreError{Op: "validate", Err: err}
	}
	countIssues(v.result)
	return v.result, nil
}

func (e *Engine) validate(ctx context.Context, req RelationRequest) (*validation, error) {
	v := &validation{result: &ValidationResult{}}
	r := v.result

	if !req.Type.IsValid() {
		r.add(newIssue(CodeInvalidRelationType, SeverityError, "type", string(req.Type)))
		return v.finish(), nil
	}

	members, err := e.store.GetMembers(ctx, []string{req.FromMemberID, req.ToMemberID})
	if err != nil {
		return nil, err
	}
	v.from, v.to = members[req.FromMemberID], members[req.ToMemberID]
	if v.from == nil || v.to == nil {
		r.add(newIssue(CodeMembersNotFound, SeverityError))
		return v.finish(), nil
	}

	if req.FromMemberID == req.ToMemberID {
		r.add(newIssue(CodeSelfRelationship, SeverityError))
		return v.finish(), nil
	}

	existing, err := e.findRelation(ctx, req.FromMemberID, req.ToMemberID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.add(duplicateIssue(existing.Type, v.from, v.to))
		return v.finish(), nil
	}

	v.reverse, err = e.findRelation(ctx, req.ToMemberID, req.FromMemberID)
	if err != nil {
		return nil, err
	}
	if v.reverse != nil && v.reverse.Type != req.Type.Reciprocal() && !(v.reverse.Type.IsLineal() && req.Type.IsLineal()) {
		// Lineal contradictions are reported by the circular guard below.
		r.add(newIssue(CodeConflictingReverse, SeverityError,
			"type", string(req.Type),
			"existing_type", string(v.reverse.Type),
			"from_name", v.from.FullName(),
			"to_name", v.to.FullName()))
		return v.finish(), nil
	}

	switch req.Type {
	case types.RelationParent, types.RelationChild:
		parent, child := lineage(req.Type, v.from, v.to)
		checkLineage(r, parent, child)
	case types.RelationSpouse:
		checkSpouses(r, v.from, v.to)
	case types.RelationSibling:
		checkSiblings(r, v.from, v.to)
	}

	if req.Type.IsLineal() {
		parent, child := lineage(req.Type, v.from, v.to)
		issue, err := e.checkCircular(ctx, parent, child)
		if err != nil {
			return nil, err
		}
		if issue != nil {
			r.add(*issue)
		}
	}

	return v.finish(), nil
}

func (v *validation) finish() *validation {
	v.result.finish()
	return v
}

// findRelation returns the (from, to) edge or nil when there is none.
func (e *Engine) findRelation(ctx context.Context, fromID, toID string) (*types.Relation, error) {
	rel, err := e.store.FindRelation(ctx, fromID, toID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return rel, err
}

func duplicateIssue(existing types.RelationType, from, to *types.Member) Issue {
	return newIssue(CodeDuplicateRelationship, SeverityError,
		"existing_type", string(existing),
		"from_name", from.FullName(),
		"to_name", to.FullName())
}

// lineage orders a parent or child request's endpoints as (parent, child).
func lineage(t types.RelationType, from, to *types.Member) (parent, child *types.Member) {
	if t == types.RelationChild {
		return to, from
	}
	return from, to
}

// checkLineage enforces that a parent is born in an earlier year than the child.
func checkLineage(r *ValidationResult, parent, child *types.Member) {
	parentYear, okParent := parent.BirthYear()
	childYear, okChild := child.BirthYear()
	if !okParent || !okChild {
		r.add(newIssue(CodeMissingBirthDates, SeverityWarning))
		return
	}

	if parentYear >= childYear {
		r.add(newIssue(CodeParentNotOlder, SeverityError,
			"parent_name", parent.FullName(),
			"parent_year", parentYear,
			"child_name", child.FullName(),
			"child_year", childYear))
		r.add(newIssue(CodeSwapDirection, SeveritySuggestion,
			"parent_name", child.FullName(),
			"child_name", parent.FullName()))
		return
	}

	if gap, ok := types.YearsBetween(parent.BirthDate, child.BirthDate); ok && (gap < minParentAgeGap || gap > maxParentAgeGap) {
		r.add(newIssue(CodeUnusualParentAgeGap, SeverityWarning,
			"gap", gap,
			"parent_name", parent.FullName(),
			"child_name", child.FullName()))
	}
}

func checkSpouses(r *ValidationResult, a, b *types.Member) {
	if gap, ok := types.YearsBetween(a.BirthDate, b.BirthDate); ok && gap > maxSpouseAgeGap {
		r.add(newIssue(CodeLargeSpouseAgeGap, SeverityWarning, "gap", gap))
	}
	if a.Gender != "" && a.Gender == b.Gender {
		r.add(newIssue(CodeSameGenderSpouse, SeverityWarning, "gender", string(a.Gender)))
	}
}

func checkSiblings(r *ValidationResult, a, b *types.Member) {
	if gap, ok := types.YearsBetween(a.BirthDate, b.BirthDate); ok && gap > maxSiblingAgeGap {
		r.add(newIssue(CodeLargeSiblingAgeGap, SeverityWarning, "gap", gap))
	}
}
