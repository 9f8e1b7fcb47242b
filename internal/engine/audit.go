package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// FindingType categorizes an integrity finding.
type FindingType string

const (
	// FindingMissingReciprocal indicates an edge without a reverse edge.
	// Example: (A, B, parent) exists but (B, A, child) does not
	FindingMissingReciprocal FindingType = "missing_reciprocal"

	// FindingReciprocalMismatch indicates a reverse edge of the wrong type.
	// Example: (A, B, parent) and (B, A, spouse)
	FindingReciprocalMismatch FindingType = "reciprocal_mismatch"

	// FindingSelfRelation indicates an edge whose endpoints are the same member.
	FindingSelfRelation FindingType = "self_relation"

	// FindingChronologyViolation indicates a parent born in the same year as or after the child.
	FindingChronologyViolation FindingType = "chronology_violation"

	// FindingExcessParents indicates a member with more than two recorded parents.
	FindingExcessParents FindingType = "excess_parents"
)

// Finding is one detected integrity problem in the stored graph.
type Finding struct {
	Type        FindingType `json:"type"`
	RelationIDs []string    `json:"relation_ids"`
	MemberIDs   []string    `json:"member_ids"`
	Description string      `json:"description"`

	relation *types.Relation
}

// AuditReport summarizes a full scan of the relations table.
type AuditReport struct {
	RelationsScanned int       `json:"relations_scanned"`
	Findings         []Finding `json:"findings"`
}

// RepairReport summarizes a RepairReciprocals run.
type RepairReport struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type pairKey struct{ from, to string }

// Audit scans every edge for invariant violations. If memberID is non-empty,
// only findings involving that member are returned.
//
// Finding types detected:
// 1. Self relations: edges whose endpoints are equal
// 2. Missing reciprocals and reciprocal type mismatches
// 3. Chronology violations on parent/child pairs with known birth years
// 4. Members with more than two recorded parents
func (e *Engine) Audit(ctx context.Context, memberID string) (*AuditReport, error) {
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues("audit").Observe(time.Since(start).Seconds())
	}()

	relations, err := e.store.ListRelations(ctx, storage.RelationFilter{})
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	members, err := e.store.ListMembers(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	byID := make(map[string]*types.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	var findings []Finding
	findings = append(findings, detectReciprocalProblems(relations)...)
	findings = append(findings, detectChronologyViolations(relations, byID)...)
	findings = append(findings, detectExcessParents(relations)...)

	if memberID != "" {
		filtered := findings[:0]
		for _, f := range findings {
			if containsString(f.MemberIDs, memberID) {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}
	if findings == nil {
		findings = []Finding{}
	}

	return &AuditReport{RelationsScanned: len(relations), Findings: findings}, nil
}

// RepairReciprocals creates the reverse edge for every edge that lacks one.
// Mismatched reciprocals are left for manual review.
func (e *Engine) RepairReciprocals(ctx context.Context) (*RepairReport, error) {
	relations, err := e.store.ListRelations(ctx, storage.RelationFilter{})
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	report := &RepairReport{}
	for _, f := range detectReciprocalProblems(relations) {
		if f.Type != FindingMissingReciprocal {
			continue
		}
		rel := f.relation
		reciprocal := rel.ReciprocalOf(e.newID())
		reciprocal.CreatedAt = e.now().UTC()
		reciprocal.UpdatedAt = reciprocal.CreatedAt

		withMetadata := !reciprocal.Metadata.IsEmpty() && e.MetadataSupported(ctx)
		if err := e.store.CreateRelation(ctx, reciprocal, withMetadata); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel.ID, err))
			e.logger.Warn("engine: failed to repair reciprocal", "id", rel.ID, "error", err)
			continue
		}
		report.Created++
		e.logger.Info("engine: repaired missing reciprocal", "id", rel.ID, "reciprocal", reciprocal.ID)
	}
	return report, nil
}

// detectReciprocalProblems reports self edges, missing reverse edges and
// reverse edges of the wrong type. Mismatches are reported once per pair.
func detectReciprocalProblems(relations []*types.Relation) []Finding {
	index := make(map[pairKey]*types.Relation, len(relations))
	for _, rel := range relations {
		index[pairKey{rel.FromMemberID, rel.ToMemberID}] = rel
	}

	var findings []Finding
	for _, rel := range relations {
		if rel.FromMemberID == rel.ToMemberID {
			findings = append(findings, Finding{
				Type:        FindingSelfRelation,
				RelationIDs: []string{rel.ID},
				MemberIDs:   []string{rel.FromMemberID},
				Description: fmt.Sprintf("Relation %s connects member %s to itself", rel.ID, rel.FromMemberID),
				relation:    rel,
			})
			continue
		}

		reverse := index[pairKey{rel.ToMemberID, rel.FromMemberID}]
		switch {
		case reverse == nil:
			findings = append(findings, Finding{
				Type:        FindingMissingReciprocal,
				RelationIDs: []string{rel.ID},
				MemberIDs:   []string{rel.FromMemberID, rel.ToMemberID},
				Description: fmt.Sprintf("Relation %s (%s) has no %s edge from %s to %s",
					rel.ID, rel.Type, rel.Type.Reciprocal(), rel.ToMemberID, rel.FromMemberID),
				relation: rel,
			})
		case reverse.Type != rel.Type.Reciprocal() && rel.FromMemberID < rel.ToMemberID:
			findings = append(findings, Finding{
				Type:        FindingReciprocalMismatch,
				RelationIDs: []string{rel.ID, reverse.ID},
				MemberIDs:   []string{rel.FromMemberID, rel.ToMemberID},
				Description: fmt.Sprintf("Relation %s is %s but its reverse %s is %s",
					rel.ID, rel.Type, reverse.ID, reverse.Type),
				relation: rel,
			})
		}
	}
	return findings
}

// detectChronologyViolations reports parent/child pairs where the parent is
// not born in an earlier year. Each (parent, child) pair is reported once.
func detectChronologyViolations(relations []*types.Relation, members map[string]*types.Member) []Finding {
	seen := make(map[pairKey]bool)
	var findings []Finding
	for _, rel := range relations {
		if !rel.Type.IsLineal() {
			continue
		}
		parentID, childID := parentChild(rel)
		key := pairKey{parentID, childID}
		if seen[key] {
			continue
		}
		seen[key] = true

		parentYear, okParent := members[parentID].BirthYear()
		childYear, okChild := members[childID].BirthYear()
		if !okParent || !okChild || parentYear < childYear {
			continue
		}
		findings = append(findings, Finding{
			Type:        FindingChronologyViolation,
			RelationIDs: []string{rel.ID},
			MemberIDs:   []string{parentID, childID},
			Description: fmt.Sprintf("Parent %s (born %d) is not older than child %s (born %d)",
				parentID, parentYear, childID, childYear),
			relation: rel,
		})
	}
	return findings
}

// detectExcessParents reports members with more than two recorded parents.
func detectExcessParents(relations []*types.Relation) []Finding {
	parents := make(map[string]map[string]string) // child -> parent -> relation id
	for _, rel := range relations {
		if !rel.Type.IsLineal() {
			continue
		}
		parentID, childID := parentChild(rel)
		if parents[childID] == nil {
			parents[childID] = make(map[string]string)
		}
		if _, ok := parents[childID][parentID]; !ok {
			parents[childID][parentID] = rel.ID
		}
	}

	var findings []Finding
	for childID, set := range parents {
		if len(set) <= 2 {
			continue
		}
		memberIDs := []string{childID}
		var relationIDs []string
		for parentID, relID := range set {
			memberIDs = append(memberIDs, parentID)
			relationIDs = append(relationIDs, relID)
		}
		sort.Strings(memberIDs[1:])
		sort.Strings(relationIDs)
		findings = append(findings, Finding{
			Type:        FindingExcessParents,
			RelationIDs: relationIDs,
			MemberIDs:   memberIDs,
			Description: fmt.Sprintf("Member %s has %d recorded parents", childID, len(set)),
		})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].MemberIDs[0] < findings[j].MemberIDs[0] })
	return findings
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
