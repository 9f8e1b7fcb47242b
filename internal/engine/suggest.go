package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// Candidate age-gap windows in whole years.
const (
	minCandidateParentGap  = 15
	maxCandidateParentGap  = 50
	maxCandidateSiblingGap = 10
)

// DirectionSuggestion proposes the chronologically consistent lineal type
// for an ordered member pair.
type DirectionSuggestion struct {
	SuggestedType types.RelationType `json:"suggested_type"`
	Reason        string             `json:"reason"`
}

// Candidate is a proposed relationship between a member and another member
// it has no edge with. SuggestedRelationship is expressed from the member's
// point of view: parent means the candidate is likely the member's parent.
type Candidate struct {
	Member                types.MemberSummary `json:"member"`
	SuggestedRelationship types.RelationType  `json:"suggested_relationship"`
	Confidence            float64             `json:"confidence"`
	Reason                string              `json:"reason"`
}

// SuggestDirection compares birth years for a parent or child request from
// fromID to toID. It returns nil when the type is not lineal, a birth date is
// missing, or both members were born in the same year.
func (e *Engine) SuggestDirection(ctx context.Context, fromID, toID string, desired types.RelationType) (*DirectionSuggestion, error) {
	if !desired.IsLineal() {
		return nil, nil
	}

	members, err := e.store.GetMembers(ctx, []string{fromID, toID})
	if err != nil {
		return nil, &StoreError{Op: "suggest", Err: err}
	}
	from, to := members[fromID], members[toID]
	if from == nil || to == nil {
		return nil, nil
	}

	fromYear, okFrom := from.BirthYear()
	toYear, okTo := to.BirthYear()
	if !okFrom || !okTo || fromYear == toYear {
		return nil, nil
	}

	if fromYear < toYear {
		return &DirectionSuggestion{
			SuggestedType: types.RelationParent,
			Reason:        fmt.Sprintf("%s (born %d) is older than %s (born %d)", from.FullName(), fromYear, to.FullName(), toYear),
		}, nil
	}
	return &DirectionSuggestion{
		SuggestedType: types.RelationChild,
		Reason:        fmt.Sprintf("%s (born %d) is younger than %s (born %d)", from.FullName(), fromYear, to.FullName(), toYear),
	}, nil
}

// CreateSmart attempts Create as requested. When a parent or child request is
// rejected and the birth years point the other way, it retries once with the
// corrected type. If the retry fails too, the original error is returned.
func (e *Engine) CreateSmart(ctx context.Context, req RelationRequest) (*SmartCreateResult, error) {
	result, err := e.Create(ctx, req)
	if err == nil {
		return &SmartCreateResult{CreateResult: *result, ActualType: req.Type}, nil
	}

	var verr *ValidationError
	if !req.Type.IsLineal() || !errors.As(err, &verr) {
		return nil, err
	}

	suggestion, serr := e.SuggestDirection(ctx, req.FromMemberID, req.ToMemberID, req.Type)
	if serr != nil || suggestion == nil || suggestion.SuggestedType == req.Type {
		return nil, err
	}

	corrected := req
	corrected.Type = suggestion.SuggestedType
	retry, retryErr := e.Create(ctx, corrected)
	if retryErr != nil {
		e.logger.Debug("engine: corrected create also failed", "from", req.FromMemberID, "to", req.ToMemberID, "type", corrected.Type, "error", retryErr)
		return nil, err
	}

	e.logger.Info("engine: relationship direction corrected", "id", retry.RelationshipID, "requested", req.Type, "actual", corrected.Type)
	return &SmartCreateResult{CreateResult: *retry, Corrected: true, ActualType: corrected.Type}, nil
}

// SuggestCandidates proposes parent, child or sibling relationships between
// memberID and every member it is not yet connected to, ranked by confidence.
// Existing edges are loaded in one query; members without a birth date are skipped.
func (e *Engine) SuggestCandidates(ctx context.Context, memberID string) ([]Candidate, error) {
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues("suggest_candidates").Observe(time.Since(start).Seconds())
	}()

	members, err := e.store.ListMembers(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	var self *types.Member
	for _, m := range members {
		if m.ID == memberID {
			self = m
			break
		}
	}
	if self == nil {
		return nil, ErrMemberNotFound
	}

	edges, err := e.store.ListRelations(ctx, storage.RelationFilter{MemberIDs: []string{memberID}})
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	connected := map[string]bool{memberID: true}
	for _, rel := range edges {
		connected[rel.FromMemberID] = true
		connected[rel.ToMemberID] = true
	}

	candidates := []Candidate{}
	for _, other := range members {
		if connected[other.ID] {
			continue
		}
		if c, ok := suggestFor(self, other); ok {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		a, b := candidates[i].Member, candidates[j].Member
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})
	return candidates, nil
}

// suggestFor applies the age-gap heuristics to one unconnected pair.
func suggestFor(self, other *types.Member) (Candidate, bool) {
	gap, ok := types.YearsBetween(self.BirthDate, other.BirthDate)
	if !ok {
		return Candidate{}, false
	}

	c := Candidate{Member: other.Summary()}
	switch {
	case gap >= minCandidateParentGap && gap <= maxCandidateParentGap:
		c.Confidence = 0.6
		if gap >= 20 && gap <= 40 {
			c.Confidence = 0.8
		}
		if other.BirthDate.Before(*self.BirthDate) {
			c.SuggestedRelationship = types.RelationParent
			c.Reason = fmt.Sprintf("%s is %d years older", other.FullName(), gap)
		} else {
			c.SuggestedRelationship = types.RelationChild
			c.Reason = fmt.Sprintf("%s is %d years younger", other.FullName(), gap)
		}
	case gap <= maxCandidateSiblingGap:
		c.SuggestedRelationship = types.RelationSibling
		c.Confidence = 0.7 - 0.02*float64(gap)
		c.Reason = fmt.Sprintf("%s is within %d years of age", other.FullName(), gap)
	default:
		return Candidate{}, false
	}
	return c, true
}
