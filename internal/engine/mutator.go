package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// Create validates req and persists the edge together with its reciprocal.
// Rule violations return a *ValidationError and store failures a *StoreError;
// nothing is written in either case.
func (e *Engine) Create(ctx context.Context, req RelationRequest) (*CreateResult, error) {
	start := time.Now()
	result, err := e.create(ctx, req)
	observe("create", start, err)
	return result, err
}

func (e *Engine) create(ctx context.Context, req RelationRequest) (*CreateResult, error) {
	v, err := e.validate(ctx, req)
	if err != nil {
		e.logger.Error("engine: failed to validate relationship", "from", req.FromMemberID, "to", req.ToMemberID, "error", err)
		return nil, &StoreError{Op: "create", Err: err}
	}
	countIssues(v.result)
	if !v.result.IsValid {
		return nil, &ValidationError{Errors: v.result.Errors, Suggestions: v.result.Suggestions}
	}

	now := e.now().UTC()
	primary := &types.Relation{
		ID:           e.newID(),
		FromMemberID: req.FromMemberID,
		ToMemberID:   req.ToMemberID,
		Type:         req.Type,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if req.Type == types.RelationSibling {
		siblingType, err := e.InferSiblingType(ctx, req.FromMemberID, req.ToMemberID)
		if err != nil {
			e.logger.Warn("engine: sibling type inference failed, storing unknown", "from", req.FromMemberID, "to", req.ToMemberID, "error", err)
		}
		primary.SiblingType = siblingType
	}

	reciprocal := primary.ReciprocalOf(e.newID())
	if v.reverse != nil {
		// A dangling reciprocal is kept; the store skips the insert.
		reciprocal.ID = v.reverse.ID
	}

	warnings := v.result.Warnings
	withMetadata := false
	if !req.Metadata.IsEmpty() {
		withMetadata = e.MetadataSupported(ctx)
		if !withMetadata {
			warnings = append(warnings, newIssue(CodeMetadataNotPersisted, SeverityWarning))
		}
	}

	err = e.store.CreateRelationPair(ctx, primary, reciprocal, withMetadata)
	if withMetadata && errors.Is(err, storage.ErrMetadataUnsupported) {
		e.setMetadataSupport(false)
		warnings = append(warnings, newIssue(CodeMetadataNotPersisted, SeverityWarning))
		err = e.store.CreateRelationPair(ctx, primary, reciprocal, false)
	}
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost a race with a concurrent create of the same pair; report the
		// type of the edge that won.
		existing := req.Type
		if winner, ferr := e.findRelation(ctx, req.FromMemberID, req.ToMemberID); ferr == nil && winner != nil {
			existing = winner.Type
		}
		return nil, &ValidationError{Errors: []Issue{duplicateIssue(existing, v.from, v.to)}}
	}
	if err != nil {
		e.logger.Error("engine: failed to create relationship", "id", primary.ID, "from", primary.FromMemberID, "to", primary.ToMemberID, "error", err)
		return nil, &StoreError{Op: "create", Err: err}
	}

	e.logger.Debug("engine: relationship created", "id", primary.ID, "type", primary.Type, "reciprocal", reciprocal.ID)
	e.emit(Event{
		Type:         EventRelationCreated,
		RelationID:   primary.ID,
		FromMemberID: primary.FromMemberID,
		ToMemberID:   primary.ToMemberID,
		RelationType: primary.Type,
	})

	return &CreateResult{
		RelationshipID: primary.ID,
		ReciprocalID:   reciprocal.ID,
		SiblingType:    primary.SiblingType,
		Warnings:       warnings,
	}, nil
}

// Update changes the sibling classification of a sibling edge and its
// reciprocal. A nil SiblingType re-infers it from recorded parents. A failed
// reciprocal update is logged and reported in the result, not as an error.
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*UpdateResult, error) {
	start := time.Now()
	result, err := e.update(ctx, id, req)
	observe("update", start, err)
	return result, err
}

func (e *Engine) update(ctx context.Context, id string, req UpdateRequest) (*UpdateResult, error) {
	rel, err := e.getRelation(ctx, id, "update")
	if err != nil {
		return nil, err
	}
	if rel.Type != types.RelationSibling {
		return nil, ErrNotSibling
	}

	var siblingType types.SiblingType
	if req.SiblingType == nil {
		siblingType, err = e.InferSiblingType(ctx, rel.FromMemberID, rel.ToMemberID)
		if err != nil {
			e.logger.Error("engine: failed to infer sibling type", "id", id, "error", err)
			return nil, &StoreError{Op: "update", Err: err}
		}
	} else {
		siblingType = *req.SiblingType
		if !siblingType.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSiblingType, siblingType)
		}
	}

	if err := e.store.UpdateSiblingType(ctx, id, siblingType); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRelationNotFound
		}
		e.logger.Error("engine: failed to update relationship", "id", id, "error", err)
		return nil, &StoreError{Op: "update", Err: err}
	}

	result := &UpdateResult{SiblingType: siblingType, ReciprocalUpdated: true}
	if err := e.store.UpdateSiblingTypeByPair(ctx, rel.ToMemberID, rel.FromMemberID, siblingType); err != nil {
		reciprocalFailures.WithLabelValues("update").Inc()
		e.logger.Warn("engine: failed to update reciprocal relationship", "id", id, "from", rel.ToMemberID, "to", rel.FromMemberID, "error", err)
		result.ReciprocalUpdated = false
	}

	e.emit(Event{
		Type:         EventRelationUpdated,
		RelationID:   rel.ID,
		FromMemberID: rel.FromMemberID,
		ToMemberID:   rel.ToMemberID,
		RelationType: rel.Type,
	})
	return result, nil
}

// Delete removes the edge and, best-effort, its reciprocal. An unknown id
// returns ErrRelationNotFound without touching the store.
func (e *Engine) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	start := time.Now()
	result, err := e.delete(ctx, id)
	observe("delete", start, err)
	return result, err
}

func (e *Engine) delete(ctx context.Context, id string) (*DeleteResult, error) {
	rel, err := e.getRelation(ctx, id, "delete")
	if err != nil {
		return nil, err
	}

	if err := e.store.DeleteRelation(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRelationNotFound
		}
		e.logger.Error("engine: failed to delete relationship", "id", id, "error", err)
		return nil, &StoreError{Op: "delete", Err: err}
	}

	result := &DeleteResult{ReciprocalDeleted: true}
	if err := e.store.DeleteRelationByPair(ctx, rel.ToMemberID, rel.FromMemberID, rel.Type.Reciprocal()); err != nil {
		reciprocalFailures.WithLabelValues("delete").Inc()
		e.logger.Warn("engine: failed to delete reciprocal relationship", "id", id, "from", rel.ToMemberID, "to", rel.FromMemberID, "error", err)
		result.ReciprocalDeleted = false
	}

	e.emit(Event{
		Type:         EventRelationDeleted,
		RelationID:   rel.ID,
		FromMemberID: rel.FromMemberID,
		ToMemberID:   rel.ToMemberID,
		RelationType: rel.Type,
	})
	return result, nil
}

// getRelation fetches an edge, mapping absence to ErrRelationNotFound.
func (e *Engine) getRelation(ctx context.Context, id, op string) (*types.Relation, error) {
	if id == "" {
		return nil, ErrRelationNotFound
	}
	rel, err := e.store.GetRelation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRelationNotFound
	}
	if err != nil {
		e.logger.Error("engine: failed to fetch relationship", "id", id, "op", op, "error", err)
		return nil, &StoreError{Op: op, Err: err}
	}
	return rel, nil
}

// ListAll returns every edge joined with both members' display names.
func (e *Engine) ListAll(ctx context.Context) ([]types.RelationView, error) {
	relations, err := e.store.ListRelations(ctx, storage.RelationFilter{})
	if err != nil {
		e.logger.Error("engine: failed to list relationships", "error", err)
		return nil, &StoreError{Op: "list", Err: err}
	}

	ids := make([]string, 0, len(relations)*2)
	seen := make(map[string]bool)
	for _, rel := range relations {
		for _, id := range []string{rel.FromMemberID, rel.ToMemberID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	members := map[string]*types.Member{}
	if len(ids) > 0 {
		members, err = e.store.GetMembers(ctx, ids)
		if err != nil {
			e.logger.Error("engine: failed to load relationship members", "error", err)
			return nil, &StoreError{Op: "list", Err: err}
		}
	}

	views := make([]types.RelationView, 0, len(relations))
	for _, rel := range relations {
		view := types.RelationView{Relation: *rel}
		if m, ok := members[rel.FromMemberID]; ok {
			s := m.Summary()
			view.FromMember = &s
		}
		if m, ok := members[rel.ToMemberID]; ok {
			s := m.Summary()
			view.ToMember = &s
		}
		views = append(views, view)
	}
	return views, nil
}

// MembersWithRelations returns every member with its outgoing edges resolved
// to peer summaries. Read failures are logged and yield an empty list.
func (e *Engine) MembersWithRelations(ctx context.Context) []types.MemberWithRelations {
	members, err := e.store.ListMembers(ctx)
	if err != nil {
		e.logger.Error("engine: failed to list members", "error", err)
		return []types.MemberWithRelations{}
	}
	relations, err := e.store.ListRelations(ctx, storage.RelationFilter{})
	if err != nil {
		e.logger.Error("engine: failed to list relationships", "error", err)
		return []types.MemberWithRelations{}
	}

	byID := make(map[string]*types.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	outgoing := make(map[string][]types.RelatedMember)
	for _, rel := range relations {
		peer, ok := byID[rel.ToMemberID]
		if !ok {
			continue
		}
		outgoing[rel.FromMemberID] = append(outgoing[rel.FromMemberID], types.RelatedMember{
			RelationID:  rel.ID,
			Type:        rel.Type,
			SiblingType: rel.SiblingType,
			Member:      peer.Summary(),
		})
	}

	result := make([]types.MemberWithRelations, 0, len(members))
	for _, m := range members {
		related := outgoing[m.ID]
		if related == nil {
			related = []types.RelatedMember{}
		}
		result = append(result, types.MemberWithRelations{Member: *m, Relations: related})
	}
	return result
}
