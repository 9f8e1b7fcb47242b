package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/familytree/pkg/types"
)

func findingTypes(findings []Finding) []FindingType {
	out := make([]FindingType, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Type)
	}
	return out
}

func TestAudit_CleanGraph(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "john", "John", "Smith", "1990-01-01", "")
	seedMember(t, store, "mary", "Mary", "Smith", "1992-01-01", "")
	mustCreate(t, eng, "john", "mary", types.RelationSpouse)

	report, err := eng.Audit(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.RelationsScanned)
	assert.Empty(t, report.Findings)
	assert.NotNil(t, report.Findings)
}

func TestAudit_DetectsAndRepairsMissingReciprocal(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "x", "Xia", "Wu", "1950-01-01", "")
	seedMember(t, store, "y", "Yan", "Wu", "1980-01-01", "")
	ctx := context.Background()

	require.NoError(t, store.CreateRelation(ctx, &types.Relation{
		ID: "rel:orphan", FromMemberID: "x", ToMemberID: "y", Type: types.RelationParent,
	}, false))

	report, err := eng.Audit(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []FindingType{FindingMissingReciprocal}, findingTypes(report.Findings))
	assert.Equal(t, []string{"rel:orphan"}, report.Findings[0].RelationIDs)

	repair, err := eng.RepairReciprocals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repair.Created)
	assert.Zero(t, repair.Failed)

	reciprocal, err := store.FindRelation(ctx, "y", "x")
	require.NoError(t, err)
	assert.Equal(t, types.RelationChild, reciprocal.Type)

	report, err = eng.Audit(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestAudit_MismatchAndChronology(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "m", "Max", "Orr", "1990-01-01", "")
	seedMember(t, store, "n", "Nell", "Orr", "1991-01-01", "")
	seedMember(t, store, "p", "Pia", "Orr", "2000-01-01", "")
	seedMember(t, store, "c", "Cy", "Orr", "1970-01-01", "")
	ctx := context.Background()

	require.NoError(t, store.CreateRelation(ctx, &types.Relation{
		ID: "rel:mn", FromMemberID: "m", ToMemberID: "n", Type: types.RelationSpouse,
	}, false))
	require.NoError(t, store.CreateRelation(ctx, &types.Relation{
		ID: "rel:nm", FromMemberID: "n", ToMemberID: "m", Type: types.RelationSibling,
	}, false))

	parent := &types.Relation{ID: "rel:pc", FromMemberID: "p", ToMemberID: "c", Type: types.RelationParent}
	require.NoError(t, store.CreateRelationPair(ctx, parent, parent.ReciprocalOf("rel:cp"), false))

	report, err := eng.Audit(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []FindingType{FindingReciprocalMismatch, FindingChronologyViolation}, findingTypes(report.Findings))

	report, err = eng.Audit(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []FindingType{FindingChronologyViolation}, findingTypes(report.Findings))
}

func TestAudit_ExcessParents(t *testing.T) {
	eng, store := newTestEngine(t)
	for _, id := range []string{"p1", "p2", "p3", "kid"} {
		seedMember(t, store, id, id, "Poe", "", "")
	}
	for _, p := range []string{"p1", "p2", "p3"} {
		mustCreate(t, eng, p, "kid", types.RelationParent)
	}

	report, err := eng.Audit(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []FindingType{FindingExcessParents}, findingTypes(report.Findings))
	assert.Equal(t, []string{"kid", "p1", "p2", "p3"}, report.Findings[0].MemberIDs)
}

func TestDetectReciprocalProblems_SelfRelation(t *testing.T) {
	findings := detectReciprocalProblems([]*types.Relation{
		{ID: "rel:self", FromMemberID: "a", ToMemberID: "a", Type: types.RelationSpouse},
	})

	require.Len(t, findings, 1)
	assert.Equal(t, FindingSelfRelation, findings[0].Type)
}
