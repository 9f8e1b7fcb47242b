package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

func TestSuggestDirection(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "old", "Olga", "Nash", "1950-01-01", "")
	seedMember(t, store, "young", "Yara", "Nash", "1980-01-01", "")
	seedMember(t, store, "twin", "Tina", "Nash", "1980-05-05", "")
	seedMember(t, store, "nodate", "Ned", "Nash", "", "")
	ctx := context.Background()

	s, err := eng.SuggestDirection(ctx, "old", "young", types.RelationChild)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, types.RelationParent, s.SuggestedType)
	assert.Contains(t, s.Reason, "1950")

	s, err = eng.SuggestDirection(ctx, "young", "old", types.RelationParent)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, types.RelationChild, s.SuggestedType)

	s, err = eng.SuggestDirection(ctx, "young", "twin", types.RelationParent)
	require.NoError(t, err)
	assert.Nil(t, s, "same birth year")

	s, err = eng.SuggestDirection(ctx, "old", "nodate", types.RelationParent)
	require.NoError(t, err)
	assert.Nil(t, s, "missing birth date")

	s, err = eng.SuggestDirection(ctx, "old", "young", types.RelationSpouse)
	require.NoError(t, err)
	assert.Nil(t, s, "not lineal")
}

func TestCreateSmart_AsRequested(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "old", "Olga", "Nash", "1950-01-01", "")
	seedMember(t, store, "young", "Yara", "Nash", "1980-01-01", "")

	result, err := eng.CreateSmart(context.Background(), RelationRequest{FromMemberID: "old", ToMemberID: "young", Type: types.RelationParent})
	require.NoError(t, err)
	assert.False(t, result.Corrected)
	assert.Equal(t, types.RelationParent, result.ActualType)
	assert.NotEmpty(t, result.RelationshipID)
}

func TestCreateSmart_CorrectsDirection(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "old", "Olga", "Nash", "1950-01-01", "")
	seedMember(t, store, "young", "Yara", "Nash", "1980-01-01", "")

	// "young is the parent of old" is chronologically impossible.
	result, err := eng.CreateSmart(context.Background(), RelationRequest{FromMemberID: "young", ToMemberID: "old", Type: types.RelationParent})
	require.NoError(t, err)
	assert.True(t, result.Corrected)
	assert.Equal(t, types.RelationChild, result.ActualType)

	rel, err := store.GetRelation(context.Background(), result.RelationshipID)
	require.NoError(t, err)
	assert.Equal(t, "young", rel.FromMemberID)
	assert.Equal(t, types.RelationChild, rel.Type)

	reciprocal, err := store.FindRelation(context.Background(), "old", "young")
	require.NoError(t, err)
	assert.Equal(t, types.RelationParent, reciprocal.Type)
}

func TestCreateSmart_NoCorrectionForOtherFailures(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "a", "Ann", "Nash", "1950-01-01", "")

	_, err := eng.CreateSmart(context.Background(), RelationRequest{FromMemberID: "a", ToMemberID: "a", Type: types.RelationParent})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(CodeSelfRelationship))
}

func TestCreateSmart_SpouseNotRetried(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "a", "Ann", "Nash", "1950-01-01", "")
	seedMember(t, store, "b", "Bo", "Nash", "1951-01-01", "")
	mustCreate(t, eng, "a", "b", types.RelationSpouse)

	_, err := eng.CreateSmart(context.Background(), RelationRequest{FromMemberID: "a", ToMemberID: "b", Type: types.RelationSpouse})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(CodeDuplicateRelationship))
}

func TestSuggestCandidates(t *testing.T) {
	eng, store := newTestEngine(t)
	seedMember(t, store, "me", "Maya", "Cole", "1980-06-01", "")
	seedMember(t, store, "mom", "Mona", "Cole", "1955-03-01", "")  // 25 years older
	seedMember(t, store, "aunt", "Ada", "Cole", "1932-01-01", "")  // 48 years older
	seedMember(t, store, "bro", "Bram", "Cole", "1983-01-01", "")  // 2 years younger
	seedMember(t, store, "kid", "Kit", "Cole", "2010-01-01", "")   // 29 years younger
	seedMember(t, store, "far", "Fay", "Cole", "1900-01-01", "")   // 80 years older
	seedMember(t, store, "cousin", "Cy", "Cole", "1968-01-01", "") // 12 years older
	seedMember(t, store, "nodate", "Nia", "Cole", "", "")
	seedMember(t, store, "spouse", "Sol", "Cole", "1981-01-01", "")
	mustCreate(t, eng, "me", "spouse", types.RelationSpouse)

	candidates, err := eng.SuggestCandidates(context.Background(), "me")
	require.NoError(t, err)

	got := map[string]Candidate{}
	for _, c := range candidates {
		got[c.Member.ID] = c
	}
	assert.NotContains(t, got, "me")
	assert.NotContains(t, got, "spouse")
	assert.NotContains(t, got, "far")
	assert.NotContains(t, got, "cousin")
	assert.NotContains(t, got, "nodate")

	require.Contains(t, got, "mom")
	assert.Equal(t, types.RelationParent, got["mom"].SuggestedRelationship)
	assert.InDelta(t, 0.8, got["mom"].Confidence, 1e-9)

	require.Contains(t, got, "aunt")
	assert.InDelta(t, 0.6, got["aunt"].Confidence, 1e-9)

	require.Contains(t, got, "kid")
	assert.Equal(t, types.RelationChild, got["kid"].SuggestedRelationship)

	require.Contains(t, got, "bro")
	assert.Equal(t, types.RelationSibling, got["bro"].SuggestedRelationship)
	assert.InDelta(t, 0.66, got["bro"].Confidence, 1e-9)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Confidence, candidates[i].Confidence)
	}
}

func TestSuggestCandidates_UnknownMember(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.SuggestCandidates(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestSuggestCandidates_SingleEdgeQuery(t *testing.T) {
	store := &MockStore{}
	store.On("ListMembers", mock.Anything).Return([]*types.Member{
		{ID: "me", FirstName: "Me", BirthDate: date("1980-01-01")},
		{ID: "a", FirstName: "A", BirthDate: date("1982-01-01")},
		{ID: "b", FirstName: "B", BirthDate: date("1955-01-01")},
	}, nil)
	store.On("ListRelations", mock.Anything, storage.RelationFilter{MemberIDs: []string{"me"}}).Return([]*types.Relation{}, nil).Once()

	eng, err := New(store, DefaultConfig())
	require.NoError(t, err)

	candidates, err := eng.SuggestCandidates(context.Background(), "me")
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	store.AssertNumberOfCalls(t, "ListRelations", 1)
}

func TestSuggestDirection_StoreFailure(t *testing.T) {
	store := &MockStore{}
	store.On("GetMembers", mock.Anything, []string{"a", "b"}).Return(nil, errors.New("connection refused"))

	eng, err := New(store, DefaultConfig())
	require.NoError(t, err)

	_, err = eng.SuggestDirection(context.Background(), "a", "b", types.RelationParent)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "Failed to load relationship suggestions", err.Error())
}
