package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/internal/storage/sqlite"
	"github.com/scrypster/familytree/pkg/types"
	"github.com/scrypster/familytree/web/handlers"
)

type testAPI struct {
	mux   *http.ServeMux
	store *sqlite.Store
}

// newTestAPI mounts the relations handler on an engine backed by in-memory
// SQLite and seeds a small family: two parents, their child and a stranger.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, m := range []struct {
		id, first string
		born      int
		gender    types.Gender
	}{
		{"dad", "Carlos", 1950, types.GenderMale},
		{"mom", "Helena", 1952, types.GenderFemale},
		{"kid", "Rita", 1980, types.GenderFemale},
		{"kid2", "Tomas", 1983, types.GenderMale},
	} {
		born := time.Date(m.born, time.January, 15, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpsertMember(context.Background(), &types.Member{
			ID: m.id, FirstName: m.first, LastName: "Moura", BirthDate: &born, Gender: m.gender,
		}))
	}

	eng, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	mux := http.NewServeMux()
	handlers.NewRelationsHandler(eng, nil).Register(mux)
	return &testAPI{mux: mux, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, req)
	return w
}

func decodeRelation(t *testing.T, w *httptest.ResponseRecorder) handlers.RelationResponse {
	t.Helper()
	var resp handlers.RelationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestCreateRelation_Success(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "dad", ToMemberID: "mom", RelationType: "spouse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeRelation(t, w)
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.RelationshipID, "rel:"))
	assert.NotEmpty(t, resp.ReciprocalID)
	assert.Empty(t, resp.Error)

	w = api.do(t, http.MethodGet, "/api/relations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []types.RelationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	require.NotNil(t, views[0].FromMember)
}

func TestCreateRelation_ValidationFailure(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "kid", ToMemberID: "kid", RelationType: "sibling",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeRelation(t, w)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	require.NotEmpty(t, resp.Issues)
	assert.Equal(t, engine.CodeSelfRelationship, resp.Issues[0].Code)
}

func TestCreateRelation_ParentYoungerIncludesSwapSuggestion(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "kid", ToMemberID: "dad", RelationType: "parent",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeRelation(t, w)
	codes := make([]engine.IssueCode, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, engine.CodeParentNotOlder)
	assert.Contains(t, codes, engine.CodeSwapDirection)
}

func TestCreateRelation_BadRequests(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{ToMemberID: "mom", RelationType: "spouse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeRelation(t, w).Error, "frommemberid")

	w = api.do(t, http.MethodPost, "/api/relations", `{"from_member_id":"a","to_member_id":"b","relation_type":"spouse","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRelationSmart_CorrectsDirection(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations/smart", handlers.RelationRequest{
		FromMemberID: "kid", ToMemberID: "dad", RelationType: "parent",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeRelation(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Corrected)
	assert.True(t, *resp.Corrected)
	assert.Equal(t, types.RelationChild, resp.ActualType)
}

func TestCreateRelationSmart_AsRequested(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations/smart", handlers.RelationRequest{
		FromMemberID: "dad", ToMemberID: "kid", RelationType: "parent",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeRelation(t, w)
	require.NotNil(t, resp.Corrected)
	assert.False(t, *resp.Corrected)
	assert.Equal(t, types.RelationParent, resp.ActualType)
}

func TestValidateRelation(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/relations/validate", handlers.RelationRequest{
		FromMemberID: "dad", ToMemberID: "kid", RelationType: "cousin",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.IsValid)
	assert.True(t, result.HasError(engine.CodeInvalidRelationType))
}

func TestUpdateRelation(t *testing.T) {
	api := newTestAPI(t)

	created := decodeRelation(t, api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "kid", ToMemberID: "kid2", RelationType: "sibling",
	}))
	require.True(t, created.Success)

	w := api.do(t, http.MethodPatch, "/api/relations/"+created.RelationshipID, map[string]string{"sibling_type": "half"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeRelation(t, w)
	assert.Equal(t, types.SiblingHalf, resp.SiblingType)
	require.NotNil(t, resp.ReciprocalUpdated)
	assert.True(t, *resp.ReciprocalUpdated)

	w = api.do(t, http.MethodPatch, "/api/relations/"+created.RelationshipID, map[string]string{"sibling_type": "step"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPatch, "/api/relations/"+created.RelationshipID, `{"sibling_type":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.SiblingUnknown, decodeRelation(t, w).SiblingType)
}

func TestUpdateRelation_NotSibling(t *testing.T) {
	api := newTestAPI(t)

	created := decodeRelation(t, api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "dad", ToMemberID: "mom", RelationType: "spouse",
	}))

	w := api.do(t, http.MethodPatch, "/api/relations/"+created.RelationshipID, map[string]string{"sibling_type": "full"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decodeRelation(t, w).Error)
}

func TestDeleteRelation(t *testing.T) {
	api := newTestAPI(t)

	created := decodeRelation(t, api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{
		FromMemberID: "dad", ToMemberID: "mom", RelationType: "spouse",
	}))

	w := api.do(t, http.MethodDelete, "/api/relations/"+created.RelationshipID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeRelation(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.ReciprocalDeleted)
	assert.True(t, *resp.ReciprocalDeleted)

	w = api.do(t, http.MethodDelete, "/api/relations/"+created.RelationshipID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Relationship not found", decodeRelation(t, w).Error)
}

func TestResolveDirection(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/relations/resolve?current=kid&selected=dad&type=parent", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dir engine.Direction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	assert.Equal(t, "dad", dir.FromMemberID)
	assert.Equal(t, "kid", dir.ToMemberID)
	assert.Equal(t, types.RelationParent, dir.Type)

	w = api.do(t, http.MethodGet, "/api/relations/resolve?current=kid&selected=dad&type=uncle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestDirection(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/relations/suggest-direction?from=kid&to=dad&type=parent", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.DirectionSuggestionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Suggestion)
	assert.Equal(t, types.RelationChild, resp.Suggestion.SuggestedType)

	w = api.do(t, http.MethodGet, "/api/relations/suggest-direction?from=dad&to=mom&type=spouse", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestion":null}`, w.Body.String())

	w = api.do(t, http.MethodGet, "/api/relations/suggest-direction?from=dad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMembersWithRelations(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{FromMemberID: "dad", ToMemberID: "kid", RelationType: "parent"})

	w := api.do(t, http.MethodGet, "/api/members/with-relations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var members []types.MemberWithRelations
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	require.Len(t, members, 4)

	byID := map[string]types.MemberWithRelations{}
	for _, m := range members {
		byID[m.ID] = m
	}
	require.Len(t, byID["dad"].Relations, 1)
	assert.Equal(t, "kid", byID["dad"].Relations[0].Member.ID)
	assert.Empty(t, byID["mom"].Relations)
}

func TestMemberSuggestions(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/members/kid/suggestions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candidates []engine.Candidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candidates))
	assert.NotEmpty(t, candidates)

	w = api.do(t, http.MethodGet, "/api/members/ghost/suggestions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAudit(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/relations", handlers.RelationRequest{FromMemberID: "dad", ToMemberID: "mom", RelationType: "spouse"})

	w := api.do(t, http.MethodGet, "/api/relations/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report engine.AuditReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.RelationsScanned)
	assert.Empty(t, report.Findings)

	w = api.do(t, http.MethodPost, "/api/relations/audit/repair", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var repair engine.RepairReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &repair))
	assert.Zero(t, repair.Created)
}

func TestListRelations_StoreFailureIsGeneric(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.store.Close())

	w := api.do(t, http.MethodGet, "/api/relations", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeRelation(t, w)
	assert.Equal(t, "Failed to load relationships", resp.Error)
	assert.NotContains(t, w.Body.String(), "sql")
}
