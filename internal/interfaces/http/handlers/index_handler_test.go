package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/application/mining"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/testutil"
	"github.com/turtacn/cfpminer/pkg/types/cfp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// c0 {1,2}  c1 {1,3}  c2 {2,3}  c3 {4}; every fragment covers one atom.
func corpusGenerator() *testutil.StubGenerator {
	return testutil.NewStubGenerator().
		Add("c0", 1, 0).Add("c0", 2, 1).
		Add("c1", 1, 0).Add("c1", 3, 2).
		Add("c2", 2, 1).Add("c2", 3, 2).
		Add("c3", 4, 3)
}

type apiFixture struct {
	router *gin.Engine
	svc    *mining.Service
	cache  *MinerCache
	id     string
}

func newAPIFixture(t *testing.T, sel cfp.FeatureSelection) *apiFixture {
	t.Helper()
	dec := testutil.StubDecoder{Fail: map[string]bool{"bad": true}}
	svc, err := mining.NewService(testutil.NewMemorySnapshotRepository(), dec, corpusGenerator())
	require.NoError(t, err)

	res, err := svc.Mine(context.Background(), mining.MineInput{
		Dataset: &mining.Dataset{
			Name:      "corpus",
			Texts:     []string{"c0", "c1", "c2", "c3"},
			Endpoints: []string{"a", "a", "b", "b"},
		},
		Config: fragment.Config{Type: cfp.ECFP4, Selection: sel, FoldSize: 1024},
	})
	require.NoError(t, err)

	cache, err := NewMinerCache(svc.Load, 4)
	require.NoError(t, err)

	r := gin.New()
	NewIndexHandler(svc, cache, dec, testutil.NewMockLogger()).RegisterRoutes(r.Group("/api/v1"))
	return &apiFixture{router: r, svc: svc, cache: cache, id: res.SnapshotID}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) path(suffix string) string {
	return "/api/v1/snapshots/" + f.id + suffix
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestIndexHandler_ListAndGet(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, "/api/v1/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{f.id}, decode[ListResponse](t, w).Snapshots)

	w = f.do(t, http.MethodGet, f.path(""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SnapshotResponse](t, w)
	assert.Equal(t, f.id, resp.ID)
	assert.Equal(t, "ecfp4_none", resp.Summary.Name)
	assert.Equal(t, 4, resp.Summary.NumFragments)
	assert.Equal(t, 4, resp.Summary.NumCompounds)
	assert.Equal(t, []string{"a", "b"}, resp.ClassValues)
	assert.Equal(t, 1, f.cache.Len())
}

func TestIndexHandler_UnknownSnapshot(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, "/api/v1/snapshots/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CFP_003", decode[ErrorResponse](t, w).Code)

	w = f.do(t, http.MethodGet, "/api/v1/snapshots/.hidden", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexHandler_Delete(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, f.path(""), nil).Code)
	require.Equal(t, 1, f.cache.Len())

	w := f.do(t, http.MethodDelete, f.path(""), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, f.cache.Len())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, f.path(""), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, f.path(""), nil).Code)
}

func TestIndexHandler_CompoundAndFragmentQueries(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, f.path("/compounds/0/fragments"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int32{1, 2}, decode[CompoundFragmentsResponse](t, w).Fragments)

	w = f.do(t, http.MethodGet, f.path("/compounds/9/fragments"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, f.path("/compounds/x/fragments"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, f.path("/fragments/3/compounds"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	fc := decode[FragmentCompoundsResponse](t, w)
	assert.Equal(t, []int{1, 2}, fc.Compounds)
	assert.Equal(t, 2, fc.Position)

	w = f.do(t, http.MethodGet, f.path("/fragments/77/compounds"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, f.path("/positions/3"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(4), decode[FragmentAtResponse](t, w).Fragment)

	w = f.do(t, http.MethodGet, f.path("/positions/4"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexHandler_Lattice(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, f.path("/fragments/1/lattice"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[LatticeResponse](t, w)
	assert.Equal(t, int32(1), resp.Fragment)
	assert.Empty(t, resp.Sub)
	assert.Empty(t, resp.Super)
}

func TestIndexHandler_Similarity(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, f.path("/similarity?i=0&j=1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SimilarityResponse](t, w)
	require.NotNil(t, resp.Tanimoto)
	assert.InDelta(t, 1.0/3.0, *resp.Tanimoto, 1e-9)

	w = f.do(t, http.MethodGet, f.path("/similarity?i=0"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, f.path("/similarity?i=0&j=5"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndexHandler_Activity(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, f.path("/activity?smiles=c2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", decode[ActivityResponse](t, w).Endpoint)

	w = f.do(t, http.MethodGet, f.path("/activity?smiles=zz"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndexHandler_TestFragments(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodPost, f.path("/test-fragments"), TestFragmentsRequest{SMILES: "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[TestFragmentsResponse](t, w)
	assert.Equal(t, []TestFragment{{Fragment: 1, Position: 0}, {Fragment: 3, Position: 2}}, resp.Fragments)

	w = f.do(t, http.MethodPost, f.path("/test-fragments"), TestFragmentsRequest{SMILES: "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MOL_006", decode[ErrorResponse](t, w).Code)

	w = f.do(t, http.MethodPost, f.path("/test-fragments"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexHandler_Atoms(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodPost, f.path("/atoms"), AtomsRequest{SMILES: "c2", Fragment: 3})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[AtomsResponse](t, w)
	assert.Equal(t, AtomsFirst, resp.Mode)
	assert.Equal(t, []int{2}, resp.Atoms)

	w = f.do(t, http.MethodPost, f.path("/atoms"), AtomsRequest{SMILES: "c2", Fragment: 3, Mode: AtomsDistinct})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [][]int{{2}}, decode[AtomsResponse](t, w).AtomSets)

	w = f.do(t, http.MethodPost, f.path("/atoms"), AtomsRequest{SMILES: "c2", Fragment: 3, Mode: "all"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexHandler_AtomsRejectedWhenFolded(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionFold)

	w := f.do(t, http.MethodPost, f.path("/atoms"), AtomsRequest{SMILES: "c2", Fragment: 3})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CFP_001", decode[ErrorResponse](t, w).Code)
}

func TestIndexHandler_Export(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodGet, f.path("/export"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "SMILES,endpoint,1,2,3,4", lines[0])
	assert.Equal(t, "c0,a,1,1,0,0", lines[1])
}

func TestIndexHandler_Filter(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionFilt)

	w := f.do(t, http.MethodPost, f.path("/filter"), FilterRequest{Subset: []int{0, 1, 2, 3}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res mining.MineResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEqual(t, f.id, res.SnapshotID)
	require.NotNil(t, res.Report)

	w = f.do(t, http.MethodGet, "/api/v1/snapshots", nil)
	assert.Len(t, decode[ListResponse](t, w).Snapshots, 2)
}

func TestIndexHandler_FilterRejectsUnfilteredIndex(t *testing.T) {
	f := newAPIFixture(t, cfp.SelectionNone)

	w := f.do(t, http.MethodPost, f.path("/filter"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
