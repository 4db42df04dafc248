package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/cfpminer/internal/application/mining"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// SnapshotService is the part of mining.Service the API writes through.
type SnapshotService interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	Refilter(ctx context.Context, id string, subset []int) (*mining.MineResult, error)
}

// IndexHandler serves queries against stored snapshots.
type IndexHandler struct {
	svc     SnapshotService
	miners  *MinerCache
	decoder fragment.Decoder
	logger  logging.Logger
}

func NewIndexHandler(svc SnapshotService, miners *MinerCache, decoder fragment.Decoder, logger logging.Logger) *IndexHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IndexHandler{svc: svc, miners: miners, decoder: decoder, logger: logger.Named("http.index")}
}

// RegisterRoutes mounts the snapshot API on rg.
func (h *IndexHandler) RegisterRoutes(rg *gin.RouterGroup) {
	s := rg.Group("/snapshots")
	s.GET("", h.List)
	s.GET("/:id", h.Get)
	s.DELETE("/:id", h.Delete)
	s.POST("/:id/filter", h.Filter)
	s.GET("/:id/export", h.Export)
	s.GET("/:id/similarity", h.Similarity)
	s.GET("/:id/activity", h.Activity)
	s.GET("/:id/positions/:pos", h.FragmentAt)
	s.GET("/:id/compounds/:c/fragments", h.CompoundFragments)
	s.GET("/:id/fragments/:f/compounds", h.FragmentCompounds)
	s.GET("/:id/fragments/:f/lattice", h.FragmentLattice)
	s.POST("/:id/test-fragments", h.TestFragments)
	s.POST("/:id/atoms", h.Atoms)
}

func (h *IndexHandler) miner(c *gin.Context) (*fragment.Miner, bool) {
	m, err := h.miners.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return nil, false
	}
	return m, true
}

func (h *IndexHandler) compound(c *gin.Context, m *fragment.Miner, raw int) bool {
	if raw < 0 || raw >= m.NumCompounds() {
		writeAppError(c, errors.NotFound("compound out of range").
			WithDetail(fmt.Sprintf("%d not in [0, %d)", raw, m.NumCompounds())))
		return false
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot lifecycle
// ─────────────────────────────────────────────────────────────────────────────

type ListResponse struct {
	Snapshots []string `json:"snapshots"`
}

func (h *IndexHandler) List(c *gin.Context) {
	ids, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ListResponse{Snapshots: ids})
}

type SnapshotResponse struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	State       string           `json:"state"`
	Description string           `json:"description"`
	ClassValues []string         `json:"class_values,omitempty"`
	Summary     fragment.Summary `json:"summary"`
}

func (h *IndexHandler) Get(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SnapshotResponse{
		ID:          c.Param("id"),
		SessionID:   m.ID(),
		State:       m.State().String(),
		Description: m.NiceFragmentDescription(),
		ClassValues: m.ClassValues(),
		Summary:     m.Summary(),
	})
}

func (h *IndexHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeAppError(c, err)
		return
	}
	h.miners.Evict(id)
	h.logger.Info("snapshot deleted", logging.String(logging.FieldSnapshotID, id))
	c.Status(http.StatusNoContent)
}

// FilterRequest restricts the chi-square stage to a compound subset.  An
// absent subset filters over every compound.
type FilterRequest struct {
	Subset []int `json:"subset"`
}

func (h *IndexHandler) Filter(c *gin.Context) {
	var req FilterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	res, err := h.svc.Refilter(c.Request.Context(), c.Param("id"), req.Subset)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *IndexHandler) Export(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.Name()+".csv"))
	c.Status(http.StatusOK)
	if err := m.WriteCSV(c.Writer, nil, nil); err != nil {
		_ = c.Error(err)
		h.logger.Error("export failed", logging.String(logging.FieldSnapshotID, c.Param("id")), logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

type SimilarityResponse struct {
	I        int      `json:"i"`
	J        int      `json:"j"`
	Tanimoto *float64 `json:"tanimoto"` // null when neither compound has fragments
}

func (h *IndexHandler) Similarity(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	i, ok := intQuery(c, "i")
	if !ok {
		return
	}
	j, ok := intQuery(c, "j")
	if !ok || !h.compound(c, m, i) || !h.compound(c, m, j) {
		return
	}
	resp := SimilarityResponse{I: i, J: j}
	if t := m.TanimotoSimilarity(i, j); !math.IsNaN(t) {
		resp.Tanimoto = &t
	}
	c.JSON(http.StatusOK, resp)
}

type ActivityResponse struct {
	SMILES   string `json:"smiles"`
	Endpoint string `json:"endpoint"`
}

func (h *IndexHandler) Activity(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	smiles := c.Query("smiles")
	if smiles == "" {
		badRequest(c, "smiles is required")
		return
	}
	endpoint, found := m.TrainingActivity(smiles)
	if !found {
		writeAppError(c, errors.NotFound("compound not in training set").WithDetail(smiles))
		return
	}
	c.JSON(http.StatusOK, ActivityResponse{SMILES: smiles, Endpoint: endpoint})
}

type FragmentAtResponse struct {
	Position int   `json:"position"`
	Fragment int32 `json:"fragment"`
}

func (h *IndexHandler) FragmentAt(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	pos, ok := intParam(c, "pos")
	if !ok {
		return
	}
	f, err := m.FragmentAt(pos)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, FragmentAtResponse{Position: pos, Fragment: int32(f)})
}

type CompoundFragmentsResponse struct {
	Compound  int     `json:"compound"`
	Fragments []int32 `json:"fragments"`
}

func (h *IndexHandler) CompoundFragments(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	comp, ok := intParam(c, "c")
	if !ok || !h.compound(c, m, comp) {
		return
	}
	c.JSON(http.StatusOK, CompoundFragmentsResponse{
		Compound:  comp,
		Fragments: fragmentIDs(m.FragmentsForCompound(comp)),
	})
}

type FragmentCompoundsResponse struct {
	Fragment  int32 `json:"fragment"`
	Position  int   `json:"position"`
	Compounds []int `json:"compounds"`
}

func (h *IndexHandler) FragmentCompounds(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	f, ok := fragmentParam(c, "f")
	if !ok {
		return
	}
	pos, known := m.PositionOf(f)
	if !known {
		writeAppError(c, errors.NotFound("fragment not in index").WithDetail(f.String()))
		return
	}
	c.JSON(http.StatusOK, FragmentCompoundsResponse{
		Fragment:  int32(f),
		Position:  pos,
		Compounds: m.CompoundsForFragment(f),
	})
}

type LatticeResponse struct {
	Fragment int32   `json:"fragment"`
	Sub      []int32 `json:"sub"`
	Super    []int32 `json:"super"`
}

func (h *IndexHandler) FragmentLattice(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	f, ok := fragmentParam(c, "f")
	if !ok {
		return
	}
	if _, known := m.PositionOf(f); !known {
		writeAppError(c, errors.NotFound("fragment not in index").WithDetail(f.String()))
		return
	}
	sub, err := m.SubFragments(f)
	if err != nil {
		writeAppError(c, err)
		return
	}
	super, err := m.SuperFragments(f)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, LatticeResponse{Fragment: int32(f), Sub: fragmentIDs(sub), Super: fragmentIDs(super)})
}

// ─────────────────────────────────────────────────────────────────────────────
// External molecules
// ─────────────────────────────────────────────────────────────────────────────

type TestFragmentsRequest struct {
	SMILES string `json:"smiles" binding:"required"`
}

// TestFragment is one fragment of an external molecule.  Position is -1 when
// the fragment is not part of the index, which only happens in fold mode.
type TestFragment struct {
	Fragment int32 `json:"fragment"`
	Position int   `json:"position"`
}

type TestFragmentsResponse struct {
	SMILES    string         `json:"smiles"`
	Fragments []TestFragment `json:"fragments"`
}

func (h *IndexHandler) TestFragments(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	var req TestFragmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "smiles is required")
		return
	}
	g, err := h.decoder.Decode(req.SMILES)
	if err != nil {
		writeAppError(c, err)
		return
	}
	frags, err := m.FragmentsForTestCompound(g)
	if err != nil {
		writeAppError(c, err)
		return
	}
	resp := TestFragmentsResponse{SMILES: req.SMILES, Fragments: make([]TestFragment, len(frags))}
	for i, f := range frags {
		resp.Fragments[i] = TestFragment{Fragment: int32(f), Position: -1}
		if pos, known := m.PositionOf(f); known {
			resp.Fragments[i].Position = pos
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Atom attribution modes.
const (
	AtomsFirst    = "first"
	AtomsMultiple = "multiple"
	AtomsDistinct = "distinct"
)

type AtomsRequest struct {
	SMILES   string `json:"smiles" binding:"required"`
	Fragment int32  `json:"fragment"`
	Mode     string `json:"mode"` // first (default) | multiple | distinct
}

type AtomsResponse struct {
	Fragment int32   `json:"fragment"`
	Mode     string  `json:"mode"`
	Atoms    []int   `json:"atoms,omitempty"`
	AtomSets [][]int `json:"atom_sets,omitempty"`
}

func (h *IndexHandler) Atoms(c *gin.Context) {
	m, ok := h.miner(c)
	if !ok {
		return
	}
	var req AtomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "smiles is required")
		return
	}
	if req.Mode == "" {
		req.Mode = AtomsFirst
	}
	g, err := h.decoder.Decode(req.SMILES)
	if err != nil {
		writeAppError(c, err)
		return
	}

	f := fragment.Fragment(req.Fragment)
	resp := AtomsResponse{Fragment: req.Fragment, Mode: req.Mode}
	switch req.Mode {
	case AtomsFirst:
		resp.Atoms, err = m.AtomsForFragment(g, f)
	case AtomsMultiple:
		resp.Atoms, err = m.AtomsMultiple(g, f)
	case AtomsDistinct:
		resp.AtomSets, err = m.AtomsMultipleDistinct(g, f)
	default:
		badRequest(c, "mode must be first, multiple or distinct")
		return
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
