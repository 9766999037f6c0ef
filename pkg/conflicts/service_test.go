package conflicts

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprocure/fern/pkg/models"
)

const testOrg = "org-1"

type fakeConflictRepo struct {
	conflicts map[string]*models.MatchingConflict
}

func newFakeConflictRepo(conflicts ...*models.MatchingConflict) *fakeConflictRepo {
	repo := &fakeConflictRepo{conflicts: map[string]*models.MatchingConflict{}}
	for _, c := range conflicts {
		repo.conflicts[c.ID] = c
	}
	return repo
}

func (f *fakeConflictRepo) Get(_ context.Context, _ string, id string) (*models.MatchingConflict, error) {
	c, ok := f.conflicts[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "conflict not found")
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConflictRepo) GetByIDs(_ context.Context, _ string, ids []string) ([]models.MatchingConflict, error) {
	var result []models.MatchingConflict
	for _, id := range ids {
		if c, ok := f.conflicts[id]; ok {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (f *fakeConflictRepo) List(_ context.Context, _ string, _ string, _ models.ConflictListFilters) ([]models.MatchingConflict, int, error) {
	var result []models.MatchingConflict
	for _, c := range f.conflicts {
		result = append(result, *c)
	}
	return result, len(result), nil
}

func (f *fakeConflictRepo) Resolve(_ context.Context, _ string, id string, status models.ConflictStatus, resolvedEntityID, resolvedBy, notes *string) error {
	c, ok := f.conflicts[id]
	if !ok || c.Status != models.ConflictStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, "conflict is not pending")
	}
	c.Status = status
	c.ResolvedEntityID = resolvedEntityID
	c.ResolvedBy = resolvedBy
	c.ResolutionNotes = notes
	return nil
}

// fakeRows records per-row resolution writes, keeping nil-means-untouched
// semantics
type fakeRows struct {
	supplierByRow map[string]string
	materialByRow map[string]string
}

func newFakeRows() *fakeRows {
	return &fakeRows{supplierByRow: map[string]string{}, materialByRow: map[string]string{}}
}

func (f *fakeRows) SetResolution(_ context.Context, id string, supplierID, materialID *string) error {
	if supplierID != nil {
		f.supplierByRow[id] = *supplierID
	}
	if materialID != nil {
		f.materialByRow[id] = *materialID
	}
	return nil
}

type fakeSuppliers struct {
	ids     map[string]bool
	created []*models.Supplier
}

func (f *fakeSuppliers) Get(_ context.Context, _ string, id string) (*models.Supplier, error) {
	if !f.ids[id] {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "supplier not found")
	}
	return &models.Supplier{ID: id}, nil
}

func (f *fakeSuppliers) CreateBatch(_ context.Context, suppliers []*models.Supplier) error {
	for _, s := range suppliers {
		f.ids[s.ID] = true
		f.created = append(f.created, s)
	}
	return nil
}

type fakeMaterials struct {
	ids     map[string]bool
	created []*models.Material
}

func (f *fakeMaterials) Get(_ context.Context, _ string, id string) (*models.Material, error) {
	if !f.ids[id] {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "material not found")
	}
	return &models.Material{ID: id}, nil
}

func (f *fakeMaterials) CreateBatch(_ context.Context, materials []*models.Material) error {
	for _, m := range materials {
		f.ids[m.ID] = true
		f.created = append(f.created, m)
	}
	return nil
}

type recordingEmitter struct {
	resolved []*models.MatchingConflict
}

func (r *recordingEmitter) ConflictResolved(_ context.Context, c *models.MatchingConflict) {
	r.resolved = append(r.resolved, c)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func pendingConflict(id string, similarity float64, candidates ...models.ConflictCandidate) *models.MatchingConflict {
	payload, _ := json.Marshal(candidates)
	return &models.MatchingConflict{
		ID:                   id,
		OrganizationID:       testOrg,
		UploadID:             "upload-1",
		StagingRowID:         "row-" + id,
		ConflictType:         models.ConflictTypeSupplier,
		IncomingValue:        "Acme Industrial",
		Candidates:           payload,
		HighestSimilarity:    similarity,
		AutoResolveThreshold: 0.95,
		Status:               models.ConflictStatusPending,
	}
}

type testEnv struct {
	repo      *fakeConflictRepo
	rows      *fakeRows
	suppliers *fakeSuppliers
	materials *fakeMaterials
	emitter   *recordingEmitter
	service   *Service
}

func newTestEnv(conflicts ...*models.MatchingConflict) *testEnv {
	env := &testEnv{
		repo:      newFakeConflictRepo(conflicts...),
		rows:      newFakeRows(),
		suppliers: &fakeSuppliers{ids: map[string]bool{"sup-1": true}},
		materials: &fakeMaterials{ids: map[string]bool{"mat-1": true}},
		emitter:   &recordingEmitter{},
	}
	env.service = NewService(env.repo, env.rows, env.suppliers, env.materials, env.emitter, testLogger())
	return env
}

func TestResolve_Match(t *testing.T) {
	env := newTestEnv(pendingConflict("c1", 0.85, models.ConflictCandidate{EntityID: "sup-1", Score: 0.85}))

	matched := "sup-1"
	resolved, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionMatch,
		MatchedID:  &matched,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolvedMatch, resolved.Status)
	require.NotNil(t, resolved.ResolvedEntityID)
	assert.Equal(t, "sup-1", *resolved.ResolvedEntityID)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "user-1", *resolved.ResolvedBy)
	assert.Len(t, env.emitter.resolved, 1)

	// the staging row now points at the chosen supplier
	assert.Equal(t, "sup-1", env.rows.supplierByRow["row-c1"])
	assert.Empty(t, env.rows.materialByRow)
}

func TestResolve_MatchOnMaterialConflictSettlesMaterialColumn(t *testing.T) {
	conflict := pendingConflict("c1", 0.85, models.ConflictCandidate{EntityID: "mat-1", Score: 0.85})
	conflict.ConflictType = models.ConflictTypeMaterial
	env := newTestEnv(conflict)

	matched := "mat-1"
	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionMatch,
		MatchedID:  &matched,
	})

	require.NoError(t, err)
	assert.Equal(t, "mat-1", env.rows.materialByRow["row-c1"])
	assert.Empty(t, env.rows.supplierByRow, "a material resolution must not touch the supplier reference")
}

func TestResolve_MatchRequiresMatchedID(t *testing.T) {
	env := newTestEnv(pendingConflict("c1", 0.85))

	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionMatch,
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Empty(t, env.rows.supplierByRow)
}

func TestResolve_MatchVerifiesEntityExists(t *testing.T) {
	env := newTestEnv(pendingConflict("c1", 0.85))

	matched := "sup-missing"
	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionMatch,
		MatchedID:  &matched,
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestResolve_NewCreatesEntityAndSettlesRow(t *testing.T) {
	conflict := pendingConflict("c1", 0.85)
	code := "ACME-77"
	conflict.IncomingCode = &code
	env := newTestEnv(conflict)

	resolved, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionNew,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolvedNew, resolved.Status)
	assert.Nil(t, resolved.ResolvedEntityID)

	require.Len(t, env.suppliers.created, 1)
	created := env.suppliers.created[0]
	assert.Equal(t, "Acme Industrial", created.Name)
	assert.Equal(t, "ACME-77", created.Code)
	assert.Equal(t, testOrg, created.OrganizationID)
	assert.True(t, created.IsAutoCreated)
	assert.Equal(t, created.ID, env.rows.supplierByRow["row-c1"])
}

func TestResolve_NewDerivesCodeWhenNoneSupplied(t *testing.T) {
	env := newTestEnv(pendingConflict("c1", 0.85))

	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionNew,
	})

	require.NoError(t, err)
	require.Len(t, env.suppliers.created, 1)
	assert.Equal(t, "SUP-ACMEINDUSTRIAL", env.suppliers.created[0].Code)
}

func TestResolve_TerminalConflictRejected(t *testing.T) {
	conflict := pendingConflict("c1", 0.85)
	conflict.Status = models.ConflictStatusResolvedNew
	env := newTestEnv(conflict)

	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "c1", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionNew,
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Empty(t, env.suppliers.created)
}

func TestResolve_UnknownConflict(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.Resolve(context.Background(), testOrg, "user-1", "missing", models.ResolveConflictRequest{
		Resolution: models.ConflictResolutionNew,
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestBulkAutoResolve(t *testing.T) {
	above := pendingConflict("c1", 0.97, models.ConflictCandidate{EntityID: "sup-1", Score: 0.97})
	atThreshold := pendingConflict("c2", 0.95, models.ConflictCandidate{EntityID: "sup-1", Score: 0.95})
	below := pendingConflict("c3", 0.90, models.ConflictCandidate{EntityID: "sup-1", Score: 0.90})
	terminal := pendingConflict("c4", 0.99, models.ConflictCandidate{EntityID: "sup-1", Score: 0.99})
	terminal.Status = models.ConflictStatusAutoResolved

	env := newTestEnv(above, atThreshold, below, terminal)

	resp, err := env.service.BulkAutoResolve(context.Background(), testOrg, "user-1", []string{"c1", "c2", "c3", "c4", "missing"})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.ResolvedCount)
	assert.Equal(t, models.ConflictStatusAutoResolved, env.repo.conflicts["c1"].Status)
	assert.Equal(t, models.ConflictStatusAutoResolved, env.repo.conflicts["c2"].Status)
	assert.Equal(t, models.ConflictStatusPending, env.repo.conflicts["c3"].Status)
	require.NotNil(t, env.repo.conflicts["c1"].ResolvedEntityID)
	assert.Equal(t, "sup-1", *env.repo.conflicts["c1"].ResolvedEntityID)
	assert.Len(t, env.emitter.resolved, 2)

	// both auto-resolved rows point at the winning candidate
	assert.Equal(t, "sup-1", env.rows.supplierByRow["row-c1"])
	assert.Equal(t, "sup-1", env.rows.supplierByRow["row-c2"])
	assert.NotContains(t, env.rows.supplierByRow, "row-c3")
}

func TestBulkMarkAsNew(t *testing.T) {
	pending := pendingConflict("c1", 0.85)
	terminal := pendingConflict("c2", 0.85)
	terminal.Status = models.ConflictStatusResolvedMatch

	env := newTestEnv(pending, terminal)

	resp, err := env.service.BulkMarkAsNew(context.Background(), testOrg, "user-1", []string{"c1", "c2"})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.ResolvedCount)
	assert.Equal(t, models.ConflictStatusResolvedNew, env.repo.conflicts["c1"].Status)
	assert.Equal(t, models.ConflictStatusResolvedMatch, env.repo.conflicts["c2"].Status)

	require.Len(t, env.suppliers.created, 1)
	assert.Equal(t, env.suppliers.created[0].ID, env.rows.supplierByRow["row-c1"])
}

func TestList_DefaultsPaging(t *testing.T) {
	env := newTestEnv(pendingConflict("c1", 0.85))

	resp, err := env.service.List(context.Background(), testOrg, "upload-1", models.ConflictListFilters{})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 50, resp.PageSize)
}
