package assembler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/qcc-assembler/pkg/config"
	"github.com/cuemby/qcc-assembler/pkg/ledger"
	"github.com/cuemby/qcc-assembler/pkg/statestore"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves the three-call cell RPC contract (request, download,
// release) with a canned cell, counting releases so teardown tests can
// assert on them.
type fakeProvider struct {
	server   *httptest.Server
	releases int
	failNext bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	fp := &fakeProvider{}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cells/request":
			if fp.failNext {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			capability, _ := body["capability"].(string)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"status":       "success",
				"cell_id":      capability + "-cell-1",
				"download_url": "/cells/" + capability + "-cell-1",
				"cell_type":    "generator",
				"capability":   capability,
				"version":      "1.0.0",
			})
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"status":  "success",
				"cell_id": "cell",
				"package": map[string]any{"runtime": "wasm"},
			})
		case r.Method == http.MethodPost:
			fp.releases++
			json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		}
	}))
	t.Cleanup(fp.server.Close)
	return fp
}

func newTestAssembler(t *testing.T, providerURL string) *Assembler {
	cfg := config.Default()
	cfg.Providers.URLs = []string{providerURL}
	cfg.Ledger.StoragePath = t.TempDir()

	chain, err := ledger.New(ledger.Config{
		StoragePath:   cfg.Ledger.StoragePath,
		Difficulty:    1,
		BlockCapacity: cfg.Ledger.BlockCapacity,
		SigningKey:    "test-signing-key",
	})
	require.NoError(t, err)

	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(cfg, store, chain, nil)
}

func TestAssembleSolution_HappyPath(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, solution.SolutionID)
	assert.NotEmpty(t, solution.Cells)
	assert.Equal(t, types.SolutionActive, solution.Status)

	_, ok := a.GetSolution(solution.SolutionID)
	assert.True(t, ok)
}

func TestAssembleSolution_FallsBackToTextGenerationWhenNoCapabilitiesMatch(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	// A blank request matches no pattern, so the interpreter's own fallback
	// supplies text_generation; the assembler's empty-analysis guard is not
	// reached by this input.
	solution, err := a.AssembleSolution(t.Context(), "", types.IntentContext{})
	require.NoError(t, err)
	require.NotEmpty(t, solution.Cells)
	for _, cell := range solution.Cells {
		assert.Equal(t, "text_generation", cell.Capability)
	}
}

func TestAssembleSolution_NoHealthyProvidersFails(t *testing.T) {
	a := newTestAssembler(t, "http://127.0.0.1:1")

	_, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	assert.Error(t, err)
}

func TestReleaseSolution_CachesCoreCapabilityCell(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)

	ok := a.ReleaseSolution(t.Context(), solution.SolutionID)
	assert.True(t, ok)

	_, stillActive := a.GetSolution(solution.SolutionID)
	assert.False(t, stillActive)

	// text_generation is a core capability (spec default cache set), so the
	// cell should have been cached rather than released to the provider.
	assert.Zero(t, fp.releases)

	cached := a.takeFromCache("text_generation", types.DeviceInfo{})
	assert.NotNil(t, cached)
}

func TestReleaseSolution_RecordsPerformanceScoreOnLedger(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := config.Default()
	cfg.Providers.URLs = []string{fp.server.URL}
	cfg.Ledger.StoragePath = t.TempDir()

	// Block capacity 2 so the assembly transaction plus the release
	// transaction mine a block immediately, with no need to wait on the
	// time-based trigger.
	chain, err := ledger.New(ledger.Config{
		StoragePath:   cfg.Ledger.StoragePath,
		Difficulty:    1,
		BlockCapacity: 2,
		SigningKey:    "test-signing-key",
	})
	require.NoError(t, err)
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	a := New(cfg, store, chain, nil)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)

	ok := a.ReleaseSolution(t.Context(), solution.SolutionID)
	require.True(t, ok)

	require.NoError(t, chain.Validate())
	tail := chain.Tail()
	require.Len(t, tail.Transactions, 2, "block capacity 2 should have mined after the release transaction")

	released := tail.Transactions[1]
	assert.Equal(t, "released", released.Status)
	score, ok := released.PerformanceMetrics["performance_score"]
	require.True(t, ok, "release transaction should carry a performance_score")
	assert.Greater(t, score, 0.0)
}

func TestNew_ReloadsCachedCellsFromStateStore(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := config.Default()
	cfg.Providers.URLs = []string{fp.server.URL}
	cfg.Ledger.StoragePath = t.TempDir()

	dataDir := t.TempDir()
	store, err := statestore.New(dataDir)
	require.NoError(t, err)
	require.NoError(t, store.SaveCachedCell("text_generation", &types.Cell{CellID: "cell-from-disk", Capability: "text_generation"}))
	require.NoError(t, store.Close())

	store, err = statestore.New(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	chain, err := ledger.New(ledger.Config{StoragePath: cfg.Ledger.StoragePath, Difficulty: 1, SigningKey: "test-signing-key"})
	require.NoError(t, err)

	a := New(cfg, store, chain, nil)

	cached := a.takeFromCache("text_generation", types.DeviceInfo{})
	require.NotNil(t, cached)
	assert.Equal(t, "cell-from-disk", cached.CellID)
}

func TestReleaseSolution_UnknownIDReturnsFalse(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	assert.False(t, a.ReleaseSolution(t.Context(), "does-not-exist"))
}

func TestExecuteCapability_RejectsCellNotOwnedBySolution(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)

	_, err = a.ExecuteCapability(solution.SolutionID, "not-a-real-cell", "text_generation", nil)
	assert.Error(t, err)
}

func TestExecuteCapability_RejectsUnknownSolution(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	_, err := a.ExecuteCapability("no-such-solution", "cell-1", "text_generation", nil)
	assert.Error(t, err)
}

func TestExecuteCapability_DispatchesThroughRuntime(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)

	var cellID, capability string
	for id, c := range solution.Cells {
		cellID, capability = id, c.Capability
		break
	}

	result, err := a.ExecuteCapability(solution.SolutionID, cellID, capability, map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "success", result["status"])
}

func TestStatus_ReflectsActiveSolutionsAndCounters(t *testing.T) {
	fp := newFakeProvider(t)
	a := newTestAssembler(t, fp.server.URL)

	solution, err := a.AssembleSolution(t.Context(), "write me a story", types.IntentContext{})
	require.NoError(t, err)

	status := a.Status()
	assert.Equal(t, 1, status.ActiveSolutions)
	assert.EqualValues(t, 1, status.TotalAssemblies)

	a.ReleaseSolution(t.Context(), solution.SolutionID)
	status = a.Status()
	assert.Equal(t, 0, status.ActiveSolutions)
}

func TestPickBestConfiguration_HighestScoreWins(t *testing.T) {
	candidates := []types.CellConfiguration{
		{ConfigID: "a", PerformanceScore: 50},
		{ConfigID: "b", PerformanceScore: 90},
		{ConfigID: "c", PerformanceScore: 70},
	}
	best := pickBestConfiguration(candidates)
	require.NotNil(t, best)
	assert.Equal(t, "b", best.ConfigID)
}

func TestPickBestConfiguration_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, pickBestConfiguration(nil))
}

func TestIsCoreCapability(t *testing.T) {
	coreSet := []string{"file_system", "text_generation"}
	assert.True(t, isCoreCapability("text_generation", coreSet))
	assert.False(t, isCoreCapability("web_search", coreSet))
}

func TestDeviceCompatible_AlwaysTrue(t *testing.T) {
	assert.True(t, deviceCompatible(types.DeviceInfo{Platform: "mobile"}))
	assert.True(t, deviceCompatible(types.DeviceInfo{}))
}
