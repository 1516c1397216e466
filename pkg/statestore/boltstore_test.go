package statestore

import (
	"testing"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndGetSolution(t *testing.T) {
	s := newTestStore(t)
	solution := &types.Solution{SolutionID: "sol-1", Status: types.SolutionStatus("active"), CreatedAt: time.Now()}

	require.NoError(t, s.SaveSolution(solution))

	got, err := s.GetSolution("sol-1")
	require.NoError(t, err)
	assert.Equal(t, "sol-1", got.SolutionID)
}

func TestStore_GetSolution_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSolution("missing")
	assert.Error(t, err)
}

func TestStore_ListSolutions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSolution(&types.Solution{SolutionID: "a"}))
	require.NoError(t, s.SaveSolution(&types.Solution{SolutionID: "b"}))

	all, err := s.ListSolutions()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_DeleteSolution(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSolution(&types.Solution{SolutionID: "a"}))
	require.NoError(t, s.DeleteSolution("a"))

	_, err := s.GetSolution("a")
	assert.Error(t, err)
}

func TestStore_SaveAndGetCachedCell(t *testing.T) {
	s := newTestStore(t)
	cell := &types.Cell{CellID: "cell-1", Capability: "text_generation"}

	require.NoError(t, s.SaveCachedCell("text_generation", cell))

	got, err := s.GetCachedCell("text_generation")
	require.NoError(t, err)
	assert.Equal(t, "cell-1", got.CellID)
}

func TestStore_GetCachedCell_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCachedCell("missing")
	assert.Error(t, err)
}

func TestStore_ListAndDeleteCachedCells(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveCachedCell("file_system", &types.Cell{CellID: "c1"}))
	require.NoError(t, s.SaveCachedCell("ui_rendering", &types.Cell{CellID: "c2"}))

	all, err := s.ListCachedCells()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "c1", all["file_system"].CellID)

	require.NoError(t, s.DeleteCachedCell("file_system"))
	all, err = s.ListCachedCells()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
