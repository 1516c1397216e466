// Package statestore persists the assembler's active solutions and cell
// configuration cache across restarts, backed by bbolt.
package statestore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/qcc-assembler/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSolutions = []byte("active_solutions")
	bucketCellCache = []byte("cell_cache")
)

// Store persists types.Solution snapshots and the capability cell cache.
// It is the durable half of the assembler's shared mutable state (spec
// §5); the in-memory maps the assembler mutates on the hot path are
// snapshotted here on every state-changing operation. At startup only the
// cell cache is read back (ListCachedCells); solution snapshots are not
// reloaded, so solutions held before a restart are not restored.
type Store struct {
	db *bolt.DB
}

// New opens (creating if absent) a bbolt database file under dataDir and
// ensures its buckets exist.
func New(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "qcc-assembler.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSolutions, bucketCellCache} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSolution upserts a solution snapshot.
func (s *Store) SaveSolution(solution *types.Solution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSolutions)
		data, err := json.Marshal(solution)
		if err != nil {
			return err
		}
		return b.Put([]byte(solution.SolutionID), data)
	})
}

// GetSolution retrieves a solution snapshot by ID.
func (s *Store) GetSolution(id string) (*types.Solution, error) {
	var solution types.Solution
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSolutions)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("solution not found: %s", id)
		}
		return json.Unmarshal(data, &solution)
	})
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

// ListSolutions returns every persisted solution snapshot.
func (s *Store) ListSolutions() ([]*types.Solution, error) {
	var solutions []*types.Solution
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSolutions)
		return b.ForEach(func(k, v []byte) error {
			var solution types.Solution
			if err := json.Unmarshal(v, &solution); err != nil {
				return err
			}
			solutions = append(solutions, &solution)
			return nil
		})
	})
	return solutions, err
}

// DeleteSolution removes a solution snapshot, called once a released
// solution's cells have all been cached or released.
func (s *Store) DeleteSolution(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSolutions)
		return b.Delete([]byte(id))
	})
}

// SaveCachedCell upserts a cached cell, keyed by the capability it serves.
// Called whenever the assembler's in-memory core-capability cache gains an
// entry (spec §4.7).
func (s *Store) SaveCachedCell(capability string, cell *types.Cell) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCellCache)
		data, err := json.Marshal(cell)
		if err != nil {
			return err
		}
		return b.Put([]byte(capability), data)
	})
}

// GetCachedCell retrieves a cached cell by capability.
func (s *Store) GetCachedCell(capability string) (*types.Cell, error) {
	var cell types.Cell
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCellCache)
		data := b.Get([]byte(capability))
		if data == nil {
			return fmt.Errorf("cached cell not found for capability: %s", capability)
		}
		return json.Unmarshal(data, &cell)
	})
	if err != nil {
		return nil, err
	}
	return &cell, nil
}

// ListCachedCells returns every cached cell, keyed by capability, so the
// assembler can repopulate its in-memory cache on startup.
func (s *Store) ListCachedCells() (map[string]*types.Cell, error) {
	cells := make(map[string]*types.Cell)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCellCache)
		return b.ForEach(func(k, v []byte) error {
			var cell types.Cell
			if err := json.Unmarshal(v, &cell); err != nil {
				return err
			}
			cells[string(k)] = &cell
			return nil
		})
	})
	return cells, err
}

// DeleteCachedCell removes a cached cell, called on cache eviction or when
// a cached cell is handed back out to a new solution.
func (s *Store) DeleteCachedCell(capability string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCellCache)
		return b.Delete([]byte(capability))
	})
}
