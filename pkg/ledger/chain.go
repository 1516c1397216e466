package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/rs/zerolog"
)

const (
	chainFileName   = "chain.json"
	pendingFileName = "pending_transactions.json"

	defaultDifficulty                = 4
	defaultBlockCapacity             = 100
	defaultBlockTimeTargetSeconds    = 60
	defaultMaxTransactionWaitSeconds = 300
	difficultyAdjustmentInterval     = 10
	pendingBacklogMultiplier         = 10
)

// Config controls a Ledger's persistence location and mining policy.
type Config struct {
	StoragePath               string
	Difficulty                int
	BlockCapacity             int
	BlockTimeTargetSeconds    int
	MaxTransactionWaitSeconds int
	SigningKey                string

	// EventBroker, if set, receives a TypeLedgerBlockMined event each time
	// mineAndAppendLocked appends a block. Optional; nil-safe.
	EventBroker *events.Broker
}

func (c *Config) applyDefaults() {
	if c.Difficulty <= 0 {
		c.Difficulty = defaultDifficulty
	}
	if c.BlockCapacity <= 0 {
		c.BlockCapacity = defaultBlockCapacity
	}
	if c.BlockTimeTargetSeconds <= 0 {
		c.BlockTimeTargetSeconds = defaultBlockTimeTargetSeconds
	}
	if c.MaxTransactionWaitSeconds <= 0 {
		c.MaxTransactionWaitSeconds = defaultMaxTransactionWaitSeconds
	}
}

// Ledger is the quantum-trail: an append-only, proof-of-work-chained log of
// assembly and release transactions, backed by a JSON file per chain plus a
// companion pending-transactions file (spec §6.3). One Ledger instance is
// the single logical owner of its chain; AddTransaction and the mining loop
// serialize through it.
type Ledger struct {
	mu   sync.Mutex
	cfg  Config
	chain   []*types.LedgerBlock
	pending []types.LedgerTransaction

	// mining guards against a second mineAndAppendLocked starting while the
	// first has dropped l.mu mid-search (see mineAndAppendLocked's yield).
	mining bool

	mineTimes []time.Duration

	events *events.Broker
	logger zerolog.Logger
}

// New loads an existing chain from cfg.StoragePath, or creates a fresh
// genesis block if none exists or the existing one fails validation.
func New(cfg Config) (*Ledger, error) {
	cfg.applyDefaults()
	l := &Ledger{
		cfg:    cfg,
		events: cfg.EventBroker,
		logger: log.WithComponent("ledger"),
	}

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, &errors.LedgerError{Op: "mkdir", Err: err}
	}

	if err := l.load(); err != nil {
		l.logger.Warn().Err(err).Msg("discarding invalid or unreadable chain, starting fresh")
		l.chain = []*types.LedgerBlock{genesisBlock()}
		l.pending = nil
		if err := l.persist(); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Ledger) chainPath() string   { return filepath.Join(l.cfg.StoragePath, chainFileName) }
func (l *Ledger) pendingPath() string { return filepath.Join(l.cfg.StoragePath, pendingFileName) }

// diskBlock/diskTx mirror the wire schema in spec §6.3 exactly; the
// in-memory types.LedgerBlock/LedgerTransaction field names diverge (Go
// idiom) so these exist purely for (de)serialization.
type diskTx struct {
	ID                 string             `json:"id"`
	Timestamp          time.Time          `json:"timestamp"`
	QuantumSignature   string             `json:"quantum_signature"`
	SolutionID         string             `json:"solution_id"`
	CellIDs            []string           `json:"cell_ids"`
	ConnectionMap      map[string][]string `json:"connection_map"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	Status             string             `json:"status,omitempty"`
	Signature          string             `json:"signature"`
}

type diskBlock struct {
	Index        int       `json:"index"`
	Timestamp    time.Time `json:"timestamp"`
	Transactions []diskTx  `json:"transactions"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
	Nonce        int64     `json:"nonce"`
	Difficulty   int       `json:"difficulty"`
}

func toDiskTx(tx types.LedgerTransaction) diskTx {
	return diskTx{
		ID:                 tx.TxID,
		Timestamp:          tx.Timestamp,
		QuantumSignature:   tx.QuantumSignature,
		SolutionID:         tx.SolutionID,
		CellIDs:            tx.CellIDs,
		ConnectionMap:      tx.ConnectionMap,
		PerformanceMetrics: tx.PerformanceMetrics,
		Status:             tx.Status,
		Signature:          tx.TxSignature,
	}
}

func fromDiskTx(d diskTx) types.LedgerTransaction {
	return types.LedgerTransaction{
		TxID:               d.ID,
		Timestamp:          d.Timestamp,
		QuantumSignature:   d.QuantumSignature,
		SolutionID:         d.SolutionID,
		CellIDs:            d.CellIDs,
		ConnectionMap:      d.ConnectionMap,
		PerformanceMetrics: d.PerformanceMetrics,
		Status:             d.Status,
		TxSignature:        d.Signature,
	}
}

func toDiskBlock(b *types.LedgerBlock) diskBlock {
	txs := make([]diskTx, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = toDiskTx(tx)
	}
	return diskBlock{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Transactions: txs,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
		Difficulty:   b.Difficulty,
	}
}

func fromDiskBlock(d diskBlock) *types.LedgerBlock {
	txs := make([]types.LedgerTransaction, len(d.Transactions))
	for i, tx := range d.Transactions {
		txs[i] = fromDiskTx(tx)
	}
	return &types.LedgerBlock{
		Index:        d.Index,
		Timestamp:    d.Timestamp,
		Transactions: txs,
		PreviousHash: d.PreviousHash,
		Hash:         d.Hash,
		Nonce:        d.Nonce,
		Difficulty:   d.Difficulty,
	}
}

// load reads chain.json and pending_transactions.json from disk and
// validates the chain. A missing chain file is treated the same as an
// invalid chain: the caller regenesis.
func (l *Ledger) load() error {
	raw, err := os.ReadFile(l.chainPath())
	if err != nil {
		return err
	}

	var diskBlocks []diskBlock
	if err := json.Unmarshal(raw, &diskBlocks); err != nil {
		return err
	}
	if len(diskBlocks) == 0 {
		return fmt.Errorf("empty chain file")
	}

	chain := make([]*types.LedgerBlock, len(diskBlocks))
	for i, d := range diskBlocks {
		chain[i] = fromDiskBlock(d)
	}

	if err := validateChain(chain, l.cfg.SigningKey); err != nil {
		return err
	}

	l.chain = chain

	if pendingRaw, err := os.ReadFile(l.pendingPath()); err == nil {
		var diskTxs []diskTx
		if err := json.Unmarshal(pendingRaw, &diskTxs); err == nil {
			pending := make([]types.LedgerTransaction, len(diskTxs))
			for i, d := range diskTxs {
				pending[i] = fromDiskTx(d)
			}
			l.pending = pending
		}
	}

	return nil
}

// validateChain checks spec §6.3/§8's chain validity invariants: hash
// recomputation, previous-hash linkage, difficulty target, monotonic
// index, and per-transaction signature verification.
func validateChain(chain []*types.LedgerBlock, signingKey string) error {
	genesis := chain[0]
	if genesis.Index != 0 || genesis.PreviousHash != "" {
		return &errors.BlockValidationError{Index: 0, Reason: "malformed genesis block"}
	}

	for i, block := range chain {
		if computeHash(block) != block.Hash {
			return &errors.BlockValidationError{Index: i, Reason: "hash does not match recomputed value"}
		}
		if !meetsDifficulty(block.Hash, block.Difficulty) {
			return &errors.BlockValidationError{Index: i, Reason: "hash does not meet difficulty target"}
		}
		if i > 0 {
			prev := chain[i-1]
			if block.Index != prev.Index+1 {
				return &errors.BlockValidationError{Index: i, Reason: "non-contiguous index"}
			}
			if block.PreviousHash != prev.Hash {
				return &errors.BlockValidationError{Index: i, Reason: "previous_hash does not match predecessor"}
			}
		}
		for _, tx := range block.Transactions {
			if signingKey != "" && !verifyTransactionSignature(tx, signingKey) {
				return &errors.TransactionValidationError{TxID: tx.TxID, Reason: "signature does not verify"}
			}
		}
	}
	return nil
}

// persist writes the chain and pending queue to disk using the
// write-tmp-then-rename pattern so a crash mid-write never leaves a
// truncated chain.json behind.
func (l *Ledger) persist() error {
	if err := writeJSONAtomic(l.chainPath(), toDiskBlocks(l.chain)); err != nil {
		return &errors.LedgerError{Op: "persist chain", Err: err}
	}
	if err := writeJSONAtomic(l.pendingPath(), toDiskTxs(l.pending)); err != nil {
		return &errors.LedgerError{Op: "persist pending", Err: err}
	}
	return nil
}

func toDiskBlocks(chain []*types.LedgerBlock) []diskBlock {
	out := make([]diskBlock, len(chain))
	for i, b := range chain {
		out[i] = toDiskBlock(b)
	}
	return out
}

func toDiskTxs(txs []types.LedgerTransaction) []diskTx {
	out := make([]diskTx, len(txs))
	for i, tx := range txs {
		out[i] = toDiskTx(tx)
	}
	return out
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Tail returns the most recently appended block.
func (l *Ledger) Tail() *types.LedgerBlock {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain[len(l.chain)-1]
}

// Len returns the number of blocks in the chain, including genesis.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chain)
}

// PendingCount returns the number of transactions awaiting mining.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Difficulty returns the current mining difficulty.
func (l *Ledger) Difficulty() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Difficulty
}

// Blocks returns a snapshot copy of the full chain.
func (l *Ledger) Blocks() []*types.LedgerBlock {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*types.LedgerBlock, len(l.chain))
	copy(out, l.chain)
	return out
}

// Validate re-runs chain validation against the ledger's current in-memory
// state; used by the CLI's "ledger verify" subcommand.
func (l *Ledger) Validate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return validateChain(l.chain, l.cfg.SigningKey)
}
