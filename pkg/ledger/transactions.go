package ledger

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/errors"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/metrics"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/google/uuid"
)

var errBacklogExceeded = stderrors.New("pending transaction queue exceeds backlog limit")

// TransactionInput is the caller-supplied content of a new ledger
// transaction; AddTransaction fills in the envelope (id, timestamp,
// signature) around it.
type TransactionInput struct {
	QuantumSignature   string
	SolutionID         string
	CellIDs            []string
	ConnectionMap      map[string][]string
	PerformanceMetrics map[string]float64
	Status             string
}

// AddTransaction wraps input in a signed transaction envelope, validates
// the signature round-trip, and pushes it onto the pending queue. Returns
// the fully-populated transaction. Refuses to enqueue once the pending
// queue exceeds 10x the configured block capacity (back-pressure, spec §5).
func (l *Ledger) AddTransaction(input TransactionInput) (types.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) >= pendingBacklogMultiplier*l.cfg.BlockCapacity {
		return types.LedgerTransaction{}, &errors.LedgerError{Op: "add transaction", Err: errBacklogExceeded}
	}

	tx := types.LedgerTransaction{
		TxID:               uuid.NewString(),
		Timestamp:          time.Now(),
		QuantumSignature:   input.QuantumSignature,
		SolutionID:         input.SolutionID,
		CellIDs:            input.CellIDs,
		ConnectionMap:      input.ConnectionMap,
		PerformanceMetrics: input.PerformanceMetrics,
		Status:             input.Status,
	}
	tx.TxSignature = signTransaction(&tx, l.cfg.SigningKey)

	if !verifyTransactionSignature(tx, l.cfg.SigningKey) {
		return types.LedgerTransaction{}, &errors.TransactionValidationError{TxID: tx.TxID, Reason: "signature failed round-trip validation"}
	}

	l.pending = append(l.pending, tx)
	metrics.LedgerPendingTransactions.Set(float64(len(l.pending)))

	if err := l.persist(); err != nil {
		return types.LedgerTransaction{}, err
	}

	l.logger.Debug().Str("tx_id", tx.TxID).Str("solution_id", tx.SolutionID).Msg("transaction enqueued")

	if err := l.maybeMineLocked(); err != nil {
		l.logger.Error().Err(err).Msg("mining trigger failed")
	}

	return tx, nil
}

// shouldMine reports whether the mining trigger condition (spec §4.5 step 2)
// holds: pending count at or above block capacity, or the oldest pending
// transaction has aged past the max wait.
func (l *Ledger) shouldMine() bool {
	if len(l.pending) == 0 {
		return false
	}
	if len(l.pending) >= l.cfg.BlockCapacity {
		return true
	}
	oldest := l.pending[0].Timestamp
	return time.Since(oldest) > time.Duration(l.cfg.MaxTransactionWaitSeconds)*time.Second
}

// maybeMineLocked mines and appends a block if the trigger condition holds
// and a mining search isn't already in flight. Caller must hold l.mu.
func (l *Ledger) maybeMineLocked() error {
	if l.mining || !l.shouldMine() {
		return nil
	}
	return l.mineAndAppendLocked()
}

// mineAndAppendLocked builds a candidate block from the entire pending
// queue, mines it, appends it to the chain, and persists. Caller must hold
// l.mu on entry; l.mu is held again on return, but the proof-of-work search
// itself runs with the lock released (spec §5 cooperative suspension): mine
// yields every nonceYieldInterval attempts, and each yield drops l.mu so
// AddTransaction and the read-only accessors can interleave with an
// in-progress mine instead of blocking for its full duration. l.mining
// guards against a second mine starting during that window.
func (l *Ledger) mineAndAppendLocked() error {
	tail := l.chain[len(l.chain)-1]
	pending := l.pending
	l.pending = nil

	block := &types.LedgerBlock{
		Index:        tail.Index + 1,
		Timestamp:    time.Now(),
		PreviousHash: tail.Hash,
		Transactions: pending,
		Difficulty:   l.cfg.Difficulty,
	}

	l.mining = true
	start := time.Now()
	block.Hash = mine(block, func() {
		l.mu.Unlock()
		l.mu.Lock()
	})
	elapsed := time.Since(start)
	l.mining = false

	l.chain = append(l.chain, block)
	l.mineTimes = append(l.mineTimes, elapsed)

	l.adjustDifficultyLocked()

	metrics.LedgerBlocksMinedTotal.Inc()
	metrics.LedgerMiningDuration.Observe(elapsed.Seconds())
	metrics.LedgerDifficulty.Set(float64(l.cfg.Difficulty))
	metrics.LedgerPendingTransactions.Set(float64(len(l.pending)))

	l.logger.Info().Int("index", block.Index).Int("transactions", len(block.Transactions)).
		Dur("mine_time", elapsed).Int("difficulty", block.Difficulty).Msg("block mined")
	l.publishBlockMined(block)

	return l.persist()
}

// publishBlockMined is the nil-safe event-broker publish helper for a
// successfully mined block.
func (l *Ledger) publishBlockMined(block *types.LedgerBlock) {
	if l.events == nil {
		return
	}
	l.events.Publish(&events.Event{
		ID:        uuid.NewString(),
		Type:      events.TypeLedgerBlockMined,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("block %d mined with %d transactions", block.Index, len(block.Transactions)),
	})
}

// adjustDifficultyLocked applies the difficulty-adjustment rule (spec §4.5
// step 4) every difficultyAdjustmentInterval blocks, based on the rolling
// average mine time of the most recent interval's worth of blocks.
func (l *Ledger) adjustDifficultyLocked() {
	if len(l.mineTimes) < difficultyAdjustmentInterval {
		return
	}
	if len(l.chain)-1 == 0 || (len(l.chain)-1)%difficultyAdjustmentInterval != 0 {
		return
	}

	window := l.mineTimes[len(l.mineTimes)-difficultyAdjustmentInterval:]
	var total time.Duration
	for _, d := range window {
		total += d
	}
	avg := total / time.Duration(len(window))
	target := time.Duration(l.cfg.BlockTimeTargetSeconds) * time.Second

	switch {
	case avg < target/2:
		l.cfg.Difficulty++
	case avg > target*2 && l.cfg.Difficulty > 1:
		l.cfg.Difficulty--
	}
}
