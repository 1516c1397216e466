// Package ledger implements the quantum-trail ledger: an append-only,
// proof-of-work-chained record of assembly and release transactions, with
// similarity-based configuration retrieval and per-configuration
// performance scoring.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/types"
)

// nonceYieldInterval is a var, not a const, so tests can shrink it to force
// yield() to fire without mining to an unreasonably high difficulty.
var nonceYieldInterval int64 = 10000

// hashableBlock is the subset of a block's fields the hash is computed
// over; everything persisted except the hash itself.
type hashableBlock struct {
	Index        int                       `json:"index"`
	Timestamp    int64                     `json:"timestamp"`
	Transactions []types.LedgerTransaction `json:"transactions"`
	PreviousHash string                    `json:"previous_hash"`
	Nonce        int64                     `json:"nonce"`
	Difficulty   int                       `json:"difficulty"`
}

func computeHash(block *types.LedgerBlock) string {
	h := hashableBlock{
		Index:        block.Index,
		Timestamp:    block.Timestamp.UnixNano(),
		Transactions: block.Transactions,
		PreviousHash: block.PreviousHash,
		Nonce:        block.Nonce,
		Difficulty:   block.Difficulty,
	}
	payload, _ := json.Marshal(h)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func meetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return hash[:difficulty] == strings.Repeat("0", difficulty)
}

// mine iterates nonce until the block's hash meets its difficulty target,
// calling yield every nonceYieldInterval attempts so the caller can
// cooperatively check for cancellation. Returns the mined block's final
// hash.
func mine(block *types.LedgerBlock, yield func()) string {
	block.Nonce = 0
	hash := computeHash(block)
	for !meetsDifficulty(hash, block.Difficulty) {
		block.Nonce++
		if block.Nonce%nonceYieldInterval == 0 && yield != nil {
			yield()
		}
		hash = computeHash(block)
	}
	return hash
}

func signTransaction(tx *types.LedgerTransaction, signingKey string) string {
	body := struct {
		TxID             string              `json:"id"`
		QuantumSignature string              `json:"quantum_signature"`
		SolutionID       string              `json:"solution_id"`
		CellIDs          []string            `json:"cell_ids"`
		ConnectionMap    map[string][]string `json:"connection_map"`
	}{
		TxID:             tx.TxID,
		QuantumSignature: tx.QuantumSignature,
		SolutionID:       tx.SolutionID,
		CellIDs:          tx.CellIDs,
		ConnectionMap:    tx.ConnectionMap,
	}
	payload, _ := json.Marshal(body)
	sum := sha256.Sum256(append(payload, []byte(signingKey)...))
	return hex.EncodeToString(sum[:])
}

func verifyTransactionSignature(tx types.LedgerTransaction, signingKey string) bool {
	return tx.TxSignature == signTransaction(&tx, signingKey)
}

func genesisBlock() *types.LedgerBlock {
	block := &types.LedgerBlock{
		Index:        0,
		Timestamp:    time.Now(),
		PreviousHash: "",
		Transactions: nil,
		Difficulty:   0,
	}
	block.Hash = computeHash(block)
	return block
}
