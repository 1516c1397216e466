package ledger

import (
	"sort"
	"strings"

	"github.com/cuemby/qcc-assembler/pkg/types"
)

const similarityThreshold = 0.5

// cellCapability infers a cell's capability from its ID prefix. The source
// system split on the first underscore, which breaks for multi-word
// capability names like "text_generation"; cell IDs here are instead
// minted as "<capability>-<uuid>" (spec note on prefix-based inference:
// an implementation is free to store the capability explicitly on the
// cell ID), so the prefix is the segment before the first hyphen.
func cellCapability(cellID string) string {
	if idx := strings.Index(cellID, "-"); idx >= 0 {
		return cellID[:idx]
	}
	return cellID
}

// similarity computes |matched| / max(|requested|, |tx.cell_ids|) where a
// match is: the capability prefix of a tx cell_id appears in requested.
func similarity(requested []string, cellIDs []string) float64 {
	if len(requested) == 0 && len(cellIDs) == 0 {
		return 0
	}

	wanted := make(map[string]bool, len(requested))
	for _, c := range requested {
		wanted[c] = true
	}

	matched := 0
	for _, id := range cellIDs {
		if wanted[cellCapability(id)] {
			matched++
		}
	}

	denom := len(requested)
	if len(cellIDs) > denom {
		denom = len(cellIDs)
	}
	if denom == 0 {
		return 0
	}
	return float64(matched) / float64(denom)
}

// isSentinel reports whether a transaction is a non-assembly bookkeeping
// entry (mining reward or genesis placeholder) that similarity retrieval
// must skip.
func isSentinel(tx types.LedgerTransaction) bool {
	return tx.Status == "mining_reward" || tx.SolutionID == ""
}

// FindSimilarConfigurations implements the ledger's similarity retrieval
// (spec §4.5): iterate transactions newest-first, skip sentinel entries,
// keep those with similarity > 0.5 against the requested capabilities,
// sort by similarity descending, and return up to maxResults reconstructed
// configurations.
func (l *Ledger) FindSimilarConfigurations(requestedCapabilities []string, maxResults int) []types.CellConfiguration {
	l.mu.Lock()
	txs := l.collectTransactionsNewestFirstLocked()
	l.mu.Unlock()

	type scored struct {
		tx    types.LedgerTransaction
		score float64
	}

	var candidates []scored
	for _, tx := range txs {
		if isSentinel(tx) {
			continue
		}
		score := similarity(requestedCapabilities, tx.CellIDs)
		if score > similarityThreshold {
			candidates = append(candidates, scored{tx: tx, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if maxResults <= 0 {
		maxResults = 3
	}
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	configs := make([]types.CellConfiguration, 0, len(candidates))
	for _, c := range candidates {
		configs = append(configs, reconstructConfiguration(c.tx))
	}
	return configs
}

func reconstructConfiguration(tx types.LedgerTransaction) types.CellConfiguration {
	specs := make([]types.CellSpec, len(tx.CellIDs))
	for i, id := range tx.CellIDs {
		specs[i] = types.CellSpec{Capability: cellCapability(id)}
	}

	return types.CellConfiguration{
		ConfigID:         tx.SolutionID,
		CellSpecs:        specs,
		ConnectionMap:    tx.ConnectionMap,
		PerformanceScore: scoreFromMetrics(tx.PerformanceMetrics),
		UseCount:         1,
		LastUsedAt:       tx.Timestamp,
	}
}

// collectTransactionsNewestFirstLocked walks the chain tail-to-head and
// each block's transactions tail-to-head; caller must hold l.mu.
func (l *Ledger) collectTransactionsNewestFirstLocked() []types.LedgerTransaction {
	var out []types.LedgerTransaction
	for i := len(l.chain) - 1; i >= 0; i-- {
		block := l.chain[i]
		for j := len(block.Transactions) - 1; j >= 0; j-- {
			out = append(out, block.Transactions[j])
		}
	}
	return out
}

// scoreFromMetrics reads a precomputed performance_score out of a
// transaction's performance metrics map, if present.
func scoreFromMetrics(metrics map[string]float64) float64 {
	if metrics == nil {
		return 0
	}
	return metrics["performance_score"]
}

// ScoreConfiguration implements the configuration-scoring formula (spec
// §4.5): start at 100, subtract penalties for assembly time, peak memory,
// and average CPU usage, add a small bonus for short total usage time, and
// clamp to [0, 100].
func ScoreConfiguration(assemblyTimeMS, memoryPeakMB, cpuUsageAvg, totalUsageTimeMS float64) float64 {
	score := 100.0
	score -= min(20, assemblyTimeMS/50)
	score -= min(10, memoryPeakMB/100)
	score -= min(10, cpuUsageAvg/10)
	if totalUsageTimeMS > 0 && totalUsageTimeMS < 5000 {
		score += min(10, (5000-totalUsageTimeMS)/500)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ReuseScore applies the weighted-average update (spec §4.5) used when a
// retrieved configuration is reused: n is the post-increment use count.
func ReuseScore(oldAvg, newScore float64, n int) float64 {
	if n <= 1 {
		return newScore
	}
	return (oldAvg*float64(n-1)*0.8 + newScore*0.2*float64(n)) / float64(n)
}
