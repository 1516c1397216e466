package ledger

import (
	"context"
	"time"
)

const minerTickInterval = 1 * time.Second

// Run starts the background mining-trigger loop and blocks until ctx is
// canceled. It exists to catch the time-based trigger (oldest pending
// transaction older than MaxTransactionWaitSeconds) even when no new
// transaction arrives to re-check the condition via AddTransaction. On
// cancellation it performs one final flush of any pending transactions
// before returning (spec §5).
func (l *Ledger) Run(ctx context.Context) error {
	ticker := time.NewTicker(minerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.flush()
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Ledger) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.maybeMineLocked(); err != nil {
		l.logger.Error().Err(err).Msg("background mining tick failed")
	}
}

// flush mines and appends whatever is pending, regardless of the trigger
// condition, so no transaction is lost on shutdown. If a mine triggered by
// AddTransaction is already in flight (see mineAndAppendLocked's yield),
// flush defers to it rather than starting a second concurrent mine; any
// pending transactions are still safe on disk via persist and will be
// picked up on the next mine or the next process start.
func (l *Ledger) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mining || len(l.pending) == 0 {
		return nil
	}
	return l.mineAndAppendLocked()
}
