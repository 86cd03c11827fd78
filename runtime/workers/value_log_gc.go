package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	DefaultGCInterval = 10 * time.Minute
	gcDiscardRatio    = 0.5
)

// ValueLogGCWorker reclaims value log space left behind by retention.
// The chat log rewrites and deletes constantly, so Badger would otherwise grow
// without bound.
type ValueLogGCWorker struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewValueLogGCWorker(db *badger.DB, log *slog.Logger, interval time.Duration) *ValueLogGCWorker {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &ValueLogGCWorker{db: db, log: log, interval: interval}
}

func (w *ValueLogGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.collect(); err != nil {
				return err
			}
		}
	}
}

// collect runs GC until Badger has nothing left to rewrite.
func (w *ValueLogGCWorker) collect() error {
	rewrites := 0
	for {
		err := w.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			return err
		}
		rewrites++
	}
	if rewrites > 0 {
		w.log.Debug("Value log garbage collected", "rewrites", rewrites)
	}
	return nil
}
