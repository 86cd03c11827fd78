package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestValueLogGCWorker_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR).WithValueLogFileSize(16 << 20))
	req.NoError(err)
	defer db.Close()

	worker := NewValueLogGCWorker(db, slog.Default(), 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// GC on an empty store has nothing to rewrite and must not fail the worker
	req.NoError(worker.Run(ctx))
}

func TestValueLogGCWorker_Under_Supervisor(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR).WithValueLogFileSize(16 << 20))
	req.NoError(err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		NewSupervisor(slog.Default(), 0).Add(NewValueLogGCWorker(db, slog.Default(), 10*time.Millisecond)).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should stop with its context")
	}
}
