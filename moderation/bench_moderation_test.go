package moderation

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Blacklist_Roundtrip_Feeds_Moderator(t *testing.T) {
	req := require.New(t)
	db := openBadger(t)

	req.NoError(SaveBlacklist(db, []string{" Scam ", "", "bookie"}))
	words, err := LoadBlacklist(db)
	req.NoError(err)
	req.ElementsMatch([]string{"scam", "bookie"}, words)

	mod, err := NewModerator(words, replacementChar, slog.Default())
	req.NoError(err)
	content, _ := mod.Censor("no bookie here")
	req.Equal("no ****** here", content)
}

func Test_Moderation_Benchmark(t *testing.T) {
	if testing.Short() {
		t.Skip("seeding a large blacklist")
	}
	req := require.New(t)
	db := openBadger(t)

	wordCount := 100_000

	startSeed := time.Now()
	seed := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		seed = append(seed, fmt.Sprintf("word_%d", i))
	}
	req.NoError(SaveBlacklist(db, seed))
	t.Logf("Seeding %d words: %v", wordCount, time.Since(startSeed))

	startLoad := time.Now()
	words, err := LoadBlacklist(db)
	req.NoError(err)
	req.Len(words, wordCount)
	t.Logf("Loading from Badger: %v", time.Since(startLoad))

	startBuild := time.Now()
	_, err = NewModerator(words, '*', slog.Default())
	req.NoError(err)
	t.Logf("Building automaton: %v, total startup: %v", time.Since(startBuild), time.Since(startLoad))
}
