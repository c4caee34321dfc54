package snapshot

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/blockstats-server/internal/domain"
)

type StoreTestSuite struct {
	suite.Suite
	path   string
	logger *slog.Logger
}

func (s *StoreTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "config", "blockstats_data.json")
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestLoadMissingFileInitializesAndPersists() {
	store := New(s.path, s.logger)
	s.Require().NoError(store.Load())

	// The storage file exists after first startup.
	_, err := os.Stat(s.path)
	s.Require().NoError(err)

	snap := store.Snapshot()
	s.Empty(snap.Mining)
	s.Empty(snap.Placement)
}

func (s *StoreTestSuite) TestPersistLoadRoundTrip() {
	store := New(s.path, s.logger)
	store.Replace(
		domain.Counts{"Alice": 42, "Bob": 7},
		domain.Counts{"Alice": 3, "Bob": 0},
		[]string{"Alice", "Bob"},
	)
	s.Require().NoError(store.Persist())

	restored := New(s.path, s.logger)
	s.Require().NoError(restored.Load())

	s.Equal(store.Snapshot(), restored.Snapshot())
}

func (s *StoreTestSuite) TestReplaceIsFullSwap() {
	store := New(s.path, s.logger)
	store.Replace(
		domain.Counts{"Alice": 42, "Stale": 10},
		domain.Counts{"Alice": 3, "Stale": 1},
		[]string{"Alice", "Stale"},
	)

	store.Replace(
		domain.Counts{"Alice": 50},
		domain.Counts{"Alice": 4},
		[]string{"Alice"},
	)

	snap := store.Snapshot()
	s.Equal(domain.Counts{"Alice": 50}, snap.Mining)
	s.Equal(domain.Counts{"Alice": 4}, snap.Placement)

	// Players without a record anymore are dropped, not kept at zero.
	_, ok := store.Get(domain.MetricMining, "Stale")
	s.False(ok)
}

func (s *StoreTestSuite) TestEntriesKeepInsertionOrder() {
	store := New(s.path, s.logger)
	store.Replace(
		domain.Counts{"Zed": 5, "Alice": 5, "Mid": 9},
		domain.Counts{"Zed": 1, "Alice": 2, "Mid": 3},
		[]string{"Zed", "Alice", "Mid"},
	)

	entries := store.Entries(domain.MetricMining)
	s.Equal([]domain.NameCount{
		{Name: "Zed", Count: 5},
		{Name: "Alice", Count: 5},
		{Name: "Mid", Count: 9},
	}, entries)
}

func (s *StoreTestSuite) TestEntriesAfterLoadAreNameOrdered() {
	store := New(s.path, s.logger)
	store.Replace(
		domain.Counts{"Zed": 5, "Alice": 7},
		domain.Counts{"Zed": 1, "Alice": 2},
		[]string{"Zed", "Alice"},
	)
	s.Require().NoError(store.Persist())

	restored := New(s.path, s.logger)
	s.Require().NoError(restored.Load())

	entries := restored.Entries(domain.MetricMining)
	s.Equal("Alice", entries[0].Name)
	s.Equal("Zed", entries[1].Name)
}

func (s *StoreTestSuite) TestSnapshotIsACopy() {
	store := New(s.path, s.logger)
	store.Replace(domain.Counts{"Alice": 1}, domain.Counts{"Alice": 2}, []string{"Alice"})

	snap := store.Snapshot()
	snap.Mining["Alice"] = 99

	count, ok := store.Get(domain.MetricMining, "Alice")
	s.True(ok)
	s.Equal(uint64(1), count)
}
