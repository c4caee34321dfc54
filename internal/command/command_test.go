package command

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/domain"
	"github.com/blockstats-server/internal/snapshot"
)

type fakeRunner struct {
	updated int
	err     error
	calls   int
}

func (f *fakeRunner) RunScan(ctx context.Context) (int, error) {
	f.calls++
	return f.updated, f.err
}

type DispatcherTestSuite struct {
	suite.Suite
	cfg        *config.Config
	store      *snapshot.Store
	allow      *allowlist.Store
	runner     *fakeRunner
	dispatcher *Dispatcher
	ctx        context.Context
}

func (s *DispatcherTestSuite) SetupTest() {
	dir := s.T().TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.cfg = config.DefaultConfig()
	s.cfg.ServerDir = dir
	s.store = snapshot.New(filepath.Join(dir, "data.json"), logger)
	s.allow = allowlist.New(filepath.Join(dir, "whitelist.json"), logger)
	s.runner = &fakeRunner{}
	s.dispatcher = NewDispatcher(s.cfg, s.store, s.allow, s.runner, logger)
	s.ctx = context.Background()
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) setAllowList(content string) {
	path := filepath.Join(s.cfg.ServerDir, "whitelist.json")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	s.allow.Reload()
}

func (s *DispatcherTestSuite) TestHelp() {
	for _, line := range []string{"!!pls", "!!pls help"} {
		result := s.dispatcher.Dispatch(s.ctx, line)
		s.Empty(result.Broadcasts)
		s.Require().NotEmpty(result.Replies)
		s.Contains(result.Replies[1], "!!pls mine")
	}
}

func (s *DispatcherTestSuite) TestUnknownCommand() {
	result := s.dispatcher.Dispatch(s.ctx, "!!pls bogus")
	s.Require().Len(result.Replies, 1)
	s.Contains(result.Replies[0], "bogus")
	s.Contains(result.Replies[0], "!!pls help")
}

func (s *DispatcherTestSuite) TestHandles() {
	s.True(s.dispatcher.Handles("!!pls mine"))
	s.True(s.dispatcher.Handles("  !!pls"))
	s.False(s.dispatcher.Handles("hello everyone"))
}

func (s *DispatcherTestSuite) TestMineWithNoData() {
	result := s.dispatcher.Dispatch(s.ctx, "!!pls mine")
	s.Equal([]string{"No mining data yet"}, result.Broadcasts)
}

func (s *DispatcherTestSuite) TestMineLeaderboard() {
	// The snapshot holds the name as it was resolved at scan time; the
	// display re-cases it to the allow-list's canonical form.
	s.setAllowList(`[{"name": "Bob"}]`)
	s.store.Replace(domain.Counts{"bob": 42}, domain.Counts{"bob": 7}, []string{"bob"})

	result := s.dispatcher.Dispatch(s.ctx, "!!pls mine")
	s.Require().Len(result.Broadcasts, 2)
	s.Contains(result.Broadcasts[0], "top 1")
	s.Equal("🥇 Bob - 42 blocks", result.Broadcasts[1])

	top := s.dispatcher.Top(domain.MetricMining, 10)
	s.Equal([]domain.LeaderboardEntry{{Rank: 1, Name: "Bob", Count: 42}}, top)
}

func (s *DispatcherTestSuite) TestPlaceLeaderboard() {
	s.setAllowList(`[{"name": "Bob"}]`)
	s.store.Replace(domain.Counts{"Bob": 42}, domain.Counts{"Bob": 7}, []string{"Bob"})

	result := s.dispatcher.Dispatch(s.ctx, "!!pls place")
	s.Require().Len(result.Broadcasts, 2)
	s.Equal("🥇 Bob - 7 blocks", result.Broadcasts[1])
}

func (s *DispatcherTestSuite) TestTopFiltersToAllowList() {
	s.setAllowList(`[{"name": "Alice"}]`)
	s.store.Replace(
		domain.Counts{"Alice": 10, "Intruder": 999},
		domain.Counts{"Alice": 1, "Intruder": 999},
		[]string{"Alice", "Intruder"},
	)

	top := s.dispatcher.Top(domain.MetricMining, 10)
	s.Equal([]domain.LeaderboardEntry{{Rank: 1, Name: "Alice", Count: 10}}, top)

	// Filtering is display-only; the snapshot keeps the intruder.
	_, ok := s.store.Get(domain.MetricMining, "Intruder")
	s.True(ok)
}

func (s *DispatcherTestSuite) TestTopExactMatchBeatsCaseVariant() {
	s.setAllowList(`[{"name": "Alice"}]`)
	s.store.Replace(
		domain.Counts{"alice": 99, "Alice": 10},
		domain.Counts{"alice": 9, "Alice": 1},
		[]string{"alice", "Alice"},
	)

	top := s.dispatcher.Top(domain.MetricMining, 10)
	s.Equal([]domain.LeaderboardEntry{{Rank: 1, Name: "Alice", Count: 10}}, top)
}

func (s *DispatcherTestSuite) TestTopTiesKeepInsertionOrder() {
	s.setAllowList(`[{"name": "Zed"}, {"name": "Alice"}, {"name": "Mid"}]`)
	s.store.Replace(
		domain.Counts{"Zed": 5, "Alice": 5, "Mid": 9},
		domain.Counts{},
		[]string{"Zed", "Alice", "Mid"},
	)

	top := s.dispatcher.Top(domain.MetricMining, 10)
	s.Equal([]domain.LeaderboardEntry{
		{Rank: 1, Name: "Mid", Count: 9},
		{Rank: 2, Name: "Zed", Count: 5},
		{Rank: 3, Name: "Alice", Count: 5},
	}, top)
}

func (s *DispatcherTestSuite) TestTopHonorsLimit() {
	s.setAllowList(`[{"name": "A"}, {"name": "B"}, {"name": "C"}]`)
	s.store.Replace(
		domain.Counts{"A": 3, "B": 2, "C": 1},
		domain.Counts{},
		[]string{"A", "B", "C"},
	)

	top := s.dispatcher.Top(domain.MetricMining, 2)
	s.Require().Len(top, 2)
	s.Equal("A", top[0].Name)
	s.Equal("B", top[1].Name)
}

func (s *DispatcherTestSuite) TestUpdate() {
	s.runner.updated = 3

	result := s.dispatcher.Dispatch(s.ctx, "!!pls update")
	s.Equal(1, s.runner.calls)
	s.Require().Len(result.Broadcasts, 1)
	s.Contains(result.Broadcasts[0], "3 player(s)")
}

func (s *DispatcherTestSuite) TestUpdateWhileScanRunning() {
	s.runner.err = domain.ErrScanInProgress

	result := s.dispatcher.Dispatch(s.ctx, "!!pls update")
	s.Empty(result.Broadcasts)
	s.Require().Len(result.Replies, 1)
	s.Contains(result.Replies[0], "already running")
}

func (s *DispatcherTestSuite) TestDebugDisabled() {
	s.cfg.Debug = false

	result := s.dispatcher.Dispatch(s.ctx, "!!pls debug")
	s.Require().Len(result.Replies, 1)
	s.Contains(result.Replies[0], "disabled")
}

func (s *DispatcherTestSuite) TestDebugEnabled() {
	s.cfg.Debug = true
	s.Require().NoError(os.MkdirAll(filepath.Join(s.cfg.ServerDir, "world", "stats"), 0o755))

	result := s.dispatcher.Dispatch(s.ctx, "!!pls debug")
	s.Require().NotEmpty(result.Replies)

	joined := ""
	for _, line := range result.Replies {
		joined += line + "\n"
	}
	s.Contains(joined, "Config:")
	s.Contains(joined, "Stats directory found:")
	s.Contains(joined, "Stats directory missing:")
}

func (s *DispatcherTestSuite) TestDebugRedactsSecrets() {
	s.cfg.Debug = true
	s.cfg.Redis.Password = "hunter2"

	result := s.dispatcher.Dispatch(s.ctx, "!!pls debug")
	joined := strings.Join(result.Replies, "\n")
	s.NotContains(joined, "hunter2")
	s.Contains(joined, "<redacted>")

	// The dump works on a copy; the live config keeps its secret.
	s.Equal("hunter2", s.cfg.Redis.Password)
}
