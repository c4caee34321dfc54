package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/command"
	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/domain"
	"github.com/blockstats-server/internal/snapshot"
	"github.com/blockstats-server/internal/websocket"
)

type fakeRunner struct {
	updated int
	err     error
}

func (f *fakeRunner) RunScan(ctx context.Context) (int, error) {
	return f.updated, f.err
}

type HandlerTestSuite struct {
	suite.Suite
	store  *snapshot.Store
	allow  *allowlist.Store
	runner *fakeRunner
	hub    *websocket.Hub
	server *httptest.Server
}

func (s *HandlerTestSuite) SetupTest() {
	dir := s.T().TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultConfig()
	cfg.ServerDir = dir

	s.store = snapshot.New(filepath.Join(dir, "data.json"), logger)
	s.allow = allowlist.New(filepath.Join(dir, "whitelist.json"), logger)
	s.runner = &fakeRunner{}

	dispatcher := command.NewDispatcher(cfg, s.store, s.allow, s.runner, logger)

	s.hub = websocket.NewHub(logger)
	go s.hub.Run()

	h := NewHandler(dispatcher, s.runner, s.store, s.hub, logger)
	s.server = httptest.NewServer(h.Router())
}

func (s *HandlerTestSuite) TearDownTest() {
	s.server.Close()
	s.hub.Stop()
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) get(path string) (*http.Response, APIResponse) {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var body APIResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func (s *HandlerTestSuite) post(path, body string) (*http.Response, APIResponse) {
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded APIResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *HandlerTestSuite) TestHealthAndReady() {
	resp, body := s.get("/health")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)

	resp, body = s.get("/ready")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)
}

func (s *HandlerTestSuite) TestGetTopUnknownMetric() {
	resp, body := s.get("/api/v1/leaderboards/bogus/top")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.False(body.Success)
}

func (s *HandlerTestSuite) TestGetTopBadLimit() {
	resp, _ := s.get("/api/v1/leaderboards/mining/top?limit=zero")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerTestSuite) TestGetSnapshot() {
	s.store.Replace(domain.Counts{"Alice": 42}, domain.Counts{"Alice": 7}, []string{"Alice"})

	resp, body := s.get("/api/v1/snapshot")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Require().True(body.Success)

	data, err := json.Marshal(body.Data)
	s.Require().NoError(err)

	var snap domain.Snapshot
	s.Require().NoError(json.Unmarshal(data, &snap))
	s.Equal(domain.Counts{"Alice": 42}, snap.Mining)
}

func (s *HandlerTestSuite) TestTriggerScan() {
	s.runner.updated = 5

	resp, body := s.post("/api/v1/scan", "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)
}

func (s *HandlerTestSuite) TestTriggerScanConflict() {
	s.runner.err = domain.ErrScanInProgress

	resp, body := s.post("/api/v1/scan", "")
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.False(body.Success)
}

func (s *HandlerTestSuite) TestRunCommand() {
	resp, body := s.post("/api/v1/command", `{"line": "!!pls help"}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Require().True(body.Success)

	data, err := json.Marshal(body.Data)
	s.Require().NoError(err)

	var result command.Result
	s.Require().NoError(json.Unmarshal(data, &result))
	s.NotEmpty(result.Replies)
}

func (s *HandlerTestSuite) TestRunCommandRejectsEmptyBody() {
	resp, _ := s.post("/api/v1/command", `{}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerTestSuite) TestWebSocketStats() {
	resp, body := s.get("/api/v1/ws/stats")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(body.Success)
}
