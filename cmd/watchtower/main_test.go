// ABOUTME: Tests for the watchtower CLI entrypoint covering flag parsing, settings precedence,
// ABOUTME: mode dispatch, and record/report integration against a replay-backed test server.
package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/watchtower/record"
	"github.com/2389-research/watchtower/replay"
	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/stream"
	"github.com/2389-research/watchtower/treeviz"
	"github.com/2389-research/watchtower/tui"
)

// clearConnEnv makes the test blind to the developer's real environment: both
// connection variables get unset (t.Setenv registers the restore).
func clearConnEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WATCHTOWER_SERVER", "")
	os.Unsetenv("WATCHTOWER_SERVER")
	t.Setenv("WATCHTOWER_TOKEN", "")
	os.Unsetenv("WATCHTOWER_TOKEN")
}

// finishedPlayer synthesizes a run and plays it to completion so a test server
// can serve its full history immediately.
func finishedPlayer(t *testing.T, seed int64) *replay.Player {
	t.Helper()
	script := replay.Synthesize(replay.SynthConfig{Seed: seed})
	player := replay.NewPlayer(script, replay.PlayerConfig{Speed: 0})
	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("playback failed: %v", err)
	}
	return player
}

func testServer(t *testing.T, player *replay.Player) *httptest.Server {
	t.Helper()
	srv, err := replay.NewServer(replay.ServerConfig{Player: player})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

// --- parseFlags tests ---

func TestParseFlagsDefaults(t *testing.T) {
	// Save and restore os.Args
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "run-abc"}
	cfg := parseFlags()

	if cfg.serverURL != "" {
		t.Errorf("expected empty serverURL by default, got %q", cfg.serverURL)
	}
	if cfg.token != "" {
		t.Errorf("expected empty token by default, got %q", cfg.token)
	}
	if cfg.configPath != "" {
		t.Errorf("expected empty configPath by default, got %q", cfg.configPath)
	}
	if cfg.tailMode {
		t.Error("expected tailMode=false by default")
	}
	if cfg.recordPath != "" {
		t.Errorf("expected empty recordPath by default, got %q", cfg.recordPath)
	}
	if cfg.replayPath != "" {
		t.Errorf("expected empty replayPath by default, got %q", cfg.replayPath)
	}
	if cfg.demoMode {
		t.Error("expected demoMode=false by default")
	}
	if cfg.reportPath != "" {
		t.Errorf("expected empty reportPath by default, got %q", cfg.reportPath)
	}
	if cfg.port != 7173 {
		t.Errorf("expected default port=7173, got %d", cfg.port)
	}
	if cfg.speed != 1 {
		t.Errorf("expected default speed=1, got %g", cfg.speed)
	}
	if cfg.noGroup {
		t.Error("expected noGroup=false by default")
	}
	if cfg.pollInterval != 0 {
		t.Errorf("expected pollInterval=0 by default, got %v", cfg.pollInterval)
	}
	if cfg.verbose {
		t.Error("expected verbose=false by default")
	}
	if cfg.showVersion {
		t.Error("expected showVersion=false by default")
	}
	if cfg.runID != "run-abc" {
		t.Errorf("expected runID=run-abc, got %q", cfg.runID)
	}
}

func TestParseFlagsServerAndToken(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-server", "https://runs.example.com", "-token", "sekrit", "run-1"}
	cfg := parseFlags()

	if cfg.serverURL != "https://runs.example.com" {
		t.Errorf("expected serverURL='https://runs.example.com', got %q", cfg.serverURL)
	}
	if cfg.token != "sekrit" {
		t.Errorf("expected token=sekrit, got %q", cfg.token)
	}
	if cfg.runID != "run-1" {
		t.Errorf("expected runID=run-1, got %q", cfg.runID)
	}
}

func TestParseFlagsTail(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-tail", "run-1"}
	cfg := parseFlags()

	if !cfg.tailMode {
		t.Error("expected tailMode=true with -tail flag")
	}
	if cfg.runID != "run-1" {
		t.Errorf("expected runID=run-1, got %q", cfg.runID)
	}
}

func TestParseFlagsRecord(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-record", "capture.jsonl", "run-1"}
	cfg := parseFlags()

	if cfg.recordPath != "capture.jsonl" {
		t.Errorf("expected recordPath=capture.jsonl, got %q", cfg.recordPath)
	}
	if cfg.runID != "run-1" {
		t.Errorf("expected runID=run-1, got %q", cfg.runID)
	}
}

func TestParseFlagsReplay(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-replay", "capture.jsonl", "-port", "9999", "-speed", "2.5"}
	cfg := parseFlags()

	if cfg.replayPath != "capture.jsonl" {
		t.Errorf("expected replayPath=capture.jsonl, got %q", cfg.replayPath)
	}
	if cfg.port != 9999 {
		t.Errorf("expected port=9999, got %d", cfg.port)
	}
	if cfg.speed != 2.5 {
		t.Errorf("expected speed=2.5, got %g", cfg.speed)
	}
}

func TestParseFlagsDemo(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-demo"}
	cfg := parseFlags()

	if !cfg.demoMode {
		t.Error("expected demoMode=true with -demo flag")
	}
	if cfg.runID != "" {
		t.Errorf("expected empty runID, got %q", cfg.runID)
	}
}

func TestParseFlagsReport(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-report", "out.html", "run-1"}
	cfg := parseFlags()

	if cfg.reportPath != "out.html" {
		t.Errorf("expected reportPath=out.html, got %q", cfg.reportPath)
	}
	if cfg.runID != "run-1" {
		t.Errorf("expected runID=run-1, got %q", cfg.runID)
	}
}

func TestParseFlagsViewOptions(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower", "-no-group", "-poll-interval", "2s", "-verbose", "run-1"}
	cfg := parseFlags()

	if !cfg.noGroup {
		t.Error("expected noGroup=true with -no-group flag")
	}
	if cfg.pollInterval != 2*time.Second {
		t.Errorf("expected pollInterval=2s, got %v", cfg.pollInterval)
	}
	if !cfg.verbose {
		t.Error("expected verbose=true with -verbose flag")
	}
}

func TestParseFlagsNoRunID(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"watchtower"}
	cfg := parseFlags()

	if cfg.runID != "" {
		t.Errorf("expected empty runID with no positional arg, got %q", cfg.runID)
	}
}

// --- resolveSettings precedence tests ---

func TestResolveSettingsDefaults(t *testing.T) {
	clearConnEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	set, err := resolveSettings(config{})
	if err != nil {
		t.Fatalf("resolveSettings failed: %v", err)
	}
	if set.serverURL != defaultServerURL {
		t.Errorf("expected serverURL=%q, got %q", defaultServerURL, set.serverURL)
	}
	if set.token != "" {
		t.Errorf("expected empty token, got %q", set.token)
	}
	if set.groupWindow != runstate.DefaultGroupWindow {
		t.Errorf("expected groupWindow=%v, got %v", runstate.DefaultGroupWindow, set.groupWindow)
	}
	if set.pollInterval != treeviz.DefaultPollInterval {
		t.Errorf("expected pollInterval=%v, got %v", treeviz.DefaultPollInterval, set.pollInterval)
	}
	if set.policy != stream.DefaultReconnectPolicy() {
		t.Errorf("expected default reconnect policy, got %+v", set.policy)
	}
}

func TestResolveSettingsEnvOverridesConfigFile(t *testing.T) {
	clearConnEnv(t)
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "watchtower")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "server_url: https://file.example.com\ntoken: file-token\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WATCHTOWER_SERVER", "https://env.example.com")

	set, err := resolveSettings(config{})
	if err != nil {
		t.Fatalf("resolveSettings failed: %v", err)
	}
	if set.serverURL != "https://env.example.com" {
		t.Errorf("expected env server to win over config file, got %q", set.serverURL)
	}
	// Token has no env override here, so the file value survives.
	if set.token != "file-token" {
		t.Errorf("expected token=file-token from config file, got %q", set.token)
	}
}

func TestResolveSettingsFlagsWinOverEnv(t *testing.T) {
	clearConnEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WATCHTOWER_SERVER", "https://env.example.com")
	t.Setenv("WATCHTOWER_TOKEN", "env-token")

	set, err := resolveSettings(config{
		serverURL: "https://flag.example.com",
		token:     "flag-token",
	})
	if err != nil {
		t.Fatalf("resolveSettings failed: %v", err)
	}
	if set.serverURL != "https://flag.example.com" {
		t.Errorf("expected flag server to win over env, got %q", set.serverURL)
	}
	if set.token != "flag-token" {
		t.Errorf("expected flag token to win over env, got %q", set.token)
	}
}

func TestResolveSettingsPollIntervalFlag(t *testing.T) {
	clearConnEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	set, err := resolveSettings(config{pollInterval: 2 * time.Second})
	if err != nil {
		t.Fatalf("resolveSettings failed: %v", err)
	}
	if set.pollInterval != 2*time.Second {
		t.Errorf("expected pollInterval=2s from flag, got %v", set.pollInterval)
	}
}

func TestResolveSettingsMapsBackoffToPolicy(t *testing.T) {
	clearConnEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "backoff:\n  base: 2s\n  max: 45s\n  attempts: 7\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := resolveSettings(config{configPath: path})
	if err != nil {
		t.Fatalf("resolveSettings failed: %v", err)
	}
	want := stream.ReconnectPolicy{BaseDelay: 2 * time.Second, MaxDelay: 45 * time.Second, MaxAttempts: 7}
	if set.policy != want {
		t.Errorf("expected policy %+v, got %+v", want, set.policy)
	}
}

func TestResolveSettingsMissingExplicitConfig(t *testing.T) {
	clearConnEnv(t)

	_, err := resolveSettings(config{configPath: "/tmp/no-such-watchtower-config.yaml"})
	if err == nil {
		t.Fatal("expected error for nonexistent explicit config path")
	}
}

// --- newAPIClient tests ---

func TestNewAPIClientCarriesSettings(t *testing.T) {
	client := newAPIClient(settings{serverURL: "https://runs.example.com", token: "sekrit"})
	if client.BaseURL != "https://runs.example.com" {
		t.Errorf("expected BaseURL='https://runs.example.com', got %q", client.BaseURL)
	}
	if client.Token != "sekrit" {
		t.Errorf("expected Token=sekrit, got %q", client.Token)
	}
}

func TestNewAPIClientWithoutToken(t *testing.T) {
	client := newAPIClient(settings{serverURL: "https://runs.example.com"})
	if client.Token != "" {
		t.Errorf("expected empty Token, got %q", client.Token)
	}
}

// --- runStages tests ---

func TestRunStagesEmptyStore(t *testing.T) {
	store := runstate.NewStore()
	if got := runStages(store)(); got != nil {
		t.Errorf("expected nil stages before the first snapshot, got %v", got)
	}
}

func TestRunStagesFollowsTimeline(t *testing.T) {
	store := runstate.NewStore()
	store.SetSnapshot(runstate.RunState{
		RunID:  "run-1",
		Status: runstate.StatusRunning,
		Timeline: []runstate.TimelineEvent{
			runstate.StageStarted{EventMeta: runstate.EventMeta{ID: "e1", Stage: "stage_1"}},
			runstate.ProgressUpdate{EventMeta: runstate.EventMeta{ID: "e2", Stage: "stage_1"}, Iteration: 1},
			runstate.StageStarted{EventMeta: runstate.EventMeta{ID: "e3", Stage: "stage_2"}},
		},
	})

	got := runStages(store)()
	if len(got) != 2 || got[0] != "stage_1" || got[1] != "stage_2" {
		t.Errorf("expected [stage_1 stage_2], got %v", got)
	}
}

// --- displayItems tests ---

func progressAt(id, stage string, ts time.Time, i int) runstate.TimelineEvent {
	return runstate.ProgressUpdate{
		EventMeta: runstate.EventMeta{ID: id, Stage: stage, Timestamp: ts},
		Iteration: i,
	}
}

func TestDisplayItemsGrouped(t *testing.T) {
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	state := &runstate.RunState{
		RunID: "run-1",
		Timeline: []runstate.TimelineEvent{
			progressAt("e1", "stage_1", base, 1),
			progressAt("e2", "stage_1", base.Add(time.Second), 2),
			progressAt("e3", "stage_1", base.Add(2*time.Second), 3),
		},
	}

	items := displayItems(state, false, runstate.DefaultGroupWindow)
	if len(items) != 1 {
		t.Fatalf("expected 1 grouped item, got %d", len(items))
	}
	if items[0].Count() != 3 {
		t.Errorf("expected 3 events in the group, got %d", items[0].Count())
	}
}

func TestDisplayItemsNoGroup(t *testing.T) {
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	state := &runstate.RunState{
		RunID: "run-1",
		Timeline: []runstate.TimelineEvent{
			progressAt("e1", "stage_1", base, 1),
			progressAt("e2", "stage_1", base.Add(time.Second), 2),
		},
	}

	items := displayItems(state, true, runstate.DefaultGroupWindow)
	if len(items) != 2 {
		t.Fatalf("expected one item per event with grouping off, got %d", len(items))
	}
	for i, it := range items {
		if it.Count() != 1 {
			t.Errorf("item %d: expected 1 event, got %d", i, it.Count())
		}
	}
}

// --- run dispatch tests ---

func TestRunNoArgsShowsHelp(t *testing.T) {
	clearConnEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	exitCode := run(config{})
	if exitCode != 1 {
		t.Errorf("expected exit code 1 for missing run id (usage error), got %d", exitCode)
	}
}

func TestRunReplayDemoConflict(t *testing.T) {
	exitCode := run(config{replayPath: "capture.jsonl", demoMode: true})
	if exitCode != 1 {
		t.Errorf("expected exit code 1 for -replay with -demo, got %d", exitCode)
	}
}

func TestRunReplayMissingFile(t *testing.T) {
	exitCode := runReplay(config{replayPath: "/tmp/no-such-recording.jsonl", port: 0})
	if exitCode != 1 {
		t.Errorf("expected exit code 1 for nonexistent recording, got %d", exitCode)
	}
}

// --- record integration tests ---

func TestRunRecordCapturesRun(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	script := replay.Synthesize(replay.SynthConfig{Seed: 42})
	player := replay.NewPlayer(script, replay.PlayerConfig{Speed: 0})
	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("playback failed: %v", err)
	}
	ts := testServer(t, player)

	outPath := filepath.Join(t.TempDir(), "capture.jsonl")
	cfg := config{recordPath: outPath, runID: player.RunID()}
	set := settings{serverURL: ts.URL}

	if exitCode := runRecord(cfg, set); exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}

	replayed, err := replay.LoadScriptFile(outPath)
	if err != nil {
		t.Fatalf("capture does not load as a script: %v", err)
	}
	if replayed.Run.RunID != player.RunID() {
		t.Errorf("expected captured run id %q, got %q", player.RunID(), replayed.Run.RunID)
	}
	// Bootstrap snapshot plus the full replayed history.
	if want := len(script.Frames) + 1; len(replayed.Frames) != want {
		t.Errorf("expected %d captured frames, got %d", want, len(replayed.Frames))
	}
}

func TestRunRecordIndexesCapture(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	player := finishedPlayer(t, 7)
	ts := testServer(t, player)

	outPath := filepath.Join(t.TempDir(), "capture.jsonl")
	if exitCode := runRecord(config{recordPath: outPath, runID: player.RunID()}, settings{serverURL: ts.URL}); exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}

	idx, err := record.OpenIndex(filepath.Join(dataHome, "watchtower", "recordings.db"))
	if err != nil {
		t.Fatalf("expected recording catalog to exist: %v", err)
	}
	defer idx.Close()

	recs, err := idx.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 indexed recording, got %d", len(recs))
	}
	if recs[0].RunID != player.RunID() {
		t.Errorf("expected indexed run id %q, got %q", player.RunID(), recs[0].RunID)
	}
	if recs[0].Status != record.StatusComplete {
		t.Errorf("expected status %q, got %q", record.StatusComplete, recs[0].Status)
	}
}

func TestRunRecordUnreachableServer(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	outPath := filepath.Join(t.TempDir(), "capture.jsonl")
	if exitCode := runRecord(config{recordPath: outPath, runID: "run-1"}, settings{serverURL: ts.URL}); exitCode != 1 {
		t.Errorf("expected exit code 1 when bootstrap fails, got %d", exitCode)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("expected empty capture file to be removed after failure")
	}
}

// --- report integration tests ---

func TestRunReportWritesHTML(t *testing.T) {
	player := finishedPlayer(t, 42)
	ts := testServer(t, player)

	outPath := filepath.Join(t.TempDir(), "report.html")
	cfg := config{reportPath: outPath, runID: player.RunID()}
	set := settings{serverURL: ts.URL, groupWindow: runstate.DefaultGroupWindow}

	if exitCode := runReport(cfg, set); exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, player.RunID()) {
		t.Error("expected report to contain the run id")
	}
	if !strings.Contains(html, "Findings") {
		t.Error("expected report to contain the rendered paper")
	}
}

func TestRunReportToleratesMissingPaper(t *testing.T) {
	// A script with no report makes the server 404 the report endpoint; the
	// page still gets written with the timeline alone.
	script := &replay.Script{Run: replay.RunInfo{RunID: "run-nopaper", StartedAt: time.Now().UTC()}}
	player := replay.NewPlayer(script, replay.PlayerConfig{Speed: 0})
	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("playback failed: %v", err)
	}
	ts := testServer(t, player)

	outPath := filepath.Join(t.TempDir(), "report.html")
	cfg := config{reportPath: outPath, runID: "run-nopaper"}
	set := settings{serverURL: ts.URL, groupWindow: runstate.DefaultGroupWindow}

	if exitCode := runReport(cfg, set); exitCode != 0 {
		t.Fatalf("expected exit code 0 without a paper, got %d", exitCode)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	if !strings.Contains(string(data), "run-nopaper") {
		t.Error("expected report to contain the run id")
	}
}

func TestRunReportServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	outPath := filepath.Join(t.TempDir(), "report.html")
	if exitCode := runReport(config{reportPath: outPath, runID: "run-1"}, settings{serverURL: ts.URL}); exitCode != 1 {
		t.Errorf("expected exit code 1 when the state fetch fails, got %d", exitCode)
	}
}

// --- session end reporting ---

func TestReportSessionEndCleanModel(t *testing.T) {
	model := tui.NewAppModel(tui.AppConfig{Store: runstate.NewStore()})
	if exitCode := reportSessionEnd(model); exitCode != 0 {
		t.Errorf("expected exit code 0 for a clean session, got %d", exitCode)
	}
}
