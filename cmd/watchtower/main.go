// ABOUTME: CLI entrypoint for the watchtower run monitor with watch, tail, record, replay, and report modes.
// ABOUTME: Wires together the API client, stream client, tree poller, Bubble Tea UI, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/2389-research/watchtower/api"
	"github.com/2389-research/watchtower/record"
	"github.com/2389-research/watchtower/replay"
	"github.com/2389-research/watchtower/report"
	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/stream"
	"github.com/2389-research/watchtower/treeviz"
	"github.com/2389-research/watchtower/tui"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

// config holds all CLI configuration parsed from flags and positional arguments.
type config struct {
	serverURL    string
	token        string
	configPath   string
	tailMode     bool
	recordPath   string
	replayPath   string
	demoMode     bool
	reportPath   string
	port         int
	speed        float64
	noGroup      bool
	pollInterval time.Duration
	verbose      bool
	showVersion  bool
	runID        string
}

func main() {
	loadDotEnvAuto()

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("watchtower %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("watchtower", flag.ContinueOnError)
	fs.StringVar(&cfg.serverURL, "server", "", "Backend base URL (default: $WATCHTOWER_SERVER, then config file)")
	fs.StringVar(&cfg.token, "token", "", "Bearer token (default: $WATCHTOWER_TOKEN, then config file)")
	fs.StringVar(&cfg.configPath, "config", "", "Config file path (default: ~/.config/watchtower/config.yaml)")
	fs.BoolVar(&cfg.tailMode, "tail", false, "Stream the run as plain scrolling output instead of the dashboard")
	fs.StringVar(&cfg.recordPath, "record", "", "Capture the run's event stream to a JSONL file")
	fs.StringVar(&cfg.replayPath, "replay", "", "Serve a recorded JSONL file as a local backend")
	fs.BoolVar(&cfg.demoMode, "demo", false, "Serve a synthesized demo run as a local backend")
	fs.StringVar(&cfg.reportPath, "report", "", "Write the run's report as a standalone HTML file")
	fs.IntVar(&cfg.port, "port", 7173, "Replay/demo server port (default: 7173)")
	fs.Float64Var(&cfg.speed, "speed", 1, "Replay clock multiplier; 0 releases everything immediately")
	fs.BoolVar(&cfg.noGroup, "no-group", false, "Disable timeline grouping")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", 0, "Stage tree poll interval (default: 5s)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(os.Stderr, version)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.runID = fs.Arg(0)
	}

	return cfg
}

// run dispatches to the appropriate mode based on the config.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg config) int {
	if cfg.replayPath != "" || cfg.demoMode {
		return runReplay(cfg)
	}

	set, err := resolveSettings(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if cfg.runID == "" {
		printHelp(os.Stderr, version)
		return 1
	}

	switch {
	case cfg.reportPath != "":
		return runReport(cfg, set)
	case cfg.recordPath != "":
		return runRecord(cfg, set)
	case cfg.tailMode:
		return runTail(cfg, set)
	default:
		return runWatch(cfg, set)
	}
}

// settings are the fully resolved connection parameters for one invocation:
// flags win over environment variables, which win over the config file.
type settings struct {
	serverURL    string
	token        string
	groupWindow  time.Duration
	pollInterval time.Duration
	policy       stream.ReconnectPolicy
}

func resolveSettings(cfg config) (settings, error) {
	fc, err := loadConfig(cfg.configPath)
	if err != nil {
		return settings{}, err
	}

	set := settings{
		serverURL:    fc.ServerURL,
		token:        fc.Token,
		groupWindow:  fc.GroupWindow,
		pollInterval: fc.PollInterval,
		policy: stream.ReconnectPolicy{
			BaseDelay:   fc.Backoff.Base,
			MaxDelay:    fc.Backoff.Max,
			MaxAttempts: fc.Backoff.Attempts,
		},
	}

	if v := os.Getenv("WATCHTOWER_SERVER"); v != "" {
		set.serverURL = v
	}
	if v := os.Getenv("WATCHTOWER_TOKEN"); v != "" {
		set.token = v
	}
	if cfg.serverURL != "" {
		set.serverURL = cfg.serverURL
	}
	if cfg.token != "" {
		set.token = cfg.token
	}
	if cfg.pollInterval > 0 {
		set.pollInterval = cfg.pollInterval
	}

	return set, nil
}

// newAPIClient builds the backend client from resolved settings.
func newAPIClient(set settings) *api.Client {
	opts := []api.Option{}
	if set.token != "" {
		opts = append(opts, api.WithToken(set.token))
	}
	return api.NewClient(set.serverURL, opts...)
}

// setupLogging keeps package log output away from the terminal renderer:
// verbose routes it to watchtower.log, quiet discards it.
func setupLogging(verbose bool) (func(), error) {
	if !verbose {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := tea.LogToFile("watchtower.log", "watchtower")
	if err != nil {
		return nil, err
	}
	return func() { f.Close() }, nil
}

// runStages derives the canonical stage order for the tree poller from the
// run's timeline as currently held in the store.
func runStages(store *runstate.Store) func() []string {
	return func() []string {
		view := store.Snapshot()
		if view.Run == nil {
			return nil
		}
		return runstate.StageOrder(view.Run.Timeline)
	}
}

// runWatch opens the full-screen dashboard for one run: live stream into the
// store, stage tree poller, and the Bubble Tea program wired together. A
// spent reconnect budget surfaces as the in-app error banner, not an exit.
func runWatch(cfg config, set settings) int {
	cleanup, err := setupLogging(cfg.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	store := runstate.NewStore()
	client := newAPIClient(set)

	// bridge is assigned before Connect, so the callback never sees nil.
	var bridge *tui.Bridge
	streamer := stream.New(stream.Config{
		API:         client,
		Store:       store,
		Policy:      set.policy,
		Logf:        log.Printf,
		OnAuthError: func(err error) { bridge.AuthRedirect(err) },
	})

	treeCh := make(chan []treeviz.StageTree, 1)
	poller := treeviz.NewPoller(treeviz.PollerConfig{
		RunID:    cfg.runID,
		Fetcher:  client,
		Stages:   runStages(store),
		Interval: set.pollInterval,
		OnUpdate: func(stages []treeviz.StageTree) { tui.PublishTrees(treeCh, stages) },
		Logf:     log.Printf,
	})

	model := tui.NewAppModel(tui.AppConfig{
		Store:       store,
		Trees:       treeCh,
		Reconnect:   streamer.Reconnect,
		Attempts:    streamer.Attempts,
		GroupWindow: set.groupWindow,
		NoGrouping:  cfg.noGroup,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	bridge = tui.NewBridge(p.Send)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = poller.Run(ctx) }()

	streamer.Connect(cfg.runID)
	defer streamer.Disconnect()

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return reportSessionEnd(final)
}

// runTail streams one run as plain scrolling output using the inline
// renderer, suitable for logs and non-interactive terminals.
func runTail(cfg config, set settings) int {
	cleanup, err := setupLogging(cfg.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	store := runstate.NewStore()
	client := newAPIClient(set)

	var bridge *tui.Bridge
	streamer := stream.New(stream.Config{
		API:         client,
		Store:       store,
		Policy:      set.policy,
		Logf:        log.Printf,
		OnAuthError: func(err error) { bridge.AuthRedirect(err) },
		// Tail has no reconnect key; a spent retry budget ends the session.
		OnTerminal: func(err error) { bridge.Fatal(err) },
	})

	model := tui.NewStreamModel(store, cfg.verbose)
	p := tea.NewProgram(model)
	bridge = tui.NewBridge(p.Send)

	streamer.Connect(cfg.runID)
	defer streamer.Disconnect()

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return reportSessionEnd(final)
}

// reportSessionEnd surfaces why an interactive session ended. Auth failures
// get a token hint; other fatal errors print as-is.
func reportSessionEnd(final tea.Model) int {
	var authErr, fatalErr error
	switch m := final.(type) {
	case tui.AppModel:
		authErr, fatalErr = m.AuthError(), m.FatalError()
	case tui.StreamModel:
		authErr, fatalErr = m.AuthError(), m.FatalError()
	}
	if authErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", authErr)
		fmt.Fprintln(os.Stderr, "Check the token: -token flag, WATCHTOWER_TOKEN, or the config file.")
		return 1
	}
	if fatalErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", fatalErr)
		return 1
	}
	return 0
}

// runRecord captures one run's event stream to a JSONL file and indexes the
// finished recording in the catalog.
func runRecord(cfg config, set settings) int {
	client := newAPIClient(set)
	rec := record.NewRecorder(record.RecorderConfig{API: client})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupt stops the capture; the recorder treats cancellation as a
	// clean stop and keeps whatever was written.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping capture...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "recording run %s from %s\n", cfg.runID, set.serverURL)
	info, err := rec.RecordToFile(ctx, cfg.runID, cfg.recordPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Printf("Recorded %d frames from run %s to %s\n", info.FrameCount, info.RunID, cfg.recordPath)

	if err := indexRecording(cfg.recordPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not index recording: %v\n", err)
	}
	return 0
}

// indexRecording upserts the finished recording into the catalog under the
// data directory, so listings do not have to re-read every JSONL file.
func indexRecording(path string) error {
	dataDir, err := defaultDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	idx, err := record.OpenIndex(filepath.Join(dataDir, "recordings.db"))
	if err != nil {
		return err
	}
	defer idx.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	_, err = idx.IndexFile(abs)
	return err
}

// runReport fetches a run's state and paper and writes them as one
// self-contained HTML file.
func runReport(cfg config, set settings) int {
	client := newAPIClient(set)
	ctx := context.Background()

	state, err := client.FetchRunState(ctx, cfg.runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	paper, err := client.FetchReport(ctx, cfg.runID)
	if err != nil {
		var nf *api.NotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		// No paper yet; the page still carries the timeline.
		fmt.Fprintln(os.Stderr, "report not ready; writing timeline only")
	}

	f, err := os.Create(cfg.reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	writeErr := report.WriteHTML(f, report.Data{
		Run:         state,
		Items:       displayItems(state, cfg.noGroup, set.groupWindow),
		Paper:       paper,
		GeneratedAt: time.Now().UTC(),
	})
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", writeErr)
		return 1
	}

	fmt.Printf("Report for run %s written to %s\n", state.RunID, cfg.reportPath)
	return 0
}

// displayItems groups the timeline the same way the live view does, or maps
// events one-to-one when grouping is off.
func displayItems(state *runstate.RunState, noGroup bool, window time.Duration) []runstate.DisplayItem {
	if noGroup {
		items := make([]runstate.DisplayItem, 0, len(state.Timeline))
		for _, e := range state.Timeline {
			items = append(items, runstate.DisplayItem{Events: []runstate.TimelineEvent{e}})
		}
		return items
	}
	return runstate.GroupTimeline(state.Timeline, runstate.GroupingConfig{Window: window})
}

// runReplay serves a recording, or a synthesized demo run, as a local
// backend speaking the real wire protocol.
func runReplay(cfg config) int {
	if cfg.replayPath != "" && cfg.demoMode {
		fmt.Fprintln(os.Stderr, "error: -replay and -demo are mutually exclusive")
		return 1
	}

	var (
		script *replay.Script
		err    error
	)
	if cfg.demoMode {
		script = replay.Synthesize(replay.SynthConfig{})
	} else {
		script, err = replay.LoadScriptFile(cfg.replayPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	player := replay.NewPlayer(script, replay.PlayerConfig{Speed: cfg.speed})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.port)
	srv, err := replay.NewServer(replay.ServerConfig{
		Player: player,
		Addr:   addr,
		// Token comes from the flag only; requiring auth on a local
		// fixture is an explicit choice, never an env side effect.
		Token: cfg.token,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Set up context with signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	go func() {
		if err := player.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("replay: playback stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	fmt.Fprintf(os.Stderr, "listening on %s (run %s)\n", addr, player.RunID())
	fmt.Fprintf(os.Stderr, "watch it: watchtower -server http://%s %s\n", addr, player.RunID())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
