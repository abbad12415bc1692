// ABOUTME: Background poller that keeps the freshest per-stage tree snapshots for one run.
// ABOUTME: Concurrent fetches per poll with request smoothing; version supersede, 404 means no tree yet.

package treeviz

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// TreeFetcher fetches the current tree snapshot for one stage of a run.
type TreeFetcher interface {
	FetchStageTree(ctx context.Context, runID, stageID string) (*StageTree, error)
}

// DefaultPollInterval is how often the poller refreshes every stage.
const DefaultPollInterval = 5 * time.Second

const (
	fetchRate  = rate.Limit(10)
	fetchBurst = 4
)

// PollerConfig configures a Poller. Stages supplies the canonical stage
// order on every poll; the caller typically derives it from the run's
// timeline. OnUpdate fires with the held trees, in canonical order,
// whenever a poll changed the held set.
type PollerConfig struct {
	RunID    string
	Fetcher  TreeFetcher
	Stages   func() []string
	Interval time.Duration
	OnUpdate func([]StageTree)
	Logf     func(format string, args ...any)
}

// Poller periodically fetches the tree for every known stage. Held trees
// are immutable; a fetched tree replaces a held one only when its version
// is strictly higher.
type Poller struct {
	cfg     PollerConfig
	limiter *rate.Limiter

	mu    sync.Mutex
	held  map[string]StageTree
	order []string
}

// NewPoller returns a Poller for the given configuration.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Poller{
		cfg:     cfg,
		limiter: rate.NewLimiter(fetchRate, fetchBurst),
		held:    make(map[string]StageTree),
	}
}

// Run polls until ctx is cancelled and returns the context's error. Fetch
// failures are logged and skipped; only cancellation ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every known stage once and fires OnUpdate if anything
// changed.
func (p *Poller) PollOnce(ctx context.Context) {
	stages := p.cfg.Stages()
	if len(stages) == 0 {
		return
	}

	p.mu.Lock()
	p.order = append([]string(nil), stages...)
	p.mu.Unlock()

	changed := false
	g, gctx := errgroup.WithContext(ctx)
	for _, stageID := range stages {
		stageID := stageID
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			tree, err := p.cfg.Fetcher.FetchStageTree(gctx, p.cfg.RunID, stageID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if isNotFound(err) {
					// The stage has no tree yet.
					return nil
				}
				p.cfg.Logf("treeviz: fetch stage=%s run=%s err=%v", stageID, p.cfg.RunID, err)
				return nil
			}
			if tree == nil {
				return nil
			}
			p.mu.Lock()
			held, ok := p.held[tree.StageID]
			if !ok || tree.Version > held.Version {
				p.held[tree.StageID] = *tree
				changed = true
			}
			p.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if changed && p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(p.Current())
	}
}

// Current returns the held trees in canonical stage order.
func (p *Poller) Current() []StageTree {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StageTree, 0, len(p.held))
	for _, stageID := range p.order {
		if tree, ok := p.held[stageID]; ok {
			out = append(out, tree)
		}
	}
	return out
}

// notFounder matches errors that mean "nothing there yet" rather than
// failure, without tying this package to one error type.
type notFounder interface{ NotFound() bool }

func isNotFound(err error) bool {
	var nf notFounder
	return errors.As(err, &nf) && nf.NotFound()
}
