// ABOUTME: Tests for the stage tree poller: version supersede, canonical order,
// ABOUTME: missing-tree skips, fetch error tolerance, and cancellation.

package treeviz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubNotFound struct{ stageID string }

func (e *stubNotFound) Error() string  { return fmt.Sprintf("no tree for %s", e.stageID) }
func (e *stubNotFound) NotFound() bool { return true }

type stubFetcher struct {
	mu    sync.Mutex
	trees map[string]*StageTree
	errs  map[string]error
	calls int
}

func (f *stubFetcher) FetchStageTree(_ context.Context, _ string, stageID string) (*StageTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[stageID]; ok {
		return nil, err
	}
	if tree, ok := f.trees[stageID]; ok {
		return tree, nil
	}
	return nil, &stubNotFound{stageID: stageID}
}

func (f *stubFetcher) set(tree *StageTree) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trees == nil {
		f.trees = make(map[string]*StageTree)
	}
	f.trees[tree.StageID] = tree
}

func (f *stubFetcher) fail(stageID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[stageID] = err
}

func stubTree(stageID string, version int) *StageTree {
	return &StageTree{
		StageID: stageID,
		Version: version,
		Viz:     TreePlot{Layout: []Point{{X: 0.5, Y: 0.5}}},
	}
}

func fixedStages(ids ...string) func() []string {
	return func() []string { return ids }
}

func TestPollerFetchesAndNotifies(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("stage_1", 1))
	fetcher.set(stubTree("stage_2", 1))

	var updates [][]StageTree
	p := NewPoller(PollerConfig{
		RunID:   "run-1",
		Fetcher: fetcher,
		Stages:  fixedStages("stage_1", "stage_2"),
		OnUpdate: func(trees []StageTree) {
			updates = append(updates, trees)
		},
	})

	p.PollOnce(context.Background())

	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	got := updates[0]
	if len(got) != 2 {
		t.Fatalf("expected 2 trees, got %d", len(got))
	}
	if got[0].StageID != "stage_1" || got[1].StageID != "stage_2" {
		t.Errorf("expected canonical order [stage_1 stage_2], got [%s %s]", got[0].StageID, got[1].StageID)
	}
}

func TestPollerVersionSupersede(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("stage_1", 3))

	updates := 0
	p := NewPoller(PollerConfig{
		RunID:    "run-1",
		Fetcher:  fetcher,
		Stages:   fixedStages("stage_1"),
		OnUpdate: func([]StageTree) { updates++ },
	})

	p.PollOnce(context.Background())
	if updates != 1 {
		t.Fatalf("expected 1 update after first poll, got %d", updates)
	}

	// Same version again: held tree is unchanged, no notification.
	p.PollOnce(context.Background())
	if updates != 1 {
		t.Errorf("expected no update for equal version, got %d", updates)
	}

	// Lower version never replaces a held tree.
	fetcher.set(stubTree("stage_1", 2))
	p.PollOnce(context.Background())
	if updates != 1 {
		t.Errorf("expected no update for lower version, got %d", updates)
	}
	if got := p.Current()[0].Version; got != 3 {
		t.Errorf("expected held version 3, got %d", got)
	}

	fetcher.set(stubTree("stage_1", 4))
	p.PollOnce(context.Background())
	if updates != 2 {
		t.Errorf("expected update for higher version, got %d updates", updates)
	}
	if got := p.Current()[0].Version; got != 4 {
		t.Errorf("expected held version 4, got %d", got)
	}
}

func TestPollerNotFoundIsNotAnError(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("stage_2", 1))

	logged := 0
	p := NewPoller(PollerConfig{
		RunID:   "run-1",
		Fetcher: fetcher,
		Stages:  fixedStages("stage_1", "stage_2"),
		Logf:    func(string, ...any) { logged++ },
	})

	p.PollOnce(context.Background())

	if logged != 0 {
		t.Errorf("expected no log lines for missing trees, got %d", logged)
	}
	got := p.Current()
	if len(got) != 1 || got[0].StageID != "stage_2" {
		t.Fatalf("expected only stage_2 held, got %+v", got)
	}
}

func TestPollerFetchErrorLoggedAndSkipped(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("stage_1", 1))
	fetcher.fail("stage_2", errors.New("boom"))

	logged := 0
	p := NewPoller(PollerConfig{
		RunID:   "run-1",
		Fetcher: fetcher,
		Stages:  fixedStages("stage_1", "stage_2"),
		Logf:    func(string, ...any) { logged++ },
	})

	p.PollOnce(context.Background())

	if logged != 1 {
		t.Errorf("expected 1 log line for failed fetch, got %d", logged)
	}
	got := p.Current()
	if len(got) != 1 || got[0].StageID != "stage_1" {
		t.Fatalf("expected stage_1 held despite stage_2 failure, got %+v", got)
	}
}

func TestPollerCurrentFollowsStageOrder(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("alpha", 1))
	fetcher.set(stubTree("beta", 1))

	p := NewPoller(PollerConfig{
		RunID:   "run-1",
		Fetcher: fetcher,
		Stages:  fixedStages("beta", "alpha"),
	})

	p.PollOnce(context.Background())

	got := p.Current()
	if len(got) != 2 {
		t.Fatalf("expected 2 trees, got %d", len(got))
	}
	if got[0].StageID != "beta" || got[1].StageID != "alpha" {
		t.Errorf("expected supplied order [beta alpha], got [%s %s]", got[0].StageID, got[1].StageID)
	}
}

func TestPollerNoStagesNoCalls(t *testing.T) {
	fetcher := &stubFetcher{}
	p := NewPoller(PollerConfig{
		RunID:   "run-1",
		Fetcher: fetcher,
		Stages:  fixedStages(),
	})

	p.PollOnce(context.Background())

	if fetcher.calls != 0 {
		t.Errorf("expected no fetches without stages, got %d", fetcher.calls)
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.set(stubTree("stage_1", 1))

	p := NewPoller(PollerConfig{
		RunID:    "run-1",
		Fetcher:  fetcher,
		Stages:   fixedStages("stage_1"),
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
