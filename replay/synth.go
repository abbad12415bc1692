// ABOUTME: Synthesizes a plausible multi-stage research run for the demo backend.
// ABOUTME: Fabricates staged progress ticks, node results, evolving trees, and a final paper.

package replay

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
)

// SynthConfig controls the fabricated run. Zero values get defaults.
type SynthConfig struct {
	RunID      string        // default: a fresh uuid
	Stages     int           // default 3
	Iterations int           // progress ticks per stage, default 6
	TickEvery  time.Duration // spacing between frames, default 350ms
	Seed       int64         // entropy seed; 0 seeds from the clock
}

var stageFocuses = []string{
	"architecture search",
	"hyperparameter sweep",
	"ablation study",
	"robustness checks",
}

var nodePlans = []string{
	"widen the hidden layers",
	"add residual connections",
	"tune the learning rate schedule",
	"increase dropout",
	"swap in a cosine scheduler",
	"prune low-signal features",
}

// Synthesize fabricates a complete script: uuid run id, ulid event ids,
// staged progress, node results, evolving stage trees, and a findings paper.
func Synthesize(cfg SynthConfig) *Script {
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Stages <= 0 {
		cfg.Stages = 3
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 6
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 350 * time.Millisecond
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	entropy := ulid.Monotonic(rng, 0)

	startedAt := time.Now().UTC()
	s := &Script{Run: RunInfo{
		RunID:       cfg.RunID,
		RecordingID: ulid.MustNew(ulid.Timestamp(startedAt), entropy).String(),
		StartedAt:   startedAt,
	}}

	at := time.Duration(0)
	tick := func() time.Duration {
		cur := at
		at += cfg.TickEvery
		return cur
	}
	meta := func(when time.Duration, stage string) runstate.EventMeta {
		return runstate.EventMeta{
			ID:        ulid.MustNew(ulid.Timestamp(startedAt.Add(when)), entropy).String(),
			Stage:     stage,
			Timestamp: startedAt.Add(when),
		}
	}
	emit := func(event string, payload any) {
		s.Frames = append(s.Frames, frameAt(tick(), event, payload))
	}

	emit(EventTimeline, runstate.RunStarted{EventMeta: meta(at, "")})
	emit(EventDelta, runstate.Delta{Status: statusPtr(runstate.StatusRunning)})

	type stageOutcome struct {
		stage string
		focus string
		best  float64
		nodes int
	}
	outcomes := make([]stageOutcome, 0, cfg.Stages)

	for sn := 1; sn <= cfg.Stages; sn++ {
		stage := fmt.Sprintf("stage_%d", sn)
		focus := stageFocuses[(sn-1)%len(stageFocuses)]

		emit(EventDelta, runstate.Delta{
			CurrentStage: strPtr(stage),
			CurrentFocus: strPtr(focus),
			Progress:     floatPtr(float64(sn-1) / float64(cfg.Stages)),
		})
		emit(EventTimeline, runstate.StageStarted{EventMeta: meta(at, stage)})

		best := 0.0
		version := 0
		stageNodes := 1
		for i := 1; i <= cfg.Iterations; i++ {
			emit(EventTimeline, runstate.ProgressUpdate{
				EventMeta:     meta(at, stage),
				Iteration:     i,
				MaxIterations: cfg.Iterations,
			})

			if i%2 == 1 {
				nodeID := fmt.Sprintf("node-%d-%d", sn, i)
				m := meta(at, stage)
				m.NodeID = nodeID
				emit(EventTimeline, runstate.NodeExecutionStarted{EventMeta: m})

				m = meta(at, stage)
				m.NodeID = nodeID
				if rng.Float64() < 0.2 {
					emit(EventTimeline, runstate.NodeResult{
						EventMeta:    m,
						Outcome:      "failure",
						ErrorSummary: "TimeoutError: training exceeded the step budget",
					})
				} else {
					metric := 0.5 + 0.4*rng.Float64()
					if metric > best {
						best = metric
					}
					emit(EventTimeline, runstate.NodeResult{
						EventMeta: m,
						Outcome:   "success",
						Summary:   fmt.Sprintf("validation metric %.3f", metric),
					})
				}
			}

			if i%2 == 0 {
				version++
				stageNodes = i + 1
				s.Trees = append(s.Trees, TreeSnapshot{
					At:   at,
					Tree: synthStageTree(stage, version, stageNodes, rng),
				})
			}
		}

		emit(EventTimeline, runstate.StageCompleted{EventMeta: meta(at, stage)})
		outcomes = append(outcomes, stageOutcome{stage: stage, focus: focus, best: best, nodes: stageNodes})
	}

	for _, step := range []string{"drafting sections", "resolving citations", "rendering final paper"} {
		emit(EventTimeline, runstate.PaperGenerationStep{EventMeta: meta(at, ""), Step: step})
	}

	emit(EventTimeline, runstate.RunFinished{
		EventMeta:            meta(at, ""),
		Status:               runstate.StatusCompleted,
		Success:              true,
		StagesCompleted:      cfg.Stages,
		TotalDurationSeconds: at.Seconds(),
	})
	emit(EventDelta, runstate.Delta{
		Status:   statusPtr(runstate.StatusCompleted),
		Progress: floatPtr(1),
	})

	var report strings.Builder
	fmt.Fprintf(&report, "# Findings: %s\n\n", cfg.RunID)
	report.WriteString("Synthetic run generated for local development.\n\n## Stage summaries\n\n")
	for _, o := range outcomes {
		fmt.Fprintf(&report, "- %s (%s): best metric %.3f across %d nodes\n", o.stage, o.focus, o.best, o.nodes)
	}
	report.WriteString("\n## Conclusion\n\nThe staged search converged; see the merged tree for the winning lineage.\n")
	s.Report = report.String()

	return s
}

// synthStageTree lays nodes out as a binary heap: node i sits at depth
// floor(log2(i+1)), spread evenly across its level, with parent (i-1)/2.
func synthStageTree(stageID string, version, nodes int, rng *rand.Rand) treeviz.StageTree {
	plot := treeviz.TreePlot{
		Layout:     make([]treeviz.Point, nodes),
		Plan:       make([]string, nodes),
		Analysis:   make([]string, nodes),
		ExcType:    make([]string, nodes),
		Metrics:    make([]*float64, nodes),
		IsBestNode: make([]bool, nodes),
		IsSeedNode: make([]bool, nodes),
	}

	maxDepth := 0
	for i := 0; i < nodes; i++ {
		if d := heapDepth(i); d > maxDepth {
			maxDepth = d
		}
	}

	bestIdx, bestMetric := -1, 0.0
	for i := 0; i < nodes; i++ {
		depth := heapDepth(i)
		levelStart := 1<<depth - 1
		levelWidth := 1 << depth
		y := 0.0
		if maxDepth > 0 {
			y = float64(depth) / float64(maxDepth)
		}
		plot.Layout[i] = treeviz.Point{
			X: float64(i-levelStart+1) / float64(levelWidth+1),
			Y: y,
		}
		if i > 0 {
			plot.Edges = append(plot.Edges, treeviz.Edge{Parent: (i - 1) / 2, Child: i})
		}

		plot.Plan[i] = nodePlans[i%len(nodePlans)]
		if i > 0 && i%5 == 0 {
			plot.ExcType[i] = "TimeoutError"
			plot.Analysis[i] = "diverged before the step budget"
			continue
		}
		m := 0.45 + 0.1*float64(version) + 0.05*rng.Float64()
		plot.Metrics[i] = &m
		plot.Analysis[i] = fmt.Sprintf("validation metric %.3f", m)
		if m > bestMetric {
			bestMetric, bestIdx = m, i
		}
	}
	plot.IsSeedNode[0] = true
	if bestIdx >= 0 {
		plot.IsBestNode[bestIdx] = true
	}

	return treeviz.StageTree{StageID: stageID, Version: version, Viz: plot}
}

func heapDepth(i int) int {
	d := 0
	for i > 0 {
		i = (i - 1) / 2
		d++
	}
	return d
}

func frameAt(at time.Duration, event string, payload any) ScriptFrame {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	return ScriptFrame{Event: event, Data: data, At: at}
}

func strPtr(s string) *string                      { return &s }
func floatPtr(f float64) *float64                  { return &f }
func statusPtr(s runstate.Status) *runstate.Status { return &s }
