// File: internal/loop/loop.go
// Package loop runs the bounded autonomous cycle: snapshot, ask the LLM,
// parse its actions, execute them, feed results back.
package loop

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/actions"
	"github.com/xkilldash9x/tabpilot/internal/bridge"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/executor"
	"github.com/xkilldash9x/tabpilot/internal/llmclient"
	"github.com/xkilldash9x/tabpilot/internal/snapshot"
)

// ActionExecutor is the loop's view of the executor.
type ActionExecutor interface {
	Execute(ctx context.Context, a actions.Action) executor.Result
	LastScreenshot() []byte
}

// Snapshotter captures and renders page state.
type Snapshotter interface {
	Capture(ctx context.Context) (*snapshot.Snapshot, error)
	Render(snap *snapshot.Snapshot) string
}

// ArtifactSink materializes FILE markers and download payloads. Apply
// returns one note per marker, fed back to the model with the action
// results.
type ArtifactSink interface {
	Apply(fileActions []actions.FileAction, downloads []actions.Download) []string
}

// Outcome summarizes a finished run.
type Outcome struct {
	State         State
	Cycles        int
	FinalResponse string
}

// Controller drives the loop for one task.
type Controller struct {
	cfg       config.AgentConfig
	client    llmclient.Client
	exec      ActionExecutor
	snap      Snapshotter
	artifacts ArtifactSink
	log       *zap.Logger
	rng       *rand.Rand

	mu    sync.Mutex
	state State

	cancelled atomic.Bool

	// screenshotFallback is the one-way hybrid escalation latch. Once set it
	// never clears for the rest of the run.
	screenshotFallback bool
	consecutiveErrors  int
}

func NewController(cfg config.AgentConfig, client llmclient.Client, exec ActionExecutor, snap Snapshotter, artifacts ArtifactSink, log *zap.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		client:    client,
		exec:      exec,
		snap:      snap,
		artifacts: artifacts,
		log:       log.Named("loop"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:     StateIdle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Cancel requests a stop. It is checked at the loop top and between actions;
// in-flight network calls are not interrupted (use the context for that).
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
}

func (c *Controller) stopRequested(ctx context.Context) bool {
	return c.cancelled.Load() || ctx.Err() != nil
}

// Run executes the loop until completion, cancellation or budget exhaustion.
// A transport failure talking to the LLM aborts the run with an error; every
// other outcome is reported through Outcome.State.
func (c *Controller) Run(ctx context.Context, task string) (*Outcome, error) {
	maxLoops := c.cfg.MaxLoops
	if c.cfg.Mode == config.ModeManual {
		maxLoops = 1
	}

	history := []bridge.Message{{Role: "user", Content: "TASK: " + task}}
	outcome := &Outcome{State: StateIdle}

	for cycle := 1; ; cycle++ {
		if c.stopRequested(ctx) {
			c.setState(StateCancelled)
			outcome.State = StateCancelled
			c.log.Info("Run cancelled.", zap.Int("cycles", outcome.Cycles))
			return outcome, nil
		}
		if cycle > maxLoops {
			c.setState(StateBudgetExhausted)
			outcome.State = StateBudgetExhausted
			c.log.Warn("Loop budget exhausted.", zap.Int("max_loops", maxLoops))
			return outcome, nil
		}
		outcome.Cycles = cycle

		response, err := c.requestCycle(ctx, history)
		if err != nil {
			c.setState(StateFailed)
			outcome.State = StateFailed
			return outcome, fmt.Errorf("LLM request failed on cycle %d: %w", cycle, err)
		}
		if c.stopRequested(ctx) {
			c.setState(StateCancelled)
			outcome.State = StateCancelled
			return outcome, nil
		}

		c.setState(StateParsing)
		acts := actions.Parse(response)
		notes := c.applyArtifacts(response)

		if len(acts) == 0 {
			c.setState(StateCompleted)
			outcome.State = StateCompleted
			outcome.FinalResponse = response
			if phrase, ok := matchCompletionPhrase(response); ok {
				c.log.Info("Run completed.", zap.Int("cycles", cycle), zap.String("completion_phrase", phrase))
			} else {
				c.log.Info("Run completed: response contained no actions.", zap.Int("cycles", cycle))
			}
			return outcome, nil
		}

		c.setState(StateExecuting)
		feedback, hadError, cancelled := c.executeCycle(ctx, acts)
		if cancelled {
			c.setState(StateCancelled)
			outcome.State = StateCancelled
			return outcome, nil
		}
		feedback = append(feedback, notes...)
		c.trackErrors(hadError)

		history = append(history,
			bridge.Message{Role: "assistant", Content: response},
			bridge.Message{Role: "user", Content: "ACTION RESULTS:\n" + strings.Join(feedback, "\n")},
		)

		if c.cfg.Mode == config.ModeManual {
			c.setState(StateCompleted)
			outcome.State = StateCompleted
			outcome.FinalResponse = response
			return outcome, nil
		}

		c.setState(StateAwaitingContinuation)
		if c.cfg.LoopDelay > 0 {
			select {
			case <-time.After(c.cfg.LoopDelay):
			case <-ctx.Done():
			}
		}
	}
}

// requestCycle snapshots the page and asks the LLM for the next move.
func (c *Controller) requestCycle(ctx context.Context, history []bridge.Message) (string, error) {
	c.setState(StateSending)

	pageContent := ""
	if snap, err := c.snap.Capture(ctx); err != nil {
		c.log.Warn("Snapshot capture failed, sending without page content.", zap.Error(err))
	} else {
		pageContent = c.snap.Render(snap)
	}

	req := llmclient.Request{
		System:      systemPrompt,
		Messages:    history,
		PageContent: pageContent,
		Mode:        c.cfg.Mode,
	}
	if c.screenshotFallback {
		if res := c.exec.Execute(ctx, actions.Action{Kind: actions.KindScreenshot}); res.OK {
			req.Screenshot = c.exec.LastScreenshot()
		} else {
			c.log.Warn("Screenshot fallback is latched but capture failed.", zap.String("error", res.Message))
		}
	}
	return c.client.Generate(ctx, req, nil)
}

// executeCycle runs actions sequentially with randomized pacing. It returns
// the per-action feedback lines, whether any action failed, and whether a
// stop interrupted the cycle.
func (c *Controller) executeCycle(ctx context.Context, acts []actions.Action) (feedback []string, hadError, cancelled bool) {
	feedback = make([]string, 0, len(acts))
	for i, a := range acts {
		if c.stopRequested(ctx) {
			return feedback, hadError, true
		}
		res := c.exec.Execute(ctx, a)
		status := "ok"
		if !res.OK {
			status = "error"
			hadError = true
		}
		feedback = append(feedback, fmt.Sprintf("%d. [%s] %s", i+1, status, res.Message))
		c.log.Debug("Action executed.",
			zap.String("kind", string(a.Kind)), zap.Bool("ok", res.OK), zap.String("result", res.Message))

		if i < len(acts)-1 {
			c.pace(ctx)
		}
	}
	return feedback, hadError, false
}

// pace sleeps a randomized interval between actions.
func (c *Controller) pace(ctx context.Context) {
	min, max := c.cfg.ActionDelayMin, c.cfg.ActionDelayMax
	if max < min {
		max = min
	}
	delay := min
	if span := max - min; span > 0 {
		delay = min + time.Duration(c.rng.Int63n(int64(span)+1))
	}
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// trackErrors maintains the consecutive-error-cycle counter and latches the
// hybrid screenshot fallback when the threshold is crossed.
func (c *Controller) trackErrors(hadError bool) {
	if !hadError {
		c.consecutiveErrors = 0
		return
	}
	c.consecutiveErrors++
	if c.cfg.Mode == config.ModeAgentHybrid && !c.screenshotFallback &&
		c.consecutiveErrors >= c.cfg.ErrorCyclesBeforeFallback {
		c.screenshotFallback = true
		c.log.Warn("Escalating to screenshot-augmented context after repeated errors.",
			zap.Int("consecutive_error_cycles", c.consecutiveErrors))
	}
}

func (c *Controller) applyArtifacts(response string) []string {
	if c.artifacts == nil {
		return nil
	}
	files := actions.ParseFileActions(response)
	downloads := actions.ParseDownloads(response)
	if len(files) == 0 && len(downloads) == 0 {
		return nil
	}
	return c.artifacts.Apply(files, downloads)
}
