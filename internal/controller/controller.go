// Package controller implements the run controller's scheduler loop: the single sequential
// driver that validates a playbook's DAG, launches ready steps as Jobs, polls the document
// store for their outcomes, cascades failures, and finalizes the run.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/cluster"
	"github.com/playbookrun/controller/internal/dag"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

const (
	DefaultPollInterval      = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Config carries the environment-derived parameters a single controller invocation runs
// with — one Config per process, mirroring one playbook run per controller container.
type Config struct {
	OrgID             models.OrgID
	RunID             models.RunID
	Namespace         string
	ImageRegistry     string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// Controller is the run controller. It holds no process-wide mutable state: every
// collaborator is injected, so multiple Controllers can run in the same process (e.g. in
// tests) without interfering with each other.
type Controller struct {
	cfg     Config
	scope   store.RunScope
	cluster cluster.Adapter
	clock   clock.Clock
	log     logger.Log
	metrics *Metrics

	livenessMu sync.Mutex
	lastLoopAt time.Time
}

func New(cfg Config, scope store.RunScope, adapter cluster.Adapter, clk clock.Clock, logFactory logger.LogFactory, metrics *Metrics) *Controller {
	cfg.setDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		cfg:     cfg,
		scope:   scope,
		cluster: adapter,
		clock:   clk,
		log:     logFactory("run-controller"),
		metrics: metrics,
	}
}

// Healthy reports whether the scheduling loop is making progress. It is true before the
// first loop iteration (the process just started and hasn't had a chance to fall behind yet)
// and stays true as long as an iteration has landed within the last two poll intervals.
func (c *Controller) Healthy() bool {
	c.livenessMu.Lock()
	defer c.livenessMu.Unlock()
	if c.lastLoopAt.IsZero() {
		return true
	}
	return c.clock.Now().Sub(c.lastLoopAt) < 2*c.cfg.PollInterval
}

func (c *Controller) markLoopIteration() {
	c.livenessMu.Lock()
	c.lastLoopAt = c.clock.Now()
	c.livenessMu.Unlock()
}

type stepState struct {
	completed map[string]bool
	terminal  map[string]bool // failed ∪ skipped
	failed    map[string]bool
	skipped   map[string]bool
	running   map[string]bool
	startedAt map[string]time.Time
	notified  map[string]bool
	jobNames  map[string]string
}

func newStepState() *stepState {
	return &stepState{
		completed: map[string]bool{},
		terminal:  map[string]bool{},
		failed:    map[string]bool{},
		skipped:   map[string]bool{},
		running:   map[string]bool{},
		startedAt: map[string]time.Time{},
		notified:  map[string]bool{},
		jobNames:  map[string]string{},
	}
}

// Run drives a validated playbook's steps through to run finalization. It returns nil once
// the run has been finalized (completed or failed) or has been cleanly aborted; a DAG
// validation failure or an internal fault is returned as an error after run.status has
// already been written.
func (c *Controller) Run(ctx context.Context, steps []models.StepDefinition) error {
	if err := dag.Validate(steps); err != nil {
		return c.failRunOnValidation(ctx, err)
	}

	stepDocs := make([]*models.Step, 0, len(steps))
	for _, def := range steps {
		stepDocs = append(stepDocs, models.NewStep(def.ID, c.cfg.RunID, def))
	}
	if err := c.scope.Steps().Initialize(ctx, stepDocs); err != nil {
		return c.failRunInternal(ctx, err)
	}

	if err := c.scope.Runs().UpdateStatus(ctx, models.RunStatusRunning, store.RunStatusUpdate{}); err != nil {
		return c.failRunInternal(ctx, err)
	}
	if err := c.scope.Events().Append(ctx, models.EventTypePlaybookStarted, "", nil); err != nil {
		return c.failRunInternal(ctx, err)
	}

	graph := dag.BuildGraph(steps)
	state := newStepState()
	lastHeartbeat := c.clock.Now()
	runStart := c.clock.Now()

	for {
		c.markLoopIteration()

		ready := dag.ReadySteps(steps, state.completed, state.terminal, state.running)
		if err := c.launchReady(ctx, ready, state); err != nil {
			return c.failRunInternal(ctx, err)
		}

		if len(state.running) == 0 && len(ready) == 0 {
			c.sweepRemaining(ctx, steps, state)
			break
		}

		if err := c.pollRunning(ctx, steps, graph, state); err != nil {
			if gerror.IsRunAborted(err) {
				return c.handleAbort(ctx)
			}
			return c.failRunInternal(ctx, err)
		}

		if c.clock.Now().Sub(lastHeartbeat) >= c.cfg.HeartbeatInterval {
			_ = c.scope.Runs().Heartbeat(ctx)
			lastHeartbeat = c.clock.Now()
		}

		c.clock.Sleep(c.cfg.PollInterval)
	}

	c.metrics.runDuration.Observe(c.clock.Now().Sub(runStart).Seconds())
	return c.finalize(ctx, state)
}

func (c *Controller) launchReady(ctx context.Context, ready []models.StepDefinition, state *stepState) error {
	if len(ready) > 1 {
		names := make([]string, len(ready))
		for i, s := range ready {
			names[i] = s.ID
		}
		_ = c.scope.Events().Append(ctx, models.EventTypeProgress, "", models.ProgressPayload(
			fmt.Sprintf("launching %d steps in parallel: %v", len(ready), names)))
	}
	for _, s := range ready {
		if err := c.launchStep(ctx, s, state); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) launchStep(ctx context.Context, def models.StepDefinition, state *stepState) error {
	_ = c.scope.Events().Append(ctx, models.EventTypeProgress, def.ID,
		models.ProgressPayload(fmt.Sprintf("preparing step %s: %s", def.ID, def.Title)))
	_ = c.scope.Runs().UpdateStatus(ctx, models.RunStatusRunning, store.RunStatusUpdate{CurrentStepID: def.ID})

	image, err := cluster.ResolveImage(def.AgentImage, c.cfg.ImageRegistry)
	if err != nil {
		return err
	}
	timeoutMinutes := def.TimeoutMinutes
	if timeoutMinutes <= 0 {
		timeoutMinutes = models.DefaultStepTimeoutMinutes
	}

	// No step declares explicit env overrides today, so every launch gets the full
	// flattened run context; a future StepDefinition.Env would take precedence here.
	var env map[string]string
	if runCtx, err := c.scope.Runs().ReadContext(ctx); err == nil {
		env = cluster.ContextEnv(runCtx)
	}

	jobName, err := c.cluster.CreateStepJob(ctx, cluster.CreateJobRequest{
		RunID:          c.cfg.RunID.String(),
		OrgID:          c.cfg.OrgID.String(),
		StepID:         def.ID,
		Image:          image,
		Namespace:      c.cfg.Namespace,
		TimeoutSeconds: int64(timeoutMinutes * 60),
		Env:            env,
	})
	if err != nil {
		return err
	}
	if err := c.scope.Steps().UpdateStatus(ctx, def.ID, models.StepStatusRunning, store.StepStatusUpdate{JobName: jobName}); err != nil {
		return err
	}

	state.running[def.ID] = true
	state.startedAt[def.ID] = c.clock.Now()
	state.jobNames[def.ID] = jobName
	if c.metrics != nil {
		c.metrics.stepsLaunched.Inc()
		c.metrics.stepsRunning.Set(float64(len(state.running)))
	}
	return nil
}

func (c *Controller) pollRunning(ctx context.Context, steps []models.StepDefinition, graph *dag.Graph, state *stepState) error {
	runDoc, err := c.scope.Runs().Read(ctx)
	if err != nil {
		return err
	}
	if runDoc.Status == models.RunStatusAborted {
		return gerror.NewErrRunAborted()
	}

	for id := range snapshotKeys(state.running) {
		timeoutMinutes := stepTimeoutMinutes(steps, id)
		if c.clock.Now().Sub(state.startedAt[id]) > time.Duration(timeoutMinutes)*time.Minute {
			c.timeoutStep(ctx, id, graph, state)
			continue
		}

		status, err := c.scope.Steps().ReadStatus(ctx, id)
		if err != nil {
			return err
		}
		c.handlePauseNotification(ctx, id, status, state)

		switch status {
		case models.StepStatusCompleted:
			c.onStepTerminal(ctx, id, status, state)
		case models.StepStatusFailed:
			c.onStepFailed(ctx, id, graph, state)
		case models.StepStatusSkipped:
			c.onStepTerminal(ctx, id, status, state)
		default:
			c.checkForCrash(ctx, id, state)
		}
	}
	return nil
}

// checkForCrash asks the cluster adapter whether the step's Job has already resolved even
// though the document store still shows it running — the signature of a worker killed by
// the orchestrator before it could write its own terminal status.
func (c *Controller) checkForCrash(ctx context.Context, stepID string, state *stepState) {
	jobName := state.jobNames[stepID]
	if jobName == "" {
		return
	}
	phase, err := c.cluster.JobPhase(ctx, c.cfg.Namespace, jobName)
	if err != nil || !phase.Failed {
		return
	}
	errInfo := &models.ErrorInfo{Code: gerror.ErrCodeInternal, Message: "worker exited without writing a terminal status: " + phase.Message}
	_ = c.scope.Events().Append(ctx, models.EventTypeStepFailed, stepID, models.ProgressPayload(errInfo.Message))
	_ = c.scope.Steps().UpdateStatus(ctx, stepID, models.StepStatusFailed, store.StepStatusUpdate{Error: errInfo})
}

func (c *Controller) timeoutStep(ctx context.Context, stepID string, graph *dag.Graph, state *stepState) {
	errInfo := &models.ErrorInfo{Code: gerror.ErrCodeStepTimeout, Message: "step exceeded its timeout"}
	_ = c.scope.Events().Append(ctx, models.EventTypeStepFailed, stepID, models.ProgressPayload(errInfo.Message))
	_ = c.scope.Steps().UpdateStatus(ctx, stepID, models.StepStatusFailed, store.StepStatusUpdate{Error: errInfo})
	c.onStepFailed(ctx, stepID, graph, state)
}

func (c *Controller) onStepTerminal(ctx context.Context, stepID string, status models.StepStatus, state *stepState) {
	delete(state.running, stepID)
	state.terminal[stepID] = true
	switch status {
	case models.StepStatusCompleted:
		state.completed[stepID] = true
		if c.metrics != nil {
			c.metrics.stepsCompleted.Inc()
		}
	case models.StepStatusSkipped:
		state.skipped[stepID] = true
		if c.metrics != nil {
			c.metrics.stepsSkipped.Inc()
		}
	}
	if c.metrics != nil {
		c.metrics.stepsRunning.Set(float64(len(state.running)))
	}
}

func (c *Controller) onStepFailed(ctx context.Context, stepID string, graph *dag.Graph, state *stepState) {
	delete(state.running, stepID)
	state.terminal[stepID] = true
	state.failed[stepID] = true
	if c.metrics != nil {
		c.metrics.stepsFailed.Inc()
		c.metrics.stepsRunning.Set(float64(len(state.running)))
	}
	for dependent := range graph.TransitiveDependents(stepID) {
		if state.completed[dependent] || state.running[dependent] || state.terminal[dependent] {
			continue
		}
		state.terminal[dependent] = true
		state.skipped[dependent] = true
		_ = c.scope.Steps().UpdateStatus(ctx, dependent, models.StepStatusSkipped, store.StepStatusUpdate{})
		if c.metrics != nil {
			c.metrics.stepsSkipped.Inc()
		}
	}
}

// handlePauseNotification emits the "waiting"/"resumed" progress pair around a pause,
// exactly once per transition. A resume can complete the step before the next poll ever
// observes it as running again, so "resumed" fires on any non-paused status once notified,
// not only on models.StepStatusRunning.
func (c *Controller) handlePauseNotification(ctx context.Context, stepID string, status models.StepStatus, state *stepState) {
	if status == models.StepStatusPaused {
		if !state.notified[stepID] {
			_ = c.scope.Events().Append(ctx, models.EventTypeProgress, stepID, models.ProgressPayload("waiting for user input"))
			state.notified[stepID] = true
		}
		return
	}
	if state.notified[stepID] {
		_ = c.scope.Events().Append(ctx, models.EventTypeProgress, stepID, models.ProgressPayload("resumed after user input"))
		state.notified[stepID] = false
	}
}

func (c *Controller) sweepRemaining(ctx context.Context, steps []models.StepDefinition, state *stepState) {
	for _, s := range steps {
		if state.completed[s.ID] || state.terminal[s.ID] {
			continue
		}
		state.terminal[s.ID] = true
		state.skipped[s.ID] = true
		_ = c.scope.Steps().UpdateStatus(ctx, s.ID, models.StepStatusSkipped, store.StepStatusUpdate{})
		if c.metrics != nil {
			c.metrics.stepsSkipped.Inc()
		}
	}
}

func (c *Controller) finalize(ctx context.Context, state *stepState) error {
	if len(state.failed) > 0 {
		failedIDs := make([]string, 0, len(state.failed))
		for id := range state.failed {
			failedIDs = append(failedIDs, id)
		}
		sort.Strings(failedIDs)
		summary := fmt.Sprintf("run failed: %v", failedIDs)
		_ = c.scope.Events().Append(ctx, models.EventTypePlaybookFailed, "", models.ProgressPayload(summary))
		return c.scope.Runs().UpdateStatus(ctx, models.RunStatusFailed, store.RunStatusUpdate{
			Summary: summary,
			Error:   &models.ErrorInfo{Code: gerror.ErrCodeInternal, Message: summary},
		})
	}
	_ = c.scope.Events().Append(ctx, models.EventTypePlaybookCompleted, "", nil)
	return c.scope.Runs().UpdateStatus(ctx, models.RunStatusCompleted, store.RunStatusUpdate{Summary: "playbook completed"})
}

func (c *Controller) handleAbort(ctx context.Context) error {
	c.log.Info("run aborted; shutting down cleanly")
	return nil
}

func (c *Controller) failRunValidation(ctx context.Context, code gerror.Code, message string) error {
	_ = c.scope.Events().Append(ctx, models.EventTypePlaybookFailed, "", models.ProgressPayload(message))
	_ = c.scope.Runs().UpdateStatus(ctx, models.RunStatusFailed, store.RunStatusUpdate{
		Summary: message,
		Error:   &models.ErrorInfo{Code: code, Message: message},
	})
	return gerror.NewError(message, gerror.AudienceExternal, code, 400, nil)
}

func (c *Controller) failRunOnValidation(ctx context.Context, err error) error {
	code := gerror.ErrCodePlaybookInvalid
	if gerror.IsCyclicDependency(err) {
		code = gerror.ErrCodeCyclicDependency
	}
	return c.failRunValidation(ctx, code, err.Error())
}

func (c *Controller) failRunInternal(ctx context.Context, err error) error {
	crashErr := gerror.NewErrAgentCrash(err)
	_ = c.scope.Events().Append(ctx, models.EventTypePlaybookFailed, "", models.ProgressPayload(crashErr.Message()))
	_ = c.scope.Runs().UpdateStatus(ctx, models.RunStatusFailed, store.RunStatusUpdate{
		Summary: crashErr.Message(),
		Error:   &models.ErrorInfo{Code: gerror.ErrCodeAgentCrash, Message: err.Error()},
	})
	return crashErr
}

func stepTimeoutMinutes(steps []models.StepDefinition, id string) int {
	for _, s := range steps {
		if s.ID == id {
			if s.TimeoutMinutes > 0 {
				return s.TimeoutMinutes
			}
			return models.DefaultStepTimeoutMinutes
		}
	}
	return models.DefaultStepTimeoutMinutes
}

func snapshotKeys(m map[string]bool) map[string]bool {
	snap := make(map[string]bool, len(m))
	for k := range m {
		snap[k] = true
	}
	return snap
}
