package controller

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/cluster"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
	"github.com/playbookrun/controller/internal/worker"
)

func testLogFactory() logger.LogFactory {
	registry, err := logger.NewLogRegistry("")
	if err != nil {
		panic(err)
	}
	return logger.MakeLogrusLogFactoryStdOutPlain(registry)
}

// fakeAdapter simulates the cluster in memory: CreateStepJob runs the step's worker
// function synchronously against the same store.RunScope the controller uses, rather than
// actually launching a Pod. Steps with no registered runFn complete immediately.
type fakeAdapter struct {
	scope     store.RunScope
	runID     models.RunID
	orgID     models.OrgID
	runFns    map[string]worker.Run
	created   []string
	jobPhases map[string]cluster.JobPhase
	blocked   map[string]bool // steps that should never report completion via this adapter
}

func newFakeAdapter(scope store.RunScope, orgID models.OrgID, runID models.RunID) *fakeAdapter {
	return &fakeAdapter{
		scope:     scope,
		runID:     runID,
		orgID:     orgID,
		runFns:    map[string]worker.Run{},
		jobPhases: map[string]cluster.JobPhase{},
		blocked:   map[string]bool{},
	}
}

func (f *fakeAdapter) CreateStepJob(ctx context.Context, req cluster.CreateJobRequest) (string, error) {
	f.created = append(f.created, req.StepID)
	jobName := "job-" + req.StepID
	if f.blocked[req.StepID] {
		return jobName, nil
	}
	runFn := f.runFns[req.StepID]
	if runFn == nil {
		runFn = func(ctx context.Context, sess *worker.Session) (string, error) { return "ok", nil }
	}
	worker.Execute(ctx, worker.StartupEnv{RunID: f.runID, OrgID: f.orgID, StepID: req.StepID, Namespace: req.Namespace}, f.scope, nil, nil, testLogFactory()("fake-worker"), runFn)
	return jobName, nil
}

func (f *fakeAdapter) WaitForJob(ctx context.Context, namespace, jobName string, timeout, pollInterval time.Duration, onPoll func(time.Duration)) (cluster.JobOutcome, error) {
	return cluster.JobOutcome{Succeeded: true}, nil
}

func (f *fakeAdapter) JobPhase(ctx context.Context, namespace, jobName string) (cluster.JobPhase, error) {
	return f.jobPhases[jobName], nil
}

func (f *fakeAdapter) DeleteJob(ctx context.Context, namespace, jobName string) error    { return nil }
func (f *fakeAdapter) DeleteConfigMap(ctx context.Context, namespace, name string) error { return nil }

func newTestController(t *testing.T, scope store.RunScope, orgID models.OrgID, runID models.RunID, adapter *fakeAdapter, mock *clock.Mock) *Controller {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	cfg := Config{OrgID: orgID, RunID: runID, Namespace: "playbooks", PollInterval: 10 * time.Second, HeartbeatInterval: time.Minute}
	return New(cfg, scope, adapter, mock, testLogFactory(), metrics)
}

func setupMemRun(t *testing.T) (*store.MemoryStore, models.OrgID, models.RunID, store.RunScope) {
	t.Helper()
	m := store.NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))
	return m, orgID, runID, m.ForRun(orgID, runID)
}

func def(id string, order int, deps ...string) models.StepDefinition {
	return models.StepDefinition{ID: id, Order: order, Title: id, TimeoutMinutes: 5, Dependencies: deps}
}

// advance unblocks one pass of the controller's poll-and-sleep cycle on the mock clock and
// yields briefly so the controller goroutine can run to its next blocking point.
func advance(mock *clock.Mock, d time.Duration) {
	mock.Add(d)
	time.Sleep(5 * time.Millisecond)
}

func TestController_LinearHappyPath(t *testing.T) {
	m, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{def("a", 1), def("b", 2, "a"), def("c", 3, "b")}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	for i := 0; i < 6; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	require.NoError(t, <-done)
	run, err := scope.Runs().Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, run.Status)
	require.Equal(t, []string{"a", "b", "c"}, adapter.created)
	_ = m
}

func TestController_ParallelFanOutLaunchesTogether(t *testing.T) {
	m, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{
		def("a", 1),
		def("b", 2, "a"),
		def("c", 3, "a"),
		def("d", 4, "b", "c"),
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	for i := 0; i < 6; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	require.NoError(t, <-done)
	events := m.Events(runID)
	foundParallelLaunch := false
	for _, e := range events {
		if e.Type == models.EventTypeProgress && e.Payload["message"] != "" {
			if e.StepID == "" {
				foundParallelLaunch = true
			}
		}
	}
	require.True(t, foundParallelLaunch, "expected a parallel-launch progress event for steps b and c")
	require.Contains(t, adapter.created, "b")
	require.Contains(t, adapter.created, "c")
}

func TestController_FailureCascadeSkipsDependents(t *testing.T) {
	_, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	adapter.runFns["a"] = func(ctx context.Context, sess *worker.Session) (string, error) {
		return "", assertErr("boom")
	}
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{def("a", 1), def("b", 2, "a"), def("c", 3)}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	for i := 0; i < 6; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	require.NoError(t, <-done)
	run, err := scope.Runs().Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, run.Status)

	stepB, err := scope.Steps().Read(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, models.StepStatusSkipped, stepB.Status)

	stepC, err := scope.Steps().Read(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, models.StepStatusCompleted, stepC.Status, "c has no dependency on a and should still run")

	require.NotContains(t, adapter.created, "b")
}

func TestController_HITLRoundTripNotifiesExactlyOnce(t *testing.T) {
	m, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	adapter.runFns["a"] = func(ctx context.Context, sess *worker.Session) (string, error) {
		if sess.IsResume() {
			answer, _ := sess.ResumeAnswer()
			return "answered: " + answer, nil
		}
		pr, err := sess.AskUser(models.QuestionTypeFreeText, "proceed?", nil, true, nil)
		if err != nil {
			return "", err
		}
		return "", pr
	}
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{def("a", 1)}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	var step *models.Step
	require.Eventually(t, func() bool {
		s, err := scope.Steps().Read(context.Background(), "a")
		if err != nil {
			return false
		}
		step = s
		return s.Status == models.StepStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	// Several more poll cycles pass while still paused; the notification must not repeat.
	for i := 0; i < 3; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	questionID := step.Checkpoint.QuestionID
	m.PutInput(runID, &models.Input{QuestionID: questionID, StepID: "a", Type: models.InputTypeAnswer, Payload: models.InputPayload{Answer: "yes"}})

	// Simulate the resume trigger launching a fresh worker container for the resumed step.
	worker.Execute(context.Background(), worker.StartupEnv{RunID: runID, OrgID: orgID, StepID: "a", ResumeThreadID: "resume-1"}, scope, nil, nil, testLogFactory()("resume-worker"), adapter.runFns["a"])

	for i := 0; i < 3; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	require.NoError(t, <-done)

	waitingCount, resumedCount := 0, 0
	for _, e := range m.Events(runID) {
		if e.Type != models.EventTypeProgress {
			continue
		}
		switch e.Payload["message"] {
		case "waiting for user input":
			waitingCount++
		case "resumed after user input":
			resumedCount++
		}
	}
	require.Equal(t, 1, waitingCount)
	require.Equal(t, 1, resumedCount)
}

func TestController_AbortWhilePausedEndsCleanly(t *testing.T) {
	_, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	adapter.runFns["a"] = func(ctx context.Context, sess *worker.Session) (string, error) {
		pr, err := sess.AskUser(models.QuestionTypeFreeText, "proceed?", nil, true, nil)
		if err != nil {
			return "", err
		}
		return "", pr
	}
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{def("a", 1)}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	require.Eventually(t, func() bool {
		s, err := scope.Steps().Read(context.Background(), "a")
		return err == nil && s.Status == models.StepStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, scope.Runs().UpdateStatus(context.Background(), models.RunStatusAborted, store.RunStatusUpdate{}))

	advance(mock, c.cfg.PollInterval)

	require.NoError(t, <-done)
	run, err := scope.Runs().Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.RunStatusAborted, run.Status)
}

func TestController_StepTimeoutCascadesSkip(t *testing.T) {
	_, orgID, runID, scope := setupMemRun(t)
	adapter := newFakeAdapter(scope, orgID, runID)
	adapter.blocked["a"] = true // "a"'s worker never reports back; it just hangs
	mock := clock.NewMock()
	c := newTestController(t, scope, orgID, runID, adapter, mock)

	steps := []models.StepDefinition{def("a", 1), def("b", 2, "a")}
	steps[0].TimeoutMinutes = 1

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), steps) }()

	require.Eventually(t, func() bool {
		s, err := scope.Steps().Read(context.Background(), "a")
		return err == nil && s.Status == models.StepStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	advance(mock, 2*time.Minute)
	for i := 0; i < 3; i++ {
		advance(mock, c.cfg.PollInterval)
	}

	require.NoError(t, <-done)
	stepA, err := scope.Steps().Read(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, models.StepStatusFailed, stepA.Status)
	require.Equal(t, gerror.ErrCodeStepTimeout, stepA.Error.Code)

	stepB, err := scope.Steps().Read(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, models.StepStatusSkipped, stepB.Status)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
