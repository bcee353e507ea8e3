package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

func testArtifacts(t *testing.T) blob.Store {
	t.Helper()
	return blob.NewLocalStore(t.TempDir(), blob.RunPathID("run-1"))
}

func testLog() logger.Log {
	registry, err := logger.NewLogRegistry("")
	if err != nil {
		panic(err)
	}
	return logger.MakeLogrusLogFactoryStdOutPlain(registry)("worker-test")
}

func setupRun(t *testing.T) (*store.MemoryStore, models.OrgID, models.RunID, store.RunScope) {
	t.Helper()
	m := store.NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))
	scope := m.ForRun(orgID, runID)
	step := &models.Step{ID: "step-1", RunID: runID, Status: models.StepStatusPending, Order: 1, TimeoutMinutes: 5}
	require.NoError(t, scope.Steps().Initialize(context.Background(), []*models.Step{step}))
	return m, orgID, runID, scope
}

func TestExecute_FreshCompletes(t *testing.T) {
	m, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)

	outcome := Execute(context.Background(), StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			return "done", nil
		})

	require.True(t, outcome.Completed)
	require.Equal(t, "done", outcome.ResultSummary)

	step, err := scope.Steps().Read(context.Background(), stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusCompleted, step.Status)
	require.Nil(t, step.Checkpoint)

	events := m.Events(runID)
	require.Len(t, events, 2)
	require.Equal(t, models.EventTypeStepStarted, events[0].Type)
	require.Equal(t, models.EventTypeStepCompleted, events[1].Type)
}

func TestExecute_FreshFails(t *testing.T) {
	_, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)

	outcome := Execute(context.Background(), StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			return "", assertErr("boom")
		})

	require.True(t, outcome.Failed)
	step, err := scope.Steps().Read(context.Background(), stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusFailed, step.Status)
}

func TestExecute_PausesOnAskUser(t *testing.T) {
	_, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)

	outcome := Execute(context.Background(), StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			pr, err := sess.AskUser(models.QuestionTypeFreeText, "continue?", nil, true, map[string]string{"k": "v"})
			if err != nil {
				return "", err
			}
			return "", pr
		})

	require.True(t, outcome.Paused)
	step, err := scope.Steps().Read(context.Background(), stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusPaused, step.Status)
	require.NotNil(t, step.Checkpoint)
	require.Equal(t, models.CheckpointPhaseWaitingForAnswer, step.Checkpoint.Phase)
}

func TestExecute_ResumeAfterAnswerCompletes(t *testing.T) {
	m, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)

	ctx := context.Background()
	var questionID string
	_ = Execute(ctx, StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			pr, err := sess.AskUser(models.QuestionTypeFreeText, "continue?", nil, true, nil)
			if err != nil {
				return "", err
			}
			return "", pr
		})
	step, err := scope.Steps().Read(ctx, stepID)
	require.NoError(t, err)
	questionID = step.Checkpoint.QuestionID

	m.PutInput(runID, &models.Input{QuestionID: questionID, StepID: stepID, Type: models.InputTypeAnswer, Payload: models.InputPayload{Answer: "yes"}})

	outcome := Execute(ctx, StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID, ResumeThreadID: "resume-1"}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			answer, ok := sess.ResumeAnswer()
			require.True(t, ok)
			require.Equal(t, "yes", answer)
			return "answered: " + answer, nil
		})

	require.True(t, outcome.Completed)
	step, err = scope.Steps().Read(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusCompleted, step.Status)
}

func TestExecute_ResumeOfTerminalStepIsNoOp(t *testing.T) {
	_, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)
	ctx := context.Background()
	require.NoError(t, scope.Steps().UpdateStatus(ctx, stepID, models.StepStatusCompleted, store.StepStatusUpdate{ResultSummary: "already done"}))

	outcome := Execute(ctx, StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID, ResumeThreadID: "resume-1"}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			t.Fatal("run should not be invoked for a terminal step")
			return "", nil
		})

	require.True(t, outcome.Paused)
}

func TestExecute_ResumeWhenAbortedSkipsStep(t *testing.T) {
	m, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)
	ctx := context.Background()

	_ = Execute(ctx, StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			pr, err := sess.AskUser(models.QuestionTypeFreeText, "continue?", nil, true, nil)
			if err != nil {
				return "", err
			}
			return "", pr
		})

	require.NoError(t, m.ForRun(orgID, runID).Runs().UpdateStatus(ctx, models.RunStatusAborted, store.RunStatusUpdate{}))

	outcome := Execute(ctx, StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID, ResumeThreadID: "resume-1"}, scope, testArtifacts(t), nil, testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			t.Fatal("run should not be invoked once the run is aborted")
			return "", nil
		})

	require.True(t, outcome.Paused)
	step, err := scope.Steps().Read(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusSkipped, step.Status)
	require.Nil(t, step.Checkpoint)
}

func TestExecute_SessionExposesSecrets(t *testing.T) {
	m, orgID, runID, scope := setupRun(t)
	stepID := firstStepID(t, scope)
	m.PutAIConfig(&models.AIConfig{Provider: "openai", Model: "gpt-4"})

	outcome := Execute(context.Background(), StartupEnv{RunID: runID, OrgID: orgID, StepID: stepID}, scope, testArtifacts(t), m.Secrets(orgID), testLog(),
		func(ctx context.Context, sess *Session) (string, error) {
			cfg, err := sess.Secrets().ReadAIConfig(ctx)
			if err != nil {
				return "", err
			}
			return cfg.Provider + ":" + cfg.Model, nil
		})

	require.True(t, outcome.Completed)
	require.Equal(t, "openai:gpt-4", outcome.ResultSummary)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func firstStepID(t *testing.T, scope store.RunScope) string {
	t.Helper()
	steps, err := scope.Steps().ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	return steps[0].ID
}
