package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playbookrun/controller/internal/models"
)

func TestMemoryStore_TerminalStepStatusIsSetOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))

	scope := m.ForRun(orgID, runID)
	stepID := "step-1"
	step := models.NewStep(stepID, runID, models.StepDefinition{ID: stepID, Order: 1, TimeoutMinutes: 5})
	require.NoError(t, scope.Steps().Initialize(ctx, []*models.Step{step}))

	require.NoError(t, scope.Steps().UpdateStatus(ctx, stepID, models.StepStatusCompleted, StepStatusUpdate{ResultSummary: "ok"}))
	require.NoError(t, scope.Steps().UpdateStatus(ctx, stepID, models.StepStatusFailed, StepStatusUpdate{}))

	got, err := scope.Steps().Read(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusCompleted, got.Status)
	require.Equal(t, "ok", got.ResultSummary)
}

func TestMemoryStore_TerminalRunStatusIsSetOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))

	scope := m.ForRun(orgID, runID)
	require.NoError(t, scope.Runs().UpdateStatus(ctx, models.RunStatusCompleted, RunStatusUpdate{Summary: "done"}))
	require.NoError(t, scope.Runs().UpdateStatus(ctx, models.RunStatusFailed, RunStatusUpdate{}))

	got, err := scope.Runs().Read(ctx)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, got.Status)
}

func TestMemoryStore_CheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))
	scope := m.ForRun(orgID, runID)

	stepID := "step-1"
	step := models.NewStep(stepID, runID, models.StepDefinition{ID: stepID, Order: 1, TimeoutMinutes: 5})
	require.NoError(t, scope.Steps().Initialize(ctx, []*models.Step{step}))

	cp := &models.Checkpoint{Phase: models.CheckpointPhaseWaitingForAnswer, QuestionID: "q-1", Data: map[string]string{"k": "v"}}
	require.NoError(t, scope.Checkpoints().Save(ctx, stepID, cp))

	loaded, err := scope.Checkpoints().Load(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, cp, loaded)

	require.NoError(t, scope.Checkpoints().Clear(ctx, stepID))
	cleared, err := scope.Checkpoints().Load(ctx, stepID)
	require.NoError(t, err)
	require.Nil(t, cleared)
}

func TestMemoryStore_InputReadByQuestionOrApprovalID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	orgID := models.OrgID("org-1")
	runID := models.NewRunID()
	m.PutRun(models.NewRun(runID, orgID, models.Context{}, nil))
	scope := m.ForRun(orgID, runID)

	m.PutInput(runID, &models.Input{ApprovalID: "a-1", Type: models.InputTypeDecision})

	got, err := scope.Inputs().ReadByQuestionID(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.InputTypeDecision, got.Type)

	none, err := scope.Inputs().ReadByQuestionID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, none)
}
