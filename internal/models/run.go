package models

import "github.com/playbookrun/controller/common/gerror"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// IsTerminal reports whether status is one a run never transitions out of.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// ErrorInfo is the {code, message} pair recorded on a run or step when it fails.
type ErrorInfo struct {
	Code    gerror.Code `firestore:"code"`
	Message string      `firestore:"message"`
}

// Run is the root document of a single playbook execution.
type Run struct {
	ID            RunID             `firestore:"-"`
	OrgID         OrgID             `firestore:"-"`
	Status        RunStatus         `firestore:"status"`
	Context       Context           `firestore:"context"`
	TriggerInputs map[string]string `firestore:"triggerInputs"`
	CurrentStepID string            `firestore:"currentStepId"`
	Summary       string            `firestore:"summary"`
	Error         *ErrorInfo        `firestore:"error,omitempty"`
	UpdatedAt     Time              `firestore:"updatedAt,serverTimestamp"`
	CompletedAt   *Time             `firestore:"completedAt,omitempty"`
	LastHeartbeat Time              `firestore:"lastHeartbeat,serverTimestamp"`
}

func NewRun(id RunID, orgID OrgID, ctx Context, triggerInputs map[string]string) *Run {
	return &Run{
		ID:            id,
		OrgID:         orgID,
		Status:        RunStatusPending,
		Context:       ctx,
		TriggerInputs: triggerInputs,
	}
}

// Validate checks invariants that must hold before a Run document is written. It does not
// check DAG acyclicity; that is the DAG module's job.
func (r *Run) Validate() error {
	if !r.ID.Valid() {
		return gerror.NewErrValidationFailed("run id is required")
	}
	if !r.OrgID.Valid() {
		return gerror.NewErrValidationFailed("org id is required")
	}
	if !r.Status.Valid() {
		return gerror.NewErrValidationFailed("run status is invalid: " + string(r.Status))
	}
	return nil
}
