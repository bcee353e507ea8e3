package models

import "github.com/playbookrun/controller/common/gerror"

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusPaused    StepStatus = "paused"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether status is one that must never be overwritten once observed.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusPaused, StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// CheckpointPhase names the point in a worker's phase-dispatch protocol a paused step is
// waiting to resume from.
type CheckpointPhase string

const (
	CheckpointPhaseWaitingForAnswer   CheckpointPhase = "waiting_for_answer"
	CheckpointPhaseWaitingForApproval CheckpointPhase = "waiting_for_approval"
)

// Checkpoint is the opaque-to-the-controller resume state a worker saves before pausing.
// It is present on a Step document only while that step is paused.
type Checkpoint struct {
	Phase      CheckpointPhase   `firestore:"phase"`
	QuestionID string            `firestore:"questionId"`
	Data       map[string]string `firestore:"data"`
}

// Step is one node of a run's DAG and its mutable execution state. ID is the playbook's
// own step slug (StepDefinition.ID), not a generated identifier: the DAG module, the run
// controller, and every worker all address a step by this same string, so it cannot be an
// independently-minted id without a lookup table nobody needs.
type Step struct {
	ID             string      `firestore:"-"`
	RunID          RunID       `firestore:"-"`
	Status         StepStatus  `firestore:"status"`
	Title          string      `firestore:"title"`
	Order          int         `firestore:"order"`
	AgentImage     string      `firestore:"agentImage"`
	TimeoutMinutes int         `firestore:"timeoutMinutes"`
	Dependencies   []string    `firestore:"dependencies"`
	JobName        string      `firestore:"jobName"`
	ResultSummary  string      `firestore:"resultSummary"`
	Error          *ErrorInfo  `firestore:"error,omitempty"`
	Checkpoint     *Checkpoint `firestore:"checkpoint,omitempty"`
	UpdatedAt      Time        `firestore:"updatedAt,serverTimestamp"`
	CompletedAt    *Time       `firestore:"completedAt,omitempty"`
}

func NewStep(id string, runID RunID, def StepDefinition) *Step {
	timeout := def.TimeoutMinutes
	if timeout <= 0 {
		timeout = DefaultStepTimeoutMinutes
	}
	return &Step{
		ID:             id,
		RunID:          runID,
		Status:         StepStatusPending,
		Title:          def.Title,
		Order:          def.Order,
		AgentImage:     def.AgentImage,
		TimeoutMinutes: timeout,
		Dependencies:   def.Dependencies,
	}
}

func (s *Step) Validate() error {
	if s.ID == "" {
		return gerror.NewErrValidationFailed("step id is required")
	}
	if !s.Status.Valid() {
		return gerror.NewErrValidationFailed("step status is invalid: " + string(s.Status))
	}
	if s.TimeoutMinutes <= 0 {
		return gerror.NewErrValidationFailed("step timeoutMinutes must be positive")
	}
	return nil
}
