// Package store defines the typed read/write surface the run controller and workers use
// against the external document store, and provides a Firestore-backed implementation plus
// an in-memory fake for tests.
package store

import (
	"context"

	"github.com/playbookrun/controller/internal/models"
)

// RunStatusUpdate carries the optional fields that accompany a run status transition.
type RunStatusUpdate struct {
	Error         *models.ErrorInfo
	Summary       string
	CurrentStepID string
}

// StepStatusUpdate carries the optional fields that accompany a step status transition.
type StepStatusUpdate struct {
	Error         *models.ErrorInfo
	ResultSummary string
	JobName       string
}

// RunStore is the typed CRUD surface for a single run's root document. A RunStore is scoped
// to one (org, run) pair by its constructor, matching the hierarchical document path
// orgs/{org}/playbook_runs/{run} — callers never pass org or run ids to its methods.
type RunStore interface {
	Read(ctx context.Context) (*models.Run, error)
	// UpdateStatus transitions a run's status. If the stored status is already terminal, the
	// write is skipped: terminal statuses are set-once.
	UpdateStatus(ctx context.Context, status models.RunStatus, upd RunStatusUpdate) error
	Heartbeat(ctx context.Context) error
	ReadContext(ctx context.Context) (models.Context, error)
}

// StepStore is the typed CRUD surface for one run's step documents.
type StepStore interface {
	// Initialize overwrites every step document to "pending" with its declared metadata.
	// Called once at run start, after the DAG has validated.
	Initialize(ctx context.Context, steps []*models.Step) error
	// UpdateStatus transitions a single step's status. If the stored status is already
	// terminal, the write is skipped.
	UpdateStatus(ctx context.Context, stepID string, status models.StepStatus, upd StepStatusUpdate) error
	ReadStatus(ctx context.Context, stepID string) (models.StepStatus, error)
	Read(ctx context.Context, stepID string) (*models.Step, error)
	ReadAll(ctx context.Context) ([]*models.Step, error)
	// ReadAllResults returns resultSummary for every completed step, keyed by step id.
	ReadAllResults(ctx context.Context) (map[string]string, error)
}

// EventStore appends to a run's event log. The log is multi-writer, append-only; no
// coordination between writers is required.
type EventStore interface {
	Append(ctx context.Context, eventType models.EventType, stepID string, payload map[string]string) error
}

// InputStore reads user-submitted responses to questions and approval requests.
type InputStore interface {
	// ReadByQuestionID returns the single input document matching id against either the
	// questionId or approvalId field, or nil if none has been written yet.
	ReadByQuestionID(ctx context.Context, id string) (*models.Input, error)
}

// CheckpointStore persists and retrieves a paused step's resume state. The checkpoint is
// owned by the worker: it writes on pause and clears on reaching any terminal status.
type CheckpointStore interface {
	Save(ctx context.Context, stepID string, cp *models.Checkpoint) error
	Load(ctx context.Context, stepID string) (*models.Checkpoint, error)
	Clear(ctx context.Context, stepID string) error
}

// FileStore records metadata for artifacts a worker has uploaded to the blob store.
type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	ReadAll(ctx context.Context) ([]*models.File, error)
}

// SecretStore reads out-of-band credential material, scoped to one org. Never logs the
// values it returns.
type SecretStore interface {
	ReadOAuthToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	ReadAIConfig(ctx context.Context) (*models.AIConfig, error)
}

// RunScope aggregates every typed store surface scoped to a single (org, run) pair.
type RunScope interface {
	Runs() RunStore
	Steps() StepStore
	Events() EventStore
	Inputs() InputStore
	Checkpoints() CheckpointStore
	Files() FileStore
}

// Store is the top-level factory the controller and workers are injected with. ForRun binds
// a scope to one (org, run) pair for the lifetime of a controller process or worker
// invocation; Secrets is org-scoped independently of any one run.
type Store interface {
	ForRun(orgID models.OrgID, runID models.RunID) RunScope
	Secrets(orgID models.OrgID) SecretStore
}
