package worker

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

// Session is the per-invocation handle passed to a step's Run function. It carries the
// resume state (if any) and exposes the HITL pause primitives.
type Session struct {
	ctx     context.Context
	env     StartupEnv
	scope   store.RunScope
	blob    blob.Store
	secrets store.SecretStore
	log     logger.Log

	checkpoint  *models.Checkpoint // non-nil only on a resume
	resumeInput *models.Input      // non-nil only on a resume
}

func (s *Session) RunID() models.RunID        { return s.env.RunID }
func (s *Session) OrgID() models.OrgID        { return s.env.OrgID }
func (s *Session) StepID() string             { return s.env.StepID }
func (s *Session) IsResume() bool             { return s.checkpoint != nil }
func (s *Session) Log() logger.Log            { return s.log }
func (s *Session) Store() store.RunScope      { return s.scope }
func (s *Session) Secrets() store.SecretStore { return s.secrets }

// SaveArtifact streams source into the blob store under this step, sniffs its content type,
// and records the resulting metadata in the document store. It is the only way a step's Run
// function should produce a downloadable artifact.
func (s *Session) SaveArtifact(name string, source io.Reader) (*models.File, error) {
	storagePath, mimeType, sizeBytes, err := s.blob.PutArtifact(s.ctx, s.env.StepID, name, source)
	if err != nil {
		return nil, err
	}
	f := &models.File{
		ID:          models.NewFileID(),
		RunID:       s.env.RunID,
		Name:        name,
		StoragePath: storagePath,
		MimeType:    mimeType,
		SizeBytes:   sizeBytes,
		StepID:      s.env.StepID,
	}
	if err := s.scope.Files().Create(s.ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ResumeAnswer returns the free-text/single/multi-select answer a resumed step was
// relaunched with. Only valid when IsResume() and the checkpoint phase was
// waiting_for_answer.
func (s *Session) ResumeAnswer() (string, bool) {
	if s.resumeInput == nil {
		return "", false
	}
	return s.resumeInput.Payload.Answer, true
}

// ResumeDecision returns the approve/reject/revise decision a resumed step was relaunched
// with. Only valid when IsResume() and the checkpoint phase was waiting_for_approval.
func (s *Session) ResumeDecision() (models.Decision, string, bool) {
	if s.resumeInput == nil {
		return "", "", false
	}
	return s.resumeInput.Payload.Decision, s.resumeInput.Payload.RevisedContent, true
}

// CheckpointData returns the opaque data the step saved on its last pause, if any.
func (s *Session) CheckpointData() map[string]string {
	if s.checkpoint == nil {
		return nil
	}
	return s.checkpoint.Data
}

// AskUser is a HITL primitive: it generates a fresh question id, appends a question event,
// saves a checkpoint recording where to resume, marks the step paused, and returns a
// *PauseRequested for the caller to return immediately from its Run function. It never
// blocks waiting for an answer — the worker process exits and a fresh one is launched on
// resume.
func (s *Session) AskUser(questionType models.QuestionType, question string, options []string, required bool, checkpointData map[string]string) (*PauseRequested, error) {
	questionID := uuid.New().String()
	payload := map[string]string{
		"question": question,
		"type":     string(questionType),
	}
	if len(options) > 0 {
		payload["options"] = joinOptions(options)
	}
	if err := s.scope.Events().Append(s.ctx, models.EventTypeQuestion, s.env.StepID, payload); err != nil {
		return nil, err
	}
	cp := &models.Checkpoint{
		Phase:      models.CheckpointPhaseWaitingForAnswer,
		QuestionID: questionID,
		Data:       checkpointData,
	}
	if err := s.scope.Checkpoints().Save(s.ctx, s.env.StepID, cp); err != nil {
		return nil, err
	}
	if err := s.scope.Steps().UpdateStatus(s.ctx, s.env.StepID, models.StepStatusPaused, store.StepStatusUpdate{}); err != nil {
		return nil, err
	}
	return &PauseRequested{reason: "waiting for user answer"}, nil
}

// RequestApproval is AskUser's symmetric counterpart for approval gates: event type
// approval_request, checkpoint phase waiting_for_approval.
func (s *Session) RequestApproval(description string, draftContent string, risk models.RiskLevel, checkpointData map[string]string) (*PauseRequested, error) {
	approvalID := uuid.New().String()
	payload := map[string]string{
		"description": description,
		"riskLevel":   string(risk),
	}
	if draftContent != "" {
		payload["draftContent"] = draftContent
	}
	if err := s.scope.Events().Append(s.ctx, models.EventTypeApprovalRequest, s.env.StepID, payload); err != nil {
		return nil, err
	}
	cp := &models.Checkpoint{
		Phase:      models.CheckpointPhaseWaitingForApproval,
		QuestionID: approvalID,
		Data:       checkpointData,
	}
	if err := s.scope.Checkpoints().Save(s.ctx, s.env.StepID, cp); err != nil {
		return nil, err
	}
	if err := s.scope.Steps().UpdateStatus(s.ctx, s.env.StepID, models.StepStatusPaused, store.StepStatusUpdate{}); err != nil {
		return nil, err
	}
	return &PauseRequested{reason: "waiting for approval"}, nil
}

func joinOptions(options []string) string {
	out := ""
	for i, o := range options {
		if i > 0 {
			out += "|"
		}
		out += o
	}
	return out
}
