package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/models"
)

// FirestoreStore is the production Store, backed by a cloud.google.com/go/firestore client.
// Every operation here is a single request; retries are the caller's responsibility, per the
// adapter's best-effort-retriable contract.
type FirestoreStore struct {
	client *firestore.Client
	log    logger.Log
}

func NewFirestoreStore(client *firestore.Client, logFactory logger.LogFactory) *FirestoreStore {
	return &FirestoreStore{client: client, log: logFactory("firestore-store")}
}

func (s *FirestoreStore) ForRun(orgID models.OrgID, runID models.RunID) RunScope {
	return &firestoreRunScope{
		client: s.client,
		log:    s.log,
		orgID:  orgID,
		runID:  runID,
		runRef: s.client.Collection("orgs").Doc(orgID.String()).Collection("playbook_runs").Doc(runID.String()),
	}
}

func (s *FirestoreStore) Secrets(orgID models.OrgID) SecretStore {
	return &firestoreSecretStore{
		col: s.client.Collection("orgs").Doc(orgID.String()).Collection("secrets"),
	}
}

type firestoreRunScope struct {
	client *firestore.Client
	log    logger.Log
	orgID  models.OrgID
	runID  models.RunID
	runRef *firestore.DocumentRef
}

func (r *firestoreRunScope) Runs() RunStore               { return (*firestoreRunStore)(r) }
func (r *firestoreRunScope) Steps() StepStore             { return (*firestoreStepStore)(r) }
func (r *firestoreRunScope) Events() EventStore           { return (*firestoreEventStore)(r) }
func (r *firestoreRunScope) Inputs() InputStore           { return (*firestoreInputStore)(r) }
func (r *firestoreRunScope) Checkpoints() CheckpointStore { return (*firestoreCheckpointStore)(r) }
func (r *firestoreRunScope) Files() FileStore             { return (*firestoreFileStore)(r) }

type firestoreRunStore firestoreRunScope

func (r *firestoreRunStore) Read(ctx context.Context) (*models.Run, error) {
	snap, err := r.runRef.Get(ctx)
	if err != nil {
		return nil, translateErr(err, "run", r.runID.String())
	}
	var run models.Run
	if err := snap.DataTo(&run); err != nil {
		return nil, gerror.NewErrInternal().Wrap(err)
	}
	run.ID = r.runID
	run.OrgID = r.orgID
	return &run, nil
}

func (r *firestoreRunStore) UpdateStatus(ctx context.Context, status models.RunStatus, upd RunStatusUpdate) error {
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.runRef)
		if err != nil && !isNotFound(err) {
			return translateErr(err, "run", r.runID.String())
		}
		if err == nil {
			var existing models.Run
			if derr := snap.DataTo(&existing); derr == nil && existing.Status.IsTerminal() {
				return nil // terminal status is set-once; silently no-op like the worker-side contract expects
			}
		}
		fields := []firestore.Update{
			{Path: "status", Value: status},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}
		if upd.Error != nil {
			fields = append(fields, firestore.Update{Path: "error", Value: upd.Error})
		}
		if upd.Summary != "" {
			fields = append(fields, firestore.Update{Path: "summary", Value: upd.Summary})
		}
		if upd.CurrentStepID != "" {
			fields = append(fields, firestore.Update{Path: "currentStepId", Value: upd.CurrentStepID})
		}
		if status.IsTerminal() {
			fields = append(fields, firestore.Update{Path: "completedAt", Value: firestore.ServerTimestamp})
		}
		return tx.Update(r.runRef, fields)
	})
}

func (r *firestoreRunStore) Heartbeat(ctx context.Context) error {
	_, err := r.runRef.Update(ctx, []firestore.Update{
		{Path: "lastHeartbeat", Value: firestore.ServerTimestamp},
	})
	return translateErr(err, "run", r.runID.String())
}

func (r *firestoreRunStore) ReadContext(ctx context.Context) (models.Context, error) {
	run, err := (*firestoreRunStore)(r).Read(ctx)
	if err != nil {
		return models.Context{}, err
	}
	return run.Context, nil
}

type firestoreStepStore firestoreRunScope

func (r *firestoreStepStore) col() *firestore.CollectionRef {
	return r.runRef.Collection("steps")
}

func (r *firestoreStepStore) Initialize(ctx context.Context, steps []*models.Step) error {
	batch := r.client.Batch()
	for _, s := range steps {
		batch.Set(r.col().Doc(s.ID), s)
	}
	_, err := batch.Commit(ctx)
	return translateErr(err, "step", "")
}

func (r *firestoreStepStore) UpdateStatus(ctx context.Context, stepID string, status models.StepStatus, upd StepStatusUpdate) error {
	ref := r.col().Doc(stepID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return translateErr(err, "step", stepID)
		}
		if err == nil {
			var existing models.Step
			if derr := snap.DataTo(&existing); derr == nil && existing.Status.IsTerminal() {
				return nil
			}
		}
		fields := []firestore.Update{
			{Path: "status", Value: status},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}
		if upd.Error != nil {
			fields = append(fields, firestore.Update{Path: "error", Value: upd.Error})
		}
		if upd.ResultSummary != "" {
			fields = append(fields, firestore.Update{Path: "resultSummary", Value: upd.ResultSummary})
		}
		if upd.JobName != "" {
			fields = append(fields, firestore.Update{Path: "jobName", Value: upd.JobName})
		}
		if status.IsTerminal() {
			fields = append(fields, firestore.Update{Path: "completedAt", Value: firestore.ServerTimestamp})
			fields = append(fields, firestore.Update{Path: "checkpoint", Value: firestore.Delete})
		}
		return tx.Update(ref, fields)
	})
}

func (r *firestoreStepStore) ReadStatus(ctx context.Context, stepID string) (models.StepStatus, error) {
	step, err := r.Read(ctx, stepID)
	if err != nil {
		return "", err
	}
	return step.Status, nil
}

func (r *firestoreStepStore) Read(ctx context.Context, stepID string) (*models.Step, error) {
	snap, err := r.col().Doc(stepID).Get(ctx)
	if err != nil {
		return nil, translateErr(err, "step", stepID)
	}
	var step models.Step
	if err := snap.DataTo(&step); err != nil {
		return nil, gerror.NewErrInternal().Wrap(err)
	}
	step.ID = stepID
	step.RunID = r.runID
	return &step, nil
}

func (r *firestoreStepStore) ReadAll(ctx context.Context) ([]*models.Step, error) {
	docs, err := r.col().Documents(ctx).GetAll()
	if err != nil {
		return nil, translateErr(err, "step", "")
	}
	steps := make([]*models.Step, 0, len(docs))
	for _, d := range docs {
		var step models.Step
		if err := d.DataTo(&step); err != nil {
			return nil, gerror.NewErrInternal().Wrap(err)
		}
		step.ID = d.Ref.ID
		step.RunID = r.runID
		steps = append(steps, &step)
	}
	return steps, nil
}

func (r *firestoreStepStore) ReadAllResults(ctx context.Context) (map[string]string, error) {
	steps, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	results := make(map[string]string)
	for _, s := range steps {
		if s.Status == models.StepStatusCompleted {
			results[s.ID] = s.ResultSummary
		}
	}
	return results, nil
}

type firestoreEventStore firestoreRunScope

func (r *firestoreEventStore) Append(ctx context.Context, eventType models.EventType, stepID string, payload map[string]string) error {
	event := models.NewEvent(r.runID, eventType, stepID, payload)
	_, _, err := r.runRef.Collection("events").Add(ctx, event)
	return translateErr(err, "event", "")
}

type firestoreInputStore firestoreRunScope

func (r *firestoreInputStore) ReadByQuestionID(ctx context.Context, id string) (*models.Input, error) {
	col := r.runRef.Collection("inputs")
	for _, field := range []string{"questionId", "approvalId"} {
		docs, err := col.Where(field, "==", id).Limit(1).Documents(ctx).GetAll()
		if err != nil {
			return nil, translateErr(err, "input", id)
		}
		if len(docs) > 0 {
			var input models.Input
			if err := docs[0].DataTo(&input); err != nil {
				return nil, gerror.NewErrInternal().Wrap(err)
			}
			input.RunID = r.runID
			return &input, nil
		}
	}
	return nil, nil
}

type firestoreCheckpointStore firestoreRunScope

func (r *firestoreCheckpointStore) Save(ctx context.Context, stepID string, cp *models.Checkpoint) error {
	_, err := r.runRef.Collection("steps").Doc(stepID).Update(ctx, []firestore.Update{
		{Path: "checkpoint", Value: cp},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	return translateErr(err, "step", stepID)
}

func (r *firestoreCheckpointStore) Load(ctx context.Context, stepID string) (*models.Checkpoint, error) {
	step, err := (*firestoreStepStore)(r).Read(ctx, stepID)
	if err != nil {
		return nil, err
	}
	return step.Checkpoint, nil
}

func (r *firestoreCheckpointStore) Clear(ctx context.Context, stepID string) error {
	_, err := r.runRef.Collection("steps").Doc(stepID).Update(ctx, []firestore.Update{
		{Path: "checkpoint", Value: firestore.Delete},
	})
	return translateErr(err, "step", stepID)
}

type firestoreFileStore firestoreRunScope

func (r *firestoreFileStore) Create(ctx context.Context, f *models.File) error {
	_, _, err := r.runRef.Collection("files").Add(ctx, f)
	return translateErr(err, "file", "")
}

func (r *firestoreFileStore) ReadAll(ctx context.Context) ([]*models.File, error) {
	docs, err := r.runRef.Collection("files").Documents(ctx).GetAll()
	if err != nil {
		return nil, translateErr(err, "file", "")
	}
	files := make([]*models.File, 0, len(docs))
	for _, d := range docs {
		var f models.File
		if err := d.DataTo(&f); err != nil {
			return nil, gerror.NewErrInternal().Wrap(err)
		}
		f.RunID = r.runID
		files = append(files, &f)
	}
	return files, nil
}

type firestoreSecretStore struct {
	col *firestore.CollectionRef
}

func (s *firestoreSecretStore) ReadOAuthToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	snap, err := s.col.Doc(provider).Get(ctx)
	if err != nil {
		return nil, translateErr(err, "secret", provider)
	}
	var token models.OAuthToken
	if err := snap.DataTo(&token); err != nil {
		return nil, gerror.NewErrInternal().Wrap(err)
	}
	return &token, nil
}

func (s *firestoreSecretStore) ReadAIConfig(ctx context.Context) (*models.AIConfig, error) {
	snap, err := s.col.Doc("ai_config").Get(ctx)
	if err != nil {
		return nil, translateErr(err, "secret", "ai_config")
	}
	var cfg models.AIConfig
	if err := snap.DataTo(&cfg); err != nil {
		return nil, gerror.NewErrInternal().Wrap(err)
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func translateErr(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return gerror.NewErrNotFound(kind + " not found").EDetail("id", id)
	}
	return gerror.NewErrInternal().Wrap(err)
}
