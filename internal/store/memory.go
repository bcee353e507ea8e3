package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/internal/models"
)

// MemoryStore is an in-memory Store used by controller, worker, and resume-trigger tests in
// place of a live Firestore instance. It honors the same set-once-terminal and
// server-timestamp semantics as FirestoreStore.
type MemoryStore struct {
	mu      sync.Mutex
	runs    map[string]*models.Run
	steps   map[string]map[string]*models.Step // runID -> stepID -> step
	events  map[string][]*models.Event
	inputs  map[string][]*models.Input
	files   map[string][]*models.File
	secrets map[string]*models.OAuthToken
	aiCfg   map[string]*models.AIConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*models.Run),
		steps:   make(map[string]map[string]*models.Step),
		events:  make(map[string][]*models.Event),
		inputs:  make(map[string][]*models.Input),
		files:   make(map[string][]*models.File),
		secrets: make(map[string]*models.OAuthToken),
		aiCfg:   make(map[string]*models.AIConfig),
	}
}

// PutRun seeds a run document, for test setup.
func (m *MemoryStore) PutRun(run *models.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID.String()] = run
}

// PutSecret seeds an OAuth token, for test setup.
func (m *MemoryStore) PutSecret(provider string, token *models.OAuthToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[provider] = token
}

// PutAIConfig seeds an org's AI config, for test setup.
func (m *MemoryStore) PutAIConfig(cfg *models.AIConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aiCfg["ai_config"] = cfg
}

func (m *MemoryStore) ForRun(orgID models.OrgID, runID models.RunID) RunScope {
	return &memoryRunScope{store: m, orgID: orgID, runID: runID}
}

func (m *MemoryStore) Secrets(orgID models.OrgID) SecretStore {
	return &memorySecretStore{store: m}
}

type memoryRunScope struct {
	store *MemoryStore
	orgID models.OrgID
	runID models.RunID
}

func (r *memoryRunScope) Runs() RunStore               { return (*memoryRunStore)(r) }
func (r *memoryRunScope) Steps() StepStore             { return (*memoryStepStore)(r) }
func (r *memoryRunScope) Events() EventStore           { return (*memoryEventStore)(r) }
func (r *memoryRunScope) Inputs() InputStore           { return (*memoryInputStore)(r) }
func (r *memoryRunScope) Checkpoints() CheckpointStore { return (*memoryCheckpointStore)(r) }
func (r *memoryRunScope) Files() FileStore             { return (*memoryFileStore)(r) }

type memoryRunStore memoryRunScope

func (r *memoryRunStore) Read(ctx context.Context) (*models.Run, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[r.runID.String()]
	if !ok {
		return nil, gerror.NewErrNotFound("run not found").EDetail("id", r.runID.String())
	}
	copied := *run
	return &copied, nil
}

func (r *memoryRunStore) UpdateStatus(ctx context.Context, status models.RunStatus, upd RunStatusUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[r.runID.String()]
	if !ok {
		return gerror.NewErrNotFound("run not found").EDetail("id", r.runID.String())
	}
	if run.Status.IsTerminal() {
		return nil
	}
	run.Status = status
	run.UpdatedAt = models.NewTime(time.Now())
	if upd.Error != nil {
		run.Error = upd.Error
	}
	if upd.Summary != "" {
		run.Summary = upd.Summary
	}
	if upd.CurrentStepID != "" {
		run.CurrentStepID = upd.CurrentStepID
	}
	if status.IsTerminal() {
		run.CompletedAt = models.NewTimePtr(time.Now())
	}
	return nil
}

func (r *memoryRunStore) Heartbeat(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[r.runID.String()]
	if !ok {
		return gerror.NewErrNotFound("run not found").EDetail("id", r.runID.String())
	}
	run.LastHeartbeat = models.NewTime(time.Now())
	return nil
}

func (r *memoryRunStore) ReadContext(ctx context.Context) (models.Context, error) {
	run, err := (*memoryRunStore)(r).Read(ctx)
	if err != nil {
		return models.Context{}, err
	}
	return run.Context, nil
}

type memoryStepStore memoryRunScope

func (r *memoryStepStore) stepMap() map[string]*models.Step {
	m, ok := r.store.steps[r.runID.String()]
	if !ok {
		m = make(map[string]*models.Step)
		r.store.steps[r.runID.String()] = m
	}
	return m
}

func (r *memoryStepStore) Initialize(ctx context.Context, steps []*models.Step) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m := r.stepMap()
	for _, s := range steps {
		copied := *s
		m[s.ID] = &copied
	}
	return nil
}

func (r *memoryStepStore) UpdateStatus(ctx context.Context, stepID string, status models.StepStatus, upd StepStatusUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	step, ok := r.stepMap()[stepID]
	if !ok {
		return gerror.NewErrNotFound("step not found").EDetail("id", stepID)
	}
	if step.Status.IsTerminal() {
		return nil
	}
	step.Status = status
	step.UpdatedAt = models.NewTime(time.Now())
	if upd.Error != nil {
		step.Error = upd.Error
	}
	if upd.ResultSummary != "" {
		step.ResultSummary = upd.ResultSummary
	}
	if upd.JobName != "" {
		step.JobName = upd.JobName
	}
	if status.IsTerminal() {
		step.CompletedAt = models.NewTimePtr(time.Now())
		step.Checkpoint = nil
	}
	return nil
}

func (r *memoryStepStore) ReadStatus(ctx context.Context, stepID string) (models.StepStatus, error) {
	step, err := r.Read(ctx, stepID)
	if err != nil {
		return "", err
	}
	return step.Status, nil
}

func (r *memoryStepStore) Read(ctx context.Context, stepID string) (*models.Step, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	step, ok := r.stepMap()[stepID]
	if !ok {
		return nil, gerror.NewErrNotFound("step not found").EDetail("id", stepID)
	}
	copied := *step
	return &copied, nil
}

func (r *memoryStepStore) ReadAll(ctx context.Context) ([]*models.Step, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Step
	for _, s := range r.stepMap() {
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memoryStepStore) ReadAllResults(ctx context.Context) (map[string]string, error) {
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

type memoryEventStore memoryRunScope

func (r *memoryEventStore) Append(ctx context.Context, eventType models.EventType, stepID string, payload map[string]string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	event := models.NewEvent(r.runID, eventType, stepID, payload)
	event.Timestamp = models.NewTime(time.Now())
	r.store.events[r.runID.String()] = append(r.store.events[r.runID.String()], event)
	return nil
}

// Events returns every event appended for this run, in append order, for test assertions.
func (m *MemoryStore) Events(runID models.RunID) []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Event(nil), m.events[runID.String()]...)
}

type memoryInputStore memoryRunScope

func (r *memoryInputStore) ReadByQuestionID(ctx context.Context, id string) (*models.Input, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, in := range r.store.inputs[r.runID.String()] {
		if in.QuestionID == id || in.ApprovalID == id {
			copied := *in
			return &copied, nil
		}
	}
	return nil, nil
}

// PutInput seeds (or simulates a UI write of) an input document, for test setup and for the
// resume trigger's own tests.
func (m *MemoryStore) PutInput(runID models.RunID, in *models.Input) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.RunID = runID
	m.inputs[runID.String()] = append(m.inputs[runID.String()], in)
}

type memoryCheckpointStore memoryRunScope

func (r *memoryCheckpointStore) Save(ctx context.Context, stepID string, cp *models.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s := r.stepMap()[stepID]
	if s == nil {
		return gerror.NewErrNotFound("step not found").EDetail("id", stepID)
	}
	s.Checkpoint = cp
	return nil
}

func (r *memoryCheckpointStore) Load(ctx context.Context, stepID string) (*models.Checkpoint, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s := r.stepMap()[stepID]
	if s == nil {
		return nil, gerror.NewErrNotFound("step not found").EDetail("id", stepID)
	}
	return s.Checkpoint, nil
}

func (r *memoryCheckpointStore) Clear(ctx context.Context, stepID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s := r.stepMap()[stepID]
	if s == nil {
		return gerror.NewErrNotFound("step not found").EDetail("id", stepID)
	}
	s.Checkpoint = nil
	return nil
}

type memoryFileStore memoryRunScope

func (r *memoryFileStore) Create(ctx context.Context, f *models.File) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *f
	copied.RunID = r.runID
	copied.CreatedAt = models.NewTime(time.Now())
	r.store.files[r.runID.String()] = append(r.store.files[r.runID.String()], &copied)
	return nil
}

func (r *memoryFileStore) ReadAll(ctx context.Context) ([]*models.File, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]*models.File(nil), r.store.files[r.runID.String()]...), nil
}

type memorySecretStore struct {
	store *MemoryStore
}

func (s *memorySecretStore) ReadOAuthToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	token, ok := s.store.secrets[provider]
	if !ok {
		return nil, gerror.NewErrNotFound("secret not found").EDetail("provider", provider)
	}
	return token, nil
}

func (s *memorySecretStore) ReadAIConfig(ctx context.Context) (*models.AIConfig, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	cfg, ok := s.store.aiCfg["ai_config"]
	if !ok {
		return nil, gerror.NewErrNotFound("ai config not found")
	}
	return cfg, nil
}
