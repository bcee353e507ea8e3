// Package resume implements the external event handler that reacts to a user writing an
// input document: it re-reads that document from the state store (never trusting the
// triggering webhook's payload as authoritative) and either launches a fresh worker Job for
// the paused step with RESUME_THREAD_ID set, or marks the run aborted.
package resume

import (
	"context"
	"regexp"
	"strings"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/cluster"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

// Notification is the untrusted payload a webhook delivery (or, in production, a Firestore
// write-triggered Eventarc push) carries. QuestionID is whichever of a question's or an
// approval request's id the write responded to; Trigger always re-reads the input itself
// rather than acting on any other field here.
type Notification struct {
	OrgID      string
	RunID      string
	StepID     string
	QuestionID string
	// Namespace is set by the HTTP handler from its own config, never from the webhook
	// body: the cluster namespace a resume Job launches into is an operator decision, not
	// something an external caller should be able to influence.
	Namespace string
}

// Trigger launches resume workers in response to Notifications.
type Trigger struct {
	store         store.Store
	cluster       cluster.Adapter
	imageRegistry string
	log           logger.Log
}

func NewTrigger(s store.Store, adapter cluster.Adapter, imageRegistry string, logFactory logger.LogFactory) *Trigger {
	return &Trigger{store: s, cluster: adapter, imageRegistry: imageRegistry, log: logFactory("resume-trigger")}
}

// HandleInputWritten re-reads the input the notification points at and, depending on what it
// finds, launches a resume worker, marks the run aborted, or does nothing. A nil error does
// not mean a worker was launched — duplicate or stale notifications are intentionally no-ops.
func (t *Trigger) HandleInputWritten(ctx context.Context, n Notification) error {
	if n.OrgID == "" || n.RunID == "" || n.StepID == "" || n.QuestionID == "" {
		return gerror.NewErrValidationFailed("org id, run id, step id and question id are all required")
	}
	runID, err := models.RunIDFromString(n.RunID)
	if err != nil {
		return gerror.NewErrValidationFailed("invalid run id").Wrap(err)
	}
	orgID := models.OrgID(n.OrgID)
	scope := t.store.ForRun(orgID, runID)
	log := t.log.WithField("runId", n.RunID).WithField("stepId", n.StepID)

	input, err := scope.Inputs().ReadByQuestionID(ctx, n.QuestionID)
	if err != nil {
		return err
	}
	if input == nil {
		log.Warn("resume trigger fired before its input document was readable, ignoring")
		return nil
	}

	if input.Type == models.InputTypeAbort {
		log.Info("user input aborts the run")
		return scope.Runs().UpdateStatus(ctx, models.RunStatusAborted, store.RunStatusUpdate{Summary: "aborted by user"})
	}

	step, err := scope.Steps().Read(ctx, n.StepID)
	if err != nil {
		return err
	}
	if step.Status != models.StepStatusPaused {
		log.Infof("step is %s, not paused; ignoring stale resume notification", step.Status)
		return nil
	}
	if !input.MatchesCheckpoint(step.Checkpoint) {
		log.Warn("input does not match the step's current checkpoint, ignoring")
		return nil
	}

	image, err := cluster.ResolveImage(step.AgentImage, t.imageRegistry)
	if err != nil {
		return err
	}

	jobName, err := t.cluster.CreateStepJob(ctx, cluster.CreateJobRequest{
		RunID:          n.RunID,
		OrgID:          n.OrgID,
		StepID:         n.StepID,
		Image:          image,
		Namespace:      n.Namespace,
		TimeoutSeconds: int64(step.TimeoutMinutes) * 60,
		JobNameSuffix:  "resume-" + jobNameSlug(n.QuestionID),
		Env: map[string]string{
			"RESUME_THREAD_ID": n.QuestionID,
		},
	})
	if err != nil {
		return err
	}
	log.WithField("jobName", jobName).Info("launched resume worker")
	return scope.Steps().UpdateStatus(ctx, n.StepID, models.StepStatusRunning, store.StepStatusUpdate{JobName: jobName})
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// jobNameSlug turns an arbitrary question/approval id into a short, DNS-1123-safe token so
// the same input can never produce two different resume Job names, and a duplicate
// notification for the same input reliably targets the same (already-idempotent) Job.
func jobNameSlug(id string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(id), "-")
	s = strings.Trim(s, "-")
	if len(s) > 32 {
		s = s[:32]
	}
	if s == "" {
		s = "input"
	}
	return s
}
