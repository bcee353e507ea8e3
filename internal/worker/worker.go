// Package worker implements the step lifecycle protocol shared by every worker container:
// phase dispatch between a fresh start and a HITL resume, checkpoint save/load, and the
// pause-and-exit primitives that let a step wait on a human without holding a Pod open.
package worker

import (
	"context"
	"errors"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/models"
	"github.com/playbookrun/controller/internal/store"
)

// Outcome is the terminal result of one worker invocation. Exactly one of the three
// booleans below is true; the top-level driver (cmd/playbook-worker) translates Outcome
// into the process exit code, never the library itself.
type Outcome struct {
	Completed bool
	Failed    bool
	Paused    bool // includes the skipped-on-abort and skipped-on-resume-of-terminal cases

	ResultSummary string
	Err           *models.ErrorInfo
}

func completedOutcome(summary string) Outcome { return Outcome{Completed: true, ResultSummary: summary} }
func failedOutcome(err *models.ErrorInfo) Outcome { return Outcome{Failed: true, Err: err} }
func pausedOutcome() Outcome { return Outcome{Paused: true} }

// PauseRequested is returned by Run when a step invokes AskUser or RequestApproval. It is
// the explicit terminal value that replaces "never returning" from a HITL primitive: the
// primitive itself performs all of the document-store bookkeeping and returns this value,
// and Run propagates it straight back to Execute, which translates it into Outcome{Paused}.
// No exception, goroutine exit, or process-level longjmp is involved.
type PauseRequested struct {
	reason string
}

func (p *PauseRequested) Error() string { return "pause requested: " + p.reason }

// Run is the signature every step's content function implements. sess.IsResume() is false
// on a brand new launch and true when resuming from a checkpoint; when resuming, the resume
// input is available through sess.ResumeAnswer or sess.ResumeDecision and the saved data
// through sess.CheckpointData. Execute does not dispatch on the checkpoint's phase: the same
// Run is called whether the step paused on a question or on an approval.
type Run func(ctx context.Context, sess *Session) (resultSummary string, err error)

// StartupEnv is the set of environment variables a worker container reads at startup.
type StartupEnv struct {
	RunID           models.RunID
	OrgID           models.OrgID
	StepID          string
	Namespace       string
	ResumeThreadID  string // empty on a fresh launch
}

// Execute drives one worker container invocation end to end: phase dispatch, the step's Run
// function, and translation of a HITL pause into a clean terminal Outcome. It never exits
// the process; cmd/playbook-worker's main is the only place that calls os.Exit.
func Execute(ctx context.Context, env StartupEnv, scope store.RunScope, artifacts blob.Store, secrets store.SecretStore, log logger.Log, run Run) Outcome {
	sess := &Session{ctx: ctx, env: env, scope: scope, blob: artifacts, secrets: secrets, log: log}

	if env.ResumeThreadID == "" {
		return executeFresh(ctx, sess, run)
	}
	return executeResume(ctx, sess, run)
}

func executeFresh(ctx context.Context, sess *Session, run Run) Outcome {
	if err := sess.scope.Steps().UpdateStatus(ctx, sess.env.StepID, models.StepStatusRunning, store.StepStatusUpdate{}); err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	if err := sess.scope.Events().Append(ctx, models.EventTypeStepStarted, sess.env.StepID, nil); err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	return runAndFinalize(ctx, sess, run)
}

func executeResume(ctx context.Context, sess *Session, run Run) Outcome {
	runDoc, err := sess.scope.Runs().Read(ctx)
	if err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	if runDoc.Status == models.RunStatusAborted {
		return skipOnAbort(ctx, sess)
	}

	step, err := sess.scope.Steps().Read(ctx, sess.env.StepID)
	if err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	if step.Status.IsTerminal() {
		// Resume of an already-terminal step is a no-op: verify and exit cleanly.
		return pausedOutcome()
	}
	if step.Checkpoint == nil {
		return failedOutcome(&models.ErrorInfo{Code: gerror.ErrCodeInternal, Message: "resume requested but no checkpoint is present"})
	}

	input, err := sess.scope.Inputs().ReadByQuestionID(ctx, step.Checkpoint.QuestionID)
	if err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	if input == nil {
		return failedOutcome(&models.ErrorInfo{Code: gerror.ErrCodeInternal, Message: "resume requested but no matching input is present"})
	}
	if input.Type == models.InputTypeAbort {
		return skipOnAbort(ctx, sess)
	}

	sess.checkpoint = step.Checkpoint
	sess.resumeInput = input
	if err := sess.scope.Steps().UpdateStatus(ctx, sess.env.StepID, models.StepStatusRunning, store.StepStatusUpdate{}); err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	return runAndFinalize(ctx, sess, run)
}

func skipOnAbort(ctx context.Context, sess *Session) Outcome {
	_ = sess.scope.Steps().UpdateStatus(ctx, sess.env.StepID, models.StepStatusSkipped, store.StepStatusUpdate{})
	_ = sess.scope.Checkpoints().Clear(ctx, sess.env.StepID)
	return pausedOutcome()
}

func runAndFinalize(ctx context.Context, sess *Session, run Run) Outcome {
	summary, err := run(ctx, sess)
	if err != nil {
		var pr *PauseRequested
		if asPauseRequested(err, &pr) {
			return pausedOutcome()
		}
		errInfo := internalErrInfo(err)
		_ = sess.scope.Events().Append(ctx, models.EventTypeStepFailed, sess.env.StepID, models.ProgressPayload(errInfo.Message))
		_ = sess.scope.Steps().UpdateStatus(ctx, sess.env.StepID, models.StepStatusFailed, store.StepStatusUpdate{Error: errInfo})
		_ = sess.scope.Checkpoints().Clear(ctx, sess.env.StepID)
		return failedOutcome(errInfo)
	}

	if err := sess.scope.Events().Append(ctx, models.EventTypeStepCompleted, sess.env.StepID, models.ProgressPayload(summary)); err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	if err := sess.scope.Steps().UpdateStatus(ctx, sess.env.StepID, models.StepStatusCompleted, store.StepStatusUpdate{ResultSummary: summary}); err != nil {
		return failedOutcome(internalErrInfo(err))
	}
	_ = sess.scope.Checkpoints().Clear(ctx, sess.env.StepID)
	return completedOutcome(summary)
}

func asPauseRequested(err error, target **PauseRequested) bool {
	pr, ok := err.(*PauseRequested)
	if ok {
		*target = pr
	}
	return ok
}

func internalErrInfo(err error) *models.ErrorInfo {
	var gErr gerror.Error
	if errors.As(err, &gErr) {
		return &models.ErrorInfo{Code: gErr.Code(), Message: gErr.Message()}
	}
	return &models.ErrorInfo{Code: gerror.ErrCodeInternal, Message: err.Error()}
}
