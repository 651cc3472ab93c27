// -----------------------------------------------------------------------
// Task Runner - background work with events marshaled onto the control loop
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// FailureMessage is the only failure text users see; details go to the log file
const FailureMessage = "see log file"

// WorkFunc is the body of a task, run off the control loop
type WorkFunc func(tc *TaskContext) (models.TaskResult, error)

// EventHandler receives task events on the control loop
type EventHandler func(event models.TaskEvent)

// Runner starts tasks and marshals their events through the Dispatcher.
// There is no cancellation: a started task ends in completed or failed.
type Runner struct {
	ctx              context.Context
	dispatcher       *Dispatcher
	submitter        Submitter
	progressInterval time.Duration
	logger           arbor.ILogger
}

// NewRunner creates a runner. ctx is handed to every task body for collaborator calls.
func NewRunner(ctx context.Context, dispatcher *Dispatcher, submitter Submitter, progressInterval time.Duration, logger arbor.ILogger) *Runner {
	return &Runner{
		ctx:              ctx,
		dispatcher:       dispatcher,
		submitter:        submitter,
		progressInterval: progressInterval,
		logger:           logger,
	}
}

// Dispatcher returns the control loop the runner posts to
func (r *Runner) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// Run starts work and returns immediately with a snapshot of the pending task
func (r *Runner) Run(kind models.TaskKind, input models.TaskInput, work WorkFunc, onEvent EventHandler) models.Task {
	task := &models.Task{
		ID:        common.NewTaskID(),
		Kind:      kind,
		Input:     input,
		State:     models.TaskStatePending,
		CreatedAt: time.Now(),
	}
	snapshot := *task

	tc := &TaskContext{
		runner:  r,
		task:    task,
		onEvent: onEvent,
		logger:  r.logger.WithCorrelationId(task.ID),
	}
	tc.progress = NewProgressReporter(NewProgressLimiter(r.progressInterval), tc.postProgress)

	r.submitter.Submit(fmt.Sprintf("task-%s", kind), func() {
		r.execute(tc, work)
	})

	return snapshot
}

func (r *Runner) execute(tc *TaskContext, work WorkFunc) {
	tc.setState(models.TaskStateRunning)
	start := time.Now()

	result, err := r.invoke(tc, work)
	if err != nil {
		tc.logger.Error().
			Err(err).
			Str("task_id", tc.task.ID).
			Str("kind", string(tc.task.Kind)).
			Dur("duration", time.Since(start)).
			Msg("Task failed")
		tc.fail()
		return
	}

	tc.logger.Debug().
		Str("task_id", tc.task.ID).
		Str("kind", string(tc.task.Kind)).
		Str("result", result.Result.String()).
		Dur("duration", time.Since(start)).
		Msg("Task completed")
	tc.complete(result)
}

// invoke runs work, turning a panic into an error
func (r *Runner) invoke(tc *TaskContext, work WorkFunc) (result models.TaskResult, err error) {
	defer common.RecoverPanic(tc.logger, tc.task.ID, func(value interface{}, _ string) {
		err = fmt.Errorf("task panicked: %v", value)
	})
	return work(tc)
}

// TaskContext is what a task body uses to talk to the control loop.
// Events posted after the terminal event are dropped.
type TaskContext struct {
	runner   *Runner
	task     *models.Task
	onEvent  EventHandler
	progress *ProgressReporter
	logger   arbor.ILogger

	mu       sync.Mutex
	finished bool
}

func (tc *TaskContext) ID() string {
	return tc.task.ID
}

// Context is the context collaborator calls should use
func (tc *TaskContext) Context() context.Context {
	return tc.runner.ctx
}

// Logger is correlated with the task ID
func (tc *TaskContext) Logger() arbor.ILogger {
	return tc.logger
}

// Log appends a line to the user-visible log
func (tc *TaskContext) Log(text string) {
	tc.post(models.TaskEvent{Type: models.TaskEventLog, Text: text})
}

func (tc *TaskContext) Logf(format string, args ...interface{}) {
	tc.Log(fmt.Sprintf(format, args...))
}

// Status replaces the status text
func (tc *TaskContext) Status(text string) {
	tc.post(models.TaskEvent{Type: models.TaskEventStatusChanged, Text: text})
}

// Progress returns the callback handed to collaborators
func (tc *TaskContext) Progress() interfaces.ProgressFunc {
	return tc.progress.Report
}

func (tc *TaskContext) postProgress(percent int) {
	tc.post(models.TaskEvent{Type: models.TaskEventProgress, Percent: percent})
}

func (tc *TaskContext) complete(result models.TaskResult) {
	tc.post(models.TaskEvent{Type: models.TaskEventCompleted, Result: result})
}

func (tc *TaskContext) fail() {
	tc.post(models.TaskEvent{Type: models.TaskEventFailed, Text: FailureMessage})
}

func (tc *TaskContext) setState(state models.TaskState) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.task.State = state
}

// post holds the lock across Post so events reach the queue in the order they were produced
func (tc *TaskContext) post(event models.TaskEvent) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.finished {
		return
	}

	event.TaskID = tc.task.ID
	event.Kind = tc.task.Kind

	switch event.Type {
	case models.TaskEventProgress:
		tc.task.Progress = event.Percent
	case models.TaskEventCompleted:
		tc.finished = true
		tc.task.State = models.TaskStateCompleted
		result := event.Result
		tc.task.Result = &result
	case models.TaskEventFailed:
		tc.finished = true
		tc.task.State = models.TaskStateFailed
		tc.task.Error = event.Text
	}
	if tc.finished {
		now := time.Now()
		tc.task.FinishedAt = &now
	}

	handler := tc.onEvent
	if handler == nil {
		return
	}
	if !tc.runner.dispatcher.Post(func() { handler(event) }) {
		tc.logger.Warn().
			Str("task_id", tc.task.ID).
			Str("event", string(event.Type)).
			Msg("Control loop stopped, task event dropped")
	}
}
