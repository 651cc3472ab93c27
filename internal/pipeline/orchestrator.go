// -----------------------------------------------------------------------
// Pipeline Orchestrator - sequences analyze -> emit -> search runs
// -----------------------------------------------------------------------

package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/artifacts"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
)

// DefaultOpenDelay lets the view settle before a report is opened
const DefaultOpenDelay = 100 * time.Millisecond

// Options are the orchestrator's view of the configuration
type Options struct {
	OutputRoot    string
	AggregateName string
	BatchPattern  string
	AutoOpen      bool
	OpenDelay     time.Duration
}

// OptionsFromConfig maps the application config onto Options
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		OutputRoot:    config.Output.Root,
		AggregateName: config.Output.AggregateName,
		BatchPattern:  config.Preferences.BatchPattern,
		AutoOpen:      config.Preferences.AutoOpen,
		OpenDelay:     common.ParseDurationOr(config.Preferences.OpenDelay, DefaultOpenDelay),
	}
}

// Collaborators are the external services a run calls into
type Collaborators struct {
	Analyzer interfaces.ModelAnalyzer
	Searcher interfaces.LinkSearcher
	Batcher  interfaces.BatchProcessor
}

// lastResult is the direct handle of the most recent successful single run
type lastResult struct {
	workflow string
	path     string
}

// Orchestrator drives pipeline runs. Run state is only touched from the control loop;
// Analyze and Batch validate their input and hand the rest to it.
type Orchestrator struct {
	runner        *tasks.Runner
	dispatcher    *tasks.Dispatcher
	collaborators Collaborators
	resolver      *artifacts.Resolver
	opener        interfaces.Opener
	view          interfaces.View
	options       Options
	logger        arbor.ILogger

	observersMu sync.RWMutex
	observers   []interfaces.RunObserver

	handlesMu  sync.Mutex
	lastSingle *lastResult
	lastBatch  string
}

func NewOrchestrator(
	runner *tasks.Runner,
	collaborators Collaborators,
	resolver *artifacts.Resolver,
	opener interfaces.Opener,
	view interfaces.View,
	options Options,
	logger arbor.ILogger,
) *Orchestrator {
	if options.OpenDelay <= 0 {
		options.OpenDelay = DefaultOpenDelay
	}
	return &Orchestrator{
		runner:        runner,
		dispatcher:    runner.Dispatcher(),
		collaborators: collaborators,
		resolver:      resolver,
		opener:        opener,
		view:          view,
		options:       options,
		logger:        logger,
	}
}

// AddObserver registers an observer for every run change
func (o *Orchestrator) AddObserver(observer interfaces.RunObserver) {
	o.observersMu.Lock()
	defer o.observersMu.Unlock()
	o.observers = append(o.observers, observer)
}

func (o *Orchestrator) publish(run *models.PipelineRun) {
	o.observersMu.RLock()
	observers := append([]interfaces.RunObserver(nil), o.observers...)
	o.observersMu.RUnlock()

	snapshot := run.Snapshot()
	for _, observer := range observers {
		observer.RunUpdated(snapshot)
	}
}

// advance moves run to a non-terminal stage, updating status and log
func (o *Orchestrator) advance(run *models.PipelineRun, stage models.Stage, status, logLine string) bool {
	if err := run.Transition(stage); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Rejected pipeline transition")
		return false
	}

	o.logger.Info().
		Str("run_id", run.ID).
		Str("kind", string(run.Kind)).
		Str("stage", string(stage)).
		Msg(status)

	run.Status = status
	if logLine != "" {
		o.view.AppendLog(logLine)
	}
	o.view.SetStatus(status)
	o.publish(run)
	return true
}

// finish ends run with exactly one status update and one notification
func (o *Orchestrator) finish(run *models.PipelineRun, outcome models.Outcome, status, logLine string, notification models.Notification) {
	if err := run.Finish(outcome, notification.Message); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Rejected pipeline completion")
		return
	}

	event := o.logger.Info()
	if outcome == models.OutcomeFailed {
		event = o.logger.Warn()
	}
	event.
		Str("run_id", run.ID).
		Str("kind", string(run.Kind)).
		Str("outcome", string(outcome)).
		Str("report", run.Report).
		Msg(status)

	run.Status = status
	if logLine != "" {
		o.view.AppendLog(logLine)
	}
	o.view.SetStatus(status)
	o.view.Notify(notification)
	o.publish(run)
}

// fail is the terminal path for a failed task. Details are already in the log file.
func (o *Orchestrator) fail(run *models.PipelineRun, label string) {
	o.finish(run, models.OutcomeFailed, label,
		fmt.Sprintf("%s, %s", label, tasks.FailureMessage),
		models.Notification{
			Level:   models.NotificationError,
			Title:   label,
			Message: fmt.Sprintf("%s, %s", label, tasks.FailureMessage),
		})
}

// track builds the task event handler for one stage of run
func (o *Orchestrator) track(run *models.PipelineRun, scope interfaces.ProgressScope, failLabel string, onCompleted func(result models.TaskResult)) tasks.EventHandler {
	return func(event models.TaskEvent) {
		if run.Stage.IsTerminal() {
			return
		}

		switch event.Type {
		case models.TaskEventLog:
			o.view.AppendLog(event.Text)
		case models.TaskEventStatusChanged:
			run.Status = event.Text
			o.view.SetStatus(event.Text)
			o.publish(run)
		case models.TaskEventProgress:
			run.Progress = event.Percent
			o.view.SetProgress(scope, event.Percent)
			o.publish(run)
		case models.TaskEventCompleted:
			onCompleted(event.Result)
		case models.TaskEventFailed:
			o.fail(run, failLabel)
		}
	}
}

// openLater opens path after the configured delay, on the control loop
func (o *Orchestrator) openLater(path string) {
	o.view.AppendLog("Opening result automatically...")
	o.dispatcher.PostAfter(o.options.OpenDelay, func() {
		if err := o.opener.Open(path); err != nil {
			o.logger.Warn().Err(err).Str("path", path).Msg("Failed to open result")
			o.view.AppendLog(fmt.Sprintf("Could not open %s", artifacts.BaseName(path)))
		}
	})
}

func (o *Orchestrator) setLastSingle(workflow, path string) {
	o.handlesMu.Lock()
	defer o.handlesMu.Unlock()
	if path == "" {
		o.lastSingle = nil
		return
	}
	o.lastSingle = &lastResult{workflow: workflow, path: path}
}

func (o *Orchestrator) setLastBatch(path string) {
	o.handlesMu.Lock()
	defer o.handlesMu.Unlock()
	o.lastBatch = path
}

// post runs fn on the control loop, reporting when the loop has already stopped
func (o *Orchestrator) post(fn func()) error {
	if !o.dispatcher.Post(fn) {
		return fmt.Errorf("control loop is not running")
	}
	return nil
}
