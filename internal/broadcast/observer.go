package broadcast

import (
	"sync"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

type runState struct {
	stage    models.Stage
	status   string
	progress int
}

// PipelineObserver turns pipeline run updates into pipeline_* events
type PipelineObserver struct {
	broadcaster interfaces.Broadcaster
	mu          sync.Mutex
	runs        map[string]runState
}

func NewPipelineObserver(broadcaster interfaces.Broadcaster) *PipelineObserver {
	return &PipelineObserver{
		broadcaster: broadcaster,
		runs:        make(map[string]runState),
	}
}

// RunUpdated emits only what changed since the previous update of the same run
func (o *PipelineObserver) RunUpdated(run models.PipelineRun) {
	o.mu.Lock()
	prev, seen := o.runs[run.ID]
	if run.Stage.IsTerminal() {
		delete(o.runs, run.ID)
	} else {
		o.runs[run.ID] = runState{stage: run.Stage, status: run.Status, progress: run.Progress}
	}
	o.mu.Unlock()

	if !seen || prev.stage != run.Stage || prev.status != run.Status {
		o.broadcaster.Broadcast(models.PipelineStatusEvent{
			RunID:   run.ID,
			Kind:    run.Kind,
			Stage:   run.Stage,
			Message: run.Status,
		})
	}

	if seen && prev.progress != run.Progress && !run.Stage.IsTerminal() {
		o.broadcaster.Broadcast(models.PipelineProgressEvent{
			RunID:   run.ID,
			Stage:   run.Stage,
			Percent: run.Progress,
		})
	}

	if run.Stage.IsTerminal() {
		o.broadcaster.Broadcast(models.PipelineCompleteEvent{
			RunID:     run.ID,
			Kind:      run.Kind,
			Outcome:   run.Outcome,
			Message:   run.Message,
			Report:    run.Report,
			Aggregate: run.Aggregate,
		})
	}
}
