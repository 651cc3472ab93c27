package interfaces

import "github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"

// ProgressScope selects which progress bar an update is for
type ProgressScope string

const (
	ProgressSingle ProgressScope = "single"
	ProgressBatch  ProgressScope = "batch"
)

// View is the user-visible state driven by the pipeline.
// Every method is called on the control loop only.
type View interface {
	ClearLog()
	AppendLog(text string)
	SetStatus(text string)
	SetProgress(scope ProgressScope, percent int)
	Notify(notification models.Notification)
	ClearBatchRows()
	AddBatchRow(row models.BatchRow)
	EnableViewResult(enabled bool)
}

// RunObserver is told about every change to a pipeline run, on the control loop
type RunObserver interface {
	RunUpdated(run models.PipelineRun)
}

// Broadcaster fans an event out to every live subscriber
type Broadcaster interface {
	Broadcast(event models.Event)
}
