package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

type recordingBroadcaster struct {
	events []models.Event
}

func (r *recordingBroadcaster) Broadcast(event models.Event) {
	r.events = append(r.events, event)
}

func TestPipelineObserver_EmitsChangesAndCompletion(t *testing.T) {
	rec := &recordingBroadcaster{}
	observer := NewPipelineObserver(rec)

	run := models.NewPipelineRun("run_1", models.PipelineSingle, models.TaskInput{Path: "wf.json"})
	require.NoError(t, run.Transition(models.StageAnalyzing))
	run.Status = "Analyzing wf.json"
	observer.RunUpdated(run.Snapshot())

	// Same state again is not re-broadcast
	observer.RunUpdated(run.Snapshot())

	run.Progress = 40
	observer.RunUpdated(run.Snapshot())

	require.NoError(t, run.Finish(models.OutcomeNoOp, "No missing models"))
	observer.RunUpdated(run.Snapshot())

	require.Len(t, rec.events, 4)
	assert.Equal(t, models.EventPipelineStatus, rec.events[0].EventType())
	assert.Equal(t, models.EventPipelineProgress, rec.events[1].EventType())
	assert.Equal(t, 40, rec.events[1].(models.PipelineProgressEvent).Percent)
	assert.Equal(t, models.EventPipelineStatus, rec.events[2].EventType())

	complete, ok := rec.events[3].(models.PipelineCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeNoOp, complete.Outcome)
	assert.Equal(t, "run_1", complete.RunID)
}
