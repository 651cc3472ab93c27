package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
)

const summaryCSV = "workflow_file,missing_count\nportrait.json,2\nlandscape.json,0\n"

func TestBatch_NothingMissingSkipsSearch(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).Return(models.NothingToDo(), nil)

	runID, err := f.orch.Batch(dir, "")
	require.NoError(t, err)

	run := f.wait(runID)

	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, models.OutcomeNoOp, run.Outcome)
	assert.False(t, run.Visited(models.StageSearching))
	f.searcher.AssertNotCalled(t, "SearchLinks", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, f.view.notifications, 1)
}

func TestBatch_MissingAggregateIsWarning(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	summary := writeFile(t, filepath.Join(f.todayBucket(), "batch_summary.csv"), summaryCSV)

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json;*.txt", mock.Anything).Return(models.PathResult(summary), nil)

	runID, err := f.orch.Batch(dir, "*.json;*.txt")
	require.NoError(t, err)

	run := f.wait(runID)

	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, models.OutcomeWarning, run.Outcome)
	assert.False(t, run.Visited(models.StageSearching))
	f.searcher.AssertNotCalled(t, "SearchLinks", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, []models.BatchRow{
		{File: "portrait.json", Missing: 2, Status: "analyzed"},
		{File: "landscape.json", Missing: 0, Status: "analyzed"},
	}, f.view.rows)
	assert.Equal(t, 2, run.MissingCount)

	require.Len(t, f.view.notifications, 1)
	assert.Equal(t, models.NotificationWarning, f.view.notifications[0].Level)
}

func TestBatch_SearchesAggregateInNewestBucket(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AutoOpen = true })
	dir := t.TempDir()
	bucket := f.todayBucket()
	summary := writeFile(t, filepath.Join(bucket, "batch_summary.csv"), summaryCSV)
	aggregate := writeFile(t, filepath.Join(bucket, "missing_summary.csv"), "file_path\nsdxl.safetensors\n")
	report := filepath.Join(bucket, "missing_summary.html")

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(3).(interfaces.ProgressFunc)(3, 4)
		}).
		Return(models.PathResult(summary), nil)
	f.searcher.On("SearchLinks", mock.Anything, aggregate, mock.Anything).
		Run(func(args mock.Arguments) {
			writeFile(t, report, "<html></html>")
		}).
		Return(models.PathResult(report), nil)

	runID, err := f.orch.Batch(dir, "*.json")
	require.NoError(t, err)

	run := f.wait(runID)

	assert.Equal(t, models.OutcomeSuccess, run.Outcome)
	assert.Equal(t, aggregate, run.Aggregate)
	assert.Equal(t, report, run.Report)
	assert.Contains(t, f.view.progress[interfaces.ProgressBatch], 75)

	f.drainUntil(func() bool { return len(f.opener.paths()) == 1 })

	path, err := f.orch.ViewBatchLast()
	require.NoError(t, err)
	assert.Equal(t, report, path)
	assert.Equal(t, []string{report, report}, f.opener.paths())
}

func TestBatch_NonPathSearchIsDegraded(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	bucket := f.todayBucket()
	summary := writeFile(t, filepath.Join(bucket, "batch_summary.csv"), summaryCSV)
	aggregate := writeFile(t, filepath.Join(bucket, "missing_summary.csv"), "file_path\n")

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).Return(models.PathResult(summary), nil)
	f.searcher.On("SearchLinks", mock.Anything, aggregate, mock.Anything).Return(models.NothingToDo(), nil)

	runID, err := f.orch.Batch(dir, "*.json")
	require.NoError(t, err)

	run := f.wait(runID)
	assert.Equal(t, models.OutcomeDegraded, run.Outcome)

	// Without a report the aggregate table stays the batch result to view
	latest, ok := f.orch.LatestBatchResult()
	require.True(t, ok)
	assert.Equal(t, aggregate, latest)

	path, err := f.orch.ViewBatchLast()
	require.NoError(t, err)
	assert.Equal(t, aggregate, path)
}

func TestBatch_SearchErrorFails(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	bucket := f.todayBucket()
	summary := writeFile(t, filepath.Join(bucket, "batch_summary.csv"), summaryCSV)
	aggregate := writeFile(t, filepath.Join(bucket, "missing_summary.csv"), "file_path\nsdxl.safetensors\n")

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).Return(models.PathResult(summary), nil)
	f.searcher.On("SearchLinks", mock.Anything, aggregate, mock.Anything).
		Return(models.NoResult(), errors.New("search_links: read helper output: token too long"))

	runID, err := f.orch.Batch(dir, "*.json")
	require.NoError(t, err)

	run := f.wait(runID)
	f.dispatcher.Drain()

	assert.Equal(t, models.StageFailed, run.Stage)
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.True(t, run.Visited(models.StageSearching))
	assert.Equal(t, aggregate, run.Aggregate)

	require.Len(t, f.view.notifications, 1)
	assert.Equal(t, models.NotificationError, f.view.notifications[0].Level)
	assert.Contains(t, f.view.notifications[0].Message, tasks.FailureMessage)
	assert.Equal(t, 1, f.runs.terminalCount(runID))
}

func TestBatch_NoSummaryFails(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).Return(models.NoResult(), nil)

	runID, err := f.orch.Batch(dir, "*.json")
	require.NoError(t, err)

	run := f.wait(runID)
	assert.Equal(t, models.StageFailed, run.Stage)
	assert.Equal(t, models.NotificationError, f.view.notifications[0].Level)
}

func TestBatch_ProcessorErrorFails(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	f.batcher.On("BatchProcess", mock.Anything, dir, "*.json", mock.Anything).
		Return(models.NoResult(), errors.New("permission denied"))

	runID, err := f.orch.Batch(dir, "*.json")
	require.NoError(t, err)

	run := f.wait(runID)
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	require.Len(t, f.view.notifications, 1)
}

func TestBatch_InputErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Batch("", "*.json")
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)

	file := writeFile(t, filepath.Join(t.TempDir(), "file.json"), "{}")
	_, err = f.orch.Batch(file, "*.json")
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
}

func TestParseSummary(t *testing.T) {
	content := "\ufeff工作流文件,缺失数量,备注\nalpha.json,3,x\nbeta.json,not-a-number,y\n"

	rows, err := parseSummary(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []models.BatchRow{
		{File: "alpha.json", Missing: 3, Status: "analyzed"},
		{File: "beta.json", Missing: 0, Status: "analyzed"},
	}, rows)

	_, err = parseSummary(strings.NewReader("name,count\na,1\n"))
	assert.Error(t, err)

	rows, err = parseSummary(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadSummaryRows_MissingFile(t *testing.T) {
	_, err := ReadSummaryRows(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
