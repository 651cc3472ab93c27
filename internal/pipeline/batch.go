package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
)

// Batch starts a directory run: process every workflow matching pattern, then search
// the aggregate of all missing models found in the newest date bucket.
func (o *Orchestrator) Batch(dir, pattern string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("%w: no workflow directory selected", interfaces.ErrInvalidInput)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: directory not found: %s", interfaces.ErrInvalidInput, dir)
	}
	if strings.TrimSpace(pattern) == "" {
		pattern = o.options.BatchPattern
	}

	run := models.NewPipelineRun(common.NewRunID(), models.PipelineBatch, models.TaskInput{Directory: dir, Pattern: pattern})

	err = o.post(func() {
		o.view.ClearBatchRows()
		o.view.SetProgress(interfaces.ProgressBatch, 0)
		o.setLastBatch("")

		if !o.advance(run, models.StageBatchProcessing, "Preparing batch processing...",
			fmt.Sprintf("Batch processing directory: %s", dir)) {
			return
		}

		o.runner.Run(models.TaskKindBatchProcess, run.Input, o.batchWork(dir, pattern),
			o.track(run, interfaces.ProgressBatch, "Batch processing failed", func(result models.TaskResult) {
				o.onBatchProcessed(run, result)
			}))
	})
	if err != nil {
		return "", err
	}

	return run.ID, nil
}

func (o *Orchestrator) batchWork(dir, pattern string) tasks.WorkFunc {
	return func(tc *tasks.TaskContext) (models.TaskResult, error) {
		result, err := o.collaborators.Batcher.BatchProcess(tc.Context(), dir, pattern, tc.Progress())
		if err != nil {
			return models.TaskResult{}, fmt.Errorf("batch process %s (%s): %w", dir, pattern, err)
		}

		out := models.TaskResult{Result: result}
		if !result.IsPath() {
			return out, nil
		}

		rows, err := ReadSummaryRows(result.Path)
		if err != nil {
			tc.Logger().Error().Err(err).Str("summary", result.Path).Msg("Failed to read batch summary")
			tc.Logf("Failed to read batch results: %s", fileName(result.Path))
		}
		out.Rows = rows

		// The aggregate is only known by convention, so it is rediscovered in the newest bucket
		if aggregate, ok := o.resolver.ResolveFile(o.options.OutputRoot, o.options.AggregateName); ok {
			out.Artifact = aggregate
			tc.Logf("Found aggregate missing file: %s", fileName(aggregate))
		}

		return out, nil
	}
}

func (o *Orchestrator) onBatchProcessed(run *models.PipelineRun, result models.TaskResult) {
	switch {
	case result.Result.Kind == models.ResultNothingToDo:
		o.view.SetProgress(interfaces.ProgressBatch, 100)
		o.finish(run, models.OutcomeNoOp, "Batch complete: nothing missing",
			"Batch complete, no workflow has missing files.",
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "Batch complete, no missing files found"})

	case result.Result.IsPath() && fileExists(result.Result.Path):
		o.view.AppendLog(fmt.Sprintf("Batch complete, summary: %s", fileName(result.Result.Path)))
		o.view.SetProgress(interfaces.ProgressBatch, 100)

		run.Rows = result.Rows
		o.view.ClearBatchRows()
		for _, row := range result.Rows {
			run.MissingCount += row.Missing
			o.view.AddBatchRow(row)
		}

		if result.Artifact == "" {
			o.finish(run, models.OutcomeWarning, "Batch complete, aggregate file not found",
				fmt.Sprintf("%s was not found, link search skipped.", o.options.AggregateName),
				models.Notification{Level: models.NotificationWarning, Title: "Warning", Message: "Aggregate missing file not found, link search skipped"})
			return
		}

		run.Aggregate = result.Artifact
		o.setLastBatch(run.Aggregate)
		o.startSearch(run, run.Aggregate, interfaces.ProgressBatch, func(result models.TaskResult) {
			o.onBatchSearched(run, result)
		})

	default:
		o.finish(run, models.OutcomeFailed, "Batch processing failed",
			"Batch processing failed or produced no summary file.",
			models.Notification{Level: models.NotificationError, Title: "Error", Message: "Batch processing failed"})
	}
}

func (o *Orchestrator) onBatchSearched(run *models.PipelineRun, result models.TaskResult) {
	if result.Result.IsPath() && fileExists(result.Result.Path) {
		report := result.Result.Path
		run.Report = report
		o.setLastBatch(report)
		o.view.SetProgress(interfaces.ProgressBatch, 100)
		o.finish(run, models.OutcomeSuccess, "Batch search complete",
			fmt.Sprintf("Aggregate search complete! Report: %s", fileName(report)),
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "Batch processing and search complete"})
		if o.options.AutoOpen {
			o.openLater(report)
		}
		return
	}

	o.finish(run, models.OutcomeDegraded, "Aggregate search produced no report",
		"Aggregate search complete, but no report was produced.",
		models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "Batch search complete, but no report was produced"})
}
