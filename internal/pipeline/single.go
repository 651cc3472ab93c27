package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/artifacts"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
)

// Analyze starts a single-workflow run: analyze, emit the intermediate table, search.
// Input errors are returned immediately; everything else is reported through the view.
func (o *Orchestrator) Analyze(workflowPath string) (string, error) {
	workflowPath = strings.TrimSpace(workflowPath)
	if workflowPath == "" {
		return "", fmt.Errorf("%w: no workflow file selected", interfaces.ErrInvalidInput)
	}
	info, err := os.Stat(workflowPath)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: workflow file not found: %s", interfaces.ErrInvalidInput, workflowPath)
	}

	run := models.NewPipelineRun(common.NewRunID(), models.PipelineSingle, models.TaskInput{Path: workflowPath})

	err = o.post(func() {
		o.view.ClearLog()
		o.view.EnableViewResult(false)
		o.view.SetProgress(interfaces.ProgressSingle, 0)
		o.setLastSingle("", "")

		if !o.advance(run, models.StageAnalyzing, "Analyzing...",
			fmt.Sprintf("Starting analysis: %s", fileName(workflowPath))) {
			return
		}

		o.runner.Run(models.TaskKindAnalyze, run.Input, o.analyzeWork(workflowPath),
			o.track(run, interfaces.ProgressSingle, "Analysis failed", func(result models.TaskResult) {
				o.onAnalyzed(run, result)
			}))
	})
	if err != nil {
		return "", err
	}

	return run.ID, nil
}

func (o *Orchestrator) analyzeWork(workflowPath string) tasks.WorkFunc {
	return func(tc *tasks.TaskContext) (models.TaskResult, error) {
		refs, err := o.collaborators.Analyzer.FindMissingModels(tc.Context(), workflowPath)
		if err != nil {
			return models.TaskResult{}, fmt.Errorf("find missing models in %s: %w", workflowPath, err)
		}
		if len(refs) == 0 {
			return models.TaskResult{Result: models.NothingToDo()}, nil
		}

		tc.Logf("Found %d missing files. Writing CSV...", len(refs))

		artifact, err := o.collaborators.Analyzer.EmitIntermediateArtifact(tc.Context(), refs, artifacts.BaseName(workflowPath))
		if err != nil {
			return models.TaskResult{}, fmt.Errorf("emit intermediate artifact for %s: %w", workflowPath, err)
		}

		return models.TaskResult{
			Result:     models.PathResult(artifact),
			References: refs,
			Artifact:   artifact,
		}, nil
	}
}

func (o *Orchestrator) onAnalyzed(run *models.PipelineRun, result models.TaskResult) {
	if len(result.References) == 0 {
		o.view.SetProgress(interfaces.ProgressSingle, 100)
		o.finish(run, models.OutcomeNoOp, "Analysis complete: no missing files",
			"Analysis complete: no missing files found.",
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "No missing files found"})
		return
	}

	run.MissingCount = len(result.References)
	if !o.advance(run, models.StageEmittingArtifact, "Writing missing model list...", "") {
		return
	}

	if result.Artifact == "" {
		o.finish(run, models.OutcomeFailed, "Analysis complete, but writing the CSV failed",
			"Failed to create the CSV file.",
			models.Notification{Level: models.NotificationError, Title: "Error", Message: "Failed to create the CSV file"})
		return
	}

	run.Intermediate = result.Artifact
	o.view.AppendLog(fmt.Sprintf("CSV file created: %s", fileName(result.Artifact)))
	o.startSearch(run, run.Intermediate, interfaces.ProgressSingle, func(result models.TaskResult) {
		o.onSingleSearched(run, result)
	})
}

// startSearch moves run into Searching and starts the search task on artifact
func (o *Orchestrator) startSearch(run *models.PipelineRun, artifact string, scope interfaces.ProgressScope, onCompleted func(models.TaskResult)) {
	if !o.advance(run, models.StageSearching, "Searching for links...",
		fmt.Sprintf("Searching model links: %s", fileName(artifact))) {
		return
	}
	run.Progress = 0
	o.view.SetProgress(scope, 0)

	o.runner.Run(models.TaskKindSearch, models.TaskInput{Path: artifact}, func(tc *tasks.TaskContext) (models.TaskResult, error) {
		result, err := o.collaborators.Searcher.SearchLinks(tc.Context(), artifact, tc.Progress())
		if err != nil {
			return models.TaskResult{}, fmt.Errorf("search links for %s: %w", artifact, err)
		}
		return models.TaskResult{Result: result}, nil
	}, o.track(run, scope, "Search failed", onCompleted))
}

func (o *Orchestrator) onSingleSearched(run *models.PipelineRun, result models.TaskResult) {
	switch {
	case result.Result.IsPath() && fileExists(result.Result.Path):
		report := result.Result.Path
		run.Report = report
		o.setLastSingle(run.Input.Path, report)
		o.view.SetProgress(interfaces.ProgressSingle, 100)
		o.view.EnableViewResult(true)
		o.finish(run, models.OutcomeSuccess, "Search complete",
			fmt.Sprintf("Search complete! Report: %s", fileName(report)),
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "Search complete, the report is ready to view"})
		if o.options.AutoOpen {
			o.openLater(report)
		}

	case result.Result.Kind == models.ResultNothingToDo:
		o.view.SetProgress(interfaces.ProgressSingle, 100)
		o.finish(run, models.OutcomeNoOp, "No search needed",
			"No search needed, every model is already handled or present.",
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "No search needed"})

	default:
		o.finish(run, models.OutcomeDegraded, "Search produced no report",
			"Search complete, but no report was produced.",
			models.Notification{Level: models.NotificationInfo, Title: "Done", Message: "Search complete, but no report was produced"})
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func fileName(path string) string {
	return filepath.Base(path)
}
