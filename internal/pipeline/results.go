package pipeline

import (
	"fmt"
	"os"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/artifacts"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// LatestResult returns the report for workflowPath. The direct handle kept from a
// successful run wins; the resolver is only consulted without one.
func (o *Orchestrator) LatestResult(workflowPath string) (string, bool) {
	o.handlesMu.Lock()
	last := o.lastSingle
	o.handlesMu.Unlock()

	if last != nil && fileExists(last.path) &&
		(workflowPath == "" || artifacts.BaseName(workflowPath) == artifacts.BaseName(last.workflow)) {
		return last.path, true
	}

	if workflowPath == "" {
		return "", false
	}
	return o.resolver.Resolve(o.options.OutputRoot, artifacts.BaseName(workflowPath))
}

// ViewLast opens the latest report for workflowPath
func (o *Orchestrator) ViewLast(workflowPath string) (string, error) {
	path, ok := o.LatestResult(workflowPath)
	if !ok {
		o.notifyError("Could not find a report. Run an analysis and search first.")
		return "", fmt.Errorf("%w: no report for %s", interfaces.ErrNotFound, workflowPath)
	}

	o.logger.Info().Str("path", path).Msg("Opening single result")
	if err := o.opener.Open(path); err != nil {
		o.notifyError(fmt.Sprintf("Could not open %s", fileName(path)))
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	return path, nil
}

// LatestBatchResult returns the last batch result kept by this process: the report, or the
// aggregate table when the search produced none
func (o *Orchestrator) LatestBatchResult() (string, bool) {
	o.handlesMu.Lock()
	path := o.lastBatch
	o.handlesMu.Unlock()

	if path == "" || !fileExists(path) {
		return "", false
	}
	return path, true
}

// ViewBatchLast opens LatestBatchResult
func (o *Orchestrator) ViewBatchLast() (string, error) {
	path, ok := o.LatestBatchResult()
	if !ok {
		o.notifyError("No result to view. Run a batch first.")
		return "", fmt.Errorf("%w: no batch result", interfaces.ErrNotFound)
	}

	o.logger.Info().Str("path", path).Msg("Opening batch result")
	if err := o.opener.Open(path); err != nil {
		o.notifyError(fmt.Sprintf("Could not open %s", fileName(path)))
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	return path, nil
}

// OpenResultsFolder opens the output root
func (o *Orchestrator) OpenResultsFolder() (string, error) {
	root := o.options.OutputRoot
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		o.notifyError(fmt.Sprintf("Results folder is missing or invalid: %s", root))
		return "", fmt.Errorf("%w: results folder %s", interfaces.ErrNotFound, root)
	}

	o.logger.Info().Str("path", root).Msg("Opening results folder")
	if err := o.opener.Open(root); err != nil {
		o.notifyError(fmt.Sprintf("Could not open results folder: %s", root))
		return "", fmt.Errorf("failed to open results folder %s: %w", root, err)
	}

	o.post(func() { o.view.AppendLog(fmt.Sprintf("Opened results folder: %s", root)) })
	return root, nil
}

// notifyError shows an error on the view from any goroutine
func (o *Orchestrator) notifyError(message string) {
	o.post(func() {
		o.view.Notify(models.Notification{Level: models.NotificationError, Title: "Error", Message: message})
	})
}
