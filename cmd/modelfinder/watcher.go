package main

import (
	"sync"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// runWatcher waits for the one run a CLI invocation starts and fires onDone when it finishes
type runWatcher struct {
	mu     sync.Mutex
	final  *models.PipelineRun
	onDone func(run models.PipelineRun)
}

func newRunWatcher(onDone func(run models.PipelineRun)) *runWatcher {
	return &runWatcher{onDone: onDone}
}

func (w *runWatcher) RunUpdated(run models.PipelineRun) {
	if !run.Stage.IsTerminal() {
		return
	}

	w.mu.Lock()
	if w.final != nil {
		w.mu.Unlock()
		return
	}
	w.final = &run
	w.mu.Unlock()

	if w.onDone != nil {
		w.onDone(run)
	}
}

// Final returns the finished run, or false while it is still going
func (w *runWatcher) Final() (models.PipelineRun, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.final == nil {
		return models.PipelineRun{}, false
	}
	return *w.final, true
}

// Err turns a failed run into the command's error
func (w *runWatcher) Err() error {
	run, ok := w.Final()
	if !ok {
		return errInterrupted
	}
	if run.Outcome == models.OutcomeFailed {
		return &runFailedError{message: run.Message}
	}
	return nil
}
