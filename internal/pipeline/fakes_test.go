package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/artifacts"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
)

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) FindMissingModels(ctx context.Context, path string) ([]models.ModelReference, error) {
	args := m.Called(ctx, path)
	refs, _ := args.Get(0).([]models.ModelReference)
	return refs, args.Error(1)
}

func (m *mockAnalyzer) EmitIntermediateArtifact(ctx context.Context, refs []models.ModelReference, baseName string) (string, error) {
	args := m.Called(ctx, refs, baseName)
	return args.String(0), args.Error(1)
}

type mockSearcher struct{ mock.Mock }

func (m *mockSearcher) SearchLinks(ctx context.Context, artifactPath string, progress interfaces.ProgressFunc) (models.StageResult, error) {
	args := m.Called(ctx, artifactPath, progress)
	return args.Get(0).(models.StageResult), args.Error(1)
}

type mockBatcher struct{ mock.Mock }

func (m *mockBatcher) BatchProcess(ctx context.Context, dir, pattern string, progress interfaces.ProgressFunc) (models.StageResult, error) {
	args := m.Called(ctx, dir, pattern, progress)
	return args.Get(0).(models.StageResult), args.Error(1)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (f *fakeOpener) Open(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, target)
	return nil
}

func (f *fakeOpener) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// recordingView is only touched from the control loop, which the tests drain on their own goroutine
type recordingView struct {
	logs          []string
	statuses      []string
	progress      map[interfaces.ProgressScope][]int
	notifications []models.Notification
	rows          []models.BatchRow
	viewEnabled   bool
	clearedLogs   int
}

func newRecordingView() *recordingView {
	return &recordingView{progress: make(map[interfaces.ProgressScope][]int)}
}

func (v *recordingView) ClearLog()             { v.clearedLogs++; v.logs = nil }
func (v *recordingView) AppendLog(text string) { v.logs = append(v.logs, text) }
func (v *recordingView) SetStatus(text string) { v.statuses = append(v.statuses, text) }
func (v *recordingView) SetProgress(scope interfaces.ProgressScope, percent int) {
	v.progress[scope] = append(v.progress[scope], percent)
}
func (v *recordingView) Notify(n models.Notification) { v.notifications = append(v.notifications, n) }
func (v *recordingView) ClearBatchRows()              { v.rows = nil }
func (v *recordingView) AddBatchRow(row models.BatchRow) {
	v.rows = append(v.rows, row)
}
func (v *recordingView) EnableViewResult(enabled bool) { v.viewEnabled = enabled }

type runRecorder struct {
	updates map[string][]models.PipelineRun
}

func (r *runRecorder) RunUpdated(run models.PipelineRun) {
	r.updates[run.ID] = append(r.updates[run.ID], run)
}

func (r *runRecorder) last(id string) (models.PipelineRun, bool) {
	updates := r.updates[id]
	if len(updates) == 0 {
		return models.PipelineRun{}, false
	}
	return updates[len(updates)-1], true
}

func (r *runRecorder) terminalCount(id string) int {
	count := 0
	for _, update := range r.updates[id] {
		if update.Stage.IsTerminal() {
			count++
		}
	}
	return count
}

type fixture struct {
	t          *testing.T
	root       string
	dispatcher *tasks.Dispatcher
	orch       *Orchestrator
	view       *recordingView
	runs       *runRecorder
	analyzer   *mockAnalyzer
	searcher   *mockSearcher
	batcher    *mockBatcher
	opener     *fakeOpener
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	logger := arbor.NewNoOpLogger()
	root := t.TempDir()

	dispatcher := tasks.NewDispatcher(256, logger)
	runner := tasks.NewRunner(context.Background(), dispatcher, tasks.NewGoroutineSubmitter(logger), 0, logger)

	f := &fixture{
		t:          t,
		root:       root,
		dispatcher: dispatcher,
		view:       newRecordingView(),
		runs:       &runRecorder{updates: make(map[string][]models.PipelineRun)},
		analyzer:   &mockAnalyzer{},
		searcher:   &mockSearcher{},
		batcher:    &mockBatcher{},
		opener:     &fakeOpener{},
	}

	options := Options{
		OutputRoot:    root,
		AggregateName: "missing_summary.csv",
		BatchPattern:  "*.json",
		AutoOpen:      false,
		OpenDelay:     time.Millisecond,
	}
	for _, fn := range configure {
		fn(&options)
	}

	f.orch = NewOrchestrator(runner,
		Collaborators{Analyzer: f.analyzer, Searcher: f.searcher, Batcher: f.batcher},
		artifacts.NewResolver(".html", logger),
		f.opener, f.view, options, logger)
	f.orch.AddObserver(f.runs)

	return f
}

// wait drains the control loop until the run is terminal
func (f *fixture) wait(runID string) models.PipelineRun {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := f.dispatcher.DrainUntil(ctx, func() bool {
		run, ok := f.runs.last(runID)
		return ok && run.Stage.IsTerminal()
	})
	require.NoError(f.t, err)

	run, _ := f.runs.last(runID)
	return run
}

func (f *fixture) drainUntil(cond func() bool) {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(f.t, f.dispatcher.DrainUntil(ctx, cond))
}

// writeFile creates path (and parents) with content
func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) workflow(name string) string {
	return writeFile(f.t, filepath.Join(f.t.TempDir(), name), `{"nodes":[]}`)
}

func (f *fixture) todayBucket() string {
	return filepath.Join(f.root, artifacts.BucketName(time.Now()))
}
