package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/stretchr/testify/mock"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) FindMissingModels(ctx context.Context, path string) ([]models.ModelReference, error) {
	args := m.Called(ctx, path)
	refs, _ := args.Get(0).([]models.ModelReference)
	return refs, args.Error(1)
}

func (m *mockAnalyzer) EmitIntermediateArtifact(ctx context.Context, refs []models.ModelReference, baseName string) (string, error) {
	args := m.Called(ctx, refs, baseName)
	return args.String(0), args.Error(1)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.Event
}

func (b *recordingBroadcaster) Broadcast(event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) types() []models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]models.EventType, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.EventType())
	}
	return types
}

// memoryMappings is an in-memory MappingStorage
type memoryMappings struct {
	mu       sync.Mutex
	mappings map[string]models.IrregularMapping
	nextID   int
}

func newMemoryMappings() *memoryMappings {
	return &memoryMappings{mappings: make(map[string]models.IrregularMapping)}
}

func (s *memoryMappings) ListMappings(ctx context.Context) ([]models.IrregularMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []models.IrregularMapping{}
	for _, m := range s.mappings {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OriginalName < list[j].OriginalName })
	return list, nil
}

func (s *memoryMappings) GetMapping(ctx context.Context, id string) (*models.IrregularMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &m, nil
}

func (s *memoryMappings) FindByOriginalName(ctx context.Context, name string) (*models.IrregularMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.OriginalName == name {
			found := m
			return &found, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memoryMappings) SaveMapping(ctx context.Context, mapping *models.IrregularMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mapping.ID == "" {
		s.nextID++
		mapping.ID = fmt.Sprintf("map_%d", s.nextID)
	}
	s.mappings[mapping.ID] = *mapping
	return nil
}

func (s *memoryMappings) DeleteMapping(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.mappings, id)
	return nil
}

func (s *memoryMappings) Close() error { return nil }

type fakePipeline struct {
	runID      string
	err        error
	latest     string
	batchLast  string
	gotPath    string
	gotDir     string
	gotPattern string
}

func (p *fakePipeline) Analyze(workflowPath string) (string, error) {
	p.gotPath = workflowPath
	return p.runID, p.err
}

func (p *fakePipeline) Batch(dir, pattern string) (string, error) {
	p.gotDir, p.gotPattern = dir, pattern
	return p.runID, p.err
}

func (p *fakePipeline) LatestResult(workflowPath string) (string, bool) {
	return p.latest, p.latest != ""
}

func (p *fakePipeline) LatestBatchResult() (string, bool) {
	return p.batchLast, p.batchLast != ""
}

type fakeScheduler struct {
	triggered []string
	statuses  map[string]*interfaces.JobStatus
	err       error
}

func (s *fakeScheduler) RegisterJob(name string, schedule string, handler func() error) error {
	return nil
}

func (s *fakeScheduler) TriggerJob(name string) error {
	s.triggered = append(s.triggered, name)
	return s.err
}

func (s *fakeScheduler) Start() error    { return nil }
func (s *fakeScheduler) Stop() error     { return nil }
func (s *fakeScheduler) IsRunning() bool { return true }

func (s *fakeScheduler) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	return s.statuses
}
