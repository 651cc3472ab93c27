package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Service implements SchedulerService on top of robfig/cron
type Service struct {
	cron     *cron.Cron
	logger   arbor.ILogger
	jobMu    sync.Mutex // Protects jobs map and entry fields
	globalMu sync.Mutex // Prevents concurrent job execution
	jobs     map[string]*jobEntry
	running  bool
}

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob adds handler to the cron table under name
func (s *Service) RegisterJob(name string, schedule string, handler func() error) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// Start begins executing registered jobs on their schedules
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to return
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// TriggerJob runs a registered job in the background, outside its schedule
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}

	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().
		Str("job_name", name).
		Msg("Manually triggering job execution")

	go s.executeJob(name)

	return nil
}

// GetAllJobStatuses returns a copy of every job's status
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(s.jobs))
	for name, entry := range s.jobs {
		status := &interfaces.JobStatus{
			Name:      name,
			Schedule:  entry.schedule,
			IsRunning: entry.isRunning,
			LastError: entry.lastError,
		}
		if entry.lastRun != nil {
			lastRun := *entry.lastRun
			status.LastRun = &lastRun
		}
		if s.running {
			next := s.cron.Entry(entry.cronID).Next
			if !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses[name] = status
	}

	return statuses
}

func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := time.Now()
	s.logger.Debug().Str("job_name", name).Msg("Job execution started")

	err := handler()

	finished := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", finished.Sub(started)).
			Msg("Job execution failed")
		return
	}

	s.logger.Info().
		Str("job_name", name).
		Dur("duration", finished.Sub(started)).
		Msg("Job execution completed")
}
