package interfaces

import "time"

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}

// SchedulerService manages cron-based housekeeping jobs
type SchedulerService interface {
	// RegisterJob registers handler under name with a cron schedule
	RegisterJob(name string, schedule string, handler func() error) error

	// TriggerJob runs a registered job immediately, outside its schedule
	TriggerJob(name string) error

	Start() error
	Stop() error
	IsRunning() bool

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*JobStatus
}
