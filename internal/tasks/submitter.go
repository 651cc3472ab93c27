package tasks

import (
	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
)

// Submitter starts task bodies off the control loop. Submit never blocks the caller.
type Submitter interface {
	Submit(name string, fn func())
}

// GoroutineSubmitter runs every task on its own goroutine
type GoroutineSubmitter struct {
	logger arbor.ILogger
}

func NewGoroutineSubmitter(logger arbor.ILogger) *GoroutineSubmitter {
	return &GoroutineSubmitter{logger: logger}
}

func (s *GoroutineSubmitter) Submit(name string, fn func()) {
	common.SafeGo(s.logger, name, fn)
}

// PoolSubmitter bounds how many tasks run at once. Excess tasks wait for a slot
// on their own goroutine, so Submit still returns immediately.
type PoolSubmitter struct {
	slots  chan struct{}
	logger arbor.ILogger
}

func NewPoolSubmitter(maxWorkers int, logger arbor.ILogger) *PoolSubmitter {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &PoolSubmitter{
		slots:  make(chan struct{}, maxWorkers),
		logger: logger,
	}
}

func (s *PoolSubmitter) Submit(name string, fn func()) {
	common.SafeGo(s.logger, name, func() {
		s.slots <- struct{}{}
		defer func() { <-s.slots }()
		fn()
	})
}

// NewSubmitter picks the pool when maxWorkers > 0, otherwise one goroutine per task
func NewSubmitter(maxWorkers int, logger arbor.ILogger) Submitter {
	if maxWorkers > 0 {
		logger.Debug().Int("max_workers", maxWorkers).Msg("Using bounded task pool")
		return NewPoolSubmitter(maxWorkers, logger)
	}
	return NewGoroutineSubmitter(logger)
}
