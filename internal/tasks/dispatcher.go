// -----------------------------------------------------------------------
// Dispatcher - single-consumer control loop
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
)

// Dispatcher is the control loop. Workers post closures; one goroutine drains
// them in FIFO order, so everything user-visible is mutated from a single place.
type Dispatcher struct {
	queue    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	logger   arbor.ILogger
}

// NewDispatcher creates a dispatcher with a buffered queue of queueSize closures
func NewDispatcher(queueSize int, logger arbor.ILogger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Post enqueues fn for the control loop. It blocks only while the queue is full
// and returns false once the dispatcher has stopped.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.stopped:
		return false
	default:
	}

	select {
	case d.queue <- fn:
		return true
	case <-d.stopped:
		return false
	}
}

// PostAfter enqueues fn once delay has elapsed
func (d *Dispatcher) PostAfter(delay time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		d.Post(fn)
	})
}

// Run drains the queue until ctx is done or Stop is called
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug().Int("queue_size", cap(d.queue)).Msg("Control loop started")
	defer d.logger.Debug().Msg("Control loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
			return nil
		case fn := <-d.queue:
			d.execute(fn)
		}
	}
}

// Drain runs every closure queued right now without waiting for more and returns how many ran
func (d *Dispatcher) Drain() int {
	count := 0
	for {
		select {
		case fn := <-d.queue:
			d.execute(fn)
			count++
		default:
			return count
		}
	}
}

// DrainUntil runs queued closures on the calling goroutine until done reports true or ctx ends.
// done is checked after every closure.
func (d *Dispatcher) DrainUntil(ctx context.Context, done func() bool) error {
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-d.queue:
			d.execute(fn)
		}
	}
	return nil
}

// Stop ends Run and rejects further posts. Queued closures are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
	})
}

// Pending returns the number of queued closures
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) execute(fn func()) {
	defer common.RecoverPanic(d.logger, "control-loop", nil)
	fn()
}
