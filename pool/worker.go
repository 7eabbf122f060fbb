package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/pdfpool/models"
)

// Worker wraps a browser process with the health and usage metadata the
// pool needs for selection and eviction. All mutable fields are atomics so
// renders and the health monitor never block each other.
type Worker struct {
	id        string
	proc      Process
	createdAt time.Time

	healthy  atomic.Bool
	usage    atomic.Int64
	lastUsed atomic.Int64 // unix nanos
	inflight atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

func newWorker(proc Process) *Worker {
	now := time.Now()
	w := &Worker{
		id:        uuid.NewString(),
		proc:      proc,
		createdAt: now,
	}
	w.healthy.Store(true)
	w.lastUsed.Store(now.UnixNano())
	return w
}

// ID returns the worker's unique id.
func (w *Worker) ID() string { return w.id }

// PID returns the browser's OS process id.
func (w *Worker) PID() int { return w.proc.PID() }

// CreatedAt returns when the worker's process was launched.
func (w *Worker) CreatedAt() time.Time { return w.createdAt }

// Healthy reports the verdict of the last health check.
func (w *Worker) Healthy() bool { return w.healthy.Load() }

// UsageCount returns the number of render attempts made on this worker.
func (w *Worker) UsageCount() int64 { return w.usage.Load() }

// LastUsedAt returns the time of the last successful render.
func (w *Worker) LastUsedAt() time.Time { return time.Unix(0, w.lastUsed.Load()) }

// InFlight returns the number of attempts currently running on this worker.
func (w *Worker) InFlight() int { return int(w.inflight.Load()) }

// Age returns how long the worker has been alive at now.
func (w *Worker) Age(now time.Time) time.Duration { return now.Sub(w.createdAt) }

// close terminates the process once; later calls return the first result.
func (w *Worker) close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.proc.Close()
	})
	return w.closeErr
}

func (w *Worker) snapshot(now time.Time) models.WorkerStats {
	return models.WorkerStats{
		ID:       w.id,
		PID:      w.PID(),
		Healthy:  w.Healthy(),
		AgeMs:    w.Age(now).Milliseconds(),
		Usage:    w.UsageCount(),
		InFlight: w.InFlight(),
	}
}
