package pool

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/metrics"
	"github.com/use-agent/pdfpool/models"
)

var (
	errLaunch = errors.New("chromium failed to start")
	errPrint  = errors.New("Printing failed")
	fakePDF   = []byte("%PDF-1.7\n%fake\n")
)

// fakeProcess is an in-memory browser. Behaviour hooks are guarded by mu
// so tests can change them while renders are running.
type fakeProcess struct {
	pid          int
	disconnected atomic.Bool
	closes       atomic.Int32

	mu       sync.Mutex
	closeErr error
	openErr  error
	loadErr  error
	loadFn   func(ctx context.Context) error
	printFn  func(n int) ([]byte, error)
	opened   int
	closed   int
	prints   int
	waits    []bool
}

func (f *fakeProcess) NewPage(ctx context.Context) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.disconnected.Load() {
		return nil, errors.New("websocket closed")
	}
	f.opened++
	return &fakePage{proc: f}, nil
}

func (f *fakeProcess) Connected() bool { return !f.disconnected.Load() }

func (f *fakeProcess) PID() int { return f.pid }

func (f *fakeProcess) Close() error {
	f.closes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

func (f *fakeProcess) set(fn func(f *fakeProcess)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeProcess) pages() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func (f *fakeProcess) printCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prints
}

type fakePage struct {
	proc *fakeProcess
}

func (p *fakePage) Load(ctx context.Context, _ string, waitNetwork bool) error {
	p.proc.mu.Lock()
	p.proc.waits = append(p.proc.waits, waitNetwork)
	loadErr, loadFn := p.proc.loadErr, p.proc.loadFn
	p.proc.mu.Unlock()

	if loadFn != nil {
		return loadFn(ctx)
	}
	if loadErr != nil {
		return loadErr
	}
	return ctx.Err()
}

func (p *fakePage) PrintPDF(ctx context.Context, _ *models.RenderRequest) ([]byte, error) {
	p.proc.mu.Lock()
	p.proc.prints++
	n, fn := p.proc.prints, p.proc.printFn
	p.proc.mu.Unlock()

	if fn != nil {
		return fn(n)
	}
	return fakePDF, ctx.Err()
}

func (p *fakePage) Close() error {
	p.proc.mu.Lock()
	defer p.proc.mu.Unlock()
	p.proc.closed++
	return nil
}

// fakeLauncher hands out fakeProcesses. Once failAfter successful launches
// have happened every further launch fails; -1 never fails.
type fakeLauncher struct {
	// gate, when set before the pool starts, holds every launch until it
	// is closed.
	gate chan struct{}

	mu        sync.Mutex
	procs     []*fakeProcess
	failAfter int
	failures  int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{failAfter: -1}
}

func (l *fakeLauncher) Launch(ctx context.Context) (Process, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.failAfter >= 0 && len(l.procs) >= l.failAfter {
		l.failures++
		return nil, errLaunch
	}
	fp := &fakeProcess{pid: 1000 + len(l.procs)}
	l.procs = append(l.procs, fp)
	return fp, nil
}

func (l *fakeLauncher) setFailAfter(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failAfter = n
}

func (l *fakeLauncher) processes() []*fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.procs)
}

func (l *fakeLauncher) failureCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// sleepRecorder replaces the backoff sleep so tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration, stop <-chan struct{}) bool {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
		return true
	}
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sleeps)
}

type harness struct {
	pool     *Pool
	launcher *fakeLauncher
	metrics  *metrics.Metrics
	sleeps   *sleepRecorder
}

func testConfig() config.PoolConfig {
	return config.PoolConfig{
		MinSize:             1,
		MaxSize:             3,
		MaxRetries:          3,
		DefaultTimeout:      time.Second,
		BackoffBase:         time.Second,
		HealthCheckInterval: time.Hour,
		ProbeTimeout:        time.Second,
		MaxWorkerAge:        time.Hour,
		MaxUsageCount:       100,
		SelectionPolicy:     config.PolicyFirst,
	}
}

func newHarness(t *testing.T, cfg config.PoolConfig) *harness {
	t.Helper()
	h := &harness{
		launcher: newFakeLauncher(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		sleeps:   &sleepRecorder{},
	}
	h.pool = New(cfg, h.launcher.Launch,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithMetrics(h.metrics),
		WithLaunchTimeout(time.Second),
	)
	h.pool.sleep = h.sleeps.sleep
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.pool.Shutdown(ctx)
	})
	return h
}

func (h *harness) pending() int {
	h.pool.mu.RLock()
	defer h.pool.mu.RUnlock()
	return h.pool.pending
}

func (h *harness) workers() []*Worker {
	h.pool.mu.RLock()
	defer h.pool.mu.RUnlock()
	return slices.Clone(h.pool.workers)
}

func htmlRequest() *models.RenderRequest {
	return &models.RenderRequest{HTML: "<html><body><h1>Invoice</h1></body></html>"}
}
