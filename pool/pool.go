package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/metrics"
	"github.com/use-agent/pdfpool/models"
)

var (
	// ErrShutDown is returned by lifecycle calls after Shutdown has started.
	ErrShutDown = errors.New("pool: shut down")

	errPoolFull = errors.New("pool: at capacity")
)

const defaultLaunchTimeout = 30 * time.Second

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics sets the Prometheus collectors. Default: none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLaunchTimeout bounds how long a single browser launch may take.
func WithLaunchTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.launchTimeout = d
		}
	}
}

// Pool keeps between MinSize and MaxSize browser workers alive, routes
// render requests to healthy ones with retry, and replaces workers that
// fail health checks.
type Pool struct {
	cfg           config.PoolConfig
	launch        LaunchFunc
	logger        *slog.Logger
	metrics       *metrics.Metrics
	launchTimeout time.Duration

	// sleep waits for d or until stop closes; false means stop fired.
	sleep func(d time.Duration, stop <-chan struct{}) bool

	mu          sync.RWMutex
	workers     []*Worker
	pending     int // launches in progress that hold a reserved slot
	initialized bool

	shuttingDown atomic.Bool
	inflight     atomic.Int32

	initMu       sync.Mutex
	sweepMu      sync.Mutex
	stop         chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	monitorWG    sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an empty pool. Call Initialize before rendering.
func New(cfg config.PoolConfig, launch LaunchFunc, opts ...Option) *Pool {
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = cfg.MaxSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 45 * time.Second
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 60 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.MaxWorkerAge <= 0 {
		cfg.MaxWorkerAge = 30 * time.Minute
	}
	if cfg.MaxUsageCount <= 0 {
		cfg.MaxUsageCount = 100
	}
	if cfg.SelectionPolicy == "" {
		cfg.SelectionPolicy = config.PolicyFirst
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:           cfg,
		launch:        launch,
		logger:        slog.Default(),
		launchTimeout: defaultLaunchTimeout,
		sleep:         sleepOrStop,
		stop:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pool")
	return p
}

// Initialize synchronously launches MinSize workers and starts the health
// monitor. If any launch fails, every worker started so far is closed, the
// pool stays empty and the error is returned; Initialize may be retried.
// Calling it again after success is a no-op.
func (p *Pool) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.shuttingDown.Load() {
		return ErrShutDown
	}
	p.mu.RLock()
	done := p.initialized
	p.mu.RUnlock()
	if done {
		return nil
	}

	start := time.Now()

	// Reserve the slots up front so concurrent grows cannot push the pool
	// past MaxSize while these launches run.
	p.mu.Lock()
	want := min(p.cfg.MinSize, max(p.cfg.MaxSize-len(p.workers)-p.pending, 0))
	p.pending += want
	p.mu.Unlock()

	created := make([]*Worker, 0, want)
	for i := 0; i < want; i++ {
		w, err := p.launchWorker(ctx)
		if err != nil {
			p.logger.Error("initialize failed, rolling back",
				"launched", len(created),
				"wanted", want,
				"error", err,
			)
			p.mu.Lock()
			p.pending -= want
			p.mu.Unlock()
			for _, c := range created {
				p.closeWorker(c)
			}
			return fmt.Errorf("pool: initialize worker %d of %d: %w", i+1, want, err)
		}
		created = append(created, w)
	}

	p.mu.Lock()
	p.pending -= want
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		for _, c := range created {
			p.closeWorker(c)
		}
		return ErrShutDown
	}
	p.workers = append(p.workers, created...)
	p.initialized = true
	// Added under mu so Shutdown, which flips shuttingDown under mu,
	// always waits for a monitor that was started.
	p.monitorWG.Add(1)
	p.mu.Unlock()

	go p.monitor()
	p.updateGauges()

	p.logger.Info("pool initialized",
		"workers", len(created),
		"min_size", p.cfg.MinSize,
		"max_size", p.cfg.MaxSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Render produces a PDF for req. It never returns an error and never
// panics: every outcome, including invalid input, pool exhaustion and
// shutdown, is reported as a failure result.
//
// The caller's cancellation does not abort an in-flight render; each
// attempt is bounded by the request timeout instead.
func (p *Pool) Render(ctx context.Context, req *models.RenderRequest) (res *models.RenderResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("render panicked", "panic", r)
			res = models.NewFailure(models.ErrCodeInternal, fmt.Sprintf("internal error: %v", r),
				0, time.Since(start).Milliseconds())
		}
		p.metrics.ObserveRender(res.Code, time.Since(start), res.RetryCount)
	}()

	if p.shuttingDown.Load() {
		return models.NewFailure(models.ErrCodePoolShutDown, "pool is shutting down", 0, time.Since(start).Milliseconds())
	}
	if req == nil {
		return models.NewFailure(models.ErrCodeInvalidInput, "request is required", 0, time.Since(start).Milliseconds())
	}

	r := *req
	r.Defaults()
	if err := r.Validate(); err != nil {
		return models.NewFailure(models.ErrCodeInvalidInput, errorMessage(err), 0, time.Since(start).Milliseconds())
	}

	p.inflight.Add(1)
	p.metrics.AddInFlight(1)
	defer func() {
		p.inflight.Add(-1)
		p.metrics.AddInFlight(-1)
	}()

	ctx = context.WithoutCancel(ctx)

	w, rerr := p.acquire(ctx)
	if rerr != nil {
		p.logger.Warn("no worker available", "code", rerr.Code, "error", rerr.Message)
		return models.NewFailure(rerr.Code, rerr.Message, 0, time.Since(start).Milliseconds())
	}

	return p.renderWithRetry(ctx, w, &r, needsNetworkWait(r.HTML), start)
}

// acquire returns a healthy worker, growing the pool or forcing a health
// sweep when none is available.
func (p *Pool) acquire(ctx context.Context) (*Worker, *models.RenderError) {
	if w := p.selectWorker(); w != nil {
		return w, nil
	}

	w, err := p.grow(ctx, p.cfg.MaxSize)
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, ErrShutDown):
		return nil, models.NewRenderError(models.ErrCodePoolShutDown, "pool is shutting down", err)
	case !errors.Is(err, errPoolFull):
		p.logger.Warn("on-demand worker launch failed", "error", err)
	}

	p.logger.Info("no healthy worker, forcing health sweep")
	p.sweep(p.ctx)

	if w := p.selectWorker(); w != nil {
		return w, nil
	}
	if p.shuttingDown.Load() {
		return nil, models.NewRenderError(models.ErrCodePoolShutDown, "pool is shutting down", ErrShutDown)
	}
	return nil, models.NewRenderError(models.ErrCodeNoHealthyWorkers, "no healthy workers available", nil)
}

// selectWorker applies the configured selection policy to healthy workers.
func (p *Pool) selectWorker() *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *Worker
	for _, w := range p.workers {
		if !w.Healthy() {
			continue
		}
		if p.cfg.SelectionPolicy != config.PolicyLeastUsed {
			return w
		}
		if best == nil ||
			w.InFlight() < best.InFlight() ||
			(w.InFlight() == best.InFlight() && w.UsageCount() < best.UsageCount()) {
			best = w
		}
	}
	return best
}

// grow launches one worker if the pool holds fewer than limit, counting
// launches already in progress. The launch runs outside the lock.
func (p *Pool) grow(ctx context.Context, limit int) (*Worker, error) {
	p.mu.Lock()
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		return nil, ErrShutDown
	}
	if len(p.workers)+p.pending >= limit {
		p.mu.Unlock()
		return nil, errPoolFull
	}
	p.pending++
	p.mu.Unlock()

	w, err := p.launchWorker(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		p.closeWorker(w)
		return nil, ErrShutDown
	}
	p.workers = append(p.workers, w)
	p.mu.Unlock()

	p.updateGauges()
	p.logger.Info("worker added", "worker_id", w.ID(), "pid", w.PID())
	return w, nil
}

// launchWorker starts one browser process within the launch timeout.
// Failures are returned, never retried here.
func (p *Pool) launchWorker(ctx context.Context) (*Worker, error) {
	ctx, cancel := context.WithTimeout(ctx, p.launchTimeout)
	defer cancel()

	proc, err := p.launch(ctx)
	p.metrics.ObserveLaunch(err)
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeBrowserCrash, "failed to launch browser worker", err)
	}
	return newWorker(proc), nil
}

// usable reports whether w may take another attempt: healthy and still
// part of the pool.
func (p *Pool) usable(w *Worker) bool {
	if !w.Healthy() {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Contains(p.workers, w)
}

// remove drops w from the collection and reports whether it was present.
func (p *Pool) remove(w *Worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.workers, w)
	if i < 0 {
		return false
	}
	p.workers = slices.Delete(p.workers, i, i+1)
	return true
}

// closeWorker closes w's process, logging instead of returning failures.
func (p *Pool) closeWorker(w *Worker) {
	if err := w.close(); err != nil {
		p.logger.Warn("failed to close worker",
			"event", "worker_close_failed",
			"worker_id", w.ID(),
			"error", err,
		)
		p.metrics.CloseFailed()
	}
}

// Shutdown stops the health monitor and closes every worker concurrently.
// Renders started afterwards fail with POOL_SHUT_DOWN. ctx bounds the wait
// for closes; the pool is empty on return either way. Only the first call
// does any work.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownErr
}

func (p *Pool) shutdown(ctx context.Context) error {
	p.logger.Info("pool shutting down")

	p.mu.Lock()
	p.shuttingDown.Store(true)
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	close(p.stop)
	p.cancel()
	p.updateGauges()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.closeAll(workers)
		p.monitorWG.Wait()
	}()

	select {
	case <-done:
		p.logger.Info("pool shutdown complete", "closed", len(workers))
		return nil
	case <-ctx.Done():
		p.logger.Warn("pool shutdown timed out waiting for workers to close", "error", ctx.Err())
		return fmt.Errorf("pool: shutdown: %w", ctx.Err())
	}
}

// Stats returns a point-in-time snapshot. It is safe to call at any time,
// including during Shutdown.
func (p *Pool) Stats() models.PoolStats {
	now := time.Now()

	p.mu.RLock()
	workers := slices.Clone(p.workers)
	p.mu.RUnlock()

	stats := models.PoolStats{
		TotalWorkers: len(workers),
		InFlight:     int(p.inflight.Load()),
		MinPoolSize:  p.cfg.MinSize,
		MaxPoolSize:  p.cfg.MaxSize,
		ShuttingDown: p.shuttingDown.Load(),
		Workers:      make([]models.WorkerStats, 0, len(workers)),
	}
	if len(workers) == 0 {
		return stats
	}

	var ageSum, usageSum int64
	for _, w := range workers {
		ws := w.snapshot(now)
		if ws.Healthy {
			stats.HealthyWorkers++
		}
		ageSum += ws.AgeMs
		usageSum += ws.Usage
		stats.Workers = append(stats.Workers, ws)
	}
	stats.AverageAgeMs = ageSum / int64(len(workers))
	stats.AverageUsage = float64(usageSum) / float64(len(workers))
	return stats
}

func (p *Pool) updateGauges() {
	if p.metrics == nil {
		return
	}
	p.mu.RLock()
	total := len(p.workers)
	healthy := 0
	for _, w := range p.workers {
		if w.Healthy() {
			healthy++
		}
	}
	p.mu.RUnlock()
	p.metrics.SetWorkers(total, healthy)
}

// errorMessage returns the human-readable part of err.
func errorMessage(err error) string {
	var rerr *models.RenderError
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return err.Error()
}
