package pool

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Eviction reasons, also used as metric labels.
const (
	reasonDisconnected = "disconnected"
	reasonAge          = "age"
	reasonUsage        = "usage"
	reasonProbe        = "probe"
)

const probeDocument = `<!DOCTYPE html><html><head><title>probe</title></head><body>ok</body></html>`

// monitor runs a health sweep every HealthCheckInterval until Shutdown.
func (p *Pool) monitor() {
	defer p.monitorWG.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep(p.ctx)
		}
	}
}

// sweep evaluates every worker in parallel, evicts the unhealthy ones and
// tops the pool back up to MinSize. Sweeps are serialized and never run
// once shutdown has started.
func (p *Pool) sweep(ctx context.Context) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	if p.shuttingDown.Load() {
		return
	}
	start := time.Now()

	p.mu.RLock()
	workers := slices.Clone(p.workers)
	p.mu.RUnlock()

	reasons := make([]string, len(workers))
	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			reason := p.evaluate(ctx, w)
			w.healthy.Store(reason == "")
			reasons[i] = reason
			return nil
		})
	}
	_ = g.Wait()

	evicted := 0
	for i, w := range workers {
		if reasons[i] == "" {
			continue
		}
		if p.evict(w, reasons[i]) {
			evicted++
		}
	}

	added := p.topUp(ctx)
	p.updateGauges()
	p.metrics.ObserveSweep(time.Since(start))

	p.logger.Debug("health sweep complete",
		"checked", len(workers),
		"evicted", evicted,
		"added", added,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// evaluate returns "" for a healthy worker or the reason it is not.
// Cheap checks run first; the probe only runs when they all pass.
func (p *Pool) evaluate(ctx context.Context, w *Worker) string {
	if !w.proc.Connected() {
		return reasonDisconnected
	}
	if w.Age(time.Now()) > p.cfg.MaxWorkerAge {
		return reasonAge
	}
	if w.UsageCount() > p.cfg.MaxUsageCount {
		return reasonUsage
	}
	if err := p.probe(ctx, w); err != nil {
		p.logger.Warn("health probe failed", "worker_id", w.ID(), "error", err)
		return reasonProbe
	}
	return ""
}

// probe opens a page, loads a trivial document and closes the page.
func (p *Pool) probe(ctx context.Context, w *Worker) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	page, err := w.proc.NewPage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			p.logger.Warn("failed to close probe page",
				"event", "page_close_failed",
				"worker_id", w.ID(),
				"error", cerr,
			)
			p.metrics.CloseFailed()
		}
	}()
	return page.Load(ctx, probeDocument, false)
}

// evict removes w from the pool and then closes it. It reports whether w
// was still in the pool.
func (p *Pool) evict(w *Worker, reason string) bool {
	if !p.remove(w) {
		return false
	}
	p.logger.Info("evicting worker",
		"worker_id", w.ID(),
		"reason", reason,
		"age_ms", w.Age(time.Now()).Milliseconds(),
		"usage", w.UsageCount(),
	)
	p.metrics.Evicted(reason)
	p.closeWorker(w)
	return true
}

// topUp launches workers one at a time until the pool holds MinSize,
// stopping at the first failure. The next sweep tries again.
func (p *Pool) topUp(ctx context.Context) int {
	added := 0
	for {
		_, err := p.grow(ctx, p.cfg.MinSize)
		if err != nil {
			if !isCapacityOrShutdown(err) {
				p.logger.Warn("failed to replace worker, will retry next sweep", "error", err)
			}
			return added
		}
		added++
	}
}

// closeAll closes workers concurrently.
func (p *Pool) closeAll(workers []*Worker) {
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			p.closeWorker(w)
			return nil
		})
	}
	_ = g.Wait()
}

func isCapacityOrShutdown(err error) bool {
	return errors.Is(err, errPoolFull) || errors.Is(err, ErrShutDown)
}
