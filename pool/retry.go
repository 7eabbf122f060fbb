package pool

import (
	"context"
	"time"

	"github.com/use-agent/pdfpool/models"
)

// backoff returns the wait before the given retry: 2^attempt × base.
func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// sleepOrStop waits for d, returning false early if stop closes.
func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// renderWithRetry runs up to MaxRetries+1 sequential attempts with
// exponential backoff between them. Retries stay on w while it is healthy
// and still pooled; otherwise the next attempt acquires a replacement and
// the attempt count carries over.
func (p *Pool) renderWithRetry(ctx context.Context, w *Worker, req *models.RenderRequest, waitNetwork bool, start time.Time) *models.RenderResult {
	var lastErr error
	attempt := 0
	for attempt <= p.cfg.MaxRetries {
		if attempt > 0 && !p.usable(w) {
			next, rerr := p.acquire(ctx)
			if rerr != nil {
				p.logger.Warn("no replacement worker for retry",
					"worker_id", w.ID(),
					"attempt", attempt,
					"code", rerr.Code,
				)
				return models.NewFailure(rerr.Code, rerr.Message+": "+lastErr.Error(),
					attempt, time.Since(start).Milliseconds())
			}
			p.logger.Info("retrying on replacement worker",
				"worker_id", next.ID(),
				"replaced", w.ID(),
				"attempt", attempt,
			)
			w = next
		}

		pdf, err := p.execute(ctx, w, req, waitNetwork)
		p.metrics.ObserveAttempt(err == nil)
		if err == nil {
			elapsed := time.Since(start).Milliseconds()
			p.logger.Debug("render succeeded",
				"worker_id", w.ID(),
				"attempt", attempt,
				"bytes", len(pdf),
				"duration_ms", elapsed,
			)
			return models.NewSuccess(pdf, elapsed, attempt)
		}

		lastErr = err
		attempt++
		p.logger.Warn("render attempt failed",
			"worker_id", w.ID(),
			"attempt", attempt,
			"max_retries", p.cfg.MaxRetries,
			"error", err,
		)

		if attempt <= p.cfg.MaxRetries {
			if !p.sleep(backoff(p.cfg.BackoffBase, attempt), p.stop) {
				return models.NewFailure(models.ErrCodePoolShutDown,
					"pool shut down while waiting to retry: "+lastErr.Error(),
					attempt, time.Since(start).Milliseconds())
			}
		}
	}

	return models.NewFailure(models.ErrCodeGenerationFailed, lastErr.Error(),
		attempt-1, time.Since(start).Milliseconds())
}
