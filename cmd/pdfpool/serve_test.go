package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingShutdowner struct {
	block    bool
	called   bool
	ctxErr   error
	deadline time.Time
}

func (r *recordingShutdowner) Shutdown(ctx context.Context) error {
	r.called = true
	r.ctxErr = ctx.Err()
	r.deadline, _ = ctx.Deadline()
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestGracefulShutdown_PoolGetsFreshBudgetAfterSlowDrain(t *testing.T) {
	srv := &recordingShutdowner{block: true}
	p := &recordingShutdowner{}

	start := time.Now()
	gracefulShutdown(srv, p, 30*time.Millisecond)

	assert.True(t, srv.called)
	assert.True(t, p.called, "pool is shut down even when the drain times out")
	assert.NoError(t, p.ctxErr, "pool context must not be expired on entry")
	assert.True(t, p.deadline.After(start.Add(30*time.Millisecond)),
		"pool deadline starts after the drain")
}
