package web

// gate.go serializes ingest processing. Parsing holds the whole file in
// memory and batch writes must not interleave, so the server admits one
// ingest at a time; later requests wait up to maxWait for the slot.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the ingest slot stays occupied for the whole
// wait window. Clients should retry after a short delay.
var ErrBusy = errors.New("an ingest is already running, please try again later")

const defaultIngestWait = 30 * time.Second

// ingestGate admits one ingest at a time through a single-slot semaphore.
type ingestGate struct {
	slot    chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

func newIngestGate(maxWait time.Duration) *ingestGate {
	if maxWait <= 0 {
		maxWait = defaultIngestWait
	}
	return &ingestGate{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// acquire waits for the ingest slot. The caller must call release exactly
// once on success.
func (g *ingestGate) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from slot-wait timeout.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
}

func (g *ingestGate) release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()

	<-g.slot
}

func (g *ingestGate) activeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// waitForDrain blocks until the running ingest finishes or ctx expires.
// Used during graceful shutdown so an in-flight write is not cut off.
func (g *ingestGate) waitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if g.activeCount() == 0 {
				return nil
			}
		}
	}
}
