package reaper

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-auth/internal/metrics"
	"github.com/technosupport/ts-auth/internal/tokens"
)

// Reaper periodically evicts expired token and permissions-cache rows.
// Sweep failures are logged and the loop keeps running; correctness only
// needs eventual collection because reads check expiry themselves.
type Reaper struct {
	manager  *tokens.Manager
	interval time.Duration
	quit     chan struct{}
	wg       sync.WaitGroup
}

func New(manager *tokens.Manager, interval time.Duration) *Reaper {
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Reaper{
		manager:  manager,
		interval: interval,
		quit:     make(chan struct{}),
	}
}

// Start initiates the sweep loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop signals the loop and waits for any in-flight sweep.
func (r *Reaper) Stop() {
	close(r.quit)
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial sweep clears whatever accumulated while the server was down.
	r.sweep()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.quit:
			return
		}
	}
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokensRemoved, cacheRowsRemoved, err := r.manager.Reap(ctx)
	if err != nil {
		log.Printf("[reaper] sweep failed: %v", err)
		return
	}
	metrics.RecordReap(tokensRemoved, cacheRowsRemoved)
	if tokensRemoved > 0 || cacheRowsRemoved > 0 {
		log.Printf("[reaper] removed %d expired tokens, %d cache rows", tokensRemoved, cacheRowsRemoved)
	}
}
