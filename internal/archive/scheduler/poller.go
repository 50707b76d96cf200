package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"duckmail-archive/internal/archive/usecase"
)

// CycleRunner is the slice of the sync engine the poller drives.
type CycleRunner interface {
	RunScheduledCycle(ctx context.Context, opts usecase.ScheduledCycleOptions) (usecase.ScheduledCycleResult, error)
}

// Poller ticks the scheduled sync cycle at a fixed interval. It owns its own
// lifecycle: callers hold the instance and Start/Stop it, nothing is global.
type Poller struct {
	runner   CycleRunner
	interval time.Duration
	stopChan chan struct{}

	mu       sync.Mutex
	started  bool
	inFlight bool
}

// NewPoller creates a poller ticking every interval. Intervals under a second
// are raised to a second.
func NewPoller(runner CycleRunner, interval time.Duration) *Poller {
	if interval < time.Second {
		interval = time.Second
	}
	return &Poller{
		runner:   runner,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the poll loop. The first cycle runs immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	log.Printf("[Poller] Starting sync poller (interval: %s)", p.interval)
	go func() {
		p.tick()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-p.stopChan:
				log.Println("[Poller] Poller stopped")
				return
			}
		}
	}()
}

// Stop ends the poll loop. Safe to call once.
func (p *Poller) Stop() {
	close(p.stopChan)
}

// tick runs one scheduled cycle unless the previous one is still going; slow
// cycles are skipped rather than stacked.
func (p *Poller) tick() {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		log.Println("[Poller] Previous cycle still running, skipping tick")
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	result, err := p.runner.RunScheduledCycle(context.Background(), usecase.ScheduledCycleOptions{})
	if err != nil {
		log.Printf("[Poller] Scheduled cycle failed: %v", err)
		return
	}
	if result.Skipped {
		return
	}
	log.Printf("[Poller] Cycle done: queued=%d claimed=%d completed=%d failed=%d",
		result.Dispatch.QueuedCount, result.Process.ClaimedCount, result.Process.CompletedCount, result.Process.FailedCount)
}
