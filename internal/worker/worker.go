// Package worker provides a goroutine pool that claims and executes jobs
// from the job_queue table using FOR UPDATE SKIP LOCKED.
//
// Handlers are registered per queue name before calling Pool.Start.
// Each queue gets a dedicated polling goroutine; a shared recovery goroutine
// resets any jobs stuck in 'running' state.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

// Handler is the function executed for each claimed job.
// A non-nil return value triggers retry logic (exponential backoff up to
// max_attempts, then dead status). A nil return marks the job succeeded.
type Handler func(ctx context.Context, payload json.RawMessage) error

const (
	// pollInterval is how often each queue goroutine checks for new jobs.
	pollInterval = 2 * time.Second

	// staleCheckInterval is how often the recovery goroutine runs.
	staleCheckInterval = 1 * time.Minute

	// staleThreshold is the age at which a 'running' job is considered stuck.
	staleThreshold = 5 * time.Minute
)

// Pool manages the goroutine workers claiming jobs from job_queue.
type Pool struct {
	store    *store.Store
	workerID string
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a Pool backed by s. A random workerID is generated at
// construction time to distinguish this process in the locked_by column.
func New(s *store.Store) *Pool {
	return &Pool{
		store:    s,
		workerID: uuid.New().String(),
		handlers: make(map[string]Handler),
	}
}

// Register associates h with the named queue. Must be called before Start.
func (p *Pool) Register(queue string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[queue] = h
}

// Start launches one polling goroutine per registered queue plus the
// stale-lock recovery goroutine, then blocks until ctx is cancelled. On
// cancellation any in-flight job completes before Start returns.
func (p *Pool) Start(ctx context.Context) {
	p.mu.RLock()
	queues := make([]string, 0, len(p.handlers))
	for q := range p.handlers {
		queues = append(queues, q)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			p.runQueue(ctx, queue)
		}(q)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runStaleRecovery(ctx)
	}()

	wg.Wait()
	slog.Info("worker pool stopped", "worker_id", p.workerID)
}

// runQueue polls queue for jobs until ctx is cancelled. Each tick drains the
// queue so a burst of invitations does not wait one poll interval per email.
func (p *Pool) runQueue(ctx context.Context, queue string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	slog.Info("worker queue started", "queue", queue, "worker_id", p.workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker queue stopping", "queue", queue)
			return
		case <-ticker.C:
			for p.processOne(ctx, queue) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne claims one job from queue and executes it. Reports whether a job
// was claimed so the caller can keep draining. Errors are logged but do not
// stop the polling loop.
func (p *Pool) processOne(ctx context.Context, queue string) bool {
	job, err := p.store.ClaimJob(ctx, queue, p.workerID)
	if err != nil {
		slog.Error("claim job error", "queue", queue, "error", err)
		return false
	}
	if job == nil {
		return false // no job available; normal case
	}

	p.mu.RLock()
	h := p.handlers[queue]
	p.mu.RUnlock()

	if h == nil {
		slog.Error("no handler registered for queue", "queue", queue, "job_id", job.ID)
		return false
	}

	slog.Info("executing job", "queue", queue, "job_id", job.ID, "attempts", job.Attempts)

	if err := h(ctx, job.Payload); err != nil {
		slog.Error("job handler failed", "queue", queue, "job_id", job.ID, "error", err)
		if failErr := p.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			slog.Error("fail job error", "job_id", job.ID, "error", failErr)
		}
		return true
	}

	if err := p.store.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("complete job error", "job_id", job.ID, "error", err)
		return true
	}
	slog.Info("job completed", "queue", queue, "job_id", job.ID)
	return true
}

// runStaleRecovery periodically resets jobs stuck in 'running' state.
func (p *Pool) runStaleRecovery(ctx context.Context) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.RecoverStaleJobs(ctx, staleThreshold)
			if err != nil {
				slog.Error("stale job recovery error", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("reclaimed stale jobs", "count", n)
			}
		}
	}
}
