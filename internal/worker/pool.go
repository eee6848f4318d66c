package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lumio-app/lumio/internal/queue"
)

// PoolConfig tunes the worker pool. Zero values take defaults.
type PoolConfig struct {
	// Concurrency is how many jobs run at once (default 2).
	Concurrency int
	// ClaimBlock is how long each claim call blocks waiting for work
	// (default 5s).
	ClaimBlock time.Duration
	// PromoteEvery is the delayed-job promotion interval (default 1s).
	PromoteEvery time.Duration
}

// Pool runs a fixed number of claim loops against the queue plus one
// loop that promotes delayed retries back onto the stream.
type Pool struct {
	queue     *queue.Queue
	processor *Processor
	logger    *slog.Logger

	concurrency  int
	claimBlock   time.Duration
	promoteEvery time.Duration

	wg sync.WaitGroup
}

// NewPool creates a Pool.
func NewPool(q *queue.Queue, processor *Processor, logger *slog.Logger, cfg PoolConfig) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.ClaimBlock <= 0 {
		cfg.ClaimBlock = 5 * time.Second
	}
	if cfg.PromoteEvery <= 0 {
		cfg.PromoteEvery = time.Second
	}
	return &Pool{
		queue:        q,
		processor:    processor,
		logger:       logger.With("component", "worker"),
		concurrency:  cfg.Concurrency,
		claimBlock:   cfg.ClaimBlock,
		promoteEvery: cfg.PromoteEvery,
	}
}

// Start launches the claim loops and the promotion loop. They run
// until ctx is cancelled; Wait blocks for a clean drain.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool starting", "concurrency", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			p.claimLoop(ctx, n)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.promoteLoop(ctx)
	}()
}

// Wait blocks until all loops have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) claimLoop(ctx context.Context, n int) {
	logger := p.logger.With("loop", n)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Claim(ctx, p.claimBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		p.run(ctx, job)
	}
}

// run executes one job and settles its outcome with the queue.
func (p *Pool) run(ctx context.Context, job *queue.Job) {
	err := p.processor.Process(ctx, job)
	switch {
	case err == nil:
		if err := p.queue.Complete(ctx, job); err != nil {
			p.logger.Error("failed to record completion", "job_id", job.ID, "error", err)
		}
	case errors.Is(err, ErrJobDeleted):
		p.queue.Discard(ctx, job)
	case ctx.Err() != nil:
		// Shutdown mid-job: leave the delivery pending so another
		// instance reclaims it after the lease.
		p.logger.Warn("job interrupted by shutdown", "job_id", job.ID)
	default:
		if nerr := p.queue.Nack(ctx, job, err); nerr != nil {
			p.logger.Error("failed to record failure", "job_id", job.ID, "error", nerr)
		}
	}
}

func (p *Pool) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(p.promoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			promoted, err := p.queue.PromoteDue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("failed to promote delayed jobs", "error", err)
				}
				continue
			}
			if promoted > 0 {
				p.logger.Debug("promoted delayed jobs", "count", promoted)
			}
		}
	}
}
