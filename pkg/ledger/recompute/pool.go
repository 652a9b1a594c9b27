// Package recompute provides an asynchronous worker pool that rebuilds
// snapshots off the write path.
//
// Jobs are coalesced per (owner, key): while a key is waiting in the queue,
// further requests for it are absorbed by the pending job.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/truthstore/pkg/metrics"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Func rebuilds the snapshot of (ownerScope, key).
type Func func(ctx context.Context, ownerScope, key string) error

// Job is a unit of work for the pool.
type Job struct {
	OwnerScope string
	Key        string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Recompute is called once per dequeued job.
	Recompute Func

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes recompute jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu      sync.Mutex
	pending map[Job]struct{}
	closed  bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Recompute == nil {
		return nil, errors.New("recompute func is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config:  c,
		queue:   make(chan Job, c.QueueSize),
		logger:  c.Logger,
		pending: make(map[Job]struct{}),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue schedules a recompute of job's key.
// Returns true if the job is queued or already pending, false if the pool is
// closed or the queue is full, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Warn("recompute not queued, pool closed", "owner_scope", job.OwnerScope, "key", job.Key)
		return false
	}

	if _, ok := p.pending[job]; ok {
		p.logger.Debug("recompute coalesced", "owner_scope", job.OwnerScope, "key", job.Key)
		return true
	}

	select {
	case p.queue <- job:
		p.pending[job] = struct{}{}
		metrics.RecomputeQueueDepth.Inc()
		p.logger.Debug("recompute queued", "owner_scope", job.OwnerScope, "key", job.Key)
		return true
	default:
		metrics.RecomputeDropped.Inc()
		p.logger.Error("recompute not queued, queue full, job dropped",
			"owner_scope", job.OwnerScope,
			"key", job.Key,
		)
		return false
	}
}

// Pending reports how many jobs are waiting to be picked up.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close stops accepting jobs and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("recompute worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("recompute worker stopped", "worker_id", id)
}

// processJob releases the pending slot before running so that writes landing
// during the recompute schedule another pass.
func (p *Pool) processJob(job Job) {
	p.mu.Lock()
	delete(p.pending, job)
	p.mu.Unlock()
	metrics.RecomputeQueueDepth.Dec()

	if err := p.config.Recompute(context.Background(), job.OwnerScope, job.Key); err != nil {
		p.logger.Error("background recompute failed",
			"owner_scope", job.OwnerScope,
			"key", job.Key,
			"error", err,
		)
	}
}
