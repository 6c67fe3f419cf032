package captioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fedicaption/pkg/logger"
)

// ErrNotUpdated is reported when the platform accepted the request but the
// media or its status no longer exists.
var ErrNotUpdated = errors.New("media not updated")

// Job is one caption write.
type Job struct {
	StatusID string `yaml:"status" json:"status"`
	MediaID  string `yaml:"media" json:"media"`
	Caption  string `yaml:"caption" json:"caption"`
}

// Result is the outcome of a Job.
type Result struct {
	Job      Job
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
}

// MediaCaptioner writes alt text. activitypub.Client satisfies it.
type MediaCaptioner interface {
	UpdateStatusMediaCaption(ctx context.Context, statusID, mediaID, caption string) (bool, error)
}

// Ledger remembers finished jobs across runs. checkpoint.Manager satisfies it.
type Ledger interface {
	IsCaptioned(mediaID string) bool
	RecordCaption(statusID, mediaID string) error
	RecordFailure(mediaID string, cause error) error
}

// Observer is notified as jobs move through the pool. Calls come from
// worker goroutines.
type Observer interface {
	JobStarted(job Job)
	JobFinished(result Result)
}

// WorkerPool captions media concurrently. Admission against the instance's
// rate limits happens inside the client, so workers never pace themselves.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      MediaCaptioner
	ledger      Ledger
	observer    Observer
	logger      logger.Logger
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithLedger skips jobs the ledger already holds and records new outcomes.
func WithLedger(l Ledger) Option {
	return func(wp *WorkerPool) { wp.ledger = l }
}

// WithObserver reports progress to o.
func WithObserver(o Observer) Option {
	return func(wp *WorkerPool) { wp.observer = o }
}

// NewWorkerPool creates a pool of numWorkers workers bound to ctx.
func NewWorkerPool(ctx context.Context, numWorkers int, client MediaCaptioner, log logger.Logger, opts ...Option) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	wp := &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		logger:      logger.OrDefault(log).WithField("component", "captioner"),
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting caption workers", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish, then closes Results.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Caption workers stopped")
}

// Cancel abandons queued jobs. Stop must still be called.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a job. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel. It must be drained.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// Run captions every job and returns the results in completion order.
func Run(ctx context.Context, numWorkers int, client MediaCaptioner, jobs []Job, log logger.Logger, opts ...Option) []Result {
	wp := NewWorkerPool(ctx, numWorkers, client, log, opts...)
	wp.Start()

	results := make([]Result, 0, len(jobs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range wp.Results() {
			results = append(results, r)
		}
	}()

	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			break
		}
	}
	wp.Stop()
	<-done
	return results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result Result
		if err := wp.ctx.Err(); err != nil {
			result = Result{Job: job, Error: err}
		} else {
			result = wp.processJob(job, id)
		}

		if wp.observer != nil {
			wp.observer.JobFinished(result)
		}
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	fields := map[string]interface{}{
		"worker_id": workerID,
		"status_id": job.StatusID,
		"media_id":  job.MediaID,
	}

	if job.MediaID == "" {
		result.Error = errors.New("media id is required")
		return result
	}

	if wp.ledger != nil && wp.ledger.IsCaptioned(job.MediaID) {
		wp.logger.DebugWithFields("Media already captioned", fields)
		result.Success = true
		result.Skipped = true
		return result
	}

	if wp.observer != nil {
		wp.observer.JobStarted(job)
	}

	ok, err := wp.client.UpdateStatusMediaCaption(wp.ctx, job.StatusID, job.MediaID, job.Caption)
	result.Duration = time.Since(start)
	switch {
	case err != nil:
		result.Error = err
	case !ok:
		result.Error = ErrNotUpdated
	default:
		result.Success = true
	}

	if result.Success {
		wp.logger.DebugWithFields("Caption updated", fields)
		if wp.ledger != nil {
			if err := wp.ledger.RecordCaption(job.StatusID, job.MediaID); err != nil {
				wp.logger.WithError(err).Warn("Failed to record caption in checkpoint")
			}
		}
		return result
	}

	wp.logger.WithError(result.Error).WarnWithFields("Caption update failed", fields)
	if wp.ledger != nil {
		if err := wp.ledger.RecordFailure(job.MediaID, result.Error); err != nil {
			wp.logger.WithError(err).Warn("Failed to record failure in checkpoint")
		}
	}
	return result
}

// QueueSize returns the number of jobs waiting for a worker.
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

// Workers returns the number of workers.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}
