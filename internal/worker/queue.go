package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/observability"
)

var (
	// ErrQueueFull is returned when every buffered slot is taken.
	ErrQueueFull = errors.New("grading queue is full")
	// ErrQueueClosed is returned after Shutdown has been called.
	ErrQueueClosed = errors.New("grading queue is closed")
)

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Task tracks one enqueued job.
type Task struct {
	ID   string
	Name string

	job  Job
	done chan struct{}
	err  error
}

// Done is closed once the job has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the job result. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config sizes the pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Queue is a bounded pool of workers running jobs in arrival order.
type Queue struct {
	cfg    Config
	tasks  chan *Task
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a queue with cfg.Workers goroutines.
func New(cfg Config, logger zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    cfg,
		tasks:  make(chan *Task, cfg.QueueSize),
		logger: logger.With().Str("component", "grading_queue").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run(i)
	}

	return q
}

// Enqueue schedules job without blocking.
func (q *Queue) Enqueue(name string, job Job) (*Task, error) {
	if job == nil {
		return nil, fmt.Errorf("job %q is nil", name)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	task := &Task{ID: uuid.NewString(), Name: name, job: job, done: make(chan struct{})}
	observability.QueueDepth().Inc()
	select {
	case q.tasks <- task:
		q.logger.Debug().Str("task_id", task.ID).Str("task", name).Msg("task enqueued")
		return task, nil
	default:
		observability.QueueDepth().Dec()
		observability.QueueTasks().WithLabelValues("rejected").Inc()
		return nil, ErrQueueFull
	}
}

// Shutdown stops accepting work, lets queued jobs finish and waits for the workers.
// When ctx ends first, running jobs are cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-finished
		return ctx.Err()
	}
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()

	for task := range q.tasks {
		observability.QueueDepth().Dec()
		q.execute(worker, task)
	}
}

func (q *Queue) execute(worker int, task *Task) {
	ctx := q.ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	logger := q.logger.With().Int("worker", worker).Str("task_id", task.ID).Str("task", task.Name).Logger()
	start := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			task.err = fmt.Errorf("task panicked: %v", recovered)
			logger.Error().Interface("panic", recovered).Msg("task panicked")
			observability.QueueTasks().WithLabelValues("panicked").Inc()
		}
		close(task.done)
	}()

	task.err = task.job(ctx)
	if task.err != nil {
		logger.Warn().Err(task.err).Dur("duration", time.Since(start)).Msg("task failed")
		observability.QueueTasks().WithLabelValues("failed").Inc()
		return
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("task completed")
	observability.QueueTasks().WithLabelValues("succeeded").Inc()
}
