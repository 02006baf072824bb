package reminder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const finishTimeout = 5 * time.Second

// HandlerFunc executes a claimed job. A returned error marks the job failed;
// it is not retried.
type HandlerFunc func(ctx context.Context, job Job) error

type Worker struct {
	store    Store
	logger   zerolog.Logger
	id       string
	interval time.Duration
	batch    int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	// JobTimeout bounds a single handler run.
	JobTimeout time.Duration

	now func() time.Time
}

func NewWorker(store Store, logger zerolog.Logger, interval time.Duration, batch int) *Worker {
	host, _ := os.Hostname()
	return &Worker{
		store:      store,
		logger:     logger,
		id:         fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		interval:   interval,
		batch:      batch,
		handlers:   make(map[string]HandlerFunc),
		JobTimeout: 30 * time.Second,
		now:        time.Now,
	}
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Register(jobType string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Run polls until ctx is cancelled. Due jobs left pending while the
// process was down are picked up by the first poll.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Str("worker_id", w.id).Dur("interval", w.interval).Msg("reminder worker started")

	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("worker_id", w.id).Msg("reminder worker stopping")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	start := time.Now()
	n, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("reminder poll failed")
		return
	}
	if n > 0 {
		w.logger.Info().Int("jobs", n).Dur("took", time.Since(start)).Msg("reminder poll complete")
	}
}

// RunOnce claims and executes one batch of due jobs and returns how many
// were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.ClaimDue(ctx, w.now(), w.batch, w.id)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		w.execute(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) execute(ctx context.Context, job Job) {
	log := w.logger.With().
		Str("job_id", job.ID.String()).
		Str("job_type", job.JobType).
		Time("fire_at", job.FireAt).
		Logger()

	h, ok := w.handler(job.JobType)
	if !ok {
		w.fail(ctx, log, job, fmt.Errorf("no handler registered for job type %q", job.JobType))
		return
	}

	runErr := w.safeRun(ctx, h, job)
	if runErr != nil {
		w.fail(ctx, log, job, runErr)
		return
	}

	doneCtx, cancel := finishContext(ctx)
	defer cancel()
	if err := w.store.MarkDone(doneCtx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		log.Error().Err(err).Msg("failed to mark reminder job done")
		return
	}
	log.Info().Msg("reminder job done")
}

func (w *Worker) safeRun(ctx context.Context, h HandlerFunc, job Job) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, w.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(runCtx, job)
}

func (w *Worker) fail(ctx context.Context, log zerolog.Logger, job Job, cause error) {
	log.Error().Err(cause).Msg("reminder job failed")
	failCtx, cancel := finishContext(ctx)
	defer cancel()
	if err := w.store.MarkFailed(failCtx, job.ID, cause.Error()); err != nil && !errors.Is(err, ErrJobNotFound) {
		log.Error().Err(err).Msg("failed to mark reminder job failed")
	}
}

// finishContext detaches the final status write from the run context so a
// shutdown mid-job does not leave the row claimed.
func finishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
}
