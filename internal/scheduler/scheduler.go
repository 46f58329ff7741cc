// Package scheduler enforces the concurrency bound and drives each job
// through its lifecycle: idle -> running -> success | error. A terminal job
// may be reset to idle with Retry and re-enters the same machine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"asset-studio/internal/domain"
	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
	"asset-studio/internal/infra/logging"
	"asset-studio/internal/infra/metrics"
	"asset-studio/internal/store"
)

type Scheduler struct {
	store  *store.Store
	client adapter.GenerationClient
	log    *zerolog.Logger

	// mu serializes slot accounting. cancels carries one entry per admitted
	// job from claim to completion and doubles as the running set, so two
	// concurrent queue passes can neither claim the same slot nor the same
	// job. The store writes and the generation calls happen outside mu,
	// which leaves store subscribers free to call back into the scheduler.
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(st *store.Store, client adapter.GenerationClient, logger *zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   st,
		client:  client,
		log:     logger,
		cancels: make(map[string]context.CancelFunc),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Store exposes the state store for read access and subscriptions.
func (s *Scheduler) Store() *store.Store { return s.store }

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Submit creates a new idle job and triggers a queue pass. It returns as soon
// as the job record exists; execution happens asynchronously.
func (s *Scheduler) Submit(params model.JobParams) (*model.Job, error) {
	return s.submit(params, "")
}

// SubmitBatch creates count independent idle jobs sharing params and a batch
// id, then triggers a single queue pass. count == 0 creates nothing.
func (s *Scheduler) SubmitBatch(count int, params model.JobParams) ([]*model.Job, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: batch count must not be negative", domain.ErrInvalidArgument)
	}
	if count == 0 {
		return nil, nil
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err)
	}
	if s.isClosed() {
		return nil, domain.ErrSchedulerClosed
	}

	batchID := ulid.Make().String()
	jobs := make([]*model.Job, 0, count)
	for i := 0; i < count; i++ {
		job := s.newJob(params, batchID)
		if err := s.store.AddJob(job); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	s.log.Info().Str("batch_id", batchID).Int("count", count).Msg("batch submitted")
	s.ProcessQueue()
	if s.isClosed() {
		for _, job := range jobs {
			s.sweepIfClosed(job)
		}
		return nil, domain.ErrSchedulerClosed
	}
	return jobs, nil
}

func (s *Scheduler) submit(params model.JobParams, batchID string) (*model.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err)
	}
	if s.isClosed() {
		return nil, domain.ErrSchedulerClosed
	}
	job := s.newJob(params, batchID)
	if err := s.store.AddJob(job); err != nil {
		return nil, err
	}
	s.log.Info().Str("job_id", job.ID).Str("kind", string(params.Kind)).Msg("job submitted")
	s.ProcessQueue()
	if s.sweepIfClosed(job) {
		return nil, domain.ErrSchedulerClosed
	}
	return job, nil
}

// sweepIfClosed handles a Close that raced the submission. A job can only be
// stranded idle when its queue pass observed the closed flag, and that
// observation happens before this re-check on the same mutex, so the re-check
// cannot miss it. Reports whether the job was swept.
func (s *Scheduler) sweepIfClosed(job *model.Job) bool {
	if !s.isClosed() {
		return false
	}
	if j, ok := s.store.Job(job.ID); ok && j.Status == model.JobStatusIdle {
		s.store.RemoveJob(job.ID)
		return true
	}
	return false
}

func (s *Scheduler) newJob(params model.JobParams, batchID string) *model.Job {
	return &model.Job{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		Params:      params,
		Status:      model.JobStatusIdle,
		SubmittedAt: time.Now(),
	}
}

// ProcessQueue admits idle jobs into free slots, FIFO by creation order.
// It is safe to invoke redundantly: with no free slots or no idle jobs it
// changes nothing, and jobs already running are never started twice.
func (s *Scheduler) ProcessQueue() {
	defer logging.TraceDuration(s.log, "Scheduler.ProcessQueue")()

	type launch struct {
		job *model.Job
		ctx context.Context
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var launches []launch
	slots := s.store.MaxConcurrent() - len(s.cancels)
	if slots > 0 {
		for _, job := range s.store.JobsByStatus(model.JobStatusIdle) {
			if len(launches) == slots {
				break
			}
			// A job claimed by a concurrent pass is still idle in the store
			// until start writes the running status.
			if _, claimed := s.cancels[job.ID]; claimed {
				continue
			}
			jobCtx, cancel := context.WithCancel(s.baseCtx)
			s.cancels[job.ID] = cancel
			s.wg.Add(1)
			launches = append(launches, launch{job: job, ctx: jobCtx})
		}
	}
	s.mu.Unlock()

	for _, l := range launches {
		s.start(l.ctx, l.job)
	}
}

// start marks one claimed job running and launches its goroutine.
func (s *Scheduler) start(ctx context.Context, job *model.Job) {
	now := time.Now()
	s.store.UpdateJob(job.ID, func(j *model.Job) {
		j.Status = model.JobStatusRunning
		j.StartedAt = &now
		j.EndedAt = nil
		j.Result = nil
		j.Failure = nil
		j.DurationSeconds = 0
	})
	s.log.Info().Str("job_id", job.ID).Msg("job started")

	go s.runJob(ctx, job)
}

// runJob performs the single generation call and records the outcome. A
// failure is contained to this job; the completion always triggers another
// queue pass so the pipeline keeps flowing.
func (s *Scheduler) runJob(ctx context.Context, job *model.Job) {
	defer s.wg.Done()
	defer s.ProcessQueue()

	ctx = logging.WithJobID(ctx, job.ID)
	if job.BatchID != "" {
		ctx = logging.WithBatchID(ctx, job.BatchID)
	}
	log := logging.With(ctx, s.log)

	callStart := time.Now()
	asset, err := s.invoke(ctx, job.Params)
	latency := time.Since(callStart)

	s.mu.Lock()
	delete(s.cancels, job.ID)
	s.mu.Unlock()

	now := time.Now()
	if err != nil {
		genErr := adapter.AsGenerationError(err)
		metrics.IncJobProcessed(string(model.JobStatusError))
		metrics.ObserveGeneration(s.client.Provider(), latency, false)
		s.store.UpdateJob(job.ID, func(j *model.Job) {
			j.Status = model.JobStatusError
			j.Failure = failureFrom(genErr)
			j.Result = nil
			j.EndedAt = &now
			j.DurationSeconds = duration(j, now)
		})
		log.Error().Err(genErr).Dur("duration", latency).Msg("job failed")
		return
	}

	metrics.IncJobProcessed(string(model.JobStatusSuccess))
	metrics.ObserveGeneration(s.client.Provider(), latency, true)
	s.store.UpdateJob(job.ID, func(j *model.Job) {
		j.Status = model.JobStatusSuccess
		j.Result = asset
		j.Failure = nil
		j.EndedAt = &now
		j.DurationSeconds = duration(j, now)
	})
	log.Info().Dur("duration", latency).Msg("job succeeded")
}

func (s *Scheduler) invoke(ctx context.Context, params model.JobParams) (*model.Asset, error) {
	if params.Kind == model.JobKindTransform {
		return s.client.Transform(ctx, adapter.TransformRequest{
			Source:    *params.Source,
			Direction: params.Direction,
			Width:     params.Width,
			Height:    params.Height,
		})
	}
	return s.client.Generate(ctx, adapter.GenerateRequest{
		Prompt: params.Prompt,
		Width:  params.Width,
		Height: params.Height,
		Seed:   params.Seed,
	})
}

func duration(j *model.Job, end time.Time) float64 {
	if j.StartedAt == nil {
		return 0
	}
	return end.Sub(*j.StartedAt).Seconds()
}

func failureFrom(err *adapter.GenerationError) *model.Failure {
	f := &model.Failure{Message: err.Message}
	if err.Cause != nil {
		f.Cause = err.Cause.Error()
	}
	return f
}

// Retry resets a terminal job to idle and triggers a queue pass. The job
// keeps its original creation-order slot, so it is admitted ahead of any
// idle job submitted after it.
func (s *Scheduler) Retry(id string) error {
	job, ok := s.store.Job(id)
	if !ok {
		return domain.ErrNotFound
	}
	if !job.Status.IsTerminal() {
		return domain.ErrJobNotTerminal
	}
	// The snapshot check above is advisory. The closure re-checks under the
	// store lock so a concurrent retry or admission cannot rewind a job that
	// is no longer terminal.
	reset := false
	s.store.UpdateJob(id, func(j *model.Job) {
		if !j.Status.IsTerminal() {
			return
		}
		j.Status = model.JobStatusIdle
		j.Result = nil
		j.Failure = nil
		j.StartedAt = nil
		j.EndedAt = nil
		j.DurationSeconds = 0
		reset = true
	})
	if !reset {
		return domain.ErrJobNotTerminal
	}
	s.log.Info().Str("job_id", id).Msg("job reset for retry")
	s.ProcessQueue()
	return nil
}

// Remove deletes a job record. If the job was running its in-flight call is
// cancelled and the freed slot may admit the next idle job. Unknown ids are
// a no-op.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	cancel, wasInFlight := s.cancels[id]
	if wasInFlight {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	removed := s.store.RemoveJob(id)
	if removed != nil && wasInFlight {
		s.ProcessQueue()
	}
}

// ClearAll empties the store and cancels every in-flight call. The store is
// cleared first: a queue pass racing the clear finds no idle jobs left to
// admit, and anything it already claimed still has its cancel entry when the
// drain below runs.
func (s *Scheduler) ClearAll() {
	s.store.ClearAll()

	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
}

// Metrics computes the on-demand metrics view from the current collection.
func (s *Scheduler) Metrics() model.SchedulerMetrics {
	snap := s.store.Snapshot()
	m := model.SchedulerMetrics{
		Total:   snap.Stats.Total,
		Running: snap.Stats.Running,
		Failed:  snap.Stats.Error,
	}
	for _, j := range snap.Jobs {
		if j.Status == model.JobStatusSuccess {
			m.Completed++
			m.TotalDurationSeconds += j.DurationSeconds
		}
	}
	if m.Completed > 0 {
		m.AverageDurationSeconds = m.TotalDurationSeconds / float64(m.Completed)
	}
	return m
}

// Close stops admitting jobs, cancels everything in flight and waits for the
// job goroutines to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
