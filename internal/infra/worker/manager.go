package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crime-scene-platform/internal/config"
	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/infra/metrics"
	"crime-scene-platform/internal/usecase"
)

// Manager runs one polling goroutine per registered worker plus a periodic
// recovery sweep. It owns the delivery protocol: a message is acked only after
// its outcome is durably recorded, so a crash at any point leads to a
// redelivery, never a loss.
type Manager struct {
	queue   qport.JobQueue
	jobs    repository.JobRepository
	jobUC   usecase.JobUseCase
	workers map[model.JobType]Worker
	qcfg    config.QueueConfig
	wcfg    config.WorkerConfig
	log     *zerolog.Logger

	wg         sync.WaitGroup
	pollCancel context.CancelFunc
	workCancel context.CancelFunc
}

func NewManager(
	queue qport.JobQueue,
	jobs repository.JobRepository,
	jobUC usecase.JobUseCase,
	workers []Worker,
	qcfg config.QueueConfig,
	wcfg config.WorkerConfig,
	logger *zerolog.Logger,
) *Manager {
	byType := make(map[model.JobType]Worker, len(workers))
	for _, w := range workers {
		byType[w.Type()] = w
	}
	return &Manager{
		queue:   queue,
		jobs:    jobs,
		jobUC:   jobUC,
		workers: byType,
		qcfg:    qcfg,
		wcfg:    wcfg,
		log:     logger,
	}
}

// RegisteredTypes returns the job types this manager polls for.
func (m *Manager) RegisteredTypes() []model.JobType {
	out := make([]model.JobType, 0, len(m.workers))
	for t := range m.workers {
		out = append(out, t)
	}
	return out
}

// Start launches the polling and recovery goroutines. It returns immediately;
// use Stop for a bounded drain.
func (m *Manager) Start(ctx context.Context) {
	// Two derived contexts: the poll context stops the loops from taking new
	// deliveries, the work context keeps already-claimed jobs running until
	// the drain deadline expires.
	pollCtx, pollCancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(ctx)
	m.pollCancel = pollCancel
	m.workCancel = workCancel

	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()
			m.pollLoop(pollCtx, workCtx, w)
		}(w)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.recoveryLoop(pollCtx)
	}()

	m.log.Info().Int("workers", len(m.workers)).Msg("worker manager started")
}

// Stop halts polling and waits up to the shutdown deadline for in-flight
// jobs to finish before cutting them off. A job still running at the
// deadline keeps its processing entry; the stale sweep redelivers it after
// the visibility timeout.
func (m *Manager) Stop() {
	if m.pollCancel != nil {
		m.pollCancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Msg("worker manager drained")
	case <-time.After(m.wcfg.ShutdownDeadline):
		m.log.Warn().
			Dur("deadline", m.wcfg.ShutdownDeadline).
			Msg("shutdown deadline hit, canceling in-flight jobs")
	}

	if m.workCancel != nil {
		m.workCancel()
	}
}

func (m *Manager) pollLoop(pollCtx, workCtx context.Context, w Worker) {
	log := m.log.With().Str("job_type", string(w.Type())).Logger()

	for {
		if pollCtx.Err() != nil {
			return
		}
		msg, err := m.queue.Dequeue(pollCtx, w.Type(), m.qcfg.PollTimeout)
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			m.sleep(pollCtx, m.qcfg.PollTimeout)
			continue
		}
		if msg == nil {
			continue
		}
		m.handle(workCtx, w, msg)
	}
}

func (m *Manager) handle(ctx context.Context, w Worker, msg *qport.JobMessage) {
	log := m.log.With().
		Str("job_id", msg.JobID.String()).
		Str("case_id", msg.CaseID.String()).
		Str("job_type", string(msg.Type)).
		Int("attempt", msg.Attempts).
		Logger()

	if !m.claim(ctx, &log, msg) {
		return
	}

	report := func(p int) {
		if err := m.jobs.SetProgress(ctx, msg.JobID, p); err != nil {
			log.Warn().Err(err).Int("progress", p).Msg("progress update failed")
		}
	}

	stopHeartbeat := m.startHeartbeat(ctx, msg.JobID)
	start := time.Now()
	res, perr := w.Process(ctx, msg, report)
	stopHeartbeat()
	metrics.ObserveJobDuration(string(msg.Type), time.Since(start).Seconds())

	if perr == nil {
		committed, err := m.jobUC.Complete(ctx, msg, res)
		if err != nil {
			// The work itself succeeded; only recording it failed. Retry the
			// whole delivery, the completion path is idempotent.
			log.Error().Err(err).Msg("recording job result failed")
			m.retryOrBury(ctx, &log, msg, err)
			return
		}
		if !committed {
			log.Info().Msg("job result discarded")
		}
		m.ack(ctx, &log, msg)
		return
	}

	if IsFatal(perr) {
		log.Error().Err(perr).Msg("job failed fatally")
		m.bury(ctx, &log, msg, perr)
		return
	}
	log.Warn().Err(perr).Msg("job attempt failed")
	m.retryOrBury(ctx, &log, msg, perr)
}

// claim flips the durable row to running. A redelivered message finds the row
// already running (the previous holder is presumed dead); that delivery
// proceeds. Terminal rows drop the message.
func (m *Manager) claim(ctx context.Context, log *zerolog.Logger, msg *qport.JobMessage) bool {
	err := m.jobs.MarkRunning(ctx, msg.JobID)
	if err == nil {
		return true
	}
	if !errors.Is(err, domain.ErrInvalidTransition) {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("message references an unknown job, dropping")
			m.ack(ctx, log, msg)
			return false
		}
		log.Error().Err(err).Msg("claim failed")
		m.retryOrBury(ctx, log, msg, err)
		return false
	}

	job, ferr := m.jobs.FindByID(ctx, repository.NoTX, msg.JobID)
	if ferr != nil {
		log.Error().Err(ferr).Msg("claim status check failed")
		m.retryOrBury(ctx, log, msg, ferr)
		return false
	}
	if job.Status == model.JobStatusRunning {
		// Stale redelivery; take over the heartbeat and run it.
		if herr := m.jobs.Heartbeat(ctx, msg.JobID); herr != nil {
			log.Warn().Err(herr).Msg("heartbeat on takeover failed")
		}
		return true
	}
	log.Info().Str("status", string(job.Status)).Msg("job already settled, dropping delivery")
	m.ack(ctx, log, msg)
	return false
}

// startHeartbeat refreshes the durable liveness stamp while Process runs, so
// the zombie sweep can tell a slow job from a dead worker.
func (m *Manager) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(m.wcfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := m.jobs.Heartbeat(hbCtx, jobID); err != nil && hbCtx.Err() == nil {
					m.log.Warn().Err(err).Str("job_id", jobID.String()).Msg("heartbeat failed")
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// retryOrBury re-queues the delivery when retry budget remains, otherwise
// dead-letters it and fails the job.
func (m *Manager) retryOrBury(ctx context.Context, log *zerolog.Logger, msg *qport.JobMessage, cause error) {
	if msg.Attempts >= m.qcfg.MaxRetries {
		m.bury(ctx, log, msg, cause)
		return
	}

	if err := m.jobs.MarkRequeued(ctx, msg.JobID, cause.Error()); err != nil &&
		!errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("requeue status update failed")
	}
	m.sleep(ctx, m.backoff(msg.Attempts))
	if err := m.queue.Nack(ctx, msg, m.qcfg.MaxRetries); err != nil {
		// The entry stays on the processing topic; the stale sweep will
		// redeliver it.
		log.Error().Err(err).Msg("nack failed")
		return
	}
	metrics.IncJobProcessed(string(msg.Type), "requeued")
}

// bury dead-letters the delivery and marks the job failed. Passing the
// message's own attempt count as the budget forces the DLQ branch.
func (m *Manager) bury(ctx context.Context, log *zerolog.Logger, msg *qport.JobMessage, cause error) {
	if err := m.jobs.MarkFailed(ctx, msg.JobID, cause.Error()); err != nil &&
		!errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("failed status update failed")
	}
	if err := m.queue.Nack(ctx, msg, msg.Attempts); err != nil {
		log.Error().Err(err).Msg("dead-letter nack failed")
		return
	}
	metrics.IncJobProcessed(string(msg.Type), "failed")
}

func (m *Manager) ack(ctx context.Context, log *zerolog.Logger, msg *qport.JobMessage) {
	if err := m.queue.Ack(ctx, msg); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}

// backoff returns the delay before re-queueing attempt n, doubling from the
// initial value up to the cap.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.wcfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.wcfg.MaxBackoff {
			return m.wcfg.MaxBackoff
		}
	}
	if d > m.wcfg.MaxBackoff {
		return m.wcfg.MaxBackoff
	}
	return d
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(m.qcfg.RecoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.recoverOnce(ctx)
		}
	}
}

// recoverOnce runs one maintenance sweep: reclaim stale deliveries, requeue
// or fail zombie jobs, refresh the depth gauges.
func (m *Manager) recoverOnce(ctx context.Context) {
	for t := range m.workers {
		if n, err := m.queue.RecoverStale(ctx, t); err != nil {
			m.log.Error().Err(err).Str("job_type", string(t)).Msg("stale recovery failed")
		} else if n > 0 {
			m.log.Info().Str("job_type", string(t)).Int("recovered", n).Msg("reclaimed stale deliveries")
		}
		m.reportDepths(ctx, t)
	}
	m.sweepZombies(ctx)
}

// sweepZombies handles the DB-side half of crash recovery: running rows whose
// heartbeat went silent. The queue-side entry (if any) is reclaimed by
// RecoverStale; the row is flipped back so state and queue agree.
func (m *Manager) sweepZombies(ctx context.Context) {
	zombies, err := m.jobs.FindZombies(ctx, m.wcfg.ZombieTimeout)
	if err != nil {
		m.log.Error().Err(err).Msg("zombie sweep failed")
		return
	}
	for _, job := range zombies {
		log := m.log.With().Str("job_id", job.ID.String()).Str("job_type", string(job.Type)).Logger()
		if job.RetryCount+1 >= m.qcfg.MaxRetries {
			if err := m.jobs.MarkFailed(ctx, job.ID, "worker heartbeat lost"); err != nil {
				log.Error().Err(err).Msg("failing zombie job failed")
			} else {
				log.Warn().Msg("zombie job failed after exhausting retries")
				metrics.IncJobProcessed(string(job.Type), "failed")
			}
			continue
		}
		if err := m.jobs.MarkRequeued(ctx, job.ID, "worker heartbeat lost"); err != nil {
			log.Error().Err(err).Msg("requeueing zombie job failed")
			continue
		}
		log.Warn().Msg("zombie job requeued")
	}
}

func (m *Manager) reportDepths(ctx context.Context, t model.JobType) {
	if n, err := m.queue.Len(ctx, t); err == nil {
		metrics.SetQueueDepth(string(t), "main", n)
	}
	if n, err := m.queue.ProcessingLen(ctx, t); err == nil {
		metrics.SetQueueDepth(string(t), "processing", n)
	}
	if n, err := m.queue.DLQLen(ctx, t); err == nil {
		metrics.SetQueueDepth(string(t), "dlq", n)
	}
}
