// Package scheduler implements the scheduling engine: the in-memory
// registry of scheduled jobs, per-job gating, dispatch to the HTTP invoker
// and the durable execution-log writer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/webcron/internal/database"
	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/logger"
	"github.com/jonesrussell/webcron/internal/schedule"
)

const (
	// defaultDrainTimeout bounds the shutdown wait for in-flight
	// executions: the longest request timeout plus the full backoff sum.
	defaultDrainTimeout = time.Duration(domain.MaxRequestTimeoutMs)*time.Millisecond + 7*time.Second
)

// JobStore is the job persistence surface the engine needs.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*domain.CronJob, error)
	ListActive(ctx context.Context) ([]*domain.CronJob, error)
	UpdateRuntime(ctx context.Context, id string, update database.RuntimeUpdate) error
}

// Invoker executes one job's HTTP request and yields one execution log.
type Invoker interface {
	Execute(ctx context.Context, job *domain.CronJob, manual bool) *domain.ExecutionLog
}

// Status describes a registered job's in-memory state.
type Status string

const (
	// StatusIdle means no execution is in flight.
	StatusIdle Status = "idle"
	// StatusRunning means at least one execution is in flight.
	StatusRunning Status = "running"
	// StatusError means the most recent execution failed.
	StatusError Status = "error"
)

// entry is the per-job registry state. Its mutex makes the gating check and
// the running-counter increment atomic per job.
type entry struct {
	mu sync.Mutex

	job     *domain.CronJob
	sched   *schedule.Schedule
	entryID cron.EntryID

	running int
	status  Status
	lastRun time.Time
	nextRun time.Time
}

// JobState is a snapshot of one registry entry for observability.
type JobState struct {
	JobID   string     `json:"jobId"`
	Name    string     `json:"name"`
	Running int        `json:"running"`
	Status  Status     `json:"status"`
	LastRun *time.Time `json:"lastRun,omitempty"`
	NextRun *time.Time `json:"nextRun,omitempty"`
}

// Scheduler owns the registry and the timers. A single cron runner drives
// both schedule dialects; repeat schedules are installed as "@every"
// descriptors.
type Scheduler struct {
	logger  logger.Interface
	jobs    JobStore
	writer  *LogWriter
	invoker Invoker
	parser  *schedule.Parser

	cron      *cron.Cron
	entries   map[string]*entry
	entriesMu sync.RWMutex

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	drainTimeout time.Duration
}

// New creates a new scheduler. The cron runner evaluates expressions in the
// parser's location and recovers from callback panics.
func New(
	log logger.Interface,
	jobs JobStore,
	writer *LogWriter,
	invoker Invoker,
	parser *schedule.Parser,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	cronParser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(parser.Location()),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	return &Scheduler{
		logger:       log,
		jobs:         jobs,
		writer:       writer,
		invoker:      invoker,
		parser:       parser,
		cron:         c,
		entries:      make(map[string]*entry),
		ctx:          ctx,
		cancel:       cancel,
		drainTimeout: defaultDrainTimeout,
	}
}

// Start starts the cron runner and registers all active jobs from the store.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")
	s.cron.Start()

	jobs, err := s.jobs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active jobs: %w", err)
	}

	registered := 0
	for _, job := range jobs {
		if regErr := s.Register(job); regErr != nil {
			s.logger.Error("Failed to register job on startup",
				"job_id", job.ID,
				"schedule", job.Schedule,
				"error", regErr)
			continue
		}
		registered++
	}

	s.logger.Info("Scheduler started", "jobs_registered", registered)
	return nil
}

// Stop stops all timers, lets in-flight executions drain within the drain
// budget, then cancels whatever is left.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All in-flight executions drained")
	case <-time.After(s.drainTimeout):
		s.logger.Warn("Drain timeout exceeded, cancelling in-flight executions",
			"timeout", s.drainTimeout.String())
	}

	s.cancel()
	s.logger.Info("Scheduler stopped")
	return nil
}

// Register validates a job's schedule and installs its timer. Registration
// is idempotent: an existing timer is removed and reinstalled. Registering
// an inactive job only clears any existing timer.
func (s *Scheduler) Register(job *domain.CronJob) error {
	sched, err := s.parser.Parse(job.Schedule, job.ScheduleType)
	if err != nil {
		return err
	}

	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	// A replacement entry inherits the in-flight count from the one it
	// displaces, so gating stays correct across mid-flight updates.
	inFlight := 0
	if old, exists := s.entries[job.ID]; exists {
		old.mu.Lock()
		inFlight = old.running
		old.mu.Unlock()
	}

	s.removeLocked(job.ID)

	if !job.IsActive {
		s.logger.Debug("Job is inactive, not scheduling", "job_id", job.ID)
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(sched.CronSpec(), func() {
		s.dispatch(jobID)
	})
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, err.Error())
	}

	e := &entry{
		job:     job,
		sched:   sched,
		entryID: entryID,
		running: inFlight,
		status:  StatusIdle,
		nextRun: sched.NextAfter(time.Now()),
	}
	if inFlight > 0 {
		e.status = StatusRunning
	}
	s.entries[job.ID] = e

	s.logger.Info("Job scheduled",
		"job_id", job.ID,
		"name", job.Name,
		"schedule", job.Schedule,
		"schedule_type", job.ScheduleType,
		"next_run", e.nextRun.Format(time.RFC3339))
	return nil
}

// Update reloads a job from the store and re-registers it. A job that
// disappeared from the store is removed from the registry.
func (s *Scheduler) Update(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.Remove(jobID)
			return nil
		}
		return fmt.Errorf("failed to reload job: %w", err)
	}

	return s.Register(job)
}

// Enable reloads a job and registers it.
func (s *Scheduler) Enable(ctx context.Context, jobID string) error {
	return s.Update(ctx, jobID)
}

// Disable removes a job's timer and registry entry. In-flight executions
// are not cancelled.
func (s *Scheduler) Disable(jobID string) {
	s.Remove(jobID)
}

// Remove removes a job's timer and registry entry. In-flight executions
// complete; their finalizer tolerates the missing entry.
func (s *Scheduler) Remove(jobID string) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	s.removeLocked(jobID)
}

// removeLocked removes the timer and entry for a job id. Callers hold
// entriesMu.
func (s *Scheduler) removeLocked(jobID string) {
	e, exists := s.entries[jobID]
	if !exists {
		return
	}
	s.cron.Remove(e.entryID)
	delete(s.entries, jobID)
	s.logger.Debug("Job unscheduled", "job_id", jobID)
}

// lookup returns the registry entry for a job id.
func (s *Scheduler) lookup(jobID string) (*entry, bool) {
	s.entriesMu.RLock()
	defer s.entriesMu.RUnlock()
	e, exists := s.entries[jobID]
	return e, exists
}

// dispatch handles one fire event for a job. It runs on the cron callback
// goroutine and must stay short: it reloads the job, applies the gating
// policy and hands the execution off to its own goroutine.
func (s *Scheduler) dispatch(jobID string) {
	e, exists := s.lookup(jobID)
	if !exists {
		s.logger.Warn("Fire for unregistered job, ignoring", "job_id", jobID)
		return
	}

	job, err := s.jobs.GetByID(s.ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Job disappeared from store, unscheduling", "job_id", jobID)
			s.Remove(jobID)
			return
		}
		s.logger.Warn("Failed to reload job, skipping fire", "job_id", jobID, "error", err)
		return
	}
	if !job.IsActive {
		s.logger.Info("Job is no longer active, unscheduling", "job_id", jobID)
		s.Remove(jobID)
		return
	}

	if !s.admit(e, job) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(job, false)
	}()
}

// admit applies the gating policy and, when the fire proceeds, increments
// the running counter and persists it. The check and the increment are
// atomic under the entry mutex.
func (s *Scheduler) admit(e *entry, job *domain.CronJob) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	limit := job.ConcurrencyLimit()
	if e.running >= limit {
		s.logger.Warn("Skipping fire, job at concurrency limit",
			"job_id", job.ID,
			"execution_mode", job.ExecutionMode,
			"running", e.running,
			"limit", limit)
		return false
	}

	e.job = job
	e.running++
	e.status = StatusRunning
	e.lastRun = time.Now()

	running := e.running
	if err := s.jobs.UpdateRuntime(s.ctx, job.ID, database.RuntimeUpdate{
		CurrentRunning: &running,
	}); err != nil {
		s.logger.Warn("Failed to persist running counter", "job_id", job.ID, "error", err)
	}

	return true
}

// execute runs the attempt sequence for one admitted fire, writes the
// execution log and finalizes the registry entry and runtime counters.
func (s *Scheduler) execute(job *domain.CronJob, manual bool) *domain.ExecutionLog {
	log := s.invoker.Execute(s.ctx, job, manual)
	s.writer.Append(s.ctx, log)
	s.finalize(job, log)
	return log
}

// finalize decrements the running counter, refreshes the observability
// fields and persists the runtime update. It resolves the registry entry
// fresh: the entry admitted under may have been replaced mid-flight by a
// re-registration, and the replacement carries the in-flight count. Store
// failures are logged and accepted: the counters are observational and
// drift is tolerated.
func (s *Scheduler) finalize(job *domain.CronJob, log *domain.ExecutionLog) {
	now := time.Now()
	update := database.RuntimeUpdate{
		LastExecutedAt: &now,
	}
	count := job.ExecutionCount + 1
	update.ExecutionCount = &count

	// The entry may have been removed mid-flight; the finalizer still
	// persists what it can.
	if e, registered := s.lookup(job.ID); registered {
		e.mu.Lock()
		if e.running > 0 {
			e.running--
		}
		if e.running == 0 {
			e.status = StatusIdle
			if log.Status == domain.ExecutionFailed {
				e.status = StatusError
			}
		}
		e.nextRun = e.sched.NextAfter(now)
		running := e.running
		e.mu.Unlock()

		update.CurrentRunning = &running
	}

	if err := s.jobs.UpdateRuntime(s.ctx, job.ID, update); err != nil {
		s.logger.Warn("Failed to persist runtime fields after execution",
			"job_id", job.ID, "error", err)
	}
}

// ExecuteManually performs the same dispatch steps as a scheduled fire,
// bypassing the timer, and returns the resulting execution log. Rate
// limiting is the API layer's concern, not the engine's.
func (s *Scheduler) ExecuteManually(ctx context.Context, jobID string) (*domain.ExecutionLog, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsActive {
		return nil, domain.ErrInactive
	}

	e, exists := s.lookup(jobID)
	if !exists {
		// The engine may not know an active job yet (e.g. created while
		// the scheduler was down); register it on demand.
		if regErr := s.Register(job); regErr != nil {
			return nil, regErr
		}
		e, exists = s.lookup(jobID)
		if !exists {
			return nil, domain.ErrNotFound
		}
	}

	if !s.admit(e, job) {
		return nil, domain.ErrAlreadyRunning
	}

	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(job, true), nil
}

// IsJobRunning reports whether a job has at least one in-flight execution.
func (s *Scheduler) IsJobRunning(jobID string) bool {
	e, exists := s.lookup(jobID)
	if !exists {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running > 0
}

// JobState returns an observability snapshot for one job.
func (s *Scheduler) JobState(jobID string) (*JobState, bool) {
	e, exists := s.lookup(jobID)
	if !exists {
		return nil, false
	}
	state := snapshotEntry(jobID, e)
	return &state, true
}

// JobStates returns observability snapshots for all registered jobs.
func (s *Scheduler) JobStates() []JobState {
	s.entriesMu.RLock()
	ids := make([]string, 0, len(s.entries))
	entries := make([]*entry, 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.entriesMu.RUnlock()

	states := make([]JobState, 0, len(entries))
	for i, e := range entries {
		states = append(states, snapshotEntry(ids[i], e))
	}
	return states
}

// snapshotEntry copies an entry's observable fields under its mutex.
func snapshotEntry(jobID string, e *entry) JobState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := JobState{
		JobID:   jobID,
		Name:    e.job.Name,
		Running: e.running,
		Status:  e.status,
	}
	if !e.lastRun.IsZero() {
		last := e.lastRun
		state.LastRun = &last
	}
	if !e.nextRun.IsZero() {
		next := e.nextRun
		state.NextRun = &next
	}
	return state
}
