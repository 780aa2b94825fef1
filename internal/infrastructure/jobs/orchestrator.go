package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
)

// ProgressFunc lets a handler report fractional completion (0-100)
type ProgressFunc func(pct int)

// Handler executes one job type. Execute must honor ctx cancellation; the
// orchestrator treats a timeout exactly like a handler error.
type Handler interface {
	Execute(ctx context.Context, j *job.Job, progress ProgressFunc) (json.RawMessage, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, j *job.Job, progress ProgressFunc) (json.RawMessage, error)

// Execute implements Handler
func (f HandlerFunc) Execute(ctx context.Context, j *job.Job, progress ProgressFunc) (json.RawMessage, error) {
	return f(ctx, j, progress)
}

// handlerEntry pairs a handler with its per-type overrides
type handlerEntry struct {
	handler    Handler
	timeout    time.Duration
	maxRetries int
}

// HandlerOption customizes a registered job type
type HandlerOption func(*handlerEntry)

// WithTimeout overrides the default execution timeout for a job type
func WithTimeout(d time.Duration) HandlerOption {
	return func(e *handlerEntry) { e.timeout = d }
}

// WithMaxRetries overrides the default retry ceiling for a job type
func WithMaxRetries(n int) HandlerOption {
	return func(e *handlerEntry) { e.maxRetries = n }
}

// Config holds orchestrator tuning knobs
type Config struct {
	QueueSize         int
	MaxConcurrentJobs int
	TickInterval      time.Duration
	DefaultTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryFactor       float64
	ShutdownGrace     time.Duration
	// RefillInterval bounds how often queued rows are reloaded from the
	// database, catching jobs that overflowed the in-memory queue
	RefillInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		QueueSize:         500,
		MaxConcurrentJobs: 5,
		TickInterval:      time.Second,
		DefaultTimeout:    30 * time.Minute,
		MaxRetries:        3,
		RetryBaseDelay:    5 * time.Second,
		RetryFactor:       2.0,
		ShutdownGrace:     30 * time.Second,
		RefillInterval:    30 * time.Second,
	}
}

// Stats is a snapshot of orchestrator state
type Stats struct {
	Queued   int                  `json:"queued"`
	Active   int                  `json:"active"`
	ByStatus map[job.Status]int64 `json:"by_status"`
}

// Orchestrator schedules background jobs: accepts submissions, dispatches
// ready jobs under a concurrency cap, persists every transition, retries
// failures with exponential backoff, and recovers abandoned jobs on startup.
type Orchestrator struct {
	queue  *Queue
	repo   job.Repository
	bus    shared.EventPublisher
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[job.Type]*handlerEntry
	inFlight map[uuid.UUID]*job.Job

	active   sync.WaitGroup
	sem      chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

// NewOrchestrator creates a job orchestrator
func NewOrchestrator(repo job.Repository, bus shared.EventPublisher, config Config, logger *zap.Logger) *Orchestrator {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 5
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.RetryFactor < 1 {
		config.RetryFactor = 2.0
	}
	if config.RefillInterval <= 0 {
		config.RefillInterval = 30 * time.Second
	}
	return &Orchestrator{
		queue:    NewQueue(config.QueueSize),
		repo:     repo,
		bus:      bus,
		config:   config,
		logger:   logger,
		handlers: make(map[job.Type]*handlerEntry),
		inFlight: make(map[uuid.UUID]*job.Job),
		sem:      make(chan struct{}, config.MaxConcurrentJobs),
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a job type with optional overrides
func (o *Orchestrator) RegisterHandler(jobType job.Type, handler Handler, opts ...HandlerOption) {
	entry := &handlerEntry{
		handler:    handler,
		timeout:    o.config.DefaultTimeout,
		maxRetries: o.config.MaxRetries,
	}
	for _, opt := range opts {
		opt(entry)
	}

	o.mu.Lock()
	o.handlers[jobType] = entry
	o.mu.Unlock()
}

func (o *Orchestrator) entryFor(jobType job.Type) (*handlerEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.handlers[jobType]
	return entry, ok
}

// Enqueue validates, persists, and queues a new job
func (o *Orchestrator) Enqueue(ctx context.Context, jobType job.Type, tenantID uuid.UUID, payload json.RawMessage, priority shared.Priority) (*job.Job, error) {
	entry, ok := o.entryFor(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown job type %s", shared.ErrInvalidInput, jobType)
	}

	j := job.New(jobType, tenantID, payload, priority, entry.timeout, entry.maxRetries)
	if err := o.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := o.queue.Enqueue(j); err != nil {
		// the row stays queued; the refill loop picks it up once the
		// queue has room
		o.logger.Warn("job queue full, deferring to refill",
			zap.String("job_id", j.ID.String()),
			zap.String("job_type", string(jobType)),
		)
	}

	o.logger.Info("job enqueued",
		zap.String("job_id", j.ID.String()),
		zap.String("job_type", string(jobType)),
		zap.String("priority", string(j.Priority)),
	)
	return j, nil
}

// GetJob returns a persisted job snapshot
func (o *Orchestrator) GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return o.repo.FindByID(ctx, id)
}

// Start recovers persisted jobs and launches the scheduling loop
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Recover(ctx); err != nil {
		return err
	}

	go o.loop()

	o.logger.Info("job orchestrator started",
		zap.Int("max_concurrent", o.config.MaxConcurrentJobs),
	)
	return nil
}

// Recover reloads unfinished jobs from the database. Jobs left running by
// a crashed process are reset to queued; handlers are expected to be
// idempotent or resume from their own checkpoints.
func (o *Orchestrator) Recover(ctx context.Context) error {
	unfinished, err := o.repo.FindUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unfinished jobs: %w", err)
	}

	recovered := 0
	for _, j := range unfinished {
		if j.Status == job.StatusRunning {
			if err := j.ResetForRecovery(); err != nil {
				continue
			}
			if err := o.repo.Update(ctx, j); err != nil {
				o.logger.Error("failed to reset abandoned job",
					zap.String("job_id", j.ID.String()),
					zap.Error(err),
				)
				continue
			}
			recovered++
		}
		if err := o.queue.Enqueue(j); err != nil {
			// over-capacity jobs stay queued in the database
			break
		}
	}

	if recovered > 0 {
		o.logger.Info("recovered abandoned jobs", zap.Int("count", recovered))
	}
	return nil
}

// loop dispatches ready jobs every tick and periodically refills the queue
func (o *Orchestrator) loop() {
	defer close(o.loopDone)

	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()

	refill := time.NewTicker(o.config.RefillInterval)
	defer refill.Stop()

	for {
		select {
		case <-o.stopChan:
			return
		case <-refill.C:
			o.refill()
		case <-ticker.C:
			o.dispatchReady()
		}
	}
}

// dispatchReady starts as many ready jobs as the concurrency cap allows
func (o *Orchestrator) dispatchReady() {
	for {
		select {
		case o.sem <- struct{}{}:
		default:
			return // at the concurrency cap
		}

		j := o.queue.DequeueReady(time.Now())
		if j == nil {
			<-o.sem
			return
		}

		o.active.Add(1)
		o.trackInFlight(j)
		go o.run(j)
	}
}

// run executes one job with a bounded timeout
func (o *Orchestrator) run(j *job.Job) {
	defer func() {
		o.untrackInFlight(j.ID)
		<-o.sem
		o.active.Done()
	}()

	entry, ok := o.entryFor(j.Type)
	if !ok {
		j.ForceFail("no handler registered for job type")
		o.persist(j)
		return
	}

	if err := j.Start(); err != nil {
		return
	}
	o.persist(j)

	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	result, err := o.execute(ctx, entry, j)
	if err != nil {
		o.handleFailure(j, err)
		return
	}

	if completeErr := j.Complete(result); completeErr != nil {
		o.logger.Error("failed to complete job",
			zap.String("job_id", j.ID.String()),
			zap.Error(completeErr),
		)
		return
	}
	o.persist(j)
	o.publish(job.NewCompletedEvent(j))

	o.logger.Info("job completed",
		zap.String("job_id", j.ID.String()),
		zap.String("job_type", string(j.Type)),
	)
}

// execute races the handler against the job timeout. Progress is persisted
// at every 10% step so observers see forward motion on long jobs.
func (o *Orchestrator) execute(ctx context.Context, entry *handlerEntry, j *job.Job) (json.RawMessage, error) {
	type outcome struct {
		result json.RawMessage
		err    error
	}

	// a timed-out handler goroutine may keep reporting progress after the
	// outcome is decided; those late calls must not touch the job again
	var progressMu sync.Mutex
	settled := false
	lastPersisted := 0
	progress := func(pct int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if settled {
			return
		}
		j.SetProgress(pct)
		if j.Progress/10 > lastPersisted/10 {
			lastPersisted = j.Progress
			o.persist(j)
		}
	}
	settle := func() {
		progressMu.Lock()
		settled = true
		progressMu.Unlock()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, err := entry.handler.Execute(ctx, j, progress)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		settle()
		return out.result, out.err
	case <-ctx.Done():
		settle()
		return nil, fmt.Errorf("job timed out after %s", j.Timeout)
	}
}

// handleFailure applies the retry policy and re-queues or terminally fails
func (o *Orchestrator) handleFailure(j *job.Job, execErr error) {
	j.Fail(execErr.Error(), o.config.RetryBaseDelay, o.config.RetryFactor)
	o.persist(j)

	if j.Status == job.StatusQueued {
		if err := o.queue.Enqueue(j); err != nil {
			o.logger.Warn("retry queue full, deferring to refill",
				zap.String("job_id", j.ID.String()),
			)
		}
		o.logger.Warn("job failed, retry scheduled",
			zap.String("job_id", j.ID.String()),
			zap.String("job_type", string(j.Type)),
			zap.Int("retry_count", j.RetryCount),
			zap.Error(execErr),
		)
		return
	}

	o.publish(job.NewFailedEvent(j))
	o.logger.Error("job failed terminally",
		zap.String("job_id", j.ID.String()),
		zap.String("job_type", string(j.Type)),
		zap.Int("retry_count", j.RetryCount),
		zap.Error(execErr),
	)
}

// refill reloads queued rows the in-memory queue is missing
func (o *Orchestrator) refill() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.RefillInterval)
	defer cancel()

	unfinished, err := o.repo.FindUnfinished(ctx)
	if err != nil {
		o.logger.Error("job refill failed", zap.Error(err))
		return
	}

	for _, j := range unfinished {
		if j.Status != job.StatusQueued {
			continue
		}
		if o.queue.Contains(j.ID) || o.isInFlight(j.ID) {
			continue
		}
		if err := o.queue.Enqueue(j); err != nil {
			return
		}
	}
}

// Stop drains gracefully: no new dispatches, a bounded wait for running
// jobs, then force-fail of whatever is still running
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stopChan) })
	<-o.loopDone

	done := make(chan struct{})
	go func() {
		o.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("job orchestrator stopped")
		return nil
	case <-time.After(o.config.ShutdownGrace):
	case <-ctx.Done():
	}

	// grace window elapsed with jobs still running
	for _, j := range o.snapshotInFlight() {
		j.ForceFail("shutdown grace period exceeded")
		o.persist(j)
		o.publish(job.NewFailedEvent(j))
	}
	o.logger.Warn("job orchestrator stopped with jobs force-failed")
	return nil
}

// GetStats returns queue depth, active workers, and persisted counts
func (o *Orchestrator) GetStats(ctx context.Context) (Stats, error) {
	byStatus, err := o.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}

	o.mu.RLock()
	active := len(o.inFlight)
	o.mu.RUnlock()

	return Stats{
		Queued:   o.queue.Len(),
		Active:   active,
		ByStatus: byStatus,
	}, nil
}

func (o *Orchestrator) persist(j *job.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.repo.Update(ctx, j); err != nil {
		o.logger.Error("failed to persist job transition",
			zap.String("job_id", j.ID.String()),
			zap.String("status", string(j.Status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publish(event shared.DomainEvent) {
	if o.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.bus.Publish(ctx, event); err != nil {
		o.logger.Error("failed to publish job event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) trackInFlight(j *job.Job) {
	o.mu.Lock()
	o.inFlight[j.ID] = j
	o.mu.Unlock()
}

func (o *Orchestrator) untrackInFlight(id uuid.UUID) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) isInFlight(id uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.inFlight[id]
	return exists
}

func (o *Orchestrator) snapshotInFlight() []*job.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	jobs := make([]*job.Job, 0, len(o.inFlight))
	for _, j := range o.inFlight {
		jobs = append(jobs, j)
	}
	return jobs
}
