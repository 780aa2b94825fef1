package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blingsync/backend/internal/domain/shared"
)

// DistributorConfig holds distributor tuning knobs
type DistributorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	HandlerTimeout   time.Duration
	MaxConcurrency   int
	DeadRetryEnabled bool
	DeadRetryWindow  time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	// RecoveryWindow bounds how far back startup recovery reloads
	// non-terminal event rows
	RecoveryWindow time.Duration
}

// DefaultDistributorConfig returns sensible defaults
func DefaultDistributorConfig() DistributorConfig {
	return DistributorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		HandlerTimeout:   30 * time.Second,
		MaxConcurrency:   10,
		DeadRetryEnabled: true,
		DeadRetryWindow:  time.Hour,
		CleanupEnabled:   true,
		CleanupRetention: 168 * time.Hour,
		RecoveryWindow:   24 * time.Hour,
	}
}

// Stats holds per-event-type delivery counters
type Stats struct {
	Processed map[string]int64 `json:"processed"`
	Failed    map[string]int64 `json:"failed"`
	Dead      map[string]int64 `json:"dead"`
}

// Distributor drains the bus queue and delivers events to their registered
// handlers. Failed deliveries are retried from the persisted rows with
// exponential backoff; exhausted records move to the dead-letter status and
// an optional low-frequency loop re-injects a bounded sample of them.
type Distributor struct {
	bus    *Bus
	repo   shared.EventRecordRepository
	config DistributorConfig
	logger *zap.Logger

	statsMu        sync.Mutex
	processedCount map[string]int64
	failedCount    map[string]int64
	deadCount      map[string]int64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDistributor creates a new event distributor for the given bus
func NewDistributor(bus *Bus, config DistributorConfig, logger *zap.Logger) *Distributor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &Distributor{
		bus:            bus,
		repo:           bus.repo,
		config:         config,
		logger:         logger,
		processedCount: make(map[string]int64),
		failedCount:    make(map[string]int64),
		deadCount:      make(map[string]int64),
		stopChan:       make(chan struct{}),
	}
}

// Start recovers persisted events and launches the background loops
func (d *Distributor) Start(ctx context.Context) error {
	if err := d.recover(ctx); err != nil {
		return err
	}

	d.wg.Add(1)
	go d.drainLoop()

	if d.config.DeadRetryEnabled {
		d.wg.Add(1)
		go d.deadRetryLoop()
	}
	if d.config.CleanupEnabled {
		d.wg.Add(1)
		go d.cleanupLoop()
	}

	d.logger.Info("event distributor started",
		zap.Int("batch_size", d.config.BatchSize),
		zap.Int("max_concurrency", d.config.MaxConcurrency),
	)
	return nil
}

// Stop stops the background loops and waits for in-flight deliveries
func (d *Distributor) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stopChan) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("event distributor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns a snapshot of the per-event-type delivery counters
func (d *Distributor) GetStats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	stats := Stats{
		Processed: make(map[string]int64, len(d.processedCount)),
		Failed:    make(map[string]int64, len(d.failedCount)),
		Dead:      make(map[string]int64, len(d.deadCount)),
	}
	for k, v := range d.processedCount {
		stats.Processed[k] = v
	}
	for k, v := range d.failedCount {
		stats.Failed[k] = v
	}
	for k, v := range d.deadCount {
		stats.Dead[k] = v
	}
	return stats
}

// recover reloads non-terminal event rows from a recent window back into
// the live queue so a restart never strands accepted events
func (d *Distributor) recover(ctx context.Context) error {
	since := time.Now().Add(-d.config.RecoveryWindow)
	records, err := d.repo.FindUnfinished(ctx, since, d.config.BatchSize*10)
	if err != nil {
		return err
	}

	recovered := 0
	for _, record := range records {
		if record.Status == shared.EventStatusProcessing {
			if err := record.ResetForRecovery(); err != nil {
				continue
			}
			if err := d.repo.Update(ctx, record); err != nil {
				d.logger.Error("failed to reset abandoned event", zap.Error(err))
				continue
			}
		}
		// failed rows with a future retry time stay with the poller
		if record.Status == shared.EventStatusFailed {
			continue
		}
		if d.bus.enqueue(record) {
			recovered++
		}
	}

	if recovered > 0 {
		d.logger.Info("recovered persisted events into queue", zap.Int("count", recovered))
	}
	return nil
}

// drainLoop processes queued events, waking on notification or poll tick
func (d *Distributor) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			// final drain so accepted events in the queue are not stranded
			d.drain()
			return
		case <-d.bus.notify:
			d.drain()
		case <-ticker.C:
			d.drain()
			d.pollRetryable()
		}
	}
}

// drain delivers one batch from the in-memory queue under the concurrency cap
func (d *Distributor) drain() {
	records := d.bus.dequeue(d.config.BatchSize)
	if len(records) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(d.config.MaxConcurrency)
	for _, record := range records {
		record := record
		g.Go(func() error {
			d.deliver(record)
			return nil
		})
	}
	_ = g.Wait()
}

// pollRetryable picks up failed rows whose backoff has elapsed
func (d *Distributor) pollRetryable() {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.PollInterval)
	defer cancel()

	records, err := d.repo.FindRetryable(ctx, time.Now(), d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to poll retryable events", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(d.config.MaxConcurrency)
	for _, record := range records {
		record := record
		g.Go(func() error {
			d.deliver(record)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver dispatches one record to its handlers with a bounded timeout
func (d *Distributor) deliver(record *shared.EventRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.HandlerTimeout)
	defer cancel()

	if err := record.MarkProcessing(); err != nil {
		// already claimed or terminal
		return
	}
	if err := d.repo.Update(ctx, record); err != nil {
		d.logger.Error("failed to claim event record", zap.Error(err))
		// put the record back so a later drain retries the claim instead
		// of stranding the row until the next restart
		if resetErr := record.ResetForRecovery(); resetErr == nil && !d.bus.enqueue(record) {
			d.logger.Warn("queue full, unclaimed event left for startup recovery",
				zap.String("event_type", record.EventType),
			)
		}
		return
	}

	if err := d.dispatch(ctx, record); err != nil {
		record.MarkFailed(err.Error())
		d.recordFailure(record)
		d.logger.Warn("event delivery failed",
			zap.String("event_type", record.EventType),
			zap.Int("retry_count", record.RetryCount),
			zap.Bool("dead", record.IsDead()),
			zap.Error(err),
		)
	} else {
		record.MarkCompleted()
		d.recordSuccess(record.EventType)
	}

	if err := d.repo.Update(ctx, record); err != nil {
		d.logger.Error("failed to update event record", zap.Error(err))
	}
}

// dispatch deserializes the payload and invokes every registered handler.
// The first handler error fails the delivery; the retry redelivers to all
// handlers, so handlers must be idempotent.
func (d *Distributor) dispatch(ctx context.Context, record *shared.EventRecord) error {
	domainEvent, err := d.bus.serializer.Deserialize(record.EventType, record.Payload)
	if err != nil {
		return err
	}

	handlers := d.bus.registry.GetHandlers(record.EventType)
	if len(handlers) == 0 {
		d.logger.Debug("no handlers registered for event type",
			zap.String("event_type", record.EventType),
		)
		return nil
	}

	for _, handler := range handlers {
		if err := d.safeHandle(ctx, handler, domainEvent); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (d *Distributor) safeHandle(ctx context.Context, handler shared.EventHandler, domainEvent shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event_type", domainEvent.EventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, domainEvent)
}

// deadRetryLoop re-injects a bounded sample of dead-lettered events
func (d *Distributor) deadRetryLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DeadRetryWindow)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.reinjectDead()
		}
	}
}

func (d *Distributor) reinjectDead() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	records, err := d.repo.FindDead(ctx, d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to load dead-lettered events", zap.Error(err))
		return
	}

	for _, record := range records {
		if err := record.ResetForRetry(); err != nil {
			continue
		}
		if err := d.repo.Update(ctx, record); err != nil {
			d.logger.Error("failed to reset dead-lettered event", zap.Error(err))
			continue
		}
		d.bus.enqueue(record)
	}

	if len(records) > 0 {
		d.logger.Info("re-injected dead-lettered events", zap.Int("count", len(records)))
	}
}

// cleanupLoop deletes completed event rows past the retention window
func (d *Distributor) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			deleted, err := d.repo.DeleteOlderThan(ctx, time.Now().Add(-d.config.CleanupRetention))
			cancel()
			if err != nil {
				d.logger.Error("event cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				d.logger.Info("cleaned up completed events", zap.Int64("deleted", deleted))
			}
		}
	}
}

func (d *Distributor) recordSuccess(eventType string) {
	d.statsMu.Lock()
	d.processedCount[eventType]++
	d.statsMu.Unlock()
}

func (d *Distributor) recordFailure(record *shared.EventRecord) {
	d.statsMu.Lock()
	d.failedCount[record.EventType]++
	if record.IsDead() {
		d.deadCount[record.EventType]++
	}
	d.statsMu.Unlock()
}
