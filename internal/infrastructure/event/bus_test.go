package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/persistence"
)

type productUpdatedEvent struct {
	shared.BaseDomainEvent
	ProductID string `json:"product_id"`
}

func newProductUpdatedEvent(productID string) *productUpdatedEvent {
	return &productUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("product.updated", "Product", uuid.New(), uuid.New()),
		ProductID:       productID,
	}
}

type orderCreatedEvent struct {
	shared.BaseDomainEvent
}

func newOrderCreatedEvent() *orderCreatedEvent {
	return &orderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("order.created", "Order", uuid.New(), uuid.New()),
	}
}

// recordingHandler counts deliveries per event ID and can fail the first
// attempt for each event
type recordingHandler struct {
	mu           sync.Mutex
	attempts     map[uuid.UUID]int
	failFirst    bool
	eventTypes   []string
	handledCount int
}

func newRecordingHandler(failFirst bool, eventTypes ...string) *recordingHandler {
	return &recordingHandler{
		attempts:   make(map[uuid.UUID]int),
		failFirst:  failFirst,
		eventTypes: eventTypes,
	}
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attempts[event.EventID()]++
	if h.failFirst && h.attempts[event.EventID()] == 1 {
		return fmt.Errorf("transient failure for %s", event.EventID())
	}
	h.handledCount++
	return nil
}

func (h *recordingHandler) EventTypes() []string { return h.eventTypes }

func (h *recordingHandler) handled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handledCount
}

func newTestEventRepo(t *testing.T) shared.EventRecordRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each pooled :memory: connection is its own empty database; the
	// distributor delivers concurrently, so pin the pool to one
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))

	return persistence.NewGormEventRecordRepository(db)
}

func newTestBus(repo shared.EventRecordRepository, queueSize int) *Bus {
	serializer := NewEventSerializer()
	serializer.Register("product.updated", &productUpdatedEvent{})
	serializer.Register("order.created", &orderCreatedEvent{})
	return NewBus(repo, serializer, zap.NewNop(), queueSize)
}

func setupBus(t *testing.T, queueSize int) (*Bus, shared.EventRecordRepository) {
	t.Helper()
	repo := newTestEventRepo(t)
	return newTestBus(repo, queueSize), repo
}

func testDistributorConfig() DistributorConfig {
	cfg := DefaultDistributorConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.HandlerTimeout = time.Second
	cfg.CleanupEnabled = false
	return cfg
}

func TestBus_Publish_PersistsBeforeEnqueue(t *testing.T) {
	bus, repo := setupBus(t, 10)

	require.NoError(t, bus.Publish(context.Background(), newProductUpdatedEvent("p1")))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.EventStatusPending])
}

func TestBus_Publish_QueueOverflowRejected(t *testing.T) {
	bus, repo := setupBus(t, 1)

	require.NoError(t, bus.Publish(context.Background(), newProductUpdatedEvent("p1")))
	err := bus.Publish(context.Background(), newProductUpdatedEvent("p2"))
	assert.ErrorIs(t, err, shared.ErrQueueFull)

	// the rejected event is still persisted for the retry poller
	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[shared.EventStatusPending])
}

func TestBus_TypedDispatch(t *testing.T) {
	bus, _ := setupBus(t, 100)

	productHandler := newRecordingHandler(false, "product.updated")
	orderHandler := newRecordingHandler(false, "order.created")
	bus.Subscribe(productHandler)
	bus.Subscribe(orderHandler)

	distributor := NewDistributor(bus, testDistributorConfig(), zap.NewNop())
	require.NoError(t, distributor.Start(context.Background()))
	defer func() { _ = distributor.Stop(context.Background()) }()

	require.NoError(t, bus.Publish(context.Background(), newProductUpdatedEvent("p1")))
	require.NoError(t, bus.Publish(context.Background(), newOrderCreatedEvent()))

	require.Eventually(t, func() bool {
		return productHandler.handled() == 1 && orderHandler.handled() == 1
	}, 3*time.Second, 20*time.Millisecond)

	// neither handler saw the other's event type
	assert.Equal(t, 1, len(productHandler.attempts))
	assert.Equal(t, 1, len(orderHandler.attempts))
}

func TestBus_PriorityOrderingAtDequeue(t *testing.T) {
	bus, _ := setupBus(t, 100)
	bus.SetEventPriority("order.created", shared.PriorityHigh)
	bus.SetEventPriority("product.updated", shared.PriorityLow)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent("p1")))
	require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent("p2")))
	require.NoError(t, bus.Publish(ctx, newOrderCreatedEvent()))

	records := bus.dequeue(10)
	require.Len(t, records, 3)
	assert.Equal(t, "order.created", records[0].EventType)
	// FIFO within the low class
	assert.Equal(t, "product.updated", records[1].EventType)
	assert.Equal(t, "product.updated", records[2].EventType)
}

func TestDistributor_RetryThenSucceed_EmptyDeadLetter(t *testing.T) {
	bus, repo := setupBus(t, 200)

	handler := newRecordingHandler(true, "product.updated")
	bus.Subscribe(handler)

	distributor := NewDistributor(bus, testDistributorConfig(), zap.NewNop())
	require.NoError(t, distributor.Start(context.Background()))
	defer func() { _ = distributor.Stop(context.Background()) }()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent(fmt.Sprintf("p%d", i))))
	}

	// every event fails its first delivery, backs off, and succeeds on retry
	require.Eventually(t, func() bool {
		counts, err := repo.CountByStatus(ctx)
		if err != nil {
			return false
		}
		return counts[shared.EventStatusCompleted] == 100
	}, 10*time.Second, 50*time.Millisecond)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[shared.EventStatusDead])

	stats := distributor.GetStats()
	assert.Equal(t, int64(100), stats.Processed["product.updated"])
	assert.Equal(t, int64(100), stats.Failed["product.updated"])
	assert.Equal(t, int64(0), stats.Dead["product.updated"])
}

// panickyHandler panics on its first delivery, then succeeds
type panickyHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *panickyHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()
	if first {
		panic("handler exploded")
	}
	return nil
}

func (h *panickyHandler) EventTypes() []string { return []string{"product.updated"} }

func (h *panickyHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestDistributor_HandlerPanicFailsDelivery(t *testing.T) {
	bus, repo := setupBus(t, 10)

	handler := &panickyHandler{}
	bus.Subscribe(handler)

	distributor := NewDistributor(bus, testDistributorConfig(), zap.NewNop())
	require.NoError(t, distributor.Start(context.Background()))
	defer func() { _ = distributor.Stop(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent("p1")))

	// the panicking first attempt counts as a failure and is retried
	require.Eventually(t, func() bool {
		counts, err := repo.CountByStatus(ctx)
		return err == nil && counts[shared.EventStatusCompleted] == 1
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, 2, handler.callCount())
	stats := distributor.GetStats()
	assert.Equal(t, int64(1), stats.Failed["product.updated"])
	assert.Equal(t, int64(1), stats.Processed["product.updated"])
}

// flakyClaimRepo fails the first Update so a delivery cannot claim its row
type flakyClaimRepo struct {
	shared.EventRecordRepository
	mu     sync.Mutex
	failed bool
}

func (r *flakyClaimRepo) Update(ctx context.Context, record *shared.EventRecord) error {
	r.mu.Lock()
	first := !r.failed
	r.failed = true
	r.mu.Unlock()
	if first {
		return fmt.Errorf("transient store error")
	}
	return r.EventRecordRepository.Update(ctx, record)
}

func TestDistributor_FailedClaimIsRequeued(t *testing.T) {
	repo := &flakyClaimRepo{EventRecordRepository: newTestEventRepo(t)}
	bus := newTestBus(repo, 10)

	handler := newRecordingHandler(false, "product.updated")
	bus.Subscribe(handler)

	distributor := NewDistributor(bus, testDistributorConfig(), zap.NewNop())
	require.NoError(t, distributor.Start(context.Background()))
	defer func() { _ = distributor.Stop(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent("p1")))

	// the failed claim puts the record back in the queue instead of
	// stranding the pending row until the next restart
	require.Eventually(t, func() bool {
		return handler.handled() == 1
	}, 5*time.Second, 20*time.Millisecond)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.EventStatusCompleted])
}

func TestBus_ConfiguredRetryCeiling(t *testing.T) {
	bus, repo := setupBus(t, 10)
	bus.SetMaxRetries(2)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, newProductUpdatedEvent("p1")))

	records, err := repo.FindUnfinished(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].MaxRetries)

	// an always-failing handler dead-letters after exactly two attempts
	record := records[0]
	record.MarkFailed("boom")
	require.False(t, record.IsDead())
	record.MarkFailed("boom")
	assert.True(t, record.IsDead())
}

func TestDistributor_StartupRecovery(t *testing.T) {
	bus, repo := setupBus(t, 100)
	ctx := context.Background()

	// simulate rows left behind by a previous process
	event := shared.NewBaseDomainEvent("product.updated", "Product", uuid.New(), uuid.New())
	abandoned := shared.NewEventRecord(&event, []byte(`{"product_id":"p1"}`), shared.PriorityNormal)
	require.NoError(t, abandoned.MarkProcessing())
	require.NoError(t, repo.Save(ctx, abandoned))

	handler := newRecordingHandler(false, "product.updated")
	bus.Subscribe(handler)

	distributor := NewDistributor(bus, testDistributorConfig(), zap.NewNop())
	require.NoError(t, distributor.Start(ctx))
	defer func() { _ = distributor.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return handler.handled() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDistributor_DeadLetterReinjection(t *testing.T) {
	bus, repo := setupBus(t, 100)
	ctx := context.Background()

	event := shared.NewBaseDomainEvent("product.updated", "Product", uuid.New(), uuid.New())
	dead := shared.NewEventRecord(&event, []byte(`{"product_id":"p1"}`), shared.PriorityNormal)
	for i := 0; i < dead.MaxRetries; i++ {
		dead.MarkFailed("handler error")
	}
	require.True(t, dead.IsDead())
	require.NoError(t, repo.Save(ctx, dead))

	handler := newRecordingHandler(false, "product.updated")
	bus.Subscribe(handler)

	cfg := testDistributorConfig()
	cfg.DeadRetryEnabled = true
	cfg.DeadRetryWindow = 50 * time.Millisecond

	distributor := NewDistributor(bus, cfg, zap.NewNop())
	require.NoError(t, distributor.Start(ctx))
	defer func() { _ = distributor.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return handler.handled() == 1
	}, 3*time.Second, 20*time.Millisecond)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.EventStatusCompleted])
}
