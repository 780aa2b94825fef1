package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/domain/connection"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/domain/webhook"
	"github.com/blingsync/backend/internal/infrastructure/config"
)

// Sentinel errors surfaced to the HTTP layer
var (
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrStaleTimestamp    = errors.New("webhook timestamp outside freshness window")
	ErrMalformedPayload  = errors.New("webhook payload is malformed")
	ErrDuplicateDelivery = errors.New("webhook delivery already processed")
)

// Delivery is one incoming webhook as received by the HTTP layer, before
// any verification
type Delivery struct {
	TenantID   uuid.UUID
	DeliveryID string
	Body       []byte
	Signature  string
	Timestamp  string
}

// payload is the provider's envelope. Anything outside this shape is a hard
// rejection.
type payload struct {
	Event   string          `json:"event" validate:"required"`
	Data    json.RawMessage `json:"data" validate:"required"`
	Version string          `json:"version" validate:"required"`
}

// HandlerFunc turns one verified delivery into normalized internal events
type HandlerFunc func(ctx context.Context, tenantID uuid.UUID, data json.RawMessage) ([]shared.DomainEvent, error)

// Service is the webhook ingestion processor. Every delivery is verified
// (signature, timestamp freshness, payload shape), deduplicated, written to
// the audit table before any side effects, then republished as normalized
// events on the internal bus.
type Service struct {
	connections connection.Repository
	records     webhook.Repository
	idempotency shared.IdempotencyStore
	bus         shared.EventPublisher
	config      *config.WebhookConfig
	logger      *zap.Logger
	validate    *validator.Validate

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a webhook ingestion service with the default provider
// event handlers registered
func NewService(
	connections connection.Repository,
	records webhook.Repository,
	idempotency shared.IdempotencyStore,
	bus shared.EventPublisher,
	cfg *config.WebhookConfig,
	logger *zap.Logger,
) *Service {
	s := &Service{
		connections: connections,
		records:     records,
		idempotency: idempotency,
		bus:         bus,
		config:      cfg,
		logger:      logger,
		validate:    validator.New(),
		handlers:    make(map[string]HandlerFunc),
		stopChan:    make(chan struct{}),
	}
	s.registerDefaults()
	return s
}

// RegisterHandler binds a provider event type to a normalization handler
func (s *Service) RegisterHandler(eventType string, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[eventType] = h
	s.mu.Unlock()
}

func (s *Service) handlerFor(eventType string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[eventType]
	return h, ok
}

func (s *Service) registerDefaults() {
	s.RegisterHandler("product.updated", func(ctx context.Context, tenantID uuid.UUID, data json.RawMessage) ([]shared.DomainEvent, error) {
		id, err := remoteID(data)
		if err != nil {
			return nil, err
		}
		return []shared.DomainEvent{webhook.NewProductUpdatedEvent(tenantID, id, data)}, nil
	})
	s.RegisterHandler("order.created", func(ctx context.Context, tenantID uuid.UUID, data json.RawMessage) ([]shared.DomainEvent, error) {
		id, err := remoteID(data)
		if err != nil {
			return nil, err
		}
		return []shared.DomainEvent{webhook.NewOrderCreatedEvent(tenantID, id, data)}, nil
	})
	s.RegisterHandler("stock.updated", func(ctx context.Context, tenantID uuid.UUID, data json.RawMessage) ([]shared.DomainEvent, error) {
		id, err := remoteID(data)
		if err != nil {
			return nil, err
		}
		return []shared.DomainEvent{webhook.NewStockUpdatedEvent(tenantID, id, data)}, nil
	})
}

// Process verifies, records, and dispatches one delivery. The audit record
// is persisted before any side effects run; duplicates are detected by the
// idempotency store with the delivery ID unique index as backstop.
func (s *Service) Process(ctx context.Context, d Delivery) (*webhook.Record, error) {
	conn, err := s.connections.FindByTenantID(ctx, d.TenantID)
	if err != nil {
		return nil, fmt.Errorf("unknown tenant %s: %w", d.TenantID, err)
	}

	parsed, verifyErr := s.verify(conn, d)
	eventType := ""
	if parsed != nil {
		eventType = parsed.Event
	}
	record := webhook.NewRecord(d.TenantID, d.DeliveryID, eventType, d.Body)

	if verifyErr != nil {
		record.MarkRejected(verifyErr.Error())
		if saveErr := s.records.Save(ctx, record); saveErr != nil && !errors.Is(saveErr, shared.ErrAlreadyExists) {
			s.logger.Error("failed to persist rejected webhook", zap.Error(saveErr))
		}
		s.logger.Warn("webhook rejected",
			zap.String("tenant_id", d.TenantID.String()),
			zap.String("delivery_id", d.DeliveryID),
			zap.Error(verifyErr),
		)
		return record, verifyErr
	}

	if err := s.records.Save(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, findErr := s.records.FindByDeliveryID(ctx, d.TenantID, d.DeliveryID)
			if findErr != nil {
				existing = record
			}
			s.logger.Info("duplicate webhook delivery ignored",
				zap.String("tenant_id", d.TenantID.String()),
				zap.String("delivery_id", d.DeliveryID),
			)
			return existing, ErrDuplicateDelivery
		}
		return nil, fmt.Errorf("failed to persist webhook record: %w", err)
	}

	// fast-path dedup for providers that redeliver with a fresh row window
	key := idempotencyKey(d.TenantID, d.DeliveryID)
	if newlyMarked, err := s.idempotency.MarkProcessed(ctx, key, s.config.IdempotencyTTL); err != nil {
		s.logger.Warn("idempotency store unavailable, relying on unique index", zap.Error(err))
	} else if !newlyMarked {
		record.MarkDuplicate()
		_ = s.records.Update(ctx, record)
		return record, ErrDuplicateDelivery
	}

	if err := s.dispatch(ctx, record, parsed); err != nil {
		return record, err
	}
	return record, nil
}

// verify runs the hard validation gates. Any failure here is terminal for
// the delivery.
func (s *Service) verify(conn *connection.TenantConnection, d Delivery) (*payload, error) {
	if !verifySignature(conn.WebhookSecret, d.Body, d.Signature) {
		return nil, ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable timestamp %q", ErrStaleTimestamp, d.Timestamp)
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.config.Freshness {
		return nil, fmt.Errorf("%w: skew %s exceeds %s", ErrStaleTimestamp, skew.Round(time.Second), s.config.Freshness)
	}

	var p payload
	if err := json.Unmarshal(d.Body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := s.validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// dispatch normalizes the delivery and publishes the resulting events
func (s *Service) dispatch(ctx context.Context, record *webhook.Record, p *payload) error {
	handler, ok := s.handlerFor(p.Event)
	if !ok {
		// unknown event types are acknowledged so the provider stops
		// redelivering them
		record.MarkProcessed()
		_ = s.records.Update(ctx, record)
		s.logger.Debug("webhook event type ignored", zap.String("event", p.Event))
		return nil
	}

	events, err := handler(ctx, record.TenantID, p.Data)
	if err == nil && len(events) > 0 {
		err = s.bus.Publish(ctx, events...)
	}
	if err != nil {
		record.MarkFailed(err.Error())
		_ = s.records.Update(ctx, record)
		return fmt.Errorf("webhook dispatch failed: %w", err)
	}

	record.MarkProcessed()
	if err := s.records.Update(ctx, record); err != nil {
		s.logger.Error("failed to mark webhook processed", zap.Error(err))
	}
	return nil
}

// Start launches the reprocessing sweep for transiently failed deliveries
func (s *Service) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop terminates the reprocessing sweep
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Service) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Reprocess(context.Background())
		}
	}
}

// Reprocess replays transiently failed deliveries from their stored payload,
// bounded by the retry ceiling
func (s *Service) Reprocess(ctx context.Context) {
	retryable, err := s.records.FindRetryable(ctx, s.config.MaxRetries, 100)
	if err != nil {
		s.logger.Error("webhook reprocess sweep failed", zap.Error(err))
		return
	}

	for _, record := range retryable {
		var p payload
		if err := json.Unmarshal(record.Payload, &p); err != nil {
			record.MarkRejected("stored payload no longer parseable")
			_ = s.records.Update(ctx, record)
			continue
		}
		if err := s.dispatch(ctx, record, &p); err != nil {
			s.logger.Warn("webhook reprocess attempt failed",
				zap.String("delivery_id", record.DeliveryID),
				zap.Int("retry_count", record.RetryCount),
				zap.Error(err),
			)
		}
	}
}

// ComputeSignature returns the hex HMAC-SHA256 of the raw body, the scheme
// the provider signs deliveries with
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature compares signatures in constant time
func verifySignature(secret string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func idempotencyKey(tenantID uuid.UUID, deliveryID string) string {
	return tenantID.String() + ":" + deliveryID
}

// remoteID extracts the provider's numeric entity ID from a payload data block
func remoteID(data json.RawMessage) (string, error) {
	var probe struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%w: data block missing id: %v", ErrMalformedPayload, err)
	}
	if probe.ID.String() == "" {
		return "", fmt.Errorf("%w: data block missing id", ErrMalformedPayload)
	}
	return probe.ID.String(), nil
}
