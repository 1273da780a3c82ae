package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// AuditSink receives structured security events. Record must never block
// the caller.
type AuditSink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// AuditEventRepository persists audit events
type AuditEventRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

const auditPersistTimeout = 5 * time.Second

// AuditService handles audit logging with dual-write pattern (slog + database).
// The slog line is written synchronously; persistence goes through a bounded
// queue drained by a single worker, and events are dropped when it is full.
type AuditService struct {
	repo    AuditEventRepository
	clock   clockwork.Clock
	logger  *slog.Logger
	queue   chan models.AuditEvent
	dropped atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewAuditService creates a new AuditService. repo may be nil, in which case
// events only go to the log.
func NewAuditService(repo AuditEventRepository, queueSize int, clock clockwork.Clock, logger *slog.Logger) *AuditService {
	if queueSize < 1 {
		queueSize = 1
	}
	return &AuditService{
		repo:   repo,
		clock:  clock,
		logger: logger,
		queue:  make(chan models.AuditEvent, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Record logs the event and queues it for persistence.
func (s *AuditService) Record(ctx context.Context, event models.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}

	s.logger.Log(ctx, auditLevel(event.Category), "audit event",
		slog.String("category", event.Category),
		slog.String("identity", event.Identity),
		slog.Time("timestamp", event.Timestamp),
		slog.Any("detail", map[string]interface{}(event.Detail)),
	)

	if s.repo == nil {
		return
	}

	select {
	case s.queue <- event:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("audit queue full, event dropped",
			slog.String("category", event.Category),
			slog.Int64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *AuditService) Dropped() int64 {
	return s.dropped.Load()
}

// Start drains the queue until Stop is called or ctx is cancelled.
func (s *AuditService) Start(ctx context.Context) {
	defer close(s.doneCh)

	if s.repo == nil {
		select {
		case <-ctx.Done():
		case <-s.stopCh:
		}
		return
	}

	for {
		select {
		case event := <-s.queue:
			s.persist(event)
		case <-ctx.Done():
			s.drain()
			return
		case <-s.stopCh:
			s.drain()
			return
		}
	}
}

// Stop signals the worker to flush and exit, and waits for it.
func (s *AuditService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *AuditService) drain() {
	for {
		select {
		case event := <-s.queue:
			s.persist(event)
		default:
			return
		}
	}
}

func (s *AuditService) persist(event models.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), auditPersistTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, &event); err != nil {
		// Non-critical: the slog line already carries the event
		s.logger.Error("failed to persist audit event",
			slog.String("category", event.Category),
			slog.Any("error", err),
		)
	}
}

func auditLevel(category string) slog.Level {
	switch category {
	case models.AuditCategoryThreat:
		return slog.LevelError
	case models.AuditCategoryAccountLocked, models.AuditCategorySessionTerminated,
		models.AuditCategoryRateLimitRejected, models.AuditCategoryLoginFailed,
		models.AuditCategoryActivationFailed, models.AuditCategoryDevURLBlocked:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
