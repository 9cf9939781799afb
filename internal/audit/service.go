package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"dropship-platform/internal/auth"
	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository stores events. There is deliberately no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

var (
	ErrInvalidEvent  = errors.New("audit: event type required")
	errNotConfigured = errors.New("audit: repository not configured")
)

// Service writes the audit trail. A nil *Service is valid and records nothing,
// so services constructed without audit keep working.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Append stamps id, time, client IP and actor, then stores e.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errNotConfigured
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if id, ok := auth.IdentityFrom(ctx); ok {
		if e.ActorUserID == "" {
			e.ActorUserID = id.UserID
		}
		if e.ActorRole == "" {
			e.ActorRole = id.Role
		}
	}
	return s.repo.Append(ctx, e)
}

// Record is Append for callers that must not fail on audit: the money
// operation has already committed. metadata is stored as JSON when set.
func (s *Service) Record(ctx context.Context, e Event, metadata any) {
	if s == nil {
		return
	}
	if metadata != nil && e.Metadata == "" {
		raw, err := json.Marshal(metadata)
		if err == nil {
			e.Metadata = string(raw)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit record dropped",
			slog.String("type", string(e.Type)),
			slog.String("subject_user_id", e.SubjectUserID),
			slog.String("entity_id", e.EntityID),
			slog.Any("err", err),
		)
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errNotConfigured
	}
	return s.repo.List(ctx, f)
}
