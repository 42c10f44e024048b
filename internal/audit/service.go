package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"voice-scheduler/pkg/logger"
)

// Repository is the persistence contract for audit events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Actor identifies who performed a management action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// Service records management actions.
//
// Callers should treat audit logging as best-effort; Record logs and swallows repository failures.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Metadata != "" && !json.Valid([]byte(e.Metadata)) {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event for a management action. details, when non-nil, is stored as JSON metadata.
func (s *Service) Record(ctx context.Context, actor Actor, typ EventType, scheduledCallID, callLogID, message string, details any) {
	e := Event{
		Type:            typ,
		ActorUserID:     actor.UserID,
		ActorRole:       actor.Role,
		IPAddress:       actor.IP,
		ScheduledCallID: scheduledCallID,
		CallLogID:       callLogID,
		Message:         message,
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Metadata = string(b)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", string(typ), "err", err)
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.List(ctx, f)
}
