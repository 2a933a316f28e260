package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	TypeNewBooking         Type = "new_booking"
	TypePartialAcceptance  Type = "partial_acceptance"
	TypeConfirmed          Type = "confirmed"
	TypeRejected           Type = "rejected"
	TypeRejectionReviewed  Type = "rejection_reviewed"
	TypeAuthorized         Type = "authorized"
	TypePaymentRequested   Type = "payment_requested"
	TypePickupAssigned     Type = "pickup_assigned"
	TypePickupUnassigned   Type = "pickup_unassigned"
	TypePickupRejected     Type = "pickup_rejected"
	TypeCancelled          Type = "cancelled"
	TypeAutoCancelled      Type = "auto_cancelled"
	TypeAccountDeactivated Type = "account_deactivated"
	TypeStatusChanged      Type = "status_changed"
)

var ErrNotificationNotFound = errors.New("notification not found")

type Notification struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Type          Type       `json:"type"`
	Message       string     `json:"message"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

// Service is the write-only sink the appointment workflow talks to, plus the
// reads a user needs for their inbox.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, appointmentID *uuid.UUID, typ Type, message string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("notification %s: empty recipient", typ)
	}
	n := Notification{
		ID:            uuid.New(),
		UserID:        userID,
		AppointmentID: appointmentID,
		Type:          typ,
		Message:       strings.TrimSpace(message),
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}
