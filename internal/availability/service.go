package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SlotRepository interface {
	SlotSource
	CreateSlot(ctx context.Context, s *Slot) error
	UpdateSlot(ctx context.Context, s *Slot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Slot, error)
}

// Invalidator drops cached reads that depend on a staff member's day.
type Invalidator interface {
	Invalidate(ctx context.Context, date time.Time, staffIDs ...uuid.UUID)
}

// Service manages the slots staff and operators declare.
type Service struct {
	repo   SlotRepository
	cache  Invalidator
	logger *zap.Logger
}

func NewService(repo SlotRepository, cache Invalidator, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) CreateSlot(ctx context.Context, slot Slot) (*Slot, error) {
	if !slot.Window().Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, slot.Window())
	}
	slot.Date = DateOf(slot.Date)
	if err := s.repo.CreateSlot(ctx, &slot); err != nil {
		return nil, err
	}
	s.invalidate(ctx, slot)
	s.logger.Info("availability slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("staff_id", slot.StaffID.String()),
		zap.String("date", slot.Date.Format(time.DateOnly)),
		zap.String("window", slot.Window().String()),
		zap.Bool("overnight", slot.CrossesMidnight()),
	)
	return &slot, nil
}

func (s *Service) UpdateSlot(ctx context.Context, slot Slot) (*Slot, error) {
	if !slot.Window().Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, slot.Window())
	}
	before, err := s.repo.GetSlot(ctx, slot.ID)
	if err != nil {
		return nil, err
	}
	slot.Date = DateOf(slot.Date)
	slot.StaffID = before.StaffID
	if err := s.repo.UpdateSlot(ctx, &slot); err != nil {
		return nil, err
	}
	s.invalidate(ctx, *before)
	s.invalidate(ctx, slot)
	return &slot, nil
}

func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	before, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSlot(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, *before)
	return nil
}

func (s *Service) ListSlots(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Slot, error) {
	return s.repo.ListSlots(ctx, staffID, DateOf(from), DateOf(to))
}

// an overnight slot also affects the next date's reads
func (s *Service) invalidate(ctx context.Context, slot Slot) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, slot.Date, slot.StaffID)
	if slot.CrossesMidnight() {
		s.cache.Invalidate(ctx, slot.Date.AddDate(0, 0, 1), slot.StaffID)
	}
}
