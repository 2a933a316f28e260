// Package memstore keeps every repository in memory. Transactions are
// serialised by one lock and roll back by restoring a snapshot, which is
// enough to exercise the services without Postgres.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

type data struct {
	staff         map[uuid.UUID]staff.Staff
	slots         map[uuid.UUID]availability.Slot
	items         map[uuid.UUID]inventory.Item
	materials     []inventory.AppointmentMaterial
	usage         []inventory.UsageLog
	appts         map[uuid.UUID]appointment.Appointment
	rejections    []appointment.Rejection
	events        []appointment.EventLog
	notifications []notification.Notification
	seq           int64
}

func newData() data {
	return data{
		staff: map[uuid.UUID]staff.Staff{},
		slots: map[uuid.UUID]availability.Slot{},
		items: map[uuid.UUID]inventory.Item{},
		appts: map[uuid.UUID]appointment.Appointment{},
	}
}

func (d data) clone() data {
	c := data{
		staff:         make(map[uuid.UUID]staff.Staff, len(d.staff)),
		slots:         make(map[uuid.UUID]availability.Slot, len(d.slots)),
		items:         make(map[uuid.UUID]inventory.Item, len(d.items)),
		materials:     append([]inventory.AppointmentMaterial(nil), d.materials...),
		usage:         append([]inventory.UsageLog(nil), d.usage...),
		appts:         make(map[uuid.UUID]appointment.Appointment, len(d.appts)),
		rejections:    append([]appointment.Rejection(nil), d.rejections...),
		events:        append([]appointment.EventLog(nil), d.events...),
		notifications: append([]notification.Notification(nil), d.notifications...),
		seq:           d.seq,
	}
	for k, v := range d.staff {
		c.staff[k] = v
	}
	for k, v := range d.slots {
		c.slots[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.appts {
		c.appts[k] = v.Clone()
	}
	return c
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    data
	now  func() time.Time
}

func New() *Store {
	return &Store{d: newData(), now: time.Now}
}

// WithClock sets the time used for created/updated stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

type txKey struct{}

// Do runs fn as one transaction. Nested calls join the outer one.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Slots() *SlotRepo               { return &SlotRepo{s: s} }
func (s *Store) Inventory() *InventoryRepo      { return &InventoryRepo{s: s} }
func (s *Store) Staff() *StaffRepo              { return &StaffRepo{s: s} }
func (s *Store) Appointments() *AppointmentRepo { return &AppointmentRepo{s: s} }
func (s *Store) Notifications() *NotificationRepo {
	return &NotificationRepo{s: s}
}

func (s *Store) locked(fn func(d *data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.d)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
