package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

// Slots

type SlotRepo struct{ s *Store }

func (r *SlotRepo) CreateSlot(_ context.Context, sl *availability.Slot) error {
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}
	now := r.s.now()
	sl.CreatedAt, sl.UpdatedAt = now, now
	r.s.locked(func(d *data) { d.slots[sl.ID] = *sl })
	return nil
}

func (r *SlotRepo) UpdateSlot(_ context.Context, sl *availability.Slot) error {
	var err error
	r.s.locked(func(d *data) {
		old, ok := d.slots[sl.ID]
		if !ok {
			err = availability.ErrSlotNotFound
			return
		}
		sl.CreatedAt = old.CreatedAt
		sl.UpdatedAt = r.s.now()
		d.slots[sl.ID] = *sl
	})
	return err
}

func (r *SlotRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	var err error
	r.s.locked(func(d *data) {
		if _, ok := d.slots[id]; !ok {
			err = availability.ErrSlotNotFound
			return
		}
		delete(d.slots, id)
	})
	return err
}

func (r *SlotRepo) GetSlot(_ context.Context, id uuid.UUID) (*availability.Slot, error) {
	var out *availability.Slot
	r.s.locked(func(d *data) {
		if sl, ok := d.slots[id]; ok {
			out = &sl
		}
	})
	if out == nil {
		return nil, availability.ErrSlotNotFound
	}
	return out, nil
}

func (r *SlotRepo) ListSlots(_ context.Context, staffID uuid.UUID, from, to time.Time) ([]availability.Slot, error) {
	var out []availability.Slot
	r.s.locked(func(d *data) {
		for _, sl := range d.slots {
			if sl.StaffID == staffID && !sl.Date.Before(from) && !sl.Date.After(to) {
				out = append(out, sl)
			}
		}
	})
	sortSlots(out)
	return out, nil
}

func (r *SlotRepo) SlotsAround(_ context.Context, staffID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	var out []availability.Slot
	prev := date.AddDate(0, 0, -1)
	r.s.locked(func(d *data) {
		for _, sl := range d.slots {
			if sl.StaffID != staffID || !sl.IsAvailable {
				continue
			}
			if availability.SameDate(sl.Date, date) || availability.SameDate(sl.Date, prev) {
				out = append(out, sl)
			}
		}
	})
	sortSlots(out)
	return out, nil
}

func sortSlots(slots []availability.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].Start < slots[j].Start
	})
}

// Inventory

type InventoryRepo struct{ s *Store }

func (r *InventoryRepo) GetItem(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	var out *inventory.Item
	r.s.locked(func(d *data) {
		if it, ok := d.items[id]; ok {
			out = &it
		}
	})
	if out == nil {
		return nil, inventory.ErrItemNotFound
	}
	return out, nil
}

func (r *InventoryRepo) LockItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	return r.GetItem(ctx, id)
}

func (r *InventoryRepo) ListItems(_ context.Context) ([]inventory.Item, error) {
	var out []inventory.Item
	r.s.locked(func(d *data) {
		for _, it := range d.items {
			out = append(out, it)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InventoryRepo) CreateItem(_ context.Context, item *inventory.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := r.s.now()
	item.CreatedAt, item.UpdatedAt = now, now
	r.s.locked(func(d *data) { d.items[item.ID] = *item })
	return nil
}

func (r *InventoryRepo) UpdateCounters(_ context.Context, item *inventory.Item) error {
	var err error
	r.s.locked(func(d *data) {
		cur, ok := d.items[item.ID]
		if !ok {
			err = inventory.ErrItemNotFound
			return
		}
		cur.CurrentStock, cur.InUse, cur.Empty = item.CurrentStock, item.InUse, item.Empty
		cur.UpdatedAt = r.s.now()
		item.UpdatedAt = cur.UpdatedAt
		d.items[item.ID] = cur
	})
	return err
}

func (r *InventoryRepo) InsertMaterial(_ context.Context, m *inventory.AppointmentMaterial) error {
	r.s.locked(func(d *data) { d.materials = append(d.materials, *m) })
	return nil
}

func (r *InventoryRepo) ListMaterials(_ context.Context, appointmentID uuid.UUID) ([]inventory.AppointmentMaterial, error) {
	var out []inventory.AppointmentMaterial
	r.s.locked(func(d *data) {
		for _, m := range d.materials {
			if m.AppointmentID == appointmentID {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func (r *InventoryRepo) MarkSettled(_ context.Context, m *inventory.AppointmentMaterial) error {
	r.s.locked(func(d *data) {
		for i := range d.materials {
			if d.materials[i].ID == m.ID {
				d.materials[i].ReturnedAt = m.ReturnedAt
				d.materials[i].ConsumedAt = m.ConsumedAt
			}
		}
	})
	return nil
}

func (r *InventoryRepo) InsertUsageLog(_ context.Context, l inventory.UsageLog) error {
	r.s.locked(func(d *data) {
		d.seq++
		l.ID = d.seq
		d.usage = append(d.usage, l)
	})
	return nil
}

func (r *InventoryRepo) ListUsageLogs(_ context.Context, itemID uuid.UUID, limit int) ([]inventory.UsageLog, error) {
	var out []inventory.UsageLog
	r.s.locked(func(d *data) {
		for i := len(d.usage) - 1; i >= 0 && len(out) < limit; i-- {
			if d.usage[i].ItemID == itemID {
				out = append(out, d.usage[i])
			}
		}
	})
	return out, nil
}

// Staff

type StaffRepo struct{ s *Store }

func (r *StaffRepo) Get(_ context.Context, id uuid.UUID) (*staff.Staff, error) {
	var out *staff.Staff
	r.s.locked(func(d *data) {
		if m, ok := d.staff[id]; ok {
			out = &m
		}
	})
	if out == nil {
		return nil, staff.ErrStaffNotFound
	}
	return out, nil
}

func (r *StaffRepo) Create(_ context.Context, m *staff.Staff) error {
	if !m.Role.Valid() {
		return staff.ErrInvalidRole
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := r.s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	r.s.locked(func(d *data) { d.staff[m.ID] = *m })
	return nil
}

func (r *StaffRepo) LockMany(_ context.Context, ids []uuid.UUID) ([]staff.Staff, error) {
	var out []staff.Staff
	r.s.locked(func(d *data) {
		for _, id := range ids {
			if m, ok := d.staff[id]; ok {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (r *StaffRepo) ListAvailable(_ context.Context, role staff.Role, date time.Time, specialization string) ([]staff.Staff, error) {
	var out []staff.Staff
	prev := date.AddDate(0, 0, -1)
	r.s.locked(func(d *data) {
		for _, m := range d.staff {
			if m.Role != role || !m.IsActive {
				continue
			}
			if specialization != "" && (m.Specialization == nil || *m.Specialization != specialization) {
				continue
			}
			if !hasSlot(d, m.ID, date, prev) {
				continue
			}
			m.Busy = isBusy(d, m.ID, date)
			out = append(out, m)
		}
	})
	return out, nil
}

func hasSlot(d *data, staffID uuid.UUID, date, prev time.Time) bool {
	for _, sl := range d.slots {
		if sl.StaffID != staffID || !sl.IsAvailable {
			continue
		}
		if availability.SameDate(sl.Date, date) || (availability.SameDate(sl.Date, prev) && sl.CrossesMidnight()) {
			return true
		}
	}
	return false
}

func isBusy(d *data, staffID uuid.UUID, date time.Time) bool {
	for _, a := range d.appts {
		if !availability.SameDate(a.Date, date) || !a.Status.Busy() {
			continue
		}
		for _, id := range a.StaffIDs() {
			if id == staffID {
				return true
			}
		}
	}
	return false
}

func (r *StaffRepo) DriverCandidates(ctx context.Context, date time.Time) ([]assignment.Candidate, error) {
	drivers, err := r.ListAvailable(ctx, staff.RoleDriver, date, "")
	if err != nil {
		return nil, err
	}
	return staff.Candidates(drivers), nil
}

func (r *StaffRepo) Claim(_ context.Context, id uuid.UUID, prev *time.Time, at time.Time) (bool, error) {
	claimed := false
	r.s.locked(func(d *data) {
		m, ok := d.staff[id]
		if !ok {
			return
		}
		same := (m.LastAvailableAt == nil && prev == nil) ||
			(m.LastAvailableAt != nil && prev != nil && m.LastAvailableAt.Equal(*prev))
		if !same {
			return
		}
		m.LastAvailableAt = timePtr(at)
		d.staff[id] = m
		claimed = true
	})
	return claimed, nil
}

func (r *StaffRepo) TouchLastAvailable(_ context.Context, id uuid.UUID, at time.Time) error {
	var err error
	r.s.locked(func(d *data) {
		m, ok := d.staff[id]
		if !ok {
			err = staff.ErrStaffNotFound
			return
		}
		m.LastAvailableAt = timePtr(at)
		d.staff[id] = m
	})
	return err
}

func (r *StaffRepo) Deactivate(_ context.Context, ids ...uuid.UUID) (int, error) {
	n := 0
	r.s.locked(func(d *data) {
		for _, id := range ids {
			if m, ok := d.staff[id]; ok && m.IsActive {
				m.IsActive = false
				d.staff[id] = m
				n++
			}
		}
	})
	return n, nil
}

// Appointments

type AppointmentRepo struct{ s *Store }

func (r *AppointmentRepo) Create(_ context.Context, a *appointment.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.s.locked(func(d *data) { d.appts[a.ID] = a.Clone() })
	return nil
}

func (r *AppointmentRepo) Get(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var out *appointment.Appointment
	r.s.locked(func(d *data) {
		if a, ok := d.appts[id]; ok {
			c := a.Clone()
			out = &c
		}
	})
	if out == nil {
		return nil, appointment.ErrAppointmentNotFound
	}
	return out, nil
}

func (r *AppointmentRepo) Lock(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return r.Get(ctx, id)
}

func (r *AppointmentRepo) Save(_ context.Context, a *appointment.Appointment) error {
	var err error
	r.s.locked(func(d *data) {
		if _, ok := d.appts[a.ID]; !ok {
			err = appointment.ErrAppointmentNotFound
			return
		}
		d.appts[a.ID] = a.Clone()
	})
	return err
}

func (r *AppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	var err error
	r.s.locked(func(d *data) {
		if _, ok := d.appts[id]; !ok {
			err = appointment.ErrAppointmentNotFound
			return
		}
		delete(d.appts, id)
		for i := range d.rejections {
			if d.rejections[i].AppointmentID != nil && *d.rejections[i].AppointmentID == id {
				d.rejections[i].AppointmentID = nil
			}
		}
	})
	return err
}

func (r *AppointmentRepo) List(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	r.s.locked(func(d *data) {
		for _, a := range d.appts {
			if f.Date != nil && !availability.SameDate(a.Date, *f.Date) {
				continue
			}
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			switch f.Role {
			case staff.RoleTherapist:
				if !a.HasTherapist(f.UserID) {
					continue
				}
			case staff.RoleDriver:
				if !a.IsDriver(f.UserID) {
					continue
				}
			}
			out = append(out, a.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *AppointmentRepo) FindOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var due []appointment.Appointment
	r.s.locked(func(d *data) {
		for _, a := range d.appts {
			if a.Status == appointment.StatusPending && a.ResponseDeadline.Before(now) {
				due = append(due, a)
			}
		}
	})
	sort.Slice(due, func(i, j int) bool { return due[i].ResponseDeadline.Before(due[j].ResponseDeadline) })

	var ids []uuid.UUID
	for _, a := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r *AppointmentRepo) ActiveBookings(_ context.Context, staffID uuid.UUID, date time.Time, exclude uuid.UUID) ([]availability.Booking, error) {
	from, to := date.AddDate(0, 0, -1), date.AddDate(0, 0, 1)
	var out []availability.Booking
	r.s.locked(func(d *data) {
		for _, a := range d.appts {
			if a.ID == exclude || !a.Status.Active() {
				continue
			}
			if a.Date.Before(from) || a.Date.After(to) {
				continue
			}
			if !a.HasTherapist(staffID) && !a.IsDriver(staffID) {
				continue
			}
			out = append(out, availability.Booking{
				AppointmentID: a.ID,
				StaffID:       staffID,
				Date:          a.Date,
				Window:        a.Window(),
				Status:        string(a.Status),
			})
		}
	})
	return out, nil
}

func (r *AppointmentRepo) InsertRejection(_ context.Context, rej *appointment.Rejection) error {
	if rej.ID == uuid.Nil {
		rej.ID = uuid.New()
	}
	r.s.locked(func(d *data) { d.rejections = append(d.rejections, *rej) })
	return nil
}

func (r *AppointmentRepo) ResolveRejection(_ context.Context, appointmentID uuid.UUID, verdict appointment.Verdict, by uuid.UUID, at time.Time) error {
	found := false
	r.s.locked(func(d *data) {
		for i := range d.rejections {
			rej := &d.rejections[i]
			if rej.AppointmentID == nil || *rej.AppointmentID != appointmentID || rej.Verdict != nil {
				continue
			}
			v, reviewer := verdict, by
			rej.Verdict = &v
			rej.ReviewedBy = &reviewer
			rej.ReviewedAt = timePtr(at)
			found = true
		}
	})
	if !found {
		return appointment.ErrRejectionNotFound
	}
	return nil
}

func (r *AppointmentRepo) ListRejections(_ context.Context, unresolvedOnly bool) ([]appointment.Rejection, error) {
	var out []appointment.Rejection
	r.s.locked(func(d *data) {
		for _, rej := range d.rejections {
			if unresolvedOnly && rej.Verdict != nil {
				continue
			}
			out = append(out, rej)
		}
	})
	return out, nil
}

func (r *AppointmentRepo) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	r.s.locked(func(d *data) {
		d.seq++
		ev.ID = d.seq
		d.events = append(d.events, ev)
	})
	return nil
}

func (r *AppointmentRepo) ListEvents(_ context.Context, appointmentID uuid.UUID) ([]appointment.EventLog, error) {
	var out []appointment.EventLog
	r.s.locked(func(d *data) {
		for _, ev := range d.events {
			if ev.AppointmentID != nil && *ev.AppointmentID == appointmentID {
				out = append(out, ev)
			}
		}
	})
	return out, nil
}

// Notifications

type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.s.locked(func(d *data) { d.notifications = append(d.notifications, *n) })
	return nil
}

func (r *NotificationRepo) ListForUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error) {
	var out []notification.Notification
	r.s.locked(func(d *data) {
		for i := len(d.notifications) - 1; i >= 0 && len(out) < limit; i-- {
			n := d.notifications[i]
			if n.UserID != userID || (unreadOnly && n.IsRead) {
				continue
			}
			out = append(out, n)
		}
	})
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	found := false
	r.s.locked(func(d *data) {
		for i := range d.notifications {
			if d.notifications[i].ID == id && d.notifications[i].UserID == userID {
				d.notifications[i].IsRead = true
				found = true
			}
		}
	})
	if !found {
		return notification.ErrNotificationNotFound
	}
	return nil
}
