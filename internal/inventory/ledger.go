package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/metrics"
)

// Repository is the persistence the ledger needs. LockItem must take an
// exclusive row lock held until the surrounding transaction ends.
type Repository interface {
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	LockItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	CreateItem(ctx context.Context, item *Item) error
	UpdateCounters(ctx context.Context, item *Item) error

	InsertMaterial(ctx context.Context, m *AppointmentMaterial) error
	ListMaterials(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentMaterial, error)
	MarkSettled(ctx context.Context, m *AppointmentMaterial) error

	InsertUsageLog(ctx context.Context, l UsageLog) error
	ListUsageLogs(ctx context.Context, itemID uuid.UUID, limit int) ([]UsageLog, error)
}

// TxRunner runs fn as one atomic unit, joining an outer unit when there is one.
type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Ledger struct {
	repo    Repository
	tx      TxRunner
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLedger(repo Repository, tx TxRunner, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		repo:    repo,
		tx:      tx,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Deduct moves the requested quantities from stock to in-use for one
// appointment. The batch is all-or-nothing: every item is locked and checked
// before any counter moves. A second call for the same appointment returns
// the rows of the first one and deducts nothing.
func (l *Ledger) Deduct(ctx context.Context, appointmentID uuid.UUID, reqs []MaterialRequest) ([]AppointmentMaterial, error) {
	lines, err := normalize(reqs)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	var out []AppointmentMaterial
	err = l.tx.Do(ctx, func(ctx context.Context) error {
		existing, err := l.repo.ListMaterials(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("list materials: %w", err)
		}
		if len(existing) > 0 {
			out = existing
			return nil
		}

		items := make([]*Item, len(lines))
		for i, line := range lines {
			item, err := l.repo.LockItem(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("lock item %s: %w", line.ItemID, err)
			}
			if item.CurrentStock < line.Quantity {
				return &ShortfallError{
					ItemID:    item.ID,
					Name:      item.Name,
					Required:  line.Quantity,
					Available: item.CurrentStock,
				}
			}
			items[i] = item
		}

		now := l.now()
		apptID := appointmentID
		for i, line := range lines {
			item := items[i]
			item.CurrentStock -= line.Quantity
			item.InUse += line.Quantity
			if err := l.repo.UpdateCounters(ctx, item); err != nil {
				return fmt.Errorf("update item %s: %w", item.ID, err)
			}

			m := AppointmentMaterial{
				ID:            uuid.New(),
				AppointmentID: appointmentID,
				ItemID:        item.ID,
				QuantityUsed:  line.Quantity,
				IsReusable:    line.Reusable,
				DeductedAt:    now,
			}
			if err := l.repo.InsertMaterial(ctx, &m); err != nil {
				return fmt.Errorf("insert material: %w", err)
			}
			if err := l.repo.InsertUsageLog(ctx, UsageLog{
				ItemID:        item.ID,
				AppointmentID: &apptID,
				Action:        UsageDeduct,
				Quantity:      line.Quantity,
				StockAfter:    item.CurrentStock,
				CreatedAt:     now,
			}); err != nil {
				return fmt.Errorf("insert usage log: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		var shortfall *ShortfallError
		if errors.As(err, &shortfall) {
			l.metrics.Shortfall()
			l.logger.Warn("material deduction rejected",
				zap.String("appointment_id", appointmentID.String()),
				zap.String("item_id", shortfall.ItemID.String()),
				zap.Int("required", shortfall.Required),
				zap.Int("available", shortfall.Available),
			)
		}
		return nil, err
	}
	return out, nil
}

// Settle closes out an appointment's materials: reusable quantities go back
// to stock, the rest is booked as spent. Already settled rows are skipped.
func (l *Ledger) Settle(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentMaterial, error) {
	var settled []AppointmentMaterial
	err := l.tx.Do(ctx, func(ctx context.Context) error {
		materials, err := l.repo.ListMaterials(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("list materials: %w", err)
		}
		sort.Slice(materials, func(i, j int) bool {
			return bytes.Compare(materials[i].ItemID[:], materials[j].ItemID[:]) < 0
		})

		now := l.now()
		apptID := appointmentID
		for i := range materials {
			m := materials[i]
			if m.Settled() {
				continue
			}
			item, err := l.repo.LockItem(ctx, m.ItemID)
			if err != nil {
				return fmt.Errorf("lock item %s: %w", m.ItemID, err)
			}
			if item.InUse < m.QuantityUsed {
				return fmt.Errorf("item %s: in_use %d below settled quantity %d", item.ID, item.InUse, m.QuantityUsed)
			}

			item.InUse -= m.QuantityUsed
			action := UsageConsume
			if m.IsReusable {
				item.CurrentStock += m.QuantityUsed
				m.ReturnedAt = &now
				action = UsageReturn
			} else {
				item.Empty += m.QuantityUsed
				m.ConsumedAt = &now
			}

			if err := l.repo.UpdateCounters(ctx, item); err != nil {
				return fmt.Errorf("update item %s: %w", item.ID, err)
			}
			if err := l.repo.MarkSettled(ctx, &m); err != nil {
				return fmt.Errorf("settle material %s: %w", m.ID, err)
			}
			if err := l.repo.InsertUsageLog(ctx, UsageLog{
				ItemID:        item.ID,
				AppointmentID: &apptID,
				Action:        action,
				Quantity:      m.QuantityUsed,
				StockAfter:    item.CurrentStock,
				CreatedAt:     now,
			}); err != nil {
				return fmt.Errorf("insert usage log: %w", err)
			}
			settled = append(settled, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// Restock adds new units to the shelf. It is the only operation that grows an item's total.
func (l *Ledger) Restock(ctx context.Context, itemID uuid.UUID, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var out *Item
	err := l.tx.Do(ctx, func(ctx context.Context) error {
		item, err := l.repo.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		item.CurrentStock += quantity
		if err := l.repo.UpdateCounters(ctx, item); err != nil {
			return fmt.Errorf("update item %s: %w", item.ID, err)
		}
		out = item
		return l.repo.InsertUsageLog(ctx, UsageLog{
			ItemID:     item.ID,
			Action:     UsageRestock,
			Quantity:   quantity,
			StockAfter: item.CurrentStock,
			CreatedAt:  l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("item restocked",
		zap.String("item_id", itemID.String()),
		zap.Int("quantity", quantity),
		zap.Int("current_stock", out.CurrentStock),
	)
	return out, nil
}

// Refill puts cleaned or refilled empties back on the shelf.
func (l *Ledger) Refill(ctx context.Context, itemID uuid.UUID, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var out *Item
	err := l.tx.Do(ctx, func(ctx context.Context) error {
		item, err := l.repo.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Empty < quantity {
			return &ShortfallError{ItemID: item.ID, Name: item.Name, Required: quantity, Available: item.Empty}
		}
		item.Empty -= quantity
		item.CurrentStock += quantity
		if err := l.repo.UpdateCounters(ctx, item); err != nil {
			return fmt.Errorf("update item %s: %w", item.ID, err)
		}
		out = item
		return l.repo.InsertUsageLog(ctx, UsageLog{
			ItemID:     item.ID,
			Action:     UsageRefill,
			Quantity:   quantity,
			StockAfter: item.CurrentStock,
			CreatedAt:  l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) CreateItem(ctx context.Context, item Item) (*Item, error) {
	if item.CurrentStock < 0 || item.InUse != 0 || item.Empty != 0 {
		return nil, ErrInvalidQuantity
	}
	if err := l.repo.CreateItem(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *Ledger) Items(ctx context.Context) ([]Item, error) {
	return l.repo.ListItems(ctx)
}

func (l *Ledger) Item(ctx context.Context, id uuid.UUID) (*Item, error) {
	return l.repo.GetItem(ctx, id)
}

func (l *Ledger) Materials(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentMaterial, error) {
	return l.repo.ListMaterials(ctx, appointmentID)
}

func (l *Ledger) History(ctx context.Context, itemID uuid.UUID, limit int) ([]UsageLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.repo.ListUsageLogs(ctx, itemID, limit)
}

// normalize merges duplicate items and orders lines by item id, which is
// also the order rows get locked in.
func normalize(reqs []MaterialRequest) ([]MaterialRequest, error) {
	byItem := make(map[uuid.UUID]MaterialRequest, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %s quantity %d", ErrInvalidQuantity, r.ItemID, r.Quantity)
		}
		cur := byItem[r.ItemID]
		cur.ItemID = r.ItemID
		cur.Quantity += r.Quantity
		cur.Reusable = cur.Reusable || r.Reusable
		byItem[r.ItemID] = cur
	}

	out := make([]MaterialRequest, 0, len(byItem))
	for _, r := range byItem {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ItemID[:], out[j].ItemID[:]) < 0
	})
	return out, nil
}
