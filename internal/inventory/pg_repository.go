package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/homeservice-dispatch/internal/db"
)

const itemColumns = `id, name, category, current_stock, in_use, empty, unit, created_at, updated_at`

const materialColumns = `id, appointment_id, item_id, quantity_used, is_reusable, deducted_at, returned_at, consumed_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Category,
		&it.CurrentStock,
		&it.InUse,
		&it.Empty,
		&it.Unit,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *PgRepository) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return scanItem(row)
}

// LockItem must run inside a transaction; outside one the lock is released
// as soon as the statement finishes.
func (r *PgRepository) LockItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
	return scanItem(row)
}

func (r *PgRepository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+itemColumns+` FROM inventory_items ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *PgRepository) CreateItem(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO inventory_items (id, name, category, current_stock, in_use, empty, unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, now(), now())
		RETURNING `+itemColumns,
		item.ID, item.Name, item.Category, item.CurrentStock, item.Unit)

	created, err := scanItem(row)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	*item = *created
	return nil
}

func (r *PgRepository) UpdateCounters(ctx context.Context, item *Item) error {
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		UPDATE inventory_items
		SET current_stock = $2, in_use = $3, empty = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		item.ID, item.CurrentStock, item.InUse, item.Empty)

	if err := row.Scan(&item.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrItemNotFound
		}
		return err
	}
	return nil
}

func (r *PgRepository) InsertMaterial(ctx context.Context, m *AppointmentMaterial) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointment_materials (id, appointment_id, item_id, quantity_used, is_reusable, deducted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.AppointmentID, m.ItemID, m.QuantityUsed, m.IsReusable, m.DeductedAt)
	return err
}

func (r *PgRepository) ListMaterials(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentMaterial, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+materialColumns+` FROM appointment_materials WHERE appointment_id = $1 ORDER BY deducted_at, item_id`,
		appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var out []AppointmentMaterial
	for rows.Next() {
		var m AppointmentMaterial
		if err := rows.Scan(
			&m.ID,
			&m.AppointmentID,
			&m.ItemID,
			&m.QuantityUsed,
			&m.IsReusable,
			&m.DeductedAt,
			&m.ReturnedAt,
			&m.ConsumedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PgRepository) MarkSettled(ctx context.Context, m *AppointmentMaterial) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE appointment_materials
		SET returned_at = $2, consumed_at = $3
		WHERE id = $1 AND returned_at IS NULL AND consumed_at IS NULL`,
		m.ID, m.ReturnedAt, m.ConsumedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("material %s already settled", m.ID)
	}
	return nil
}

func (r *PgRepository) InsertUsageLog(ctx context.Context, l UsageLog) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO inventory_usage_logs (item_id, appointment_id, action, quantity, stock_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ItemID, l.AppointmentID, string(l.Action), l.Quantity, l.StockAfter, l.CreatedAt)
	return err
}

func (r *PgRepository) ListUsageLogs(ctx context.Context, itemID uuid.UUID, limit int) ([]UsageLog, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, item_id, appointment_id, action, quantity, stock_after, created_at
		FROM inventory_usage_logs
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	defer rows.Close()

	var out []UsageLog
	for rows.Next() {
		var l UsageLog
		var action string
		if err := rows.Scan(&l.ID, &l.ItemID, &l.AppointmentID, &action, &l.Quantity, &l.StockAfter, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Action = UsageAction(action)
		out = append(out, l)
	}
	return out, rows.Err()
}
