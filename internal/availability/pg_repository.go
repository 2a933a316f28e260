package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/homeservice-dispatch/internal/db"
)

const slotColumns = `id, staff_id, date, start_time, end_time, is_available, created_at, updated_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.StaffID,
		&s.Date,
		&s.Start,
		&s.End,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) CreateSlot(ctx context.Context, s *Slot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_slots (id, staff_id, date, start_time, end_time, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+slotColumns,
		s.ID, s.StaffID, s.Date, s.Start, s.End, s.IsAvailable)

	created, err := scanSlot(row)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	*s = *created
	return nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, s *Slot) error {
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		UPDATE availability_slots
		SET date = $2, start_time = $3, end_time = $4, is_available = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns,
		s.ID, s.Date, s.Start, s.End, s.IsAvailable)

	updated, err := scanSlot(row)
	if err != nil {
		return err
	}
	*s = *updated
	return nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE staff_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_time
	`, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) SlotsAround(ctx context.Context, staffID uuid.UUID, date time.Time) ([]Slot, error) {
	return r.ListSlots(ctx, staffID, date.AddDate(0, 0, -1), date)
}
