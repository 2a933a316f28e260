package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/homeservice-dispatch/internal/db"
)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Create(ctx context.Context, n *Notification) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO notifications (id, user_id, appointment_id, type, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		n.ID, n.UserID, n.AppointmentID, string(n.Type), n.Message, n.CreatedAt)
	return err
}

func (r *PgRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, user_id, appointment_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &n.AppointmentID, &typ, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PgRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
