package staff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/db"
)

const staffColumns = `s.id, s.name, s.role, s.specialization, s.is_active, s.last_available_at, s.created_at, s.updated_at`

// PgRepository is the Postgres staff store. busyStatuses are the appointment
// statuses that take a member out of the free pool for the day.
type PgRepository struct {
	pool         db.DBTX
	busyStatuses []string
}

func NewPgRepository(pool db.DBTX, busyStatuses []string) *PgRepository {
	return &PgRepository{pool: pool, busyStatuses: busyStatuses}
}

func scanStaff(row pgx.Row, extra ...any) (*Staff, error) {
	var s Staff
	var role string
	dest := []any{
		&s.ID,
		&s.Name,
		&role,
		&s.Specialization,
		&s.IsActive,
		&s.LastAvailableAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	s.Role = Role(role)
	return &s, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff s WHERE s.id = $1`, id)
	return scanStaff(row)
}

func (r *PgRepository) Create(ctx context.Context, s *Staff) error {
	if !s.Role.Valid() {
		return ErrInvalidRole
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	row := db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff AS s (id, name, role, specialization, is_active, last_available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+staffColumns,
		s.ID, s.Name, string(s.Role), s.Specialization, s.IsActive, s.LastAvailableAt)

	created, err := scanStaff(row)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	*s = *created
	return nil
}

// LockMany takes row locks on the given members in id order, so concurrent
// bookings that share staff serialise instead of deadlocking.
func (r *PgRepository) LockMany(ctx context.Context, ids []uuid.UUID) ([]Staff, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+staffColumns+` FROM staff s WHERE s.id = ANY($1) ORDER BY s.id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock staff: %w", err)
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListAvailable returns active members of role holding an available slot that
// covers some part of date, including overnight slots from the day before.
func (r *PgRepository) ListAvailable(ctx context.Context, role Role, date time.Time, specialization string) ([]Staff, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT `+staffColumns+`,
			EXISTS (
				SELECT 1
				FROM appointments a
				LEFT JOIN appointment_therapists t ON t.appointment_id = a.id
				WHERE a.date = $2
				  AND a.status = ANY($4)
				  AND (a.driver_id = s.id OR t.therapist_id = s.id)
			) AS busy
		FROM staff s
		WHERE s.role = $1
		  AND s.is_active
		  AND ($3 = '' OR s.specialization = $3)
		  AND EXISTS (
			SELECT 1
			FROM availability_slots sl
			WHERE sl.staff_id = s.id
			  AND sl.is_available
			  AND (sl.date = $2 OR (sl.date = $2::date - 1 AND sl.end_time < sl.start_time))
		  )
		ORDER BY s.last_available_at NULLS FIRST, s.id`,
		string(role), date, specialization, r.busyStatuses)
	if err != nil {
		return nil, fmt.Errorf("list available staff: %w", err)
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var busy bool
		s, err := scanStaff(rows, &busy)
		if err != nil {
			return nil, err
		}
		s.Busy = busy
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PgRepository) DriverCandidates(ctx context.Context, date time.Time) ([]assignment.Candidate, error) {
	drivers, err := r.ListAvailable(ctx, RoleDriver, date, "")
	if err != nil {
		return nil, err
	}
	return Candidates(drivers), nil
}

func (r *PgRepository) Claim(ctx context.Context, id uuid.UUID, prev *time.Time, at time.Time) (bool, error) {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE staff
		SET last_available_at = $3, updated_at = now()
		WHERE id = $1 AND last_available_at IS NOT DISTINCT FROM $2`,
		id, prev, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) TouchLastAvailable(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx,
		`UPDATE staff SET last_available_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaffNotFound
	}
	return nil
}

func (r *PgRepository) Deactivate(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Executor(ctx, r.pool).Exec(ctx,
		`UPDATE staff SET is_active = FALSE, updated_at = now() WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
