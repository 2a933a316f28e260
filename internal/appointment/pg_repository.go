package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/db"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

var appointmentColumns = []string{
	"a.id",
	"a.client_id",
	"a.operator_id",
	"a.driver_id",
	"a.group_size",
	"a.date",
	"a.start_time",
	"a.end_time",
	"a.status",
	"COALESCE(a.location, '')",
	"COALESCE(a.notes, '')",
	"a.driver_accepted",
	"a.driver_accepted_at",
	"a.requested_materials",
	"a.payment_amount",
	"COALESCE(a.payment_method, '')",
	"COALESCE(a.cancel_reason, '')",
	"a.response_deadline",
	"a.therapist_confirmed_at",
	"a.driver_confirmed_at",
	"a.rejected_at",
	"a.started_at",
	"a.journey_started_at",
	"a.arrived_at",
	"a.dropped_off_at",
	"a.session_started_at",
	"a.payment_requested_at",
	"a.completed_at",
	"a.pickup_requested_at",
	"a.pickup_assigned_at",
	"a.pickup_confirmed_at",
	"a.transport_completed_at",
	"a.cancelled_at",
	"a.created_at",
	"a.updated_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var materials []byte

	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.OperatorID,
		&a.DriverID,
		&a.GroupSize,
		&a.Date,
		&a.Start,
		&a.End,
		&status,
		&a.Location,
		&a.Notes,
		&a.DriverAccepted,
		&a.DriverAcceptedAt,
		&materials,
		&a.PaymentAmount,
		&a.PaymentMethod,
		&a.CancelReason,
		&a.ResponseDeadline,
		&a.TherapistConfirmedAt,
		&a.DriverConfirmedAt,
		&a.RejectedAt,
		&a.StartedAt,
		&a.JourneyStartedAt,
		&a.ArrivedAt,
		&a.DroppedOffAt,
		&a.SessionStartedAt,
		&a.PaymentRequestedAt,
		&a.CompletedAt,
		&a.PickupRequestedAt,
		&a.PickupAssignedAt,
		&a.PickupConfirmedAt,
		&a.TransportCompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	if len(materials) > 0 {
		if err := json.Unmarshal(materials, &a.RequestedMaterials); err != nil {
			return nil, fmt.Errorf("decode requested materials: %w", err)
		}
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PgRepository) selectOne(ctx context.Context, id uuid.UUID, suffix string) (*Appointment, error) {
	query, args, err := psql.Select(appointmentColumns...).
		From("appointments a").
		Where(squirrel.Eq{"a.id": id}).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	a, err := scanAppointment(db.Executor(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// hydrate loads the therapist and service rows for the given appointments.
func (r *PgRepository) hydrate(ctx context.Context, appts ...*Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(appts))
	byID := make(map[uuid.UUID]*Appointment, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
		byID[a.ID] = a
		a.Therapists = nil
		a.ServiceIDs = nil
	}

	ex := db.Executor(ctx, r.pool)

	rows, err := ex.Query(ctx, `
		SELECT appointment_id, therapist_id, position, accepted, accepted_at
		FROM appointment_therapists
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load therapists: %w", err)
	}
	for rows.Next() {
		var apptID uuid.UUID
		var t TherapistAssignment
		if err := rows.Scan(&apptID, &t.TherapistID, &t.Position, &t.Accepted, &t.AcceptedAt); err != nil {
			rows.Close()
			return err
		}
		byID[apptID].Therapists = append(byID[apptID].Therapists, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = ex.Query(ctx, `
		SELECT appointment_id, service_id
		FROM appointment_services
		WHERE appointment_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var apptID, serviceID uuid.UUID
		if err := rows.Scan(&apptID, &serviceID); err != nil {
			return err
		}
		byID[apptID].ServiceIDs = append(byID[apptID].ServiceIDs, serviceID)
	}
	return rows.Err()
}

// Creation and updates

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	materials, err := json.Marshal(a.RequestedMaterials)
	if err != nil {
		return fmt.Errorf("encode requested materials: %w", err)
	}

	ex := db.Executor(ctx, r.pool)
	err = ex.QueryRow(ctx, `
		INSERT INTO appointments (
			id, client_id, operator_id, driver_id, group_size, date, start_time, end_time,
			status, location, notes, requested_materials, response_deadline, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.OperatorID, a.DriverID, a.GroupSize, a.Date, a.Start, a.End,
		string(a.Status), nullable(a.Location), nullable(a.Notes), materials, a.ResponseDeadline,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	for i, t := range a.Therapists {
		if _, err := ex.Exec(ctx, `
			INSERT INTO appointment_therapists (appointment_id, therapist_id, position, accepted, accepted_at)
			VALUES ($1, $2, $3, $4, $5)`,
			a.ID, t.TherapistID, i, t.Accepted, t.AcceptedAt); err != nil {
			return fmt.Errorf("insert appointment therapist: %w", err)
		}
	}
	for _, sid := range a.ServiceIDs {
		if _, err := ex.Exec(ctx, `
			INSERT INTO appointment_services (appointment_id, service_id) VALUES ($1, $2)`,
			a.ID, sid); err != nil {
			return fmt.Errorf("insert appointment service: %w", err)
		}
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.selectOne(ctx, id, "")
}

func (r *PgRepository) Lock(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.selectOne(ctx, id, "FOR UPDATE OF a")
}

func (r *PgRepository) Save(ctx context.Context, a *Appointment) error {
	materials, err := json.Marshal(a.RequestedMaterials)
	if err != nil {
		return fmt.Errorf("encode requested materials: %w", err)
	}

	ex := db.Executor(ctx, r.pool)
	tag, err := ex.Exec(ctx, `
		UPDATE appointments SET
			driver_id = $2,
			status = $3,
			driver_accepted = $4,
			driver_accepted_at = $5,
			requested_materials = $6,
			payment_amount = $7,
			payment_method = $8,
			cancel_reason = $9,
			therapist_confirmed_at = $10,
			driver_confirmed_at = $11,
			rejected_at = $12,
			started_at = $13,
			journey_started_at = $14,
			arrived_at = $15,
			dropped_off_at = $16,
			session_started_at = $17,
			payment_requested_at = $18,
			completed_at = $19,
			pickup_requested_at = $20,
			pickup_assigned_at = $21,
			pickup_confirmed_at = $22,
			transport_completed_at = $23,
			cancelled_at = $24,
			updated_at = $25
		WHERE id = $1`,
		a.ID,
		a.DriverID,
		string(a.Status),
		a.DriverAccepted,
		a.DriverAcceptedAt,
		materials,
		a.PaymentAmount,
		nullable(a.PaymentMethod),
		nullable(a.CancelReason),
		a.TherapistConfirmedAt,
		a.DriverConfirmedAt,
		a.RejectedAt,
		a.StartedAt,
		a.JourneyStartedAt,
		a.ArrivedAt,
		a.DroppedOffAt,
		a.SessionStartedAt,
		a.PaymentRequestedAt,
		a.CompletedAt,
		a.PickupRequestedAt,
		a.PickupAssignedAt,
		a.PickupConfirmedAt,
		a.TransportCompletedAt,
		a.CancelledAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	for _, t := range a.Therapists {
		if _, err := ex.Exec(ctx, `
			UPDATE appointment_therapists SET accepted = $3, accepted_at = $4
			WHERE appointment_id = $1 AND therapist_id = $2`,
			a.ID, t.TherapistID, t.Accepted, t.AcceptedAt); err != nil {
			return fmt.Errorf("update appointment therapist: %w", err)
		}
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	selectBuilder := psql.Select(appointmentColumns...).From("appointments a")

	if f.Date != nil {
		selectBuilder = selectBuilder.Where(squirrel.Eq{"a.date": *f.Date})
	}
	if f.Status != "" {
		selectBuilder = selectBuilder.Where(squirrel.Eq{"a.status": string(f.Status)})
	}
	switch f.Role {
	case staff.RoleTherapist:
		selectBuilder = selectBuilder.Where(
			"EXISTS (SELECT 1 FROM appointment_therapists t WHERE t.appointment_id = a.id AND t.therapist_id = ?)", f.UserID)
	case staff.RoleDriver:
		selectBuilder = selectBuilder.Where(squirrel.Eq{"a.driver_id": f.UserID})
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query, args, err := selectBuilder.
		OrderBy("a.date ASC", "a.start_time ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := db.Executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.hydrate(ctx, out...); err != nil {
		return nil, err
	}
	result := make([]Appointment, len(out))
	for i, a := range out {
		result[i] = *a
	}
	return result, nil
}

// Auto-cancel sweep

func (r *PgRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id
		FROM appointments
		WHERE status = $1 AND response_deadline < $2
		ORDER BY response_deadline
		LIMIT $3`, string(StatusPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("find overdue appointments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Conflict checks

func (r *PgRepository) ActiveBookings(ctx context.Context, staffID uuid.UUID, date time.Time, exclude uuid.UUID) ([]availability.Booking, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT a.id, a.date, a.start_time, a.end_time, a.status
		FROM appointments a
		LEFT JOIN appointment_therapists t ON t.appointment_id = a.id
		WHERE (a.driver_id = $1 OR t.therapist_id = $1)
		  AND a.date BETWEEN $2::date - 1 AND $2::date + 1
		  AND a.status = ANY($3)
		  AND a.id <> $4`,
		staffID, date, ActiveStatuses(), exclude)
	if err != nil {
		return nil, fmt.Errorf("load active bookings: %w", err)
	}
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		b := availability.Booking{StaffID: staffID}
		if err := rows.Scan(&b.AppointmentID, &b.Date, &b.Window.Start, &b.Window.End, &b.Status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Rejections

func (r *PgRepository) InsertRejection(ctx context.Context, rej *Rejection) error {
	if rej.ID == uuid.Nil {
		rej.ID = uuid.New()
	}
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointment_rejections (id, appointment_id, rejected_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rej.ID, rej.AppointmentID, rej.RejectedBy, rej.Reason, rej.CreatedAt)
	return err
}

func (r *PgRepository) ResolveRejection(ctx context.Context, appointmentID uuid.UUID, verdict Verdict, by uuid.UUID, at time.Time) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE appointment_rejections
		SET verdict = $2, reviewed_by = $3, reviewed_at = $4
		WHERE appointment_id = $1 AND verdict IS NULL`,
		appointmentID, string(verdict), by, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRejectionNotFound
	}
	return nil
}

func (r *PgRepository) ListRejections(ctx context.Context, unresolvedOnly bool) ([]Rejection, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, appointment_id, rejected_by, reason, verdict, reviewed_by, reviewed_at, created_at
		FROM appointment_rejections
		WHERE NOT $1 OR verdict IS NULL
		ORDER BY created_at`, unresolvedOnly)
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	defer rows.Close()

	var out []Rejection
	for rows.Next() {
		var rej Rejection
		var verdict *string
		if err := rows.Scan(&rej.ID, &rej.AppointmentID, &rej.RejectedBy, &rej.Reason, &verdict, &rej.ReviewedBy, &rej.ReviewedAt, &rej.CreatedAt); err != nil {
			return nil, err
		}
		if verdict != nil {
			v := Verdict(*verdict)
			rej.Verdict = &v
		}
		out = append(out, rej)
	}
	return out, rows.Err()
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}

func (r *PgRepository) ListEvents(ctx context.Context, appointmentID uuid.UUID) ([]EventLog, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE appointment_id = $1
		ORDER BY id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
