package appointment_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
)

func sqlLike(fragments ...string) string {
	quoted := make([]string, len(fragments))
	for i, f := range fragments {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return "(?s)" + strings.Join(quoted, ".*")
}

func TestPgRepository_ActiveBookings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := appointment.NewPgRepository(mock)

	staffID, exclude := uuid.New(), uuid.New()
	overnight, morning := uuid.New(), uuid.New()
	yesterday := serviceDay.AddDate(0, 0, -1)

	rows := pgxmock.NewRows([]string{"id", "date", "start_time", "end_time", "status"}).
		AddRow(overnight, yesterday, availability.NewTimeOfDay(23, 0), availability.NewTimeOfDay(1, 0), "journey").
		AddRow(morning, serviceDay, availability.NewTimeOfDay(9, 0), availability.NewTimeOfDay(10, 0), "pending")
	mock.ExpectQuery(sqlLike(
		"SELECT DISTINCT a.id, a.date, a.start_time, a.end_time, a.status",
		"LEFT JOIN appointment_therapists t ON t.appointment_id = a.id",
		"WHERE (a.driver_id = $1 OR t.therapist_id = $1)",
		"AND a.date BETWEEN $2::date - 1 AND $2::date + 1",
		"AND a.status = ANY($3)",
		"AND a.id <> $4",
	)).
		WithArgs(staffID, serviceDay, appointment.ActiveStatuses(), exclude).
		WillReturnRows(rows)

	got, err := repo.ActiveBookings(context.Background(), staffID, serviceDay, exclude)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, staffID, got[0].StaffID)
	assert.Equal(t, "23:00-01:00", got[0].Window.String())
	assert.True(t, got[0].Window.CrossesMidnight())

	// yesterday's overnight booking still holds the first hour of the day
	early := availability.Window{Start: availability.NewTimeOfDay(0, 0), End: availability.NewTimeOfDay(0, 30)}
	clash := availability.Conflicts(got, serviceDay, early)
	require.Len(t, clash, 1)
	assert.Equal(t, overnight, clash[0].AppointmentID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveStatuses_HoldRejectedBookings(t *testing.T) {
	active := appointment.ActiveStatuses()
	assert.Contains(t, active, string(appointment.StatusPending))
	assert.Contains(t, active, string(appointment.StatusRejected))
	assert.NotContains(t, active, string(appointment.StatusCancelled))
	assert.NotContains(t, active, string(appointment.StatusAutoCancelled))
}
