package staff_test

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

var (
	busyStatuses = []string{"in_progress", "journey", "arrived", "driver_assigned_pickup", "return_journey"}
	staffCols    = []string{"id", "name", "role", "specialization", "is_active", "last_available_at", "created_at", "updated_at"}
	joined       = time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
)

// sqlLike matches statements containing every fragment in order.
func sqlLike(fragments ...string) string {
	quoted := make([]string, len(fragments))
	for i, f := range fragments {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return "(?s)" + strings.Join(quoted, ".*")
}

var listAvailableSQL = sqlLike(
	"FROM appointments a",
	"a.status = ANY($4)",
	"(a.driver_id = s.id OR t.therapist_id = s.id)",
	"FROM staff s",
	"WHERE s.role = $1",
	"AND s.is_active",
	"($3 = '' OR s.specialization = $3)",
	"(sl.date = $2 OR (sl.date = $2::date - 1 AND sl.end_time < sl.start_time))",
	"ORDER BY s.last_available_at NULLS FIRST, s.id",
)

func setupMockRepo(t *testing.T) (*staff.PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return staff.NewPgRepository(mock, busyStatuses), mock
}

func TestPgRepository_ListAvailable(t *testing.T) {
	repo, mock := setupMockRepo(t)
	never, waited := uuid.New(), uuid.New()
	seen := day.Add(-2 * time.Hour)
	deep := "deep tissue"

	rows := pgxmock.NewRows(append(append([]string{}, staffCols...), "busy")).
		AddRow(never, "Nia", "therapist", &deep, true, (*time.Time)(nil), joined, joined, false).
		AddRow(waited, "Omar", "therapist", &deep, true, &seen, joined, joined, true)
	mock.ExpectQuery(listAvailableSQL).
		WithArgs("therapist", day, deep, busyStatuses).
		WillReturnRows(rows)

	got, err := repo.ListAvailable(context.Background(), staff.RoleTherapist, day, deep)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, never, got[0].ID)
	assert.Equal(t, staff.RoleTherapist, got[0].Role)
	assert.Nil(t, got[0].LastAvailableAt)
	assert.False(t, got[0].Busy)
	require.NotNil(t, got[0].Specialization)
	assert.Equal(t, deep, *got[0].Specialization)

	assert.Equal(t, waited, got[1].ID)
	require.NotNil(t, got[1].LastAvailableAt)
	assert.Equal(t, seen, *got[1].LastAvailableAt)
	assert.True(t, got[1].Busy)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_Claim(t *testing.T) {
	repo, mock := setupMockRepo(t)
	id := uuid.New()
	prev := day.Add(time.Hour)
	at := day.Add(3 * time.Hour)
	claimSQL := sqlLike(
		"UPDATE staff",
		"SET last_available_at = $3",
		"WHERE id = $1 AND last_available_at IS NOT DISTINCT FROM $2",
	)

	mock.ExpectExec(claimSQL).WithArgs(id, &prev, at).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(claimSQL).WithArgs(id, (*time.Time)(nil), at).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.Claim(context.Background(), id, &prev, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(context.Background(), id, nil, at)
	require.NoError(t, err)
	assert.False(t, ok, "someone moved the driver since the pool was read")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_FeedsFIFOEngine(t *testing.T) {
	repo, mock := setupMockRepo(t)
	first, second, busy := uuid.New(), uuid.New(), uuid.New()
	seen := day.Add(-time.Hour)
	now := day.Add(12 * time.Hour)

	rows := pgxmock.NewRows(append(append([]string{}, staffCols...), "busy")).
		AddRow(first, "First", "driver", (*string)(nil), true, (*time.Time)(nil), joined, joined, false).
		AddRow(busy, "Busy", "driver", (*string)(nil), true, (*time.Time)(nil), joined, joined, true).
		AddRow(second, "Second", "driver", (*string)(nil), true, &seen, joined, joined, false)
	mock.ExpectQuery(listAvailableSQL).WithArgs("driver", day, "", busyStatuses).WillReturnRows(rows)

	claimSQL := sqlLike("UPDATE staff", "last_available_at IS NOT DISTINCT FROM $2")
	mock.ExpectExec(claimSQL).WithArgs(first, (*time.Time)(nil), now).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(claimSQL).WithArgs(second, &seen, now).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	engine := assignment.NewEngine(repo, zap.NewNop(), nil).WithClock(func() time.Time { return now })
	got, err := engine.Assign(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, second, got.StaffID, "first driver was claimed concurrently")
	require.NotNil(t, got.LastAvailableAt)
	assert.Equal(t, now, *got.LastAvailableAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_LockManyAndDeactivate(t *testing.T) {
	repo, mock := setupMockRepo(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(sqlLike("FROM staff s WHERE s.id = ANY($1) ORDER BY s.id FOR UPDATE")).
		WithArgs([]uuid.UUID{a, b}).
		WillReturnRows(pgxmock.NewRows(staffCols).
			AddRow(a, "A", "therapist", (*string)(nil), true, (*time.Time)(nil), joined, joined).
			AddRow(b, "B", "driver", (*string)(nil), true, (*time.Time)(nil), joined, joined))
	mock.ExpectExec(sqlLike("UPDATE staff SET is_active = FALSE", "WHERE id = ANY($1) AND is_active")).
		WithArgs([]uuid.UUID{a, b}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	locked, err := repo.LockMany(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, staff.RoleDriver, locked[1].Role)

	n, err := repo.Deactivate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "no ids, no statement")

	n, err = repo.Deactivate(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one of them was already inactive")

	assert.NoError(t, mock.ExpectationsWereMet())
}
