package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/api"
	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/memstore"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

const bookingDate = "2030-01-15"

type server struct {
	t        *testing.T
	h        http.Handler
	operator uuid.UUID
}

func newServer(t *testing.T, checks ...api.Check) *server {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New()
	apptRepo := store.Appointments()
	staffRepo := store.Staff()
	ledger := inventory.NewLedger(store.Inventory(), store, logger, nil)
	notifications := notification.NewService(store.Notifications(), logger)

	svc := appointment.NewService(appointment.Deps{
		Repo:     apptRepo,
		Tx:       store,
		Staff:    staffRepo,
		Checker:  availability.NewChecker(store.Slots(), apptRepo),
		Ledger:   ledger,
		Engine:   assignment.NewEngine(staffRepo, logger, nil),
		Notifier: notifications,
		Logger:   logger,
	})

	h := api.NewRouter(api.RouterConfig{
		Appointments:  svc,
		Slots:         availability.NewService(store.Slots(), nil, logger),
		Ledger:        ledger,
		Staff:         staff.NewDirectory(staffRepo, nil, logger),
		Notifications: notifications,
		Logger:        logger,
		Checks:        checks,
		Env:           "test",
		Version:       "dev",
	})
	return &server{t: t, h: h, operator: uuid.New()}
}

func (s *server) do(method, path string, actor uuid.UUID, role staff.Role, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-User-ID", actor.String())
		req.Header.Set("X-User-Role", string(role))
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *server) asOperator(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(method, path, s.operator, staff.RoleOperator, body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// hire creates a member with a 09:00-18:00 shift on bookingDate.
func (s *server) hire(role staff.Role) uuid.UUID {
	s.t.Helper()
	rec := s.asOperator(http.MethodPost, "/staff", api.CreateStaffRequest{Name: "member", Role: role})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	member := decode[staff.Staff](s.t, rec)

	rec = s.asOperator(http.MethodPost, "/slots", map[string]any{
		"staff_id":   member.ID.String(),
		"date":       bookingDate,
		"start_time": "09:00",
		"end_time":   "18:00",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return member.ID
}

func (s *server) book(therapist, driver uuid.UUID, start, end string, materials ...inventory.MaterialRequest) *httptest.ResponseRecorder {
	s.t.Helper()
	body := map[string]any{
		"client_id":     uuid.NewString(),
		"therapist_ids": []string{therapist.String()},
		"date":          bookingDate,
		"start_time":    start,
		"end_time":      end,
		"materials":     materials,
	}
	if driver != uuid.Nil {
		body["driver_id"] = driver.String()
	}
	return s.asOperator(http.MethodPost, "/appointments", body)
}

func TestHealth(t *testing.T) {
	s := newServer(t,
		api.Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		api.Check{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)

	rec := s.do(http.MethodGet, "/health/live", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(http.MethodGet, "/health/ready", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[api.ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["redis"])

	s = newServer(t, api.Check{Name: "postgres", Critical: true, Ping: func(context.Context) error { return errors.New("down") }})
	rec = s.do(http.MethodGet, "/health/ready", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActorHeadersAreRequired(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/appointments", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_actor", decode[api.ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodGet, "/appointments", uuid.New(), "janitor", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/staff", uuid.New(), staff.RoleTherapist, api.CreateStaffRequest{Name: "x", Role: staff.RoleDriver})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newServer(t)
	therapist := s.hire(staff.RoleTherapist)
	driver := s.hire(staff.RoleDriver)

	rec := s.book(therapist, driver, "10:00", "11:30")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, appointment.StatusPending, created.Status)
	assert.False(t, created.GroupConfirmationComplete)
	path := "/appointments/" + created.ID.String()

	rec = s.do(http.MethodPost, path+"/accept", therapist, staff.RoleTherapist, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, appointment.StatusTherapistConfirmed, accepted.Status)
	assert.True(t, accepted.GroupConfirmationComplete)

	rec = s.do(http.MethodGet, path, therapist, staff.RoleTherapist, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, path, uuid.New(), staff.RoleTherapist, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unassigned staff cannot read the booking")

	rec = s.do(http.MethodPost, path+"/arrive", driver, staff.RoleDriver, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "invalid_transition", errResp.Error)
	data, ok := errResp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not_reached", data["reason"])

	rec = s.do(http.MethodGet, "/appointments?date="+bookingDate, therapist, staff.RoleTherapist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AppointmentResponse](t, rec), 1)

	rec = s.do(http.MethodGet, "/notifications", therapist, staff.RoleTherapist, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[[]notification.Notification](t, rec)
	require.NotEmpty(t, inbox)
	rec = s.do(http.MethodPost, "/notifications/"+inbox[0].ID.String()+"/read", therapist, staff.RoleTherapist, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.asOperator(http.MethodGet, path+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]appointment.EventLog](t, rec), 2)
}

func TestConflictsAndAvailability(t *testing.T) {
	s := newServer(t)
	therapist := s.hire(staff.RoleTherapist)

	require.Equal(t, http.StatusCreated, s.book(therapist, uuid.Nil, "10:00", "11:00").Code)

	rec := s.book(therapist, uuid.Nil, "10:30", "11:30")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict_detected", decode[api.ErrorResponse](t, rec).Error)

	rec = s.book(therapist, uuid.Nil, "19:00", "20:00")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "staff_unavailable", decode[api.ErrorResponse](t, rec).Error)

	rec = s.book(therapist, uuid.Nil, "11:00", "11:00")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.asOperator(http.MethodGet, "/conflicts?staff_id="+therapist.String()+"&date="+bookingDate+"&start=11:00&end=12:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[appointment.ConflictReport](t, rec)
	assert.True(t, report.Available)
	assert.Empty(t, report.Conflicts)

	rec = s.asOperator(http.MethodGet, "/staff/"+therapist.String()+"/next-free?date="+bookingDate+"&duration=2h", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[api.NextFreeResponse](t, rec)
	assert.Equal(t, "11:00-13:00", next.Window.String())

	rec = s.asOperator(http.MethodGet, "/staff/available?role=therapist&date="+bookingDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]staff.Staff](t, rec), 1)
}

func TestShortfallIsUnprocessable(t *testing.T) {
	s := newServer(t)
	therapist := s.hire(staff.RoleTherapist)
	driver := s.hire(staff.RoleDriver)

	rec := s.asOperator(http.MethodPost, "/inventory", api.CreateItemRequest{Name: "Massage Oil", Unit: "bottle", CurrentStock: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	oil := decode[inventory.Item](t, rec)

	rec = s.book(therapist, driver, "10:00", "12:00", inventory.MaterialRequest{ItemID: oil.ID, Quantity: 15})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/appointments/" + decode[api.AppointmentResponse](t, rec).ID.String()

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path+"/accept", therapist, staff.RoleTherapist, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path+"/accept", driver, staff.RoleDriver, nil).Code)
	require.Equal(t, http.StatusOK, s.asOperator(http.MethodPost, path+"/start", nil).Code)

	rec = s.do(http.MethodPost, path+"/start-journey", driver, staff.RoleDriver, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", errResp.Error)
	data := errResp.Data.(map[string]any)
	assert.EqualValues(t, 5, data["shortfall"])

	rec = s.asOperator(http.MethodPost, "/inventory/"+oil.ID.String()+"/restock", api.QuantityRequest{Quantity: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, path+"/start-journey", driver, staff.RoleDriver, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.asOperator(http.MethodGet, "/inventory/"+oil.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[inventory.Item](t, rec)
	assert.Zero(t, item.CurrentStock)
	assert.Equal(t, 15, item.InUse)
}

func TestRejectionReviewDeletes(t *testing.T) {
	s := newServer(t)
	therapist := s.hire(staff.RoleTherapist)

	rec := s.book(therapist, uuid.Nil, "10:00", "11:00")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.AppointmentResponse](t, rec).ID
	path := "/appointments/" + id.String()

	rec = s.do(http.MethodPost, path+"/reject", therapist, staff.RoleTherapist, api.TransitionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")

	rec = s.do(http.MethodPost, path+"/reject", therapist, staff.RoleTherapist, api.TransitionRequest{Reason: "sick"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.asOperator(http.MethodGet, "/rejections?unresolved=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]appointment.Rejection](t, rec), 1)

	rec = s.asOperator(http.MethodPost, path+"/review", api.TransitionRequest{Verdict: "ACCEPTED"})
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[api.DeletedResponse](t, rec)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, id, deleted.ID)

	rec = s.asOperator(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadPathAndBody(t *testing.T) {
	s := newServer(t)

	rec := s.asOperator(http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	req.Header.Set("X-User-ID", s.operator.String())
	req.Header.Set("X-User-Role", "operator")
	out := httptest.NewRecorder()
	s.h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)

	rec = s.asOperator(http.MethodGet, "/appointments?status=floating", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
