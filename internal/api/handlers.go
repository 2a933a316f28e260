package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

func createAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.Create(r.Context(), actor, in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentResponse(*appt))
	}
}

func (req CreateAppointmentRequest) toInput() (appointment.CreateInput, error) {
	var in appointment.CreateInput

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return in, errBadField("client_id must be a valid UUID")
	}
	therapists, err := parseUUIDs(req.TherapistIDs)
	if err != nil {
		return in, errBadField("therapist_ids: " + err.Error())
	}
	services, err := parseUUIDs(req.ServiceIDs)
	if err != nil {
		return in, errBadField("service_ids: " + err.Error())
	}
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return in, errBadField("date must be YYYY-MM-DD")
	}

	in = appointment.CreateInput{
		ClientID:     clientID,
		TherapistIDs: therapists,
		ServiceIDs:   services,
		GroupSize:    req.GroupSize,
		Date:         date,
		Start:        req.StartTime,
		End:          req.EndTime,
		Location:     req.Location,
		Notes:        req.Notes,
		Materials:    req.Materials,
	}
	if req.DriverID != "" {
		driverID, err := uuid.Parse(req.DriverID)
		if err != nil {
			return in, errBadField("driver_id must be a valid UUID")
		}
		in.DriverID = &driverID
	}
	return in, nil
}

type errBadField string

func (e errBadField) Error() string { return string(e) }

func getAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		if actor.Role != staff.RoleOperator && !appt.HasTherapist(actor.ID) && !appt.IsDriver(actor.ID) {
			writeError(w, http.StatusForbidden, "not_authorized", "appointment is not assigned to you")
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		date, err := queryDate(r, "date", false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		status := appointment.Status(strings.ToLower(r.URL.Query().Get("status")))
		if status != "" && !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status "+string(status))
			return
		}

		list, err := svc.List(r.Context(), appointment.ListFilter{
			Date:   date,
			Status: status,
			Role:   actor.Role,
			UserID: actor.ID,
			Limit:  queryInt(r, "limit"),
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := make([]AppointmentResponse, len(list))
		for i, a := range list {
			resp[i] = newAppointmentResponse(a)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// transitionHandler serves one lifecycle action. The body is optional and
// only the fields the action reads are used.
func transitionHandler(svc *appointment.Service, action appointment.Action, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		cmd := appointment.Command{
			Action:        action,
			Reason:        req.Reason,
			Verdict:       appointment.Verdict(strings.ToLower(req.Verdict)),
			Materials:     req.Materials,
			PaymentAmount: req.PaymentAmount,
			PaymentMethod: req.PaymentMethod,
		}
		if req.DriverID != "" {
			driverID, err := uuid.Parse(req.DriverID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "driver_id must be a valid UUID")
				return
			}
			cmd.DriverID = driverID
		}

		d, err := svc.Transition(r.Context(), id, actor, cmd)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		if d.Deleted() {
			writeJSON(w, http.StatusOK, DeletedResponse{ID: id, Deleted: true})
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(d.Appointment))
	}
}

func appointmentEventsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		events, err := svc.Events(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func listRejectionsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}

		rejections, err := svc.Rejections(r.Context(), queryBool(r, "unresolved"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rejections)
	}
}

// checkConflictsHandler answers whether a proposed window is bookable for a
// staff member before an operator commits to it.
func checkConflictsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}

		q := r.URL.Query()
		staffID, err := uuid.Parse(q.Get("staff_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "staff_id must be a valid UUID")
			return
		}
		date, err := queryDate(r, "date", true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		start, err := availability.ParseTimeOfDay(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "start must be HH:MM")
			return
		}
		end, err := availability.ParseTimeOfDay(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "end must be HH:MM")
			return
		}
		exclude, err := queryUUID(r, "exclude")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		report, err := svc.CheckProposal(r.Context(), staffID, *date, availability.Window{Start: start, End: end}, exclude)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
