package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the domain error taxonomy onto HTTP. Anything it
// does not recognise is an unexpected failure: logged, answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		transition *appointment.TransitionError
		conflict   *availability.ConflictError
		unavail    *availability.UnavailableError
		shortfall  *inventory.ShortfallError
		none       *assignment.NoCandidateError
	)

	switch {
	case errors.As(err, &transition):
		want := make([]string, len(transition.Want))
		for i, s := range transition.Want {
			want[i] = string(s)
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "invalid_transition",
			Details: err.Error(),
			Data: transitionData{
				Action: string(transition.Action),
				From:   string(transition.From),
				Want:   want,
				Reason: string(transition.Reason),
			},
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "conflict_detected",
			Details: err.Error(),
			Data: conflictData{
				StaffID:   conflict.StaffID,
				Date:      conflict.Date.Format(time.DateOnly),
				Requested: conflict.Requested,
				Existing:  conflict.Existing,
			},
		})
	case errors.As(err, &unavail):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "staff_unavailable",
			Details: err.Error(),
			Data: conflictData{
				StaffID:   unavail.StaffID,
				Date:      unavail.Date.Format(time.DateOnly),
				Requested: unavail.Requested,
			},
		})
	case errors.As(err, &shortfall):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "insufficient_stock",
			Details: err.Error(),
			Data: shortfallData{
				ItemID:    shortfall.ItemID,
				Name:      shortfall.Name,
				Required:  shortfall.Required,
				Available: shortfall.Available,
				Shortfall: shortfall.Shortfall(),
			},
		})
	case errors.As(err, &none):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "no_candidate",
			Details: err.Error(),
			Data:    noCandidateData{Date: none.Date, Busy: none.Busy},
		})
	case errors.Is(err, appointment.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, appointment.ErrAppointmentBusy):
		writeError(w, http.StatusConflict, "appointment_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidInput),
		errors.Is(err, availability.ErrInvalidWindow),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, staff.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, assignment.ErrNotInPool),
		errors.Is(err, staff.ErrInactive):
		writeError(w, http.StatusUnprocessableEntity, "staff_not_eligible", err.Error())
	case errors.Is(err, availability.ErrNoFreeSlot):
		writeError(w, http.StatusNotFound, "no_free_slot", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrRejectionNotFound),
		errors.Is(err, availability.ErrSlotNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, staff.ErrStaffNotFound),
		errors.Is(err, notification.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected failure, the request was rolled back")
	}
}
