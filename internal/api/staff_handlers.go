package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

const defaultSessionLength = 90 * time.Minute

func createStaffHandler(dir *staff.Directory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}

		var req CreateStaffRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}

		member := staff.Staff{Name: req.Name, Role: req.Role, IsActive: true}
		if req.Specialization != "" {
			member.Specialization = &req.Specialization
		}

		created, err := dir.Create(r.Context(), member)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func getStaffHandler(dir *staff.Directory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		member, err := dir.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}
}

// availableStaffHandler lists who can be booked on a date. Drivers are
// returned in the order the FIFO engine would offer them.
func availableStaffHandler(dir *staff.Directory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}

		date, err := queryDate(r, "date", true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		role := staff.Role(strings.ToLower(r.URL.Query().Get("role")))
		if role == "" {
			role = staff.RoleTherapist
		}

		members, err := dir.Available(r.Context(), role, *date, r.URL.Query().Get("specialization"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}
}

func nextFreeHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		date, err := queryDate(r, "date", true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		length := defaultSessionLength
		if raw := r.URL.Query().Get("duration"); raw != "" {
			length, err = time.ParseDuration(raw)
			if err != nil || length <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_request", "duration must be a positive Go duration such as 90m")
				return
			}
		}

		window, err := svc.NextFreeSlot(r.Context(), id, *date, length)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, NextFreeResponse{
			StaffID:  id,
			Date:     date.Format(time.DateOnly),
			Duration: length.String(),
			Window:   window,
		})
	}
}

func listSlotsHandler(svc *availability.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		from, err := queryDate(r, "from", true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		to, err := queryDate(r, "to", false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if to == nil {
			to = from
		}

		slots, err := svc.ListSlots(r.Context(), id, *from, *to)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

// slotOwner allows operators to manage any slot and staff only their own.
func slotOwner(w http.ResponseWriter, actor appointment.Actor, staffID uuid.UUID) bool {
	if actor.Role == staff.RoleOperator || actor.ID == staffID {
		return true
	}
	writeError(w, http.StatusForbidden, "not_authorized", "slots can only be managed by their owner or an operator")
	return false
}

func (req SlotRequest) toSlot() (availability.Slot, error) {
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		return availability.Slot{}, errBadField("staff_id must be a valid UUID")
	}
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return availability.Slot{}, errBadField("date must be YYYY-MM-DD")
	}
	slot := availability.Slot{
		StaffID:     staffID,
		Date:        date,
		Start:       req.StartTime,
		End:         req.EndTime,
		IsAvailable: true,
	}
	if req.IsAvailable != nil {
		slot.IsAvailable = *req.IsAvailable
	}
	return slot, nil
}

func createSlotHandler(svc *availability.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		var req SlotRequest
		if !decodeBody(w, r, &req) {
			return
		}
		slot, err := req.toSlot()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if !slotOwner(w, actor, slot.StaffID) {
			return
		}

		created, err := svc.CreateSlot(r.Context(), slot)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateSlotHandler(svc *availability.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req SlotRequest
		if !decodeBody(w, r, &req) {
			return
		}
		slot, err := req.toSlot()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if !slotOwner(w, actor, slot.StaffID) {
			return
		}
		slot.ID = id

		updated, err := svc.UpdateSlot(r.Context(), slot)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteSlotHandler(svc *availability.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
