package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Slots         *availability.Service
	Ledger        *inventory.Ledger
	Staff         *staff.Directory
	Notifications *notification.Service
	Logger        *zap.Logger
	Metrics       http.Handler
	Checks        []Check
	Env           string
	Version       string
}

// transitionRoutes maps each transition endpoint onto its action.
var transitionRoutes = map[string]appointment.Action{
	"accept":               appointment.ActionAccept,
	"reject":               appointment.ActionReject,
	"review":               appointment.ActionReview,
	"assign-driver":        appointment.ActionAssignDriver,
	"start":                appointment.ActionStart,
	"start-journey":        appointment.ActionStartJourney,
	"arrive":               appointment.ActionArrive,
	"drop-off":             appointment.ActionDropOff,
	"start-session":        appointment.ActionStartSession,
	"request-payment":      appointment.ActionRequestPayment,
	"verify-payment":       appointment.ActionVerifyPayment,
	"request-pickup":       appointment.ActionRequestPickup,
	"assign-pickup-driver": appointment.ActionAssignPickupDriver,
	"confirm-pickup":       appointment.ActionConfirmPickup,
	"reject-pickup":        appointment.ActionRejectPickup,
	"complete-return":      appointment.ActionCompleteReturn,
	"cancel":               appointment.ActionCancel,
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Checks...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Appointments, logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments, logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, logger))
		r.Get("/appointments/{id}/events", appointmentEventsHandler(cfg.Appointments, logger))
		for path, action := range transitionRoutes {
			r.Post("/appointments/{id}/"+path, transitionHandler(cfg.Appointments, action, logger))
		}
		r.Get("/rejections", listRejectionsHandler(cfg.Appointments, logger))
		r.Get("/conflicts", checkConflictsHandler(cfg.Appointments, logger))

		// Staff and availability
		r.Post("/staff", createStaffHandler(cfg.Staff, logger))
		r.Get("/staff/available", availableStaffHandler(cfg.Staff, logger))
		r.Get("/staff/{id}", getStaffHandler(cfg.Staff, logger))
		r.Get("/staff/{id}/next-free", nextFreeHandler(cfg.Appointments, logger))
		r.Get("/staff/{id}/slots", listSlotsHandler(cfg.Slots, logger))
		r.Post("/slots", createSlotHandler(cfg.Slots, logger))
		r.Put("/slots/{id}", updateSlotHandler(cfg.Slots, logger))
		r.Delete("/slots/{id}", deleteSlotHandler(cfg.Slots, logger))

		// Inventory
		if cfg.Ledger != nil {
			r.Get("/inventory", listItemsHandler(cfg.Ledger, logger))
			r.Post("/inventory", createItemHandler(cfg.Ledger, logger))
			r.Get("/inventory/{id}", getItemHandler(cfg.Ledger, logger))
			r.Get("/inventory/{id}/history", itemHistoryHandler(cfg.Ledger, logger))
			r.Post("/inventory/{id}/restock", restockHandler(cfg.Ledger, logger))
			r.Post("/inventory/{id}/refill", refillHandler(cfg.Ledger, logger))
			r.Get("/appointments/{id}/materials", appointmentMaterialsHandler(cfg.Ledger, logger))
		}

		// Notifications
		if cfg.Notifications != nil {
			r.Get("/notifications", listNotificationsHandler(cfg.Notifications, logger))
			r.Post("/notifications/{id}/read", markReadHandler(cfg.Notifications, logger))
		}
	})

	return r
}
