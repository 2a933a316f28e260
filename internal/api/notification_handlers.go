package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/notification"
)

func listNotificationsHandler(svc *notification.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		list, err := svc.ListForUser(r.Context(), actor.ID, queryBool(r, "unread"), queryInt(r, "limit"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func markReadHandler(svc *notification.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.MarkRead(r.Context(), actor.ID, id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
