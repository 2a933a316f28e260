package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/inventory"
)

func listItemsHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		items, err := ledger.Items(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func getItemHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		item, err := ledger.Item(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func createItemHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}

		var req CreateItemRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}

		item, err := ledger.CreateItem(r.Context(), inventory.Item{
			Name:         req.Name,
			Category:     req.Category,
			Unit:         req.Unit,
			CurrentStock: req.CurrentStock,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func restockHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return quantityHandler(logger, ledger.Restock)
}

// refillHandler turns empty containers back into usable stock.
func refillHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return quantityHandler(logger, ledger.Refill)
}

func quantityHandler(logger *zap.Logger, op func(context.Context, uuid.UUID, int) (*inventory.Item, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req QuantityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, err := op(r.Context(), id, req.Quantity)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func itemHistoryHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok || !requireOperator(w, actor) {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		logs, err := ledger.History(r.Context(), id, queryInt(r, "limit"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func appointmentMaterialsHandler(ledger *inventory.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := mustActor(w, r); !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		materials, err := ledger.Materials(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, materials)
	}
}
