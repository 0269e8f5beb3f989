package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/pkg/api"
)

// MasterHandler отдает справочники
type MasterHandler struct {
	responder
	storage storage.MasterStorage
}

// NewMasterHandler создает handler справочников
func NewMasterHandler(logger *slog.Logger, s storage.MasterStorage) *MasterHandler {
	return &MasterHandler{
		responder: responder{logger: logger},
		storage:   s,
	}
}

// List обрабатывает GET /api/v1/master/{kind}
func (h *MasterHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind := r.PathValue("kind")
	table, ok := models.MasterKinds[kind]
	if !ok {
		h.sendError(w, "unknown master data kind: "+kind, http.StatusNotFound)
		return
	}

	items, err := h.storage.ListMasterItems(ctx, table)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list master items", slog.String("kind", kind), slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.MasterItem{}
	}

	h.sendJSON(w, api.MasterResponse{Kind: kind, Items: items}, http.StatusOK)
}
