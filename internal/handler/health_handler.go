package handler

import (
	"context"
	"net/http"
	"time"

	"go-tour-booking/internal/service"
	"go-tour-booking/pkg/apierror"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	store healthChecker
}

func NewHealthHandler(store healthChecker) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		writeError(w, apierror.Wrap(err, "UNAVAILABLE", "identity store unreachable", "", http.StatusServiceUnavailable))
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"}, nil)
}

var _ healthChecker = (*service.UserService)(nil)
