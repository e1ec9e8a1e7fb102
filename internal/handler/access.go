package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hazelvane/arcana/internal/access"
	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/model"
)

type AccessHandler struct {
	access *access.Service
	logger *slog.Logger
}

func NewAccessHandler(svc *access.Service, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{access: svc, logger: logger}
}

// Check reports whether the user may consume the given category right now.
// Checking is not consuming; only a successful reading spends the category.
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	category := r.URL.Query().Get("category")
	if !model.ValidCategory(category) {
		respondError(w, http.StatusBadRequest, "unknown category")
		return
	}

	decision, _, err := h.access.Check(userID, category, time.Now().UTC())
	if err != nil {
		h.logger.Error("access check", "user_id", userID, "category", category, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]any{
		"allowed":  decision.Granted,
		"category": category,
	}
	if decision.Granted {
		resp["expires_at"] = decision.ExpiresAt
	} else {
		resp["reason"] = string(decision.Reason)
	}
	respondJSON(w, http.StatusOK, resp)
}
