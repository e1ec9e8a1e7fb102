package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hazelvane/arcana/internal/access"
	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/model"
	"github.com/hazelvane/arcana/internal/reading"
	"github.com/hazelvane/arcana/internal/store"
)

type ReadingHandler struct {
	access    *access.Service
	generator reading.Generator
	userStore *store.UserStore
	logger    *slog.Logger
}

func NewReadingHandler(svc *access.Service, gen reading.Generator, us *store.UserStore, logger *slog.Logger) *ReadingHandler {
	return &ReadingHandler{
		access:    svc,
		generator: gen,
		userStore: us,
		logger:    logger,
	}
}

// Create generates a reading for the category, spending its single use.
// The use is only spent after generation succeeds, so a generator failure
// leaves the category available for retry.
func (h *ReadingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	category := r.PathValue("category")
	if !model.ValidCategory(category) {
		respondError(w, http.StatusBadRequest, "unknown category")
		return
	}

	user, err := h.userStore.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.BirthDate == nil || *user.BirthDate == "" {
		respondError(w, http.StatusBadRequest, "birth date is required for readings")
		return
	}

	decision, ent, err := h.access.Check(userID, category, time.Now().UTC())
	if err != nil {
		h.logger.Error("access check", "user_id", userID, "category", category, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !decision.Granted {
		respondJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":  "access denied",
			"reason": string(decision.Reason),
		})
		return
	}

	profile := reading.SubjectProfile{
		FullName:  user.FullName,
		BirthDate: *user.BirthDate,
	}
	if user.BirthPlace != nil {
		profile.BirthPlace = *user.BirthPlace
	}

	text, err := h.generator.Generate(r.Context(), category, profile)
	if err != nil {
		h.logger.Error("generate reading", "user_id", userID, "category", category, "error", err)
		respondError(w, http.StatusBadGateway, "reading generation failed, your access was not consumed")
		return
	}

	if err := h.access.MarkConsumed(ent, category); err != nil {
		// The reading was produced; deliver it and let the next access
		// check surface any inconsistency.
		h.logger.Error("mark consumed", "user_id", userID, "category", category, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"reading":  text,
	})
}
