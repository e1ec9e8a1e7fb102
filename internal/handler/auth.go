package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazelvane/arcana/internal/auth"
	"github.com/hazelvane/arcana/internal/store"
)

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	issuer       *auth.TokenIssuer
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, issuer *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		issuer:       issuer,
		logger:       logger,
	}
}

// issueTokens mints the short-lived access token plus a long-lived refresh
// token backed by a database session.
func (h *AuthHandler) issueTokens(userID int64) (access, refresh string, err error) {
	access, err = h.issuer.Issue(userID)
	if err != nil {
		return "", "", err
	}
	sess, err := h.sessionStore.Create(userID)
	if err != nil {
		return "", "", err
	}
	return access, sess.Token, nil
}

// Register creates an account and returns a signed token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		FullName   string `json:"full_name"`
		BirthDate  string `json:"birth_date"`
		BirthPlace string `json:"birth_place"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if req.FullName == "" {
		respondError(w, http.StatusBadRequest, "full name is required")
		return
	}
	if req.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", req.BirthDate); err != nil {
			respondError(w, http.StatusBadRequest, "birth date must be YYYY-MM-DD")
			return
		}
	}

	existing, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.userStore.Create(req.Email, string(hash), req.FullName)
	if err != nil {
		h.logger.Error("create user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if req.BirthDate != "" || req.BirthPlace != "" {
		if err := h.userStore.UpdateProfile(user.ID, req.FullName, req.BirthDate, req.BirthPlace); err != nil {
			h.logger.Error("set birth details", "user_id", user.ID, "error", err)
		}
	}

	token, refresh, err := h.issueTokens(user.ID)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":         token,
		"refresh_token": refresh,
		"user": map[string]any{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
		},
	})
}

// Login verifies credentials and returns a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, refresh, err := h.issueTokens(user.ID)
	if err != nil {
		h.logger.Error("issue tokens", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":         token,
		"refresh_token": refresh,
		"user": map[string]any{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
		},
	})
}

// Refresh exchanges a valid refresh token for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	sess, err := h.sessionStore.GetByToken(req.RefreshToken)
	if err != nil {
		h.logger.Error("refresh lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess == nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	token, err := h.issuer.Issue(sess.UserID)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout revokes the refresh token's session. Access tokens simply expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	sess, err := h.sessionStore.GetByToken(req.RefreshToken)
	if err != nil || sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.sessionStore.Delete(sess.ID); err != nil {
		h.logger.Error("delete session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile returns the authenticated user's account details.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	user, err := h.userStore.GetByID(userID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"full_name":   user.FullName,
		"birth_date":  user.BirthDate,
		"birth_place": user.BirthPlace,
	})
}

// UpdateProfile updates the birth details readings are personalized with.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		FullName   string `json:"full_name"`
		BirthDate  string `json:"birth_date"`
		BirthPlace string `json:"birth_place"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		respondError(w, http.StatusBadRequest, "full name is required")
		return
	}
	if req.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", req.BirthDate); err != nil {
			respondError(w, http.StatusBadRequest, "birth date must be YYYY-MM-DD")
			return
		}
	}

	if err := h.userStore.UpdateProfile(userID, req.FullName, req.BirthDate, req.BirthPlace); err != nil {
		h.logger.Error("update profile", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
