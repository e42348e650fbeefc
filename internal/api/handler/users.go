package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/morningcast/internal/api/respond"
	"github.com/albapepper/morningcast/internal/users"
)

const maxBodyBytes = 16 << 10

// userResponse is the public view of a user. The device token is reported
// only as present or absent.
type userResponse struct {
	ID        int64  `json:"user_id"`
	Username  string `json:"username"`
	Location  string `json:"location"`
	HasToken  bool   `json:"has_token"`
	CreatedAt string `json:"created_at"`
}

func toResponse(u users.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Location:  u.Location,
		HasToken:  strings.TrimSpace(u.Token) != "",
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateUser registers a user.
// POST /api/v1/users {"username": "...", "location": "..."}
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Location string `json:"location"`
	}
	if err := respond.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}

	u, err := h.users.CreateUser(r.Context(), strings.TrimSpace(req.Username), req.Location)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, toResponse(u))
}

// GetUser looks a user up by username.
// GET /api/v1/users?username=...
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_USERNAME", "username query parameter is required")
		return
	}

	u, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toResponse(u))
}

// SetToken registers the device push token for a user.
// POST /api/v1/users/{userID}/token {"token": "..."}
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := respond.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}

	if err := h.users.SetToken(r.Context(), id, strings.TrimSpace(req.Token)); err != nil {
		writeStoreError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"user_id": id, "has_token": true})
}

// ClearToken removes the device push token for a user.
// DELETE /api/v1/users/{userID}/token
func (h *Handler) ClearToken(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.users.ClearToken(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"user_id": id, "has_token": false})
}

// UpdateLocation changes a user's location.
// PUT /api/v1/users/{userID}/location {"location": "..."}
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Location string `json:"location"`
	}
	if err := respond.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}

	if err := h.users.UpdateLocation(r.Context(), id, req.Location); err != nil {
		writeStoreError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"user_id": id, "location": strings.TrimSpace(req.Location)})
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "user ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, users.ErrUsernameTaken):
		respond.WriteError(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
	case errors.Is(err, users.ErrInvalidUser):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_USER", "Invalid user fields", err.Error())
	default:
		slog.Error("User directory error", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "User directory unavailable")
	}
}
