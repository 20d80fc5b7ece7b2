package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/identity"
)

const maxAdminBody = 64 * 1024

// UserAdmin stores and deletes users
type UserAdmin interface {
	PutUser(user *models.User) error
	RemoveUser(userID string) error
}

// ImportTrigger starts a background mapping refresh
type ImportTrigger interface {
	TriggerImport() bool
}

// UserRequest is the body of PUT /admin/users/{userID}
type UserRequest struct {
	AccessToken   string `json:"access_token" validate:"required"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresIn     int    `json:"expires_in" validate:"gt=0"` // seconds
	TrackUnlisted bool   `json:"track_unlisted"`
	FetchStreams  bool   `json:"fetch_streams"`
}

// User builds the stored record, counting the token lifetime from now
func (u UserRequest) User(id string, now time.Time) *models.User {
	return &models.User{
		ID:            id,
		AccessToken:   u.AccessToken,
		RefreshToken:  u.RefreshToken,
		ExpiresIn:     u.ExpiresIn,
		LastUpdated:   now,
		TrackUnlisted: u.TrackUnlisted,
		FetchStreams:  u.FetchStreams,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AdminResponse is the body of every admin answer
type AdminResponse struct {
	UserID  string `json:"user_id,omitempty"`
	Import  string `json:"import,omitempty"`
	Message string `json:"message"`
}

// AdminHandler lets operators manage users and mappings on a running server
type AdminHandler struct {
	users    UserAdmin
	importer ImportTrigger
	validate *validator.Validate
	now      func() time.Time
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(users UserAdmin, importer ImportTrigger, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		users:    users,
		importer: importer,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

// PutUser handles PUT /admin/users/{userID}
func (h *AdminHandler) PutUser(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")

	var req UserRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody)).Decode(&req); err != nil {
		h.render(w, r, http.StatusBadRequest, AdminResponse{UserID: userID, Message: "Invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.render(w, r, http.StatusBadRequest, AdminResponse{UserID: userID, Message: err.Error()})
		return
	}

	if err := h.users.PutUser(req.User(userID, h.now())); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to store user")
		h.render(w, r, http.StatusInternalServerError, AdminResponse{UserID: userID, Message: "Failed to store user"})
		return
	}

	h.render(w, r, http.StatusOK, AdminResponse{UserID: userID, Message: "User stored"})
}

// RemoveUser handles DELETE /admin/users/{userID}
func (h *AdminHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")

	err := h.users.RemoveUser(userID)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		h.render(w, r, http.StatusNotFound, AdminResponse{UserID: userID, Message: "User not found"})
	case err != nil:
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to remove user")
		h.render(w, r, http.StatusInternalServerError, AdminResponse{UserID: userID, Message: "Failed to remove user"})
	default:
		h.render(w, r, http.StatusOK, AdminResponse{UserID: userID, Message: "User removed"})
	}
}

// Import handles POST /admin/mappings/import
func (h *AdminHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !h.importer.TriggerImport() {
		h.render(w, r, http.StatusConflict, AdminResponse{Import: "running", Message: "A mapping refresh is already running"})
		return
	}
	h.render(w, r, http.StatusAccepted, AdminResponse{Import: "started", Message: "Mapping refresh started"})
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, status int, response AdminResponse) {
	if err := envelope.RenderStatus(w, r, envelope.ClassAdmin, status, response); err != nil {
		h.logger.WithError(err).Error("Failed to write admin response")
	}
}
