package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	logger *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// ServeHTTP handles the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}

	if err := envelope.Render(w, r, envelope.ClassHealth, response); err != nil {
		h.logger.WithError(err).Error("Failed to write health response")
	}
}
