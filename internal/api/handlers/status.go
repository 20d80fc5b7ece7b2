package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
	"github.com/amaumene/malsync/internal/cache"
)

// MappingCounter reports how many id mappings are stored
type MappingCounter interface {
	CountMappings() (int, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	db     MappingCounter
	caches []cache.Named
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db MappingCounter, caches []cache.Named, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		caches: caches,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Mappings      int            `json:"mappings"`
	CacheEntries  map[string]int `json:"cache_entries"`
	CacheCapacity map[string]int `json:"cache_capacity"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	count, err := h.db.CountMappings()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count mappings")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Mappings:      count,
		CacheEntries:  make(map[string]int, len(h.caches)),
		CacheCapacity: make(map[string]int, len(h.caches)),
	}
	for _, c := range h.caches {
		response.CacheEntries[c.Name()] = c.Len()
		response.CacheCapacity[c.Name()] = c.Capacity()
	}

	if err := envelope.Render(w, r, envelope.ClassHealth, response); err != nil {
		h.logger.WithError(err).Error("Failed to write status response")
	}
}
