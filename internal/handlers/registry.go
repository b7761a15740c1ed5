package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/sheet"
)

const maxImportSize = 10 << 20

// RegistryHandler serves registry maintenance endpoints
type RegistryHandler struct {
	cache  *registry.Cache
	writer *registry.Writer
	logger zerolog.Logger
}

// NewRegistryHandler creates a registry handler
func NewRegistryHandler(cache *registry.Cache, writer *registry.Writer, logger zerolog.Logger) *RegistryHandler {
	return &RegistryHandler{
		cache:  cache,
		writer: writer,
		logger: logger.With().Str("component", "registry_handler").Logger(),
	}
}

// RegistryStatus describes the active snapshot
type RegistryStatus struct {
	Version int64          `json:"version"`
	Entries map[string]int `json:"entries"`
	Dropped []string       `json:"dropped_patterns,omitempty"`
}

func status(snap *registry.Snapshot) RegistryStatus {
	return RegistryStatus{Version: snap.Version(), Entries: snap.Counts(), Dropped: snap.Dropped()}
}

// Show returns the active snapshot
// GET /internal/registry
func (h *RegistryHandler) Show(c *gin.Context) {
	c.JSON(http.StatusOK, status(h.cache.Snapshot()))
}

// Refresh reloads the registry here and in every subscribed process
// POST /internal/registry/refresh
func (h *RegistryHandler) Refresh(c *gin.Context) {
	snap, err := h.writer.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Registry refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registry refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, status(snap))
}

// ImportResponse reports a registry import
type ImportResponse struct {
	Written int                 `json:"written"`
	Errors  []registry.RowError `json:"errors,omitempty"`
	Status  RegistryStatus      `json:"registry"`
}

// Import upserts entries from an uploaded CSV or XLSX file (form field "file")
// POST /internal/registry/import
func (h *RegistryHandler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file: " + err.Error()})
		return
	}
	if fh.Size > maxImportSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	format, err := sheet.FormatFromFilename(fh.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open upload: " + err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImportSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read upload: " + err.Error()})
		return
	}

	entries, rowErrs, err := registry.ParseEntries(data, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	written, err := h.writer.Import(c.Request.Context(), entries)
	if err != nil {
		h.logger.Error().Err(err).Str("file", fh.Filename).Msg("Registry import failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info().
		Str("file", fh.Filename).
		Int("written", written).
		Int("rejected", len(rowErrs)).
		Msg("Registry imported")
	c.JSON(http.StatusOK, ImportResponse{Written: written, Errors: rowErrs, Status: status(h.cache.Snapshot())})
}
