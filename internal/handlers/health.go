// Package handlers exposes the catalog jobs and registry over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// Pinger checks a backing service, usually database.Status
type Pinger func(ctx context.Context) error

// PoolStatter reports connection pool usage, usually database.Stats
type PoolStatter func() *database.PoolStats

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string              `json:"status"`
	Database        string              `json:"database"`
	Pool            *database.PoolStats `json:"pool,omitempty"`
	RegistryVersion int64               `json:"registry_version"`
	RegistryLoaded  *time.Time          `json:"registry_loaded_at,omitempty"`
	RegistryEntries map[string]int      `json:"registry_entries,omitempty"`
}

// HealthCheck reports database connectivity, pool usage and the active registry snapshot
func HealthCheck(ping Pinger, stats PoolStatter, cache *registry.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{Status: "ok"}
		if stats != nil {
			response.Pool = stats()
		}

		if cache != nil {
			snap := cache.Snapshot()
			response.RegistryVersion = snap.Version()
			if loaded := snap.LoadedAt(); !loaded.IsZero() {
				response.RegistryLoaded = &loaded
			}
			response.RegistryEntries = snap.Counts()
		}

		if ping == nil {
			response.Database = "not configured"
			c.JSON(http.StatusOK, response)
			return
		}
		if err := ping(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
		c.JSON(http.StatusOK, response)
	}
}
