package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easycrawl/catalog-service/internal/middleware"
	"github.com/easycrawl/catalog-service/internal/registry"
)

// Routes wires the handlers into a router
type Routes struct {
	Ping     Pinger
	Stats    PoolStatter
	Cache    *registry.Cache
	Jobs     *JobsHandler
	Registry *RegistryHandler

	// APIKey guards /internal; empty rejects every internal call
	APIKey string
	// TriggerLimiter paces job triggers per job type, nil disables pacing
	TriggerLimiter *middleware.KeyedRateLimiter
}

// Register mounts every route on r
func (rt Routes) Register(r gin.IRouter) {
	r.GET("/health", HealthCheck(rt.Ping, rt.Stats, rt.Cache))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal")
	internal.Use(middleware.InternalAuth(rt.APIKey))

	if rt.Jobs != nil {
		internal.GET("/jobs", rt.Jobs.ListJobTypes)
		trigger := []gin.HandlerFunc{rt.Jobs.TriggerJob}
		if rt.TriggerLimiter != nil {
			trigger = append([]gin.HandlerFunc{middleware.RateLimit(rt.TriggerLimiter, middleware.PathParam("type"))}, trigger...)
		}
		internal.POST("/jobs/:type", trigger...)
	}

	if rt.Registry != nil {
		internal.GET("/registry", rt.Registry.Show)
		internal.POST("/registry/refresh", rt.Registry.Refresh)
		internal.POST("/registry/import", rt.Registry.Import)
	}
}
