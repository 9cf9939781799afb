package main

import (
	"database/sql"
	"net/http"
	"time"

	"dropship-platform/internal/config"
	"dropship-platform/internal/httpapi"
	"dropship-platform/internal/realtime"
	"dropship-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg      config.Config
	handlers httpapi.Handlers
	authMW   gin.HandlerFunc
	hub      *realtime.Hub
	// db is nil with the memory store.
	db *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": d.hub.Clients()})
	})

	// Realtime. The handler authenticates the socket itself.
	r.GET("/ws", realtime.Handler(d.hub, d.handlers.Auth, d.cfg.App.CORSAllowedOrigins))

	// Token issuance for local runs only; production tokens come from the auth provider.
	if !d.cfg.IsProduction() {
		r.POST("/v1/auth/token", d.handlers.IssueToken)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	d.handlers.Register(v1)
}
