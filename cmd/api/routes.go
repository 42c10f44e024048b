package main

import (
	"context"
	"net/http"

	"voice-scheduler/internal/httpapi"
	"voice-scheduler/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW     gin.HandlerFunc
	webhookMW  []gin.HandlerFunc
	webhooks   telephony.WebhookHandler
	healthPing func(ctx context.Context) error
	api        httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.healthPing != nil {
			if err := d.healthPing(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public, optionally signature-checked).
	d.webhooks.Register(r.Group("/webhooks/twilio"), d.webhookMW...)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	d.api.Register(v1)
}
