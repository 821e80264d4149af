package router

import (
	"github.com/gin-gonic/gin"

	"github.com/retailhub/backend/internal/interfaces/http/handler"
)

// AccountingRoutes builds the /accounting route group.
func AccountingRoutes(h *handler.AccountingHandler) *DomainGroup {
	g := NewDomainGroup("accounting", "/accounting")

	g.GET("/connect", h.Connect).
		GET("/callback", h.Callback).
		POST("/disconnect", h.Disconnect).
		GET("/status", h.GetStatus).
		GET("/connection/test", h.TestConnection).
		GET("/logs", h.ListLogs)

	sync := g.Group("sync", "/sync")
	sync.POST("/:kind", h.SyncAll).
		POST("/:kind/:id", h.SyncOne)

	g.POST("/invoices/:saleId/send", h.SendInvoice).
		GET("/reports/:report", h.GetReport)

	jobs := g.Group("jobs", "/jobs")
	jobs.POST("", h.EnqueueJob).
		GET("", h.ListJobs).
		GET("/:id", h.GetJob).
		DELETE("/:id", h.CancelJob)

	return g
}

// SystemRoutes builds the /system route group.
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/health", h.Health)
}

// RegisterProbes mounts the unversioned liveness endpoint used by load balancers.
func RegisterProbes(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health", h.Health)
}
