package http

import "github.com/gin-gonic/gin"

// Register registers the demo data routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/backfill", h.Backfill)
	rg.POST("/tick", h.Tick)
	rg.GET("/status", h.Status)
	rg.GET("/entries", h.ListEntries)
	rg.GET("/treatments", h.ListTreatments)
	rg.DELETE("/data", h.PurgeDemoData)
}
