package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/models"
)

// getSettings returns the effective settings: engine defaults with the project's overrides.
func (h *Handler) getSettings(c *gin.Context) {
	settings, err := h.engine.Settings.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) saveSettings(c *gin.Context) {
	var req models.ProjectSettings
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := h.engine.Settings.Save(ctx, &req); err != nil {
		h.respondError(c, err)
		return
	}
	settings, err := h.engine.Settings.Get(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) runIntegritySweep(c *gin.Context) {
	reports, err := h.engine.Integrity.RunProject(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) listIntegrityReports(c *gin.Context) {
	reports, err := h.engine.Integrity.ListReports(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
