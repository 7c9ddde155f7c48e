package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/chainage"
	"github.com/mmdatafocus/inspection_backend/workflow"
)

func (h *Handler) parseChainage(c *gin.Context) {
	text := c.Query("text")
	metres, ok := chainage.ParseKP(text)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse chainage", "text": text})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metres": metres, "label": chainage.FormatKP(metres)})
}

func (h *Handler) formatChainage(c *gin.Context) {
	metres, err := strconv.Atoi(strings.TrimSpace(c.Query("metres")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metres must be an integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metres": metres, "label": chainage.FormatKP(metres)})
}

func (h *Handler) previewReport(c *gin.Context) {
	var in workflow.ReportInput
	if !h.bind(c, &in) {
		return
	}
	res, err := h.engine.Reports.PreviewCoverage(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) submitReport(c *gin.Context) {
	var in workflow.ReportInput
	if !h.bind(c, &in) {
		return
	}
	report, res, err := h.engine.Reports.SubmitReport(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report, "coverage": res})
}

func (h *Handler) getReport(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	report, err := h.engine.Reports.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
