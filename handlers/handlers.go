// Package handlers exposes the reconciliation engine over JSON HTTP.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/middlewares"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	engine *workflow.Engine
	logger *logrus.Logger
}

func New(engine *workflow.Engine, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Handler{engine: engine, logger: logger}
}

// Attach sets the engine once the store is connected. The server's readiness gate
// holds requests off until then.
func (h *Handler) Attach(engine *workflow.Engine) {
	h.engine = engine
}

// Register mounts every route. Project-scoped routes need the X-Project-Id header.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/chainage/parse", h.parseChainage)
	r.GET("/chainage/format", h.formatChainage)
	r.POST("/pubsub/field-logs", h.fieldLogPush)

	p := r.Group("/", middlewares.RequireProject())

	p.POST("/reports/preview", h.previewReport)
	p.POST("/reports", h.submitReport)
	p.GET("/reports/:id", h.getReport)

	p.POST("/field-logs", h.recordFieldLog)
	p.GET("/field-logs", h.listFieldLogs)
	p.GET("/field-logs/:id/comparison", h.compareFieldLog)
	p.POST("/field-logs/:id/verify", h.verifyFieldLog)
	p.POST("/field-logs/:id/keep-open", h.keepOpen)
	p.POST("/field-logs/ready", h.markReady)

	p.POST("/invoices/preview", h.previewInvoice)
	p.POST("/invoices/finalize", h.finalizeInvoice)
	p.POST("/billing-batches/:id/resume", h.resumeBatch)

	p.POST("/disputes/flag", h.flagItem)
	p.POST("/disputes/flag-all", h.flagAll)
	p.POST("/corrections", h.adminCorrect)
	p.GET("/disputes", h.listDisputes)
	p.POST("/disputes/send", h.sendAll)
	p.POST("/disputes/:id/send", h.sendOne)
	p.PATCH("/disputes/:id/status", h.updateDisputeStatus)

	p.GET("/settings", h.getSettings)
	p.PUT("/settings", h.saveSettings)
	p.POST("/integrity/sweep", h.runIntegritySweep)
	p.GET("/integrity-reports", h.listIntegrityReports)
}

// respondError maps engine errors to HTTP: 400 validation, 404 missing record,
// 409 partially applied writes, 500 otherwise.
func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	var pe *utils.PersistenceError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &pe) && pe.Partial:
		_ = c.Error(err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   err.Error(),
			"partial": true,
			"applied": pe.Applied,
			"pending": pe.Pending,
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bind decodes the JSON body; binding failures become 400 with the failing fields.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		body := gin.H{"error": "invalid request"}
		if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
			body["fields"] = fields
		} else {
			body["error"] = "invalid request: " + err.Error()
		}
		c.JSON(http.StatusBadRequest, body)
		return false
	}
	return true
}

func (h *Handler) idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
