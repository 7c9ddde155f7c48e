package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/shopspring/decimal"
)

func (h *Handler) previewInvoice(c *gin.Context) {
	var req idsRequest
	if !h.bind(c, &req) {
		return
	}
	preview, err := h.engine.Billing.PreviewBatch(c.Request.Context(), req.Ids)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

type finalizeRequest struct {
	EntryIds       []int            `json:"entry_ids" binding:"required,min=1"`
	InvoiceNumber  string           `json:"invoice_number" binding:"required"`
	Notes          string           `json:"notes"`
	ConfirmedTotal *decimal.Decimal `json:"confirmed_total" binding:"required"`
	VendorName     string           `json:"vendor_name"`
}

func (h *Handler) finalizeInvoice(c *gin.Context) {
	var req finalizeRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.engine.Billing.FinalizeBatch(c.Request.Context(), workflow.FinalizeRequest{
		EntryIds:       req.EntryIds,
		InvoiceNumber:  req.InvoiceNumber,
		Notes:          req.Notes,
		ConfirmedTotal: req.ConfirmedTotal,
		VendorName:     req.VendorName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) resumeBatch(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	res, err := h.engine.Billing.ResumeBatch(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
