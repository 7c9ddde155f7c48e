package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/shopspring/decimal"
)

type fieldLogRequest struct {
	FieldLogId         string                  `json:"field_log_id"`
	LogDate            string                  `json:"log_date" binding:"required"`
	Foreman            string                  `json:"foreman"`
	Contractor         string                  `json:"contractor" binding:"required"`
	AccountNumber      string                  `json:"account_number"`
	IsThirdParty       bool                    `json:"is_third_party"`
	LabourEntries      []models.LabourEntry    `json:"labour_entries"`
	EquipmentEntries   []models.EquipmentEntry `json:"equipment_entries"`
	TotalLabourCost    decimal.Decimal         `json:"total_labour_cost"`
	TotalEquipmentCost decimal.Decimal         `json:"total_equipment_cost"`
}

func (r fieldLogRequest) entry() (*models.FieldLogEntry, error) {
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(r.LogDate))
	if err != nil {
		return nil, &utils.ValidationError{Message: "invalid field log", Fields: map[string]string{"log_date": "expected YYYY-MM-DD"}}
	}
	return &models.FieldLogEntry{
		FieldLogId:         r.FieldLogId,
		LogDate:            date,
		Foreman:            r.Foreman,
		Contractor:         r.Contractor,
		AccountNumber:      r.AccountNumber,
		IsThirdParty:       r.IsThirdParty,
		LabourEntries:      r.LabourEntries,
		EquipmentEntries:   r.EquipmentEntries,
		TotalLabourCost:    r.TotalLabourCost,
		TotalEquipmentCost: r.TotalEquipmentCost,
	}, nil
}

func (h *Handler) recordFieldLog(c *gin.Context) {
	var req fieldLogRequest
	if !h.bind(c, &req) {
		return
	}
	entry, err := req.entry()
	if err == nil {
		entry, err = h.engine.Billing.RecordFieldLog(c.Request.Context(), entry)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// listFieldLogs serves the active view by default; view=archived lists invoiced
// entries, filtered by invoice number and third_party.
func (h *Handler) listFieldLogs(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		entries []*models.FieldLogEntry
		err     error
	)
	switch c.DefaultQuery("view", "active") {
	case "active":
		entries, err = h.engine.Billing.ListActive(ctx)
	case "archived":
		f := workflow.ArchiveFilter{InvoiceNumberLike: c.Query("invoice")}
		if raw := c.Query("third_party"); raw != "" {
			v, perr := strconv.ParseBool(raw)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "third_party must be true or false"})
				return
			}
			f.ThirdParty = &v
		}
		entries, err = h.engine.Billing.ListArchived(ctx, f)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be active or archived"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field_logs": entries})
}

func (h *Handler) compareFieldLog(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	cmp, err := h.engine.Compare.CompareFieldLog(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

type costsRequest struct {
	LabourCost    *decimal.Decimal `json:"labour_cost" binding:"required"`
	EquipmentCost *decimal.Decimal `json:"equipment_cost" binding:"required"`
	Note          string           `json:"discrepancy_note"`
}

func (r costsRequest) verify() workflow.VerifyRequest {
	return workflow.VerifyRequest{LabourCost: *r.LabourCost, EquipmentCost: *r.EquipmentCost}
}

func (h *Handler) verifyFieldLog(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req costsRequest
	if !h.bind(c, &req) {
		return
	}
	entry, err := h.engine.Billing.Verify(c.Request.Context(), id, req.verify())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) keepOpen(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req costsRequest
	if !h.bind(c, &req) {
		return
	}
	entry, err := h.engine.Billing.KeepOpen(c.Request.Context(), id, req.verify(), req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type idsRequest struct {
	Ids []int `json:"ids" binding:"required,min=1"`
}

func (h *Handler) markReady(c *gin.Context) {
	var req idsRequest
	if !h.bind(c, &req) {
		return
	}
	entries, err := h.engine.Billing.MarkReadyForBilling(c.Request.Context(), req.Ids)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field_logs": entries})
}
