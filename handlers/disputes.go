package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/variance"
	"github.com/mmdatafocus/inspection_backend/workflow"
	"github.com/shopspring/decimal"
)

// itemRef points at one comparison row. Rows are never stored, so the row is
// recomputed from the field log when a request names it.
type itemRef struct {
	LemId    int                `json:"lem_id" binding:"required,gt=0"`
	ItemType models.DisputeType `json:"item_type" binding:"required"`
	ItemName string             `json:"item_name" binding:"required"`
}

func (h *Handler) comparisonRow(c *gin.Context, ref itemRef) (variance.Row, bool) {
	cmp, err := h.engine.Compare.CompareFieldLog(c.Request.Context(), ref.LemId)
	if err != nil {
		h.respondError(c, err)
		return variance.Row{}, false
	}
	row, ok := cmp.Row(ref.ItemType, strings.TrimSpace(ref.ItemName))
	if !ok {
		h.respondError(c, utils.NewNotFoundError("comparison row", fmt.Sprintf("%s/%s", ref.ItemType, ref.ItemName)))
		return variance.Row{}, false
	}
	return row, true
}

type flagRequest struct {
	itemRef
	Notes       string `json:"notes"`
	EvidenceRef string `json:"evidence_ref"`
}

func (h *Handler) flagItem(c *gin.Context) {
	var req flagRequest
	if !h.bind(c, &req) {
		return
	}
	row, ok := h.comparisonRow(c, req.itemRef)
	if !ok {
		return
	}
	dispute, created, err := h.engine.Disputes.FlagItem(c.Request.Context(), workflow.FlagRequest{
		LemId:       req.LemId,
		Row:         row,
		Notes:       req.Notes,
		EvidenceRef: req.EvidenceRef,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"dispute": dispute, "created": created})
}

type flagAllRequest struct {
	LemId int `json:"lem_id" binding:"required,gt=0"`
}

func (h *Handler) flagAll(c *gin.Context) {
	var req flagAllRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	cmp, err := h.engine.Compare.CompareFieldLog(ctx, req.LemId)
	if err != nil {
		h.respondError(c, err)
		return
	}
	disputes, err := h.engine.Disputes.FlagAll(ctx, req.LemId, cmp.Rows)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

type correctionRequest struct {
	itemRef
	CorrectedValue *decimal.Decimal `json:"corrected_value" binding:"required"`
	Notes          string           `json:"notes"`
}

func (h *Handler) adminCorrect(c *gin.Context) {
	var req correctionRequest
	if !h.bind(c, &req) {
		return
	}
	row, ok := h.comparisonRow(c, req.itemRef)
	if !ok {
		return
	}
	correction, err := h.engine.Disputes.AdminCorrect(c.Request.Context(), workflow.CorrectionRequest{
		LemId:          req.LemId,
		Row:            row,
		CorrectedValue: *req.CorrectedValue,
		Notes:          req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, correction)
}

// listDisputes accepts lem_id and a comma separated status list.
func (h *Handler) listDisputes(c *gin.Context) {
	var lemId *int
	if raw := c.Query("lem_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lem_id must be an integer"})
			return
		}
		lemId = &id
	}
	var statuses []models.DisputeStatus
	for _, s := range utils.SplitAndTrim(c.Query("status")) {
		status := models.DisputeStatus(s)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown dispute status " + s})
			return
		}
		statuses = append(statuses, status)
	}
	disputes, err := h.engine.Disputes.ListDisputes(c.Request.Context(), lemId, statuses)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

type sendRequest struct {
	Recipient *notify.Recipient `json:"recipient"`
}

func (h *Handler) send(c *gin.Context, disputeId *int) {
	var req sendRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	res, err := h.engine.Disputes.SendToContractor(c.Request.Context(), workflow.SendRequest{
		DisputeId: disputeId,
		Recipient: req.Recipient,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) sendOne(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	h.send(c, &id)
}

func (h *Handler) sendAll(c *gin.Context) {
	h.send(c, nil)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) updateDisputeStatus(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req statusRequest
	if !h.bind(c, &req) {
		return
	}
	dispute, err := h.engine.Disputes.UpdateStatus(c.Request.Context(), id, models.DisputeStatus(strings.TrimSpace(req.Status)), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
