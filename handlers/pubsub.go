package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/sirupsen/logrus"
)

// PushMessage is the envelope of a Pub/Sub push subscription.
type PushMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// FieldLogMessage is a contractor field log published by the contractor's timekeeping system.
type FieldLogMessage struct {
	ProjectId     string          `json:"project_id"`
	CorrelationId string          `json:"correlation_id"`
	FieldLog      fieldLogRequest `json:"field_log"`
}

// fieldLogPush records field logs delivered by Pub/Sub. Malformed or invalid messages
// are acked so they are not redelivered; store failures return 500 so Pub/Sub retries.
func (h *Handler) fieldLogPush(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(h.logger, "pubsub.go", "fieldLogPush", "io.ReadAll", nil, err)
		c.Status(http.StatusNoContent)
		return
	}
	var msg PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		config.LogError(h.logger, "pubsub.go", "fieldLogPush", "Unmarshal body", string(body), err)
		c.Status(http.StatusNoContent)
		return
	}
	var m FieldLogMessage
	if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
		config.LogError(h.logger, "pubsub.go", "fieldLogPush", "Unmarshal pubsub message", string(msg.Message.Data), err)
		c.Status(http.StatusNoContent)
		return
	}
	if strings.TrimSpace(m.ProjectId) == "" {
		config.LogError(h.logger, "pubsub.go", "fieldLogPush", "Invalid pubsub message", msg.Message.ID, errors.New("project_id required"))
		c.Status(http.StatusNoContent)
		return
	}

	correlationId := m.CorrelationId
	if correlationId == "" {
		correlationId = msg.Message.ID
	}
	ctx := utils.SetProjectIdInContext(c.Request.Context(), m.ProjectId)
	ctx = utils.SetUserNameInContext(ctx, "System")
	ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

	entry, err := m.FieldLog.entry()
	if err == nil {
		entry, err = h.engine.Billing.RecordFieldLog(ctx, entry)
	}
	fields := logrus.Fields{
		"field":          "fieldLogPush",
		"project_id":     m.ProjectId,
		"message_id":     msg.Message.ID,
		"correlation_id": correlationId,
	}
	if utils.IsValidation(err) {
		h.logger.WithFields(fields).Warn("dropping invalid field log: " + err.Error())
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.WithFields(fields).Error("field log intake failed: " + err.Error())
		c.Status(http.StatusInternalServerError)
		return
	}
	h.logger.WithFields(fields).WithField("field_log_id", entry.ID).Info("field log recorded")
	c.Status(http.StatusNoContent)
}
