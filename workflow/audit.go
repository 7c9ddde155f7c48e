package workflow

import (
	"context"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
)

func newAudit(ctx context.Context, entityType models.AuditEntityType, entityId int, fieldName, oldValue, newValue, reason string) *models.AuditRecord {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return &models.AuditRecord{
		EntityType:    entityType,
		EntityId:      entityId,
		FieldName:     fieldName,
		OldValue:      oldValue,
		NewValue:      newValue,
		Actor:         utils.ActorFromContext(ctx),
		Reason:        reason,
		CorrelationId: correlationId,
	}
}

// persistErr wraps a store failure. partial marks that some writes already landed.
func persistErr(op string, err error, applied, pending []int) error {
	if err == nil {
		return nil
	}
	if utils.IsValidation(err) {
		return err
	}
	return &utils.PersistenceError{
		Op:      op,
		Partial: len(applied) > 0,
		Applied: applied,
		Pending: pending,
		Err:     err,
	}
}
