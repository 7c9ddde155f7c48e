package models

import "time"

// AuditRecord is written by every state change and never updated.
type AuditRecord struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProjectId     string          `gorm:"size:64;index;not null" json:"project_id"`
	EntityType    AuditEntityType `gorm:"size:50;index:idx_audit_entity;not null" json:"entity_type"`
	EntityId      int             `gorm:"index:idx_audit_entity" json:"entity_id"`
	FieldName     string          `gorm:"size:100" json:"field_name"`
	OldValue      string          `gorm:"type:text" json:"old_value"`
	NewValue      string          `gorm:"type:text" json:"new_value"`
	Actor         string          `gorm:"size:100;not null" json:"actor"`
	Reason        string          `gorm:"type:text" json:"reason"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

type AuditFilter struct {
	EntityType AuditEntityType
	EntityId   *int
	FieldName  string
}
