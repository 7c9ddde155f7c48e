package models

import "time"

// IntegrityReport is one drift finding from the integrity sweep.
type IntegrityReport struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ProjectId     string             `gorm:"size:64;index;not null" json:"project_id"`
	CheckType     IntegrityCheckType `gorm:"size:50;index;not null" json:"check_type"`
	EntityType    AuditEntityType    `gorm:"size:50;index;not null" json:"entity_type"` // Invoice, BillingBatch
	EntityId      int                `gorm:"index;not null" json:"entity_id"`
	Details       string             `gorm:"type:text" json:"details"`
	CorrelationId string             `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	// ResolvedAt is set by the first sweep that no longer sees the problem.
	ResolvedAt *time.Time `gorm:"index" json:"resolved_at"`
}

func (r *IntegrityReport) Open() bool {
	return r.ResolvedAt == nil
}
