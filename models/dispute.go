package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dispute is a flagged claimed/observed discrepancy.
// Unique constraint: (project_id, lem_id, item_name, dispute_type).
type Dispute struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProjectId     string          `gorm:"size:64;not null;index:uniq_dispute,unique" json:"project_id"`
	LemId         int             `gorm:"not null;index:uniq_dispute,unique" json:"lem_id"`
	LemDate       time.Time       `gorm:"type:date" json:"lem_date"`
	DisputeType   DisputeType     `gorm:"size:20;not null;index:uniq_dispute,unique" json:"dispute_type"`
	ItemName      string          `gorm:"size:255;not null;index:uniq_dispute,unique" json:"item_name"`
	ClaimedHours  decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"claimed_hours"`
	ObservedHours decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"observed_hours"`
	VarianceHours decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"variance_hours"`
	VarianceCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_cost"`
	Status        DisputeStatus   `gorm:"size:20;index;not null;default:open" json:"status"`
	Notes         string          `gorm:"type:text" json:"notes"`
	EvidenceRef   string          `gorm:"size:1024" json:"evidence_ref"`
	SentAt        *time.Time      `json:"sent_at"`
	ResolvedAt    *time.Time      `json:"resolved_at"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type DisputePatch struct {
	Status     *DisputeStatus
	Notes      *string
	SentAt     *time.Time
	ResolvedAt *time.Time
}

func (p DisputePatch) ToMap() map[string]interface{} {
	m := map[string]interface{}{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.Notes != nil {
		m["notes"] = *p.Notes
	}
	if p.SentAt != nil {
		m["sent_at"] = *p.SentAt
	}
	if p.ResolvedAt != nil {
		m["resolved_at"] = *p.ResolvedAt
	}
	return m
}

func (p DisputePatch) Apply(d *Dispute) {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.SentAt != nil {
		t := *p.SentAt
		d.SentAt = &t
	}
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		d.ResolvedAt = &t
	}
}

type DisputeFilter struct {
	Ids         []int
	LemId       *int
	DisputeType DisputeType
	ItemName    string
	Statuses    []DisputeStatus
}
