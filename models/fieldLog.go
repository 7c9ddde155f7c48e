package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldLogEntry (LEM) is a contractor's daily claim of labour and equipment.
// Once invoiced it is only changed through a Correction.
type FieldLogEntry struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	ProjectId          string           `gorm:"size:64;index;not null" json:"project_id"`
	FieldLogId         string           `gorm:"size:100;index" json:"field_log_id"`
	LogDate            time.Time        `gorm:"type:date;index;not null" json:"log_date"`
	Foreman            string           `gorm:"size:255" json:"foreman"`
	Contractor         string           `gorm:"size:255;index" json:"contractor"`
	AccountNumber      string           `gorm:"size:100" json:"account_number"`
	IsThirdParty       bool             `gorm:"not null;default:false" json:"is_third_party"`
	LabourEntries      []LabourEntry    `gorm:"foreignKey:FieldLogEntryId" json:"labour_entries"`
	EquipmentEntries   []EquipmentEntry `gorm:"foreignKey:FieldLogEntryId" json:"equipment_entries"`
	TotalLabourCost    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_labour_cost"`
	TotalEquipmentCost decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_equipment_cost"`
	BillingStatus      BillingStatus    `gorm:"size:30;index;not null;default:open" json:"billing_status"`
	InvoiceId          *int             `gorm:"index" json:"invoice_id"`
	InvoiceNumber      string           `gorm:"size:100;index" json:"invoice_number"`
	DiscrepancyNote    string           `gorm:"type:text" json:"discrepancy_note"`
	VerifiedBy         string           `gorm:"size:100" json:"verified_by"`
	ReadyAt            *time.Time       `json:"ready_at"`
	InvoicedAt         *time.Time       `json:"invoiced_at"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e FieldLogEntry) TotalCost() decimal.Decimal {
	return e.TotalLabourCost.Add(e.TotalEquipmentCost)
}

type LabourEntry struct {
	ID              int             `gorm:"primary_key" json:"id"`
	FieldLogEntryId int             `gorm:"index;not null" json:"field_log_entry_id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Classification  string          `gorm:"size:100" json:"classification"`
	RegularHours    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"regular_hours"`
	OvertimeHours   decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"overtime_hours"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
}

func (l LabourEntry) Hours() decimal.Decimal {
	return l.RegularHours.Add(l.OvertimeHours)
}

type EquipmentEntry struct {
	ID              int             `gorm:"primary_key" json:"id"`
	FieldLogEntryId int             `gorm:"index;not null" json:"field_log_entry_id"`
	TypeOrId        string          `gorm:"column:equipment;size:255;not null" json:"type_or_id"`
	Hours           decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"hours"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
}

// FieldLogPatch holds the columns a billing operation may change. Nil fields are left alone.
type FieldLogPatch struct {
	BillingStatus      *BillingStatus
	TotalLabourCost    *decimal.Decimal
	TotalEquipmentCost *decimal.Decimal
	DiscrepancyNote    *string
	VerifiedBy         *string
	InvoiceId          *int
	InvoiceNumber      *string
	ReadyAt            *time.Time
	InvoicedAt         *time.Time
}

func (p FieldLogPatch) ToMap() map[string]interface{} {
	m := map[string]interface{}{}
	if p.BillingStatus != nil {
		m["billing_status"] = *p.BillingStatus
	}
	if p.TotalLabourCost != nil {
		m["total_labour_cost"] = *p.TotalLabourCost
	}
	if p.TotalEquipmentCost != nil {
		m["total_equipment_cost"] = *p.TotalEquipmentCost
	}
	if p.DiscrepancyNote != nil {
		m["discrepancy_note"] = *p.DiscrepancyNote
	}
	if p.VerifiedBy != nil {
		m["verified_by"] = *p.VerifiedBy
	}
	if p.InvoiceId != nil {
		m["invoice_id"] = *p.InvoiceId
	}
	if p.InvoiceNumber != nil {
		m["invoice_number"] = *p.InvoiceNumber
	}
	if p.ReadyAt != nil {
		m["ready_at"] = *p.ReadyAt
	}
	if p.InvoicedAt != nil {
		m["invoiced_at"] = *p.InvoicedAt
	}
	return m
}

// Apply copies the set fields onto e.
func (p FieldLogPatch) Apply(e *FieldLogEntry) {
	if p.BillingStatus != nil {
		e.BillingStatus = *p.BillingStatus
	}
	if p.TotalLabourCost != nil {
		e.TotalLabourCost = *p.TotalLabourCost
	}
	if p.TotalEquipmentCost != nil {
		e.TotalEquipmentCost = *p.TotalEquipmentCost
	}
	if p.DiscrepancyNote != nil {
		e.DiscrepancyNote = *p.DiscrepancyNote
	}
	if p.VerifiedBy != nil {
		e.VerifiedBy = *p.VerifiedBy
	}
	if p.InvoiceId != nil {
		id := *p.InvoiceId
		e.InvoiceId = &id
	}
	if p.InvoiceNumber != nil {
		e.InvoiceNumber = *p.InvoiceNumber
	}
	if p.ReadyAt != nil {
		t := *p.ReadyAt
		e.ReadyAt = &t
	}
	if p.InvoicedAt != nil {
		t := *p.InvoicedAt
		e.InvoicedAt = &t
	}
}

type FieldLogFilter struct {
	Ids               []int
	Statuses          []BillingStatus
	ExcludeStatuses   []BillingStatus
	InvoiceId         *int
	InvoiceNumberLike string
	ThirdParty        *bool
	Date              *time.Time
	Contractor        string
}
