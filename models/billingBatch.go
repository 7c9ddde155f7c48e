package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BillingBatch is the durable step log of one invoice finalize.
// Unique constraint: (project_id, batch_key).
type BillingBatch struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ProjectId     string             `gorm:"size:64;not null;index:uniq_batch,unique" json:"project_id"`
	BatchKey      string             `gorm:"size:64;not null;index:uniq_batch,unique" json:"batch_key"`
	InvoiceNumber string             `gorm:"size:100;not null" json:"invoice_number"`
	VendorName    string             `gorm:"size:255" json:"vendor_name"`
	Notes         string             `gorm:"type:text" json:"notes"`
	EntryIds      []int              `gorm:"serializer:json;type:text" json:"entry_ids"`
	AppliedIds    []int              `gorm:"serializer:json;type:text" json:"applied_ids"`
	GrandTotal    decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	InvoiceId     *int               `gorm:"index" json:"invoice_id"`
	Status        BillingBatchStatus `gorm:"size:20;not null;index" json:"status"`
	LastError     *string            `gorm:"type:text" json:"last_error"`
	Actor         string             `gorm:"size:100" json:"actor"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillingBatchPatch struct {
	Status     *BillingBatchStatus
	InvoiceId  *int
	AppliedIds []int
	LastError  *string
}

func (p BillingBatchPatch) ToMap() map[string]interface{} {
	m := map[string]interface{}{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.InvoiceId != nil {
		m["invoice_id"] = *p.InvoiceId
	}
	if p.AppliedIds != nil {
		// map updates bypass the json serializer
		b, _ := json.Marshal(p.AppliedIds)
		m["applied_ids"] = string(b)
	}
	if p.LastError != nil {
		m["last_error"] = *p.LastError
	}
	return m
}

func (p BillingBatchPatch) Apply(b *BillingBatch) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.InvoiceId != nil {
		id := *p.InvoiceId
		b.InvoiceId = &id
	}
	if p.AppliedIds != nil {
		b.AppliedIds = append([]int(nil), p.AppliedIds...)
	}
	if p.LastError != nil {
		s := *p.LastError
		b.LastError = &s
	}
}

type BillingBatchFilter struct {
	Statuses      []BillingBatchStatus
	CreatedBefore *time.Time
}
