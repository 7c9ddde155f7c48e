package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProjectId     string          `gorm:"size:64;not null;index:uniq_invoice_number,unique" json:"project_id"`
	InvoiceNumber string          `gorm:"size:100;not null;index:uniq_invoice_number,unique" json:"invoice_number"`
	VendorName    string          `gorm:"size:255" json:"vendor_name"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status        InvoiceStatus   `gorm:"size:20;not null;default:issued" json:"status"`
	Notes         string          `gorm:"type:text" json:"notes"`
	EntryIds      []int           `gorm:"serializer:json;type:text" json:"entry_ids"`
	BatchId       int             `gorm:"index" json:"batch_id"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
