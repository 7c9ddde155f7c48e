package models

import (
	"encoding/json"
	"errors"
)

type BillingStatus string

const (
	BillingStatusOpen            BillingStatus = "open"
	BillingStatusMatched         BillingStatus = "matched"
	BillingStatusDisputed        BillingStatus = "disputed"
	BillingStatusReadyForBilling BillingStatus = "ready_for_billing"
	BillingStatusInvoiced        BillingStatus = "invoiced"
)

func (t BillingStatus) IsValid() bool {
	switch t {
	case BillingStatusOpen, BillingStatusMatched, BillingStatusDisputed,
		BillingStatusReadyForBilling, BillingStatusInvoiced:
		return true
	}
	return false
}

func (t *BillingStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("billing status must be string")
	}
	if !BillingStatus(str).IsValid() {
		return errors.New("invalid billing status")
	}
	*t = BillingStatus(str)
	return nil
}

type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusDisputed    DisputeStatus = "disputed"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusRejected    DisputeStatus = "rejected"
)

func (t DisputeStatus) IsValid() bool {
	switch t {
	case DisputeStatusOpen, DisputeStatusDisputed, DisputeStatusUnderReview,
		DisputeStatusResolved, DisputeStatusRejected:
		return true
	}
	return false
}

func (t *DisputeStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("dispute status must be string")
	}
	if !DisputeStatus(str).IsValid() {
		return errors.New("invalid dispute status")
	}
	*t = DisputeStatus(str)
	return nil
}

type DisputeType string

const (
	DisputeTypeLabour    DisputeType = "labour"
	DisputeTypeEquipment DisputeType = "equipment"
)

func (t DisputeType) IsValid() bool {
	return t == DisputeTypeLabour || t == DisputeTypeEquipment
}

func (t *DisputeType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("dispute type must be string")
	}
	if !DisputeType(str).IsValid() {
		return errors.New("invalid dispute type")
	}
	*t = DisputeType(str)
	return nil
}

type CorrectionType string

const (
	CorrectionTypeLabourHours    CorrectionType = "labour_hours"
	CorrectionTypeEquipmentHours CorrectionType = "equipment_hours"
)

// CorrectionTypeFor maps a comparison item type to the correction written for it.
func CorrectionTypeFor(t DisputeType) CorrectionType {
	if t == DisputeTypeEquipment {
		return CorrectionTypeEquipmentHours
	}
	return CorrectionTypeLabourHours
}

// ItemType is the inverse of CorrectionTypeFor.
func (t CorrectionType) ItemType() DisputeType {
	if t == CorrectionTypeEquipmentHours {
		return DisputeTypeEquipment
	}
	return DisputeTypeLabour
}

type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

type BillingBatchStatus string

const (
	BillingBatchStatusStarted        BillingBatchStatus = "STARTED"
	BillingBatchStatusInvoiceCreated BillingBatchStatus = "INVOICE_CREATED"
	BillingBatchStatusEntriesUpdated BillingBatchStatus = "ENTRIES_UPDATED"
	BillingBatchStatusSucceeded      BillingBatchStatus = "SUCCEEDED"
	BillingBatchStatusPartial        BillingBatchStatus = "PARTIAL"
	BillingBatchStatusFailed         BillingBatchStatus = "FAILED"
)

// IsTerminal reports whether a batch needs no further work.
func (t BillingBatchStatus) IsTerminal() bool {
	return t == BillingBatchStatusSucceeded || t == BillingBatchStatusFailed
}

type AuditEntityType string

const (
	AuditEntityFieldLog     AuditEntityType = "FieldLogEntry"
	AuditEntityDispute      AuditEntityType = "Dispute"
	AuditEntityCorrection   AuditEntityType = "Correction"
	AuditEntityInvoice      AuditEntityType = "Invoice"
	AuditEntityReport       AuditEntityType = "DailyReport"
	AuditEntityBillingBatch AuditEntityType = "BillingBatch"
)

type FindingKind string

const (
	FindingKindOverlap FindingKind = "overlap"
	FindingKindGap     FindingKind = "gap"
)

type IntegrityCheckType string

const (
	IntegrityCheckInvoiceTotal IntegrityCheckType = "INVOICE_TOTAL"
	IntegrityCheckInvoiceLinks IntegrityCheckType = "INVOICE_LINKS"
	IntegrityCheckStaleBatch   IntegrityCheckType = "STALE_BATCH"
)
