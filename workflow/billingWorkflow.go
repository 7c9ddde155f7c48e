package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type BillingManager struct {
	base
	settings *SettingsCache
	locker   *redislock.Client
}

// RecordFieldLog stores a contractor field log as open. Totals left at zero are
// derived from the entries' hours and rates.
func (b *BillingManager) RecordFieldLog(ctx context.Context, e *models.FieldLogEntry) (*models.FieldLogEntry, error) {
	fields := map[string]string{}
	if e.LogDate.IsZero() {
		fields["log_date"] = "is required"
	}
	if strings.TrimSpace(e.Contractor) == "" {
		fields["contractor"] = "is required"
	}
	for i, l := range e.LabourEntries {
		if strings.TrimSpace(l.Name) == "" {
			fields[fmt.Sprintf("labour_entries[%d].name", i)] = "is required"
		}
		if l.RegularHours.IsNegative() || l.OvertimeHours.IsNegative() {
			fields[fmt.Sprintf("labour_entries[%d].hours", i)] = "must not be negative"
		}
	}
	for i, q := range e.EquipmentEntries {
		if strings.TrimSpace(q.TypeOrId) == "" {
			fields[fmt.Sprintf("equipment_entries[%d].type_or_id", i)] = "is required"
		}
		if q.Hours.IsNegative() {
			fields[fmt.Sprintf("equipment_entries[%d].hours", i)] = "must not be negative"
		}
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "invalid field log", Fields: fields}
	}

	e.ID = 0
	e.Contractor = strings.TrimSpace(e.Contractor)
	e.Foreman = strings.TrimSpace(e.Foreman)
	e.LogDate = e.LogDate.UTC().Truncate(24 * time.Hour)
	e.BillingStatus = models.BillingStatusOpen
	e.InvoiceId, e.InvoiceNumber, e.ReadyAt, e.InvoicedAt = nil, "", nil, nil
	if e.TotalLabourCost.IsZero() {
		for _, l := range e.LabourEntries {
			e.TotalLabourCost = e.TotalLabourCost.Add(l.Hours().Mul(l.Rate))
		}
	}
	if e.TotalEquipmentCost.IsZero() {
		for _, q := range e.EquipmentEntries {
			e.TotalEquipmentCost = e.TotalEquipmentCost.Add(q.Hours.Mul(q.Rate))
		}
	}
	for i := range e.LabourEntries {
		e.LabourEntries[i].ID, e.LabourEntries[i].FieldLogEntryId = 0, 0
	}
	for i := range e.EquipmentEntries {
		e.EquipmentEntries[i].ID, e.EquipmentEntries[i].FieldLogEntryId = 0, 0
	}

	var inserted bool
	err := b.inTx(ctx, func(st store.Store) error {
		if err := st.InsertFieldLog(ctx, e); err != nil {
			return err
		}
		inserted = true
		return st.InsertAudit(ctx, newAudit(ctx, models.AuditEntityFieldLog, e.ID, "billing_status", "",
			string(models.BillingStatusOpen), "field log recorded, total "+utils.FormatMoney(e.TotalCost())))
	})
	if err != nil {
		var applied []int
		if inserted && !b.transactional() {
			applied = []int{e.ID}
		}
		return nil, persistErr("record field log", err, applied, nil)
	}
	return e, nil
}

type VerifyRequest struct {
	LabourCost    decimal.Decimal
	EquipmentCost decimal.Decimal
}

func (r VerifyRequest) validate() error {
	fields := map[string]string{}
	if r.LabourCost.IsNegative() {
		fields["labour_cost"] = "must not be negative"
	}
	if r.EquipmentCost.IsNegative() {
		fields["equipment_cost"] = "must not be negative"
	}
	if len(fields) > 0 {
		return &utils.ValidationError{Message: "invalid verified costs", Fields: fields}
	}
	return nil
}

func (b *BillingManager) editable(ctx context.Context, id int) (*models.FieldLogEntry, error) {
	e, err := b.store.GetFieldLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.BillingStatus == models.BillingStatusInvoiced {
		return nil, utils.NewValidationError(fmt.Sprintf("field log %d is invoiced; record a correction instead", id))
	}
	return e, nil
}

// Verify accepts a field log: status becomes matched, the verified costs replace the
// stored ones and the discrepancy note is cleared. Costs are audited only when they change.
func (b *BillingManager) Verify(ctx context.Context, id int, req VerifyRequest) (*models.FieldLogEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	e, err := b.editable(ctx, id)
	if err != nil {
		return nil, err
	}

	matched := models.BillingStatusMatched
	empty := ""
	actor := utils.ActorFromContext(ctx)
	patch := models.FieldLogPatch{
		BillingStatus:      &matched,
		TotalLabourCost:    &req.LabourCost,
		TotalEquipmentCost: &req.EquipmentCost,
		DiscrepancyNote:    &empty,
		VerifiedBy:         &actor,
	}

	var audits []*models.AuditRecord
	if !e.TotalLabourCost.Equal(req.LabourCost) {
		audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, id, "total_labour_cost",
			utils.FormatMoney(e.TotalLabourCost), utils.FormatMoney(req.LabourCost), "verified"))
	}
	if !e.TotalEquipmentCost.Equal(req.EquipmentCost) {
		audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, id, "total_equipment_cost",
			utils.FormatMoney(e.TotalEquipmentCost), utils.FormatMoney(req.EquipmentCost), "verified"))
	}
	audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, id, "billing_status",
		string(e.BillingStatus), string(matched), "verified"))

	if err := b.patchWithAudit(ctx, "verify", id, patch, audits); err != nil {
		return nil, err
	}
	patch.Apply(e)
	return e, nil
}

// KeepOpen leaves a field log open with a discrepancy note. The note is required.
func (b *BillingManager) KeepOpen(ctx context.Context, id int, req VerifyRequest, note string) (*models.FieldLogEntry, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &utils.ValidationError{
			Message: "a discrepancy note is required to keep a field log open",
			Fields:  map[string]string{"discrepancy_note": "is required"},
		}
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	e, err := b.editable(ctx, id)
	if err != nil {
		return nil, err
	}

	open := models.BillingStatusOpen
	patch := models.FieldLogPatch{
		BillingStatus:      &open,
		TotalLabourCost:    &req.LabourCost,
		TotalEquipmentCost: &req.EquipmentCost,
		DiscrepancyNote:    &note,
	}
	audit := newAudit(ctx, models.AuditEntityFieldLog, id, "discrepancy_note", e.DiscrepancyNote, note, "kept open")
	if err := b.patchWithAudit(ctx, "keep open", id, patch, []*models.AuditRecord{audit}); err != nil {
		return nil, err
	}
	patch.Apply(e)
	return e, nil
}

func (b *BillingManager) patchWithAudit(ctx context.Context, op string, id int, patch models.FieldLogPatch, audits []*models.AuditRecord) error {
	var updated bool
	err := b.inTx(ctx, func(st store.Store) error {
		if err := st.UpdateFieldLog(ctx, id, patch); err != nil {
			return err
		}
		updated = true
		return st.InsertAudit(ctx, audits...)
	})
	if err != nil {
		var applied []int
		if updated && !b.transactional() {
			applied = []int{id}
		}
		return persistErr(op, err, applied, nil)
	}
	return nil
}

// loadEntries returns the entries for ids in id order, or a NotFoundError for the first missing one.
func (b *BillingManager) loadEntries(ctx context.Context, st store.Store, ids []int) ([]*models.FieldLogEntry, error) {
	entries, err := st.ListFieldLogs(ctx, models.FieldLogFilter{Ids: ids})
	if err != nil {
		return nil, persistErr("list field logs", err, nil, nil)
	}
	byId := make(map[int]*models.FieldLogEntry, len(entries))
	for _, e := range entries {
		byId[e.ID] = e
	}
	out := make([]*models.FieldLogEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := byId[id]
		if !ok {
			return nil, utils.NewNotFoundError("field log", id)
		}
		out = append(out, e)
	}
	return out, nil
}

func uniqueIds(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func billable(status models.BillingStatus) bool {
	return status == models.BillingStatusMatched || status == models.BillingStatusReadyForBilling
}

// MarkReadyForBilling moves every listed field log to ready_for_billing with one audit each.
// Entries already ready are left as they are; invoiced entries reject the whole call.
func (b *BillingManager) MarkReadyForBilling(ctx context.Context, ids []int) ([]*models.FieldLogEntry, error) {
	ids = uniqueIds(ids)
	if len(ids) == 0 {
		return nil, &utils.ValidationError{Message: "no field logs selected", Fields: map[string]string{"ids": "is required"}}
	}
	entries, err := b.loadEntries(ctx, b.store, ids)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{}
	var pending []int
	prior := make(map[int]models.BillingStatus, len(entries))
	for _, e := range entries {
		switch e.BillingStatus {
		case models.BillingStatusReadyForBilling:
		case models.BillingStatusInvoiced:
			fields[fmt.Sprintf("%d", e.ID)] = "is invoiced; record a correction instead"
		default:
			pending = append(pending, e.ID)
			prior[e.ID] = e.BillingStatus
		}
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "field logs are not ready for billing", Fields: fields}
	}
	if len(pending) == 0 {
		return entries, nil
	}

	now := b.now()
	ready := models.BillingStatusReadyForBilling
	patch := models.FieldLogPatch{BillingStatus: &ready, ReadyAt: &now}
	var applied []int
	err = b.inTx(ctx, func(st store.Store) error {
		var err error
		applied, err = st.BatchUpdateFieldLogs(ctx, pending, patch)
		if err != nil {
			return err
		}
		if len(applied) < len(pending) {
			return fmt.Errorf("field logs %v were not updated", pendingIds(pending, applied))
		}
		audits := make([]*models.AuditRecord, 0, len(applied))
		for _, id := range applied {
			audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, id, "billing_status",
				string(prior[id]), string(ready), "marked ready for billing"))
		}
		return st.InsertAudit(ctx, audits...)
	})
	if err != nil {
		if b.transactional() {
			applied = nil
		}
		b.logger.WithFields(b.fields(ctx)).WithFields(logrus.Fields{
			"applied": applied,
			"pending": pendingIds(pending, applied),
		}).Warn("mark ready for billing failed: " + err.Error())
		return nil, persistErr("mark ready for billing", err, applied, pendingIds(pending, applied))
	}
	for _, e := range entries {
		if _, ok := prior[e.ID]; ok {
			patch.Apply(e)
		}
	}
	return entries, nil
}

// ListActive is the default view: everything not yet invoiced.
func (b *BillingManager) ListActive(ctx context.Context) ([]*models.FieldLogEntry, error) {
	return b.store.ListFieldLogs(ctx, models.FieldLogFilter{
		ExcludeStatuses: []models.BillingStatus{models.BillingStatusInvoiced},
	})
}

type ArchiveFilter struct {
	InvoiceNumberLike string
	ThirdParty        *bool
}

// ListArchived shows only invoiced field logs.
func (b *BillingManager) ListArchived(ctx context.Context, f ArchiveFilter) ([]*models.FieldLogEntry, error) {
	return b.store.ListFieldLogs(ctx, models.FieldLogFilter{
		Statuses:          []models.BillingStatus{models.BillingStatusInvoiced},
		InvoiceNumberLike: strings.TrimSpace(f.InvoiceNumberLike),
		ThirdParty:        f.ThirdParty,
	})
}

// BatchPreview is what the operator confirms before finalizing.
type BatchPreview struct {
	Entries        []*models.FieldLogEntry `json:"entries"`
	LabourTotal    decimal.Decimal         `json:"labour_total"`
	EquipmentTotal decimal.Decimal         `json:"equipment_total"`
	GrandTotal     decimal.Decimal         `json:"grand_total"`
}

func summarizeBatch(entries []*models.FieldLogEntry) BatchPreview {
	p := BatchPreview{Entries: entries}
	for _, e := range entries {
		p.LabourTotal = p.LabourTotal.Add(e.TotalLabourCost)
		p.EquipmentTotal = p.EquipmentTotal.Add(e.TotalEquipmentCost)
	}
	p.GrandTotal = p.LabourTotal.Add(p.EquipmentTotal)
	return p
}

// PreviewBatch loads the selected entries and totals their stored costs.
func (b *BillingManager) PreviewBatch(ctx context.Context, ids []int) (*BatchPreview, error) {
	ids = uniqueIds(ids)
	if len(ids) == 0 {
		return nil, &utils.ValidationError{Message: "no field logs selected", Fields: map[string]string{"ids": "is required"}}
	}
	entries, err := b.loadEntries(ctx, b.store, ids)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{}
	for _, e := range entries {
		if !billable(e.BillingStatus) {
			fields[fmt.Sprintf("%d", e.ID)] = fmt.Sprintf("is %s; only matched or ready field logs can be invoiced", e.BillingStatus)
		}
	}
	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "field logs cannot be invoiced", Fields: fields}
	}
	p := summarizeBatch(entries)
	return &p, nil
}
