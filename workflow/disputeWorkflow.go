package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/notify"
	"github.com/mmdatafocus/inspection_backend/store"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/mmdatafocus/inspection_backend/variance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type DisputeManager struct {
	base
	settings *SettingsCache
	notifier notify.Notifier
	sign     notify.EvidenceSigner
}

type FlagRequest struct {
	LemId       int
	Row         variance.Row
	Notes       string
	EvidenceRef string
}

// existing reports whether a dispute or correction already covers the (lem, item, type) key.
func (m *DisputeManager) existing(ctx context.Context, st store.Store, lemId int, itemType models.DisputeType, itemName string) (*models.Dispute, bool, error) {
	disputes, err := st.ListDisputes(ctx, models.DisputeFilter{LemId: &lemId, DisputeType: itemType, ItemName: itemName})
	if err != nil {
		return nil, false, err
	}
	if len(disputes) > 0 {
		return disputes[0], true, nil
	}
	corrections, err := st.ListCorrections(ctx, models.CorrectionFilter{
		LemId:          &lemId,
		CorrectionType: models.CorrectionTypeFor(itemType),
		ItemName:       itemName,
	})
	if err != nil {
		return nil, false, err
	}
	return nil, len(corrections) > 0, nil
}

// FlagItem opens a dispute for a comparison row. It is a no-op when a dispute or a
// correction already exists for the same field log, item and type; created is false then
// and the existing dispute, if any, is returned.
func (m *DisputeManager) FlagItem(ctx context.Context, req FlagRequest) (dispute *models.Dispute, created bool, err error) {
	if strings.TrimSpace(req.Row.Key) == "" {
		return nil, false, utils.NewValidationError("item name is required")
	}
	if !req.Row.ItemType.IsValid() {
		return nil, false, utils.NewValidationError("item type must be labour or equipment")
	}
	entry, err := m.store.GetFieldLog(ctx, req.LemId)
	if err != nil {
		return nil, false, err
	}

	var auditFailed bool
	err = m.inTx(ctx, func(st store.Store) error {
		found, exists, err := m.existing(ctx, st, req.LemId, req.Row.ItemType, req.Row.Key)
		if err != nil {
			return err
		}
		if exists {
			dispute = found
			return nil
		}
		d := &models.Dispute{
			LemId:         req.LemId,
			LemDate:       entry.LogDate,
			DisputeType:   req.Row.ItemType,
			ItemName:      req.Row.Key,
			ClaimedHours:  req.Row.ClaimedHours,
			ObservedHours: req.Row.ObservedHours,
			VarianceHours: req.Row.Variance,
			VarianceCost:  req.Row.VarianceCost,
			Status:        models.DisputeStatusOpen,
			Notes:         req.Notes,
			EvidenceRef:   strings.TrimSpace(req.EvidenceRef),
			CreatedBy:     utils.ActorFromContext(ctx),
		}
		if err := st.InsertDispute(ctx, d); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				found, _, err := m.existing(ctx, st, req.LemId, req.Row.ItemType, req.Row.Key)
				dispute = found
				return err
			}
			return err
		}
		dispute, created = d, true
		reason := fmt.Sprintf("%s %s: claimed %s h, observed %s h (%s)", d.DisputeType, d.ItemName,
			d.ClaimedHours.String(), d.ObservedHours.String(), req.Row.Status)
		if err := st.InsertAudit(ctx, newAudit(ctx, models.AuditEntityDispute, d.ID, "status", "", string(models.DisputeStatusOpen), reason)); err != nil {
			auditFailed = true
			return err
		}
		return nil
	})
	if err != nil {
		var applied []int
		if auditFailed && !m.transactional() && dispute != nil {
			applied = []int{dispute.ID}
		}
		return nil, false, persistErr("flag item", err, applied, nil)
	}
	return dispute, created, nil
}

// FlagAll flags every over or not_found row that has no dispute or correction yet.
func (m *DisputeManager) FlagAll(ctx context.Context, lemId int, rows []variance.Row) ([]*models.Dispute, error) {
	var created []*models.Dispute
	var applied []int
	for _, r := range rows {
		if !r.Status.Flaggable() {
			continue
		}
		d, isNew, err := m.FlagItem(ctx, FlagRequest{LemId: lemId, Row: r})
		if err != nil {
			var pe *utils.PersistenceError
			if len(applied) > 0 && errors.As(err, &pe) {
				return created, persistErr("flag all", pe.Err, applied, nil)
			}
			return created, err
		}
		if isNew {
			created = append(created, d)
			applied = append(applied, d.ID)
		}
	}
	return created, nil
}

type CorrectionRequest struct {
	LemId          int
	Row            variance.Row
	CorrectedValue decimal.Decimal
	Notes          string
}

// AdminCorrect records a direct fix of a claimed value. No dispute is needed beforehand.
func (m *DisputeManager) AdminCorrect(ctx context.Context, req CorrectionRequest) (*models.Correction, error) {
	if strings.TrimSpace(req.Row.Key) == "" {
		return nil, utils.NewValidationError("item name is required")
	}
	if !req.Row.ItemType.IsValid() {
		return nil, utils.NewValidationError("item type must be labour or equipment")
	}
	if req.CorrectedValue.IsNegative() {
		return nil, &utils.ValidationError{Message: "invalid correction", Fields: map[string]string{"corrected_value": "must not be negative"}}
	}
	if _, err := m.store.GetFieldLog(ctx, req.LemId); err != nil {
		return nil, err
	}

	c := &models.Correction{
		LemId:          req.LemId,
		CorrectionType: models.CorrectionTypeFor(req.Row.ItemType),
		ItemName:       req.Row.Key,
		OriginalValue:  req.Row.ClaimedHours.String(),
		CorrectedValue: req.CorrectedValue.String(),
		CorrectedBy:    utils.ActorFromContext(ctx),
		Notes:          req.Notes,
	}
	var inserted bool
	err := m.inTx(ctx, func(st store.Store) error {
		if err := st.InsertCorrection(ctx, c); err != nil {
			return err
		}
		inserted = true
		return st.InsertAudit(ctx, newAudit(ctx, models.AuditEntityCorrection, c.ID, string(c.CorrectionType),
			c.OriginalValue, c.CorrectedValue, fmt.Sprintf("admin correction of %s on field log %d: %s", c.ItemName, c.LemId, c.Notes)))
	})
	if err != nil {
		var applied []int
		if inserted && !m.transactional() {
			applied = []int{c.ID}
		}
		return nil, persistErr("admin correct", err, applied, nil)
	}
	return c, nil
}

type SendRequest struct {
	// DisputeId selects one dispute; nil sends every open or disputed dispute.
	DisputeId *int
	// Recipient overrides the project's contractor contact.
	Recipient *notify.Recipient
}

type SendResult struct {
	Disputes  []*models.Dispute `json:"disputes"`
	Recipient notify.Recipient  `json:"recipient"`
}

func (m *DisputeManager) recipient(ctx context.Context, override *notify.Recipient) (notify.Recipient, error) {
	if override != nil {
		return notify.NormalizeRecipient(*override)
	}
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return notify.Recipient{}, err
	}
	return notify.NormalizeRecipient(notify.Recipient{
		Name:  settings.Project.ContractorName,
		Email: settings.Project.ContractorEmail,
		Phone: settings.Project.ContractorPhone,
	})
}

// SendToContractor notifies the contractor, then moves the disputes to disputed, stamps
// sent_at, marks their field logs disputed and writes one audit per dispute plus a
// summary when sending in bulk. A failed delivery changes nothing.
func (m *DisputeManager) SendToContractor(ctx context.Context, req SendRequest) (*SendResult, error) {
	var targets []*models.Dispute
	if req.DisputeId != nil {
		d, err := m.store.GetDispute(ctx, *req.DisputeId)
		if err != nil {
			return nil, err
		}
		if d.Status != models.DisputeStatusOpen && d.Status != models.DisputeStatusDisputed {
			return nil, utils.NewValidationError(fmt.Sprintf("dispute %d is %s; only open or disputed disputes can be sent", d.ID, d.Status))
		}
		targets = []*models.Dispute{d}
	} else {
		list, err := m.store.ListDisputes(ctx, models.DisputeFilter{
			Statuses: []models.DisputeStatus{models.DisputeStatusOpen, models.DisputeStatusDisputed},
		})
		if err != nil {
			return nil, persistErr("list disputes", err, nil, nil)
		}
		targets = list
	}

	recipient, err := m.recipient(ctx, req.Recipient)
	if err != nil {
		return nil, err
	}
	result := &SendResult{Recipient: recipient}
	if len(targets) == 0 {
		return result, nil
	}

	now := m.now()
	if err := m.notifier.Notify(ctx, notify.BuildNotice(ctx, recipient, targets, now, m.sign)); err != nil {
		m.logger.WithFields(m.fields(ctx)).WithField("disputes", len(targets)).Error("dispute notice failed: " + err.Error())
		return nil, fmt.Errorf("notify contractor: %w", err)
	}

	bulk := req.DisputeId == nil
	ids := make([]int, 0, len(targets))
	for _, d := range targets {
		ids = append(ids, d.ID)
	}

	var applied []int
	err = m.inTx(ctx, func(st store.Store) error {
		applied = applied[:0]
		disputed := models.DisputeStatusDisputed
		audits := make([]*models.AuditRecord, 0, len(targets)+1)
		lemIds := map[int]bool{}
		for _, d := range targets {
			if err := st.UpdateDispute(ctx, d.ID, models.DisputePatch{Status: &disputed, SentAt: &now}); err != nil {
				return err
			}
			applied = append(applied, d.ID)
			audits = append(audits, newAudit(ctx, models.AuditEntityDispute, d.ID, "status",
				string(d.Status), string(disputed), "sent to contractor "+recipient.Name))
			d.Status, d.SentAt = disputed, &now
			lemIds[d.LemId] = true
		}
		if bulk {
			audits = append(audits, newAudit(ctx, models.AuditEntityDispute, 0, "bulk_send", "",
				fmt.Sprintf("%d", len(targets)), fmt.Sprintf("sent %d dispute(s) to contractor %s", len(targets), recipient.Name)))
		}
		lemAudits, err := m.markFieldLogsDisputed(ctx, st, lemIds)
		if err != nil {
			return err
		}
		return st.InsertAudit(ctx, append(audits, lemAudits...)...)
	})
	if err != nil {
		if m.transactional() {
			applied = nil
		}
		m.logger.WithFields(m.fields(ctx)).WithField("applied", applied).
			Error("disputes were delivered but not all status changes were saved: " + err.Error())
		return nil, persistErr("send to contractor", err, applied, pendingIds(ids, applied))
	}

	result.Disputes = targets
	return result, nil
}

// markFieldLogsDisputed moves open or matched field logs with sent disputes to disputed.
func (m *DisputeManager) markFieldLogsDisputed(ctx context.Context, st store.Store, lemIds map[int]bool) ([]*models.AuditRecord, error) {
	if len(lemIds) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(lemIds))
	for id := range lemIds {
		ids = append(ids, id)
	}
	entries, err := st.ListFieldLogs(ctx, models.FieldLogFilter{
		Ids:      ids,
		Statuses: []models.BillingStatus{models.BillingStatusOpen, models.BillingStatusMatched},
	})
	if err != nil {
		return nil, err
	}
	var audits []*models.AuditRecord
	disputed := models.BillingStatusDisputed
	for _, e := range entries {
		if err := st.UpdateFieldLog(ctx, e.ID, models.FieldLogPatch{BillingStatus: &disputed}); err != nil {
			return nil, err
		}
		audits = append(audits, newAudit(ctx, models.AuditEntityFieldLog, e.ID, "billing_status",
			string(e.BillingStatus), string(disputed), "dispute sent to contractor"))
	}
	return audits, nil
}

// UpdateStatus moves a dispute to any status. resolved stamps resolved_at.
// Setting the current status again changes nothing.
func (m *DisputeManager) UpdateStatus(ctx context.Context, id int, status models.DisputeStatus, notes string) (*models.Dispute, error) {
	if !status.IsValid() {
		return nil, &utils.ValidationError{Message: "invalid dispute status", Fields: map[string]string{"status": string(status)}}
	}
	d, err := m.store.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == status {
		return d, nil
	}

	patch := models.DisputePatch{Status: &status}
	if status == models.DisputeStatusResolved {
		now := m.now()
		patch.ResolvedAt = &now
	}
	if strings.TrimSpace(notes) != "" {
		patch.Notes = &notes
	}
	old := d.Status
	var updated bool
	err = m.inTx(ctx, func(st store.Store) error {
		if err := st.UpdateDispute(ctx, id, patch); err != nil {
			return err
		}
		updated = true
		return st.InsertAudit(ctx, newAudit(ctx, models.AuditEntityDispute, id, "status", string(old), string(status), notes))
	})
	if err != nil {
		var applied []int
		if updated && !m.transactional() {
			applied = []int{id}
		}
		return nil, persistErr("update dispute status", err, applied, nil)
	}
	patch.Apply(d)
	m.logger.WithFields(m.fields(ctx)).WithFields(logrus.Fields{
		"dispute_id": id,
		"old_status": old,
		"new_status": status,
	}).Info("dispute status changed")
	return d, nil
}

func (m *DisputeManager) ListDisputes(ctx context.Context, lemId *int, statuses []models.DisputeStatus) ([]*models.Dispute, error) {
	return m.store.ListDisputes(ctx, models.DisputeFilter{LemId: lemId, Statuses: statuses})
}

func pendingIds(all, applied []int) []int {
	done := make(map[int]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}
	var out []int
	for _, id := range all {
		if !done[id] {
			out = append(out, id)
		}
	}
	return out
}
