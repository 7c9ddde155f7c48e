package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
)

var _ Store = (*MemoryStore)(nil)

type fault struct {
	after int
	calls int
	err   error
}

// MemoryStore is an in-process Store for tests and local runs. It offers no
// transactions, so multi-record workflows fall back to their step logs.
type MemoryStore struct {
	mu sync.RWMutex

	nextID      int
	reports     map[int]*models.DailyReport
	fieldLogs   map[int]*models.FieldLogEntry
	disputes    map[int]*models.Dispute
	corrections map[int]*models.Correction
	invoices    map[int]*models.Invoice
	batches     map[int]*models.BillingBatch
	audit       []*models.AuditRecord
	integrity   []*models.IntegrityReport
	settings    map[string]*models.ProjectSettings

	faults map[string]*fault

	// Now stamps created/updated times; tests may replace it.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:     make(map[int]*models.DailyReport),
		fieldLogs:   make(map[int]*models.FieldLogEntry),
		disputes:    make(map[int]*models.Dispute),
		corrections: make(map[int]*models.Correction),
		invoices:    make(map[int]*models.Invoice),
		batches:     make(map[int]*models.BillingBatch),
		settings:    make(map[string]*models.ProjectSettings),
		faults:      make(map[string]*fault),
		Now:         time.Now,
	}
}

// FailOn makes the named method fail with err once it has succeeded `after` times.
// BatchUpdateFieldLogs counts records rather than calls, so it can fail part way.
func (m *MemoryStore) FailOn(method string, after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[method] = &fault{after: after, err: err}
}

func (m *MemoryStore) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string]*fault)
}

// check must be called with mu held.
func (m *MemoryStore) check(method string) error {
	f, ok := m.faults[method]
	if !ok {
		return nil
	}
	f.calls++
	if f.calls > f.after {
		return f.err
	}
	return nil
}

func (m *MemoryStore) id() int {
	m.nextID++
	return m.nextID
}

// reports

func (m *MemoryStore) InsertReport(ctx context.Context, r *models.DailyReport) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertReport"); err != nil {
		return err
	}
	now := m.Now()
	r.ID = m.id()
	r.ProjectId = projectId
	r.CreatedAt, r.UpdatedAt = now, now
	for i := range r.Segments {
		r.Segments[i].ID = m.id()
		r.Segments[i].ProjectId = projectId
		r.Segments[i].ReportId = r.ID
		r.Segments[i].CreatedAt = now
	}
	for i := range r.ObservedLabour {
		r.ObservedLabour[i].ID = m.id()
		r.ObservedLabour[i].ProjectId = projectId
		r.ObservedLabour[i].ReportId = r.ID
	}
	for i := range r.ObservedEquipment {
		r.ObservedEquipment[i].ID = m.id()
		r.ObservedEquipment[i].ProjectId = projectId
		r.ObservedEquipment[i].ReportId = r.ID
	}
	for i := range r.Justifications {
		r.Justifications[i].ID = m.id()
		r.Justifications[i].ProjectId = projectId
		r.Justifications[i].ReportId = r.ID
		r.Justifications[i].CreatedAt = now
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *MemoryStore) GetReport(ctx context.Context, id int) (*models.DailyReport, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok || r.ProjectId != projectId {
		return nil, utils.NewNotFoundError("report", id)
	}
	return cloneReport(r), nil
}

func (m *MemoryStore) ListSegments(ctx context.Context, f models.SegmentFilter) ([]models.Segment, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListSegments"); err != nil {
		return nil, err
	}
	var out []models.Segment
	for _, id := range sortedKeys(m.reports) {
		r := m.reports[id]
		if r.ProjectId != projectId {
			continue
		}
		for _, s := range r.Segments {
			if f.ActivityType != "" && s.ActivityType != f.ActivityType {
				continue
			}
			if f.ExcludeDate != nil && models.DateKey(s.ReportDate) == models.DateKey(*f.ExcludeDate) {
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMetres < out[j].StartMetres })
	return out, nil
}

func (m *MemoryStore) ListObservations(ctx context.Context, f models.ObservationFilter) ([]*models.DailyReport, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.DailyReport
	for _, id := range sortedKeys(m.reports) {
		r := m.reports[id]
		if r.ProjectId != projectId || models.DateKey(r.ReportDate) != models.DateKey(f.Date) {
			continue
		}
		if f.Contractor != "" && !strings.EqualFold(r.Contractor, f.Contractor) {
			continue
		}
		if f.Foreman != "" && !strings.EqualFold(r.Foreman, f.Foreman) {
			continue
		}
		out = append(out, cloneReport(r))
	}
	return out, nil
}

// field logs

func (m *MemoryStore) InsertFieldLog(ctx context.Context, e *models.FieldLogEntry) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertFieldLog"); err != nil {
		return err
	}
	e.ID = m.id()
	e.ProjectId = projectId
	if e.BillingStatus == "" {
		e.BillingStatus = models.BillingStatusOpen
	}
	e.CreatedAt, e.UpdatedAt = m.Now(), m.Now()
	for i := range e.LabourEntries {
		e.LabourEntries[i].ID = m.id()
		e.LabourEntries[i].FieldLogEntryId = e.ID
	}
	for i := range e.EquipmentEntries {
		e.EquipmentEntries[i].ID = m.id()
		e.EquipmentEntries[i].FieldLogEntryId = e.ID
	}
	m.fieldLogs[e.ID] = cloneFieldLog(e)
	return nil
}

func (m *MemoryStore) GetFieldLog(ctx context.Context, id int) (*models.FieldLogEntry, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetFieldLog"); err != nil {
		return nil, err
	}
	e, ok := m.fieldLogs[id]
	if !ok || e.ProjectId != projectId {
		return nil, utils.NewNotFoundError("field log", id)
	}
	return cloneFieldLog(e), nil
}

func (m *MemoryStore) ListFieldLogs(ctx context.Context, f models.FieldLogFilter) ([]*models.FieldLogEntry, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListFieldLogs"); err != nil {
		return nil, err
	}
	var out []*models.FieldLogEntry
	for _, id := range sortedKeys(m.fieldLogs) {
		e := m.fieldLogs[id]
		if e.ProjectId != projectId || !fieldLogMatches(e, f) {
			continue
		}
		out = append(out, cloneFieldLog(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LogDate.Before(out[j].LogDate) })
	return out, nil
}

func fieldLogMatches(e *models.FieldLogEntry, f models.FieldLogFilter) bool {
	if f.Ids != nil && !slices.Contains(f.Ids, e.ID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.BillingStatus) {
		return false
	}
	if slices.Contains(f.ExcludeStatuses, e.BillingStatus) {
		return false
	}
	if f.InvoiceId != nil && (e.InvoiceId == nil || *e.InvoiceId != *f.InvoiceId) {
		return false
	}
	if f.InvoiceNumberLike != "" && !strings.Contains(strings.ToUpper(e.InvoiceNumber), strings.ToUpper(f.InvoiceNumberLike)) {
		return false
	}
	if f.ThirdParty != nil && e.IsThirdParty != *f.ThirdParty {
		return false
	}
	if f.Date != nil && models.DateKey(e.LogDate) != models.DateKey(*f.Date) {
		return false
	}
	if f.Contractor != "" && !strings.EqualFold(e.Contractor, f.Contractor) {
		return false
	}
	return true
}

func (m *MemoryStore) UpdateFieldLog(ctx context.Context, id int, p models.FieldLogPatch) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateFieldLog"); err != nil {
		return err
	}
	e, ok := m.fieldLogs[id]
	if !ok || e.ProjectId != projectId {
		return utils.NewNotFoundError("field log", id)
	}
	p.Apply(e)
	e.UpdatedAt = m.Now()
	return nil
}

// BatchUpdateFieldLogs applies the patch record by record so a fault can stop it part way.
func (m *MemoryStore) BatchUpdateFieldLogs(ctx context.Context, ids []int, p models.FieldLogPatch) ([]int, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var applied []int
	for _, id := range ids {
		e, ok := m.fieldLogs[id]
		if !ok || e.ProjectId != projectId {
			continue
		}
		if err := m.check("BatchUpdateFieldLogs"); err != nil {
			return applied, err
		}
		p.Apply(e)
		e.UpdatedAt = m.Now()
		applied = append(applied, id)
	}
	return applied, nil
}

// disputes

func (m *MemoryStore) InsertDispute(ctx context.Context, d *models.Dispute) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertDispute"); err != nil {
		return err
	}
	for _, existing := range m.disputes {
		if existing.ProjectId == projectId && existing.LemId == d.LemId &&
			existing.DisputeType == d.DisputeType && existing.ItemName == d.ItemName {
			return ErrDuplicate
		}
	}
	d.ID = m.id()
	d.ProjectId = projectId
	d.CreatedAt, d.UpdatedAt = m.Now(), m.Now()
	c := *d
	m.disputes[d.ID] = &c
	return nil
}

func (m *MemoryStore) GetDispute(ctx context.Context, id int) (*models.Dispute, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[id]
	if !ok || d.ProjectId != projectId {
		return nil, utils.NewNotFoundError("dispute", id)
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) ListDisputes(ctx context.Context, f models.DisputeFilter) ([]*models.Dispute, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListDisputes"); err != nil {
		return nil, err
	}
	var out []*models.Dispute
	for _, id := range sortedKeys(m.disputes) {
		d := m.disputes[id]
		if d.ProjectId != projectId {
			continue
		}
		if f.Ids != nil && !slices.Contains(f.Ids, d.ID) {
			continue
		}
		if f.LemId != nil && d.LemId != *f.LemId {
			continue
		}
		if f.DisputeType != "" && d.DisputeType != f.DisputeType {
			continue
		}
		if f.ItemName != "" && d.ItemName != f.ItemName {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) UpdateDispute(ctx context.Context, id int, p models.DisputePatch) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateDispute"); err != nil {
		return err
	}
	d, ok := m.disputes[id]
	if !ok || d.ProjectId != projectId {
		return utils.NewNotFoundError("dispute", id)
	}
	p.Apply(d)
	d.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryStore) InsertCorrection(ctx context.Context, c *models.Correction) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertCorrection"); err != nil {
		return err
	}
	c.ID = m.id()
	c.ProjectId = projectId
	c.CreatedAt = m.Now()
	cp := *c
	m.corrections[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListCorrections(ctx context.Context, f models.CorrectionFilter) ([]*models.Correction, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Correction
	for _, id := range sortedKeys(m.corrections) {
		c := m.corrections[id]
		if c.ProjectId != projectId {
			continue
		}
		if f.LemId != nil && c.LemId != *f.LemId {
			continue
		}
		if f.CorrectionType != "" && c.CorrectionType != f.CorrectionType {
			continue
		}
		if f.ItemName != "" && c.ItemName != f.ItemName {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// invoices and batches

func (m *MemoryStore) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertInvoice"); err != nil {
		return err
	}
	for _, existing := range m.invoices {
		if existing.ProjectId == projectId && existing.InvoiceNumber == inv.InvoiceNumber {
			return ErrDuplicate
		}
	}
	inv.ID = m.id()
	inv.ProjectId = projectId
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusIssued
	}
	inv.CreatedAt = m.Now()
	c := *inv
	c.EntryIds = slices.Clone(inv.EntryIds)
	m.invoices[inv.ID] = &c
	return nil
}

func (m *MemoryStore) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok || inv.ProjectId != projectId {
		return nil, utils.NewNotFoundError("invoice", id)
	}
	c := *inv
	c.EntryIds = slices.Clone(inv.EntryIds)
	return &c, nil
}

func (m *MemoryStore) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Invoice
	for _, id := range sortedKeys(m.invoices) {
		inv := m.invoices[id]
		if inv.ProjectId != projectId {
			continue
		}
		c := *inv
		c.EntryIds = slices.Clone(inv.EntryIds)
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) InsertBillingBatch(ctx context.Context, b *models.BillingBatch) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertBillingBatch"); err != nil {
		return err
	}
	for _, existing := range m.batches {
		if existing.ProjectId == projectId && existing.BatchKey == b.BatchKey {
			return ErrDuplicate
		}
	}
	b.ID = m.id()
	b.ProjectId = projectId
	b.CreatedAt, b.UpdatedAt = m.Now(), m.Now()
	m.batches[b.ID] = cloneBatch(b)
	return nil
}

func (m *MemoryStore) GetBillingBatch(ctx context.Context, id int) (*models.BillingBatch, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok || b.ProjectId != projectId {
		return nil, utils.NewNotFoundError("billing batch", id)
	}
	return cloneBatch(b), nil
}

func (m *MemoryStore) UpdateBillingBatch(ctx context.Context, id int, p models.BillingBatchPatch) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateBillingBatch"); err != nil {
		return err
	}
	b, ok := m.batches[id]
	if !ok || b.ProjectId != projectId {
		return utils.NewNotFoundError("billing batch", id)
	}
	p.Apply(b)
	b.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryStore) ListBillingBatches(ctx context.Context, f models.BillingBatchFilter) ([]*models.BillingBatch, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.BillingBatch
	for _, id := range sortedKeys(m.batches) {
		b := m.batches[id]
		if b.ProjectId != projectId {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		if f.CreatedBefore != nil && !b.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	return out, nil
}

// audit

func (m *MemoryStore) InsertAudit(ctx context.Context, records ...*models.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertAudit"); err != nil {
		return err
	}
	for _, r := range records {
		r.ID = m.id()
		r.ProjectId = projectId
		if r.CreatedAt.IsZero() {
			r.CreatedAt = m.Now()
		}
		c := *r
		m.audit = append(m.audit, &c)
	}
	return nil
}

func (m *MemoryStore) ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditRecord, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.AuditRecord
	for _, r := range m.audit {
		if r.ProjectId != projectId {
			continue
		}
		if f.EntityType != "" && r.EntityType != f.EntityType {
			continue
		}
		if f.EntityId != nil && r.EntityId != *f.EntityId {
			continue
		}
		if f.FieldName != "" && r.FieldName != f.FieldName {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) InsertIntegrityReports(ctx context.Context, reports ...*models.IntegrityReport) error {
	if len(reports) == 0 {
		return nil
	}
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertIntegrityReports"); err != nil {
		return err
	}
	for _, r := range reports {
		r.ID = m.id()
		r.ProjectId = projectId
		r.CreatedAt = m.Now()
		c := *r
		m.integrity = append(m.integrity, &c)
	}
	return nil
}

func (m *MemoryStore) ListIntegrityReports(ctx context.Context) ([]*models.IntegrityReport, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.IntegrityReport
	for i := len(m.integrity) - 1; i >= 0; i-- {
		if r := m.integrity[i]; r.ProjectId == projectId {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ResolveIntegrityReports(ctx context.Context, ids []int, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ResolveIntegrityReports"); err != nil {
		return err
	}
	for _, r := range m.integrity {
		if r.ProjectId == projectId && r.ResolvedAt == nil && slices.Contains(ids, r.ID) {
			t := at
			r.ResolvedAt = &t
		}
	}
	return nil
}

// settings

func (m *MemoryStore) GetProjectSettings(ctx context.Context) (*models.ProjectSettings, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetProjectSettings"); err != nil {
		return nil, err
	}
	s, ok := m.settings[projectId]
	if !ok {
		return nil, utils.NewNotFoundError("project settings", projectId)
	}
	return cloneSettings(s), nil
}

func (m *MemoryStore) SaveProjectSettings(ctx context.Context, s *models.ProjectSettings) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ProjectId = projectId
	if existing, ok := m.settings[projectId]; ok {
		s.ID = existing.ID
	} else {
		s.ID = m.id()
	}
	s.UpdatedAt = m.Now()
	m.settings[projectId] = cloneSettings(s)
	return nil
}

func (m *MemoryStore) ListProjectIds(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, inv := range m.invoices {
		ids = append(ids, inv.ProjectId)
	}
	for _, b := range m.batches {
		ids = append(ids, b.ProjectId)
	}
	ids = utils.UniqueSlice(ids)
	sort.Strings(ids)
	return ids, nil
}

// copies

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func cloneReport(r *models.DailyReport) *models.DailyReport {
	c := *r
	c.Segments = slices.Clone(r.Segments)
	c.ObservedLabour = slices.Clone(r.ObservedLabour)
	c.ObservedEquipment = slices.Clone(r.ObservedEquipment)
	c.Justifications = slices.Clone(r.Justifications)
	return &c
}

func cloneFieldLog(e *models.FieldLogEntry) *models.FieldLogEntry {
	c := *e
	c.LabourEntries = slices.Clone(e.LabourEntries)
	c.EquipmentEntries = slices.Clone(e.EquipmentEntries)
	return &c
}

func cloneBatch(b *models.BillingBatch) *models.BillingBatch {
	c := *b
	c.EntryIds = slices.Clone(b.EntryIds)
	c.AppliedIds = slices.Clone(b.AppliedIds)
	return &c
}

func cloneSettings(s *models.ProjectSettings) *models.ProjectSettings {
	c := *s
	c.LabourRates = slices.Clone(s.LabourRates)
	c.EquipmentRates = slices.Clone(s.EquipmentRates)
	return &c
}
