package store

import (
	"context"
	"errors"
	"sort"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"gorm.io/gorm"
)

// GormStore keeps records in MySQL. Reads, updates and deletes are also scoped by the
// project guard plugin; inserts set project_id explicitly.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError(entity, id)
	}
	return err
}

// scoped returns a session filtered to the context's project.
func (s *GormStore) scoped(ctx context.Context) (*gorm.DB, string, error) {
	projectId, err := projectID(ctx)
	if err != nil {
		return nil, "", err
	}
	return s.db.WithContext(ctx).Where("project_id = ?", projectId), projectId, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// reports

func (s *GormStore) InsertReport(ctx context.Context, r *models.DailyReport) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	r.ProjectId = projectId
	for i := range r.Segments {
		r.Segments[i].ProjectId = projectId
	}
	for i := range r.ObservedLabour {
		r.ObservedLabour[i].ProjectId = projectId
	}
	for i := range r.ObservedEquipment {
		r.ObservedEquipment[i].ProjectId = projectId
	}
	for i := range r.Justifications {
		r.Justifications[i].ProjectId = projectId
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) GetReport(ctx context.Context, id int) (*models.DailyReport, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.DailyReport
	err = db.Preload("Segments").Preload("ObservedLabour").Preload("ObservedEquipment").Preload("Justifications").
		First(&result, id).Error
	if err != nil {
		return nil, notFound(err, "report", id)
	}
	return &result, nil
}

func (s *GormStore) ListSegments(ctx context.Context, f models.SegmentFilter) ([]models.Segment, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if f.ActivityType != "" {
		db = db.Where("activity_type = ?", f.ActivityType)
	}
	if f.ExcludeDate != nil {
		db = db.Where("report_date <> ?", models.DateKey(*f.ExcludeDate))
	}
	var results []models.Segment
	err = db.Order("start_metres, id").Find(&results).Error
	return results, err
}

func (s *GormStore) ListObservations(ctx context.Context, f models.ObservationFilter) ([]*models.DailyReport, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	db = db.Where("report_date = ?", models.DateKey(f.Date))
	if f.Contractor != "" {
		db = db.Where("UPPER(contractor) = UPPER(?)", f.Contractor)
	}
	if f.Foreman != "" {
		db = db.Where("UPPER(foreman) = UPPER(?)", f.Foreman)
	}
	var results []*models.DailyReport
	err = db.Preload("ObservedLabour").Preload("ObservedEquipment").Order("id").Find(&results).Error
	return results, err
}

// field logs

func (s *GormStore) InsertFieldLog(ctx context.Context, e *models.FieldLogEntry) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	e.ProjectId = projectId
	if e.BillingStatus == "" {
		e.BillingStatus = models.BillingStatusOpen
	}
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormStore) GetFieldLog(ctx context.Context, id int) (*models.FieldLogEntry, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.FieldLogEntry
	err = db.Preload("LabourEntries").Preload("EquipmentEntries").First(&result, id).Error
	if err != nil {
		return nil, notFound(err, "field log", id)
	}
	return &result, nil
}

func (s *GormStore) ListFieldLogs(ctx context.Context, f models.FieldLogFilter) ([]*models.FieldLogEntry, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if f.Ids != nil {
		db = db.Where("id IN ?", f.Ids)
	}
	if len(f.Statuses) > 0 {
		db = db.Where("billing_status IN ?", f.Statuses)
	}
	if len(f.ExcludeStatuses) > 0 {
		db = db.Where("billing_status NOT IN ?", f.ExcludeStatuses)
	}
	if f.InvoiceId != nil {
		db = db.Where("invoice_id = ?", *f.InvoiceId)
	}
	if f.InvoiceNumberLike != "" {
		db = db.Where("invoice_number LIKE ?", "%"+f.InvoiceNumberLike+"%")
	}
	if f.ThirdParty != nil {
		db = db.Where("is_third_party = ?", *f.ThirdParty)
	}
	if f.Date != nil {
		db = db.Where("log_date = ?", models.DateKey(*f.Date))
	}
	if f.Contractor != "" {
		db = db.Where("UPPER(contractor) = UPPER(?)", f.Contractor)
	}
	var results []*models.FieldLogEntry
	err = db.Preload("LabourEntries").Preload("EquipmentEntries").Order("log_date, id").Find(&results).Error
	return results, err
}

func (s *GormStore) UpdateFieldLog(ctx context.Context, id int, p models.FieldLogPatch) error {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return err
	}
	m := p.ToMap()
	if len(m) == 0 {
		return nil
	}
	return db.Model(&models.FieldLogEntry{}).Where("id = ?", id).Updates(m).Error
}

// BatchUpdateFieldLogs updates the existing ids in one statement, so it applies to all or none.
func (s *GormStore) BatchUpdateFieldLogs(ctx context.Context, ids []int, p models.FieldLogPatch) ([]int, error) {
	db, projectId, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int
	if err := db.Model(&models.FieldLogEntry{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	m := p.ToMap()
	if len(m) == 0 {
		return found, nil
	}
	err = s.db.WithContext(ctx).Model(&models.FieldLogEntry{}).
		Where("project_id = ? AND id IN ?", projectId, found).
		Updates(m).Error
	if err != nil {
		return nil, err
	}
	sort.Ints(found)
	return found, nil
}

// disputes

func (s *GormStore) InsertDispute(ctx context.Context, d *models.Dispute) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	d.ProjectId = projectId
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) GetDispute(ctx context.Context, id int) (*models.Dispute, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.Dispute
	if err := db.First(&result, id).Error; err != nil {
		return nil, notFound(err, "dispute", id)
	}
	return &result, nil
}

func (s *GormStore) ListDisputes(ctx context.Context, f models.DisputeFilter) ([]*models.Dispute, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if f.Ids != nil {
		db = db.Where("id IN ?", f.Ids)
	}
	if f.LemId != nil {
		db = db.Where("lem_id = ?", *f.LemId)
	}
	if f.DisputeType != "" {
		db = db.Where("dispute_type = ?", f.DisputeType)
	}
	if f.ItemName != "" {
		db = db.Where("item_name = ?", f.ItemName)
	}
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	var results []*models.Dispute
	err = db.Order("id").Find(&results).Error
	return results, err
}

func (s *GormStore) UpdateDispute(ctx context.Context, id int, p models.DisputePatch) error {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return err
	}
	m := p.ToMap()
	if len(m) == 0 {
		return nil
	}
	return db.Model(&models.Dispute{}).Where("id = ?", id).Updates(m).Error
}

func (s *GormStore) InsertCorrection(ctx context.Context, c *models.Correction) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	c.ProjectId = projectId
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) ListCorrections(ctx context.Context, f models.CorrectionFilter) ([]*models.Correction, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if f.LemId != nil {
		db = db.Where("lem_id = ?", *f.LemId)
	}
	if f.CorrectionType != "" {
		db = db.Where("correction_type = ?", f.CorrectionType)
	}
	if f.ItemName != "" {
		db = db.Where("item_name = ?", f.ItemName)
	}
	var results []*models.Correction
	err = db.Order("id").Find(&results).Error
	return results, err
}

// invoices and batches

func (s *GormStore) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	inv.ProjectId = projectId
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusIssued
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.Invoice
	if err := db.First(&result, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &result, nil
}

func (s *GormStore) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var results []*models.Invoice
	err = db.Order("id").Find(&results).Error
	return results, err
}

func (s *GormStore) InsertBillingBatch(ctx context.Context, b *models.BillingBatch) error {
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	b.ProjectId = projectId
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) GetBillingBatch(ctx context.Context, id int) (*models.BillingBatch, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.BillingBatch
	if err := db.First(&result, id).Error; err != nil {
		return nil, notFound(err, "billing batch", id)
	}
	return &result, nil
}

func (s *GormStore) UpdateBillingBatch(ctx context.Context, id int, p models.BillingBatchPatch) error {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return err
	}
	m := p.ToMap()
	if len(m) == 0 {
		return nil
	}
	return db.Model(&models.BillingBatch{}).Where("id = ?", id).Updates(m).Error
}

func (s *GormStore) ListBillingBatches(ctx context.Context, f models.BillingBatchFilter) ([]*models.BillingBatch, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	var results []*models.BillingBatch
	err = db.Order("id").Find(&results).Error
	return results, err
}

// audit

func (s *GormStore) InsertAudit(ctx context.Context, records ...*models.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		r.ProjectId = projectId
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

func (s *GormStore) ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditRecord, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if f.EntityType != "" {
		db = db.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityId != nil {
		db = db.Where("entity_id = ?", *f.EntityId)
	}
	if f.FieldName != "" {
		db = db.Where("field_name = ?", f.FieldName)
	}
	var results []*models.AuditRecord
	err = db.Order("id").Find(&results).Error
	return results, err
}

func (s *GormStore) InsertIntegrityReports(ctx context.Context, reports ...*models.IntegrityReport) error {
	if len(reports) == 0 {
		return nil
	}
	projectId, err := projectID(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		r.ProjectId = projectId
	}
	return s.db.WithContext(ctx).Create(&reports).Error
}

func (s *GormStore) ListIntegrityReports(ctx context.Context) ([]*models.IntegrityReport, error) {
	db, _, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var results []*models.IntegrityReport
	err = db.Order("id DESC").Find(&results).Error
	return results, err
}

func (s *GormStore) ResolveIntegrityReports(ctx context.Context, ids []int, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	db, _, err := s.scoped(ctx)
	if err != nil {
		return err
	}
	return db.Model(&models.IntegrityReport{}).
		Where("id IN ? AND resolved_at IS NULL", ids).
		Update("resolved_at", at).Error
}

// settings

func (s *GormStore) GetProjectSettings(ctx context.Context) (*models.ProjectSettings, error) {
	db, projectId, err := s.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result models.ProjectSettings
	if err := db.First(&result).Error; err != nil {
		return nil, notFound(err, "project settings", projectId)
	}
	return &result, nil
}

func (s *GormStore) SaveProjectSettings(ctx context.Context, ps *models.ProjectSettings) error {
	db, projectId, err := s.scoped(ctx)
	if err != nil {
		return err
	}
	ps.ProjectId = projectId
	var existing models.ProjectSettings
	err = db.Select("id").First(&existing).Error
	switch {
	case err == nil:
		ps.ID = existing.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		ps.ID = 0
	default:
		return err
	}
	return s.db.WithContext(ctx).Save(ps).Error
}

func (s *GormStore) ListProjectIds(ctx context.Context) ([]string, error) {
	db := s.db.WithContext(utils.SetSkipProjectScopeInContext(ctx, true))
	var fromInvoices, fromBatches []string
	if err := db.Model(&models.Invoice{}).Distinct().Pluck("project_id", &fromInvoices).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.BillingBatch{}).Distinct().Pluck("project_id", &fromBatches).Error; err != nil {
		return nil, err
	}
	ids := utils.UniqueSlice(append(fromInvoices, fromBatches...))
	sort.Strings(ids)
	return ids, nil
}
