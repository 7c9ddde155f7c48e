package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// DateKey is the calendar day a record belongs to.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// DailyReport is an inspector's daily activity record.
type DailyReport struct {
	ID                int                     `gorm:"primary_key" json:"id"`
	ProjectId         string                  `gorm:"size:64;index;not null" json:"project_id"`
	ReportDate        time.Time               `gorm:"type:date;index;not null" json:"report_date"`
	InspectorName     string                  `gorm:"size:100;not null" json:"inspector_name"`
	Contractor        string                  `gorm:"size:255;index" json:"contractor"`
	Foreman           string                  `gorm:"size:255" json:"foreman"`
	Notes             string                  `gorm:"type:text" json:"notes"`
	Segments          []Segment               `gorm:"foreignKey:ReportId" json:"segments"`
	ObservedLabour    []ObservedLabour        `gorm:"foreignKey:ReportId" json:"observed_labour"`
	ObservedEquipment []ObservedEquipment     `gorm:"foreignKey:ReportId" json:"observed_equipment"`
	Justifications    []CoverageJustification `gorm:"foreignKey:ReportId" json:"justifications"`
	CreatedBy         string                  `gorm:"size:100" json:"created_by"`
	CreatedAt         time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

// Segment is a worked chainage span. StartMetres <= EndMetres.
type Segment struct {
	ID           int       `gorm:"primary_key" json:"id"`
	ProjectId    string    `gorm:"size:64;index:idx_segment_activity;not null" json:"project_id"`
	ReportId     int       `gorm:"index;not null" json:"report_id"`
	ActivityType string    `gorm:"size:100;index:idx_segment_activity;not null" json:"activity_type"`
	StartMetres  int       `gorm:"not null" json:"start_metres"`
	EndMetres    int       `gorm:"not null" json:"end_metres"`
	StartLabel   string    `gorm:"size:20" json:"start_label"`
	EndLabel     string    `gorm:"size:20" json:"end_label"`
	ReportDate   time.Time `gorm:"type:date;index;not null" json:"report_date"`
	Contractor   string    `gorm:"size:255" json:"contractor"`
	Foreman      string    `gorm:"size:255" json:"foreman"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Normalize orders the endpoints so StartMetres <= EndMetres.
func (s *Segment) Normalize() {
	if s.StartMetres > s.EndMetres {
		s.StartMetres, s.EndMetres = s.EndMetres, s.StartMetres
		s.StartLabel, s.EndLabel = s.EndLabel, s.StartLabel
	}
}

// CoverageJustification is the operator's reason for saving a report despite an overlap or gap.
type CoverageJustification struct {
	ID            int         `gorm:"primary_key" json:"id"`
	ProjectId     string      `gorm:"size:64;index;not null" json:"project_id"`
	ReportId      int         `gorm:"index;not null" json:"report_id"`
	FindingKey    string      `gorm:"size:255;not null" json:"finding_key"`
	Kind          FindingKind `gorm:"size:20;not null" json:"kind"`
	ActivityType  string      `gorm:"size:100;not null" json:"activity_type"`
	StartMetres   int         `json:"start_metres"`
	EndMetres     int         `json:"end_metres"`
	Justification string      `gorm:"type:text;not null" json:"justification"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// ObservedLabour is a worker the inspector saw on site.
// Older reports carry only regular/overtime hours; newer ones carry TotalHours.
type ObservedLabour struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	ProjectId      string              `gorm:"size:64;index;not null" json:"project_id"`
	ReportId       int                 `gorm:"index;not null" json:"report_id"`
	Name           string              `gorm:"size:255;not null" json:"name"`
	Classification string              `gorm:"size:100" json:"classification"`
	TotalHours     decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"total_hours"`
	RegularHours   decimal.Decimal     `gorm:"type:decimal(10,2);default:0" json:"regular_hours"`
	OvertimeHours  decimal.Decimal     `gorm:"type:decimal(10,2);default:0" json:"overtime_hours"`
}

// ObservedEquipment is a unit the inspector saw working, with the same two hour shapes.
type ObservedEquipment struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	ProjectId     string              `gorm:"size:64;index;not null" json:"project_id"`
	ReportId      int                 `gorm:"index;not null" json:"report_id"`
	TypeOrId      string              `gorm:"column:equipment;size:255;not null" json:"type_or_id"`
	TotalHours    decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"total_hours"`
	RegularHours  decimal.Decimal     `gorm:"type:decimal(10,2);default:0" json:"regular_hours"`
	OvertimeHours decimal.Decimal     `gorm:"type:decimal(10,2);default:0" json:"overtime_hours"`
}

type SegmentFilter struct {
	ActivityType string
	ExcludeDate  *time.Time
}

type ObservationFilter struct {
	Date       time.Time
	Contractor string
	Foreman    string
}
