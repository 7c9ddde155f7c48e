package models

import "time"

// Correction is an append-only admin fix of a claimed value.
type Correction struct {
	ID             int            `gorm:"primary_key" json:"id"`
	ProjectId      string         `gorm:"size:64;index:idx_correction_key;not null" json:"project_id"`
	LemId          int            `gorm:"index:idx_correction_key;not null" json:"lem_id"`
	CorrectionType CorrectionType `gorm:"size:30;index:idx_correction_key;not null" json:"correction_type"`
	ItemName       string         `gorm:"size:255;index:idx_correction_key;not null" json:"item_name"`
	OriginalValue  string         `gorm:"size:100" json:"original_value"`
	CorrectedValue string         `gorm:"size:100;not null" json:"corrected_value"`
	CorrectedBy    string         `gorm:"size:100" json:"corrected_by"`
	Notes          string         `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type CorrectionFilter struct {
	LemId          *int
	CorrectionType CorrectionType
	ItemName       string
}
