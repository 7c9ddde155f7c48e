package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RateEntry struct {
	Key  string          `json:"key"`
	Rate decimal.Decimal `json:"rate"`
}

// ProjectSettings carries per-project overrides and the fallback rate tables.
type ProjectSettings struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	ProjectId       string              `gorm:"size:64;uniqueIndex;not null" json:"project_id"`
	VendorName      string              `gorm:"size:255" json:"vendor_name"`
	ToleranceMetres *int                `json:"tolerance_metres"`
	HourTolerance   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"hour_tolerance"`
	LabourRates     []RateEntry         `gorm:"serializer:json;type:text" json:"labour_rates"`
	EquipmentRates  []RateEntry         `gorm:"serializer:json;type:text" json:"equipment_rates"`
	ContractorName  string              `gorm:"size:255" json:"contractor_name"`
	ContractorEmail string              `gorm:"size:255" json:"contractor_email"`
	ContractorPhone string              `gorm:"size:50" json:"contractor_phone"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func lookupRate(rates []RateEntry, key string) (decimal.Decimal, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return decimal.Zero, false
	}
	for _, r := range rates {
		if strings.ToUpper(strings.TrimSpace(r.Key)) == key {
			return r.Rate, true
		}
	}
	return decimal.Zero, false
}

// LabourRate looks up a rate by classification, case-insensitively.
func (s *ProjectSettings) LabourRate(classification string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	return lookupRate(s.LabourRates, classification)
}

// EquipmentRate looks up a rate by equipment type, case-insensitively.
func (s *ProjectSettings) EquipmentRate(equipment string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	return lookupRate(s.EquipmentRates, equipment)
}
