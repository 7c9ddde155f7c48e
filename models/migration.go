package models

import (
	"log"

	"github.com/mmdatafocus/inspection_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&DailyReport{}, &Segment{}, &CoverageJustification{}, &ObservedLabour{}, &ObservedEquipment{},
		&FieldLogEntry{}, &LabourEntry{}, &EquipmentEntry{},
		&Dispute{}, &Correction{},
		&Invoice{}, &BillingBatch{},
		&AuditRecord{},
		&IntegrityReport{},
		&ProjectSettings{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
