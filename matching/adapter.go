package matching

import (
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/shopspring/decimal"
)

// ObservedHours prefers an explicit total and falls back to regular + overtime.
func ObservedHours(total decimal.NullDecimal, regular, overtime decimal.Decimal) decimal.Decimal {
	if total.Valid {
		return total.Decimal
	}
	return regular.Add(overtime)
}

func FromObservedLabour(items []models.ObservedLabour) []Observed {
	out := make([]Observed, 0, len(items))
	for _, o := range items {
		out = append(out, Observed{
			Key:            o.Name,
			Classification: o.Classification,
			Hours:          ObservedHours(o.TotalHours, o.RegularHours, o.OvertimeHours),
		})
	}
	return out
}

func FromObservedEquipment(items []models.ObservedEquipment) []Observed {
	out := make([]Observed, 0, len(items))
	for _, o := range items {
		out = append(out, Observed{
			Key:            o.TypeOrId,
			Classification: o.TypeOrId,
			Hours:          ObservedHours(o.TotalHours, o.RegularHours, o.OvertimeHours),
		})
	}
	return out
}

func FromLabourEntries(items []models.LabourEntry) []Claimed {
	out := make([]Claimed, 0, len(items))
	for _, l := range items {
		out = append(out, Claimed{
			Key:            l.Name,
			Classification: l.Classification,
			Hours:          l.Hours(),
			Rate:           l.Rate,
		})
	}
	return out
}

func FromEquipmentEntries(items []models.EquipmentEntry) []Claimed {
	out := make([]Claimed, 0, len(items))
	for _, e := range items {
		out = append(out, Claimed{
			Key:            e.TypeOrId,
			Classification: e.TypeOrId,
			Hours:          e.Hours,
			Rate:           e.Rate,
		})
	}
	return out
}
