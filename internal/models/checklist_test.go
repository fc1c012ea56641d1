package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecklistItem_ResolvedStatus(t *testing.T) {
	tests := []struct {
		name string
		item ChecklistItem
		want ItemStatus
	}{
		{"judgement unevaluated", ChecklistItem{Kind: KindJudgement}, ItemUnevaluated},
		{"judgement conforming", ChecklistItem{Kind: KindJudgement, Status: ItemConforming}, ItemConforming},
		{"judgement non conforming", ChecklistItem{Kind: KindJudgement, Status: ItemNonConforming}, ItemNonConforming},
		{"odometer empty", ChecklistItem{Kind: KindOdometer}, ItemUnevaluated},
		{"odometer blank", ChecklistItem{Kind: KindOdometer, Value: "   "}, ItemUnevaluated},
		{"odometer reading", ChecklistItem{Kind: KindOdometer, Value: "154320"}, ItemConforming},
		{"odometer ignores status", ChecklistItem{Kind: KindOdometer, Status: ItemNonConforming, Value: "1"}, ItemConforming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.ResolvedStatus())
		})
	}
}

func TestFormData_MissingFields(t *testing.T) {
	complete := FormData{
		Driver:         "João Silva",
		TractorPlate:   "ABC1D23",
		TrailerPlate:   "XYZ9K87",
		VehicleType:    "Carreta",
		InspectionDate: "2026-10-16",
	}
	assert.Empty(t, complete.MissingFields())

	partial := complete
	partial.Driver = "  "
	partial.VehicleType = ""
	assert.Equal(t, []string{"driver", "vehicle type"}, partial.MissingFields())

	assert.Len(t, FormData{Observations: "only notes"}.MissingFields(), 5)
}

func TestCategoryStatus_IsFinal(t *testing.T) {
	assert.False(t, StatusPending.IsFinal())
	assert.False(t, StatusInProgress.IsFinal())
	assert.True(t, StatusConforming.IsFinal())
	assert.True(t, StatusPartiallyConforming.IsFinal())
	assert.True(t, StatusNonConforming.IsFinal())
}

func TestIsValidInspectionStatus(t *testing.T) {
	assert.True(t, IsValidInspectionStatus(InspectionCompleted))
	assert.True(t, IsValidInspectionStatus(InspectionPartiallyConforming))
	assert.False(t, IsValidInspectionStatus("concluida"))
}
