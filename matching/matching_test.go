package matching

import (
	"testing"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"john smith", " JOHN SMITH ", true},
		{"SMITH", "JOHN SMITH", true},
		{"J. SMITH", "SMITH, JOHN", true},
		{"CAT 330 EXCAVATOR", "CAT D6 DOZER", true},
		{"EX-101", "EXCAVATOR 101", false},
		{"BROWN", "GREEN", false},
		{"", "SMITH", false},
		{"SMITH", "  ", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Matches(tc.a, tc.b), "Matches(%q, %q)", tc.a, tc.b)
	}
}

func TestMatch_FirstCandidateWinsAndIsConsumed(t *testing.T) {
	claimed := []Claimed{{Key: "SMITH"}, {Key: "SMITH"}, {Key: "JONES"}}
	observed := []Observed{{Key: "SMITH, JOHN"}, {Key: "SMITH, ANNA"}, {Key: "LEE"}}

	got := Match(claimed, observed)
	require.Len(t, got, 4)
	assert.Equal(t, "SMITH, JOHN", got[0].Observed.Key)
	assert.Equal(t, "SMITH, ANNA", got[1].Observed.Key)
	assert.Equal(t, KindNotFound, got[2].Kind())
	assert.Equal(t, KindNotBilled, got[3].Kind())
	assert.Equal(t, "LEE", got[3].Observed.Key)
}

func TestMatch_Empty(t *testing.T) {
	assert.Empty(t, Match(nil, nil))
	got := Match(nil, []Observed{{Key: "A"}})
	require.Len(t, got, 1)
	assert.Equal(t, KindNotBilled, got[0].Kind())
}

func TestObservedHours_BothShapes(t *testing.T) {
	total := decimal.NewNullDecimal(decimal.NewFromInt(9))
	assert.True(t, ObservedHours(total, decimal.NewFromInt(8), decimal.NewFromInt(4)).Equal(decimal.NewFromInt(9)))

	legacy := ObservedHours(decimal.NullDecimal{}, decimal.NewFromInt(8), decimal.RequireFromString("2.5"))
	assert.True(t, legacy.Equal(decimal.RequireFromString("10.5")))
}

func TestAdapters(t *testing.T) {
	obs := FromObservedLabour([]models.ObservedLabour{
		{Name: "SMITH, JOHN", Classification: "Labourer", RegularHours: decimal.NewFromInt(8)},
	})
	require.Len(t, obs, 1)
	assert.True(t, obs[0].Hours.Equal(decimal.NewFromInt(8)))

	claimed := FromLabourEntries([]models.LabourEntry{
		{Name: "J. SMITH", RegularHours: decimal.NewFromInt(8), OvertimeHours: decimal.NewFromInt(2), Rate: decimal.NewFromInt(50)},
	})
	require.Len(t, claimed, 1)
	assert.True(t, claimed[0].Hours.Equal(decimal.NewFromInt(10)))

	eq := FromObservedEquipment([]models.ObservedEquipment{
		{TypeOrId: "D6 DOZER", TotalHours: decimal.NewNullDecimal(decimal.NewFromInt(6))},
	})
	assert.True(t, eq[0].Hours.Equal(decimal.NewFromInt(6)))
	assert.Len(t, FromEquipmentEntries([]models.EquipmentEntry{{TypeOrId: "D6", Hours: decimal.NewFromInt(7)}}), 1)
}
