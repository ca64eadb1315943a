package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presupuestos/internal/core"
)

func family(amounts map[core.Month]int64) []core.BudgetLine {
	var lines []core.BudgetLine
	for m, l := range amounts {
		line := core.NewLine("Energía", "SPS", 2025, m, core.Administration, core.Lempiras(l))
		line.ID = int64(m)
		lines = append(lines, line)
	}
	return lines
}

func TestComputeConsumesOldestFirst(t *testing.T) {
	fam := family(map[core.Month]int64{core.Ene: 1000, core.Feb: 1000, core.Mar: 1000})

	plan, err := Compute(fam, core.Mar, core.Lempiras(1500), false)
	require.NoError(t, err)

	assert.Equal(t, []core.DistributionStep{
		{LineID: 1, Month: core.Ene, Amount: core.Lempiras(1000)},
		{LineID: 2, Month: core.Feb, Amount: core.Lempiras(500)},
	}, plan.InRange)
	assert.Nil(t, plan.Overflow)
	assert.Equal(t, core.Lempiras(3000), plan.CumulativeAvailable)
	assert.Equal(t, core.Lempiras(1500), plan.InRangeTotal())
	assert.Equal(t, core.Mar, plan.Target.Month)
}

func TestComputeIgnoresLaterMonths(t *testing.T) {
	fam := family(map[core.Month]int64{core.Ene: 100, core.Feb: 100, core.Mar: 5000})

	_, err := Compute(fam, core.Feb, core.Lempiras(201), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestComputeSkipsEmptyMonths(t *testing.T) {
	fam := family(map[core.Month]int64{core.Ene: 0, core.Feb: 300, core.Mar: 300})

	plan, err := Compute(fam, core.Mar, core.Lempiras(400), false)
	require.NoError(t, err)
	assert.Equal(t, []core.DistributionStep{
		{LineID: 2, Month: core.Feb, Amount: core.Lempiras(300)},
		{LineID: 3, Month: core.Mar, Amount: core.Lempiras(100)},
	}, plan.InRange)
}

func TestComputeOverflow(t *testing.T) {
	fam := family(map[core.Month]int64{core.Jun: 200, core.Jul: 800, core.Ago: 4000})

	plan, err := Compute(fam, core.Jun, core.Lempiras(700), true)
	require.NoError(t, err)

	assert.Equal(t, []core.DistributionStep{{LineID: 6, Month: core.Jun, Amount: core.Lempiras(200)}}, plan.InRange)
	require.True(t, plan.NeedsOverflow())
	assert.Equal(t, core.DistributionStep{LineID: 7, Month: core.Jul, Amount: core.Lempiras(500)}, *plan.Overflow)
	assert.Equal(t, core.Lempiras(5000), plan.AnnualAvailable)
}

func TestComputeFailures(t *testing.T) {
	cases := []struct {
		name      string
		amounts   map[core.Month]int64
		target    core.Month
		requested int64
		eligible  bool
		want      error
	}{
		{
			name:      "not eligible",
			amounts:   map[core.Month]int64{core.Ene: 500, core.Feb: 500},
			target:    core.Ene,
			requested: 600,
			want:      core.ErrInsufficientFunds,
		},
		{
			name:      "annual cap",
			amounts:   map[core.Month]int64{core.Ene: 500, core.Feb: 500},
			target:    core.Ene,
			requested: 1001,
			eligible:  true,
			want:      core.ErrInsufficientFunds,
		},
		{
			name:      "december has no next month",
			amounts:   map[core.Month]int64{core.Nov: 5000, core.Dic: 100},
			target:    core.Dic,
			requested: 200,
			eligible:  true,
			want:      core.ErrNoOverflowTarget,
		},
		{
			name:      "next month missing",
			amounts:   map[core.Month]int64{core.Mar: 100, core.May: 5000},
			target:    core.Mar,
			requested: 200,
			eligible:  true,
			want:      core.ErrNoOverflowTarget,
		},
		{
			name:      "next month cannot absorb the remainder",
			amounts:   map[core.Month]int64{core.Jun: 200, core.Jul: 300, core.Ago: 4500},
			target:    core.Jun,
			requested: 700,
			eligible:  true,
			want:      core.ErrInsufficientFunds,
		},
		{
			name:      "target month missing",
			amounts:   map[core.Month]int64{core.Ene: 100},
			target:    core.Feb,
			requested: 10,
			want:      core.ErrNotFound,
		},
		{
			name:      "zero amount",
			amounts:   map[core.Month]int64{core.Ene: 100},
			target:    core.Ene,
			requested: 0,
			want:      core.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(family(tc.amounts), tc.target, core.Lempiras(tc.requested), tc.eligible)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	fam := []core.BudgetLine{
		{ID: 3, Month: core.Mar, Current: core.Lempiras(10), Initial: core.Lempiras(10)},
		{ID: 1, Month: core.Ene, Current: core.Lempiras(10), Initial: core.Lempiras(10)},
	}
	_, err := Compute(fam, core.Mar, core.Lempiras(15), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), fam[0].ID)
	assert.Equal(t, core.Lempiras(10), fam[0].Current)
}
