package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presupuestos/internal/core"
	"presupuestos/internal/sheets"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1500", 150000},
		{"L 1,500.75", 150075},
		{"1.005", 101},
		{"12.344", 1234},
		{"1.2.3", 120},
		{"-300", 30000},
		{".5", 50},
		{"", 0},
		{"n/a", 0},
		{".", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseAmount(tc.in).Cents, tc.in)
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, core.Administration, CategoryOf("Gastos de Administración"))
	assert.Equal(t, core.Personnel, CategoryOf("PERSONAL"))
	assert.Equal(t, core.Personnel, CategoryOf("Personal de ventas"), "first match in vocabulary order wins")
	assert.Equal(t, core.Sales, CategoryOf("Comisiones Ventas"))
	assert.Equal(t, core.Administration, CategoryOf("Energía"))
}

func TestNormalize(t *testing.T) {
	rows := []sheets.Row{
		{"Línea": "Energía Eléctrica", "RESPONSABLE ": "SPS", "Enero": "1,000", "Febrero": "1000.50", "Notas": "x"},
		{"Línea": "Planilla", "RESPONSABLE ": "VA", "Categoría": "Personal", "Enero": "5000", "Marzo": ""},
		{"Línea": "TOTAL GENERAL", "RESPONSABLE ": "SPS", "Enero": "9999"},
		{"Línea": "", "RESPONSABLE ": "SPS", "Enero": "10"},
		{"Línea": "Energía Eléctrica", "RESPONSABLE ": "SPS", "Enero": "1"},
		{"Línea": "Energía Eléctrica", "RESPONSABLE ": "VA", "january": "250"},
	}

	res, err := Normalize(rows, 2025)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Rows)
	assert.Equal(t, []Issue{{Row: 3, Reason: "summary row"}, {Row: 4, Reason: "missing line name or store"}}, res.Skipped)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 5, res.Rejected[0].Row)
	assert.Contains(t, res.Rejected[0].Reason, "row 1")

	require.Len(t, res.Lines, 5)
	energiaEne := res.Lines[0]
	assert.Equal(t, "Energía Eléctrica", energiaEne.Name)
	assert.Equal(t, "SPS", energiaEne.Store)
	assert.Equal(t, 2025, energiaEne.Year)
	assert.Equal(t, core.Ene, energiaEne.Month)
	assert.Equal(t, core.Administration, energiaEne.Category)
	assert.Equal(t, core.Lempiras(1000), energiaEne.Initial)
	assert.Equal(t, energiaEne.Initial, energiaEne.Current)
	assert.Equal(t, core.Money{Cents: 100050}, res.Lines[1].Initial)

	planillaEne, planillaMar := res.Lines[2], res.Lines[3]
	assert.Equal(t, core.Personnel, planillaEne.Category)
	assert.Equal(t, core.Mar, planillaMar.Month)
	assert.True(t, planillaMar.Initial.IsZero(), "blank month cell defaults to zero")

	assert.Equal(t, "VA", res.Lines[4].Store)
	assert.Equal(t, core.Lempiras(250), res.Lines[4].Initial)
}

func TestNormalizeEnglishMonthColumns(t *testing.T) {
	rows := []sheets.Row{{"Line": "Rent", "Store": "SPS", "April": "100", "May": "200", "June": "300"}}
	res, err := Normalize(rows, 2025)
	require.NoError(t, err)
	require.Len(t, res.Lines, 3)

	months := map[core.Month]core.Money{}
	for _, l := range res.Lines {
		months[l.Month] = l.Initial
	}
	assert.Equal(t, map[core.Month]core.Money{
		core.Abr: core.Lempiras(100),
		core.May: core.Lempiras(200),
		core.Jun: core.Lempiras(300),
	}, months)
}

func TestNormalizeRequiresLineAndStoreColumns(t *testing.T) {
	_, err := Normalize([]sheets.Row{{"Nombre": "Internet", "Enero": "10"}}, 2025)
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	rows := []sheets.Row{
		{"Linea": "Internet", "Tienda": "SPS", "Enero": "100", "Febrero": "200", "Diciembre": "300"},
		{"Linea": "Papelería", "Tienda": "Choluteca", "Junio": "75.25"},
	}
	a, err := Normalize(rows, 2025)
	require.NoError(t, err)
	b, err := Normalize(rows, 2025)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Lines, 4)
}

func TestNormalizeEmpty(t *testing.T) {
	res, err := Normalize(nil, 2025)
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
}
