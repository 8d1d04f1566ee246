package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/core"
)

func TestBuiltin_AllValid(t *testing.T) {
	for _, p := range Builtin() {
		assert.NoError(t, p.Validate(), p.Name)
	}
}

func TestRegister(t *testing.T) {
	r, err := core.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, Register(r))

	assert.Len(t, r.All(), len(Builtin()))
	assert.ErrorIs(t, Register(r), core.ErrDuplicateProfile)
}

func TestMatch_PrefersDetailedRevision(t *testing.T) {
	r, err := core.NewRegistry(Builtin()...)
	require.NoError(t, err)

	p, ok := r.Match("entrada/horas/detalhada/2024-03.xlsx")
	require.True(t, ok)
	assert.Equal(t, "listagem_horas_detalhada", p.Name)

	p, ok = r.Match("entrada/horas/2024-03.xlsx")
	require.True(t, ok)
	assert.Equal(t, "listagem_horas", p.Name)

	_, ok = r.Match("entrada/horas/2024-03.csv")
	assert.False(t, ok)
}

// The roster layout: preamble rows, then localidade, livro, volunteer and CPF
// in columns 0, 2, 7 and 8. Rows whose volunteer cell is empty or "nan" drop out.
func TestListagemHoras_Rows(t *testing.T) {
	rows := make([][]string, 12)
	for i := range rows {
		rows[i] = []string{"cabeçalho"}
	}
	rows = append(rows,
		[]string{"Centro", "", "L1", "", "", "", "", "Ana Souza", "123.456.789-00"},
		[]string{"Centro", "", "L1", "", "", "", "", "nan", "x"},
		[]string{"Norte", "", "L2", "", "", "", "", "Bia", ""},
	)

	res, err := core.NewNormalizer(ListagemHoras(), 2025).Normalize(core.GridFromStrings(rows))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Rejections, 1)

	assert.Equal(t, map[string]any{
		"localidade": "Centro",
		"livro":      "L1",
		"voluntario": "Ana Souza",
		"cpf":        "123.456.789-00",
	}, res.Records[0].Map())
	assert.Equal(t, map[string]any{
		"localidade": "Norte",
		"livro":      "L2",
		"voluntario": "Bia",
		"cpf":        nil,
	}, res.Records[1].Map())
}
