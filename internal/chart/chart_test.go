package chart

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

func people(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.ReadCSV(strings.NewReader("Nome,Idade,Cidade,Salario\nAna,28,Recife,5000\nBruno,35,Salvador,8000\nCarla,22,Recife,3500\nDaniel,45,Salvador,12000\n"), frame.CSVOptions{})
	require.NoError(t, err)
	return f
}

func TestHistogram(t *testing.T) {
	fig, err := Histogram(people(t), Spec{X: "Idade", Title: "Ages"})
	require.NoError(t, err)
	require.Len(t, fig.Data, 1)
	assert.Equal(t, "histogram", fig.Data[0].Type)
	assert.Equal(t, []any{int64(28), int64(35), int64(22), int64(45)}, fig.Data[0].X)
	assert.Equal(t, 4, fig.Points())
	assert.Contains(t, fig.Describe(), "Ages")
}

func TestColorSplitsTraces(t *testing.T) {
	fig, err := Scatter(people(t), Spec{X: "Idade", Y: "Salario", Color: "Cidade"})
	require.NoError(t, err)
	require.Len(t, fig.Data, 2)
	assert.Equal(t, "Recife", fig.Data[0].Name)
	assert.Equal(t, []any{int64(5000), int64(3500)}, fig.Data[0].Y)
	assert.Equal(t, "markers", fig.Data[1].Mode)
}

func TestBarCountsWithoutY(t *testing.T) {
	fig, err := Bar(people(t), Spec{X: "Cidade"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Recife", "Salvador"}, fig.Data[0].X)
	assert.Equal(t, []any{int64(2), int64(2)}, fig.Data[0].Y)
}

func TestPieAndBox(t *testing.T) {
	pie, err := Pie(people(t), Spec{Names: "Nome", Values: "Salario"})
	require.NoError(t, err)
	assert.Len(t, pie.Data[0].Labels, 4)

	box, err := Box(people(t), Spec{Y: "Salario"})
	require.NoError(t, err)
	assert.Nil(t, box.Data[0].X)

	_, err = Box(people(t), Spec{})
	assert.Error(t, err)
}

func TestMissingColumn(t *testing.T) {
	_, err := Line(people(t), Spec{X: "Idade", Y: "Missing"})
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestFigureJSON(t *testing.T) {
	fig, err := Histogram(people(t), Spec{X: "Idade", Title: "Ages"})
	require.NoError(t, err)
	raw, err := json.Marshal(fig)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	layout := decoded["layout"].(map[string]any)
	assert.Equal(t, "Ages", layout["title"].(map[string]any)["text"])
	assert.NotContains(t, string(raw), "Kind")
}

func TestNonFiniteValuesEncodeAsNull(t *testing.T) {
	f, err := frame.New(
		frame.NewStringColumn("region", []string{"N", "S", "E"}, nil),
		frame.NewFloatColumn("r", []float64{math.Inf(1), math.NaN(), 1.5}, nil),
	)
	require.NoError(t, err)
	fig, err := Bar(f, Spec{X: "region", Y: "r"})
	require.NoError(t, err)

	raw, err := json.Marshal(fig)
	require.NoError(t, err)
	var decoded struct {
		Data []struct {
			Y []any `json:"y"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []any{nil, nil, 1.5}, decoded.Data[0].Y)
	assert.True(t, math.IsInf(fig.Data[0].Y[0].(float64), 1), "the figure itself keeps the raw values")
}
