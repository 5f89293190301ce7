package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/chart"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"github.com/KaramelBytes/dataloom-cli/internal/history"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
)

const people = "ID,Nome,Idade,Cidade,Salario\n1,Ana,28,Recife,5000\n2,Bruno,35,Salvador,8000\n3,Carla,22,Recife,3500\n4,Daniel,45,Salvador,12000\n"

func peopleFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.ReadCSV(strings.NewReader(people), frame.CSVOptions{})
	require.NoError(t, err)
	return f
}

func TestPayloadTextAndError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Payload(&buf, result.Text{Content: "32.5"}, Options{}))
	require.NoError(t, Payload(&buf, result.Error{Message: "runtime error: boom"}, Options{}))
	assert.Equal(t, "32.5\n✗ Error: runtime error: boom\n", buf.String())
}

func TestPayloadTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Payload(&buf, result.Table{Frame: peopleFrame(t)}, Options{}))
	out := buf.String()
	assert.Contains(t, out, "Salvador")
	assert.Contains(t, out, "│")
	assert.True(t, strings.HasSuffix(out, "(4 rows)\n"), out)
}

func TestFrameTruncatesRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Frame(&buf, peopleFrame(t), Options{MaxRows: 2}))
	out := buf.String()
	assert.Contains(t, out, "Bruno")
	assert.NotContains(t, out, "Carla")
	assert.Contains(t, out, "(showing 2 of 4 rows)")
}

func TestFrameFormats(t *testing.T) {
	f := peopleFrame(t)

	var csvOut bytes.Buffer
	require.NoError(t, Frame(&csvOut, f, Options{Format: FormatCSV}))
	assert.True(t, strings.HasPrefix(csvOut.String(), "ID,Nome,Idade,Cidade,Salario\n1,Ana,28,Recife,5000\n"), csvOut.String())

	var md bytes.Buffer
	require.NoError(t, Frame(&md, f, Options{Format: FormatMarkdown}))
	assert.Contains(t, md.String(), "| ID | Nome | Idade | Cidade | Salario |\n| --- | --- | --- | --- | --- |\n")

	var js bytes.Buffer
	require.NoError(t, Payload(&js, result.Table{Frame: f}, Options{Format: FormatJSON}))
	assert.Contains(t, js.String(), `"type": "table"`)
}

func TestPlotWritesHTML(t *testing.T) {
	fig, err := chart.Histogram(peopleFrame(t), chart.Spec{X: "Idade", Title: "Ages <all>"})
	require.NoError(t, err)
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, Payload(&buf, result.Plot{Figure: fig}, Options{PlotDir: dir}))
	assert.Contains(t, buf.String(), "histogram chart")

	matches, err := filepath.Glob(filepath.Join(dir, "histogram-*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	page, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(page), "Plotly.newPlot")
	assert.Contains(t, string(page), "<title>Ages &lt;all&gt;</title>")
	assert.Contains(t, string(page), `"type":"histogram"`)
}

func TestSummaryAndHistory(t *testing.T) {
	s := analysis.Summarize(peopleFrame(t), analysis.DefaultOptions())
	var buf bytes.Buffer
	Summary(&buf, s, "people.csv")
	out := buf.String()
	assert.Contains(t, out, "people.csv")
	assert.Contains(t, out, "Numeric: ID, Idade, Salario")
	assert.Contains(t, out, "1. What is the distribution of column 'ID'?")

	log := history.New(0)
	log.Append(history.ActionLoad, map[string]string{"filename": "people.csv", "rows": "4"}, result.Text{Content: "File 'people.csv' loaded (4 rows)."})
	log.Append(history.ActionAnswerQuery, map[string]string{"question": "mean?", "code": "x = 1\nresult = x"}, result.Text{Content: "1"})
	buf.Reset()
	History(&buf, log.All())
	out = buf.String()
	assert.Contains(t, out, "answer_query")
	assert.Contains(t, out, "filename=people.csv rows=4")
	assert.Contains(t, out, "code=x = 1 …")
	assert.NotContains(t, out, "result = x")

	buf.Reset()
	History(&buf, nil)
	assert.Equal(t, "(no interactions yet)\n", buf.String())
}
