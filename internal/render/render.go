// Package render draws results, summaries and the interaction log for a terminal.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/chart"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"github.com/KaramelBytes/dataloom-cli/internal/history"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// Formats accepted by Options.Format.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Options controls payload rendering.
type Options struct {
	// Format is table (default), json, csv or markdown.
	Format string
	// MaxRows truncates tables; 0 shows every row.
	MaxRows int
	// PlotDir, when set, receives an HTML file per rendered chart.
	PlotDir string
}

// Payload writes one result.
func Payload(w io.Writer, p result.Payload, opt Options) error {
	if opt.Format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	switch v := p.(type) {
	case result.Text:
		_, err := fmt.Fprintln(w, v.Content)
		return err
	case result.Table:
		return Frame(w, v.Frame, opt)
	case result.Plot:
		return Plot(w, v.Figure, opt.PlotDir)
	case result.Error:
		_, err := fmt.Fprintf(w, "✗ Error: %s\n", v.Message)
		return err
	default:
		return fmt.Errorf("render: unknown payload %T", p)
	}
}

// Frame draws a table in the requested format.
func Frame(w io.Writer, f *frame.Frame, opt Options) error {
	if f == nil || f.NumCols() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	shown := f
	if opt.MaxRows > 0 && f.NumRows() > opt.MaxRows {
		shown = f.Head(opt.MaxRows)
	}
	switch opt.Format {
	case FormatCSV:
		return renderCSV(w, shown)
	case FormatMarkdown, "md":
		return renderMarkdown(w, shown)
	}

	if f.NumRows() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, 0, shown.NumCols())
	var configs []table.ColumnConfig
	for i, c := range shown.Columns() {
		header = append(header, c.Name())
		if c.Kind() != frame.String {
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
		}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)
	cols := shown.Columns()
	for r := 0; r < shown.NumRows(); r++ {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[i] = formatCell(c, r)
		}
		t.AppendRow(row)
	}
	t.Render()
	if shown.NumRows() < f.NumRows() {
		_, _ = fmt.Fprintf(w, "(showing %d of %d rows)\n", shown.NumRows(), f.NumRows())
	} else {
		_, _ = fmt.Fprintf(w, "(%d rows)\n", f.NumRows())
	}
	return nil
}

func formatCell(c *frame.Column, r int) string {
	if c.IsNull(r) {
		return "NULL"
	}
	return c.Format(r)
}

func renderCSV(w io.Writer, f *frame.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return err
	}
	cols := f.Columns()
	for r := 0; r < f.NumRows(); r++ {
		rec := make([]string, len(cols))
		for i, c := range cols {
			if !c.IsNull(r) {
				rec[i] = c.Format(r)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, f *frame.Frame) error {
	if f.NumRows() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(f.Names(), " | "))
	seps := make([]string, f.NumCols())
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	cols := f.Columns()
	for r := 0; r < f.NumRows(); r++ {
		values := make([]string, len(cols))
		for i, c := range cols {
			values[i] = strings.ReplaceAll(formatCell(c, r), "|", "\\|")
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

// Plot prints a one-line description and, when dir is set, writes the
// figure as a standalone Plotly HTML page.
func Plot(w io.Writer, fig *chart.Figure, dir string) error {
	if fig == nil {
		_, err := fmt.Fprintln(w, "(empty chart)")
		return err
	}
	_, _ = fmt.Fprintf(w, "📊 %s\n", fig.Describe())
	if dir == "" {
		return nil
	}
	page, err := PlotHTML(fig)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, plotFileName(fig))
	if err := utils.SafeWriteFile(path, page); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	_, _ = fmt.Fprintf(w, "✓ Chart written to %s\n", path)
	return nil
}

var plotSeq atomic.Int64

func plotFileName(fig *chart.Figure) string {
	n := plotSeq.Add(1)
	kind := fig.Kind
	if kind == "" {
		kind = "chart"
	}
	return fmt.Sprintf("%s-%03d.html", kind, n)
}

// PlotHTML embeds the figure JSON in a page that loads plotly.js.
func PlotHTML(fig *chart.Figure) ([]byte, error) {
	spec, err := json.Marshal(fig)
	if err != nil {
		return nil, fmt.Errorf("marshal figure: %w", err)
	}
	title := fig.Layout.Title
	if title == "" {
		title = fig.Kind + " chart"
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", htmlEscape(title))
	b.WriteString("<script src=\"https://cdn.plot.ly/plotly-2.35.2.min.js\"></script>\n")
	b.WriteString("</head><body>\n<div id=\"chart\" style=\"width:100%;height:90vh\"></div>\n<script>\n")
	fmt.Fprintf(&b, "const fig = %s;\nPlotly.newPlot(\"chart\", fig.data, fig.layout);\n", spec)
	b.WriteString("</script>\n</body></html>\n")
	return []byte(b.String()), nil
}

func htmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// Summary prints the load overview: shape, schema table and suggestions.
func Summary(w io.Writer, s *analysis.Summary, filename string) {
	if filename != "" {
		_, _ = fmt.Fprintf(w, "📄 %s\n", filename)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Type", "Null (%)", "Non-Null", "Unique"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for _, c := range s.Columns {
		t.AppendRow(table.Row{c.Name, c.Dtype, fmt.Sprintf("%.2f", c.NullPct), c.NonNull, c.Unique})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "Numeric: %s\n", listOrNone(s.Numeric))
	_, _ = fmt.Fprintf(w, "Categorical: %s\n", listOrNone(s.Categorical))
	Suggestions(w, s.Suggested)
}

// Suggestions prints the numbered starter questions.
func Suggestions(w io.Writer, qs []string) {
	if len(qs) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\n💡 Suggested questions:")
	for i, q := range qs {
		_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

// History lists log records oldest first.
func History(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(no interactions yet)")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Time", "Action", "Parameters", "Result"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 48}, {Number: 5, WidthMax: 48}})
	for i, r := range records {
		t.AppendRow(table.Row{i + 1, r.At.Format("15:04:05"), string(r.Action), formatParams(r.Params), result.Summary(r.Result)})
	}
	t.Render()
}

// formatParams renders key=value pairs sorted by key; code is collapsed to
// its first line.
func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := params[k]
		if i := strings.IndexByte(v, '\n'); i >= 0 {
			v = v[:i] + " …"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
