package frame

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// plainStyle draws no borders or separators, only padded, aligned columns.
var plainStyle = func() table.Style {
	s := table.StyleDefault
	s.Name = "plain"
	s.Format.Header = text.FormatDefault
	s.Options = table.Options{}
	return s
}()

// String renders every row with a leading positional index, pandas to_string style.
func (f *Frame) String() string {
	if len(f.cols) == 0 {
		return fmt.Sprintf("Empty DataFrame\nColumns: []\nIndex: [%d rows]", f.nrows)
	}
	if f.nrows == 0 {
		return fmt.Sprintf("Empty DataFrame\nColumns: [%s]\nIndex: []", strings.Join(f.Names(), ", "))
	}
	t := table.NewWriter()
	t.SetStyle(plainStyle)
	header := table.Row{""}
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i, c := range f.cols {
		header = append(header, c.Name())
		if c.kind != String {
			configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight, AlignHeader: text.AlignRight})
		}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)
	for r := 0; r < f.nrows; r++ {
		row := table.Row{r}
		for _, c := range f.cols {
			row = append(row, c.Format(r))
		}
		t.AppendRow(row)
	}
	return trimLines(t.Render())
}

// Info describes the frame's layout like pandas DataFrame.info().
func (f *Frame) Info() string {
	var b strings.Builder
	b.WriteString("<class 'DataFrame'>\n")
	if f.nrows == 0 {
		b.WriteString("RangeIndex: 0 entries\n")
	} else {
		fmt.Fprintf(&b, "RangeIndex: %d entries, 0 to %d\n", f.nrows, f.nrows-1)
	}
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", len(f.cols))
	t := table.NewWriter()
	t.SetStyle(plainStyle)
	t.AppendHeader(table.Row{"#", "Column", "Non-Null Count", "Dtype"})
	t.AppendRow(table.Row{"---", "------", "--------------", "-----"})
	counts := make(map[string]int)
	var order []string
	for i, c := range f.cols {
		t.AppendRow(table.Row{i, c.Name(), fmt.Sprintf("%d non-null", c.Count()), c.Dtype()})
		if counts[c.Dtype()] == 0 {
			order = append(order, c.Dtype())
		}
		counts[c.Dtype()]++
	}
	b.WriteString(trimLines(t.Render()))
	b.WriteString("\ndtypes: ")
	for i, d := range order {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s(%d)", d, counts[d])
	}
	b.WriteString("\n")
	return b.String()
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

type jsonColumn struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

type jsonFrame struct {
	Columns []jsonColumn `json:"columns"`
	Rows    [][]any      `json:"rows"`
}

// MarshalJSON encodes the frame as column metadata plus row-major values.
// Nulls and non-finite floats become JSON null.
func (f *Frame) MarshalJSON() ([]byte, error) {
	out := jsonFrame{Columns: make([]jsonColumn, len(f.cols)), Rows: make([][]any, f.nrows)}
	for i, c := range f.cols {
		out.Columns[i] = jsonColumn{Name: c.Name(), Dtype: c.Dtype()}
	}
	for r := 0; r < f.nrows; r++ {
		row := make([]any, len(f.cols))
		for i, c := range f.cols {
			v := c.Value(r)
			if fl, ok := v.(float64); ok && (math.IsInf(fl, 0) || math.IsNaN(fl)) {
				v = nil
			}
			row[i] = v
		}
		out.Rows[r] = row
	}
	return json.Marshal(out)
}
