// Package analysis derives the schema summary and starter questions shown
// after a dataset is loaded.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// Options controls summary generation.
type Options struct {
	// NumSuggestedQueries bounds the suggested question list.
	NumSuggestedQueries int
	// TopValues is how many categories to keep per categorical column.
	TopValues int
}

// DefaultOptions returns reasonable defaults for dataset summaries.
func DefaultOptions() Options {
	return Options{NumSuggestedQueries: 5, TopValues: 5}
}

// Summary is a read-only snapshot of a frame's schema.
type Summary struct {
	Rows        int             `json:"rows"`
	Columns     []ColumnSummary `json:"schema"`
	Numeric     []string        `json:"numeric_columns"`
	Categorical []string        `json:"categorical_columns"`
	Suggested   []string        `json:"suggested_queries"`
	Corr        []PairCorr      `json:"correlations,omitempty"`
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Dtype   string  `json:"dtype"`
	NullPct float64 `json:"null_pct"`
	NonNull int     `json:"non_null"`
	Unique  int     `json:"unique"`
	// Numeric stats
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`
	// Categorical top values
	TopValues []CategoryCount `json:"top_values,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// Summarize inspects the frame as currently loaded (the sample, when sampled).
func Summarize(f *frame.Frame, opt Options) *Summary {
	s := &Summary{Rows: f.NumRows(), Numeric: []string{}, Categorical: []string{}}
	for _, c := range f.Columns() {
		cs := ColumnSummary{
			Name:    c.Name(),
			Dtype:   c.Dtype(),
			NullPct: nullPct(c.NullCount(), f.NumRows()),
			NonNull: c.Count(),
			Unique:  c.Unique().Len(),
		}
		switch c.Dtype() {
		case "int64", "float64":
			s.Numeric = append(s.Numeric, c.Name())
			if mean, std, ok := c.Moments(); ok {
				cs.Mean, cs.Std = mean, std
				if math.IsNaN(std) {
					cs.Std = 0
				}
				mn, _ := c.Quantile(0)
				mx, _ := c.Quantile(1)
				cs.Min, cs.Max = mn, mx
			}
		case "object":
			s.Categorical = append(s.Categorical, c.Name())
			labels, counts := c.ValueCounts()
			for i := 0; i < labels.Len() && i < opt.TopValues; i++ {
				n, _ := counts.Int(i)
				cs.TopValues = append(cs.TopValues, CategoryCount{Value: labels.Format(i), Count: int(n)})
			}
		}
		s.Columns = append(s.Columns, cs)
	}
	s.Suggested = SuggestQuestions(s.Numeric, s.Categorical, opt.NumSuggestedQueries)
	if len(s.Numeric) >= 2 {
		s.Corr = topCorrelations(f, s.Numeric, 10)
	}
	return s
}

// nullPct is 100*nulls/rows rounded to two decimals.
func nullPct(nulls, rows int) float64 {
	if rows == 0 {
		return 0
	}
	return math.Round(10000*float64(nulls)/float64(rows)) / 100
}

// SuggestQuestions builds the ordered starter questions, truncated to max.
func SuggestQuestions(numeric, categorical []string, max int) []string {
	out := []string{}
	if len(numeric) > 0 {
		out = append(out, fmt.Sprintf("What is the distribution of column '%s'?", numeric[0]))
	}
	if len(categorical) > 0 {
		out = append(out, fmt.Sprintf("Show the category counts in '%s'.", categorical[0]))
	}
	if len(numeric) >= 2 {
		out = append(out, "Is there a correlation between the numeric columns?")
	}
	if max < 0 {
		max = 0
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func topCorrelations(f *frame.Frame, numeric []string, limit int) []PairCorr {
	sub, err := f.Select(numeric...)
	if err != nil {
		return nil
	}
	cols := sub.Corr().Columns()
	var pairs []PairCorr
	for a := range numeric {
		col := cols[a+1]
		for b := a + 1; b < len(numeric); b++ {
			r, ok := col.Float(b)
			if !ok {
				continue
			}
			pairs = append(pairs, PairCorr{A: numeric[a], B: numeric[b], R: r})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return math.Abs(pairs[i].R) > math.Abs(pairs[j].R) })
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// SchemaFrame renders the per-column schema as a table.
func (s *Summary) SchemaFrame() *frame.Frame {
	names := make([]string, len(s.Columns))
	types := make([]string, len(s.Columns))
	nulls := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		names[i], types[i], nulls[i] = c.Name, c.Dtype, c.NullPct
	}
	f, _ := frame.New(
		frame.NewStringColumn("Column", names, nil),
		frame.NewStringColumn("Type", types, nil),
		frame.NewFloatColumn("Null (%)", nulls, nil),
	)
	return f
}

// Markdown renders the summary in the [SECTION] layout used for reports.
func (s *Summary) Markdown(name string) string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(s.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Columns {
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.2f%%)", safeName(c.Name), c.Dtype, c.NonNull, c.NullPct))
		switch c.Dtype {
		case "int64", "float64":
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		case "object":
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Corr) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range s.Corr {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(s.Suggested) > 0 {
		b.WriteString("\n[SUGGESTED QUESTIONS]\n")
		for i, q := range s.Suggested {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
		}
	}
	return b.String()
}

func safeName(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unnamed)"
	}
	return safeVal(s)
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
