// Package chart builds Plotly-compatible figure specifications from frames.
package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// Trace is one Plotly data series.
type Trace struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Mode   string `json:"mode,omitempty"`
	X      []any  `json:"x,omitempty"`
	Y      []any  `json:"y,omitempty"`
	Labels []any  `json:"labels,omitempty"`
	Values []any  `json:"values,omitempty"`
	NBinsX int    `json:"nbinsx,omitempty"`
}

// MarshalJSON encodes the trace with NaN and ±Inf points as null, the way
// Plotly renders gaps.
func (t Trace) MarshalJSON() ([]byte, error) {
	type plain Trace
	p := plain(t)
	p.X, p.Y = finite(t.X), finite(t.Y)
	p.Labels, p.Values = finite(t.Labels), finite(t.Values)
	return json.Marshal(p)
}

func finite(vals []any) []any {
	if vals == nil {
		return nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			v = nil
		}
		out[i] = v
	}
	return out
}

// Layout holds the figure-level options the charting helpers set.
type Layout struct {
	Title  string
	XTitle string
	YTitle string
	// BarMode is "group" for colored bar charts; empty otherwise.
	BarMode string
}

type titleJSON struct {
	Text string `json:"text"`
}

type axisJSON struct {
	Title titleJSON `json:"title"`
}

func (l Layout) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if l.Title != "" {
		out["title"] = titleJSON{Text: l.Title}
	}
	if l.XTitle != "" {
		out["xaxis"] = axisJSON{Title: titleJSON{Text: l.XTitle}}
	}
	if l.YTitle != "" {
		out["yaxis"] = axisJSON{Title: titleJSON{Text: l.YTitle}}
	}
	if l.BarMode != "" {
		out["barmode"] = l.BarMode
	}
	return json.Marshal(out)
}

// Figure is a chart specification: traces plus layout.
type Figure struct {
	Kind   string  `json:"-"`
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Points counts the data points across all traces.
func (f *Figure) Points() int {
	n := 0
	for _, t := range f.Data {
		n += max(len(t.X), len(t.Y), len(t.Values))
	}
	return n
}

// Describe is a one-line textual stand-in for terminals that cannot draw.
func (f *Figure) Describe() string {
	title := f.Layout.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%s chart %s: %d trace(s), %d point(s)", f.Kind, title, len(f.Data), f.Points())
}

// Spec configures one chart call. Empty fields are unused.
type Spec struct {
	X      string
	Y      string
	Color  string
	Names  string
	Values string
	Title  string
	NBins  int
}

// Histogram plots the distribution of Spec.X.
func Histogram(f *frame.Frame, s Spec) (*Figure, error) {
	if s.X == "" {
		return nil, fmt.Errorf("histogram: x is required")
	}
	fig := &Figure{Kind: "histogram", Layout: Layout{Title: s.Title, XTitle: s.X, YTitle: "count"}}
	err := split(f, s.Color, func(name string, sub *frame.Frame) error {
		x, err := values(sub, s.X)
		if err != nil {
			return err
		}
		fig.Data = append(fig.Data, Trace{Type: "histogram", Name: name, X: x, NBinsX: s.NBins})
		return nil
	})
	return fig, err
}

// Bar plots Spec.Y against Spec.X. Without Y the bars count rows per X value.
func Bar(f *frame.Frame, s Spec) (*Figure, error) {
	if s.X == "" {
		return nil, fmt.Errorf("bar: x is required")
	}
	fig := &Figure{Kind: "bar", Layout: Layout{Title: s.Title, XTitle: s.X, YTitle: s.Y}}
	if s.Color != "" {
		fig.Layout.BarMode = "group"
	}
	err := split(f, s.Color, func(name string, sub *frame.Frame) error {
		if s.Y == "" {
			xc, err := sub.Column(s.X)
			if err != nil {
				return err
			}
			labels, counts := xc.ValueCounts()
			fig.Layout.YTitle = "count"
			fig.Data = append(fig.Data, Trace{Type: "bar", Name: name, X: labels.Values(), Y: counts.Values()})
			return nil
		}
		x, y, err := pair(sub, s.X, s.Y)
		if err != nil {
			return err
		}
		fig.Data = append(fig.Data, Trace{Type: "bar", Name: name, X: x, Y: y})
		return nil
	})
	return fig, err
}

// Line plots Spec.Y against Spec.X joined by lines.
func Line(f *frame.Frame, s Spec) (*Figure, error) {
	return xy(f, s, "line", "lines")
}

// Scatter plots Spec.Y against Spec.X as markers.
func Scatter(f *frame.Frame, s Spec) (*Figure, error) {
	return xy(f, s, "scatter", "markers")
}

func xy(f *frame.Frame, s Spec, kind, mode string) (*Figure, error) {
	if s.X == "" || s.Y == "" {
		return nil, fmt.Errorf("%s: x and y are required", kind)
	}
	fig := &Figure{Kind: kind, Layout: Layout{Title: s.Title, XTitle: s.X, YTitle: s.Y}}
	err := split(f, s.Color, func(name string, sub *frame.Frame) error {
		x, y, err := pair(sub, s.X, s.Y)
		if err != nil {
			return err
		}
		fig.Data = append(fig.Data, Trace{Type: "scatter", Mode: mode, Name: name, X: x, Y: y})
		return nil
	})
	return fig, err
}

// Pie plots Spec.Values per Spec.Names. Without Values each name is counted.
func Pie(f *frame.Frame, s Spec) (*Figure, error) {
	if s.Names == "" {
		return nil, fmt.Errorf("pie: names is required")
	}
	fig := &Figure{Kind: "pie", Layout: Layout{Title: s.Title}}
	if s.Values == "" {
		nc, err := f.Column(s.Names)
		if err != nil {
			return nil, err
		}
		labels, counts := nc.ValueCounts()
		fig.Data = []Trace{{Type: "pie", Labels: labels.Values(), Values: counts.Values()}}
		return fig, nil
	}
	labels, vals, err := pair(f, s.Names, s.Values)
	if err != nil {
		return nil, err
	}
	fig.Data = []Trace{{Type: "pie", Labels: labels, Values: vals}}
	return fig, nil
}

// Box plots the spread of Spec.Y, optionally per Spec.X category.
func Box(f *frame.Frame, s Spec) (*Figure, error) {
	if s.Y == "" && s.X == "" {
		return nil, fmt.Errorf("box: x or y is required")
	}
	fig := &Figure{Kind: "box", Layout: Layout{Title: s.Title, XTitle: s.X, YTitle: s.Y}}
	err := split(f, s.Color, func(name string, sub *frame.Frame) error {
		t := Trace{Type: "box", Name: name}
		var err error
		switch {
		case s.X != "" && s.Y != "":
			t.X, t.Y, err = pair(sub, s.X, s.Y)
		case s.Y != "":
			t.Y, err = values(sub, s.Y)
		default:
			t.X, err = values(sub, s.X)
		}
		if err != nil {
			return err
		}
		fig.Data = append(fig.Data, t)
		return nil
	})
	return fig, err
}

// split calls fn once for the whole frame, or once per value of the color column.
func split(f *frame.Frame, color string, fn func(name string, sub *frame.Frame) error) error {
	if color == "" {
		return fn("", f)
	}
	g, err := f.GroupBy(color)
	if err != nil {
		return err
	}
	keys := g.Keys()
	cc, _ := f.Column(color)
	for i := 0; i < g.Len(); i++ {
		key := keys.Format(i)
		mask := make([]bool, f.NumRows())
		for r := range mask {
			mask[r] = !cc.IsNull(r) && cc.Format(r) == key
		}
		sub, err := f.Filter(mask)
		if err != nil {
			return err
		}
		if err := fn(key, sub); err != nil {
			return err
		}
	}
	return nil
}

func values(f *frame.Frame, name string) ([]any, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	return c.Values(), nil
}

func pair(f *frame.Frame, a, b string) ([]any, []any, error) {
	x, err := values(f, a)
	if err != nil {
		return nil, nil, err
	}
	y, err := values(f, b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// Kinds lists the chart constructors by name.
var Kinds = []string{"histogram", "bar", "line", "scatter", "pie", "box"}

// Valid reports whether kind names a supported chart.
func Valid(kind string) bool {
	for _, k := range Kinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}
