package sandbox

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/dataloom-cli/internal/chart"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// Figure wraps a chart so scripts can adjust its layout before it is returned.
type Figure struct {
	fig    *chart.Figure
	frozen bool
}

var _ starlark.HasAttrs = (*Figure)(nil)

func (f *Figure) String() string        { return fmt.Sprintf("<Figure %s>", f.fig.Describe()) }
func (f *Figure) Type() string          { return "Figure" }
func (f *Figure) Freeze()               { f.frozen = true }
func (f *Figure) Truth() starlark.Bool  { return true }
func (f *Figure) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

// Chart returns the underlying specification.
func (f *Figure) Chart() *chart.Figure { return f.fig }

var figureMethods = map[string]*starlark.Builtin{
	"update_layout": starlark.NewBuiltin("update_layout", figureUpdateLayout),
	"show":          starlark.NewBuiltin("show", figureShow),
}

func (f *Figure) Attr(name string) (starlark.Value, error) {
	if m, ok := figureMethods[name]; ok {
		return m.BindReceiver(f), nil
	}
	return nil, nil
}

func (f *Figure) AttrNames() []string { return []string{"show", "update_layout"} }

func figureUpdateLayout(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	f := b.Receiver().(*Figure)
	if f.frozen {
		return nil, fmt.Errorf("%s: figure is frozen", b.Name())
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		s, err := optString(kv[1])
		if err != nil {
			continue
		}
		switch key {
		case "title", "title_text":
			f.fig.Layout.Title = s
		case "xaxis_title":
			f.fig.Layout.XTitle = s
		case "yaxis_title":
			f.fig.Layout.YTitle = s
		case "barmode":
			f.fig.Layout.BarMode = s
		}
	}
	return f, nil
}

func figureShow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

// chartFunc adapts a chart constructor to px.<name>(data_frame, x=, y=, ...).
// Keyword arguments the charts do not model (labels, template, ...) are ignored.
func chartFunc(build func(*frame.Frame, chart.Spec) (*chart.Figure, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		positional := []string{"data_frame", "x", "y"}
		if b.Name() == "pie" {
			positional = []string{"data_frame", "values", "names"}
		}
		if len(args) > len(positional) {
			return nil, fmt.Errorf("%s: got %d positional arguments, want at most %d", b.Name(), len(args), len(positional))
		}
		named := map[string]starlark.Value{}
		for i, a := range args {
			named[positional[i]] = a
		}
		for _, kv := range kwargs {
			named[string(kv[0].(starlark.String))] = kv[1]
		}
		data, ok := named["data_frame"]
		if !ok {
			return nil, fmt.Errorf("%s: missing data_frame", b.Name())
		}
		var spec chart.Spec
		var f *frame.Frame
		switch d := data.(type) {
		case *DataFrame:
			f = d.f
		case *Series:
			sf, err := d.Frame()
			if err != nil {
				return nil, err
			}
			f = sf
			spec.X = d.col.Name()
		default:
			return nil, fmt.Errorf("%s: data_frame must be a DataFrame, got %s", b.Name(), data.Type())
		}
		fields := map[string]*string{
			"x": &spec.X, "y": &spec.Y, "color": &spec.Color,
			"names": &spec.Names, "values": &spec.Values, "title": &spec.Title,
		}
		for key, dst := range fields {
			v, ok := named[key]
			if !ok {
				continue
			}
			s, err := optString(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), key, err)
			}
			if s != "" {
				*dst = s
			}
		}
		if v, ok := named["nbins"]; ok && v != starlark.None {
			n, err := starlark.AsInt32(v)
			if err != nil {
				return nil, fmt.Errorf("%s: nbins: %w", b.Name(), err)
			}
			spec.NBins = n
		}
		fig, err := build(f, spec)
		if err != nil {
			return nil, err
		}
		return &Figure{fig: fig}, nil
	}
}

func newPlotModule() *starlarkstruct.Module {
	members := starlark.StringDict{}
	for name, build := range map[string]func(*frame.Frame, chart.Spec) (*chart.Figure, error){
		"histogram": chart.Histogram,
		"bar":       chart.Bar,
		"line":      chart.Line,
		"scatter":   chart.Scatter,
		"pie":       chart.Pie,
		"box":       chart.Box,
	} {
		members[name] = starlark.NewBuiltin(name, chartFunc(build))
	}
	return &starlarkstruct.Module{Name: "px", Members: members}
}
