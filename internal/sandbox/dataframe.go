package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// DataFrame exposes a frame to scripts with a pandas-like surface.
// Column assignment replaces the wrapped frame; the source frame is never touched.
type DataFrame struct {
	f      *frame.Frame
	frozen bool
}

var (
	_ starlark.HasSetKey = (*DataFrame)(nil)
	_ starlark.Sequence  = (*DataFrame)(nil)
	_ starlark.HasAttrs  = (*DataFrame)(nil)
)

func newDataFrame(f *frame.Frame) *DataFrame { return &DataFrame{f: f} }

// Frame returns the current table.
func (d *DataFrame) Frame() *frame.Frame { return d.f }

func (d *DataFrame) String() string        { return d.f.String() }
func (d *DataFrame) Type() string          { return "DataFrame" }
func (d *DataFrame) Freeze()               { d.frozen = true }
func (d *DataFrame) Truth() starlark.Bool  { return d.f.NumRows() > 0 }
func (d *DataFrame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }
func (d *DataFrame) Len() int              { return d.f.NumRows() }

// Iterate yields column names, as iterating a pandas DataFrame does.
func (d *DataFrame) Iterate() starlark.Iterator {
	names := d.f.Names()
	vals := make([]starlark.Value, len(names))
	for i, n := range names {
		vals[i] = starlark.String(n)
	}
	return starlark.NewList(vals).Iterate()
}

// Get selects a column, a list of columns, or the rows of a boolean mask.
func (d *DataFrame) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		c, err := d.f.Column(string(key))
		if err != nil {
			return nil, false, err
		}
		return newSeries(c, nil), true, nil
	case *Series:
		if key.col.Kind() != frame.Bool {
			return nil, false, fmt.Errorf("row filter must be a boolean mask, got %s", key.col.Dtype())
		}
		mask := make([]bool, key.Len())
		for i := range mask {
			mask[i], _ = key.col.Value(i).(bool)
		}
		f, err := d.f.Filter(mask)
		if err != nil {
			return nil, false, err
		}
		return newDataFrame(f), true, nil
	case *starlark.List, starlark.Tuple:
		names, err := stringList(k)
		if err != nil {
			return nil, false, err
		}
		f, err := d.f.Select(names...)
		if err != nil {
			return nil, false, err
		}
		return newDataFrame(f), true, nil
	}
	return nil, false, fmt.Errorf("DataFrame keys must be a column name, a list of names or a mask, not %s", k.Type())
}

// SetKey assigns a column from a Series, a list or a scalar.
func (d *DataFrame) SetKey(k, v starlark.Value) error {
	if d.frozen {
		return fmt.Errorf("cannot assign to a frozen DataFrame")
	}
	name, ok := starlark.AsString(k)
	if !ok {
		return fmt.Errorf("column name must be a string, not %s", k.Type())
	}
	var col *frame.Column
	switch v.(type) {
	case *Series, *starlark.List, starlark.Tuple:
		c, err := listColumn(name, v)
		if err != nil {
			return err
		}
		col = c
	default:
		cell, err := fromValue(v)
		if err != nil {
			return err
		}
		vals := make([]any, d.f.NumRows())
		for i := range vals {
			vals[i] = cell
		}
		col = frame.FromValues(name, vals)
	}
	f, err := d.f.WithColumn(col)
	if err != nil {
		return err
	}
	d.f = f
	return nil
}

var frameMethods = map[string]*starlark.Builtin{}

func init() {
	for name, m := range map[string]func(*DataFrame, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error){
		"head":         frameHead,
		"tail":         frameTail,
		"describe":     frameDescribe,
		"corr":         frameCorr,
		"sort_values":  frameSortValues,
		"groupby":      frameGroupBy,
		"value_counts": frameValueCounts,
		"nunique":      frameReduce("nunique"),
		"isnull":       frameIsNull(true),
		"isna":         frameIsNull(true),
		"notnull":      frameIsNull(false),
		"notna":        frameIsNull(false),
		"dropna":       frameDropNA,
		"nlargest":     frameNth(false),
		"nsmallest":    frameNth(true),
		"drop":         frameDrop,
		"rename":       frameRename,
		"copy":         frameCopy,
		"reset_index":  frameCopy,
	} {
		frameMethods[name] = starlark.NewBuiltin(name, bindFrame(m))
	}
	for _, fn := range []string{"count", "sum", "mean", "median", "min", "max", "std"} {
		frameMethods[fn] = starlark.NewBuiltin(fn, bindFrame(frameReduce(fn)))
	}
}

func bindFrame(m func(*DataFrame, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(b.Receiver().(*DataFrame), b.Name(), args, kwargs)
	}
}

func (d *DataFrame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		names := d.f.Names()
		vals := make([]starlark.Value, len(names))
		for i, n := range names {
			vals[i] = starlark.String(n)
		}
		return starlark.NewList(vals), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(d.f.NumRows()), starlark.MakeInt(d.f.NumCols())}, nil
	case "size":
		return starlark.MakeInt(d.f.NumRows() * d.f.NumCols()), nil
	case "empty":
		return starlark.Bool(d.f.NumRows() == 0 || d.f.NumCols() == 0), nil
	case "dtypes":
		names := d.f.Names()
		types := make([]string, len(names))
		for i, c := range d.f.Columns() {
			types[i] = c.Dtype()
		}
		return newSeries(frame.NewStringColumn("dtype", types, nil), frame.NewStringColumn("column", names, nil)), nil
	}
	if m, ok := frameMethods[name]; ok {
		return m.BindReceiver(d), nil
	}
	return nil, nil
}

func (d *DataFrame) AttrNames() []string {
	names := []string{"columns", "dtypes", "empty", "shape", "size"}
	for n := range frameMethods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func frameHead(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(name, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return newDataFrame(d.f.Head(n)), nil
}

func frameTail(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(name, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return newDataFrame(d.f.Tail(n)), nil
}

func frameDescribe(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return newDataFrame(d.f.Describe()), nil
}

func frameCorr(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var numericOnly bool
	if err := starlark.UnpackArgs(name, args, kwargs, "numeric_only?", &numericOnly); err != nil {
		return nil, err
	}
	return newDataFrame(d.f.Corr()), nil
}

func frameSortValues(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by starlark.Value
	ascending := true
	if err := starlark.UnpackArgs(name, args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}
	keys, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f := d.f
	// Sorting by the last key first and relying on stability orders by all keys.
	for i := len(keys) - 1; i >= 0; i-- {
		if f, err = f.SortBy(keys[i], ascending); err != nil {
			return nil, err
		}
	}
	return newDataFrame(f), nil
}

func frameGroupBy(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by string
	if err := starlark.UnpackArgs(name, args, kwargs, "by", &by); err != nil {
		return nil, err
	}
	g, err := d.f.GroupBy(by)
	if err != nil {
		return nil, err
	}
	return &GroupBy{src: d.f, groups: g, by: by}, nil
}

func frameValueCounts(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var subset string
	if err := starlark.UnpackArgs(name, args, kwargs, "subset", &subset); err != nil {
		return nil, err
	}
	c, err := d.f.Column(subset)
	if err != nil {
		return nil, err
	}
	labels, counts := c.ValueCounts()
	return newSeries(counts, labels), nil
}

// frameReduce aggregates every column that supports fn into a Series indexed by column name.
func frameReduce(fn string) func(*DataFrame, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var numericOnly bool
		if err := starlark.UnpackArgs(name, args, kwargs, "numeric_only?", &numericOnly); err != nil {
			return nil, err
		}
		var labels []string
		var vals []any
		for _, c := range d.f.Columns() {
			if numericOnly && !c.Numeric() {
				continue
			}
			v, err := c.Agg(fn)
			if err != nil {
				continue
			}
			labels = append(labels, c.Name())
			vals = append(vals, v)
		}
		return newSeries(frame.FromValues(fn, vals), frame.NewStringColumn("column", labels, nil)), nil
	}
}

func frameIsNull(want bool) func(*DataFrame, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
			return nil, err
		}
		cols := make([]*frame.Column, 0, d.f.NumCols())
		for _, c := range d.f.Columns() {
			cols = append(cols, newSeries(c, nil).mask(func(i int) bool { return c.IsNull(i) == want }))
		}
		f, err := frame.New(cols...)
		if err != nil {
			return nil, err
		}
		return newDataFrame(f), nil
	}
}

func frameDropNA(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return newDataFrame(d.f.DropNA()), nil
}

func frameNth(smallest bool) func(*DataFrame, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		var column string
		if err := starlark.UnpackArgs(name, args, kwargs, "n", &n, "columns", &column); err != nil {
			return nil, err
		}
		f, err := d.f.SortBy(column, smallest)
		if err != nil {
			return nil, err
		}
		return newDataFrame(f.Head(n)), nil
	}
}

func frameDrop(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var columns starlark.Value
	if err := starlark.UnpackArgs(name, args, kwargs, "columns", &columns); err != nil {
		return nil, err
	}
	drop, err := stringList(columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	gone := make(map[string]bool, len(drop))
	for _, n := range drop {
		if _, err := d.f.Column(n); err != nil {
			return nil, err
		}
		gone[n] = true
	}
	var keep []string
	for _, n := range d.f.Names() {
		if !gone[n] {
			keep = append(keep, n)
		}
	}
	f, err := d.f.Select(keep...)
	if err != nil {
		return nil, err
	}
	return newDataFrame(f), nil
}

func frameRename(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var columns *starlark.Dict
	if err := starlark.UnpackArgs(name, args, kwargs, "columns", &columns); err != nil {
		return nil, err
	}
	cols := d.f.Columns()
	for i, c := range cols {
		v, found, err := columns.Get(starlark.String(c.Name()))
		if err != nil || !found {
			continue
		}
		to, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("%s: new name for %q must be a string", name, c.Name())
		}
		cols[i] = c.Rename(to)
	}
	f, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	return newDataFrame(f), nil
}

func frameCopy(d *DataFrame, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var drop bool
	if err := starlark.UnpackArgs(name, args, kwargs, "drop?", &drop); err != nil {
		return nil, err
	}
	return newDataFrame(d.f), nil
}
