package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// GroupBy is the result of df.groupby(col), optionally narrowed to one column.
type GroupBy struct {
	src    *frame.Frame
	groups *frame.Groups
	by     string
	column string
}

var (
	_ starlark.Mapping  = (*GroupBy)(nil)
	_ starlark.HasAttrs = (*GroupBy)(nil)
)

func (g *GroupBy) String() string {
	if g.column != "" {
		return fmt.Sprintf("<SeriesGroupBy by=%q column=%q>", g.by, g.column)
	}
	return fmt.Sprintf("<DataFrameGroupBy by=%q>", g.by)
}
func (g *GroupBy) Type() string          { return "GroupBy" }
func (g *GroupBy) Freeze()               {}
func (g *GroupBy) Truth() starlark.Bool  { return true }
func (g *GroupBy) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: GroupBy") }

// Get narrows the grouping to one column: df.groupby('a')['b'].
func (g *GroupBy) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("groupby selection must be a column name, not %s", k.Type())
	}
	if _, err := g.src.Column(name); err != nil {
		return nil, false, err
	}
	return &GroupBy{src: g.src, groups: g.groups, by: g.by, column: name}, true, nil
}

var groupMethods = map[string]*starlark.Builtin{}

func init() {
	for _, fn := range frame.Aggregations {
		groupMethods[fn] = starlark.NewBuiltin(fn, groupAgg(fn))
	}
	groupMethods["size"] = starlark.NewBuiltin("size", groupSize)
	groupMethods["agg"] = starlark.NewBuiltin("agg", groupAggNamed)
}

func (g *GroupBy) Attr(name string) (starlark.Value, error) {
	if m, ok := groupMethods[name]; ok {
		return m.BindReceiver(g), nil
	}
	if c, err := g.src.Column(name); err == nil && g.column == "" {
		return &GroupBy{src: g.src, groups: g.groups, by: g.by, column: c.Name()}, nil
	}
	return nil, nil
}

func (g *GroupBy) AttrNames() []string {
	names := make([]string, 0, len(groupMethods))
	for n := range groupMethods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func groupAgg(fn string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var numericOnly bool
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "numeric_only?", &numericOnly); err != nil {
			return nil, err
		}
		return b.Receiver().(*GroupBy).aggregate(fn)
	}
}

func groupAggNamed(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "func", &fn); err != nil {
		return nil, err
	}
	return b.Receiver().(*GroupBy).aggregate(fn)
}

// aggregate returns a Series for a narrowed grouping, otherwise a DataFrame
// holding the key column followed by every column that supports fn.
func (g *GroupBy) aggregate(fn string) (starlark.Value, error) {
	if g.column != "" {
		c, err := g.groups.Agg(g.column, fn)
		if err != nil {
			return nil, err
		}
		return newSeries(c, g.groups.Keys()), nil
	}
	cols := []*frame.Column{g.groups.Keys()}
	for _, name := range g.src.Names() {
		if name == g.by {
			continue
		}
		c, err := g.groups.Agg(name, fn)
		if err != nil {
			continue
		}
		cols = append(cols, c)
	}
	f, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	return newDataFrame(f), nil
}

func groupSize(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	g := b.Receiver().(*GroupBy)
	return newSeries(g.groups.Size(), g.groups.Keys()), nil
}
