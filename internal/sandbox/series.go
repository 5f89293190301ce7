package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// Series is a single column, optionally labeled by an index column.
type Series struct {
	col   *frame.Column
	index *frame.Column
}

var (
	_ starlark.Mapping   = (*Series)(nil)
	_ starlark.Sequence  = (*Series)(nil)
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.HasBinary = (*Series)(nil)
	_ starlark.HasUnary  = (*Series)(nil)
)

func newSeries(col, index *frame.Column) *Series { return &Series{col: col, index: index} }

func (s *Series) String() string {
	f, _ := s.Frame()
	var b strings.Builder
	b.WriteString(f.String())
	fmt.Fprintf(&b, "\nName: %s, dtype: %s", s.col.Name(), s.col.Dtype())
	return b.String()
}
func (s *Series) Type() string          { return "Series" }
func (s *Series) Freeze()               {}
func (s *Series) Truth() starlark.Bool  { return s.col.Len() > 0 }
func (s *Series) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Series") }
func (s *Series) Len() int              { return s.col.Len() }

func (s *Series) Iterate() starlark.Iterator { return &cellIterator{col: s.col} }

type cellIterator struct {
	col *frame.Column
	i   int
}

func (it *cellIterator) Next(p *starlark.Value) bool {
	if it.i >= it.col.Len() {
		return false
	}
	*p = toValue(it.col.Value(it.i))
	it.i++
	return true
}

func (it *cellIterator) Done() {}

// Get looks a key up by index label first, then by position.
func (s *Series) Get(k starlark.Value) (starlark.Value, bool, error) {
	if s.index != nil {
		want, err := fromValue(k)
		if err == nil {
			for i := 0; i < s.index.Len(); i++ {
				if sameCell(s.index.Value(i), want) {
					return toValue(s.col.Value(i)), true, nil
				}
			}
		}
	}
	i, err := starlark.AsInt32(k)
	if err != nil {
		if s.index != nil {
			return nil, false, fmt.Errorf("key %s not in index", k)
		}
		return nil, false, fmt.Errorf("Series indices must be integers, not %s", k.Type())
	}
	n := s.col.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false, fmt.Errorf("Series index %d out of range (length %d)", i, n)
	}
	return toValue(s.col.Value(i)), true, nil
}

func sameCell(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Frame returns the series as a table: the index column (when present) then the values.
func (s *Series) Frame() (*frame.Frame, error) {
	if s.index == nil {
		return frame.New(s.col)
	}
	idx := s.index
	if idx.Name() == s.col.Name() || idx.Name() == "" {
		idx = idx.Rename("index")
	}
	return frame.New(idx, s.col)
}

func (s *Series) take(idx []int) *Series {
	out := &Series{col: s.col.Take(idx)}
	if s.index != nil {
		out.index = s.index.Take(idx)
	}
	return out
}

func (s *Series) withValues(c *frame.Column) *Series {
	return &Series{col: c, index: s.index}
}

var seriesMethods = map[string]*starlark.Builtin{}

func init() {
	for _, fn := range frame.Aggregations {
		seriesMethods[fn] = starlark.NewBuiltin(fn, seriesAgg(fn))
	}
	for name, m := range map[string]func(*Series, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error){
		"unique":       seriesUnique,
		"value_counts": seriesValueCounts,
		"describe":     seriesDescribe,
		"head":         seriesHead,
		"tail":         seriesTail,
		"sort_values":  seriesSortValues,
		"to_list":      seriesToList,
		"tolist":       seriesToList,
		"isnull":       seriesIsNull,
		"isna":         seriesIsNull,
		"notnull":      seriesNotNull,
		"notna":        seriesNotNull,
		"isin":         seriesIsIn,
		"round":        seriesRound,
		"abs":          seriesAbs,
		"idxmax":       seriesIdx(true),
		"idxmin":       seriesIdx(false),
		"reset_index":  seriesResetIndex,
		"to_frame":     seriesToFrame,
	} {
		seriesMethods[name] = starlark.NewBuiltin(name, bindSeries(m))
	}
	seriesMethods["apply"] = starlark.NewBuiltin("apply", seriesApply)
	for _, op := range []string{"gt", "ge", "lt", "le", "eq", "ne"} {
		seriesMethods[op] = starlark.NewBuiltin(op, bindSeries(seriesCompare(op)))
	}
}

func bindSeries(m func(*Series, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(b.Receiver().(*Series), b.Name(), args, kwargs)
	}
}

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(s.col.Name()), nil
	case "dtype":
		return starlark.String(s.col.Dtype()), nil
	case "size":
		return starlark.MakeInt(s.col.Len()), nil
	case "values":
		return s.list(), nil
	case "index":
		if s.index == nil {
			return starlark.NewList(rangeValues(s.col.Len())), nil
		}
		return &Series{col: s.index}, nil
	}
	if m, ok := seriesMethods[name]; ok {
		return m.BindReceiver(s), nil
	}
	return nil, nil
}

func (s *Series) AttrNames() []string {
	names := []string{"dtype", "index", "name", "size", "values"}
	for n := range seriesMethods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func rangeValues(n int) []starlark.Value {
	out := make([]starlark.Value, n)
	for i := range out {
		out[i] = starlark.MakeInt(i)
	}
	return out
}

func (s *Series) list() *starlark.List {
	vals := make([]starlark.Value, s.col.Len())
	for i := range vals {
		vals[i] = toValue(s.col.Value(i))
	}
	return starlark.NewList(vals)
}

func seriesAgg(fn string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		v, err := b.Receiver().(*Series).col.Agg(fn)
		if err != nil {
			return nil, err
		}
		return toValue(v), nil
	}
}

func seriesUnique(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return (&Series{col: s.col.Unique()}).list(), nil
}

func seriesValueCounts(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	normalize := false
	if err := starlark.UnpackArgs(name, args, kwargs, "normalize?", &normalize); err != nil {
		return nil, err
	}
	labels, counts := s.col.ValueCounts()
	if normalize {
		total := float64(s.col.Count())
		props := make([]float64, counts.Len())
		for i := range props {
			n, _ := counts.Int(i)
			props[i] = float64(n) / total
		}
		return newSeries(frame.NewFloatColumn("proportion", props, nil), labels), nil
	}
	return newSeries(counts, labels), nil
}

func seriesDescribe(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	f, err := frame.New(s.col)
	if err != nil {
		return nil, err
	}
	cols := f.Describe().Columns()
	return newSeries(cols[1], cols[0].Rename("")), nil
}

func seriesHead(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(name, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	if n < 0 {
		n += s.Len()
	}
	return s.take(positions(0, min(max(n, 0), s.Len()))), nil
}

func seriesTail(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(name, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	if n < 0 {
		n += s.Len()
	}
	n = min(max(n, 0), s.Len())
	return s.take(positions(s.Len()-n, s.Len())), nil
}

func positions(from, to int) []int {
	out := make([]int, 0, max(to-from, 0))
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func seriesSortValues(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ascending := true
	if err := starlark.UnpackArgs(name, args, kwargs, "ascending?", &ascending); err != nil {
		return nil, err
	}
	return s.take(s.col.Order(ascending)), nil
}

func seriesToList(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return s.list(), nil
}

func seriesIsNull(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return s.withValues(s.mask(s.col.IsNull)), nil
}

func seriesNotNull(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	return s.withValues(s.mask(func(i int) bool { return !s.col.IsNull(i) })), nil
}

func (s *Series) mask(pred func(i int) bool) *frame.Column {
	out := make([]bool, s.col.Len())
	for i := range out {
		out[i] = pred(i)
	}
	return frame.NewBoolColumn(s.col.Name(), out, nil)
}

func seriesIsIn(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Value
	if err := starlark.UnpackArgs(name, args, kwargs, "values", &values); err != nil {
		return nil, err
	}
	it := starlark.Iterate(values)
	if it == nil {
		return nil, fmt.Errorf("%s: got %s, want list", name, values.Type())
	}
	defer it.Done()
	var want []any
	var x starlark.Value
	for it.Next(&x) {
		cell, err := fromValue(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		want = append(want, cell)
	}
	return s.withValues(s.mask(func(i int) bool {
		v := s.col.Value(i)
		for _, w := range want {
			if sameCell(v, w) {
				return true
			}
		}
		return false
	})), nil
}

func seriesCompare(op string) func(*Series, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var other starlark.Value
		if err := starlark.UnpackArgs(name, args, kwargs, "other", &other); err != nil {
			return nil, err
		}
		rhs, err := operand(other, s.Len())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return s.withValues(s.mask(func(i int) bool {
			a, b := s.col.Value(i), rhs(i)
			if a == nil || b == nil {
				return op == "ne"
			}
			c, ok := compareCells(a, b)
			if !ok {
				return op == "ne"
			}
			switch op {
			case "gt":
				return c > 0
			case "ge":
				return c >= 0
			case "lt":
				return c < 0
			case "le":
				return c <= 0
			case "eq":
				return c == 0
			default:
				return c != 0
			}
		})), nil
	}
}

// operand turns a scalar or a same-length Series into a per-row accessor.
func operand(v starlark.Value, n int) (func(i int) any, error) {
	if o, ok := v.(*Series); ok {
		if o.Len() != n {
			return nil, fmt.Errorf("series lengths differ (%d vs %d)", n, o.Len())
		}
		return o.col.Value, nil
	}
	cell, err := fromValue(v)
	if err != nil {
		return nil, err
	}
	return func(int) any { return cell }, nil
}

func compareCells(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func seriesRound(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	digits := 0
	if err := starlark.UnpackArgs(name, args, kwargs, "decimals?", &digits); err != nil {
		return nil, err
	}
	if s.col.Kind() == frame.Int {
		return s, nil
	}
	scale := math.Pow(10, float64(digits))
	return s.mapFloat(func(f float64) float64 { return math.Round(f*scale) / scale })
}

func seriesAbs(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	if s.col.Kind() == frame.Int {
		vals := make([]any, s.Len())
		for i := range vals {
			if v, ok := s.col.Int(i); ok {
				vals[i] = max(v, -v)
			}
		}
		return s.withValues(frame.FromValues(s.col.Name(), vals)), nil
	}
	return s.mapFloat(math.Abs)
}

func (s *Series) mapFloat(fn func(float64) float64) (starlark.Value, error) {
	if !s.col.Numeric() {
		return nil, fmt.Errorf("operation requires a numeric Series, got %s", s.col.Dtype())
	}
	out := make([]float64, s.Len())
	null := make([]bool, s.Len())
	for i := range out {
		v, ok := s.col.Float(i)
		if !ok {
			out[i], null[i] = math.NaN(), true
			continue
		}
		out[i] = fn(v)
	}
	return s.withValues(frame.NewFloatColumn(s.col.Name(), out, null)), nil
}

func seriesIdx(maximum bool) func(*Series, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
			return nil, err
		}
		order := s.col.Order(!maximum)
		if len(order) == 0 || s.col.IsNull(order[0]) {
			return nil, fmt.Errorf("%s of an empty Series", name)
		}
		if s.index != nil {
			return toValue(s.index.Value(order[0])), nil
		}
		return starlark.MakeInt(order[0]), nil
	}
}

func seriesResetIndex(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var label starlark.Value = starlark.None
	if err := starlark.UnpackArgs(name, args, kwargs, "name?", &label); err != nil {
		return nil, err
	}
	col := s.col
	if n, err := optString(label); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	} else if n != "" {
		col = col.Rename(n)
	}
	out := &Series{col: col, index: s.index}
	if out.index == nil {
		idx := make([]int64, s.Len())
		for i := range idx {
			idx[i] = int64(i)
		}
		out.index = frame.NewIntColumn("index", idx, nil)
	}
	f, err := out.Frame()
	if err != nil {
		return nil, err
	}
	return newDataFrame(f), nil
}

func seriesToFrame(s *Series, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	f, err := s.Frame()
	if err != nil {
		return nil, err
	}
	return newDataFrame(f), nil
}

func seriesApply(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "func", &fn); err != nil {
		return nil, err
	}
	s := b.Receiver().(*Series)
	vals := make([]any, s.Len())
	for i := range vals {
		out, err := starlark.Call(thread, fn, starlark.Tuple{toValue(s.col.Value(i))}, nil)
		if err != nil {
			return nil, err
		}
		if vals[i], err = fromValue(out); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return s.withValues(frame.FromValues(s.col.Name(), vals)), nil
}

// Binary supports arithmetic with numbers or series and & | on boolean masks.
func (s *Series) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	rhs, err := operand(y, s.Len())
	if err != nil {
		return nil, nil
	}
	lhs := s.col.Value
	if side == starlark.Right {
		lhs, rhs = rhs, lhs
	}
	switch op {
	case syntax.AMP, syntax.PIPE:
		out := make([]bool, s.Len())
		for i := range out {
			a, aok := lhs(i).(bool)
			b, bok := rhs(i).(bool)
			if !aok || !bok {
				return nil, fmt.Errorf("%s requires boolean masks", op)
			}
			if op == syntax.AMP {
				out[i] = a && b
			} else {
				out[i] = a || b
			}
		}
		return s.withValues(frame.NewBoolColumn(s.col.Name(), out, nil)), nil
	case syntax.PLUS, syntax.MINUS, syntax.STAR, syntax.SLASH:
		return s.arith(op, lhs, rhs)
	}
	return nil, nil
}

func (s *Series) arith(op syntax.Token, lhs, rhs func(int) any) (starlark.Value, error) {
	if op == syntax.PLUS && s.col.Kind() == frame.String {
		vals := make([]any, s.Len())
		for i := range vals {
			a, aok := lhs(i).(string)
			b, bok := rhs(i).(string)
			if aok && bok {
				vals[i] = a + b
			}
		}
		return s.withValues(frame.FromValues(s.col.Name(), vals)), nil
	}
	vals := make([]any, s.Len())
	for i := range vals {
		a, aok := lhs(i).(int64)
		b, bok := rhs(i).(int64)
		if aok && bok && op != syntax.SLASH {
			switch op {
			case syntax.PLUS:
				vals[i] = a + b
			case syntax.MINUS:
				vals[i] = a - b
			default:
				vals[i] = a * b
			}
			continue
		}
		x, xok := numeric(lhs(i))
		y, yok := numeric(rhs(i))
		if !xok || !yok {
			continue
		}
		switch op {
		case syntax.PLUS:
			vals[i] = x + y
		case syntax.MINUS:
			vals[i] = x - y
		case syntax.STAR:
			vals[i] = x * y
		default:
			if y == 0 {
				vals[i] = math.Inf(int(math.Copysign(1, x)))
				if x == 0 {
					vals[i] = nil
				}
				continue
			}
			vals[i] = x / y
		}
	}
	return s.withValues(frame.FromValues(s.col.Name(), vals)), nil
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return number(v)
}

// Unary negates numbers with - and inverts masks with ~.
func (s *Series) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return s.arith(syntax.STAR, s.col.Value, func(int) any { return int64(-1) })
	case syntax.TILDE:
		if s.col.Kind() != frame.Bool {
			return nil, fmt.Errorf("~ requires a boolean mask")
		}
		return s.withValues(s.mask(func(i int) bool {
			b, _ := s.col.Value(i).(bool)
			return !b
		})), nil
	case syntax.PLUS:
		return s, nil
	}
	return nil, nil
}
