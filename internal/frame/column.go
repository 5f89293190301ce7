package frame

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the inferred storage type of a column.
type Kind int

const (
	Int Kind = iota
	Float
	Bool
	String
)

// Dtype returns the stable type label used in schema summaries.
func (k Kind) Dtype() string {
	switch k {
	case Int:
		return "int64"
	case Float:
		return "float64"
	case Bool:
		return "bool"
	default:
		return "object"
	}
}

// Numeric reports whether values of this kind take part in numeric statistics.
func (k Kind) Numeric() bool { return k == Int || k == Float }

// Column is an immutable, named, typed vector with a null mask.
// Only the slice matching Kind is populated.
type Column struct {
	name   string
	kind   Kind
	ints   []int64
	floats []float64
	bools  []bool
	strs   []string
	null   []bool
}

func NewIntColumn(name string, vals []int64, null []bool) *Column {
	return &Column{name: name, kind: Int, ints: vals, null: normNull(null, len(vals))}
}

func NewFloatColumn(name string, vals []float64, null []bool) *Column {
	return &Column{name: name, kind: Float, floats: vals, null: normNull(null, len(vals))}
}

func NewBoolColumn(name string, vals []bool, null []bool) *Column {
	return &Column{name: name, kind: Bool, bools: vals, null: normNull(null, len(vals))}
}

func NewStringColumn(name string, vals []string, null []bool) *Column {
	return &Column{name: name, kind: String, strs: vals, null: normNull(null, len(vals))}
}

func normNull(null []bool, n int) []bool {
	if len(null) != n {
		return nil
	}
	for _, b := range null {
		if b {
			return null
		}
	}
	return nil
}

// FromValues builds a column from loosely typed Go values, inferring the
// narrowest kind that holds them all. nil entries are nulls.
func FromValues(name string, vals []any) *Column {
	kind := Int
	seen := false
	for _, v := range vals {
		if v == nil {
			continue
		}
		k := kindOf(v)
		if !seen {
			kind, seen = k, true
			continue
		}
		kind = widen(kind, k)
	}
	null := make([]bool, len(vals))
	hasNull := false
	for i, v := range vals {
		if v == nil {
			null[i], hasNull = true, true
		}
	}
	// Nullable ints become floats, matching how the CSV reader promotes them.
	if kind == Int && hasNull {
		kind = Float
	}
	switch kind {
	case Int:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i], _ = toInt64(v)
		}
		return NewIntColumn(name, out, null)
	case Float:
		out := make([]float64, len(vals))
		for i, v := range vals {
			if v == nil {
				out[i] = math.NaN()
				continue
			}
			out[i], _ = toFloat64(v)
		}
		return NewFloatColumn(name, out, null)
	case Bool:
		out := make([]bool, len(vals))
		for i, v := range vals {
			out[i], _ = v.(bool)
		}
		return NewBoolColumn(name, out, null)
	default:
		out := make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				out[i] = s
			} else {
				out[i] = fmt.Sprint(v)
			}
		}
		return NewStringColumn(name, out, null)
	}
}

func kindOf(v any) Kind {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return Int
	case float32, float64:
		return Float
	case bool:
		return Bool
	default:
		return String
	}
}

func widen(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a.Numeric() && b.Numeric() {
		return Float
	}
	return String
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func (c *Column) Name() string  { return c.name }
func (c *Column) Kind() Kind     { return c.kind }
func (c *Column) Dtype() string  { return c.kind.Dtype() }
func (c *Column) Numeric() bool  { return c.kind.Numeric() }
func (c *Column) HasNulls() bool { return c.null != nil }

// Len returns the number of cells.
func (c *Column) Len() int {
	switch c.kind {
	case Int:
		return len(c.ints)
	case Float:
		return len(c.floats)
	case Bool:
		return len(c.bools)
	default:
		return len(c.strs)
	}
}

// IsNull reports whether cell i is missing. NaN floats count as missing.
func (c *Column) IsNull(i int) bool {
	if c.null != nil && c.null[i] {
		return true
	}
	return c.kind == Float && math.IsNaN(c.floats[i])
}

// NullCount returns the number of missing cells.
func (c *Column) NullCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// Float returns cell i as a float64. Bools map to 0/1; strings and nulls are not numbers.
func (c *Column) Float(i int) (float64, bool) {
	if c.IsNull(i) {
		return 0, false
	}
	switch c.kind {
	case Int:
		return float64(c.ints[i]), true
	case Float:
		return c.floats[i], true
	case Bool:
		if c.bools[i] {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Int returns cell i of an Int column.
func (c *Column) Int(i int) (int64, bool) {
	if c.kind != Int || c.IsNull(i) {
		return 0, false
	}
	return c.ints[i], true
}

// Value returns cell i as nil, int64, float64, bool or string.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.kind {
	case Int:
		return c.ints[i]
	case Float:
		return c.floats[i]
	case Bool:
		return c.bools[i]
	default:
		return c.strs[i]
	}
}

// Format renders cell i the way a table preview shows it.
func (c *Column) Format(i int) string {
	if c.IsNull(i) {
		return "NaN"
	}
	switch c.kind {
	case Int:
		return strconv.FormatInt(c.ints[i], 10)
	case Float:
		return FormatFloat(c.floats[i])
	case Bool:
		if c.bools[i] {
			return "True"
		}
		return "False"
	default:
		return c.strs[i]
	}
}

// FormatFloat formats like Python's repr for floats: shortest round-trip
// form, always carrying a decimal point or exponent.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	var s string
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	for _, r := range s {
		if r == '.' || r == 'e' {
			return s
		}
	}
	return s + ".0"
}

// Rename returns a copy of the column under a new name.
func (c *Column) Rename(name string) *Column {
	cp := *c
	cp.name = name
	return &cp
}

// Take returns a new column holding the cells at the given positions.
func (c *Column) Take(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind}
	var null []bool
	if c.null != nil {
		null = make([]bool, len(idx))
		for j, i := range idx {
			null[j] = c.null[i]
		}
	}
	switch c.kind {
	case Int:
		out.ints = make([]int64, len(idx))
		for j, i := range idx {
			out.ints[j] = c.ints[i]
		}
	case Float:
		out.floats = make([]float64, len(idx))
		for j, i := range idx {
			out.floats[j] = c.floats[i]
		}
	case Bool:
		out.bools = make([]bool, len(idx))
		for j, i := range idx {
			out.bools[j] = c.bools[i]
		}
	default:
		out.strs = make([]string, len(idx))
		for j, i := range idx {
			out.strs[j] = c.strs[i]
		}
	}
	out.null = normNull(null, len(idx))
	return out
}

// Values returns every cell via Value.
func (c *Column) Values() []any {
	out := make([]any, c.Len())
	for i := range out {
		out[i] = c.Value(i)
	}
	return out
}

// key returns a comparable grouping key for cell i.
func (c *Column) key(i int) any {
	if c.IsNull(i) {
		return nil
	}
	return c.Value(i)
}
