package frame

import (
	"fmt"
	"math"
	"sort"
)

// Aggregations understood by Column.Agg and Groups.Agg.
var Aggregations = []string{"count", "sum", "mean", "median", "min", "max", "std", "nunique"}

// numbers returns the non-null numeric cells.
func (c *Column) numbers() []float64 {
	out := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of non-null cells.
func (c *Column) Count() int { return c.Len() - c.NullCount() }

// Moments returns mean and sample standard deviation using Welford's method.
// ok is false when the column has no numeric values.
func (c *Column) Moments() (mean, std float64, ok bool) {
	var n int
	var m2 float64
	for i := 0; i < c.Len(); i++ {
		x, good := c.Float(i)
		if !good {
			continue
		}
		n++
		d := x - mean
		mean += d / float64(n)
		m2 += d * (x - mean)
	}
	if n == 0 {
		return 0, 0, false
	}
	std = math.NaN()
	if n > 1 {
		std = math.Sqrt(m2 / float64(n-1))
	}
	return mean, std, true
}

// Quantile uses linear interpolation between closest ranks.
func (c *Column) Quantile(q float64) (float64, bool) {
	vals := c.numbers()
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	return quantile(vals, q), true
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Agg reduces the column to a single value: nil, int64, float64 or string.
func (c *Column) Agg(fn string) (any, error) {
	switch fn {
	case "count":
		return int64(c.Count()), nil
	case "nunique":
		return int64(c.Unique().Count()), nil
	case "min", "max":
		return c.extreme(fn == "max"), nil
	}
	if !c.Numeric() && c.kind != Bool {
		return nil, fmt.Errorf("cannot compute %s of non-numeric column %q", fn, c.name)
	}
	switch fn {
	case "sum":
		if c.kind == Int || c.kind == Bool {
			var s int64
			for i := 0; i < c.Len(); i++ {
				if v, ok := c.Float(i); ok {
					s += int64(v)
				}
			}
			return s, nil
		}
		var s float64
		for _, v := range c.numbers() {
			s += v
		}
		return s, nil
	case "mean":
		m, _, ok := c.Moments()
		if !ok {
			return nil, nil
		}
		return m, nil
	case "std":
		_, s, ok := c.Moments()
		if !ok || math.IsNaN(s) {
			return nil, nil
		}
		return s, nil
	case "median":
		q, ok := c.Quantile(0.5)
		if !ok {
			return nil, nil
		}
		return q, nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", fn)
}

func (c *Column) extreme(max bool) any {
	best := -1
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		if best < 0 || (max && c.less(best, i)) || (!max && c.less(i, best)) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return c.Value(best)
}

// Unique returns distinct non-null values in order of first appearance.
func (c *Column) Unique() *Column {
	seen := make(map[any]struct{})
	idx := make([]int, 0)
	for i := 0; i < c.Len(); i++ {
		k := c.key(i)
		if k == nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		idx = append(idx, i)
	}
	return c.Take(idx)
}

// ValueCounts returns distinct values and their frequencies, most frequent first.
func (c *Column) ValueCounts() (labels *Column, counts *Column) {
	pos := make(map[any]int)
	var first []int
	var n []int64
	for i := 0; i < c.Len(); i++ {
		k := c.key(i)
		if k == nil {
			continue
		}
		j, ok := pos[k]
		if !ok {
			j = len(first)
			pos[k] = j
			first = append(first, i)
			n = append(n, 0)
		}
		n[j]++
	}
	order := span(0, len(first))
	sort.SliceStable(order, func(a, b int) bool { return n[order[a]] > n[order[b]] })
	idx := make([]int, len(order))
	cnt := make([]int64, len(order))
	for j, o := range order {
		idx[j] = first[o]
		cnt[j] = n[o]
	}
	return c.Take(idx), NewIntColumn("count", cnt, nil)
}

// Describe summarizes numeric columns (count, mean, std, min, quartiles, max).
// A frame without numeric columns gets count, unique, top and freq instead.
func (f *Frame) Describe() *Frame {
	var numeric []*Column
	for _, c := range f.cols {
		if c.Numeric() {
			numeric = append(numeric, c)
		}
	}
	if len(numeric) == 0 {
		return f.describeObjects()
	}
	stats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	cols := []*Column{NewStringColumn("stat", stats, nil)}
	for _, c := range numeric {
		vals := c.numbers()
		sort.Float64s(vals)
		out := make([]float64, len(stats))
		null := make([]bool, len(stats))
		out[0] = float64(len(vals))
		if len(vals) == 0 {
			for i := 1; i < len(out); i++ {
				null[i] = true
				out[i] = math.NaN()
			}
		} else {
			mean, std, _ := c.Moments()
			out[1], out[2] = mean, std
			out[3] = vals[0]
			out[4] = quantile(vals, 0.25)
			out[5] = quantile(vals, 0.5)
			out[6] = quantile(vals, 0.75)
			out[7] = vals[len(vals)-1]
		}
		cols = append(cols, NewFloatColumn(c.Name(), out, null))
	}
	d, _ := New(cols...)
	return d
}

func (f *Frame) describeObjects() *Frame {
	stats := []string{"count", "unique", "top", "freq"}
	cols := []*Column{NewStringColumn("stat", stats, nil)}
	for _, c := range f.cols {
		labels, counts := c.ValueCounts()
		vals := []any{int64(c.Count()), int64(labels.Len()), nil, nil}
		if labels.Len() > 0 {
			vals[2] = labels.Format(0)
			vals[3], _ = counts.Int(0)
		}
		cols = append(cols, FromValues(c.Name(), vals))
	}
	d, _ := New(cols...)
	return d
}

// Corr returns the Pearson correlation matrix of the numeric columns using
// pairwise-complete observations.
func (f *Frame) Corr() *Frame {
	var numeric []*Column
	for _, c := range f.cols {
		if c.Numeric() {
			numeric = append(numeric, c)
		}
	}
	names := make([]string, len(numeric))
	for i, c := range numeric {
		names[i] = c.Name()
	}
	cols := []*Column{NewStringColumn("column", names, nil)}
	for _, a := range numeric {
		vals := make([]float64, len(numeric))
		for j, b := range numeric {
			vals[j] = pearson(a, b)
		}
		cols = append(cols, NewFloatColumn(a.Name(), vals, nil))
	}
	out, _ := New(cols...)
	return out
}

// pearson centers on the means before accumulating so large offsets, such
// as epoch timestamps, do not cancel out.
func pearson(a, b *Column) float64 {
	var xs, ys []float64
	for i := 0; i < a.Len(); i++ {
		x, okx := a.Float(i)
		y, oky := b.Float(i)
		if !okx || !oky {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	n := float64(len(xs))
	mx /= n
	my /= n
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	if a == b {
		return 1
	}
	return max(-1, min(1, sxy/math.Sqrt(sxx*syy)))
}

// Groups partitions a frame's rows by the distinct values of one column.
// Null keys are dropped and keys are sorted ascending.
type Groups struct {
	src  *Frame
	keys *Column
	rows [][]int
}

// GroupBy partitions rows by the named column.
func (f *Frame) GroupBy(name string) (*Groups, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	pos := make(map[any]int)
	var first []int
	var rows [][]int
	for i := 0; i < c.Len(); i++ {
		k := c.key(i)
		if k == nil {
			continue
		}
		j, ok := pos[k]
		if !ok {
			j = len(first)
			pos[k] = j
			first = append(first, i)
			rows = append(rows, nil)
		}
		rows[j] = append(rows[j], i)
	}
	order := span(0, len(first))
	sort.SliceStable(order, func(a, b int) bool { return c.less(first[order[a]], first[order[b]]) })
	g := &Groups{src: f, rows: make([][]int, len(order))}
	keyIdx := make([]int, len(order))
	for j, o := range order {
		keyIdx[j] = first[o]
		g.rows[j] = rows[o]
	}
	g.keys = c.Take(keyIdx)
	return g, nil
}

func (g *Groups) Keys() *Column { return g.keys }
func (g *Groups) Len() int      { return len(g.rows) }

// Size returns the row count of every group.
func (g *Groups) Size() *Column {
	out := make([]int64, len(g.rows))
	for i, r := range g.rows {
		out[i] = int64(len(r))
	}
	return NewIntColumn("size", out, nil)
}

// Agg reduces one column per group.
func (g *Groups) Agg(column, fn string) (*Column, error) {
	c, err := g.src.Column(column)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(g.rows))
	for i, r := range g.rows {
		v, err := c.Take(r).Agg(fn)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return FromValues(column, vals), nil
}
