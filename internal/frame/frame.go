// Package frame holds the in-memory table a session works against: an ordered
// set of typed, equal-length columns with a small pandas-flavoured API.
package frame

import (
	"errors"
	"fmt"
	"sort"
)

// ErrColumnNotFound is returned when a lookup names a column the frame lacks.
var ErrColumnNotFound = errors.New("column not found")

// Frame is immutable: every operation returns a new Frame.
type Frame struct {
	cols  []*Column
	nrows int
}

// New builds a frame from columns of equal length.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{cols: cols}
	for i, c := range cols {
		if i == 0 {
			f.nrows = c.Len()
			continue
		}
		if c.Len() != f.nrows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), f.nrows)
		}
	}
	return f, nil
}

func (f *Frame) NumRows() int { return f.nrows }
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the frame's columns in order.
func (f *Frame) Columns() []*Column {
	out := make([]*Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Names returns column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name()
	}
	return out
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (*Column, error) {
	for _, c := range f.cols {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Select returns a frame restricted to the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return &Frame{cols: cols, nrows: f.nrows}, nil
}

// Take returns the rows at the given positions.
func (f *Frame) Take(idx []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.Take(idx)
	}
	return &Frame{cols: cols, nrows: len(idx)}
}

func (f *Frame) Head(n int) *Frame {
	if n < 0 {
		n = f.nrows + n
	}
	return f.Take(span(0, clamp(n, 0, f.nrows)))
}

// Tail keeps the last n rows. A negative n drops the first |n| rows instead.
func (f *Frame) Tail(n int) *Frame {
	if n < 0 {
		n = f.nrows + n
	}
	n = clamp(n, 0, f.nrows)
	return f.Take(span(f.nrows-n, f.nrows))
}

// Filter keeps the rows whose mask entry is true.
func (f *Frame) Filter(mask []bool) (*Frame, error) {
	if len(mask) != f.nrows {
		return nil, fmt.Errorf("mask has %d entries, frame has %d rows", len(mask), f.nrows)
	}
	idx := make([]int, 0, f.nrows)
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return f.Take(idx), nil
}

// DropNA removes rows with a null in any column.
func (f *Frame) DropNA() *Frame {
	mask := make([]bool, f.nrows)
	for i := range mask {
		mask[i] = true
		for _, c := range f.cols {
			if c.IsNull(i) {
				mask[i] = false
				break
			}
		}
	}
	out, _ := f.Filter(mask)
	return out
}

// SortBy orders rows by one column. The sort is stable and nulls go last.
func (f *Frame) SortBy(name string, ascending bool) (*Frame, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	return f.Take(c.Order(ascending)), nil
}

// WithColumn appends or replaces a column of matching length.
func (f *Frame) WithColumn(c *Column) (*Frame, error) {
	if len(f.cols) > 0 && c.Len() != f.nrows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), f.nrows)
	}
	cols := make([]*Column, 0, len(f.cols)+1)
	replaced := false
	for _, existing := range f.cols {
		if existing.Name() == c.Name() {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, existing)
	}
	if !replaced {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Order returns row positions sorted by this column's values.
func (c *Column) Order(ascending bool) []int {
	idx := span(0, c.Len())
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		ni, nj := c.IsNull(i), c.IsNull(j)
		if ni || nj {
			return !ni && nj
		}
		if ascending {
			return c.less(i, j)
		}
		return c.less(j, i)
	})
	return idx
}

func (c *Column) less(i, j int) bool {
	switch c.kind {
	case String:
		return c.strs[i] < c.strs[j]
	default:
		a, _ := c.Float(i)
		b, _ := c.Float(j)
		return a < b
	}
}

func span(from, to int) []int {
	if to < from {
		to = from
	}
	out := make([]int, to-from)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
