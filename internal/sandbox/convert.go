package sandbox

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// toValue converts a cell or aggregate (nil, int64, float64, bool, string)
// into a Starlark value.
func toValue(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(x)
	case int:
		return starlark.MakeInt(x)
	case float64:
		if math.IsNaN(x) {
			return starlark.None
		}
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

// fromValue converts a scalar Starlark value into a frame cell.
func fromValue(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		f, _ := starlark.AsFloat(x)
		return f, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.String:
		return string(x), nil
	}
	return nil, fmt.Errorf("unsupported cell value of type %s", v.Type())
}

// listColumn builds a column from any iterable of scalars.
func listColumn(name string, v starlark.Value) (*frame.Column, error) {
	if s, ok := v.(*Series); ok {
		return s.col.Rename(name), nil
	}
	it := starlark.Iterate(v)
	if it == nil {
		return nil, fmt.Errorf("column %q: got %s, want list", name, v.Type())
	}
	defer it.Done()
	var vals []any
	var x starlark.Value
	for it.Next(&x) {
		cell, err := fromValue(x)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		vals = append(vals, cell)
	}
	return frame.FromValues(name, vals), nil
}

// stringList unpacks a string or a list of strings.
func stringList(v starlark.Value) ([]string, error) {
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	it := starlark.Iterate(v)
	if it == nil {
		return nil, fmt.Errorf("got %s, want string or list of strings", v.Type())
	}
	defer it.Done()
	var out []string
	var x starlark.Value
	for it.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("got %s in list, want string", x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// optString reads a keyword value that may be None.
func optString(v starlark.Value) (string, error) {
	if v == nil || v == starlark.None {
		return "", nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("got %s, want string", v.Type())
	}
	return s, nil
}

// sqlCell normalizes a value scanned from DuckDB into a frame cell.
func sqlCell(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int64:
		return x
	case []byte:
		return string(x)
	case int8, int16, int32, uint8, uint16, uint32, int:
		return x
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case interface{ Float64() float64 }:
		return x.Float64()
	default:
		return fmt.Sprint(x)
	}
}
