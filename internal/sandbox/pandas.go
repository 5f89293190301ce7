package sandbox

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

const contextKey = "context"

// newTableModule builds the pd module. sql queries run against src.
func newTableModule(src *frame.Frame, sqlEnabled bool) *starlarkstruct.Module {
	members := starlark.StringDict{
		"DataFrame": starlark.NewBuiltin("DataFrame", pdDataFrame),
		"Series":    starlark.NewBuiltin("Series", pdSeries),
	}
	if sqlEnabled {
		members["sql"] = starlark.NewBuiltin("sql", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var query string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "query", &query); err != nil {
				return nil, err
			}
			ctx, _ := thread.Local(contextKey).(context.Context)
			if ctx == nil {
				ctx = context.Background()
			}
			f, err := Query(ctx, src, query)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			return newDataFrame(f), nil
		})
	}
	return &starlarkstruct.Module{Name: "pd", Members: members}
}

func pdDataFrame(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data?", &data); err != nil {
		return nil, err
	}
	if data == nil {
		f, _ := frame.New()
		return newDataFrame(f), nil
	}
	var cols []*frame.Column
	for _, item := range data.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s: column names must be strings, got %s", b.Name(), item[0].Type())
		}
		c, err := listColumn(name, item[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		cols = append(cols, c)
	}
	f, err := frame.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return newDataFrame(f), nil
}

func pdSeries(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	var name starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data, "name?", &name); err != nil {
		return nil, err
	}
	label, err := optString(name)
	if err != nil {
		return nil, fmt.Errorf("%s: name: %w", b.Name(), err)
	}
	c, err := listColumn(label, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return newSeries(c, nil), nil
}
