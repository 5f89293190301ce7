// Package sandbox runs model-generated analysis scripts against a dataset and
// classifies what they produce.
//
// Scripts are Starlark, a deterministic Python dialect with no I/O. The only
// bindings are df (the dataset), pd (table helpers, including SQL over df)
// and px (charts), on top of Starlark's pure builtins. Every run has a step
// budget and a wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"github.com/KaramelBytes/dataloom-cli/internal/observability"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
)

// Variable names scripts bind their answer to.
const (
	FigureVar = "fig"
	ResultVar = "result"
)

// NoResultMessage is returned when a script binds neither fig nor result.
const NoResultMessage = "The code ran but produced no visible result ('fig' or 'result')."

// Options bounds a script run.
type Options struct {
	// Timeout cancels the script after this long; 0 means no limit beyond ctx.
	Timeout time.Duration
	// MaxSteps caps interpreter steps; 0 means unlimited.
	MaxSteps uint64
	// DisableSQL removes pd.sql from the namespace.
	DisableSQL bool
	Logger     *slog.Logger
}

// DefaultOptions matches the default execution configuration.
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second, MaxSteps: 50_000_000}
}

// ExecError describes why a script failed.
type ExecError struct {
	Phase     string // "compile", "runtime", "timeout" or "classify"
	Msg       string
	Backtrace string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Phase, e.Msg)
}

// Executor runs scripts. It holds no per-run state and is safe for concurrent use.
type Executor struct {
	opt Options
	log *slog.Logger
}

// New returns an Executor with the given limits.
func New(opt Options) *Executor {
	log := opt.Logger
	if log == nil {
		log = observability.DiscardLogger()
	}
	return &Executor{opt: opt, log: log}
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Execute runs code against a snapshot of f. Failures of any kind come back
// as result.Error; Execute itself never panics or returns an error.
func (e *Executor) Execute(ctx context.Context, code string, f *frame.Frame) (payload result.Payload) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("script panicked", "panic", r)
			payload = result.Error{Message: (&ExecError{Phase: "runtime", Msg: fmt.Sprint(r)}).Error()}
		}
		e.log.Debug("script finished", "kind", payload.Kind(), "duration", time.Since(start))
	}()

	globals, err := e.run(ctx, code, f)
	if err != nil {
		var ee *ExecError
		if errors.As(err, &ee) && ee.Backtrace != "" {
			e.log.Debug("script failed", "backtrace", ee.Backtrace)
		}
		return result.Error{Message: err.Error()}
	}
	return Classify(globals)
}

func (e *Executor) run(ctx context.Context, code string, f *frame.Frame) (starlark.StringDict, error) {
	if e.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opt.Timeout)
		defer cancel()
	}
	thread := &starlark.Thread{
		Name: "query",
		Print: func(_ *starlark.Thread, msg string) {
			e.log.Debug("script print", "msg", msg)
		},
	}
	thread.SetLocal(contextKey, ctx)
	if e.opt.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(e.opt.MaxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	predeclared := starlark.StringDict{
		"df": newDataFrame(f),
		"pd": newTableModule(f, !e.opt.DisableSQL),
		"px": newPlotModule(),
	}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, "query.star", code, predeclared)
	if err == nil {
		return globals, nil
	}
	if ctx.Err() != nil {
		return nil, &ExecError{Phase: "timeout", Msg: fmt.Sprintf("script stopped: %v", context.Cause(ctx))}
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return nil, &ExecError{Phase: "runtime", Msg: evalErr.Msg, Backtrace: evalErr.Backtrace()}
	}
	return nil, &ExecError{Phase: "compile", Msg: err.Error()}
}

// Classify turns a finished script's globals into a payload: a bound fig wins,
// then result, then the no-result message.
func Classify(globals starlark.StringDict) result.Payload {
	if v, ok := globals[FigureVar]; ok && v != starlark.None {
		fig, ok := v.(*Figure)
		if !ok {
			return result.Error{Message: (&ExecError{Phase: "classify", Msg: fmt.Sprintf("'%s' must be a chart from px, got %s", FigureVar, v.Type())}).Error()}
		}
		return result.Plot{Figure: fig.Chart()}
	}
	v, ok := globals[ResultVar]
	if !ok {
		return result.Text{Content: NoResultMessage}
	}
	switch x := v.(type) {
	case *DataFrame:
		return result.Table{Frame: x.Frame()}
	case *Series:
		f, err := x.Frame()
		if err != nil {
			return result.Error{Message: err.Error()}
		}
		return result.Table{Frame: f}
	case starlark.String:
		return result.Text{Content: string(x)}
	case starlark.Float:
		return result.Text{Content: frame.FormatFloat(float64(x))}
	default:
		return result.Text{Content: v.String()}
	}
}
