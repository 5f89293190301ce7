// Package agent is the per-session facade: it owns one dataset and one
// interaction log and runs the question pipeline against them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/KaramelBytes/dataloom-cli/internal/ai"
	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/codeblock"
	"github.com/KaramelBytes/dataloom-cli/internal/config"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"github.com/KaramelBytes/dataloom-cli/internal/history"
	"github.com/KaramelBytes/dataloom-cli/internal/observability"
	"github.com/KaramelBytes/dataloom-cli/internal/prompt"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
	"github.com/KaramelBytes/dataloom-cli/internal/sandbox"
)

var (
	ErrMissingAPIKey = errors.New("an API key is required (set api_key, GEMINI_API_KEY or --api-key)")
	ErrNoDataset     = errors.New("no data loaded")
)

// Executor runs generated code against a frame.
type Executor interface {
	Execute(ctx context.Context, code string, f *frame.Frame) result.Payload
}

// Options configures a session.
type Options struct {
	Provider        string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	// ModelTimeout bounds one model call; 0 leaves it to the caller's context.
	ModelTimeout  time.Duration
	Dataset       dataset.Options
	Summary       analysis.Options
	MaxLogEntries int
	Logger        *slog.Logger
}

// Agent is safe for concurrent use; calls on one session are serialized.
type Agent struct {
	mu       sync.Mutex
	opt      Options
	runtime  ai.Runtime
	executor Executor
	logger   *slog.Logger

	ds      *dataset.Dataset
	summary *analysis.Summary
	log     *history.Log
}

// New builds a session. It refuses to start without an API key unless the
// provider runs locally.
func New(opt Options, runtime ai.Runtime, executor Executor) (*Agent, error) {
	provider := opt.Provider
	if provider == "" {
		provider = ai.ProviderGemini
	}
	if ai.NeedsAPIKey(provider) && opt.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if runtime == nil || executor == nil {
		return nil, errors.New("agent: runtime and executor are required")
	}
	opt.Provider = provider
	logger := opt.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Agent{
		opt:      opt,
		runtime:  runtime,
		executor: executor,
		logger:   logger,
		log:      history.New(opt.MaxLogEntries),
	}, nil
}

// OptionsFromConfig maps the application configuration onto session options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Provider:        cfg.LLM.Provider,
		APIKey:          cfg.APIKey,
		Model:           cfg.LLM.ModelName,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		ModelTimeout:    time.Duration(cfg.LLM.HTTPTimeoutSec) * time.Second,
		Dataset: dataset.Options{
			MaxFileSizeMB:         cfg.FileLimits.MaxFileSizeMB,
			SamplingThresholdRows: cfg.FileLimits.SamplingThresholdRows,
			SamplingRows:          cfg.FileLimits.SamplingRows,
		},
		Summary: analysis.Options{
			NumSuggestedQueries: cfg.Analysis.NumSuggestedQueries,
			TopValues:           analysis.DefaultOptions().TopValues,
		},
		MaxLogEntries: cfg.Analysis.MaxLogEntries,
		Logger:        logger,
	}
}

// FromConfig wires the configured model runtime and a sandbox executor.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	rt, ok := ai.GetRuntime(cfg.LLM.Provider, ai.RuntimeConfig{
		HTTPTimeout: time.Duration(cfg.LLM.HTTPTimeoutSec) * time.Second,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.APIKey,
		Host:        cfg.LLM.OllamaHost,
	})
	if !ok {
		return nil, fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
	exec := sandbox.New(sandbox.Options{
		Timeout:    time.Duration(cfg.Execution.TimeoutSec) * time.Second,
		MaxSteps:   cfg.Execution.MaxSteps,
		DisableSQL: cfg.Execution.DisableSQL,
		Logger:     logger,
	})
	return New(OptionsFromConfig(cfg, logger), rt, exec)
}

// Reset returns a fresh session with the same wiring and nothing loaded.
func (a *Agent) Reset() *Agent {
	return &Agent{
		opt:      a.opt,
		runtime:  a.runtime,
		executor: a.executor,
		logger:   a.logger,
		log:      history.New(a.opt.MaxLogEntries),
	}
}

// Load decodes an upload and makes it the session's dataset. On failure the
// previous dataset stays in place and nothing is logged.
func (a *Agent) Load(filename string, raw []byte) (*dataset.Dataset, error) {
	ds, err := dataset.Load(filename, raw, a.opt.Dataset)
	if err != nil {
		a.logger.Warn("dataset load failed", slog.String("filename", filename), slog.Any("error", err))
		return nil, err
	}
	a.Use(ds)
	return ds, nil
}

// Use installs an already decoded dataset, replacing the current one and
// appending a load record.
func (a *Agent) Use(ds *dataset.Dataset) {
	summary := analysis.Summarize(ds.Frame, a.opt.Summary)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.ds, a.summary = ds, summary
	a.log.Append(history.ActionLoad, map[string]string{
		"filename": ds.Name(),
		"rows":     strconv.Itoa(ds.OriginalRows),
		"columns":  strconv.Itoa(ds.OriginalCols),
		"sampled":  strconv.FormatBool(ds.IsSampled),
	}, result.Text{Content: ds.Message()})
	observability.ObserveDatasetLoaded(ds.IsSampled)
	a.logger.Info("dataset loaded",
		slog.String("filename", ds.Name()),
		slog.String("entry", ds.Entry),
		slog.String("encoding", ds.Encoding),
		slog.Int("rows", ds.OriginalRows),
		slog.Int("columns", ds.OriginalCols),
		slog.Bool("sampled", ds.IsSampled),
	)
}

// PreAnalysis is the overview produced right after a load.
type PreAnalysis struct {
	Filename      string            `json:"filename"`
	OriginalShape [2]int            `json:"original_shape"`
	IsSampled     bool              `json:"is_sampled"`
	SampledShape  *[2]int           `json:"sampled_shape"`
	Schema        *frame.Frame      `json:"schema"`
	Numeric       []string          `json:"numeric_columns"`
	Categorical   []string          `json:"categorical_columns"`
	Suggested     []string          `json:"suggested_queries"`
	Summary       *analysis.Summary `json:"-"`
}

// PreAnalysis summarizes the loaded dataset and logs a pre_analysis record.
func (a *Agent) PreAnalysis() (*PreAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	s := a.summary
	pa := &PreAnalysis{
		Filename:      a.ds.Name(),
		OriginalShape: [2]int{a.ds.OriginalRows, a.ds.OriginalCols},
		IsSampled:     a.ds.IsSampled,
		Schema:        s.SchemaFrame(),
		Numeric:       s.Numeric,
		Categorical:   s.Categorical,
		Suggested:     s.Suggested,
		Summary:       s,
	}
	if a.ds.IsSampled {
		pa.SampledShape = &[2]int{a.ds.Rows(), a.ds.Frame.NumCols()}
	}
	a.log.Append(history.ActionPreAnalysis, map[string]string{"filename": a.ds.Name()}, result.Table{Frame: pa.Schema})
	return pa, nil
}

// Answer is the full trace of one question.
type Answer struct {
	Question string
	Prompt   string
	// Raw is the model's reply; empty when the model call failed.
	Raw     string
	Code    string
	Payload result.Payload
	// Err is the model failure behind an Error payload, if any.
	Err error
}

// AnswerQuery runs the pipeline and returns only the payload.
func (a *Agent) AnswerQuery(ctx context.Context, question string) result.Payload {
	return a.Ask(ctx, question).Payload
}

// Ask composes a prompt, calls the model, extracts and executes the code
// and logs one answer_query record. Failures come back as an Error payload.
func (a *Agent) Ask(ctx context.Context, question string) *Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	ans := &Answer{Question: question}
	if a.ds == nil {
		ans.Payload = result.Error{Message: ErrNoDataset.Error()}
		return ans
	}
	f := a.ds.Frame
	ans.Prompt = prompt.Compose(f, question)
	a.logger.Debug("prompt composed", slog.Int("tokens", prompt.EstimateTokens(ans.Prompt)))

	raw, err := a.generate(ctx, ans.Prompt)
	if err != nil {
		ans.Err = err
		ans.Payload = result.Error{Message: modelErrorMessage(err)}
		a.record(ans)
		return ans
	}
	ans.Raw = raw

	code, ok := codeblock.Extract(raw)
	if !ok {
		ans.Payload = result.Text{Content: raw}
		a.record(ans)
		return ans
	}
	ans.Code = code
	start := time.Now()
	ans.Payload = a.executor.Execute(ctx, code, f)
	observability.ObserveExecution(string(ans.Payload.Kind()), time.Since(start))
	a.record(ans)
	return ans
}

func (a *Agent) generate(ctx context.Context, p string) (string, error) {
	if a.opt.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opt.ModelTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := a.runtime.Generate(ctx, ai.GenerateRequest{
		Model:       a.opt.Model,
		Messages:    []ai.Message{{Role: "user", Content: p}},
		MaxTokens:   a.opt.MaxOutputTokens,
		Temperature: a.opt.Temperature,
	})
	observability.ObserveModelCall(a.opt.Provider, err, time.Since(start))
	if err != nil {
		a.logger.Warn("model call failed", slog.String("provider", a.opt.Provider), slog.Any("error", err))
		return "", err
	}
	a.logger.Debug("model replied",
		slog.String("request_id", resp.RequestID),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.Duration("latency", time.Since(start)),
	)
	return resp.Text(), nil
}

func modelErrorMessage(err error) string {
	switch {
	case errors.Is(err, ai.ErrModelUnavailable):
		return fmt.Sprintf("the model service could not be reached: %v", err)
	case errors.Is(err, ai.ErrModelError):
		return fmt.Sprintf("the model returned an error: %v", err)
	default:
		return fmt.Sprintf("model call failed: %v", err)
	}
}

func (a *Agent) record(ans *Answer) {
	a.log.Append(history.ActionAnswerQuery, map[string]string{
		"question": ans.Question,
		"code":     ans.Code,
	}, ans.Payload)
	observability.ObserveQuestion(string(ans.Payload.Kind()))
	a.logger.Info("question answered",
		slog.String("kind", string(ans.Payload.Kind())),
		slog.String("result", result.Summary(ans.Payload)),
	)
}

// Dataset returns the loaded dataset, or nil.
func (a *Agent) Dataset() *dataset.Dataset {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ds
}

// Summary returns the schema summary of the loaded dataset, or nil.
func (a *Agent) Summary() *analysis.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary
}

// Log exposes the session's interaction log for reading and export.
func (a *Agent) Log() *history.Log { return a.log }
