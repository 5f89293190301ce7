package agent

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom-cli/internal/ai"
	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/config"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/history"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
	"github.com/KaramelBytes/dataloom-cli/internal/sandbox"
)

const people = "ID,Nome,Idade,Cidade,Salario\n1,Ana,28,Recife,5000\n2,Bruno,35,Salvador,8000\n3,Carla,22,Recife,3500\n4,Daniel,45,Salvador,12000\n"

// scriptedRuntime replies with a fixed text or error and keeps every request.
type scriptedRuntime struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []ai.GenerateRequest
}

func (s *scriptedRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}}}, nil
}

func fence(code string) string { return "Here you go:\n```python\n" + code + "\n```\n" }

func newAgent(t *testing.T, rt ai.Runtime) *Agent {
	t.Helper()
	a, err := New(Options{
		APIKey:          "k",
		Model:           "gemini-1.5-flash",
		MaxOutputTokens: 2048,
		Dataset:         dataset.DefaultOptions(),
		Summary:         analysis.DefaultOptions(),
	}, rt, sandbox.New(sandbox.DefaultOptions()))
	require.NoError(t, err)
	return a
}

func loaded(t *testing.T, rt ai.Runtime) *Agent {
	t.Helper()
	a := newAgent(t, rt)
	_, err := a.Load("people.csv", []byte(people))
	require.NoError(t, err)
	return a
}

func TestNewRequiresAPIKey(t *testing.T) {
	exec := sandbox.New(sandbox.DefaultOptions())
	_, err := New(Options{}, &scriptedRuntime{}, exec)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Options{Provider: ai.ProviderOllama}, &scriptedRuntime{}, exec)
	assert.NoError(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	_, err := FromConfig(cfg, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.APIKey = "k"
	a, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ai.GeminiClient{}, a.runtime)
	assert.Equal(t, 100000, a.opt.Dataset.SamplingThresholdRows)

	cfg.LLM.Provider = "nope"
	_, err = FromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestAnswerWithoutDataset(t *testing.T) {
	rt := &scriptedRuntime{reply: fence("result = 1")}
	a := newAgent(t, rt)
	p := a.AnswerQuery(context.Background(), "anything")
	assert.Equal(t, result.Error{Message: "no data loaded"}, p)
	assert.Empty(t, rt.reqs, "model must not be called")
	assert.Equal(t, 0, a.Log().Len())

	_, err := a.PreAnalysis()
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestLoadAppendsRecord(t *testing.T) {
	a := loaded(t, &scriptedRuntime{})
	recs := a.Log().All()
	require.Len(t, recs, 1)
	assert.Equal(t, history.ActionLoad, recs[0].Action)
	assert.Equal(t, map[string]string{"filename": "people.csv", "rows": "4", "columns": "5", "sampled": "false"}, recs[0].Params)
	assert.Equal(t, result.Text{Content: "File 'people.csv' loaded (4 rows)."}, recs[0].Result)
}

func TestFailedLoadKeepsPreviousDataset(t *testing.T) {
	a := loaded(t, &scriptedRuntime{})
	_, err := a.Load("notes.txt", []byte("x"))
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
	require.NotNil(t, a.Dataset())
	assert.Equal(t, "people.csv", a.Dataset().Filename)
	assert.Equal(t, 1, a.Log().Len())
}

func TestPreAnalysis(t *testing.T) {
	a := loaded(t, &scriptedRuntime{})
	pa, err := a.PreAnalysis()
	require.NoError(t, err)
	assert.Equal(t, [2]int{4, 5}, pa.OriginalShape)
	assert.False(t, pa.IsSampled)
	assert.Nil(t, pa.SampledShape)
	assert.Equal(t, []string{"ID", "Idade", "Salario"}, pa.Numeric)
	assert.Equal(t, []string{"Nome", "Cidade"}, pa.Categorical)
	assert.Len(t, pa.Suggested, 3)
	assert.Equal(t, 5, pa.Schema.NumRows())

	recs := a.Log().All()
	require.Len(t, recs, 2)
	assert.Equal(t, history.ActionPreAnalysis, recs[1].Action)
	assert.Equal(t, result.KindTable, recs[1].Result.Kind())
}

func TestPreAnalysisReportsSample(t *testing.T) {
	a := newAgent(t, &scriptedRuntime{})
	a.opt.Dataset = dataset.Options{SamplingThresholdRows: 10, SamplingRows: 5}
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	_, err := a.Load("big.csv", []byte(b.String()))
	require.NoError(t, err)
	pa, err := a.PreAnalysis()
	require.NoError(t, err)
	assert.True(t, pa.IsSampled)
	require.NotNil(t, pa.SampledShape)
	assert.Equal(t, [2]int{5, 1}, *pa.SampledShape)
	assert.Equal(t, [2]int{20, 1}, pa.OriginalShape)
}

func TestAskRunsGeneratedCode(t *testing.T) {
	rt := &scriptedRuntime{reply: fence("result = df['Idade'].mean()")}
	a := loaded(t, rt)
	ans := a.Ask(context.Background(), "What is the mean age?")
	assert.Equal(t, result.Text{Content: "32.5"}, ans.Payload)
	assert.Equal(t, "result = df['Idade'].mean()", ans.Code)
	assert.Contains(t, ans.Prompt, "What is the mean age?")

	require.Len(t, rt.reqs, 1)
	req := rt.reqs[0]
	assert.Equal(t, "gemini-1.5-flash", req.Model)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Zero(t, req.Temperature)

	recs := a.Log().All()
	last := recs[len(recs)-1]
	assert.Equal(t, history.ActionAnswerQuery, last.Action)
	assert.Equal(t, map[string]string{"question": "What is the mean age?", "code": "result = df['Idade'].mean()"}, last.Params)
}

func TestAskPlotAndExecutionError(t *testing.T) {
	rt := &scriptedRuntime{reply: fence("fig = px.histogram(df, x='Idade')")}
	a := loaded(t, rt)
	assert.Equal(t, result.KindPlot, a.AnswerQuery(context.Background(), "hist").Kind())

	rt.reply = fence("fail('boom')")
	p := a.AnswerQuery(context.Background(), "explode")
	require.Equal(t, result.KindError, p.Kind())
	assert.Contains(t, p.(result.Error).Message, "boom")
}

func TestAskWithoutCodeReturnsRawText(t *testing.T) {
	rt := &scriptedRuntime{reply: "I cannot answer that with this data."}
	a := loaded(t, rt)
	ans := a.Ask(context.Background(), "who won the cup?")
	assert.Equal(t, result.Text{Content: "I cannot answer that with this data."}, ans.Payload)
	assert.Empty(t, ans.Code)
	last := a.Log().All()[a.Log().Len()-1]
	assert.Equal(t, "", last.Params["code"])
}

func TestAskModelFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unreachable", &ai.UnreachableError{Host: "example", Err: errors.New("dial tcp: refused")}, "could not be reached"},
		{"api", &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "bad key"}}, "the model returned an error"},
		{"other", context.DeadlineExceeded, "model call failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := loaded(t, &scriptedRuntime{err: tc.err})
			ans := a.Ask(context.Background(), "q")
			require.Equal(t, result.KindError, ans.Payload.Kind())
			assert.Contains(t, ans.Payload.(result.Error).Message, tc.want)
			assert.ErrorIs(t, ans.Err, tc.err)
			last := a.Log().All()[a.Log().Len()-1]
			assert.Equal(t, history.ActionAnswerQuery, last.Action)
			assert.Equal(t, "q", last.Params["question"])
		})
	}
}

func TestResetReturnsFreshSession(t *testing.T) {
	a := loaded(t, &scriptedRuntime{})
	fresh := a.Reset()
	assert.Nil(t, fresh.Dataset())
	assert.Nil(t, fresh.Summary())
	assert.Equal(t, 0, fresh.Log().Len())
	assert.NotNil(t, a.Dataset(), "reset must not mutate the old session")
	assert.Equal(t, 1, a.Log().Len())
}

func TestZipLoadReportsArchiveMember(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("exports/people.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(people))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	a := newAgent(t, &scriptedRuntime{})
	ds, err := a.Load("bundle.zip", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "File 'exports/people.csv' loaded (4 rows).", ds.Message())
	assert.Equal(t, "exports/people.csv", a.Log().All()[0].Params["filename"])

	pa, err := a.PreAnalysis()
	require.NoError(t, err)
	assert.Equal(t, "exports/people.csv", pa.Filename)
}
