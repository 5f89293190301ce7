package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/ai"
	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/sandbox"
)

const sales = "region,amount\nnorth,10\nsouth,20\nnorth,30\n"

type replyRuntime struct{ reply string }

func (r replyRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: r.reply}}}}, nil
}

func newTestServer(t *testing.T, maxSessions int, reply string) (*httptest.Server, *Store) {
	t.Helper()
	store := NewStore(maxSessions, func() (*agent.Agent, error) {
		return agent.New(agent.Options{
			APIKey:  "test",
			Model:   "m",
			Dataset: dataset.DefaultOptions(),
			Summary: analysis.DefaultOptions(),
		}, replyRuntime{reply: reply}, sandbox.New(sandbox.DefaultOptions()))
	})
	srv := httptest.NewServer(NewHandler(Dependencies{
		Store:          store,
		Info:           Info{AppTitle: "EDA Agent", Provider: "gemini", Model: "m"},
		MaxUploadBytes: 64 << 10,
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, contentType string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp, out
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%v", resp.StatusCode, body)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id in %v", body)
	}
	return id
}

func uploadRaw(t *testing.T, base, id, name, data string) (*http.Response, map[string]any) {
	t.Helper()
	return do(t, http.MethodPut, base+"/v1/sessions/"+id+"/dataset?filename="+name, "text/csv", []byte(data))
}

func TestSessionLifecycle(t *testing.T) {
	srv, store := newTestServer(t, 0, "```python\nresult = df['amount'].sum()\n```")
	id := createSession(t, srv.URL)

	resp, body := uploadRaw(t, srv.URL, id, "sales.csv", sales)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d body=%v", resp.StatusCode, body)
	}
	if body["message"] != "File 'sales.csv' loaded (3 rows)." {
		t.Fatalf("message = %v", body["message"])
	}
	pa := body["pre_analysis"].(map[string]any)
	if pa["is_sampled"] != false || len(pa["suggested_queries"].([]any)) != 2 {
		t.Fatalf("pre_analysis = %v", pa)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/ask", "application/json", []byte(`{"question":"total amount?"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ask status = %d body=%v", resp.StatusCode, body)
	}
	res := body["result"].(map[string]any)
	if res["type"] != "text" || res["content"] != "60" {
		t.Fatalf("result = %v", res)
	}
	if body["code"] != "result = df['amount'].sum()" {
		t.Fatalf("code = %v", body["code"])
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/sessions/"+id+"/log", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log status = %d", resp.StatusCode)
	}
	records := body["records"].([]any)
	if len(records) != 3 {
		t.Fatalf("want load, pre_analysis and answer_query records, got %d", len(records))
	}
	last := records[2].(map[string]any)
	if last["action"] != "answer_query" {
		t.Fatalf("last action = %v", last["action"])
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/sessions/"+id, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Fatalf("store still holds %d sessions", store.Len())
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/v1/sessions/"+id+"/log", "", nil)
	if resp.StatusCode != http.StatusNotFound || body["error_code"] != "session_not_found" {
		t.Fatalf("deleted session status = %d body=%v", resp.StatusCode, body)
	}
	if body["trace_id"] == "" {
		t.Fatalf("error body should carry trace_id: %v", body)
	}
}

func TestMultipartUpload(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	id := createSession(t, srv.URL)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile("file", "sales.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(sales))
	_ = mw.Close()

	resp, body := do(t, http.MethodPut, srv.URL+"/v1/sessions/"+id+"/dataset", mw.FormDataContentType(), buf.Bytes())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	if !strings.Contains(body["message"].(string), "sales.csv") {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestUploadErrors(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	id := createSession(t, srv.URL)

	cases := []struct {
		name string
		file string
		data string
		code int
		want string
	}{
		{"unsupported", "notes.txt", "hello", http.StatusBadRequest, "unsupported_format"},
		{"not a zip", "data.zip", "not a zip", http.StatusBadRequest, "decode_failed"},
		{"too large", "big.csv", strings.Repeat("a", 128<<10), http.StatusRequestEntityTooLarge, "file_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := uploadRaw(t, srv.URL, id, tc.file, tc.data)
			if resp.StatusCode != tc.code || body["error_code"] != tc.want {
				t.Fatalf("status = %d body=%v", resp.StatusCode, body)
			}
		})
	}

	resp, body := do(t, http.MethodPut, srv.URL+"/v1/sessions/"+id+"/dataset", "text/csv", []byte(sales))
	if resp.StatusCode != http.StatusBadRequest || body["error_code"] != "invalid_upload" {
		t.Fatalf("missing filename: status = %d body=%v", resp.StatusCode, body)
	}
}

func TestAskRequiresDatasetAndQuestion(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	id := createSession(t, srv.URL)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/ask", "application/json", []byte(`{"question":"hi"}`))
	if resp.StatusCode != http.StatusConflict || body["error_code"] != "no_dataset" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/v1/sessions/"+id+"/summary", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("summary status = %d body=%v", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/ask", "application/json", []byte(`{"question":"  "}`))
	if resp.StatusCode != http.StatusBadRequest || body["error_code"] != "invalid_question" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/ask", "application/json", []byte(`{`))
	if resp.StatusCode != http.StatusBadRequest || body["error_code"] != "invalid_json" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
}

func TestResetKeepsIDAndClearsState(t *testing.T) {
	srv, store := newTestServer(t, 0, "")
	id := createSession(t, srv.URL)
	uploadRaw(t, srv.URL, id, "sales.csv", sales)
	before, _ := store.Get(id)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/reset", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "reset" {
		t.Fatalf("reset status = %d body=%v", resp.StatusCode, body)
	}
	after, ok := store.Get(id)
	if !ok || after == before {
		t.Fatalf("reset should swap in a new agent under the same id")
	}
	if after.Dataset() != nil || after.Log().Len() != 0 {
		t.Fatalf("fresh session should be empty")
	}
	if before.Dataset() == nil {
		t.Fatalf("old agent must be left untouched")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	a := createSession(t, srv.URL)
	b := createSession(t, srv.URL)
	uploadRaw(t, srv.URL, a, "sales.csv", sales)

	_, body := do(t, http.MethodGet, srv.URL+"/v1/sessions/"+b+"/log", "", nil)
	if n := len(body["records"].([]any)); n != 0 {
		t.Fatalf("session b has %d records", n)
	}
	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/sessions/"+b+"/summary", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("session b should have no dataset, status = %d", resp.StatusCode)
	}
}

func TestSessionLimit(t *testing.T) {
	srv, _ := newTestServer(t, 1, "")
	createSession(t, srv.URL)
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusTooManyRequests || body["error_code"] != "too_many_sessions" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
}

func TestInfoAndUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	resp, body := do(t, http.MethodGet, srv.URL+"/v1/info", "", nil)
	if resp.StatusCode != http.StatusOK || body["app_title"] != "EDA Agent" || body["provider"] != "gemini" {
		t.Fatalf("info status = %d body=%v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Fatalf("expected trace header")
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound || body["error_code"] != "not_found" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
}

func TestLogExportJSONL(t *testing.T) {
	srv, _ := newTestServer(t, 0, "")
	id := createSession(t, srv.URL)
	uploadRaw(t, srv.URL, id, "sales.csv", sales)

	resp, err := http.Get(srv.URL + "/v1/sessions/" + id + "/log?format=jsonl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestInfinitePlotValuesStayEncodable(t *testing.T) {
	srv, _ := newTestServer(t, 0, "```python\nd = df.copy()\nd['r'] = df['amount'] / 0\nfig = px.bar(d, x='region', y='r')\n```")
	id := createSession(t, srv.URL)
	if resp, body := uploadRaw(t, srv.URL, id, "sales.csv", sales); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d body=%v", resp.StatusCode, body)
	}

	payload, _ := json.Marshal(map[string]string{"question": "ratio per region"})
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/ask", "application/json", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ask status = %d body=%v", resp.StatusCode, body)
	}
	res, _ := body["result"].(map[string]any)
	if res["type"] != "plot" {
		t.Fatalf("result = %v, want a plot", res)
	}
	fig, _ := res["content"].(map[string]any)
	data, _ := fig["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("traces = %v", fig["data"])
	}
	ys, _ := data[0].(map[string]any)["y"].([]any)
	for i, y := range ys {
		if y != nil {
			t.Fatalf("y[%d] = %v, want null", i, y)
		}
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/sessions/"+id+"/log", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log status = %d body=%v", resp.StatusCode, body)
	}
	if recs, _ := body["records"].([]any); len(recs) == 0 {
		t.Fatalf("log records missing: %v", body)
	}
}

func TestWriteJSONReportsEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Trace-ID", "t-1")
	writeJSON(rec, http.StatusOK, map[string]any{"bad": func() {}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("body is not JSON: %q", rec.Body.String())
	}
	if out["error_code"] != "encode_failed" || out["trace_id"] != "t-1" {
		t.Fatalf("body = %v", out)
	}
}
