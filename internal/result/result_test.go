package result

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/KaramelBytes/dataloom-cli/internal/chart"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

func TestPayloadJSONEnvelope(t *testing.T) {
	f, err := frame.New(frame.NewIntColumn("n", []int64{1, 2}, nil))
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	cases := []struct {
		p    Payload
		want string
	}{
		{Text{Content: "32.5"}, `{"type":"text","content":"32.5"}`},
		{Error{Message: "boom"}, `{"type":"error","content":"boom"}`},
		{Table{Frame: f}, `{"type":"table","content":{"columns":[{"name":"n","dtype":"int64"}],"rows":[[1],[2]]}}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.p)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.p.Kind(), err)
		}
		if string(raw) != tc.want {
			t.Fatalf("%s json = %s, want %s", tc.p.Kind(), raw, tc.want)
		}
	}
}

func TestPlotJSONCarriesFigure(t *testing.T) {
	raw, err := json.Marshal(Plot{Figure: &chart.Figure{Kind: "bar", Data: []chart.Trace{{Type: "bar"}}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(raw), `{"type":"plot","content":{"data":[{"type":"bar"}]`) {
		t.Fatalf("plot json = %s", raw)
	}
}

func TestSummary(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := Summary(Text{Content: long}); len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Fatalf("text summary = %q", got)
	}
	if got := Summary(Error{Message: "boom"}); got != "error: boom" {
		t.Fatalf("error summary = %q", got)
	}
	f, _ := frame.New(frame.NewIntColumn("n", []int64{1, 2}, nil))
	if got := Summary(Table{Frame: f}); got != "table 2x1" {
		t.Fatalf("table summary = %q", got)
	}
}
