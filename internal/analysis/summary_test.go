package analysis

import (
	"reflect"
	"strings"
	"testing"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

const people = "ID,Nome,Idade,Cidade,Salario\n1,Ana,28,Recife,5000\n2,Bruno,35,Salvador,8000\n3,Carla,22,Recife,3500\n4,Daniel,45,Salvador,12000\n"

func load(t *testing.T, s string) *frame.Frame {
	t.Helper()
	f, err := frame.ReadCSV(strings.NewReader(s), frame.CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	return f
}

func TestSummarizePartitionsColumns(t *testing.T) {
	s := Summarize(load(t, people), DefaultOptions())
	if len(s.Columns) != 5 {
		t.Fatalf("schema entries = %d, want 5", len(s.Columns))
	}
	if !reflect.DeepEqual(s.Numeric, []string{"ID", "Idade", "Salario"}) {
		t.Fatalf("numeric = %v", s.Numeric)
	}
	if !reflect.DeepEqual(s.Categorical, []string{"Nome", "Cidade"}) {
		t.Fatalf("categorical = %v", s.Categorical)
	}
	if s.Columns[2].Mean != 32.5 || s.Columns[2].Min != 22 || s.Columns[2].Max != 45 {
		t.Fatalf("Idade stats = %+v", s.Columns[2])
	}
	if len(s.Columns[3].TopValues) != 2 || s.Columns[3].TopValues[0].Count != 2 {
		t.Fatalf("Cidade top = %+v", s.Columns[3].TopValues)
	}
}

func TestSummarizeSuggestions(t *testing.T) {
	s := Summarize(load(t, people), Options{NumSuggestedQueries: 5})
	if len(s.Suggested) > 5 || len(s.Suggested) != 3 {
		t.Fatalf("suggested = %v", s.Suggested)
	}
	if !strings.Contains(s.Suggested[0], "'ID'") {
		t.Fatalf("first suggestion should reference ID: %q", s.Suggested[0])
	}
	if !strings.Contains(s.Suggested[1], "'Nome'") {
		t.Fatalf("second suggestion should reference Nome: %q", s.Suggested[1])
	}
}

func TestSuggestQuestionsTruncates(t *testing.T) {
	got := SuggestQuestions([]string{"a", "b"}, []string{"c"}, 2)
	if len(got) != 2 || strings.Contains(got[1], "correlation") {
		t.Fatalf("got %v", got)
	}
	if got := SuggestQuestions(nil, []string{"c"}, 5); len(got) != 1 || !strings.Contains(got[0], "'c'") {
		t.Fatalf("categorical only: %v", got)
	}
	if got := SuggestQuestions([]string{"a"}, nil, 0); len(got) != 0 {
		t.Fatalf("max 0: %v", got)
	}
}

func TestNullPercentRoundsToTwoDecimals(t *testing.T) {
	s := Summarize(load(t, "a,b\n1,\n2,x\n3,y\n"), DefaultOptions())
	if s.Columns[1].NullPct != 33.33 {
		t.Fatalf("null pct = %v", s.Columns[1].NullPct)
	}
	if s.Columns[0].NullPct != 0 {
		t.Fatalf("null pct a = %v", s.Columns[0].NullPct)
	}
}

func TestSchemaFrameAndMarkdown(t *testing.T) {
	s := Summarize(load(t, people), DefaultOptions())
	sf := s.SchemaFrame()
	if sf.NumRows() != 5 || sf.NumCols() != 3 {
		t.Fatalf("schema frame shape = (%d, %d)", sf.NumRows(), sf.NumCols())
	}
	md := s.Markdown("people.csv")
	for _, want := range []string{"[DATASET SUMMARY]", "File: people.csv", "- Idade: int64", "[CORRELATIONS]", "[SUGGESTED QUESTIONS]"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}
