package frame

import (
	"math"
	"strings"
	"testing"
)

const people = "ID,Nome,Idade,Cidade,Salario\n1,Ana,28,Recife,5000\n2,Bruno,35,Salvador,8000\n3,Carla,22,Recife,3500\n4,Daniel,45,Salvador,12000\n"

func mustRead(t *testing.T, s string) *Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(s), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	return f
}

func TestReadCSVInfersKinds(t *testing.T) {
	f := mustRead(t, "a,b,c,d,e\n1,1.5,x,true,\n2,,y,False,\n")
	want := map[string]string{"a": "int64", "b": "float64", "c": "object", "d": "bool", "e": "float64"}
	for name, dtype := range want {
		c, err := f.Column(name)
		if err != nil {
			t.Fatalf("Column(%s): %v", name, err)
		}
		if c.Dtype() != dtype {
			t.Fatalf("%s dtype = %s, want %s", name, c.Dtype(), dtype)
		}
	}
	b, _ := f.Column("b")
	if !b.IsNull(1) || b.NullCount() != 1 {
		t.Fatalf("expected one null in b")
	}
}

func TestReadCSVNullableIntBecomesFloat(t *testing.T) {
	f := mustRead(t, "n\n1\nNA\n3\n")
	c, _ := f.Column("n")
	if c.Kind() != Float {
		t.Fatalf("kind = %v, want Float", c.Kind())
	}
}

func TestReadCSVSniffsSemicolon(t *testing.T) {
	f := mustRead(t, "a;b\n1;2\n")
	if f.NumCols() != 2 {
		t.Fatalf("cols = %d", f.NumCols())
	}
}

func TestReadCSVRejectsLongRows(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"), CSVOptions{}); err == nil {
		t.Fatalf("expected error for extra field")
	}
}

func TestReadCSVDuplicateHeaders(t *testing.T) {
	f := mustRead(t, "x,x,\n1,2,3\n")
	got := strings.Join(f.Names(), "|")
	if got != "x|x.1|Unnamed: 2" {
		t.Fatalf("names = %s", got)
	}
}

func TestColumnAggregations(t *testing.T) {
	f := mustRead(t, people)
	idade, _ := f.Column("Idade")
	mean, err := idade.Agg("mean")
	if err != nil || mean.(float64) != 32.5 {
		t.Fatalf("mean = %v, %v", mean, err)
	}
	sum, _ := idade.Agg("sum")
	if sum.(int64) != 130 {
		t.Fatalf("sum = %v", sum)
	}
	max, _ := idade.Agg("max")
	if max.(int64) != 45 {
		t.Fatalf("max = %v", max)
	}
	med, _ := idade.Agg("median")
	if med.(float64) != 31.5 {
		t.Fatalf("median = %v", med)
	}
	nome, _ := f.Column("Nome")
	if _, err := nome.Agg("mean"); err == nil {
		t.Fatalf("expected error for mean of strings")
	}
}

func TestValueCountsOrdersByFrequency(t *testing.T) {
	f := mustRead(t, "c\nb\na\nb\nb\na\nc\n")
	c, _ := f.Column("c")
	labels, counts := c.ValueCounts()
	if labels.Format(0) != "b" || counts.Format(0) != "3" {
		t.Fatalf("top = %s(%s)", labels.Format(0), counts.Format(0))
	}
	if labels.Len() != 3 {
		t.Fatalf("distinct = %d", labels.Len())
	}
}

func TestGroupByAgg(t *testing.T) {
	f := mustRead(t, people)
	g, err := f.GroupBy("Cidade")
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}
	if g.Keys().Format(0) != "Recife" || g.Keys().Format(1) != "Salvador" {
		t.Fatalf("keys not sorted: %v", g.Keys().Values())
	}
	avg, err := g.Agg("Salario", "mean")
	if err != nil {
		t.Fatalf("Agg: %v", err)
	}
	if v, _ := avg.Float(0); v != 4250 {
		t.Fatalf("Recife mean = %v", v)
	}
	if v, _ := g.Size().Int(1); v != 2 {
		t.Fatalf("Salvador size = %v", v)
	}
}

func TestFilterSortHead(t *testing.T) {
	f := mustRead(t, people)
	sorted, err := f.SortBy("Idade", false)
	if err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	top := sorted.Head(2)
	nome, _ := top.Column("Nome")
	if nome.Format(0) != "Daniel" || nome.Format(1) != "Bruno" {
		t.Fatalf("unexpected order: %v", nome.Values())
	}
	if _, err := f.Filter([]bool{true}); err == nil {
		t.Fatalf("expected mask length error")
	}
}

func TestHeadTailNegative(t *testing.T) {
	f := mustRead(t, people)
	cases := []struct {
		name  string
		got   *Frame
		first string
		rows  int
	}{
		{"tail 2", f.Tail(2), "Carla", 2},
		{"tail -1", f.Tail(-1), "Bruno", 3},
		{"tail -9", f.Tail(-9), "", 0},
		{"head -1", f.Head(-1), "Ana", 3},
	}
	for _, tc := range cases {
		if tc.got.NumRows() != tc.rows {
			t.Fatalf("%s: rows = %d, want %d", tc.name, tc.got.NumRows(), tc.rows)
		}
		if tc.rows == 0 {
			continue
		}
		nome, _ := tc.got.Column("Nome")
		if nome.Format(0) != tc.first {
			t.Fatalf("%s: first = %s, want %s", tc.name, nome.Format(0), tc.first)
		}
	}
}

func TestDescribeAndCorr(t *testing.T) {
	f := mustRead(t, people)
	d := f.Describe()
	if d.NumRows() != 8 || d.NumCols() != 4 {
		t.Fatalf("describe shape = (%d, %d)", d.NumRows(), d.NumCols())
	}
	c := f.Corr()
	id, _ := c.Column("ID")
	if v, _ := id.Float(0); math.Abs(v-1) > 1e-9 {
		t.Fatalf("corr(ID, ID) = %v", v)
	}
}

func TestCorrWithLargeOffsets(t *testing.T) {
	n := 50
	ts := make([]int64, n)
	ts2 := make([]int64, n)
	down := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = 1700000000000 + int64(i)
		ts2[i] = 1700000000000 + 2*int64(i)
		down[i] = 1e12 - float64(i)
	}
	f, err := New(NewIntColumn("ts", ts, nil), NewIntColumn("ts2", ts2, nil), NewFloatColumn("down", down, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	col, _ := f.Corr().Column("ts")
	want := []float64{1, 1, -1}
	for i, w := range want {
		v, ok := col.Float(i)
		if !ok || math.Abs(v-w) > 1e-9 {
			t.Fatalf("corr row %d = %v (ok=%v), want %v", i, v, ok, w)
		}
		if v < -1 || v > 1 {
			t.Fatalf("corr row %d = %v outside [-1, 1]", i, v)
		}
	}
	if v, _ := col.Float(0); v != 1 {
		t.Fatalf("diagonal = %v, want exactly 1", v)
	}
}

func TestStringAndInfo(t *testing.T) {
	f := mustRead(t, people)
	s := f.Head(2).String()
	if !strings.Contains(s, "Nome") || !strings.Contains(s, "Bruno") || strings.Contains(s, "Carla") {
		t.Fatalf("unexpected preview:\n%s", s)
	}
	info := f.Info()
	for _, want := range []string{"RangeIndex: 4 entries, 0 to 3", "Salario", "4 non-null", "dtypes: int64(3), object(2)"} {
		if !strings.Contains(info, want) {
			t.Fatalf("info missing %q:\n%s", want, info)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{32.5: "32.5", 3: "3.0", 1234567: "1234567.0", 1e16: "1e+16", 0.00001: "1e-05"}
	for in, want := range cases {
		if got := FormatFloat(in); got != want {
			t.Fatalf("FormatFloat(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestFromValuesWidens(t *testing.T) {
	c := FromValues("v", []any{int64(1), 2.5, nil})
	if c.Kind() != Float || !c.IsNull(2) {
		t.Fatalf("kind = %v", c.Kind())
	}
	s := FromValues("s", []any{int64(1), "x"})
	if s.Kind() != String || s.Format(0) != "1" {
		t.Fatalf("kind = %v value = %s", s.Kind(), s.Format(0))
	}
}
