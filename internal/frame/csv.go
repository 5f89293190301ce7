package frame

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrNoColumns is returned when the input has no header row.
var ErrNoColumns = errors.New("no columns to parse from file")

// CSVOptions controls delimited-text parsing.
type CSVOptions struct {
	// Delimiter for CSV. If 0, auto-detects among ',', ';', '\t' from the header line.
	Delimiter rune
}

// naTokens mirrors the markers pandas treats as missing by default.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

// ReadCSV parses delimited text with a header row and infers a kind per column.
func ReadCSV(r io.Reader, opt CSVOptions) (*Frame, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = sniffDelimiter(string(head))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoColumns
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := headerNames(header)
	ncol := len(names)
	cells := make([][]string, ncol)
	row := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if len(rec) > ncol {
			return nil, fmt.Errorf("row %d: expected %d fields, saw %d", row, ncol, len(rec))
		}
		for i := 0; i < ncol; i++ {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			cells[i] = append(cells[i], v)
		}
	}
	cols := make([]*Column, ncol)
	for i, name := range names {
		cols[i] = inferColumn(name, cells[i], row)
	}
	return New(cols...)
}

// sniffDelimiter picks the candidate that splits the first line into the most fields.
func sniffDelimiter(sample string) rune {
	line := sample
	if i := strings.IndexAny(sample, "\r\n"); i >= 0 {
		line = sample[:i]
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// headerNames fills blank names and suffixes duplicates (".1", ".2").
func headerNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int)
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

func isNA(s string) bool {
	_, ok := naTokens[strings.TrimSpace(s)]
	return ok
}

func inferColumn(name string, cells []string, n int) *Column {
	null := make([]bool, n)
	hasNull := false
	allInt, allFloat, allBool := true, true, true
	for i, s := range cells {
		if isNA(s) {
			null[i], hasNull = true, true
			continue
		}
		s = strings.TrimSpace(s)
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat && !allInt {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(s); !ok {
				allBool = false
			}
		}
	}
	if n > 0 && !hasNull && allBool {
		vals := make([]bool, n)
		for i, s := range cells {
			vals[i], _ = parseBool(strings.TrimSpace(s))
		}
		return NewBoolColumn(name, vals, nil)
	}
	switch {
	case allInt && !hasNull && n > 0:
		vals := make([]int64, n)
		for i, s := range cells {
			vals[i], _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		}
		return NewIntColumn(name, vals, nil)
	case (allInt || allFloat) && n > 0 && countTrue(null) < n:
		vals := make([]float64, n)
		for i, s := range cells {
			if null[i] {
				vals[i] = math.NaN()
				continue
			}
			vals[i], _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
		return NewFloatColumn(name, vals, null)
	}
	vals := make([]string, n)
	for i, s := range cells {
		if !null[i] {
			vals[i] = s
		}
	}
	// An all-missing column is float in pandas.
	if n > 0 && countTrue(null) == n {
		fl := make([]float64, n)
		for i := range fl {
			fl[i] = math.NaN()
		}
		return NewFloatColumn(name, fl, null)
	}
	return NewStringColumn(name, vals, null)
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}

func countTrue(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
