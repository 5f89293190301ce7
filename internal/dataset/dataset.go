// Package dataset turns an uploaded blob (a .csv file or a .zip holding one)
// into the in-memory frame a session analyzes, sampling large inputs.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"unicode/utf8"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrUnsupportedFormat      = errors.New("unsupported file format (use .csv or .zip)")
	ErrNoTabularFileInArchive = errors.New("no .csv file found in archive")
	ErrFileTooLarge           = errors.New("file exceeds the configured size limit")
)

// DecodeError reports an upload whose bytes could not be turned into a table.
type DecodeError struct {
	Filename string
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Encoding != "" {
		return fmt.Sprintf("decode %s (%s): %v", e.Filename, e.Encoding, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"

	// SampleSeed fixes the sampling RNG so the same input always yields the same rows.
	SampleSeed = 42
)

// Options controls load limits and sampling.
type Options struct {
	// MaxFileSizeMB rejects larger uploads (and archive members); 0 disables the check.
	MaxFileSizeMB int
	// SamplingThresholdRows triggers sampling when the table has more rows.
	SamplingThresholdRows int
	// SamplingRows is the sample size.
	SamplingRows int
	// Delimiter overrides CSV delimiter detection.
	Delimiter rune
}

// DefaultOptions mirrors the default file_limits configuration.
func DefaultOptions() Options {
	return Options{MaxFileSizeMB: 200, SamplingThresholdRows: 100000, SamplingRows: 50000}
}

// Dataset is a loaded table plus the facts about where it came from.
type Dataset struct {
	Filename     string
	Entry        string
	Encoding     string
	OriginalRows int
	OriginalCols int
	IsSampled    bool
	Frame        *frame.Frame
}

// Rows is the working row count (the sample size when sampled).
func (d *Dataset) Rows() int { return d.Frame.NumRows() }

// Name is the file the table was read from: the archive member for zips,
// the upload itself otherwise.
func (d *Dataset) Name() string {
	if d.Entry != "" {
		return d.Entry
	}
	return d.Filename
}

// Message is the human-readable load summary.
func (d *Dataset) Message() string {
	if d.IsSampled {
		return fmt.Sprintf("File '%s' loaded. Large dataset (%d rows), using a sample of %d rows.", d.Name(), d.OriginalRows, d.Rows())
	}
	return fmt.Sprintf("File '%s' loaded (%d rows).", d.Name(), d.OriginalRows)
}

// Load decodes raw upload bytes into a Dataset.
func Load(filename string, raw []byte, opt Options) (*Dataset, error) {
	limit := int64(opt.MaxFileSizeMB) * 1024 * 1024
	if limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d MB", ErrFileTooLarge, filename, len(raw), opt.MaxFileSizeMB)
	}
	format, ok := formatFor(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	entry, data, err := format.Extract(filename, raw, limit)
	if err != nil {
		return nil, err
	}
	text, enc, err := decodeText(data)
	if err != nil {
		return nil, &DecodeError{Filename: filename, Encoding: enc, Err: err}
	}
	f, err := frame.ReadCSV(bytes.NewReader(text), frame.CSVOptions{Delimiter: opt.Delimiter})
	if err != nil {
		return nil, &DecodeError{Filename: filename, Encoding: enc, Err: err}
	}
	ds := &Dataset{
		Filename:     filename,
		Entry:        entry,
		Encoding:     enc,
		OriginalRows: f.NumRows(),
		OriginalCols: f.NumCols(),
		Frame:        f,
	}
	if f.NumRows() > opt.SamplingThresholdRows && opt.SamplingRows > 0 && opt.SamplingRows < f.NumRows() {
		ds.Frame = f.Take(SampleIndices(f.NumRows(), opt.SamplingRows, SampleSeed))
		ds.IsSampled = true
	}
	return ds, nil
}

// decodeText returns UTF-8 bytes, falling back to ISO-8859-1 once when the
// input is not valid UTF-8. A leading BOM is dropped.
func decodeText(data []byte) ([]byte, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, EncodingLatin1, err
	}
	return out, EncodingLatin1, nil
}

// SampleIndices draws k distinct row positions out of n with a partial
// Fisher-Yates shuffle, deterministic for a given seed.
func SampleIndices(n, k int, seed uint64) []int {
	if k > n {
		k = n
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
