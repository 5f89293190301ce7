package dataset

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format recognizes an upload container and yields the raw tabular bytes inside it.
type Format interface {
	CanLoad(filename string) bool
	// Extract returns the name of the tabular member (filename itself for flat
	// files) and its bytes. limit caps decompressed size; 0 means no cap.
	Extract(filename string, raw []byte, limit int64) (string, []byte, error)
}

var registry []Format

// Register adds a container format to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

func formatFor(filename string) (Format, bool) {
	for _, f := range registry {
		if f.CanLoad(filename) {
			return f, true
		}
	}
	return nil, false
}

func init() {
	Register(csvFormat{})
	Register(zipFormat{})
}

const tabularSuffix = ".csv"

type csvFormat struct{}

func (csvFormat) CanLoad(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), tabularSuffix)
}

func (csvFormat) Extract(filename string, raw []byte, _ int64) (string, []byte, error) {
	return filename, raw, nil
}

type zipFormat struct{}

func (zipFormat) CanLoad(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".zip")
}

// Extract reads the first .csv member in directory order, entirely in memory.
// Member names are never used as filesystem paths.
func (zipFormat) Extract(filename string, raw []byte, limit int64) (string, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", nil, &DecodeError{Filename: filename, Err: fmt.Errorf("open zip: %w", err)}
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), tabularSuffix) {
			continue
		}
		data, err := readZipFile(f, limit)
		if errors.Is(err, ErrFileTooLarge) {
			return "", nil, fmt.Errorf("%w: %s inflates beyond %d bytes", ErrFileTooLarge, f.Name, limit)
		}
		if err != nil {
			return "", nil, &DecodeError{Filename: filename, Err: fmt.Errorf("read %s: %w", f.Name, err)}
		}
		return f.Name, data, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNoTabularFileInArchive, filename)
}

func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if limit <= 0 {
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}
