// Package source reads identity export files as a lazy, single-pass sequence
// of records. It supports a CSV export with a header row and a single JSON
// document whose top level is an array of user objects; neither shape is ever
// materialized whole.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatAuto, "":
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported source format %q", raw)
	}
}

// Record is one raw element of the export: a header-keyed CSV row or a single
// decoded JSON array element. Exactly one of Fields and Object is set.
type Record struct {
	Fields map[string]string
	Object json.RawMessage
}

// Source yields records in file order. Next returns io.EOF after the last
// record; a decode error is sticky and applies to the first unconsumed
// position only, records already yielded stay valid. Sources are not
// restartable.
type Source interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Open opens path and picks a decoder for it. FormatAuto resolves by file
// extension. All failures here happen before the first record is yielded, so
// callers can treat them as fatal setup errors.
func Open(path string, format Format) (Source, error) {
	resolved := format
	if resolved == FormatAuto || resolved == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			resolved = FormatCSV
		case ".json":
			resolved = FormatJSON
		default:
			return nil, fmt.Errorf("cannot infer format from %q, pass one explicitly", path)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}

	switch resolved {
	case FormatCSV:
		src, err := newCSVSource(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return src, nil
	case FormatJSON:
		src, err := newJSONSource(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return src, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported source format %q", resolved)
	}
}

// used by tests to decode arbitrary readers.
func newReaderCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
