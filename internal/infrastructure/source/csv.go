package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvSource yields one header-keyed row per Next call. The header row is
// consumed at construction to assign field names.
type csvSource struct {
	rc     io.ReadCloser
	reader *csv.Reader
	header []string
	err    error
	row    int
}

func newCSVSource(r io.Reader) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	return &csvSource{rc: newReaderCloser(r), reader: reader, header: header}, nil
}

func (s *csvSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.err != nil {
		return Record{}, s.err
	}

	row, err := s.reader.Read()
	if err == io.EOF {
		s.err = io.EOF
		return Record{}, io.EOF
	}
	if err != nil {
		s.err = fmt.Errorf("read csv row %d: %w", s.row+1, err)
		return Record{}, s.err
	}
	s.row++

	fields := make(map[string]string, len(s.header))
	for i, name := range s.header {
		if i < len(row) {
			fields[name] = row[i]
		}
	}

	return Record{Fields: fields}, nil
}

func (s *csvSource) Close() error {
	return s.rc.Close()
}
