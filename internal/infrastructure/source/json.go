package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// jsonSource decodes a top-level JSON array one element at a time. The
// decoder holds only the current element in memory, so arbitrarily large
// exports stream in constant space.
type jsonSource struct {
	rc      io.ReadCloser
	dec     *json.Decoder
	err     error
	yielded int
}

func newJSONSource(r io.Reader) (*jsonSource, error) {
	dec := json.NewDecoder(r)

	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read json start token: %w", err)
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != '[' {
		return nil, errors.New("source payload must be a JSON array")
	}

	return &jsonSource{rc: newReaderCloser(r), dec: dec}, nil
}

func (s *jsonSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.err != nil {
		return Record{}, s.err
	}

	if !s.dec.More() {
		if _, err := s.dec.Token(); err != nil {
			s.err = fmt.Errorf("read json end token: %w", err)
			return Record{}, s.err
		}
		s.err = io.EOF
		return Record{}, io.EOF
	}

	var raw json.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		s.err = fmt.Errorf("decode element at index %d: %w", s.yielded, err)
		return Record{}, s.err
	}
	s.yielded++

	return Record{Object: raw}, nil
}

func (s *jsonSource) Close() error {
	return s.rc.Close()
}
