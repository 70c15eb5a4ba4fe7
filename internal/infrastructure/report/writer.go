// Package report writes the per-record failure report. Failure details are
// only ever persisted here, not printed, so personal data stays off the
// terminal.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
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
		return "", fmt.Errorf("unsupported report format %q", raw)
	}
}

var csvHeader = []string{"record_number", "clerk_user_id", "email", "error_message", "timestamp"}

func WriteCSV(w io.Writer, failures []domain.Failure) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, f := range failures {
		row := []string{
			strconv.Itoa(f.RecordNumber),
			f.RemoteUserID,
			f.PrimaryEmail,
			f.ErrorMessage,
			f.Timestamp.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write report row %d: %w", f.RecordNumber, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

type jsonFailure struct {
	RecordNumber int    `json:"record_number"`
	ClerkUserID  string `json:"clerk_user_id,omitempty"`
	Email        string `json:"email,omitempty"`
	ErrorMessage string `json:"error_message"`
	Timestamp    string `json:"timestamp"`
}

func WriteJSON(w io.Writer, failures []domain.Failure) error {
	out := make([]jsonFailure, len(failures))
	for i, f := range failures {
		out[i] = jsonFailure{
			RecordNumber: f.RecordNumber,
			ClerkUserID:  f.RemoteUserID,
			Email:        f.PrimaryEmail,
			ErrorMessage: f.ErrorMessage,
			Timestamp:    f.Timestamp.Format(time.RFC3339),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteFile resolves the format (by extension for FormatAuto, defaulting to
// CSV) and writes the report to path.
func WriteFile(path string, format Format, failures []domain.Failure) error {
	resolved := format
	if resolved == FormatAuto || resolved == "" {
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			resolved = FormatJSON
		} else {
			resolved = FormatCSV
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	switch resolved {
	case FormatJSON:
		err = WriteJSON(file, failures)
	default:
		err = WriteCSV(file, failures)
	}
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
