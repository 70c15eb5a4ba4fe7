package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFailures() []domain.Failure {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Failure{
		{RecordNumber: 2, SourceID: "u_2", PrimaryEmail: "b@x.com", ErrorMessage: "could not find or create user", Timestamp: ts},
		{RecordNumber: 7, SourceID: "u_7", PrimaryEmail: "g@x.com", ErrorMessage: "invalid record: id: missing", Timestamp: ts},
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	t.Parallel()

	failures := sampleFailures()

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, failures))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(failures)+1)
	assert.Equal(t, []string{"record_number", "clerk_user_id", "email", "error_message", "timestamp"}, rows[0])

	for i, f := range failures {
		row := rows[i+1]
		num, err := strconv.Atoi(row[0])
		require.NoError(t, err)
		assert.Equal(t, f.RecordNumber, num)
		assert.Equal(t, f.ErrorMessage, row[3])

		parsed, err := time.Parse(time.RFC3339, row[4])
		require.NoError(t, err)
		assert.True(t, parsed.Equal(f.Timestamp))
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, sampleFailures()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, float64(2), decoded[0]["record_number"])
	assert.Equal(t, "b@x.com", decoded[0]["email"])
}

func TestWriteJSONEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteFileResolvesFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "failures.json")
	require.NoError(t, report.WriteFile(jsonPath, report.FormatAuto, sampleFailures()))
	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	csvPath := filepath.Join(dir, "failures.csv")
	require.NoError(t, report.WriteFile(csvPath, report.FormatAuto, sampleFailures()))
	raw, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := report.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, report.FormatJSON, f)

	_, err = report.ParseFormat("yaml")
	require.Error(t, err)
}
