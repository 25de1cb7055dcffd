package export_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/converter-bench/benchtop/export"
	"github.com/converter-bench/benchtop/session"
)

func testSession(t *testing.T, technician string) (session.Metadata, *session.Log) {
	t.Helper()
	meta, err := session.NewMetadata(technician)
	require.NoError(t, err)
	meta.ScopeAddr = "192.168.1.5:5555"
	meta.AmplitudeV = 5
	meta.FrequencyHz = 50e3
	log := session.NewLog()
	log.Append("%s", meta.Banner())
	log.Append("--- SEQUENCE COMPLETE ---")
	return meta, log
}

func TestAppendWorkbookCreatesWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.xlsx")
	meta, log := testSession(t, "ada")

	require.NoError(t, export.AppendWorkbook(path, meta, log))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Timestamp", rows[0][0])
	assert.Equal(t, "Technician", rows[0][1])
	assert.Equal(t, "ada", rows[1][1])
	assert.Contains(t, rows[1][5], "SEQUENCE COMPLETE")
}

func TestAppendWorkbookPreservesPriorRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.xlsx")

	first, firstLog := testSession(t, "ada")
	require.NoError(t, export.AppendWorkbook(path, first, firstLog))

	second, secondLog := testSession(t, "grace")
	require.NoError(t, export.AppendWorkbook(path, second, secondLog))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus exactly one row per session")
	assert.Equal(t, "ada", rows[1][1])
	assert.Equal(t, "grace", rows[2][1])
}

func TestAppendWorkbookUnknownTechnician(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.xlsx")
	log := session.NewLog()
	log.Append("exported before any run")

	require.NoError(t, export.AppendWorkbook(path, session.Metadata{}, log))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Unknown", rows[1][1])
}

func TestAppendWorkbookFailureKeepsTheLog(t *testing.T) {
	meta, log := testSession(t, "ada")
	before := log.Len()

	err := export.AppendWorkbook(filepath.Join(t.TempDir(), "no", "such", "dir", "m.xlsx"), meta, log)
	require.Error(t, err)

	var xerr *export.Error
	assert.ErrorAs(t, err, &xerr)
	assert.Equal(t, before, log.Len(), "a failed export must not touch the log")
}

func TestWriteTranscript(t *testing.T) {
	dir := t.TempDir()
	meta, log := testSession(t, "ada")

	path, err := export.WriteTranscript(dir, meta, log)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "bench_"))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Technician: ada")
	assert.Contains(t, string(body), "SESSION STARTED: ADA")
	assert.Contains(t, string(body), "SEQUENCE COMPLETE")
}

func TestWriteTranscriptFailure(t *testing.T) {
	meta, log := testSession(t, "ada")
	_, err := export.WriteTranscript(filepath.Join(t.TempDir(), "missing"), meta, log)
	require.Error(t, err)
	var xerr *export.Error
	assert.ErrorAs(t, err, &xerr)
}
