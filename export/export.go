// Package export persists session records.  Exporters only read the
// session log; a failed export reports its cause and the in-memory
// transcript stays available for retry.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/converter-bench/benchtop/session"
)

// SheetName is the sheet session rows are appended to.
const SheetName = "Test History"

var header = []interface{}{
	"Timestamp", "Technician", "Address(es)", "Amplitude (V)", "Freq (Hz)", "Log Trace",
}

// Error wraps a failed export with the target it was for.
type Error struct {
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Path, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AppendWorkbook appends one session row to the master workbook at
// path, creating the workbook with a header row if it does not exist.
// Rows already in the workbook are never touched.
func AppendWorkbook(path string, meta session.Metadata, log *session.Log) error {
	f, fresh, err := openWorkbook(path)
	if err != nil {
		return &Error{Path: path, Cause: err}
	}
	defer f.Close()
	if fresh {
		if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
			return &Error{Path: path, Cause: err}
		}
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return &Error{Path: path, Cause: err}
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return &Error{Path: path, Cause: err}
	}
	technician := meta.Technician
	if technician == "" {
		technician = "Unknown"
	}
	row := []interface{}{
		time.Now().Format("2006-01-02 15:04:05"),
		technician,
		meta.Addresses(),
		meta.AmplitudeV,
		meta.FrequencyHz,
		log.Transcript(),
	}
	if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
		return &Error{Path: path, Cause: err}
	}
	if err := f.SaveAs(path); err != nil {
		// commonly the workbook is open in a spreadsheet program
		return &Error{Path: path, Cause: err}
	}
	return nil
}

func openWorkbook(path string) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
			f.Close()
			return nil, false, err
		}
		return f, true, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// WriteTranscript writes the session as a flat timestamped text file
// in dir and returns the path written.
func WriteTranscript(dir string, meta session.Metadata, log *session.Log) (string, error) {
	name := fmt.Sprintf("bench_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	body := fmt.Sprintf("Session: %s\nTechnician: %s\nAddress(es): %s\nAmplitude (V): %G\nFreq (Hz): %G\n\n%s\n",
		meta.ID, meta.Technician, meta.Addresses(), meta.AmplitudeV, meta.FrequencyHz, log.Transcript())
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", &Error{Path: path, Cause: err}
	}
	return path, nil
}
