// Package session holds the append-only record of one bench run.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoTechnician is returned when metadata is created without a
// technician name; every session must be attributable.
var ErrNoTechnician = errors.New("technician name is required")

// Entry is one timestamped line in the operations log.
type Entry struct {
	At   time.Time
	Text string
}

// Log is the ordered transcript of a run.  It is append-only: no entry
// is ever edited or removed, so the transcript can serve as an audit
// trail.  Exporters read it; they never write back.
type Log struct {
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a timestamped entry to the end of the log.
func (l *Log) Append(format string, args ...interface{}) {
	l.entries = append(l.entries, Entry{
		At:   time.Now(),
		Text: fmt.Sprintf(format, args...),
	})
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the log; mutating it does not touch the log.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Transcript renders the log in the operator console format,
// one "[HH:MM:SS] message" line per entry.
func (l *Log) Transcript() string {
	lines := make([]string, len(l.entries))
	for i, e := range l.entries {
		lines[i] = fmt.Sprintf("[%s] %s", e.At.Format("15:04:05"), e.Text)
	}
	return strings.Join(lines, "\n")
}

// Metadata identifies one technician-initiated run for export.
type Metadata struct {
	// ID is assigned at creation and never changes.
	ID string

	// Technician is required and non-empty.
	Technician string

	// ScopeAddr and SupplyAddr are the instrument addresses in use,
	// either may be empty.
	ScopeAddr  string
	SupplyAddr string

	// Recorded signal parameters.
	AmplitudeV  float64
	FrequencyHz float64
}

// NewMetadata creates metadata for a run.  The technician name must be
// non-empty after trimming whitespace.
func NewMetadata(technician string) (Metadata, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return Metadata{}, ErrNoTechnician
	}
	return Metadata{ID: uuid.New().String(), Technician: technician}, nil
}

// Banner is the session-start line written to the log.  The name is
// uppercased so "alice" and "ALICE" produce the same banner.
func (m Metadata) Banner() string {
	return fmt.Sprintf("--- SESSION STARTED: %s ---", strings.ToUpper(m.Technician))
}

// Addresses joins the instrument addresses in use for the export record.
func (m Metadata) Addresses() string {
	var addrs []string
	if m.ScopeAddr != "" {
		addrs = append(addrs, m.ScopeAddr)
	}
	if m.SupplyAddr != "" {
		addrs = append(addrs, m.SupplyAddr)
	}
	return strings.Join(addrs, "; ")
}
