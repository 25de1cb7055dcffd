// Package scpi provides primitives for working with devices that
// speak SCPI over a pooled connection.
package scpi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/converter-bench/benchtop/comm"
)

const (
	timeout = 5 * time.Second

	// one ethernet frame; SCPI replies to queries fit in far less
	respBufSize = 1500
)

// SCPI encapsulates SCPI communication with one device.
type SCPI struct {
	Pool *comm.Pool

	// Handshaking appends an error query to every message so the
	// device confirms it accepted the input.
	Handshaking bool

	// Limiter, when non-nil, paces commands.  Bench instruments with
	// slow command parsers drop input when thrashed.
	Limiter *rate.Limiter
}

// Write sends a command to the device.  With Handshaking, the device's
// error queue is checked as part of the same exchange.  Intended for
// set operations.
func (s *SCPI) Write(cmds ...string) error {
	_, err := s.exchange(false, cmds)
	return err
}

// WriteRead sends a command and reads the response.  Intended for
// query ("?") operations.
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	return s.exchange(true, cmds)
}

func (s *SCPI) exchange(query bool, cmds []string) (resp []byte, err error) {
	if s.Limiter != nil {
		if err = s.Limiter.Wait(context.Background()); err != nil {
			return nil, err
		}
	}
	conn, err := s.Pool.Get()
	if err != nil {
		return nil, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return nil, err
	}
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	if _, err = io.WriteString(wrap, strings.Join(cmds, " ")); err != nil {
		return nil, err
	}
	if !query && !s.Handshaking {
		return nil, nil
	}
	buf := make([]byte, respBufSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return nil, err
	}
	resp = buf[:n]
	if !s.Handshaking {
		return resp, nil
	}
	// the error report rides after the last semicolon of the response
	pieces := bytes.Split(resp, []byte{';'})
	report := string(pieces[len(pieces)-1])
	if !errorQueueEmpty(report) {
		err = errors.New(strings.TrimSpace(report))
		return nil, err
	}
	return bytes.Join(pieces[:len(pieces)-1], []byte{';'}), nil
}

func errorQueueEmpty(report string) bool {
	return strings.HasPrefix(report, "+0") || strings.HasPrefix(report, "0,")
}

// ReadString sends a command and decodes the response as a string,
// trimming any trailing newline or carriage return.
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp), "\r\n"), nil
}

// ReadFloat sends a command and parses the response as a float.
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// ReadInt sends a command and parses the response as an integer.
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// ReadBool sends a command and parses the response as a boolean.
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(resp)
}

// Raw sends a command verbatim, returning the response if it was a
// query and a blank string otherwise.  Handshaking is suspended for
// the exchange.
func (s *SCPI) Raw(cmd string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(cmd, "?") {
		return s.ReadString(cmd)
	}
	return "", s.Write(cmd)
}

// PopError pops a single error from the device's queue, returning nil
// when the queue is empty.
func (s *SCPI) PopError() error {
	resp, err := s.ReadString("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if errorQueueEmpty(resp) {
		return nil
	}
	return errors.New(resp)
}

// AllErrors drains the device's error queue.
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			return errs
		}
		errs = append(errs, err)
	}
}

// Identification asks the device who it is (*IDN?).
func (s *SCPI) Identification() (string, error) {
	return s.ReadString("*IDN?")
}

// FormatFloat renders a float the way SCPI devices expect numeric
// arguments.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64)
}
