package comm

import (
	"bufio"
	"errors"
	"io"
	"time"
)

// ErrNoDeadlineSupport is returned by NewTimeout when the wrapped
// stream cannot carry deadlines (i.e., is not a net.Conn).
var ErrNoDeadlineSupport = errors.New("stream does not support deadlines")

type terminator struct {
	rw io.ReadWriter
	br *bufio.Reader
	rx byte
	tx byte
}

// NewTerminator wraps a stream in the instrument's framing: writes get
// the Tx terminator appended, reads consume through the Rx terminator
// and strip it.
func NewTerminator(rw io.ReadWriter, rx, tx byte) io.ReadWriter {
	return &terminator{rw: rw, br: bufio.NewReader(rw), rx: rx, tx: tx}
}

func (t *terminator) Write(p []byte) (int, error) {
	buf := make([]byte, len(p)+1)
	copy(buf, p)
	buf[len(p)] = t.tx
	n, err := t.rw.Write(buf)
	if n == len(buf) {
		n--
	}
	return n, err
}

func (t *terminator) Read(p []byte) (int, error) {
	buf, err := t.br.ReadBytes(t.rx)
	if err != nil {
		return copy(p, buf), err
	}
	buf = buf[:len(buf)-1] // strip terminator
	n := copy(p, buf)
	if n < len(buf) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

type timeoutRW struct {
	rw io.ReadWriter
	d  deadliner
	t  time.Duration
}

// NewTimeout wraps a stream so every read and write carries a fresh
// deadline.  The innermost stream must be a connection that supports
// deadlines; terminator wrappers are traversed to find it.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	inner := rw
	if t, ok := inner.(*terminator); ok {
		inner = t.rw
	}
	d, ok := inner.(deadliner)
	if !ok {
		return nil, ErrNoDeadlineSupport
	}
	return &timeoutRW{rw: rw, d: d, t: timeout}, nil
}

func (t *timeoutRW) Read(p []byte) (int, error) {
	if err := t.d.SetReadDeadline(time.Now().Add(t.t)); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

func (t *timeoutRW) Write(p []byte) (int, error) {
	if err := t.d.SetWriteDeadline(time.Now().Add(t.t)); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}
