/*Package comm provides the transport plumbing shared by the bench
instrument drivers.

Drivers hold a Pool of connections created by a CreationFunc.  TCP
makers retry with exponential backoff, since bench instruments dislike
being connection-thrashed and may refuse for a moment after a previous
client disconnects.  Serial makers wrap an RS-232 port in the same
interface so drivers do not care which physical link is in use.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// ErrTerminatorNotFound is returned when a response does not contain
// the expected termination byte.
var ErrTerminatorNotFound = errors.New("termination byte not found in response")

// CreationFunc returns a new connection to something.  A closure
// should be used to encapsulate the address and options needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection with a timeout on connect, read,
// and write.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr,
// retrying refused connections with exponential backoff.  Timeouts end
// the retry loop immediately; a host that does not answer at all will
// not start answering within the retry window.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err == nil {
				return nil
			}
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock,
		})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens the serial port
// described by cfg.
func SerialConnMaker(cfg *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		conn, err := serial.OpenPort(cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
		}
		return conn, nil
	}
}
