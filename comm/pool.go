package comm

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Get after the pool has been closed.
var ErrPoolClosed = errors.New("connection pool is closed")

// Pool holds one or more connections to a device.  Connections are
// created lazily, reused when returned, and reclaimed after the pool
// has sat fully idle for its timeout.  It is concurrent safe.  Pools
// must be created with NewPool.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	maker   CreationFunc
	idle    []io.ReadWriteCloser
	maxSize int
	leased  int
	timeout time.Duration
	timer   *time.Timer
	closed  bool
}

// NewPool creates a pool of up to maxSize connections built by maker.
// After the pool sits fully idle for timeout, its connections are
// closed; the next Get transparently makes a fresh one.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maker:   maker,
		maxSize: maxSize,
		timeout: timeout,
	}
	p.cond = sync.NewCond(&p.mu)
	p.timer = time.AfterFunc(timeout, p.reclaim)
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a connection, blocking if all are leased out.  The
// caller has exclusive use of it until it is handed back with Put,
// ReturnWithError, or Destroy.  A connection obtained alongside a
// non-nil error must not be returned to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	for !p.closed && len(p.idle) == 0 && p.leased == p.maxSize {
		p.cond.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.timer.Stop()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()
		return conn, nil
	}
	p.leased++
	p.mu.Unlock()

	conn, err := p.maker()
	if err != nil {
		p.mu.Lock()
		p.leased--
		p.cond.Signal()
		p.mu.Unlock()
		return nil, err
	}
	return conn, nil
}

// Put returns a healthy connection to the pool for reuse.
func (p *Pool) Put(rw io.ReadWriter) {
	conn := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leased--
	if p.closed {
		conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
	if p.leased == 0 {
		p.timer.Reset(p.timeout)
	}
	p.cond.Signal()
}

// Destroy removes a connection from the pool and closes it.  Use this
// instead of Put when the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	if c, ok := rw.(io.Closer); ok {
		c.Close()
	}
	p.mu.Lock()
	p.leased--
	p.cond.Signal()
	p.mu.Unlock()
}

// ReturnWithError hands a connection back, destroying it if err is
// non-nil and pooling it otherwise.  Intended for use in a defer
// alongside a named error return.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections owned by the pool, idle or leased.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) + p.leased
}

// Active returns the number of connections currently leased out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leased
}

// Close reclaims all idle connections and marks the pool closed.
// Leased connections are closed as they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.timer.Stop()
	p.closeIdleLocked()
	p.cond.Broadcast()
	return nil
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeIdleLocked()
}

func (p *Pool) closeIdleLocked() {
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
}
