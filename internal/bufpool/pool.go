package bufpool

import (
	"sync"
	"sync/atomic"
)

// Pool hands out fixed-size datagram receive buffers so the socket reader
// does not allocate per packet.
type Pool struct {
	pool    sync.Pool
	bufSize int
	allocs  atomic.Int64
}

// New creates a pool whose buffers are exactly bufSize bytes.
func New(bufSize int) *Pool {
	if bufSize <= 0 {
		panic("bufSize must be positive")
	}
	p := &Pool{bufSize: bufSize}
	p.pool.New = func() interface{} {
		p.allocs.Add(1)
		b := make([]byte, bufSize)
		return &b
	}
	return p
}

// Get returns a buffer of length BufSize.
func (p *Pool) Get() []byte {
	bp := p.pool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < p.bufSize {
		p.allocs.Add(1)
		return make([]byte, p.bufSize)
	}
	return buf[:p.bufSize]
}

// Put returns a buffer for reuse. The caller must not touch buf afterwards.
// Buffers smaller than BufSize are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	buf = buf[:p.bufSize]
	p.pool.Put(&buf)
}

// BufSize returns the size of buffers in this pool.
func (p *Pool) BufSize() int {
	return p.bufSize
}

// Allocs returns how many buffers the pool has allocated so far.
func (p *Pool) Allocs() int64 {
	return p.allocs.Load()
}
