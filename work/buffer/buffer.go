package buffer

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// Pool is a thread-safe pool of byte slices used as copy buffers for
// streaming relayed media. valyala/bytebufferpool handles buffer lifecycle
// and calibration internally; this wrapper only guarantees a minimum
// buffer length so large range reads don't degrade into tiny copies.
type Pool struct {
	pool       bytebufferpool.Pool
	bufferSize int
}

// NewPool creates a Pool that hands out buffers of at least bufferSize bytes.
func NewPool(bufferSize int) *Pool {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &Pool{bufferSize: bufferSize}
}

// Get retrieves a pooled buffer grown to the configured size.
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	buf := p.pool.Get()
	if cap(buf.B) < p.bufferSize {
		buf.B = make([]byte, p.bufferSize)
	}
	buf.B = buf.B[:p.bufferSize]
	return buf
}

// Put returns a buffer to the pool.
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		p.pool.Put(buf)
	}
}

// Copy streams src to dst through a pooled buffer and returns the number of
// bytes written. This is the relay path for media payloads: nothing is ever
// accumulated beyond one buffer's worth of data.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get()
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf.B)
}
