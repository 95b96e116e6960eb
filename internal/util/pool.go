package util

import (
	"sync"
)

// BufferPool hands out fixed-size byte buffers. Buffers are zeroed on the
// way back in, since they may have carried plaintext or overwrite patterns.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the length of every buffer in the pool.
func (p *BufferPool) Size() int {
	return p.size
}

// Get retrieves a buffer. Its contents are all zero.
func (p *BufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put zeroes b and returns it to the pool. Buffers of the wrong size are
// dropped.
func (p *BufferPool) Put(b []byte) {
	if len(b) != p.size {
		return
	}
	Fill(b, 0)
	p.pool.Put(&b)
}

// Fill sets every byte of b to v.
func Fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// MiBPool provides the 1 MiB buffers used for file overwrites.
var MiBPool = NewBufferPool(MiB)
