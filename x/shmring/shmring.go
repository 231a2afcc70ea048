package shmring

import (
	"sync/atomic"
)

// Ring is a single-producer, single-consumer byte ring. Indices run
// monotonically and wrap through mask; the producer owns wr, the consumer
// owns rd.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // 0 -> >0 available edge
	writable chan struct{} // full -> not full edge
}

// New allocates a ring of the given power-of-two size (>= 2).
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

func (r *Ring) Size() int { return len(r.buf) }

func (r *Ring) Space() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(r.size() - (wr - rd))
}

func (r *Ring) Available() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// ---- Producer side ----

// WriteAcquire returns the free space as up to two spans. Fill p1 before
// p2, then publish with WriteCommit.
func (r *Ring) WriteAcquire() (p1, p2 []byte) {
	rd := r.rd.Load()
	wr := r.wr.Load()
	space := r.size() - (wr - rd)
	if space == 0 {
		return nil, nil
	}
	idx := wr & r.mask
	first := r.size() - idx
	if first > space {
		first = space
	}
	p1 = r.buf[idx : idx+first]
	if rest := space - first; rest > 0 {
		p2 = r.buf[:rest]
	}
	return p1, p2
}

// WriteCommit publishes n bytes written into the acquired spans.
func (r *Ring) WriteCommit(n int) {
	if n <= 0 {
		return
	}
	wr := r.wr.Load()
	before := wr - r.rd.Load()
	r.wr.Store(wr + uint32(n)) // release
	if before == 0 {
		signal(r.readable)
	}
}

// TryWriteFrom copies as much of src as fits and returns the count.
func (r *Ring) TryWriteFrom(src []byte) int {
	p1, p2 := r.WriteAcquire()
	n := copy(p1, src)
	if n < len(src) {
		n += copy(p2, src[n:])
	}
	r.WriteCommit(n)
	return n
}

// ---- Consumer side ----

// ReadAcquire returns the readable bytes as up to two spans. They stay
// valid until ReadRelease.
func (r *Ring) ReadAcquire() (p1, p2 []byte) {
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	avail := wr - rd
	if avail == 0 {
		return nil, nil
	}
	idx := rd & r.mask
	first := r.size() - idx
	if first > avail {
		first = avail
	}
	p1 = r.buf[idx : idx+first]
	if rest := avail - first; rest > 0 {
		p2 = r.buf[:rest]
	}
	return p1, p2
}

// ReadRelease returns n consumed bytes to the producer.
func (r *Ring) ReadRelease(n int) {
	if n <= 0 {
		return
	}
	rd := r.rd.Load()
	full := r.wr.Load()-rd == r.size()
	r.rd.Store(rd + uint32(n)) // release
	if full {
		signal(r.writable)
	}
}

// TryReadInto copies up to len(dst) bytes out and returns the count.
func (r *Ring) TryReadInto(dst []byte) int {
	p1, p2 := r.ReadAcquire()
	n := copy(dst, p1)
	if n == len(p1) {
		n += copy(dst[n:], p2)
	}
	r.ReadRelease(n)
	return n
}

func (r *Ring) Watermarks() (rd, wr uint32) {
	return r.rd.Load(), r.wr.Load()
}

func (r *Ring) Readable() <-chan struct{} { return r.readable }
func (r *Ring) Writable() <-chan struct{} { return r.writable }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
