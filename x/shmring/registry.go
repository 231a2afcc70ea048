package shmring

import (
	"sync"
	"sync/atomic"
)

// Handle names a ring in messages that cannot carry the pointer itself,
// such as a serial session_opened event. Zero never names a ring.
type Handle uint32

var (
	handles sync.Map // Handle -> *Ring
	lastHdl atomic.Uint32
)

// NewRegistered allocates a ring of size bytes (a power of two) and
// publishes it under a fresh handle.
func NewRegistered(size int) (Handle, *Ring) {
	r := New(size)
	h := Handle(lastHdl.Add(1))
	handles.Store(h, r)
	return h, r
}

// Get resolves h, returning nil for zero or released handles.
func Get(h Handle) *Ring {
	if v, ok := handles.Load(h); ok {
		return v.(*Ring)
	}
	return nil
}

// Close releases h. Holders of the *Ring keep a valid ring.
func Close(h Handle) { handles.Delete(h) }
