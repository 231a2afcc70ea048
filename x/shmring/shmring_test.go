package shmring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ready(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNewRejectsBadSizes(t *testing.T) {
	for _, n := range []int{0, 1, 3, 12, -8} {
		require.Panics(t, func() { New(n) }, "size %d", n)
	}
	require.Equal(t, 16, New(16).Size())
}

func TestStreamAcrossGoroutines(t *testing.T) {
	const total = 20_000
	r := New(64)

	go func() {
		var chunk [23]byte
		next := 0
		for next < total {
			n := min(len(chunk), total-next)
			for i := 0; i < n; i++ {
				chunk[i] = byte(next + i)
			}
			w := r.TryWriteFrom(chunk[:n])
			next += w
			if w < n {
				<-r.Writable()
			}
		}
	}()

	got := 0
	var buf [17]byte
	for got < total {
		n := r.TryReadInto(buf[:])
		for i := 0; i < n; i++ {
			require.Equal(t, byte(got+i), buf[i], "offset %d", got+i)
		}
		got += n
		if n == 0 {
			<-r.Readable()
		}
	}
	require.Zero(t, r.Available())
}

func TestReadableEdgeIsCoalesced(t *testing.T) {
	r := New(8)
	require.False(t, ready(r.Readable()))

	require.Equal(t, 3, r.TryWriteFrom([]byte{1, 2, 3}))
	require.Equal(t, 2, r.TryWriteFrom([]byte{4, 5}))
	require.True(t, ready(r.Readable()))
	require.False(t, ready(r.Readable()), "one token per empty to non-empty edge")
}

func TestSpansAcrossWrap(t *testing.T) {
	r := New(8)
	require.Equal(t, 6, r.TryWriteFrom([]byte{0, 1, 2, 3, 4, 5}))
	require.Equal(t, 5, r.TryReadInto(make([]byte, 5)))

	// wr=6, rd=5: free space wraps after two bytes.
	p1, p2 := r.WriteAcquire()
	require.Len(t, p1, 2)
	require.Len(t, p2, 5)
	copy(p1, []byte{6, 7})
	copy(p2, []byte{8, 9})
	r.WriteCommit(4)

	p1, p2 = r.ReadAcquire()
	got := append(append([]byte(nil), p1...), p2...)
	require.Equal(t, []byte{5, 6, 7, 8, 9}, got)
	r.ReadRelease(len(got))
	require.Zero(t, r.Available())
	require.Equal(t, 8, r.Space())
}

func TestWritableFiresWhenLeavingFull(t *testing.T) {
	r := New(4)
	require.Equal(t, 4, r.TryWriteFrom([]byte{1, 2, 3, 4, 5}))
	require.False(t, ready(r.Writable()))

	r.TryReadInto(make([]byte, 1))
	require.True(t, ready(r.Writable()))
}

func TestRegistry(t *testing.T) {
	h, r := NewRegistered(16)
	require.NotZero(t, h)
	require.Same(t, r, Get(h))

	h2, _ := NewRegistered(16)
	require.NotEqual(t, h, h2)

	Close(h)
	require.Nil(t, Get(h))
	require.NotNil(t, Get(h2))
	require.Nil(t, Get(0))
	Close(h2)
}
