// Package shmring is a single-producer, single-consumer byte ring with
// edge-triggered readiness channels. It backs the simulator's console
// link, where the producer side cannot be cancelled (stdin) but the
// consumer needs context-bounded reads.
package shmring

import (
	"context"
	"io"
	"sync/atomic"
)

// Ring is a single-producer, single-consumer byte ring.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	closed atomic.Bool

	readable chan struct{} // 0->>0 available edge
	writable chan struct{} // 0->>0 space edge
}

// New allocates a ring. size must be a power of two >= 2.
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

// Space reports free bytes from the producer's view.
func (r *Ring) Space() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(r.size() - (wr - rd))
}

// Available reports buffered bytes from the consumer's view.
func (r *Ring) Available() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// Close marks the producer side done. Buffered bytes stay readable;
// once drained, context reads return io.EOF.
func (r *Ring) Close() {
	r.closed.Store(true)
	select {
	case r.readable <- struct{}{}:
	default:
	}
	select {
	case r.writable <- struct{}{}:
	default:
	}
}

// TryWriteFrom copies as much of src as fits and reports how much.
func (r *Ring) TryWriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	space := int(r.size() - beforeAvail)
	if space <= 0 {
		return 0
	}
	if len(src) < space {
		space = len(src)
	}
	n = space

	size := r.size()
	wrIdx := wr & r.mask
	first := int(size - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n)) // release

	// Notify reader on the 0->>0 available edge.
	if beforeAvail == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryReadInto copies buffered bytes into dst and reports how many.
func (r *Ring) TryReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	avail := int(wr - rd)
	if avail <= 0 {
		return 0
	}
	if len(dst) < avail {
		avail = len(dst)
	}
	n = avail

	size := r.size()
	rdIdx := rd & r.mask
	first := int(size - rdIdx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n)) // release

	// Notify writer on the full->>space edge.
	beforeSpace := int(size - (wr - rd))
	if beforeSpace == 0 {
		select {
		case r.writable <- struct{}{}:
		default:
		}
	}
	return n
}

// ReadSomeContext blocks until at least one byte arrives, the ring is
// closed and drained (io.EOF), or ctx ends.
func (r *Ring) ReadSomeContext(ctx context.Context, dst []byte) (int, error) {
	for {
		if n := r.TryReadInto(dst); n > 0 {
			return n, nil
		}
		if r.closed.Load() {
			// A write may have landed between the read and the flag.
			if n := r.TryReadInto(dst); n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.readable:
		}
	}
}

// WriteAllContext blocks until all of src is accepted or ctx ends.
// Writing to a closed ring returns io.ErrClosedPipe.
func (r *Ring) WriteAllContext(ctx context.Context, src []byte) (int, error) {
	total := 0
	for total < len(src) {
		if r.closed.Load() {
			return total, io.ErrClosedPipe
		}
		n := r.TryWriteFrom(src[total:])
		total += n
		if total == len(src) {
			break
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-r.writable:
		}
	}
	return total, nil
}

// Watermarks exposes the raw indices for diagnostics.
func (r *Ring) Watermarks() (rd, wr uint32) {
	return r.rd.Load(), r.wr.Load()
}

// Readable fires once per empty-to-nonempty transition.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires once per full-to-nonfull transition.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
