// Package transport defines the minimal send/recv/p2p-copy contract the
// engine depends on (spec §4.6) and an in-process mock implementation used
// by halo and partition tests in place of a real MPI/GPU-aware backend.
package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// Buffer is a reference-counted region that, on a real stack, would be
// directly addressable by the transport (spec §4.6's GPUAwareBuffer). It
// refuses release while bound.
type Buffer struct {
	Data []byte

	bound    int32
	refCount int32
}

// NewBuffer allocates a zeroed buffer of the given size.
func NewBuffer(size int) *Buffer {
	return &Buffer{Data: make([]byte, size), refCount: 1}
}

// Bind marks the buffer as bound to the transport (e.g. MPI-registered).
func (b *Buffer) Bind() { atomic.StoreInt32(&b.bound, 1) }

// Unbind clears the bound flag.
func (b *Buffer) Unbind() { atomic.StoreInt32(&b.bound, 0) }

// IsBound reports whether the buffer is currently bound.
func (b *Buffer) IsBound() bool { return atomic.LoadInt32(&b.bound) != 0 }

// Release decrements the refcount and frees Data once it reaches zero; it
// refuses to do so while the buffer is bound.
func (b *Buffer) Release() error {
	if b.IsBound() {
		return mesh.NewTransportError("transport.buffer", "cannot release a buffer bound to the transport", nil)
	}
	if atomic.AddInt32(&b.refCount, -1) <= 0 {
		b.Data = nil
	}
	return nil
}

// Request is a tagged in-flight operation (spec §9's Req::{Transport,
// DeviceEvent, P2P} union collapses naturally to one type backed by a
// completion channel in Go).
type Request interface {
	// Done returns a channel that closes when the operation completes.
	Done() <-chan struct{}
	// Err returns the completion error, valid only after Done is closed.
	Err() error
}

type request struct {
	done chan struct{}
	err  error
}

func newRequest() *request { return &request{done: make(chan struct{})} }

func (r *request) Done() <-chan struct{} { return r.done }
func (r *request) Err() error            { return r.err }

func (r *request) complete(err error) {
	r.err = err
	close(r.done)
}

// Transport is the engine's minimal view of a send/recv/p2p-copy backend
// (spec §4.6). The core treats the chosen strategy (P2P, GPU-aware,
// host-staging) as opaque.
type Transport interface {
	SendAsync(ctx context.Context, toRank int, buf *Buffer, offset, bytes, tag int) (Request, error)
	RecvAsync(ctx context.Context, fromRank int, buf *Buffer, offset, bytes, tag int) (Request, error)
	P2PCopyAsync(ctx context.Context, srcDev, dstDev int, srcBuf, dstBuf *Buffer, srcOff, dstOff, bytes int) (Request, error)
	WaitAll(ctx context.Context, reqs []Request) error
}

// WaitAll is a default WaitAll any Transport can delegate to: it blocks
// until every request completes or ctx is cancelled, matching spec §4.6's
// wait_all.
func WaitAll(ctx context.Context, reqs []Request) error {
	for _, r := range reqs {
		select {
		case <-r.Done():
			if err := r.Err(); err != nil {
				return err
			}
		case <-ctx.Done():
			return mesh.NewCancelledError("transport", "wait_all cancelled")
		}
	}
	return nil
}

// Test reports whether a request has completed without blocking (spec
// §4.6's test(Request)).
func Test(r Request) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

type mailboxKey struct {
	from, to, tag int
}

// Fabric is the shared in-process medium multiple MockTransport instances
// (one per simulated rank) exchange through.
type Fabric struct {
	mu      sync.Mutex
	mailbox map[mailboxKey]chan []byte
}

// NewFabric creates an empty shared fabric.
func NewFabric() *Fabric {
	return &Fabric{mailbox: make(map[mailboxKey]chan []byte)}
}

func (f *Fabric) chanFor(key mailboxKey) chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.mailbox[key]
	if !ok {
		ch = make(chan []byte, 4)
		f.mailbox[key] = ch
	}
	return ch
}

// MockTransport is an in-process stand-in for the real backend, playing
// the role spec §4.6 assigns to P2P/GPU-aware/host-staging selection: it
// always behaves as host-staging-equivalent (no P2P shortcut), resolving
// Open Question #4 (DESIGN.md) by leaving that decision to the Transport
// interface rather than a compile-time macro.
type MockTransport struct {
	self int
	fab  *Fabric
}

// NewMockTransport returns a transport simulating rank `self` over fab.
func NewMockTransport(fab *Fabric, self int) *MockTransport {
	return &MockTransport{self: self, fab: fab}
}

func (m *MockTransport) SendAsync(ctx context.Context, toRank int, buf *Buffer, offset, bytes, tag int) (Request, error) {
	payload := make([]byte, bytes)
	copy(payload, buf.Data[offset:offset+bytes])
	ch := m.fab.chanFor(mailboxKey{from: m.self, to: toRank, tag: tag})
	r := newRequest()
	go func() {
		select {
		case ch <- payload:
			r.complete(nil)
		case <-ctx.Done():
			r.complete(mesh.NewCancelledError("transport", "send cancelled"))
		}
	}()
	return r, nil
}

func (m *MockTransport) RecvAsync(ctx context.Context, fromRank int, buf *Buffer, offset, bytes, tag int) (Request, error) {
	ch := m.fab.chanFor(mailboxKey{from: fromRank, to: m.self, tag: tag})
	r := newRequest()
	go func() {
		select {
		case payload := <-ch:
			n := copy(buf.Data[offset:offset+bytes], payload)
			if n != bytes {
				r.complete(mesh.NewTransportError("transport", "short recv", nil))
				return
			}
			r.complete(nil)
		case <-ctx.Done():
			r.complete(mesh.NewCancelledError("transport", "recv cancelled"))
		}
	}()
	return r, nil
}

// P2PCopyAsync performs a direct in-process copy; the mock has no real
// device peering to exploit, so this degenerates to a memcpy.
func (m *MockTransport) P2PCopyAsync(ctx context.Context, srcDev, dstDev int, srcBuf, dstBuf *Buffer, srcOff, dstOff, bytes int) (Request, error) {
	r := newRequest()
	copy(dstBuf.Data[dstOff:dstOff+bytes], srcBuf.Data[srcOff:srcOff+bytes])
	r.complete(nil)
	return r, nil
}

func (m *MockTransport) WaitAll(ctx context.Context, reqs []Request) error {
	return WaitAll(ctx, reqs)
}
