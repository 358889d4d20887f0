// Package devicebackend defines the engine's minimal view of a GPU backend
// (spec §6 "Device backend"): allocate/free, host<->device and
// device<->device copy, kernel compile/launch/release, flush/finish. No
// concrete GPU implementation is in scope (spec §1 Non-goals); this package
// exists so the rest of the mesh core can depend on the interface, plus an
// in-process MockBackend for tests, the same role transport.MockTransport
// plays for the transport contract.
package devicebackend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// BufferHandle is an opaque, explicit lifetime handle for a device
// allocation (spec §6: "Memory is owned through an explicit lifetime
// handle; deallocation cannot race with in-flight work"). The zero value
// is not a valid handle.
type BufferHandle struct {
	id uint64
}

// KernelHandle is an opaque handle to a compiled, launchable kernel.
type KernelHandle struct {
	id uint64
}

type deviceBuffer struct {
	data     []byte
	inFlight int32
}

// Backend is the engine's device-backend dependency. Implementations may
// be backed by CUDA/HIP/Level-Zero/etc; none is in scope here.
type Backend interface {
	AllocateBuffer(sizeBytes int) (BufferHandle, error)
	FreeBuffer(h BufferHandle) error

	CopyHostToDevice(h BufferHandle, offset int, data []byte) error
	CopyDeviceToHost(h BufferHandle, offset, size int) ([]byte, error)
	CopyDeviceToDevice(src, dst BufferHandle, srcOffset, dstOffset, size int) error

	CompileKernel(source string) (KernelHandle, error)
	LaunchKernel(k KernelHandle, args []Arg) error
	ReleaseKernel(k KernelHandle) error

	Flush() error
	Finish() error
}

// Arg is one kernel launch argument: either a device buffer handle or an
// inline scalar blob (spec §6: "Kernel launch arguments are a sequence of
// (buffer-handle or scalar-blob) values").
type Arg struct {
	Buffer     *BufferHandle
	ScalarBlob []byte
}

// BufferArg wraps a buffer handle as a launch argument.
func BufferArg(h BufferHandle) Arg { return Arg{Buffer: &h} }

// ScalarArg wraps a raw scalar blob as a launch argument.
func ScalarArg(b []byte) Arg { return Arg{ScalarBlob: b} }

// MockBackend is an in-process, host-memory-backed Backend for tests:
// buffers are plain byte slices, kernels are no-ops that only validate
// their handle, and in-flight marking prevents FreeBuffer from racing a
// launch the way a real device's completion fence would.
type MockBackend struct {
	mu     sync.Mutex
	nextID uint64
	buffers map[uint64]*deviceBuffer
	kernels map[uint64]string
}

// NewMockBackend returns an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		buffers: make(map[uint64]*deviceBuffer),
		kernels: make(map[uint64]string),
	}
}

func (b *MockBackend) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

func (b *MockBackend) AllocateBuffer(sizeBytes int) (BufferHandle, error) {
	if sizeBytes < 0 {
		return BufferHandle{}, mesh.NewCapacityError("devicebackend.allocate", "negative buffer size", nil)
	}
	id := b.newID()
	b.mu.Lock()
	b.buffers[id] = &deviceBuffer{data: make([]byte, sizeBytes)}
	b.mu.Unlock()
	return BufferHandle{id: id}, nil
}

func (b *MockBackend) lookup(h BufferHandle) (*deviceBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[h.id]
	if !ok {
		return nil, mesh.NewCapacityError("devicebackend", fmt.Sprintf("unknown buffer handle %d", h.id), nil)
	}
	return buf, nil
}

func (b *MockBackend) FreeBuffer(h BufferHandle) error {
	buf, err := b.lookup(h)
	if err != nil {
		return err
	}
	if atomic.LoadInt32(&buf.inFlight) != 0 {
		return mesh.NewCapacityError("devicebackend.free", "cannot free a buffer with in-flight work", nil)
	}
	b.mu.Lock()
	delete(b.buffers, h.id)
	b.mu.Unlock()
	return nil
}

func (b *MockBackend) CopyHostToDevice(h BufferHandle, offset int, data []byte) error {
	buf, err := b.lookup(h)
	if err != nil {
		return err
	}
	if offset+len(data) > len(buf.data) {
		return mesh.NewCapacityError("devicebackend.h2d", "copy exceeds buffer size", nil)
	}
	copy(buf.data[offset:], data)
	return nil
}

func (b *MockBackend) CopyDeviceToHost(h BufferHandle, offset, size int) ([]byte, error) {
	buf, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	if offset+size > len(buf.data) {
		return nil, mesh.NewCapacityError("devicebackend.d2h", "copy exceeds buffer size", nil)
	}
	out := make([]byte, size)
	copy(out, buf.data[offset:offset+size])
	return out, nil
}

func (b *MockBackend) CopyDeviceToDevice(src, dst BufferHandle, srcOffset, dstOffset, size int) error {
	srcBuf, err := b.lookup(src)
	if err != nil {
		return err
	}
	dstBuf, err := b.lookup(dst)
	if err != nil {
		return err
	}
	if srcOffset+size > len(srcBuf.data) || dstOffset+size > len(dstBuf.data) {
		return mesh.NewCapacityError("devicebackend.d2d", "copy exceeds buffer size", nil)
	}
	copy(dstBuf.data[dstOffset:dstOffset+size], srcBuf.data[srcOffset:srcOffset+size])
	return nil
}

func (b *MockBackend) CompileKernel(source string) (KernelHandle, error) {
	id := b.newID()
	b.mu.Lock()
	b.kernels[id] = source
	b.mu.Unlock()
	return KernelHandle{id: id}, nil
}

func (b *MockBackend) LaunchKernel(k KernelHandle, args []Arg) error {
	b.mu.Lock()
	_, ok := b.kernels[k.id]
	b.mu.Unlock()
	if !ok {
		return mesh.NewProtocolError("devicebackend.launch", fmt.Sprintf("unknown kernel handle %d", k.id))
	}
	for _, a := range args {
		if a.Buffer == nil {
			continue
		}
		buf, err := b.lookup(*a.Buffer)
		if err != nil {
			return err
		}
		atomic.AddInt32(&buf.inFlight, 1)
		defer atomic.AddInt32(&buf.inFlight, -1)
	}
	return nil
}

func (b *MockBackend) ReleaseKernel(k KernelHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.kernels[k.id]; !ok {
		return mesh.NewProtocolError("devicebackend.release", fmt.Sprintf("unknown kernel handle %d", k.id))
	}
	delete(b.kernels, k.id)
	return nil
}

func (b *MockBackend) Flush() error  { return nil }
func (b *MockBackend) Finish() error { return nil }
