package devicebackend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateCopyRoundTrip(t *testing.T) {
	b := NewMockBackend()
	h, err := b.AllocateBuffer(16)
	require.NoError(t, err)

	require.NoError(t, b.CopyHostToDevice(h, 0, []byte("hello")))
	out, err := b.CopyDeviceToHost(h, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}

func TestFreeBufferRejectedWhileInFlight(t *testing.T) {
	b := NewMockBackend()
	h, err := b.AllocateBuffer(8)
	require.NoError(t, err)

	buf, err := b.lookup(h)
	require.NoError(t, err)
	buf.inFlight = 1

	require.Error(t, b.FreeBuffer(h), "a buffer with outstanding in-flight work must not be freed")

	buf.inFlight = 0
	require.NoError(t, b.FreeBuffer(h))
}

func TestFreeBufferTwiceFails(t *testing.T) {
	b := NewMockBackend()
	h, err := b.AllocateBuffer(8)
	require.NoError(t, err)

	k, err := b.CompileKernel("noop")
	require.NoError(t, err)
	require.NoError(t, b.LaunchKernel(k, []Arg{BufferArg(h)}))

	require.NoError(t, b.FreeBuffer(h))
	require.Error(t, b.FreeBuffer(h), "second free of an already-freed handle must fail")
}

func TestLaunchUnknownKernelFails(t *testing.T) {
	b := NewMockBackend()
	require.Error(t, b.LaunchKernel(KernelHandle{}, nil))
}

func TestCopyExceedingBufferSizeFails(t *testing.T) {
	b := NewMockBackend()
	h, err := b.AllocateBuffer(4)
	require.NoError(t, err)
	require.Error(t, b.CopyHostToDevice(h, 0, []byte("too long")))
}
