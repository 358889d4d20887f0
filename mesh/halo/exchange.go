package halo

import (
	"context"

	"github.com/fedres/fluidloom-sub000/mesh"
	"github.com/fedres/fluidloom-sub000/mesh/transport"
)

// DoubleBuffer owns the two pack buffers whose roles swap exactly once per
// exchange (spec §5: "one buffer is the pack target while the other is the
// comm target").
type DoubleBuffer struct {
	a, b   *transport.Buffer
	packIsA bool
}

// NewDoubleBuffer allocates both buffers at size bytes.
func NewDoubleBuffer(size int) *DoubleBuffer {
	return &DoubleBuffer{a: transport.NewBuffer(size), b: transport.NewBuffer(size), packIsA: true}
}

// PackTarget returns the buffer currently receiving packed data.
func (d *DoubleBuffer) PackTarget() *transport.Buffer {
	if d.packIsA {
		return d.a
	}
	return d.b
}

// CommTarget returns the buffer currently in flight over the transport.
func (d *DoubleBuffer) CommTarget() *transport.Buffer {
	if d.packIsA {
		return d.b
	}
	return d.a
}

// Swap exchanges the pack/comm roles.
func (d *DoubleBuffer) Swap() { d.packIsA = !d.packIsA }

// ExchangeManager drives the pack→post→wait→unpack→swap cycle for one
// field across a set of ghost ranges (spec §4.5).
type ExchangeManager struct {
	Layout    PackBufferLayout
	Buffers   *DoubleBuffer
	Transport transport.Transport
	Ranges    []GhostRange
	MaxCells  int
}

// NewExchangeManager builds a manager sized for maxCells cells per range.
func NewExchangeManager(layout PackBufferLayout, maxCells int, tr transport.Transport, ranges []GhostRange) *ExchangeManager {
	return &ExchangeManager{
		Layout:    layout,
		Buffers:   NewDoubleBuffer(layout.SizeBytes(maxCells)),
		Transport: tr,
		Ranges:    ranges,
		MaxCells:  maxCells,
	}
}

func tagFor(r GhostRange) int {
	return 100 + int(r.HilbertStart%1_000_000)
}

// Exchange runs one full cycle for field f (spec §4.5 steps 1-5). Ordering
// is enforced by construction: Pack happens before Post, Post before Wait,
// Wait before Unpack, Unpack before Swap.
func (em *ExchangeManager) Exchange(ctx context.Context, fieldIdx int, f *mesh.Field, meshCapacity int) error {
	packBuf := em.Buffers.PackTarget()
	commBuf := em.Buffers.CommTarget()
	bytesPerBuf := em.Layout.SizeBytes(em.MaxCells)

	// 1. Pack.
	for _, r := range em.Ranges {
		PackRange(packBuf.Data, em.Layout, fieldIdx, f, em.MaxCells, r, meshCapacity)
	}

	// 2. Post I/O.
	var reqs []transport.Request
	for _, r := range em.Ranges {
		tag := tagFor(r)
		sendReq, err := em.Transport.SendAsync(ctx, r.TargetGPU, packBuf, 0, bytesPerBuf, tag)
		if err != nil {
			return mesh.NewTransportError("halo.exchange", "send_async failed", err)
		}
		recvReq, err := em.Transport.RecvAsync(ctx, r.TargetGPU, commBuf, 0, bytesPerBuf, tag)
		if err != nil {
			return mesh.NewTransportError("halo.exchange", "recv_async failed", err)
		}
		reqs = append(reqs, sendReq, recvReq)
	}

	// 3. Wait.
	if err := em.Transport.WaitAll(ctx, reqs); err != nil {
		return mesh.NewTransportError("halo.exchange", "wait_all failed", err)
	}

	// 4. Unpack.
	for _, r := range em.Ranges {
		UnpackRange(commBuf.Data, em.Layout, fieldIdx, f, em.MaxCells, r, meshCapacity)
	}

	// 5. Swap.
	em.Buffers.Swap()
	return nil
}
