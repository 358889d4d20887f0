package partition

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fedres/fluidloom-sub000/mesh"
	"github.com/fedres/fluidloom-sub000/mesh/transport"
)

// migratorTagBase keeps migration sends off the halo-exchange tag range
// (mesh/halo uses 100+hilbert%1e6).
const migratorTagBase = 2_000_000

// Migrator executes a MigrationPlan over a transport, packing cells in
// Hilbert order, sending/receiving, and re-inserting received cells before
// the caller re-sorts and rebuilds the hash index (spec §4.6, grounded on
// original_source's CellMigrator::migrate four-phase structure).
type Migrator struct {
	Rank      int
	Transport transport.Transport
}

// Migrate runs every transfer touching m's rank: outgoing transfers are
// packed and sent (then their cells marked StateUnallocated), incoming
// transfers are received and appended. The caller is responsible for
// re-sorting the mesh (mesh.RebuildFromMesh + m.Permute) afterward — the
// migrator only mutates slot contents, it never reorders.
func (mg *Migrator) Migrate(ctx context.Context, m *mesh.Mesh, plan MigrationPlan) error {
	if len(plan.Transfers) == 0 {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"transfers": len(plan.Transfers),
		"cells":     plan.TotalCellsToMigrate,
	}).Info("partition: executing migration plan")

	fieldNames := m.Fields.Names()
	cellBytes := cellSizeBytes(m, fieldNames)

	var reqs []transport.Request
	var sendBufs []*transport.Buffer
	var recvBufs []*transport.Buffer
	var removeSlots []int

	for _, t := range plan.Transfers {
		tag := migratorTagBase + int(t.HilbertStart%1_000_000)

		if t.SrcRank == mg.Rank {
			slots := slotsInRange(m, t.HilbertStart, t.HilbertEnd)
			buf := transport.NewBuffer(4 + len(slots)*cellBytes)
			packCells(buf.Data, m, slots, fieldNames)
			req, err := mg.Transport.SendAsync(ctx, t.DstRank, buf, 0, len(buf.Data), tag)
			if err != nil {
				return mesh.NewTransportError("partition.migrate", "send_async failed", err)
			}
			reqs = append(reqs, req)
			sendBufs = append(sendBufs, buf)
			removeSlots = append(removeSlots, slots...)
		}

		if t.DstRank == mg.Rank {
			buf := transport.NewBuffer(4 + int(t.NumCells)*cellBytes)
			req, err := mg.Transport.RecvAsync(ctx, t.SrcRank, buf, 0, len(buf.Data), tag)
			if err != nil {
				return mesh.NewTransportError("partition.migrate", "recv_async failed", err)
			}
			reqs = append(reqs, req)
			recvBufs = append(recvBufs, buf)
		}
	}

	if err := mg.Transport.WaitAll(ctx, reqs); err != nil {
		return mesh.NewTransportError("partition.migrate", "wait_all failed", err)
	}

	for _, buf := range recvBufs {
		if err := unpackAndAppend(m, buf.Data, fieldNames); err != nil {
			return err
		}
	}

	for _, slot := range removeSlots {
		m.State[slot] = mesh.StateUnallocated
	}

	logrus.WithField("num_cells", m.NumCells).Info("partition: migration complete")
	return nil
}

func cellSizeBytes(m *mesh.Mesh, fieldNames []string) int {
	// X,Y,Z int32 + Level uint8 + State uint8 + MaterialID uint32.
	n := 4 + 4 + 4 + 1 + 1 + 4
	for _, name := range fieldNames {
		f := m.Fields.Get(name)
		n += f.Components * mesh.BytesPerComponent
	}
	return n
}

func slotsInRange(m *mesh.Mesh, start, end mesh.HilbertIndex) []int {
	var slots []int
	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == mesh.StateUnallocated {
			continue
		}
		h := m.Coord(i).Hilbert()
		if h >= start && h < end {
			slots = append(slots, i)
		}
	}
	return slots
}

func packCells(buf []byte, m *mesh.Mesh, slots []int, fieldNames []string) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(slots)))
	off := 4
	for _, i := range slots {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(m.CoordX[i]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(m.CoordY[i]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(m.CoordZ[i]))
		buf[off+12] = m.Level[i]
		buf[off+13] = uint8(m.State[i])
		binary.LittleEndian.PutUint32(buf[off+14:off+18], m.MaterialID[i])
		off += 18
		for _, name := range fieldNames {
			f := m.Fields.Get(name)
			for c := 0; c < f.Components; c++ {
				v := f.At(c, i, m.Capacity)
				binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
				off += 8
			}
		}
	}
}

func unpackAndAppend(m *mesh.Mesh, buf []byte, fieldNames []string) error {
	if len(buf) < 4 {
		return mesh.NewProtocolError("partition.unpack", "truncated migration buffer")
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	off := 4
	for k := 0; k < n; k++ {
		x := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		y := int32(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		z := int32(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
		level := buf[off+12]
		state := mesh.CellState(buf[off+13])
		materialID := binary.LittleEndian.Uint32(buf[off+14 : off+18])
		off += 18

		slot := m.AppendCell(mesh.Coord{X: x, Y: y, Z: z, Level: level}, state, materialID)
		for _, name := range fieldNames {
			f := m.Fields.Get(name)
			for c := 0; c < f.Components; c++ {
				bits := binary.LittleEndian.Uint64(buf[off : off+8])
				f.Set(c, slot, math.Float64frombits(bits), m.Capacity)
				off += 8
			}
		}
	}
	return nil
}
