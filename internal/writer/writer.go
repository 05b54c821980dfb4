// Package writer implements the writer stage (§4.E): for each indexed
// bucket chain, reserve a save location from the catalog, write the
// FCAP capture file and all seven FIDX indices, symlink the capture
// file into the index directory, commit stats, and mark the index
// ready for search. It is the Go rendering of original_source
// indexer/output.c's output()/output_bucket()/write_flow(), generalized
// from output.c's one-keytype-at-a-time hand written loop to a single
// path parameterized over fidx.KeyType.
package writer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/catalog"
	"github.com/dirtbags/pcapdb/internal/debug"
	pcapdberrors "github.com/dirtbags/pcapdb/internal/errors"
	"github.com/dirtbags/pcapdb/internal/fcap"
	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/indexer"
	"github.com/dirtbags/pcapdb/internal/metrics"
	"github.com/dirtbags/pcapdb/internal/packet"
)

// catalogRetryDelay is how long a writer worker waits between retries of
// a chain whose catalog transaction failed (§4.E step 1, §7: "the writer
// retries the same chain until success or process shutdown").
const catalogRetryDelay = time.Second

// blockSize and flowRowSize mirror fidx's unexported layout constants;
// the writer needs them to predict a flow's row offset within the FLOW
// index file before that file is actually written (see flowRowByteOffset).
const (
	blockSize    = 4096
	flowRowSize  = 64 + 4 // FlowKey (64 bytes) + 32-bit FCAP offset
)

// Stage drains a pool's Indexed queue, writing each chain to disk and
// recycling its buckets back to Ready.
type Stage struct {
	Catalog  catalog.Catalog
	Registry *metrics.Registry
}

// Run drives one writer worker: pop an indexed chain, write it, recycle
// its buckets, repeat. Returns once pool.Indexed has been closed and
// drained (§4.A shutdown order: writers are the last stage to drain).
func (s *Stage) Run(ctx context.Context, pool *bucket.Pool) {
	debug.LogWrite("writer thread starting")
	for {
		head, ok := pool.Indexed.Pop(bucket.Block)
		if !ok {
			break
		}

		debug.LogWrite("writing chain head %d", head.ID)
		if err := s.writeChainWithRetry(ctx, head); err != nil {
			debug.LogWrite("abandoning chain head %d: %v", head.ID, err)
		} else {
			debug.LogWrite("done writing chain head %d", head.ID)
		}

		if idxs, ok := head.Indexes.(*indexer.IndexSet); ok {
			indexer.ReleaseLists(idxs)
		}

		for bkt := head; bkt != nil; {
			next := bkt.Next
			bkt.Reset()
			pool.Ready.Push(bkt)
			bkt = next
		}
	}
	debug.LogWrite("writer thread exiting")
}

// writeChainWithRetry calls WriteChain, retrying the whole chain when it
// fails with a recoverable catalog error (§4.E step 1, §7: a catalog
// hiccup before anything is written retries "until success or process
// shutdown"). A non-catalog error, or a catalog error marked
// non-recoverable (one raised after the FCAP/FIDX files already exist,
// where replaying the chain would duplicate them), is returned
// immediately so the caller recycles the chain's buckets instead of
// spinning on it forever.
func (s *Stage) writeChainWithRetry(ctx context.Context, head *bucket.Bucket) error {
	for {
		err := s.WriteChain(ctx, head)
		if err == nil {
			return nil
		}

		var catErr *pcapdberrors.CatalogError
		if !errors.As(err, &catErr) || !catErr.Recoverable {
			return err
		}

		debug.LogWrite("chain head %d: recoverable catalog error, retrying: %v", head.ID, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(catalogRetryDelay):
		}
	}
}

// WriteChain writes one bucket chain's FCAP file and seven indices,
// commits its stats, and marks the index ready — output_bucket's full
// sequence.
func (s *Stage) WriteChain(ctx context.Context, head *bucket.Bucket) error {
	idxs, ok := head.Indexes.(*indexer.IndexSet)
	if !ok || idxs == nil {
		return fmt.Errorf("writer: chain head %d has no index set", head.ID)
	}

	startTS, endTS := chainTimeRange(head)

	info, err := s.Catalog.ReserveSlot(ctx,
		time.Unix(int64(startTS.Sec), int64(startTS.Usec)*1000),
		time.Unix(int64(endTS.Sec), int64(endTS.Usec)*1000))
	if err != nil {
		return pcapdberrors.NewCatalogError("reserve slot", err)
	}

	if err := os.MkdirAll(info.IndexPath, 0755); err != nil {
		return fmt.Errorf("writer: create index directory: %w", err)
	}

	flowEntries, flowByteOffset, err := writeFlowsAndFCAP(info.SlotPath, idxs)
	if err != nil {
		return fmt.Errorf("writer: write flows/fcap: %w", err)
	}

	if err := writeAllIndices(info.IndexPath, idxs, flowEntries, flowByteOffset, startTS, endTS); err != nil {
		return err
	}

	symlinkPath := filepath.Join(info.IndexPath, "FCAP")
	_ = os.Remove(symlinkPath)
	if err := os.Symlink(info.SlotPath, symlinkPath); err != nil {
		return fmt.Errorf("writer: symlink FCAP: %w", err)
	}

	if err := s.Catalog.SaveStats(ctx, info, head.Stats); err != nil {
		return pcapdberrors.NewCatalogError("save stats", err).WithRecoverable(false)
	}
	if err := s.Catalog.MarkIndexReady(ctx, info); err != nil {
		return pcapdberrors.NewCatalogError("mark index ready", err).WithRecoverable(false)
	}

	if s.Registry != nil {
		s.Registry.Commit(head.Stats)
	}
	return nil
}

// chainTimeRange returns the first and last packet timestamps across the
// whole chain (output_bucket's start_tv/end_tv: first bucket's first
// packet, last bucket's last packet).
func chainTimeRange(head *bucket.Bucket) (start, end fidx.Timeval32) {
	if len(head.Records) > 0 {
		first := head.Records[0]
		start = fidx.Timeval32{Sec: first.TSSec, Usec: first.TSUsec}
	}
	last := head
	for last.Next != nil {
		last = last.Next
	}
	if len(last.Records) > 0 {
		l := last.Records[len(last.Records)-1]
		end = fidx.Timeval32{Sec: l.TSSec, Usec: l.TSUsec}
	}
	return start, end
}

// writeFlowsAndFCAP walks the flow tree in ascending order, writing each
// flow's packets to the FCAP file and building its FLOW index entry and
// key, the way write_flow does per node but driven from a whole-tree
// in-order walk instead of output_bucket's per-node dispatch. It returns
// the FLOW index's entries (already sorted, ready for fidx.Write) and
// each flow's predicted byte offset within that FLOW index file, which
// the six projection indices reference instead of the FCAP offset.
func writeFlowsAndFCAP(slotPath string, idxs *indexer.IndexSet) (entries []fidx.Entry, flowByteOffset map[int]uint64, err error) {
	w, createErr := fcap.Create(slotPath)
	if createErr != nil {
		return nil, nil, createErr
	}

	entries = make([]fidx.Entry, 0, idxs.FlowCount)
	flowByteOffset = make(map[int]uint64, idxs.FlowCount)

	var packetCount uint64
	idxs.Flows.InOrder(func(flowIdx int) {
		if err != nil {
			return
		}
		tuple := idxs.Flows.Key(flowIdx)
		records := *idxs.Flows.Value(flowIdx)
		if len(records) == 0 {
			return
		}

		key := flowKeyFor(tuple, records)
		fcapOffset := w.Offset()
		for _, rec := range records {
			if _, werr := w.WritePacket(fcap.RecordHeader{
				TSSec: rec.TSSec, TSUsec: rec.TSUsec,
				CapLen: rec.CapLen, WireLen: rec.WireLen,
			}, rec.Payload); werr != nil {
				err = werr
				return
			}
			packetCount++
		}

		rank := len(entries)
		flowByteOffset[flowIdx] = flowRowByteOffset(rank)
		entries = append(entries, fidx.Entry{Key: key.Marshal(), Offset: fcapOffset})
	})
	if err != nil {
		return nil, nil, err
	}
	if ferr := w.Finalize(packetCount); ferr != nil {
		return nil, nil, ferr
	}
	return entries, flowByteOffset, nil
}

// flowRowByteOffset is the byte position rank's row occupies within a
// FIDX file's main section, mirroring write_flow's
// "lseek64(flow_idx_fno, 0, SEEK_CUR)" — the position the row is about
// to be written at, computed directly since every FLOW row is the same
// fixed size rather than tracked via a live file handle.
func flowRowByteOffset(rank int) uint64 {
	return uint64(blockSize) + uint64(rank)*uint64(flowRowSize)
}

// flowKeyFor builds a FlowKey summarizing one flow's records: first/last
// timestamp, total packets and bytes (normalized into the pow/value
// exponent form if they overflow 32 bits).
func flowKeyFor(tuple packet.FiveTuple, records []*bucket.PacketRecord) fidx.FlowKey {
	first := records[0]
	last := records[0]
	var totalSize uint64
	for _, r := range records {
		if tsBefore(r, first) {
			first = r
		}
		if tsAfter(r, last) {
			last = r
		}
		totalSize += uint64(fcap.RecordHeaderSize) + uint64(len(r.Payload))
	}

	packetsPow, packets := fidx.NormalizeCount(uint64(len(records)))
	sizePow, size := fidx.NormalizeCount(totalSize)

	k := fidx.FlowKey{
		FirstTS:    fidx.Timeval32{Sec: first.TSSec, Usec: first.TSUsec},
		LastTS:     fidx.Timeval32{Sec: last.TSSec, Usec: last.TSUsec},
		SrcVers:    tuple.Vers,
		Proto:      tuple.Proto,
		SrcPort:    tuple.SrcPort,
		Packets:    packets,
		DstVers:    tuple.Vers,
		SizePow:    sizePow,
		PacketsPow: packetsPow,
		DstPort:    tuple.DstPort,
		Size:       size,
	}
	if tuple.Vers == packet.IPv4 {
		copy(k.SrcIP[:4], tuple.SrcIP.To4())
		copy(k.DstIP[:4], tuple.DstIP.To4())
	} else {
		copy(k.SrcIP[:], tuple.SrcIP.To16())
		copy(k.DstIP[:], tuple.DstIP.To16())
	}
	return k
}

func tsBefore(a, b *bucket.PacketRecord) bool {
	return a.TSSec < b.TSSec || (a.TSSec == b.TSSec && a.TSUsec < b.TSUsec)
}

func tsAfter(a, b *bucket.PacketRecord) bool {
	return a.TSSec > b.TSSec || (a.TSSec == b.TSSec && a.TSUsec > b.TSUsec)
}

// writeAllIndices writes the FLOW index, then fans the six projection
// indices out concurrently via errgroup (each only needs
// flowByteOffset, already complete by this point) — the teacher's
// pipeline_integrator fans out independent per-unit work the same way.
func writeAllIndices(indexPath string, idxs *indexer.IndexSet, flowEntries []fidx.Entry, flowByteOffset map[int]uint64, startTS, endTS fidx.Timeval32) error {
	flowOffset64 := needsOffset64(flowEntries)
	if err := fidx.WriteFile(filepath.Join(indexPath, fidx.Flow.String()), fidx.Flow, flowEntries, startTS, endTS, flowOffset64); err != nil {
		return fmt.Errorf("writer: write flow index: %w", err)
	}

	offset64 := flowRowByteOffset(len(flowEntries)) > 0xffffffff

	var g errgroup.Group
	g.Go(func() error {
		return writeProjection(indexPath, fidx.SrcV4, idxs.SrcV4, ipKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	g.Go(func() error {
		return writeProjection(indexPath, fidx.DstV4, idxs.DstV4, ipKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	g.Go(func() error {
		return writeProjection(indexPath, fidx.SrcV6, idxs.SrcV6, ipKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	g.Go(func() error {
		return writeProjection(indexPath, fidx.DstV6, idxs.DstV6, ipKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	g.Go(func() error {
		return writeProjection(indexPath, fidx.SrcPort, idxs.SrcPort, portKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	g.Go(func() error {
		return writeProjection(indexPath, fidx.DstPort, idxs.DstPort, portKeyBytes, flowByteOffset, startTS, endTS, offset64)
	})
	return g.Wait()
}

func ipKeyBytes(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

func portKeyBytes(p uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, p)
	return buf
}

// writeProjection walks one projection tree in ascending key order and,
// for each key, emits one row per flow in that key's list — sorted
// ascending by the flow's FLOW-index byte offset within the key group,
// the effect merge_sort_offsets has on a key's flow_list_node chain
// before it's written.
func writeProjection[K any](
	indexPath string,
	kt fidx.KeyType,
	tree *indexer.ProjectionTree[K],
	keyBytes func(K) []byte,
	flowByteOffset map[int]uint64,
	startTS, endTS fidx.Timeval32,
	offset64 bool,
) error {
	var entries []fidx.Entry
	tree.InOrder(func(idx int) {
		key := tree.Key(idx)
		flows := *tree.Value(idx)
		offsets := make([]uint64, 0, len(flows))
		for _, flowIdx := range flows {
			offsets = append(offsets, flowByteOffset[flowIdx])
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		kb := keyBytes(key)
		for _, off := range offsets {
			entries = append(entries, fidx.Entry{Key: kb, Offset: off})
		}
	})

	path := filepath.Join(indexPath, kt.String())
	if err := fidx.WriteFile(path, kt, entries, startTS, endTS, offset64); err != nil {
		return fmt.Errorf("writer: write %s index: %w", kt, err)
	}
	return nil
}

// needsOffset64 reports whether a FLOW index's FCAP offsets require
// 64-bit storage: the FCAP file's final size exceeds 2^32-1 (§4.F).
func needsOffset64(entries []fidx.Entry) bool {
	var max uint64
	for _, e := range entries {
		if e.Offset > max {
			max = e.Offset
		}
	}
	return max > 0xffffffff
}
