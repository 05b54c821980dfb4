package fidx

import (
	"encoding/binary"
	"io"
	"os"
)

// Entry is one (key, offset) row in a FIDX main section. Key must be
// exactly KeyType.KeySize() bytes. Entries for a given KeyType must
// already be sorted ascending by Key, and — within a run of equal keys —
// ascending by Offset, matching write_index's assumption that a
// projection tree's flow list is written in the order §4.G's scan
// expects to find it (§4.F "Flow record write").
type Entry struct {
	Key    []byte
	Offset uint64
}

// WriteFile writes a complete FIDX file at path: the 4096-byte
// header-and-preview block followed by the sorted (key, offset) rows.
// offset64 should be set once the caller knows the referenced file (the
// FCAP file for a FLOW index, or the FLOW FIDX file for a projection
// index) exceeds 2^32-1 bytes (§4.F).
func WriteFile(path string, kt KeyType, entries []Entry, startTS, endTS Timeval32, offset64 bool) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(f, kt, entries, startTS, endTS, offset64)
}

// Write streams one FIDX file's bytes to w, which must be freshly
// positioned at offset 0 (a newly created or truncated file).
func Write(w io.Writer, kt KeyType, entries []Entry, startTS, endTS Timeval32, offset64 bool) error {
	depth := previewDepth(kt, len(entries))
	var ranks []int
	if depth > 0 {
		ranks = selectPreviewRanks(len(entries), depth)
	}

	header := Header{
		Version:  1,
		Offset64: offset64,
		KeyType:  kt,
		Preview:  uint16(len(ranks)),
		StartTS:  startTS,
		EndTS:    endTS,
		Records:  uint64(len(entries)),
	}

	block := make([]byte, blockSize)
	copy(block, header.marshal())

	keySize := kt.KeySize()
	pos := headerSize
	for _, rank := range ranks {
		key := entries[rank-1].Key
		if pos+keySize > blockSize {
			// The preview depth calculation guarantees the preview fits
			// in one block; this would mean previewDepth is wrong.
			return fidxError("fidx: preview overflowed header block")
		}
		copy(block[pos:], key)
		pos += keySize
	}
	if _, err := w.Write(block); err != nil {
		return err
	}

	offSize := offsetSize(offset64)
	row := make([]byte, keySize+offSize)
	for _, e := range entries {
		copy(row, e.Key)
		if offset64 {
			binary.LittleEndian.PutUint64(row[keySize:], e.Offset)
		} else {
			binary.LittleEndian.PutUint32(row[keySize:], uint32(e.Offset))
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
