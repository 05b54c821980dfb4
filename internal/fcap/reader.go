package fcap

import "os"

// Reader provides random access into an FCAP file by byte offset, the
// access pattern packet materialization (§4.J) needs: given a flow's
// FCAP offset from a FIDX FLOW record, read that flow's packets forward
// one record at a time.
type Reader struct {
	f      *os.File
	Header FileHeader
}

// Open reads path's file header and returns a Reader ready for
// ReadPacketAt calls.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, err
	}
	header, err := UnmarshalFileHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, Header: header}, nil
}

// ReadPacketAt reads the record header and payload starting at offset,
// returning the offset immediately following the record (the next
// record's offset, for sequential iteration through a flow's packets).
func (r *Reader) ReadPacketAt(offset uint64) (hdr RecordHeader, payload []byte, next uint64, err error) {
	hdrBuf := make([]byte, RecordHeaderSize)
	if _, err := r.f.ReadAt(hdrBuf, int64(offset)); err != nil {
		return RecordHeader{}, nil, 0, err
	}
	hdr, err = UnmarshalRecordHeader(hdrBuf)
	if err != nil {
		return RecordHeader{}, nil, 0, err
	}

	payload = make([]byte, hdr.CapLen)
	if hdr.CapLen > 0 {
		n, err := r.f.ReadAt(payload, int64(offset)+int64(RecordHeaderSize))
		if err != nil || uint32(n) != hdr.CapLen {
			return RecordHeader{}, nil, 0, errShortPayload
		}
	}

	next = offset + uint64(RecordHeaderSize) + uint64(hdr.CapLen)
	return hdr, payload, next, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Fd returns the underlying file descriptor, for callers that want to
// issue POSIX file-advice hints (§4.J's WILLNEED/RANDOM and DONTNEED)
// around a read pattern this package has no opinion on.
func (r *Reader) Fd() uintptr { return r.f.Fd() }
