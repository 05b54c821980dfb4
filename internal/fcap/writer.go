package fcap

import (
	"io"
	"os"
)

// Writer appends packet records to an FCAP file, tracking the running
// offset each record starts at so callers (the writer stage's
// write_flow analogue) can record a flow's starting FCAP offset for the
// FLOW index.
type Writer struct {
	w      io.Writer
	closer io.Closer
	offset uint64
}

// Create opens path for writing, truncating any existing content, and
// reserves space for the file header (filled in by Finalize once the
// final packet count is known, matching fcap_open's "rewrite sigfigs in
// place" idiom — except pcapdb's Go writer defers the whole header write
// to the end rather than open-then-patch).
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(FileHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{w: f, closer: f, offset: FileHeaderSize}, nil
}

// NewWriter wraps an io.Writer already positioned past the file header
// (used by tests to write into a bytes.Buffer).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, offset: FileHeaderSize}
}

// Offset returns the FCAP byte offset the next WritePacket call will
// start at.
func (w *Writer) Offset() uint64 { return w.offset }

// WritePacket appends one record header and its captured payload,
// returning the offset it was written at.
func (w *Writer) WritePacket(hdr RecordHeader, payload []byte) (uint64, error) {
	start := w.offset
	if _, err := w.w.Write(hdr.Marshal()); err != nil {
		return 0, err
	}
	if _, err := w.w.Write(payload); err != nil {
		return 0, err
	}
	w.offset += uint64(RecordHeaderSize) + uint64(len(payload))
	return start, nil
}

// Finalize writes the file header with the given packet count and
// closes the underlying file. Packets beyond 2^32-1 are recorded as 0,
// matching fcap_open's overflow handling.
func (w *Writer) Finalize(packetCount uint64) error {
	f, ok := w.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	count := uint32(packetCount)
	if packetCount > 0xffffffff {
		count = 0
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(FileHeader{PacketCount: count}.Marshal()); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
