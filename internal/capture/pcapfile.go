package capture

import (
	"fmt"
	"io"

	"github.com/dirtbags/pcapdb/internal/fcap"
)

// FileSource replays a standard pcap-format file (classic libpcap header
// and pcap_pkthdr32 records — exactly what internal/fcap already parses)
// as a Source. It is the offline half of spec.md §1's "live network
// interfaces (or offline capture files)" input modes; the live half (a
// kernel packet ring) is the out-of-scope driver §1 names and is
// deliberately not implemented here.
//
// FileSource is not a rendering of any original_source file: pcapdb's C
// implementation never replayed a capture file as its own input. It
// exists so cmd/pcapdb's capture subcommand has a real, runnable source
// without reaching for a driver this module has no business shipping.
type FileSource struct {
	r      *fcap.Reader
	offset uint64
	eof    bool
}

// OpenFileSource opens path as a replay Source.
func OpenFileSource(path string) (*FileSource, error) {
	r, err := fcap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open replay file %s: %w", path, err)
	}
	return &FileSource{r: r, offset: fcap.FileHeaderSize}, nil
}

// Dispatch reads up to limit packets sequentially from the file,
// invoking handler once per packet in on-disk order. It returns 0, nil
// once the file is exhausted, the file-mode EOF contract State.Run
// relies on to end its capture loop.
func (s *FileSource) Dispatch(limit int, handler func(Frame)) (int, error) {
	if s.eof {
		return 0, nil
	}

	n := 0
	for n < limit {
		hdr, payload, next, err := s.r.ReadPacketAt(s.offset)
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			s.eof = true
			break
		}
		s.offset = next
		handler(Frame{TSSec: hdr.TSSec, TSUsec: hdr.TSUsec, WireLen: hdr.WireLen, Payload: payload})
		n++
	}
	return n, nil
}

// Stats always reports zero: a replayed file carries no live interface
// drop counters.
func (s *FileSource) Stats() (seen, sysDropped uint64, is32Bit bool) { return 0, 0, false }

// Close closes the underlying file.
func (s *FileSource) Close() error { return s.r.Close() }
