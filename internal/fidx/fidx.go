// Package fidx implements the on-disk index file format (§6.2): a
// left-filled implicit binary search tree serialized as a flat, sorted
// array of (key, offset) rows behind a fixed 4096-byte header-and-preview
// block. It is the Go rendering of original_source/indexer/output.c's
// write_index/write_flow machinery, generalized to all seven key types
// (FLOW plus the six projections) instead of output.c's single
// hand-written path per type.
package fidx

import "encoding/binary"

// headerIdent is the FIDX magic number, "FIDX" read little-endian.
const headerIdent uint32 = 0x58444946

// blockSize is the fixed size of the header-and-preview block every FIDX
// file starts with (§6.2 "First 4096 bytes").
const blockSize = 4096

// KeyType identifies which of the seven trees a FIDX file indexes. The
// write order the writer stage follows is exactly this iota order (§4.E
// step 3).
type KeyType uint8

const (
	Flow KeyType = iota
	SrcV4
	DstV4
	SrcV6
	DstV6
	SrcPort
	DstPort
)

// keyTypeNames names each KeyType the way kt_name does, used for the
// on-disk filename of each index (<index_path>/<keytype>).
var keyTypeNames = [...]string{"flow", "srcv4", "dstv4", "srcv6", "dstv6", "srcport", "dstport"}

func (t KeyType) String() string {
	if int(t) < len(keyTypeNames) {
		return keyTypeNames[t]
	}
	return "unknown"
}

// KeySize returns the on-disk size of one key of this type (§6.2 "Key
// sizes: v4=4, v6=16, port=2, flow=64").
func (t KeyType) KeySize() int {
	switch t {
	case Flow:
		return flowKeySize
	case SrcV4, DstV4:
		return 4
	case SrcV6, DstV6:
		return 16
	case SrcPort, DstPort:
		return 2
	default:
		return 0
	}
}

// Timeval32 is the 32-bit-field timestamp pcapdb uses everywhere on disk,
// matching libpcap's pcap_pkthdr32 rather than the host's (possibly
// 64-bit tv_sec) struct timeval.
type Timeval32 struct {
	Sec  uint32
	Usec uint32
}

// Before reports whether t sorts strictly earlier than other.
func (t Timeval32) Before(other Timeval32) bool {
	return t.Sec < other.Sec || (t.Sec == other.Sec && t.Usec < other.Usec)
}

// After reports whether t sorts strictly later than other.
func (t Timeval32) After(other Timeval32) bool {
	return t.Sec > other.Sec || (t.Sec == other.Sec && t.Usec > other.Usec)
}

// Header is the 32-byte FIDX header (§4.F "FIDX header").
type Header struct {
	Version   uint8 // low 7 bits of the packed version/offset64 byte
	Offset64  bool
	KeyType   KeyType
	Preview   uint16 // number of keys in the preview array; 0 means none
	StartTS   Timeval32
	EndTS     Timeval32
	Records   uint64
}

const headerSize = 32

// marshal writes the header in the fixed little-endian layout spec.md
// §4.F defines, including the packed version:7/offset64:1 byte.
func (h Header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], headerIdent)
	versByte := h.Version & 0x7f
	if h.Offset64 {
		versByte |= 0x80
	}
	buf[4] = versByte
	buf[5] = byte(h.KeyType)
	binary.LittleEndian.PutUint16(buf[6:8], h.Preview)
	binary.LittleEndian.PutUint32(buf[8:12], h.StartTS.Sec)
	binary.LittleEndian.PutUint32(buf[12:16], h.StartTS.Usec)
	binary.LittleEndian.PutUint32(buf[16:20], h.EndTS.Sec)
	binary.LittleEndian.PutUint32(buf[20:24], h.EndTS.Usec)
	binary.LittleEndian.PutUint64(buf[24:32], h.Records)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, errShortHeader
	}
	ident := binary.LittleEndian.Uint32(buf[0:4])
	if ident != headerIdent {
		return Header{}, errBadIdent
	}
	versByte := buf[4]
	return Header{
		Version:  versByte & 0x7f,
		Offset64: versByte&0x80 != 0,
		KeyType:  KeyType(buf[5]),
		Preview:  binary.LittleEndian.Uint16(buf[6:8]),
		StartTS: Timeval32{
			Sec:  binary.LittleEndian.Uint32(buf[8:12]),
			Usec: binary.LittleEndian.Uint32(buf[12:16]),
		},
		EndTS: Timeval32{
			Sec:  binary.LittleEndian.Uint32(buf[16:20]),
			Usec: binary.LittleEndian.Uint32(buf[20:24]),
		},
		Records: binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

type fidxError string

func (e fidxError) Error() string { return string(e) }

const (
	errShortHeader = fidxError("fidx: truncated header")
	errBadIdent    = fidxError("fidx: bad magic number")
	errShortRecord = fidxError("fidx: truncated record")
)

// offsetSize returns the on-disk width of an offset field: 32-bit unless
// the header says otherwise (§6.2).
func offsetSize(offset64 bool) int {
	if offset64 {
		return 8
	}
	return 4
}
