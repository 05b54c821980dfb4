// Package fcap implements the FCAP capture file format (§6.1): a
// standard libpcap file — magic, version, snaplen, linktype — followed
// by records, each a 32-bit pcap_pkthdr32 plus its captured bytes, with
// no inter-record padding. It is the Go rendering of
// original_source/indexer/output.c's fcap_open/write_flow and
// fcap2pcap.c's header reinterpretation.
package fcap

import "encoding/binary"

// magic is the standard libpcap magic number, written little-endian.
const magic uint32 = 0xa1b2c3d4

const (
	versionMajor uint16 = 2
	versionMinor uint16 = 4

	// snaplen is the max captured length pcapdb ever writes per packet
	// (indexer/output.c's fcap_open).
	snaplen uint32 = 65535

	// linkTypeEthernet is LINKTYPE_ETHERNET; pcapdb only ever captures
	// Ethernet frames.
	linkTypeEthernet uint32 = 1
)

// FileHeaderSize is the fixed size of a pcap_file_header.
const FileHeaderSize = 24

// RecordHeaderSize is the fixed size of one pcap_pkthdr32.
const RecordHeaderSize = 16

// FileHeader is the standard libpcap file header. Sigfigs is repurposed
// by pcapdb to carry the packet count (fcap_open's comment: "Number of
// packets in the fcap"), capped at 2^32-1 — fcap2pcap.c reads it back out
// under that same repurposed meaning before zeroing it for a real pcap
// reader.
type FileHeader struct {
	PacketCount uint32
}

// Marshal encodes h as a 24-byte pcap_file_header.
func (h FileHeader) Marshal() []byte {
	buf := make([]byte, FileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], versionMajor)
	binary.LittleEndian.PutUint16(buf[6:8], versionMinor)
	binary.LittleEndian.PutUint32(buf[8:12], 0) // thiszone: GMT
	binary.LittleEndian.PutUint32(buf[12:16], h.PacketCount)
	binary.LittleEndian.PutUint32(buf[16:20], snaplen)
	binary.LittleEndian.PutUint32(buf[20:24], linkTypeEthernet)
	return buf
}

// UnmarshalFileHeader decodes a pcap_file_header, returning the packet
// count pcapdb smuggled into the sigfigs field.
func UnmarshalFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, errShortHeader
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != magic {
		return FileHeader{}, errBadMagic
	}
	return FileHeader{PacketCount: binary.LittleEndian.Uint32(buf[12:16])}, nil
}

// RecordHeader is one pcap_pkthdr32: capture timestamp, captured length,
// and original on-wire length.
type RecordHeader struct {
	TSSec   uint32
	TSUsec  uint32
	CapLen  uint32
	WireLen uint32
}

// Marshal encodes h as a 16-byte pcap_pkthdr32.
func (h RecordHeader) Marshal() []byte {
	buf := make([]byte, RecordHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.TSSec)
	binary.LittleEndian.PutUint32(buf[4:8], h.TSUsec)
	binary.LittleEndian.PutUint32(buf[8:12], h.CapLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.WireLen)
	return buf
}

// UnmarshalRecordHeader decodes a 16-byte pcap_pkthdr32.
func UnmarshalRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, errShortRecordHeader
	}
	return RecordHeader{
		TSSec:   binary.LittleEndian.Uint32(buf[0:4]),
		TSUsec:  binary.LittleEndian.Uint32(buf[4:8]),
		CapLen:  binary.LittleEndian.Uint32(buf[8:12]),
		WireLen: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

type fcapError string

func (e fcapError) Error() string { return string(e) }

const (
	errShortHeader       = fcapError("fcap: truncated file header")
	errBadMagic          = fcapError("fcap: bad magic number")
	errShortRecordHeader = fcapError("fcap: truncated record header")
	errShortPayload      = fcapError("fcap: truncated record payload")
)
