// Package packet parses raw Ethernet frames into the five-tuple fields the
// indexer keys flows on: source/destination address, source/destination
// port, and transport protocol. It mirrors the original capture engine's
// single-pass, allocation-free header walk rather than a general-purpose
// decoder: anything past the five-tuple is left unexamined (§4.D, §1
// Non-goals).
package packet

import "net"

// IPVersion tags which address family a FiveTuple's addresses carry.
type IPVersion uint8

const (
	IPUnknown IPVersion = 0
	IPv4      IPVersion = 4
	IPv6      IPVersion = 6
)

// Transport protocol numbers the indexer cares about. Named the way the
// capture engine names them, not after the IANA registry entries.
const (
	ProtoHOPOPTS  = 0
	ProtoTCP      = 6
	ProtoUDP      = 17
	ProtoROUTING  = 43
	ProtoFRAGMENT = 44
	ProtoESP      = 50
	ProtoAH       = 51
	ProtoDSTOPTS  = 60
	ProtoMOBILITY = 135
)

const (
	maxVLANTags  = 3
	maxMPLSLabel = 3
)

// FiveTuple identifies a flow. Zero ports are valid (non-TCP/UDP
// transports); Proto 0 means "no transport layer was reached".
type FiveTuple struct {
	Vers    IPVersion
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// Result is what ParsePacket returns: the five-tuple extracted so far —
// partial on error, per §7's PARSE kind ("packet still stored, five-tuple
// partial") — plus the set of stats counters packet_parse's control flow
// says should fire for this packet. A packet is still indexed on any
// error; these flags only drive ChainStats accounting (§4.D).
type Result struct {
	Tuple FiveTuple

	// DLLError fires on a truncated Ethernet/VLAN/MPLS header, or
	// together with OtherNetLayer when the ethertype is neither IPv4 nor
	// IPv6 (packet_parse folds that case into dll_errors too).
	DLLError bool
	// OtherNetLayer fires when datalink parsing succeeded but the
	// network-layer ethertype is neither IPv4 nor IPv6.
	OtherNetLayer bool
	// NetworkError fires when IPv4/IPv6 parsing was attempted and
	// truncated. It does NOT fire for an unhandled-but-recognized IPv6
	// extension header chain (PE_UNHANDLED) — "that's not really an
	// error" in the original's own words.
	NetworkError bool
	// ReachedTransport is true once the network layer parsed far enough
	// to dispatch on Tuple.Proto; Transport[Proto] is only counted when
	// this is set (§4.D "transport[proto]").
	ReachedTransport bool
	// TransportError fires when a TCP/UDP header was attempted and found
	// truncated.
	TransportError bool
}
