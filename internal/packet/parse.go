package packet

import (
	"encoding/binary"
	"net"
)

// parseError classifies where in the header chain a parse gave up. It is
// intentionally unexported: callers only need the Result flags ParsePacket
// derives from it, the same way packet_parse only ever looked at the sign
// of datalink_parse/ipv4_parse/ipv6_parse's return value.
type parseError struct {
	truncated  bool
	unhandled  bool
	excessVLAN bool
	excessMPLS bool
}

func (e *parseError) Error() string {
	switch {
	case e.excessVLAN:
		return "packet: too many VLAN tags"
	case e.excessMPLS:
		return "packet: too many MPLS labels"
	case e.unhandled:
		return "packet: unhandled encapsulation"
	default:
		return "packet: truncated header"
	}
}

var (
	errTruncated  = &parseError{truncated: true}
	errUnhandled  = &parseError{unhandled: true}
	errExcessVLAN = &parseError{excessVLAN: true}
	errExcessMPLS = &parseError{excessMPLS: true}
)

const (
	ethertypeVLAN = 0x8100
	ethertypeMPLS1 = 0x8847
	ethertypeMPLS2 = 0x8848
)

// parseDatalink walks the Ethernet header, stripping up to maxVLANTags
// 802.1Q tags and maxMPLSLabel MPLS labels, and returns the offset of the
// first network-layer byte.
func parseDatalink(data []byte) (int, error) {
	if len(data) < 14 {
		return 0, errTruncated
	}
	pos := 12 // skip dst mac, src mac

	vlans := 0
	for len(data) >= pos+2 && binary.BigEndian.Uint16(data[pos:]) == ethertypeVLAN {
		if len(data)-pos < 4 {
			return 0, errTruncated
		}
		pos += 4
		vlans++
		if vlans > maxVLANTags {
			return 0, errExcessVLAN
		}
	}

	if len(data) < pos+2 {
		return 0, errTruncated
	}
	ethertype := binary.BigEndian.Uint16(data[pos:])
	pos += 2

	if ethertype == ethertypeMPLS1 || ethertype == ethertypeMPLS2 {
		labels := 0
		for {
			if len(data) < pos+4 {
				return 0, errTruncated
			}
			bos := data[pos+2] & 0x01
			pos += 4
			labels++
			if bos != 0 {
				break
			}
			if labels > maxMPLSLabel {
				return 0, errExcessMPLS
			}
		}
	}

	return pos, nil
}

// parseIPv4 reads the source/destination address and protocol, and returns
// the offset past the (possibly option-bearing) IPv4 header.
func parseIPv4(data []byte, pos int) (int, uint8, net.IP, net.IP, error) {
	if len(data)-pos < 20 {
		return 0, 0, nil, nil, errTruncated
	}
	hlen := int(data[pos] & 0x0f)
	proto := data[pos+9]
	src := net.IP(append(net.IP(nil), data[pos+12:pos+16]...))
	dst := net.IP(append(net.IP(nil), data[pos+16:pos+20]...))
	return pos + 4*hlen, proto, src, dst, nil
}

// parseIPv6 reads the fixed header and walks the extension header chain
// (hop-by-hop/destination/routing options, the authentication header, ESP,
// and mobility headers) to find the transport-layer offset, matching the
// original header walk byte-for-byte including its non-RFC-compliant
// hop-by-hop/dest/routing length stepping (pos += len+1, not (len+1)*8).
func parseIPv6(data []byte, pos int) (int, uint8, net.IP, net.IP, error) {
	if len(data) < pos+40 {
		return 0, 0, nil, nil, errTruncated
	}
	src := net.IP(append(net.IP(nil), data[pos+8:pos+24]...))
	dst := net.IP(append(net.IP(nil), data[pos+24:pos+40]...))
	nextHdr := data[pos+6]
	pos += 40

	for {
		switch nextHdr {
		case ProtoHOPOPTS, ProtoDSTOPTS, ProtoROUTING:
			if len(data) < pos+16 {
				return 0, 0, nil, nil, errTruncated
			}
			nextHdr = data[pos]
			pos += int(data[pos+1]) + 1
		case ProtoAH:
			if len(data) < pos+2 {
				return 0, 0, nil, nil, errTruncated
			}
			nextHdr = data[pos]
			pos += (int(data[pos+1]) + 2) * 4
			if len(data) < pos {
				return 0, 0, nil, nil, errTruncated
			}
		case ProtoESP:
			return pos, ProtoESP, src, dst, nil
		case ProtoMOBILITY:
			if len(data) < pos+2 {
				return 0, 0, nil, nil, errTruncated
			}
			nextHdr = data[pos]
			pos += int(data[pos+1]) * 8
			if len(data) < pos {
				return 0, 0, nil, nil, errTruncated
			}
		case ProtoFRAGMENT, ProtoTCP, ProtoUDP:
			return pos, nextHdr, src, dst, nil
		default:
			return 0, nextHdr, src, dst, errUnhandled
		}
	}
}

// parseTCP reads the source/destination ports; it does not validate the
// rest of the TCP header since only the five-tuple is indexed.
func parseTCP(data []byte, pos int) (uint16, uint16, error) {
	if len(data)-pos < 4 {
		return 0, 0, errTruncated
	}
	return binary.BigEndian.Uint16(data[pos:]), binary.BigEndian.Uint16(data[pos+2:]), nil
}

// parseUDP reads the source/destination ports.
func parseUDP(data []byte, pos int) (uint16, uint16, error) {
	if len(data)-pos < 8 {
		return 0, 0, errTruncated
	}
	return binary.BigEndian.Uint16(data[pos:]), binary.BigEndian.Uint16(data[pos+2:]), nil
}

// ParsePacket extracts the five-tuple from one captured frame, matching
// packet_parse's layered walk: datalink, then IPv4/IPv6 by ethertype guess
// (the first nibble of the network-layer byte), then TCP/UDP ports.
//
// It never returns a hard error: every outcome is expressed as a Result,
// since a drop is never appropriate here — the packet is already
// committed to the bucket and must be stored with whatever partial
// five-tuple was recovered (§7, PARSE kind). The caller (the indexer)
// always inserts the packet into the flow tree regardless of how far
// parsing got, exactly as index_bucket does.
func ParsePacket(data []byte) Result {
	var res Result

	pos, err := parseDatalink(data)
	if err != nil {
		res.DLLError = true
		return res
	}
	if len(data) <= pos {
		res.DLLError = true
		res.OtherNetLayer = true
		return res
	}

	versionNibble := data[pos] >> 4
	var proto uint8

	switch versionNibble {
	case 4:
		res.Tuple.Vers = IPv4
		var nextPos int
		nextPos, proto, res.Tuple.SrcIP, res.Tuple.DstIP, err = parseIPv4(data, pos)
		if err != nil {
			res.NetworkError = true
			return res
		}
		pos = nextPos
	case 6:
		res.Tuple.Vers = IPv6
		var nextPos int
		nextPos, proto, res.Tuple.SrcIP, res.Tuple.DstIP, err = parseIPv6(data, pos)
		if err == errUnhandled {
			// Recognized but unhandled extension chain: not an error,
			// but the transport layer was never reached.
			res.Tuple.Proto = proto
			return res
		}
		if err != nil {
			res.NetworkError = true
			return res
		}
		pos = nextPos
	default:
		res.DLLError = true
		res.OtherNetLayer = true
		return res
	}

	res.Tuple.Proto = proto
	res.ReachedTransport = true

	switch proto {
	case ProtoTCP:
		sp, dp, err := parseTCP(data, pos)
		if err != nil {
			res.TransportError = true
			return res
		}
		res.Tuple.SrcPort, res.Tuple.DstPort = sp, dp
	case ProtoUDP:
		sp, dp, err := parseUDP(data, pos)
		if err != nil {
			res.TransportError = true
			return res
		}
		res.Tuple.SrcPort, res.Tuple.DstPort = sp, dp
	}

	return res
}
