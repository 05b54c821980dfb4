package packet

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ethHeader(ethertype uint16) []byte {
	b := make([]byte, 14)
	binary.BigEndian.PutUint16(b[12:], ethertype)
	return b
}

func assertNoErrors(t *testing.T, res Result) {
	t.Helper()
	assert.False(t, res.DLLError)
	assert.False(t, res.OtherNetLayer)
	assert.False(t, res.NetworkError)
	assert.False(t, res.TransportError)
}

func udpIPv4Packet(t *testing.T, src, dst net.IP, srcPort, dstPort uint16) []byte {
	t.Helper()
	frame := ethHeader(0x0800)

	ip := make([]byte, 20)
	ip[0] = 0x45 // version 4, IHL 5
	ip[9] = ProtoUDP
	copy(ip[12:16], src.To4())
	copy(ip[16:20], dst.To4())

	udp := make([]byte, 8+4)
	binary.BigEndian.PutUint16(udp[0:], srcPort)
	binary.BigEndian.PutUint16(udp[2:], dstPort)

	return append(append(frame, ip...), udp...)
}

func TestParsePacketIPv4UDP(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")
	data := udpIPv4Packet(t, src, dst, 1111, 2222)

	res := ParsePacket(data)
	assertNoErrors(t, res)
	require.True(t, res.ReachedTransport)
	assert.Equal(t, IPv4, res.Tuple.Vers)
	assert.True(t, res.Tuple.SrcIP.Equal(src))
	assert.True(t, res.Tuple.DstIP.Equal(dst))
	assert.EqualValues(t, 1111, res.Tuple.SrcPort)
	assert.EqualValues(t, 2222, res.Tuple.DstPort)
	assert.EqualValues(t, ProtoUDP, res.Tuple.Proto)
}

func TestParsePacketTruncatedEthernet(t *testing.T) {
	res := ParsePacket(make([]byte, 10))
	assert.True(t, res.DLLError)
	assert.False(t, res.ReachedTransport)
}

func TestParsePacketVLANTagStripped(t *testing.T) {
	frame := make([]byte, 12) // dst/src mac
	vlan := make([]byte, 4)   // TPID(2) + TCI(2)
	binary.BigEndian.PutUint16(vlan[0:], ethertypeVLAN)
	frame = append(frame, vlan...)
	frame = append(frame, 0x08, 0x00) // real ethertype, IPv4
	// frame is now: 12 bytes macs + VLAN tag(4) + ethertype(2) = 18 bytes, no payload.

	ip := make([]byte, 20)
	ip[0] = 0x45
	ip[9] = ProtoTCP
	src := net.ParseIP("192.168.1.1").To4()
	dst := net.ParseIP("192.168.1.2").To4()
	copy(ip[12:16], src)
	copy(ip[16:20], dst)
	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:], 80)
	binary.BigEndian.PutUint16(tcp[2:], 443)
	tcp[12] = 5 << 4 // data offset 5 words

	data := append(frame, append(ip, tcp...)...)

	res := ParsePacket(data)
	assertNoErrors(t, res)
	require.True(t, res.ReachedTransport)
	assert.EqualValues(t, 80, res.Tuple.SrcPort)
	assert.EqualValues(t, 443, res.Tuple.DstPort)
}

func TestParsePacketExcessVLANTags(t *testing.T) {
	frame := make([]byte, 12)
	for i := 0; i < maxVLANTags+1; i++ {
		tag := make([]byte, 4)
		binary.BigEndian.PutUint16(tag[0:], ethertypeVLAN)
		frame = append(frame, tag...)
	}
	frame = append(frame, 0x08, 0x00)

	res := ParsePacket(frame)
	assert.True(t, res.DLLError)
	assert.False(t, res.ReachedTransport)
}

func TestParsePacketIPv6ESPTerminatesParse(t *testing.T) {
	frame := ethHeader(0x86DD)
	ip6 := make([]byte, 40)
	ip6[6] = ProtoESP
	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2001:db8::2")
	copy(ip6[8:24], src.To16())
	copy(ip6[24:40], dst.To16())

	data := append(frame, ip6...)
	res := ParsePacket(data)
	assertNoErrors(t, res)
	require.True(t, res.ReachedTransport)
	assert.EqualValues(t, ProtoESP, res.Tuple.Proto)
	assert.True(t, res.Tuple.SrcIP.Equal(src))
	assert.True(t, res.Tuple.DstIP.Equal(dst))
	// ESP terminates the walk before any port extraction.
	assert.EqualValues(t, 0, res.Tuple.SrcPort)
}

func TestParsePacketIPv6HopByHopThenUDP(t *testing.T) {
	frame := ethHeader(0x86DD)
	ip6 := make([]byte, 40)
	ip6[6] = ProtoHOPOPTS
	src := net.ParseIP("fe80::1")
	dst := net.ParseIP("fe80::2")
	copy(ip6[8:24], src.To16())
	copy(ip6[24:40], dst.To16())

	hopopts := make([]byte, 16)
	hopopts[0] = ProtoUDP
	hopopts[1] = 15 // pos advances by len+1 = 16, matching the fixed option size here

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:], 53)
	binary.BigEndian.PutUint16(udp[2:], 5353)

	data := append(append(frame, ip6...), append(hopopts, udp...)...)
	res := ParsePacket(data)
	assertNoErrors(t, res)
	require.True(t, res.ReachedTransport)
	assert.EqualValues(t, ProtoUDP, res.Tuple.Proto)
	assert.EqualValues(t, 53, res.Tuple.SrcPort)
	assert.EqualValues(t, 5353, res.Tuple.DstPort)
}

func TestParsePacketIPv6UnhandledExtensionIsNotAnError(t *testing.T) {
	frame := ethHeader(0x86DD)
	ip6 := make([]byte, 40)
	ip6[6] = 99 // unrecognized next-header value
	src := net.ParseIP("fe80::1")
	dst := net.ParseIP("fe80::2")
	copy(ip6[8:24], src.To16())
	copy(ip6[24:40], dst.To16())

	data := append(frame, ip6...)
	res := ParsePacket(data)
	assertNoErrors(t, res)
	assert.False(t, res.ReachedTransport)
	assert.EqualValues(t, 99, res.Tuple.Proto)
}

func TestParsePacketUnknownEthertypeIsOtherNetLayer(t *testing.T) {
	res := ParsePacket(ethHeader(0x88CC)) // LLDP
	assert.True(t, res.DLLError)
	assert.True(t, res.OtherNetLayer)
	assert.False(t, res.ReachedTransport)
}
