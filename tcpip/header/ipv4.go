package header

import (
	"encoding/binary"
	"fmt"

	"github.com/impact-eintr/ministack/tcpip"
)

/*
|Version 4b|IHL 4b|Type of Service 8b|    Total Length 16b       |
 ----------------------------------------------------------------
|           fragment ID 16b          |R|DF|MF|Fragment Offset 13b|
 ----------------------------------------------------------------
|     TTL 8b      |    Protocol 8b   |   Header Checksum 16b     | 20 bytes
 ----------------------------------------------------------------
|                     Source IP Address 32b                      |
 ----------------------------------------------------------------
|                  Destination IP Address 32b                    |
 ----------------------------------------------------------------
|               Options                           |    Padding   |
*/

const (
	versIHL  = 0
	tos      = 1
	totalLen = 2
	id       = 4
	flagsFO  = 6
	ttl      = 8
	protocol = 9
	checksum = 10
	srcAddr  = 12
	dstAddr  = 16
)

// 表示IPv4头部信息的结构体
type IPv4Fields struct {
	// 头部长度 单位是字节 编码时会除以4
	IHL uint8

	// 服务区分的表示
	TOS uint8

	// 数据报文总长
	TotalLength uint16

	// 标识符 注意这个ID对于每个IP报文来说是唯一的 它的每个分片共享这个ID来标识它们同属一个报文
	ID uint16

	// 标签
	Flags uint8

	// 分片偏移 单位是字节 必须是8的倍数
	FragmentOffset uint16

	// 存活时间
	TTL uint8

	// 表示的传输层协议
	Protocol uint8

	// 首部校验和
	Checksum uint16

	// 源IP地址
	SrcAddr tcpip.Address

	// 目的IP地址
	DstAddr tcpip.Address
}

type IPv4 []byte

const (
	// IPv4MinimumSize is the minimum size of a valid IPv4 packet.
	IPv4MinimumSize = 20

	// IPv4MaximumHeaderSize is the maximum size of an IPv4 header. Given
	// that there are only 4 bits to represents the header length in 32-bit
	// units, the header cannot exceed 15*4 = 60 bytes.
	IPv4MaximumHeaderSize = 60

	// IPv4AddressSize is the size, in bytes, of an IPv4 address.
	IPv4AddressSize = 4

	// IPv4ProtocolNumber is IPv4's network protocol number.
	IPv4ProtocolNumber tcpip.NetworkProtocolNumber = 0x0800

	// IPv4Version is the version of the ipv4 protocol.
	IPv4Version = 4

	// IPv4Broadcast is the broadcast address of the IPv4 procotol.
	IPv4Broadcast tcpip.Address = "\xff\xff\xff\xff"

	// IPv4Any is the non-routable IPv4 "any" meta address.
	IPv4Any tcpip.Address = "\x00\x00\x00\x00"

	// IPv4FragmentUnit 分片偏移以8字节为单位
	IPv4FragmentUnit = 8
)

// Flags that may be set in an IPv4 packet.
const (
	IPv4FlagMoreFragments = 1 << iota
	IPv4FlagDontFragment
)

func IPVersion(b []byte) int {
	if len(b) < versIHL+1 {
		return -1
	}
	return int(b[versIHL] >> 4)
}

// 首部长度说明首部有多少 32 位字（4 字节） 这个函数返回其实际占用的字节数
func (b IPv4) HeaderLength() uint8 {
	return (b[versIHL] & 0xf) * 4
}

func (b IPv4) ID() uint16 {
	return binary.BigEndian.Uint16(b[id:])
}

// Protocol returns the value of the protocol field of the ipv4 header.
func (b IPv4) Protocol() uint8 {
	return b[protocol]
}

// Flags returns the "flags" field of the ipv4 header.
func (b IPv4) Flags() uint8 {
	return uint8(binary.BigEndian.Uint16(b[flagsFO:]) >> 13)
}

// MoreFragments MF 标志位
func (b IPv4) MoreFragments() bool {
	return b.Flags()&IPv4FlagMoreFragments != 0
}

// TTL returns the "TTL" field of the ipv4 header.
func (b IPv4) TTL() uint8 {
	return b[ttl]
}

// FragmentOffset returns the "fragment offset" field of the ipv4 header in bytes.
func (b IPv4) FragmentOffset() uint16 {
	return binary.BigEndian.Uint16(b[flagsFO:]) << 3
}

// IsFragment 报文是否是某个数据报的一个分片
func (b IPv4) IsFragment() bool {
	return b.MoreFragments() || b.FragmentOffset() != 0
}

// TotalLength returns the "total length" field of the ipv4 header.
func (b IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(b[totalLen:])
}

// Checksum returns the checksum field of the ipv4 header.
func (b IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[checksum:])
}

// SourceAddress returns the "source address" field of the ipv4 header.
func (b IPv4) SourceAddress() tcpip.Address {
	return tcpip.Address(b[srcAddr : srcAddr+IPv4AddressSize])
}

// DestinationAddress returns the "destination address" field of the ipv4
// header.
func (b IPv4) DestinationAddress() tcpip.Address {
	return tcpip.Address(b[dstAddr : dstAddr+IPv4AddressSize])
}

// TransportProtocol implements Network.TransportProtocol.
func (b IPv4) TransportProtocol() tcpip.TransportProtocolNumber {
	return tcpip.TransportProtocolNumber(b.Protocol())
}

// SetTotalLength sets the "total length" field of the ipv4 header.
func (b IPv4) SetTotalLength(totalLength uint16) {
	binary.BigEndian.PutUint16(b[totalLen:], totalLength)
}

// SetChecksum sets the checksum field of the ipv4 header.
func (b IPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[checksum:], v)
}

// SetFlagsFragmentOffset sets the "flags" and "fragment offset" fields of the
// ipv4 header. offset 以字节为单位
func (b IPv4) SetFlagsFragmentOffset(flags uint8, offset uint16) {
	v := (uint16(flags) << 13) | (offset >> 3)
	binary.BigEndian.PutUint16(b[flagsFO:], v)
}

// CalculateChecksum calculates the checksum of the ipv4 header.
func (b IPv4) CalculateChecksum() uint16 {
	return Checksum(b[:b.HeaderLength()], 0)
}

// Encode encodes all the fields of the ipv4 header.
func (b IPv4) Encode(i *IPv4Fields) {
	b[versIHL] = (IPv4Version << 4) | ((i.IHL / 4) & 0xf)
	b[tos] = i.TOS
	b.SetTotalLength(i.TotalLength)
	binary.BigEndian.PutUint16(b[id:], i.ID)
	b.SetFlagsFragmentOffset(i.Flags, i.FragmentOffset)
	b[ttl] = i.TTL
	b[protocol] = i.Protocol
	b.SetChecksum(i.Checksum)
	copy(b[srcAddr:srcAddr+IPv4AddressSize], i.SrcAddr)
	copy(b[dstAddr:dstAddr+IPv4AddressSize], i.DstAddr)
}

// IsValid performs basic validation on the packet.
// pktSize 是实际收到的字节数 总长度不能超过它
func (b IPv4) IsValid(pktSize int) bool {
	if len(b) < IPv4MinimumSize {
		return false
	}

	hlen := int(b.HeaderLength())
	tlen := int(b.TotalLength())
	if hlen < IPv4MinimumSize || hlen > tlen || tlen > pktSize {
		return false
	}

	return true
}

func (b IPv4) String() string {
	if len(b) < IPv4MinimumSize {
		return fmt.Sprintf("ipv4 truncated %d bytes", len(b))
	}
	return fmt.Sprintf("ipv4 %s -> %s proto=%d len=%d id=%d flags=%03b off=%d ttl=%d csum=%#04x",
		b.SourceAddress(), b.DestinationAddress(), b.Protocol(), b.TotalLength(),
		b.ID(), b.Flags(), b.FragmentOffset(), b.TTL(), b.Checksum())
}
