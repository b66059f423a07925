package header_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/impact-eintr/ministack/tcpip/header"
)

func TestChecksum(t *testing.T) {
	// RFC 1071 的例子 00 01 f2 03 f4 f5 f6 f7 -> 和为 ddf2
	buf := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	assert.Equal(t, uint16(0xddf2), header.Checksum(buf, 0))
}

func TestChecksumOddLength(t *testing.T) {
	// 奇数长度 最后一个字节当作高位补零
	assert.Equal(t, header.Checksum([]byte{0x12, 0x34, 0x56, 0x00}, 0), header.Checksum([]byte{0x12, 0x34, 0x56}, 0))
}

func TestChecksumSplit(t *testing.T) {
	buf := make([]byte, 1024)
	r := rand.New(rand.NewSource(1))
	for i := range buf {
		buf[i] = uint8(r.Intn(256))
	}
	sum := header.Checksum(buf, 0)
	// 在偶数边界上切开计算 结果一致
	assert.Equal(t, sum, header.Checksum(buf[512:], header.Checksum(buf[:512], 0)))

	// 写入取反后的校验和 整体再算一遍应当得到 0xffff
	withSum := append(append([]byte{}, buf...), byte(^sum>>8), byte(^sum))
	assert.Equal(t, uint16(0xffff), header.Checksum(withSum, 0))
}

func TestIPv4HeaderEncode(t *testing.T) {
	b := header.IPv4(make([]byte, header.IPv4MinimumSize))
	b.Encode(&header.IPv4Fields{
		IHL:            header.IPv4MinimumSize,
		TotalLength:    1500,
		ID:             7,
		Flags:          header.IPv4FlagMoreFragments,
		FragmentOffset: 2960,
		TTL:            64,
		Protocol:       uint8(header.UDPProtocolNumber),
		SrcAddr:        "\x0a\x00\x00\x01",
		DstAddr:        "\x0a\x00\x00\x02",
	})
	b.SetChecksum(^b.CalculateChecksum())

	assert.Equal(t, header.IPv4Version, header.IPVersion(b))
	assert.Equal(t, uint8(20), b.HeaderLength())
	assert.Equal(t, uint16(1500), b.TotalLength())
	assert.Equal(t, uint16(7), b.ID())
	assert.True(t, b.MoreFragments())
	assert.True(t, b.IsFragment())
	assert.Equal(t, uint16(2960), b.FragmentOffset())
	assert.Equal(t, uint16(0xffff), b.CalculateChecksum())
	assert.Equal(t, "10.0.0.1", b.SourceAddress().String())
	assert.Equal(t, "10.0.0.2", b.DestinationAddress().String())
}

func TestIPv4IsValid(t *testing.T) {
	b := header.IPv4(make([]byte, 40))
	b.Encode(&header.IPv4Fields{IHL: header.IPv4MinimumSize, TotalLength: 40})
	assert.True(t, b.IsValid(40))
	// 总长度比收到的字节多
	assert.False(t, b.IsValid(39))

	b.SetTotalLength(header.IPv4MinimumSize - 1)
	assert.False(t, b.IsValid(40))

	b.Encode(&header.IPv4Fields{IHL: 16, TotalLength: 40})
	assert.False(t, b.IsValid(40))

	assert.False(t, b[:header.IPv4MinimumSize-1].IsValid(40))
}

func TestARPIsValid(t *testing.T) {
	a := header.ARP(make([]byte, header.ARPSize))
	a.SetIPv4OverEthernet()
	a.SetOp(header.ARPRequest)
	assert.True(t, a.IsValid())
	assert.Equal(t, header.ARPRequest, a.Op())

	assert.False(t, a[:header.ARPSize-1].IsValid())

	a[5] = 16 // 协议地址长度不对
	assert.False(t, a.IsValid())
}
