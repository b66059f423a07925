package udp_test

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	xipv4 "golang.org/x/net/ipv4"

	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/link/channel"
	"github.com/impact-eintr/ministack/tcpip/network/arp"
	"github.com/impact-eintr/ministack/tcpip/network/ipv4"
	"github.com/impact-eintr/ministack/tcpip/stack"
	"github.com/impact-eintr/ministack/tcpip/transport/udp"
)

const (
	localIP   = tcpip.Address("\x0a\x00\x00\x01")
	localMAC  = tcpip.LinkAddress("\x02\x00\x00\x00\x00\x01")
	remoteIP  = tcpip.Address("\x0a\x00\x00\x02")
	remoteMAC = tcpip.LinkAddress("\x02\x00\x00\x00\x00\x02")
)

type received struct {
	data    string
	n       int
	srcIP   tcpip.Address
	srcPort uint16
}

type testContext struct {
	t   *testing.T
	ep  *channel.Endpoint
	s   *stack.Stack
	udp *udp.Protocol
	got []received
}

func newTestContext(t *testing.T, checksum bool) *testContext {
	ep := channel.New(64, 1500, localMAC)
	s := stack.New(ep, localIP)
	a := arp.New(s, arp.Options{})
	ip := ipv4.New(s, a, ipv4.Options{})
	u := udp.New(s, ip, ip.ICMP(), udp.Options{Checksum: checksum})

	s.RegisterNetworkProtocol(a)
	s.RegisterNetworkProtocol(ip)
	s.RegisterTransportProtocol(ip.ICMP())
	s.RegisterTransportProtocol(u)

	c := &testContext{t: t, ep: ep, s: s, udp: u}
	require.Nil(t, u.Open(53, func(data []byte, n int, srcIP tcpip.Address, srcPort uint16) {
		c.got = append(c.got, received{data: string(data[:n]), n: n, srcIP: srcIP, srcPort: srcPort})
	}))
	return c
}

// learn 对端发一个 arp 请求 把它的 MAC 放进表里
func (c *testContext) learn() {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(remoteMAC),
		DstMAC:       net.HardwareAddr(tcpip.BroadcastLinkAddress),
		EthernetType: layers.EthernetTypeARP,
	}
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(remoteMAC),
		SourceProtAddress: []byte(remoteIP),
		DstHwAddress:      []byte(tcpip.ZeroLinkAddress),
		DstProtAddress:    []byte(localIP),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(c.t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, a))
	c.inject(buf.Bytes())
	c.ep.Drain()
}

func (c *testContext) inject(frame []byte) {
	c.ep.Inject(frame)
	require.True(c.t, c.s.Poll())
}

func (c *testContext) nextPacket() gopacket.Packet {
	select {
	case f := <-c.ep.C:
		return gopacket.NewPacket(f, layers.LayerTypeEthernet, gopacket.Default)
	default:
		c.t.Fatal("no frame was sent")
		return nil
	}
}

func (c *testContext) assertNoFrame() {
	select {
	case f := <-c.ep.C:
		c.t.Fatalf("unexpected frame % x", []byte(f))
	default:
	}
}

func udpLayers(dstPort uint16) (*layers.IPv4, *layers.UDP) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(remoteIP),
		DstIP:    net.IP(localIP),
	}
	u := &layers.UDP{SrcPort: 4000, DstPort: layers.UDPPort(dstPort)}
	if err := u.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return ip, u
}

func serialize(t *testing.T, ip *layers.IPv4, u gopacket.SerializableLayer, payload []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(remoteMAC),
		DstMAC:       net.HardwareAddr(localMAC),
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, u, gopacket.Payload(payload)))
	return buf.Bytes()
}

func udpFrame(t *testing.T, dstPort uint16, payload []byte) []byte {
	ip, u := udpLayers(dstPort)
	return serialize(t, ip, u, payload)
}

func TestChecksumMatchesGopacket(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("a"), []byte("hello"), []byte("hello world!")} {
		frame := udpFrame(t, 53, payload)
		p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
		u := p.Layer(layers.LayerTypeUDP).(*layers.UDP)

		v := buffer.NewViewFromBytes(append(append([]byte{}, u.Contents...), u.Payload...))
		header.UDP(v).SetChecksum(0)
		want := u.Checksum
		got := udp.Checksum(v, remoteIP, localIP)
		if got == 0 {
			got = 0xffff
		}
		assert.Equal(t, want, got, "payload %q", payload)
		// v 没有被修改
		assert.Equal(t, uint16(0), header.UDP(v).Checksum())
	}
}

func TestReceiveDelivers(t *testing.T) {
	c := newTestContext(t, true)
	c.inject(udpFrame(t, 53, []byte("query")))

	require.Len(t, c.got, 1)
	assert.Equal(t, received{data: "query", n: 5, srcIP: remoteIP, srcPort: 4000}, c.got[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(c.s.Stats().UDPDelivered))
	c.assertNoFrame()
}

func TestReceiveZeroChecksum(t *testing.T) {
	c := newTestContext(t, true)
	frame := udpFrame(t, 53, []byte("nocsum"))
	udpOff := header.EthernetMinimumSize + header.IPv4MinimumSize
	header.UDP(frame[udpOff:]).SetChecksum(0)
	c.inject(frame)
	require.Len(t, c.got, 1)
	assert.Equal(t, "nocsum", c.got[0].data)
}

func TestReceiveBadChecksum(t *testing.T) {
	c := newTestContext(t, true)
	frame := udpFrame(t, 53, []byte("corrupt"))
	// 最后几个字节是以太网填充 改负载的第一个字节
	frame[header.EthernetMinimumSize+header.IPv4MinimumSize+header.UDPMinimumSize] ^= 0x01
	c.inject(frame)
	assert.Empty(t, c.got)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.s.Stats().Dropped.WithLabelValues("udp", "bad_checksum")))
	c.assertNoFrame()
}

func TestReceiveBadLength(t *testing.T) {
	c := newTestContext(t, true)

	// 声明长度超过实际长度
	ip, _ := udpLayers(53)
	raw := gopacket.Payload([]byte{0x0f, 0xa0, 0x00, 0x35, 0x00, 0x40, 0x00, 0x00, 'x'})
	c.inject(serialize(t, ip, raw, nil))

	// 不足 8 字节
	ip, _ = udpLayers(53)
	c.inject(serialize(t, ip, gopacket.Payload([]byte{0x0f, 0xa0, 0x00}), nil))

	assert.Empty(t, c.got)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.s.Stats().Dropped.WithLabelValues("udp", "bad_length")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.s.Stats().Dropped.WithLabelValues("udp", "short")))
}

func TestReceiveCapsToDeclaredLength(t *testing.T) {
	c := newTestContext(t, true)
	// 声明长度 10 后面多带了几个字节 校验和为 0
	ip, _ := udpLayers(53)
	raw := gopacket.Payload([]byte{0x0f, 0xa0, 0x00, 0x35, 0x00, 0x0a, 0x00, 0x00, 'o', 'k', 'j', 'u', 'n', 'k'})
	c.inject(serialize(t, ip, raw, nil))

	require.Len(t, c.got, 1)
	assert.Equal(t, "ok", c.got[0].data)
	assert.Equal(t, 2, c.got[0].n)
}

func TestPortUnreachable(t *testing.T) {
	c := newTestContext(t, true)
	c.learn()
	frame := udpFrame(t, 9999, []byte("nobody home"))
	c.inject(frame)

	assert.Empty(t, c.got)
	p := c.nextPacket()
	c.assertNoFrame()
	ip := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, layers.IPProtocolICMPv4, ip.Protocol)
	assert.Equal(t, net.IP(remoteIP).String(), ip.DstIP.String())

	msg, err := icmp.ParseMessage(1, ip.Payload)
	require.NoError(t, err)
	assert.Equal(t, xipv4.ICMPTypeDestinationUnreachable, msg.Type)
	assert.Equal(t, int(header.ICMPv4PortUnreachable), msg.Code)
	body := msg.Body.(*icmp.DstUnreach)
	orig := frame[header.EthernetMinimumSize:]
	assert.Equal(t, orig[:header.IPv4MinimumSize+header.UDPMinimumSize], body.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.s.Stats().ICMPUnreachable.WithLabelValues("port")))
}

func TestCloseThenUnreachable(t *testing.T) {
	c := newTestContext(t, true)
	c.learn()
	c.udp.Close(53)
	c.inject(udpFrame(t, 53, []byte("late")))
	assert.Empty(t, c.got)
	c.nextPacket()
}

func TestSend(t *testing.T) {
	c := newTestContext(t, true)
	c.learn()
	require.Nil(t, c.udp.Send([]byte("reply"), 53, remoteIP, 4000))

	p := c.nextPacket()
	c.assertNoFrame()
	u, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(53), u.SrcPort)
	assert.Equal(t, layers.UDPPort(4000), u.DstPort)
	assert.Equal(t, uint16(13), u.Length)
	assert.Equal(t, "reply", string(u.Payload))
	assert.NotZero(t, u.Checksum)

	// 带上校验和重新计算 结果为 0
	v := buffer.NewViewFromBytes(append(append([]byte{}, u.Contents...), u.Payload...))
	assert.Equal(t, uint16(0), udp.Checksum(v, localIP, remoteIP))
}

func TestSendChecksumDisabled(t *testing.T) {
	c := newTestContext(t, false)
	c.learn()
	require.Nil(t, c.udp.Send([]byte("reply"), 53, remoteIP, 4000))
	u := c.nextPacket().Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, uint16(0), u.Checksum)
}

func TestSendFragmented(t *testing.T) {
	c := newTestContext(t, true)
	c.learn()
	data := make([]byte, 3000)
	require.Nil(t, c.udp.Send(data, 53, remoteIP, 4000))

	var total int
	for i := 0; i < 3; i++ {
		ip := c.nextPacket().Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		total += len(ip.Payload)
	}
	c.assertNoFrame()
	assert.Equal(t, header.UDPMinimumSize+len(data), total)
}

func TestSendWaitsForARP(t *testing.T) {
	c := newTestContext(t, true)
	require.Nil(t, c.udp.Send([]byte("first"), 53, remoteIP, 4000))

	// 先发出 arp 请求
	p := c.nextPacket()
	_, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	c.assertNoFrame()

	// 收到回复后 暂存的报文发出
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(remoteMAC),
		DstMAC:       net.HardwareAddr(localMAC),
		EthernetType: layers.EthernetTypeARP,
	}
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(remoteMAC),
		SourceProtAddress: []byte(remoteIP),
		DstHwAddress:      []byte(localMAC),
		DstProtAddress:    []byte(localIP),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, a))
	c.inject(buf.Bytes())

	u, ok := c.nextPacket().Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, "first", string(u.Payload))
}

func TestSendErrors(t *testing.T) {
	c := newTestContext(t, true)
	assert.Equal(t, tcpip.ErrBadAddress, c.udp.Send([]byte("x"), 53, "\x0a\x00", 4000))
	assert.Equal(t, tcpip.ErrMessageTooLong, c.udp.Send(make([]byte, 0xffff), 53, remoteIP, 4000))
	c.assertNoFrame()
}
