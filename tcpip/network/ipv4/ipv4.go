package ipv4

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/rand"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/network/fragmentation"
	"github.com/impact-eintr/ministack/tcpip/network/hash"
	"github.com/impact-eintr/ministack/tcpip/stack"
)

const (
	// ProtocolName is the string representation of the ipv4 protocol name.
	ProtocolName = "ipv4"

	// ProtocolNumber is the ipv4 protocol number.
	ProtocolNumber = header.IPv4ProtocolNumber

	// DefaultTTL 发出报文的默认 TTL
	DefaultTTL = 64

	// maxTotalSize is maximum size that can be encoded in the 16-bit
	// TotalLength field of the ipv4 header.
	maxTotalSize = 0xffff
)

type Options struct {
	// TTL 0 表示使用 DefaultTTL
	TTL uint8

	// Reassembly 是否重组收到的分片 关闭时每个分片单独交给上层
	Reassembly bool

	// ReassemblyTimeout 0 表示 fragmentation.DefaultReassembleTimeout
	ReassemblyTimeout time.Duration

	// ICMPRateLimit 每秒最多发送多少个 ICMP 差错报文 0 表示不限制
	ICMPRateLimit float64

	// ICMPBurst 令牌桶容量
	ICMPBurst int
}

// Endpoint IPv4 实现 同时是 stack.NetworkProtocol 和 stack.NetworkSender
type Endpoint struct {
	stack    *stack.Stack
	resolver stack.LinkAddressResolver
	ttl      uint8

	// 数据报 id 每次 WritePacket 加一
	ids atomic.Uint32

	// ip报文分片处理器 为 nil 时不重组
	fragmentation *fragmentation.Fragmentation

	icmp *ICMP
}

// New 新建 IPv4 端 resolver 一般是 arp.Endpoint
func New(s *stack.Stack, resolver stack.LinkAddressResolver, opts Options) *Endpoint {
	e := &Endpoint{
		stack:    s,
		resolver: resolver,
		ttl:      opts.TTL,
	}
	if e.ttl == 0 {
		e.ttl = DefaultTTL
	}
	// 初始 id 随机
	e.ids.Store(rand.Uint32())
	if opts.Reassembly {
		timeout := opts.ReassemblyTimeout
		if timeout <= 0 {
			timeout = fragmentation.DefaultReassembleTimeout
		}
		e.fragmentation = fragmentation.NewFragmentation(fragmentation.HighFragThreshold,
			fragmentation.LowFragThreshold, timeout)
	}

	var limiter *rate.Limiter
	if opts.ICMPRateLimit > 0 {
		burst := opts.ICMPBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ICMPRateLimit), burst)
	}
	e.icmp = &ICMP{ep: e, limiter: limiter}
	return e
}

// Number returns the ipv4 protocol number.
func (e *Endpoint) Number() tcpip.NetworkProtocolNumber {
	return ProtocolNumber
}

// ICMP 返回挂在这个 IP 端上的 ICMP 协议 需要注册到传输层
func (e *Endpoint) ICMP() *ICMP {
	return e.icmp
}

// MaxPayload 不分片时一个数据报最多能携带的负载
func (e *Endpoint) MaxPayload() int {
	return calculateMTU(e.stack.MTU())
}

// FragmentCapacity 分片时每一片携带的负载 向下取 8 的倍数
func (e *Endpoint) FragmentCapacity() int {
	return e.MaxPayload() &^ (header.IPv4FragmentUnit - 1)
}

func (e *Endpoint) drop(reason string, fields logrus.Fields) {
	e.stack.Stats().Drop("ip", reason)
	logger.Drop(logger.IP, reason, fields)
}

// HandlePacket is called by the link layer when new ipv4 packets arrive for
// this endpoint.
// 收到ip包的处理 任何一步检查失败都直接丢弃
func (e *Endpoint) HandlePacket(src tcpip.LinkAddress, v buffer.View) {
	if len(v) < header.IPv4MinimumSize {
		e.drop("short", logrus.Fields{"len": len(v)})
		return
	}

	h := header.IPv4(v)
	if header.IPVersion(h) != header.IPv4Version {
		e.drop("bad_version", logrus.Fields{"version": header.IPVersion(h)})
		return
	}
	hlen := int(h.HeaderLength())
	if hlen < header.IPv4MinimumSize || hlen > len(v) {
		e.drop("bad_header_length", logrus.Fields{"hlen": hlen, "len": len(v)})
		return
	}

	// 校验和 先清零再计算 最后恢复原值
	saved := h.Checksum()
	h.SetChecksum(0)
	sum := ^header.Checksum(h[:hlen], 0)
	h.SetChecksum(saved)
	if sum != saved {
		e.drop("bad_checksum", logrus.Fields{"want": sum, "got": saved})
		return
	}

	if h.DestinationAddress() != e.stack.Address() {
		e.drop("not_for_us", logrus.Fields{"dst": h.DestinationAddress()})
		return
	}

	tlen := int(h.TotalLength())
	if !h.IsValid(len(v)) {
		e.drop("bad_total_length", logrus.Fields{"tlen": tlen, "len": len(v)})
		return
	}

	logger.GetInstance().Info(logger.IP, func() {
		logger.L(logger.IP).Debugf("recv %s", h)
	})

	p := h.TransportProtocol()
	if !e.stack.TransportProtocolRegistered(p) {
		e.icmp.SendUnreachable(v[:tlen], h.SourceAddress(), header.ICMPv4ProtoUnreachable)
		e.drop("unknown_protocol", logrus.Fields{"protocol": p})
		return
	}

	// 去掉以太网的填充
	v.CapLength(tlen)

	netHeader := buffer.View(h[:hlen])
	payload := v[hlen:]

	// 报文重组
	if h.IsFragment() && e.fragmentation != nil {
		if len(payload) == 0 {
			e.drop("empty_fragment", nil)
			return
		}
		first := int(h.FragmentOffset())
		last := first + len(payload) - 1
		if last > maxTotalSize {
			e.drop("fragment_too_large", logrus.Fields{"offset": first, "len": len(payload)})
			return
		}
		res, ready := e.fragmentation.Process(hash.IPv4FragmentHash(h), uint16(first), uint16(last), h.MoreFragments(), payload)
		if !ready {
			return
		}
		payload = res
		netHeader = reassembledHeader(h[:hlen], len(res))
	}

	r := stack.MakeRoute(ProtocolNumber, e.stack.Address(), h.SourceAddress(), e.stack.LinkAddress(), src)
	e.stack.DeliverTransportPacket(&r, p, netHeader, payload)
}

// reassembledHeader 重组完成后 用最后到达的分片首部构造一个完整数据报的首部
func reassembledHeader(h header.IPv4, payloadLen int) buffer.View {
	hdr := header.IPv4(buffer.NewViewFromBytes(h))
	hdr.SetTotalLength(uint16(len(hdr) + payloadLen))
	hdr.SetFlagsFragmentOffset(0, 0)
	hdr.SetChecksum(0)
	hdr.SetChecksum(^hdr.CalculateChecksum())
	return buffer.View(hdr)
}

// WritePacket 发送一个 IP 数据报 超过 MTU 时分片
// 所有分片共用一个 id 每次调用 id 只增加一次
func (e *Endpoint) WritePacket(remote tcpip.Address, protocol tcpip.TransportProtocolNumber, payload buffer.View) *tcpip.Error {
	if len(payload)+header.IPv4MinimumSize > maxTotalSize {
		return tcpip.ErrMessageTooLong
	}

	id := uint16(e.ids.Add(1) - 1)

	if len(payload) <= e.MaxPayload() {
		e.WriteFragment(remote, protocol, payload, id, 0, false)
		return nil
	}

	capacity := e.FragmentCapacity()
	for offset := 0; offset < len(payload); offset += capacity {
		end := offset + capacity
		if end > len(payload) {
			end = len(payload)
		}
		e.WriteFragment(remote, protocol, payload[offset:end], id, uint16(offset), end < len(payload))
	}
	return nil
}

// WriteFragment 加上 IP 首部后交给地址解析 offset 以字节为单位 必须是 8 的倍数
func (e *Endpoint) WriteFragment(remote tcpip.Address, protocol tcpip.TransportProtocolNumber, payload buffer.View,
	id, offset uint16, more bool) {
	hdr := buffer.NewPrependableFromView(payload, header.IPv4MinimumSize)
	ip := header.IPv4(hdr.Prepend(header.IPv4MinimumSize))

	var flags uint8
	if more {
		flags = header.IPv4FlagMoreFragments
	}
	ip.Encode(&header.IPv4Fields{
		IHL:            header.IPv4MinimumSize,
		TOS:            0,
		TotalLength:    uint16(hdr.UsedLength()),
		ID:             id,
		Flags:          flags,
		FragmentOffset: offset,
		TTL:            e.ttl,
		Protocol:       uint8(protocol),
		SrcAddr:        e.stack.Address(),
		DstAddr:        remote,
	})
	// 计算校验和和设置校验和
	ip.SetChecksum(^ip.CalculateChecksum())

	if more || offset != 0 {
		e.stack.Stats().IPFragmentsSent.Inc()
	}
	logger.GetInstance().Info(logger.IP, func() {
		logger.L(logger.IP).Debugf("send %s", ip)
	})

	e.resolver.WritePacket(remote, hdr.View())
}

// calculateMTU calculates the network-layer payload MTU based on the link-layer
// payload mtu.
func calculateMTU(mtu uint32) int {
	if mtu > maxTotalSize {
		mtu = maxTotalSize
	}
	return int(mtu) - header.IPv4MinimumSize
}
