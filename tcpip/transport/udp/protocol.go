package udp

import (
	"github.com/sirupsen/logrus"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/ports"
	"github.com/impact-eintr/ministack/tcpip/stack"
)

const (
	// ProtocolName is the string representation of the udp protocol name.
	ProtocolName = "udp"

	// ProtocolNumber is the udp protocol number.
	ProtocolNumber = header.UDPProtocolNumber

	maxPayload = 0xffff - header.IPv4MinimumSize - header.UDPMinimumSize
)

type Options struct {
	// Checksum 发送时是否计算校验和 关闭时校验和字段填 0
	Checksum bool
}

// Protocol UDP 的实现 收到的报文按目的端口交给应用
type Protocol struct {
	stack    *stack.Stack
	sender   stack.NetworkSender
	control  stack.ControlSender
	ports    *ports.Table
	checksum bool
}

var _ stack.TransportProtocol = (*Protocol)(nil)

// New sender 一般是 ipv4.Endpoint control 是它的 ICMP
func New(s *stack.Stack, sender stack.NetworkSender, control stack.ControlSender, opts Options) *Protocol {
	return &Protocol{
		stack:    s,
		sender:   sender,
		control:  control,
		ports:    ports.NewTable(ProtocolNumber),
		checksum: opts.Checksum,
	}
}

// Number returns the udp protocol number.
func (*Protocol) Number() tcpip.TransportProtocolNumber {
	return ProtocolNumber
}

// Open 在端口上登记处理函数 已有的登记会被覆盖
func (p *Protocol) Open(port uint16, h ports.Handler) *tcpip.Error {
	return p.ports.Open(port, h)
}

// Close 注销端口
func (p *Protocol) Close(port uint16) {
	p.ports.Close(port)
}

// Checksum 计算伪首部加上整个 UDP 报文的校验和 返回取反后的值 v 不会被修改
// 伪首部: src(4) dst(4) zero(1) proto(1) udp length(2)
func Checksum(v buffer.View, src, dst tcpip.Address) uint16 {
	pseudo := buffer.NewView(header.UDPPseudoHeaderSize)
	copy(pseudo[0:4], src)
	copy(pseudo[4:8], dst)
	pseudo[9] = uint8(ProtocolNumber)
	pseudo[10] = uint8(len(v) >> 8)
	pseudo[11] = uint8(len(v))

	// 伪首部长度是偶数 奇数长度的 v 在 header.Checksum 里补零
	sum := header.Checksum(pseudo, 0)
	sum = header.Checksum(v, sum)
	return ^sum
}

func (p *Protocol) drop(reason string, fields logrus.Fields) {
	p.stack.Stats().Drop("udp", reason)
	logger.Drop(logger.UDP, reason, fields)
}

// HandlePacket 收到 UDP 报文 校验后交给端口上的处理函数
// 端口没有登记时回复 ICMP 端口不可达
func (p *Protocol) HandlePacket(r *stack.Route, netHeader buffer.View, v buffer.View) {
	if len(v) < header.UDPMinimumSize {
		p.drop("short", logrus.Fields{"len": len(v)})
		return
	}
	h := header.UDP(v)
	length := int(h.Length())
	if length < header.UDPMinimumSize || length > len(v) {
		p.drop("bad_length", logrus.Fields{"length": length, "len": len(v)})
		return
	}
	v.CapLength(length)
	h = header.UDP(v)

	// 校验和为 0 表示发送方没有计算
	if saved := h.Checksum(); saved != 0 {
		h.SetChecksum(0)
		sum := Checksum(v, r.RemoteAddress, r.LocalAddress)
		h.SetChecksum(saved)
		if sum == 0 {
			sum = 0xffff
		}
		if sum != saved {
			p.drop("bad_checksum", logrus.Fields{"want": sum, "got": saved})
			return
		}
	}

	logger.GetInstance().Info(logger.UDP, func() {
		logger.L(logger.UDP).Debugf("recv %s from %s", h, r.RemoteAddress)
	})

	handler, ok := p.ports.Lookup(h.DestinationPort())
	if !ok {
		orig := buffer.NewView(len(netHeader) + len(v))
		copy(orig, netHeader)
		copy(orig[len(netHeader):], v)
		p.drop("no_port", logrus.Fields{"port": h.DestinationPort()})
		p.control.SendUnreachable(orig, r.RemoteAddress, header.ICMPv4PortUnreachable)
		return
	}

	p.stack.Stats().UDPDelivered.Inc()
	data := h.Payload()
	handler(data, len(data), r.RemoteAddress, h.SourcePort())
}

// Send 封装 UDP 首部后交给网络层 不会等待地址解析
func (p *Protocol) Send(data []byte, srcPort uint16, dst tcpip.Address, dstPort uint16) *tcpip.Error {
	if len(dst) != header.IPv4AddressSize {
		return tcpip.ErrBadAddress
	}
	if len(data) > maxPayload {
		return tcpip.ErrMessageTooLong
	}

	hdr := buffer.NewPrependableFromView(data, header.UDPMinimumSize)
	udp := header.UDP(hdr.Prepend(header.UDPMinimumSize))
	udp.Encode(&header.UDPFields{
		SrcPort: srcPort,
		DstPort: dstPort,
		Length:  uint16(hdr.UsedLength()),
	})
	if p.checksum {
		sum := Checksum(hdr.View(), p.stack.Address(), dst)
		if sum == 0 {
			sum = 0xffff
		}
		udp.SetChecksum(sum)
	}

	logger.GetInstance().Info(logger.UDP, func() {
		logger.L(logger.UDP).Debugf("send %s to %s", udp, dst)
	})
	return p.sender.WritePacket(dst, ProtocolNumber, hdr.View())
}
