package ipv4

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/stack"
)

/*
 ICMP 的全称是 Internet Control Message Protocol 。与 IP 协议一样同属 TCP/IP 模型中的网络层，并且 ICMP 数据包是包裹在 IP 数据包中的

 0                   1                   2                   3
 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|     Type      |     Code      |          Checksum             |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
|                   不同的Type和Code有不同的内容                  |
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

// ICMP 注册为传输层协议 1 负责回显应答和发送目标不可达
type ICMP struct {
	ep      *Endpoint
	limiter *rate.Limiter // nil 表示不限速
}

var (
	_ stack.TransportProtocol = (*ICMP)(nil)
	_ stack.ControlSender     = (*ICMP)(nil)
)

func (i *ICMP) Number() tcpip.TransportProtocolNumber {
	return header.ICMPv4ProtocolNumber
}

func (i *ICMP) drop(reason string, fields logrus.Fields) {
	i.ep.stack.Stats().Drop("icmp", reason)
	logger.Drop(logger.ICMP, reason, fields)
}

// HandlePacket 处理ICMP报文 目前只回应 echo 请求
func (i *ICMP) HandlePacket(r *stack.Route, netHeader buffer.View, v buffer.View) {
	if len(v) < header.ICMPv4MinimumSize {
		i.drop("short", logrus.Fields{"len": len(v)})
		return
	}
	if header.Checksum(v, 0) != 0xffff {
		i.drop("bad_checksum", nil)
		return
	}
	h := header.ICMPv4(v)

	// 根据icmp的类型来进行相应的处理
	switch h.Type() {
	case header.ICMPv4Echo: // icmp echo请求
		if len(v) < header.ICMPv4EchoMinimumSize {
			i.drop("short", logrus.Fields{"len": len(v)})
			return
		}
		logger.GetInstance().Info(logger.ICMP, func() {
			logger.L(logger.ICMP).Debugf("echo request from %s, %d bytes", r.RemoteAddress, len(v))
		})
		// 标识符 序号 数据原样带回
		reply := header.ICMPv4(buffer.NewViewFromBytes(v))
		reply.SetType(header.ICMPv4EchoReply)
		reply.SetCode(0)
		reply.SetChecksum(0)
		reply.SetChecksum(^header.Checksum(reply, 0))
		i.ep.WritePacket(r.RemoteAddress, header.ICMPv4ProtocolNumber, buffer.View(reply))

	default:
		logger.GetInstance().Info(logger.ICMP, func() {
			logger.L(logger.ICMP).Debugf("ignore type=%d code=%d from %s", h.Type(), h.Code(), r.RemoteAddress)
		})
	}
}

// SendUnreachable 发送目标不可达 携带原始 IP 首部和负载的前 8 个字节
// 不会对 ICMP 差错报文和非首个分片回应差错
func (i *ICMP) SendUnreachable(orig buffer.View, dst tcpip.Address, code header.ICMPv4Code) {
	if len(orig) < header.IPv4MinimumSize {
		return
	}
	h := header.IPv4(orig)
	hlen := int(h.HeaderLength())
	if hlen < header.IPv4MinimumSize || hlen > len(orig) {
		return
	}
	if h.FragmentOffset() != 0 {
		return
	}
	if h.TransportProtocol() == header.ICMPv4ProtocolNumber {
		if len(orig) <= hlen || header.ICMPv4Type(orig[hlen]).IsError() {
			return
		}
	}
	if i.limiter != nil && !i.limiter.Allow() {
		i.drop("rate_limited", logrus.Fields{"dst": dst, "code": code.String()})
		return
	}

	n := hlen + header.ICMPv4OriginalPayloadSize
	if n > len(orig) {
		n = len(orig)
	}
	msg := buffer.NewView(header.ICMPv4DstUnreachableMinimumSize + n)
	pkt := header.ICMPv4(msg)
	pkt.SetType(header.ICMPv4DstUnreachable)
	pkt.SetCode(code)
	copy(msg[header.ICMPv4DstUnreachableMinimumSize:], orig[:n])
	pkt.SetChecksum(^header.Checksum(msg, 0))

	logger.GetInstance().Info(logger.ICMP, func() {
		logger.L(logger.ICMP).Debugf("%s unreachable -> %s", code, dst)
	})
	i.ep.stack.Stats().ICMPUnreachable.WithLabelValues(code.String()).Inc()
	i.ep.WritePacket(dst, header.ICMPv4ProtocolNumber, msg)
}
