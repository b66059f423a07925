package stack

import (
	"github.com/sirupsen/logrus"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
)

// NIC 代表一个网卡对象 负责以太网帧的封装和解封装
// 当我们创建好tap网卡对象后 我们使用NIC来代表它在我们自己的协议栈中的网卡对象
type NIC struct {
	stack *Stack
	// 链路层端
	linkEP LinkEndpoint
}

func newNIC(stack *Stack, ep LinkEndpoint) *NIC {
	return &NIC{stack: stack, linkEP: ep}
}

// WritePacket 封装以太网帧并交给驱动 不足 46 字节的负载补零
// 驱动的错误只计数和记日志 不返回给上层
func (n *NIC) WritePacket(dst tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, payload buffer.View) {
	if len(payload) > int(n.linkEP.MTU()) {
		n.stack.stats.Drop("eth", "oversize")
		logger.Drop(logger.ETH, "oversize", logrus.Fields{"len": len(payload), "mtu": n.linkEP.MTU()})
		return
	}

	size := len(payload)
	if size < header.EthernetMinimumPayload {
		size = header.EthernetMinimumPayload
	}
	frame := buffer.NewView(header.EthernetMinimumSize + size)
	copy(frame[header.EthernetMinimumSize:], payload)

	eth := header.Ethernet(frame)
	eth.Encode(&header.EthernetFields{
		DstAddr: dst,
		SrcAddr: n.linkEP.LinkAddress(),
		Type:    protocol,
	})

	logger.GetInstance().Info(logger.ETH, func() {
		logger.L(logger.ETH).Debugf("send %s -> %s type=%#04x len=%d",
			eth.SourceAddress(), eth.DestinationAddress(), uint16(protocol), len(frame))
	})

	if err := n.linkEP.WriteFrame(frame); err != nil {
		n.stack.stats.Drop("eth", "write_error")
		logger.L(logger.ETH).WithError(err).Warn("write frame")
		return
	}
	n.stack.stats.Frames.WithLabelValues("tx").Inc()
}

// DeliverFrame 解析以太网帧头 按类型分发给网络层
func (n *NIC) DeliverFrame(frame buffer.View) {
	if len(frame) < header.EthernetMinimumSize {
		n.stack.stats.Drop("eth", "short")
		logger.Drop(logger.ETH, "short", logrus.Fields{"len": len(frame)})
		return
	}
	n.stack.stats.Frames.WithLabelValues("rx").Inc()

	eth := header.Ethernet(frame)
	src := eth.SourceAddress()
	protocol := eth.Type()

	logger.GetInstance().Info(logger.ETH, func() {
		logger.L(logger.ETH).Debugf("recv %s -> %s type=%#04x len=%d",
			src, eth.DestinationAddress(), uint16(protocol), len(frame))
	})

	v := frame
	v.TrimFront(header.EthernetMinimumSize)
	n.stack.DeliverNetworkPacket(src, protocol, v)
}

// Poll 非阻塞地从驱动读一帧 读到了就处理掉
// 每次都分配新的缓冲区 上层可以放心地切片
func (n *NIC) Poll() bool {
	buf := buffer.NewView(int(n.linkEP.MTU()) + header.EthernetMinimumSize)
	size, err := n.linkEP.ReadFrame(buf)
	if err != nil {
		if err != tcpip.ErrWouldBlock {
			n.stack.stats.Drop("eth", "read_error")
			logger.L(logger.ETH).WithError(err).Warn("read frame")
		}
		return false
	}
	if size <= 0 {
		return false
	}
	n.DeliverFrame(buf[:size])
	return true
}
