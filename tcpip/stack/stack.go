package stack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
)

// Stack 协议栈的上下文 一个网卡 一个 IPv4 地址
// 所有的协议表都挂在这里 不使用全局变量
type Stack struct {
	nic *NIC

	addr tcpip.Address

	networkProtocols   *protocolTable[tcpip.NetworkProtocolNumber, NetworkProtocol]
	transportProtocols *protocolTable[tcpip.TransportProtocolNumber, TransportProtocol]

	stats *Stats
}

// New 新建协议栈 addr 是本机的 IPv4 地址
func New(ep LinkEndpoint, addr tcpip.Address) *Stack {
	s := &Stack{
		addr:               addr,
		networkProtocols:   newProtocolTable[tcpip.NetworkProtocolNumber, NetworkProtocol](),
		transportProtocols: newProtocolTable[tcpip.TransportProtocolNumber, TransportProtocol](),
		stats:              NewStats(),
	}
	s.nic = newNIC(s, ep)
	return s
}

// NIC 网卡
func (s *Stack) NIC() *NIC {
	return s.nic
}

// Address 本机 IP
func (s *Stack) Address() tcpip.Address {
	return s.addr
}

// LinkAddress 本机 MAC
func (s *Stack) LinkAddress() tcpip.LinkAddress {
	return s.nic.linkEP.LinkAddress()
}

// MTU 链路层 MTU
func (s *Stack) MTU() uint32 {
	return s.nic.linkEP.MTU()
}

// Stats 计数器
func (s *Stack) Stats() *Stats {
	return s.stats
}

// Registry prometheus 注册表
func (s *Stack) Registry() *prometheus.Registry {
	return s.stats.Registry()
}

// RegisterNetworkProtocol 注册网络层协议 同一个协议号重复注册时后者生效
func (s *Stack) RegisterNetworkProtocol(p NetworkProtocol) {
	s.networkProtocols.register(p.Number(), p)
}

// RegisterTransportProtocol 注册传输层协议 同一个协议号重复注册时后者生效
func (s *Stack) RegisterTransportProtocol(p TransportProtocol) {
	s.transportProtocols.register(p.Number(), p)
}

// TransportProtocolRegistered IP 层用它判断是否需要回复协议不可达
func (s *Stack) TransportProtocolRegistered(proto tcpip.TransportProtocolNumber) bool {
	_, ok := s.transportProtocols.lookup(proto)
	return ok
}

// DeliverNetworkPacket 按以太网类型分发 未知类型直接丢弃
func (s *Stack) DeliverNetworkPacket(src tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, v buffer.View) {
	p, ok := s.networkProtocols.lookup(protocol)
	if !ok {
		s.stats.Drop("eth", "unknown_protocol")
		logger.Drop(logger.ETH, "unknown protocol", logrus.Fields{"type": uint16(protocol)})
		return
	}
	p.HandlePacket(src, v)
}

// DeliverTransportPacket 按 IP 协议号分发 返回是否有对应的处理者
func (s *Stack) DeliverTransportPacket(r *Route, protocol tcpip.TransportProtocolNumber, netHeader, v buffer.View) bool {
	p, ok := s.transportProtocols.lookup(protocol)
	if !ok {
		s.stats.Drop("ip", "unknown_protocol")
		logger.Drop(logger.IP, "unknown protocol", logrus.Fields{"protocol": protocol})
		return false
	}
	p.HandlePacket(r, netHeader, v)
	return true
}

// Poll 处理一帧
func (s *Stack) Poll() bool {
	return s.nic.Poll()
}
