package stack

import (
	"sync"

	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
)

// ====================链路层相关==============================

// 所谓 io 就是数据的输入输出，对于网卡来说就是接收或发送数据，
// 接收意味着对以太网帧解封装和提交给网络层，发送意味着对上层数据的封装和写入网卡

// LinkEndpoint 链路层驱动 读写的都是完整的以太网帧
type LinkEndpoint interface {
	// MTU 以太网负载的最大长度 不包括帧头
	MTU() uint32

	// 本地链路层地址
	LinkAddress() tcpip.LinkAddress

	// WriteFrame 发送一个完整的帧
	WriteFrame(frame buffer.View) *tcpip.Error

	// ReadFrame 非阻塞地读取一个帧到 buf 没有数据时返回 ErrWouldBlock
	ReadFrame(buf buffer.View) (int, *tcpip.Error)
}

// ==============================网络层相关==============================

// NetworkProtocol 以太网帧头里的类型字段分发到这里 ARP 或者 IPv4
type NetworkProtocol interface {
	// 网络协议号
	Number() tcpip.NetworkProtocolNumber

	// HandlePacket 链路层收到数据后调用 v 是去掉帧头后的负载
	HandlePacket(src tcpip.LinkAddress, v buffer.View)
}

// LinkAddressResolver 把发往某个 IP 的报文交给链路层 必要时先做地址解析
type LinkAddressResolver interface {
	WritePacket(remote tcpip.Address, pkt buffer.View)
}

// NetworkSender 网络层提供给传输层的发送接口
type NetworkSender interface {
	WritePacket(remote tcpip.Address, protocol tcpip.TransportProtocolNumber, payload buffer.View) *tcpip.Error
}

// ControlSender 发送 ICMP 差错报文
// orig 是触发差错的原始 IP 报文(首部加上至少 8 字节负载)
type ControlSender interface {
	SendUnreachable(orig buffer.View, dst tcpip.Address, code header.ICMPv4Code)
}

// ==============================传输层相关==============================

// TransportProtocol 传输层协议 UDP 或者 ICMP
type TransportProtocol interface {
	// Number returns the transport protocol number.
	Number() tcpip.TransportProtocolNumber

	// HandlePacket netHeader 是原始的 IP 首部 v 是去掉 IP 首部后的负载
	HandlePacket(r *Route, netHeader buffer.View, v buffer.View)
}

// protocolTable 协议号到处理者的注册表 后注册的覆盖先注册的
type protocolTable[N comparable, H any] struct {
	mu       sync.RWMutex
	handlers map[N]H
}

func newProtocolTable[N comparable, H any]() *protocolTable[N, H] {
	return &protocolTable[N, H]{handlers: make(map[N]H)}
}

func (t *protocolTable[N, H]) register(n N, h H) {
	t.mu.Lock()
	t.handlers[n] = h
	t.mu.Unlock()
}

func (t *protocolTable[N, H]) lookup(n N) (H, bool) {
	t.mu.RLock()
	h, ok := t.handlers[n]
	t.mu.RUnlock()
	return h, ok
}
