package stack

import "github.com/impact-eintr/ministack/tcpip"

// 一个报文在网络层解析完之后的收发双方 传输层回复时直接用它
type Route struct {
	// 远端网络层地址
	RemoteAddress tcpip.Address
	// 远端网卡MAC地址
	RemoteLinkAddress tcpip.LinkAddress

	// 本地网络层地址
	LocalAddress tcpip.Address
	// 本地网卡MAC地址
	LocalLinkAddress tcpip.LinkAddress

	// 网络层协议号
	NetProto tcpip.NetworkProtocolNumber
}

// MakeRoute 根据参数新建一个路由
func MakeRoute(netProto tcpip.NetworkProtocolNumber, localAddr, remoteAddr tcpip.Address,
	localLinkAddr, remoteLinkAddr tcpip.LinkAddress) Route {
	return Route{
		NetProto:          netProto,
		LocalAddress:      localAddr,
		LocalLinkAddress:  localLinkAddr,
		RemoteAddress:     remoteAddr,
		RemoteLinkAddress: remoteLinkAddr,
	}
}

// Reverse 交换收发双方
func (r Route) Reverse() Route {
	return Route{
		NetProto:          r.NetProto,
		LocalAddress:      r.RemoteAddress,
		LocalLinkAddress:  r.RemoteLinkAddress,
		RemoteAddress:     r.LocalAddress,
		RemoteLinkAddress: r.LocalLinkAddress,
	}
}
