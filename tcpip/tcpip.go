package tcpip

import (
	"fmt"
	"net"
	"strings"
)

// Error 协议栈内部使用的错误类型 比较时直接比较指针
type Error struct {
	msg string
}

func (e *Error) String() string {
	return e.msg
}

// Error 让 *Error 可以作为 error 使用
func (e *Error) Error() string {
	return e.msg
}

var (
	ErrBadLinkEndpoint    = &Error{msg: "bad link layer endpoint"}
	ErrClosedForSend      = &Error{msg: "endpoint is closed for send"}
	ErrWouldBlock         = &Error{msg: "operation would block"}
	ErrInvalidOptionValue = &Error{msg: "invalid option value specified"}
	ErrBadAddress         = &Error{msg: "bad address"}
	ErrMessageTooLong     = &Error{msg: "message too long"}
	ErrNoBufferSpace      = &Error{msg: "no buffer space available"}
)

// Address 网络层地址 对 IPv4 来说是 4 字节
type Address string

// String 点分十进制
func (a Address) String() string {
	switch len(a) {
	case 4:
		return fmt.Sprintf("%d.%d.%d.%d", int(a[0]), int(a[1]), int(a[2]), int(a[3]))
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// To4 转换成标准库的 net.IP
func (a Address) To4() net.IP {
	return net.IP([]byte(a)).To4()
}

// ParseAddress 解析 "10.0.0.1" 这样的 IPv4 地址
func ParseAddress(s string) (Address, *Error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return "", ErrBadAddress
	}
	return Address(ip.To4()), nil
}

// LinkAddress 是一个字节切片，转换为表示链接地址的字符串。
// 它通常是一个 6 字节的 MAC 地址。
type LinkAddress string // MAC地址

// String implements the fmt.Stringer interface.
func (a LinkAddress) String() string {
	switch len(a) {
	case 6:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// ParseLinkAddress 解析 "aa:bb:cc:dd:ee:ff" 这样的 MAC 地址
func ParseLinkAddress(s string) (LinkAddress, *Error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", ErrBadAddress
	}
	return LinkAddress(hw), nil
}

const (
	// BroadcastLinkAddress 以太网广播地址
	BroadcastLinkAddress LinkAddress = "\xff\xff\xff\xff\xff\xff"
	// ZeroLinkAddress ARP 请求中未知的目标硬件地址
	ZeroLinkAddress LinkAddress = "\x00\x00\x00\x00\x00\x00"
)

// NetworkProtocolNumber 以太网帧头中的协议类型 如 0x0800 0x0806
type NetworkProtocolNumber uint32

// TransportProtocolNumber IPv4 头部中的协议号 如 1 17
type TransportProtocolNumber uint32
