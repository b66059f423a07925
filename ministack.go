// Package ministack 一个最小的用户态协议栈 一张网卡 一个 IPv4 地址
// 以太网 ARP IPv4 ICMP UDP
//
//	ep := channel.New(64, 1500, mac)
//	s, err := ministack.New(ep, ministack.DefaultOptions(addr))
//	s.Open(7, func(data []byte, n int, srcIP tcpip.Address, srcPort uint16) {...})
//	go s.Run(ctx)
package ministack

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/network/arp"
	"github.com/impact-eintr/ministack/tcpip/network/ipv4"
	"github.com/impact-eintr/ministack/tcpip/ports"
	"github.com/impact-eintr/ministack/tcpip/stack"
	"github.com/impact-eintr/ministack/tcpip/transport/udp"
)

// DefaultPollInterval 没有数据时 Run 两次轮询之间的间隔
const DefaultPollInterval = time.Millisecond

// minMTU 至少要能放下一个 IP 首部和 8 字节的分片
const minMTU = header.IPv4MinimumSize + header.IPv4FragmentUnit

// Handler UDP 端口的处理函数
type Handler = ports.Handler

type Options struct {
	// Address 本机 IPv4 地址
	Address tcpip.Address

	ARPEntryTimeout   time.Duration
	ARPPendingTimeout time.Duration

	TTL               uint8
	Reassembly        bool
	ReassemblyTimeout time.Duration

	// UDPChecksum 发送时计算 UDP 校验和
	UDPChecksum bool

	ICMPRateLimit float64
	ICMPBurst     int

	PollInterval time.Duration
}

// DefaultOptions 常用的默认值 开启校验和和分片重组
func DefaultOptions(addr tcpip.Address) Options {
	return Options{
		Address:           addr,
		ARPEntryTimeout:   arp.DefaultEntryTimeout,
		ARPPendingTimeout: arp.DefaultPendingTimeout,
		TTL:               ipv4.DefaultTTL,
		Reassembly:        true,
		UDPChecksum:       true,
		PollInterval:      DefaultPollInterval,
	}
}

// Stack 把各层连起来 所有的表都属于这个实例
type Stack struct {
	stack *stack.Stack
	arp   *arp.Endpoint
	ip    *ipv4.Endpoint
	udp   *udp.Protocol

	pollInterval time.Duration
}

// New 创建协议栈 注册所有协议并发送一个免费 arp
func New(ep stack.LinkEndpoint, opts Options) (*Stack, error) {
	if len(opts.Address) != header.IPv4AddressSize {
		return nil, tcpip.ErrBadAddress
	}
	if len(ep.LinkAddress()) != header.EthernetAddressSize {
		return nil, tcpip.ErrBadLinkEndpoint
	}
	if ep.MTU() < minMTU {
		return nil, tcpip.ErrInvalidOptionValue
	}
	if opts.ICMPRateLimit < 0 || opts.ICMPBurst < 0 {
		return nil, tcpip.ErrInvalidOptionValue
	}

	s := stack.New(ep, opts.Address)
	a := arp.New(s, arp.Options{
		EntryTimeout:   opts.ARPEntryTimeout,
		PendingTimeout: opts.ARPPendingTimeout,
	})
	ip := ipv4.New(s, a, ipv4.Options{
		TTL:               opts.TTL,
		Reassembly:        opts.Reassembly,
		ReassemblyTimeout: opts.ReassemblyTimeout,
		ICMPRateLimit:     opts.ICMPRateLimit,
		ICMPBurst:         opts.ICMPBurst,
	})
	u := udp.New(s, ip, ip.ICMP(), udp.Options{Checksum: opts.UDPChecksum})

	s.RegisterNetworkProtocol(a)
	s.RegisterNetworkProtocol(ip)
	s.RegisterTransportProtocol(ip.ICMP())
	s.RegisterTransportProtocol(u)

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger.Logrus().WithFields(logrus.Fields{
		"ip":  opts.Address,
		"mac": ep.LinkAddress(),
		"mtu": ep.MTU(),
	}).Info("stack up")

	a.Init()
	return &Stack{stack: s, arp: a, ip: ip, udp: u, pollInterval: interval}, nil
}

// Open 在 UDP 端口上登记处理函数 重复登记会覆盖
func (s *Stack) Open(port uint16, h Handler) error {
	if err := s.udp.Open(port, h); err != nil {
		return err
	}
	return nil
}

// Close 注销 UDP 端口
func (s *Stack) Close(port uint16) {
	s.udp.Close(port)
}

// Send 发送一个 UDP 数据报 地址还没解析时报文会先缓存 不会阻塞
// 只返回参数错误
func (s *Stack) Send(data []byte, srcPort uint16, dst tcpip.Address, dstPort uint16) error {
	if err := s.udp.Send(data, srcPort, dst, dstPort); err != nil {
		return err
	}
	return nil
}

// Poll 处理一帧 没有数据时返回 false
func (s *Stack) Poll() bool {
	return s.stack.Poll()
}

// Run 循环处理收到的帧 直到 ctx 结束
// 一帧处理完才会读下一帧 没有数据时等待 PollInterval
func (s *Stack) Run(ctx context.Context) error {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.Poll() {
			continue
		}

		timer.Reset(s.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ARPEntries 当前的 arp 表
func (s *Stack) ARPEntries() []arp.Entry {
	return s.arp.Entries()
}

// Stats 计数器
func (s *Stack) Stats() *stack.Stats {
	return s.stack.Stats()
}

// Registry 暴露给 promhttp 的 Registry
func (s *Stack) Registry() *prometheus.Registry {
	return s.stack.Registry()
}

// Address 本机 IP
func (s *Stack) Address() tcpip.Address {
	return s.stack.Address()
}

// LinkAddress 本机 MAC
func (s *Stack) LinkAddress() tcpip.LinkAddress {
	return s.stack.LinkAddress()
}
