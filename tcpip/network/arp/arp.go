// 主机的链路层寻址是通过 arp 表来实现的
package arp

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/stack"
	"github.com/impact-eintr/ministack/tcpip/store"
)

const (
	ProtocolName   = "arp"
	ProtocolNumber = header.ARPProtocolNumber

	// DefaultEntryTimeout 已解析表项的存活时间
	DefaultEntryTimeout = 60 * time.Second

	// DefaultPendingTimeout 等待应答的最长时间 过期后允许重新发请求
	DefaultPendingTimeout = time.Second
)

// State 每个 IP 的解析状态 表里没有就是 Unresolved
type State int

const (
	Unresolved State = iota
	Pending
	Resolved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// entry arp 表项 Pending 时 pkt 是唯一一个等待发送的报文
type entry struct {
	state State
	mac   tcpip.LinkAddress
	pkt   buffer.View
}

// Entry 对外展示的表项
type Entry struct {
	Address     tcpip.Address
	LinkAddress tcpip.LinkAddress
	State       State
	Updated     time.Time
}

type Options struct {
	EntryTimeout   time.Duration
	PendingTimeout time.Duration
}

// Endpoint arp 协议的实现 同时实现了 stack.NetworkProtocol 和 stack.LinkAddressResolver
type Endpoint struct {
	stack *stack.Stack
	opts  Options

	// mu 保证 查表-插入 是原子的 同一个 IP 最多只有一个等待中的报文
	mu    sync.Mutex
	table *store.Table[tcpip.Address, entry]
}

// New 新建 arp 端 还需要调用 Init 发送免费 arp
func New(s *stack.Stack, opts Options) *Endpoint {
	if opts.EntryTimeout <= 0 {
		opts.EntryTimeout = DefaultEntryTimeout
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = DefaultPendingTimeout
	}
	return &Endpoint{
		stack: s,
		opts:  opts,
		table: store.New[tcpip.Address, entry](store.WithCopy(func(en entry) entry {
			en.pkt = en.pkt.Clone()
			return en
		})),
	}
}

func (e *Endpoint) Number() tcpip.NetworkProtocolNumber {
	return ProtocolNumber
}

// Init 广播一个查询自己 IP 的请求 宣告自己的存在
func (e *Endpoint) Init() {
	e.sendRequest(e.stack.Address())
}

// WritePacket 把 IP 报文发给 remote
// 已解析的直接发 正在解析的丢掉 未解析的缓存下来并广播请求
func (e *Endpoint) WritePacket(remote tcpip.Address, pkt buffer.View) {
	e.mu.Lock()
	en, ok := e.table.Get(remote)
	if ok && en.state == Resolved {
		e.mu.Unlock()
		e.stack.NIC().WritePacket(en.mac, header.IPv4ProtocolNumber, pkt)
		return
	}
	if ok && en.state == Pending {
		e.mu.Unlock()
		e.stack.Stats().Drop("arp", "pending")
		logger.Drop(logger.ARP, "resolution pending", logrus.Fields{"ip": remote})
		return
	}
	err := e.table.AddWithTTL(remote, entry{state: Pending, pkt: pkt}, e.opts.PendingTimeout)
	e.mu.Unlock()
	if err != nil {
		e.stack.Stats().Drop("arp", "pending")
		return
	}

	logger.GetInstance().Info(logger.ARP, func() {
		logger.L(logger.ARP).Debugf("%s unresolved, packet buffered", remote)
	})
	e.sendRequest(remote)
}

// HandlePacket arp数据包的处理，包括arp请求和响应
func (e *Endpoint) HandlePacket(src tcpip.LinkAddress, v buffer.View) {
	h := header.ARP(v)
	if !h.IsValid() {
		e.stack.Stats().Drop("arp", "invalid")
		logger.Drop(logger.ARP, "invalid header", logrus.Fields{"len": len(v)})
		return
	}
	op := h.Op()
	if op != header.ARPRequest && op != header.ARPReply {
		e.stack.Stats().Drop("arp", "bad_opcode")
		logger.Drop(logger.ARP, "bad opcode", logrus.Fields{"op": uint16(op)})
		return
	}

	// string 转换会拷贝 不会引用接收缓冲区
	senderIP := tcpip.Address(h.ProtocolAddressSender())
	senderMAC := tcpip.LinkAddress(h.HardwareAddressSender())

	logger.GetInstance().Info(logger.ARP, func() {
		logger.L(logger.ARP).Debugf("recv %s %s is-at %s (frame from %s)", op, senderIP, senderMAC, src)
	})

	// 不管是请求还是应答 都记录发送方的 ip 和 mac
	e.mu.Lock()
	old, ok := e.table.Get(senderIP)
	e.table.SetWithTTL(senderIP, entry{state: Resolved, mac: senderMAC}, e.opts.EntryTimeout)
	e.mu.Unlock()

	if ok && old.state == Pending {
		if old.pkt != nil {
			e.stack.NIC().WritePacket(senderMAC, header.IPv4ProtocolNumber, old.pkt)
		}
		return
	}

	if op == header.ARPRequest && tcpip.Address(h.ProtocolAddressTarget()) == e.stack.Address() {
		e.sendReply(senderIP, senderMAC)
	}
}

// State 查询某个 IP 的解析状态
func (e *Endpoint) State(ip tcpip.Address) State {
	en, ok := e.table.Get(ip)
	if !ok {
		return Unresolved
	}
	return en.state
}

// Entries 当前的 arp 表 按 IP 排序
func (e *Endpoint) Entries() []Entry {
	var entries []Entry
	e.table.ForEach(func(ip tcpip.Address, en entry, updated time.Time) {
		entries = append(entries, Entry{
			Address:     ip,
			LinkAddress: en.mac,
			State:       en.state,
			Updated:     updated,
		})
	})
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare([]byte(entries[i].Address), []byte(entries[j].Address)) < 0
	})
	return entries
}

func (e *Endpoint) newPacket(op header.ARPOp) header.ARP {
	pkt := header.ARP(buffer.NewView(header.ARPSize))
	pkt.SetIPv4OverEthernet()
	pkt.SetOp(op)
	copy(pkt.HardwareAddressSender(), e.stack.LinkAddress())
	copy(pkt.ProtocolAddressSender(), e.stack.Address())
	return pkt
}

// sendRequest 广播请求 目标 MAC 全零
func (e *Endpoint) sendRequest(target tcpip.Address) {
	pkt := e.newPacket(header.ARPRequest)
	copy(pkt.HardwareAddressTarget(), tcpip.ZeroLinkAddress)
	copy(pkt.ProtocolAddressTarget(), target)

	logger.GetInstance().Info(logger.ARP, func() {
		logger.L(logger.ARP).Debugf("who-has %s tell %s", target, e.stack.Address())
	})
	e.stack.Stats().ARPRequests.Inc()
	e.stack.NIC().WritePacket(tcpip.BroadcastLinkAddress, ProtocolNumber, buffer.View(pkt))
}

// sendReply 单播应答给请求方
func (e *Endpoint) sendReply(targetIP tcpip.Address, targetMAC tcpip.LinkAddress) {
	pkt := e.newPacket(header.ARPReply)
	copy(pkt.HardwareAddressTarget(), targetMAC)
	copy(pkt.ProtocolAddressTarget(), targetIP)

	logger.GetInstance().Info(logger.ARP, func() {
		logger.L(logger.ARP).Debugf("%s is-at %s -> %s", e.stack.Address(), e.stack.LinkAddress(), targetMAC)
	})
	e.stack.Stats().ARPReplies.Inc()
	e.stack.NIC().WritePacket(targetMAC, ProtocolNumber, buffer.View(pkt))
}
