//go:build linux

// Package tuntap 基于内核 TAP 设备的链路层驱动
package tuntap

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
	"github.com/impact-eintr/ministack/tcpip/header"
)

type Config struct {
	Name     string            // 网卡名
	MTU      uint32            // 以太网负载长度
	LinkAddr tcpip.LinkAddress // 协议栈自己的 MAC 不是内核 tap 口的 MAC
	Backlog  int               // 读协程和协议栈之间的队列长度
}

// Endpoint 把 water 的阻塞读写包装成协议栈需要的非阻塞接口
type Endpoint struct {
	lock   sync.RWMutex
	name   string
	device io.ReadWriteCloser

	mtu      uint32
	linkAddr tcpip.LinkAddress

	rx      chan buffer.View
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// New 打开 TAP 设备并启动读协程
func New(c Config) (*Endpoint, error) {
	params := water.PlatformSpecificParams{Name: c.Name}
	device, err := water.New(water.Config{DeviceType: water.TAP, PlatformSpecificParams: params})
	if err != nil {
		return nil, fmt.Errorf("open tap %s: %w", c.Name, err)
	}
	return newEndpoint(device.Name(), device, c), nil
}

func newEndpoint(name string, device io.ReadWriteCloser, c Config) *Endpoint {
	mtu := c.MTU
	if mtu == 0 {
		mtu = header.EthernetMaximumPayload
	}
	backlog := c.Backlog
	if backlog <= 0 {
		backlog = 256
	}
	e := &Endpoint{
		name:     name,
		device:   device,
		mtu:      mtu,
		linkAddr: c.LinkAddr,
		rx:       make(chan buffer.View, backlog),
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.readLoop()
	return e
}

func (e *Endpoint) Name() string {
	return e.name
}

func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

func (e *Endpoint) LinkAddress() tcpip.LinkAddress {
	return e.linkAddr
}

// Dropped 读协程因为队列满丢掉的帧数
func (e *Endpoint) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	for {
		e.lock.RLock()
		device := e.device
		e.lock.RUnlock()
		if device == nil {
			return
		}

		buf := buffer.NewView(int(e.mtu) + header.EthernetMinimumSize)
		n, err := device.Read(buf)
		if err != nil {
			select {
			case <-e.done:
			default:
				logger.L(logger.ETH).WithError(err).Error("tap read")
			}
			return
		}
		select {
		case e.rx <- buf[:n]:
		case <-e.done:
			return
		default:
			d := e.dropped.Add(1)
			logger.L(logger.ETH).WithField("dropped", d).Warn("tap backlog full, frame dropped")
		}
	}
}

// ReadFrame 非阻塞 没有数据时返回 ErrWouldBlock
func (e *Endpoint) ReadFrame(buf buffer.View) (int, *tcpip.Error) {
	select {
	case f := <-e.rx:
		return copy(buf, f), nil
	default:
		return 0, tcpip.ErrWouldBlock
	}
}

// WriteFrame 写入一个完整的帧
func (e *Endpoint) WriteFrame(frame buffer.View) *tcpip.Error {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.device == nil {
		return tcpip.ErrClosedForSend
	}
	if _, err := e.device.Write(frame); err != nil {
		return tcpip.ErrBadLinkEndpoint
	}
	return nil
}

// Close 关闭设备 等读协程退出后返回
func (e *Endpoint) Close() error {
	e.lock.Lock()
	device := e.device
	if device == nil {
		e.lock.Unlock()
		return nil
	}
	e.device = nil
	close(e.done)
	e.lock.Unlock()

	// 关闭设备让阻塞的 Read 返回
	err := device.Close()
	e.wg.Wait()
	return err
}

// SetLinkUp 让系统启动该网卡 ip link set tap0 up
func SetLinkUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("find link %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set link %s up: %w", name, err)
	}
	return nil
}

// AddIP 给内核一侧的网卡配置地址 ip addr add 192.168.1.1/24 dev tap0
func AddIP(name, cidr string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("find link %s: %w", name, err)
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("parse addr %s: %w", cidr, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("add addr %s to %s: %w", cidr, name, err)
	}
	return nil
}

// SetRoute 添加一条直连路由 ip route add 192.168.1.0/24 dev tap0
func SetRoute(name, cidr string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("find link %s: %w", name, err)
	}
	_, dst, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("parse cidr %s: %w", cidr, err)
	}
	rte := netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
	}
	if err := netlink.RouteAdd(&rte); err != nil {
		return fmt.Errorf("add route %s dev %s: %w", cidr, name, err)
	}
	return nil
}
