// Package channel 基于 chan 的链路层驱动 测试时用它注入和截获以太网帧
package channel

import (
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/buffer"
)

type Endpoint struct {
	mtu      uint32
	linkAddr tcpip.LinkAddress // MAC地址

	rx chan buffer.View

	// C 协议栈发出去的帧
	C chan buffer.View
}

// New 创建一个新的抽象 channel Endpoint 可以接受数据 也可以外发数据
func New(size int, mtu uint32, linkAddr tcpip.LinkAddress) *Endpoint {
	return &Endpoint{
		rx:       make(chan buffer.View, size),
		C:        make(chan buffer.View, size),
		mtu:      mtu,
		linkAddr: linkAddr,
	}
}

// Drain 流走 释放channel中的数据
func (e *Endpoint) Drain() int {
	c := 0
	for {
		select {
		case <-e.C:
			c++
		default:
			return c
		}
	}
}

// Inject 注入一个完整的帧 等待协议栈 Poll
func (e *Endpoint) Inject(frame []byte) {
	e.rx <- buffer.NewViewFromBytes(frame)
}

func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// 本地链路层地址
func (e *Endpoint) LinkAddress() tcpip.LinkAddress {
	return e.linkAddr
}

// WriteFrame channel 向外写数据 满了就丢
func (e *Endpoint) WriteFrame(frame buffer.View) *tcpip.Error {
	select {
	case e.C <- frame.Clone():
		return nil
	default:
		return tcpip.ErrNoBufferSpace
	}
}

// ReadFrame 没有注入的帧时返回 ErrWouldBlock
func (e *Endpoint) ReadFrame(buf buffer.View) (int, *tcpip.Error) {
	select {
	case f := <-e.rx:
		return copy(buf, f), nil
	default:
		return 0, tcpip.ErrWouldBlock
	}
}
