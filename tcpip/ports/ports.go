// Package ports 传输层端口表 端口号 -> 应用的处理函数
package ports

import (
	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/store"
)

// Handler 收到数据报时调用 data 只在调用期间有效
type Handler func(data []byte, n int, srcIP tcpip.Address, srcPort uint16)

// 端口的唯一标识: 传输层协议-端口号
type portDescriptor struct {
	transport tcpip.TransportProtocolNumber
	port      uint16
}

// Table 管理一个传输层协议的端口 由它来登记和释放端口
type Table struct {
	transport tcpip.TransportProtocolNumber
	handlers  *store.Table[portDescriptor, Handler]
}

// NewTable 新建端口表 端口永不过期
func NewTable(transport tcpip.TransportProtocolNumber) *Table {
	return &Table{
		transport: transport,
		handlers:  store.New[portDescriptor, Handler](),
	}
}

func (t *Table) id(port uint16) portDescriptor {
	return portDescriptor{transport: t.transport, port: port}
}

// Open 登记端口 已经登记过的端口直接覆盖
func (t *Table) Open(port uint16, h Handler) *tcpip.Error {
	if h == nil {
		return tcpip.ErrInvalidOptionValue
	}
	if _, ok := t.handlers.Get(t.id(port)); ok {
		logger.L(logger.UDP).Debugf("port %d reopened", port)
	}
	t.handlers.Set(t.id(port), h)
	return nil
}

// Close 释放端口 没有登记时什么也不做
func (t *Table) Close(port uint16) {
	t.handlers.Delete(t.id(port))
}

// Lookup 查找端口对应的处理函数
func (t *Table) Lookup(port uint16) (Handler, bool) {
	return t.handlers.Get(t.id(port))
}

// Len 已登记的端口数
func (t *Table) Len() int {
	return t.handlers.Len()
}
