package hash

import (
	"github.com/impact-eintr/ministack/rand"
	"github.com/impact-eintr/ministack/tcpip/header"
)

// hashIV 进程启动时随机生成 之后只读
var hashIV = RandN32(1)[0]

// RandN32 生成 n 个加密随机 32 位数字的切片
func RandN32(n int) []uint32 {
	return rand.Uint32s(n)
}

// Hash3Words 即 linux 的 jhash_3words
func Hash3Words(a, b, c, initval uint32) uint32 {
	const iv = 0xdeadbeef + (3 << 2)
	initval += iv

	a += initval
	b += initval
	c += initval

	c ^= b
	c -= rol32(b, 14)
	a ^= c
	a -= rol32(c, 11)
	b ^= a
	b -= rol32(a, 25)
	c ^= b
	c -= rol32(b, 16)
	a ^= c
	a -= rol32(c, 4)
	b ^= a
	b -= rol32(a, 14)
	c ^= b
	c -= rol32(b, 24)

	return c
}

// IPv4FragmentHash 根据id，源ip，目的ip和协议类型得到hash值 同一个数据报的分片得到同一个值
func IPv4FragmentHash(h header.IPv4) uint32 {
	x := uint32(h.ID())<<16 | uint32(h.Protocol())
	t := h.SourceAddress()
	y := uint32(t[0]) | uint32(t[1])<<8 | uint32(t[2])<<16 | uint32(t[3])<<24
	t = h.DestinationAddress()
	z := uint32(t[0]) | uint32(t[1])<<8 | uint32(t[2])<<16 | uint32(t[3])<<24
	return Hash3Words(x, y, z, hashIV)
}

func rol32(v, shift uint32) uint32 {
	return (v << shift) | (v >> ((-shift) & 31))
}
