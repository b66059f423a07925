// Package rand 协议栈里用到的加密随机数 分片哈希的种子 IP 报文的初始 id
package rand

import (
	"crypto/rand"
	"encoding/binary"
)

// Read implements io.Reader.Read.
func Read(b []byte) (int, error) {
	return rand.Read(b)
}

// Uint32s 生成 n 个随机数 系统随机源不可用时直接 panic
func Uint32s(n int) []uint32 {
	b := make([]byte, 4*n)
	if _, err := Read(b); err != nil {
		panic("unable to get random numbers: " + err.Error())
	}
	r := make([]uint32, n)
	for i := range r {
		r[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return r
}

// Uint32 一个随机数
func Uint32() uint32 {
	return Uint32s(1)[0]
}
