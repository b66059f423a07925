// Package fragmentation IPv4 分片重组
package fragmentation

import (
	"sync"
	"time"

	"github.com/impact-eintr/ministack/ilist"
	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip/buffer"
)

// DefaultReassembleTimeout is based on the linux stack: net.ipv4.ipfrag_time.
const DefaultReassembleTimeout = 30 * time.Second

// HighFragThreshold is the threshold at which we start trimming old
// fragmented packets. Linux uses a default value of 4 MB. See
// net.ipv4.ipfrag_high_thresh for more information.
const HighFragThreshold = 4 << 20 // 4MB

// LowFragThreshold is the threshold we reach to when we start dropping
// older fragmented packets. It's important that we keep enough room for newer
// packets to be re-assembled. Hence, this needs to be lower than
// HighFragThreshold enough. Linux uses a default value of 3 MB. See
// net.ipv4.ipfrag_low_thresh for more information.
const LowFragThreshold = 3 << 20 // 3MB

// Fragmentation 管理所有正在重组的数据报 内存超过高水位时从最老的开始淘汰
type Fragmentation struct {
	mu           sync.Mutex
	highLimit    int
	lowLimit     int
	reassemblers map[uint32]*reassembler
	rList        ilist.List[*reassembler] // 表头最新 表尾最老
	size         int
	timeout      time.Duration
}

func NewFragmentation(highMemoryLimit, lowMemoryLimit int, reassemblingTimeout time.Duration) *Fragmentation {
	if lowMemoryLimit >= highMemoryLimit {
		lowMemoryLimit = highMemoryLimit
	}

	if lowMemoryLimit < 0 {
		lowMemoryLimit = 0
	}

	return &Fragmentation{
		reassemblers: make(map[uint32]*reassembler),
		highLimit:    highMemoryLimit,
		lowLimit:     lowMemoryLimit,
		timeout:      reassemblingTimeout,
	}
}

// Process 处理一个分片 first/last 是分片负载在原数据报中的首尾字节偏移
// 数据报重组完成时返回完整的负载和 true
func (f *Fragmentation) Process(id uint32, first, last uint16, more bool, v buffer.View) (buffer.View, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire()

	r, ok := f.reassemblers[id]
	if ok && r.tooOld(f.timeout) {
		// 很可能是 id 冲突 或者有人在做慢速攻击
		f.release(r)
		ok = false
	}
	if !ok {
		r = newReassembler(id)
		f.reassemblers[id] = r
		f.rList.PushFront(r)
	}

	res, done, consumed := r.process(first, last, more, v)
	f.size += consumed
	if done {
		f.release(r)
	}

	// 超过高水位 从最老的开始淘汰 直到低于低水位
	if f.size > f.highLimit {
		for f.size > f.lowLimit {
			tail := f.rList.Back()
			if tail == nil {
				break
			}
			logger.GetInstance().Info(logger.IP, func() {
				logger.L(logger.IP).Debugf("reassembly memory over limit, evict id=%#x", tail.id)
			})
			f.release(tail)
		}
	}
	return res, done
}

// Size 正在重组的数据占用的字节数
func (f *Fragmentation) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Pending 正在重组的数据报个数
func (f *Fragmentation) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reassemblers)
}

// expire 链表按创建时间排序 从表尾淘汰超时的
func (f *Fragmentation) expire() {
	for {
		tail := f.rList.Back()
		if tail == nil || !tail.tooOld(f.timeout) {
			return
		}
		f.release(tail)
	}
}

func (f *Fragmentation) release(r *reassembler) {
	// Before releasing a fragment we need to check if r is already marked as done.
	// Otherwise, we would delete it twice.
	if _, ok := f.reassemblers[r.id]; !ok || f.reassemblers[r.id] != r {
		return
	}
	delete(f.reassemblers, r.id)
	f.rList.Remove(r)
	f.size -= r.size
	if f.size < 0 {
		f.size = 0
	}
}
