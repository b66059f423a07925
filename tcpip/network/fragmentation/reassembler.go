package fragmentation

import (
	"math"
	"sort"
	"time"

	"github.com/impact-eintr/ministack/ilist"
	"github.com/impact-eintr/ministack/tcpip/buffer"
)

// hole RFC 815 中的空洞 [first, last] 都是闭区间
type hole struct {
	first   uint16
	last    uint16
	deleted bool
}

type fragment struct {
	offset uint16
	data   buffer.View
}

type reassembler struct {
	ilist.Entry[*reassembler]
	id           uint32
	size         int
	holes        []hole
	deleted      int
	frags        []fragment
	done         bool
	creationTime time.Time
}

func newReassembler(id uint32) *reassembler {
	r := &reassembler{
		id:           id,
		holes:        make([]hole, 0, 16),
		creationTime: time.Now(),
	}
	r.holes = append(r.holes, hole{
		first: 0,
		last:  math.MaxUint16,
	})
	return r
}

// updateHoles 用新分片填补空洞 返回这个分片是否填补了任何空洞
func (r *reassembler) updateHoles(first, last uint16, more bool) bool {
	used := false
	for i := range r.holes {
		if r.holes[i].deleted || first > r.holes[i].last || last < r.holes[i].first {
			continue
		}
		used = true
		r.deleted++
		r.holes[i].deleted = true
		h := r.holes[i]
		if first > h.first {
			r.holes = append(r.holes, hole{h.first, first - 1, false})
		}
		// 最后一个分片之后不会再有空洞
		if last < h.last && more {
			r.holes = append(r.holes, hole{last + 1, h.last, false})
		}
	}
	return used
}

// process 返回 完整数据 是否完成 本次新占用的字节数
func (r *reassembler) process(first, last uint16, more bool, v buffer.View) (buffer.View, bool, int) {
	if r.done {
		return nil, false, 0
	}
	consumed := 0
	if r.updateHoles(first, last, more) {
		// 接收缓冲区可能被复用 这里要拷贝
		r.frags = append(r.frags, fragment{offset: first, data: v.Clone()})
		consumed = len(v)
		r.size += consumed
	}
	if r.deleted < len(r.holes) {
		return nil, false, consumed
	}

	sort.Slice(r.frags, func(i, j int) bool { return r.frags[i].offset < r.frags[j].offset })
	total := 0
	for _, fr := range r.frags {
		if end := int(fr.offset) + len(fr.data); end > total {
			total = end
		}
	}
	res := buffer.NewView(total)
	for _, fr := range r.frags {
		copy(res[fr.offset:], fr.data)
	}
	r.done = true
	return res, true, consumed
}

func (r *reassembler) tooOld(timeout time.Duration) bool {
	return time.Since(r.creationTime) > timeout
}
