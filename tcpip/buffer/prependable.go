package buffer

// Prependable 预留头部空间的缓冲区 每一层往前追加自己的首部 eth|ipv4|udp
type Prependable struct {
	buf View

	usedIdx int
}

// NewPrependable 只有预留空间 没有数据
func NewPrependable(size int) Prependable {
	return Prependable{buf: NewView(size), usedIdx: size}
}

// NewPrependableFromView 分配 reserve+len(v) 的新缓冲区 把 v 拷贝到尾部
// 前面 reserve 个字节留给各层首部 原来的 v 不会被修改
func NewPrependableFromView(v View, reserve int) Prependable {
	buf := NewView(reserve + len(v))
	copy(buf[reserve:], v)
	return Prependable{buf: buf, usedIdx: reserve}
}

// View 当前已经使用的部分
func (p Prependable) View() View {
	return p.buf[p.usedIdx:]
}

// UsedLength 已经使用的长度
func (p Prependable) UsedLength() int {
	return len(p.buf) - p.usedIdx
}

// AvailableLength 还能往前追加的长度
func (p Prependable) AvailableLength() int {
	return p.usedIdx
}

// Prepend 向前扩展 size 个字节并返回这段空间 空间不够时返回 nil
func (p *Prependable) Prepend(size int) []byte {
	if size > p.usedIdx {
		return nil
	}
	p.usedIdx -= size
	return p.View()[:size:size]
}
