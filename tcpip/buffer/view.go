package buffer

// View 是一段连续的报文数据 各层通过 TrimFront/CapLength 调整可见部分
type View []byte

// NewView 分配一个新的 View
func NewView(size int) View {
	return make(View, size)
}

// NewViewFromBytes 深拷贝 b
func NewViewFromBytes(b []byte) View {
	return append(View(nil), b...)
}

// TrimFront 从缓冲区的可见部分中删除前 count 个字节
func (v *View) TrimFront(count int) {
	*v = (*v)[count:]
}

// CapLength 不可逆地将缓冲区可见部分的长度减少到指定的值
func (v *View) CapLength(length int) {
	*v = (*v)[:length:length]
}

// Clone 深拷贝 长期保存报文(比如 ARP 等待队列)时要用它
func (v View) Clone() View {
	if v == nil {
		return nil
	}
	return NewViewFromBytes(v)
}

// Concat 把多个 View 拼接成一个新的 View
func Concat(views ...View) View {
	n := 0
	for _, v := range views {
		n += len(v)
	}
	u := make(View, 0, n)
	for _, v := range views {
		u = append(u, v...)
	}
	return u
}
