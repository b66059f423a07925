// Package ilist 侵入式双向链表 元素自己携带前后指针 不需要额外分配
package ilist

// Linker 元素需要实现的接口 一般通过内嵌 Entry 获得
type Linker[E any] interface {
	Next() E
	Prev() E
	SetNext(E)
	SetPrev(E)
}

// Element 链表元素 一般是指针类型
type Element[E any] interface {
	comparable
	Linker[E]
}

type List[E Element[E]] struct {
	head E
	tail E
}

func (l *List[E]) Reset() {
	var zero E
	l.head = zero
	l.tail = zero
}

func (l *List[E]) Empty() bool {
	var zero E
	return l.head == zero
}

func (l *List[E]) Front() E {
	return l.head
}

func (l *List[E]) Back() E {
	return l.tail
}

// Len 需要遍历整个链表
func (l *List[E]) Len() int {
	var zero E
	n := 0
	for e := l.head; e != zero; e = e.Next() {
		n++
	}
	return n
}

func (l *List[E]) PushFront(e E) {
	var zero E
	e.SetNext(l.head)
	e.SetPrev(zero)

	if l.head != zero {
		l.head.SetPrev(e)
	} else {
		l.tail = e
	}
	l.head = e
}

func (l *List[E]) PushBack(e E) {
	var zero E
	e.SetNext(zero)
	e.SetPrev(l.tail)

	if l.tail != zero {
		l.tail.SetNext(e)
	} else {
		l.head = e
	}
	l.tail = e
}

// MoveToFront 把已经在链表中的元素移到表头
func (l *List[E]) MoveToFront(e E) {
	if l.head == e {
		return
	}
	l.Remove(e)
	l.PushFront(e)
}

func (l *List[E]) Remove(e E) {
	var zero E
	prev := e.Prev()
	next := e.Next()

	if prev != zero {
		prev.SetNext(next)
	} else {
		l.head = next
	}

	if next != zero {
		next.SetPrev(prev)
	} else {
		l.tail = prev
	}

	e.SetNext(zero)
	e.SetPrev(zero)
}

// Entry 内嵌到元素结构体中
type Entry[E any] struct {
	next E
	prev E
}

func (e *Entry[E]) Next() E {
	return e.next
}

func (e *Entry[E]) Prev() E {
	return e.prev
}

func (e *Entry[E]) SetNext(elem E) {
	e.next = elem
}

func (e *Entry[E]) SetPrev(elem E) {
	e.prev = elem
}
