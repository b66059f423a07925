package ilist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type node struct {
	Entry[*node]
	v int
}

func values(l *List[*node]) []int {
	var vs []int
	for e := l.Front(); e != nil; e = e.Next() {
		vs = append(vs, e.v)
	}
	return vs
}

func TestPushAndRemove(t *testing.T) {
	var l List[*node]
	assert.True(t, l.Empty())

	a, b, c := &node{v: 1}, &node{v: 2}, &node{v: 3}
	l.PushBack(a)
	l.PushBack(b)
	l.PushFront(c)
	assert.Equal(t, []int{3, 1, 2}, values(&l))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, b, l.Back())

	l.Remove(a)
	assert.Equal(t, []int{3, 2}, values(&l))

	l.MoveToFront(b)
	assert.Equal(t, []int{2, 3}, values(&l))
	assert.Equal(t, c, l.Back())

	l.Remove(b)
	l.Remove(c)
	assert.True(t, l.Empty())
	assert.Nil(t, l.Back())

	l.PushBack(a)
	l.Reset()
	assert.True(t, l.Empty())
}
