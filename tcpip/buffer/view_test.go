package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewTrimAndCap(t *testing.T) {
	v := NewViewFromBytes([]byte("hello world"))
	v.TrimFront(6)
	assert.Equal(t, "world", string(v))

	v.CapLength(3)
	assert.Equal(t, "wor", string(v))
	assert.Equal(t, 3, cap(v))
}

func TestViewClone(t *testing.T) {
	orig := NewViewFromBytes([]byte{1, 2, 3})
	c := orig.Clone()
	orig[0] = 9
	assert.Equal(t, View{1, 2, 3}, c)
	assert.Nil(t, View(nil).Clone())
}

func TestConcat(t *testing.T) {
	assert.Equal(t, View("hello world"), Concat(View("hello"), View(" "), View("world")))
}

func TestPrependableFromView(t *testing.T) {
	payload := NewViewFromBytes([]byte("data"))
	p := NewPrependableFromView(payload, 8)
	assert.Equal(t, 4, p.UsedLength())
	assert.Equal(t, 8, p.AvailableLength())

	hdr := p.Prepend(8)
	require.Len(t, hdr, 8)
	copy(hdr, "HEADER!!")
	assert.Equal(t, "HEADER!!data", string(p.View()))

	// 原始数据不受影响
	assert.Equal(t, "data", string(payload))

	assert.Nil(t, p.Prepend(1))
}

func TestPrependableEmpty(t *testing.T) {
	p := NewPrependable(4)
	assert.Equal(t, 0, p.UsedLength())
	copy(p.Prepend(2), "ab")
	copy(p.Prepend(2), "xy")
	assert.Equal(t, "xyab", string(p.View()))
}
