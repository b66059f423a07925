package ports_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/header"
	"github.com/impact-eintr/ministack/tcpip/ports"
)

func TestOpenLookupClose(t *testing.T) {
	tbl := ports.NewTable(header.UDPProtocolNumber)

	_, ok := tbl.Lookup(53)
	assert.False(t, ok)

	var got []string
	require.Nil(t, tbl.Open(53, func(data []byte, n int, srcIP tcpip.Address, srcPort uint16) {
		got = append(got, string(data[:n]))
	}))
	h, ok := tbl.Lookup(53)
	require.True(t, ok)
	h([]byte("hello"), 5, "\x0a\x00\x00\x02", 1000)
	assert.Equal(t, []string{"hello"}, got)
	assert.Equal(t, 1, tbl.Len())

	tbl.Close(53)
	_, ok = tbl.Lookup(53)
	assert.False(t, ok)

	// 重复关闭没有影响
	tbl.Close(53)
	assert.Equal(t, 0, tbl.Len())
}

func TestOpenOverwrites(t *testing.T) {
	tbl := ports.NewTable(header.UDPProtocolNumber)
	var which int
	require.Nil(t, tbl.Open(7, func([]byte, int, tcpip.Address, uint16) { which = 1 }))
	require.Nil(t, tbl.Open(7, func([]byte, int, tcpip.Address, uint16) { which = 2 }))

	h, ok := tbl.Lookup(7)
	require.True(t, ok)
	h(nil, 0, "", 0)
	assert.Equal(t, 2, which)
	assert.Equal(t, 1, tbl.Len())
}

func TestOpenNilHandler(t *testing.T) {
	tbl := ports.NewTable(header.UDPProtocolNumber)
	assert.Equal(t, tcpip.ErrInvalidOptionValue, tbl.Open(7, nil))
	_, ok := tbl.Lookup(7)
	assert.False(t, ok)
}
