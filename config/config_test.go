package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impact-eintr/ministack/tcpip"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "ministack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tap0", cfg.Interface.Name)
	assert.Equal(t, uint32(1500), cfg.Interface.MTU)
	assert.Equal(t, 60*time.Second, cfg.ARP.EntryTimeout)
	assert.Equal(t, time.Second, cfg.ARP.PendingTimeout)
	assert.Equal(t, uint8(64), cfg.IP.TTL)
	assert.True(t, cfg.IP.Reassembly)
	assert.True(t, cfg.UDP.Checksum)
	assert.Equal(t, uint16(7), cfg.UDP.EchoPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
interface:
  name: tap9
  address: 10.0.0.1
  mac: "aa:bb:cc:dd:ee:ff"
  mtu: 1400
  host_address: 10.0.0.2/24
arp:
  entry_timeout: 5s
ip:
  ttl: 32
  reassembly: false
udp:
  checksum: false
  echo_port: 9000
icmp:
  rate_limit: 10
  burst: 5
log:
  level: debug
  format: json
  layers: [ip, udp]
  file:
    path: /tmp/ministack.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tap9", cfg.Interface.Name)
	assert.Equal(t, uint32(1400), cfg.Interface.MTU)
	assert.Equal(t, "10.0.0.2/24", cfg.Interface.HostAddress)
	assert.Equal(t, 5*time.Second, cfg.ARP.EntryTimeout)
	assert.Equal(t, []string{"ip", "udp"}, cfg.Log.Layers)
	assert.Equal(t, "/tmp/ministack.log", cfg.Log.File.Path)
	assert.Equal(t, 100, cfg.Log.File.MaxSizeMB)

	opts, err := cfg.StackOptions()
	require.NoError(t, err)
	assert.Equal(t, tcpip.Address("\x0a\x00\x00\x01"), opts.Address)
	assert.Equal(t, 5*time.Second, opts.ARPEntryTimeout)
	assert.Equal(t, uint8(32), opts.TTL)
	assert.False(t, opts.Reassembly)
	assert.False(t, opts.UDPChecksum)
	assert.Equal(t, 10.0, opts.ICMPRateLimit)
	assert.Equal(t, 5, opts.ICMPBurst)

	mac, err := cfg.LinkAddress()
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac.String())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MINISTACK_INTERFACE_ADDRESS", "172.16.0.1")
	t.Setenv("MINISTACK_UDP_ECHO_PORT", "1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.1", cfg.Interface.Address)
	assert.Equal(t, uint16(1234), cfg.UDP.EchoPort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad address", "interface:\n  address: 10.0.0\n"},
		{"bad mac", "interface:\n  mac: zz\n"},
		{"mtu too small", "interface:\n  mtu: 20\n"},
		{"mtu too large", "interface:\n  mtu: 9000\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad layer", "log:\n  layers: [tcp]\n"},
		{"negative burst", "icmp:\n  burst: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
