// Package config 用 viper 加载配置 YAML 文件加上 MINISTACK_ 开头的环境变量
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/impact-eintr/ministack"
	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/header"
)

// EnvPrefix 环境变量前缀 interface.address -> MINISTACK_INTERFACE_ADDRESS
const EnvPrefix = "ministack"

type Config struct {
	Interface InterfaceConfig `mapstructure:"interface"`
	ARP       ARPConfig       `mapstructure:"arp"`
	IP        IPConfig        `mapstructure:"ip"`
	UDP       UDPConfig       `mapstructure:"udp"`
	ICMP      ICMPConfig      `mapstructure:"icmp"`
	Log       logger.Config   `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// InterfaceConfig 网卡 协议栈自己的地址和宿主机一侧的地址
type InterfaceConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	MAC     string `mapstructure:"mac"`
	MTU     uint32 `mapstructure:"mtu"`

	// HostAddress 配到 TAP 设备上的 CIDR 为空时不配置
	HostAddress string `mapstructure:"host_address"`

	// Routes 额外经过 TAP 设备的直连网段
	Routes []string `mapstructure:"routes"`
}

type ARPConfig struct {
	EntryTimeout   time.Duration `mapstructure:"entry_timeout"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	// DumpInterval 周期性打印 arp 表 0 表示不打印
	DumpInterval time.Duration `mapstructure:"dump_interval"`
}

type IPConfig struct {
	TTL               uint8         `mapstructure:"ttl"`
	Reassembly        bool          `mapstructure:"reassembly"`
	ReassemblyTimeout time.Duration `mapstructure:"reassembly_timeout"`
}

type UDPConfig struct {
	Checksum bool `mapstructure:"checksum"`
	// EchoPort 回显服务的端口 0 表示不开启
	EchoPort uint16 `mapstructure:"echo_port"`
}

type ICMPConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Load 读取配置 path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interface.name", "tap0")
	v.SetDefault("interface.address", "192.168.1.1")
	v.SetDefault("interface.mac", "02:00:00:00:00:01")
	v.SetDefault("interface.mtu", header.EthernetMaximumPayload)
	v.SetDefault("interface.host_address", "")
	v.SetDefault("interface.routes", []string{})

	v.SetDefault("arp.entry_timeout", "60s")
	v.SetDefault("arp.pending_timeout", "1s")
	v.SetDefault("arp.dump_interval", "0s")

	v.SetDefault("ip.ttl", 64)
	v.SetDefault("ip.reassembly", true)
	v.SetDefault("ip.reassembly_timeout", "30s")

	v.SetDefault("udp.checksum", true)
	v.SetDefault("udp.echo_port", 7)

	v.SetDefault("icmp.rate_limit", 0)
	v.SetDefault("icmp.burst", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.layers", []string{})
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "127.0.0.1:9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate 检查配置
func (c *Config) Validate() error {
	if c.Interface.Name == "" {
		return fmt.Errorf("interface.name is required")
	}
	if _, err := tcpip.ParseAddress(c.Interface.Address); err != nil {
		return fmt.Errorf("invalid interface.address %q: %w", c.Interface.Address, err)
	}
	if _, err := tcpip.ParseLinkAddress(c.Interface.MAC); err != nil {
		return fmt.Errorf("invalid interface.mac %q: %w", c.Interface.MAC, err)
	}
	if c.Interface.MTU < header.IPv4MinimumSize+header.IPv4FragmentUnit || c.Interface.MTU > header.EthernetMaximumPayload {
		return fmt.Errorf("invalid interface.mtu %d (must be %d..%d)", c.Interface.MTU,
			header.IPv4MinimumSize+header.IPv4FragmentUnit, header.EthernetMaximumPayload)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", c.Log.Format)
	}
	if _, err := logger.ParseLayers(c.Log.Layers); err != nil {
		return err
	}

	if c.ICMP.RateLimit < 0 || c.ICMP.Burst < 0 {
		return fmt.Errorf("icmp.rate_limit and icmp.burst must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// LinkAddress 网卡的 MAC
func (c *Config) LinkAddress() (tcpip.LinkAddress, error) {
	mac, err := tcpip.ParseLinkAddress(c.Interface.MAC)
	if err != nil {
		return "", fmt.Errorf("invalid interface.mac %q: %w", c.Interface.MAC, err)
	}
	return mac, nil
}

// StackOptions 转换成协议栈的参数
func (c *Config) StackOptions() (ministack.Options, error) {
	addr, err := tcpip.ParseAddress(c.Interface.Address)
	if err != nil {
		return ministack.Options{}, fmt.Errorf("invalid interface.address %q: %w", c.Interface.Address, err)
	}
	opts := ministack.DefaultOptions(addr)
	opts.ARPEntryTimeout = c.ARP.EntryTimeout
	opts.ARPPendingTimeout = c.ARP.PendingTimeout
	opts.TTL = c.IP.TTL
	opts.Reassembly = c.IP.Reassembly
	opts.ReassemblyTimeout = c.IP.ReassemblyTimeout
	opts.UDPChecksum = c.UDP.Checksum
	opts.ICMPRateLimit = c.ICMP.RateLimit
	opts.ICMPBurst = c.ICMP.Burst
	return opts, nil
}
