package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
logger.SetFlags(logger.IP|logger.UDP)

logger.GetInstance().Info(logger.IP, func() {...}) // 会执行

logger.GetInstance().Info(logger.ARP, func() {...}) // 不会执行
*/

const (
	// ETH 以太网
	ETH = 1 << iota
	IP
	ARP
	UDP
	ICMP

	// ALL 所有层
	ALL = ETH | IP | ARP | UDP | ICMP
)

var layerNames = map[uint8]string{
	ETH:  "eth",
	IP:   "ip",
	ARP:  "arp",
	UDP:  "udp",
	ICMP: "icmp",
}

type logger struct {
	flags atomic.Uint32
	log   *logrus.Logger
}

var instance *logger
var once sync.Once

// GetInstance 获取日志实例
func GetInstance() *logger {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		instance = &logger{log: l}
	})
	return instance
}

// SetFlags 设置输出哪些层的日志
func SetFlags(flags uint8) {
	GetInstance().flags.Store(uint32(flags))
}

// Flags 当前打开的层
func Flags() uint8 {
	return uint8(GetInstance().flags.Load())
}

// Info mask 对应的层打开时才执行 f
func (l *logger) Info(mask uint8, f func()) {
	if uint32(mask)&l.flags.Load() != 0 {
		f()
	}
}

// L 带 layer 字段的日志入口
func L(mask uint8) *logrus.Entry {
	return GetInstance().log.WithField("layer", layerName(mask))
}

// Logrus 底层的 logrus 实例 给 CLI 这种不分层的代码用
func Logrus() *logrus.Logger {
	return GetInstance().log
}

// Drop 记录一次丢包 只在对应层打开时输出
func Drop(mask uint8, reason string, fields logrus.Fields) {
	GetInstance().Info(mask, func() {
		L(mask).WithFields(fields).WithField("reason", reason).Debug("drop")
	})
}

func layerName(mask uint8) string {
	if name, ok := layerNames[mask]; ok {
		return name
	}
	var names []string
	for bit := uint8(ETH); bit <= ICMP; bit <<= 1 {
		if mask&bit != 0 {
			names = append(names, layerNames[bit])
		}
	}
	return strings.Join(names, "|")
}

// ParseLayers "eth,ip,arp" -> ETH|IP|ARP "all" 表示全部
func ParseLayers(names []string) (uint8, error) {
	var flags uint8
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "all" {
			flags |= ALL
			continue
		}
		found := false
		for bit, name := range layerNames {
			if name == n {
				flags |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown log layer %q", n)
		}
	}
	return flags, nil
}

// FileConfig 滚动日志文件
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config 日志配置
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Layers []string   `mapstructure:"layers"`
	File   FileConfig `mapstructure:"file"`
}

// Setup 按配置设置日志级别 格式 输出和分层开关
func Setup(cfg Config) error {
	l := GetInstance().log

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	l.SetOutput(createWriter(cfg.File))

	flags, err := ParseLayers(cfg.Layers)
	if err != nil {
		return err
	}
	SetFlags(flags)
	return nil
}

func createWriter(fc FileConfig) io.Writer {
	if fc.Path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,  // megabytes
		MaxBackups: fc.MaxBackups, // number of backups
		MaxAge:     fc.MaxAgeDays, // days
		Compress:   fc.Compress,
	}
}
