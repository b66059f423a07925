package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/impact-eintr/ministack"
	"github.com/impact-eintr/ministack/config"
	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip"
	"github.com/impact-eintr/ministack/tcpip/stack"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stack on a TAP device",
	Long: `
Open the configured TAP device and run the stack on it until SIGINT/SIGTERM.

Examples:
  ministack run                          # defaults: tap0, 192.168.1.1, udp echo on port 7
  ministack run -c ministack.yaml        # load configuration from ministack.yaml
  MINISTACK_LOG_LAYERS=arp,ip ministack run
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(cfg.Log); err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}

		ep, err := openTap(cfg)
		if err != nil {
			return err
		}
		defer ep.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, ep)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// serve 在 ep 上运行协议栈 直到 ctx 结束
func serve(ctx context.Context, cfg *config.Config, ep stack.LinkEndpoint) error {
	opts, err := cfg.StackOptions()
	if err != nil {
		return err
	}
	s, err := ministack.New(ep, opts)
	if err != nil {
		return fmt.Errorf("create stack: %w", err)
	}

	if port := cfg.UDP.EchoPort; port != 0 {
		if err := s.Open(port, echoHandler(s, port)); err != nil {
			return fmt.Errorf("open echo port %d: %w", port, err)
		}
		logger.Logrus().WithField("port", port).Info("udp echo service started")
	}

	if cfg.Metrics.Enabled {
		m := startMetrics(cfg.Metrics.Listen, cfg.Metrics.Path, s.Registry())
		defer func() {
			if err := m.stop(context.Background()); err != nil {
				logger.Logrus().WithError(err).Warn("stop metrics server")
			}
		}()
	}

	if cfg.ARP.DumpInterval > 0 {
		go dumpARP(ctx, cfg, s, cfg.ARP.DumpInterval)
	}

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Logrus().Info("stack stopped")
	return err
}

// echoHandler 把收到的数据原样发回去
func echoHandler(s *ministack.Stack, port uint16) ministack.Handler {
	return func(data []byte, n int, srcIP tcpip.Address, srcPort uint16) {
		logger.GetInstance().Info(logger.UDP, func() {
			logger.L(logger.UDP).Debugf("echo %d bytes to %s:%d", n, srcIP, srcPort)
		})
		if err := s.Send(data[:n], port, srcIP, srcPort); err != nil {
			logger.L(logger.UDP).WithError(err).Warn("echo")
		}
	}
}

func dumpARP(ctx context.Context, cfg *config.Config, s *ministack.Stack, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out, err := renderARP(cfg, s.ARPEntries())
			if err != nil {
				logger.L(logger.ARP).WithError(err).Warn("dump arp table")
				continue
			}
			logger.L(logger.ARP).Infof("arp table\n%s", out)
		}
	}
}
