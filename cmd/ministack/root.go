package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/impact-eintr/ministack/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ministack",
	Short: "A minimal user space ethernet/arp/ipv4/udp stack",
	Long: `ministack runs a small user space network stack on a TAP device.

It answers ARP and ICMP echo, serves a UDP echo port and exposes
prometheus metrics about every layer.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Logrus().WithError(err).Error("Application fatal error, exit with 1")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
}
