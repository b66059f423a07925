//go:build linux

package main

import (
	"fmt"

	"github.com/impact-eintr/ministack/config"
	"github.com/impact-eintr/ministack/logger"
	"github.com/impact-eintr/ministack/tcpip/link/tuntap"
)

// openTap 打开 tap 设备 启动网卡并给宿主机一侧配置地址
func openTap(cfg *config.Config) (*tuntap.Endpoint, error) {
	mac, err := cfg.LinkAddress()
	if err != nil {
		return nil, err
	}
	ep, err := tuntap.New(tuntap.Config{
		Name:     cfg.Interface.Name,
		MTU:      cfg.Interface.MTU,
		LinkAddr: mac,
	})
	if err != nil {
		return nil, err
	}

	if err := tuntap.SetLinkUp(ep.Name()); err != nil {
		ep.Close()
		return nil, err
	}
	if cidr := cfg.Interface.HostAddress; cidr != "" {
		if err := tuntap.AddIP(ep.Name(), cidr); err != nil {
			ep.Close()
			return nil, fmt.Errorf("configure host address: %w", err)
		}
	}
	for _, cidr := range cfg.Interface.Routes {
		if err := tuntap.SetRoute(ep.Name(), cidr); err != nil {
			ep.Close()
			return nil, fmt.Errorf("configure route: %w", err)
		}
	}
	logger.Logrus().WithField("name", ep.Name()).WithField("mac", mac).Info("tap device ready")
	return ep, nil
}
