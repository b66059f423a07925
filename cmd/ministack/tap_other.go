//go:build !linux

package main

import (
	"errors"

	"github.com/impact-eintr/ministack/config"
	"github.com/impact-eintr/ministack/tcpip/stack"
)

type closer interface {
	stack.LinkEndpoint
	Close() error
}

func openTap(cfg *config.Config) (closer, error) {
	return nil, errors.New("tap devices are only supported on linux")
}
