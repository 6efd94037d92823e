//go:build !linux

package main

import (
	"errors"

	"github.com/slmsuite/hardware/screen"
)

func framebufferOutput(dir string) (screen.Enumerator, screen.Renderer, error) {
	return nil, nil, errors.New("framebuffer outputs are only available on linux")
}
