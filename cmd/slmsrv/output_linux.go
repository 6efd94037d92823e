//go:build linux

package main

import (
	"github.com/slmsuite/hardware/framebuffer"
	"github.com/slmsuite/hardware/screen"
)

func framebufferOutput(dir string) (screen.Enumerator, screen.Renderer, error) {
	return framebuffer.Devices{Dir: dir}, &framebuffer.Device{}, nil
}
