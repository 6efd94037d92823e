package screen

import (
	"errors"
	"image"
	"sync"
	"time"
)

// ErrDiscardClosed is returned by Discard.Render after Close
var ErrDiscardClosed = errors.New("screen: discard renderer closed")

// Discard is a Renderer that shows nothing.  It paces Render to one call per
// Interval, 60 Hz if zero, like a display locked to vsync.  It stands in for
// real hardware when a server runs in mock mode.
type Discard struct {
	Interval time.Duration

	mu   sync.Mutex
	last *image.Gray
	tick *time.Ticker
	quit chan struct{}
}

// Open satisfies Renderer
func (d *Discard) Open(Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	iv := d.Interval
	if iv <= 0 {
		iv = time.Second / 60
	}
	d.tick = time.NewTicker(iv)
	d.quit = make(chan struct{})
	return nil
}

// Render satisfies Renderer
func (d *Discard) Render(img *image.Gray) error {
	d.mu.Lock()
	tick, quit := d.tick, d.quit
	d.last = img
	d.mu.Unlock()
	if tick == nil {
		return ErrDiscardClosed
	}
	select {
	case <-tick.C:
		return nil
	case <-quit:
		return ErrDiscardClosed
	}
}

// Last returns the most recently rendered image, nil before the first Render
func (d *Discard) Last() *image.Gray {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Close satisfies Renderer
func (d *Discard) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tick == nil {
		return nil
	}
	d.tick.Stop()
	close(d.quit)
	d.tick = nil
	return nil
}
