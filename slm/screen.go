package slm

import (
	"image"
	"sync"
	"time"

	"github.com/slmsuite/hardware/screen"
)

// Screen is an SLM driven as a display output
type Screen struct {
	// Settle makes writes wait Params.SettleTime before returning
	Settle bool

	p   Params
	buf *screen.Buffer

	mu    sync.Mutex
	phase []float64
	shown *image.Gray
}

// NewScreen wraps a buffer that is already presenting on the SLM's output
func NewScreen(p Params, buf *screen.Buffer) (*Screen, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Screen{
		p:     p,
		buf:   buf,
		shown: image.NewGray(buf.Surface().Bounds()),
	}, nil
}

// Params satisfies SLM
func (s *Screen) Params() Params {
	return s.p
}

// Buffer returns the underlying screen buffer
func (s *Screen) Buffer() *screen.Buffer {
	return s.buf
}

// Write satisfies SLM
func (s *Screen) Write(phase []float64) error {
	gray, err := PhaseToGray(phase, s.p)
	if err != nil {
		return err
	}
	frame, err := s.buf.SubmitGray(gray)
	if err != nil {
		return err
	}
	var keep []float64
	if phase != nil {
		keep = append([]float64(nil), phase...)
	}
	s.mu.Lock()
	s.phase = keep
	s.shown = frame
	s.mu.Unlock()
	s.settle()
	return nil
}

// WriteImage satisfies SLM.  The last written phase is forgotten.
func (s *Screen) WriteImage(img image.Image) error {
	frame, err := s.buf.SubmitGray(img)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.phase = nil
	s.shown = frame
	s.mu.Unlock()
	s.settle()
	return nil
}

// Zero writes the zero pattern
func (s *Screen) Zero() error {
	return s.Write(nil)
}

// Phase returns a copy of the last phase written with Write, nil after Zero
// or WriteImage
func (s *Screen) Phase() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == nil {
		return nil
	}
	return append([]float64(nil), s.phase...)
}

// Image returns the frame most recently handed to the display, at the
// surface resolution.  It must not be modified.
func (s *Screen) Image() *image.Gray {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// Stats returns the buffer's counters
func (s *Screen) Stats() screen.Stats {
	return s.buf.Stats()
}

// Close closes the buffer and releases the display
func (s *Screen) Close() error {
	return s.buf.Close()
}

func (s *Screen) settle() {
	if s.Settle && s.p.SettleTime > 0 {
		time.Sleep(s.p.SettleTime)
	}
}
