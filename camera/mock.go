package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
)

// Mock is a fake camera that produces a deterministic diagonal gradient whose
// brightness is proportional to the exposure time.  It saturates at
// 2^BitDepth-1.
type Mock struct {
	// Serial goes into the SERIAL header card of recorded frames
	Serial string

	mu       sync.Mutex
	width    int
	height   int
	bitdepth int
	exposure time.Duration
	woi      WOI
	frames   int
	closed   bool
}

// mockRefExposure is the exposure at which the gradient is unscaled
const mockRefExposure = 10 * time.Millisecond

// NewMock returns a width x height mock with the given bit depth and a 10 ms
// exposure
func NewMock(width, height, bitdepth int) *Mock {
	return &Mock{
		Serial:   "mock",
		width:    width,
		height:   height,
		bitdepth: bitdepth,
		exposure: mockRefExposure,
		woi:      FullFrame(width, height),
	}
}

var errMockClosed = errors.New("camera: mock camera is closed")

// GetFrame satisfies Camera
func (m *Mock) GetFrame() (*image.Gray16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errMockClosed
	}
	m.frames++
	max := float64(uint32(1)<<uint(m.bitdepth) - 1)
	scale := float64(m.exposure) / float64(mockRefExposure)
	img := image.NewGray16(image.Rect(0, 0, m.woi.Width, m.woi.Height))
	for y := 0; y < m.woi.Height; y++ {
		for x := 0; x < m.woi.Width; x++ {
			sx, sy := x+m.woi.Left, y+m.woi.Top
			v := float64((sx*7+sy*13)%1024) * scale
			if v > max {
				v = max
			}
			i := img.PixOffset(x, y)
			u := uint16(v)
			img.Pix[i] = uint8(u >> 8)
			img.Pix[i+1] = uint8(u)
		}
	}
	return img, nil
}

// CollectHeaderMetadata identifies the mock in FITS headers
func (m *Mock) CollectHeaderMetadata() []fitsio.Card {
	return []fitsio.Card{
		{Name: "INSTRUME", Value: "mock", Comment: "camera make"},
		{Name: "SERIAL", Value: m.Serial, Comment: "camera serial number"},
	}
}

// Frames is the number of frames taken so far
func (m *Mock) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// GetExposureTime satisfies Camera
func (m *Mock) GetExposureTime() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposure, nil
}

// SetExposureTime satisfies Camera
func (m *Mock) SetExposureTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("camera: exposure time %v must be positive", d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exposure = d
	return nil
}

// GetWOI satisfies Camera
func (m *Mock) GetWOI() (WOI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.woi, nil
}

// SetWOI satisfies Camera.  The window must lie on the sensor.
func (m *Mock) SetWOI(w WOI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sensor := image.Rect(0, 0, m.width, m.height)
	if w.Width <= 0 || w.Height <= 0 || !w.Rect().In(sensor) {
		return fmt.Errorf("camera: window %+v is not on the %dx%d sensor", w, m.width, m.height)
	}
	m.woi = w
	return nil
}

// Flush satisfies Camera
func (m *Mock) Flush() error {
	return nil
}

// BitDepth satisfies Camera
func (m *Mock) BitDepth() int {
	return m.bitdepth
}

// Close satisfies Camera
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
