/*Package slm describes spatial light modulators and drives screen-based ones.

An SLM is written with a phase pattern in radians, row major, Width x Height.
PhaseToGray quantizes it to the gray levels the device displays.  Screen is
an SLM whose gray image is shown on a display output through a
screen.Buffer, which covers the many SLMs that present themselves to the
computer as a monitor.
*/
package slm

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/slmsuite/hardware/util"
)

// Params describe an SLM
type Params struct {
	// Width is the number of pixels in x
	Width int `yaml:"Width" json:"width"`

	// Height is the number of pixels in y
	Height int `yaml:"Height" json:"height"`

	// BitDepth is the depth of the pixel well, 1 to 8
	BitDepth int `yaml:"BitDepth" json:"bitdepth"`

	// WavelengthUM is the operating wavelength in microns
	WavelengthUM float64 `yaml:"WavelengthUM" json:"wavelengthUM"`

	// DesignWavelengthUM is the wavelength at which the full gray range is
	// 2pi of phase.  Zero means the same as WavelengthUM.
	DesignWavelengthUM float64 `yaml:"DesignWavelengthUM" json:"designWavelengthUM"`

	// PitchUM is the pixel pitch (x, y) in microns
	PitchUM [2]float64 `yaml:"PitchUM" json:"pitchUM"`

	// SettleTime is how long the liquid crystal takes to respond to a write
	SettleTime time.Duration `yaml:"SettleTime" json:"settleTime"`
}

// Validate checks that the parameters describe a device
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("slm: shape %dx%d is not positive", p.Width, p.Height)
	}
	if p.BitDepth < 1 || p.BitDepth > 8 {
		return fmt.Errorf("slm: bit depth %d outside 1-8", p.BitDepth)
	}
	if p.WavelengthUM <= 0 {
		return fmt.Errorf("slm: wavelength %g um is not positive", p.WavelengthUM)
	}
	if p.DesignWavelengthUM < 0 {
		return fmt.Errorf("slm: design wavelength %g um is negative", p.DesignWavelengthUM)
	}
	if p.SettleTime < 0 {
		return fmt.Errorf("slm: settle time %v is negative", p.SettleTime)
	}
	return nil
}

// PhaseScaling is the fraction of the gray range that 2pi of phase occupies
// at the operating wavelength
func (p Params) PhaseScaling() float64 {
	if p.DesignWavelengthUM == 0 {
		return 1
	}
	return p.WavelengthUM / p.DesignWavelengthUM
}

// Levels is the number of gray levels, 2^BitDepth
func (p Params) Levels() int {
	return 1 << uint(p.BitDepth)
}

// PhaseToGray converts a phase pattern to gray levels 0..Levels()-1.  Phase is
// wrapped into [0, 2pi) first.  Levels beyond the top of the range, which
// happen when the operating wavelength is longer than the design wavelength,
// are clipped.  A nil phase is the zero pattern.
func PhaseToGray(phase []float64, p Params) (*image.Gray, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	if phase == nil {
		return img, nil
	}
	if len(phase) != p.Width*p.Height {
		return nil, fmt.Errorf("slm: phase has %d elements, shape %dx%d needs %d", len(phase), p.Width, p.Height, p.Width*p.Height)
	}
	levels := float64(p.Levels())
	top := levels - 1
	k := levels * p.PhaseScaling() / (2 * math.Pi)
	for y := 0; y < p.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+p.Width]
		src := phase[y*p.Width : (y+1)*p.Width]
		for x, ph := range src {
			if math.IsNaN(ph) || math.IsInf(ph, 0) {
				return nil, fmt.Errorf("slm: phase at (%d, %d) is %v", x, y, ph)
			}
			w := math.Mod(ph, 2*math.Pi)
			if w < 0 {
				w += 2 * math.Pi
			}
			if w >= 2*math.Pi {
				w = 0
			}
			row[x] = uint8(util.Clamp(math.Floor(w*k), 0, top))
		}
	}
	return img, nil
}

// SLM is a spatial light modulator
type SLM interface {
	// Params describes the device
	Params() Params

	// Write displays a phase pattern; nil is the zero pattern
	Write(phase []float64) error

	// WriteImage displays gray levels directly
	WriteImage(image.Image) error

	// Close releases the device
	Close() error
}
