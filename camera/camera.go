/*Package camera describes a standard set of interfaces for control of cameras

Camera is what the HTTP layer and the rest of a lab stack program against.
Features is the GenICam style node access that vendor SDKs (vimba, pylon)
expose, and which the vendor packages in this module are written against.
Session holds a process-wide SDK handle with an explicit lifecycle.
*/
package camera

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrNotSupported is returned by operations a camera does not implement
var ErrNotSupported = errors.New("camera: operation not supported")

// WOI is a window of interest on the sensor.  Left and Top are 0-based.
type WOI struct {
	// Left is the left pixel index
	Left int `json:"left"`

	// Top is the top pixel index
	Top int `json:"top"`

	// Width is the width in pixels
	Width int `json:"width"`

	// Height is the height in pixels
	Height int `json:"height"`
}

// FullFrame is the WOI covering a w x h sensor
func FullFrame(w, h int) WOI {
	return WOI{Width: w, Height: h}
}

// Rect converts the WOI to an image.Rectangle in sensor coordinates
func (w WOI) Rect() image.Rectangle {
	return image.Rect(w.Left, w.Top, w.Left+w.Width, w.Top+w.Height)
}

// Camera is a camera that takes monochrome pictures
type Camera interface {
	// GetFrame takes a picture.  Pixel values are raw counts, at most
	// 2^BitDepth()-1.
	GetFrame() (*image.Gray16, error)

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)

	// SetExposureTime sets the exposure time
	SetExposureTime(time.Duration) error

	// GetWOI gets the window of interest
	GetWOI() (WOI, error)

	// SetWOI sets the window of interest
	SetWOI(WOI) error

	// Flush clears frames the camera has buffered but not delivered
	Flush() error

	// BitDepth is the number of significant bits per pixel
	BitDepth() int

	// Close releases the camera
	Close() error
}

// Features is access to the named feature nodes of a GenICam device,
// e.g. GetFloat("ExposureTime")
type Features interface {
	GetInt(name string) (int64, error)
	SetInt(name string, v int64) error
	GetFloat(name string) (float64, error)
	SetFloat(name string, v float64) error

	// GetEnum returns the symbolic value of an enumeration node
	GetEnum(name string) (string, error)
	SetEnum(name, v string) error

	// EnumEntries lists the symbolic values an enumeration node accepts
	EnumEntries(name string) ([]string, error)
}

// ParseBitDepth extracts the bit depth from a pixel format or sensor bit
// depth name such as Mono12, Bpp10 or Bits8
func ParseBitDepth(s string) (int, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, fmt.Errorf("camera: no bit depth in %q", s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("camera: bit depth in %q: %w", s, err)
	}
	if n < 1 || n > 16 {
		return 0, fmt.Errorf("camera: bit depth %d from %q out of range 1-16", n, s)
	}
	return n, nil
}

// Micros converts a duration to the float microseconds GenICam ExposureTime
// nodes are denominated in
func Micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

// FromMicros is the inverse of Micros
func FromMicros(us float64) time.Duration {
	return time.Duration(us * float64(time.Microsecond))
}
