/*Package screen holds the most recent image for a full-screen output surface and
keeps it on screen with a background presentation loop.

A Buffer is bound to one Surface, chosen by index from an Enumerator, and draws
through a Renderer.  Callers Submit images at whatever rate they like; the loop
redraws whatever image is current as fast as the Renderer allows.  Only the
most recently submitted image is guaranteed to reach the screen, intermediate
images may be dropped.

	bufr, err := screen.Open(monitors, window, 1, screen.Options{})
	if err != nil {
		return err
	}
	defer bufr.Close()
	err = bufr.Submit(img)
*/
package screen

import (
	"fmt"
	"image"
)

// Surface is a physical output, such as a monitor or projector input
type Surface struct {
	// Index is the position of the surface in its enumeration
	Index int `json:"index"`

	// Name is a human readable name, or a device path
	Name string `json:"name"`

	// X is the horizontal position of the surface on the virtual desktop
	X int `json:"x"`

	// Y is the vertical position of the surface on the virtual desktop
	Y int `json:"y"`

	// Width is the horizontal resolution in pixels
	Width int `json:"width"`

	// Height is the vertical resolution in pixels
	Height int `json:"height"`
}

// Bounds returns the rectangle of the surface's resolution, anchored at the origin
func (s Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// String satisfies fmt.Stringer
func (s Surface) String() string {
	return fmt.Sprintf("%d: %s %dx%d at (%d,%d)", s.Index, s.Name, s.Width, s.Height, s.X, s.Y)
}

// Enumerator lists the available output surfaces
type Enumerator interface {
	Surfaces() ([]Surface, error)
}

// Static is a fixed list of surfaces
type Static []Surface

// Surfaces satisfies Enumerator
func (s Static) Surfaces() ([]Surface, error) {
	return s, nil
}

// Renderer is the windowing layer that puts pixels on a surface
type Renderer interface {
	// Open claims the surface, e.g. by creating a borderless window at
	// (X, Y) with size (Width, Height)
	Open(Surface) error

	// Render draws the image on the surface.  It may block until the
	// windowing layer has presented the frame.
	Render(*image.Gray) error

	// Close releases the surface.  It must unblock a pending Render.
	Close() error
}
