/*Package alliedvision provides control of AlliedVision cameras through the
Vimba SDK.

The SDK itself is not part of this module.  A binding satisfying Vimba is
installed with Register, usually from a cgo package imported for side effects,
the same way database/sql drivers are:

	import _ "example.com/vimbacgo"

	cam, err := alliedvision.Open("")

The SDK is opened by the first Open and shut down when the last camera is
closed, or by CloseSDK.
*/
package alliedvision

import (
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/slmsuite/hardware/camera"
)

// Vimba is an open Vimba SDK
type Vimba interface {
	camera.SDK

	// Cameras lists the cameras the SDK can see
	Cameras() ([]Device, error)
}

// Device is one camera known to the SDK
type Device interface {
	camera.Features

	// Serial is the camera's serial number
	Serial() string

	// Open opens the camera for control and acquisition
	Open() error

	// Close closes the camera
	Close() error

	// Frame acquires one frame
	Frame(timeout time.Duration) (*image.Gray16, error)
}

// FlushFrames is the number of frames Flush discards
const FlushFrames = 5

// DefaultTimeout is the frame timeout of a newly opened camera
const DefaultTimeout = time.Second

var session = camera.NewSession("vimba")

// Available is true once a Vimba binding has been registered
func Available() bool {
	return session.Bound()
}

// Register installs the function used to open the SDK
func Register(open func() (Vimba, error)) {
	session.Register(func() (camera.SDK, error) {
		return open()
	})
}

// setup is the configuration applied to every camera on open: software
// triggered free run, no binning, manual exposure and gain
var setup = []struct {
	name  string
	enum  string
	value int64
}{
	{name: "TriggerSource", enum: "Software"},
	{name: "TriggerSelector", enum: "FrameStart"},
	{name: "TriggerMode", enum: "Off"},
	{name: "AcquisitionMode", enum: "Continuous"},
	{name: "BinningHorizontal", value: 1},
	{name: "BinningVertical", value: 1},
	{name: "ExposureAuto", enum: "Off"},
	{name: "ExposureMode", enum: "Timed"},
	{name: "GainAuto", enum: "Off"},
}

// Camera is an open AlliedVision camera.  It satisfies camera.Camera.
type Camera struct {
	// Timeout is how long GetFrame waits for a frame
	Timeout time.Duration

	mu       sync.Mutex
	dev      Device
	serial   string
	width    int
	height   int
	bitdepth int
	closed   bool
}

// Open opens the camera with the given serial number, or the first camera the
// SDK lists if serial is empty
func Open(serial string) (*Camera, error) {
	sdk, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	cam, err := open(sdk.(Vimba), serial)
	if err != nil {
		session.Release()
		return nil, err
	}
	return cam, nil
}

func open(v Vimba, serial string) (*Camera, error) {
	devs, err := v.Cameras()
	if err != nil {
		return nil, errors.Wrap(err, "vimba: listing cameras")
	}
	dev, err := pick(devs, serial)
	if err != nil {
		return nil, err
	}
	serial = dev.Serial()
	if err = dev.Open(); err != nil {
		return nil, errors.Wrapf(err, "vimba: opening camera %s", serial)
	}
	c := &Camera{Timeout: DefaultTimeout, dev: dev, serial: serial}
	if err = c.configure(); err != nil {
		dev.Close()
		return nil, errors.Wrapf(err, "vimba: configuring camera %s", serial)
	}
	log.Printf("vimba: camera %s open, %dx%d at %d bits", serial, c.width, c.height, c.bitdepth)
	return c, nil
}

func pick(devs []Device, serial string) (Device, error) {
	if serial == "" {
		if len(devs) == 0 {
			return nil, errors.New("vimba: no cameras found")
		}
		if len(devs) > 1 {
			log.Printf("vimba: no serial given, choosing the first of %v", serials(devs))
		}
		return devs[0], nil
	}
	for _, d := range devs {
		if d.Serial() == serial {
			return d, nil
		}
	}
	return nil, fmt.Errorf("vimba: serial %s not found, available: %v", serial, serials(devs))
}

func serials(devs []Device) []string {
	out := make([]string, len(devs))
	for i, d := range devs {
		out[i] = d.Serial()
	}
	return out
}

func (c *Camera) configure() error {
	w, err := c.dev.GetInt("SensorWidth")
	if err != nil {
		return err
	}
	h, err := c.dev.GetInt("SensorHeight")
	if err != nil {
		return err
	}
	px, err := c.dev.GetEnum("PixelSize")
	if err != nil {
		return err
	}
	bd, err := camera.ParseBitDepth(px)
	if err != nil {
		return err
	}
	c.width, c.height, c.bitdepth = int(w), int(h), bd

	for _, s := range setup {
		if s.enum != "" {
			err = c.dev.SetEnum(s.name, s.enum)
		} else {
			err = c.dev.SetInt(s.name, s.value)
		}
		if err != nil {
			return errors.Wrapf(err, "setting %s", s.name)
		}
	}
	return nil
}

// Serial is the camera's serial number
func (c *Camera) Serial() string {
	return c.serial
}

// CollectHeaderMetadata puts the camera's identity in FITS headers
func (c *Camera) CollectHeaderMetadata() []fitsio.Card {
	return []fitsio.Card{
		{Name: "INSTRUME", Value: "Allied Vision", Comment: "camera make"},
		{Name: "SERIAL", Value: c.serial, Comment: "camera serial number"},
	}
}

// Shape returns the sensor width and height
func (c *Camera) Shape() (int, int) {
	return c.width, c.height
}

// BitDepth satisfies camera.Camera
func (c *Camera) BitDepth() int {
	return c.bitdepth
}

// GetFrame satisfies camera.Camera
func (c *Camera) GetFrame() (*image.Gray16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	return c.dev.Frame(c.Timeout)
}

// GetExposureTime satisfies camera.Camera
func (c *Camera) GetExposureTime() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errClosed
	}
	us, err := c.dev.GetFloat("ExposureTime")
	if err != nil {
		return 0, err
	}
	return camera.FromMicros(us), nil
}

// SetExposureTime satisfies camera.Camera
func (c *Camera) SetExposureTime(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return c.dev.SetFloat("ExposureTime", camera.Micros(d))
}

// GetWOI satisfies camera.Camera.  It is always the full sensor.
func (c *Camera) GetWOI() (camera.WOI, error) {
	return camera.FullFrame(c.width, c.height), nil
}

// SetWOI satisfies camera.Camera.  Only the full sensor is accepted.
func (c *Camera) SetWOI(w camera.WOI) error {
	if w != camera.FullFrame(c.width, c.height) {
		return errors.Wrap(camera.ErrNotSupported, "vimba: window of interest")
	}
	return nil
}

// Flush discards FlushFrames frames
func (c *Camera) Flush() error {
	for i := 0; i < FlushFrames; i++ {
		if _, err := c.GetFrame(); err != nil {
			return err
		}
	}
	return nil
}

// GetADCBitDepth returns the digitization depth
func (c *Camera) GetADCBitDepth() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errClosed
	}
	v, err := c.dev.GetEnum("SensorBitDepth")
	if err != nil {
		return 0, err
	}
	return camera.ParseBitDepth(v)
}

// SetADCBitDepth selects the SensorBitDepth entry with the given depth
func (c *Camera) SetADCBitDepth(bits int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	entries, err := c.dev.EnumEntries("SensorBitDepth")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if n, err := camera.ParseBitDepth(e); err == nil && n == bits {
			return c.dev.SetEnum("SensorBitDepth", e)
		}
	}
	return fmt.Errorf("vimba: ADC bit depth %d not available, entries are %s", bits, strings.Join(entries, ", "))
}

var errClosed = errors.New("vimba: camera closed")

// Close closes the camera and releases its hold on the SDK.  It is safe to
// call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.dev.Close()
	if rerr := session.Release(); err == nil {
		err = rerr
	}
	return err
}

// CloseSDK shuts the SDK down even if cameras are still open
func CloseSDK() error {
	return session.Shutdown()
}

// Info lists the serial numbers of the cameras the SDK can see
func Info() ([]string, error) {
	sdk, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	defer session.Release()
	devs, err := sdk.(Vimba).Cameras()
	if err != nil {
		return nil, err
	}
	return serials(devs), nil
}
