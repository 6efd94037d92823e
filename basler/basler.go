/*Package basler provides control of Basler cameras through the pylon SDK.

As with package alliedvision, the SDK binding is installed with Register and
opened on first use.
*/
package basler

import (
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/slmsuite/hardware/camera"
)

// DeviceInfo identifies a camera to the transport layer
type DeviceInfo struct {
	Serial string `json:"serial"`
	Model  string `json:"model"`
	GUID   string `json:"guid"`
}

// Pylon is an open pylon transport layer factory
type Pylon interface {
	camera.SDK

	// EnumerateDevices lists the attached cameras
	EnumerateDevices() ([]DeviceInfo, error)

	// CreateDevice returns a handle to a listed camera
	CreateDevice(DeviceInfo) (Device, error)
}

// Device is a pylon camera handle
type Device interface {
	camera.Features

	Open() error
	Close() error

	// GrabOne acquires a single frame
	GrabOne(timeout time.Duration) (*image.Gray16, error)
}

// DefaultTimeout is the frame timeout of a newly opened camera
const DefaultTimeout = time.Second

var session = camera.NewSession("pylon")

// Available is true once a pylon binding has been registered
func Available() bool {
	return session.Bound()
}

// Register installs the function used to open the SDK
func Register(open func() (Pylon, error)) {
	session.Register(func() (camera.SDK, error) {
		return open()
	})
}

// Camera is an open Basler camera.  It satisfies camera.Camera.
type Camera struct {
	// Timeout is how long GetFrame waits for a frame
	Timeout time.Duration

	mu       sync.Mutex
	dev      Device
	info     DeviceInfo
	width    int
	height   int
	bitdepth int
	closed   bool
}

// Open opens a camera.  id is matched against the serial numbers first, then
// taken as an index into the device list.  The empty string is index 0.
func Open(id string) (*Camera, error) {
	sdk, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	c, err := open(sdk.(Pylon), id)
	if err != nil {
		session.Release()
		return nil, err
	}
	return c, nil
}

func open(p Pylon, id string) (*Camera, error) {
	infos, err := p.EnumerateDevices()
	if err != nil {
		return nil, errors.Wrap(err, "pylon: enumerating devices")
	}
	info, err := pick(infos, id)
	if err != nil {
		return nil, err
	}
	dev, err := p.CreateDevice(info)
	if err != nil {
		return nil, errors.Wrapf(err, "pylon: creating device %s", info.Serial)
	}
	if err = dev.Open(); err != nil {
		return nil, errors.Wrapf(err, "pylon: opening %s", info.Serial)
	}
	c := &Camera{Timeout: DefaultTimeout, dev: dev, info: info}
	if err = c.configure(); err != nil {
		dev.Close()
		return nil, errors.Wrapf(err, "pylon: reading geometry of %s", info.Serial)
	}
	log.Printf("pylon: %s %s open, %dx%d at %d bits", info.Model, info.Serial, c.width, c.height, c.bitdepth)
	return c, nil
}

func pick(infos []DeviceInfo, id string) (DeviceInfo, error) {
	if len(infos) == 0 {
		return DeviceInfo{}, errors.New("pylon: no cameras found")
	}
	if id == "" {
		return infos[0], nil
	}
	for _, in := range infos {
		if in.Serial == id {
			return in, nil
		}
	}
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 || idx >= len(infos) {
		return DeviceInfo{}, fmt.Errorf("pylon: no camera with serial or index %q among %d", id, len(infos))
	}
	return infos[idx], nil
}

func (c *Camera) configure() error {
	w, err := c.dev.GetInt("Width")
	if err != nil {
		return err
	}
	h, err := c.dev.GetInt("Height")
	if err != nil {
		return err
	}
	pf, err := c.dev.GetEnum("PixelFormat")
	if err != nil {
		return err
	}
	bd, err := camera.ParseBitDepth(pf)
	if err != nil {
		return err
	}
	c.width, c.height, c.bitdepth = int(w), int(h), bd
	return nil
}

// Info returns what the transport layer knows about the camera
func (c *Camera) Info() DeviceInfo {
	return c.info
}

// CollectHeaderMetadata puts the camera's identity in FITS headers
func (c *Camera) CollectHeaderMetadata() []fitsio.Card {
	return []fitsio.Card{
		{Name: "INSTRUME", Value: "Basler " + c.info.Model, Comment: "camera make and model"},
		{Name: "SERIAL", Value: c.info.Serial, Comment: "camera serial number"},
	}
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
	return c.dev.GrabOne(c.Timeout)
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

// GetWOI satisfies camera.Camera
func (c *Camera) GetWOI() (camera.WOI, error) {
	return camera.FullFrame(c.width, c.height), nil
}

// SetWOI satisfies camera.Camera.  Cropping is not implemented.
func (c *Camera) SetWOI(w camera.WOI) error {
	if w != camera.FullFrame(c.width, c.height) {
		return errors.Wrap(camera.ErrNotSupported, "pylon: window of interest")
	}
	return nil
}

// Flush satisfies camera.Camera.  GrabOne does not queue frames, so there is
// nothing to do.
func (c *Camera) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return nil
}

var errClosed = errors.New("pylon: camera closed")

// Close closes the camera and releases its hold on the SDK
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

// Info lists the attached cameras
func Info() ([]DeviceInfo, error) {
	sdk, err := session.Acquire()
	if err != nil {
		return nil, err
	}
	defer session.Release()
	return sdk.(Pylon).EnumerateDevices()
}
