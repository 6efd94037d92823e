/*Package thorlabs provides control of the Thorlabs EXULUS spatial light
modulators.

An EXULUS is two devices in one: a display that the host drives through a
video output, and a USB virtual COM port for configuration.  EXULUS puts
phase on the display through a screen buffer and passes configuration
commands to the COM port unchanged.
*/
package thorlabs

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/gousb"
	"github.com/tarm/serial"

	"github.com/slmsuite/hardware/comm"
	"github.com/slmsuite/hardware/screen"
	"github.com/slmsuite/hardware/slm"
)

const (
	// TLVID is the Thorlabs vendor ID
	TLVID = 0x1313

	// EXULUSBaud is the baud rate of the EXULUS COM port
	EXULUSBaud = 38400

	// EXULUSTimeout is the read timeout of the EXULUS COM port
	EXULUSTimeout = 3 * time.Second
)

// EXULUSParams are the parameters of an EXULUS-HD series SLM
func EXULUSParams() slm.Params {
	return slm.Params{
		Width:        1920,
		Height:       1200,
		BitDepth:     8,
		WavelengthUM: 0.633,
		PitchUM:      [2]float64{8, 8},
		SettleTime:   300 * time.Millisecond,
	}
}

// USBInfo describes an EXULUS found on the bus
type USBInfo struct {
	Serial       string `json:"serial"`
	Product      string `json:"product"`
	Manufacturer string `json:"manufacturer"`
	Bus          int    `json:"bus"`
	Address      int    `json:"address"`
}

func isEXULUS(product string) bool {
	return strings.Contains(strings.ToUpper(product), "EXULUS")
}

// ListEXULUS lists the EXULUS devices attached over USB
func ListEXULUS() ([]USBInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(TLVID)
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	// OpenDevices returns whatever it could open along with the first error
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("thorlabs: listing USB devices: %w", err)
	}
	var out []USBInfo
	for _, d := range devs {
		product, perr := d.Product()
		if perr != nil || !isEXULUS(product) {
			continue
		}
		sn, _ := d.SerialNumber()
		mfr, _ := d.Manufacturer()
		out = append(out, USBInfo{
			Serial:       sn,
			Product:      product,
			Manufacturer: mfr,
			Bus:          d.Desc.Bus,
			Address:      d.Desc.Address,
		})
	}
	return out, nil
}

// SerialLink returns the COM port link to an EXULUS on port, e.g. /dev/ttyUSB0
// or COM4
func SerialLink(port string) *comm.RemoteDevice {
	conf := &serial.Config{Baud: EXULUSBaud, ReadTimeout: EXULUSTimeout}
	return comm.NewRemoteDevice(port, true, conf)
}

// EXULUS is a Thorlabs EXULUS SLM.  It satisfies slm.SLM.
type EXULUS struct {
	*slm.Screen

	// Link is the configuration COM port, nil if the SLM is only a display
	Link *comm.RemoteDevice
}

// NewEXULUS returns an EXULUS displaying through buf.  If link is not nil the
// COM port is checked first.  The display is zeroed.
func NewEXULUS(link *comm.RemoteDevice, buf *screen.Buffer, p slm.Params) (*EXULUS, error) {
	s, err := slm.NewScreen(p, buf)
	if err != nil {
		return nil, err
	}
	e := &EXULUS{Screen: s, Link: link}
	if link != nil {
		if err = e.Connect(); err != nil {
			return nil, err
		}
	}
	if err = e.Zero(); err != nil {
		return nil, err
	}
	return e, nil
}

// Connect opens and closes the COM port to check the device is there
func (e *EXULUS) Connect() error {
	if e.Link == nil {
		return comm.ErrNotConnected
	}
	err := e.Link.Open()
	if err != nil {
		return fmt.Errorf("thorlabs: connecting to EXULUS at %s: %w", e.Link.Addr, err)
	}
	log.Printf("thorlabs: EXULUS at %s connected", e.Link.Addr)
	return e.Link.Close()
}

// Raw sends a command to the COM port and returns the response
func (e *EXULUS) Raw(cmd string) (string, error) {
	if e.Link == nil {
		return "", comm.ErrNotConnected
	}
	err := e.Link.Open()
	if err != nil {
		return "", err
	}
	defer e.Link.Close()
	resp, err := e.Link.SendRecv([]byte(cmd))
	return string(resp), err
}

// Close releases the display
func (e *EXULUS) Close() error {
	return e.Screen.Close()
}
