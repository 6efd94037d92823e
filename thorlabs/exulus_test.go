package thorlabs

import (
	"bufio"
	"image"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/slmsuite/hardware/comm"
	"github.com/slmsuite/hardware/generichttp/ascii"
	"github.com/slmsuite/hardware/screen"
	"github.com/slmsuite/hardware/slm"
)

type countingRenderer struct {
	mu     sync.Mutex
	frames []*image.Gray
	quit   chan struct{}
	once   sync.Once
}

func (c *countingRenderer) Open(screen.Surface) error {
	c.quit = make(chan struct{})
	return nil
}

func (c *countingRenderer) Render(img *image.Gray) error {
	c.mu.Lock()
	c.frames = append(c.frames, img)
	c.mu.Unlock()
	select {
	case <-time.After(time.Millisecond):
	case <-c.quit:
	}
	return nil
}

func (c *countingRenderer) Close() error {
	c.once.Do(func() { close(c.quit) })
	return nil
}

func smallParams() slm.Params {
	p := EXULUSParams()
	p.Width, p.Height = 16, 10
	p.SettleTime = 0
	return p
}

func openBuffer(t *testing.T, p slm.Params) (*screen.Buffer, *countingRenderer) {
	t.Helper()
	r := &countingRenderer{}
	buf, err := screen.Open(screen.Static{{Width: p.Width, Height: p.Height}}, r, 0, screen.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return buf, r
}

func TestEXULUSParams(t *testing.T) {
	p := EXULUSParams()
	if p.Width != 1920 || p.Height != 1200 || p.BitDepth != 8 {
		t.Errorf("geometry %dx%d at %d bits", p.Width, p.Height, p.BitDepth)
	}
	if p.WavelengthUM != 0.633 || p.PitchUM != [2]float64{8, 8} {
		t.Errorf("wavelength %g pitch %v", p.WavelengthUM, p.PitchUM)
	}
	if err := p.Validate(); err != nil {
		t.Error(err)
	}
}

func TestIsEXULUS(t *testing.T) {
	for prod, exp := range map[string]bool{
		"EXULUS-HD1":  true,
		"Exulus-4K1":  true,
		"ITC4001":     false,
		"":            false,
		"LDC4000 USB": false,
	} {
		if got := isEXULUS(prod); got != exp {
			t.Errorf("isEXULUS(%q) = %v", prod, got)
		}
	}
}

func TestNewEXULUSZerosDisplay(t *testing.T) {
	p := smallParams()
	buf, _ := openBuffer(t, p)
	e, err := NewEXULUS(nil, buf, p)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if st := e.Stats(); st.Submitted != 1 {
		t.Errorf("%d images submitted on construction, expected the zero pattern", st.Submitted)
	}
	if e.Phase() != nil {
		t.Error("phase after construction is not the zero pattern")
	}
	if _, err := e.Raw("ver?"); err != comm.ErrNotConnected {
		t.Errorf("raw without a link returned %v", err)
	}
}

func TestRawOverLink(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					if _, err := r.ReadString('\r'); err != nil {
						return
					}
					c.Write([]byte("EXULUS-HD1 v1.0\r"))
				}
			}(c)
		}
	}()

	p := smallParams()
	buf, _ := openBuffer(t, p)
	e, err := NewEXULUS(comm.NewRemoteDevice(ln.Addr().String(), false, nil), buf, p)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	resp, err := e.Raw("ver?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "EXULUS-HD1 v1.0" {
		t.Errorf("got %q", resp)
	}
	// EXULUS can be given a /raw route
	var _ ascii.RawCommunicator = e
	if e.Link.Connected() {
		t.Error("link left open after Raw")
	}
}

func TestSatisfiesSLMDevice(t *testing.T) {
	var _ slm.Device = (*EXULUS)(nil)
}
