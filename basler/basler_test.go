package basler

import (
	"image"
	"testing"
	"time"
)

type fakeDevice struct {
	info   DeviceInfo
	floats map[string]float64
	opened bool
	grabs  int
	lastTO time.Duration
}

func (d *fakeDevice) GetInt(n string) (int64, error) {
	switch n {
	case "Width":
		return 1280, nil
	case "Height":
		return 1024, nil
	}
	return 0, nil
}
func (d *fakeDevice) SetInt(string, int64) error { return nil }
func (d *fakeDevice) GetFloat(n string) (float64, error) { return d.floats[n], nil }
func (d *fakeDevice) SetFloat(n string, v float64) error {
	d.floats[n] = v
	return nil
}
func (d *fakeDevice) GetEnum(string) (string, error) { return "Mono10", nil }
func (d *fakeDevice) SetEnum(string, string) error { return nil }
func (d *fakeDevice) EnumEntries(string) ([]string, error) { return nil, nil }
func (d *fakeDevice) Open() error { d.opened = true; return nil }
func (d *fakeDevice) Close() error { d.opened = false; return nil }
func (d *fakeDevice) GrabOne(to time.Duration) (*image.Gray16, error) {
	d.grabs++
	d.lastTO = to
	return image.NewGray16(image.Rect(0, 0, 1280, 1024)), nil
}

type fakePylon struct {
	devs   map[string]*fakeDevice
	order  []DeviceInfo
	closed int
}

func (p *fakePylon) EnumerateDevices() ([]DeviceInfo, error) { return p.order, nil }
func (p *fakePylon) CreateDevice(in DeviceInfo) (Device, error) {
	return p.devs[in.Serial], nil
}
func (p *fakePylon) Close() error { p.closed++; return nil }

func install(t *testing.T, serials ...string) *fakePylon {
	t.Helper()
	p := &fakePylon{devs: map[string]*fakeDevice{}}
	for _, s := range serials {
		in := DeviceInfo{Serial: s, Model: "acA1300-200um"}
		p.order = append(p.order, in)
		p.devs[s] = &fakeDevice{info: in, floats: map[string]float64{}}
	}
	Register(func() (Pylon, error) { return p, nil })
	t.Cleanup(func() { CloseSDK() })
	return p
}

func TestOpenSelection(t *testing.T) {
	table := []struct {
		id  string
		exp string
	}{
		{"", "2200"},
		{"2300", "2300"},
		{"1", "2300"},
		{"0", "2200"},
	}
	for _, tt := range table {
		p := install(t, "2200", "2300")
		c, err := Open(tt.id)
		if err != nil {
			t.Fatalf("Open(%q): %v", tt.id, err)
		}
		if c.Info().Serial != tt.exp {
			t.Errorf("Open(%q) opened %s, expected %s", tt.id, c.Info().Serial, tt.exp)
		}
		if !p.devs[tt.exp].opened {
			t.Errorf("Open(%q) did not open the device", tt.id)
		}
		c.Close()
	}
}

func TestOpenBadIDReleasesSDK(t *testing.T) {
	p := install(t, "2200")
	for _, id := range []string{"5", "nope", "-1"} {
		if _, err := Open(id); err == nil {
			t.Errorf("Open(%q) succeeded", id)
		}
	}
	if p.closed != 3 {
		t.Errorf("SDK closed %d times after 3 failed opens", p.closed)
	}
}

func TestGeometryExposureAndGrab(t *testing.T) {
	p := install(t, "2200")
	c, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.BitDepth() != 10 {
		t.Errorf("bit depth %d, expected 10 from Mono10", c.BitDepth())
	}
	w, _ := c.GetWOI()
	if w.Width != 1280 || w.Height != 1024 {
		t.Errorf("woi %+v", w)
	}
	if err := c.SetExposureTime(3 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if us := p.devs["2200"].floats["ExposureTime"]; us != 3000 {
		t.Errorf("ExposureTime node %f, expected 3000", us)
	}
	if _, err := c.GetFrame(); err != nil {
		t.Fatal(err)
	}
	if to := p.devs["2200"].lastTO; to != DefaultTimeout {
		t.Errorf("grab timeout %v, expected %v", to, DefaultTimeout)
	}
	if err := c.Flush(); err != nil || p.devs["2200"].grabs != 1 {
		t.Errorf("flush grabbed frames or failed: %v", err)
	}
}

func TestInfoLists(t *testing.T) {
	install(t, "2200", "2300")
	infos, err := Info()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[1].Serial != "2300" {
		t.Errorf("Info() = %+v", infos)
	}
}

func TestClosedCameraRefusesDeviceAccess(t *testing.T) {
	p := install(t, "2200")
	c, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	calls := map[string]error{}
	_, calls["GetFrame"] = c.GetFrame()
	_, calls["GetExposureTime"] = c.GetExposureTime()
	calls["SetExposureTime"] = c.SetExposureTime(time.Millisecond)
	calls["Flush"] = c.Flush()
	for name, err := range calls {
		if err != errClosed {
			t.Errorf("%s on a closed camera returned %v, expected errClosed", name, err)
		}
	}
	if _, ok := p.devs["2200"].floats["ExposureTime"]; ok {
		t.Error("closed camera wrote the exposure node")
	}
}

func TestHeaderMetadataCarriesModel(t *testing.T) {
	install(t, "2200")
	c, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got := map[string]interface{}{}
	for _, card := range c.CollectHeaderMetadata() {
		got[card.Name] = card.Value
	}
	if got["SERIAL"] != "2200" || got["INSTRUME"] != "Basler acA1300-200um" {
		t.Errorf("header cards %v", got)
	}
}

func TestAvailableAfterRegister(t *testing.T) {
	install(t)
	if !Available() {
		t.Error("Available is false with a registered binding")
	}
}
