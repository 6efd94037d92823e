package camera

import (
	"errors"
	"testing"
	"time"
)

func TestParseBitDepth(t *testing.T) {
	table := []struct {
		in  string
		exp int
		ok  bool
	}{
		{"Mono12", 12, true},
		{"Mono8", 8, true},
		{"Bpp10", 10, true},
		{"Bits14", 14, true},
		{"Mono", 0, false},
		{"Bpp32", 0, false},
	}
	for _, tt := range table {
		got, err := ParseBitDepth(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseBitDepth(%q) error = %v, expected ok=%v", tt.in, err, tt.ok)
			continue
		}
		if got != tt.exp {
			t.Errorf("ParseBitDepth(%q) = %d, expected %d", tt.in, got, tt.exp)
		}
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	d := 2500 * time.Microsecond
	if us := Micros(d); us != 2500 {
		t.Errorf("Micros(%v) = %f", d, us)
	}
	if got := FromMicros(2500); got != d {
		t.Errorf("FromMicros(2500) = %v", got)
	}
}

type fakeSDK struct {
	closes int
}

func (f *fakeSDK) Close() error {
	f.closes++
	return nil
}

func TestSessionUnbound(t *testing.T) {
	s := NewSession("vimba")
	if s.Bound() {
		t.Error("new session reports a binding")
	}
	_, err := s.Acquire()
	if !errors.Is(err, ErrNoBinding) {
		t.Errorf("Acquire without a binding returned %v, expected ErrNoBinding", err)
	}
}

func TestSessionRefCounting(t *testing.T) {
	s := NewSession("vimba")
	sdk := &fakeSDK{}
	opens := 0
	s.Register(func() (SDK, error) { opens++; return sdk, nil })
	if !s.Bound() {
		t.Error("session not bound after Register")
	}

	a, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if a != b || opens != 1 {
		t.Fatalf("two acquires opened the SDK %d times", opens)
	}
	if err := s.Release(); err != nil {
		t.Fatal(err)
	}
	if sdk.closes != 0 {
		t.Error("SDK closed with a reference outstanding")
	}
	if err := s.Release(); err != nil {
		t.Fatal(err)
	}
	if sdk.closes != 1 {
		t.Errorf("SDK closed %d times after the last release, expected 1", sdk.closes)
	}
	// extra releases do nothing
	if err := s.Release(); err != nil || sdk.closes != 1 {
		t.Errorf("extra release: err=%v closes=%d", err, sdk.closes)
	}

	// the next acquire reopens
	if _, err := s.Acquire(); err != nil {
		t.Fatal(err)
	}
	if opens != 2 {
		t.Errorf("reacquire opened %d times total, expected 2", opens)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if s.Refs() != 0 || sdk.closes != 2 {
		t.Errorf("after shutdown refs=%d closes=%d", s.Refs(), sdk.closes)
	}
}

func TestSessionOpenFailure(t *testing.T) {
	s := NewSession("pylon")
	boom := errors.New("no transport layer")
	s.Register(func() (SDK, error) { return nil, boom })
	_, err := s.Acquire()
	if !errors.Is(err, boom) {
		t.Errorf("got %v, expected the opener's error", err)
	}
	if s.Refs() != 0 {
		t.Errorf("failed acquire left %d refs", s.Refs())
	}
}

func TestMockExposureScales(t *testing.T) {
	m := NewMock(64, 32, 12)
	a, err := m.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetExposureTime(2 * mockRefExposure); err != nil {
		t.Fatal(err)
	}
	b, err := m.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	va, vb := a.Gray16At(5, 3).Y, b.Gray16At(5, 3).Y
	if vb != 2*va {
		t.Errorf("doubling exposure took pixel from %d to %d", va, vb)
	}

	if err := m.SetExposureTime(time.Hour); err != nil {
		t.Fatal(err)
	}
	c, _ := m.GetFrame()
	if v := c.Gray16At(40, 20).Y; v != 4095 {
		t.Errorf("long exposure pixel %d, expected saturation at 4095", v)
	}
}

func TestMockWOI(t *testing.T) {
	m := NewMock(64, 32, 8)
	if err := m.SetWOI(WOI{Left: 60, Top: 0, Width: 10, Height: 10}); err == nil {
		t.Error("window hanging off the sensor accepted")
	}
	w := WOI{Left: 8, Top: 4, Width: 16, Height: 8}
	if err := m.SetWOI(w); err != nil {
		t.Fatal(err)
	}
	img, err := m.GetFrame()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("frame is %v, expected 16x8", b)
	}
	full := NewMock(64, 32, 8)
	ref, _ := full.GetFrame()
	if img.Gray16At(0, 0) != ref.Gray16At(8, 4) {
		t.Error("windowed frame is not the matching crop of the full frame")
	}
}

func TestMockClosed(t *testing.T) {
	m := NewMock(4, 4, 8)
	m.Close()
	if _, err := m.GetFrame(); err == nil {
		t.Error("closed mock returned a frame")
	}
}

func TestMockHeaderMetadata(t *testing.T) {
	m := NewMock(4, 4, 8)
	m.Serial = "SN-42"
	got := map[string]interface{}{}
	for _, c := range m.CollectHeaderMetadata() {
		got[c.Name] = c.Value
	}
	if got["SERIAL"] != "SN-42" || got["INSTRUME"] != "mock" {
		t.Errorf("header cards %v", got)
	}
}
