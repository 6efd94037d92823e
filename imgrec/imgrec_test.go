package imgrec

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slmsuite/hardware/generichttp"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
}

func TestWriteAndIncr(t *testing.T) {
	root := t.TempDir()
	r := &Recorder{Root: root, Prefix: "cam", now: fixedClock}
	r.Write([]byte("ab"))
	r.Write([]byte("cd"))
	r.Incr()
	r.Write([]byte("ef"))

	fldr := filepath.Join(root, "2024-03-09")
	b, err := os.ReadFile(filepath.Join(fldr, "cam000000.fits"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "abcd" {
		t.Errorf("first file holds %q, expected abcd", b)
	}
	b, err = os.ReadFile(filepath.Join(fldr, "cam000001.fits"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "ef" {
		t.Errorf("second file holds %q, expected ef", b)
	}
}

func TestCounterRecoveredFromDisk(t *testing.T) {
	root := t.TempDir()
	fldr := filepath.Join(root, "2024-03-09")
	os.MkdirAll(fldr, 0777)
	for _, fn := range []string{"cam000004.fits", "cam000002.fits", "other000009.fits", "cam000007.png"} {
		os.WriteFile(filepath.Join(fldr, fn), nil, 0666)
	}
	r := &Recorder{Root: root, Prefix: "cam", now: fixedClock}
	p, err := r.Path()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "cam000005.fits" {
		t.Errorf("next file %s, expected cam000005.fits", filepath.Base(p))
	}
}

func TestExtension(t *testing.T) {
	r := &Recorder{Root: t.TempDir(), Prefix: "x", Ext: "png", now: fixedClock}
	p, err := r.Path()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(p, "x000000.png") {
		t.Errorf("path %s does not use the png extension", p)
	}
}

func TestActive(t *testing.T) {
	r := &Recorder{}
	r.SetEnabled(true)
	if r.Active() {
		t.Error("recorder without a root should not be active")
	}
	if err := r.SetRoot(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if !r.Active() {
		t.Error("enabled recorder with a root should be active")
	}
}

func TestHTTPRoutes(t *testing.T) {
	r := &Recorder{}
	rt := generichttp.RouteTable{}
	NewHTTPWrapper(r).Inject(rt)
	if len(rt) != 6 {
		t.Fatalf("expected 6 routes, got %v", rt.Endpoints())
	}
	set := rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}]
	w := httptest.NewRecorder()
	set(w, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"run1_"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("set prefix gave %d", w.Code)
	}
	get := rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}]
	w = httptest.NewRecorder()
	get(w, httptest.NewRequest(http.MethodGet, "/autowrite/prefix", nil))
	if !strings.Contains(w.Body.String(), "run1_") {
		t.Errorf("get prefix returned %q", w.Body.String())
	}
}
