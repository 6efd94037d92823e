package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slmsuite/hardware/slm"
)

func mockConfig() Config {
	return Config{
		Addr: ":0",
		Mock: true,
		Nodes: []ObjSetup{
			{Type: "exulus", Endpoint: "omc/slm", Addr: "/dev/ttyUSB0", Serial: true},
			{Type: "screen-slm", Endpoint: "/bench/slm2/*", SLM: slm.Params{Width: 8, Height: 4, BitDepth: 8, WavelengthUM: 0.8}},
			{Type: "alliedvision", Endpoint: "omc/cam"},
		},
	}
}

func build(t *testing.T, c Config) *httptest.Server {
	t.Helper()
	s, err := Build(c)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Mux)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func body(t *testing.T, resp *http.Response, err error) string {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	return body(t, resp, err)
}

func TestEndpointsListsEveryNode(t *testing.T) {
	srv := build(t, mockConfig())
	graph := map[string][]string{}
	err := json.Unmarshal([]byte(get(t, srv.URL+"/endpoints")), &graph)
	if err != nil {
		t.Fatal(err)
	}
	for _, ep := range []string{"/omc/slm", "/bench/slm2", "/omc/cam"} {
		routes, ok := graph[ep]
		if !ok {
			t.Errorf("%s missing from /endpoints", ep)
			continue
		}
		if !strings.Contains(strings.Join(routes, ","), "POST /lock") {
			t.Errorf("%s has no lock route: %v", ep, routes)
		}
	}
	if !strings.Contains(strings.Join(graph["/omc/slm"], ","), "POST /raw") {
		t.Error("EXULUS node has no raw route")
	}
}

func TestEXULUSDefaults(t *testing.T) {
	srv := build(t, mockConfig())
	out := get(t, srv.URL+"/omc/slm/shape")
	if !strings.Contains(out, "1920") || !strings.Contains(out, "1200") {
		t.Errorf("EXULUS shape %s, expected 1920x1200", out)
	}
}

func TestPhaseWriteIsCounted(t *testing.T) {
	srv := build(t, mockConfig())
	phase := `{"value":[` + strings.TrimSuffix(strings.Repeat("1,", 32), ",") + `]}`
	resp, err := http.Post(srv.URL+"/bench/slm2/phase", "application/json", strings.NewReader(phase))
	body(t, resp, err)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST phase gave %d", resp.StatusCode)
	}
	metrics := get(t, srv.URL+"/metrics")
	// one zeroing write at startup and ours
	want := `slm_frames_submitted_total{endpoint="/bench/slm2"} 2`
	if !strings.Contains(metrics, want) {
		t.Errorf("metrics do not contain %q:\n%s", want, metrics)
	}
}

func TestLockIsPerNode(t *testing.T) {
	srv := build(t, mockConfig())
	resp, err := http.Post(srv.URL+"/bench/slm2/lock", "application/json", strings.NewReader(`{"bool":true}`))
	body(t, resp, err)
	resp, err = http.Post(srv.URL+"/bench/slm2/zero", "", nil)
	body(t, resp, err)
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("zero on a locked node gave %d", resp.StatusCode)
	}
	resp, err = http.Post(srv.URL+"/omc/slm/zero", "", nil)
	body(t, resp, err)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("zero on an unlocked node gave %d", resp.StatusCode)
	}
}

func TestMockCamera(t *testing.T) {
	srv := build(t, mockConfig())
	resp, err := http.Get(srv.URL + "/omc/cam/image?fmt=png&exposureTime=5ms")
	body(t, resp, err)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("camera image gave %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestBuildErrors(t *testing.T) {
	cases := map[string][]ObjSetup{
		"unknown type": {{Type: "dmd", Endpoint: "a"}},
		"duplicate":    {{Type: "mock-camera", Endpoint: "a"}, {Type: "mock-camera", Endpoint: "/a/"}},
		"reserved":     {{Type: "mock-camera", Endpoint: "metrics"}},
		"bad params":   {{Type: "screen-slm", Endpoint: "a"}},
		"bad resize":   {{Type: "exulus", Endpoint: "a", Resize: "squash"}},
	}
	for name, nodes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(Config{Mock: true, Nodes: nodes})
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestOverlay(t *testing.T) {
	base := slm.Params{Width: 1920, Height: 1200, BitDepth: 8, WavelengthUM: 0.633, SettleTime: 300 * time.Millisecond}
	out := overlay(base, slm.Params{WavelengthUM: 1.064})
	if out.WavelengthUM != 1.064 || out.Width != 1920 || out.SettleTime != 300*time.Millisecond {
		t.Errorf("overlay gave %+v", out)
	}
}
