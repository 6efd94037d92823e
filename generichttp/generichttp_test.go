package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
)

func TestEndpointsSorted(t *testing.T) {
	noop := func(w http.ResponseWriter, r *http.Request) {}
	rt := RouteTable{
		{Method: http.MethodPost, Path: "/phase"}: noop,
		{Method: http.MethodGet, Path: "/phase"}:  noop,
		{Method: http.MethodGet, Path: "/image"}:  noop,
	}
	got := strings.Join(rt.Endpoints(), ",")
	exp := "GET /image,GET /phase,POST /phase"
	if got != exp {
		t.Errorf("got %s, expected %s", got, exp)
	}
}

func TestSubMuxSanitize(t *testing.T) {
	for _, in := range []string{"omc/slm", "/omc/slm", "/omc/slm/", "omc/slm/*"} {
		if got := SubMuxSanitize(in); got != "/omc/slm" {
			t.Errorf("SubMuxSanitize(%q) = %q, expected /omc/slm", in, got)
		}
	}
}

func TestGetFloatJSONAndText(t *testing.T) {
	h := GetFloat(func() (float64, error) { return 1.5, nil })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if body := strings.TrimSpace(rec.Body.String()); body != `{"f64":1.5}` {
		t.Errorf("json body %s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept", "text/plain")
	rec = httptest.NewRecorder()
	h(rec, req)
	if body := rec.Body.String(); body != "1.5" {
		t.Errorf("text body %q", body)
	}
}

func TestSetIntBadBody(t *testing.T) {
	called := false
	h := SetInt(func(int) error { called = true; return nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, expected 400", rec.Code)
	}
	if called {
		t.Error("setter called with a bad body")
	}
}

func TestSetterErrorIs500(t *testing.T) {
	h := SetBool(func(bool) error { return errors.New("device on fire") })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"bool":true}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d, expected 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "device on fire") {
		t.Errorf("body %q does not carry the error", rec.Body.String())
	}
}

func TestBindRoutesByMethod(t *testing.T) {
	var got string
	rt := RouteTable{
		{Method: http.MethodPost, Path: "/name"}: SetString(func(s string) error { got = s; return nil }),
		{Method: http.MethodGet, Path: "/name"}:  GetString(func() (string, error) { return got, nil }),
	}
	r := chi.NewRouter()
	rt.Bind(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/name", "application/json", strings.NewReader(`{"str":"exulus"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "exulus" {
		t.Errorf("POST did not reach the setter, got %q", got)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/name", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT status %d, expected 405", resp.StatusCode)
	}
}
