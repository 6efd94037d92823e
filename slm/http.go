package slm

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decode uploads
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/slmsuite/hardware/generichttp"
	"github.com/slmsuite/hardware/screen"
)

// Device is what the HTTP wrapper controls.  *Screen and types embedding it
// satisfy it.
type Device interface {
	SLM

	Zero() error
	Phase() []float64
	Image() *image.Gray
	Stats() screen.Stats
}

// HTTPWrapper wraps an SLM in an HTTP control interface
type HTTPWrapper struct {
	Device

	generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the SLM routes populated
func NewHTTPWrapper(d Device) HTTPWrapper {
	w := HTTPWrapper{Device: d}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/phase"}:      w.GetPhase,
		{Method: http.MethodPost, Path: "/phase"}:     w.SetPhase,
		{Method: http.MethodGet, Path: "/image"}:      w.GetImage,
		{Method: http.MethodPost, Path: "/image"}:     w.SetImage,
		{Method: http.MethodPost, Path: "/zero"}:      generichttp.Call(d.Zero),
		{Method: http.MethodGet, Path: "/shape"}:      w.GetShape,
		{Method: http.MethodGet, Path: "/params"}:     w.GetParams,
		{Method: http.MethodGet, Path: "/bitdepth"}:   generichttp.GetInt(func() (int, error) { return d.Params().BitDepth, nil }),
		{Method: http.MethodGet, Path: "/wavelength"}: generichttp.GetFloat(func() (float64, error) { return d.Params().WavelengthUM, nil }),
		{Method: http.MethodGet, Path: "/pitch"}:      w.GetPitch,
		{Method: http.MethodGet, Path: "/stats"}:      w.GetStats,
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// jsonarray is used to decode array commands over JSON.
// this is very inefficient encoding and not suitable for high speed operation,
// but offers simplicity when speed is not paramount
type jsonarray struct {
	Value []float64 `json:"value"`
}

const octetStream = "application/octet-stream"

// SetPhase writes a phase pattern to the SLM.  It takes JSON {"value": [...]}
// for simplicity, or a buffer of little endian doubles with Content-Type
// application/octet-stream for speed.
func (h HTTPWrapper) SetPhase(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var (
		data []float64
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), octetStream) {
		data, err = decodeDoubles(r.Body)
	} else {
		ja := jsonarray{}
		err = json.NewDecoder(r.Body).Decode(&ja)
		data = ja.Value
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p := h.Params()
	if len(data) != p.Width*p.Height {
		http.Error(w, fmt.Sprintf("phase has %d elements, SLM is %dx%d", len(data), p.Width, p.Height), http.StatusBadRequest)
		return
	}
	writeError(w, h.Write(data))
}

// writeError replies 200 for a nil error, 400 when the pattern does not fit
// the display and 500 otherwise
func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	var se *screen.ShapeError
	if errors.As(err, &se) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// GetPhase returns the last phase written, as JSON or raw doubles if the
// request accepts application/octet-stream.  The value is null after a zero or
// an image write.
func (h HTTPWrapper) GetPhase(w http.ResponseWriter, r *http.Request) {
	phase := h.Phase()
	if strings.Contains(r.Header.Get("Accept"), octetStream) {
		w.Header().Set("Content-Type", octetStream)
		w.WriteHeader(http.StatusOK)
		w.Write(encodeDoubles(phase))
		return
	}
	generichttp.JSON(w, jsonarray{Value: phase})
}

// SetImage displays an uploaded PNG or JPEG
func (h HTTPWrapper) SetImage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	img, _, err := image.Decode(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeError(w, h.WriteImage(img))
}

// GetImage returns the displayed gray levels as a PNG
func (h HTTPWrapper) GetImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	png.Encode(w, h.Image())
}

// GetShape returns {"width": w, "height": h}
func (h HTTPWrapper) GetShape(w http.ResponseWriter, r *http.Request) {
	p := h.Params()
	generichttp.JSON(w, struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}{p.Width, p.Height})
}

// GetPitch returns {"x": um, "y": um}
func (h HTTPWrapper) GetPitch(w http.ResponseWriter, r *http.Request) {
	p := h.Params()
	generichttp.JSON(w, struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}{p.PitchUM[0], p.PitchUM[1]})
}

// GetParams returns all of the SLM's parameters
func (h HTTPWrapper) GetParams(w http.ResponseWriter, r *http.Request) {
	generichttp.JSON(w, h.Params())
}

// GetStats returns the presentation counters
func (h HTTPWrapper) GetStats(w http.ResponseWriter, r *http.Request) {
	generichttp.JSON(w, h.Stats())
}

func decodeDoubles(r io.Reader) ([]float64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("body of %d bytes is not a whole number of doubles", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

func encodeDoubles(f []float64) []byte {
	out := make([]byte, 8*len(f))
	for i, v := range f {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}
