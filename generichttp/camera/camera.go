// Package camera provides a generic HTTP interface to a camera
package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	cam "github.com/slmsuite/hardware/camera"
	"github.com/slmsuite/hardware/generichttp"
	"github.com/slmsuite/hardware/imgrec"
	"github.com/slmsuite/hardware/util"
)

const (
	// DefaultStreamFPS is the stream rate when the fps query parameter is absent
	DefaultStreamFPS = 10

	// MaxBurst is the largest number of frames a single burst may request
	MaxBurst = 1000
)

// MetadataMaker can produce an array of FITS cards
type MetadataMaker interface {
	// CollectHeaderMetadata produces an array of FITS cards
	CollectHeaderMetadata() []fitsio.Card
}

// HTTPCamera wraps a camera in an HTTP interface
type HTTPCamera struct {
	Camera cam.Camera

	RouteTable generichttp.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper.  If rec is not nil, FITS frames
// are also written to it while it is enabled, and its /autowrite routes are
// added.
func NewHTTPCamera(c cam.Camera, rec *imgrec.Recorder) HTTPCamera {
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/exposure-time"}:  GetExposureTime(c),
		{Method: http.MethodPost, Path: "/exposure-time"}: SetExposureTime(c),
		{Method: http.MethodGet, Path: "/woi"}:            GetWOI(c),
		{Method: http.MethodPost, Path: "/woi"}:           SetWOI(c),
		{Method: http.MethodGet, Path: "/bitdepth"}: generichttp.GetInt(func() (int, error) {
			return c.BitDepth(), nil
		}),
		{Method: http.MethodPost, Path: "/flush"}: generichttp.Call(c.Flush),
		{Method: http.MethodGet, Path: "/image"}:  GetFrame(c, rec),
		{Method: http.MethodPost, Path: "/burst"}: Burst(c),
		{Method: http.MethodGet, Path: "/stream"}: Stream(c),
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(rt)
	}
	return HTTPCamera{Camera: c, RouteTable: rt}
}

// RT satisfies generichttp.HTTPer
func (h HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

// parseExposure reads a duration such as 25ms or 10us.  A bare number is
// taken as seconds.
func parseExposure(s string) (time.Duration, error) {
	if util.AllElementsNumbers(s) {
		s = s + "s"
	}
	return time.ParseDuration(s)
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func SetExposureTime(c cam.Camera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		texp := r.URL.Query().Get("exposureTime")
		var d time.Duration
		var err error
		if texp == "" {
			f := generichttp.FloatT{}
			err = json.NewDecoder(r.Body).Decode(&f)
			defer r.Body.Close()
			d = util.SecsToDuration(f.F64)
		} else {
			d, err = parseExposure(texp)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.SetExposureTime(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetExposureTime gets the exposure time in seconds on a GET request
func GetExposureTime(c cam.Camera) http.HandlerFunc {
	return generichttp.GetFloat(func() (float64, error) {
		d, err := c.GetExposureTime()
		return d.Seconds(), err
	})
}

// GetWOI returns the window of interest as JSON
func GetWOI(c cam.Camera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		woi, err := c.GetWOI()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		generichttp.JSON(w, woi)
	}
}

// SetWOI sets the window of interest from a JSON body.  Cameras that cannot
// crop answer 501.
func SetWOI(c cam.Camera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		woi := cam.WOI{}
		err := json.NewDecoder(r.Body).Decode(&woi)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.SetWOI(woi)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, cam.ErrNotSupported) {
				code = http.StatusNotImplemented
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// To8Bit scales a frame of the given bit depth to 8 bits for display
func To8Bit(img *image.Gray16, bitdepth int) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			u := uint32(row[2*x])<<8 | uint32(row[2*x+1])
			if bitdepth > 8 {
				u >>= uint(bitdepth - 8)
			} else if bitdepth > 0 {
				u <<= uint(8 - bitdepth)
			}
			if u > 255 {
				u = 255
			}
			out.Pix[y*out.Stride+x] = uint8(u)
		}
	}
	return out
}

// headerCards are the FITS cards every frame gets, plus the camera's own if
// it is a MetadataMaker
func headerCards(c cam.Camera) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "DATE", Value: time.Now().UTC().Format("2006-01-02T15:04:05"), Comment: "UTC time of the exposure"},
		{Name: "BITDEPTH", Value: c.BitDepth(), Comment: "significant bits per pixel"},
	}
	if d, err := c.GetExposureTime(); err == nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: d.Seconds(), Comment: "exposure time, seconds"})
	}
	if woi, err := c.GetWOI(); err == nil {
		cards = append(cards,
			fitsio.Card{Name: "WOILEFT", Value: woi.Left, Comment: "window of interest left edge, 0-based"},
			fitsio.Card{Name: "WOITOP", Value: woi.Top, Comment: "window of interest top edge, 0-based"})
	}
	if carder, ok := c.(MetadataMaker); ok {
		cards = append(cards, carder.CollectHeaderMetadata()...)
	}
	return cards
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in the fmt query parameter, one of jpg
// (default), png or fits.  jpg and png are scaled to 8 bits, fits carries the
// raw counts.
//
// the exposure time may be specified as a query parameter in any time-looking
// format, such as "25ms" or "10us".  If no unit is appended, seconds are
// assumed.  If no exposure time is provided, the existing value is used.
func GetFrame(c cam.Camera, rec *imgrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := q.Get("fmt")
		if format == "" {
			format = "jpg"
		}
		if format != "jpg" && format != "png" && format != "fits" {
			http.Error(w, fmt.Sprintf("format %q not one of jpg, png, fits", format), http.StatusBadRequest)
			return
		}
		if texp := q.Get("exposureTime"); texp != "" {
			T, err := parseExposure(texp)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			err = c.SetExposureTime(T)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		img, err := c.GetFrame()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		switch format {
		case "jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, To8Bit(img, c.BitDepth()), nil)
		case "png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, To8Bit(img, c.BitDepth()))
		case "fits":
			var w2 io.Writer = w
			if rec != nil && rec.Active() {
				w2 = io.MultiWriter(w, rec)
				defer rec.Incr()
			}
			hdr := w.Header()
			hdr.Set("Content-Type", "image/fits")
			hdr.Set("Content-Disposition", "attachment; filename=image.fits")
			err = WriteFits(w2, headerCards(c), []*image.Gray16{img})
			if err != nil {
				log.Printf("error writing fits frame: %v", err)
			}
		}
	}
}

// Burst takes a number of frames, {"frames": N}, and returns them as a fits
// image cube
func Burst(c cam.Camera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := struct {
			Frames int `json:"frames"`
		}{}
		err := json.NewDecoder(r.Body).Decode(&t)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if t.Frames < 1 || t.Frames > MaxBurst {
			http.Error(w, fmt.Sprintf("frames must be between 1 and %d", MaxBurst), http.StatusBadRequest)
			return
		}
		frames := make([]*image.Gray16, 0, t.Frames)
		for i := 0; i < t.Frames; i++ {
			img, err := c.GetFrame()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			frames = append(frames, img)
		}
		cards := append(headerCards(c), fitsio.Card{Name: "NFRAMES", Value: t.Frames, Comment: "frames in the cube"})
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=burst.fits")
		err = WriteFits(w, cards, frames)
		if err != nil {
			log.Printf("error writing fits burst: %v", err)
		}
	}
}

var upgrader = websocket.Upgrader{
	// the server is meant for a lab network and is reached from notebooks and
	// dashboards on other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream upgrades the connection to a websocket and sends frames as binary
// JPEG messages at up to fps frames per second (query parameter, default
// DefaultStreamFPS) until the client goes away or a frame fails
func Stream(c cam.Camera) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fps := float64(DefaultStreamFPS)
		if s := r.URL.Query().Get("fps"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f <= 0 {
				http.Error(w, fmt.Sprintf("fps %q must be a positive number", s), http.StatusBadRequest)
				return
			}
			fps = f
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		// the client never sends anything we need, but reading is how close
		// frames are noticed
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		lim := rate.NewLimiter(rate.Limit(fps), 1)
		for {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			img, err := c.GetFrame()
			if err != nil {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
				return
			}
			wr, err := conn.NextWriter(websocket.BinaryMessage)
			if err != nil {
				return
			}
			err = jpeg.Encode(wr, To8Bit(img, c.BitDepth()), nil)
			if err != nil {
				log.Printf("error encoding stream frame: %v", err)
			}
			if err := wr.Close(); err != nil {
				return
			}
		}
	}
}
