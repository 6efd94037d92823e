package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slmsuite/hardware/alliedvision"
	"github.com/slmsuite/hardware/basler"
	"github.com/slmsuite/hardware/camera"
	"github.com/slmsuite/hardware/comm"
	"github.com/slmsuite/hardware/fullscreen"
	"github.com/slmsuite/hardware/generichttp"
	"github.com/slmsuite/hardware/generichttp/ascii"
	gcam "github.com/slmsuite/hardware/generichttp/camera"
	"github.com/slmsuite/hardware/imgrec"
	"github.com/slmsuite/hardware/screen"
	"github.com/slmsuite/hardware/server/middleware/locker"
	"github.com/slmsuite/hardware/slm"
	"github.com/slmsuite/hardware/thorlabs"
)

// mock cameras are this size
const (
	mockCameraWidth    = 640
	mockCameraHeight   = 480
	mockCameraBitDepth = 12
)

// ObjSetup describes one device and where its routes are served.
// Fields a device type does not use need not be populated in the config file.
type ObjSetup struct {
	// Addr holds the address of the device.  For an EXULUS it is the
	// configuration COM port (/dev/ttyUSB0, COM4) or a host:port serial
	// bridge, and may be empty.  For cameras it is the serial number or
	// index; empty takes the first camera found.
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the full path the routes from this device will be served on
	// ex. Endpoint="/omc/slm" will produce routes of /omc/slm/phase, etc.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Serial determines if Addr is a serial port (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// Type is the "type" of the object, e.g. exulus
	Type string `yaml:"Type" koanf:"Type"`

	// Output is monitor (default) or framebuffer, for SLMs driven as a display
	Output string `yaml:"Output" koanf:"Output"`

	// Screen is the index of the monitor or framebuffer the SLM is plugged into
	Screen int `yaml:"Screen" koanf:"Screen"`

	// Resize is reject (default), stretch or fit
	Resize string `yaml:"Resize" koanf:"Resize"`

	// Resampling is the kernel used by stretch and fit, nearest by default
	Resampling string `yaml:"Resampling" koanf:"Resampling"`

	// MaxFPS caps the redraw rate, zero is as fast as the output allows
	MaxFPS float64 `yaml:"MaxFPS" koanf:"MaxFPS"`

	// Settle makes SLM writes wait for the liquid crystal to settle
	Settle bool `yaml:"Settle" koanf:"Settle"`

	// SLM describes the SLM.  Nonzero fields override the defaults of the type.
	SLM slm.Params `yaml:"SLM" koanf:"SLM"`

	// AutowriteRoot is where camera FITS frames are recorded; empty disables
	// recording until it is set over HTTP
	AutowriteRoot string `yaml:"AutowriteRoot" koanf:"AutowriteRoot"`

	// AutowritePrefix is the filename prefix of recorded frames
	AutowritePrefix string `yaml:"AutowritePrefix" koanf:"AutowritePrefix"`
}

// Config is a struct that holds the initialization parameters for various
// HTTP adapted devices.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every device with a simulation, displays draw nowhere
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// FramebufferDir is where framebuffer outputs are looked for, /dev if empty
	FramebufferDir string `yaml:"FramebufferDir" koanf:"FramebufferDir"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes" koanf:"Nodes"`
}

// Server is the hardware and the mux that serves it
type Server struct {
	// Mux is the root router
	Mux chi.Router

	// Window is the fullscreen window, nil if no node uses a monitor.  It
	// must be Run on the main goroutine.
	Window *fullscreen.Window

	// Registry holds the metrics served on /metrics
	Registry *prometheus.Registry

	closers []io.Closer
}

// Build opens every node in c and constructs a chi mux with populated
// handlers.  Each node gets a lock.  The mux serves two special routes,
// /endpoints, which returns a map of node to routes as JSON, and /metrics.
// If any node fails the nodes already opened are closed.
func Build(c Config) (*Server, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	s := &Server{Mux: root, Registry: prometheus.NewRegistry()}
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		// prepare the URL, "omc/slm" => "/omc/slm"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)
		if _, dup := supergraph[hndlS]; dup || hndlS == "/endpoints" || hndlS == "/metrics" {
			s.Close()
			return nil, fmt.Errorf("endpoint %s is used twice", hndlS)
		}
		httper, err := s.buildNode(c, node, hndlS)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("node %s (%s): %w", hndlS, node.Type, err)
		}

		// add a lock interface for this node
		var lock locker.ManipulableLock = locker.New()
		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// bind to the mux
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.JSON(w, supergraph)
	})
	root.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	return s, nil
}

func (s *Server) buildNode(c Config, node ObjSetup, endpoint string) (generichttp.HTTPer, error) {
	typ := strings.ToLower(node.Type)
	switch typ {
	case "exulus", "thorlabs-exulus":
		p := overlay(thorlabs.EXULUSParams(), node.SLM)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		buf, err := s.openBuffer(c, node, endpoint, p)
		if err != nil {
			return nil, err
		}
		var link *comm.RemoteDevice
		if node.Addr != "" && !c.Mock {
			if node.Serial {
				link = thorlabs.SerialLink(node.Addr)
			} else {
				link = comm.NewRemoteDevice(node.Addr, false, nil)
			}
		}
		ex, err := thorlabs.NewEXULUS(link, buf, p)
		if err != nil {
			buf.Close()
			return nil, err
		}
		ex.Settle = node.Settle
		s.closers = append(s.closers, ex)
		s.instrument(endpoint, ex)
		w := slm.NewHTTPWrapper(ex)
		ascii.InjectRawComm(w.RT(), ex)
		return w, nil

	case "screen-slm", "fullscreen-slm", "framebuffer-slm":
		if typ == "framebuffer-slm" {
			node.Output = "framebuffer"
		}
		p := node.SLM
		if err := p.Validate(); err != nil {
			return nil, err
		}
		buf, err := s.openBuffer(c, node, endpoint, p)
		if err != nil {
			return nil, err
		}
		sc, err := slm.NewScreen(p, buf)
		if err != nil {
			buf.Close()
			return nil, err
		}
		sc.Settle = node.Settle
		if err = sc.Zero(); err != nil {
			sc.Close()
			return nil, err
		}
		s.closers = append(s.closers, sc)
		s.instrument(endpoint, sc)
		return slm.NewHTTPWrapper(sc), nil

	case "alliedvision", "vimba", "basler", "pylon", "mock-camera":
		cam, err := openCamera(c.Mock, typ, node.Addr)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, cam)
		rec := &imgrec.Recorder{Root: node.AutowriteRoot, Prefix: node.AutowritePrefix, Enabled: node.AutowriteRoot != ""}
		return gcam.NewHTTPCamera(cam, rec), nil

	default:
		return nil, fmt.Errorf("type %q not understood", node.Type)
	}
}

func openCamera(mock bool, typ, addr string) (camera.Camera, error) {
	if mock || typ == "mock-camera" {
		m := camera.NewMock(mockCameraWidth, mockCameraHeight, mockCameraBitDepth)
		if addr != "" {
			m.Serial = addr
		}
		return m, nil
	}
	switch typ {
	case "alliedvision", "vimba":
		return alliedvision.Open(addr)
	default:
		return basler.Open(addr)
	}
}

// openBuffer claims the node's output for an SLM described by p
func (s *Server) openBuffer(c Config, node ObjSetup, endpoint string, p slm.Params) (*screen.Buffer, error) {
	policy, err := screen.ParseResizePolicy(node.Resize)
	if err != nil {
		return nil, err
	}
	opts := screen.Options{Resize: policy, Resampling: node.Resampling, MaxFPS: node.MaxFPS}

	var (
		enum screen.Enumerator
		rend screen.Renderer
		win  *fullscreen.Window
	)
	switch out := strings.ToLower(node.Output); {
	case c.Mock:
		enum = screen.Static{{Name: "mock " + endpoint, Width: p.Width, Height: p.Height}}
		rend = &screen.Discard{}
		node.Screen = 0
	case out == "" || out == "monitor":
		if s.Window != nil {
			return nil, fullscreen.ErrInUse
		}
		win = fullscreen.NewWindow()
		win.Title = "slmsrv " + endpoint
		enum, rend = fullscreen.Monitors{}, win
	case out == "framebuffer":
		enum, rend, err = framebufferOutput(c.FramebufferDir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("output %q is not monitor or framebuffer", node.Output)
	}

	buf, err := screen.Open(enum, rend, node.Screen, opts)
	if err != nil {
		return nil, err
	}
	if win != nil {
		s.Window = win
	}
	surf := buf.Surface()
	if (surf.Width != p.Width || surf.Height != p.Height) && policy == screen.Reject {
		log.Printf("%s: surface is %dx%d but the SLM is %dx%d, writes will be rejected unless Resize is set",
			endpoint, surf.Width, surf.Height, p.Width, p.Height)
	}
	return buf, nil
}

// instrument registers counters over the SLM's presentation statistics
func (s *Server) instrument(endpoint string, d slm.Device) {
	labels := prometheus.Labels{"endpoint": endpoint}
	counter := func(name, help string, f func(screen.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Subsystem:   "slm",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(f(d.Stats())) })
	}
	s.Registry.MustRegister(
		counter("frames_submitted_total", "Images accepted for display.", func(st screen.Stats) uint64 { return st.Submitted }),
		counter("frames_rendered_total", "Redraws completed by the presentation loop.", func(st screen.Stats) uint64 { return st.Rendered }),
		counter("frames_dropped_total", "Images superseded before they were drawn.", func(st screen.Stats) uint64 { return st.Dropped }),
	)
}

// Close releases every device, last opened first, and the camera SDKs
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := alliedvision.CloseSDK(); err != nil {
		errs = append(errs, err)
	}
	if err := basler.CloseSDK(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// overlay returns base with the nonzero fields of over
func overlay(base, over slm.Params) slm.Params {
	if over.Width != 0 {
		base.Width = over.Width
	}
	if over.Height != 0 {
		base.Height = over.Height
	}
	if over.BitDepth != 0 {
		base.BitDepth = over.BitDepth
	}
	if over.WavelengthUM != 0 {
		base.WavelengthUM = over.WavelengthUM
	}
	if over.DesignWavelengthUM != 0 {
		base.DesignWavelengthUM = over.DesignWavelengthUM
	}
	if over.PitchUM != [2]float64{} {
		base.PitchUM = over.PitchUM
	}
	if over.SettleTime != 0 {
		base.SettleTime = over.SettleTime
	}
	return base
}

// printJSON is used by the listing commands
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Println(err)
	}
}
