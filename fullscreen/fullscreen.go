/*Package fullscreen puts a screen.Buffer on a desktop monitor.

Monitors enumerates the attached displays, and Window is a borderless window
that covers one of them.  Window is backed by ebiten, which owns the process's
single window and must run its loop on the main goroutine:

	win := fullscreen.NewWindow()
	bufr, err := screen.Open(fullscreen.Monitors{}, win, 1, screen.Options{})
	...
	go serveOrCompute(bufr)
	log.Fatal(win.Run())

Monitor geometry comes from the operating system in physical pixels.  On a
display with OS scaling enabled the window is sized in scaled units, so SLM
outputs should be left at 100% scaling.
*/
package fullscreen

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/kbinani/screenshot"

	"github.com/slmsuite/hardware/screen"
)

var (
	// ErrClosed is returned by Render once the window has been closed
	ErrClosed = errors.New("fullscreen: window closed")

	// ErrInUse is returned by Open when the window already covers a surface
	ErrInUse = errors.New("fullscreen: window already open, only one is allowed per process")
)

// Monitors enumerates attached displays.  It satisfies screen.Enumerator.
type Monitors struct{}

// Surfaces returns the active displays with their desktop position and
// resolution
func (Monitors) Surfaces() ([]screen.Surface, error) {
	n := screenshot.NumActiveDisplays()
	out := make([]screen.Surface, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		out = append(out, screen.Surface{
			Index:  i,
			Name:   fmt.Sprintf("display %d", i),
			X:      b.Min.X,
			Y:      b.Min.Y,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
	}
	return out, nil
}

// Window is a borderless window covering one surface.  It satisfies
// screen.Renderer and ebiten.Game.
type Window struct {
	// Title is the window title, mostly visible in task switchers
	Title string

	// Fullscreen switches to exclusive fullscreen on the monitor instead of
	// a borderless window sized to it
	Fullscreen bool

	// CloseOnEscape closes the window when Esc is pressed
	CloseOnEscape bool

	mu      sync.Mutex
	surf    screen.Surface
	opened  bool
	pending *image.Gray
	gen     uint64 // bumped each time pending is replaced

	// owned by the ebiten loop
	shown *image.Gray
	rgba  []byte
	tex   *ebiten.Image

	// drawn carries the generation of the most recently drawn frame
	drawn chan uint64
	quit  chan struct{}
	once  sync.Once
}

// NewWindow returns a window that has not claimed a surface yet
func NewWindow() *Window {
	return &Window{
		Title: "SLM",
		drawn: make(chan uint64, 1),
		quit:  make(chan struct{}),
	}
}

// Open configures the window to cover s.  It may be called before Run.
func (w *Window) Open(s screen.Surface) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opened {
		return ErrInUse
	}
	w.opened = true
	w.surf = s

	ebiten.SetWindowTitle(w.Title)
	ebiten.SetWindowDecorated(false)
	ebiten.SetWindowFloating(true)
	ebiten.SetWindowPosition(s.X, s.Y)
	ebiten.SetWindowSize(s.Width, s.Height)
	ebiten.SetFullscreen(w.Fullscreen)
	ebiten.SetCursorMode(ebiten.CursorModeHidden)
	// an SLM window usually never has focus and must keep drawing anyway
	ebiten.SetRunnableOnUnfocused(true)
	return nil
}

// Render hands img to the window and waits until a frame containing it has
// been drawn
func (w *Window) Render(img *image.Gray) error {
	select {
	case <-w.quit:
		return ErrClosed
	default:
	}
	w.mu.Lock()
	w.gen++
	want := w.gen
	w.pending = img
	w.mu.Unlock()
	for {
		select {
		case got := <-w.drawn:
			// frames drawn from an earlier pending image do not count
			if got >= want {
				return nil
			}
		case <-w.quit:
			return ErrClosed
		}
	}
}

// Close ends the ebiten loop and fails pending and future Renders
func (w *Window) Close() error {
	w.once.Do(func() { close(w.quit) })
	return nil
}

// Closed is closed when the window is
func (w *Window) Closed() <-chan struct{} {
	return w.quit
}

// Run runs the window until Close is called or the user closes it.
// It must be called from the main goroutine.
func (w *Window) Run() error {
	select {
	case <-w.quit:
		return nil
	default:
	}
	err := ebiten.RunGame(w)
	w.Close()
	return err
}

// Update satisfies ebiten.Game
func (w *Window) Update() error {
	select {
	case <-w.quit:
		return ebiten.Termination
	default:
	}
	if w.CloseOnEscape && inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		w.Close()
		return ebiten.Termination
	}
	return nil
}

// Draw satisfies ebiten.Game
func (w *Window) Draw(dst *ebiten.Image) {
	img, gen := w.take()
	if img == nil {
		return
	}
	if img != w.shown {
		w.upload(img)
		w.shown = img
	}
	dst.DrawImage(w.tex, nil)
	w.signal(gen)
}

// take returns the pending image and its generation
func (w *Window) take() (*image.Gray, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending, w.gen
}

// signal reports that generation gen is on screen, replacing any
// unconsumed older report.  Only the ebiten loop calls it.
func (w *Window) signal(gen uint64) {
	for {
		select {
		case w.drawn <- gen:
			return
		default:
		}
		select {
		case <-w.drawn:
		default:
		}
	}
}

// Layout satisfies ebiten.Game.  The logical screen is always the surface
// resolution, one image pixel per SLM pixel.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.surf.Width == 0 || w.surf.Height == 0 {
		return outsideWidth, outsideHeight
	}
	return w.surf.Width, w.surf.Height
}

// upload copies a gray image into the RGBA texture
func (w *Window) upload(img *image.Gray) {
	b := img.Bounds()
	if w.tex == nil || w.tex.Bounds().Dx() != b.Dx() || w.tex.Bounds().Dy() != b.Dy() {
		w.tex = ebiten.NewImage(b.Dx(), b.Dy())
		w.rgba = make([]byte, 4*b.Dx()*b.Dy())
	}
	grayToRGBA(w.rgba, img)
	w.tex.WritePixels(w.rgba)
}

// grayToRGBA expands img into dst as opaque RGBA, dst must hold 4*w*h bytes
func grayToRGBA(dst []byte, img *image.Gray) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			v := row[x]
			dst[i] = v
			dst[i+1] = v
			dst[i+2] = v
			dst[i+3] = 0xff
			i += 4
		}
	}
}
