//go:build linux

package framebuffer

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/slmsuite/hardware/screen"
)

const (
	fbiogetVScreenInfo = 0x4600
	fbiogetFScreenInfo = 0x4602
)

// fb_var_screeninfo and fb_fix_screeninfo are received into buffers larger
// than either struct and decoded by offset
type rawInfo [256]byte

func ioctl(f *os.File, req uintptr, buf *rawInfo) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// geometry is what we need from the two screeninfo structs
type geometry struct {
	width, height    int
	virtualHeight    int
	xoffset, yoffset int
	bpp              int
	lineLength       int
}

func query(f *os.File) (geometry, error) {
	var v, fx rawInfo
	if err := ioctl(f, fbiogetVScreenInfo, &v); err != nil {
		return geometry{}, fmt.Errorf("framebuffer: FBIOGET_VSCREENINFO: %w", err)
	}
	if err := ioctl(f, fbiogetFScreenInfo, &fx); err != nil {
		return geometry{}, fmt.Errorf("framebuffer: FBIOGET_FSCREENINFO: %w", err)
	}
	le := binary.LittleEndian
	g := geometry{
		width:         int(le.Uint32(v[0:])),
		height:        int(le.Uint32(v[4:])),
		virtualHeight: int(le.Uint32(v[12:])),
		xoffset:       int(le.Uint32(v[16:])),
		yoffset:       int(le.Uint32(v[20:])),
		bpp:           int(le.Uint32(v[24:])),
	}
	g.lineLength = int(le.Uint32(fx[lineLengthOffset(int(unsafe.Sizeof(uintptr(0)))):]))
	if g.virtualHeight < g.height+g.yoffset {
		g.virtualHeight = g.height + g.yoffset
	}
	return g, nil
}

// Devices enumerates /dev/fb* in numeric order.  It satisfies
// screen.Enumerator.  Devices that cannot be opened or queried are skipped.
type Devices struct {
	// Dir is where to look, /dev when empty
	Dir string
}

// Surfaces returns one surface per framebuffer.  Name is the device path.
func (d Devices) Surfaces() ([]screen.Surface, error) {
	dir := d.Dir
	if dir == "" {
		dir = "/dev"
	}
	paths, err := filepath.Glob(filepath.Join(dir, "fb*"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool { return fbNumber(paths[i]) < fbNumber(paths[j]) })
	var out []screen.Surface
	for _, p := range paths {
		if fbNumber(p) < 0 {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		g, err := query(f)
		f.Close()
		if err != nil {
			continue
		}
		out = append(out, screen.Surface{
			Index:  len(out),
			Name:   p,
			Width:  g.width,
			Height: g.height,
		})
	}
	return out, nil
}

func fbNumber(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "fb"))
	if err != nil {
		return -1
	}
	return n
}

// Device renders to a memory mapped framebuffer.  It satisfies
// screen.Renderer.  Writes do not wait for vertical blank, Render paces itself
// to Refresh instead.
type Device struct {
	// Refresh is the redraw period, 1/60 s when zero
	Refresh time.Duration

	mu   sync.Mutex
	f    *os.File
	mem  []byte
	view []byte
	geo  geometry

	tick *time.Ticker
	quit chan struct{}
}

// Open maps the framebuffer at s.Name
func (d *Device) Open(s screen.Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f != nil {
		return fmt.Errorf("framebuffer: %s already open", d.f.Name())
	}
	f, err := os.OpenFile(s.Name, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	g, err := query(f)
	if err != nil {
		f.Close()
		return err
	}
	if g.width != s.Width || g.height != s.Height {
		f.Close()
		return fmt.Errorf("framebuffer: %s is %dx%d, expected %dx%d", s.Name, g.width, g.height, s.Width, s.Height)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, g.lineLength*g.virtualHeight, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("framebuffer: mmap %s: %w", s.Name, err)
	}
	start := g.yoffset*g.lineLength + g.xoffset*g.bpp/8
	d.f, d.mem, d.view, d.geo = f, mem, mem[start:], g

	refresh := d.Refresh
	if refresh <= 0 {
		refresh = time.Second / 60
	}
	d.tick = time.NewTicker(refresh)
	d.quit = make(chan struct{})
	return nil
}

// Render writes img into the framebuffer and waits for the next refresh tick
func (d *Device) Render(img *image.Gray) error {
	d.mu.Lock()
	if d.mem == nil {
		d.mu.Unlock()
		return fmt.Errorf("framebuffer: not open")
	}
	err := pack(d.view, d.geo.lineLength, d.geo.bpp, img)
	tick, quit := d.tick, d.quit
	d.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-tick.C:
		return nil
	case <-quit:
		return fmt.Errorf("framebuffer: closed")
	}
}

// Close unmaps and closes the device
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	close(d.quit)
	d.tick.Stop()
	err := unix.Munmap(d.mem)
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	d.f, d.mem, d.view = nil, nil, nil
	return err
}
