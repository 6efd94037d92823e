// Command project shows an image file full screen on a monitor, typically an
// SLM, until Esc is pressed or the window is closed.
//
//	project <image> [screen] [resize]
//
// The image may be PNG, JPEG or FITS.  screen is the monitor index from
// "slmsrv screens", 1 by default.  resize is reject, stretch or fit (default).
package main

import (
	"fmt"
	"image"
	_ "image/jpeg" // decode
	_ "image/png"  // decode
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/slmsuite/hardware/fullscreen"
	"github.com/slmsuite/hardware/screen"
)

func usage() {
	fmt.Println(`Usage:
	project <image> [screen] [resize]

screen is the monitor index, 1 by default
resize is reject, stretch or fit (default)`)
}

// load decodes a PNG, JPEG or the primary HDU of a FITS file
func load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		fits, err := fitsio.Open(f)
		if err != nil {
			return nil, err
		}
		defer fits.Close()
		hdu, ok := fits.HDU(0).(fitsio.Image)
		if !ok {
			return nil, fmt.Errorf("%s: primary HDU is not an image", path)
		}
		img := hdu.Image()
		if img == nil {
			return nil, fmt.Errorf("%s: image type not supported", path)
		}
		return img, nil
	}
	img, _, err := image.Decode(f)
	return img, err
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 || len(args) > 3 || args[0] == "help" {
		usage()
		return
	}
	index := 1
	if len(args) > 1 {
		var err error
		index, err = strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("screen %q is not an integer", args[1])
		}
	}
	policy := screen.Fit
	if len(args) > 2 {
		var err error
		policy, err = screen.ParseResizePolicy(args[2])
		if err != nil {
			log.Fatal(err)
		}
	}

	img, err := load(args[0])
	if err != nil {
		log.Fatal(err)
	}

	win := fullscreen.NewWindow()
	win.Title = filepath.Base(args[0])
	win.CloseOnEscape = true
	buf, err := screen.Open(fullscreen.Monitors{}, win, index, screen.Options{Resize: policy})
	if err != nil {
		log.Fatal(err)
	}
	if err = buf.Submit(img); err != nil {
		buf.Close()
		log.Fatal(err)
	}
	err = win.Run()
	buf.Close()
	if err != nil {
		log.Fatal(err)
	}
}
