package camera

import (
	"errors"
	"image"
	"io"

	"github.com/astrogo/fitsio"
)

// WriteFits streams a fits file to w.  Frames are stored as signed 16-bit
// integers with BZERO=32768, which FITS readers present as the unsigned
// counts.  More than one frame produces a cube.
func WriteFits(w io.Writer, metadata []fitsio.Card, imgs []*image.Gray16) error {
	if len(imgs) == 0 {
		return errors.New("no frames to write")
	}
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	nframes := len(imgs)
	b := imgs[0].Bounds()
	width, height := b.Dx(), b.Dy()
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if nframes > 1 {
		dims = append(dims, nframes)
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}

	ints := make([]int16, 0, width*height*nframes)
	for _, img := range imgs {
		ib := img.Bounds()
		if ib.Dx() != width || ib.Dy() != height {
			return errors.New("frames in a cube must share one size")
		}
		for y := ib.Min.Y; y < ib.Max.Y; y++ {
			row := img.Pix[img.PixOffset(ib.Min.X, y):]
			for x := 0; x < width; x++ {
				// Gray16 is big endian
				u := uint16(row[2*x])<<8 | uint16(row[2*x+1])
				ints = append(ints, int16(int32(u)-32768))
			}
		}
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
