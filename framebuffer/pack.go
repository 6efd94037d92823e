/*Package framebuffer puts a screen.Buffer on a Linux framebuffer device.

This is the headless path: an SLM attached to an embedded board or a machine
without a desktop is driven by writing straight into /dev/fbN.  Devices
enumerates the framebuffers and Device is the renderer.  Both are only
available on Linux; the pixel packing is portable.
*/
package framebuffer

import (
	"encoding/binary"
	"fmt"
	"image"
)

// pack writes img into dst, a framebuffer whose rows are stride bytes long and
// whose pixels are bpp bits deep
func pack(dst []byte, stride, bpp int, img *image.Gray) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	bytesPer := bpp / 8
	if stride < w*bytesPer {
		return fmt.Errorf("framebuffer: line length %d too short for %d pixels at %d bpp", stride, w, bpp)
	}
	if len(dst) < (h-1)*stride+w*bytesPer {
		return fmt.Errorf("framebuffer: mapping of %d bytes too small for %dx%d at %d bpp", len(dst), w, h, bpp)
	}
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		row := dst[y*stride:]
		switch bpp {
		case 32:
			for x := 0; x < w; x++ {
				v := src[x]
				i := 4 * x
				row[i], row[i+1], row[i+2], row[i+3] = v, v, v, 0xff
			}
		case 24:
			for x := 0; x < w; x++ {
				v := src[x]
				i := 3 * x
				row[i], row[i+1], row[i+2] = v, v, v
			}
		case 16:
			for x := 0; x < w; x++ {
				binary.LittleEndian.PutUint16(row[2*x:], rgb565(src[x]))
			}
		case 8:
			copy(row[:w], src[:w])
		default:
			return fmt.Errorf("framebuffer: %d bpp is not supported", bpp)
		}
	}
	return nil
}

// rgb565 is the 16 bit gray closest to v
func rgb565(v uint8) uint16 {
	r := uint16(v >> 3)
	g := uint16(v >> 2)
	return r<<11 | g<<5 | r
}

// lineLengthOffset is the byte offset of line_length in fb_fix_screeninfo for
// a C long of the given size: id[16], unsigned long smem_start, four u32
// (smem_len, type, type_aux, visual), three u16 (xpanstep, ypanstep,
// ywrapstep), padded to u32 alignment
func lineLengthOffset(longSize int) int {
	off := 16 + longSize + 4*4 + 3*2
	return (off + 3) &^ 3
}
