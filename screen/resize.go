package screen

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/gift"
)

// ResizePolicy decides what Submit does with an image whose size differs from
// the surface
type ResizePolicy int

const (
	// Reject refuses mismatched images with a *ShapeError
	Reject ResizePolicy = iota

	// Stretch resizes to exactly the surface size, ignoring aspect ratio
	Stretch

	// Fit resizes to the largest size that fits the surface with the same
	// aspect ratio, centered on a zero background
	Fit
)

// String satisfies fmt.Stringer
func (p ResizePolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Stretch:
		return "stretch"
	case Fit:
		return "fit"
	default:
		return fmt.Sprintf("ResizePolicy(%d)", int(p))
	}
}

// ParseResizePolicy converts "reject", "stretch" or "fit" (any case) to a
// ResizePolicy.  The empty string is Reject.
func ParseResizePolicy(s string) (ResizePolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return Reject, nil
	case "stretch":
		return Stretch, nil
	case "fit":
		return Fit, nil
	}
	return Reject, fmt.Errorf("screen: unknown resize policy %q", s)
}

// resamplings maps names to gift resampling filters.  SLM phase patterns are
// usually resampled with nearest, interpolating across a 2pi wrap is garbage.
var resamplings = map[string]gift.Resampling{
	"":        gift.NearestNeighborResampling,
	"nearest": gift.NearestNeighborResampling,
	"box":     gift.BoxResampling,
	"linear":  gift.LinearResampling,
	"cubic":   gift.CubicResampling,
	"lanczos": gift.LanczosResampling,
}

func resampling(name string) (gift.Resampling, error) {
	r, ok := resamplings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("screen: unknown resampling %q", name)
	}
	return r, nil
}

// toGray returns a copy of img as an 8-bit gray image anchored at the origin
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src[:b.Dx()])
		}
		return out
	}
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}

// conform produces a private gray copy of img of the given size, following
// the policy.  Empty images are rejected under every policy.
func conform(img image.Image, size image.Point, p ResizePolicy, r gift.Resampling) (*image.Gray, error) {
	got := img.Bounds().Size()
	if got.X <= 0 || got.Y <= 0 {
		return nil, &ShapeError{Want: size, Got: got}
	}
	if got == size {
		return toGray(img), nil
	}
	switch p {
	case Stretch:
		g := gift.New(gift.Resize(size.X, size.Y, r))
		out := image.NewGray(image.Rect(0, 0, size.X, size.Y))
		g.Draw(out, img)
		return out, nil
	case Fit:
		fitted := fitInside(got, size)
		g := gift.New(gift.Resize(fitted.X, fitted.Y, r))
		out := image.NewGray(image.Rect(0, 0, size.X, size.Y))
		offset := image.Pt((size.X-fitted.X)/2, (size.Y-fitted.Y)/2)
		g.DrawAt(out, img, offset, gift.CopyOperator)
		return out, nil
	default:
		return nil, &ShapeError{Want: size, Got: got}
	}
}

// fitInside scales src up or down to the largest size inside dst with the same
// aspect ratio
func fitInside(src, dst image.Point) image.Point {
	scale := math.Min(float64(dst.X)/float64(src.X), float64(dst.Y)/float64(src.Y))
	w := int(math.Round(float64(src.X) * scale))
	h := int(math.Round(float64(src.Y) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h)
}
