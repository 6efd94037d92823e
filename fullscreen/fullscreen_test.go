package fullscreen

import (
	"image"
	"testing"
	"time"
)

// waitPending blocks until the window's pending image is img, and returns its
// generation
func waitPending(t *testing.T, w *Window, img *image.Gray) uint64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, gen := w.take(); got == img {
			return gen
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("image never became pending")
	return 0
}

func renderAsync(w *Window, img *image.Gray) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.Render(img) }()
	return done
}

func TestRenderWaitsForDraw(t *testing.T) {
	w := NewWindow()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	done := renderAsync(w, img)
	gen := waitPending(t, w, img)
	select {
	case err := <-done:
		t.Fatalf("Render returned %v before the frame was drawn", err)
	case <-time.After(20 * time.Millisecond):
	}
	w.signal(gen)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Render did not return after the frame was drawn")
	}
}

func TestRenderIgnoresStaleDraw(t *testing.T) {
	w := NewWindow()
	first := image.NewGray(image.Rect(0, 0, 4, 4))
	done := renderAsync(w, first)
	gen := waitPending(t, w, first)
	w.signal(gen)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// the ebiten loop draws the first image once more, after the second has
	// been handed over but before it picked the second up
	second := image.NewGray(image.Rect(0, 0, 4, 4))
	done = renderAsync(w, second)
	gen2 := waitPending(t, w, second)
	if gen2 <= gen {
		t.Fatalf("generation did not advance, %d then %d", gen, gen2)
	}
	w.signal(gen)
	select {
	case err := <-done:
		t.Fatalf("Render returned %v on a frame of the previous image", err)
	case <-time.After(20 * time.Millisecond):
	}
	w.signal(gen2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Render did not return after the second frame was drawn")
	}
}

func TestSignalKeepsLatest(t *testing.T) {
	w := NewWindow()
	w.signal(1)
	w.signal(2)
	w.signal(3)
	if got := <-w.drawn; got != 3 {
		t.Errorf("expected generation 3, got %d", got)
	}
	select {
	case got := <-w.drawn:
		t.Errorf("unexpected extra report %d", got)
	default:
	}
}

func TestCloseUnblocksRender(t *testing.T) {
	w := NewWindow()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	done := renderAsync(w, img)
	waitPending(t, w, img)
	w.Close()
	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Render")
	}
	if err := w.Render(img); err != ErrClosed {
		t.Errorf("Render after Close: expected ErrClosed, got %v", err)
	}
	select {
	case <-w.Closed():
	default:
		t.Error("Closed channel still open after Close")
	}
	// Close is idempotent
	if err := w.Close(); err != nil {
		t.Error(err)
	}
}

func TestGrayToRGBASubImage(t *testing.T) {
	full := image.NewGray(image.Rect(0, 0, 6, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			full.Pix[full.PixOffset(x, y)] = uint8(10*y + x)
		}
	}
	sub := full.SubImage(image.Rect(2, 1, 5, 4)).(*image.Gray)
	dst := make([]byte, 4*3*3)
	grayToRGBA(dst, sub)
	i := 0
	for y := 1; y < 4; y++ {
		for x := 2; x < 5; x++ {
			want := uint8(10*y + x)
			px := dst[i : i+4]
			if px[0] != want || px[1] != want || px[2] != want || px[3] != 0xff {
				t.Errorf("pixel (%d,%d): expected gray %d opaque, got %v", x, y, want, px)
			}
			i += 4
		}
	}
}

func TestLayoutFollowsSurface(t *testing.T) {
	w := NewWindow()
	if x, y := w.Layout(800, 600); x != 800 || y != 600 {
		t.Errorf("unopened window: expected 800x600, got %dx%d", x, y)
	}
	w.surf.Width, w.surf.Height = 1920, 1152
	if x, y := w.Layout(800, 600); x != 1920 || y != 1152 {
		t.Errorf("expected surface resolution 1920x1152, got %dx%d", x, y)
	}
}
