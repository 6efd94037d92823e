package screen

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"

	"github.com/disintegration/gift"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Buffer
type State int32

const (
	// Uninitialized is the state before the surface is claimed
	Uninitialized State = iota

	// Running means the presentation loop is drawing the buffer
	Running

	// Closed is terminal; the surface has been released
	Closed
)

// String satisfies fmt.Stringer
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Options tune a Buffer.  The zero value rejects mismatched images and draws
// as fast as the Renderer allows.
type Options struct {
	// Resize is what Submit does with images that do not match the surface
	Resize ResizePolicy

	// Resampling names the resize kernel, one of nearest (default), box,
	// linear, cubic or lanczos
	Resampling string

	// MaxFPS caps the presentation loop's redraw rate.  Zero is uncapped.
	MaxFPS float64
}

// Stats are counters of a Buffer's activity
type Stats struct {
	// Submitted is the number of images accepted by Submit
	Submitted uint64 `json:"submitted"`

	// Rendered is the number of completed Render calls
	Rendered uint64 `json:"rendered"`

	// Dropped is the number of submitted images superseded before the
	// presentation loop picked them up
	Dropped uint64 `json:"dropped"`
}

// Buffer is the most recently submitted image for one surface, and the
// presentation loop that keeps it on screen.
//
// The loop owns the current image.  New images reach it through a single
// slot channel; a send overwrites any image still sitting in the slot, so the
// last completed Submit always wins.
type Buffer struct {
	surf Surface
	rend Renderer
	opts Options
	rs   gift.Resampling

	slot chan *image.Gray

	mu    sync.RWMutex
	state State
	err   error

	cancel context.CancelFunc
	done   chan struct{}

	submitted atomic.Uint64
	rendered  atomic.Uint64
	dropped   atomic.Uint64
}

// Open claims surface index from e through r and starts the presentation loop
// drawing a blank (zero) image.  If index is out of range a *ConfigurationError
// is returned and nothing is started.
func Open(e Enumerator, r Renderer, index int, opts Options) (*Buffer, error) {
	rs, err := resampling(opts.Resampling)
	if err != nil {
		return nil, err
	}
	surfs, err := e.Surfaces()
	if err != nil {
		return nil, errors.Wrap(err, "screen: enumerating surfaces")
	}
	if index < 0 || index >= len(surfs) {
		return nil, &ConfigurationError{Index: index, Available: len(surfs)}
	}
	surf := surfs[index]
	if surf.Width <= 0 || surf.Height <= 0 {
		return nil, errors.Errorf("screen: surface %d reports a %dx%d resolution", index, surf.Width, surf.Height)
	}
	err = r.Open(surf)
	if err != nil {
		return nil, errors.Wrapf(err, "screen: opening surface %d", index)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Buffer{
		surf:   surf,
		rend:   r,
		opts:   opts,
		rs:     rs,
		slot:   make(chan *image.Gray, 1),
		state:  Running,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	var lim *rate.Limiter
	if opts.MaxFPS > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.MaxFPS), 1)
	}
	go b.present(ctx, image.NewGray(surf.Bounds()), lim)
	return b, nil
}

// Surface returns the surface the buffer is bound to
func (b *Buffer) Surface() Surface {
	return b.surf
}

// Options returns the options the buffer was opened with
func (b *Buffer) Options() Options {
	return b.opts
}

// State returns the lifecycle state
func (b *Buffer) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Err returns the render failure that stopped the presentation loop, or nil
func (b *Buffer) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Done is closed once the presentation loop has exited
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

// Stats returns a snapshot of the activity counters
func (b *Buffer) Stats() Stats {
	return Stats{
		Submitted: b.submitted.Load(),
		Rendered:  b.rendered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Submit replaces the current image.  img is copied, the caller may reuse it
// as soon as Submit returns.  Images that do not match the surface size are
// handled according to Options.Resize.  Submit does not wait for the image to
// be drawn.
func (b *Buffer) Submit(img image.Image) error {
	_, err := b.SubmitGray(img)
	return err
}

// SubmitGray is Submit, returning the frame handed to the presentation loop:
// img converted to gray and conformed to the surface size.  The frame must not
// be modified.
func (b *Buffer) SubmitGray(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, errors.New("screen: nil image")
	}
	// fail fast before paying for the copy
	if err := b.checkRunning("submit"); err != nil {
		return nil, err
	}
	frame, err := conform(img, b.surf.Bounds().Size(), b.opts.Resize, b.rs)
	if err != nil {
		return nil, err
	}

	// the read lock keeps Close from completing while the send is in flight
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != Running {
		return nil, &InvalidStateError{Op: "submit", State: b.state, Cause: b.err}
	}
	b.offer(frame)
	b.submitted.Add(1)
	return frame, nil
}

// offer puts frame in the slot, evicting an unconsumed frame if there is one
func (b *Buffer) offer(frame *image.Gray) {
	for {
		select {
		case b.slot <- frame:
			return
		default:
		}
		select {
		case <-b.slot:
			b.dropped.Add(1)
		default:
		}
	}
}

func (b *Buffer) checkRunning(op string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != Running {
		return &InvalidStateError{Op: op, State: b.state, Cause: b.err}
	}
	return nil
}

// Close stops the presentation loop and releases the surface.  Calls after
// the first, or after a render failure already stopped the buffer, do nothing
// and return nil.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.state != Running {
		b.mu.Unlock()
		return nil
	}
	b.state = Closed
	b.mu.Unlock()

	b.cancel()
	// closing the renderer first unblocks a Render waiting on the window
	err := b.rend.Close()
	<-b.done
	log.Printf("screen: released surface %d", b.surf.Index)
	return err
}

func (b *Buffer) present(ctx context.Context, cur *image.Gray, lim *rate.Limiter) {
	defer close(b.done)
	log.Printf("screen: presenting on surface %s", b.surf)
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-b.slot:
			cur = next
		default:
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}
		err := b.rend.Render(cur)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.fail(err)
			return
		}
		b.rendered.Add(1)
	}
}

// fail stops the buffer after a render error and releases the surface
func (b *Buffer) fail(err error) {
	b.mu.Lock()
	if b.state != Running {
		b.mu.Unlock()
		return
	}
	b.state = Closed
	b.err = err
	b.mu.Unlock()

	b.cancel()
	log.Printf("screen: render failed on surface %d, presentation stopped: %v", b.surf.Index, err)
	if cerr := b.rend.Close(); cerr != nil {
		log.Printf("screen: error releasing surface %d: %v", b.surf.Index, cerr)
	}
}
