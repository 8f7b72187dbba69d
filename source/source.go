// Package source defines the hand-off contract between frame producers
// (video decoders, live cameras, static images) and the depth pipeline.
// Producers run on their own goroutines and publish into a Swap; the single
// pipeline goroutine takes the current frame, which stays valid for exactly
// one ComputeDepth call.
package source

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"sync"

	"github.com/stevecastle/prism/device"
)

// Frame is one color frame. Pix is RGBA, stride W*4, and is owned by the
// producer; it is valid until the producer publishes its next frame.
type Frame struct {
	W, H int
	Pix  []byte
}

// Image wraps the frame pixels as a device image without copying.
func (f *Frame) Image() (*device.Image, error) {
	return device.Wrap(f.W, f.H, f.Pix)
}

// Source produces frames for the pipeline.
type Source interface {
	// Next returns the current frame, blocking if none is available yet.
	// The frame is valid until the following Next call. io.EOF signals a
	// finished stream.
	Next() (*Frame, error)
	io.Closer
}

// Swap is a single-buffer frame mailbox. One producer goroutine publishes,
// one consumer goroutine takes; the lock is held only for the pointer swap.
type Swap struct {
	mu    sync.Mutex
	cur   *Frame
	fresh bool
}

// Publish replaces the current frame. The previous frame pointer is returned
// to the producer for reuse (nil on the first publish).
func (s *Swap) Publish(f *Frame) *Frame {
	s.mu.Lock()
	prev := s.cur
	s.cur = f
	s.fresh = true
	s.mu.Unlock()
	return prev
}

// Take returns the current frame and whether it is new since the last Take.
// The returned frame is valid for exactly one pipeline call; callers must
// not hold it across Takes.
func (s *Swap) Take() (*Frame, bool) {
	s.mu.Lock()
	f, fresh := s.cur, s.fresh
	s.fresh = false
	s.mu.Unlock()
	return f, fresh
}

// StaticImage is a Source backed by one decoded image file; Next returns the
// same frame every call. Useful for stills and for warming the temporal
// filter by re-running a frame.
type StaticImage struct {
	frame Frame
}

// NewStaticImage decodes the image at path into an RGBA frame.
func NewStaticImage(path string) (*StaticImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	return NewStaticImageFrom(img), nil
}

// NewStaticImageFrom wraps an already-decoded image.
func NewStaticImageFrom(img image.Image) *StaticImage {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	return &StaticImage{frame: Frame{W: b.Dx(), H: b.Dy(), Pix: rgba.Pix}}
}

// Next returns the decoded frame. Never returns io.EOF; a still can be fed
// to the pipeline indefinitely.
func (s *StaticImage) Next() (*Frame, error) {
	return &s.frame, nil
}

// Close is a no-op.
func (s *StaticImage) Close() error { return nil }

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == rgba.Bounds().Dx()*4 {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
