// Package device holds the pixel and depth-plane buffers the pipeline runs
// over, plus the data-parallel dispatch used to execute per-pixel kernels.
// Buffers are resized in place and only reallocate when dimensions change, so
// steady-state frames allocate nothing.
package device

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
)

// ErrBufferTooLarge is returned when a requested buffer size would overflow.
var ErrBufferTooLarge = errors.New("device: requested buffer dimensions overflow")

// Image is an RGBA8 pixel buffer. In this implementation it is host-resident;
// it stands in for a device image and is exclusively owned by its caller for
// the duration of one pipeline call.
type Image struct {
	W, H int
	// Pix holds RGBA bytes, row-major, stride W*4.
	Pix []byte
}

// NewImage allocates a zeroed image.
func NewImage(w, h int) (*Image, error) {
	if err := checkDims(w, h, 4); err != nil {
		return nil, err
	}
	return &Image{W: w, H: h, Pix: make([]byte, w*h*4)}, nil
}

// Wrap views an existing pixel buffer as an Image without copying. The buffer
// must hold at least w*h*4 bytes and remains owned by the caller.
func Wrap(w, h int, pix []byte) (*Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("device: invalid image dimensions %dx%d", w, h)
	}
	if err := checkDims(w, h, 4); err != nil {
		return nil, err
	}
	if len(pix) < w*h*4 {
		return nil, fmt.Errorf("device: pixel buffer too short: have %d bytes, need %d", len(pix), w*h*4)
	}
	return &Image{W: w, H: h, Pix: pix[:w*h*4]}, nil
}

// Resize grows or shrinks the image to w×h. The backing slice is reallocated
// only when the pixel count changes.
func (im *Image) Resize(w, h int) error {
	if err := checkDims(w, h, 4); err != nil {
		return err
	}
	if w*h*4 != len(im.Pix) {
		im.Pix = make([]byte, w*h*4)
	}
	im.W, im.H = w, h
	return nil
}

// At returns the RGBA components at (x,y). Out-of-range coordinates read as
// transparent black.
func (im *Image) At(x, y int) (r, g, b, a byte) {
	if x < 0 || y < 0 || x >= im.W || y >= im.H {
		return 0, 0, 0, 0
	}
	i := (y*im.W + x) * 4
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2], im.Pix[i+3]
}

// Set stores the RGBA components at (x,y). Out-of-range writes are dropped.
func (im *Image) Set(x, y int, r, g, b, a byte) {
	if x < 0 || y < 0 || x >= im.W || y >= im.H {
		return
	}
	i := (y*im.W + x) * 4
	im.Pix[i] = r
	im.Pix[i+1] = g
	im.Pix[i+2] = b
	im.Pix[i+3] = a
}

// Plane is a float32 depth plane with the same reuse contract as Image.
type Plane struct {
	W, H int
	Data []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(w, h int) (*Plane, error) {
	if err := checkDims(w, h, 4); err != nil {
		return nil, err
	}
	return &Plane{W: w, H: h, Data: make([]float32, w*h)}, nil
}

// Resize reallocates the backing slice only when the element count changes.
func (p *Plane) Resize(w, h int) error {
	if err := checkDims(w, h, 4); err != nil {
		return err
	}
	if w*h != len(p.Data) {
		p.Data = make([]float32, w*h)
	}
	p.W, p.H = w, h
	return nil
}

// At returns the value at (x,y), or 0 out of range.
func (p *Plane) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= p.W || y >= p.H {
		return 0
	}
	return p.Data[y*p.W+x]
}

// Set stores the value at (x,y). Out-of-range writes are dropped.
func (p *Plane) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= p.W || y >= p.H {
		return
	}
	p.Data[y*p.W+x] = v
}

// Zero clears the plane.
func (p *Plane) Zero() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}

// CopyFrom copies src into p. Dimensions must already match.
func (p *Plane) CopyFrom(src *Plane) {
	copy(p.Data, src.Data)
}

func checkDims(w, h, elemSize int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("device: invalid dimensions %dx%d", w, h)
	}
	if w > math.MaxInt/elemSize || h > math.MaxInt/(w*elemSize) {
		return ErrBufferTooLarge
	}
	return nil
}

// Dispatch runs kernel once per (x,y) over a w×h index space, striping rows
// across GOMAXPROCS workers, and blocks until every element has completed.
// Kernels must not share mutable state between elements.
func Dispatch(w, h int, kernel func(x, y int)) {
	DispatchRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				kernel(x, y)
			}
		}
	})
}

// DispatchRows runs body over contiguous row ranges [y0,y1) in parallel and
// blocks until all rows are done.
func DispatchRows(h int, body func(y0, y1 int)) {
	rows := splitRows(h, runtime.GOMAXPROCS(0))
	if len(rows) == 1 {
		body(rows[0][0], rows[0][1])
		return
	}
	var wg sync.WaitGroup
	for _, r := range rows {
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			body(y0, y1)
		}(r[0], r[1])
	}
	wg.Wait()
}

func splitRows(h, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	if workers > h {
		workers = h
	}
	rows := make([][2]int, 0, workers)
	step := h / workers
	start := 0
	for i := 0; i < workers; i++ {
		end := start + step
		if i == workers-1 {
			end = h
		}
		rows = append(rows, [2]int{start, end})
		start = end
	}
	return rows
}

// MinMax is the scalar reduction used by the composition stage. It returns
// (0,0) for an empty slice.
func MinMax(data []float32) (min, max float32) {
	if len(data) == 0 {
		return 0, 0
	}
	min, max = data[0], data[0]
	for _, v := range data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
