// Package pipeline converts a single color frame into a packed side-by-side
// RGB+Depth image: preprocessing, neural depth inference, a 20-frame rolling
// history, an edge/motion-aware temporal filter, and composition. All buffers
// are allocated at construction and reused; a steady-state frame allocates
// nothing.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/stevecastle/prism/device"
)

// Engine runs the frozen depth model. The input and output slices are owned
// by the engine and reused across calls. depthnet.Session satisfies this; a
// fake suffices for tests.
type Engine interface {
	// Size returns the square inference resolution.
	Size() int
	// InputData returns the shared [3,S,S] input slice, written before Run.
	InputData() []float32
	// OutputData returns the shared [S,S] raw depth slice, valid after Run.
	OutputData() []float32
	// Run executes one blocking forward pass.
	Run() error
	// Resize rebuilds the engine tensors at a new resolution.
	Resize(size int) error
	Close() error
}

// Config holds construction-time pipeline settings.
type Config struct {
	// Square inference resolution; floor-adjusted to a multiple of
	// ModelStride, minimum ModelStride.
	InferenceSize int
	// Use the windowed-resample/sharpening preprocessing path instead of
	// nearest-neighbor.
	HighQuality bool
	// Central crop fraction applied during preprocessing, [0,0.9].
	Border float32
	// Temporal filter tuning; clamped to documented ranges.
	Params FilterParams
}

// ErrDisposed is returned after Dispose.
var ErrDisposed = errors.New("pipeline: disposed")

// Pipeline owns every buffer of the conversion and sequences the stages. Not
// safe for concurrent invocation on one instance; each stage completes before
// the next begins. Multiple instances are independent.
type Pipeline struct {
	engine Engine
	size   int
	hq     bool
	border float32
	params FilterParams

	raw      *device.Plane // view over the engine's output tensor
	filtered *device.Plane
	scratch  [3]*device.Plane
	window   *RollingWindow
	out      *device.Image

	disposed bool
}

// New builds a pipeline around engine. The engine is resized to the aligned
// inference resolution if needed, and all depth-resolution buffers are
// allocated once.
func New(engine Engine, cfg Config) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("pipeline: nil engine")
	}
	size := AlignInferenceSize(cfg.InferenceSize)
	if err := engine.Resize(size); err != nil {
		return nil, fmt.Errorf("pipeline: size engine to %d: %w", size, err)
	}
	if cfg.Border < 0 || cfg.Border > 0.9 {
		return nil, fmt.Errorf("pipeline: border fraction %v out of range [0,0.9]", cfg.Border)
	}
	cfg.Params.Clamp()

	p := &Pipeline{
		engine: engine,
		size:   size,
		hq:     cfg.HighQuality,
		border: cfg.Border,
		params: cfg.Params,
	}
	if err := p.allocate(); err != nil {
		return nil, err
	}
	return p, nil
}

// allocate (re)builds every inference-resolution buffer.
func (p *Pipeline) allocate() error {
	var err error
	if p.filtered, err = device.NewPlane(p.size, p.size); err != nil {
		return err
	}
	for i := range p.scratch {
		if p.scratch[i], err = device.NewPlane(p.size, p.size); err != nil {
			return err
		}
	}
	if p.window, err = NewRollingWindow(p.size, p.size); err != nil {
		return err
	}
	p.raw = &device.Plane{W: p.size, H: p.size, Data: p.engine.OutputData()}
	return nil
}

// InferenceSize returns the current aligned inference resolution.
func (p *Pipeline) InferenceSize() int {
	return p.size
}

// Params returns the current filter tuning.
func (p *Pipeline) Params() FilterParams {
	return p.params
}

// SetParams replaces the filter tuning, clamped to documented ranges.
// Takes effect on the next ComputeDepth call.
func (p *Pipeline) SetParams(fp FilterParams) {
	fp.Clamp()
	p.params = fp
}

// validateInput rejects malformed frames before any kernel runs.
func validateInput(img *device.Image) error {
	if img == nil {
		return errors.New("pipeline: nil input image")
	}
	if img.W <= 0 || img.H <= 0 {
		return fmt.Errorf("pipeline: invalid input dimensions %dx%d", img.W, img.H)
	}
	if len(img.Pix) < img.W*img.H*4 {
		return fmt.Errorf("pipeline: input pixel buffer too short: have %d bytes, need %d",
			len(img.Pix), img.W*img.H*4)
	}
	return nil
}

// ComputeDepth converts one color frame into the packed RGBD image. The
// returned image is owned by the pipeline and reused; it is valid until the
// next call. img is only read and only for the duration of this call.
func (p *Pipeline) ComputeDepth(img *device.Image, channelSwap bool) (*device.Image, error) {
	if p.disposed {
		return nil, ErrDisposed
	}
	if err := validateInput(img); err != nil {
		return nil, err
	}

	// Output is reused; reallocated only when input dimensions change.
	if p.out == nil {
		o, err := device.NewImage(img.W*2, img.H)
		if err != nil {
			return nil, err
		}
		p.out = o
	} else if err := p.out.Resize(img.W*2, img.H); err != nil {
		return nil, err
	}

	// Each stage blocks until complete before its dependent stage launches.
	if p.hq {
		preprocessQuality(p.engine.InputData(), p.size, img, channelSwap, p.border, &p.scratch)
	} else {
		preprocessNearest(p.engine.InputData(), p.size, img, channelSwap, p.border)
	}

	if err := p.engine.Run(); err != nil {
		return nil, err
	}

	p.window.AddFrame(p.raw.Data)
	temporalFilterFrame(p.filtered, p.raw, p.window, p.params)
	composeFrame(p.out, img, p.filtered, channelSwap)
	return p.out, nil
}

// UpdateInferenceSize switches to a new inference resolution. All
// resolution-dependent buffers are rebuilt and the rolling-window history is
// discarded: frames captured at the old resolution cannot be resampled.
// Rare, expensive; for example when switching from live-camera to
// high-quality file mode.
func (p *Pipeline) UpdateInferenceSize(size int) error {
	if p.disposed {
		return ErrDisposed
	}
	size = AlignInferenceSize(size)
	if size == p.size {
		return nil
	}
	if err := p.engine.Resize(size); err != nil {
		return fmt.Errorf("pipeline: resize engine to %d: %w", size, err)
	}
	p.size = size
	if err := p.filtered.Resize(size, size); err != nil {
		return err
	}
	for i := range p.scratch {
		if err := p.scratch[i].Resize(size, size); err != nil {
			return err
		}
	}
	if err := p.window.Resize(size, size); err != nil {
		return err
	}
	p.raw = &device.Plane{W: size, H: size, Data: p.engine.OutputData()}
	return nil
}

// ResetHistory discards rolling-window history without touching buffers,
// e.g. after a scene cut or when switching sources.
func (p *Pipeline) ResetHistory() {
	if p.disposed {
		return
	}
	p.window.Reset()
}

// Dispose releases the inference session and drops all buffers. Idempotent.
// The pipeline cannot be used afterwards.
func (p *Pipeline) Dispose() error {
	if p.disposed {
		return nil
	}
	p.disposed = true
	err := p.engine.Close()
	p.raw = nil
	p.filtered = nil
	p.scratch = [3]*device.Plane{}
	p.window = nil
	p.out = nil
	return err
}
