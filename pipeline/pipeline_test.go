package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stevecastle/prism/device"
)

// fakeEngine derives depth from the red channel of the input tensor, offset
// so depths are never zero.
type fakeEngine struct {
	size   int
	in     []float32
	out    []float32
	runs   int
	closes int
	runErr error
}

func newFakeEngine(size int) *fakeEngine {
	e := &fakeEngine{}
	e.Resize(size)
	return e
}

func (e *fakeEngine) Size() int             { return e.size }
func (e *fakeEngine) InputData() []float32  { return e.in }
func (e *fakeEngine) OutputData() []float32 { return e.out }

func (e *fakeEngine) Run() error {
	e.runs++
	if e.runErr != nil {
		return e.runErr
	}
	plane := e.size * e.size
	for i := 0; i < plane; i++ {
		e.out[i] = 1 + 10*e.in[i]
	}
	return nil
}

func (e *fakeEngine) Resize(size int) error {
	e.size = size
	e.in = make([]float32, 3*size*size)
	e.out = make([]float32, size*size)
	return nil
}

func (e *fakeEngine) Close() error {
	e.closes++
	return nil
}

func newTestPipeline(t *testing.T, size int) (*Pipeline, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine(size)
	p, err := New(eng, Config{InferenceSize: size, Params: DefaultFilterParams()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, eng
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{InferenceSize: 224}); err == nil {
		t.Error("New(nil engine) should fail")
	}
	if _, err := New(newFakeEngine(224), Config{InferenceSize: 224, Border: 1.5}); err == nil {
		t.Error("New with out-of-range border should fail")
	}

	// Size is aligned down to the model stride.
	p, err := New(newFakeEngine(14), Config{InferenceSize: 230})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.InferenceSize() != 224 {
		t.Errorf("InferenceSize() = %d; want 224", p.InferenceSize())
	}
}

func TestComputeDepthRejectsMalformedInput(t *testing.T) {
	p, _ := newTestPipeline(t, 56)

	if _, err := p.ComputeDepth(nil, false); err == nil {
		t.Error("nil image should be rejected")
	}
	if _, err := p.ComputeDepth(&device.Image{W: 0, H: 0}, false); err == nil {
		t.Error("zero-dimension image should be rejected")
	}
	if _, err := p.ComputeDepth(&device.Image{W: 8, H: 8, Pix: make([]byte, 16)}, false); err == nil {
		t.Error("short pixel buffer should be rejected")
	}
}

func TestComputeDepthDimensions(t *testing.T) {
	p, eng := newTestPipeline(t, 56)
	img := gradientImage(t, 64, 48)

	out, err := p.ComputeDepth(img, false)
	if err != nil {
		t.Fatalf("ComputeDepth: %v", err)
	}
	if out.W != 128 || out.H != 48 {
		t.Errorf("output = %dx%d; want 128x48", out.W, out.H)
	}
	if eng.runs != 1 {
		t.Errorf("engine runs = %d; want 1", eng.runs)
	}

	// Left half must carry the source verbatim; alpha must be opaque
	// everywhere.
	for y := 0; y < 48; y += 7 {
		for x := 0; x < 64; x += 7 {
			sr, sg, sb, _ := img.At(x, y)
			r, g, b, a := out.At(x, y)
			if r != sr || g != sg || b != sb || a != 255 {
				t.Fatalf("left pixel (%d,%d) = (%d,%d,%d,%d); want (%d,%d,%d,255)", x, y, r, g, b, a, sr, sg, sb)
			}
		}
	}
}

func TestOutputBufferReuse(t *testing.T) {
	p, _ := newTestPipeline(t, 56)
	img := gradientImage(t, 64, 48)

	out1, err := p.ComputeDepth(img, false)
	if err != nil {
		t.Fatalf("ComputeDepth: %v", err)
	}
	pix1 := &out1.Pix[0]

	out2, err := p.ComputeDepth(img, false)
	if err != nil {
		t.Fatalf("ComputeDepth: %v", err)
	}
	if out1 != out2 || pix1 != &out2.Pix[0] {
		t.Error("output buffer should be reused for unchanged input dimensions")
	}

	// A new input resolution reallocates the output.
	out3, err := p.ComputeDepth(gradientImage(t, 32, 32), false)
	if err != nil {
		t.Fatalf("ComputeDepth: %v", err)
	}
	if out3.W != 64 || out3.H != 32 {
		t.Errorf("output = %dx%d; want 64x32", out3.W, out3.H)
	}
}

// TestComputeDepthIdempotent: once the rolling window is fully warmed on a
// static input, another call must reproduce the same output.
func TestComputeDepthIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t, 56)
	img := gradientImage(t, 64, 64)

	var prev []byte
	for i := 0; i < WindowSize+1; i++ {
		out, err := p.ComputeDepth(img, false)
		if err != nil {
			t.Fatalf("ComputeDepth pass %d: %v", i, err)
		}
		if i == WindowSize-1 {
			prev = append([]byte(nil), out.Pix...)
		}
		if i == WindowSize {
			if !bytes.Equal(prev, out.Pix) {
				t.Error("warmed static input should produce identical output on the next call")
			}
		}
	}
}

func TestRunErrorPropagates(t *testing.T) {
	p, eng := newTestPipeline(t, 56)
	eng.runErr = errors.New("boom")
	if _, err := p.ComputeDepth(gradientImage(t, 32, 32), false); err == nil {
		t.Error("engine failure should propagate")
	}
}

func TestUpdateInferenceSize(t *testing.T) {
	p, eng := newTestPipeline(t, 224)
	img := gradientImage(t, 64, 64)

	for i := 0; i < 5; i++ {
		if _, err := p.ComputeDepth(img, false); err != nil {
			t.Fatalf("ComputeDepth: %v", err)
		}
	}
	if p.window.Len() != 5 {
		t.Fatalf("window length = %d; want 5", p.window.Len())
	}

	if err := p.UpdateInferenceSize(100); err != nil {
		t.Fatalf("UpdateInferenceSize: %v", err)
	}
	if p.InferenceSize() != 98 {
		t.Errorf("InferenceSize() = %d; want 98 (aligned down)", p.InferenceSize())
	}
	if eng.size != 98 {
		t.Errorf("engine size = %d; want 98", eng.size)
	}
	// Old history cannot be resampled to the new resolution.
	if p.window.Len() != 0 {
		t.Errorf("window length after resize = %d; want 0 (history discarded)", p.window.Len())
	}

	out, err := p.ComputeDepth(img, false)
	if err != nil {
		t.Fatalf("ComputeDepth after resize: %v", err)
	}
	if out.W != 128 || out.H != 64 {
		t.Errorf("output = %dx%d; want 128x64", out.W, out.H)
	}
}

func TestSetParamsClamps(t *testing.T) {
	p, _ := newTestPipeline(t, 56)
	p.SetParams(FilterParams{EdgeThreshold: 99, MotionThreshold: -3, TemporalDecay: 2,
		SimilarityDelta: 1, SimilaritySigma: 4, VarianceThreshold: 2, SpatialRadius: 1})
	got := p.Params()
	if got.EdgeThreshold != 10 {
		t.Errorf("EdgeThreshold = %v; want clamped 10", got.EdgeThreshold)
	}
	if got.MotionThreshold != 1 {
		t.Errorf("MotionThreshold = %v; want clamped 1", got.MotionThreshold)
	}
}

func TestDispose(t *testing.T) {
	p, eng := newTestPipeline(t, 56)
	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := p.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if eng.closes != 1 {
		t.Errorf("engine closes = %d; want 1", eng.closes)
	}
	if _, err := p.ComputeDepth(gradientImage(t, 8, 8), false); !errors.Is(err, ErrDisposed) {
		t.Errorf("ComputeDepth after Dispose = %v; want ErrDisposed", err)
	}
	if err := p.UpdateInferenceSize(112); !errors.Is(err, ErrDisposed) {
		t.Errorf("UpdateInferenceSize after Dispose = %v; want ErrDisposed", err)
	}
}
