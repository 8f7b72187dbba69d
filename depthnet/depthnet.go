//go:build cgo
// +build cgo

// Package depthnet wraps a frozen monocular-depth ONNX model behind a
// persistent onnxruntime session. The input and output tensors are allocated
// once and shared with the caller, so a steady-state forward pass allocates
// nothing.
package depthnet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// Options configures how the depth session is created.
type Options struct {
	// Path to the onnxruntime shared library (.dll/.so/.dylib). If empty, the
	// environment variable ONNXRUNTIME_SHARED_LIBRARY_PATH will be respected.
	ORTSharedLibraryPath string

	// Input and output tensor names in the model graph.
	InputName  string
	OutputName string
}

// DefaultOptions returns the tensor names used by common monocular-depth
// exports.
func DefaultOptions() Options {
	return Options{
		InputName:  "image",
		OutputName: "depth",
	}
}

// ErrShapeMismatch indicates the model's output shape does not match the
// configured inference resolution. This is a model/configuration error and is
// never retried.
var ErrShapeMismatch = errors.New("depthnet: model output shape does not match inference size")

// Session runs one depth model at a fixed square inference resolution.
// A Session is not safe for concurrent use.
type Session struct {
	modelPath string
	opts      Options
	size      int

	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	session *ort.AdvancedSession
	ownsEnv bool
	closed  bool
}

// Open loads the model at modelPath and builds a session with a [1,3,S,S]
// float32 input and a [1,S,S] float32 output, where S = size. Configuration
// errors (missing model, bad tensor names) are fatal and non-retryable.
func Open(modelPath string, size int, opts Options) (*Session, error) {
	if size <= 0 {
		return nil, fmt.Errorf("depthnet: invalid inference size %d", size)
	}
	if opts.InputName == "" || opts.OutputName == "" {
		return nil, errors.New("depthnet: input and output names must be provided")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("depthnet: model file: %w", err)
	}

	if opts.ORTSharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.ORTSharedLibraryPath)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}

	s := &Session{modelPath: modelPath, opts: opts, size: size}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("depthnet: initialize onnxruntime: %w", err)
		}
		s.ownsEnv = true
	}

	if err := s.build(size); err != nil {
		if s.ownsEnv {
			ort.DestroyEnvironment()
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) build(size int) error {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return fmt.Errorf("depthnet: create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(size), int64(size)))
	if err != nil {
		input.Destroy()
		return fmt.Errorf("depthnet: create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		s.modelPath,
		[]string{s.opts.InputName},
		[]string{s.opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fmt.Errorf("depthnet: create session: %w", err)
	}
	s.input = input
	s.output = output
	s.session = session
	s.size = size
	return nil
}

func (s *Session) destroyGraph() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
}

// Size returns the square inference resolution.
func (s *Session) Size() int {
	return s.size
}

// InputData returns the shared [3,S,S] input slice the caller writes before Run.
func (s *Session) InputData() []float32 {
	return s.input.GetData()
}

// OutputData returns the shared [S,S] raw depth slice valid after Run.
func (s *Session) OutputData() []float32 {
	return s.output.GetData()
}

// Run executes one synchronous forward pass. The call blocks for the full
// model latency; there is no cross-frame batching and no timeout.
func (s *Session) Run() error {
	if s.closed {
		return errors.New("depthnet: session is closed")
	}
	if err := s.session.Run(); err != nil {
		if isDimensionMismatch(err) {
			return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
		return fmt.Errorf("depthnet: run: %w", err)
	}
	return nil
}

// Resize tears down the session and tensors and rebuilds them at the new
// inference resolution. Expensive; intended for rare mode switches.
func (s *Session) Resize(size int) error {
	if s.closed {
		return errors.New("depthnet: session is closed")
	}
	if size <= 0 {
		return fmt.Errorf("depthnet: invalid inference size %d", size)
	}
	if size == s.size {
		return nil
	}
	s.destroyGraph()
	return s.build(size)
}

// Close destroys the session, tensors, and (if owned) the onnxruntime
// environment. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.destroyGraph()
	if s.ownsEnv {
		ort.DestroyEnvironment()
		s.ownsEnv = false
	}
	return nil
}

// isDimensionMismatch matches ORT errors like:
// "Got invalid dimensions for output: depth for the following indices index: 1 Got: 392 Expected: 518"
func isDimensionMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid dimensions") ||
		(strings.Contains(msg, "Got: ") && strings.Contains(msg, "Expected: "))
}
