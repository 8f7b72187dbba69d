//go:build !cgo
// +build !cgo

// Package depthnet wraps a frozen monocular-depth ONNX model.
// This is a stub file for non-CGO builds where ONNX Runtime is not available.
package depthnet

import (
	"errors"
)

// ErrCGORequired is returned when depth inference is attempted without CGO support.
var ErrCGORequired = errors.New("depthnet requires CGO support; rebuild with CGO_ENABLED=1")

// ErrShapeMismatch indicates the model's output shape does not match the
// configured inference resolution.
var ErrShapeMismatch = errors.New("depthnet: model output shape does not match inference size")

// Options configures how the depth session is created.
type Options struct {
	ORTSharedLibraryPath string
	InputName            string
	OutputName           string
}

// DefaultOptions returns default Options.
func DefaultOptions() Options {
	return Options{
		InputName:  "image",
		OutputName: "depth",
	}
}

// Session is unavailable without CGO.
type Session struct{}

// Open returns an error indicating CGO is required.
func Open(modelPath string, size int, opts Options) (*Session, error) {
	return nil, ErrCGORequired
}

// Size returns 0 in non-CGO builds.
func (s *Session) Size() int { return 0 }

// InputData returns nil in non-CGO builds.
func (s *Session) InputData() []float32 { return nil }

// OutputData returns nil in non-CGO builds.
func (s *Session) OutputData() []float32 { return nil }

// Run returns an error indicating CGO is required.
func (s *Session) Run() error { return ErrCGORequired }

// Resize returns an error indicating CGO is required.
func (s *Session) Resize(size int) error { return ErrCGORequired }

// Close is a no-op in non-CGO builds.
func (s *Session) Close() error { return nil }
