package source

import (
	"image"
	"image/color"
	"testing"
)

func TestSwapHandoff(t *testing.T) {
	var s Swap

	// Nothing published yet.
	if f, fresh := s.Take(); f != nil || fresh {
		t.Errorf("Take before Publish = (%v,%v); want (nil,false)", f, fresh)
	}

	f1 := &Frame{W: 2, H: 2, Pix: make([]byte, 16)}
	if prev := s.Publish(f1); prev != nil {
		t.Errorf("first Publish returned %v; want nil", prev)
	}

	got, fresh := s.Take()
	if got != f1 || !fresh {
		t.Errorf("Take = (%p,%v); want (%p,true)", got, fresh, f1)
	}

	// The same frame is not fresh twice.
	got, fresh = s.Take()
	if got != f1 || fresh {
		t.Errorf("second Take = (%p,%v); want (%p,false)", got, fresh, f1)
	}

	// Publishing hands the previous buffer back to the producer.
	f2 := &Frame{W: 2, H: 2, Pix: make([]byte, 16)}
	if prev := s.Publish(f2); prev != f1 {
		t.Errorf("Publish returned %p; want previous frame %p", prev, f1)
	}
	if got, fresh = s.Take(); got != f2 || !fresh {
		t.Errorf("Take after republish = (%p,%v); want (%p,true)", got, fresh, f2)
	}
}

func TestStaticImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.SetRGBA(2, 1, color.RGBA{R: 11, G: 22, B: 33, A: 255})

	src := NewStaticImageFrom(img)
	defer src.Close()

	f1, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f1.W != 6 || f1.H != 4 {
		t.Errorf("frame = %dx%d; want 6x4", f1.W, f1.H)
	}

	// Next always returns the same still.
	f2, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f1 != f2 {
		t.Error("StaticImage should return the same frame every call")
	}

	dev, err := f1.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if r, g, b, _ := dev.At(2, 1); r != 11 || g != 22 || b != 33 {
		t.Errorf("pixel (2,1) = (%d,%d,%d); want (11,22,33)", r, g, b)
	}
}

func TestStaticImageSubimageOffset(t *testing.T) {
	// A non-zero-origin source must still produce a zero-origin frame.
	base := image.NewRGBA(image.Rect(0, 0, 10, 10))
	base.SetRGBA(5, 5, color.RGBA{R: 200, A: 255})
	sub := base.SubImage(image.Rect(4, 4, 8, 8)).(*image.RGBA)

	src := NewStaticImageFrom(sub)
	f, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.W != 4 || f.H != 4 {
		t.Fatalf("frame = %dx%d; want 4x4", f.W, f.H)
	}
	dev, err := f.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if r, _, _, _ := dev.At(1, 1); r != 200 {
		t.Errorf("pixel (1,1) = %d; want 200 (offset normalized away)", r)
	}
}
