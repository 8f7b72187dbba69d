package pipeline

import (
	"testing"
)

func constFrame(w, h int, v float32) []float32 {
	f := make([]float32, w*h)
	for i := range f {
		f[i] = v
	}
	return f
}

// TestWindowOrdering verifies age-indexed sampling over a partial fill.
func TestWindowOrdering(t *testing.T) {
	const w, h = 8, 8
	rw, err := NewRollingWindow(w, h)
	if err != nil {
		t.Fatalf("NewRollingWindow: %v", err)
	}

	const k = 12
	for i := 0; i < k; i++ {
		rw.AddFrame(constFrame(w, h, float32(i)+1))
	}

	if rw.Len() != k {
		t.Errorf("Len() = %d; want %d", rw.Len(), k)
	}
	if got := rw.Sample(0, 3, 3); got != float32(k) {
		t.Errorf("Sample(0) = %v; want %v (newest frame)", got, float32(k))
	}
	for age := 0; age < k; age++ {
		want := float32(k - age)
		if got := rw.Sample(age, 3, 3); got != want {
			t.Errorf("Sample(%d) = %v; want %v", age, got, want)
		}
	}
}

// TestWindowWraps verifies that after more than WindowSize insertions the
// oldest frames are overwritten and ages still index correctly.
func TestWindowWraps(t *testing.T) {
	const w, h = 4, 4
	rw, err := NewRollingWindow(w, h)
	if err != nil {
		t.Fatalf("NewRollingWindow: %v", err)
	}

	total := WindowSize + 7
	for i := 0; i < total; i++ {
		rw.AddFrame(constFrame(w, h, float32(i)+1))
	}

	if rw.Len() != WindowSize {
		t.Errorf("Len() = %d; want %d", rw.Len(), WindowSize)
	}
	for age := 0; age < WindowSize; age++ {
		want := float32(total - age)
		if got := rw.Sample(age, 0, 0); got != want {
			t.Errorf("Sample(%d) = %v; want %v", age, got, want)
		}
	}
}

// TestWindowOutOfRange verifies zero reads for bad ages and coordinates, and
// for slots never written.
func TestWindowOutOfRange(t *testing.T) {
	const w, h = 4, 4
	rw, err := NewRollingWindow(w, h)
	if err != nil {
		t.Fatalf("NewRollingWindow: %v", err)
	}
	rw.AddFrame(constFrame(w, h, 9))

	cases := []struct {
		name      string
		age, x, y int
	}{
		{"age at capacity", WindowSize, 0, 0},
		{"negative age", -1, 0, 0},
		{"x out of range", 0, w, 0},
		{"y out of range", 0, 0, h},
		{"negative x", 0, -1, 0},
		{"unwritten slot", 5, 1, 1},
	}
	for _, c := range cases {
		if got := rw.Sample(c.age, c.x, c.y); got != 0 {
			t.Errorf("%s: Sample(%d,%d,%d) = %v; want 0", c.name, c.age, c.x, c.y, got)
		}
	}
}

// TestWindowReset verifies Reset and Resize both discard history.
func TestWindowReset(t *testing.T) {
	rw, err := NewRollingWindow(4, 4)
	if err != nil {
		t.Fatalf("NewRollingWindow: %v", err)
	}
	for i := 0; i < WindowSize; i++ {
		rw.AddFrame(constFrame(4, 4, 5))
	}

	rw.Reset()
	if rw.Len() != 0 {
		t.Errorf("Len() after Reset = %d; want 0", rw.Len())
	}
	if got := rw.Sample(0, 1, 1); got != 0 {
		t.Errorf("Sample after Reset = %v; want 0", got)
	}

	rw.AddFrame(constFrame(4, 4, 5))
	if err := rw.Resize(8, 8); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if rw.Len() != 0 {
		t.Errorf("Len() after Resize = %d; want 0", rw.Len())
	}
	if got := rw.Sample(0, 7, 7); got != 0 {
		t.Errorf("Sample after Resize = %v; want 0", got)
	}
}
