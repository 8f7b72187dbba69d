package pipeline

import (
	"github.com/stevecastle/prism/device"
)

// WindowSize is the fixed capacity of the rolling depth history.
const WindowSize = 20

// RollingWindow is a circular history of the most recent raw depth frames.
// Exactly one slot is overwritten per insertion. Slots that have not been
// written since the last reset read as zero, so callers see degraded
// stabilization until the window completes its first lap. Pure data
// structure; it holds no per-pixel logic.
type RollingWindow struct {
	w, h   int
	slots  [WindowSize]*device.Plane
	cursor int
	filled int
}

// NewRollingWindow allocates all slots at w×h up front.
func NewRollingWindow(w, h int) (*RollingWindow, error) {
	rw := &RollingWindow{w: w, h: h}
	for i := range rw.slots {
		p, err := device.NewPlane(w, h)
		if err != nil {
			return nil, err
		}
		rw.slots[i] = p
	}
	return rw, nil
}

// AddFrame copies frame into the current write slot and advances the cursor.
// frame must hold w*h values.
func (rw *RollingWindow) AddFrame(frame []float32) {
	copy(rw.slots[rw.cursor].Data, frame)
	rw.cursor = (rw.cursor + 1) % WindowSize
	if rw.filled < WindowSize {
		rw.filled++
	}
}

// Sample returns the stored depth at (x,y) in the frame inserted age
// insertions ago (age 0 is the newest). Out-of-range coordinates or
// ages >= WindowSize return 0.
func (rw *RollingWindow) Sample(age, x, y int) float32 {
	if age < 0 || age >= WindowSize {
		return 0
	}
	if x < 0 || y < 0 || x >= rw.w || y >= rw.h {
		return 0
	}
	slot := (rw.cursor - 1 - age + WindowSize) % WindowSize
	return rw.slots[slot].Data[y*rw.w+x]
}

// Len returns how many frames have been inserted since the last reset,
// capped at WindowSize.
func (rw *RollingWindow) Len() int {
	return rw.filled
}

// Width returns the frame width of the window slots.
func (rw *RollingWindow) Width() int { return rw.w }

// Height returns the frame height of the window slots.
func (rw *RollingWindow) Height() int { return rw.h }

// Reset discards all history. Every slot reads as zero afterwards.
func (rw *RollingWindow) Reset() {
	for _, s := range rw.slots {
		s.Zero()
	}
	rw.cursor = 0
	rw.filled = 0
}

// Resize reallocates every slot for a new resolution and discards history;
// frames stored at the old resolution cannot be resampled.
func (rw *RollingWindow) Resize(w, h int) error {
	for _, s := range rw.slots {
		if err := s.Resize(w, h); err != nil {
			return err
		}
		s.Zero()
	}
	rw.w, rw.h = w, h
	rw.cursor = 0
	rw.filled = 0
	return nil
}
