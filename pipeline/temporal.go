package pipeline

import (
	"math"

	"github.com/stevecastle/prism/device"
)

const (
	// Confidence above which the raw depth is passed through untouched.
	// Prevents ghosting across hard edges and fast motion.
	confidenceCutoff = 0.75

	// Frames examined by the edge/motion scores.
	scoreFrames = 4

	// Minimum history length of the adaptive blend; the maximum is the
	// full window.
	minHistory = 4

	// Extra age penalty applied per frame when motion was detected.
	motionSuppression = 0.5

	// Below this total weight the blend is considered empty.
	weightFloor = 1e-6
)

// temporalFilterFrame runs the confidence-gated adaptive blend over every
// pixel of cur, writing into dst. The window must already contain cur as its
// newest frame. Purely data-parallel; pixels never read each other's output.
func temporalFilterFrame(dst, cur *device.Plane, win *RollingWindow, p FilterParams) {
	w, h := cur.W, cur.H
	radius := int(p.SpatialRadius + 0.5)
	if radius < 1 {
		radius = 1
	}
	device.DispatchRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				dst.Data[y*w+x] = filterPixel(cur.Data[y*w+x], x, y, radius, win, p)
			}
		}
	})
}

func filterPixel(d0 float32, x, y, radius int, win *RollingWindow, p FilterParams) float32 {
	// Zero depth means "no data"; never smooth it.
	if d0 == 0 {
		return 0
	}

	edge, motion := scorePixel(d0, x, y, radius, win, p)
	conf := edge
	if motion > conf {
		conf = motion
	}
	if conf >= confidenceCutoff {
		// Fast path: trust the current frame outright.
		return d0
	}

	// Shorter history at high confidence, longer at low confidence.
	histLen := minHistory + int((1-conf)*float32(WindowSize-minHistory)+0.5)
	if histLen > WindowSize {
		histLen = WindowSize
	}

	// Tighter similarity gate as confidence rises.
	delta := p.SimilarityDelta * (1 - 0.5*conf)

	var wSum, mSum, m2Sum float32
	for age := 0; age < histLen; age++ {
		s := win.Sample(age, x, y)
		if s == 0 {
			continue
		}
		wAge := expf(-float32(age) / p.TemporalDecay)
		wMotion := expf(-motion * motionSuppression * float32(age))
		diff := absf(s - d0)
		wSim := float32(1)
		if diff > delta {
			wSim = expf(-(diff - delta) / p.SimilaritySigma)
		}
		wgt := wAge * wMotion * wSim
		wSum += wgt
		mSum += wgt * s
		m2Sum += wgt * s * s
	}
	if wSum < weightFloor {
		return d0
	}

	mean := mSum / wSum
	variance := m2Sum/wSum - mean*mean
	if variance < 0 {
		variance = 0
	}

	result := mean
	if variance > p.VarianceThreshold {
		// Stability fallback: the history disagrees with itself, so lean back
		// toward the raw frame proportionally to the excess.
		excess := (variance - p.VarianceThreshold) / p.VarianceThreshold
		t := excess / (1 + excess)
		result += (d0 - result) * t
	}

	// Anti-ghosting guard: never drift further from the raw value than a
	// confidence-scaled maximum.
	maxDev := p.EdgeThreshold * (1 - conf)
	if result > d0+maxDev {
		result = d0 + maxDev
	} else if result < d0-maxDev {
		result = d0 - maxDev
	}
	return result
}

// scorePixel searches a (2r+1)² neighborhood across the most recent frames
// for depth discontinuities. The edge score sees every recent frame including
// the current one; the motion score sees only historical frames and responds
// quadratically.
func scorePixel(d0 float32, x, y, radius int, win *RollingWindow, p FilterParams) (edge, motion float32) {
	var motionRaw float32
	for age := 0; age < scoreFrames; age++ {
		decay := expf(-float32(age) / p.TemporalDecay)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				n := win.Sample(age, x+dx, y+dy)
				if n == 0 {
					continue
				}
				diff := absf(d0 - n)
				e := diff / p.EdgeThreshold * decay
				if e > 1 {
					e = 1
				}
				if e > edge {
					edge = e
				}
				if age > 0 {
					m := diff / p.MotionThreshold * decay
					if m > 1 {
						m = 1
					}
					if m > motionRaw {
						motionRaw = m
					}
				}
			}
		}
	}
	motion = motionRaw * motionRaw
	return edge, motion
}

func expf(v float32) float32 {
	return float32(math.Exp(float64(v)))
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
