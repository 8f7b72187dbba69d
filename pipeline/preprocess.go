package pipeline

import (
	"github.com/stevecastle/prism/device"
)

// ModelStride is the patch stride of the depth model; the inference
// resolution must be a multiple of it.
const ModelStride = 14

const (
	// Unsharp-mask strength of the quality preprocessing path.
	sharpenAmount = 0.4
	// Fixed brightness gain of the quality preprocessing path.
	brightnessGain = 1.05
)

// AlignInferenceSize floor-rounds size to the nearest multiple of
// ModelStride, with a minimum of one stride.
func AlignInferenceSize(size int) int {
	size = size / ModelStride * ModelStride
	if size < ModelStride {
		size = ModelStride
	}
	return size
}

// mapUV shrinks a normalized coordinate toward the center by the border
// fraction, cropping/zooming the sampled region.
func mapUV(u, border float32) float32 {
	if border <= 0 {
		return u
	}
	return border/2 + u*(1-border)
}

// preprocessNearest fills dst (a [3,size,size] tensor, channel-first, values
// in [0,1]) from src using nearest-neighbor sampling. Deterministic; this is
// the reference path. Writes in place and never allocates.
func preprocessNearest(dst []float32, size int, src *device.Image, swap bool, border float32) {
	plane := size * size
	srcW, srcH := src.W, src.H
	inv := 1 / float32(size)
	device.DispatchRows(size, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := mapUV((float32(y)+0.5)*inv, border)
			sy := int(v * float32(srcH))
			if sy >= srcH {
				sy = srcH - 1
			}
			for x := 0; x < size; x++ {
				u := mapUV((float32(x)+0.5)*inv, border)
				sx := int(u * float32(srcW))
				if sx >= srcW {
					sx = srcW - 1
				}
				r, g, b, _ := src.At(sx, sy)
				if swap {
					r, b = b, r
				}
				i := y*size + x
				dst[i] = float32(r) / 255
				dst[plane+i] = float32(g) / 255
				dst[2*plane+i] = float32(b) / 255
			}
		}
	})
}

// preprocessQuality fills dst like preprocessNearest but resamples with a
// Catmull-Rom window into the reused scratch planes, then applies a 3x3
// unsharp mask and a fixed brightness gain. Slower; intended for file mode.
func preprocessQuality(dst []float32, size int, src *device.Image, swap bool, border float32, scratch *[3]*device.Plane) {
	srcW, srcH := src.W, src.H
	inv := 1 / float32(size)

	// Windowed resample into the scratch planes.
	device.DispatchRows(size, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			fv := mapUV((float32(y)+0.5)*inv, border)*float32(srcH) - 0.5
			for x := 0; x < size; x++ {
				fu := mapUV((float32(x)+0.5)*inv, border)*float32(srcW) - 0.5
				r, g, b := sampleCatmullRom(src, fu, fv)
				i := y*size + x
				scratch[0].Data[i] = r
				scratch[1].Data[i] = g
				scratch[2].Data[i] = b
			}
		}
	})

	// Unsharp + gain into the tensor.
	plane := size * size
	device.DispatchRows(size, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size; x++ {
				i := y*size + x
				for c := 0; c < 3; c++ {
					sp := scratch[c]
					center := sp.Data[i]
					var sum float32
					for dy := -1; dy <= 1; dy++ {
						for dx := -1; dx <= 1; dx++ {
							sum += planeAtClamped(sp, x+dx, y+dy)
						}
					}
					blur := sum / 9
					v := (center + sharpenAmount*(center-blur)) * brightnessGain
					if v < 0 {
						v = 0
					} else if v > 1 {
						v = 1
					}
					ch := c
					if swap && c == 0 {
						ch = 2
					} else if swap && c == 2 {
						ch = 0
					}
					dst[ch*plane+i] = v
				}
			}
		}
	})
}

func planeAtClamped(p *device.Plane, x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= p.W {
		x = p.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.H {
		y = p.H - 1
	}
	return p.Data[y*p.W+x]
}

// sampleCatmullRom reads a 4x4 tap window around the continuous source
// coordinate (fu,fv) and returns unit-range RGB.
func sampleCatmullRom(src *device.Image, fu, fv float32) (r, g, b float32) {
	x0 := int(floorf(fu))
	y0 := int(floorf(fv))
	tx := fu - float32(x0)
	ty := fv - float32(y0)

	var wx, wy [4]float32
	for i := 0; i < 4; i++ {
		wx[i] = catmullRomWeight(float32(i-1) - tx)
		wy[i] = catmullRomWeight(float32(i-1) - ty)
	}

	var sr, sg, sb, sw float32
	for j := 0; j < 4; j++ {
		sy := clampI(y0-1+j, 0, src.H-1)
		for i := 0; i < 4; i++ {
			sx := clampI(x0-1+i, 0, src.W-1)
			w := wx[i] * wy[j]
			if w == 0 {
				continue
			}
			pr, pg, pb, _ := src.At(sx, sy)
			sr += w * float32(pr)
			sg += w * float32(pg)
			sb += w * float32(pb)
			sw += w
		}
	}
	if sw != 0 {
		sr /= sw
		sg /= sw
		sb /= sw
	}
	return clampF01(sr / 255), clampF01(sg / 255), clampF01(sb / 255)
}

// catmullRomWeight is the Catmull-Rom kernel (a = -0.5).
func catmullRomWeight(t float32) float32 {
	if t < 0 {
		t = -t
	}
	if t <= 1 {
		return ((1.5*t-2.5)*t)*t + 1
	}
	if t < 2 {
		return ((-0.5*t+2.5)*t-4)*t + 2
	}
	return 0
}

func floorf(v float32) float32 {
	iv := float32(int(v))
	if v < 0 && iv != v {
		iv--
	}
	return iv
}

func clampI(v, a, b int) int {
	if v < a {
		return a
	}
	if v > b {
		return b
	}
	return v
}

func clampF01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
