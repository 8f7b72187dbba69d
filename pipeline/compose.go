package pipeline

import (
	"github.com/stevecastle/prism/device"
)

// rangeEpsilon is the floor on the depth range used by normalization. Frames
// flatter than this render as mid-gray instead of dividing by zero.
const rangeEpsilon = 1e-6

// composeFrame packs color (full resolution) and depth (inference
// resolution) into out, which must be sized 2W×H. Columns [0,W) carry the
// color pixels verbatim (optionally channel-swapped); columns [W,2W) carry
// the depth min/max-normalized to [0,255], nearest-upsampled, broadcast to
// R=G=B with alpha 255.
func composeFrame(out *device.Image, src *device.Image, depth *device.Plane, swap bool) {
	w, h := src.W, src.H
	dw, dh := depth.W, depth.H

	// Host-side scalar reduction, once per frame.
	min, max := device.MinMax(depth.Data)
	rng := max - min
	flat := rng < rangeEpsilon

	device.DispatchRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			// Left half: color verbatim.
			srcRow := src.Pix[y*w*4 : (y+1)*w*4]
			dstRow := out.Pix[y*out.W*4:]
			for x := 0; x < w; x++ {
				r := srcRow[x*4]
				g := srcRow[x*4+1]
				b := srcRow[x*4+2]
				if swap {
					r, b = b, r
				}
				i := x * 4
				dstRow[i] = r
				dstRow[i+1] = g
				dstRow[i+2] = b
				dstRow[i+3] = 255
			}

			// Right half: normalized depth, nearest-upsampled.
			dy := y * dh / h
			for x := 0; x < w; x++ {
				var v byte
				if flat {
					v = 128
				} else {
					dx := x * dw / w
					n := (depth.Data[dy*dw+dx] - min) / rng
					if n < 0 {
						n = 0
					} else if n > 1 {
						n = 1
					}
					v = byte(n*255 + 0.5)
				}
				i := (w + x) * 4
				dstRow[i] = v
				dstRow[i+1] = v
				dstRow[i+2] = v
				dstRow[i+3] = 255
			}
		}
	})
}
