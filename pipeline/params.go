package pipeline

// FilterParams are the runtime-tunable scalars of the temporal filter. All
// values are in model depth units unless noted. Out-of-range values are
// clamped by Clamp.
type FilterParams struct {
	// Depth delta treated as a hard edge. Range [1,10].
	EdgeThreshold float32
	// Historical depth delta treated as motion. Range [1,8].
	MotionThreshold float32
	// Exponential age decay constant, in frames. Range [1,5].
	TemporalDecay float32
	// Depth difference under which samples count as the same surface. Range [0.5,5].
	SimilarityDelta float32
	// Falloff sigma beyond the similarity delta. Range [1,10].
	SimilaritySigma float32
	// Weighted variance above which the blend falls back toward the raw
	// frame. Range [0.5,5].
	VarianceThreshold float32
	// Neighborhood radius for edge/motion search, in pixels. Range [0.5,3].
	SpatialRadius float32
}

// DefaultFilterParams returns the tuning used when nothing is configured.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		EdgeThreshold:     4.0,
		MotionThreshold:   3.0,
		TemporalDecay:     2.5,
		SimilarityDelta:   1.5,
		SimilaritySigma:   4.0,
		VarianceThreshold: 2.0,
		SpatialRadius:     1.5,
	}
}

func clampF(v, a, b float32) float32 {
	if v < a {
		return a
	}
	if v > b {
		return b
	}
	return v
}

// Clamp forces every scalar into its documented range.
func (p *FilterParams) Clamp() {
	p.EdgeThreshold = clampF(p.EdgeThreshold, 1, 10)
	p.MotionThreshold = clampF(p.MotionThreshold, 1, 8)
	p.TemporalDecay = clampF(p.TemporalDecay, 1, 5)
	p.SimilarityDelta = clampF(p.SimilarityDelta, 0.5, 5)
	p.SimilaritySigma = clampF(p.SimilaritySigma, 1, 10)
	p.VarianceThreshold = clampF(p.VarianceThreshold, 0.5, 5)
	p.SpatialRadius = clampF(p.SpatialRadius, 0.5, 3)
}
