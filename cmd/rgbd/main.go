// rgbd converts color images into packed side-by-side RGB+Depth images using
// a frozen ONNX monocular-depth model.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	resize "github.com/nfnt/resize"

	"github.com/stevecastle/prism/appconfig"
	"github.com/stevecastle/prism/cache"
	"github.com/stevecastle/prism/depthnet"
	"github.com/stevecastle/prism/device"
	"github.com/stevecastle/prism/pipeline"
	"github.com/stevecastle/prism/source"
)

func main() {
	cfg, _, cfgErr := appconfig.Load()
	if cfgErr != nil {
		log.Printf("warning: could not load config, using defaults: %v", cfgErr)
		cfg.DepthNet.InferenceSize = 518
		cfg.CachePath = appconfig.DefaultCachePath()
	}
	def := cfg.Filter
	def.ClampRanges()

	inPath := flag.String("in", "", "input color image path (PNG/JPEG/GIF/WEBP); additional inputs may follow as arguments")
	outPath := flag.String("out", "", "output PNG path, or a directory in batch mode (default: <input>_rgbd.png)")
	modelPath := flag.String("model", cfg.DepthNet.ModelPath, "path to the depth model (.onnx)")
	ortLib := flag.String("ort-lib", cfg.DepthNet.ORTSharedLibraryPath, "path to the onnxruntime shared library")
	size := flag.Int("size", cfg.DepthNet.InferenceSize, "square inference resolution (floor-adjusted to a multiple of 14)")
	swap := flag.Bool("swap", cfg.ChannelSwap, "swap R and B channels of the source")
	hq := flag.Bool("hq", cfg.HighQuality, "use windowed-resample + sharpening preprocessing")
	border := flag.Float64("border", 0, "central crop fraction applied during preprocessing (0..0.9)")
	passes := flag.Int("passes", 1, "times to re-run each frame through the rolling window (warms temporal stabilization for stills)")
	noCache := flag.Bool("no-cache", false, "skip the conversion index")

	edge := flag.Float64("edge", float64(def.EdgeThreshold), "edge threshold (1..10)")
	motion := flag.Float64("motion", float64(def.MotionThreshold), "motion threshold (1..8)")
	decay := flag.Float64("decay", float64(def.TemporalDecay), "temporal decay in frames (1..5)")
	simDelta := flag.Float64("sim-delta", float64(def.SimilarityDelta), "similarity delta (0.5..5)")
	simSigma := flag.Float64("sim-sigma", float64(def.SimilaritySigma), "similarity sigma (1..10)")
	variance := flag.Float64("variance", float64(def.VarianceThreshold), "variance threshold (0.5..5)")
	radius := flag.Float64("radius", float64(def.SpatialRadius), "spatial radius in px (0.5..3)")

	maxDim := flag.Int("max-dim", 4096, "pre-downscale inputs whose longest side exceeds this (0 disables)")

	flag.Parse()

	inputs := flag.Args()
	if *inPath != "" {
		inputs = append([]string{*inPath}, inputs...)
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rgbd --in <image> [--out out.png] [--model depth.onnx] [more images...]")
		os.Exit(2)
	}
	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "no depth model configured; pass --model or set depthNet.modelPath in config.json")
		os.Exit(2)
	}

	params := pipeline.FilterParams{
		EdgeThreshold:     float32(*edge),
		MotionThreshold:   float32(*motion),
		TemporalDecay:     float32(*decay),
		SimilarityDelta:   float32(*simDelta),
		SimilaritySigma:   float32(*simSigma),
		VarianceThreshold: float32(*variance),
		SpatialRadius:     float32(*radius),
	}
	params.Clamp()

	opts := depthnet.DefaultOptions()
	opts.ORTSharedLibraryPath = *ortLib
	engine, err := depthnet.Open(*modelPath, pipeline.AlignInferenceSize(*size), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open depth model: %v\n", err)
		os.Exit(1)
	}

	pipe, err := pipeline.New(engine, pipeline.Config{
		InferenceSize: *size,
		HighQuality:   *hq,
		Border:        float32(*border),
		Params:        params,
	})
	if err != nil {
		engine.Close()
		fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipe.Dispose()

	var index *cache.Index
	if !*noCache && cfg.CachePath != "" {
		if index, err = cache.Open(cfg.CachePath); err != nil {
			log.Printf("warning: conversion index unavailable: %v", err)
			index = nil
		} else {
			defer index.Close()
		}
	}
	fingerprint := fmt.Sprintf("hq=%v|swap=%v|border=%.3f|passes=%d|%+v", *hq, *swap, *border, *passes, params)

	failed := 0
	for _, in := range inputs {
		out := outputPathFor(in, *outPath, len(inputs) > 1)
		if err := convertOne(pipe, index, in, out, *swap, *passes, *maxDim, fingerprint); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func convertOne(pipe *pipeline.Pipeline, index *cache.Index, inPath, outPath string, swap bool, passes, maxDim int, fingerprint string) error {
	var key string
	if index != nil {
		k, err := cache.Key(inPath, pipe.InferenceSize(), fingerprint)
		if err != nil {
			log.Printf("warning: cache key for %s: %v", inPath, err)
		} else {
			key = k
			if cached, ok, lookErr := index.Lookup(key); lookErr != nil {
				log.Printf("warning: cache lookup: %v", lookErr)
			} else if ok {
				fmt.Printf("Cached %s -> %s\n", inPath, cached)
				return nil
			}
		}
	}

	src, err := source.NewStaticImage(inPath)
	if err != nil {
		return err
	}
	frame, err := src.Next()
	if err != nil {
		return err
	}
	img, err := frame.Image()
	if err != nil {
		return err
	}
	img = downscale(img, maxDim)

	// Stills have no true history; re-feeding the same frame fills the
	// rolling window so the temporal filter converges.
	if passes < 1 {
		passes = 1
	}
	pipe.ResetHistory()
	var result *device.Image
	for i := 0; i < passes; i++ {
		if result, err = pipe.ComputeDepth(img, swap); err != nil {
			return err
		}
	}

	if err := savePNG(outPath, toImage(result)); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%dx%d -> %dx%d RGBD)\n", outPath, img.W, img.H, result.W, result.H)

	if index != nil && key != "" {
		if err := index.Store(key, outPath); err != nil {
			log.Printf("warning: cache store: %v", err)
		}
	}
	return nil
}

func outputPathFor(inPath, outFlag string, batch bool) string {
	base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath)) + "_rgbd.png"
	if outFlag == "" {
		return filepath.Join(filepath.Dir(inPath), base)
	}
	if batch {
		return filepath.Join(outFlag, base)
	}
	if info, err := os.Stat(outFlag); err == nil && info.IsDir() {
		return filepath.Join(outFlag, base)
	}
	return outFlag
}

// downscale shrinks very large inputs before the pipeline touches them.
func downscale(img *device.Image, maxDim int) *device.Image {
	if maxDim <= 0 || (img.W <= maxDim && img.H <= maxDim) {
		return img
	}
	w, h := img.W, img.H
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	small := resize.Resize(uint(w), uint(h), toImage(img), resize.Bicubic)
	rgba, ok := small.(*image.RGBA)
	if !ok {
		b := small.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				rgba.Set(x, y, small.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	wrapped, err := device.Wrap(rgba.Bounds().Dx(), rgba.Bounds().Dy(), rgba.Pix)
	if err != nil {
		return img
	}
	log.Printf("downscaled %dx%d -> %dx%d", img.W, img.H, wrapped.W, wrapped.H)
	return wrapped
}

func toImage(img *device.Image) *image.RGBA {
	return &image.RGBA{
		Pix:    img.Pix,
		Stride: img.W * 4,
		Rect:   image.Rect(0, 0, img.W, img.H),
	}
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(f, img)
}
