package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/stevecastle/prism/platform"
)

// FilterSettings holds the temporal filter scalars. Each value is clamped to
// its documented range on load.
type FilterSettings struct {
	// Depth delta treated as a hard edge, in model depth units. Range [1,10].
	EdgeThreshold float64 `json:"edgeThreshold"`
	// Historical depth delta treated as motion. Range [1,8].
	MotionThreshold float64 `json:"motionThreshold"`
	// Exponential age decay constant, in frames. Range [1,5].
	TemporalDecay float64 `json:"temporalDecay"`
	// Depth difference under which samples count as the same surface. Range [0.5,5].
	SimilarityDelta float64 `json:"similarityDelta"`
	// Falloff sigma beyond the similarity delta. Range [1,10].
	SimilaritySigma float64 `json:"similaritySigma"`
	// Weighted variance above which the blend falls back to the raw frame. Range [0.5,5].
	VarianceThreshold float64 `json:"varianceThreshold"`
	// Neighborhood radius for edge/motion search, in pixels. Range [0.5,3].
	SpatialRadius float64 `json:"spatialRadius"`
}

// Config holds application configuration including the depth model location,
// inference settings, and temporal filter tuning.
type Config struct {
	// Depth model settings
	DepthNet struct {
		ModelPath            string `json:"modelPath"`
		ORTSharedLibraryPath string `json:"ortSharedLibraryPath"`
		// Square inference resolution; auto-adjusted down to a multiple of 14.
		InferenceSize int `json:"inferenceSize"`
	} `json:"depthNet"`

	// Swap R and B channels of the source (for BGR frame producers)
	ChannelSwap bool `json:"channelSwap"`

	// Use the windowed-resample + sharpening preprocessing path
	HighQuality bool `json:"highQuality"`

	Filter FilterSettings `json:"filter"`

	// Path to the conversion index database
	CachePath string `json:"cachePath"`

	// Stable identifier for this installation, used in log lines
	InstanceID string `json:"instanceId"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultCachePath returns the default conversion index path.
// Uses the platform-specific cache directory.
func DefaultCachePath() string {
	return filepath.Join(platform.GetCacheDir(), "index.db")
}

// DefaultModelPath returns the default depth model path.
// Uses the platform-specific data directory.
func DefaultModelPath() string {
	return filepath.Join(platform.GetDataDir(), "depth.onnx")
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// DefaultFilterSettings returns the filter scalars used when none are
// configured.
func DefaultFilterSettings() FilterSettings {
	return FilterSettings{
		EdgeThreshold:     4.0,
		MotionThreshold:   3.0,
		TemporalDecay:     2.5,
		SimilarityDelta:   1.5,
		SimilaritySigma:   4.0,
		VarianceThreshold: 2.0,
		SpatialRadius:     1.5,
	}
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	c := Config{
		ChannelSwap: false,
		HighQuality: false,
		Filter:      DefaultFilterSettings(),
		CachePath:   DefaultCachePath(),
		InstanceID:  uuid.New().String(),
	}
	c.DepthNet.ModelPath = DefaultModelPath()
	c.DepthNet.InferenceSize = 518
	return c
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampRanges forces every filter scalar into its documented range. Zero
// values (missing from the config file) are replaced with the default first.
func (f *FilterSettings) ClampRanges() {
	def := DefaultFilterSettings()
	if f.EdgeThreshold == 0 {
		f.EdgeThreshold = def.EdgeThreshold
	}
	if f.MotionThreshold == 0 {
		f.MotionThreshold = def.MotionThreshold
	}
	if f.TemporalDecay == 0 {
		f.TemporalDecay = def.TemporalDecay
	}
	if f.SimilarityDelta == 0 {
		f.SimilarityDelta = def.SimilarityDelta
	}
	if f.SimilaritySigma == 0 {
		f.SimilaritySigma = def.SimilaritySigma
	}
	if f.VarianceThreshold == 0 {
		f.VarianceThreshold = def.VarianceThreshold
	}
	if f.SpatialRadius == 0 {
		f.SpatialRadius = def.SpatialRadius
	}
	f.EdgeThreshold = clampRange(f.EdgeThreshold, 1, 10)
	f.MotionThreshold = clampRange(f.MotionThreshold, 1, 8)
	f.TemporalDecay = clampRange(f.TemporalDecay, 1, 5)
	f.SimilarityDelta = clampRange(f.SimilarityDelta, 0.5, 5)
	f.SimilaritySigma = clampRange(f.SimilaritySigma, 1, 10)
	f.VarianceThreshold = clampRange(f.VarianceThreshold, 0.5, 5)
	f.SpatialRadius = clampRange(f.SpatialRadius, 0.5, 3)
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() (string, error) {
	configDir := DefaultConfigDir()
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the config from disk and updates the in-memory config. It returns the config and path.
// If the config file doesn't exist, it creates one with default values.
func Load() (Config, string, error) {
	path, err := getConfigPath()
	if err != nil {
		return Config{}, "", err
	}

	// Ensure config directory exists
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %v", configDir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist - create it with defaults
			def := defaultConfig()
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %v", saveErr)
			}
			Set(def)
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	// Merge defaults for any missing fields
	def := defaultConfig()
	needsSave := false

	if c.DepthNet.ModelPath == "" {
		c.DepthNet.ModelPath = def.DepthNet.ModelPath
	}
	if c.DepthNet.InferenceSize == 0 {
		c.DepthNet.InferenceSize = def.DepthNet.InferenceSize
	}
	if c.CachePath == "" {
		c.CachePath = def.CachePath
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()
		needsSave = true
	}
	c.Filter.ClampRanges()

	// Save config if we had to fill in critical missing fields
	if needsSave {
		if _, saveErr := Save(c); saveErr != nil {
			// Log but don't fail - we can continue with the in-memory config
			fmt.Printf("Warning: failed to save updated config: %v\n", saveErr)
		}
	}

	Set(c)
	return c, path, nil
}

// Save writes the config to disk, creating the directory as needed. Returns the path.
// Unknown keys already present in the file are preserved via a deep JSON merge.
func Save(c Config) (string, error) {
	path, err := getConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %v", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}
	updated, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %v", err)
	}
	var updatedMap map[string]json.RawMessage
	if err := json.Unmarshal(updated, &updatedMap); err != nil {
		return path, fmt.Errorf("failed to remarshal config: %v", err)
	}
	deepMergeJSON(base, updatedMap)
	out, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %v", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %v", err)
	}
	return path, nil
}
