// Package config loads the daemon configuration from a JSON file and merges
// persisted setting overrides on top of it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

// MaxFileSize bounds the configuration file.
const MaxFileSize = 1 * 1024 * 1024

// DataDirName is the per-user directory below $HOME.
const DataDirName = ".ishara"

var (
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid configuration")
	// ErrUnknownSetting is returned for override keys that cannot be changed at runtime.
	ErrUnknownSetting = errors.New("unknown setting")
)

// Config is the daemon configuration.
type Config struct {
	ModelPath string `json:"model_path"`

	CameraID  int    `json:"camera_id"`
	VideoFile string `json:"video_file,omitempty"` // replaces the camera when set

	Threshold       float64 `json:"threshold"`
	MinAgreement    int     `json:"min_agreement"`
	MotionThreshold float64 `json:"motion_threshold"`

	MaxHands               int     `json:"max_hands"`
	MinDetectionConfidence float64 `json:"min_detection_confidence"`
	MinTrackingConfidence  float64 `json:"min_tracking_confidence"`

	ListenAddr   string `json:"listen_addr"`
	StaticDir    string `json:"static_dir,omitempty"`
	PluginDir    string `json:"plugin_dir"`
	DBPath       string `json:"db_path"`
	SpeakTimeout string `json:"speak_timeout"` // duration string like "5s"

	Debug bool `json:"debug,omitempty"`
}

// DataDir returns ~/.ishara, or .ishara when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDirName
	}
	return filepath.Join(home, DataDirName)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	dir := DataDir()
	det := detector.DefaultConfig()
	g := gate.DefaultConfig()
	return Config{
		ModelPath:              filepath.Join(dir, "models", "model.json"),
		CameraID:               0,
		Threshold:              g.Threshold,
		MinAgreement:           g.MinAgreement,
		MotionThreshold:        1.0,
		MaxHands:               det.MaxHands,
		MinDetectionConfidence: det.MinConfidence,
		MinTrackingConfidence:  det.MinTrackingConf,
		ListenAddr:             "127.0.0.1:8080",
		PluginDir:              filepath.Join(dir, "plugins"),
		DBPath:                 filepath.Join(dir, "ishara.db"),
		SpeakTimeout:           "5s",
	}
}

// LoadFile reads a JSON config. Fields missing from the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating parent directories.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}

func unit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalid, name, v)
	}
	return nil
}

// Validate checks ranges and required fields.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model_path is required", ErrInvalid)
	}
	if c.CameraID < 0 {
		return fmt.Errorf("%w: camera_id must be non-negative, got %d", ErrInvalid, c.CameraID)
	}
	if err := unit("threshold", c.Threshold); err != nil {
		return err
	}
	if c.MinAgreement < 1 {
		return fmt.Errorf("%w: min_agreement must be at least 1, got %d", ErrInvalid, c.MinAgreement)
	}
	if math.IsNaN(c.MotionThreshold) || c.MotionThreshold <= 0 || c.MotionThreshold > 100 {
		return fmt.Errorf("%w: motion_threshold must be in (0, 100], got %v", ErrInvalid, c.MotionThreshold)
	}
	if c.MaxHands < 1 {
		return fmt.Errorf("%w: max_hands must be at least 1, got %d", ErrInvalid, c.MaxHands)
	}
	if err := unit("min_detection_confidence", c.MinDetectionConfidence); err != nil {
		return err
	}
	if err := unit("min_tracking_confidence", c.MinTrackingConfidence); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}
	if c.SpeakTimeout != "" {
		d, err := time.ParseDuration(c.SpeakTimeout)
		if err != nil {
			return fmt.Errorf("%w: speak_timeout %q: %w", ErrInvalid, c.SpeakTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: speak_timeout must be positive, got %v", ErrInvalid, d)
		}
	}
	return nil
}

// GateConfig returns the stability gate settings.
func (c Config) GateConfig() gate.Config {
	return gate.Config{Threshold: c.Threshold, MinAgreement: c.MinAgreement}
}

// DetectorConfig returns the hand detector settings.
func (c Config) DetectorConfig() detector.Config {
	return detector.Config{
		MaxHands:        c.MaxHands,
		MinConfidence:   c.MinDetectionConfidence,
		MinTrackingConf: c.MinTrackingConfidence,
	}
}

// SpeakTimeoutDuration returns the plugin timeout, 5s when unset.
func (c Config) SpeakTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SpeakTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// settable lists the keys that may be overridden at runtime, with their setters.
var settable = map[string]func(c *Config, v string) error{
	"threshold": func(c *Config, v string) (err error) {
		c.Threshold, err = strconv.ParseFloat(v, 64)
		return err
	},
	"min_agreement": func(c *Config, v string) (err error) {
		c.MinAgreement, err = strconv.Atoi(v)
		return err
	},
	"motion_threshold": func(c *Config, v string) (err error) {
		c.MotionThreshold, err = strconv.ParseFloat(v, 64)
		return err
	},
	"camera_id": func(c *Config, v string) (err error) {
		c.CameraID, err = strconv.Atoi(v)
		return err
	},
	"model_path": func(c *Config, v string) error {
		c.ModelPath = v
		return nil
	},
}

// SettableKeys returns the runtime-overridable keys in sorted order.
func SettableKeys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplySettings returns a copy of c with the overrides applied and validated.
// c is unchanged on error.
func (c Config) ApplySettings(values map[string]string) (Config, error) {
	out := c
	for _, k := range sortedKeys(values) {
		set, ok := settable[k]
		if !ok {
			return c, fmt.Errorf("%w: %q", ErrUnknownSetting, k)
		}
		if err := set(&out, values[k]); err != nil {
			return c, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, k, values[k], err)
		}
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// Settings returns the current values of the settable keys.
func (c Config) Settings() map[string]string {
	return map[string]string{
		"threshold":        strconv.FormatFloat(c.Threshold, 'g', -1, 64),
		"min_agreement":    strconv.Itoa(c.MinAgreement),
		"motion_threshold": strconv.FormatFloat(c.MotionThreshold, 'g', -1, 64),
		"camera_id":        strconv.Itoa(c.CameraID),
		"model_path":       c.ModelPath,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
