package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataPath       string  `yaml:"data_path"`
	CheckpointPath string  `yaml:"checkpoint_path"`
	ExportPath     string  `yaml:"export_path"`
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	HiddenDim      int     `yaml:"hidden_dim"`
	Dropout        float64 `yaml:"dropout"`
	TrainFraction  float64 `yaml:"train_fraction"`
	Seed           int64   `yaml:"seed"`
	Device         string  `yaml:"device"`
	OpsetVersion   int64   `yaml:"opset_version"`
	IRVersion      int64   `yaml:"ir_version"`
	LogEvery       int     `yaml:"log_every"`
	LogLevel       string  `yaml:"log_level"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataPath       string
	CheckpointPath string
	ExportPath     string
	Epochs         int
	BatchSize      int
	LearningRate   float64
	Seed           int64
	Device         string
	LogLevel       string
}

// Default returns the configuration the sign model has always been trained with.
func Default() *Config {
	return &Config{
		DataPath:       "data/one_hand_dataset.csv",
		CheckpointPath: "models/bsl_sign_model.ckpt",
		ExportPath:     "public/models/bsl_sign_model.onnx",
		Epochs:         50,
		BatchSize:      64,
		LearningRate:   1e-3,
		HiddenDim:      128,
		Dropout:        0.3,
		TrainFraction:  0.8,
		Device:         "auto",
		OpsetVersion:   17,
		IRVersion:      9,
		LogEvery:       1,
		LogLevel:       "INFO",
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataPath != "" {
		c.DataPath = o.DataPath
	}
	if o.CheckpointPath != "" {
		c.CheckpointPath = o.CheckpointPath
	}
	if o.ExportPath != "" {
		c.ExportPath = o.ExportPath
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataPath == "" {
		return errors.New("data_path must be set")
	}
	if c.CheckpointPath == "" {
		return errors.New("checkpoint_path must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden_dim must be > 0 (got %d)", c.HiddenDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1) (got %g)", c.Dropout)
	}
	if c.TrainFraction <= 0 || c.TrainFraction > 1 {
		return fmt.Errorf("train_fraction must be in (0, 1] (got %g)", c.TrainFraction)
	}
	if c.IRVersion <= 0 {
		return fmt.Errorf("ir_version must be > 0 (got %d)", c.IRVersion)
	}
	if c.OpsetVersion <= 0 {
		return fmt.Errorf("opset_version must be > 0 (got %d)", c.OpsetVersion)
	}
	switch strings.ToLower(c.Device) {
	case "", "auto":
		c.Device = "auto"
	case "cpu", "cuda":
		c.Device = strings.ToLower(c.Device)
	default:
		return fmt.Errorf("device must be auto, cpu or cuda (got %q)", c.Device)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 1
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
