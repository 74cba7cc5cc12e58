// Package config holds the settings of a distillation run: a YAML file
// layered over defaults, then command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/models"
	"github.com/born-ml/distill/internal/trainer"
)

// Config captures every knob of a run.
type Config struct {
	Data         DataConfig              `yaml:"data"`
	Teacher      TeacherConfig           `yaml:"teacher"`
	Student      StudentConfig           `yaml:"student"`
	Distillation trainer.Hyperparameters `yaml:"distillation"`
	OutputDir    string                  `yaml:"output_dir"`
	MetricsAddr  string                  `yaml:"metrics_addr"` // Empty disables the /metrics endpoint
	Seed         int64                   `yaml:"seed"`
	LogLevel     string                  `yaml:"log_level"`
}

// DataConfig describes where samples come from and how they are shaped.
type DataConfig struct {
	TrainDir      string               `yaml:"train_dir"`
	ValidationDir string               `yaml:"validation_dir"`
	Height        int                  `yaml:"height"`
	Width         int                  `yaml:"width"`
	Grayscale     bool                 `yaml:"grayscale"`
	Rescale       float32              `yaml:"rescale"`
	BatchSize     int                  `yaml:"batch_size"`
	Workers       int                  `yaml:"workers"` // Decoding goroutines; 0 uses every core
	Augmentation  dataset.Augmentation `yaml:"augmentation"`
	Synthetic     *SyntheticConfig     `yaml:"synthetic"` // Replaces the image folders when set
}

// SyntheticConfig generates a labelled dataset instead of reading images.
type SyntheticConfig struct {
	Classes            int `yaml:"classes"`
	PerClass           int `yaml:"per_class"`
	ValidationPerClass int `yaml:"validation_per_class"`
}

// TeacherConfig configures the teacher and its supervised training.
type TeacherConfig struct {
	Model             models.TeacherConfig `yaml:"model"`
	Epochs            int                  `yaml:"epochs"`
	LearningRate      float32              `yaml:"learning_rate"`
	PretrainedWeights string               `yaml:"pretrained_weights"` // Backbone weights; empty trains from scratch
}

// StudentConfig configures the student and its distillation.
type StudentConfig struct {
	Model        models.StudentConfig `yaml:"model"`
	Epochs       int                  `yaml:"epochs"`
	LearningRate float32              `yaml:"learning_rate"`
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched; pointer fields distinguish "unset" from zero.
type Overrides struct {
	TrainDir      string
	ValidationDir string
	OutputDir     string
	TeacherEpochs int
	StudentEpochs int
	Alpha         *float32
	Temperature   *float32
	Synthetic     bool
	MetricsAddr   string
	LogLevel      string
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Data: DataConfig{
			Height:    150,
			Width:     150,
			Rescale:   1.0 / 255,
			BatchSize: 32,
		},
		Teacher: TeacherConfig{
			Model:        models.DefaultTeacherConfig(),
			Epochs:       100,
			LearningRate: 1e-3,
		},
		Student: StudentConfig{
			Model:        models.DefaultStudentConfig(),
			Epochs:       200,
			LearningRate: 1e-3,
		},
		Distillation: trainer.DefaultHyperparameters(),
		OutputDir:    "runs",
		Seed:         1,
		LogLevel:     "info",
	}
}

// DefaultSynthetic returns the synthetic dataset used by -synthetic.
func DefaultSynthetic() *SyntheticConfig {
	return &SyntheticConfig{Classes: 3, PerClass: 16, ValidationPerClass: 4}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read reads a YAML file over Default without validating it, so that
// overrides can still complete it.
func Read(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over Default. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyOverrides updates c using any set override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.TrainDir != "" {
		c.Data.TrainDir = o.TrainDir
	}
	if o.ValidationDir != "" {
		c.Data.ValidationDir = o.ValidationDir
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.TeacherEpochs > 0 {
		c.Teacher.Epochs = o.TeacherEpochs
	}
	if o.StudentEpochs > 0 {
		c.Student.Epochs = o.StudentEpochs
	}
	if o.Alpha != nil {
		c.Distillation.Alpha = *o.Alpha
	}
	if o.Temperature != nil {
		c.Distillation.Temperature = *o.Temperature
	}
	if o.Synthetic && c.Data.Synthetic == nil {
		c.Data.Synthetic = DefaultSynthetic()
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate verifies the config is runnable. Model architectures are
// checked when the models are built.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	d := c.Data
	if d.Synthetic == nil {
		if d.TrainDir == "" {
			return errors.New("data.train_dir must be set (or use synthetic data)")
		}
		if d.ValidationDir == "" {
			return errors.New("data.validation_dir must be set (or use synthetic data)")
		}
	} else {
		s := d.Synthetic
		if s.Classes < 2 {
			return fmt.Errorf("data.synthetic.classes must be >= 2 (got %d)", s.Classes)
		}
		if s.PerClass <= 0 || s.ValidationPerClass <= 0 {
			return fmt.Errorf("data.synthetic sample counts must be > 0 (got %d, %d)", s.PerClass, s.ValidationPerClass)
		}
	}
	if d.Height <= 0 || d.Width <= 0 {
		return fmt.Errorf("data image size must be positive (got %dx%d)", d.Height, d.Width)
	}
	if d.Rescale <= 0 {
		return fmt.Errorf("data.rescale must be > 0 (got %v)", d.Rescale)
	}
	if d.BatchSize <= 0 {
		return fmt.Errorf("data.batch_size must be > 0 (got %d)", d.BatchSize)
	}
	if d.Workers < 0 {
		return fmt.Errorf("data.workers must be >= 0 (got %d)", d.Workers)
	}
	if c.Teacher.Epochs < 0 || c.Student.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (teacher %d, student %d)", c.Teacher.Epochs, c.Student.Epochs)
	}
	if !(c.Teacher.LearningRate > 0) || !(c.Student.LearningRate > 0) {
		return fmt.Errorf("learning rates must be > 0 (teacher %v, student %v)", c.Teacher.LearningRate, c.Student.LearningRate)
	}
	if err := c.Distillation.Validate(); err != nil {
		return err
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Channels returns the image channel count implied by Data.Grayscale.
func (d DataConfig) Channels() int {
	if d.Grayscale {
		return 1
	}
	return 3
}
