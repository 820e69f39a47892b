package config

import (
	"bytes"
	"io"
	"os"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Dataset sources understood by the trainer.
const (
	SourceIDX    = "idx"
	SourceShards = "shards"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir        string  `yaml:"data_dir"`
	Source         string  `yaml:"source"`
	TrainShards    string  `yaml:"train_shards"`
	TestShards     string  `yaml:"test_shards"`
	Download       bool    `yaml:"download"`
	Epochs         int     `yaml:"epochs"`
	TrainBatchSize int     `yaml:"train_batch_size"`
	TestBatchSize  int     `yaml:"test_batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	Momentum       float64 `yaml:"momentum"`
	Dampening      float64 `yaml:"dampening"`
	WeightDecay    float64 `yaml:"weight_decay"`
	Nesterov       bool    `yaml:"nesterov"`
	HiddenDims     []int   `yaml:"hidden_dims"`
	LogEvery       int     `yaml:"log_every"`
	Seed           int64   `yaml:"seed"`
	NumWorkers     int     `yaml:"num_workers"`
	Shuffle        bool    `yaml:"shuffle"`
	Checkpoint     string  `yaml:"checkpoint"`
	InitFrom       string  `yaml:"init_from"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir      string
	Source       string
	TrainShards  string
	TestShards   string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Momentum     float64
	NumWorkers   int
	Seed         int64
	LogEvery     int
	Checkpoint   string
	InitFrom     string
}

// Default returns the configuration of a plain MNIST run.
func Default() *Config {
	return &Config{
		DataDir:        "./data",
		Source:         SourceIDX,
		Download:       true,
		Epochs:         10,
		TrainBatchSize: 64,
		TestBatchSize:  1000,
		LearningRate:   0.01,
		Momentum:       0.5,
		HiddenDims:     []int{128, 64},
		LogEvery:       100,
		Seed:           1,
		Shuffle:        true,
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Source != "" {
		c.Source = o.Source
	}
	if o.TrainShards != "" {
		c.TrainShards = o.TrainShards
	}
	if o.TestShards != "" {
		c.TestShards = o.TestShards
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.TrainBatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Momentum > 0 {
		c.Momentum = o.Momentum
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.InitFrom != "" {
		c.InitFrom = o.InitFrom
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Source {
	case SourceIDX:
		if c.DataDir == "" {
			return errors.New("data_dir must be set for the idx source")
		}
	case SourceShards:
		if c.TrainShards == "" || c.TestShards == "" {
			return errors.New("both train_shards and test_shards must be set for the shards source")
		}
	default:
		return errors.Errorf("unknown source %q", c.Source)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.TrainBatchSize <= 0 {
		return errors.Errorf("train_batch_size must be > 0 (got %d)", c.TrainBatchSize)
	}
	if c.TestBatchSize <= 0 {
		return errors.Errorf("test_batch_size must be > 0 (got %d)", c.TestBatchSize)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("momentum must be in [0,1) (got %g)", c.Momentum)
	}
	if c.Dampening < 0 || c.Dampening > 1 {
		return errors.Errorf("dampening must be in [0,1] (got %g)", c.Dampening)
	}
	if c.WeightDecay < 0 {
		return errors.Errorf("weight_decay must be >= 0 (got %g)", c.WeightDecay)
	}
	if c.Nesterov && (c.Momentum == 0 || c.Dampening != 0) {
		return errors.New("nesterov requires momentum > 0 and zero dampening")
	}
	if len(c.HiddenDims) == 0 {
		return errors.New("hidden_dims must list at least one width")
	}
	for i, h := range c.HiddenDims {
		if h <= 0 {
			return errors.Errorf("hidden_dims[%d] must be > 0 (got %d)", i, h)
		}
	}
	if c.NumWorkers < 0 {
		return errors.Errorf("num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultWorkers()
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 100
	}
	return nil
}

func parse(r io.Reader) (*Config, error) {
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

// defaultWorkers sizes the prefetch pool from the physical core count,
// keeping one core for the training goroutine.
func defaultWorkers() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = cpuid.CPU.LogicalCores
	}
	if n <= 2 {
		return 1
	}
	if n > 8 {
		return 4
	}
	return n / 2
}
