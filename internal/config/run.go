package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"goamcc/internal/errors"
)

// Run configuration defaults
const (
	DefaultDelimiter            = ","
	DefaultThreshProb           = 0.95
	DefaultTimeoutSeconds       = 5
	DefaultWorkers              = 1
	DefaultUndesiredLabel       = 1
	DefaultTestSize             = 0.2
	DefaultCategoricalThreshold = 10
)

// RunConfig is one batch run. JSON config files load as well since JSON is
// valid YAML.
type RunConfig struct {
	DataPath             string            `yaml:"data_path" json:"data_path"`
	TargetIdx            int               `yaml:"target_idx" json:"target_idx"`
	Delimiter            string            `yaml:"delimiter" json:"delimiter"`
	FeatureNames         []string          `yaml:"feature_names" json:"feature_names"`
	SkipFirst            bool              `yaml:"skip_first" json:"skip_first"`
	IgnoreIndices        []int             `yaml:"ignore_indices" json:"ignore_indices"`
	ThreshProb           float64           `yaml:"thresh_prob" json:"thresh_prob"`
	OutputFile           string            `yaml:"output_file" json:"output_file"`
	TransitionRules      map[string]string `yaml:"transition_rules" json:"transition_rules"`
	TimeoutSeconds       int               `yaml:"timeout_seconds" json:"timeout_seconds"`
	Workers              int               `yaml:"workers" json:"workers"`
	Seed                 int64             `yaml:"seed" json:"seed"`
	UndesiredLabel       int               `yaml:"undesired_label" json:"undesired_label"`
	TestSize             float64           `yaml:"test_size" json:"test_size"`
	CategoricalThreshold int               `yaml:"categorical_threshold" json:"categorical_threshold"`
	MaxDepth             int               `yaml:"max_depth" json:"max_depth"`
}

// HasHeader reports whether the data file starts with a header row. Without
// feature_names the first row is always the header; with them it is data
// unless skip_first is set.
func (c *RunConfig) HasHeader() bool {
	return len(c.FeatureNames) == 0 || c.SkipFirst
}

// DefaultRunConfig returns a config with every optional field at its default
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Delimiter:            DefaultDelimiter,
		ThreshProb:           DefaultThreshProb,
		TimeoutSeconds:       DefaultTimeoutSeconds,
		Workers:              DefaultWorkers,
		UndesiredLabel:       DefaultUndesiredLabel,
		TestSize:             DefaultTestSize,
		CategoricalThreshold: DefaultCategoricalThreshold,
	}
}

// LoadRunConfig reads and validates a run configuration file
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read run config %s", path)
	}
	cfg, err := ParseRunConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse run config %s", path)
	}
	return cfg, nil
}

// ParseRunConfig decodes YAML (or JSON) over the defaults and validates
func ParseRunConfig(data []byte) (*RunConfig, error) {
	cfg := DefaultRunConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.AppError{Code: errors.CodeConfigInvalid, Message: "malformed run config", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields a run cannot start without
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.DataPath) == "" {
		return errors.ConfigInvalid("data_path is required")
	}
	if c.TargetIdx < 0 {
		return errors.ConfigInvalid("target_idx must not be negative")
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if len([]rune(c.Delimiter)) != 1 {
		return errors.ConfigInvalid(fmt.Sprintf("delimiter must be a single character, got %q", c.Delimiter))
	}
	if c.ThreshProb <= 0 || c.ThreshProb > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("thresh_prob must be in (0, 1], got %v", c.ThreshProb))
	}
	if c.TimeoutSeconds <= 0 {
		return errors.ConfigInvalid("timeout_seconds must be positive")
	}
	if c.Workers <= 0 {
		return errors.ConfigInvalid("workers must be positive")
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.ConfigInvalid(fmt.Sprintf("test_size must be in (0, 1), got %v", c.TestSize))
	}
	if c.CategoricalThreshold < 1 {
		return errors.ConfigInvalid("categorical_threshold must be at least 1")
	}
	if c.MaxDepth < 0 {
		return errors.ConfigInvalid("max_depth must not be negative")
	}
	for _, idx := range c.IgnoreIndices {
		if idx < 0 {
			return errors.ConfigInvalid(fmt.Sprintf("ignore_indices contains negative index %d", idx))
		}
	}
	return nil
}

// Timeout returns the per-instance search budget
func (c *RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Ignored returns ignore_indices as a set
func (c *RunConfig) Ignored() map[int]struct{} {
	out := make(map[int]struct{}, len(c.IgnoreIndices))
	for _, idx := range c.IgnoreIndices {
		out[idx] = struct{}{}
	}
	return out
}

// ParseIndexList parses a comma-separated index list such as "0, 3,5,".
// Empty input yields an empty list.
func ParseIndexList(s string) ([]int, error) {
	out := []int{}
	for _, part := range strings.Split(strings.Trim(strings.TrimSpace(s), ","), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("invalid index %q", part))
		}
		out = append(out, idx)
	}
	return out, nil
}
