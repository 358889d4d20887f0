package mesh

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AveragingRule selects the per-field merge-averaging semantics (spec §4.4
// Stage C and §6).
type AveragingRule string

const (
	AveragingArithmetic     AveragingRule = "arithmetic"
	AveragingVolumeWeighted AveragingRule = "volume_weighted"
)

// LoadBalancerConfig groups the load-balancer/migrator options from spec §6.
type LoadBalancerConfig struct {
	Enabled                bool    `yaml:"enabled"`
	MinIntervalTimesteps   int64   `yaml:"min_interval_timesteps"`
	ImbalanceTolerance     float64 `yaml:"imbalance_tolerance"`
	MaxCellsPerMigrationBlock int64 `yaml:"max_cells_per_migration_block"`
	NumSamplePoints        int64   `yaml:"num_sample_points"`
	UseExactCount          bool    `yaml:"use_exact_count"`
	MaxMigrationTimeMs     float64 `yaml:"max_migration_time_ms"`
	ValidateMigration      bool    `yaml:"validate_migration"`
}

// DefaultLoadBalancerConfig returns the §6-documented defaults.
func DefaultLoadBalancerConfig() LoadBalancerConfig {
	return LoadBalancerConfig{
		Enabled:                   true,
		MinIntervalTimesteps:      10,
		ImbalanceTolerance:        0.15,
		MaxCellsPerMigrationBlock: 1000,
		NumSamplePoints:           100,
		UseExactCount:             false,
		MaxMigrationTimeMs:        100,
		ValidateMigration:         true,
	}
}

// Config is the value struct recognized by the mesh engine (spec §6). It
// groups adaptation, conservation, buffer-growth and load-balancer options.
type Config struct {
	MaxRefinementLevel     int           `yaml:"max_refinement_level"`
	MinRefinementLevel     int           `yaml:"min_refinement_level"`
	MaxCellsPerSplitBatch  uint32        `yaml:"max_cells_per_split_batch"`
	MaxCellsPerMergeBatch  uint32        `yaml:"max_cells_per_merge_batch"`
	MaxBalanceIterations   int           `yaml:"max_balance_iterations"`
	Enforce2To1Balance     bool          `yaml:"enforce_2_1_balance"`
	CascadeDepth           int           `yaml:"cascade_depth"`
	AllowModifyingGeomMove bool          `yaml:"allow_modifying_geometry_moving"`
	DefaultAveragingRule   AveragingRule `yaml:"default_averaging_rule"`
	ValidateConservation   bool          `yaml:"validate_conservation"`
	ConservationTolerance  float64       `yaml:"conservation_tolerance"`
	BufferGrowthFactor     float64       `yaml:"buffer_growth_factor"`
	InitialBufferCapacity  uint32        `yaml:"initial_buffer_capacity"`

	LoadBalancer LoadBalancerConfig `yaml:"load_balancer"`
}

// DefaultConfig returns the spec §6 documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRefinementLevel:     MaxRefinementLevel,
		MinRefinementLevel:     0,
		MaxCellsPerSplitBatch:  65536,
		MaxCellsPerMergeBatch:  32768,
		MaxBalanceIterations:   10,
		Enforce2To1Balance:     true,
		CascadeDepth:           2,
		AllowModifyingGeomMove: false,
		DefaultAveragingRule:   AveragingArithmetic,
		ValidateConservation:   true,
		ConservationTolerance:  1e-3,
		BufferGrowthFactor:     1.5,
		InitialBufferCapacity:  1 << 20,
		LoadBalancer:           DefaultLoadBalancerConfig(),
	}
}

// LoadConfigFile reads a YAML config file, starting from DefaultConfig and
// overlaying any fields present in the file — mirroring the teacher's
// workload.LoadWorkloadSpec pattern of unmarshal-then-validate.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, NewConfigurationError("config", fmt.Sprintf("read %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, NewConfigurationError("config", fmt.Sprintf("parse %s: %v", path, err))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every option against its documented range (spec §6) and
// returns a single ConfigurationError aggregating every violation found, not
// just the first.
func (c Config) Validate() error {
	var problems []string

	if c.MaxRefinementLevel < 0 || c.MaxRefinementLevel > MaxRefinementLevel {
		problems = append(problems, fmt.Sprintf("max_refinement_level must be in [0,%d], got %d", MaxRefinementLevel, c.MaxRefinementLevel))
	}
	if c.MinRefinementLevel < 0 || c.MinRefinementLevel > c.MaxRefinementLevel {
		problems = append(problems, fmt.Sprintf("min_refinement_level must be in [0,max_refinement_level], got %d", c.MinRefinementLevel))
	}
	if c.MaxBalanceIterations <= 0 {
		problems = append(problems, "max_balance_iterations must be > 0")
	}
	if c.CascadeDepth < 0 || c.CascadeDepth > c.MaxRefinementLevel {
		problems = append(problems, "cascade_depth must be in [0,max_refinement_level]")
	}
	if c.DefaultAveragingRule != AveragingArithmetic && c.DefaultAveragingRule != AveragingVolumeWeighted {
		problems = append(problems, fmt.Sprintf("default_averaging_rule must be arithmetic or volume_weighted, got %q", c.DefaultAveragingRule))
	}
	if c.ConservationTolerance <= 0 {
		problems = append(problems, "conservation_tolerance must be > 0")
	}
	if c.BufferGrowthFactor <= 1.0 {
		problems = append(problems, "buffer_growth_factor must be > 1.0")
	}
	if c.InitialBufferCapacity == 0 {
		problems = append(problems, "initial_buffer_capacity must be > 0")
	}

	lb := c.LoadBalancer
	if lb.MinIntervalTimesteps < 10 {
		problems = append(problems, "load_balancer.min_interval_timesteps must be >= 10")
	}
	if lb.ImbalanceTolerance < 0.05 || lb.ImbalanceTolerance > 0.5 {
		problems = append(problems, "load_balancer.imbalance_tolerance must be in [0.05,0.5]")
	}
	if lb.MaxCellsPerMigrationBlock < 1000 {
		problems = append(problems, "load_balancer.max_cells_per_migration_block must be >= 1000")
	}
	if lb.NumSamplePoints < 100 {
		problems = append(problems, "load_balancer.num_sample_points must be >= 100")
	}

	if len(problems) == 0 {
		return nil
	}
	return NewConfigurationError("config", strings.Join(problems, "; "))
}
