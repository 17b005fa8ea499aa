// Package config loads fitfix settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
)

type SearchConfig struct {
	Lookahead          int   `yaml:"lookahead"`
	MinSkip            int   `yaml:"minSkip"`
	MaxSkip            int   `yaml:"maxSkip"`
	RewindStep         int   `yaml:"rewindStep"`
	MaxRewind          *int  `yaml:"maxRewind"`
	Parallelism        int   `yaml:"parallelism"`
	CheckpointInterval int   `yaml:"checkpointInterval"`
	AllowTailDrop      *bool `yaml:"allowTailDrop"`
}

type ValidationConfig struct {
	MonotonicMessages  []uint16 `yaml:"monotonicMessages"`
	Singletons         []uint16 `yaml:"singletons"`
	RequireFileIDFirst *bool    `yaml:"requireFileIdFirst"`
}

type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// OutputConfig selects the side outputs written next to a repaired file.
type OutputConfig struct {
	Suffix   string `yaml:"suffix"`
	AuditLog bool   `yaml:"auditLog"`
	Report   bool   `yaml:"report"`
	PDF      bool   `yaml:"pdf"`
	Lang     string `yaml:"lang"`
	Verify   bool   `yaml:"verify"`
}

type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Validation ValidationConfig `yaml:"validation"`
	Logs       LogConfig        `yaml:"logs"`
	Output     OutputConfig     `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load decodes the YAML file at path. Relative log directories are resolved
// against the directory holding the file.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if dir := strings.TrimSpace(cfg.Logs.Directory); dir != "" && !filepath.IsAbs(dir) {
		cfg.Logs.Directory = filepath.Clean(filepath.Join(filepath.Dir(path), dir))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Search.Lookahead <= 0 {
		c.Search.Lookahead = repair.DefaultLookahead
	}
	if c.Search.MinSkip <= 0 {
		c.Search.MinSkip = repair.DefaultMinSkip
	}
	if c.Search.MaxSkip <= 0 {
		c.Search.MaxSkip = repair.DefaultMaxSkip
	}
	if c.Search.RewindStep <= 0 {
		c.Search.RewindStep = repair.DefaultRewindStep
	}
	if c.Search.MaxRewind == nil {
		n := repair.DefaultMaxRewind
		c.Search.MaxRewind = &n
	}
	if c.Search.Parallelism <= 0 {
		c.Search.Parallelism = repair.DefaultParallelism
	}
	if c.Search.CheckpointInterval <= 0 {
		c.Search.CheckpointInterval = repair.DefaultCheckpointInterval
	}
	if c.Search.AllowTailDrop == nil {
		v := true
		c.Search.AllowTailDrop = &v
	}
	if c.Validation.Singletons == nil {
		c.Validation.Singletons = []uint16{fit.MesgFileID}
	}
	if c.Validation.RequireFileIDFirst == nil {
		v := true
		c.Validation.RequireFileIDFirst = &v
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 7
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
	if c.Output.Suffix == "" {
		c.Output.Suffix = "_fixed"
	}
	if c.Output.Lang == "" {
		c.Output.Lang = "en"
	}
}

// Validate reports settings that cannot drive a search.
func (c Config) Validate() error {
	if c.Search.MaxSkip < c.Search.MinSkip {
		return fmt.Errorf("search.maxSkip %d is below search.minSkip %d", c.Search.MaxSkip, c.Search.MinSkip)
	}
	if c.Search.MaxRewind != nil && *c.Search.MaxRewind < 0 {
		return fmt.Errorf("search.maxRewind %d is negative", *c.Search.MaxRewind)
	}
	if strings.ContainsAny(c.Output.Suffix, `/\`) {
		return fmt.Errorf("output.suffix %q contains a path separator", c.Output.Suffix)
	}
	return nil
}

// RepairOptions converts the search and validation sections.
func (c Config) RepairOptions() repair.Options {
	opts := repair.DefaultOptions()
	opts.Lookahead = c.Search.Lookahead
	opts.MinSkip = c.Search.MinSkip
	opts.MaxSkip = c.Search.MaxSkip
	opts.RewindStep = c.Search.RewindStep
	if c.Search.MaxRewind != nil {
		opts.MaxRewind = *c.Search.MaxRewind
	}
	opts.Parallelism = c.Search.Parallelism
	opts.CheckpointInterval = c.Search.CheckpointInterval
	if c.Search.AllowTailDrop != nil {
		opts.AllowTailDrop = *c.Search.AllowTailDrop
	}
	opts.Rules = fit.Rules{
		MonotonicMessages: append([]uint16(nil), c.Validation.MonotonicMessages...),
		Singletons:        append([]uint16(nil), c.Validation.Singletons...),
	}
	if c.Validation.RequireFileIDFirst != nil {
		opts.Rules.RequireFileIDFirst = *c.Validation.RequireFileIDFirst
	}
	return opts
}

func (c Config) LogConfig() common.LogConfig {
	return common.LogConfig{
		Directory:  c.Logs.Directory,
		MaxSizeMB:  c.Logs.MaxSizeMB,
		MaxAgeDays: c.Logs.MaxAgeDays,
		MaxBackups: c.Logs.MaxBackups,
		Compress:   c.Logs.Compress,
	}
}

// OutputPath derives the repaired file name from the input name.
func (c Config) OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + c.Output.Suffix + ext
}
