package config

import "runtime"

// Config holds app configuration
type Config struct {
	// Jobs bounds how many files are normalized concurrently. Each file
	// gets its own mapping and walker.
	Jobs int `mapstructure:"jobs"`

	// DryRun maps files copy-on-write: the walk runs and reports its
	// patches but nothing reaches disk.
	DryRun bool `mapstructure:"dry_run"`

	// MaxResourceDepth bounds the recursion into the resource directory
	// tree. Valid trees are three levels deep.
	MaxResourceDepth int `mapstructure:"max_resource_depth"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}

// Default returns the configuration used when neither flags nor a config
// file set a value.
func Default() *Config {
	return &Config{
		Jobs:             runtime.NumCPU(),
		MaxResourceDepth: 8,
		LogLevel:         "info",
	}
}
