/**
 * penormalize
 * Copyright (c) 2026, the penormalize authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * @file main.go
 */

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"penormalize/internal/batch"
	"penormalize/internal/config"
	"penormalize/internal/inspect"
	"penormalize/internal/logging"
)

var cfgFile string

// errFilesFailed makes the process exit non-zero once every result line has
// been printed.
var errFilesFailed = errors.New("one or more files failed")

var rootCmd = &cobra.Command{
	Use:   "penormalize [flags] FILE...",
	Short: "Erase timestamps, GUIDs and other build-dependent fields from PE images in place",
	Long: `penormalize rewrites Windows PE/COFF images (native and .NET) so that two
builds of the same source produce identical bytes. Fields are zeroed in place;
the file size never changes. Files that are not PE images are skipped.`,
	Args:          cobra.MinimumNArgs(1),
	RunE:          normalize,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE...",
	Short: "Print the build-dependent fields of PE images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  inspectFiles,
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	rootCmd.Flags().IntP("jobs", "j", defaults.Jobs, "number of files processed concurrently")
	rootCmd.Flags().Bool("dry-run", false, "walk the files and report what would be erased without writing")
	rootCmd.Flags().Int("max-resource-depth", defaults.MaxResourceDepth, "maximum nesting of the resource directory tree")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("jobs", rootCmd.Flags().Lookup("jobs"))
	viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("max_resource_depth", rootCmd.Flags().Lookup("max-resource-depth"))

	rootCmd.AddCommand(inspectCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "penormalize"))
		}
		viper.AddConfigPath("/etc/penormalize")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("PENORMALIZE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the configuration and installs the global logger. The
// returned func closes the log file.
func loadConfig() (*config.Config, func() error, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("could not set up logging: %w", err)
	}
	return cfg, closeLog, nil
}

// normalize erases the nondeterministic fields of every file given on the
// command line.
func normalize(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	results, err := batch.NewRunner(cfg, nil).Run(cmd.Context(), args)
	for _, res := range results {
		fmt.Fprintln(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return errFilesFailed
	}
	return nil
}

func inspectFiles(cmd *cobra.Command, args []string) error {
	_, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	var failed bool
	for _, path := range args {
		report, err := inspect.File(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed = true
			continue
		}
		if _, err = report.WriteTo(cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	if failed {
		return errFilesFailed
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
