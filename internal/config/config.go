// Package config loads the pipeline's run thresholds and scan settings from
// a project-local config file, a user config directory, and environment
// variables, with command-line flags taking precedence over all of them.
package config

import (
	"errors"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the XDG config subdirectory this pipeline reads from:
// ~/.config/pipeline/config.yaml.
const AppName = "pipeline"

// ConfigFilename is the base name (without extension) Viper searches for.
const ConfigFilename = "config"

// ProjectConfigFilename is the project-local override file, read from the
// codebase root if present.
const ProjectConfigFilename = ".pipeline.yaml"

// PipelineConfig holds the run thresholds and file-scan settings a
// pipeline.Controller needs, resolved from whichever config layer sets
// them (project file > user file > environment > built-in default).
type PipelineConfig struct {
	OutputDir string
	Ext       string

	TargetCoverage        float64
	TargetMutation        float64
	MaxIterations         int
	MaxStagnantIterations int
}

// DefaultPipelineConfig returns the built-in settings used when no config
// file or environment variable overrides them.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Ext:                   ".py",
		TargetCoverage:        90.0,
		TargetMutation:        80.0,
		MaxIterations:         15,
		MaxStagnantIterations: 5,
	}
}

// Loader reads PipelineConfig from disk and the environment using Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader with Viper configured for this package's
// search paths and environment variable prefix.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load resolves a PipelineConfig starting from DefaultPipelineConfig,
// layering in ~/.config/pipeline/config.{yaml,toml,json} if present, then
// <codebasePath>/.pipeline.yaml if present, then any bound PIPELINE_*
// environment variables. A missing config file at either layer is not an
// error; any other read failure is returned.
func (l *Loader) Load(codebasePath string) (PipelineConfig, error) {
	defaults := DefaultPipelineConfig()
	l.setDefaults(defaults)

	userConfigDir := filepath.Join(xdg.ConfigHome, AppName)
	l.v.AddConfigPath(userConfigDir)
	l.v.SetConfigName(ConfigFilename)
	if err := l.v.ReadInConfig(); err != nil && !isConfigFileNotFound(err) {
		return defaults, err
	}

	if codebasePath != "" {
		projectFile := filepath.Join(codebasePath, ProjectConfigFilename)
		l.v.SetConfigFile(projectFile)
		if err := l.v.MergeInConfig(); err != nil && !isConfigFileNotFound(err) {
			return defaults, err
		}
	}

	return PipelineConfig{
		OutputDir:             l.v.GetString("output_dir"),
		Ext:                   l.v.GetString("ext"),
		TargetCoverage:        l.v.GetFloat64("target_coverage"),
		TargetMutation:        l.v.GetFloat64("target_mutation"),
		MaxIterations:         l.v.GetInt("max_iterations"),
		MaxStagnantIterations: l.v.GetInt("max_stagnant_iterations"),
	}, nil
}

func (l *Loader) setDefaults(d PipelineConfig) {
	l.v.SetDefault("output_dir", d.OutputDir)
	l.v.SetDefault("ext", d.Ext)
	l.v.SetDefault("target_coverage", d.TargetCoverage)
	l.v.SetDefault("target_mutation", d.TargetMutation)
	l.v.SetDefault("max_iterations", d.MaxIterations)
	l.v.SetDefault("max_stagnant_iterations", d.MaxStagnantIterations)
}

func isConfigFileNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}
