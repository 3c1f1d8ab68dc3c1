// Package config loads layered CodeSquad configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

// Defaults applied when the loaded config leaves a field unset.
const (
	DefaultCommandTimeoutMS = 120_000
	DefaultMaxTasks         = 200
	DefaultExecuteTimeoutMS = 300_000
	DefaultTerminateGraceMS = 5_000
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/codesquad/codesquad.json[c])
// 2. Project config (<directory>/codesquad.json[c], <directory>/.codesquad/)
// 3. CODESQUAD_CONFIG file override
// 4. Environment variables
// A .env file in the working directory is loaded first so that {env:VAR}
// interpolation and API-key overrides see its values.
func Load(directory string) (*types.Config, error) {
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		globalDir := filepath.Join(home, ".config", "codesquad")
		loadOnce(filepath.Join(globalDir, "codesquad.json"))
		loadOnce(filepath.Join(globalDir, "codesquad.jsonc"))
	}

	if directory != "" {
		loadOnce(filepath.Join(directory, "codesquad.json"))
		loadOnce(filepath.Join(directory, "codesquad.jsonc"))
		loadOnce(filepath.Join(directory, ".codesquad", "codesquad.json"))
		loadOnce(filepath.Join(directory, ".codesquad", "codesquad.jsonc"))
	}

	if configPath := os.Getenv("CODESQUAD_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(config)
	applyDefaults(config, directory)

	return config, nil
}

// loadConfigFile loads a single JSONC config file with {env:VAR} interpolation.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.ProjectsRoot != "" {
		target.ProjectsRoot = source.ProjectsRoot
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.CommandTimeoutMS != 0 {
		target.CommandTimeoutMS = source.CommandTimeoutMS
	}
	if source.MaxTasks != 0 {
		target.MaxTasks = source.MaxTasks
	}
	if source.Squad != nil {
		target.Squad = source.Squad
	}
	for k, v := range source.Provider {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		target.Provider[k] = v
	}
}

// applyEnvOverrides applies environment variable overrides (highest priority).
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if config.Provider == nil {
			config.Provider = make(map[string]types.ProviderConfig)
		}
		p := config.Provider[provider]
		if p.APIKey == "" {
			p.APIKey = apiKey
			config.Provider[provider] = p
		}
	}

	if model := os.Getenv("CODESQUAD_MODEL"); model != "" {
		config.Model = model
	}
	if root := os.Getenv("CODESQUAD_PROJECTS_ROOT"); root != "" {
		config.ProjectsRoot = root
	}
}

// applyDefaults fills unset fields.
func applyDefaults(config *types.Config, directory string) {
	if config.ProjectsRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			config.ProjectsRoot = filepath.Join(home, ".codesquad", "projects")
		} else {
			config.ProjectsRoot = filepath.Join(directory, "projects")
		}
	}
	if config.CommandTimeoutMS == 0 {
		config.CommandTimeoutMS = DefaultCommandTimeoutMS
	}
	if config.MaxTasks == 0 {
		config.MaxTasks = DefaultMaxTasks
	}
	if config.Squad == nil {
		config.Squad = &types.SquadConfig{}
	}
	if config.Squad.DefaultAgent == "" {
		config.Squad.DefaultAgent = types.AgentClaudeCode
	}
	if config.Squad.ExecuteTimeoutMS == 0 {
		config.Squad.ExecuteTimeoutMS = DefaultExecuteTimeoutMS
	}
	if config.Squad.TerminateGraceMS == 0 {
		config.Squad.TerminateGraceMS = DefaultTerminateGraceMS
	}
}

// DataDir returns the directory used for persisted server state.
func DataDir() string {
	if dir := os.Getenv("CODESQUAD_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codesquad"
	}
	return filepath.Join(home, ".local", "share", "codesquad")
}
