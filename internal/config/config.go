package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// Defaults applied by Load when no source sets a value.
const (
	DefaultAutosaveDebounce = 800 * time.Millisecond
	DefaultMaxRetries       = 3
	DefaultHeaderTimeout    = 30 * time.Second
	DefaultMaxItemChars     = 4000
	DefaultExcerptWindow    = 20
	DefaultMaxFiles         = 20
	DefaultPort             = 7411
	DefaultModelTier        = "standard"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/proofmesh/)
// 2. Project config (proofmesh.json[c], .proofmesh/proofmesh.json[c|yaml])
// 3. PROOFMESH_CONFIG file
// 4. .env in the project directory
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if err == nil {
			loaded[absPath] = true
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}

	var paths [][2]string

	globalPath := GetPaths().Config
	paths = append(paths,
		[2]string{filepath.Join(globalPath, "proofmesh.json"), globalPath},
		[2]string{filepath.Join(globalPath, "proofmesh.jsonc"), globalPath},
		[2]string{filepath.Join(globalPath, "proofmesh.yaml"), globalPath},
	)

	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".proofmesh")
		paths = append(paths,
			[2]string{filepath.Join(directory, "proofmesh.json"), directory},
			[2]string{filepath.Join(directory, "proofmesh.jsonc"), directory},
			[2]string{filepath.Join(projectConfigDir, "proofmesh.json"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "proofmesh.jsonc"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "proofmesh.yaml"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "proofmesh.yml"), projectConfigDir},
		)
	}

	if configPath := os.Getenv("PROOFMESH_CONFIG"); configPath != "" {
		paths = append(paths, [2]string{configPath, filepath.Dir(configPath)})
	}

	for _, p := range paths {
		if err := loadOnce(p[0], p[1]); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the process
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if config.Workspace == "" {
		config.Workspace = directory
	}
	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(data, baseDir)

	var fileConfig types.Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fileConfig)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &fileConfig)
	}
	if err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for a JSON string; secrets are single-line in practice
		escaped := strings.ReplaceAll(strings.TrimSpace(string(content)), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Sections merge field by
// field; set fields in source win.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Workspace != "" {
		target.Workspace = source.Workspace
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if s := source.Reasoning; s != nil {
		if target.Reasoning == nil {
			target.Reasoning = &types.ReasoningConfig{}
		}
		t := target.Reasoning
		if s.URL != "" {
			t.URL = s.URL
		}
		if s.APIKey != "" {
			t.APIKey = s.APIKey
		}
		if s.ModelTier != "" {
			t.ModelTier = s.ModelTier
		}
		if s.ForceEdit != nil {
			t.ForceEdit = s.ForceEdit
		}
		if s.MaxRetries != 0 {
			t.MaxRetries = s.MaxRetries
		}
		if s.HeaderTimeout != 0 {
			t.HeaderTimeout = s.HeaderTimeout
		}
		if s.Replay != "" {
			t.Replay = s.Replay
		}
	}

	if s := source.Autosave; s != nil {
		if target.Autosave == nil {
			target.Autosave = &types.AutosaveConfig{}
		}
		if s.Disabled {
			target.Autosave.Disabled = true
		}
		if s.Debounce != 0 {
			target.Autosave.Debounce = s.Debounce
		}
	}

	if s := source.Context; s != nil {
		if target.Context == nil {
			target.Context = &types.ContextConfig{}
		}
		t := target.Context
		if s.MaxItemChars != 0 {
			t.MaxItemChars = s.MaxItemChars
		}
		if s.ExcerptWindow != 0 {
			t.ExcerptWindow = s.ExcerptWindow
		}
		if s.MaxFiles != 0 {
			t.MaxFiles = s.MaxFiles
		}
		if s.Knowledge != "" {
			t.Knowledge = s.Knowledge
		}
	}

	if s := source.Storage; s != nil && s.Dir != "" {
		target.Storage = &types.StorageConfig{Dir: s.Dir}
	}

	if s := source.Server; s != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if s.Port != 0 {
			target.Server.Port = s.Port
		}
		if len(s.CORS) > 0 {
			target.Server.CORS = append(target.Server.CORS, s.CORS...)
		}
	}

	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
}

// applyEnvOverrides applies PROOFMESH_* environment variable overrides.
func applyEnvOverrides(config *types.Config) error {
	reasoning := func() *types.ReasoningConfig {
		if config.Reasoning == nil {
			config.Reasoning = &types.ReasoningConfig{}
		}
		return config.Reasoning
	}

	if v := os.Getenv("PROOFMESH_REASONING_URL"); v != "" {
		reasoning().URL = v
	}
	if v := os.Getenv("PROOFMESH_REASONING_API_KEY"); v != "" {
		reasoning().APIKey = v
	}
	if v := os.Getenv("PROOFMESH_MODEL_TIER"); v != "" {
		reasoning().ModelTier = v
	}
	if v := os.Getenv("PROOFMESH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROOFMESH_MAX_RETRIES: %w", err)
		}
		reasoning().MaxRetries = n
	}
	if v := os.Getenv("PROOFMESH_AUTOSAVE_DEBOUNCE"); v != "" {
		if config.Autosave == nil {
			config.Autosave = &types.AutosaveConfig{}
		}
		if err := config.Autosave.Debounce.Parse(v); err != nil {
			return fmt.Errorf("PROOFMESH_AUTOSAVE_DEBOUNCE: %w", err)
		}
	}
	if v := os.Getenv("PROOFMESH_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("PROOFMESH_STORAGE_DIR"); v != "" {
		config.Storage = &types.StorageConfig{Dir: v}
	}
	return nil
}

func applyDefaults(config *types.Config) {
	if config.Reasoning == nil {
		config.Reasoning = &types.ReasoningConfig{}
	}
	if config.Reasoning.ModelTier == "" {
		config.Reasoning.ModelTier = DefaultModelTier
	}
	if config.Reasoning.MaxRetries == 0 {
		config.Reasoning.MaxRetries = DefaultMaxRetries
	}
	if config.Reasoning.HeaderTimeout == 0 {
		config.Reasoning.HeaderTimeout = types.Duration(DefaultHeaderTimeout)
	}

	if config.Autosave == nil {
		config.Autosave = &types.AutosaveConfig{}
	}
	if config.Autosave.Debounce == 0 {
		config.Autosave.Debounce = types.Duration(DefaultAutosaveDebounce)
	}

	if config.Context == nil {
		config.Context = &types.ContextConfig{}
	}
	if config.Context.MaxItemChars == 0 {
		config.Context.MaxItemChars = DefaultMaxItemChars
	}
	if config.Context.ExcerptWindow == 0 {
		config.Context.ExcerptWindow = DefaultExcerptWindow
	}
	if config.Context.MaxFiles == 0 {
		config.Context.MaxFiles = DefaultMaxFiles
	}

	if config.Storage == nil || config.Storage.Dir == "" {
		config.Storage = &types.StorageConfig{Dir: GetPaths().StoragePath()}
	}

	if config.Server == nil {
		config.Server = &types.ServerConfig{}
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}

	if config.Watcher == nil {
		config.Watcher = &types.WatcherConfig{}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
