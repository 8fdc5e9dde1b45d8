package types

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration, merged from config files and the
// environment.
type Config struct {
	Schema    string           `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Workspace string           `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	LogLevel  string           `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Reasoning *ReasoningConfig `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Autosave  *AutosaveConfig  `json:"autosave,omitempty" yaml:"autosave,omitempty"`
	Context   *ContextConfig   `json:"context,omitempty" yaml:"context,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty" yaml:"storage,omitempty"`
	Server    *ServerConfig    `json:"server,omitempty" yaml:"server,omitempty"`
	Watcher   *WatcherConfig   `json:"watcher,omitempty" yaml:"watcher,omitempty"`
}

// ReasoningConfig points at the reasoning service.
type ReasoningConfig struct {
	URL           string   `json:"url,omitempty" yaml:"url,omitempty"`
	APIKey        string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	ModelTier     string   `json:"model_tier,omitempty" yaml:"model_tier,omitempty"`
	ForceEdit     *bool    `json:"force_edit,omitempty" yaml:"force_edit,omitempty"`
	MaxRetries    int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	HeaderTimeout Duration `json:"header_timeout,omitempty" yaml:"header_timeout,omitempty"`
	// Replay serves a recorded NDJSON stream from this file instead of
	// calling URL.
	Replay string `json:"replay,omitempty" yaml:"replay,omitempty"`
}

// AutosaveConfig controls debounced saving of open documents.
type AutosaveConfig struct {
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Debounce Duration `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}

// ContextConfig bounds the context sent with each run.
type ContextConfig struct {
	MaxItemChars  int `json:"max_item_chars,omitempty" yaml:"max_item_chars,omitempty"`
	ExcerptWindow int `json:"excerpt_window,omitempty" yaml:"excerpt_window,omitempty"`
	MaxFiles      int `json:"max_files,omitempty" yaml:"max_files,omitempty"`
	// Knowledge is a JSON file of nodes and blocks mentionable with @node:
	// and @block:.
	Knowledge string `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
}

// StorageConfig locates the audit trail.
type StorageConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int      `json:"port,omitempty" yaml:"port,omitempty"`
	CORS []string `json:"cors,omitempty" yaml:"cors,omitempty"`
}

// WatcherConfig configures the workspace file watcher.
type WatcherConfig struct {
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Ignore   []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
}

// Duration is a time.Duration that reads from "1.5s" style strings or from a
// number of milliseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// Parse sets d from a duration string such as "800ms".
func (d *Duration) Parse(s string) error {
	return d.set(s)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case int:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
