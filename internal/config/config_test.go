package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// isolate points HOME and the XDG directories at a fresh temp dir and
// clears the PROOFMESH_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, ".local", "share"))
	for _, key := range []string{
		"PROOFMESH_CONFIG",
		"PROOFMESH_REASONING_URL",
		"PROOFMESH_REASONING_API_KEY",
		"PROOFMESH_MODEL_TIER",
		"PROOFMESH_MAX_RETRIES",
		"PROOFMESH_AUTOSAVE_DEBOUNCE",
		"PROOFMESH_LOG_LEVEL",
		"PROOFMESH_STORAGE_DIR",
	} {
		t.Setenv(key, "")
	}
	return tmpDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.Workspace)
	assert.Equal(t, DefaultModelTier, cfg.Reasoning.ModelTier)
	assert.Equal(t, DefaultMaxRetries, cfg.Reasoning.MaxRetries)
	assert.Equal(t, DefaultHeaderTimeout, cfg.Reasoning.HeaderTimeout.Std())
	assert.Equal(t, DefaultAutosaveDebounce, cfg.Autosave.Debounce.Std())
	assert.Equal(t, DefaultMaxItemChars, cfg.Context.MaxItemChars)
	assert.Equal(t, DefaultExcerptWindow, cfg.Context.ExcerptWindow)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, filepath.Join(tmpDir, ".local", "share", "proofmesh", "storage"), cfg.Storage.Dir)
}

func TestJSONCComments(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".proofmesh", "proofmesh.jsonc"), `{
		// single-line comment
		"reasoning": {
			"url": "http://localhost:9000", /* inline */
			"max_retries": 5
		}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Reasoning.URL)
	assert.Equal(t, 5, cfg.Reasoning.MaxRetries)
}

func TestYAMLConfig(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".proofmesh", "proofmesh.yaml"), `
reasoning:
  url: https://reasoner.example
  model_tier: deep
  force_edit: true
autosave:
  debounce: 1500ms
context:
  max_item_chars: 120
  excerpt_window: 4
`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "https://reasoner.example", cfg.Reasoning.URL)
	assert.Equal(t, "deep", cfg.Reasoning.ModelTier)
	require.NotNil(t, cfg.Reasoning.ForceEdit)
	assert.True(t, *cfg.Reasoning.ForceEdit)
	assert.Equal(t, 1500*time.Millisecond, cfg.Autosave.Debounce.Std())
	assert.Equal(t, 120, cfg.Context.MaxItemChars)
	assert.Equal(t, 4, cfg.Context.ExcerptWindow)
}

func TestMalformedConfigFails(t *testing.T) {
	tmpDir := isolate(t)
	writeFile(t, filepath.Join(tmpDir, "proofmesh.json"), `{"reasoning": [}`)

	_, err := Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proofmesh.json")
}

func TestEnvInterpolation(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("TEST_REASONER_KEY", "secret-123")

	writeFile(t, filepath.Join(tmpDir, "proofmesh.json"), `{
		"reasoning": {"api_key": "{env:TEST_REASONER_KEY}"}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "secret-123", cfg.Reasoning.APIKey)
}

func TestFileInterpolation(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".proofmesh", "key.txt"), "file-key\n")
	writeFile(t, filepath.Join(tmpDir, ".proofmesh", "proofmesh.json"), `{
		"reasoning": {"api_key": "{file:key.txt}"}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Reasoning.APIKey)
}

func TestConfigMerge(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".config", "proofmesh", "proofmesh.json"), `{
		"reasoning": {"url": "http://global", "model_tier": "fast"},
		"server": {"cors": ["http://a"]}
	}`)
	writeFile(t, filepath.Join(tmpDir, "proofmesh.json"), `{
		"reasoning": {"url": "http://project"},
		"server": {"cors": ["http://b"]}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "http://project", cfg.Reasoning.URL)
	assert.Equal(t, "fast", cfg.Reasoning.ModelTier)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORS)
}

func TestEnvVarOverride(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, "proofmesh.json"), `{"reasoning": {"url": "http://file"}}`)
	t.Setenv("PROOFMESH_REASONING_URL", "http://env")
	t.Setenv("PROOFMESH_AUTOSAVE_DEBOUNCE", "2s")
	t.Setenv("PROOFMESH_LOG_LEVEL", "debug")
	t.Setenv("PROOFMESH_STORAGE_DIR", "/var/proofmesh")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "http://env", cfg.Reasoning.URL)
	assert.Equal(t, 2*time.Second, cfg.Autosave.Debounce.Std())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/proofmesh", cfg.Storage.Dir)
}

func TestInvalidEnvDuration(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("PROOFMESH_AUTOSAVE_DEBOUNCE", "soon")

	_, err := Load(tmpDir)
	require.Error(t, err)
}

func TestDotEnv(t *testing.T) {
	tmpDir := isolate(t)
	writeFile(t, filepath.Join(tmpDir, ".env"), "PROOFMESH_MODEL_TIER=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("PROOFMESH_MODEL_TIER") })
	os.Unsetenv("PROOFMESH_MODEL_TIER")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Reasoning.ModelTier)
}

func TestPROOFMESH_CONFIG(t *testing.T) {
	tmpDir := isolate(t)

	custom := filepath.Join(tmpDir, "elsewhere", "custom.json")
	writeFile(t, custom, `{"reasoning": {"replay": "./streams"}}`)
	t.Setenv("PROOFMESH_CONFIG", custom)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "./streams", cfg.Reasoning.Replay)
}

func TestDurationJSON(t *testing.T) {
	var rc types.ReasoningConfig
	require.NoError(t, json.Unmarshal([]byte(`{"header_timeout": 250}`), &rc))
	assert.Equal(t, 250*time.Millisecond, rc.HeaderTimeout.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"header_timeout": "3s"}`), &rc))
	assert.Equal(t, 3*time.Second, rc.HeaderTimeout.Std())

	assert.Error(t, json.Unmarshal([]byte(`{"header_timeout": "later"}`), &rc))

	out, err := json.Marshal(types.AutosaveConfig{Debounce: types.Duration(time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"debounce": "1s"}`, string(out))
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := isolate(t)

	cfg := &types.Config{
		Reasoning: &types.ReasoningConfig{URL: "http://saved", MaxRetries: 7},
	}
	path := ProjectConfigPath(tmpDir)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "http://saved", loaded.Reasoning.URL)
	assert.Equal(t, 7, loaded.Reasoning.MaxRetries)
}

func TestGetPaths(t *testing.T) {
	tmpDir := isolate(t)

	paths := GetPaths()
	assert.Equal(t, filepath.Join(tmpDir, ".config", "proofmesh"), paths.Config)
	assert.Equal(t, filepath.Join(paths.Data, "storage"), paths.StoragePath())
	assert.Equal(t, filepath.Join(tmpDir, ".config", "proofmesh", "proofmesh.json"), GlobalConfigPath())
}
