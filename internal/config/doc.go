// Package config loads and merges ProofMesh configuration.
//
// # Configuration Loading
//
// Load searches for configuration in priority order, later sources
// overriding earlier ones field by field:
//
//  1. Global config (~/.config/proofmesh/proofmesh.json, .jsonc or .yaml)
//  2. Project config (proofmesh.json/proofmesh.jsonc in the project root,
//     then .proofmesh/proofmesh.json, .jsonc, .yaml or .yml)
//  3. The file named by PROOFMESH_CONFIG
//  4. A .env file in the project root (never overrides the process env)
//  5. PROOFMESH_* environment variables
//
// Defaults fill any value no source sets, so callers can dereference every
// section of the returned config.
//
// # Supported Formats
//
// JSON files may carry comments (tidwall/jsonc). YAML files use the same
// snake_case keys:
//
//	reasoning:
//	  url: https://reasoner.internal
//	  api_key: "{env:REASONER_KEY}"
//	  max_retries: 5
//	autosave:
//	  debounce: 1.2s
//
// # Variable Interpolation
//
// Both formats support placeholders, expanded before parsing:
//   - {env:VAR_NAME} expands to an environment variable
//   - {file:path} expands to file contents, escaped for a JSON string;
//     relative paths resolve against the config file's directory and ~/
//     against HOME
//
// # Environment Variables
//
//   - PROOFMESH_REASONING_URL, PROOFMESH_REASONING_API_KEY
//   - PROOFMESH_MODEL_TIER, PROOFMESH_MAX_RETRIES
//   - PROOFMESH_AUTOSAVE_DEBOUNCE (Go duration string)
//   - PROOFMESH_LOG_LEVEL, PROOFMESH_STORAGE_DIR
//
// # Paths
//
// GetPaths returns XDG-style directories (data, config, cache, state) under
// a "proofmesh" subdirectory. The audit trail lives in Paths.StoragePath
// unless storage.dir is configured.
package config
