package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/reverie-app/reverie/internal/redact"
)

// Config holds application configuration.
type Config struct {
	// GatewayBaseURL is the base URL of the remote reasoning service.
	// Empty means the gateway is unavailable and callers fall back to
	// local seed content.
	GatewayBaseURL string `json:"gateway_base_url,omitempty"`

	// GatewayAPIKey is sent as a bearer token on gateway requests.
	GatewayAPIKey string `json:"gateway_api_key,omitempty"`

	// ClientName identifies this client on gateway requests.
	ClientName string `json:"client_name,omitempty"`

	// RedactionVersion tags the current redaction dictionary revision.
	RedactionVersion int `json:"redaction_version,omitempty"`

	// RedactionTokens are substituted case-insensitively in transcripts
	// before any external use.
	RedactionTokens []string `json:"redaction_tokens,omitempty"`

	// RedactionPlaceholder overrides the default substitution placeholder.
	RedactionPlaceholder string `json:"redaction_placeholder,omitempty"`

	// HalfLifeDays overrides the pattern-decay half-life per pattern kind.
	// Kinds not listed use the learning store default (14 days).
	HalfLifeDays map[string]float64 `json:"half_life_days,omitempty"`

	// LogPath is where the rotating JSON log is written.
	// Empty means baseDir/reverie.log.
	LogPath string `json:"log_path,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is
	// locked" errors). 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are ignored.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ClientName:       "reverie",
		RedactionVersion: 1,
	}
}

// RedactionDictionary builds the redaction dictionary from config.
func (c *Config) RedactionDictionary() redact.Dictionary {
	return redact.Dictionary{
		Version:     c.RedactionVersion,
		Tokens:      c.RedactionTokens,
		Placeholder: c.RedactionPlaceholder,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.reverie.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and
// deduplicated; maps are merged with overlay winning per key.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.GatewayBaseURL = overlayString(base.GatewayBaseURL, overlay.GatewayBaseURL)
	result.GatewayAPIKey = overlayString(base.GatewayAPIKey, overlay.GatewayAPIKey)
	result.ClientName = overlayString(base.ClientName, overlay.ClientName)
	result.RedactionPlaceholder = overlayString(base.RedactionPlaceholder, overlay.RedactionPlaceholder)
	result.LogPath = overlayString(base.LogPath, overlay.LogPath)

	result.RedactionVersion = overlay.RedactionVersion
	if result.RedactionVersion == 0 {
		result.RedactionVersion = base.RedactionVersion
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.RedactionTokens = mergeStringSlice(base.RedactionTokens, overlay.RedactionTokens)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.HalfLifeDays = mergeFloatMap(base.HalfLifeDays, overlay.HalfLifeDays)

	return result
}

func overlayString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// mergeFloatMap combines two maps with overlay winning per key.
func mergeFloatMap(a, b map[string]float64) map[string]float64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	result := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		result[k] = v
	}
	for k, v := range b {
		result[k] = v
	}
	return result
}
