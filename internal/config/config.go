// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/hypve-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete hypve configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Render  RenderConfig  `toml:"render" json:"render"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// ServerConfig describes the chat backend.
type ServerConfig struct {
	// BaseURL is the scheme+host of the backend, e.g. http://localhost:5000
	BaseURL string `toml:"base_url" json:"base_url"`
	// GeneratePath is the prompt endpoint (POST {prompt[, stream]})
	GeneratePath string `toml:"generate_path" json:"generate_path"`
	// UserPath is the session probe endpoint (GET -> {id, email})
	UserPath string `toml:"user_path" json:"user_path"`
	// Stream requests server-sent events instead of a single JSON reply
	Stream bool `toml:"stream" json:"stream"`
	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes int64 `toml:"max_response_bytes" json:"max_response_bytes"`
}

// StorageConfig selects the local chat history store.
type StorageConfig struct {
	// Backend is one of "sqlite", "buntdb", "memory"
	Backend string `toml:"backend" json:"backend"`
	// Path is the database file (ignored for memory)
	Path string `toml:"path" json:"path"`
	// DisambiguateTitles appends a short random suffix when a new chat's
	// title collides with an existing one
	DisambiguateTitles bool `toml:"disambiguate_titles" json:"disambiguate_titles"`
	// TitleMaxRunes is the length of a title derived from the first prompt
	TitleMaxRunes int `toml:"title_max_runes" json:"title_max_runes"`
}

// RenderConfig controls how responses are displayed.
type RenderConfig struct {
	Markdown          bool   `toml:"markdown" json:"markdown"`
	Typewriter        bool   `toml:"typewriter" json:"typewriter"`
	TypewriterDelayMs int    `toml:"typewriter_delay_ms" json:"typewriter_delay_ms"`
	RerenderMinRunes  int    `toml:"rerender_min_runes" json:"rerender_min_runes"`
	HighlightEvery    int    `toml:"highlight_every" json:"highlight_every"`
	CodeStyle         string `toml:"code_style" json:"code_style"`
	WordWrap          int    `toml:"word_wrap" json:"word_wrap"`
}

// UIConfig contains TUI preferences.
type UIConfig struct {
	// Theme is "auto", "dark" or "light"
	Theme         string `toml:"theme" json:"theme"`
	ShowSidebar   bool   `toml:"show_sidebar" json:"show_sidebar"`
	ConfirmDelete bool   `toml:"confirm_delete" json:"confirm_delete"`
}

// LogConfig controls the diagnostic log.
type LogConfig struct {
	Path  string `toml:"path" json:"path"`
	Debug bool   `toml:"debug" json:"debug"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dir, err := util.HomeDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "hypve")
	}

	return &Config{
		Version: "1",
		Server: ServerConfig{
			BaseURL:          "http://localhost:5000",
			GeneratePath:     "/generate",
			UserPath:         "/get-user",
			Stream:           true,
			TimeoutSecs:      60,
			MaxResponseBytes: 10 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Backend:            "sqlite",
			Path:               filepath.Join(dir, "chats.db"),
			DisambiguateTitles: true,
			TitleMaxRunes:      30,
		},
		Render: RenderConfig{
			Markdown:          true,
			Typewriter:        true,
			TypewriterDelayMs: 16,
			RerenderMinRunes:  24,
			HighlightEvery:    8,
			CodeStyle:         "monokai",
			WordWrap:          100,
		},
		UI: UIConfig{
			Theme:         "auto",
			ShowSidebar:   true,
			ConfirmDelete: true,
		},
		Log: LogConfig{
			Path: filepath.Join(dir, "hypve.log"),
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the hypve configuration directory.
func ConfigDir() (string, error) {
	return util.HomeDir()
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults. Environment
// overrides are applied last. A file that fails to parse is reported
// alongside the defaults so the caller can warn and continue.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg, err := LoadFromPath(tomlPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	if loadErr == nil {
		if jsonPath, err := ConfigPathJSON(); err == nil {
			if _, statErr := os.Stat(jsonPath); statErr == nil {
				cfg, err := LoadFromPath(jsonPath)
				if err == nil {
					return cfg, nil
				}
				loadErr = err
			}
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file with defaults,
// env overrides and validation applied.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// fillDefaults replaces zero values a partial file left behind.
// Booleans are not touched: decoding into Default() keeps them.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	if c.Server.GeneratePath == "" {
		c.Server.GeneratePath = d.Server.GeneratePath
	}
	if c.Server.UserPath == "" {
		c.Server.UserPath = d.Server.UserPath
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = d.Server.TimeoutSecs
	}
	if c.Server.MaxResponseBytes == 0 {
		c.Server.MaxResponseBytes = d.Server.MaxResponseBytes
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Storage.TitleMaxRunes == 0 {
		c.Storage.TitleMaxRunes = d.Storage.TitleMaxRunes
	}
	if c.Render.TypewriterDelayMs == 0 {
		c.Render.TypewriterDelayMs = d.Render.TypewriterDelayMs
	}
	if c.Render.RerenderMinRunes == 0 {
		c.Render.RerenderMinRunes = d.Render.RerenderMinRunes
	}
	if c.Render.HighlightEvery == 0 {
		c.Render.HighlightEvery = d.Render.HighlightEvery
	}
	if c.Render.CodeStyle == "" {
		c.Render.CodeStyle = d.Render.CodeStyle
	}
	if c.Render.WordWrap == 0 {
		c.Render.WordWrap = d.Render.WordWrap
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Path == "" {
		c.Log.Path = d.Log.Path
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# hypve configuration file\n")
	sb.WriteString("# Generated by hypve - edit with care\n\n")

	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors if any
// field is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL %q, expected scheme://host[:port]", c.Server.BaseURL),
		})
	}
	for field, p := range map[string]string{
		"server.generate_path": c.Server.GeneratePath,
		"server.user_path":     c.Server.UserPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("path %q must start with /", p)})
		}
	}
	if c.Server.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "server.timeout_secs", Message: "must be positive"})
	}
	if c.Server.MaxResponseBytes <= 0 {
		errs = append(errs, ValidationError{Field: "server.max_response_bytes", Message: "must be positive"})
	}

	validBackends := map[string]bool{"sqlite": true, "buntdb": true, "memory": true}
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: sqlite, buntdb, memory", c.Storage.Backend),
		})
	}
	if c.Storage.TitleMaxRunes < 4 || c.Storage.TitleMaxRunes > 200 {
		errs = append(errs, ValidationError{
			Field:   "storage.title_max_runes",
			Message: fmt.Sprintf("must be 4-200, got %d", c.Storage.TitleMaxRunes),
		})
	}

	if c.Render.TypewriterDelayMs < 0 || c.Render.TypewriterDelayMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "render.typewriter_delay_ms",
			Message: fmt.Sprintf("must be 0-1000, got %d", c.Render.TypewriterDelayMs),
		})
	}
	if c.Render.RerenderMinRunes < 1 {
		errs = append(errs, ValidationError{Field: "render.rerender_min_runes", Message: "must be at least 1"})
	}
	if c.Render.HighlightEvery < 1 {
		errs = append(errs, ValidationError{Field: "render.highlight_every", Message: "must be at least 1"})
	}
	if chromaStyles.Get(c.Render.CodeStyle) == chromaStyles.Fallback && c.Render.CodeStyle != chromaStyles.Fallback.Name {
		errs = append(errs, ValidationError{
			Field:   "render.code_style",
			Message: fmt.Sprintf("unknown chroma style '%s'", c.Render.CodeStyle),
		})
	}
	if c.Render.WordWrap < 20 {
		errs = append(errs, ValidationError{Field: "render.word_wrap", Message: "must be at least 20"})
	}

	validThemes := map[string]bool{"auto": true, "dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - HYPVE_SERVER_URL: overrides server.base_url
//   - HYPVE_STREAM: "1"/"true" or "0"/"false"
//   - HYPVE_STORAGE_BACKEND: overrides storage.backend
//   - HYPVE_STORAGE_PATH: overrides storage.path
//   - HYPVE_TYPEWRITER: "1"/"true" or "0"/"false"
//   - HYPVE_DEBUG: enables debug logging
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HYPVE_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("HYPVE_STREAM"); v != "" {
		c.Server.Stream = parseBool(v)
	}
	if v := os.Getenv("HYPVE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("HYPVE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("HYPVE_TYPEWRITER"); v != "" {
		c.Render.Typewriter = parseBool(v)
	}
	if v := os.Getenv("HYPVE_DEBUG"); v != "" {
		c.Log.Debug = parseBool(v)
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// ErrUnknownKey is returned by Get and Set for a key that names no field.
var ErrUnknownKey = errors.New("unknown config key")

// Get retrieves a configuration value using dot notation (e.g. "server.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type, so CLI input can be passed through.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("%w: %s is read-only", ErrUnknownKey, key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, fmt.Errorf("%w: empty key", ErrUnknownKey)
	}

	v := reflect.ValueOf(c).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		found := false
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if tagName(t.Field(i)) == part {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s is a section, not a value", ErrUnknownKey, key)
	}
	return v, nil
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("invalid boolean %q: %w", s, err)
			}
			field.SetBool(b)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer %q: %w", s, err)
			}
			field.SetInt(n)
			return nil
		}
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return errors.New("nil value")
	}
	if rv.Type().ConvertibleTo(field.Type()) && rv.Kind() == field.Kind() {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	if isInt(rv.Kind()) && isInt(field.Kind()) {
		field.SetInt(rv.Int())
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func isInt(k reflect.Kind) bool {
	return k == reflect.Int || k == reflect.Int64 || k == reflect.Int32
}

// Keys lists every dot-notation key, in declaration order.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tagName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return sb.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ReloadGlobal re-reads the config files into the global instance.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg != nil {
		SetGlobal(cfg)
	}
	return err
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
