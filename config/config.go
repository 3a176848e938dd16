// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/ergowatch/history"
	"go.aimuz.me/ergowatch/internal/types"
)

const (
	appName        = "ergowatch"
	configFileName = "config.json"
)

// Environment variables that override stored API keys.
const (
	EnvGeminiAPIKey = "ERGOWATCH_GEMINI_API_KEY"
	EnvOpenAIAPIKey = "ERGOWATCH_OPENAI_API_KEY"
)

// ErrNoCredential is returned when a selection names no usable credential.
var ErrNoCredential = errors.New("no credential configured")

// Config represents the application configuration.
type Config struct {
	Credentials []types.APICredential `json:"credentials,omitempty"`

	Streaming types.ProviderSelection `json:"streaming"`
	// Analysis is optional; an empty CredentialID disables deep analysis.
	Analysis types.ProviderSelection `json:"analysis"`

	Cadence Cadence `json:"cadence"`
	History string  `json:"history"` // memory, badger

	// MQTT mirrors session events to a broker when Broker is set.
	MQTT MQTT `json:"mqtt,omitzero"`

	path string
}

// Cadence overrides the session timings. Zero values take the defaults.
type Cadence struct {
	FrameIntervalMS int     `json:"frame_interval_ms,omitempty"`
	DeepIntervalMS  int     `json:"deep_interval_ms,omitempty"`
	CooldownMS      int     `json:"cooldown_ms,omitempty"`
	ToastMS         int     `json:"toast_ms,omitempty"`
	FrameQuality    float64 `json:"frame_quality,omitempty"`
	DeepQuality     float64 `json:"deep_quality,omitempty"`
}

// MQTT configures the event mirror.
type MQTT struct {
	Broker      string `json:"broker,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

// FrameInterval returns the frame cadence, or zero for the default.
func (c Cadence) FrameInterval() time.Duration { return ms(c.FrameIntervalMS) }

// DeepInterval returns the deep-analysis cadence, or zero for the default.
func (c Cadence) DeepInterval() time.Duration { return ms(c.DeepIntervalMS) }

// Cooldown returns the alert cooldown, or zero for the default.
func (c Cadence) Cooldown() time.Duration { return ms(c.CooldownMS) }

// ToastDuration returns the toast lifetime, or zero for the default.
func (c Cadence) ToastDuration() time.Duration { return ms(c.ToastMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load loads configuration from the default location.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path, applying defaults and environment
// overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	cfg.path = path

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to the location it was loaded from, or
// the default location.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		var err error
		if path, err = Path(); err != nil {
			return err
		}
	}
	return c.SaveTo(path)
}

// SaveTo persists the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Keys are stored in the file; keep it private.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.path = path
	return nil
}

// Validate checks references and ranges.
func (c *Config) Validate() error {
	switch c.History {
	case history.BackendMemory, history.BackendBadger:
	default:
		return fmt.Errorf("unknown history backend: %s", c.History)
	}

	for _, cred := range c.Credentials {
		if err := validateCredential(cred); err != nil {
			return fmt.Errorf("credential %q: %w", cred.Name, err)
		}
	}
	for name, sel := range map[string]types.ProviderSelection{"streaming": c.Streaming, "analysis": c.Analysis} {
		if sel.CredentialID != "" && c.GetCredential(sel.CredentialID) == nil {
			return fmt.Errorf("%s: credential not found: %s", name, sel.CredentialID)
		}
	}

	cd := c.Cadence
	if cd.FrameIntervalMS < 0 || cd.DeepIntervalMS < 0 || cd.CooldownMS < 0 || cd.ToastMS < 0 {
		return fmt.Errorf("cadence values must not be negative")
	}
	for _, q := range []float64{cd.FrameQuality, cd.DeepQuality} {
		if q < 0 || q > 1 {
			return fmt.Errorf("jpeg quality %v out of range [0, 1]", q)
		}
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Credentials: []types.APICredential{},
		History:     history.BackendMemory,
	}
}

// applyEnv overrides stored keys from the environment. A key with no stored
// credential of its type creates one, and fills empty selections.
func (c *Config) applyEnv() {
	for _, env := range []struct{ name, typ string }{
		{EnvGeminiAPIKey, types.ProviderGemini},
		{EnvOpenAIAPIKey, types.ProviderOpenAI},
	} {
		key := os.Getenv(env.name)
		if key == "" {
			continue
		}

		idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
			return x.Type == env.typ
		})
		if idx == -1 {
			c.Credentials = append(c.Credentials, types.APICredential{
				ID:   uuid.New().String(),
				Name: env.name,
				Type: env.typ,
			})
			idx = len(c.Credentials) - 1
		}
		c.Credentials[idx].APIKey = key

		if c.Streaming.CredentialID == "" {
			c.Streaming.CredentialID = c.Credentials[idx].ID
		}
		if c.Analysis.CredentialID == "" {
			c.Analysis.CredentialID = c.Credentials[idx].ID
		}
	}
}

func validateCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if cred.Type != types.ProviderGemini && cred.Type != types.ProviderOpenAI {
		return fmt.Errorf("unsupported provider type: %s", cred.Type)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredential returns a credential by ID.
func (c *Config) GetCredential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// Resolve returns the credential chosen by sel.
func (c *Config) Resolve(sel types.ProviderSelection) (types.APICredential, error) {
	if sel.CredentialID == "" {
		return types.APICredential{}, ErrNoCredential
	}
	cred := c.GetCredential(sel.CredentialID)
	if cred == nil {
		return types.APICredential{}, fmt.Errorf("credential not found: %s", sel.CredentialID)
	}
	return *cred, nil
}

// AddCredential adds a new API credential and returns its ID.
func (c *Config) AddCredential(cred types.APICredential) (string, error) {
	if err := validateCredential(cred); err != nil {
		return "", err
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	c.Credentials = append(c.Credentials, cred)
	return cred.ID, c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if credential is in use by a provider selection.
func (c *Config) RemoveCredential(id string) error {
	if c.Streaming.CredentialID == id {
		return fmt.Errorf("credential in use by streaming")
	}
	if c.Analysis.CredentialID == id {
		return fmt.Errorf("credential in use by analysis")
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	out.Credentials = slices.Clone(c.Credentials)
	for i := range out.Credentials {
		out.Credentials[i].APIKey = mask(out.Credentials[i].APIKey)
	}
	return out
}

func mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
