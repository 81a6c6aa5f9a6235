package config

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// UserConfig is the per-user configuration carried opaquely in the request
// path as a base64 token, the way media-browsing clients install addons.
type UserConfig struct {
	Key        string `json:"key,omitempty"`
	Lang       string `json:"lang"`
	CacheHours int    `json:"cache,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
}

// DecodeUserConfig decodes and validates a base64 user-config token.
func DecodeUserConfig(token string) (*UserConfig, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(token); err != nil {
			return nil, fmt.Errorf("decode config token: %w", err)
		}
	}

	var cfg UserConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config token: %w", err)
	}
	if cfg.Lang == "" {
		return nil, fmt.Errorf("target language not configured")
	}
	if !IsLanguageSupported(cfg.Lang) {
		return nil, fmt.Errorf("unsupported language: %s", cfg.Lang)
	}
	return &cfg, nil
}

// Encode renders the config back into a URL-safe token.
func (c UserConfig) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

// Identity derives a stable caller identity from the token contents, used
// for cache keys and rate-limit accounting without exposing the API key.
func (c UserConfig) Identity() string {
	sum := sha256.Sum256([]byte(c.Key + "|" + c.Lang))
	return hex.EncodeToString(sum[:8])
}
