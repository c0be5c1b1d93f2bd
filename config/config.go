// SPDX-License-Identifier: MPL-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	KeyRoot             = "root"
	KeyUsername         = "username"
	KeyPassword         = "password"
	KeyEmail            = "email"
	KeyName             = "name"
	KeyUserID           = "user_id"
	KeyToken            = "token"
	KeyLastDev          = "lastDev"
	KeyLastSync         = "lastSync"
	KeyLastSyncResponse = "lastSyncResponseData"
	KeyNewestVisual     = "newestVisual"
	KeyIsInstalled      = "isInstalled"
)

const appDirName = "imagelance-cli"

// Token is the OAuth token as returned by the accounts service.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Account is the identity persisted after login.
type Account struct {
	ID       int64
	Username string
	Password string
	Email    string
	Name     string
}

// Config is the typed view over a Store. It holds no state of its own, so
// every getter reads through to the store.
type Config struct {
	store Store
}

func New(store Store) *Config {
	return &Config{store: store}
}

// DefaultPath returns the location of the config database.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, appDirName, "config.db"), nil
}

func (c *Config) Store() Store {
	return c.store
}

// Get decodes the value under key into dst. It reports false when the key was
// never written, leaving dst untouched.
func (c *Config) Get(key string, dst any) (bool, error) {
	raw, found, err := c.store.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode config key %s: %w", key, err)
	}
	return true, nil
}

func (c *Config) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config key %s: %w", key, err)
	}
	return c.store.Set(key, raw)
}

func (c *Config) Delete(key string) error {
	return c.store.Delete(key)
}

// String returns the string under key, or "" when unset or not a string.
func (c *Config) String(key string) string {
	var s string
	if ok, err := c.Get(key, &s); !ok || err != nil {
		return ""
	}
	return s
}

func (c *Config) Bool(key string) bool {
	var b bool
	if ok, err := c.Get(key, &b); !ok || err != nil {
		return false
	}
	return b
}

func (c *Config) Root() string {
	return c.String(KeyRoot)
}

// SetRoot stores the templates root with forward slashes.
func (c *Config) SetRoot(root string) error {
	return c.Set(KeyRoot, filepath.ToSlash(root))
}

func (c *Config) Token() (*Token, error) {
	var tok Token
	ok, err := c.Get(KeyToken, &tok)
	if err != nil || !ok || tok.AccessToken == "" {
		return nil, err
	}
	return &tok, nil
}

func (c *Config) SetToken(tok Token) error {
	return c.Set(KeyToken, tok)
}

// AccessToken returns the Authorization header value, or "" without a token.
func (c *Config) AccessToken() string {
	tok, err := c.Token()
	if err != nil || tok == nil {
		return ""
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + tok.AccessToken
}

func (c *Config) SetUser(account Account) error {
	values := []struct {
		key   string
		value any
	}{
		{KeyUsername, account.Username},
		{KeyPassword, account.Password},
		{KeyEmail, account.Email},
		{KeyUserID, account.ID},
		{KeyName, account.Name},
	}
	for _, v := range values {
		if err := c.Set(v.key, v.value); err != nil {
			return err
		}
	}
	return nil
}

// GitCredentials returns the stored git username and password.
func (c *Config) GitCredentials() (string, string) {
	return c.String(KeyUsername), c.String(KeyPassword)
}

// Identity returns the name and email used for git commits.
func (c *Config) Identity() (string, string) {
	return c.String(KeyName), c.String(KeyEmail)
}

func (c *Config) LastDev() string {
	return c.String(KeyLastDev)
}

func (c *Config) SetLastDev(visual string) error {
	return c.Set(KeyLastDev, visual)
}

func (c *Config) NewestVisual() string {
	return c.String(KeyNewestVisual)
}

func (c *Config) SetNewestVisual(visual string) error {
	return c.Set(KeyNewestVisual, visual)
}

func (c *Config) HasSynced() bool {
	return c.String(KeyLastSync) != ""
}

func (c *Config) MarkSynced(at time.Time) error {
	return c.Set(KeyLastSync, at.UTC().Format(time.RFC3339))
}

func (c *Config) IsInstalled() bool {
	return c.Bool(KeyIsInstalled)
}

func (c *Config) SetInstalled(installed bool) error {
	return c.Set(KeyIsInstalled, installed)
}

// All returns every stored value decoded into generic JSON types.
func (c *Config) All() (map[string]any, error) {
	raw, err := c.store.All()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			out[k] = string(v)
			continue
		}
		out[k] = decoded
	}
	return out, nil
}
