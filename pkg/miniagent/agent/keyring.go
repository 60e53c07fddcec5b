// Package agent – keyring.go resolves the provider API key through the
// secrets chain: environment variable, then OS keyring (Linux Secret
// Service, macOS Keychain, Windows Credential Manager), then config value.
package agent

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name in the OS keyring.
	keyringService = "mini-agent"

	// keyringAPIKey is the key name for the provider API key.
	keyringAPIKey = "api_key"

	// apiKeyEnvVar is consulted first in the secrets chain.
	apiKeyEnvVar = "ANTHROPIC_API_KEY"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, "" when absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable probes the OS keyring with a write+delete cycle.
func KeyringAvailable() bool {
	const testKey = "__mini_agent_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey fills cfg.Agent.APIKey from the secrets chain:
// environment → OS keyring → existing config value. Returns the resolved
// key, "" when nothing was found.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	if key := os.Getenv(apiKeyEnvVar); key != "" {
		cfg.Agent.APIKey = key
		logger.Debug("API key loaded from environment")
		return key
	}
	if key := GetKeyring(keyringAPIKey); key != "" {
		cfg.Agent.APIKey = key
		logger.Debug("API key loaded from OS keyring")
		return key
	}
	if cfg.Agent.APIKey != "" && !isEnvReference(cfg.Agent.APIKey) {
		logger.Debug("API key loaded from config")
		return cfg.Agent.APIKey
	}

	logger.Warn("no API key found",
		"hint", fmt.Sprintf("set %s or run: mini-agent config set-key", apiKeyEnvVar))
	return ""
}

// StoreAPIKey migrates the key into the OS keyring so it can be removed
// from .env and config files.
func StoreAPIKey(apiKey string) error {
	if err := StoreKeyring(keyringAPIKey, apiKey); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

// ReadPassword prompts on a terminal without echoing. Falls back with an
// error when stdin is not a TTY.
func ReadPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// isEnvReference reports whether a config value is an unexpanded env
// placeholder rather than a usable secret.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}
