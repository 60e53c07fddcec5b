// Package agent – loader.go loads configuration from YAML with environment
// expansion. .env files are loaded first (never overwriting real env vars),
// then ${VAR}, ${VAR:-default}, and ${VAR:?error} references in the YAML
// text are resolved before parsing.
package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, and ${VAR:?error}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)

// LoadConfigFromFile reads, expands, and parses a YAML config file,
// overlaying it onto the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := ExpandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	resolveConfigPaths(cfg, filepath.Dir(path))
	checkFilePermissions(path)
	return cfg, nil
}

// FindConfigFile probes the standard locations relative to the workspace
// and returns the first hit, or "".
func FindConfigFile(workspace string) string {
	candidates := []string{
		"mini-agent.yaml",
		"mini-agent.yml",
		filepath.Join(".mini-agent", "config.yaml"),
	}
	for _, rel := range candidates {
		path := filepath.Join(workspace, rel)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ExpandEnvVars resolves environment references in a config text.
// ${VAR:-default} substitutes the default when VAR is unset or empty;
// ${VAR:?message} fails the load with the message. Unset plain ${VAR}
// references are left intact so placeholders survive round-trips.
func ExpandEnvVars(input string) (string, error) {
	var expandErr error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, modifier := groups[1], groups[2]
		val := os.Getenv(name)

		switch {
		case strings.HasPrefix(modifier, ":-"):
			if val == "" {
				return modifier[2:]
			}
			return val
		case strings.HasPrefix(modifier, ":?"):
			if val == "" {
				msg := modifier[2:]
				if msg == "" {
					msg = "required but not set"
				}
				if expandErr == nil {
					expandErr = fmt.Errorf("env %s: %s", name, msg)
				}
				return match
			}
			return val
		default:
			if val == "" {
				return match
			}
			return val
		}
	})
	return out, expandErr
}

// resolveConfigPaths anchors relative paths at the config file's directory
// and expands a leading "~".
func resolveConfigPaths(cfg *Config, baseDir string) {
	cfg.Heartbeat.TaskFile = resolvePath(cfg.Heartbeat.TaskFile, baseDir)
	cfg.Audit.Path = resolvePath(cfg.Audit.Path, baseDir)
}

func resolvePath(path, baseDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// loadEnvFiles loads .env files from the working directory. godotenv never
// overwrites variables already set in the environment.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// checkFilePermissions warns when the config file is group/world readable,
// since it may hold an API key.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
