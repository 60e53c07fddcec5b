// Package agent – builtin_tools.go registers the core tools that are always
// available regardless of which skills are installed: file read/write, shell
// execution, and recursive text search. Write and exec are gated by the
// sandbox settings; read and grep are always on.
package agent

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxReadBytes caps read output returned to the model.
	maxReadBytes = 100_000

	// maxExecBytes caps combined shell output returned to the model.
	maxExecBytes = 50_000

	// maxGrepMatches caps search output lines.
	maxGrepMatches = 200
)

// SandboxConfig gates the side-effecting builtins and anchors relative
// paths.
type SandboxConfig struct {
	// WorkDir anchors relative tool paths; empty means the process cwd.
	WorkDir string

	// AllowWrite enables the write tool.
	AllowWrite bool

	// AllowExec enables the exec tool.
	AllowExec bool
}

func (s SandboxConfig) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || s.WorkDir == "" {
		return path
	}
	return filepath.Join(s.WorkDir, path)
}

// RegisterBuiltinTools adds the builtin tool set to the registry.
func RegisterBuiltinTools(reg *ToolRegistry, sandbox SandboxConfig) {
	registerReadTool(reg, sandbox)
	registerWriteTool(reg, sandbox)
	registerExecTool(reg, sandbox)
	registerGrepTool(reg, sandbox)
}

func registerReadTool(reg *ToolRegistry, sandbox SandboxConfig) {
	reg.Register(
		ToolDefinition{
			Name:        "read",
			Description: "Read the contents of a file. Returns up to 100KB of text.",
			InputSchema: ObjectSchema(map[string]any{
				"path": StringProp("File path (absolute or workspace-relative)"),
			}, "path"),
		},
		func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("path is required")
			}
			content, err := os.ReadFile(sandbox.resolvePath(path))
			if err != nil {
				return nil, fmt.Errorf("reading file: %w", err)
			}
			text := string(content)
			if len(text) > maxReadBytes {
				text = text[:maxReadBytes] + "\n... [truncated at 100KB]"
			}
			return text, nil
		},
	)
}

func registerWriteTool(reg *ToolRegistry, sandbox SandboxConfig) {
	reg.Register(
		ToolDefinition{
			Name:        "write",
			Description: "Write content to a file, creating parent directories if needed. Overwrites existing content.",
			InputSchema: ObjectSchema(map[string]any{
				"path":    StringProp("File path (absolute or workspace-relative)"),
				"content": StringProp("Content to write"),
			}, "path", "content"),
		},
		func(_ context.Context, args map[string]any) (any, error) {
			if !sandbox.AllowWrite {
				return nil, fmt.Errorf("write tool is disabled: set tools.allow_write to enable")
			}
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if path == "" {
				return nil, fmt.Errorf("path is required")
			}
			resolved := sandbox.resolvePath(path)
			if dir := filepath.Dir(resolved); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("creating parent directories: %w", err)
				}
			}
			if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("writing file: %w", err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	)
}

func registerExecTool(reg *ToolRegistry, sandbox SandboxConfig) {
	reg.Register(
		ToolDefinition{
			Name:        "exec",
			Description: "Execute a shell command and return its combined output.",
			InputSchema: ObjectSchema(map[string]any{
				"command": StringProp("Shell command to execute"),
			}, "command"),
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			if !sandbox.AllowExec {
				return nil, fmt.Errorf("exec tool is disabled: set tools.allow_exec to enable")
			}
			command, _ := args["command"].(string)
			if command == "" {
				return nil, fmt.Errorf("command is required")
			}

			cmd := exec.CommandContext(ctx, "bash", "-c", command)
			if sandbox.WorkDir != "" {
				cmd.Dir = sandbox.WorkDir
			}
			output, err := cmd.CombinedOutput()
			text := string(output)
			if len(text) > maxExecBytes {
				text = text[:maxExecBytes] + "\n... [output truncated]"
			}
			if err != nil {
				if text == "" {
					return nil, fmt.Errorf("command failed: %w", err)
				}
				return fmt.Sprintf("%s\n(command failed: %v)", text, err), nil
			}
			if text == "" {
				return "(no output)", nil
			}
			return text, nil
		},
	)
}

func registerGrepTool(reg *ToolRegistry, sandbox SandboxConfig) {
	reg.Register(
		ToolDefinition{
			Name:        "grep",
			Description: "Search files recursively for a pattern. Returns matching lines as file:line: text.",
			InputSchema: ObjectSchema(map[string]any{
				"pattern": StringProp("Substring or Go regular expression to search for"),
				"path":    StringProp("File or directory to search (default: workspace)"),
			}, "pattern"),
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			pattern, _ := args["pattern"].(string)
			if pattern == "" {
				return nil, fmt.Errorf("pattern is required")
			}
			root, _ := args["path"].(string)
			if root == "" {
				root = sandbox.WorkDir
				if root == "" {
					root = "."
				}
			} else {
				root = sandbox.resolvePath(root)
			}

			// Treat the pattern as a regexp when it compiles, otherwise
			// fall back to substring search.
			var re *regexp.Regexp
			if compiled, err := regexp.Compile(pattern); err == nil {
				re = compiled
			}

			matches, err := grepPath(ctx, root, pattern, re)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return "(no matches)", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	)
}

// grepPath walks root and collects matching lines. Dot-directories and
// node_modules are skipped; unreadable or binary-looking files are ignored.
func grepPath(ctx context.Context, root, pattern string, re *regexp.Regexp) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil || strings.ContainsRune(string(content[:min(len(content), 1024)]), '\x00') {
			return nil
		}
		for i, line := range strings.Split(string(content), "\n") {
			matched := false
			if re != nil {
				matched = re.MatchString(line)
			} else {
				matched = strings.Contains(line, pattern)
			}
			if matched {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxGrepMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	return matches, nil
}
