// Package agent – skills.go discovers markdown skills and turns them into
// slash commands and a system prompt fragment.
//
// Skills are markdown files with YAML frontmatter:
//
//	---
//	name: review
//	description: "Review a changeset"
//	user-invocable: true
//	---
//	Instructions for the agent...
//
// Two tiers are scanned: the managed directory (~/.mini-agent/skills) and
// the workspace directory (<workspace>/skills). A workspace skill replaces a
// managed skill with the same name.
package agent

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Skill tiers in scan order; later tiers win name collisions.
const (
	SkillTierManaged   = "managed"
	SkillTierWorkspace = "workspace"
)

const (
	maxCommandLen          = 32
	maxSkillDescriptionLen = 100
)

// Skill is one discovered skill definition.
type Skill struct {
	// Name is the frontmatter name, or the file/directory basename when
	// the frontmatter has none.
	Name string

	// Description as declared in the frontmatter. Mandatory: files
	// without one are rejected at load time.
	Description string

	// Command is the sanitized, collision-suffixed slash command.
	Command string

	// Path is the absolute path of the skill's markdown file.
	Path string

	// Tier records which tier the definition came from.
	Tier string

	// UserInvocable gates slash-command exposure (default true).
	UserInvocable bool

	// DisableModelInvocation hides the skill from the system prompt
	// fragment while keeping its slash command (default false).
	DisableModelInvocation bool
}

// SkillSet holds the resolved skills in deterministic order plus the
// command lookup table.
type SkillSet struct {
	skills    []Skill
	byCommand map[string]int
	logger    *slog.Logger
}

// LoadSkills scans both tiers and resolves collisions. Identity follows the
// skill name: a workspace skill shadows a managed one. Returns an empty set
// when no skills directory exists.
func LoadSkills(managedDir, workspaceDir string, logger *slog.Logger) *SkillSet {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "skills")

	byName := make(map[string]Skill)
	var order []string
	for _, tier := range []struct {
		name string
		dir  string
	}{
		{SkillTierManaged, managedDir},
		{SkillTierWorkspace, workspaceDir},
	} {
		if tier.dir == "" {
			continue
		}
		for _, sk := range scanSkillDir(tier.dir, tier.name, logger) {
			if _, seen := byName[sk.Name]; !seen {
				order = append(order, sk.Name)
			}
			byName[sk.Name] = sk
		}
	}

	set := &SkillSet{byCommand: make(map[string]int), logger: logger}
	used := make(map[string]bool)
	for _, name := range order {
		sk := byName[name]
		sk.Command = uniqueCommand(SanitizeCommandName(sk.Name), used)
		used[sk.Command] = true
		set.byCommand[sk.Command] = len(set.skills)
		set.skills = append(set.skills, sk)
	}

	logger.Debug("skills loaded", "count", len(set.skills))
	return set
}

// scanSkillDir collects skills from one tier: top-level *.md files plus any
// subdirectory carrying a SKILL.md, recursing into nested directories.
// node_modules and dot-directories are skipped.
func scanSkillDir(dir, tier string, logger *slog.Logger) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("skills: error reading directory", "dir", dir, "error", err)
		}
		return nil
	}

	var out []Skill
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			if name == "node_modules" || strings.HasPrefix(name, ".") {
				continue
			}
			sub := filepath.Join(dir, name)
			if sk, ok := loadSkillFile(filepath.Join(sub, "SKILL.md"), name, tier, logger); ok {
				out = append(out, sk)
			}
			out = append(out, scanSkillDir(sub, tier, logger)...)
			continue
		}
		if !strings.HasSuffix(name, ".md") || strings.EqualFold(name, "SKILL.md") {
			continue
		}
		base := strings.TrimSuffix(name, ".md")
		if sk, ok := loadSkillFile(filepath.Join(dir, name), base, tier, logger); ok {
			out = append(out, sk)
		}
	}
	return out
}

// loadSkillFile parses one skill file. fallbackName is used when the
// frontmatter declares no name. Missing files are not an error; unreadable
// ones are logged and skipped.
func loadSkillFile(path, fallbackName, tier string, logger *slog.Logger) (Skill, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("skills: error reading skill", "path", path, "error", err)
		}
		return Skill{}, false
	}

	sk := Skill{
		Name:          fallbackName,
		Path:          path,
		Tier:          tier,
		UserInvocable: true,
	}
	for key, value := range parseFrontmatter(string(content)) {
		switch key {
		case "name":
			if value != "" {
				sk.Name = value
			}
		case "description":
			sk.Description = value
		case "user-invocable":
			sk.UserInvocable = parseBoolDefault(value, true)
		case "disable-model-invocation":
			sk.DisableModelInvocation = parseBoolDefault(value, false)
		}
	}
	// Descriptions are mandatory: a skill the model cannot be told about
	// is a skill that cannot be chosen.
	if sk.Description == "" {
		logger.Warn("skills: skipping skill without description", "path", path)
		return Skill{}, false
	}
	return sk, true
}

// parseFrontmatter extracts the flat key: value pairs between the leading
// "---" fence and its closing fence. Values lose one layer of surrounding
// quotes. Returns nil when the file has no frontmatter.
func parseFrontmatter(text string) map[string]string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "---") {
		return nil
	}
	rest := text[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil
	}

	out := make(map[string]string)
	for _, line := range strings.Split(rest[:idx], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key != "" {
			out[key] = value
		}
	}
	return out
}

func parseBoolDefault(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	default:
		return def
	}
}

// SanitizeCommandName lowercases the name, maps runs of characters outside
// [a-z0-9_] to single underscores, trims stray underscores, and clamps to 32
// characters.
func SanitizeCommandName(name string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		if valid {
			sb.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		if !lastUnderscore {
			sb.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(sb.String(), "_")
	if len(out) > maxCommandLen {
		out = strings.TrimRight(out[:maxCommandLen], "_")
	}
	if out == "" {
		out = "skill"
	}
	return out
}

// uniqueCommand appends _2, _3, ... until the command is unused, trimming
// the base so the suffixed result stays within the length cap.
func uniqueCommand(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		trimmed := base
		if len(trimmed)+len(suffix) > maxCommandLen {
			trimmed = strings.TrimRight(trimmed[:maxCommandLen-len(suffix)], "_")
		}
		candidate := trimmed + suffix
		if !used[candidate] {
			return candidate
		}
	}
}

// Skills returns the resolved skills in load order.
func (s *SkillSet) Skills() []Skill {
	return s.skills
}

// Len returns the number of resolved skills.
func (s *SkillSet) Len() int { return len(s.skills) }

// Commands returns the user-invocable slash commands, sorted.
func (s *SkillSet) Commands() []string {
	var out []string
	for _, sk := range s.skills {
		if sk.UserInvocable {
			out = append(out, sk.Command)
		}
	}
	sort.Strings(out)
	return out
}

// PromptFragment renders the available-skills section for the system
// prompt. Skills with disable-model-invocation set are omitted; an empty
// set renders nothing.
func (s *SkillSet) PromptFragment() string {
	var visible []Skill
	for _, sk := range s.skills {
		if !sk.DisableModelInvocation {
			visible = append(visible, sk)
		}
	}
	if len(visible) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<available_skills>\n")
	for _, sk := range visible {
		sb.WriteString("<skill>\n")
		sb.WriteString("<name>" + sk.Name + "</name>\n")
		sb.WriteString("<description>" + truncateDescription(sk.Description) + "</description>\n")
		sb.WriteString("<location>" + sk.Path + "</location>\n")
		sb.WriteString("</skill>\n")
	}
	sb.WriteString("</available_skills>")
	return sb.String()
}

// truncateDescription clamps a description to 100 runes with an ellipsis.
func truncateDescription(desc string) string {
	if utf8.RuneCountInString(desc) <= maxSkillDescriptionLen {
		return desc
	}
	runes := []rune(desc)
	return string(runes[:maxSkillDescriptionLen]) + "…"
}
