// Package agent – skills_commands.go resolves user slash-command input into
// the rewritten prompt the loop sends to the model. Both "/<command> args"
// and the generic "/skill <name> args" spelling are accepted.
package agent

import (
	"strings"
)

// ResolveInput checks whether input invokes a skill and, if so, returns the
// rewritten prompt. Non-command input and unknown commands pass through with
// matched=false so callers can forward the raw text unchanged.
func (s *SkillSet) ResolveInput(input string) (rewritten string, matched bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}

	cmd, args := splitCommand(trimmed[1:])
	if cmd == "" {
		return "", false
	}

	// Generic spelling: /skill <name> [args].
	if strings.EqualFold(cmd, "skill") {
		cmd, args = splitCommand(args)
		if cmd == "" {
			return "", false
		}
	}

	sk, ok := s.Lookup(cmd)
	if !ok || !sk.UserInvocable {
		return "", false
	}
	return RewriteSkillInvocation(sk.Name, args), true
}

// Lookup finds a skill by invocation token. Resolution order: exact command
// name (case-insensitive), then skill name, then hyphen-normalized name so
// "my skill", "my_skill", and "my-skill" all reach the same definition.
func (s *SkillSet) Lookup(token string) (Skill, bool) {
	lower := strings.ToLower(token)
	if idx, ok := s.byCommand[lower]; ok {
		return s.skills[idx], true
	}
	for _, sk := range s.skills {
		if strings.EqualFold(sk.Name, token) {
			return sk, true
		}
	}
	want := hyphenNormalize(token)
	for _, sk := range s.skills {
		if hyphenNormalize(sk.Name) == want {
			return sk, true
		}
	}
	return Skill{}, false
}

// RewriteSkillInvocation builds the prompt that routes a slash command to
// its skill. The wording is stable: downstream prompts reference it.
func RewriteSkillInvocation(skillName, args string) string {
	return "Use the \"" + skillName + "\" skill for this request.\n\nUser input:\n" + args
}

// splitCommand cuts the first whitespace-delimited token off s, returning
// the token and the remaining argument text.
func splitCommand(s string) (cmd, args string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// hyphenNormalize lowercases and folds spaces and underscores to hyphens.
func hyphenNormalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	return s
}
