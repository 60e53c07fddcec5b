// Package agent – sessionkey.go implements canonical session key routing.
// Every conversation is addressed by a key of the form agent:<agentId>:<tail>
// so that logs, lanes, and steering queues all agree on the same identity.
package agent

import (
	"strings"

	"github.com/google/uuid"
)

const (
	sessionKeyPrefix = "agent:"
	subagentPrefix   = "subagent:"

	// DefaultAgentID is used when no agent id survives normalization.
	DefaultAgentID = "agent"

	// DefaultSessionTail is used when a resolve call carries an empty
	// session id.
	DefaultSessionTail = "main"

	maxAgentIDLen = 64
)

// NormalizeAgentID lowercases the id, replaces characters outside
// [a-z0-9_-] with hyphens, trims leading and trailing hyphens, and clamps
// the result to 64 characters. An id that normalizes to nothing becomes
// DefaultAgentID. The function is idempotent.
func NormalizeAgentID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	out := strings.Trim(sb.String(), "-")
	if len(out) > maxAgentIDLen {
		out = strings.TrimRight(out[:maxAgentIDLen], "-")
	}
	if out == "" {
		return DefaultAgentID
	}
	return out
}

// ResolveSessionKey produces the canonical session key for an agent id and
// a session id. The session id may be a bare tail ("cli", "heartbeat") or a
// full key ("agent:main:cli"); both resolve to the same canonical form, and
// resolving an already canonical key returns it unchanged. When sessionID is
// a full key its embedded agent id wins over the agentID argument, so keys
// can be routed between components without losing their identity.
func ResolveSessionKey(agentID, sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if strings.HasPrefix(sessionID, sessionKeyPrefix) {
		rest := sessionID[len(sessionKeyPrefix):]
		if id, tail, ok := strings.Cut(rest, ":"); ok {
			return buildSessionKey(NormalizeAgentID(id), strings.TrimSpace(tail))
		}
		// "agent:" prefix with no tail separator: treat the remainder
		// as a bare tail.
		sessionID = rest
	}
	return buildSessionKey(NormalizeAgentID(agentID), sessionID)
}

func buildSessionKey(agentID, tail string) string {
	if tail == "" {
		tail = DefaultSessionTail
	}
	return sessionKeyPrefix + agentID + ":" + tail
}

// NewSubagentKey mints a fresh subagent session key under the given agent.
func NewSubagentKey(agentID string) string {
	return buildSessionKey(NormalizeAgentID(agentID), subagentPrefix+uuid.NewString())
}

// IsSubagentKey reports whether the key addresses a subagent session.
func IsSubagentKey(key string) bool {
	_, tail, ok := splitSessionKey(key)
	return ok && strings.HasPrefix(tail, subagentPrefix)
}

// AgentIDFromKey extracts the agent id from a canonical session key.
// Returns DefaultAgentID when the key does not parse.
func AgentIDFromKey(key string) string {
	id, _, ok := splitSessionKey(key)
	if !ok {
		return DefaultAgentID
	}
	return id
}

// SessionTailFromKey extracts the tail from a canonical session key.
func SessionTailFromKey(key string) string {
	_, tail, ok := splitSessionKey(key)
	if !ok {
		return key
	}
	return tail
}

func splitSessionKey(key string) (agentID, tail string, ok bool) {
	if !strings.HasPrefix(key, sessionKeyPrefix) {
		return "", "", false
	}
	rest := key[len(sessionKeyPrefix):]
	id, tail, found := strings.Cut(rest, ":")
	if !found || id == "" {
		return "", "", false
	}
	return id, tail, true
}
