// Package agent – prompt.go composes the system prompt from ordered layers:
// core identity, caller fragments, bootstrap context files, available
// skills, memory recall, and a temporal line. Layers assemble in priority
// order and empty layers vanish.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// promptLayer orders the system prompt sections. Lower sorts first.
type promptLayer int

const (
	layerCore      promptLayer = 0
	layerFragments promptLayer = 10
	layerContext   promptLayer = 20
	layerSkills    promptLayer = 40
	layerMemory    promptLayer = 50
	layerTemporal  promptLayer = 60
)

// defaultCorePrompt is the base identity used when the configuration does
// not override it.
const defaultCorePrompt = "You are a capable personal agent. You can call tools to read and " +
	"change the workspace; prefer acting through tools over guessing. Be direct and concise."

// SystemPromptParts collects the inputs of one composition.
type SystemPromptParts struct {
	// Core overrides the base identity when non-empty.
	Core string

	// Fragments are caller-supplied prompt additions, in order.
	Fragments []string

	// ContextSection is the assembled bootstrap file section.
	ContextSection string

	// SkillsFragment is the available-skills XML fragment.
	SkillsFragment string

	// MemorySection is the memory recall section.
	MemorySection string

	// Now stamps the temporal layer; zero means time.Now().
	Now time.Time
}

// BuildSystemPrompt assembles the layers into the final system prompt.
func BuildSystemPrompt(parts SystemPromptParts) string {
	core := parts.Core
	if core == "" {
		core = defaultCorePrompt
	}
	now := parts.Now
	if now.IsZero() {
		now = time.Now()
	}

	type entry struct {
		layer   promptLayer
		content string
	}
	layers := []entry{
		{layerCore, core},
		{layerFragments, strings.TrimSpace(strings.Join(parts.Fragments, "\n\n"))},
		{layerContext, parts.ContextSection},
		{layerSkills, parts.SkillsFragment},
		{layerMemory, parts.MemorySection},
		{layerTemporal, temporalLine(now)},
	}
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].layer < layers[j].layer })

	var sections []string
	for _, l := range layers {
		if strings.TrimSpace(l.content) != "" {
			sections = append(sections, strings.TrimSpace(l.content))
		}
	}
	return strings.Join(sections, "\n\n")
}

// temporalLine renders the date/time layer.
func temporalLine(now time.Time) string {
	return fmt.Sprintf("Current time: %s (%s)",
		now.Format("2006-01-02 15:04 MST"),
		now.Weekday(),
	)
}

// BuildMemorySection renders recalled facts for the prompt. Empty input
// renders nothing.
func BuildMemorySection(facts []string) string {
	if len(facts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Memory Recall\n\nRelevant facts from previous sessions:\n")
	for _, f := range facts {
		sb.WriteString("- " + f + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
