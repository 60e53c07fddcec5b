// Package agent – abort.go detects standalone abort phrases so a chat
// surface can stop active runs from natural language instead of a command.
package agent

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// abortTriggers lists phrases that abort when sent as a standalone message.
var abortTriggers = map[string]bool{
	// English
	"stop": true, "esc": true, "abort": true, "wait": true, "interrupt": true,
	"cancel": true,
	"halt": true, "please stop": true, "stop please": true,
	"stop agent": true, "stop the agent": true, "agent stop": true,
	"stop action": true, "stop current action": true,
	"stop run": true, "stop current run": true,
	"stop don't do anything": true, "stop dont do anything": true,
	"stop do not do anything": true, "stop doing anything": true,
	"do not do that": true,

	// Portuguese
	"pare": true, "parar": true,
	"pare por favor": true, "por favor pare": true,
	"pare agora": true, "interromper": true,
	"cancela": true, "cancelar": true,

	// Spanish
	"detente": true, "deten": true, "detén": true,
	"para": true, "alto": true,

	// French
	"arrete": true, "arrête": true, "arreter": true, "arrêter": true, "arretez": true,

	// German
	"stopp": true, "anhalten": true, "aufhören": true, "hoer auf": true, "hör auf": true,

	// Chinese
	"停止": true, "停": true,

	// Japanese
	"やめて": true, "止めて": true, "ストップ": true,

	// Hindi
	"रुको": true, "रुकिए": true, "बंद": true,

	// Arabic
	"توقف": true, "قف": true,

	// Russian
	"стоп": true, "остановись": true, "останови": true,
	"остановить": true, "прекрати": true, "стой": true,
}

// trailingPunctuationRE strips trailing punctuation from candidate text,
// covering the scripts the trigger table speaks.
var trailingPunctuationRE = regexp.MustCompile(`[.!?…,，。;；:：'"'")\]}]+$`)

// IsAbortTrigger reports whether text is a standalone abort request: the
// /stop command or one of the known phrases, after normalization.
func IsAbortTrigger(text string) bool {
	normalized := normalizeAbortText(text)
	if normalized == "" {
		return false
	}
	if normalized == "/stop" || strings.HasPrefix(normalized, "/stop ") {
		return true
	}
	return abortTriggers[normalized]
}

// normalizeAbortText prepares text for trigger matching: NFKC (folds
// full-width forms), lowercase, straighten apostrophes, drop @mentions,
// strip trailing punctuation, collapse whitespace.
func normalizeAbortText(text string) string {
	normalized := norm.NFKC.String(text)
	normalized = strings.ToLower(normalized)

	normalized = strings.Map(func(r rune) rune {
		if r == '’' || r == '‘' || r == '`' {
			return '\''
		}
		return r
	}, normalized)

	fields := strings.Fields(normalized)
	kept := fields[:0]
	for _, f := range fields {
		if !strings.HasPrefix(f, "@") {
			kept = append(kept, f)
		}
	}
	normalized = strings.Join(kept, " ")

	normalized = trailingPunctuationRE.ReplaceAllString(normalized, "")
	return strings.TrimSpace(normalized)
}

// FormatAbortReply renders the confirmation shown after an abort.
func FormatAbortReply(stopped int) string {
	switch {
	case stopped <= 0:
		return "Nothing running."
	case stopped == 1:
		return "Agent stopped."
	default:
		return "Agent stopped. All active runs cancelled."
	}
}
