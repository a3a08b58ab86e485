package planner

import (
	"regexp"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
)

// A rule matches a whole prompt with exactly one unambiguous intent.
type rule struct {
	name  string
	re    *regexp.Regexp
	guard func(m []string) bool // optional extra check on the captures
	build func(m []string) []instructions.Instruction
}

const (
	please = `^\s*(?:please\s+|can you\s+|could you\s+)?`
	tail   = `\s*(?:please)?\s*[.!?]*\s*$`
)

// otherClause spots a second edit hidden in a free-text capture.
var otherClause = regexp.MustCompile(`(?i)(?:\bthen\b|;|,\s*and\b|\band\s+(?:trim|cut|remove|add|delete|generate)\b|\b(?:trim|captions?|subtitles?|silence)\b)`)

var rules = []rule{
	{
		name: "deadspace",
		re: regexp.MustCompile(`(?i)` + please +
			`(?:remove|trim|cut|strip|delete|get rid of)\s+(?:the\s+|all\s+(?:the\s+)?)?` +
			`(?:silence|silent parts|dead\s*space|dead air)` +
			`(?:\s+(?:at|from)\s+(?:the\s+)?(?:start|beginning)(?:\s+and\s+(?:the\s+|at\s+the\s+)?(?:end|ending))?` +
			`|\s+(?:at|from)\s+(?:the\s+)?(?:end|ending)(?:\s+and\s+(?:the\s+|at\s+the\s+)?(?:start|beginning))?` +
			`|\s+(?:at|from)\s+(?:both\s+ends|each\s+end|the\s+ends)` +
			`|\s+(?:from|in)\s+(?:all\s+|every\s+|each\s+|the\s+|my\s+)?(?:clips?|video|timeline))?` +
			tail),
		build: func([]string) []instructions.Instruction {
			return []instructions.Instruction{&instructions.DeadspaceTrim{}}
		},
	},
	{
		name: "captions",
		re: regexp.MustCompile(`(?i)` + please +
			`(?:add|generate|create|make|put)\s+(?:some\s+|the\s+)?(?:captions|subtitles|subs)` +
			`(?:\s+(?:to|for|on)\s+(?:the\s+|all\s+(?:the\s+)?|my\s+|every\s+)?(?:video|clips?|timeline|everything))?` +
			tail),
		build: func([]string) []instructions.Instruction {
			return []instructions.Instruction{&instructions.CaptionsGenerate{}}
		},
	},
	{
		name: "semantic",
		re: regexp.MustCompile(`(?i)` + please +
			`(?:remove|cut(?:\s+out)?|delete|drop)\s+(?:all\s+)?(?:of\s+)?(?:the\s+)?` +
			`(?:parts?|moments?|bits?|sections?|scenes?|segments?)\s+(?:where|when|in which|that show|showing)\s+(.+?)` +
			tail),
		guard: func(m []string) bool { return !otherClause.MatchString(m[1]) },
		build: func(m []string) []instructions.Instruction {
			q := strings.TrimSpace(m[1])
			return []instructions.Instruction{&instructions.SemanticSearch{
				Query: q,
				Desc:  "Remove the parts where " + q,
			}}
		},
	},
}

// matchRule returns the canned plan for a prompt that is exactly one known
// intent, or nil.
func matchRule(prompt string) (string, []instructions.Instruction) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(prompt)
		if m == nil || (r.guard != nil && !r.guard(m)) {
			continue
		}
		return r.name, r.build(m)
	}
	return "", nil
}
