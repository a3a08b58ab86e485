package planner

import (
	"math"
	"regexp"
	"strconv"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// durationTolerance is how close a cut-out's length must be to a number in
// the prompt to be treated as the same span.
const durationTolerance = 0.05

const (
	number = `(\d+(?:\.\d+)?)`
	unit   = `\s*(?:s|secs?|seconds?)`
)

var (
	lastSecondsRe  = regexp.MustCompile(`(?i)\b(?:last|final)\s+` + number + unit + `\b`)
	bySecondsRe    = regexp.MustCompile(`(?i)\bby\s+` + number + unit + `\b`)
	literalRangeRe = regexp.MustCompile(`(?i)\b` + number + `(?:` + unit + `)?\s*(?:-|–|—|to|through|until)\s*` + number + unit + `\b`)
	betweenRangeRe = regexp.MustCompile(`(?i)\bbetween\s+` + number + `(?:` + unit + `)?\s+and\s+` + number + unit + `\b`)

	// ordinalLeadRe matches text ending in a noun that makes the next number
	// an index ("clip 1 to 3 seconds"), not a time.
	ordinalLeadRe = regexp.MustCompile(`(?i)(?:\b(?:clips?|tracks?|elements?|scenes?|parts?|steps?|number|no)\.?|#)\s*$`)

	captionsRe    = regexp.MustCompile(`(?i)\b(?:captions?|subtitles?|subs)\b`)
	noCaptionsRe  = regexp.MustCompile(`(?i)\b(?:no|without|don'?t\s+add|do\s+not\s+add)\s+(?:any\s+)?(?:captions?|subtitles?|subs)\b`)
	silenceRe     = regexp.MustCompile(`(?i)\b(?:silence|silent\s+parts|dead\s*space|dead\s+air)\b`)
	keepSilenceRe = regexp.MustCompile(`(?i)\b(?:keep|leave|don'?t\s+(?:remove|trim|cut))\s+(?:the\s+)?(?:silence|silent\s+parts|dead\s*space|dead\s+air)\b`)
)

// Normalize rewrites known planner mistakes using the prompt text and
// returns the corrected, deduplicated step list. It does not mutate steps.
func Normalize(prompt string, steps []instructions.Instruction) []instructions.Instruction {
	ranges := literalRanges(prompt)
	lastN, hasLastN := firstNumber(lastSecondsRe, prompt)
	byN, hasByN := firstNumber(bySecondsRe, prompt)

	out := make([]instructions.Instruction, 0, len(steps)+2)
	for _, step := range steps {
		switch v := step.(type) {
		case *instructions.CutOut:
			out = append(out, normalizeCutOut(v, ranges, lastN, hasLastN))
		case *instructions.Trim:
			switch {
			case hasLastN:
				out = append(out, deltaRight(v, lastN))
			case hasByN:
				out = append(out, deltaRight(v, byN))
			default:
				out = append(out, v)
			}
		default:
			out = append(out, step)
		}
	}

	out = injectImplied(prompt, out)
	return dedupe(out)
}

func normalizeCutOut(c *instructions.CutOut, ranges [][2]float64, lastN float64, hasLastN bool) instructions.Instruction {
	span, ok := cutSpan(c.Range)

	// Literal ranges only replace time-based targets; a cut on a named clip
	// keeps its clip.
	if c.Target.Kind != resolver.ClipsOverlappingRange && c.Target.Kind != resolver.ClipAtTime {
		ranges = nil
	}

	// A cut-out over exactly the literal range is kept canonical first.
	for _, r := range ranges {
		if c.Range.Mode == instructions.RangeGlobalSeconds && near(c.Range.Start, r[0]) && near(c.Range.End, r[1]) {
			return literalCut(c, r)
		}
	}
	if ok && hasLastN && near(span, lastN) {
		target := c.Target
		if target.Kind == resolver.ClipsOverlappingRange || target.Kind == resolver.ClipAtTime {
			target = resolver.TargetSpec{Kind: resolver.LastClip, TrackKind: target.TrackKind, TrackID: target.TrackID}
		}
		return &instructions.Trim{
			Target: target,
			Right:  &instructions.Side{Mode: instructions.SideDelta, Seconds: lastN},
			Desc:   c.Desc,
		}
	}
	if ok {
		for _, r := range ranges {
			if near(span, r[1]-r[0]) {
				return literalCut(c, r)
			}
		}
	}
	return c
}

func literalCut(c *instructions.CutOut, r [2]float64) *instructions.CutOut {
	return &instructions.CutOut{
		Target: resolver.TargetSpec{
			Kind:      resolver.ClipsOverlappingRange,
			Start:     r[0],
			End:       r[1],
			TrackKind: timeline.TrackMedia,
		},
		Range:   instructions.RangeSpec{Mode: instructions.RangeGlobalSeconds, Start: r[0], End: r[1]},
		Options: c.Options,
		Desc:    c.Desc,
	}
}

// deltaRight turns an absolute right side of n seconds into "shorten by n".
func deltaRight(t *instructions.Trim, n float64) instructions.Instruction {
	if t.Right == nil || t.Right.Mode != instructions.SideAbsolute || !near(t.Right.Seconds, n) {
		return t
	}
	cp := *t
	cp.Right = &instructions.Side{Mode: instructions.SideDelta, Seconds: n}
	return &cp
}

func cutSpan(r instructions.RangeSpec) (float64, bool) {
	switch r.Mode {
	case instructions.RangeElementSeconds, instructions.RangeGlobalSeconds:
		return math.Abs(r.End - r.Start), true
	case instructions.RangeAroundPlayhead:
		return r.Before + r.After, true
	}
	return 0, false
}

// literalRanges finds "A to B seconds" and "between A and B seconds" spans
// whose first number is not a clip or track index.
func literalRanges(prompt string) [][2]float64 {
	var out [][2]float64
	for _, re := range []*regexp.Regexp{literalRangeRe, betweenRangeRe} {
		for _, m := range re.FindAllStringSubmatchIndex(prompt, -1) {
			if ordinalLeadRe.MatchString(prompt[:m[0]]) {
				continue
			}
			a, err1 := strconv.ParseFloat(prompt[m[2]:m[3]], 64)
			b, err2 := strconv.ParseFloat(prompt[m[4]:m[5]], 64)
			if err1 != nil || err2 != nil || b <= a {
				continue
			}
			out = append(out, [2]float64{a, b})
		}
	}
	return out
}

func firstNumber(re *regexp.Regexp, prompt string) (float64, bool) {
	m := re.FindStringSubmatch(prompt)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func injectImplied(prompt string, steps []instructions.Instruction) []instructions.Instruction {
	var hasCaptions, hasDeadspace bool
	for _, s := range steps {
		switch s.Kind() {
		case instructions.KindCaptions:
			hasCaptions = true
		case instructions.KindDeadspace:
			hasDeadspace = true
		}
	}
	if !hasDeadspace && silenceRe.MatchString(prompt) && !keepSilenceRe.MatchString(prompt) {
		steps = append(steps, &instructions.DeadspaceTrim{})
	}
	if !hasCaptions && captionsRe.MatchString(prompt) && !noCaptionsRe.MatchString(prompt) {
		steps = append(steps, &instructions.CaptionsGenerate{})
	}
	return steps
}

// dedupe drops repeated canonical steps, keeping first-seen order, and moves
// caption generation to the end.
func dedupe(steps []instructions.Instruction) []instructions.Instruction {
	seen := make(map[string]bool, len(steps))
	var edits, captions []instructions.Instruction
	for _, s := range steps {
		key := instructions.Canonical(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.Kind() == instructions.KindCaptions {
			captions = append(captions, s)
		} else {
			edits = append(edits, s)
		}
	}
	return append(edits, captions...)
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= durationTolerance
}
