// Package instructions defines the closed vocabulary of edits the planner
// may emit and the executor may run.
//
// Instruction is sealed: the only implementations live in this package and
// every consumer dispatches through Visitor, so adding a variant breaks the
// build everywhere it is not handled.
package instructions

import (
	"fmt"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
)

type Kind string

const (
	KindTrim             Kind = "trim"
	KindCutOut           Kind = "cut-out"
	KindCaptions         Kind = "captions.generate"
	KindDeadspace        Kind = "deadspace.trim"
	KindSemanticSearch   Kind = "semantic.search"
	KindSemanticApplyCut Kind = "semantic.apply-cut"
)

// Kinds lists every instruction kind in schema order.
var Kinds = []Kind{KindTrim, KindCutOut, KindCaptions, KindDeadspace, KindSemanticSearch, KindSemanticApplyCut}

type Instruction interface {
	Kind() Kind
	// Description is the human-readable label shown for the step.
	Description() string
	Validate() error
	Accept(v Visitor) error
	sealed()
}

type Visitor interface {
	VisitTrim(*Trim) error
	VisitCutOut(*CutOut) error
	VisitCaptions(*CaptionsGenerate) error
	VisitDeadspace(*DeadspaceTrim) error
	VisitSemanticSearch(*SemanticSearch) error
	VisitSemanticApplyCut(*SemanticApplyCut) error
}

// SideMode selects how one trim side is computed.
type SideMode string

const (
	// SideAbsolute sets the trim offset to Seconds.
	SideAbsolute SideMode = "absolute"
	// SideDelta adds Seconds (signed) to the current offset.
	SideDelta SideMode = "delta"
	// SidePlayhead moves the visible edge to the playhead.
	SidePlayhead SideMode = "playhead"
)

type Side struct {
	Mode    SideMode `json:"mode"`
	Seconds float64  `json:"seconds,omitempty"`
}

func (s *Side) validate(name string) error {
	if s == nil {
		return nil
	}
	switch s.Mode {
	case SideAbsolute:
		if s.Seconds < 0 {
			return fmt.Errorf("%s: absolute seconds must not be negative", name)
		}
	case SideDelta, SidePlayhead:
	default:
		return fmt.Errorf("%s: unknown mode %q", name, s.Mode)
	}
	return nil
}

const DefaultPrecision = 3

// TrimOptions are all optional; nil pointers take the defaults (clamp on,
// three decimals, push history).
type TrimOptions struct {
	Clamp       *bool `json:"clamp,omitempty"`
	Precision   *int  `json:"precision,omitempty"`
	Ripple      bool  `json:"ripple,omitempty"`
	DryRun      bool  `json:"dryRun,omitempty"`
	PushHistory *bool `json:"pushHistory,omitempty"`
}

func (o *TrimOptions) ClampEnabled() bool {
	return o == nil || o.Clamp == nil || *o.Clamp
}

func (o *TrimOptions) Decimals() int {
	if o == nil || o.Precision == nil {
		return DefaultPrecision
	}
	return *o.Precision
}

func (o *TrimOptions) RippleEnabled() bool { return o != nil && o.Ripple }

func (o *TrimOptions) DryRunEnabled() bool { return o != nil && o.DryRun }

func (o *TrimOptions) History() bool {
	return o == nil || o.PushHistory == nil || *o.PushHistory
}

func (o *TrimOptions) empty() bool {
	return o == nil || (o.Clamp == nil && o.Precision == nil && !o.Ripple && !o.DryRun && o.PushHistory == nil)
}

type Trim struct {
	Target  resolver.TargetSpec `json:"target"`
	Left    *Side               `json:"left,omitempty"`
	Right   *Side               `json:"right,omitempty"`
	Options *TrimOptions        `json:"options,omitempty"`
	Desc    string              `json:"description,omitempty"`
}

func (*Trim) Kind() Kind               { return KindTrim }
func (*Trim) sealed()                  {}
func (t *Trim) Accept(v Visitor) error { return v.VisitTrim(t) }

func (t *Trim) Description() string {
	if t.Desc != "" {
		return t.Desc
	}
	return fmt.Sprintf("Trim %s (left %s, right %s)", t.Target, describeSide(t.Left), describeSide(t.Right))
}

func describeSide(s *Side) string {
	if s == nil {
		return "unchanged"
	}
	switch s.Mode {
	case SideDelta:
		return fmt.Sprintf("%+.2fs", s.Seconds)
	case SidePlayhead:
		return "to playhead"
	default:
		return fmt.Sprintf("%.2fs", s.Seconds)
	}
}

func (t *Trim) Validate() error {
	if err := t.Target.Validate(); err != nil {
		return fmt.Errorf("trim target: %w", err)
	}
	if t.Left == nil && t.Right == nil {
		return fmt.Errorf("trim needs a left or right side")
	}
	if err := t.Left.validate("left"); err != nil {
		return err
	}
	if err := t.Right.validate("right"); err != nil {
		return err
	}
	if p := t.Options.Decimals(); p < 0 || p > 6 {
		return fmt.Errorf("trim precision %d outside 0..6", p)
	}
	return nil
}

type RangeMode string

const (
	RangeElementSeconds RangeMode = "elementSeconds"
	RangeGlobalSeconds  RangeMode = "globalSeconds"
	RangeAroundPlayhead RangeMode = "aroundPlayhead"
)

// RangeSpec is the span a cut-out removes. Start/End apply to the two
// seconds modes; Before/After to aroundPlayhead.
type RangeSpec struct {
	Mode   RangeMode `json:"mode"`
	Start  float64   `json:"start,omitempty"`
	End    float64   `json:"end,omitempty"`
	Before float64   `json:"before,omitempty"`
	After  float64   `json:"after,omitempty"`
}

func (r RangeSpec) Validate() error {
	switch r.Mode {
	case RangeElementSeconds, RangeGlobalSeconds:
		if r.Start < 0 || r.End < 0 {
			return fmt.Errorf("range bounds must not be negative")
		}
		if r.Start == r.End {
			return fmt.Errorf("range is empty")
		}
	case RangeAroundPlayhead:
		if r.Before < 0 || r.After < 0 {
			return fmt.Errorf("playhead offsets must not be negative")
		}
		if r.Before+r.After == 0 {
			return fmt.Errorf("range is empty")
		}
	default:
		return fmt.Errorf("unknown range mode %q", r.Mode)
	}
	return nil
}

func (r RangeSpec) String() string {
	if r.Mode == RangeAroundPlayhead {
		return fmt.Sprintf("playhead -%.2fs/+%.2fs", r.Before, r.After)
	}
	return fmt.Sprintf("%.2fs-%.2fs (%s)", r.Start, r.End, r.Mode)
}

type CutOutOptions struct {
	DryRun bool `json:"dryRun,omitempty"`
}

type CutOut struct {
	Target  resolver.TargetSpec `json:"target"`
	Range   RangeSpec           `json:"range"`
	Options *CutOutOptions      `json:"options,omitempty"`
	Desc    string              `json:"description,omitempty"`
}

func (*CutOut) Kind() Kind               { return KindCutOut }
func (*CutOut) sealed()                  {}
func (c *CutOut) Accept(v Visitor) error { return v.VisitCutOut(c) }

func (c *CutOut) Description() string {
	if c.Desc != "" {
		return c.Desc
	}
	return fmt.Sprintf("Cut out %s from %s", c.Range, c.Target)
}

func (c *CutOut) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("cut-out target: %w", err)
	}
	if err := c.Range.Validate(); err != nil {
		return fmt.Errorf("cut-out range: %w", err)
	}
	return nil
}

func (c *CutOut) DryRun() bool { return c.Options != nil && c.Options.DryRun }

// CaptionsGenerate transcribes the targeted clips and inserts caption text
// elements. A nil Target means every media clip.
type CaptionsGenerate struct {
	Target   *resolver.TargetSpec `json:"target,omitempty"`
	Language string               `json:"language,omitempty"`
	Desc     string               `json:"description,omitempty"`
}

func (*CaptionsGenerate) Kind() Kind               { return KindCaptions }
func (*CaptionsGenerate) sealed()                  {}
func (c *CaptionsGenerate) Accept(v Visitor) error { return v.VisitCaptions(c) }

func (c *CaptionsGenerate) Description() string {
	if c.Desc != "" {
		return c.Desc
	}
	return "Generate captions for " + targetOrAll(c.Target)
}

func (c *CaptionsGenerate) Validate() error {
	if c.Target != nil {
		if err := c.Target.Validate(); err != nil {
			return fmt.Errorf("captions target: %w", err)
		}
	}
	return nil
}

// DeadspaceTrim trims leading and trailing silence from the targeted clips.
// A nil Target means every media clip.
type DeadspaceTrim struct {
	Target      *resolver.TargetSpec `json:"target,omitempty"`
	Language    string               `json:"language,omitempty"`
	PrePadding  *float64             `json:"prePadding,omitempty"`
	PostPadding *float64             `json:"postPadding,omitempty"`
	Desc        string               `json:"description,omitempty"`
}

const (
	DefaultPrePadding  = 0.08
	DefaultPostPadding = 0.6
)

func (*DeadspaceTrim) Kind() Kind               { return KindDeadspace }
func (*DeadspaceTrim) sealed()                  {}
func (d *DeadspaceTrim) Accept(v Visitor) error { return v.VisitDeadspace(d) }

func (d *DeadspaceTrim) Description() string {
	if d.Desc != "" {
		return d.Desc
	}
	return "Remove silence at the start and end of " + targetOrAll(d.Target)
}

func (d *DeadspaceTrim) Validate() error {
	if d.Target != nil {
		if err := d.Target.Validate(); err != nil {
			return fmt.Errorf("deadspace target: %w", err)
		}
	}
	if d.PrePadding != nil && *d.PrePadding < 0 {
		return fmt.Errorf("prePadding must not be negative")
	}
	if d.PostPadding != nil && *d.PostPadding < 0 {
		return fmt.Errorf("postPadding must not be negative")
	}
	return nil
}

// Pads returns the padding with defaults applied.
func (d *DeadspaceTrim) Pads() (pre, post float64) {
	pre, post = DefaultPrePadding, DefaultPostPadding
	if d.PrePadding != nil {
		pre = *d.PrePadding
	}
	if d.PostPadding != nil {
		post = *d.PostPadding
	}
	return pre, post
}

// SemanticSearch asks the search service for moments matching Query. It is
// resolved into a SemanticApplyCut before reaching the step queue.
type SemanticSearch struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Desc  string `json:"description,omitempty"`
}

func (*SemanticSearch) Kind() Kind               { return KindSemanticSearch }
func (*SemanticSearch) sealed()                  {}
func (s *SemanticSearch) Accept(v Visitor) error { return v.VisitSemanticSearch(s) }

func (s *SemanticSearch) Description() string {
	if s.Desc != "" {
		return s.Desc
	}
	return fmt.Sprintf("Find moments matching %q", s.Query)
}

func (s *SemanticSearch) Validate() error {
	if s.Query == "" {
		return fmt.Errorf("semantic search needs a query")
	}
	if s.Limit < 0 {
		return fmt.Errorf("semantic search limit must not be negative")
	}
	return nil
}

// Match is a search hit in source-media time.
type Match struct {
	MediaID string  `json:"mediaId"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type SemanticApplyCut struct {
	Query   string  `json:"query,omitempty"`
	Matches []Match `json:"matches"`
	Desc    string  `json:"description,omitempty"`
}

func (*SemanticApplyCut) Kind() Kind               { return KindSemanticApplyCut }
func (*SemanticApplyCut) sealed()                  {}
func (s *SemanticApplyCut) Accept(v Visitor) error { return v.VisitSemanticApplyCut(s) }

func (s *SemanticApplyCut) Description() string {
	if s.Desc != "" {
		return s.Desc
	}
	return fmt.Sprintf("Cut %d matched moment(s)", len(s.Matches))
}

func (s *SemanticApplyCut) Validate() error {
	if len(s.Matches) == 0 {
		return fmt.Errorf("semantic cut has no matches")
	}
	for i, m := range s.Matches {
		if m.MediaID == "" {
			return fmt.Errorf("match %d has no mediaId", i)
		}
		if m.End <= m.Start || m.Start < 0 {
			return fmt.Errorf("match %d has an invalid range", i)
		}
	}
	return nil
}

func targetOrAll(t *resolver.TargetSpec) string {
	if t == nil {
		return "all media clips"
	}
	return t.String()
}
