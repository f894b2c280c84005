// Package cpp tracks preprocessor conditional compilation for the C family.
//
// The Machine keeps an explicit stack of frames, one per open #if group. It
// never evaluates macros: a branch is inactive only when it follows a live
// branch of the same group (INACTIVE_ELSE) or when its condition is the
// constant zero (INACTIVE_IF0).
package cpp

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/srcmark/core/errors"
)

// State is the classification of a conditional branch.
type State int

const (
	Active State = iota
	InactiveElse
	InactiveIf0
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case InactiveElse:
		return "else"
	case InactiveIf0:
		return "if0"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy says how an inactive branch is represented.
type Policy int

const (
	// Markup tokenizes the branch like live code.
	Markup Policy = iota
	// TextOnly keeps the branch as a single text leaf.
	TextOnly
)

func (p Policy) String() string {
	if p == TextOnly {
		return "text"
	}
	return "markup"
}

// ParsePolicy accepts "markup" or "text" (and "text-only").
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "markup":
		return Markup, nil
	case "text", "text-only", "textonly":
		return TextOnly, nil
	}
	return Markup, errors.NewValidation("policy", fmt.Sprintf("unknown policy %q", s))
}

// Policies holds one policy per kind of inactive branch.
type Policies struct {
	Else Policy
	If0  Policy
}

// DefaultPolicies marks up #else branches and keeps #if 0 branches as text.
func DefaultPolicies() Policies {
	return Policies{Else: Markup, If0: TextOnly}
}

// For returns the policy that applies to an inactive branch in state s.
func (p Policies) For(s State) Policy {
	if s == InactiveIf0 {
		return p.If0
	}
	return p.Else
}

type frame struct {
	state State
	// taken is set once any branch of the group was active.
	taken bool
	// nested frames were opened inside an inactive branch and only exist to
	// find their matching #endif.
	nested bool
}

// Effect is what a directive means for the surrounding markup.
type Effect struct {
	// EndRegion: an inactive region ends right before this directive line.
	EndRegion bool
	// BeginRegion: an inactive region starts right after this directive line.
	BeginRegion bool
	// State of the region that begins.
	State State
	// Stray is set for #elif, #else or #endif without an open group.
	Stray bool
}

// Machine is the frame stack. The zero value is ready to use.
type Machine struct {
	frames []frame
}

// Inactive reports whether the current position is inside an inactive branch.
func (m *Machine) Inactive() bool {
	for _, f := range m.frames {
		if f.state != Active {
			return true
		}
	}
	return false
}

// Apply advances the machine over one directive. Directives that are not
// conditional have no effect.
func (m *Machine) Apply(d Directive) Effect {
	switch d.Name {
	case "if", "ifdef", "ifndef":
		return m.open(d)
	case "elif", "else":
		return m.branch(d)
	case "endif":
		return m.close()
	}
	return Effect{}
}

func (m *Machine) open(d Directive) Effect {
	if m.Inactive() {
		m.frames = append(m.frames, frame{state: Active, nested: true})
		return Effect{}
	}
	if d.Name == "if" && IsZeroCondition(d.Argument) {
		m.frames = append(m.frames, frame{state: InactiveIf0})
		return Effect{BeginRegion: true, State: InactiveIf0}
	}
	m.frames = append(m.frames, frame{state: Active, taken: true})
	return Effect{}
}

func (m *Machine) branch(d Directive) Effect {
	if len(m.frames) == 0 {
		return Effect{Stray: true}
	}
	top := &m.frames[len(m.frames)-1]
	if top.nested {
		return Effect{}
	}

	wasInactive := top.state != Active
	switch {
	case top.taken:
		top.state = InactiveElse
	case d.Name == "elif" && IsZeroCondition(d.Argument):
		top.state = InactiveIf0
	default:
		top.state = Active
		top.taken = true
	}
	return Effect{
		EndRegion:   wasInactive,
		BeginRegion: top.state != Active,
		State:       top.state,
	}
}

func (m *Machine) close() Effect {
	if len(m.frames) == 0 {
		return Effect{Stray: true}
	}
	top := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	if top.nested {
		return Effect{}
	}
	return Effect{EndRegion: top.state != Active}
}
