// Package script defines the script/v0 document types: the step model,
// the script container, and the compilation-level tag.
package script

import "fmt"

// API version constant for script/v0.
const APIVersion = "script/v0"

// ---------------------------------------------------------------------------
// Script
// ---------------------------------------------------------------------------

// Kind is the compilation level of a script.
type Kind string

const (
	// KindCompiled scripts carry an explicit ordered step sequence.
	KindCompiled Kind = "compiled"
	// KindNatural scripts carry a single opaque instruction body that an
	// external LLM agent executes wholesale. They have no step sequence.
	KindNatural Kind = "natural"
)

// Script is a script document. Compiled scripts have Steps; natural-language
// scripts have Source and an empty Steps slice.
type Script struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Meta       Meta   `yaml:"meta"       json:"meta"`
	Steps      []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Kind and Source are set by the loader, not by document authors.
	Kind   Kind   `yaml:"-" json:"-"`
	Source string `yaml:"-" json:"-"`
}

// Meta contains script metadata.
type Meta struct {
	Name        string `yaml:"name"        json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ---------------------------------------------------------------------------
// Step
// ---------------------------------------------------------------------------

// StepType enumerates the three script/v0 step types.
type StepType string

const (
	StepAuto StepType = "auto"
	StepLlm  StepType = "llm"
	StepCall StepType = "call"
)

// Step is the universal step structure. Fields are populated based on Type.
type Step struct {
	// Common fields
	ID   string   `yaml:"id,omitempty"   json:"id,omitempty"`
	Type StepType `yaml:"type"           json:"type"`
	When string   `yaml:"when,omitempty" json:"when,omitempty"`

	// Auto step
	Run     string            `yaml:"run,omitempty"     json:"run,omitempty"`
	Capture map[string]string `yaml:"capture,omitempty" json:"capture,omitempty"` // output key → stdout|stderr

	// Llm step
	Prompt  string            `yaml:"prompt,omitempty"  json:"prompt,omitempty"`
	Expects map[string]string `yaml:"expects,omitempty" json:"expects,omitempty"` // output key → description

	// Call step
	Script string `yaml:"script,omitempty" json:"script,omitempty"`
	Args   string `yaml:"args,omitempty"   json:"args,omitempty"`
}

// ExpectedKeys returns the declared output-key set for an auto or llm step.
// Order is unspecified; callers treat the result as a set.
func (s *Step) ExpectedKeys() []string {
	var m map[string]string
	switch s.Type {
	case StepAuto:
		m = s.Capture
	case StepLlm:
		m = s.Expects
	default:
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Label returns a human-readable step label for history and error messages.
func (s *Step) Label() string {
	if s.ID != "" {
		return s.ID
	}
	switch s.Type {
	case StepAuto:
		return s.Run
	case StepLlm:
		return "llm"
	case StepCall:
		return "call " + s.Script
	}
	return string(s.Type)
}

// variantFields reports which variant fields are set on the step.
func (s *Step) variantFields() []string {
	var set []string
	if s.Run != "" {
		set = append(set, "run")
	}
	if s.Prompt != "" {
		set = append(set, "prompt")
	}
	if s.Script != "" {
		set = append(set, "script")
	}
	return set
}

// CheckVariant verifies that exactly one variant is set and that it matches
// the declared step type.
func (s *Step) CheckVariant() error {
	set := s.variantFields()
	if len(set) != 1 {
		return fmt.Errorf("step %q: exactly one of run/prompt/script must be set (got %d)", s.Label(), len(set))
	}
	want := map[StepType]string{StepAuto: "run", StepLlm: "prompt", StepCall: "script"}[s.Type]
	if want == "" {
		return fmt.Errorf("step %q: unknown type %q", s.Label(), s.Type)
	}
	if set[0] != want {
		return fmt.Errorf("step %q: type %q requires %q, found %q", s.Label(), s.Type, want, set[0])
	}
	return nil
}
