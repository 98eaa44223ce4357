package script

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[0].run")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the full validation pipeline on a compiled script file:
// structural (strict YAML decode) → semantic (JSON Schema) → domain rules.
func ValidateFile(path string) (*Script, []*ValidationError) {
	sc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to load: %s", err)}
	}
	return sc, ValidateScript(sc)
}

// ValidateScript runs the semantic and domain phases on a loaded script.
func ValidateScript(sc *Script) []*ValidationError {
	var errs []*ValidationError
	errs = append(errs, validateSemantic(sc)...)
	if HasErrors(errs) {
		return errs
	}
	errs = append(errs, validateDomain(sc)...)
	return errs
}

// validateSemantic validates the script against the generated JSON Schema.
func validateSemantic(sc *Script) []*ValidationError {
	data, err := json.Marshal(sc)
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "marshal for schema validation: %v", err)}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "generate schema: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("script-v0.json", schemaDoc); err != nil {
		return []*ValidationError{errorf("semantic", "", "add schema resource: %v", err)}
	}
	sch, err := c.Compile("script-v0.json")
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "compile schema: %v", err)}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, errorf("semantic",
					strings.Join(cause.InstanceLocation, "/"),
					"%v", cause.ErrorKind))
			}
		} else {
			errs = append(errs, errorf("semantic", "", "%s", err.Error()))
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// validateDomain applies hand-coded script/v0 rules.
func validateDomain(sc *Script) []*ValidationError {
	var errs []*ValidationError

	if sc.APIVersion != APIVersion {
		errs = append(errs, errorf("domain", "apiVersion",
			"unrecognized apiVersion %q, expected %q", sc.APIVersion, APIVersion))
	}
	if sc.Meta.Name == "" {
		errs = append(errs, errorf("domain", "meta.name", "script name is required"))
	}
	if len(sc.Steps) == 0 {
		errs = append(errs, errorf("domain", "steps", "compiled script has no steps"))
	}

	seen := make(map[string]int)
	for i := range sc.Steps {
		step := &sc.Steps[i]
		loc := fmt.Sprintf("steps[%d]", i)

		if err := step.CheckVariant(); err != nil {
			errs = append(errs, errorf("domain", loc, "%s", err.Error()))
		}
		if step.Type != StepAuto && len(step.Capture) > 0 {
			errs = append(errs, errorf("domain", loc+".capture", "capture is only valid on auto steps"))
		}
		if step.Type != StepLlm && len(step.Expects) > 0 {
			errs = append(errs, errorf("domain", loc+".expects", "expects is only valid on llm steps"))
		}
		for key, from := range step.Capture {
			if from != "stdout" && from != "stderr" {
				errs = append(errs, errorf("domain", loc+".capture."+key,
					"capture source must be stdout or stderr, got %q", from))
			}
		}
		if step.ID != "" {
			if prev, dup := seen[step.ID]; dup {
				errs = append(errs, errorf("domain", loc+".id",
					"duplicate step id %q (first used at steps[%d])", step.ID, prev))
			} else {
				seen[step.ID] = i
			}
		}
	}
	return errs
}
