package script

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a compiled script YAML document.
// Returns a structural error if the YAML contains unknown fields.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a compiled script from a reader.
func Load(r io.Reader) (*Script, error) {
	var sc Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	sc.Kind = KindCompiled
	return &sc, nil
}

// LoadNaturalFile reads a natural-language script from a Markdown file.
// The body is opaque to the interpreter; args is the invocation argument
// string substituted for the $ARGUMENTS placeholder.
func LoadNaturalFile(path, name string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	return &Script{
		APIVersion: APIVersion,
		Meta:       Meta{Name: name},
		Kind:       KindNatural,
		Source:     string(data),
	}, nil
}

// SubstituteArgs replaces the $ARGUMENTS placeholder in a natural-language
// script body with the invocation argument string.
func SubstituteArgs(source, args string) string {
	return strings.ReplaceAll(source, "$ARGUMENTS", args)
}

// NormalizeName converts namespaced script names to path form (`:` → `/`),
// so that "git:extract_pr" addresses "git/extract_pr" on disk.
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, ":", "/")
}
