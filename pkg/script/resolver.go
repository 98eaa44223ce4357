package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by resolvers when no script matches an identifier.
var ErrNotFound = errors.New("script not found")

// Resolver locates a parsed Script by identifier. Lookup order and storage
// layout are resolver policy; the interpreter only sees the result.
type Resolver interface {
	Resolve(name string) (*Script, error)
}

// DirResolver resolves scripts from an ordered list of directories.
// Within each directory, "<name>.yaml" is a compiled script and "<name>.md"
// is a natural-language script; the first hit wins. Namespaced names
// ("ns:name") address subdirectories.
type DirResolver struct {
	Dirs []string
}

// NewDirResolver builds a resolver over the given directories, searched in
// order. Empty entries are skipped.
func NewDirResolver(dirs ...string) *DirResolver {
	var kept []string
	for _, d := range dirs {
		if d != "" {
			kept = append(kept, d)
		}
	}
	return &DirResolver{Dirs: kept}
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(name string) (*Script, error) {
	rel := NormalizeName(name)
	for _, dir := range r.Dirs {
		if p := filepath.Join(dir, rel+".yaml"); fileExists(p) {
			sc, err := LoadFile(p)
			if err != nil {
				return nil, fmt.Errorf("script %q: %w", name, err)
			}
			if sc.Meta.Name == "" {
				sc.Meta.Name = name
			}
			return sc, nil
		}
		if p := filepath.Join(dir, rel+".md"); fileExists(p) {
			return LoadNaturalFile(p, name)
		}
	}
	return nil, fmt.Errorf("script %q: %w", name, ErrNotFound)
}

// MapResolver resolves scripts from an in-memory map. Used by tests and by
// callers that assemble scripts programmatically.
type MapResolver map[string]*Script

// Resolve implements Resolver.
func (r MapResolver) Resolve(name string) (*Script, error) {
	sc, ok := r[NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("script %q: %w", name, ErrNotFound)
	}
	return sc, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
