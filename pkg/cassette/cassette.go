// Package cassette provides recording and deterministic replay of auto-step
// executions. A cassette is an ordered YAML log of step invocations; replay
// consumes it in order and reproduces each execution without side effects.
package cassette

import (
	"fmt"
	"io"
	"os"

	"github.com/ormasoftchile/maestro/pkg/executor"
	"gopkg.in/yaml.v3"
)

// Recording is one captured auto-step invocation: what ran, its ordered
// output chunks, and its terminal result.
type Recording struct {
	StepID  string           `yaml:"step_id"`
	Command string           `yaml:"command"`
	Chunks  []executor.Chunk `yaml:"chunks,omitempty"`
	Result  executor.Result  `yaml:"result"`
}

// Cassette is the top-level cassette document.
type Cassette struct {
	Recordings []Recording `yaml:"recordings"`
}

// LoadFile reads a cassette from a YAML file.
func LoadFile(path string) (*Cassette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cassette: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a cassette from a reader.
func Load(r io.Reader) (*Cassette, error) {
	var c Cassette
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode cassette: %w", err)
	}
	return &c, nil
}

// SaveFile writes the cassette to a YAML file.
func (c *Cassette) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cassette: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cassette: %w", err)
	}
	return nil
}

// Append adds a recording to the end of the cassette.
func (c *Cassette) Append(rec Recording) {
	c.Recordings = append(c.Recordings, rec)
}
