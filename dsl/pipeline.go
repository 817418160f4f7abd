// Package dsl compiles YAML pipeline documents into executable action
// graphs. A document names the pipeline and lists its steps in order; each
// step resolves through a kind registry, may be guarded by a condition
// expression and may carry a retry block.
package dsl

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	goyaml "gopkg.in/yaml.v3"
)

// Pipeline is one parsed YAML document.
type Pipeline struct {
	Name  string `yaml:"name" validate:"required"`
	Steps []Step `yaml:"steps" validate:"min=1,dive"`
}

// Step is one pipeline step. Args are interpreted by the step kind's
// builder. Steps holds the nested body of composite kinds such as loop.
type Step struct {
	ID        string         `yaml:"id" validate:"required"`
	Kind      string         `yaml:"kind" validate:"required"`
	Condition string         `yaml:"condition"`
	Retry     *RetrySpec     `yaml:"retry"`
	Args      map[string]any `yaml:"args"`
	Steps     []Step         `yaml:"steps" validate:"dive"`
}

// RetrySpec is the per-step retry block.
type RetrySpec struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1"`
	Delay       time.Duration `yaml:"delay" default:"500ms" validate:"min=0"`
}

// Load parses, completes and validates a pipeline document.
func Load(r io.Reader) (Pipeline, error) {
	var p Pipeline
	if err := goyaml.NewDecoder(r).Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decoding pipeline: %w", err)
	}
	if err := defaults.Set(&p); err != nil {
		return Pipeline{}, fmt.Errorf("applying pipeline defaults: %w", err)
	}
	if err := validator.New().Struct(p); err != nil {
		return Pipeline{}, fmt.Errorf("invalid pipeline: %w", err)
	}
	return p, nil
}

// LoadFile is Load for a YAML file on disk.
func LoadFile(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("opening pipeline file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
