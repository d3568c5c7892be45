package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSpec — формат файла определений.
//
//	workflows:
//	  - name: onboarding
//	    steps:
//	      - name: greet
//	        uses: llm
//	        with:
//	          prompt: "Hello {{name}}"
//	        if: send_greeting
type fileSpec struct {
	Workflows []workflowSpec `yaml:"workflows"`
}

type workflowSpec struct {
	Name  string     `yaml:"name"`
	Steps []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	Name string         `yaml:"name"`
	Uses string         `yaml:"uses"`
	With map[string]any `yaml:"with"`
	If   any            `yaml:"if"`
}

// LoadDefinitions читает определения из YAML.
// Каждое определение валидируется.
func LoadDefinitions(r io.Reader) ([]*Definition, error) {
	var spec fileSpec

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode workflows: %w", err)
	}

	defs := make([]*Definition, 0, len(spec.Workflows))
	for _, wf := range spec.Workflows {
		steps := make([]StepDef, 0, len(wf.Steps))
		for _, s := range wf.Steps {
			var opts []StepOption
			if s.If != nil {
				opts = append(opts, If(s.If))
			}
			steps = append(steps, Step(s.Name, s.Uses, s.With, opts...))
		}

		def := NewDefinition(wf.Name, steps...)
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// LoadFile читает определения из файла.
func LoadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return LoadDefinitions(bytes.NewReader(data))
}

// LoadInto читает определения из файла и регистрирует их в каталоге.
func LoadInto(catalog *Catalog, path string) ([]*Definition, error) {
	defs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := catalog.Register(def); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
	}
	return defs, nil
}
