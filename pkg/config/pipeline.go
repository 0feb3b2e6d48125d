package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// Pipeline describes a processor network.
//
//	[[processors]]
//	id = "Noise"
//	type = "noise"
//	params = { width = 64, height = 64, seed = 7 }
//
//	[[processors]]
//	id = "Blur"
//	type = "blur"
//	params = { radius = 2 }
//
//	[[connections]]
//	from = "Noise.outport"
//	to = "Blur.inport"
type Pipeline struct {
	Processors  []ProcessorSpec  `toml:"processors" yaml:"processors" validate:"required,min=1,dive"`
	Connections []ConnectionSpec `toml:"connections" yaml:"connections" validate:"dive"`
}

// ProcessorSpec names one processor and its type-specific parameters.
type ProcessorSpec struct {
	ID     string         `toml:"id" yaml:"id" validate:"required"`
	Type   string         `toml:"type" yaml:"type" validate:"required"`
	Params map[string]any `toml:"params" yaml:"params"`
}

// ConnectionSpec links "processor.port" endpoints.
type ConnectionSpec struct {
	From string `toml:"from" yaml:"from" validate:"required"`
	To   string `toml:"to" yaml:"to" validate:"required"`
}

// Endpoint splits "processor.port". The port is everything after the last
// dot, so processor identifiers may contain dots.
func Endpoint(s string) (processor, port string, err error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", errors.New(errors.ErrCodeInvalidConfig, "endpoint %q must be processor.port", s)
	}
	return s[:i], s[i+1:], nil
}

// LoadPipeline reads and validates a pipeline file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	var p Pipeline
	if err := decode(path, data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required fields, duplicate identifiers and endpoint
// syntax. Whether ports exist is checked when the network is built.
func (p *Pipeline) Validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	seen := make(map[string]bool, len(p.Processors))
	for _, ps := range p.Processors {
		if seen[ps.ID] {
			return errors.New(errors.ErrCodeInvalidConfig, "processor %q defined twice", ps.ID)
		}
		seen[ps.ID] = true
	}
	for _, c := range p.Connections {
		for _, ep := range []string{c.From, c.To} {
			proc, _, err := Endpoint(ep)
			if err != nil {
				return err
			}
			if !seen[proc] {
				return errors.New(errors.ErrCodeInvalidConfig, "connection %s -> %s names unknown processor %q", c.From, c.To, proc)
			}
		}
	}
	return nil
}

// Params provides typed access to a processor's parameters. TOML decodes
// integers as int64 and YAML as int, so numeric getters accept both.
type Params map[string]any

// Int returns the integer parameter key or def when it is absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "param %s: want integer, got %v", key, v)
}

// Float returns the numeric parameter key or def when it is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "param %s: want number, got %v", key, v)
}

// String returns the string parameter key or def when it is absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidConfig, "param %s: want string, got %v", key, v)
	}
	return s, nil
}
