package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/vramcache/codec"
	"github.com/hupe1980/vramcache/device"
)

// CommandFile lists the work of one run.
type CommandFile struct {
	Commands []Command `json:"commands"`
}

// Command maps input images to output images through one operation.
type Command struct {
	Op      string   `json:"op"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// Filtering and Wrapping set the sampler state of each input.
	// When present they hold one value per input.
	Filtering []string `json:"filtering,omitempty"`
	Wrapping  []string `json:"wrapping,omitempty"`
}

// ReadCommandFile loads and validates a command file.
func ReadCommandFile(path string) (CommandFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CommandFile{}, err
	}
	return ParseCommands(data)
}

// ParseCommands decodes and validates a command file.
func ParseCommands(data []byte) (CommandFile, error) {
	var cf CommandFile
	if err := codec.Default.Unmarshal(data, &cf); err != nil {
		return cf, fmt.Errorf("parse commands: %w", err)
	}
	if len(cf.Commands) == 0 {
		return cf, fmt.Errorf("parse commands: no commands")
	}
	for i, c := range cf.Commands {
		if err := c.Validate(); err != nil {
			return cf, fmt.Errorf("command %d: %w", i, err)
		}
	}
	return cf, nil
}

// Validate checks the operation, the input and output lists and the sampler lists.
func (c Command) Validate() error {
	op, ok := lookupOp(c.Op)
	if !ok {
		return fmt.Errorf("unknown op %q", c.Op)
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("%s: missing inputs", c.Op)
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("%s: missing outputs", c.Op)
	}
	if op.arity > 0 && len(c.Inputs) != op.arity {
		return fmt.Errorf("%s: takes %d inputs, got %d", c.Op, op.arity, len(c.Inputs))
	}
	if len(c.Filtering) != 0 && len(c.Filtering) != len(c.Inputs) {
		return fmt.Errorf("%s: %d filtering values for %d inputs", c.Op, len(c.Filtering), len(c.Inputs))
	}
	if len(c.Wrapping) != 0 && len(c.Wrapping) != len(c.Inputs) {
		return fmt.Errorf("%s: %d wrapping values for %d inputs", c.Op, len(c.Wrapping), len(c.Inputs))
	}
	seen := make(map[string]bool, len(c.Outputs))
	for _, out := range c.Outputs {
		if seen[out] {
			return fmt.Errorf("%s: output %q listed twice", c.Op, out)
		}
		seen[out] = true
	}
	_, err := c.Sampling()
	return err
}

// Sampling returns the sampler state per input, or nil if none is set.
// A missing list keeps the default for that half of the state.
func (c Command) Sampling() ([]device.Sampling, error) {
	if len(c.Filtering) == 0 && len(c.Wrapping) == 0 {
		return nil, nil
	}
	out := make([]device.Sampling, len(c.Inputs))
	for i := range out {
		s := device.DefaultSampling
		if len(c.Filtering) > 0 {
			f, err := device.ParseFilter(c.Filtering[i])
			if err != nil {
				return nil, err
			}
			s.MinFilter, s.MagFilter = f, f
		}
		if len(c.Wrapping) > 0 {
			w, err := device.ParseWrap(c.Wrapping[i])
			if err != nil {
				return nil, err
			}
			s.WrapS, s.WrapT = w, w
		}
		out[i] = s
	}
	return out, nil
}
