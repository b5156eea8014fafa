package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptConfig overrides the intent extractor prompt.  Empty fields keep
// the built-in defaults.
//
//	extractor:
//	  instructions: |
//	    You are a movie assistant...
//	  examples:
//	    - input: "book 2 tickets for Dune at PVR"
//	      output: '{"intent":"book_tickets","movie_name":"Dune","cinema_name":"PVR","num_tickets":2}'
type PromptConfig struct {
	Extractor struct {
		Instructions string          `yaml:"instructions"`
		Examples     []PromptExample `yaml:"examples"`
	} `yaml:"extractor"`
	Welcome string `yaml:"welcome"`
}

type PromptExample struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// LoadPrompts reads a YAML prompt file.  An empty path returns an empty
// config.
func LoadPrompts(path string) (*PromptConfig, error) {
	var pc PromptConfig
	if path == "" {
		return &pc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading prompt file: %w", err)
	}
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("error parsing prompt YAML: %w", err)
	}
	return &pc, nil
}
