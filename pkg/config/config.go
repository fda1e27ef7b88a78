// Package config loads the parser configuration from YAML. A Config is
// threaded explicitly into the components that need it; there are no
// package-level settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/regparser/pkg/compiler"
	"github.com/coolbeans/regparser/pkg/xmltree"
)

// Config is the complete parser configuration.
type Config struct {
	// CFRTitle is the title being parsed; zero when unknown.
	CFRTitle int `yaml:"cfr_title" validate:"min=0,max=50"`
	// Preprocessors are applied in the listed order.
	Preprocessors []string        `yaml:"preprocessors" validate:"dive,required"`
	Citations     CitationsConfig `yaml:"citations"`
	Terms         TermsConfig     `yaml:"terms"`
	Compiler      CompilerConfig  `yaml:"compiler"`
	Layers        LayersConfig    `yaml:"layers"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// CitationsConfig tunes citation extraction.
type CitationsConfig struct {
	RequireMarker bool `yaml:"require_marker"`
	// Verify drops citations to labels missing from the tree.
	Verify bool `yaml:"verify"`
}

// TermsConfig adjusts defined-term detection per part.
type TermsConfig struct {
	// Include entries are "term:label_id".
	Include map[string][]string `yaml:"include" validate:"dive,keys,numeric,endkeys,dive,contains=:"`
	Exclude map[string][]string `yaml:"exclude" validate:"dive,keys,numeric,endkeys,dive,required"`
}

// CompilerConfig tunes the notice compiler.
type CompilerConfig struct {
	LabelDepths compiler.LabelDepths `yaml:"label_depths"`
}

// LayersConfig tunes layer generation.
type LayersConfig struct {
	// Workers bounds concurrent nodes; zero means one per CPU.
	Workers int `yaml:"workers" validate:"min=0,max=256"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Preprocessors: append([]string(nil), xmltree.DefaultPreprocessorNames...),
		Compiler:      CompilerConfig{LabelDepths: compiler.DefaultLabelDepths()},
		Logging:       LoggingConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(reader io.Reader) (*Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks field constraints and that every preprocessor is known.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := xmltree.LookupPreprocessors(config.Preprocessors); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Title is CFRTitle as citation text, or "" when unknown.
func (config *Config) Title() string {
	if config.CFRTitle == 0 {
		return ""
	}
	return strconv.Itoa(config.CFRTitle)
}
