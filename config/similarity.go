package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"visitorintel/api/intel"
)

// similarityFile is the YAML layout of SIMILARITY_CONFIG:
//
//	threshold: 0.8
//	policy: fixed
//	weights:
//	  - field: user_agent
//	    weight: 2.0
type similarityFile struct {
	Threshold *float64 `yaml:"threshold"`
	Policy    string   `yaml:"policy"`
	Weights   []struct {
		Field  string  `yaml:"field"`
		Weight float64 `yaml:"weight"`
	} `yaml:"weights"`
}

// LoadSimilarity reads a scoring configuration file. Omitted weights or
// threshold fall back to the defaults.
func LoadSimilarity(path string) (intel.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intel.Config{}, fmt.Errorf("failed to read similarity config: %w", err)
	}
	return ParseSimilarity(data)
}

func ParseSimilarity(data []byte) (intel.Config, error) {
	var f similarityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return intel.Config{}, fmt.Errorf("failed to parse similarity config: %w", err)
	}

	def := intel.DefaultConfig()
	threshold := def.Threshold()
	if f.Threshold != nil {
		threshold = *f.Threshold
	}

	weights := def.Weights()
	if len(f.Weights) > 0 {
		weights = weights[:0]
		for _, w := range f.Weights {
			field, ok := intel.ParseField(w.Field)
			if !ok {
				return intel.Config{}, fmt.Errorf("unknown signal field %q in similarity config", w.Field)
			}
			weights = append(weights, intel.FieldWeight{Field: field, Weight: w.Weight})
		}
	}

	cfg, err := intel.NewConfig(weights, threshold, intel.Policy(f.Policy))
	if err != nil {
		return intel.Config{}, fmt.Errorf("invalid similarity config: %w", err)
	}
	return cfg, nil
}
