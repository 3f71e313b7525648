package intel

import (
	"fmt"
)

// Policy selects how the similarity denominator is computed.
type Policy string

const (
	// PolicyFixed divides by the sum of every table weight, so a signal missing
	// on either side counts against the score.
	PolicyFixed Policy = "fixed"
	// PolicyShared divides only by the weights of fields present on both sides.
	PolicyShared Policy = "shared"
)

// DefaultThreshold is the minimum score for a best match to become a probable alias.
const DefaultThreshold = 0.8

// FieldWeight is one row of the similarity weight table.
type FieldWeight struct {
	Field  Field
	Weight float64
}

// Config is the immutable scoring configuration shared by Scorer and Resolver.
type Config struct {
	weights   []FieldWeight
	threshold float64
	policy    Policy
}

// DefaultWeights reflect how hard each signal is to spoof.
func DefaultWeights() []FieldWeight {
	return []FieldWeight{
		{FieldUserAgent, 2.0},
		{FieldScreenRes, 1.5},
		{FieldColorDepth, 1.0},
		{FieldTimezone, 1.0},
		{FieldLanguage, 1.0},
		{FieldPlatform, 1.5},
		{FieldDeviceMemory, 1.0},
		{FieldCPUCores, 1.0},
		{FieldGPUVendor, 2.0},
		{FieldGPURenderer, 2.0},
		{FieldCanvasHash, 2.0},
		{FieldAudioHash, 2.0},
	}
}

func DefaultConfig() Config {
	return Config{
		weights:   DefaultWeights(),
		threshold: DefaultThreshold,
		policy:    PolicyFixed,
	}
}

// NewConfig validates and copies the given table. An empty policy means PolicyFixed.
func NewConfig(weights []FieldWeight, threshold float64, policy Policy) (Config, error) {
	if len(weights) == 0 {
		return Config{}, fmt.Errorf("weight table is empty")
	}
	if threshold < 0 || threshold > 1 {
		return Config{}, fmt.Errorf("threshold %v out of range [0, 1]", threshold)
	}
	switch policy {
	case "":
		policy = PolicyFixed
	case PolicyFixed, PolicyShared:
	default:
		return Config{}, fmt.Errorf("unknown scoring policy %q", policy)
	}

	seen := make(map[Field]bool, len(weights))
	table := make([]FieldWeight, 0, len(weights))
	for _, w := range weights {
		if w.Field < 0 || w.Field >= numFields {
			return Config{}, fmt.Errorf("unknown field %d in weight table", int(w.Field))
		}
		if seen[w.Field] {
			return Config{}, fmt.Errorf("field %s listed twice in weight table", w.Field)
		}
		if w.Weight < 0 {
			return Config{}, fmt.Errorf("negative weight %v for field %s", w.Weight, w.Field)
		}
		seen[w.Field] = true
		table = append(table, w)
	}

	return Config{weights: table, threshold: threshold, policy: policy}, nil
}

// Weights returns a copy of the weight table.
func (c Config) Weights() []FieldWeight {
	out := make([]FieldWeight, len(c.weights))
	copy(out, c.weights)
	return out
}

func (c Config) Threshold() float64 { return c.threshold }

func (c Config) Policy() Policy { return c.policy }

// TotalWeight is the fixed-policy denominator.
func (c Config) TotalWeight() float64 {
	var total float64
	for _, w := range c.weights {
		total += w.Weight
	}
	return total
}
