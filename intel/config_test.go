package intel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/intel"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := intel.DefaultConfig()
	assert.Equal(t, 18.0, cfg.TotalWeight())
	assert.Equal(t, 0.8, cfg.Threshold())
	assert.Equal(t, intel.PolicyFixed, cfg.Policy())
	assert.Len(t, cfg.Weights(), 12)

	// Weights hands out a copy.
	w := cfg.Weights()
	w[0].Weight = 100
	assert.Equal(t, 18.0, cfg.TotalWeight())
}

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()

	ok := []intel.FieldWeight{{Field: intel.FieldUserAgent, Weight: 1}}

	_, err := intel.NewConfig(nil, 0.8, intel.PolicyFixed)
	assert.Error(t, err)
	_, err = intel.NewConfig(ok, 1.5, intel.PolicyFixed)
	assert.Error(t, err)
	_, err = intel.NewConfig(ok, -0.1, intel.PolicyFixed)
	assert.Error(t, err)
	_, err = intel.NewConfig(ok, 0.8, intel.Policy("lenient"))
	assert.Error(t, err)
	_, err = intel.NewConfig([]intel.FieldWeight{{Field: intel.FieldUserAgent, Weight: 1}, {Field: intel.FieldUserAgent, Weight: 2}}, 0.8, intel.PolicyFixed)
	assert.Error(t, err)
	_, err = intel.NewConfig([]intel.FieldWeight{{Field: intel.FieldUserAgent, Weight: -1}}, 0.8, intel.PolicyFixed)
	assert.Error(t, err)

	cfg, err := intel.NewConfig(ok, 0.8, "")
	require.NoError(t, err)
	assert.Equal(t, intel.PolicyFixed, cfg.Policy())
}
