package intel_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/intel"
)

func TestExtractSignals_AcceptedKeys(t *testing.T) {
	t.Parallel()

	s := intel.ExtractSignals(map[string]any{
		"ua":                  "Mozilla/5.0",
		"screenResolution":    "1920x1080",
		"colorDepth":          float64(24),
		"timeZone":            "Asia/Kolkata",
		"lang":                "en-IN",
		"platform":            "Win32",
		"device_memory":       json.Number("8"),
		"hardwareConcurrency": 12,
		"gpuVendor":           "NVIDIA",
		"webglRenderer":       "RTX 3060",
		"canvas_hash":         "abc",
		"audio":               true,
		"plugins":             []any{"pdf"},
	})

	assert.Equal(t, "Mozilla/5.0", s.Get(intel.FieldUserAgent))
	assert.Equal(t, "1920x1080", s.Get(intel.FieldScreenRes))
	assert.Equal(t, "24", s.Get(intel.FieldColorDepth))
	assert.Equal(t, "Asia/Kolkata", s.Get(intel.FieldTimezone))
	assert.Equal(t, "en-IN", s.Get(intel.FieldLanguage))
	assert.Equal(t, "Win32", s.Get(intel.FieldPlatform))
	assert.Equal(t, "8", s.Get(intel.FieldDeviceMemory))
	assert.Equal(t, "12", s.Get(intel.FieldCPUCores))
	assert.Equal(t, "NVIDIA", s.Get(intel.FieldGPUVendor))
	assert.Equal(t, "RTX 3060", s.Get(intel.FieldGPURenderer))
	assert.Equal(t, "abc", s.Get(intel.FieldCanvasHash))
	assert.Equal(t, "true", s.Get(intel.FieldAudioHash))
	assert.Equal(t, 12, s.Len())
}

func TestExtractSignals_FirstKeyWins(t *testing.T) {
	t.Parallel()

	s := intel.ExtractSignals(map[string]any{
		"userAgent":  "primary",
		"user_agent": "legacy",
		"ua":         "older",
	})
	assert.Equal(t, "primary", s.Get(intel.FieldUserAgent))

	// A present-but-unusable first key does not fall through to later keys.
	s = intel.ExtractSignals(map[string]any{
		"screen":     map[string]any{"w": 1},
		"screen_res": "800x600",
	})
	assert.Equal(t, "", s.Get(intel.FieldScreenRes))
}

func TestExtractSignals_Empty(t *testing.T) {
	t.Parallel()

	assert.True(t, intel.ExtractSignals(nil).IsEmpty())
	assert.True(t, intel.ExtractSignals(map[string]any{"unknown": "x"}).IsEmpty())
	assert.True(t, intel.ExtractSignals(map[string]any{"userAgent": nil}).IsEmpty())
}

func TestExtractSignals_DropsNULCharacters(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"userAgent":"Moz\u0000illa","canvas":"\u0000","platform":"Linux"}`), &raw))

	s := intel.ExtractSignals(raw)
	assert.Equal(t, "Mozilla", s.Get(intel.FieldUserAgent))
	assert.Equal(t, "", s.Get(intel.FieldCanvasHash))
	assert.Equal(t, "Linux", s.Get(intel.FieldPlatform))
	assert.Equal(t, 2, s.Len())
}

func TestSignalsJSON(t *testing.T) {
	t.Parallel()

	var s intel.Signals
	s.Set(intel.FieldCanvasHash, "c1")
	s.Set(intel.FieldTimezone, "UTC")

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"canvas_hash":"c1","timezone":"UTC"}`, string(raw))

	var back intel.Signals
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, s, back)
}

func TestParseField(t *testing.T) {
	t.Parallel()

	for _, f := range intel.Fields() {
		got, ok := intel.ParseField(f.String())
		require.True(t, ok, f.String())
		assert.Equal(t, f, got)
	}
	_, ok := intel.ParseField("fonts")
	assert.False(t, ok)
	assert.Len(t, intel.FieldNames(), 12)
}
