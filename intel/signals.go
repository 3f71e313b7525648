package intel

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Field identifies one canonical browser/device signal.
type Field int

const (
	FieldUserAgent Field = iota
	FieldScreenRes
	FieldColorDepth
	FieldTimezone
	FieldLanguage
	FieldPlatform
	FieldDeviceMemory
	FieldCPUCores
	FieldGPUVendor
	FieldGPURenderer
	FieldCanvasHash
	FieldAudioHash

	numFields
)

var fieldNames = [numFields]string{
	FieldUserAgent:    "user_agent",
	FieldScreenRes:    "screen_res",
	FieldColorDepth:   "color_depth",
	FieldTimezone:     "timezone",
	FieldLanguage:     "language",
	FieldPlatform:     "platform",
	FieldDeviceMemory: "device_memory",
	FieldCPUCores:     "cpu_cores",
	FieldGPUVendor:    "gpu_vendor",
	FieldGPURenderer:  "gpu_renderer",
	FieldCanvasHash:   "canvas_hash",
	FieldAudioHash:    "audio_hash",
}

// acceptedKeys lists, per field, the raw entropy keys the browser script has
// used over time. Earlier keys take precedence.
var acceptedKeys = [numFields][]string{
	FieldUserAgent:    {"userAgent", "user_agent", "ua"},
	FieldScreenRes:    {"screen", "screenResolution", "screen_res"},
	FieldColorDepth:   {"colorDepth", "color_depth"},
	FieldTimezone:     {"timezone", "timeZone"},
	FieldLanguage:     {"language", "lang"},
	FieldPlatform:     {"platform"},
	FieldDeviceMemory: {"deviceMemory", "device_memory"},
	FieldCPUCores:     {"hardwareConcurrency", "cpuCores", "cpu_cores"},
	FieldGPUVendor:    {"webglVendor", "gpuVendor", "gpu_vendor"},
	FieldGPURenderer:  {"webglRenderer", "gpuRenderer", "gpu_renderer"},
	FieldCanvasHash:   {"canvas", "canvasHash", "canvas_hash"},
	FieldAudioHash:    {"audio", "audioHash", "audio_hash"},
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// ParseField maps a canonical field name (e.g. "canvas_hash") to its Field.
func ParseField(name string) (Field, bool) {
	for f, n := range fieldNames {
		if n == name {
			return Field(f), true
		}
	}
	return 0, false
}

// Fields returns every canonical field in column order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldNames returns the canonical field names in column order.
func FieldNames() []string {
	out := make([]string, numFields)
	copy(out, fieldNames[:])
	return out
}

// Signals is the canonical signal set of one visit. An empty string means the
// signal was not reported.
type Signals struct {
	values [numFields]string
}

func (s Signals) Get(f Field) string {
	if f < 0 || f >= numFields {
		return ""
	}
	return s.values[f]
}

func (s *Signals) Set(f Field, v string) {
	if f < 0 || f >= numFields {
		return
	}
	s.values[f] = v
}

// Len reports how many fields are populated.
func (s Signals) Len() int {
	n := 0
	for _, v := range s.values {
		if v != "" {
			n++
		}
	}
	return n
}

func (s Signals) IsEmpty() bool {
	return s.Len() == 0
}

// Map returns the populated fields keyed by canonical name.
func (s Signals) Map() map[string]string {
	out := make(map[string]string, s.Len())
	for f, v := range s.values {
		if v != "" {
			out[fieldNames[f]] = v
		}
	}
	return out
}

func (s Signals) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Signals) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = SignalsFromMap(m)
	return nil
}

// SignalsFromMap builds Signals from canonical field names. Unknown names are ignored.
func SignalsFromMap(m map[string]string) Signals {
	var s Signals
	for name, v := range m {
		if f, ok := ParseField(name); ok {
			s.values[f] = v
		}
	}
	return s
}

// ExtractSignals normalizes a raw entropy bag as posted by the browser into a
// canonical Signals value. For each field the first accepted key present in
// raw decides the value; unknown keys are dropped.
func ExtractSignals(raw map[string]any) Signals {
	var s Signals
	if len(raw) == 0 {
		return s
	}
	for f, keys := range acceptedKeys {
		for _, key := range keys {
			v, ok := raw[key]
			if !ok {
				continue
			}
			s.values[f] = normalizeSignal(v)
			break
		}
	}
	return s
}

// normalizeSignal renders scalar values as text. Objects, arrays and nulls
// cannot be compared and leave the field empty. NUL characters are dropped
// so the value can be stored as text.
func normalizeSignal(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "\x00", "")
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
