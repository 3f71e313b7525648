package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/intel"
)

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$1, $2, $3", placeholders(1, 3))
	assert.Equal(t, "$24", placeholders(24, 1))
	assert.Equal(t, "", placeholders(5, 0))
}

func TestKindColumns(t *testing.T) {
	t.Parallel()

	id, label, err := kindColumns(intel.KindVisitor)
	require.NoError(t, err)
	assert.Equal(t, "fingerprint_id", id)
	assert.Equal(t, "visitor_alias", label)

	id, label, err = kindColumns(intel.KindSession)
	require.NoError(t, err)
	assert.Equal(t, "session_id", id)
	assert.Equal(t, "session_label", label)

	_, _, err = kindColumns(intel.Kind(9))
	assert.Error(t, err)
}

func TestEntropyJSON(t *testing.T) {
	t.Parallel()

	v, err := entropyJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = entropyJSON(map[string]any{"ua": "x", "cores": 8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ua":"x","cores":8}`, v.(string))
}

func TestNULCharactersAreDropped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, nullable(""), nullable("\x00"))
	assert.Equal(t, "ab", nullable("a\x00b").String)
	assert.Equal(t, "/pricing", pgText("/pri\x00cing"))

	v, err := entropyJSON(map[string]any{
		"userAgent": "a\x00b",
		"k\x00ey":   []any{"x\x00", 3.5, map[string]any{"n": "\x00"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, v.(string), `\u0000`)
	assert.JSONEq(t, `{"userAgent":"ab","key":["x",3.5,{"n":""}]}`, v.(string))

	v, err = eventJSON(json.RawMessage(`{"label":"c\u0000d","big":12345678901234567890}`))
	require.NoError(t, err)
	assert.NotContains(t, v.(string), `\u0000`)
	assert.JSONEq(t, `{"label":"cd","big":12345678901234567890}`, v.(string))

	v, err = eventJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSignalArgsFollowColumnOrder(t *testing.T) {
	t.Parallel()

	var sig intel.Signals
	sig.Set(intel.FieldAudioHash, "a")
	args := signalArgs(sig)
	require.Len(t, args, len(signalColumns))
	assert.Equal(t, "audio_hash", signalColumns[len(signalColumns)-1])
	last := args[len(args)-1]
	assert.Equal(t, nullable("a"), last)
	assert.Equal(t, nullable(""), args[0])
}
