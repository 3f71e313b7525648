package intel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/intel"
)

func fullSignals(suffix string) intel.Signals {
	var s intel.Signals
	for _, f := range intel.Fields() {
		s.Set(f, f.String()+suffix)
	}
	return s
}

func partialSignals(values map[intel.Field]string) intel.Signals {
	var s intel.Signals
	for f, v := range values {
		s.Set(f, v)
	}
	return s
}

func TestScore_Identity(t *testing.T) {
	t.Parallel()

	scorer := intel.NewScorer(intel.DefaultConfig())
	a := fullSignals("-a")
	assert.Equal(t, 1.0, scorer.Score(a, a))
	assert.Equal(t, 0.0, scorer.Score(a, fullSignals("-b")))
}

func TestScore_EmptyIsZero(t *testing.T) {
	t.Parallel()

	for _, policy := range []intel.Policy{intel.PolicyFixed, intel.PolicyShared} {
		cfg, err := intel.NewConfig(intel.DefaultWeights(), 0.8, policy)
		require.NoError(t, err)
		scorer := intel.NewScorer(cfg)

		var empty intel.Signals
		assert.Equal(t, 0.0, scorer.Score(empty, fullSignals("")), policy)
		assert.Equal(t, 0.0, scorer.Score(fullSignals(""), empty), policy)
		assert.Equal(t, 0.0, scorer.Score(empty, empty), policy)
	}
}

func TestScore_Symmetric(t *testing.T) {
	t.Parallel()

	scorer := intel.NewScorer(intel.DefaultConfig())
	pairs := [][2]intel.Signals{
		{
			partialSignals(map[intel.Field]string{intel.FieldUserAgent: "UA", intel.FieldCanvasHash: "c"}),
			partialSignals(map[intel.Field]string{intel.FieldUserAgent: "UA", intel.FieldAudioHash: "a"}),
		},
		{fullSignals("x"), partialSignals(map[intel.Field]string{intel.FieldPlatform: "platformx"})},
		{fullSignals("x"), fullSignals("x")},
	}
	for _, p := range pairs {
		assert.Equal(t, scorer.Score(p[0], p[1]), scorer.Score(p[1], p[0]))
	}
}

func TestScore_FixedDenominatorPenalizesMissing(t *testing.T) {
	t.Parallel()

	a := partialSignals(map[intel.Field]string{
		intel.FieldUserAgent:  "UA1",
		intel.FieldScreenRes:  "1920x1080",
		intel.FieldCanvasHash: "c1",
	})

	fixed := intel.NewScorer(intel.DefaultConfig())
	assert.InDelta(t, 5.5/18.0, fixed.Score(a, a), 1e-12)

	cfg, err := intel.NewConfig(intel.DefaultWeights(), 0.8, intel.PolicyShared)
	require.NoError(t, err)
	assert.Equal(t, 1.0, intel.NewScorer(cfg).Score(a, a))
}

func TestScore_CustomWeights(t *testing.T) {
	t.Parallel()

	cfg, err := intel.NewConfig([]intel.FieldWeight{
		{Field: intel.FieldUserAgent, Weight: 1},
		{Field: intel.FieldTimezone, Weight: 3},
	}, 0.5, intel.PolicyFixed)
	require.NoError(t, err)

	a := partialSignals(map[intel.Field]string{intel.FieldUserAgent: "x", intel.FieldTimezone: "UTC"})
	b := partialSignals(map[intel.Field]string{intel.FieldUserAgent: "y", intel.FieldTimezone: "UTC", intel.FieldCanvasHash: "ignored"})
	assert.Equal(t, 0.75, intel.NewScorer(cfg).Score(a, b))
}

func TestFuzzyRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, intel.FuzzyRatio("", "abc"))
	assert.Equal(t, 0.0, intel.FuzzyRatio("abc", ""))
	assert.Equal(t, 1.0, intel.FuzzyRatio("abc", "abc"))
	assert.InDelta(t, 0.75, intel.FuzzyRatio("abcd", "abcx"), 1e-12)
	assert.Equal(t, intel.FuzzyRatio("kitten", "sitting"), intel.FuzzyRatio("sitting", "kitten"))
}
