package intel

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Scorer computes weighted exact-match agreement between two signal sets.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns a similarity in [0, 1]. Weights are accumulated in table
// order so equal inputs always produce bit-identical scores.
func (s *Scorer) Score(a, b Signals) float64 {
	var matched, total float64
	for _, w := range s.cfg.weights {
		av, bv := a.Get(w.Field), b.Get(w.Field)
		both := av != "" && bv != ""
		if both && av == bv {
			matched += w.Weight
		}
		if s.cfg.policy == PolicyShared && !both {
			continue
		}
		total += w.Weight
	}
	if total <= 0 {
		return 0
	}
	return matched / total
}

// FuzzyRatio is an edit-distance similarity in [0, 1]; 0 when either side is
// empty. It is an alternative for fields where exact match is too strict.
func FuzzyRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
