package intel

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Identity is what the resolver needs to know about an incoming visit.
type Identity struct {
	FingerprintID string
	SessionID     string
	Signals       Signals
}

// Match is the probabilistic best guess for a visit. ProbableAlias and
// ProbableScore are nil unless BestMatchScore reached the threshold.
type Match struct {
	ProbableAlias  *string
	ProbableScore  *float64
	BestMatchAlias *string
	BestMatchScore float64
}

// Resolution is the complete identity outcome for one visit.
type Resolution struct {
	VisitorAlias string
	SessionLabel string
	// Returning is set when VisitorAlias was reused from an earlier visit.
	Returning     bool
	MintedVisitor bool
	MintedSession bool
	Match
}

// Resolver assigns deterministic aliases and computes the probable alias.
type Resolver struct {
	store     Store
	alloc     Allocator
	scorer    *Scorer
	threshold float64
}

// NewResolver wires a resolver. A nil alloc falls back to CountAllocator.
func NewResolver(store Store, alloc Allocator, cfg Config) *Resolver {
	if alloc == nil {
		alloc = NewCountAllocator(store)
	}
	return &Resolver{
		store:     store,
		alloc:     alloc,
		scorer:    NewScorer(cfg),
		threshold: cfg.Threshold(),
	}
}

// Resolve runs both the deterministic and probabilistic paths. Any store
// failure aborts the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (Resolution, error) {
	var res Resolution

	alias, found, err := r.Assign(ctx, KindVisitor, id.FingerprintID)
	if err != nil {
		return Resolution{}, err
	}
	res.VisitorAlias = alias
	res.Returning = found
	res.MintedVisitor = alias != "" && !found

	label, found, err := r.Assign(ctx, KindSession, id.SessionID)
	if err != nil {
		return Resolution{}, err
	}
	res.SessionLabel = label
	res.MintedSession = label != "" && !found

	res.Match, err = r.BestGuess(ctx, id.FingerprintID, id.Signals)
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// Assign returns the stable label for identifier, reusing the earliest one
// stored or minting the next. found reports reuse. An empty identifier gets
// no label.
func (r *Resolver) Assign(ctx context.Context, kind Kind, identifier string) (label string, found bool, err error) {
	if identifier == "" {
		return "", false, nil
	}

	label, err = r.store.EarliestAssigned(ctx, kind, identifier)
	switch {
	case err == nil:
		return label, true, nil
	case !errors.Is(err, ErrNotFound):
		return "", false, fmt.Errorf("failed to look up %s label: %w", kind, err)
	}

	label, err = r.alloc.Mint(ctx, kind, identifier)
	if err != nil {
		return "", false, fmt.Errorf("failed to mint %s label: %w", kind, err)
	}
	return label, false, nil
}

type rankedCandidate struct {
	alias string
	score float64
}

// BestGuess scores every stored candidate against signals. Candidates are not
// deduplicated by alias: the single best record wins, and among equal scores
// the one the store returned first.
func (r *Resolver) BestGuess(ctx context.Context, fingerprintID string, signals Signals) (Match, error) {
	candidates, err := r.store.ListCandidates(ctx, fingerprintID)
	if err != nil {
		return Match{}, fmt.Errorf("failed to list match candidates: %w", err)
	}

	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.VisitorAlias == "" {
			continue
		}
		if fingerprintID != "" && c.FingerprintID == fingerprintID {
			continue
		}
		ranked = append(ranked, rankedCandidate{
			alias: c.VisitorAlias,
			score: r.scorer.Score(signals, c.Signals),
		})
	}
	if len(ranked) == 0 {
		return Match{}, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	best := ranked[0]
	m := Match{
		BestMatchAlias: &best.alias,
		BestMatchScore: best.score,
	}
	if best.score >= r.threshold {
		alias, score := best.alias, best.score
		m.ProbableAlias = &alias
		m.ProbableScore = &score
	}
	return m, nil
}
