package intel

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store lookups that match no record.
var ErrNotFound = errors.New("record not found")

// Kind distinguishes the two deterministic identities a visit receives.
type Kind int

const (
	// KindVisitor is keyed by the device fingerprint.
	KindVisitor Kind = iota
	// KindSession is keyed by the client session id.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindVisitor:
		return "visitor"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Prefix is prepended to minted labels.
func (k Kind) Prefix() string {
	switch k {
	case KindVisitor:
		return "Visitor_"
	case KindSession:
		return "Session_"
	default:
		return ""
	}
}

// Candidate is a prior visit considered for probabilistic matching.
type Candidate struct {
	VisitID       int64
	FingerprintID string
	VisitorAlias  string
	Signals       Signals
}

// Store is the read side of the visit log the engine depends on. All
// ordering decisions are delegated to it.
type Store interface {
	// EarliestAssigned returns the label of the lowest-id visit carrying
	// identifier with a non-null label of kind, or ErrNotFound.
	EarliestAssigned(ctx context.Context, kind Kind, identifier string) (string, error)
	// CountAssigned counts the distinct non-null labels of kind.
	CountAssigned(ctx context.Context, kind Kind) (int, error)
	// ListCandidates returns, in ascending id order, visits that carry a
	// visitor alias and stored signals, excluding those whose fingerprint
	// equals excludeFingerprint when it is non-empty.
	ListCandidates(ctx context.Context, excludeFingerprint string) ([]Candidate, error)
	// SessionEntryPage returns the page of the earliest visit of the session,
	// ordered by client time falling back to server time, or ErrNotFound.
	SessionEntryPage(ctx context.Context, sessionID string) (string, error)
	// CountSessionVisits counts visits recorded for the session.
	CountSessionVisits(ctx context.Context, sessionID string) (int, error)
}
