package intel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Allocator mints a new label for an identifier that has none yet.
type Allocator interface {
	Mint(ctx context.Context, kind Kind, identifier string) (string, error)
}

// FormatLabel renders the n-th label of kind, e.g. Visitor_007.
func FormatLabel(kind Kind, n int) string {
	return fmt.Sprintf("%s%03d", kind.Prefix(), n)
}

// ParseLabel extracts the sequence number from a label of kind.
func ParseLabel(kind Kind, label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, kind.Prefix())
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CountAllocator numbers a new label one past the count of distinct labels
// already stored. Two first-time visits racing between the count and their
// insert can mint the same label; RedisAllocator in the store package closes
// that window.
type CountAllocator struct {
	store Store
}

func NewCountAllocator(store Store) *CountAllocator {
	return &CountAllocator{store: store}
}

func (a *CountAllocator) Mint(ctx context.Context, kind Kind, _ string) (string, error) {
	n, err := a.store.CountAssigned(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("failed to count %s labels: %w", kind, err)
	}
	return FormatLabel(kind, n+1), nil
}
