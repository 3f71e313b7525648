package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"visitorintel/api/intel"
)

const allocatorKeyPrefix = "visitorintel:labels"

// RedisAllocator mints labels through Redis so that concurrent first visits
// cannot hand out the same number. The per-kind counter is seeded from the
// count of labels already stored, and each identifier claims its label with
// SETNX: a visit that loses the claim adopts the winner's label. The losing
// INCR leaves a gap in the numbering; duplicates are not possible.
type RedisAllocator struct {
	rdb   *redis.Client
	store intel.Store
}

func NewRedisAllocator(rdb *redis.Client, store intel.Store) *RedisAllocator {
	return &RedisAllocator{rdb: rdb, store: store}
}

func counterKey(kind intel.Kind) string {
	return fmt.Sprintf("%s:%s:seq", allocatorKeyPrefix, kind)
}

func claimKey(kind intel.Kind, identifier string) string {
	return fmt.Sprintf("%s:%s:claim:%s", allocatorKeyPrefix, kind, identifier)
}

func (a *RedisAllocator) Mint(ctx context.Context, kind intel.Kind, identifier string) (string, error) {
	claim := claimKey(kind, identifier)

	existing, err := a.rdb.Get(ctx, claim).Result()
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, redis.Nil):
		return "", fmt.Errorf("failed to read %s claim: %w", kind, err)
	}

	if err := a.seed(ctx, kind); err != nil {
		return "", err
	}

	n, err := a.rdb.Incr(ctx, counterKey(kind)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to increment %s counter: %w", kind, err)
	}
	label := intel.FormatLabel(kind, int(n))

	won, err := a.rdb.SetNX(ctx, claim, label, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to claim %s label: %w", kind, err)
	}
	if won {
		return label, nil
	}

	winner, err := a.rdb.Get(ctx, claim).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read %s claim: %w", kind, err)
	}
	return winner, nil
}

// seed initializes the counter from the store the first time it is needed,
// e.g. after switching from CountAllocator or after Redis lost its data.
func (a *RedisAllocator) seed(ctx context.Context, kind intel.Kind) error {
	key := counterKey(kind)
	exists, err := a.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check %s counter: %w", kind, err)
	}
	if exists > 0 {
		return nil
	}

	n, err := a.store.CountAssigned(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to count %s labels: %w", kind, err)
	}
	if err := a.rdb.SetNX(ctx, key, n, 0).Err(); err != nil {
		return fmt.Errorf("failed to seed %s counter: %w", kind, err)
	}
	return nil
}
