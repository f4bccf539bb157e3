package timeblock

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/salonhub/availability/internal/platform/cache"
)

// StoreCache keeps expansions in a cache.Store under a per-provider
// generation counter. Invalidate bumps the counter, orphaning every cached
// range of the provider until its TTL expires. Store failures are logged and
// treated as misses.
type StoreCache struct {
	store cache.Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewStoreCache(store cache.Store, ttl time.Duration, log zerolog.Logger) *StoreCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StoreCache{store: store, ttl: ttl, log: log}
}

func generationKey(providerID string) string {
	return "timeblock:gen:" + providerID
}

func rangeKey(providerID string, gen int64, from, to Date) string {
	return "timeblock:occ:" + providerID + ":" + strconv.FormatInt(gen, 10) + ":" + from.String() + ":" + to.String()
}

func (c *StoreCache) generation(ctx context.Context, providerID string) (int64, error) {
	b, err := c.store.Get(ctx, generationKey(providerID))
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(b), 10, 64)
}

func (c *StoreCache) Get(ctx context.Context, providerID string, from, to Date) ([]Occurrence, int64, bool) {
	gen, err := c.generation(ctx, providerID)
	if err != nil {
		c.log.Warn().Err(err).Str("provider_id", providerID).Msg("occurrence cache generation read failed")
		return nil, -1, false
	}

	b, err := c.store.Get(ctx, rangeKey(providerID, gen, from, to))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.log.Warn().Err(err).Str("provider_id", providerID).Msg("occurrence cache read failed")
		}
		return nil, gen, false
	}

	var occ []Occurrence
	if err := json.Unmarshal(b, &occ); err != nil {
		c.log.Warn().Err(err).Str("provider_id", providerID).Msg("occurrence cache entry corrupt")
		return nil, gen, false
	}
	return occ, gen, true
}

// Set stores occ under gen. A negative gen means the generation could not be
// read and nothing is stored.
func (c *StoreCache) Set(ctx context.Context, providerID string, gen int64, from, to Date, occ []Occurrence) {
	if gen < 0 {
		return
	}
	if occ == nil {
		occ = []Occurrence{}
	}
	b, err := json.Marshal(occ)
	if err != nil {
		c.log.Warn().Err(err).Msg("occurrence cache encode failed")
		return
	}
	if err := c.store.Set(ctx, rangeKey(providerID, gen, from, to), b, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("provider_id", providerID).Msg("occurrence cache write failed")
	}
}

func (c *StoreCache) Invalidate(ctx context.Context, providerID string) {
	if _, err := c.store.Incr(ctx, generationKey(providerID)); err != nil {
		c.log.Warn().Err(err).Str("provider_id", providerID).Msg("occurrence cache invalidation failed")
	}
}
