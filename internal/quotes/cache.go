// Package quotes provides last-traded-price lookups with a Redis cache.
package quotes

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kite-webtrader/internal/broker"
)

const (
	cacheKeyPrefix = "quotes:ltp:"
	cacheTTL       = 3 * time.Second
)

// Service returns last-traded prices for symbols.
type Service interface {
	LTP(ctx context.Context, b broker.Broker, symbols ...string) (map[string]float64, error)
}

// CachedService decorates broker LTP lookups with a short-lived Redis cache.
// Reads go cache-first and fall through to the broker on a miss; Redis
// failures degrade to direct broker calls.
type CachedService struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewCachedService creates a cached quote service. A nil client disables
// caching and every lookup hits the broker.
func NewCachedService(rdb *redis.Client, logger zerolog.Logger) *CachedService {
	return &CachedService{redis: rdb, logger: logger}
}

// LTP returns prices for the given symbols, serving from cache when fresh.
func (s *CachedService) LTP(ctx context.Context, b broker.Broker, symbols ...string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	var missing []string

	if s.redis != nil {
		for _, sym := range symbols {
			val, err := s.redis.Get(ctx, cacheKeyPrefix+sym).Result()
			if err != nil {
				missing = append(missing, sym)
				continue
			}
			price, err := strconv.ParseFloat(val, 64)
			if err != nil {
				missing = append(missing, sym)
				continue
			}
			prices[sym] = price
		}
	} else {
		missing = symbols
	}

	if len(missing) == 0 {
		return prices, nil
	}

	fetched, err := b.LTP(ctx, missing...)
	if err != nil {
		return nil, err
	}

	for sym, price := range fetched {
		prices[sym] = price
		if s.redis != nil {
			val := strconv.FormatFloat(price, 'f', -1, 64)
			if err := s.redis.Set(ctx, cacheKeyPrefix+sym, val, cacheTTL).Err(); err != nil {
				s.logger.Debug().Err(err).Str("symbol", sym).Msg("quote cache write failed")
			}
		}
	}
	return prices, nil
}

var _ Service = (*CachedService)(nil)
