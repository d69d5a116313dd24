package insights

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

// Service computes the derived price views. Results are cached in Redis under
// the global version and rebuilt at most once per key at a time.
type Service struct {
	repo       Repository
	cache      *Cache
	group      singleflight.Group
	minSamples int
	staleAge   time.Duration
	clock      func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, minSamples int, staleAge time.Duration) *Service {
	if minSamples < 1 {
		minSamples = pricing.DefaultMinSamples
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &Service{
		repo:       repo,
		cache:      cache,
		minSamples: minSamples,
		staleAge:   staleAge,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// build collapses concurrent rebuilds of the same key into one execution.
func (s *Service) build(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}

// BestPrices returns the cheapest current offer per product and country.
func (s *Service) BestPrices(ctx context.Context) (map[int64]pricing.BestPriceByCountry, error) {
	key, err := s.cache.BuildKey(ctx, keyBestPrices())
	if err != nil {
		return nil, err
	}
	result, err := s.build(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out map[int64]pricing.BestPriceByCountry
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			snap, err := LoadSnapshot(ctx, s.repo)
			if err != nil {
				return nil, err
			}
			return pricing.ResolveBestPrices(snap.Purchases, snap.Products, snap.Stores), nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.(map[int64]pricing.BestPriceByCountry), nil
}

// Trends returns the per-store price trends ranked by movement size.
func (s *Service) Trends(ctx context.Context) ([]pricing.Trend, error) {
	key, err := s.cache.BuildKey(ctx, keyTrends(s.minSamples))
	if err != nil {
		return nil, err
	}
	result, err := s.build(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out []pricing.Trend
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			snap, err := LoadSnapshot(ctx, s.repo)
			if err != nil {
				return nil, err
			}
			return pricing.ComputeTrends(snap.Purchases, snap.Products, snap.Stores, s.minSamples), nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]pricing.Trend), nil
}

// Comparisons returns the store ranking for every product that has at least
// one usable purchase, ordered by product name.
func (s *Service) Comparisons(ctx context.Context) ([]pricing.Comparison, error) {
	key, err := s.cache.BuildKey(ctx, keyComparisons())
	if err != nil {
		return nil, err
	}
	result, err := s.build(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out []pricing.Comparison
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			snap, err := LoadSnapshot(ctx, s.repo)
			if err != nil {
				return nil, err
			}
			byProduct := pricing.CompareStores(snap.Purchases, snap.Products, snap.Stores)
			names := make(map[int64]string, len(snap.Products))
			for _, p := range snap.Products {
				names[p.ID] = p.Name
			}
			list := make([]pricing.Comparison, 0, len(byProduct))
			for _, cmp := range byProduct {
				list = append(list, cmp)
			}
			sort.Slice(list, func(i, j int) bool {
				if c := nameCollator.CompareString(names[list[i].ProductID], names[list[j].ProductID]); c != 0 {
					return c < 0
				}
				return list[i].ProductID < list[j].ProductID
			})
			return list, nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]pricing.Comparison), nil
}

// Comparison returns the store ranking for one product.
func (s *Service) Comparison(ctx context.Context, productID int64) (pricing.Comparison, error) {
	list, err := s.Comparisons(ctx)
	if err != nil {
		return pricing.Comparison{}, err
	}
	for _, cmp := range list {
		if cmp.ProductID == productID {
			return cmp, nil
		}
	}
	return pricing.Comparison{}, httpx.ErrNotFound
}

// Dashboard returns the landing-page aggregates. The cache key carries the
// calendar day so the staleness view rolls over at midnight even without
// mutations.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock()
	key, err := s.cache.BuildKey(ctx, keyDashboard(now.Format("2006-01-02")))
	if err != nil {
		return Dashboard{}, err
	}
	result, err := s.build(ctx, key, func(ctx context.Context) (interface{}, error) {
		var out Dashboard
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			snap, err := LoadSnapshot(ctx, s.repo)
			if err != nil {
				return nil, err
			}
			return BuildDashboard(snap, now, s.staleAge), nil
		})
		return out, err
	})
	if err != nil {
		return Dashboard{}, err
	}
	return result.(Dashboard), nil
}

// StaleAge exposes the configured staleness cutoff for the sweep job.
func (s *Service) StaleAge() time.Duration {
	return s.staleAge
}
