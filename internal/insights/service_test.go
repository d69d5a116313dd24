package insights

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

type mockRepo struct {
	stores        []pricing.Store
	products      []pricing.Product
	purchases     []pricing.Purchase
	purchaseCalls int
}

func (m *mockRepo) ListStores(context.Context) ([]pricing.Store, error) {
	return m.stores, nil
}

func (m *mockRepo) ListProducts(context.Context) ([]pricing.Product, error) {
	return m.products, nil
}

func (m *mockRepo) ListPurchases(context.Context) ([]pricing.Purchase, error) {
	m.purchaseCalls++
	return m.purchases, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(repo, cache, 0, 0), cache
}

func sampleRepo() *mockRepo {
	return &mockRepo{
		stores: []pricing.Store{
			{ID: 1, Name: "Jumbo", Locality: "Utrecht", Country: pricing.CountryNL},
			{ID: 2, Name: "Albert Heijn", Locality: "Utrecht", Country: pricing.CountryNL},
			{ID: 3, Name: "Mercadona", Locality: "Valencia", Country: pricing.CountryES},
		},
		products: []pricing.Product{
			{ID: 10, Name: "Melk", Brand: "Campina", Unit: pricing.UnitLiter},
			{ID: 11, Name: "Brood", Brand: pricing.BrandNotApplicable, Unit: pricing.UnitPiece},
		},
		purchases: []pricing.Purchase{
			{ID: 1, ProductID: 10, StoreID: 1, Price: 2.00, Quantity: 1, Timestamp: 100},
			{ID: 2, ProductID: 10, StoreID: 2, Price: 1.50, Quantity: 1, Timestamp: 200},
			{ID: 3, ProductID: 10, StoreID: 3, Price: 1.80, Quantity: 1, Timestamp: 300},
			{ID: 4, ProductID: 11, StoreID: 1, Price: 1.20, Quantity: 1, Timestamp: 400},
		},
	}
}

func TestBestPricesComputesAndCaches(t *testing.T) {
	repo := sampleRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	prices, err := svc.BestPrices(ctx)
	if err != nil {
		t.Fatalf("best prices: %v", err)
	}
	best := prices[10]
	if best.NL == nil || best.NL.UnitPrice != 1.50 || best.NL.StoreName != "Albert Heijn" {
		t.Fatalf("unexpected NL best price: %+v", best.NL)
	}
	if best.ES == nil || best.ES.UnitPrice != 1.80 {
		t.Fatalf("unexpected ES best price: %+v", best.ES)
	}

	if _, err := svc.BestPrices(ctx); err != nil {
		t.Fatalf("cached best prices: %v", err)
	}
	if repo.purchaseCalls != 1 {
		t.Fatalf("expected one repository load, got %d", repo.purchaseCalls)
	}
}

func TestBumpInvalidatesCachedViews(t *testing.T) {
	repo := sampleRepo()
	svc, cache := newTestService(t, repo)
	ctx := context.Background()

	if _, err := svc.BestPrices(ctx); err != nil {
		t.Fatalf("best prices: %v", err)
	}
	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if _, err := svc.BestPrices(ctx); err != nil {
		t.Fatalf("best prices after bump: %v", err)
	}
	if repo.purchaseCalls != 2 {
		t.Fatalf("expected a reload after bump, got %d calls", repo.purchaseCalls)
	}
}

func TestComparisonsSortedByProductName(t *testing.T) {
	repo := sampleRepo()
	svc, _ := newTestService(t, repo)

	list, err := svc.Comparisons(context.Background())
	if err != nil {
		t.Fatalf("comparisons: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two products, got %d", len(list))
	}
	// Brood sorts before Melk.
	if list[0].ProductID != 11 || list[1].ProductID != 10 {
		t.Fatalf("unexpected order: %+v", list)
	}
	if len(list[1].Entries) != 3 || list[1].Entries[0].StoreID != 2 {
		t.Fatalf("unexpected ranking for product 10: %+v", list[1].Entries)
	}
}

func TestComparisonUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t, sampleRepo())

	if _, err := svc.Comparison(context.Background(), 999); err != httpx.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTrendsRanked(t *testing.T) {
	repo := sampleRepo()
	repo.purchases = []pricing.Purchase{
		{ID: 1, ProductID: 10, StoreID: 1, Price: 2.00, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 1, Price: 3.00, Quantity: 1, Timestamp: 200},
		{ID: 3, ProductID: 11, StoreID: 1, Price: 1.00, Quantity: 1, Timestamp: 100},
		{ID: 4, ProductID: 11, StoreID: 1, Price: 1.10, Quantity: 1, Timestamp: 200},
	}
	svc, _ := newTestService(t, repo)

	trends, err := svc.Trends(context.Background())
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("expected two trends, got %d", len(trends))
	}
	// The 50% move outranks the 10% move.
	if trends[0].ProductID != 10 || trends[0].PercentChange != 50 {
		t.Fatalf("unexpected leading trend: %+v", trends[0])
	}
}

func TestDashboardCachedPerDay(t *testing.T) {
	repo := sampleRepo()
	svc, _ := newTestService(t, repo)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return base }

	dash, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Stats.Purchases != 4 {
		t.Fatalf("unexpected stats: %+v", dash.Stats)
	}

	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatalf("cached dashboard: %v", err)
	}
	if repo.purchaseCalls != 1 {
		t.Fatalf("expected one load for the same day, got %d", repo.purchaseCalls)
	}

	svc.clock = func() time.Time { return base.Add(24 * time.Hour) }
	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatalf("next-day dashboard: %v", err)
	}
	if repo.purchaseCalls != 2 {
		t.Fatalf("expected a reload on the next day, got %d calls", repo.purchaseCalls)
	}
}
