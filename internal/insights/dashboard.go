package insights

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/basketwatch/basketwatch/internal/pricing"
)

// DefaultStaleAge marks a (product, store) price as outdated when its latest
// observation is older than this.
const DefaultStaleAge = 14 * 24 * time.Hour

// rankingLimit caps the top and bottom product rankings.
const rankingLimit = 10

// Stats are the dashboard headline numbers.
type Stats struct {
	Stores             int     `json:"stores"`
	Products           int     `json:"products"`
	Purchases          int     `json:"purchases"`
	TotalSpend         float64 `json:"total_spend"`
	ProductsWithPrices int     `json:"products_with_prices"`
}

// StoreSpend aggregates what the community spent at one store.
type StoreSpend struct {
	StoreID   int64   `json:"store_id"`
	StoreName string  `json:"store_name"`
	Total     float64 `json:"total"`
	Purchases int     `json:"purchases"`
	PerVisit  float64 `json:"per_visit"`
}

// ProductQuantity ranks a product by the total quantity ever bought.
type ProductQuantity struct {
	ProductID     int64        `json:"product_id"`
	Name          string       `json:"name"`
	Brand         string       `json:"brand"`
	Unit          pricing.Unit `json:"unit"`
	TotalQuantity float64      `json:"total_quantity"`
}

// StaleEntry is a (product, store) pair whose price has not been refreshed
// recently.
type StaleEntry struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	StoreID     int64  `json:"store_id"`
	StoreName   string `json:"store_name"`
	LastSeen    int64  `json:"last_seen"`
	AgeDays     int    `json:"age_days"`
}

// SingleStoreProduct is a product only ever observed at one store, so it has
// no price comparison.
type SingleStoreProduct struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	StoreID     int64  `json:"store_id"`
	StoreName   string `json:"store_name"`
}

// Dashboard bundles the aggregate views shown on the landing page.
type Dashboard struct {
	GeneratedAt         time.Time            `json:"generated_at"`
	Stats               Stats                `json:"stats"`
	SpendPerStore       []StoreSpend         `json:"spend_per_store"`
	TopProducts         []ProductQuantity    `json:"top_products"`
	BottomProducts      []ProductQuantity    `json:"bottom_products"`
	StaleEntries        []StaleEntry         `json:"stale_entries"`
	SingleStoreProducts []SingleStoreProduct `json:"single_store_products"`
}

// nameCollator orders names the way a Dutch-speaking community expects,
// matching how the record lists are presented.
var nameCollator = collate.New(language.Dutch, collate.IgnoreCase)

// BuildDashboard computes every aggregate from one snapshot. now anchors the
// staleness cutoff.
func BuildDashboard(snap Snapshot, now time.Time, staleAge time.Duration) Dashboard {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}

	storesByID := make(map[int64]pricing.Store, len(snap.Stores))
	for _, s := range snap.Stores {
		storesByID[s.ID] = s
	}
	productsByID := make(map[int64]pricing.Product, len(snap.Products))
	for _, p := range snap.Products {
		productsByID[p.ID] = p
	}

	dash := Dashboard{
		GeneratedAt: now,
		Stats: Stats{
			Stores:    len(snap.Stores),
			Products:  len(snap.Products),
			Purchases: len(snap.Purchases),
		},
	}
	for _, p := range snap.Purchases {
		dash.Stats.TotalSpend += p.Price
	}
	dash.Stats.ProductsWithPrices = len(pricing.ResolveBestPrices(snap.Purchases, snap.Products, snap.Stores))

	dash.SpendPerStore = spendPerStore(snap.Purchases, storesByID)
	dash.TopProducts, dash.BottomProducts = productRankings(snap.Purchases, productsByID)
	dash.StaleEntries = staleEntries(snap.Purchases, productsByID, storesByID, now, staleAge)
	dash.SingleStoreProducts = singleStoreProducts(snap.Purchases, productsByID, storesByID)
	return dash
}

func spendPerStore(purchases []pricing.Purchase, stores map[int64]pricing.Store) []StoreSpend {
	totals := map[int64]*StoreSpend{}
	for _, p := range purchases {
		store, ok := stores[p.StoreID]
		if !ok {
			continue
		}
		entry, ok := totals[p.StoreID]
		if !ok {
			entry = &StoreSpend{StoreID: store.ID, StoreName: store.Name}
			totals[p.StoreID] = entry
		}
		entry.Total += p.Price
		entry.Purchases++
	}

	out := make([]StoreSpend, 0, len(totals))
	for _, entry := range totals {
		if entry.Purchases > 0 {
			entry.PerVisit = entry.Total / float64(entry.Purchases)
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return nameCollator.CompareString(out[i].StoreName, out[j].StoreName) < 0
	})
	return out
}

func productRankings(purchases []pricing.Purchase, products map[int64]pricing.Product) (top, bottom []ProductQuantity) {
	totals := map[int64]*ProductQuantity{}
	for _, p := range purchases {
		product, ok := products[p.ProductID]
		if !ok {
			continue
		}
		entry, ok := totals[p.ProductID]
		if !ok {
			entry = &ProductQuantity{
				ProductID: product.ID,
				Name:      product.Name,
				Brand:     product.Brand,
				Unit:      product.Unit,
			}
			totals[p.ProductID] = entry
		}
		entry.TotalQuantity += p.Quantity
	}

	ranked := make([]ProductQuantity, 0, len(totals))
	for _, entry := range totals {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalQuantity != ranked[j].TotalQuantity {
			return ranked[i].TotalQuantity > ranked[j].TotalQuantity
		}
		return nameCollator.CompareString(ranked[i].Name, ranked[j].Name) < 0
	})

	top = append(top, ranked[:min(rankingLimit, len(ranked))]...)
	for i := len(ranked) - 1; i >= 0 && len(bottom) < rankingLimit; i-- {
		bottom = append(bottom, ranked[i])
	}
	return top, bottom
}

func staleEntries(purchases []pricing.Purchase, products map[int64]pricing.Product, stores map[int64]pricing.Store, now time.Time, staleAge time.Duration) []StaleEntry {
	lastSeen := map[pricing.ProductStoreKey]pricing.Purchase{}
	for _, p := range purchases {
		key := pricing.ProductStoreKey{ProductID: p.ProductID, StoreID: p.StoreID}
		if best, ok := lastSeen[key]; !ok ||
			p.Timestamp > best.Timestamp || (p.Timestamp == best.Timestamp && p.ID > best.ID) {
			lastSeen[key] = p
		}
	}

	cutoff := now.Add(-staleAge).UnixNano()
	var out []StaleEntry
	for key, p := range lastSeen {
		if p.Timestamp >= cutoff {
			continue
		}
		product, ok := products[key.ProductID]
		if !ok {
			continue
		}
		store, ok := stores[key.StoreID]
		if !ok {
			continue
		}
		age := now.Sub(time.Unix(0, p.Timestamp))
		out = append(out, StaleEntry{
			ProductID:   product.ID,
			ProductName: product.Name,
			StoreID:     store.ID,
			StoreName:   store.Name,
			LastSeen:    p.Timestamp,
			AgeDays:     int(age.Hours() / 24),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen < out[j].LastSeen
		}
		return nameCollator.CompareString(out[i].ProductName, out[j].ProductName) < 0
	})
	return out
}

func singleStoreProducts(purchases []pricing.Purchase, products map[int64]pricing.Product, stores map[int64]pricing.Store) []SingleStoreProduct {
	seen := map[int64]map[int64]struct{}{}
	for _, p := range purchases {
		if _, ok := products[p.ProductID]; !ok {
			continue
		}
		if _, ok := stores[p.StoreID]; !ok {
			continue
		}
		set, ok := seen[p.ProductID]
		if !ok {
			set = map[int64]struct{}{}
			seen[p.ProductID] = set
		}
		set[p.StoreID] = struct{}{}
	}

	var out []SingleStoreProduct
	for productID, storeSet := range seen {
		if len(storeSet) != 1 {
			continue
		}
		for storeID := range storeSet {
			out = append(out, SingleStoreProduct{
				ProductID:   productID,
				ProductName: products[productID].Name,
				StoreID:     storeID,
				StoreName:   stores[storeID].Name,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := nameCollator.CompareString(out[i].ProductName, out[j].ProductName); c != 0 {
			return c < 0
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
