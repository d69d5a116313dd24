package pricing

import "sort"

// StoreEntry is one store's current normalized unit price for a product.
type StoreEntry struct {
	StoreID   int64   `json:"store_id"`
	StoreName string  `json:"store_name"`
	UnitPrice float64 `json:"unit_price"`
	Timestamp int64   `json:"timestamp"`
}

// Comparison ranks the stores carrying a product by current price, cheapest
// first. PercentGap is the relative distance between the most and least
// expensive listed store; it is zero when fewer than two stores have data or
// when the maximum price is zero.
type Comparison struct {
	ProductID  int64        `json:"product_id"`
	Entries    []StoreEntry `json:"entries"`
	PercentGap float64      `json:"percent_gap"`
}

// CompareStores builds a per-product ranking of current (latest-purchase)
// normalized unit prices across stores. Products are always present when they
// have at least one priced purchase; callers wanting "worth comparing"
// products filter on len(Entries) >= 2.
func CompareStores(purchases []Purchase, products []Product, stores []Store) map[int64]Comparison {
	productByID := make(map[int64]Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}
	storeByID := make(map[int64]Store, len(stores))
	for _, s := range stores {
		storeByID[s.ID] = s
	}

	idx := BuildIndex(purchases, stores)
	entries := make(map[int64][]StoreEntry)
	for key, bucket := range idx.ByProductStore {
		product, ok := productByID[key.ProductID]
		if !ok {
			continue
		}
		store, ok := storeByID[key.StoreID]
		if !ok {
			continue
		}
		current, ok := Latest(bucket)
		if !ok {
			continue
		}
		unitPrice, ok := current.UnitPrice()
		if !ok {
			continue
		}
		normalized, _ := Normalize(unitPrice, product.Unit)
		entries[product.ID] = append(entries[product.ID], StoreEntry{
			StoreID:   store.ID,
			StoreName: store.Name,
			UnitPrice: normalized,
			Timestamp: current.Timestamp,
		})
	}

	result := make(map[int64]Comparison, len(entries))
	for productID, list := range entries {
		sort.Slice(list, func(i, j int) bool {
			if list[i].UnitPrice != list[j].UnitPrice {
				return list[i].UnitPrice < list[j].UnitPrice
			}
			return list[i].StoreID < list[j].StoreID
		})
		cmp := Comparison{ProductID: productID, Entries: list}
		if len(list) >= 2 {
			min := list[0].UnitPrice
			max := list[len(list)-1].UnitPrice
			if max != 0 {
				cmp.PercentGap = (max - min) / max * 100
			}
		}
		result[productID] = cmp
	}
	return result
}
