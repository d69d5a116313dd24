package pricing

// ResolveBestPrices computes, for every product and country, the store with
// the lowest current unit price. "Current" is the latest purchase per
// (product, store); timestamp ties resolve to the highest purchase ID and
// price ties inside a country resolve to the lowest store ID, so the result
// is deterministic for a fixed snapshot. Comparison happens on normalized
// unit prices; the emitted BestPriceInfo carries the observed per-unit price
// in the product's own unit.
//
// Purchases with a non-positive quantity, or referencing a product or store
// missing from the snapshot, are excluded. Products without purchases in a
// country simply have no entry for that country.
func ResolveBestPrices(purchases []Purchase, products []Product, stores []Store) map[int64]BestPriceByCountry {
	productByID := make(map[int64]Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}
	storeByID := make(map[int64]Store, len(stores))
	for _, s := range stores {
		storeByID[s.ID] = s
	}

	idx := BuildIndex(purchases, stores)

	type candidate struct {
		store      Store
		unitPrice  float64
		normalized float64
	}
	best := make(map[ProductCountryKey]candidate)

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

		ckey := ProductCountryKey{ProductID: product.ID, Country: store.Country}
		existing, found := best[ckey]
		if !found ||
			normalized < existing.normalized ||
			(normalized == existing.normalized && store.ID < existing.store.ID) {
			best[ckey] = candidate{store: store, unitPrice: unitPrice, normalized: normalized}
		}
	}

	result := make(map[int64]BestPriceByCountry)
	for ckey, c := range best {
		product := productByID[ckey.ProductID]
		info := &BestPriceInfo{
			ProductID: product.ID,
			StoreName: c.store.Name,
			UnitPrice: c.unitPrice,
			Unit:      product.Unit,
		}
		entry := result[ckey.ProductID]
		switch ckey.Country {
		case CountryNL:
			entry.NL = info
		case CountryES:
			entry.ES = info
		}
		result[ckey.ProductID] = entry
	}
	return result
}
