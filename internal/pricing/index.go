package pricing

// ProductStoreKey identifies a (product, store) purchase group.
type ProductStoreKey struct {
	ProductID int64
	StoreID   int64
}

// ProductCountryKey identifies a (product, country) purchase group.
type ProductCountryKey struct {
	ProductID int64
	Country   Country
}

// Index holds grouping views over one purchase snapshot. Buckets preserve the
// input order; consumers sort as they need. The index never drops a purchase:
// data-quality filtering (zero quantity, zero price) is the caller's job. The
// one exception is ByProductCountry, which requires the store join and omits
// purchases referencing an unknown store.
type Index struct {
	ByProduct        map[int64][]Purchase
	ByProductStore   map[ProductStoreKey][]Purchase
	ByProductCountry map[ProductCountryKey][]Purchase
}

// BuildIndex groups purchases by product, by (product, store) and by
// (product, country). Country membership follows the purchase's store.
func BuildIndex(purchases []Purchase, stores []Store) Index {
	idx := Index{
		ByProduct:        make(map[int64][]Purchase),
		ByProductStore:   make(map[ProductStoreKey][]Purchase),
		ByProductCountry: make(map[ProductCountryKey][]Purchase),
	}
	countryByStore := make(map[int64]Country, len(stores))
	for _, s := range stores {
		countryByStore[s.ID] = s.Country
	}
	for _, p := range purchases {
		idx.ByProduct[p.ProductID] = append(idx.ByProduct[p.ProductID], p)
		skey := ProductStoreKey{ProductID: p.ProductID, StoreID: p.StoreID}
		idx.ByProductStore[skey] = append(idx.ByProductStore[skey], p)
		if country, ok := countryByStore[p.StoreID]; ok {
			ckey := ProductCountryKey{ProductID: p.ProductID, Country: country}
			idx.ByProductCountry[ckey] = append(idx.ByProductCountry[ckey], p)
		}
	}
	return idx
}

// Latest returns the purchase with the highest timestamp in the bucket,
// breaking timestamp ties on the highest purchase ID. The bool is false for
// an empty bucket.
func Latest(bucket []Purchase) (Purchase, bool) {
	if len(bucket) == 0 {
		return Purchase{}, false
	}
	best := bucket[0]
	for _, p := range bucket[1:] {
		if p.Timestamp > best.Timestamp || (p.Timestamp == best.Timestamp && p.ID > best.ID) {
			best = p
		}
	}
	return best, true
}
