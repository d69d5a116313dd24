package pricing

import "sort"

// DefaultMinSamples is the smallest purchase count a group needs before any
// statistical statement about it is made.
const DefaultMinSamples = 2

// Trend summarises the price movement of one product at one store between its
// earliest and latest recorded purchase.
type Trend struct {
	ProductID      int64   `json:"product_id"`
	StoreID        int64   `json:"store_id"`
	FirstUnitPrice float64 `json:"first_unit_price"`
	LastUnitPrice  float64 `json:"last_unit_price"`
	PercentChange  float64 `json:"percent_change"`
	SampleCount    int     `json:"sample_count"`
}

// ComputeTrends reports the percent change between the first and last unit
// price for every (product, store) group holding at least minSamples
// purchases. Groups with a zero first price (undefined change) or a zero
// change (nothing to show) are omitted. Results are ordered by descending
// absolute change; display layers re-sort as they wish.
func ComputeTrends(purchases []Purchase, products []Product, stores []Store, minSamples int) []Trend {
	if minSamples < DefaultMinSamples {
		minSamples = DefaultMinSamples
	}
	known := make(map[int64]struct{}, len(products))
	for _, p := range products {
		known[p.ID] = struct{}{}
	}

	idx := BuildIndex(purchases, stores)
	trends := make([]Trend, 0)
	for key, bucket := range idx.ByProductStore {
		if _, ok := known[key.ProductID]; !ok {
			continue
		}
		samples := make([]Purchase, 0, len(bucket))
		for _, p := range bucket {
			if _, ok := p.UnitPrice(); ok {
				samples = append(samples, p)
			}
		}
		if len(samples) < minSamples {
			continue
		}
		sort.Slice(samples, func(i, j int) bool {
			if samples[i].Timestamp != samples[j].Timestamp {
				return samples[i].Timestamp < samples[j].Timestamp
			}
			return samples[i].ID < samples[j].ID
		})
		first, _ := samples[0].UnitPrice()
		last, _ := samples[len(samples)-1].UnitPrice()
		if first == 0 {
			continue
		}
		change := (last - first) / first * 100
		if change == 0 {
			continue
		}
		trends = append(trends, Trend{
			ProductID:      key.ProductID,
			StoreID:        key.StoreID,
			FirstUnitPrice: first,
			LastUnitPrice:  last,
			PercentChange:  change,
			SampleCount:    len(samples),
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		ai, aj := abs(trends[i].PercentChange), abs(trends[j].PercentChange)
		if ai != aj {
			return ai > aj
		}
		if trends[i].ProductID != trends[j].ProductID {
			return trends[i].ProductID < trends[j].ProductID
		}
		return trends[i].StoreID < trends[j].StoreID
	})
	return trends
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
