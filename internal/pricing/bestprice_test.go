package pricing

import (
	"reflect"
	"testing"
)

func TestResolveBestPricesPicksCheapestCurrentStore(t *testing.T) {
	products := []Product{{ID: 10, Name: "Halfvolle melk", Brand: BrandNotApplicable, Unit: UnitLiter}}
	stores := testStores()
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 1, Price: 2.00, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 2, Price: 1.50, Quantity: 1, Timestamp: 200},
	}

	result := ResolveBestPrices(purchases, products, stores)
	entry, ok := result[10]
	if !ok || entry.NL == nil {
		t.Fatalf("expected an NL best price for product 10, got %+v", result)
	}
	if entry.NL.StoreName != "Albert Heijn" || entry.NL.UnitPrice != 1.50 || entry.NL.Unit != UnitLiter {
		t.Fatalf("unexpected best price: %+v", entry.NL)
	}
	if entry.ES != nil {
		t.Fatalf("no ES purchases, expected absence, got %+v", entry.ES)
	}
}

func TestResolveBestPricesUsesLatestPurchasePerStore(t *testing.T) {
	products := []Product{{ID: 10, Name: "Melk", Unit: UnitLiter}}
	stores := testStores()
	// Store 1 was cheapest once, but its current price is higher than store 2's.
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 1, Price: 1.00, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 1, Price: 2.50, Quantity: 1, Timestamp: 300},
		{ID: 3, ProductID: 10, StoreID: 2, Price: 1.80, Quantity: 1, Timestamp: 200},
	}

	result := ResolveBestPrices(purchases, products, stores)
	if result[10].NL.StoreName != "Albert Heijn" {
		t.Fatalf("expected the currently-cheapest store, got %+v", result[10].NL)
	}
}

func TestResolveBestPricesComparesNormalizedButEmitsObserved(t *testing.T) {
	products := []Product{{ID: 20, Name: "Drop", Unit: UnitGram}}
	stores := testStores()
	purchases := []Purchase{
		// 200g for €1.00 => €0.005/gram => €5.00/kg.
		{ID: 1, ProductID: 20, StoreID: 1, Price: 1.00, Quantity: 200, Timestamp: 100},
		// 500g for €3.00 => €0.006/gram => €6.00/kg.
		{ID: 2, ProductID: 20, StoreID: 2, Price: 3.00, Quantity: 500, Timestamp: 100},
	}

	result := ResolveBestPrices(purchases, products, stores)
	info := result[20].NL
	if info == nil || info.StoreName != "Jumbo" {
		t.Fatalf("expected Jumbo to win on normalized price, got %+v", info)
	}
	if info.UnitPrice != 0.005 || info.Unit != UnitGram {
		t.Fatalf("emitted value must be the observed per-gram price, got %+v", info)
	}
}

func TestResolveBestPricesSplitsByCountry(t *testing.T) {
	products := []Product{{ID: 10, Name: "Olijfolie", Unit: UnitLiter}}
	stores := testStores()
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 1, Price: 9.00, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 3, Price: 6.50, Quantity: 1, Timestamp: 100},
	}

	result := ResolveBestPrices(purchases, products, stores)
	entry := result[10]
	if entry.NL == nil || entry.NL.StoreName != "Jumbo" {
		t.Fatalf("unexpected NL winner: %+v", entry.NL)
	}
	if entry.ES == nil || entry.ES.StoreName != "Mercadona" {
		t.Fatalf("unexpected ES winner: %+v", entry.ES)
	}
}

func TestResolveBestPricesPriceTieGoesToLowestStoreID(t *testing.T) {
	products := []Product{{ID: 10, Name: "Melk", Unit: UnitLiter}}
	stores := testStores()
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 2, Price: 1.50, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 1, Price: 1.50, Quantity: 1, Timestamp: 100},
	}

	result := ResolveBestPrices(purchases, products, stores)
	if result[10].NL.StoreName != "Jumbo" {
		t.Fatalf("expected lowest store ID to win the tie, got %+v", result[10].NL)
	}
}

func TestResolveBestPricesDeterministicAndMinimal(t *testing.T) {
	products := []Product{
		{ID: 10, Name: "Melk", Unit: UnitLiter},
		{ID: 20, Name: "Drop", Unit: UnitGram},
	}
	stores := testStores()
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 1, Price: 2.00, Quantity: 1, Timestamp: 100},
		{ID: 2, ProductID: 10, StoreID: 2, Price: 1.50, Quantity: 1, Timestamp: 200},
		{ID: 3, ProductID: 20, StoreID: 1, Price: 1.00, Quantity: 200, Timestamp: 150},
		{ID: 4, ProductID: 20, StoreID: 2, Price: 3.00, Quantity: 500, Timestamp: 150},
		{ID: 5, ProductID: 20, StoreID: 3, Price: 2.00, Quantity: 400, Timestamp: 150},
	}

	first := ResolveBestPrices(purchases, products, stores)
	second := ResolveBestPrices(purchases, products, stores)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolver must be deterministic:\n%+v\n%+v", first, second)
	}

	// The winner's normalized price must be <= every current per-store price.
	comparisons := CompareStores(purchases, products, stores)
	for productID, entry := range first {
		for _, info := range []*BestPriceInfo{entry.NL, entry.ES} {
			if info == nil {
				continue
			}
			winner, _ := Normalize(info.UnitPrice, info.Unit)
			for _, se := range comparisons[productID].Entries {
				if se.UnitPrice < winner {
					t.Fatalf("product %d: store %d beats the reported best price (%v < %v)",
						productID, se.StoreID, se.UnitPrice, winner)
				}
			}
		}
	}
}

func TestResolveBestPricesSkipsUnjoinableAndZeroQuantity(t *testing.T) {
	products := []Product{{ID: 10, Name: "Melk", Unit: UnitLiter}}
	stores := testStores()
	purchases := []Purchase{
		{ID: 1, ProductID: 10, StoreID: 99, Price: 1.00, Quantity: 1, Timestamp: 100}, // deleted store
		{ID: 2, ProductID: 77, StoreID: 1, Price: 1.00, Quantity: 1, Timestamp: 100},  // deleted product
		{ID: 3, ProductID: 10, StoreID: 1, Price: 1.00, Quantity: 0, Timestamp: 100},  // undefined unit price
	}

	result := ResolveBestPrices(purchases, products, stores)
	if len(result) != 0 {
		t.Fatalf("expected no resolvable prices, got %+v", result)
	}
}
