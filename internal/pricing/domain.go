package pricing

import "fmt"

// Country enumerates the markets tracked by the community database.
type Country string

const (
	// CountryNL is the Netherlands.
	CountryNL Country = "NL"
	// CountryES is Spain.
	CountryES Country = "ES"
)

// Countries lists every supported country in stable order.
var Countries = []Country{CountryNL, CountryES}

// ParseCountry converts a raw value into a Country.
func ParseCountry(raw string) (Country, error) {
	switch Country(raw) {
	case CountryNL, CountryES:
		return Country(raw), nil
	}
	return "", fmt.Errorf("pricing: unknown country %q", raw)
}

// Unit enumerates the standard measurement units a product can be recorded in.
type Unit string

const (
	UnitPiece      Unit = "PIECE"
	UnitMeter      Unit = "METER"
	UnitKilogram   Unit = "KILOGRAM"
	UnitGram       Unit = "GRAM"
	UnitLiter      Unit = "LITER"
	UnitMilliliter Unit = "MILLILITER"
	UnitRoll       Unit = "ROLL"
	UnitTablet     Unit = "TABLET"
)

// Units lists every supported unit in stable order.
var Units = []Unit{
	UnitPiece, UnitMeter, UnitKilogram, UnitGram,
	UnitLiter, UnitMilliliter, UnitRoll, UnitTablet,
}

// ParseUnit converts a raw value into a Unit.
func ParseUnit(raw string) (Unit, error) {
	for _, u := range Units {
		if Unit(raw) == u {
			return u, nil
		}
	}
	return "", fmt.Errorf("pricing: unknown unit %q", raw)
}

// BrandNotApplicable is the sentinel brand for unbranded products.
const BrandNotApplicable = "n.v.t."

// Store is a shop the community registers purchases against.
type Store struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Locality string  `json:"locality"`
	Country  Country `json:"country"`
}

// Product is a catalog entry with a fixed standard unit.
type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Unit  Unit   `json:"unit"`
}

// Purchase is a single community-logged price observation. Timestamp is a
// nanosecond value assigned at creation and only ever grows.
type Purchase struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	StoreID     int64   `json:"store_id"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Timestamp   int64   `json:"timestamp"`
}

// UnitPrice returns price per recorded unit. The second return is false when
// the quantity is not positive and no unit price is defined.
func (p Purchase) UnitPrice() (float64, bool) {
	if p.Quantity <= 0 {
		return 0, false
	}
	return p.Price / p.Quantity, true
}

// BestPriceInfo names the store holding the best current unit price for a
// product within one country. UnitPrice is the observed per-unit price in the
// product's own unit, not the normalized comparison value.
type BestPriceInfo struct {
	ProductID int64   `json:"product_id"`
	StoreName string  `json:"store_name"`
	UnitPrice float64 `json:"unit_price"`
	Unit      Unit    `json:"unit"`
}

// BestPriceByCountry holds at most one best price per country. A nil entry
// means the product has no purchases in that country.
type BestPriceByCountry struct {
	NL *BestPriceInfo `json:"nl,omitempty"`
	ES *BestPriceInfo `json:"es,omitempty"`
}
