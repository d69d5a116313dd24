package catalog

import (
	"time"

	"github.com/basketwatch/basketwatch/internal/pricing"
)

// PurchaseRecord is a stored purchase together with its bookkeeping fields.
// EntryRef is an opaque reference handed back to the submitting client;
// CreatedAt drives the short window in which a contributor may remove an
// accidental entry.
type PurchaseRecord struct {
	pricing.Purchase
	EntryRef  string    `json:"entry_ref"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreInput carries the fields a contributor supplies for a store.
type StoreInput struct {
	Name     string
	Locality string
	Country  pricing.Country
}

// ProductInput carries the fields a contributor supplies for a product. An
// empty brand is stored as the "n.v.t." sentinel.
type ProductInput struct {
	Name  string
	Brand string
	Unit  pricing.Unit
}

// PurchaseInput carries the fields a contributor supplies for a purchase.
type PurchaseInput struct {
	ProductID   int64
	StoreID     int64
	Description string
	Price       float64
	Quantity    float64
}

// MaxPurchasesForEdit is the largest purchase count under which a store or
// product may still be edited. Beyond it the record is considered load-bearing
// community data.
const MaxPurchasesForEdit = 2

// PurchaseDeleteWindow is how long a contributor has to remove an entry.
const PurchaseDeleteWindow = 5 * time.Minute
