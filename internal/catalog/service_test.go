package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

type stubRepo struct {
	stores    map[int64]pricing.Store
	products  map[int64]pricing.Product
	purchases map[int64]PurchaseRecord
	nextID    int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		stores:    map[int64]pricing.Store{},
		products:  map[int64]pricing.Product{},
		purchases: map[int64]PurchaseRecord{},
		nextID:    1,
	}
}

func (s *stubRepo) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *stubRepo) ListStores(context.Context) ([]pricing.Store, error) {
	var out []pricing.Store
	for _, st := range s.stores {
		out = append(out, st)
	}
	return out, nil
}

func (s *stubRepo) GetStore(_ context.Context, id int64) (pricing.Store, error) {
	st, ok := s.stores[id]
	if !ok {
		return pricing.Store{}, httpx.ErrNotFound
	}
	return st, nil
}

func (s *stubRepo) CreateStore(_ context.Context, input StoreInput) (pricing.Store, error) {
	for _, st := range s.stores {
		if st.Name == input.Name && st.Locality == input.Locality {
			return pricing.Store{}, httpx.ErrDuplicate
		}
	}
	st := pricing.Store{ID: s.id(), Name: input.Name, Locality: input.Locality, Country: input.Country}
	s.stores[st.ID] = st
	return st, nil
}

func (s *stubRepo) UpdateStore(_ context.Context, id int64, input StoreInput) error {
	st, ok := s.stores[id]
	if !ok {
		return httpx.ErrNotFound
	}
	st.Name, st.Locality, st.Country = input.Name, input.Locality, input.Country
	s.stores[id] = st
	return nil
}

func (s *stubRepo) DeleteStore(_ context.Context, id int64, requireEmpty bool) error {
	if _, ok := s.stores[id]; !ok {
		return httpx.ErrNotFound
	}
	if requireEmpty {
		for _, p := range s.purchases {
			if p.StoreID == id {
				return httpx.ErrForbidden
			}
		}
	}
	delete(s.stores, id)
	return nil
}

func (s *stubRepo) ListProducts(context.Context) ([]pricing.Product, error) {
	var out []pricing.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetProduct(_ context.Context, id int64) (pricing.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return pricing.Product{}, httpx.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) CreateProduct(_ context.Context, input ProductInput) (pricing.Product, error) {
	p := pricing.Product{ID: s.id(), Name: input.Name, Brand: input.Brand, Unit: input.Unit}
	s.products[p.ID] = p
	return p, nil
}

func (s *stubRepo) UpdateProduct(_ context.Context, id int64, input ProductInput) error {
	p, ok := s.products[id]
	if !ok {
		return httpx.ErrNotFound
	}
	p.Name, p.Brand, p.Unit = input.Name, input.Brand, input.Unit
	s.products[id] = p
	return nil
}

func (s *stubRepo) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := s.products[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *stubRepo) ListPurchases(context.Context) ([]PurchaseRecord, error) {
	var out []PurchaseRecord
	for _, p := range s.purchases {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) ListPurchasesByProduct(_ context.Context, productID int64) ([]pricing.Purchase, error) {
	var out []pricing.Purchase
	for _, p := range s.purchases {
		if p.ProductID == productID {
			out = append(out, p.Purchase)
		}
	}
	return out, nil
}

func (s *stubRepo) GetPurchase(_ context.Context, id int64) (PurchaseRecord, error) {
	p, ok := s.purchases[id]
	if !ok {
		return PurchaseRecord{}, httpx.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) LastPurchase(_ context.Context, productID, storeID int64) (PurchaseRecord, error) {
	var best PurchaseRecord
	found := false
	for _, p := range s.purchases {
		if p.ProductID != productID || p.StoreID != storeID {
			continue
		}
		if !found || p.Timestamp > best.Timestamp {
			best = p
			found = true
		}
	}
	if !found {
		return PurchaseRecord{}, httpx.ErrNotFound
	}
	return best, nil
}

func (s *stubRepo) CreatePurchase(_ context.Context, record PurchaseRecord) (PurchaseRecord, error) {
	record.ID = s.id()
	s.purchases[record.ID] = record
	return record, nil
}

func (s *stubRepo) DeletePurchase(_ context.Context, id int64) error {
	if _, ok := s.purchases[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(s.purchases, id)
	return nil
}

func (s *stubRepo) CountPurchasesByStore(_ context.Context, storeID int64) (int, error) {
	n := 0
	for _, p := range s.purchases {
		if p.StoreID == storeID {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) CountPurchasesByProduct(_ context.Context, productID int64) (int, error) {
	n := 0
	for _, p := range s.purchases {
		if p.ProductID == productID {
			n++
		}
	}
	return n, nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func testService(t *testing.T) (*Service, *stubRepo, *countingInvalidator) {
	t.Helper()
	repo := newStubRepo()
	inv := &countingInvalidator{}
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewService(repo, nil, inv, nil, string(hash))
	return svc, repo, inv
}

func seed(t *testing.T, svc *Service) (pricing.Store, pricing.Product) {
	t.Helper()
	ctx := context.Background()
	store, err := svc.CreateStore(ctx, StoreInput{Name: "Jumbo", Locality: "Utrecht", Country: pricing.CountryNL})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, ProductInput{Name: "Melk", Brand: "Campina", Unit: pricing.UnitLiter})
	require.NoError(t, err)
	return store, product
}

func addPurchases(t *testing.T, svc *Service, productID, storeID int64, prices ...float64) {
	t.Helper()
	for _, price := range prices {
		_, _, err := svc.CreatePurchase(context.Background(), PurchaseInput{
			ProductID: productID,
			StoreID:   storeID,
			Price:     price,
			Quantity:  1,
		}, true)
		require.NoError(t, err)
	}
}

func TestCreateStoreValidation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	_, err := svc.CreateStore(ctx, StoreInput{Name: "", Locality: "Utrecht", Country: pricing.CountryNL})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreateStore(ctx, StoreInput{Name: "Jumbo", Locality: "Utrecht", Country: "DE"})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreateStore(ctx, StoreInput{Name: "Jumbo", Locality: "Utrecht", Country: pricing.CountryNL})
	require.NoError(t, err)

	_, err = svc.CreateStore(ctx, StoreInput{Name: "Jumbo", Locality: "Utrecht", Country: pricing.CountryNL})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestCreateProductDefaultsBrand(t *testing.T) {
	svc, _, _ := testService(t)

	product, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Melk", Unit: pricing.UnitLiter})
	require.NoError(t, err)
	assert.Equal(t, pricing.BrandNotApplicable, product.Brand)
}

func TestStoreEditFreezesAfterPurchases(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	input := StoreInput{Name: "Jumbo XL", Locality: "Utrecht", Country: pricing.CountryNL}
	require.NoError(t, svc.UpdateStore(ctx, store.ID, input, false))

	addPurchases(t, svc, product.ID, store.ID, 1.00, 1.10, 1.20)

	err := svc.UpdateStore(ctx, store.ID, input, false)
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	assert.NoError(t, svc.UpdateStore(ctx, store.ID, input, true))
}

func TestDeleteStoreRequiresEmptyForNonAdmins(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	addPurchases(t, svc, product.ID, store.ID, 1.00)

	assert.ErrorIs(t, svc.DeleteStore(ctx, store.ID, false), httpx.ErrForbidden)
	assert.NoError(t, svc.DeleteStore(ctx, store.ID, true))
}

func TestDeleteProductWithHistoryForbidden(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	addPurchases(t, svc, product.ID, store.ID, 1.00)

	assert.ErrorIs(t, svc.DeleteProduct(ctx, product.ID, false), httpx.ErrForbidden)
	assert.NoError(t, svc.DeleteProduct(ctx, product.ID, true))
}

func TestCreatePurchaseBlockedByGuard(t *testing.T) {
	svc, repo, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	// Two samples at €2.00 establish the statistical baseline.
	addPurchases(t, svc, product.ID, store.ID, 2.00, 2.00)

	input := PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: 20.00, Quantity: 1}
	_, verdict, err := svc.CreatePurchase(ctx, input, false)
	require.ErrorIs(t, err, httpx.ErrBlocked)
	assert.Equal(t, pricing.SeverityBlock, verdict.Severity)
	assert.Len(t, repo.purchases, 2)

	// The admin override stores it anyway, verdict intact.
	record, verdict, err := svc.CreatePurchase(ctx, input, true)
	require.NoError(t, err)
	assert.Equal(t, pricing.SeverityBlock, verdict.Severity)
	assert.NotEmpty(t, record.EntryRef)
	assert.Len(t, repo.purchases, 3)
}

func TestCreatePurchaseWarnStillStores(t *testing.T) {
	svc, repo, _ := testService(t)
	store, product := seed(t, svc)

	addPurchases(t, svc, product.ID, store.ID, 2.00, 2.00)

	input := PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: 3.50, Quantity: 1}
	record, verdict, err := svc.CreatePurchase(context.Background(), input, false)
	require.NoError(t, err)
	assert.Equal(t, pricing.SeverityWarn, verdict.Severity)
	assert.Contains(t, repo.purchases, record.ID)
}

func TestCreatePurchaseRejectsBadInput(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	_, _, err := svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: 1, Quantity: 0}, false)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, _, err = svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: -1, Quantity: 1}, false)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, _, err = svc.CreatePurchase(ctx, PurchaseInput{ProductID: 999, StoreID: store.ID, Price: 1, Quantity: 1}, false)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	_, _, err = svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: 999, Price: 1, Quantity: 1}, false)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDeletePurchaseWindow(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	record, _, err := svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: 1, Quantity: 1}, false)
	require.NoError(t, err)

	// Inside the window the contributor can still undo the entry.
	require.NoError(t, svc.DeletePurchase(ctx, record.ID, false))

	record, _, err = svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Price: 1, Quantity: 1}, false)
	require.NoError(t, err)

	base := svc.clock()
	svc.clock = func() time.Time { return base.Add(PurchaseDeleteWindow + time.Second) }
	assert.ErrorIs(t, svc.DeletePurchase(ctx, record.ID, false), httpx.ErrForbidden)
	assert.NoError(t, svc.DeletePurchase(ctx, record.ID, true))
}

func TestSuggestPurchaseReturnsLatest(t *testing.T) {
	svc, _, _ := testService(t)
	store, product := seed(t, svc)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.clock = func() time.Time { return base }
	_, _, err := svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Description: "1L pak", Price: 1.00, Quantity: 1}, true)
	require.NoError(t, err)

	svc.clock = func() time.Time { return base.Add(time.Hour) }
	_, _, err = svc.CreatePurchase(ctx, PurchaseInput{ProductID: product.ID, StoreID: store.ID, Description: "1.5L pak", Price: 1.60, Quantity: 1.5}, true)
	require.NoError(t, err)

	record, err := svc.SuggestPurchase(ctx, product.ID, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.5L pak", record.Description)
	assert.Equal(t, 1.60, record.Price)

	_, err = svc.SuggestPurchase(ctx, product.ID, 999)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestMutationsBumpInvalidator(t *testing.T) {
	svc, _, inv := testService(t)
	store, product := seed(t, svc)
	require.Equal(t, 2, inv.bumps)

	addPurchases(t, svc, product.ID, store.ID, 1.00)
	assert.Equal(t, 3, inv.bumps)
}

func TestIsAdmin(t *testing.T) {
	svc, _, _ := testService(t)

	assert.True(t, svc.IsAdmin("letmein"))
	assert.False(t, svc.IsAdmin("wrong"))
	assert.False(t, svc.IsAdmin(""))

	open := NewService(newStubRepo(), nil, nil, nil, "")
	assert.False(t, open.IsAdmin("anything"))
}
