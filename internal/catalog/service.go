package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

// Invalidator is notified after every successful mutation so derived views
// can drop their cached results.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service applies the community data-integrity rules on top of the repository:
// stores stay deletable only while empty, stores and products stay editable
// only up to a small purchase count, purchases are removable inside a short
// window, and new prices pass the anomaly guard. An operator knowing the
// admin password bypasses all of it.
type Service struct {
	repo        Repository
	guard       *pricing.Guard
	invalidator Invalidator
	logger      *slog.Logger
	adminHash   []byte
	clock       func() time.Time
}

// NewService wires the catalog service. adminHash is a bcrypt hash; empty
// disables the override entirely.
func NewService(repo Repository, guard *pricing.Guard, invalidator Invalidator, logger *slog.Logger, adminHash string) *Service {
	if guard == nil {
		guard = pricing.NewGuard(pricing.DefaultGuardConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		guard:       guard,
		invalidator: invalidator,
		logger:      logger,
		adminHash:   []byte(adminHash),
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// IsAdmin reports whether the supplied password matches the admin hash.
func (s *Service) IsAdmin(password string) bool {
	if len(s.adminHash) == 0 || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("cache invalidation failed", slog.Any("error", err))
	}
}

// ListStores returns all stores.
func (s *Service) ListStores(ctx context.Context) ([]pricing.Store, error) {
	return s.repo.ListStores(ctx)
}

// CreateStore registers a new store. Exact duplicates are rejected by the
// unique index on (name, locality).
func (s *Service) CreateStore(ctx context.Context, input StoreInput) (pricing.Store, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Locality = strings.TrimSpace(input.Locality)
	if input.Name == "" || input.Locality == "" {
		return pricing.Store{}, fmt.Errorf("%w: store name and locality required", httpx.ErrValidation)
	}
	if _, err := pricing.ParseCountry(string(input.Country)); err != nil {
		return pricing.Store{}, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	store, err := s.repo.CreateStore(ctx, input)
	if err != nil {
		return pricing.Store{}, err
	}
	s.bump(ctx)
	return store, nil
}

// UpdateStore edits a store. Stores with more than MaxPurchasesForEdit
// purchases are frozen for non-admins.
func (s *Service) UpdateStore(ctx context.Context, id int64, input StoreInput, admin bool) error {
	if !admin {
		count, err := s.repo.CountPurchasesByStore(ctx, id)
		if err != nil {
			return err
		}
		if count > MaxPurchasesForEdit {
			return fmt.Errorf("%w: store has more than %d purchases", httpx.ErrForbidden, MaxPurchasesForEdit)
		}
	}
	if err := s.repo.UpdateStore(ctx, id, input); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// DeleteStore removes a store; non-admins may only remove stores without
// purchases.
func (s *Service) DeleteStore(ctx context.Context, id int64, admin bool) error {
	if err := s.repo.DeleteStore(ctx, id, !admin); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]pricing.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateProduct registers a new product. An empty brand becomes the "n.v.t."
// sentinel; exact (name, brand, unit) duplicates are rejected.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (pricing.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Brand = strings.TrimSpace(input.Brand)
	if input.Name == "" {
		return pricing.Product{}, fmt.Errorf("%w: product name required", httpx.ErrValidation)
	}
	if input.Brand == "" {
		input.Brand = pricing.BrandNotApplicable
	}
	if _, err := pricing.ParseUnit(string(input.Unit)); err != nil {
		return pricing.Product{}, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	product, err := s.repo.CreateProduct(ctx, input)
	if err != nil {
		return pricing.Product{}, err
	}
	s.bump(ctx)
	return product, nil
}

// UpdateProduct edits a product under the same freeze rule as stores.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput, admin bool) error {
	if !admin {
		count, err := s.repo.CountPurchasesByProduct(ctx, id)
		if err != nil {
			return err
		}
		if count > MaxPurchasesForEdit {
			return fmt.Errorf("%w: product has more than %d purchases", httpx.ErrForbidden, MaxPurchasesForEdit)
		}
	}
	if input.Brand = strings.TrimSpace(input.Brand); input.Brand == "" {
		input.Brand = pricing.BrandNotApplicable
	}
	if err := s.repo.UpdateProduct(ctx, id, input); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// DeleteProduct removes a product; non-admins may only remove products
// without purchases.
func (s *Service) DeleteProduct(ctx context.Context, id int64, admin bool) error {
	if !admin {
		count, err := s.repo.CountPurchasesByProduct(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: product still has %d purchases", httpx.ErrForbidden, count)
		}
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ListPurchases returns the public purchase log, newest first.
func (s *Service) ListPurchases(ctx context.Context) ([]PurchaseRecord, error) {
	return s.repo.ListPurchases(ctx)
}

// CheckPurchase runs the anomaly guard against a draft without storing
// anything. This backs the form-validation hook.
func (s *Service) CheckPurchase(ctx context.Context, input PurchaseInput) (pricing.Verdict, error) {
	if input.Quantity <= 0 || input.Price < 0 {
		return pricing.Verdict{}, fmt.Errorf("%w: price must be non-negative and quantity positive", httpx.ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, input.ProductID)
	if err != nil {
		return pricing.Verdict{}, err
	}
	history, err := s.repo.ListPurchasesByProduct(ctx, input.ProductID)
	if err != nil {
		return pricing.Verdict{}, err
	}
	candidate := pricing.Candidate{ProductID: input.ProductID, Price: input.Price, Quantity: input.Quantity}
	return s.guard.Evaluate(candidate, product, history), nil
}

// CreatePurchase stores a new price observation after the guard has had its
// say. A BLOCK verdict rejects the purchase for non-admins; the verdict is
// returned alongside the record either way so the client can surface it.
func (s *Service) CreatePurchase(ctx context.Context, input PurchaseInput, admin bool) (PurchaseRecord, pricing.Verdict, error) {
	verdict, err := s.CheckPurchase(ctx, input)
	if err != nil {
		return PurchaseRecord{}, pricing.Verdict{}, err
	}
	if _, err := s.repo.GetStore(ctx, input.StoreID); err != nil {
		return PurchaseRecord{}, pricing.Verdict{}, err
	}
	if verdict.Severity == pricing.SeverityBlock && !admin {
		return PurchaseRecord{}, verdict, fmt.Errorf("%w: %s", httpx.ErrBlocked, verdict.Message)
	}

	now := s.clock()
	record := PurchaseRecord{
		Purchase: pricing.Purchase{
			ProductID:   input.ProductID,
			StoreID:     input.StoreID,
			Description: strings.TrimSpace(input.Description),
			Price:       input.Price,
			Quantity:    input.Quantity,
			Timestamp:   now.UnixNano(),
		},
		EntryRef:  uuid.NewString(),
		CreatedAt: now,
	}
	record, err = s.repo.CreatePurchase(ctx, record)
	if err != nil {
		return PurchaseRecord{}, verdict, err
	}
	if verdict.Severity == pricing.SeverityWarn {
		s.logger.Warn("suspicious price accepted",
			slog.Int64("product_id", record.ProductID),
			slog.Int64("store_id", record.StoreID),
			slog.String("entry_ref", record.EntryRef),
			slog.String("detail", verdict.Message),
		)
	}
	s.bump(ctx)
	return record, verdict, nil
}

// DeletePurchase removes an entry. Non-admins only get the short window after
// creation, which keeps the public log trustworthy.
func (s *Service) DeletePurchase(ctx context.Context, id int64, admin bool) error {
	record, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return err
	}
	if !admin && s.clock().Sub(record.CreatedAt) > PurchaseDeleteWindow {
		return fmt.Errorf("%w: entries can only be removed within %s of creation",
			httpx.ErrForbidden, PurchaseDeleteWindow)
	}
	if err := s.repo.DeletePurchase(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// SuggestPurchase returns the latest purchase for a (product, store) pair,
// used by the entry form to prefill description, price and quantity.
func (s *Service) SuggestPurchase(ctx context.Context, productID, storeID int64) (PurchaseRecord, error) {
	record, err := s.repo.LastPurchase(ctx, productID, storeID)
	if errors.Is(err, httpx.ErrNotFound) {
		return PurchaseRecord{}, err
	}
	return record, err
}
