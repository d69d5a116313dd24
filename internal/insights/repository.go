package insights

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/basketwatch/basketwatch/internal/pricing"
)

// Repository loads the raw records the derived views are computed from.
type Repository interface {
	ListStores(ctx context.Context) ([]pricing.Store, error)
	ListProducts(ctx context.Context) ([]pricing.Product, error)
	ListPurchases(ctx context.Context) ([]pricing.Purchase, error)
}

// Snapshot is a consistent-enough read of the whole dataset. The community
// dataset is small, so the engines recompute from scratch on every cache miss.
type Snapshot struct {
	Stores    []pricing.Store
	Products  []pricing.Product
	Purchases []pricing.Purchase
}

// LoadSnapshot fetches the three record sets concurrently.
func LoadSnapshot(ctx context.Context, repo Repository) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stores, err := repo.ListStores(ctx)
		if err != nil {
			return err
		}
		snap.Stores = stores
		return nil
	})
	g.Go(func() error {
		products, err := repo.ListProducts(ctx)
		if err != nil {
			return err
		}
		snap.Products = products
		return nil
	})
	g.Go(func() error {
		purchases, err := repo.ListPurchases(ctx)
		if err != nil {
			return err
		}
		snap.Purchases = purchases
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListStores(ctx context.Context) ([]pricing.Store, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, locality, country FROM stores`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []pricing.Store
	for rows.Next() {
		var s pricing.Store
		if err := rows.Scan(&s.ID, &s.Name, &s.Locality, &s.Country); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (r *repository) ListProducts(ctx context.Context) ([]pricing.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, brand, unit FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []pricing.Product
	for rows.Next() {
		var p pricing.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Unit); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) ListPurchases(ctx context.Context) ([]pricing.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, store_id, description, price, quantity, ts FROM purchases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []pricing.Purchase
	for rows.Next() {
		var p pricing.Purchase
		if err := rows.Scan(&p.ID, &p.ProductID, &p.StoreID, &p.Description,
			&p.Price, &p.Quantity, &p.Timestamp); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
