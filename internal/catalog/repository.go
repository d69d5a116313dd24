package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basketwatch/basketwatch/internal/platform/db"
	"github.com/basketwatch/basketwatch/internal/platform/httpx"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

// Repository persists the three community record types.
type Repository interface {
	ListStores(ctx context.Context) ([]pricing.Store, error)
	GetStore(ctx context.Context, id int64) (pricing.Store, error)
	CreateStore(ctx context.Context, input StoreInput) (pricing.Store, error)
	UpdateStore(ctx context.Context, id int64, input StoreInput) error
	DeleteStore(ctx context.Context, id int64, requireEmpty bool) error

	ListProducts(ctx context.Context) ([]pricing.Product, error)
	GetProduct(ctx context.Context, id int64) (pricing.Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (pricing.Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) error
	DeleteProduct(ctx context.Context, id int64) error

	ListPurchases(ctx context.Context) ([]PurchaseRecord, error)
	ListPurchasesByProduct(ctx context.Context, productID int64) ([]pricing.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (PurchaseRecord, error)
	LastPurchase(ctx context.Context, productID, storeID int64) (PurchaseRecord, error)
	CreatePurchase(ctx context.Context, record PurchaseRecord) (PurchaseRecord, error)
	DeletePurchase(ctx context.Context, id int64) error

	CountPurchasesByStore(ctx context.Context, storeID int64) (int, error)
	CountPurchasesByProduct(ctx context.Context, productID int64) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const uniqueViolation = "23505"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return httpx.ErrNotFound
	}
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == uniqueViolation {
		return httpx.ErrDuplicate
	}
	return err
}

func (r *repository) ListStores(ctx context.Context) ([]pricing.Store, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, locality, country FROM stores ORDER BY country, name`)
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

func (r *repository) GetStore(ctx context.Context, id int64) (pricing.Store, error) {
	var s pricing.Store
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, locality, country FROM stores WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Locality, &s.Country)
	return s, mapErr(err)
}

func (r *repository) CreateStore(ctx context.Context, input StoreInput) (pricing.Store, error) {
	store := pricing.Store{Name: input.Name, Locality: input.Locality, Country: input.Country}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stores (name, locality, country) VALUES ($1, $2, $3) RETURNING id`,
		input.Name, input.Locality, input.Country).Scan(&store.ID)
	if err != nil {
		return pricing.Store{}, mapErr(err)
	}
	return store, nil
}

func (r *repository) UpdateStore(ctx context.Context, id int64, input StoreInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stores SET name = $1, locality = $2, country = $3 WHERE id = $4`,
		input.Name, input.Locality, input.Country, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// DeleteStore removes a store. With requireEmpty set the delete and the
// purchase-count check run in one transaction so a concurrent purchase cannot
// slip in between.
func (r *repository) DeleteStore(ctx context.Context, id int64, requireEmpty bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if requireEmpty {
			var count int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM purchases WHERE store_id = $1`, id).Scan(&count); err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: store still has %d purchases", httpx.ErrForbidden, count)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM stores WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
}

func (r *repository) ListProducts(ctx context.Context) ([]pricing.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, brand, unit FROM products ORDER BY name`)
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

func (r *repository) GetProduct(ctx context.Context, id int64) (pricing.Product, error) {
	var p pricing.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, brand, unit FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Brand, &p.Unit)
	return p, mapErr(err)
}

func (r *repository) CreateProduct(ctx context.Context, input ProductInput) (pricing.Product, error) {
	product := pricing.Product{Name: input.Name, Brand: input.Brand, Unit: input.Unit}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, brand, unit) VALUES ($1, $2, $3) RETURNING id`,
		input.Name, input.Brand, input.Unit).Scan(&product.ID)
	if err != nil {
		return pricing.Product{}, mapErr(err)
	}
	return product, nil
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, input ProductInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $1, brand = $2, unit = $3 WHERE id = $4`,
		input.Name, input.Brand, input.Unit, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

const purchaseColumns = `id, product_id, store_id, description, price, quantity, ts, entry_ref, created_at`

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var rec PurchaseRecord
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.StoreID, &rec.Description,
		&rec.Price, &rec.Quantity, &rec.Timestamp, &rec.EntryRef, &rec.CreatedAt)
	return rec, err
}

func (r *repository) ListPurchases(ctx context.Context) ([]PurchaseRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases ORDER BY ts DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PurchaseRecord
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repository) ListPurchasesByProduct(ctx context.Context, productID int64) ([]pricing.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, store_id, description, price, quantity, ts
		   FROM purchases WHERE product_id = $1 ORDER BY ts`, productID)
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

func (r *repository) GetPurchase(ctx context.Context, id int64) (PurchaseRecord, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	return rec, mapErr(err)
}

func (r *repository) LastPurchase(ctx context.Context, productID, storeID int64) (PurchaseRecord, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		  WHERE product_id = $1 AND store_id = $2
		  ORDER BY ts DESC, id DESC LIMIT 1`, productID, storeID))
	return rec, mapErr(err)
}

func (r *repository) CreatePurchase(ctx context.Context, record PurchaseRecord) (PurchaseRecord, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO purchases (product_id, store_id, description, price, quantity, ts, entry_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		record.ProductID, record.StoreID, record.Description, record.Price,
		record.Quantity, record.Timestamp, record.EntryRef, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return PurchaseRecord{}, mapErr(err)
	}
	return record, nil
}

func (r *repository) DeletePurchase(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) CountPurchasesByStore(ctx context.Context, storeID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchases WHERE store_id = $1`, storeID).Scan(&count)
	return count, err
}

func (r *repository) CountPurchasesByProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchases WHERE product_id = $1`, productID).Scan(&count)
	return count, err
}
