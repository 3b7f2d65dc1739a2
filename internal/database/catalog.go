package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/matval/catalog-crawler/internal/models"
)

// StoreIDs maps site names to their rows in the stores table. The schema is
// shared with other ingest jobs, so the ids are fixed rather than generated.
var StoreIDs = map[string]int{
	"ica":    1,
	"mathem": 2,
	"hemkop": 3,
}

// CatalogStore persists product records into the normalized catalog schema:
// categories and products are get-or-create, store_products is an upsert
// keyed on (store_id, product_id), and price changes append to price_history.
type CatalogStore struct {
	db *DB

	mu            sync.Mutex
	categoryCache map[string]int64
	productCache  map[string]int64
	unitCache     map[string]int64
	lookupCache   map[string]int64
	currencySeen  map[string]struct{}
}

func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{
		db:            db,
		categoryCache: make(map[string]int64),
		productCache:  make(map[string]int64),
		unitCache:     make(map[string]int64),
		lookupCache:   make(map[string]int64),
		currencySeen:  make(map[string]struct{}),
	}
}

// Emit satisfies the scheduler's record sink.
func (s *CatalogStore) Emit(ctx context.Context, rec *models.ProductRecord) error {
	return s.Store(ctx, rec)
}

// Store writes one record. Each record is its own transaction; a failed
// record never blocks the ones behind it.
func (s *CatalogStore) Store(ctx context.Context, rec *models.ProductRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("record %s has no name", rec.ID)
	}

	storeID, ok := StoreIDs[rec.Site]
	if !ok {
		return fmt.Errorf("unknown store %q", rec.Site)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		categoryID, err := s.categoryChain(ctx, tx, rec.Path)
		if err != nil {
			return err
		}

		productID, err := s.getOrCreateProduct(ctx, tx, rec.Name, categoryID)
		if err != nil {
			return err
		}

		if err := s.upsertStoreProduct(ctx, tx, storeID, productID, rec); err != nil {
			return err
		}

		return s.appendPriceHistory(ctx, tx, storeID, productID, rec)
	})
}

// categoryChain creates the record's category path top-down and returns the
// leaf category id, or nil for records without a path.
func (s *CatalogStore) categoryChain(ctx context.Context, tx pgx.Tx, path models.CategoryPath) (*int64, error) {
	var parentID *int64
	for _, ref := range path {
		id, err := s.getOrCreateCategory(ctx, tx, ref.Name, parentID)
		if err != nil {
			return nil, err
		}
		parentID = &id
	}
	return parentID, nil
}

func (s *CatalogStore) getOrCreateCategory(ctx context.Context, tx pgx.Tx, name string, parentID *int64) (int64, error) {
	key := name
	if parentID != nil {
		key = fmt.Sprintf("%s|%d", name, *parentID)
	}
	if id, ok := s.cached(s.categoryCache, key); ok {
		return id, nil
	}

	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO categories (name, parent_category_id) VALUES ($1, $2)
			ON CONFLICT ON CONSTRAINT uq_categories_name_parent DO NOTHING
			RETURNING category_id
		)
		SELECT category_id FROM ins
		UNION ALL
		SELECT category_id FROM categories
		WHERE name = $1 AND COALESCE(parent_category_id, 0) = COALESCE($2, 0)
		LIMIT 1`,
		name, parentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get or create category %q: %w", name, err)
	}

	s.remember(s.categoryCache, key, id)
	return id, nil
}

func (s *CatalogStore) getOrCreateProduct(ctx context.Context, tx pgx.Tx, name string, categoryID *int64) (int64, error) {
	key := name
	if categoryID != nil {
		key = fmt.Sprintf("%s|%d", name, *categoryID)
	}
	if id, ok := s.cached(s.productCache, key); ok {
		return id, nil
	}

	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO products (name, category_id) VALUES ($1, $2)
			ON CONFLICT ON CONSTRAINT uq_products_name_category DO NOTHING
			RETURNING product_id
		)
		SELECT product_id FROM ins
		UNION ALL
		SELECT product_id FROM products
		WHERE name = $1 AND COALESCE(category_id, 0) = COALESCE($2, 0)
		LIMIT 1`,
		name, categoryID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get or create product %q: %w", name, err)
	}

	s.remember(s.productCache, key, id)
	return id, nil
}

func (s *CatalogStore) getOrCreateUnit(ctx context.Context, tx pgx.Tx, name, abbrev string) (*int64, error) {
	if name == "" && abbrev == "" {
		return nil, nil
	}
	if abbrev == "" {
		abbrev = name
	}
	if name == "" {
		name = abbrev
	}

	if id, ok := s.cached(s.unitCache, abbrev); ok {
		return &id, nil
	}

	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO units (name, abbreviation) VALUES ($1, $2)
			ON CONFLICT (abbreviation) DO NOTHING
			RETURNING unit_id
		)
		SELECT unit_id FROM ins
		UNION ALL
		SELECT unit_id FROM units WHERE abbreviation = $2
		LIMIT 1`,
		name, abbrev).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create unit %q: %w", abbrev, err)
	}

	s.remember(s.unitCache, abbrev, id)
	return &id, nil
}

func (s *CatalogStore) getOrCreateQuantityType(ctx context.Context, tx pgx.Tx, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}

	if id, ok := s.cached(s.lookupCache, name); ok {
		return &id, nil
	}

	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO quantity_types (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING quantity_type_id
		)
		SELECT quantity_type_id FROM ins
		UNION ALL
		SELECT quantity_type_id FROM quantity_types WHERE name = $1
		LIMIT 1`,
		name).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create quantity type %q: %w", name, err)
	}

	s.remember(s.lookupCache, name, id)
	return &id, nil
}

func (s *CatalogStore) ensureCurrency(ctx context.Context, tx pgx.Tx, code string) (*string, error) {
	if code == "" {
		return nil, nil
	}

	s.mu.Lock()
	_, seen := s.currencySeen[code]
	s.mu.Unlock()
	if seen {
		return &code, nil
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO currencies (currency_code, name) VALUES ($1, $1) ON CONFLICT (currency_code) DO NOTHING`,
		code)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure currency %q: %w", code, err)
	}

	s.mu.Lock()
	s.currencySeen[code] = struct{}{}
	s.mu.Unlock()
	return &code, nil
}

func (s *CatalogStore) upsertStoreProduct(ctx context.Context, tx pgx.Tx, storeID int, productID int64, rec *models.ProductRecord) error {
	currency, err := s.ensureCurrency(ctx, tx, rec.Currency)
	if err != nil {
		return err
	}

	unitID, err := s.getOrCreateUnit(ctx, tx, rec.UnitName, rec.UnitAbbrev)
	if err != nil {
		return err
	}

	quantityTypeID, err := s.getOrCreateQuantityType(ctx, tx, rec.QuantityType)
	if err != nil {
		return err
	}

	var nutrition []byte
	if len(rec.Nutrition) > 0 {
		nutrition = rec.Nutrition
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO store_products (
			store_id, product_id, external_id, url, currency_code, price,
			unit_price, unit_id, quantity_type_id, available, nutrition_raw,
			last_seen_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (store_id, product_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			url = EXCLUDED.url,
			currency_code = EXCLUDED.currency_code,
			price = EXCLUDED.price,
			unit_price = EXCLUDED.unit_price,
			unit_id = EXCLUDED.unit_id,
			quantity_type_id = EXCLUDED.quantity_type_id,
			available = EXCLUDED.available,
			nutrition_raw = EXCLUDED.nutrition_raw,
			last_seen_at = NOW()`,
		storeID, productID, rec.ID, rec.URL, currency, rec.Price,
		rec.UnitPrice, unitID, quantityTypeID, rec.Available, nutrition)
	if err != nil {
		return fmt.Errorf("failed to upsert store product %s: %w", rec.ID, err)
	}

	return nil
}

// appendPriceHistory records a new price point when the observed price
// differs from the latest recorded one. Records without a price are skipped.
func (s *CatalogStore) appendPriceHistory(ctx context.Context, tx pgx.Tx, storeID int, productID int64, rec *models.ProductRecord) error {
	if rec.Price == nil {
		return nil
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO price_history (store_id, product_id, price, recorded_at)
		SELECT $1, $2, $3, NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM price_history
			WHERE store_id = $1 AND product_id = $2 AND price = $3
			AND recorded_at = (
				SELECT MAX(recorded_at) FROM price_history
				WHERE store_id = $1 AND product_id = $2
			)
		)`,
		storeID, productID, *rec.Price)
	if err != nil {
		return fmt.Errorf("failed to append price history for %s: %w", rec.ID, err)
	}

	return nil
}

func (s *CatalogStore) cached(cache map[string]int64, key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := cache[key]
	return id, ok
}

func (s *CatalogStore) remember(cache map[string]int64, key string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache[key] = id
}
