package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/xid"
)

// Store is the PostgreSQL Repository, used when DATABASE_URL is set.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS artisans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			specialty TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category_id TEXT NOT NULL REFERENCES categories(id),
			artisan_id TEXT NOT NULL REFERENCES artisans(id),
			price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
			stock INTEGER NOT NULL CHECK (stock >= 0),
			description TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			client_name TEXT NOT NULL,
			artisan_id TEXT NOT NULL REFERENCES artisans(id),
			total_amount_cents BIGINT NOT NULL,
			sale_date TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			payment_mode TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price_cents BIGINT NOT NULL,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			line_amount_cents BIGINT NOT NULL,
			PRIMARY KEY (sale_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_counters (
			year INTEGER PRIMARY KEY,
			seq INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			artisan_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_artisan ON sales(artisan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// --- products ---

const productColumns = `id, name, category_id, artisan_id, price_cents, stock, description, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.ArtisanID, &p.PriceCents, &p.Stock, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta)
	product, err := scanProduct(row)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	// Distinguish a missing product from an insufficient one.
	current, getErr := s.GetProductByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &store.InsufficientStockError{Shortfalls: []store.StockShortfall{{
		ProductID: id,
		Requested: -delta,
		Available: current.Stock,
		Shortfall: -delta - current.Stock,
	}}}
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.ArtisanID != "" {
		args = append(args, filter.ArtisanID)
		query += fmt.Sprintf(" AND artisan_id = $%d", len(args))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += ` ORDER BY category_id, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt, product.Active = now, now, true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		product.ID, product.Name, product.CategoryID, product.ArtisanID, product.PriceCents,
		product.Stock, product.Description, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET name = $2, category_id = $3, price_cents = $4,
			description = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.CategoryID, product.PriceCents, product.Description, product.Active)
	return scanProduct(row)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var refs int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sale_items WHERE product_id = $1`, id).Scan(&refs); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: product %s referenced by %d sale line(s)", store.ErrConflict, id, refs)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- categories ---

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at) VALUES ($1,$2,$3,$4)`,
		category.ID, category.Name, category.Description, category.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &category, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET name = $2, description = $3 WHERE id = $1`,
		category.ID, category.Name, category.Description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCategoryByID(ctx, category.ID)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	var refs int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE category_id = $1`, id).Scan(&refs); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: category %s referenced by %d product(s)", store.ErrConflict, id, refs)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- artisans ---

const artisanColumns = `id, name, email, phone, specialty, region, active, joined_at`

func scanArtisan(row interface{ Scan(...any) error }) (*domain.Artisan, error) {
	var a domain.Artisan
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Specialty, &a.Region, &a.Active, &a.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &a, nil
}

func (s *Store) ListArtisans(ctx context.Context) ([]domain.Artisan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+artisanColumns+` FROM artisans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var artisans []domain.Artisan
	for rows.Next() {
		a, err := scanArtisan(rows)
		if err != nil {
			return nil, err
		}
		artisans = append(artisans, *a)
	}
	return artisans, rows.Err()
}

func (s *Store) CreateArtisan(ctx context.Context, artisan domain.Artisan) (*domain.Artisan, error) {
	if artisan.ID == "" {
		artisan.ID = xid.New("art")
	}
	artisan.JoinedAt, artisan.Active = time.Now().UTC(), true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artisans (`+artisanColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		artisan.ID, artisan.Name, artisan.Email, artisan.Phone, artisan.Specialty, artisan.Region, artisan.Active, artisan.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &artisan, nil
}

func (s *Store) GetArtisanByID(ctx context.Context, id string) (*domain.Artisan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artisanColumns+` FROM artisans WHERE id = $1`, id)
	return scanArtisan(row)
}

func (s *Store) UpdateArtisan(ctx context.Context, artisan domain.Artisan) (*domain.Artisan, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE artisans SET name = $2, email = $3, phone = $4, specialty = $5, region = $6, active = $7
		WHERE id = $1
		RETURNING `+artisanColumns,
		artisan.ID, artisan.Name, artisan.Email, artisan.Phone, artisan.Specialty, artisan.Region, artisan.Active)
	return scanArtisan(row)
}

func (s *Store) DeleteArtisan(ctx context.Context, id string) error {
	var productRefs, saleRefs int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE artisan_id = $1`, id).Scan(&productRefs); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales WHERE artisan_id = $1`, id).Scan(&saleRefs); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if productRefs > 0 || saleRefs > 0 {
		return fmt.Errorf("%w: artisan %s referenced by %d product(s) and %d sale(s)", store.ErrConflict, id, productRefs, saleRefs)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM artisans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- sales ---

func (s *Store) NextInvoiceNumber(ctx context.Context) (string, error) {
	year := time.Now().UTC().Year()
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (year, seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq`, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return fmt.Sprintf("FAC-%d-%04d", year, seq), nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}
	sale.CreatedAt, sale.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, client_name, artisan_id, total_amount_cents, sale_date, status, payment_mode, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sale.ID, sale.InvoiceNumber, sale.ClientName, sale.ArtisanID, sale.TotalAmountCents,
		sale.SaleDate, sale.Status, sale.PaymentMode, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if err := insertItems(ctx, tx, sale.ID, sale.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return &sale, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, saleID string, items []domain.SaleLineItem) error {
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, product_id, quantity, unit_price_cents, discount_cents, line_amount_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			saleID, i, item.ProductID, item.Quantity, item.UnitPriceCents, item.DiscountCents, item.LineAmountCents)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
	}
	return nil
}

func (s *Store) UpdateSale(ctx context.Context, id string, sale domain.Sale) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sales SET client_name = $2, total_amount_cents = $3, sale_date = $4, status = $5, payment_mode = $6, updated_at = now()
		WHERE id = $1`,
		id, sale.ClientName, sale.TotalAmountCents, sale.SaleDate, sale.Status, sale.PaymentMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if err := insertItems(ctx, tx, id, sale.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return s.GetSaleByID(ctx, id)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const saleColumns = `id, invoice_number, client_name, artisan_id, total_amount_cents, sale_date, status, payment_mode, created_at, updated_at`

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id).Scan(
		&sale.ID, &sale.InvoiceNumber, &sale.ClientName, &sale.ArtisanID, &sale.TotalAmountCents,
		&sale.SaleDate, &sale.Status, &sale.PaymentMode, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if err := s.loadItems(ctx, map[string]*domain.Sale{sale.ID: &sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) loadItems(ctx context.Context, sales map[string]*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	for id := range sales {
		ids = append(ids, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price_cents, discount_cents, line_amount_cents
		FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, position`, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleLineItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.DiscountCents, &item.LineAmountCents); err != nil {
			return fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		if sale, ok := sales[saleID]; ok {
			sale.Items = append(sale.Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	if filter.ArtisanID != "" {
		args = append(args, filter.ArtisanID)
		query += fmt.Sprintf(" AND artisan_id = $%d", len(args))
	}
	if filter.ClientName != "" {
		args = append(args, "%"+filter.ClientName+"%")
		query += fmt.Sprintf(" AND client_name ILIKE $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND sale_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND sale_date < $%d", len(args))
	}
	query += ` ORDER BY sale_date DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var sales []domain.Sale
	byID := map[string]*domain.Sale{}
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.ClientName, &sale.ArtisanID, &sale.TotalAmountCents,
			&sale.SaleDate, &sale.Status, &sale.PaymentMode, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	for i := range sales {
		byID[sales[i].ID] = &sales[i]
	}
	if err := s.loadItems(ctx, byID); err != nil {
		return nil, err
	}
	return sales, nil
}

// --- audit logs ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	query := `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id`
	args := []any{from, to}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, artisan_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (username) DO NOTHING`,
		user.Username, user.Password, user.Role, user.ArtisanID, user.Active, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password, role, artisan_id, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	defer rows.Close()

	var users []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.ArtisanID, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
