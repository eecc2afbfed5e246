package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrPersistence       = errors.New("persistence failure")
)

// StockShortfall describes one product that cannot cover a requested quantity.
type StockShortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Shortfall int    `json:"shortfall"`
}

// InsufficientStockError names every offending product of a rejected sale.
// It unwraps to ErrInsufficientStock so errors.Is keeps working.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d, short %d)", s.ProductID, s.Requested, s.Available, s.Shortfall))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ProductStockStore is the single source of truth for product stock.
// AdjustStock is the only mutation entry point for the stock quantity.
type ProductStockStore interface {
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	// AdjustStock applies newStock = stock + delta. It fails with an
	// InsufficientStockError when the result would go negative, leaving the
	// stored quantity untouched.
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
}

// SaleRecordStore persists Sale aggregates and allocates invoice numbers.
// It performs no cross-entity validation; that is the transaction manager's job.
type SaleRecordStore interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, id string, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
}

type Repository interface {
	ProductStockStore
	SaleRecordStore

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListArtisans(ctx context.Context) ([]domain.Artisan, error)
	CreateArtisan(ctx context.Context, artisan domain.Artisan) (*domain.Artisan, error)
	GetArtisanByID(ctx context.Context, id string) (*domain.Artisan, error)
	UpdateArtisan(ctx context.Context, artisan domain.Artisan) (*domain.Artisan, error)
	DeleteArtisan(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
