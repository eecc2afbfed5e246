package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
)

func newCatalogStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	st := New()
	if _, err := st.CreateCategory(ctx, domain.Category{ID: "cat-1", Name: "Vannerie"}); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	if _, err := st.CreateArtisan(ctx, domain.Artisan{ID: "art-1", Name: "A", Email: "a@gestiart.cm"}); err != nil {
		t.Fatalf("seed artisan: %v", err)
	}
	if _, err := st.CreateProduct(ctx, domain.Product{
		ID: "prod-1", Name: "Panier", CategoryID: "cat-1", ArtisanID: "art-1", PriceCents: 1000, Stock: 5,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return st
}

func TestAdjustStock(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	p, err := st.AdjustStock(ctx, "prod-1", -3)
	if err != nil {
		t.Fatalf("AdjustStock(-3): %v", err)
	}
	if p.Stock != 2 {
		t.Errorf("stock = %d, want 2", p.Stock)
	}

	_, err = st.AdjustStock(ctx, "prod-1", -3)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	var shortErr *store.InsufficientStockError
	if !errors.As(err, &shortErr) || shortErr.Shortfalls[0].Available != 2 {
		t.Errorf("shortfall detail = %+v", err)
	}
	// Failed adjustment writes nothing.
	if p, _ := st.GetProductByID(ctx, "prod-1"); p.Stock != 2 {
		t.Errorf("stock after failed adjust = %d, want 2", p.Stock)
	}

	if _, err := st.AdjustStock(ctx, "prod-ghost", -1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown product: err = %v, want ErrNotFound", err)
	}
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	st := New()
	ctx := context.Background()

	year := time.Now().UTC().Year()
	for i := 1; i <= 3; i++ {
		got, err := st.NextInvoiceNumber(ctx)
		if err != nil {
			t.Fatalf("NextInvoiceNumber: %v", err)
		}
		want := fmt.Sprintf("FAC-%d-%04d", year, i)
		if got != want {
			t.Errorf("invoice #%d = %q, want %q", i, got, want)
		}
	}
}

func TestCatalogUpdateNeverTouchesStock(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	p, _ := st.GetProductByID(ctx, "prod-1")
	p.Name = "Panier rond"
	p.Stock = 999
	updated, err := st.UpdateProduct(ctx, *p)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Stock != 5 {
		t.Errorf("stock = %d, want 5 (stock is AdjustStock-only)", updated.Stock)
	}
	if updated.Name != "Panier rond" {
		t.Errorf("name = %q", updated.Name)
	}
}

func TestDeleteGuards(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	if err := st.DeleteCategory(ctx, "cat-1"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("delete referenced category: err = %v, want ErrConflict", err)
	}
	if err := st.DeleteArtisan(ctx, "art-1"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("delete referenced artisan: err = %v, want ErrConflict", err)
	}

	if _, err := st.CreateSale(ctx, domain.Sale{
		ID: "sale-1", InvoiceNumber: "FAC-2026-0001", ClientName: "C", ArtisanID: "art-1",
		Items: []domain.SaleLineItem{{ProductID: "prod-1", Quantity: 1, UnitPriceCents: 1000, LineAmountCents: 1000}},
	}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if err := st.DeleteProduct(ctx, "prod-1"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("delete sold product: err = %v, want ErrConflict", err)
	}

	if err := st.DeleteSale(ctx, "sale-1"); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	if err := st.DeleteProduct(ctx, "prod-1"); err != nil {
		t.Errorf("delete after sale removed: %v", err)
	}
}

func TestListSalesFilters(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, artisan := range []string{"art-1", "art-1", "art-2"} {
		if _, err := st.CreateSale(ctx, domain.Sale{
			ID:            fmt.Sprintf("sale-%d", i),
			InvoiceNumber: fmt.Sprintf("FAC-2026-%04d", i+1),
			ClientName:    fmt.Sprintf("Client %d", i),
			ArtisanID:     artisan,
			SaleDate:      base.AddDate(0, 0, i),
			Items:         []domain.SaleLineItem{{ProductID: "prod-1", Quantity: 1, UnitPriceCents: 1000, LineAmountCents: 1000}},
		}); err != nil {
			t.Fatalf("CreateSale #%d: %v", i, err)
		}
	}

	byArtisan, err := st.ListSales(ctx, domain.SaleFilter{ArtisanID: "art-1"})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(byArtisan) != 2 {
		t.Errorf("artisan filter = %d sales, want 2", len(byArtisan))
	}

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 2)
	byDate, err := st.ListSales(ctx, domain.SaleFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(byDate) != 1 || byDate[0].ID != "sale-1" {
		t.Errorf("date filter = %+v, want only sale-1", byDate)
	}

	byClient, err := st.ListSales(ctx, domain.SaleFilter{ClientName: "client 2"})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(byClient) != 1 || byClient[0].ID != "sale-2" {
		t.Errorf("client filter = %+v, want only sale-2", byClient)
	}

	// Newest first.
	all, err := st.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(all) != 3 || all[0].ID != "sale-2" {
		t.Errorf("sort order = %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
}

func TestSalesAreClonedOnReturn(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	created, err := st.CreateSale(ctx, domain.Sale{
		ID: "sale-1", InvoiceNumber: "FAC-2026-0001", ClientName: "C", ArtisanID: "art-1",
		Items: []domain.SaleLineItem{{ProductID: "prod-1", Quantity: 1, UnitPriceCents: 1000, LineAmountCents: 1000}},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	created.Items[0].Quantity = 99
	stored, err := st.GetSaleByID(ctx, "sale-1")
	if err != nil {
		t.Fatalf("GetSaleByID: %v", err)
	}
	if stored.Items[0].Quantity != 1 {
		t.Errorf("caller mutation leaked into store: %+v", stored.Items)
	}
}

func TestUpdateSalePreservesIdentity(t *testing.T) {
	st := newCatalogStore(t)
	ctx := context.Background()

	if _, err := st.CreateSale(ctx, domain.Sale{
		ID: "sale-1", InvoiceNumber: "FAC-2026-0001", ClientName: "C", ArtisanID: "art-1",
		Items: []domain.SaleLineItem{{ProductID: "prod-1", Quantity: 1, UnitPriceCents: 1000, LineAmountCents: 1000}},
	}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	updated, err := st.UpdateSale(ctx, "sale-1", domain.Sale{
		ID: "sale-other", InvoiceNumber: "FAC-9999-9999", ClientName: "D", ArtisanID: "art-1",
		Items: []domain.SaleLineItem{{ProductID: "prod-1", Quantity: 2, UnitPriceCents: 1000, LineAmountCents: 2000}},
	})
	if err != nil {
		t.Fatalf("UpdateSale: %v", err)
	}
	if updated.ID != "sale-1" || updated.InvoiceNumber != "FAC-2026-0001" {
		t.Errorf("identity changed: %+v", updated)
	}
	if updated.ClientName != "D" || updated.Items[0].Quantity != 2 {
		t.Errorf("update not applied: %+v", updated)
	}

	if _, err := st.UpdateSale(ctx, "sale-ghost", *updated); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown sale: err = %v, want ErrNotFound", err)
	}
}

func TestSeededStoreCredentials(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_ARTISAN_PASSWORD", "artisan-test-pass")

	st := NewSeeded()
	users, err := st.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("seed users = %d, want 2", len(users))
	}
	for _, u := range users {
		want := "admin-test-pass"
		if u.Role == domain.RoleArtisan {
			want = "artisan-test-pass"
			if u.ArtisanID == "" {
				t.Errorf("artisan account %s has no artisan id", u.Username)
			}
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(want)) != nil {
			t.Errorf("seed password for %s does not verify", u.Username)
		}
	}

	products, err := st.ListProducts(context.Background(), domain.ProductFilter{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) == 0 {
		t.Error("seeded store has no products")
	}
}
