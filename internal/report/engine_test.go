package report

import (
	"context"
	"testing"
	"time"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/cache"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/sales"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store/memory"
)

func seedSales(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	if _, err := st.CreateCategory(ctx, domain.Category{ID: "cat-1", Name: "Vannerie"}); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	for _, id := range []string{"art-1", "art-2"} {
		if _, err := st.CreateArtisan(ctx, domain.Artisan{ID: id, Name: id, Email: id + "@gestiart.cm"}); err != nil {
			t.Fatalf("seed artisan: %v", err)
		}
	}
	for _, p := range []domain.Product{
		{ID: "prod-1", Name: "Panier", CategoryID: "cat-1", ArtisanID: "art-1", PriceCents: 1000, Stock: 100},
		{ID: "prod-2", Name: "Masque", CategoryID: "cat-1", ArtisanID: "art-2", PriceCents: 4000, Stock: 100},
	} {
		if _, err := st.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	mgr := sales.NewManager(st, st, nil)
	drafts := []domain.SaleDraft{
		{ClientName: "A", ArtisanID: "art-1", PaymentMode: domain.PaymentModeCash,
			Items: []domain.SaleItemInput{{ProductID: "prod-1", Quantity: 3}}},
		{ClientName: "B", ArtisanID: "art-1", PaymentMode: domain.PaymentModeMobileMoney,
			Items: []domain.SaleItemInput{{ProductID: "prod-1", Quantity: 1}}},
		{ClientName: "C", ArtisanID: "art-2", PaymentMode: domain.PaymentModeCash,
			Items: []domain.SaleItemInput{{ProductID: "prod-2", Quantity: 2}}},
	}
	for i, d := range drafts {
		if _, err := mgr.CreateSale(ctx, d); err != nil {
			t.Fatalf("seed sale #%d: %v", i, err)
		}
	}
	return st
}

func period() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func TestSummaryWholeMarketplace(t *testing.T) {
	st := seedSales(t)
	engine := NewEngine(st, cache.NewNoop(), nil)
	from, to := period()

	summary, err := engine.Summary(context.Background(), "", from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.SaleCount != 3 {
		t.Errorf("sale count = %d, want 3", summary.SaleCount)
	}
	if summary.RevenueCents != 12000 {
		t.Errorf("revenue = %d, want 12000", summary.RevenueCents)
	}
	if summary.ItemsSold != 6 {
		t.Errorf("items sold = %d, want 6", summary.ItemsSold)
	}
	if summary.AverageSaleCents != 4000 {
		t.Errorf("average = %d, want 4000", summary.AverageSaleCents)
	}
	if len(summary.TopProducts) != 2 || summary.TopProducts[0].ProductID != "prod-2" {
		t.Errorf("top products = %+v, want prod-2 first by revenue", summary.TopProducts)
	}
	if summary.TopProducts[0].Name != "Masque" {
		t.Errorf("top product name = %q, want resolved name", summary.TopProducts[0].Name)
	}
	if len(summary.ByPaymentMode) != 2 || summary.ByPaymentMode[0].PaymentMode != domain.PaymentModeCash {
		t.Errorf("payment breakdown = %+v, want cash first", summary.ByPaymentMode)
	}
}

func TestSummaryScopedToArtisan(t *testing.T) {
	st := seedSales(t)
	engine := NewEngine(st, cache.NewNoop(), nil)
	from, to := period()

	summary, err := engine.Summary(context.Background(), "art-1", from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.SaleCount != 2 || summary.RevenueCents != 4000 {
		t.Errorf("scoped summary = %+v, want 2 sales / 4000 revenue", summary)
	}
	for _, p := range summary.TopProducts {
		if p.ProductID == "prod-2" {
			t.Errorf("other artisan's product leaked into summary: %+v", summary.TopProducts)
		}
	}
}

// mapCache is a plain map SummaryCache for asserting key behavior.
type mapCache struct {
	entries map[string]*domain.SalesSummary
}

func (m *mapCache) GetSummary(_ context.Context, key string) (*domain.SalesSummary, bool) {
	s, ok := m.entries[key]
	return s, ok
}

func (m *mapCache) SetSummary(_ context.Context, key string, summary *domain.SalesSummary) {
	m.entries[key] = summary
}

func (m *mapCache) InvalidateAll(context.Context) { m.entries = map[string]*domain.SalesSummary{} }
func (m *mapCache) Close() error                  { return nil }

func TestSummaryIntraDayRangesDoNotShareCacheEntries(t *testing.T) {
	st := seedSales(t)
	mc := &mapCache{entries: map[string]*domain.SalesSummary{}}
	engine := NewEngine(st, mc, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	full, err := engine.Summary(ctx, "", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if full.SaleCount != 3 {
		t.Fatalf("full-range count = %d, want 3", full.SaleCount)
	}

	// A different window on the same day must be computed, not served from
	// the first window's entry.
	empty, err := engine.Summary(ctx, "", now.Add(-3*time.Hour), now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if empty.SaleCount != 0 {
		t.Errorf("disjoint-range count = %d, want 0", empty.SaleCount)
	}
	if len(mc.entries) != 2 {
		t.Errorf("cache entries = %d, want 2 distinct keys", len(mc.entries))
	}
}

func TestSummaryEmptyPeriod(t *testing.T) {
	st := seedSales(t)
	engine := NewEngine(st, cache.NewNoop(), nil)
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	summary, err := engine.Summary(context.Background(), "", from, to)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.SaleCount != 0 || summary.RevenueCents != 0 || summary.AverageSaleCents != 0 {
		t.Errorf("empty period summary = %+v, want zeros", summary)
	}
}
