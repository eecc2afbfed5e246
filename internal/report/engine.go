package report

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/cache"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
)

const topProductLimit = 5

// Engine computes sales summaries for the dashboard. Summaries are cached
// per (artisan, period) key; the cache is invalidated whenever a sale
// mutates.
type Engine struct {
	repo   store.Repository
	cache  cache.SummaryCache
	logger *zap.Logger
}

func NewEngine(repo store.Repository, summaryCache cache.SummaryCache, logger *zap.Logger) *Engine {
	if summaryCache == nil {
		summaryCache = cache.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repo: repo, cache: summaryCache, logger: logger}
}

// summaryKey carries the full timestamps: Summary computes [from, to) at
// time resolution, so two intra-day ranges must not share a cache entry.
func summaryKey(artisanID string, from, to time.Time) string {
	scope := artisanID
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("%s:%s:%s", scope, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// Summary computes revenue, counts, top products and payment-mode breakdown
// for [from, to). An empty artisanID covers the whole marketplace.
func (e *Engine) Summary(ctx context.Context, artisanID string, from, to time.Time) (*domain.SalesSummary, error) {
	key := summaryKey(artisanID, from, to)
	if cached, ok := e.cache.GetSummary(ctx, key); ok {
		return cached, nil
	}

	sales, err := e.repo.ListSales(ctx, domain.SaleFilter{
		ArtisanID: artisanID,
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sales for summary: %w", err)
	}

	summary := &domain.SalesSummary{
		ArtisanID:   artisanID,
		From:        from.Format(time.RFC3339),
		To:          to.Format(time.RFC3339),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	byProduct := map[string]*domain.ProductSalesEntry{}
	byPayment := map[string]*domain.PaymentModeEntry{}
	for _, sale := range sales {
		summary.SaleCount++
		summary.RevenueCents += sale.TotalAmountCents

		for _, line := range sale.Items {
			summary.ItemsSold += int64(line.Quantity)
			entry, ok := byProduct[line.ProductID]
			if !ok {
				entry = &domain.ProductSalesEntry{ProductID: line.ProductID}
				byProduct[line.ProductID] = entry
			}
			entry.Quantity += int64(line.Quantity)
			entry.RevenueCents += line.LineAmountCents
		}

		mode, ok := byPayment[sale.PaymentMode]
		if !ok {
			mode = &domain.PaymentModeEntry{PaymentMode: sale.PaymentMode}
			byPayment[sale.PaymentMode] = mode
		}
		mode.SaleCount++
		mode.RevenueCents += sale.TotalAmountCents
	}
	if summary.SaleCount > 0 {
		summary.AverageSaleCents = summary.RevenueCents / summary.SaleCount
	}

	summary.TopProducts = e.rankProducts(ctx, byProduct)
	summary.ByPaymentMode = rankPaymentModes(byPayment)

	e.cache.SetSummary(ctx, key, summary)
	return summary, nil
}

// Invalidate drops all cached summaries. Called by the service layer after
// every sale mutation.
func (e *Engine) Invalidate(ctx context.Context) {
	e.cache.InvalidateAll(ctx)
}

func (e *Engine) rankProducts(ctx context.Context, byProduct map[string]*domain.ProductSalesEntry) []domain.ProductSalesEntry {
	entries := make([]domain.ProductSalesEntry, 0, len(byProduct))
	for _, entry := range byProduct {
		if product, err := e.repo.GetProductByID(ctx, entry.ProductID); err == nil {
			entry.Name = product.Name
		}
		entries = append(entries, *entry)
	}
	slices.SortFunc(entries, func(a, b domain.ProductSalesEntry) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		return cmpString(a.ProductID, b.ProductID)
	})
	if len(entries) > topProductLimit {
		entries = entries[:topProductLimit]
	}
	return entries
}

func rankPaymentModes(byPayment map[string]*domain.PaymentModeEntry) []domain.PaymentModeEntry {
	entries := make([]domain.PaymentModeEntry, 0, len(byPayment))
	for _, entry := range byPayment {
		entries = append(entries, *entry)
	}
	slices.SortFunc(entries, func(a, b domain.PaymentModeEntry) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		return cmpString(a.PaymentMode, b.PaymentMode)
	})
	return entries
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
