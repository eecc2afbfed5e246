package cache

import (
	"context"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

// SummaryCache stores computed dashboard summaries. Implementations must be
// safe for concurrent use. A cache miss is never an error; callers recompute.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool)
	SetSummary(ctx context.Context, key string, summary *domain.SalesSummary)
	// InvalidateAll drops every cached summary. Called after any sale mutation.
	InvalidateAll(ctx context.Context)
	Close() error
}

// Noop is the fallback when no Redis address is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) GetSummary(context.Context, string) (*domain.SalesSummary, bool) { return nil, false }
func (*Noop) SetSummary(context.Context, string, *domain.SalesSummary)        {}
func (*Noop) InvalidateAll(context.Context)                                   {}
func (*Noop) Close() error                                                    { return nil }
