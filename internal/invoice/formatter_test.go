package invoice

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

func sampleSale() *domain.Sale {
	return &domain.Sale{
		ID:            "sale-1",
		InvoiceNumber: "FAC-2026-0001",
		ClientName:    "Mme Ekambi",
		ArtisanID:     "art-1",
		Items: []domain.SaleLineItem{
			{ProductID: "prod-1", Quantity: 3, UnitPriceCents: 750000, LineAmountCents: 2250000},
			{ProductID: "prod-2", Quantity: 1, UnitPriceCents: 350000, DiscountCents: 50000, LineAmountCents: 300000},
		},
		TotalAmountCents: 2550000,
		SaleDate:         time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		Status:           domain.SaleStatusValidated,
		PaymentMode:      domain.PaymentModeCash,
	}
}

func TestMoneyFormatting(t *testing.T) {
	cases := map[int64]string{
		0:       "0.00",
		5:       "0.05",
		750000:  "7500.00",
		1234567: "12345.67",
	}
	for cents, want := range cases {
		if got := Money(cents); got != want {
			t.Errorf("Money(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestTextInvoice(t *testing.T) {
	view := NewView(sampleSale(), "Aïssatou Ngo Bell", map[string]string{
		"prod-1": "Panier tressé rond",
		"prod-2": "Collier de perles",
	})
	out := Text(view)

	for _, want := range []string{
		"FACTURE FAC-2026-0001",
		"Client: Mme Ekambi",
		"Artisan: Aïssatou Ngo Bell",
		"Panier tressé rond",
		"TOTAL: 25500.00 FCFA",
		"remise 500.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text invoice missing %q:\n%s", want, out)
		}
	}
}

func TestTextInvoiceFallsBackToProductID(t *testing.T) {
	view := NewView(sampleSale(), "", nil)
	out := Text(view)
	if !strings.Contains(out, "prod-1") {
		t.Errorf("expected raw product id fallback:\n%s", out)
	}
	if strings.Contains(out, "Artisan:") {
		t.Errorf("artisan line rendered without a name:\n%s", out)
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	name := "Étole brodée à motifs géométriques traditionnels"
	got := truncate(name, 24)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) != 24 {
		t.Errorf("rune count = %d, want 24", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated name %q missing ellipsis", got)
	}
	if short := truncate("Panier", 24); short != "Panier" {
		t.Errorf("short name altered: %q", short)
	}
}

func TestHTMLInvoiceEscapes(t *testing.T) {
	sale := sampleSale()
	sale.ClientName = `<script>alert("x")</script>`
	view := NewView(sale, "", map[string]string{"prod-1": "Panier"})

	var b strings.Builder
	if err := HTML(&b, view); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	out := b.String()
	if strings.Contains(out, "<script>") {
		t.Errorf("client name not escaped:\n%s", out)
	}
	if !strings.Contains(out, "FAC-2026-0001") || !strings.Contains(out, "25500.00 FCFA") {
		t.Errorf("html invoice missing expected values:\n%s", out)
	}
}

func TestSalesCSV(t *testing.T) {
	var b strings.Builder
	if err := SalesCSV(&b, []domain.Sale{*sampleSale()}); err != nil {
		t.Fatalf("SalesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header + 2 item rows:\n%s", len(lines), b.String())
	}
	if !strings.HasPrefix(lines[0], "invoice_number,") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "FAC-2026-0001") || !strings.Contains(lines[1], "7500.00") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
}
