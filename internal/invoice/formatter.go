package invoice

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

// Money renders an amount of cents as a fixed-point currency string.
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// LineView is one invoice line with display-ready values.
type LineView struct {
	ProductName string
	Quantity    int
	UnitPrice   string
	Discount    string
	Amount      string
}

// View is a fully resolved invoice ready for text or HTML rendering.
type View struct {
	InvoiceNumber string
	ClientName    string
	ArtisanName   string
	SaleDate      string
	PaymentMode   string
	Lines         []LineView
	Total         string
	Currency      string
}

// NewView projects a finalized sale into a renderable invoice. productNames
// maps product ids to display names; unknown ids fall back to the raw id.
func NewView(sale *domain.Sale, artisanName string, productNames map[string]string) View {
	lines := make([]LineView, 0, len(sale.Items))
	for _, item := range sale.Items {
		name := productNames[item.ProductID]
		if name == "" {
			name = item.ProductID
		}
		lines = append(lines, LineView{
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   Money(item.UnitPriceCents),
			Discount:    Money(item.DiscountCents),
			Amount:      Money(item.LineAmountCents),
		})
	}
	return View{
		InvoiceNumber: sale.InvoiceNumber,
		ClientName:    sale.ClientName,
		ArtisanName:   artisanName,
		SaleDate:      sale.SaleDate.Format("2006-01-02"),
		PaymentMode:   sale.PaymentMode,
		Lines:         lines,
		Total:         Money(sale.TotalAmountCents),
		Currency:      "FCFA",
	}
}

// Text renders a printable plain-text receipt.
func Text(view View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FACTURE %s\n", view.InvoiceNumber)
	fmt.Fprintf(&b, "Date: %s\n", view.SaleDate)
	fmt.Fprintf(&b, "Client: %s\n", view.ClientName)
	if view.ArtisanName != "" {
		fmt.Fprintf(&b, "Artisan: %s\n", view.ArtisanName)
	}
	fmt.Fprintf(&b, "Paiement: %s\n", view.PaymentMode)
	b.WriteString(strings.Repeat("-", 52) + "\n")
	for _, line := range view.Lines {
		fmt.Fprintf(&b, "%-24s %3d x %10s = %10s\n", truncate(line.ProductName, 24), line.Quantity, line.UnitPrice, line.Amount)
		if line.Discount != "0.00" {
			fmt.Fprintf(&b, "%-24s remise %s\n", "", line.Discount)
		}
	}
	b.WriteString(strings.Repeat("-", 52) + "\n")
	fmt.Fprintf(&b, "TOTAL: %s %s\n", view.Total, view.Currency)
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

var htmlTmpl = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Facture {{.InvoiceNumber}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
tfoot td { font-weight: bold; }
</style>
</head>
<body>
<h1>Facture {{.InvoiceNumber}}</h1>
<p>Date : {{.SaleDate}}<br>
Client : {{.ClientName}}{{if .ArtisanName}}<br>
Artisan : {{.ArtisanName}}{{end}}<br>
Paiement : {{.PaymentMode}}</p>
<table>
<thead><tr><th>Produit</th><th>Qté</th><th>PU</th><th>Remise</th><th>Montant</th></tr></thead>
<tbody>
{{range .Lines}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.Discount}}</td><td>{{.Amount}}</td></tr>
{{end}}</tbody>
<tfoot><tr><td colspan="4">Total</td><td>{{.Total}} {{.Currency}}</td></tr></tfoot>
</table>
</body>
</html>
`))

// HTML renders the invoice as a standalone HTML document.
func HTML(w io.Writer, view View) error {
	return htmlTmpl.Execute(w, view)
}

// SalesCSV writes one row per sale line item, suitable for spreadsheet
// import. Amounts are fixed-point currency strings.
func SalesCSV(w io.Writer, sales []domain.Sale) error {
	cw := csv.NewWriter(w)
	header := []string{"invoice_number", "sale_date", "client", "artisan_id", "payment_mode", "product_id", "quantity", "unit_price", "discount", "line_amount", "sale_total"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range sales {
		sale := &sales[i]
		for _, line := range sale.Items {
			record := []string{
				sale.InvoiceNumber,
				sale.SaleDate.Format(time.RFC3339),
				sale.ClientName,
				sale.ArtisanID,
				sale.PaymentMode,
				line.ProductID,
				strconv.Itoa(line.Quantity),
				Money(line.UnitPriceCents),
				Money(line.DiscountCents),
				Money(line.LineAmountCents),
				Money(sale.TotalAmountCents),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
