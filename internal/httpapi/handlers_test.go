package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/cache"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/service"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_ARTISAN_PASSWORD", "artisan-test-pass")
	st := memory.NewSeeded()
	svc := service.New(st, cache.NewNoop(), nil)
	return NewServer(svc, testSecret, time.Hour, "*", nil)
}

type session struct {
	token string
	csrf  string
}

func login(t *testing.T, handler http.Handler, username, password string) session {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/csrf-token", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d: %s", rec.Code, rec.Body.String())
	}
	var csrfResp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &csrfResp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return session{token: resp.AccessToken, csrf: csrfResp.CSRFToken}
}

func doJSON(t *testing.T, handler http.Handler, sess session, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if sess.token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.token)
	}
	if sess.csrf != "" {
		req.Header.Set("X-CSRF-Token", sess.csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	handler := newTestServer(t).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler := newTestServer(t).Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "nope"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	handler := newTestServer(t).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/sales", domain.SaleDraft{
		ClientName:  "Mme Ekambi",
		ArtisanID:   "art-aissatou",
		PaymentMode: domain.PaymentModeCash,
		Items:       []domain.SaleItemInput{{ProductID: "prod-panier-01", Quantity: 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale status = %d: %s", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.Unmarshal(rec.Body.Bytes(), &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if !strings.HasPrefix(sale.InvoiceNumber, "FAC-") {
		t.Errorf("invoice number = %q", sale.InvoiceNumber)
	}

	// Stock visible through the product endpoint.
	rec = doJSON(t, handler, admin, http.MethodGet, "/api/products/prod-panier-01", nil)
	var product domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.Stock != 21 {
		t.Errorf("stock = %d, want 21 (24 - 3)", product.Stock)
	}

	// Text invoice.
	rec = doJSON(t, handler, admin, http.MethodGet, "/api/sales/"+sale.ID+"/invoice", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), sale.InvoiceNumber) {
		t.Errorf("invoice status = %d body:\n%s", rec.Code, rec.Body.String())
	}
	// HTML invoice.
	rec = doJSON(t, handler, admin, http.MethodGet, "/api/sales/"+sale.ID+"/invoice?format=html", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("html invoice content type = %q", ct)
	}

	// Delete restores stock.
	rec = doJSON(t, handler, admin, http.MethodDelete, "/api/sales/"+sale.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, admin, http.MethodGet, "/api/products/prod-panier-01", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.Stock != 24 {
		t.Errorf("stock after delete = %d, want 24", product.Stock)
	}
	rec = doJSON(t, handler, admin, http.MethodGet, "/api/sales/"+sale.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted sale status = %d, want 404", rec.Code)
	}
}

func TestInsufficientStockReturns409WithShortfalls(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/sales", domain.SaleDraft{
		ClientName:  "Grossiste",
		ArtisanID:   "art-bertrand",
		PaymentMode: domain.PaymentModeTransfer,
		Items:       []domain.SaleItemInput{{ProductID: "prod-masque-01", Quantity: 100}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error      string `json:"error"`
		Shortfalls []struct {
			ProductID string `json:"product_id"`
			Shortfall int    `json:"shortfall"`
		} `json:"shortfalls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Shortfalls) != 1 || resp.Shortfalls[0].ProductID != "prod-masque-01" {
		t.Errorf("shortfalls = %+v, want prod-masque-01", resp.Shortfalls)
	}
}

func TestArtisanRoleGating(t *testing.T) {
	handler := newTestServer(t).Handler()
	artisan := login(t, handler, "aissatou", "artisan-test-pass")

	// Artisans can read the catalog.
	rec := doJSON(t, handler, artisan, http.MethodGet, "/api/products", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("list products status = %d, want 200", rec.Code)
	}
	// But cannot mutate it.
	rec = doJSON(t, handler, artisan, http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Name: "X", CategoryID: "cat-vannerie", ArtisanID: "art-aissatou", PriceCents: 1, Stock: 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("create product status = %d, want 403", rec.Code)
	}
	// Nor create sales or read audit logs.
	rec = doJSON(t, handler, artisan, http.MethodPost, "/api/sales", domain.SaleDraft{})
	if rec.Code != http.StatusForbidden {
		t.Errorf("create sale status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, handler, artisan, http.MethodGet, "/api/audit-logs", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("audit logs status = %d, want 403", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/sales", domain.SaleDraft{
		ClientName:  "A",
		ArtisanID:   "art-aissatou",
		PaymentMode: domain.PaymentModeCash,
		Items:       []domain.SaleItemInput{{ProductID: "prod-panier-01", Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, admin, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d: %s", rec.Code, rec.Body.String())
	}
	var summary domain.SalesSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SaleCount != 1 || summary.RevenueCents != 1500000 {
		t.Errorf("summary = %+v, want 1 sale / 1500000 revenue", summary)
	}
}

func TestSalesCSVEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/sales", domain.SaleDraft{
		ClientName:  "A",
		ArtisanID:   "art-aissatou",
		PaymentMode: domain.PaymentModeCash,
		Items:       []domain.SaleItemInput{{ProductID: "prod-panier-01", Quantity: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d", rec.Code)
	}

	rec = doJSON(t, handler, admin, http.MethodGet, "/api/reports/sales.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "invoice_number") {
		t.Errorf("csv missing header:\n%s", rec.Body.String())
	}
}

func TestUserManagementEndpoints(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/users", domain.UserCreateRequest{
		Username: "clarisse", Password: "longenough", Role: domain.RoleArtisan, ArtisanID: "art-clarisse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, admin, http.MethodGet, "/api/users", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "clarisse") {
		t.Errorf("list users status = %d body %s", rec.Code, rec.Body.String())
	}

	// New account can log in.
	login(t, handler, "clarisse", "longenough")
}

func TestValidationErrorsMapTo400(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodPost, "/api/sales", domain.SaleDraft{
		ClientName:  "C",
		ArtisanID:   "art-aissatou",
		PaymentMode: domain.PaymentModeCash,
		Items:       []domain.SaleItemInput{{ProductID: "prod-panier-01", Quantity: 0}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero quantity status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, admin, http.MethodPost, "/api/sales", map[string]any{"unexpected": true})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestDeleteConflictMapsTo409(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	rec := doJSON(t, handler, admin, http.MethodDelete, "/api/categories/cat-vannerie", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete referenced category status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler := newTestServer(t).Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})

	var last int
	for i := 0; i < loginMaxAttempts+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("final status = %d, want 429", last)
	}

	// Another client is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.8:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusTooManyRequests {
		t.Errorf("other client throttled: %d", rec.Code)
	}
}

func TestPaginationOfAuditLimit(t *testing.T) {
	handler := newTestServer(t).Handler()
	admin := login(t, handler, "admin", "admin-test-pass")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, admin, http.MethodPost, "/api/categories", domain.CategoryCreateRequest{Name: fmt.Sprintf("Cat %d", i)})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create category: %d", rec.Code)
		}
	}

	rec := doJSON(t, handler, admin, http.MethodGet, "/api/audit-logs?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit logs status = %d", rec.Code)
	}
	var logs []domain.AuditLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("logs = %d entries, want 2", len(logs))
	}

	rec = doJSON(t, handler, admin, http.MethodGet, "/api/audit-logs?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
