package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/service"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
)

const (
	maxBodyBytes      = 1 << 20
	loginMaxAttempts  = 10
	loginWindow       = time.Minute
	defaultAuditLimit = 100
)

// Server wires the application service to HTTP. Routing uses the standard
// ServeMux with method patterns; auth is a bearer JWT plus a stateless CSRF
// token on mutating requests.
type Server struct {
	svc           *service.Service
	auth          *authenticator
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
	allowedOrigin string
}

func NewServer(svc *service.Service, authSecret string, tokenTTL time.Duration, allowedOrigin string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:           svc,
		auth:          &authenticator{secret: []byte(authSecret), ttl: tokenTTL},
		loginLimiter:  newAttemptLimiter(loginMaxAttempts, loginWindow),
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/csrf-token", s.requireAuth(s.handleCSRFToken, domain.RoleAdmin, domain.RoleArtisan))

	mux.Handle("GET /api/products", s.requireAuth(s.handleListProducts, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("POST /api/products", s.requireAuth(s.requireCSRF(s.handleCreateProduct), domain.RoleAdmin))
	mux.Handle("GET /api/products/{id}", s.requireAuth(s.handleGetProduct, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("PUT /api/products/{id}", s.requireAuth(s.requireCSRF(s.handleUpdateProduct), domain.RoleAdmin))
	mux.Handle("DELETE /api/products/{id}", s.requireAuth(s.requireCSRF(s.handleDeleteProduct), domain.RoleAdmin))

	mux.Handle("GET /api/categories", s.requireAuth(s.handleListCategories, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("POST /api/categories", s.requireAuth(s.requireCSRF(s.handleCreateCategory), domain.RoleAdmin))
	mux.Handle("PUT /api/categories/{id}", s.requireAuth(s.requireCSRF(s.handleUpdateCategory), domain.RoleAdmin))
	mux.Handle("DELETE /api/categories/{id}", s.requireAuth(s.requireCSRF(s.handleDeleteCategory), domain.RoleAdmin))

	mux.Handle("GET /api/artisans", s.requireAuth(s.handleListArtisans, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("POST /api/artisans", s.requireAuth(s.requireCSRF(s.handleCreateArtisan), domain.RoleAdmin))
	mux.Handle("GET /api/artisans/{id}", s.requireAuth(s.handleGetArtisan, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("PUT /api/artisans/{id}", s.requireAuth(s.requireCSRF(s.handleUpdateArtisan), domain.RoleAdmin))
	mux.Handle("DELETE /api/artisans/{id}", s.requireAuth(s.requireCSRF(s.handleDeleteArtisan), domain.RoleAdmin))

	mux.Handle("GET /api/sales", s.requireAuth(s.handleListSales, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("POST /api/sales", s.requireAuth(s.requireCSRF(s.handleCreateSale), domain.RoleAdmin))
	mux.Handle("GET /api/sales/{id}", s.requireAuth(s.handleGetSale, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("PATCH /api/sales/{id}", s.requireAuth(s.requireCSRF(s.handleUpdateSale), domain.RoleAdmin))
	mux.Handle("DELETE /api/sales/{id}", s.requireAuth(s.requireCSRF(s.handleDeleteSale), domain.RoleAdmin))
	mux.Handle("GET /api/sales/{id}/invoice", s.requireAuth(s.handleInvoice, domain.RoleAdmin, domain.RoleArtisan))

	mux.Handle("GET /api/reports/sales.csv", s.requireAuth(s.handleSalesCSV, domain.RoleAdmin, domain.RoleArtisan))
	mux.Handle("GET /api/dashboard", s.requireAuth(s.handleDashboard, domain.RoleAdmin, domain.RoleArtisan))

	mux.Handle("GET /api/users", s.requireAuth(s.handleListUsers, domain.RoleAdmin))
	mux.Handle("POST /api/users", s.requireAuth(s.requireCSRF(s.handleCreateUser), domain.RoleAdmin))
	mux.Handle("POST /api/users/{username}/password", s.requireAuth(s.requireCSRF(s.handleChangePassword), domain.RoleAdmin, domain.RoleArtisan))

	mux.Handle("GET /api/audit-logs", s.requireAuth(s.handleAuditLogs, domain.RoleAdmin))

	return s.withCommonHeaders(s.withRequestLog(mux))
}

// --- middleware ---

func (s *Server) withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Access-Control-Allow-Origin", s.allowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) requireAuth(next http.HandlerFunc, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.auth.parseToken(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		allowed := false
		for _, role := range roles {
			if actor.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

// requireCSRF runs inside requireAuth, so the actor is always present.
func (s *Server) requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := service.ActorFrom(r.Context())
		if !s.auth.verifyCSRFToken(actor.Username, r.Header.Get("X-CSRF-Token")) {
			writeError(w, http.StatusForbidden, "missing or expired CSRF token")
			return
		}
		next(w, r)
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps application errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInsufficientStock):
		var shortErr *store.InsufficientStockError
		if errors.As(err, &shortErr) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "insufficient stock",
				"shortfalls": shortErr.Shortfalls,
			})
			return
		}
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrPersistence):
		s.logger.Error("persistence failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "persistence failure")
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now.Add(24 * time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", raw)
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", raw)
		}
		// Inclusive end date.
		to = t.Add(24 * time.Hour)
	}
	return from, to, nil
}

func saleFilterFrom(r *http.Request) (domain.SaleFilter, error) {
	q := r.URL.Query()
	filter := domain.SaleFilter{
		ArtisanID:  q.Get("artisan_id"),
		ClientName: q.Get("client"),
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, err := parseTimeRange(r)
		if err != nil {
			return filter, err
		}
		filter.From = &from
		filter.To = &to
	}
	return filter, nil
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.allow(clientKey(r.RemoteAddr)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := s.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, expiresAt, err := s.auth.mintToken(account)
	if err != nil {
		s.logger.Error("token mint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ArtisanID:   account.ArtisanID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": s.auth.currentCSRFToken(actor.Username)})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := s.svc.ListProducts(r.Context(), domain.ProductFilter{
		CategoryID: q.Get("category_id"),
		ArtisanID:  q.Get("artisan_id"),
		Query:      q.Get("q"),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.svc.CreateProduct(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := s.svc.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := s.svc.CreateCategory(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := s.svc.UpdateCategory(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArtisans(w http.ResponseWriter, r *http.Request) {
	artisans, err := s.svc.ListArtisans(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artisans)
}

func (s *Server) handleGetArtisan(w http.ResponseWriter, r *http.Request) {
	artisan, err := s.svc.GetArtisan(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artisan)
}

func (s *Server) handleCreateArtisan(w http.ResponseWriter, r *http.Request) {
	var req domain.ArtisanCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	artisan, err := s.svc.CreateArtisan(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, artisan)
}

func (s *Server) handleUpdateArtisan(w http.ResponseWriter, r *http.Request) {
	var req domain.ArtisanUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	artisan, err := s.svc.UpdateArtisan(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artisan)
}

func (s *Server) handleDeleteArtisan(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteArtisan(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := saleFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sales, err := s.svc.ListSales(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var draft domain.SaleDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	sale, err := s.svc.CreateSale(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := s.svc.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var patch domain.SalePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	sale, err := s.svc.UpdateSale(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSale(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.svc.RenderInvoiceHTML(r.Context(), id, w); err != nil {
			s.writeServiceError(w, err)
		}
		return
	}
	text, err := s.svc.RenderInvoiceText(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleSalesCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := saleFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales.csv"`)
	if err := s.svc.WriteSalesCSV(r.Context(), filter, w); err != nil {
		s.logger.Error("csv report failed", zap.Error(err))
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.svc.Dashboard(r.Context(), r.URL.Query().Get("artisan_id"), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.CreateUser(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.ChangePassword(r.Context(), r.PathValue("username"), req.Password); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := s.svc.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
