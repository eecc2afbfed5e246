package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/cache"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/invoice"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/report"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/sales"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
)

// ErrForbidden marks an operation the authenticated actor may not perform.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the request context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the application layer: role checks, cross-entity validation,
// audit logging, and delegation to the transaction manager and report engine.
type Service struct {
	repo    store.Repository
	manager *sales.Manager
	reports *report.Engine
	logger  *zap.Logger
}

func New(repo store.Repository, summaryCache cache.SummaryCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		manager: sales.NewManager(repo, repo, logger),
		reports: report.NewEngine(repo, summaryCache, logger),
		logger:  logger,
	}
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s cannot perform this operation", ErrForbidden, actor.Role)
}

// logAudit records a mutating operation. Audit failures never fail the
// operation itself.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action, entityType, entityID, detail string) {
	entry := domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// --- Auth ---

// Authenticate verifies credentials and returns the account on success.
// It deliberately returns the same error for unknown users and wrong
// passwords.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.UserAccount, error) {
	invalid := fmt.Errorf("%w: invalid credentials", store.ErrValidation)

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading users: %v", store.ErrPersistence, err)
	}
	for _, user := range users {
		if user.Username != username {
			continue
		}
		if !user.Active {
			return nil, invalid
		}
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
			return nil, invalid
		}
		account := user
		return &account, nil
	}
	// Burn a comparison so unknown usernames cost the same as wrong passwords.
	_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
	return nil, invalid
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.UserInfo, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: username required and password must be at least 8 characters", store.ErrValidation)
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleArtisan {
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}
	if req.Role == domain.RoleArtisan {
		if req.ArtisanID == "" {
			return nil, fmt.Errorf("%w: artisan accounts need an artisan id", store.ErrValidation)
		}
		if _, err := s.repo.GetArtisanByID(ctx, req.ArtisanID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown artisan %s", store.ErrValidation, req.ArtisanID)
			}
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      req.Role,
		ArtisanID: req.ArtisanID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return nil, err
	}

	s.logAudit(ctx, actor, "create", "user", username, "role="+req.Role)
	return &domain.UserInfo{
		Username:  account.Username,
		Role:      account.Role,
		ArtisanID: account.ArtisanID,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserInfo, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]domain.UserInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, domain.UserInfo{
			Username:  a.Username,
			Role:      a.Role,
			ArtisanID: a.ArtisanID,
			Active:    a.Active,
			CreatedAt: a.CreatedAt,
		})
	}
	return infos, nil
}

// ChangePassword lets an actor change their own password; admins can change
// anyone's.
func (s *Service) ChangePassword(ctx context.Context, username, newPassword string) error {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	if actor.Role != domain.RoleAdmin && actor.Username != username {
		return fmt.Errorf("%w: cannot change another user's password", ErrForbidden)
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "update", "user", username, "password changed")
	return nil
}

// --- Catalog ---

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || req.PriceCents < 0 || req.Stock < 0 {
		return nil, fmt.Errorf("%w: product needs a name, a non-negative price and stock", store.ErrValidation)
	}
	if _, err := s.repo.GetCategoryByID(ctx, req.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, req.CategoryID)
		}
		return nil, err
	}
	if _, err := s.repo.GetArtisanByID(ctx, req.ArtisanID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown artisan %s", store.ErrValidation, req.ArtisanID)
		}
		return nil, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        strings.TrimSpace(req.Name),
		CategoryID:  req.CategoryID,
		ArtisanID:   req.ArtisanID,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "create", "product", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: product name cannot be empty", store.ErrValidation)
		}
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.CategoryID != nil {
		if _, err := s.repo.GetCategoryByID(ctx, *req.CategoryID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, *req.CategoryID)
			}
			return nil, err
		}
		existing.CategoryID = *req.CategoryID
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, fmt.Errorf("%w: price cannot be negative", store.ErrValidation)
		}
		existing.PriceCents = *req.PriceCents
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "update", "product", id, updated.Name)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "delete", "product", id, "")
	return nil
}

// --- Categories ---

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (*domain.Category, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "create", "category", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (*domain.Category, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	updated, err := s.repo.UpdateCategory(ctx, *existing)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "update", "category", id, updated.Name)
	return updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "delete", "category", id, "")
	return nil
}

// --- Artisans ---

func (s *Service) ListArtisans(ctx context.Context) ([]domain.Artisan, error) {
	return s.repo.ListArtisans(ctx)
}

func (s *Service) GetArtisan(ctx context.Context, id string) (*domain.Artisan, error) {
	return s.repo.GetArtisanByID(ctx, id)
}

func (s *Service) CreateArtisan(ctx context.Context, req domain.ArtisanCreateRequest) (*domain.Artisan, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: artisan needs a name and a valid email", store.ErrValidation)
	}
	created, err := s.repo.CreateArtisan(ctx, domain.Artisan{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     req.Phone,
		Specialty: req.Specialty,
		Region:    req.Region,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "create", "artisan", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateArtisan(ctx context.Context, id string, req domain.ArtisanUpdateRequest) (*domain.Artisan, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetArtisanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		if !strings.Contains(*req.Email, "@") {
			return nil, fmt.Errorf("%w: invalid email", store.ErrValidation)
		}
		existing.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		existing.Phone = *req.Phone
	}
	if req.Specialty != nil {
		existing.Specialty = *req.Specialty
	}
	if req.Region != nil {
		existing.Region = *req.Region
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}
	updated, err := s.repo.UpdateArtisan(ctx, *existing)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "update", "artisan", id, updated.Name)
	return updated, nil
}

func (s *Service) DeleteArtisan(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteArtisan(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "delete", "artisan", id, "")
	return nil
}

// --- Sales ---

func validPaymentMode(mode string) bool {
	switch mode {
	case domain.PaymentModeCash, domain.PaymentModeMobileMoney, domain.PaymentModeCard, domain.PaymentModeTransfer:
		return true
	}
	return false
}

func (s *Service) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.ClientName) == "" {
		return nil, fmt.Errorf("%w: client name is required", store.ErrValidation)
	}
	if !validPaymentMode(draft.PaymentMode) {
		return nil, fmt.Errorf("%w: unknown payment mode %q", store.ErrValidation, draft.PaymentMode)
	}
	if _, err := s.repo.GetArtisanByID(ctx, draft.ArtisanID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown artisan %s", store.ErrValidation, draft.ArtisanID)
		}
		return nil, err
	}

	sale, err := s.manager.CreateSale(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, actor, "create", "sale", sale.ID, sale.InvoiceNumber)
	return sale, nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, patch domain.SalePatch) (*domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if patch.ClientName != nil && strings.TrimSpace(*patch.ClientName) == "" {
		return nil, fmt.Errorf("%w: client name cannot be empty", store.ErrValidation)
	}
	if patch.PaymentMode != nil && !validPaymentMode(*patch.PaymentMode) {
		return nil, fmt.Errorf("%w: unknown payment mode %q", store.ErrValidation, *patch.PaymentMode)
	}

	sale, err := s.manager.UpdateSale(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, actor, "update", "sale", id, sale.InvoiceNumber)
	return sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.manager.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, actor, "delete", "sale", id, "")
	return nil
}

// GetSale returns a sale to admins, or to the artisan the sale belongs to.
func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleArtisan)
	if err != nil {
		return nil, err
	}
	sale, err := s.manager.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleArtisan && sale.ArtisanID != actor.ArtisanID {
		return nil, fmt.Errorf("%w: sale belongs to another artisan", ErrForbidden)
	}
	return sale, nil
}

// ListSales scopes artisan callers to their own sales regardless of filter.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleArtisan)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleArtisan {
		filter.ArtisanID = actor.ArtisanID
	}
	return s.manager.ListSales(ctx, filter)
}

// --- Invoices & reports ---

func (s *Service) invoiceView(ctx context.Context, sale *domain.Sale) invoice.View {
	artisanName := ""
	if artisan, err := s.repo.GetArtisanByID(ctx, sale.ArtisanID); err == nil {
		artisanName = artisan.Name
	}
	names := make(map[string]string, len(sale.Items))
	for _, line := range sale.Items {
		if product, err := s.repo.GetProductByID(ctx, line.ProductID); err == nil {
			names[line.ProductID] = product.Name
		}
	}
	return invoice.NewView(sale, artisanName, names)
}

func (s *Service) RenderInvoiceText(ctx context.Context, saleID string) (string, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return "", err
	}
	return invoice.Text(s.invoiceView(ctx, sale)), nil
}

func (s *Service) RenderInvoiceHTML(ctx context.Context, saleID string, w io.Writer) error {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return err
	}
	return invoice.HTML(w, s.invoiceView(ctx, sale))
}

// WriteSalesCSV streams a CSV report for the given filter, scoped like
// ListSales.
func (s *Service) WriteSalesCSV(ctx context.Context, filter domain.SaleFilter, w io.Writer) error {
	sales, err := s.ListSales(ctx, filter)
	if err != nil {
		return err
	}
	return invoice.SalesCSV(w, sales)
}

// Dashboard computes the summary for one artisan or the whole marketplace.
// Artisan callers always get their own summary.
func (s *Service) Dashboard(ctx context.Context, artisanID string, from, to time.Time) (*domain.SalesSummary, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleArtisan)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleArtisan {
		artisanID = actor.ArtisanID
	}
	return s.reports.Summary(ctx, artisanID, from, to)
}

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}
