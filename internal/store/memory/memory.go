package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categories      map[string]domain.Category
	artisans        map[string]domain.Artisan
	salesByID       map[string]*domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	invoiceSeq      int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_ARTISAN_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	artisanPwd := envOr("SEED_ARTISAN_PASSWORD", "artisan123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ARTISAN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_ARTISAN_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username  string
		password  string
		role      string
		artisanID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"aissatou", artisanPwd, domain.RoleArtisan, "art-aissatou"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			ArtisanID: u.artisanID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat-vannerie", Name: "Vannerie", Description: "Paniers et objets tressés", CreatedAt: now},
		{ID: "cat-poterie", Name: "Poterie", Description: "Céramique et terre cuite", CreatedAt: now},
		{ID: "cat-sculpture", Name: "Sculpture", Description: "Bois et bronze", CreatedAt: now},
		{ID: "cat-textile", Name: "Textile", Description: "Tissus, toghu et ndop", CreatedAt: now},
		{ID: "cat-bijoux", Name: "Bijoux", Description: "Perles et laiton", CreatedAt: now},
	}

	artisans := []domain.Artisan{
		{ID: "art-aissatou", Name: "Aïssatou Ngo Bell", Email: "aissatou@gestiart.cm", Phone: "+237650112233", Specialty: "Vannerie", Region: "Littoral", Active: true, JoinedAt: now},
		{ID: "art-bertrand", Name: "Bertrand Kamga", Email: "bertrand@gestiart.cm", Phone: "+237677445566", Specialty: "Sculpture", Region: "Ouest", Active: true, JoinedAt: now},
		{ID: "art-clarisse", Name: "Clarisse Fotso", Email: "clarisse@gestiart.cm", Phone: "+237691778899", Specialty: "Textile", Region: "Nord-Ouest", Active: true, JoinedAt: now},
	}

	products := []domain.Product{
		{ID: "prod-panier-01", Name: "Panier tressé rond", CategoryID: "cat-vannerie", ArtisanID: "art-aissatou", PriceCents: 750000, Stock: 24, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-corbeille-01", Name: "Corbeille à fruits", CategoryID: "cat-vannerie", ArtisanID: "art-aissatou", PriceCents: 450000, Stock: 40, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-masque-01", Name: "Masque bamiléké", CategoryID: "cat-sculpture", ArtisanID: "art-bertrand", PriceCents: 2500000, Stock: 6, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-statuette-01", Name: "Statuette en ébène", CategoryID: "cat-sculpture", ArtisanID: "art-bertrand", PriceCents: 1800000, Stock: 10, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-toghu-01", Name: "Étole toghu brodée", CategoryID: "cat-textile", ArtisanID: "art-clarisse", PriceCents: 1200000, Stock: 15, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-ndop-01", Name: "Tenture ndop indigo", CategoryID: "cat-textile", ArtisanID: "art-clarisse", PriceCents: 2200000, Stock: 8, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-collier-01", Name: "Collier de perles", CategoryID: "cat-bijoux", ArtisanID: "art-clarisse", PriceCents: 350000, Stock: 50, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-jarre-01", Name: "Jarre en terre cuite", CategoryID: "cat-poterie", ArtisanID: "art-aissatou", PriceCents: 900000, Stock: 12, Active: true, CreatedAt: now, UpdatedAt: now},
	}

	categoryMap := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		categoryMap[c.ID] = c
	}
	artisanMap := make(map[string]domain.Artisan, len(artisans))
	for _, a := range artisans {
		artisanMap[a.ID] = a
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		categories:      categoryMap,
		artisans:        artisanMap,
		salesByID:       make(map[string]*domain.Sale),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// New returns an empty store without seed data, used by tests that need
// full control over the catalog.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		categories:      make(map[string]domain.Category),
		artisans:        make(map[string]domain.Artisan),
		salesByID:       make(map[string]*domain.Sale),
		auditLogs:       make([]domain.AuditLog, 0, 16),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	next := product.Stock + delta
	if next < 0 {
		return nil, &store.InsufficientStockError{Shortfalls: []store.StockShortfall{{
			ProductID: id,
			Requested: -delta,
			Available: product.Stock,
			Shortfall: -next,
		}}}
	}

	product.Stock = next
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.ArtisanID != "" && p.ArtisanID != filter.ArtisanID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CategoryID == b.CategoryID {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CategoryID, b.CategoryID)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CategoryID == "" || product.ArtisanID == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.CategoryID == "" || product.PriceCents < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Stock is owned by AdjustStock; catalog updates never touch it.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product %s referenced by sale %s", store.ErrConflict, id, sale.ID)
			}
		}
	}

	delete(s.products, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if _, exists := s.categories[category.ID]; exists {
		return nil, store.ErrConflict
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategoryByID(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categories[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	category.CreatedAt = existing.CreatedAt
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return fmt.Errorf("%w: category %s referenced by product %s", store.ErrConflict, id, p.ID)
		}
	}

	delete(s.categories, id)
	return nil
}

func (s *Store) ListArtisans(_ context.Context) ([]domain.Artisan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artisans := make([]domain.Artisan, 0, len(s.artisans))
	for _, a := range s.artisans {
		artisans = append(artisans, a)
	}
	slices.SortFunc(artisans, func(a, b domain.Artisan) int {
		return cmpString(a.Name, b.Name)
	})
	return artisans, nil
}

func (s *Store) CreateArtisan(_ context.Context, artisan domain.Artisan) (*domain.Artisan, error) {
	if strings.TrimSpace(artisan.Name) == "" || strings.TrimSpace(artisan.Email) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if artisan.ID == "" {
		artisan.ID = xid.New("art")
	}
	if _, exists := s.artisans[artisan.ID]; exists {
		return nil, store.ErrConflict
	}
	if artisan.JoinedAt.IsZero() {
		artisan.JoinedAt = time.Now().UTC()
	}
	artisan.Active = true

	s.artisans[artisan.ID] = artisan
	created := artisan
	return &created, nil
}

func (s *Store) GetArtisanByID(_ context.Context, id string) (*domain.Artisan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artisan, exists := s.artisans[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyArtisan := artisan
	return &copyArtisan, nil
}

func (s *Store) UpdateArtisan(_ context.Context, artisan domain.Artisan) (*domain.Artisan, error) {
	if artisan.ID == "" || strings.TrimSpace(artisan.Name) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.artisans[artisan.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	artisan.JoinedAt = existing.JoinedAt
	s.artisans[artisan.ID] = artisan
	updated := artisan
	return &updated, nil
}

func (s *Store) DeleteArtisan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artisans[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.ArtisanID == id {
			return fmt.Errorf("%w: artisan %s referenced by product %s", store.ErrConflict, id, p.ID)
		}
	}
	for _, sale := range s.salesByID {
		if sale.ArtisanID == id {
			return fmt.Errorf("%w: artisan %s referenced by sale %s", store.ErrConflict, id, sale.ID)
		}
	}

	delete(s.artisans, id)
	return nil
}

func (s *Store) NextInvoiceNumber(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiceSeq++
	return fmt.Sprintf("FAC-%d-%04d", time.Now().UTC().Year(), s.invoiceSeq), nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.InvoiceNumber == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusValidated
	}
	sale.CreatedAt = now
	sale.UpdatedAt = now

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	return cloneSale(saved), nil
}

func (s *Store) UpdateSale(_ context.Context, id string, sale domain.Sale) (*domain.Sale, error) {
	if id == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.ID = existing.ID
	sale.InvoiceNumber = existing.InvoiceNumber
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()

	saved := cloneSale(&sale)
	s.salesByID[id] = saved
	return cloneSale(saved), nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client := strings.ToLower(strings.TrimSpace(filter.ClientName))
	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.ArtisanID != "" && sale.ArtisanID != filter.ArtisanID {
			continue
		}
		if client != "" && !strings.Contains(strings.ToLower(sale.ClientName), client) {
			continue
		}
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.SaleDate.Before(*filter.To) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}

	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if strings.TrimSpace(user.Username) == "" || user.Password == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copySale := *sale
	copySale.Items = make([]domain.SaleLineItem, len(sale.Items))
	copy(copySale.Items, sale.Items)
	return &copySale
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
