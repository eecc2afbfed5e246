package domain

import "time"

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Artisan struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Specialty string    `json:"specialty"`
	Region    string    `json:"region,omitempty"`
	Active    bool      `json:"active"`
	JoinedAt  time.Time `json:"joined_at"`
}

type ArtisanCreateRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	Region    string `json:"region"`
}

type ArtisanUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Specialty *string `json:"specialty,omitempty"`
	Region    *string `json:"region,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CategoryID  string    `json:"category_id"`
	ArtisanID   string    `json:"artisan_id"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	CategoryID  string `json:"category_id"`
	ArtisanID   string `json:"artisan_id"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	Description string `json:"description"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type ProductFilter struct {
	CategoryID string
	ArtisanID  string
	Query      string
}

// SaleLineItem is owned by its parent Sale. UnitPriceCents is snapshotted at
// sale time and does not track later product price changes.
type SaleLineItem struct {
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	DiscountCents   int64  `json:"discount_cents,omitempty"`
	LineAmountCents int64  `json:"line_amount_cents"`
}

type Sale struct {
	ID               string         `json:"id"`
	InvoiceNumber    string         `json:"invoice_number"`
	ClientName       string         `json:"client_name"`
	ArtisanID        string         `json:"artisan_id"`
	Items            []SaleLineItem `json:"items"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	SaleDate         time.Time      `json:"sale_date"`
	Status           string         `json:"status"`
	PaymentMode      string         `json:"payment_mode"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type SaleItemInput struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	DiscountCents int64  `json:"discount_cents,omitempty"`
}

type SaleDraft struct {
	ClientName  string          `json:"client_name"`
	ArtisanID   string          `json:"artisan_id"`
	PaymentMode string          `json:"payment_mode"`
	SaleDate    *time.Time      `json:"sale_date,omitempty"`
	Items       []SaleItemInput `json:"items"`
}

// SalePatch carries partial updates for a sale. A nil Items keeps the current
// line items; a non-nil Items fully replaces them.
type SalePatch struct {
	ClientName  *string         `json:"client_name,omitempty"`
	PaymentMode *string         `json:"payment_mode,omitempty"`
	SaleDate    *time.Time      `json:"sale_date,omitempty"`
	Items       []SaleItemInput `json:"items,omitempty"`
}

type SaleFilter struct {
	ArtisanID  string
	ClientName string
	From       *time.Time
	To         *time.Time
}

type SalesSummary struct {
	ArtisanID        string              `json:"artisan_id,omitempty"`
	From             string              `json:"from"`
	To               string              `json:"to"`
	SaleCount        int64               `json:"sale_count"`
	ItemsSold        int64               `json:"items_sold"`
	RevenueCents     int64               `json:"revenue_cents"`
	AverageSaleCents int64               `json:"average_sale_cents"`
	TopProducts      []ProductSalesEntry `json:"top_products"`
	ByPaymentMode    []PaymentModeEntry  `json:"by_payment_mode"`
	GeneratedAt      string              `json:"generated_at"`
}

type ProductSalesEntry struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name,omitempty"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type PaymentModeEntry struct {
	PaymentMode  string `json:"payment_mode"`
	SaleCount    int64  `json:"sale_count"`
	RevenueCents int64  `json:"revenue_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ArtisanID   string `json:"artisan_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username  string
	Role      string
	ArtisanID string
}

type UserCreateRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	ArtisanID string `json:"artisan_id,omitempty"`
}

type UserInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ArtisanID string    `json:"artisan_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	ArtisanID string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusValidated = "validated"
)

const (
	RoleAdmin   = "admin"
	RoleArtisan = "artisan"
)

const (
	PaymentModeCash        = "cash"
	PaymentModeMobileMoney = "mobile_money"
	PaymentModeCard        = "card"
	PaymentModeTransfer    = "transfer"
)
