package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type MenuItem struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Price     pgtype.Numeric `json:"price"`
	Image     string         `json:"image"`
	Available bool           `json:"available"`
	Special   bool           `json:"special"`
	Combo     bool           `json:"combo"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Order.Items is stored as JSONB. Each entry is a copy of the menu item
// taken when the order was placed.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	Username   string      `json:"username"`
	Items      []OrderItem `json:"items"`
	Preference string      `json:"preference"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type OrderItem struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Qty        int32           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}
