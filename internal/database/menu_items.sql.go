package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, name, price, image, available, special, combo, created_at, updated_at`

func scanMenuItem(row interface{ Scan(dest ...any) error }) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Image,
		&i.Available,
		&i.Special,
		&i.Combo,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) listMenuItems(ctx context.Context, query string, args ...interface{}) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		i, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMenuItems = `-- name: ListMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
ORDER BY created_at, id
`

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	return q.listMenuItems(ctx, listMenuItems)
}

const listSpecialMenuItems = `-- name: ListSpecialMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE special = true
ORDER BY created_at, id
`

func (q *Queries) ListSpecialMenuItems(ctx context.Context) ([]MenuItem, error) {
	return q.listMenuItems(ctx, listSpecialMenuItems)
}

const listComboMenuItems = `-- name: ListComboMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE combo = true
ORDER BY created_at, id
`

func (q *Queries) ListComboMenuItems(ctx context.Context) ([]MenuItem, error) {
	return q.listMenuItems(ctx, listComboMenuItems)
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, id))
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (name, price, image, available, special, combo)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	Name      string         `json:"name"`
	Price     pgtype.Numeric `json:"price"`
	Image     string         `json:"image"`
	Available bool           `json:"available"`
	Special   bool           `json:"special"`
	Combo     bool           `json:"combo"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, createMenuItem,
		arg.Name,
		arg.Price,
		arg.Image,
		arg.Available,
		arg.Special,
		arg.Combo,
	))
}

const setMenuItemAvailability = `-- name: SetMenuItemAvailability :one
UPDATE menu_items SET available = $2, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type SetMenuItemAvailabilityParams struct {
	ID        uuid.UUID `json:"id"`
	Available bool      `json:"available"`
}

func (q *Queries) SetMenuItemAvailability(ctx context.Context, arg SetMenuItemAvailabilityParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, setMenuItemAvailability, arg.ID, arg.Available))
}

const setMenuItemPrice = `-- name: SetMenuItemPrice :one
UPDATE menu_items SET price = $2, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type SetMenuItemPriceParams struct {
	ID    uuid.UUID      `json:"id"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) SetMenuItemPrice(ctx context.Context, arg SetMenuItemPriceParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, setMenuItemPrice, arg.ID, arg.Price))
}

const setMenuItemImage = `-- name: SetMenuItemImage :one
UPDATE menu_items SET image = $2, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type SetMenuItemImageParams struct {
	ID    uuid.UUID `json:"id"`
	Image string    `json:"image"`
}

func (q *Queries) SetMenuItemImage(ctx context.Context, arg SetMenuItemImageParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, setMenuItemImage, arg.ID, arg.Image))
}

// UpdateMenuItem only overwrites the columns whose param is Valid.
const updateMenuItem = `-- name: UpdateMenuItem :one
UPDATE menu_items SET
    name       = COALESCE($2, name),
    price      = COALESCE($3, price),
    image      = COALESCE($4, image),
    available  = COALESCE($5, available),
    special    = COALESCE($6, special),
    combo      = COALESCE($7, combo),
    updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID        uuid.UUID      `json:"id"`
	Name      pgtype.Text    `json:"name"`
	Price     pgtype.Numeric `json:"price"`
	Image     pgtype.Text    `json:"image"`
	Available pgtype.Bool    `json:"available"`
	Special   pgtype.Bool    `json:"special"`
	Combo     pgtype.Bool    `json:"combo"`
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, updateMenuItem,
		arg.ID,
		arg.Name,
		arg.Price,
		arg.Image,
		arg.Available,
		arg.Special,
		arg.Combo,
	))
}
