package database

import (
	"context"

	"github.com/google/uuid"
)

const orderColumns = `id, username, items, preference, status, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Items,
		&i.Preference,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (username, items, preference, status)
VALUES ($1, $2, $3, $4)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	Username   string      `json:"username"`
	Items      []OrderItem `json:"items"`
	Preference string      `json:"preference"`
	Status     string      `json:"status"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.Username,
		arg.Items,
		arg.Preference,
		arg.Status,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text = '' OR username = $1::text)
ORDER BY created_at DESC, id DESC
`

// ListOrders returns every order when username is empty, otherwise only the
// orders placed by that exact username. Newest first.
func (q *Queries) ListOrders(ctx context.Context, username string) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

// UpdateOrderStatus is a compare-and-set: it only matches while the row
// still has PrevStatus, so a concurrent change yields pgx.ErrNoRows.
const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.PrevStatus))
}
