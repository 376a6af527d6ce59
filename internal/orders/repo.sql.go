package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/platform/db"
)

// Repository persists orders in PostgreSQL. Header, lines, and payment
// events land in one transaction; a reader never observes an order whose
// derived totals disagree with its rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order header and its lines.
func (r *Repository) Create(ctx context.Context, order *Order) error {
	discounts, err := json.Marshal(order.Discounts)
	if err != nil {
		return fmt.Errorf("orders: marshal discounts: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (
				number, customer_id, currency, status, discounts,
				shipping, handling, subtotal, item_discount, doc_discount, tax, total,
				paid, balance, overpaid, payment_status,
				due_date, placed_at, cancellation_reason, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			RETURNING id`,
			order.Number, order.CustomerID, order.Currency, order.Status, discounts,
			order.Shipping.Amount, order.Handling.Amount,
			order.Totals.Subtotal.Amount, order.Totals.ItemDiscount.Amount,
			order.Totals.DocDiscount.Amount, order.Totals.Tax.Amount, order.Totals.Total.Amount,
			order.Paid.Amount, order.Balance.Amount, order.Overpaid.Amount, order.PaymentStatus,
			order.DueDate, order.PlacedAt, order.CancellationReason, order.CreatedAt, order.UpdatedAt,
		).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("orders: insert order: %w", err)
		}
		for i := range order.Items {
			if err := insertItem(ctx, tx, order.ID, &order.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertItem(ctx context.Context, tx pgx.Tx, orderID int64, item *OrderItem) error {
	var discount []byte
	if item.Discount != nil {
		var err error
		if discount, err = json.Marshal(item.Discount); err != nil {
			return fmt.Errorf("orders: marshal item discount: %w", err)
		}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO order_items (
			order_id, product_id, description, unit_price, quantity, discount, tax_rate,
			subtotal, discount_amount, tax_amount, total, reservation_token
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		orderID, item.ProductID, item.Description, item.UnitPrice.Amount, item.Quantity,
		discount, item.TaxRate,
		item.Subtotal.Amount, item.DiscountAmount.Amount, item.TaxAmount.Amount, item.Total.Amount,
		item.ReservationToken,
	)
	if err != nil {
		return fmt.Errorf("orders: insert item: %w", err)
	}
	return nil
}

// Get loads an order with its lines and payment events.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	order := &Order{}
	var (
		discounts []byte
		shipping, handling, subtotal, itemDiscount,
		docDiscount, tax, total, paid, balance, overpaid decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, customer_id, currency, status, discounts,
		       shipping, handling, subtotal, item_discount, doc_discount, tax, total,
		       paid, balance, overpaid, payment_status,
		       due_date, placed_at, shipped_at, delivered_at, closed_at,
		       cancellation_reason, created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&order.ID, &order.Number, &order.CustomerID, &order.Currency, &order.Status, &discounts,
		&shipping, &handling, &subtotal, &itemDiscount, &docDiscount, &tax, &total,
		&paid, &balance, &overpaid, &order.PaymentStatus,
		&order.DueDate, &order.PlacedAt, &order.ShippedAt, &order.DeliveredAt, &order.ClosedAt,
		&order.CancellationReason, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("orders: get order %d: %w", id, err)
	}
	if len(discounts) > 0 {
		if err := json.Unmarshal(discounts, &order.Discounts); err != nil {
			return nil, fmt.Errorf("orders: unmarshal discounts: %w", err)
		}
	}
	cur := order.Currency
	order.Shipping = money.Money{Amount: shipping, Currency: cur}
	order.Handling = money.Money{Amount: handling, Currency: cur}
	order.Totals = billing.DocumentTotals{
		Currency:     cur,
		Subtotal:     money.Money{Amount: subtotal, Currency: cur},
		ItemDiscount: money.Money{Amount: itemDiscount, Currency: cur},
		DocDiscount:  money.Money{Amount: docDiscount, Currency: cur},
		Tax:          money.Money{Amount: tax, Currency: cur},
		Shipping:     money.Money{Amount: shipping, Currency: cur},
		Handling:     money.Money{Amount: handling, Currency: cur},
		Total:        money.Money{Amount: total, Currency: cur},
	}
	order.Paid = money.Money{Amount: paid, Currency: cur}
	order.Balance = money.Money{Amount: balance, Currency: cur}
	order.Overpaid = money.Money{Amount: overpaid, Currency: cur}

	if order.Items, err = r.loadItems(ctx, order.ID, cur); err != nil {
		return nil, err
	}
	if order.Payments, err = r.loadPayments(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) loadItems(ctx context.Context, orderID int64, cur string) ([]OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, description, unit_price, quantity, discount, tax_rate,
		       subtotal, discount_amount, tax_amount, total, reservation_token
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var (
			item     OrderItem
			discount []byte

			unitPrice, subtotal, discountAmount, taxAmount, total decimal.Decimal
		)
		if err := rows.Scan(&item.ProductID, &item.Description, &unitPrice, &item.Quantity,
			&discount, &item.TaxRate, &subtotal, &discountAmount, &taxAmount, &total,
			&item.ReservationToken); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		if len(discount) > 0 {
			item.Discount = &billing.Discount{}
			if err := json.Unmarshal(discount, item.Discount); err != nil {
				return nil, fmt.Errorf("orders: unmarshal item discount: %w", err)
			}
		}
		item.UnitPrice = money.Money{Amount: unitPrice, Currency: cur}
		item.Subtotal = money.Money{Amount: subtotal, Currency: cur}
		item.DiscountAmount = money.Money{Amount: discountAmount, Currency: cur}
		item.TaxAmount = money.Money{Amount: taxAmount, Currency: cur}
		item.Total = money.Money{Amount: total, Currency: cur}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) loadPayments(ctx context.Context, orderID int64) ([]billing.PaymentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, amount, currency, status, method, occurred_at
		FROM order_payments WHERE order_id=$1 ORDER BY occurred_at, event_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load payments: %w", err)
	}
	defer rows.Close()

	var events []billing.PaymentEvent
	for rows.Next() {
		var (
			evt    billing.PaymentEvent
			amount decimal.Decimal
			cur    string
		)
		if err := rows.Scan(&evt.ID, &amount, &cur, &evt.Status, &evt.Method, &evt.At); err != nil {
			return nil, fmt.Errorf("orders: scan payment: %w", err)
		}
		evt.Amount = money.Money{Amount: amount, Currency: cur}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Update persists the header and derived fields. Lines are immutable after
// placement and payment events arrive through AppendPayment, so only the
// header row moves here.
func (r *Repository) Update(ctx context.Context, order *Order) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET
			status=$2, paid=$3, balance=$4, overpaid=$5, payment_status=$6,
			shipped_at=$7, delivered_at=$8, closed_at=$9,
			cancellation_reason=$10, updated_at=$11
		WHERE id=$1`,
		order.ID, order.Status, order.Paid.Amount, order.Balance.Amount,
		order.Overpaid.Amount, order.PaymentStatus,
		order.ShippedAt, order.DeliveredAt, order.ClosedAt,
		order.CancellationReason, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: update order %d: %w", order.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendPayment stores one payment event against the order. The unique
// (order_id, event_id) pair makes a redelivered event a no-op at the row
// level too.
func (r *Repository) AppendPayment(ctx context.Context, orderID int64, evt billing.PaymentEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO order_payments (order_id, event_id, amount, currency, status, method, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id, event_id) DO NOTHING`,
		orderID, evt.ID, evt.Amount.Amount, evt.Amount.Currency, evt.Status, evt.Method, evt.At,
	)
	if err != nil {
		return fmt.Errorf("orders: append payment %s: %w", evt.ID, err)
	}
	return nil
}

// List returns order headers, newest first. Items and payments are loaded
// on demand via Get.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, currency, status, total, paid, balance,
		       payment_status, due_date, placed_at, created_at, updated_at
		FROM orders ORDER BY placed_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var (
			o                    Order
			total, paid, balance decimal.Decimal
		)
		if err := rows.Scan(&o.ID, &o.Number, &o.CustomerID, &o.Currency, &o.Status,
			&total, &paid, &balance, &o.PaymentStatus,
			&o.DueDate, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan order: %w", err)
		}
		o.Totals = billing.DocumentTotals{Currency: o.Currency, Total: money.Money{Amount: total, Currency: o.Currency}}
		o.Paid = money.Money{Amount: paid, Currency: o.Currency}
		o.Balance = money.Money{Amount: balance, Currency: o.Currency}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
