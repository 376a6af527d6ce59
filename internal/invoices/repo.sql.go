package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/platform/db"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the invoice header and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	discounts, err := json.Marshal(inv.Discounts)
	if err != nil {
		return fmt.Errorf("invoices: marshal discounts: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO invoices (
				number, customer_id, order_id, currency, status, discounts,
				shipping, handling, subtotal, item_discount, doc_discount, tax, total,
				paid, balance, overpaid, payment_status,
				issued_at, due_date, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			RETURNING id`,
			inv.Number, inv.CustomerID, nullID(inv.OrderID), inv.Currency, inv.Status, discounts,
			inv.Shipping.Amount, inv.Handling.Amount,
			inv.Totals.Subtotal.Amount, inv.Totals.ItemDiscount.Amount,
			inv.Totals.DocDiscount.Amount, inv.Totals.Tax.Amount, inv.Totals.Total.Amount,
			inv.Paid.Amount, inv.Balance.Amount, inv.Overpaid.Amount, inv.PaymentStatus,
			inv.IssuedAt, inv.DueDate, inv.CreatedAt, inv.UpdatedAt,
		).Scan(&inv.ID)
		if err != nil {
			return fmt.Errorf("invoices: insert invoice: %w", err)
		}
		for i := range inv.Items {
			item := &inv.Items[i]
			var discount []byte
			if item.Discount != nil {
				if discount, err = json.Marshal(item.Discount); err != nil {
					return fmt.Errorf("invoices: marshal item discount: %w", err)
				}
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO invoice_items (
					invoice_id, product_id, description, unit_price, quantity, discount, tax_rate,
					subtotal, discount_amount, tax_amount, total
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				inv.ID, item.ProductID, item.Description, item.UnitPrice.Amount, item.Quantity,
				discount, item.TaxRate,
				item.Subtotal.Amount, item.DiscountAmount.Amount, item.TaxAmount.Amount, item.Total.Amount,
			)
			if err != nil {
				return fmt.Errorf("invoices: insert item: %w", err)
			}
		}
		return nil
	})
}

// Get loads an invoice with its lines and payment events.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv := &Invoice{}
	var (
		discounts []byte
		orderID   *int64

		shipping, handling, subtotal, itemDiscount,
		docDiscount, tax, total, paid, balance, overpaid decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, customer_id, order_id, currency, status, discounts,
		       shipping, handling, subtotal, item_discount, doc_discount, tax, total,
		       paid, balance, overpaid, payment_status,
		       issued_at, due_date, sent_at, viewed_at, closed_at, created_at, updated_at
		FROM invoices WHERE id=$1`, id).Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &orderID, &inv.Currency, &inv.Status, &discounts,
		&shipping, &handling, &subtotal, &itemDiscount, &docDiscount, &tax, &total,
		&paid, &balance, &overpaid, &inv.PaymentStatus,
		&inv.IssuedAt, &inv.DueDate, &inv.SentAt, &inv.ViewedAt, &inv.ClosedAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("invoices: get invoice %d: %w", id, err)
	}
	if orderID != nil {
		inv.OrderID = *orderID
	}
	if len(discounts) > 0 {
		if err := json.Unmarshal(discounts, &inv.Discounts); err != nil {
			return nil, fmt.Errorf("invoices: unmarshal discounts: %w", err)
		}
	}
	cur := inv.Currency
	inv.Shipping = money.Money{Amount: shipping, Currency: cur}
	inv.Handling = money.Money{Amount: handling, Currency: cur}
	inv.Totals = billing.DocumentTotals{
		Currency:     cur,
		Subtotal:     money.Money{Amount: subtotal, Currency: cur},
		ItemDiscount: money.Money{Amount: itemDiscount, Currency: cur},
		DocDiscount:  money.Money{Amount: docDiscount, Currency: cur},
		Tax:          money.Money{Amount: tax, Currency: cur},
		Shipping:     money.Money{Amount: shipping, Currency: cur},
		Handling:     money.Money{Amount: handling, Currency: cur},
		Total:        money.Money{Amount: total, Currency: cur},
	}
	inv.Paid = money.Money{Amount: paid, Currency: cur}
	inv.Balance = money.Money{Amount: balance, Currency: cur}
	inv.Overpaid = money.Money{Amount: overpaid, Currency: cur}

	if inv.Items, err = r.loadItems(ctx, inv.ID, cur); err != nil {
		return nil, err
	}
	if inv.Payments, err = r.loadPayments(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Repository) loadItems(ctx context.Context, invoiceID int64, cur string) ([]billing.LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, description, unit_price, quantity, discount, tax_rate,
		       subtotal, discount_amount, tax_amount, total
		FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: load items: %w", err)
	}
	defer rows.Close()

	var items []billing.LineItem
	for rows.Next() {
		var (
			item     billing.LineItem
			discount []byte

			unitPrice, subtotal, discountAmount, taxAmount, total decimal.Decimal
		)
		if err := rows.Scan(&item.ProductID, &item.Description, &unitPrice, &item.Quantity,
			&discount, &item.TaxRate, &subtotal, &discountAmount, &taxAmount, &total); err != nil {
			return nil, fmt.Errorf("invoices: scan item: %w", err)
		}
		if len(discount) > 0 {
			item.Discount = &billing.Discount{}
			if err := json.Unmarshal(discount, item.Discount); err != nil {
				return nil, fmt.Errorf("invoices: unmarshal item discount: %w", err)
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

func (r *Repository) loadPayments(ctx context.Context, invoiceID int64) ([]billing.PaymentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, amount, currency, status, method, occurred_at
		FROM invoice_payments WHERE invoice_id=$1 ORDER BY occurred_at, event_id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: load payments: %w", err)
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
			return nil, fmt.Errorf("invoices: scan payment: %w", err)
		}
		evt.Amount = money.Money{Amount: amount, Currency: cur}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Update persists the header and derived fields.
func (r *Repository) Update(ctx context.Context, inv *Invoice) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET
			status=$2, paid=$3, balance=$4, overpaid=$5, payment_status=$6,
			sent_at=$7, viewed_at=$8, closed_at=$9, updated_at=$10
		WHERE id=$1`,
		inv.ID, inv.Status, inv.Paid.Amount, inv.Balance.Amount,
		inv.Overpaid.Amount, inv.PaymentStatus,
		inv.SentAt, inv.ViewedAt, inv.ClosedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("invoices: update invoice %d: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendPayment stores one payment event against the invoice. The unique
// (invoice_id, event_id) pair makes a redelivered event a no-op at the row
// level too.
func (r *Repository) AppendPayment(ctx context.Context, invoiceID int64, evt billing.PaymentEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoice_payments (invoice_id, event_id, amount, currency, status, method, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (invoice_id, event_id) DO NOTHING`,
		invoiceID, evt.ID, evt.Amount.Amount, evt.Amount.Currency, evt.Status, evt.Method, evt.At,
	)
	if err != nil {
		return fmt.Errorf("invoices: append payment %s: %w", evt.ID, err)
	}
	return nil
}

// List returns invoice headers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, currency, status, total, paid, balance,
		       payment_status, issued_at, due_date, created_at, updated_at
		FROM invoices ORDER BY issued_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	return scanHeaders(rows)
}

// ListOverdue returns unpaid invoices whose due date has passed.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, currency, status, total, paid, balance,
		       payment_status, issued_at, due_date, created_at, updated_at
		FROM invoices
		WHERE status IN ('SENT','VIEWED','PARTIALLY_PAID') AND due_date < $1
		ORDER BY due_date LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("invoices: list overdue: %w", err)
	}
	return scanHeaders(rows)
}

func scanHeaders(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		var (
			inv                  Invoice
			total, paid, balance decimal.Decimal
		)
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Currency, &inv.Status,
			&total, &paid, &balance, &inv.PaymentStatus,
			&inv.IssuedAt, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("invoices: scan invoice: %w", err)
		}
		inv.Totals = billing.DocumentTotals{Currency: inv.Currency, Total: money.Money{Amount: total, Currency: inv.Currency}}
		inv.Paid = money.Money{Amount: paid, Currency: inv.Currency}
		inv.Balance = money.Money{Amount: balance, Currency: inv.Currency}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
