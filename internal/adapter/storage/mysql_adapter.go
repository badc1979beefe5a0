package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const mysqlErrDuplicateEntry = 1062

//go:embed schema.sql
var schemaSQL string

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables used by the adapter if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, session_id, customer_email, currency, amount_total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.SessionID, order.CustomerEmail, order.Currency,
		order.AmountTotalMinor, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return port.ErrDuplicateOrder
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, variant_id, title, quantity, unit_amount, total_amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, line.VariantID, line.Title, line.Quantity, line.UnitAmountMinor, line.TotalAmountMinor,
		)
		if err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, order_number, session_id, customer_email, currency, amount_total, status, created_at, updated_at
		FROM orders WHERE session_id = ?`, sessionID,
	).Scan(&o.ID, &o.OrderNumber, &o.SessionID, &o.CustomerEmail, &o.Currency,
		&o.AmountTotalMinor, &o.Status, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT variant_id, title, quantity, unit_amount, total_amount
		FROM order_items WHERE order_id = ? ORDER BY id`, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.VariantID, &line.Title, &line.Quantity, &line.UnitAmountMinor, &line.TotalAmountMinor); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}

	return &o, nil
}

func (m *MySQLAdapter) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	var (
		v         domain.Variant
		options   sql.NullString
		salePrice decimal.NullDecimal
		image     string
		prodImage string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT v.id, v.product_id, p.slug, p.title, v.options, v.price, v.sale_price,
		       v.on_sale, v.stock, v.image_url, p.image_url
		FROM variants v JOIN products p ON p.id = v.product_id
		WHERE v.id = ?`, variantID,
	).Scan(&v.ID, &v.ProductID, &v.ProductSlug, &v.Title, &options, &v.Price, &salePrice,
		&v.OnSale, &v.Stock, &image, &prodImage)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query variant")
	}

	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &v.OptionLabels); err != nil {
			return nil, errors.Wrapf(err, "decode options of variant %s", variantID)
		}
	}

	v.SalePrice = v.Price
	if salePrice.Valid {
		v.SalePrice = salePrice.Decimal
	} else {
		v.OnSale = false
	}

	v.ImageURL = image
	if v.ImageURL == "" {
		v.ImageURL = prodImage
	}
	return &v, nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
