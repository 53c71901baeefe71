package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `
	id, owner_id, total_cents, status, payment_channel, payment_reference, payment_url,
	idempotency_key, shipping, cancellation_reason, cancellation_actor, cancelled_at,
	delivered_at, needs_review, review_reason, notification_failures, created_at, updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order, its line items and its first history entry in
// one transaction. The unique constraint on idempotency_key settles races
// between concurrent duplicates.
func (r *Repository) Create(ctx context.Context, order domain.Order) (*domain.Order, bool, error) {
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return nil, false, fmt.Errorf("encode shipping: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO orders (
			id, owner_id, total_cents, status, payment_channel, payment_reference, payment_url,
			idempotency_key, shipping, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`

	var id string
	err = tx.QueryRow(ctx, query,
		order.ID,
		order.OwnerID,
		order.TotalCents,
		order.Status,
		order.Channel,
		nullable(order.PaymentReference),
		nullable(order.PaymentURL),
		nullable(order.IdempotencyKey),
		shipping,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, err := r.GetByIdempotencyKey(ctx, order.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("load order for idempotency key: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, title, quantity, unit_price_cents, image_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, i, item.ProductID, item.Title, item.Quantity, item.UnitPriceCents, item.ImageRef,
		)
	}
	for _, entry := range order.History {
		queueHistory(batch, order.ID, entry)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, false, fmt.Errorf("insert order children: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit order: %w", err)
	}

	stored := order
	return &stored, true, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return loadOne(ctx, r.pool, `WHERE id = $1`, id)
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return loadOne(ctx, r.pool, `WHERE idempotency_key = $1`, key)
}

func (r *Repository) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return loadOne(ctx, r.pool, `WHERE payment_reference = $1`, reference)
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	filter = filter.Normalize()

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (filter.Page - 1) * filter.PageSize

	return loadMany(ctx, r.pool, `
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text = '' OR owner_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		statusFilter, filter.OwnerID, filter.PageSize, offset,
	)
}

// Transition locks the order row, evaluates decide against the locked state
// and writes status, history and terminal metadata in the same transaction.
func (r *Repository) Transition(ctx context.Context, id string, decide ports.DecideFunc) (*domain.Order, domain.Decision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.Decision{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := loadOne(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, domain.Decision{}, err
	}

	decision, err := decide(*order)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	if decision.NoOp {
		return order, decision, nil
	}

	order.Apply(decision)

	var cancelReason, cancelActor *string
	var cancelledAt *time.Time
	if order.Cancellation != nil {
		cancelReason = &order.Cancellation.Reason
		cancelActor = &order.Cancellation.Actor
		cancelledAt = &order.Cancellation.At
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE orders
		SET status = $2, updated_at = $3, delivered_at = $4,
		    cancellation_reason = $5, cancellation_actor = $6, cancelled_at = $7
		WHERE id = $1`,
		id, order.Status, order.UpdatedAt, order.DeliveredAt, cancelReason, cancelActor, cancelledAt,
	)
	queueHistory(batch, id, decision.Entry)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, domain.Decision{}, fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Decision{}, fmt.Errorf("commit transition: %w", err)
	}

	return order, decision, nil
}

func (r *Repository) FlagForReview(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE orders
		SET needs_review = TRUE, review_reason = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("flag order for review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) RecordNotificationFailure(ctx context.Context, id string, failure domain.NotificationFailure) error {
	payload, err := json.Marshal([]domain.NotificationFailure{failure})
	if err != nil {
		return fmt.Errorf("encode notification failure: %w", err)
	}

	query := `
		UPDATE orders
		SET notification_failures = notification_failures || $2::jsonb
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, payload)
	if err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 500
	}
	return loadMany(ctx, r.pool, `
		WHERE status IN ($1, $2)
		  AND cancelled_at IS NULL
		  AND created_at < $3
		ORDER BY created_at
		LIMIT $4`,
		domain.StatusPending, domain.StatusAwaitingManualConfirmation, cutoff, limit,
	)
}

func (r *Repository) Summarize(ctx context.Context) ([]ports.StatusSummary, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(total_cents), 0)::bigint
		FROM orders
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("summarize orders: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[domain.OrderStatus]ports.StatusSummary)
	for rows.Next() {
		var s ports.StatusSummary
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalCents); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		byStatus[s.Status] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}

	summaries := make([]ports.StatusSummary, 0, len(byStatus))
	for _, status := range domain.AllStatuses {
		if s, ok := byStatus[status]; ok {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

func queueHistory(batch *pgx.Batch, orderID string, entry domain.HistoryEntry) {
	batch.Queue(`
		INSERT INTO order_status_history (order_id, from_status, to_status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, nullable(string(entry.From)), entry.To, entry.Actor, entry.Reason, entry.Timestamp,
	)
}

func loadOne(ctx context.Context, q querier, where string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{*order}
	if err := loadChildren(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func loadMany(ctx context.Context, q querier, clause string, args ...any) ([]domain.Order, error) {
	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM orders `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	if err := loadChildren(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadChildren fills line items and history for the given orders with one
// query per child table.
func loadChildren(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []domain.LineItem{}
		orders[i].History = []domain.HistoryEntry{}
	}

	itemRows, err := q.Query(ctx, `
		SELECT order_id, product_id, title, quantity, unit_price_cents, image_ref
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	for itemRows.Next() {
		var orderID string
		var item domain.LineItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Title, &item.Quantity, &item.UnitPriceCents, &item.ImageRef); err != nil {
			itemRows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}

	historyRows, err := q.Query(ctx, `
		SELECT order_id, COALESCE(from_status, ''), to_status, actor, reason, created_at
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, ids)
	if err != nil {
		return fmt.Errorf("query order history: %w", err)
	}
	defer historyRows.Close()
	for historyRows.Next() {
		var orderID string
		var entry domain.HistoryEntry
		if err := historyRows.Scan(&orderID, &entry.From, &entry.To, &entry.Actor, &entry.Reason, &entry.Timestamp); err != nil {
			return fmt.Errorf("scan history entry: %w", err)
		}
		i := index[orderID]
		orders[i].History = append(orders[i].History, entry)
	}
	if err := historyRows.Err(); err != nil {
		return fmt.Errorf("iterate order history: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order                     domain.Order
		paymentRef, paymentURL    *string
		idempotencyKey            *string
		shipping, failures        []byte
		cancelReason, cancelActor *string
		cancelledAt, deliveredAt  *time.Time
		reviewReason              *string
	)

	err := row.Scan(
		&order.ID,
		&order.OwnerID,
		&order.TotalCents,
		&order.Status,
		&order.Channel,
		&paymentRef,
		&paymentURL,
		&idempotencyKey,
		&shipping,
		&cancelReason,
		&cancelActor,
		&cancelledAt,
		&deliveredAt,
		&order.NeedsReview,
		&reviewReason,
		&failures,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentReference = deref(paymentRef)
	order.PaymentURL = deref(paymentURL)
	order.IdempotencyKey = deref(idempotencyKey)
	order.ReviewReason = deref(reviewReason)
	order.DeliveredAt = deliveredAt
	if cancelledAt != nil {
		order.Cancellation = &domain.Cancellation{
			Reason: deref(cancelReason),
			Actor:  deref(cancelActor),
			At:     *cancelledAt,
		}
	}

	if err := json.Unmarshal(shipping, &order.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &order.Notifications); err != nil {
			return nil, fmt.Errorf("decode notification failures: %w", err)
		}
	}

	return &order, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
