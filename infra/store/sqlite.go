package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
)

// SQLiteStore backs the webhook and delivery stores with a SQLite database
// so subscriptions and delivery history survive restarts. Records are kept
// as JSON blobs next to the columns queries filter on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS webhooks (
        id TEXT PRIMARY KEY,
        company_id TEXT,
        created_at INTEGER,
        secret TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS deliveries (
        id TEXT PRIMARY KEY,
        webhook_id TEXT,
        status TEXT,
        created_at INTEGER,
        record TEXT
    );
    CREATE INDEX IF NOT EXISTS deliveries_webhook ON deliveries (webhook_id, created_at);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Webhooks returns the WebhookStore view.
func (s *SQLiteStore) Webhooks() webhook.WebhookStore { return &webhookStore{db: s.db} }

// Deliveries returns the DeliveryStore view.
func (s *SQLiteStore) Deliveries() webhook.DeliveryStore { return &deliveryStore{db: s.db} }

type webhookStore struct {
	db *sql.DB
}

// Save upserts the webhook. The secret is stored in its own column because
// the JSON encoding of the record deliberately omits it.
func (s *webhookStore) Save(ctx context.Context, w model.Webhook) error {
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, company_id, created_at, secret, record) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET company_id=excluded.company_id, secret=excluded.secret, record=excluded.record`,
		w.ID, w.CompanyID, w.CreatedAt.Unix(), w.Secret, string(b))
	return err
}

func (s *webhookStore) Get(ctx context.Context, id string) (model.Webhook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT secret, record FROM webhooks WHERE id = ?`, id)
	var secret, data string
	if err := row.Scan(&secret, &data); err != nil {
		if err == sql.ErrNoRows {
			return model.Webhook{}, webhook.ErrWebhookNotFound
		}
		return model.Webhook{}, err
	}
	var w model.Webhook
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return model.Webhook{}, fmt.Errorf("unmarshal webhook %s: %w", id, err)
	}
	w.Secret = secret
	return w, nil
}

func (s *webhookStore) List(ctx context.Context, companyID string) ([]model.Webhook, error) {
	query := `SELECT secret, record FROM webhooks`
	var args []any
	if companyID != "" {
		query += ` WHERE company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Webhook
	for rows.Next() {
		var secret, data string
		if err := rows.Scan(&secret, &data); err != nil {
			return nil, err
		}
		var w model.Webhook
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, fmt.Errorf("unmarshal webhook: %w", err)
		}
		w.Secret = secret
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *webhookStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

type deliveryStore struct {
	db *sql.DB
}

func (s *deliveryStore) Save(ctx context.Context, d model.Delivery) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, webhook_id, status, created_at, record) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET status=excluded.status, record=excluded.record`,
		d.ID, d.WebhookID, string(d.Status), d.CreatedAt.Unix(), string(b))
	return err
}

func (s *deliveryStore) Get(ctx context.Context, id string) (model.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM deliveries WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return model.Delivery{}, webhook.ErrDeliveryNotFound
		}
		return model.Delivery{}, err
	}
	var d model.Delivery
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return model.Delivery{}, fmt.Errorf("unmarshal delivery %s: %w", id, err)
	}
	return d, nil
}

func (s *deliveryStore) List(ctx context.Context, webhookID string, f webhook.DeliveryFilter) ([]model.Delivery, error) {
	query := `SELECT record FROM deliveries WHERE webhook_id = ?`
	args := []any{webhookID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.Until.Unix())
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Delivery
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d model.Delivery
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("unmarshal delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
