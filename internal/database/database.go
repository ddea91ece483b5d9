package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"swimnotify/internal/migrations"
	"swimnotify/internal/models"
	"swimnotify/internal/security"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Database is the sqlite-backed message log store
type Database struct {
	db        *sql.DB
	encryptor *encryptor
	now       func() time.Time
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	scripts, err := migrations.All()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	for _, script := range scripts {
		if _, err := db.Exec(script); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor, now: time.Now}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Create inserts a new log entry. Empty ID, CreatedAt, ExpiresAt and Status
// are filled in; the stored ID is returned.
func (d *Database) Create(ctx context.Context, entry *models.MessageLog) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = d.now().UTC()
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.CreatedAt.Add(models.MessageLogTTL)
	}
	if entry.Status == "" {
		entry.Status = models.DeliveryStatusPending
	}

	body, err := d.encryptor.EncryptIfEnabled(entry.Body)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt body: %w", err)
	}
	name, err := d.encryptor.EncryptIfEnabled(entry.RecipientName)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt recipient name: %w", err)
	}

	var metadata *string
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata: %w", err)
		}
		s := string(raw)
		metadata = &s
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, InsertMessageLogQuery,
			entry.ID,
			entry.Recipient,
			nullString(name),
			body,
			string(entry.Category),
			string(entry.Status),
			nullString(entry.SenderRef),
			entry.Error,
			nullString(entry.TransportID),
			entry.Provider,
			metadata,
			entry.CreatedAt.UTC(),
			entry.ExpiresAt.UTC(),
		)
		return execErr
	}, "insert message log")
	if err != nil {
		return "", fmt.Errorf("failed to save message log: %w", err)
	}

	return entry.ID, nil
}

// Update applies a partial update to the entry with the given ID
func (d *Database) Update(ctx context.Context, id string, update models.MessageLogUpdate) error {
	at := update.At
	if at.IsZero() {
		at = d.now()
	}

	var rows int64
	err := retryableDBOperationNoReturn(ctx, func() error {
		result, execErr := d.db.ExecContext(ctx, UpdateMessageLogQuery,
			string(update.Status),
			update.TransportID,
			update.Error,
			string(update.Status),
			at.UTC(),
			id,
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	}, "update message log")
	if err != nil {
		return fmt.Errorf("failed to update message log: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message log found with ID: %s", id)
	}
	return nil
}

// UpdateStatusByTransportID records a delivery receipt. It reports whether a
// row changed; receipts that would move an entry backwards change nothing.
func (d *Database) UpdateStatusByTransportID(ctx context.Context, transportID string, status models.DeliveryStatus, at time.Time) (bool, error) {
	if transportID == "" {
		return false, fmt.Errorf("transport id is required")
	}
	at = at.UTC()

	var (
		result sql.Result
		err    error
	)
	switch status {
	case models.DeliveryStatusDelivered:
		result, err = d.db.ExecContext(ctx, MarkDeliveredByTransportIDQuery, at, transportID)
	case models.DeliveryStatusRead:
		result, err = d.db.ExecContext(ctx, MarkReadByTransportIDQuery, at, at, transportID)
	default:
		return false, fmt.Errorf("unsupported receipt status: %s", status)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// Get returns the entry with the given ID, or nil if none exists
func (d *Database) Get(ctx context.Context, id string) (*models.MessageLog, error) {
	return d.scanOne(d.db.QueryRowContext(ctx, SelectMessageLogByIDQuery, id))
}

// FindByTransportID returns the newest entry carrying the transport id, or nil
func (d *Database) FindByTransportID(ctx context.Context, transportID string) (*models.MessageLog, error) {
	return d.scanOne(d.db.QueryRowContext(ctx, SelectMessageLogByTransportIDQuery, transportID))
}

func (d *Database) scanOne(row *sql.Row) (*models.MessageLog, error) {
	var (
		entry                               models.MessageLog
		name, senderRef, errText, transport sql.NullString
		metadata                            sql.NullString
		category, status                    string
		sentAt, deliveredAt, readAt         sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.Recipient,
		&name,
		&entry.Body,
		&category,
		&status,
		&senderRef,
		&errText,
		&transport,
		&entry.Provider,
		&metadata,
		&entry.CreatedAt,
		&sentAt,
		&deliveredAt,
		&readAt,
		&entry.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message log: %w", err)
	}

	entry.Category = models.Category(category)
	entry.Status = models.DeliveryStatus(status)
	entry.SenderRef = senderRef.String
	entry.TransportID = transport.String
	if errText.Valid {
		entry.Error = &errText.String
	}
	entry.SentAt = timePtr(sentAt)
	entry.DeliveredAt = timePtr(deliveredAt)
	entry.ReadAt = timePtr(readAt)

	if entry.Body, err = d.encryptor.DecryptIfEnabled(entry.Body); err != nil {
		return nil, fmt.Errorf("failed to decrypt body: %w", err)
	}
	if entry.RecipientName, err = d.encryptor.DecryptIfEnabled(name.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient name: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &entry, nil
}

// Stats aggregates entry counts by status and category
func (d *Database) Stats(ctx context.Context) (*models.MessageStats, error) {
	stats := &models.MessageStats{
		ByStatus:   make(map[models.DeliveryStatus]int),
		ByCategory: make(map[models.Category]int),
	}

	if err := d.countInto(ctx, CountByStatusQuery, func(key string, n int) {
		stats.ByStatus[models.DeliveryStatus(key)] = n
		stats.Total += n
	}); err != nil {
		return nil, err
	}
	if err := d.countInto(ctx, CountByCategoryQuery, func(key string, n int) {
		stats.ByCategory[models.Category(key)] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (d *Database) countInto(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count message logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan count: %w", err)
		}
		fn(key, n)
	}
	return rows.Err()
}

// PurgeExpired deletes entries whose expiry is before now and returns how many
func (d *Database) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, DeleteExpiredMessageLogsQuery, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge message logs: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
