package database

// Message log queries
const (
	InsertMessageLogQuery = `
		INSERT INTO message_logs (
			id, recipient, recipient_name, body, category, status,
			sender_ref, error, transport_id, provider, metadata,
			created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectMessageLogColumns = `
		SELECT id, recipient, recipient_name, body, category, status,
			   sender_ref, error, transport_id, provider, metadata,
			   created_at, sent_at, delivered_at, read_at, expires_at
		FROM message_logs
	`

	SelectMessageLogByIDQuery = SelectMessageLogColumns + `WHERE id = ?`

	SelectMessageLogByTransportIDQuery = SelectMessageLogColumns + `
		WHERE transport_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	UpdateMessageLogQuery = `
		UPDATE message_logs
		SET status = ?,
			transport_id = COALESCE(?, transport_id),
			error = COALESCE(?, error),
			sent_at = CASE WHEN ? = 'sent' THEN ? ELSE sent_at END
		WHERE id = ?
	`

	// Receipts only move an entry forward: delivered never overwrites read.
	MarkDeliveredByTransportIDQuery = `
		UPDATE message_logs
		SET status = 'delivered', delivered_at = COALESCE(delivered_at, ?)
		WHERE transport_id = ? AND status IN ('pending', 'sent')
	`

	MarkReadByTransportIDQuery = `
		UPDATE message_logs
		SET status = 'read',
			delivered_at = COALESCE(delivered_at, ?),
			read_at = COALESCE(read_at, ?)
		WHERE transport_id = ? AND status IN ('pending', 'sent', 'delivered')
	`

	CountByStatusQuery = `
		SELECT status, COUNT(*) FROM message_logs GROUP BY status
	`

	CountByCategoryQuery = `
		SELECT category, COUNT(*) FROM message_logs GROUP BY category
	`

	DeleteExpiredMessageLogsQuery = `
		DELETE FROM message_logs WHERE expires_at < ?
	`
)
