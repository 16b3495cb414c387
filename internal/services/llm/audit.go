package llm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/arbor"
)

// Mode identifies which transport served an LLM call. Only native HTTP is
// implemented today, but local/remote endpoints are both "modes" worth
// telling apart in the audit trail.
type Mode string

const (
	ModeHTTP Mode = "http"
)

// AuditLog is one row of the llm_audit_log table.
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
	QueryText string    `json:"query_text,omitempty"`
}

// AuditLogger records every LLM call for later inspection.
type AuditLogger interface {
	LogOperation(operation string, mode Mode, success bool, duration time.Duration, err error, queryText string) error
	GetLogs(limit int) ([]AuditLog, error)
	ExportToJSON(w io.Writer) error
	Close() error
}

// SQLiteAuditLogger persists audit entries to the shared document database.
type SQLiteAuditLogger struct {
	db         *sql.DB
	logQueries bool
	logger     arbor.ILogger
}

// NewSQLiteAuditLogger creates a new SQLite-based audit logger. logQueries
// controls whether prompt/query text is retained (disable to avoid storing
// potentially sensitive content at rest).
func NewSQLiteAuditLogger(db *sql.DB, logQueries bool, logger arbor.ILogger) *SQLiteAuditLogger {
	return &SQLiteAuditLogger{db: db, logQueries: logQueries, logger: logger}
}

func (l *SQLiteAuditLogger) LogOperation(operation string, mode Mode, success bool, duration time.Duration, opErr error, queryText string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	durationMs := duration.Milliseconds()

	var errorMsg string
	if opErr != nil {
		errorMsg = opErr.Error()
	}

	var query string
	if l.logQueries {
		query = queryText
	}

	l.logger.Debug().
		Str("operation", operation).
		Str("mode", string(mode)).
		Bool("success", success).
		Int64("duration_ms", durationMs).
		Msg("logging llm operation")

	_, err := l.db.Exec(`
		INSERT INTO llm_audit_log (timestamp, mode, operation, success, error, duration, query_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		timestamp, string(mode), operation, success, errorMsg, durationMs, query)
	if err != nil {
		l.logger.Error().Err(err).Str("operation", operation).Msg("failed to insert audit log entry")
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (l *SQLiteAuditLogger) GetLogs(limit int) ([]AuditLog, error) {
	rows, err := l.db.Query(`
		SELECT id, timestamp, mode, operation, success, error, duration, query_text
		FROM llm_audit_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()
	return scanAuditLogs(rows)
}

func (l *SQLiteAuditLogger) ExportToJSON(w io.Writer) error {
	rows, err := l.db.Query(`
		SELECT id, timestamp, mode, operation, success, error, duration, query_text
		FROM llm_audit_log ORDER BY timestamp ASC`)
	if err != nil {
		return fmt.Errorf("failed to query audit logs for export: %w", err)
	}
	defer rows.Close()

	logs, err := scanAuditLogs(rows)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(logs)
}

func scanAuditLogs(rows *sql.Rows) ([]AuditLog, error) {
	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var timestampStr string
		var errorMsg, queryText sql.NullString

		if err := rows.Scan(&log.ID, &timestampStr, &log.Mode, &log.Operation, &log.Success,
			&errorMsg, &log.Duration, &queryText); err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		log.Timestamp = ts
		if errorMsg.Valid {
			log.Error = errorMsg.String
		}
		if queryText.Valid {
			log.QueryText = queryText.String
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (l *SQLiteAuditLogger) Close() error { return nil }

// NullAuditLogger disables auditing entirely.
type NullAuditLogger struct{}

func NewNullAuditLogger() *NullAuditLogger { return &NullAuditLogger{} }

func (l *NullAuditLogger) LogOperation(operation string, mode Mode, success bool, duration time.Duration, err error, queryText string) error {
	return nil
}
func (l *NullAuditLogger) GetLogs(limit int) ([]AuditLog, error) { return []AuditLog{}, nil }
func (l *NullAuditLogger) ExportToJSON(w io.Writer) error        { _, err := w.Write([]byte("[]")); return err }
func (l *NullAuditLogger) Close() error                          { return nil }
