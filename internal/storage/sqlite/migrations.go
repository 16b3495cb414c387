package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

// migrate runs every schema migration exactly once, tracked in
// schema_migrations, each inside its own transaction.
func (s *DB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "documents_sections", up: migrateV1},
		{version: 2, name: "claims", up: migrateV2},
		{version: 3, name: "vectors", up: migrateV3},
		{version: 4, name: "supersessions", up: migrateV4},
		{version: 5, name: "llm_audit_log", up: migrateV5},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *DB) createMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	return err
}

func (s *DB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name); err != nil {
		return err
	}

	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE documents (
			id              TEXT PRIMARY KEY,
			content_hash    TEXT NOT NULL,
			title           TEXT NOT NULL,
			raw_content     TEXT NOT NULL,
			document_type   TEXT NOT NULL,
			authority_level INTEGER NOT NULL DEFAULT 5,
			tags            TEXT NOT NULL DEFAULT '[]',
			status          TEXT NOT NULL DEFAULT 'active',
			superseded_by   TEXT,
			created_at      TEXT NOT NULL,
			modified_at     TEXT NOT NULL
		);
		CREATE UNIQUE INDEX idx_documents_content_hash_active
			ON documents(content_hash) WHERE status = 'active';
		CREATE INDEX idx_documents_status ON documents(status);

		CREATE TABLE sections (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			header      TEXT NOT NULL,
			level       INTEGER NOT NULL,
			content     TEXT NOT NULL,
			byte_start  INTEGER NOT NULL,
			byte_end    INTEGER NOT NULL,
			ordinal     INTEGER NOT NULL
		);
		CREATE INDEX idx_sections_document_id ON sections(document_id);
	`)
	return err
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE claims (
			id                 TEXT PRIMARY KEY,
			document_id        TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			section_id         TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
			subject            TEXT NOT NULL,
			predicate          TEXT NOT NULL,
			object             TEXT NOT NULL,
			qualifier          TEXT NOT NULL DEFAULT '',
			confidence         REAL NOT NULL,
			source_span_start  INTEGER NOT NULL,
			source_span_end    INTEGER NOT NULL
		);
		CREATE INDEX idx_claims_section_id ON claims(section_id);
		CREATE INDEX idx_claims_document_id ON claims(document_id);
	`)
	return err
}

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE vectors (
			owner_kind TEXT NOT NULL,
			owner_id   TEXT NOT NULL,
			dim        INTEGER NOT NULL,
			values     BLOB NOT NULL,
			PRIMARY KEY (owner_kind, owner_id)
		);
	`)
	return err
}

func migrateV4(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE supersessions (
			id               TEXT PRIMARY KEY,
			old_document_id  TEXT NOT NULL,
			new_document_id  TEXT NOT NULL,
			reason           TEXT NOT NULL,
			created_at       TEXT NOT NULL
		);
		CREATE INDEX idx_supersessions_old ON supersessions(old_document_id);
	`)
	return err
}

func migrateV5(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE llm_audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   TEXT NOT NULL,
			mode        TEXT NOT NULL,
			operation   TEXT NOT NULL,
			success     INTEGER NOT NULL,
			error       TEXT,
			duration    INTEGER NOT NULL,
			query_text  TEXT
		);
		CREATE INDEX idx_llm_audit_log_timestamp ON llm_audit_log(timestamp);
	`)
	return err
}
