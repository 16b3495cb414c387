package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/apperrors"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// Storage implements interfaces.DocumentStorage over a single SQLite
// database. A mutex serializes IngestDocument, SetDocumentStatus and
// ReplaceClaims; UpsertVector and AddSupersession do not take it and rely on
// the single connection set up in connection.go (db.SetMaxOpenConns(1)).
type Storage struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewStorage creates a document storage instance backed by db.
func NewStorage(db *DB, logger arbor.ILogger) *Storage {
	return &Storage{db: db, logger: logger}
}

var _ interfaces.DocumentStorage = (*Storage)(nil)

const timeLayout = time.RFC3339Nano

// IngestDocument writes a document and its sections transactionally. A
// document whose content hash already belongs to an active document is
// treated as a duplicate: tags/authority_level/document_type/title are
// updated in place and the existing id is returned.
func (s *Storage) IngestDocument(ctx context.Context, doc *models.Document, sections []*models.Section) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getDocumentByContentHashTx(ctx, s.db.db, doc.ContentHash)
	if err != nil {
		return "", false, fmt.Errorf("persistence error checking content hash: %w", err)
	}
	if existing != nil {
		tagsJSON, merr := json.Marshal(doc.Tags)
		if merr != nil {
			return "", false, fmt.Errorf("failed to marshal tags: %w", merr)
		}
		_, err := s.db.db.ExecContext(ctx, `
			UPDATE documents SET tags = ?, authority_level = ?, document_type = ?, title = ?, modified_at = ?
			WHERE id = ?`,
			string(tagsJSON), doc.AuthorityLevel, string(doc.DocumentType), doc.Title,
			time.Now().UTC().Format(timeLayout), existing.ID)
		if err != nil {
			return "", false, fmt.Errorf("persistence error updating duplicate: %w", err)
		}
		return existing.ID, false, nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return "", false, fmt.Errorf("persistence error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal tags: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.ModifiedAt = now
	if doc.Status == "" {
		doc.Status = models.DocumentStatusActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, content_hash, title, raw_content, document_type, authority_level, tags, status, superseded_by, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		doc.ID, doc.ContentHash, doc.Title, doc.RawContent, string(doc.DocumentType),
		doc.AuthorityLevel, string(tagsJSON), string(doc.Status),
		doc.CreatedAt.Format(timeLayout), doc.ModifiedAt.Format(timeLayout))
	if err != nil {
		return "", false, fmt.Errorf("persistence error inserting document: %w", err)
	}

	for _, sec := range sections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sections (id, document_id, header, level, content, byte_start, byte_end, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sec.ID, doc.ID, sec.Header, sec.Level, sec.Content, sec.ByteStart, sec.ByteEnd, sec.Ordinal)
		if err != nil {
			return "", false, fmt.Errorf("persistence error inserting section: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("persistence error committing document: %w", err)
	}

	return doc.ID, true, nil
}

func (s *Storage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, content_hash, title, raw_content, document_type, authority_level, tags, status, superseded_by, created_at, modified_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}

func (s *Storage) GetDocumentByContentHash(ctx context.Context, hash string) (*models.Document, error) {
	return s.getDocumentByContentHashTx(ctx, s.db.db, hash)
}

func (s *Storage) getDocumentByContentHashTx(ctx context.Context, q querier, hash string) (*models.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, content_hash, title, raw_content, document_type, authority_level, tags, status, superseded_by, created_at, modified_at
		FROM documents WHERE content_hash = ? AND status = 'active'`, hash)
	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var tagsJSON string
	var docType, status string
	var supersededBy sql.NullString
	var createdAt, modifiedAt string

	err := row.Scan(&doc.ID, &doc.ContentHash, &doc.Title, &doc.RawContent, &docType,
		&doc.AuthorityLevel, &tagsJSON, &status, &supersededBy, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}

	doc.DocumentType = models.DocumentType(docType)
	doc.Status = models.DocumentStatus(status)
	if supersededBy.Valid {
		doc.SupersededBy = supersededBy.String
	}
	if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	doc.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	doc.ModifiedAt, err = time.Parse(timeLayout, modifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse modified_at: %w", err)
	}
	return &doc, nil
}

func (s *Storage) ListDocuments(ctx context.Context, opts interfaces.ListOptions) ([]*models.Document, error) {
	query := `SELECT id, content_hash, title, raw_content, document_type, authority_level, tags, status, superseded_by, created_at, modified_at FROM documents WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	orderBy := "modified_at"
	if opts.OrderBy != "" {
		orderBy = opts.OrderBy
	}
	orderDir := "DESC"
	if opts.OrderDir != "" {
		orderDir = opts.OrderDir
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, orderDir)

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence error listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var tagsJSON, docType, status string
		var supersededBy sql.NullString
		var createdAt, modifiedAt string

		if err := rows.Scan(&doc.ID, &doc.ContentHash, &doc.Title, &doc.RawContent, &docType,
			&doc.AuthorityLevel, &tagsJSON, &status, &supersededBy, &createdAt, &modifiedAt); err != nil {
			return nil, err
		}
		doc.DocumentType = models.DocumentType(docType)
		doc.Status = models.DocumentStatus(status)
		if supersededBy.Valid {
			doc.SupersededBy = supersededBy.String
		}
		_ = json.Unmarshal([]byte(tagsJSON), &doc.Tags)
		doc.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		doc.ModifiedAt, _ = time.Parse(timeLayout, modifiedAt)

		if len(opts.Tags) > 0 && !hasAnyTag(doc.Tags, opts.Tags) {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func hasAnyTag(docTags, want []string) bool {
	set := make(map[string]bool, len(docTags))
	for _, t := range docTags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func (s *Storage) CountActiveDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE status = 'active'").Scan(&n)
	return n, err
}

func (s *Storage) SetDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, supersededBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, superseded_by = ?, modified_at = ? WHERE id = ?`,
		string(status), nullIfEmpty(supersededBy), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("persistence error updating status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Storage) GetSections(ctx context.Context, documentID string) ([]*models.Section, error) {
	return s.querySections(ctx, "WHERE document_id = ? ORDER BY ordinal ASC", documentID)
}

func (s *Storage) GetSection(ctx context.Context, id string) (*models.Section, error) {
	secs, err := s.querySections(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(secs) == 0 {
		return nil, sql.ErrNoRows
	}
	return secs[0], nil
}

func (s *Storage) GetSectionsByDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Section, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(documentIDs)
	return s.querySections(ctx, fmt.Sprintf("WHERE document_id IN (%s) ORDER BY document_id, ordinal ASC", placeholders), args...)
}

func (s *Storage) querySections(ctx context.Context, where string, args ...interface{}) ([]*models.Section, error) {
	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, document_id, header, level, content, byte_start, byte_end, ordinal FROM sections %s", where), args...)
	if err != nil {
		return nil, fmt.Errorf("persistence error querying sections: %w", err)
	}
	defer rows.Close()

	var out []*models.Section
	for rows.Next() {
		var sec models.Section
		if err := rows.Scan(&sec.ID, &sec.DocumentID, &sec.Header, &sec.Level, &sec.Content,
			&sec.ByteStart, &sec.ByteEnd, &sec.Ordinal); err != nil {
			return nil, err
		}
		out = append(out, &sec)
	}
	return out, rows.Err()
}

func (s *Storage) ReplaceClaims(ctx context.Context, sectionID string, claims []*models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("persistence error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM claims WHERE section_id = ?", sectionID); err != nil {
		return fmt.Errorf("persistence error clearing claims: %w", err)
	}

	for _, c := range claims {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO claims (id, document_id, section_id, subject, predicate, object, qualifier, confidence, source_span_start, source_span_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.SectionID, c.Subject, c.Predicate, c.Object, c.Qualifier,
			c.Confidence, c.SourceSpanStart, c.SourceSpanEnd); err != nil {
			return fmt.Errorf("persistence error inserting claim: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Storage) GetClaimsBySection(ctx context.Context, sectionID string) ([]*models.Claim, error) {
	return s.queryClaims(ctx, "WHERE section_id = ?", sectionID)
}

func (s *Storage) GetClaimsByDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Claim, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(documentIDs)
	return s.queryClaims(ctx, fmt.Sprintf("WHERE document_id IN (%s)", placeholders), args...)
}

func (s *Storage) queryClaims(ctx context.Context, where string, args ...interface{}) ([]*models.Claim, error) {
	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, document_id, section_id, subject, predicate, object, qualifier, confidence, source_span_start, source_span_end FROM claims %s", where), args...)
	if err != nil {
		return nil, fmt.Errorf("persistence error querying claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Claim
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SectionID, &c.Subject, &c.Predicate, &c.Object,
			&c.Qualifier, &c.Confidence, &c.SourceSpanStart, &c.SourceSpanEnd); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Storage) UpsertVector(ctx context.Context, v *models.Vector) error {
	blob := encodeVector(v.Values)
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO vectors (owner_kind, owner_id, dim, values) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_kind, owner_id) DO UPDATE SET dim = excluded.dim, values = excluded.values`,
		string(v.OwnerKind), v.OwnerID, v.Dim, blob)
	if err != nil {
		return fmt.Errorf("persistence error upserting vector: %w", err)
	}
	return nil
}

func (s *Storage) GetVector(ctx context.Context, kind models.VectorOwnerKind, ownerID string) (*models.Vector, error) {
	var dim int
	var blob []byte
	err := s.db.db.QueryRowContext(ctx,
		"SELECT dim, values FROM vectors WHERE owner_kind = ? AND owner_id = ?", string(kind), ownerID).
		Scan(&dim, &blob)
	if err != nil {
		return nil, err
	}
	return &models.Vector{OwnerKind: kind, OwnerID: ownerID, Dim: dim, Values: decodeVector(blob)}, nil
}

func (s *Storage) GetVectorsByOwnerIDs(ctx context.Context, kind models.VectorOwnerKind, ownerIDs []string) (map[string]*models.Vector, error) {
	out := make(map[string]*models.Vector)
	if len(ownerIDs) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ownerIDs)
	args = append([]interface{}{string(kind)}, args...)

	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT owner_id, dim, values FROM vectors WHERE owner_kind = ? AND owner_id IN (%s)", placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("persistence error querying vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID string
		var dim int
		var blob []byte
		if err := rows.Scan(&ownerID, &dim, &blob); err != nil {
			return nil, err
		}
		out[ownerID] = &models.Vector{OwnerKind: kind, OwnerID: ownerID, Dim: dim, Values: decodeVector(blob)}
	}
	return out, rows.Err()
}

// SearchSimilar scans candidate vectors and scores them by cosine
// similarity in Go (DESIGN.md "Persistence Layer": brute-force, not a
// native vector index, since the cgo-free driver has no such extension).
func (s *Storage) SearchSimilar(ctx context.Context, kind models.VectorOwnerKind, query []float32, topK int, candidateOwnerIDs []string) ([]interfaces.VectorSearchResult, error) {
	var rows *sql.Rows
	var err error

	if len(candidateOwnerIDs) > 0 {
		placeholders, args := inClause(candidateOwnerIDs)
		args = append([]interface{}{string(kind)}, args...)
		rows, err = s.db.db.QueryContext(ctx, fmt.Sprintf(
			"SELECT owner_id, values FROM vectors WHERE owner_kind = ? AND owner_id IN (%s)", placeholders), args...)
	} else {
		rows, err = s.db.db.QueryContext(ctx, "SELECT owner_id, values FROM vectors WHERE owner_kind = ?", string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("persistence error scanning vectors: %w", err)
	}
	defer rows.Close()

	var results []interfaces.VectorSearchResult
	for rows.Next() {
		var ownerID string
		var blob []byte
		if err := rows.Scan(&ownerID, &blob); err != nil {
			return nil, err
		}
		sim := cosineSimilarity(query, decodeVector(blob))
		results = append(results, interfaces.VectorSearchResult{OwnerKind: kind, OwnerID: ownerID, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) AddSupersession(ctx context.Context, sup *models.Supersession) error {
	if sup.ID == "" {
		sup.ID = common.NewID()
	}
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO supersessions (id, old_document_id, new_document_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sup.ID, sup.OldDocumentID, sup.NewDocumentID, sup.Reason, sup.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("persistence error inserting supersession: %w", err)
	}
	return nil
}

func (s *Storage) GetSupersessionsByOldDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Supersession, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(documentIDs)
	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, old_document_id, new_document_id, reason, created_at FROM supersessions WHERE old_document_id IN (%s)", placeholders),
		args...)
	if err != nil {
		return nil, fmt.Errorf("persistence error querying supersessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Supersession
	for rows.Next() {
		var sup models.Supersession
		var createdAt string
		if err := rows.Scan(&sup.ID, &sup.OldDocumentID, &sup.NewDocumentID, &sup.Reason, &createdAt); err != nil {
			return nil, err
		}
		sup.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("persistence error parsing supersession timestamp: %w", err)
		}
		out = append(out, &sup)
	}
	return out, rows.Err()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func inClause(ids []string) (string, []interface{}) {
	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
