package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"diffsync-server/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id       TEXT PRIMARY KEY,
	content  JSONB NOT NULL,
	revision BIGINT NOT NULL DEFAULT 1
);

ALTER TABLE documents ADD COLUMN IF NOT EXISTS revision BIGINT NOT NULL DEFAULT 1;

CREATE TABLE IF NOT EXISTS shadow_documents (
	document_id    TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	server_version BIGINT NOT NULL,
	client_version BIGINT NOT NULL,
	content        JSONB NOT NULL,
	PRIMARY KEY (document_id, client_id)
);

CREATE TABLE IF NOT EXISTS backup_shadow_documents (
	document_id    TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	version        BIGINT NOT NULL,
	server_version BIGINT NOT NULL,
	client_version BIGINT NOT NULL,
	content        JSONB NOT NULL,
	PRIMARY KEY (document_id, client_id)
);

CREATE TABLE IF NOT EXISTS pending_edits (
	seq            BIGSERIAL PRIMARY KEY,
	document_id    TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	server_version BIGINT NOT NULL,
	client_version BIGINT NOT NULL,
	checksum       TEXT NOT NULL,
	diffs          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS pending_edits_pair_idx ON pending_edits (document_id, client_id, seq);
`

// PostgresStore keeps values in PostgreSQL. Content and diffs are stored as
// JSONB.
type PostgresStore[T, D any] struct {
	pool *pgxpool.Pool
}

func NewPostgresStore[T, D any](pool *pgxpool.Pool) *PostgresStore[T, D] {
	return &PostgresStore[T, D]{pool: pool}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PostgresStore[T, D]) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore[T, D]) GetDocument(ctx context.Context, id string) (*domain.Document[T], error) {
	var raw string
	var revision int64
	err := s.pool.QueryRow(ctx,
		`SELECT content::text, revision FROM documents WHERE id = $1`, id).Scan(&raw, &revision)
	if err != nil {
		return nil, notFound(err, "failed to get document")
	}

	doc := &domain.Document[T]{ID: id, Revision: strconv.FormatInt(revision, 10)}
	if err := json.Unmarshal([]byte(raw), &doc.Content); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore[T, D]) SaveDocument(ctx context.Context, doc *domain.Document[T]) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, content) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING`,
		doc.ID, string(content))
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentExists
	}
	return nil
}

func (s *PostgresStore[T, D]) UpdateDocument(ctx context.Context, doc *domain.Document[T]) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if doc.Revision == "" {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO documents (id, content) VALUES ($1, $2::jsonb)
			 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, revision = documents.revision + 1`,
			doc.ID, string(content))
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return nil
	}

	revision, err := strconv.ParseInt(doc.Revision, 10, 64)
	if err != nil {
		return ErrConflict
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET content = $2::jsonb, revision = revision + 1
		 WHERE id = $1 AND revision = $3`,
		doc.ID, string(content), revision)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore[T, D]) GetShadowDocument(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error) {
	shadow := &domain.ShadowDocument[T]{
		Document: domain.ClientDocument[T]{ID: documentID, ClientID: clientID},
	}

	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT server_version, client_version, content::text FROM shadow_documents
		 WHERE document_id = $1 AND client_id = $2`,
		documentID, clientID).Scan(&shadow.ServerVersion, &shadow.ClientVersion, &raw)
	if err != nil {
		return nil, notFound(err, "failed to get shadow")
	}

	if err := json.Unmarshal([]byte(raw), &shadow.Document.Content); err != nil {
		return nil, fmt.Errorf("failed to decode shadow: %w", err)
	}
	return shadow, nil
}

func (s *PostgresStore[T, D]) SaveShadowDocument(ctx context.Context, shadow *domain.ShadowDocument[T]) error {
	content, err := json.Marshal(shadow.Document.Content)
	if err != nil {
		return fmt.Errorf("failed to encode shadow: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO shadow_documents (document_id, client_id, server_version, client_version, content)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (document_id, client_id) DO UPDATE SET
		   server_version = EXCLUDED.server_version,
		   client_version = EXCLUDED.client_version,
		   content = EXCLUDED.content`,
		shadow.DocumentID(), shadow.ClientID(), shadow.ServerVersion, shadow.ClientVersion, string(content))
	if err != nil {
		return fmt.Errorf("failed to save shadow: %w", err)
	}
	return nil
}

func (s *PostgresStore[T, D]) GetBackupShadowDocument(ctx context.Context, documentID, clientID string) (*domain.BackupShadowDocument[T], error) {
	backup := &domain.BackupShadowDocument[T]{
		Shadow: domain.ShadowDocument[T]{
			Document: domain.ClientDocument[T]{ID: documentID, ClientID: clientID},
		},
	}

	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT version, server_version, client_version, content::text FROM backup_shadow_documents
		 WHERE document_id = $1 AND client_id = $2`,
		documentID, clientID).Scan(&backup.Version, &backup.Shadow.ServerVersion, &backup.Shadow.ClientVersion, &raw)
	if err != nil {
		return nil, notFound(err, "failed to get backup shadow")
	}

	if err := json.Unmarshal([]byte(raw), &backup.Shadow.Document.Content); err != nil {
		return nil, fmt.Errorf("failed to decode backup shadow: %w", err)
	}
	return backup, nil
}

func (s *PostgresStore[T, D]) SaveBackupShadowDocument(ctx context.Context, backup *domain.BackupShadowDocument[T]) error {
	content, err := json.Marshal(backup.Shadow.Document.Content)
	if err != nil {
		return fmt.Errorf("failed to encode backup shadow: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO backup_shadow_documents (document_id, client_id, version, server_version, client_version, content)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (document_id, client_id) DO UPDATE SET
		   version = EXCLUDED.version,
		   server_version = EXCLUDED.server_version,
		   client_version = EXCLUDED.client_version,
		   content = EXCLUDED.content`,
		backup.Shadow.DocumentID(), backup.Shadow.ClientID(), backup.Version,
		backup.Shadow.ServerVersion, backup.Shadow.ClientVersion, string(content))
	if err != nil {
		return fmt.Errorf("failed to save backup shadow: %w", err)
	}
	return nil
}

func (s *PostgresStore[T, D]) SaveEdits(ctx context.Context, edit *domain.Edit[D]) error {
	diffs, err := json.Marshal(edit.Diffs)
	if err != nil {
		return fmt.Errorf("failed to encode edit: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_edits (document_id, client_id, server_version, client_version, checksum, diffs)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		edit.DocumentID, edit.ClientID, edit.ServerVersion, edit.ClientVersion, edit.Checksum, string(diffs))
	if err != nil {
		return fmt.Errorf("failed to save edit: %w", err)
	}
	return nil
}

func (s *PostgresStore[T, D]) GetEdits(ctx context.Context, documentID, clientID string) ([]*domain.Edit[D], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT server_version, client_version, checksum, diffs::text FROM pending_edits
		 WHERE document_id = $1 AND client_id = $2 ORDER BY seq`,
		documentID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edits: %w", err)
	}
	defer rows.Close()

	edits := []*domain.Edit[D]{}
	for rows.Next() {
		edit := &domain.Edit[D]{DocumentID: documentID, ClientID: clientID}
		var diffs string
		if err := rows.Scan(&edit.ServerVersion, &edit.ClientVersion, &edit.Checksum, &diffs); err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		if err := json.Unmarshal([]byte(diffs), &edit.Diffs); err != nil {
			return nil, fmt.Errorf("failed to decode edit: %w", err)
		}
		edits = append(edits, edit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get edits: %w", err)
	}
	return edits, nil
}

func (s *PostgresStore[T, D]) RemoveEdit(ctx context.Context, edit *domain.Edit[D]) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_edits
		 WHERE document_id = $1 AND client_id = $2 AND server_version = $3 AND client_version = $4`,
		edit.DocumentID, edit.ClientID, edit.ServerVersion, edit.ClientVersion)
	if err != nil {
		return fmt.Errorf("failed to remove edit: %w", err)
	}
	return nil
}

func (s *PostgresStore[T, D]) Close() error {
	s.pool.Close()
	return nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
