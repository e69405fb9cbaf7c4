package repository

import (
	"context"
	"fmt"
	"net/http"

	"diffsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// CouchStore keeps each value in its own CouchDB document. Document ids are
// prefixed with the value kind, the way the rest of the database is keyed.
type CouchStore[T, D any] struct {
	db *kivik.DB
}

type couchDoc[V any] struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	Value   V      `json:"value"`
}

func NewCouchStore[T, D any](client *kivik.Client, dbName string) *CouchStore[T, D] {
	return &CouchStore[T, D]{
		db: client.DB(dbName),
	}
}

func documentDocID(id string) string {
	return fmt.Sprintf("document:%s", id)
}

func shadowDocID(documentID, clientID string) string {
	return fmt.Sprintf("shadow:%s", pairKey(documentID, clientID))
}

func backupDocID(documentID, clientID string) string {
	return fmt.Sprintf("backup:%s", pairKey(documentID, clientID))
}

func editsDocID(documentID, clientID string) string {
	return fmt.Sprintf("edits:%s", pairKey(documentID, clientID))
}

func (s *CouchStore[T, D]) GetDocument(ctx context.Context, id string) (*domain.Document[T], error) {
	var doc couchDoc[domain.Document[T]]
	if err := s.get(ctx, documentDocID(id), &doc); err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Value.Revision = doc.Rev
	return &doc.Value, nil
}

func (s *CouchStore[T, D]) SaveDocument(ctx context.Context, doc *domain.Document[T]) error {
	couch := couchDoc[domain.Document[T]]{
		ID:      documentDocID(doc.ID),
		DocType: "document",
		Value:   *doc,
	}

	if _, err := s.db.Put(ctx, couch.ID, couch); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrDocumentExists
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) UpdateDocument(ctx context.Context, doc *domain.Document[T]) error {
	if doc.Revision == "" {
		if err := s.upsert(ctx, documentDocID(doc.ID), "document", *doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return nil
	}

	couch := couchDoc[domain.Document[T]]{
		ID:      documentDocID(doc.ID),
		Rev:     doc.Revision,
		DocType: "document",
		Value:   *doc,
	}
	if _, err := s.db.Put(ctx, couch.ID, couch); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrConflict
		}
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) GetShadowDocument(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error) {
	var doc couchDoc[domain.ShadowDocument[T]]
	if err := s.get(ctx, shadowDocID(documentID, clientID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get shadow: %w", err)
	}
	return &doc.Value, nil
}

func (s *CouchStore[T, D]) SaveShadowDocument(ctx context.Context, shadow *domain.ShadowDocument[T]) error {
	id := shadowDocID(shadow.DocumentID(), shadow.ClientID())
	if err := s.upsert(ctx, id, "shadow", *shadow); err != nil {
		return fmt.Errorf("failed to save shadow: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) GetBackupShadowDocument(ctx context.Context, documentID, clientID string) (*domain.BackupShadowDocument[T], error) {
	var doc couchDoc[domain.BackupShadowDocument[T]]
	if err := s.get(ctx, backupDocID(documentID, clientID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get backup shadow: %w", err)
	}
	return &doc.Value, nil
}

func (s *CouchStore[T, D]) SaveBackupShadowDocument(ctx context.Context, backup *domain.BackupShadowDocument[T]) error {
	id := backupDocID(backup.Shadow.DocumentID(), backup.Shadow.ClientID())
	if err := s.upsert(ctx, id, "backup_shadow", *backup); err != nil {
		return fmt.Errorf("failed to save backup shadow: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) SaveEdits(ctx context.Context, edit *domain.Edit[D]) error {
	edits, err := s.GetEdits(ctx, edit.DocumentID, edit.ClientID)
	if err != nil {
		return err
	}
	edits = append(edits, edit)

	if err := s.upsert(ctx, editsDocID(edit.DocumentID, edit.ClientID), "edits", edits); err != nil {
		return fmt.Errorf("failed to save edits: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) GetEdits(ctx context.Context, documentID, clientID string) ([]*domain.Edit[D], error) {
	var doc couchDoc[[]*domain.Edit[D]]
	if err := s.get(ctx, editsDocID(documentID, clientID), &doc); err != nil {
		if err == ErrNotFound {
			return []*domain.Edit[D]{}, nil
		}
		return nil, fmt.Errorf("failed to get edits: %w", err)
	}
	if doc.Value == nil {
		return []*domain.Edit[D]{}, nil
	}
	return doc.Value, nil
}

func (s *CouchStore[T, D]) RemoveEdit(ctx context.Context, edit *domain.Edit[D]) error {
	edits, err := s.GetEdits(ctx, edit.DocumentID, edit.ClientID)
	if err != nil {
		return err
	}
	kept := withoutEdit(edits, edit)
	if len(kept) == len(edits) {
		return nil
	}

	if err := s.upsert(ctx, editsDocID(edit.DocumentID, edit.ClientID), "edits", kept); err != nil {
		return fmt.Errorf("failed to remove edit: %w", err)
	}
	return nil
}

func (s *CouchStore[T, D]) Close() error {
	return nil
}

func (s *CouchStore[T, D]) get(ctx context.Context, id string, dest interface{}) error {
	row := s.db.Get(ctx, id)
	if err := row.ScanDoc(dest); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// upsert writes value under id, carrying over the current revision if the
// document already exists.
func (s *CouchStore[T, D]) upsert(ctx context.Context, id, docType string, value interface{}) error {
	doc := couchDoc[interface{}]{
		ID:      id,
		DocType: docType,
		Value:   value,
	}

	rev, err := s.db.GetRev(ctx, id)
	switch {
	case err == nil:
		doc.Rev = rev
	case kivik.HTTPStatus(err) != http.StatusNotFound:
		return err
	}

	_, err = s.db.Put(ctx, id, doc)
	return err
}
