package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"diffsync-server/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDocumentExists = errors.New("document already exists")
	// ErrConflict is returned by UpdateDocument when the stored revision no
	// longer matches the one the caller read.
	ErrConflict = errors.New("document revision conflict")
)

// DataStore persists canonical documents, shadows, backup shadows and the
// pending server edits of every (document, client) pair.
//
// Get methods return ErrNotFound when nothing is stored under the key.
// GetEdits returns pending edits oldest first and an empty slice when there
// are none.
type DataStore[T, D any] interface {
	GetDocument(ctx context.Context, id string) (*domain.Document[T], error)
	// SaveDocument stores a new canonical document. It returns
	// ErrDocumentExists if one is already stored under the id.
	SaveDocument(ctx context.Context, doc *domain.Document[T]) error
	// UpdateDocument replaces a canonical document. A non-empty
	// doc.Revision must match the stored revision or ErrConflict is
	// returned; an empty one writes unconditionally.
	UpdateDocument(ctx context.Context, doc *domain.Document[T]) error

	GetShadowDocument(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error)
	SaveShadowDocument(ctx context.Context, shadow *domain.ShadowDocument[T]) error

	GetBackupShadowDocument(ctx context.Context, documentID, clientID string) (*domain.BackupShadowDocument[T], error)
	SaveBackupShadowDocument(ctx context.Context, backup *domain.BackupShadowDocument[T]) error

	SaveEdits(ctx context.Context, edit *domain.Edit[D]) error
	GetEdits(ctx context.Context, documentID, clientID string) ([]*domain.Edit[D], error)
	// RemoveEdit removes the pending edit with the same pair and versions.
	RemoveEdit(ctx context.Context, edit *domain.Edit[D]) error

	Close() error
}

// pairKey encodes a (document, client) pair. The document id is length
// prefixed so ids containing ':' cannot collide.
func pairKey(documentID, clientID string) string {
	return fmt.Sprintf("%d:%s:%s", len(documentID), documentID, clientID)
}

// nextRevision returns the revision that follows rev for stores that count
// revisions themselves.
func nextRevision(rev string) string {
	n, _ := strconv.ParseInt(rev, 10, 64)
	return strconv.FormatInt(n+1, 10)
}

func withoutEdit[D any](edits []*domain.Edit[D], edit *domain.Edit[D]) []*domain.Edit[D] {
	kept := make([]*domain.Edit[D], 0, len(edits))
	for _, e := range edits {
		if !e.Same(edit) {
			kept = append(kept, e)
		}
	}
	return kept
}
