package repository

import (
	"context"
	"sync"

	"diffsync-server/internal/domain"
)

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore[T, D any] struct {
	mu        sync.RWMutex
	documents map[string]domain.Document[T]
	shadows   map[string]domain.ShadowDocument[T]
	backups   map[string]domain.BackupShadowDocument[T]
	edits     map[string][]domain.Edit[D]
}

func NewMemoryStore[T, D any]() *MemoryStore[T, D] {
	return &MemoryStore[T, D]{
		documents: make(map[string]domain.Document[T]),
		shadows:   make(map[string]domain.ShadowDocument[T]),
		backups:   make(map[string]domain.BackupShadowDocument[T]),
		edits:     make(map[string][]domain.Edit[D]),
	}
}

func (s *MemoryStore[T, D]) GetDocument(ctx context.Context, id string) (*domain.Document[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (s *MemoryStore[T, D]) SaveDocument(ctx context.Context, doc *domain.Document[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return ErrDocumentExists
	}
	stored := *doc
	stored.Revision = nextRevision("")
	s.documents[doc.ID] = stored
	return nil
}

func (s *MemoryStore[T, D]) UpdateDocument(ctx context.Context, doc *domain.Document[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.documents[doc.ID]
	if doc.Revision != "" && (!ok || current.Revision != doc.Revision) {
		return ErrConflict
	}
	stored := *doc
	stored.Revision = nextRevision(current.Revision)
	s.documents[doc.ID] = stored
	return nil
}

func (s *MemoryStore[T, D]) GetShadowDocument(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shadow, ok := s.shadows[pairKey(documentID, clientID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &shadow, nil
}

func (s *MemoryStore[T, D]) SaveShadowDocument(ctx context.Context, shadow *domain.ShadowDocument[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shadows[pairKey(shadow.DocumentID(), shadow.ClientID())] = *shadow
	return nil
}

func (s *MemoryStore[T, D]) GetBackupShadowDocument(ctx context.Context, documentID, clientID string) (*domain.BackupShadowDocument[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backup, ok := s.backups[pairKey(documentID, clientID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &backup, nil
}

func (s *MemoryStore[T, D]) SaveBackupShadowDocument(ctx context.Context, backup *domain.BackupShadowDocument[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backups[pairKey(backup.Shadow.DocumentID(), backup.Shadow.ClientID())] = *backup
	return nil
}

func (s *MemoryStore[T, D]) SaveEdits(ctx context.Context, edit *domain.Edit[D]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(edit.DocumentID, edit.ClientID)
	s.edits[key] = append(s.edits[key], *edit)
	return nil
}

func (s *MemoryStore[T, D]) GetEdits(ctx context.Context, documentID, clientID string) ([]*domain.Edit[D], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.edits[pairKey(documentID, clientID)]
	edits := make([]*domain.Edit[D], len(stored))
	for i := range stored {
		e := stored[i]
		edits[i] = &e
	}
	return edits, nil
}

func (s *MemoryStore[T, D]) RemoveEdit(ctx context.Context, edit *domain.Edit[D]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(edit.DocumentID, edit.ClientID)
	stored := s.edits[key]
	kept := stored[:0:0]
	for i := range stored {
		if !stored[i].Same(edit) {
			kept = append(kept, stored[i])
		}
	}
	if len(kept) == 0 {
		delete(s.edits, key)
		return nil
	}
	s.edits[key] = kept
	return nil
}

func (s *MemoryStore[T, D]) Close() error {
	return nil
}
