package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"diffsync-server/internal/domain"
	"diffsync-server/internal/repository"
	"diffsync-server/internal/synchronizer"
)

// SyncEngine runs differential synchronization between canonical documents
// and one shadow per (document, client) pair.
//
// Calls for the same pair are serialized. Updates of a canonical document
// are serialized per document id. Different pairs run in parallel.
type SyncEngine[T, D any] struct {
	store     repository.DataStore[T, D]
	sync      synchronizer.Synchronizer[T, D]
	pairLocks *keyedMutex
	docLocks  *keyedMutex
}

func NewSyncEngine[T, D any](store repository.DataStore[T, D], sync synchronizer.Synchronizer[T, D]) *SyncEngine[T, D] {
	return &SyncEngine[T, D]{
		store:     store,
		sync:      sync,
		pairLocks: newKeyedMutex(),
		docLocks:  newKeyedMutex(),
	}
}

func pairLockKey(documentID, clientID string) string {
	return documentID + "\x00" + clientID
}

// AddDocument attaches clientID to a document, creating the canonical
// document from doc if none exists yet. The returned edit turns the content
// the client proposed into the canonical content and is tagged (0,0).
func (e *SyncEngine[T, D]) AddDocument(ctx context.Context, doc *domain.Document[T], clientID string) (*domain.Edit[D], error) {
	canonical, err := e.ensureDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	unlock := e.pairLocks.Lock(pairLockKey(doc.ID, clientID))
	defer unlock()

	// Anything queued for an earlier session of this pair is stale.
	if err := e.prunePending(ctx, doc.ID, clientID, func(*domain.Edit[D]) bool { return true }); err != nil {
		return nil, err
	}

	proposed := domain.NewShadowDocument(0, 0, domain.ClientDocument[T]{
		ID:       doc.ID,
		ClientID: clientID,
		Content:  doc.Content,
	})
	edit, err := e.sync.ServerDiff(canonical, proposed)
	if err != nil {
		return nil, fmt.Errorf("failed to diff document: %w", err)
	}
	if err := e.store.SaveEdits(ctx, edit); err != nil {
		return nil, fmt.Errorf("failed to save edit: %w", err)
	}

	shadow := domain.NewShadowDocument(1, 0, domain.ClientDocument[T]{
		ID:       doc.ID,
		ClientID: clientID,
		Content:  canonical.Content,
	})
	if err := e.saveShadow(ctx, shadow); err != nil {
		return nil, err
	}
	if err := e.store.SaveBackupShadowDocument(ctx, domain.NewBackupShadowDocument(shadow)); err != nil {
		return nil, fmt.Errorf("failed to save backup shadow: %w", err)
	}

	log.Printf("[Engine] Client %s added to document %s", clientID, doc.ID)
	return edit, nil
}

// ensureDocument stores doc as the canonical document unless one exists,
// and returns the canonical document.
func (e *SyncEngine[T, D]) ensureDocument(ctx context.Context, doc *domain.Document[T]) (*domain.Document[T], error) {
	unlock := e.docLocks.Lock(doc.ID)
	defer unlock()

	canonical, err := e.store.GetDocument(ctx, doc.ID)
	if err == nil {
		return canonical, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	err = e.store.SaveDocument(ctx, doc)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, repository.ErrDocumentExists):
		// Another node created it first.
		return e.getDocument(ctx, doc.ID)
	default:
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
}

// ServerDiff brings the shadow of the pair up to the canonical document and
// queues the edit that does the same on the client.
func (e *SyncEngine[T, D]) ServerDiff(ctx context.Context, documentID, clientID string) (*domain.Edit[D], error) {
	unlock := e.pairLocks.Lock(pairLockKey(documentID, clientID))
	defer unlock()

	return e.serverDiff(ctx, documentID, clientID)
}

func (e *SyncEngine[T, D]) serverDiff(ctx context.Context, documentID, clientID string) (*domain.Edit[D], error) {
	shadow, err := e.getShadow(ctx, documentID, clientID)
	if err != nil {
		return nil, err
	}
	doc, err := e.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	edit, err := e.sync.ServerDiff(doc, shadow)
	if err != nil {
		return nil, fmt.Errorf("failed to diff document: %w", err)
	}
	if err := e.store.SaveEdits(ctx, edit); err != nil {
		return nil, fmt.Errorf("failed to save edit: %w", err)
	}

	patched, err := e.sync.PatchShadow(edit, shadow)
	if err != nil {
		return nil, fmt.Errorf("failed to patch shadow: %w", err)
	}
	patched.ServerVersion++
	if err := e.saveShadow(ctx, patched); err != nil {
		return nil, err
	}
	return edit, nil
}

// Diffs runs a server diff for the pair and returns every edit the client
// has not acknowledged yet, oldest first.
func (e *SyncEngine[T, D]) Diffs(ctx context.Context, documentID, clientID string) (*domain.PatchMessage[D], error) {
	unlock := e.pairLocks.Lock(pairLockKey(documentID, clientID))
	defer unlock()

	if _, err := e.serverDiff(ctx, documentID, clientID); err != nil {
		return nil, err
	}

	edits, err := e.store.GetEdits(ctx, documentID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edits: %w", err)
	}
	return domain.NewPatchMessage(documentID, clientID, edits), nil
}

// Patch applies the client edits of msg in order and merges the result into
// the canonical document.
//
// Edits the shadow has already seen are dropped. Edits ahead of the shadow
// are skipped and expected to be resent. An edit older than the shadow
// server version rolls the shadow back to its backup, and fails with a
// DesyncError if the backup does not match.
func (e *SyncEngine[T, D]) Patch(ctx context.Context, msg *domain.PatchMessage[D]) error {
	documentID, clientID := msg.DocumentID, msg.ClientID

	unlock := e.pairLocks.Lock(pairLockKey(documentID, clientID))
	defer unlock()

	shadow, err := e.getShadow(ctx, documentID, clientID)
	if err != nil {
		return err
	}

	before := *shadow
	base := shadow
	applied := false
	confirmed := false
	rolledBack := false

	for _, edit := range msg.Edits {
		serverVersion := edit.ServerVersion

		// The client has seen every server edit below serverVersion.
		err := e.prunePending(ctx, documentID, clientID, func(p *domain.Edit[D]) bool {
			return p.ServerVersion < serverVersion
		})
		if err != nil {
			return err
		}

		if serverVersion < shadow.ServerVersion {
			backup, err := e.store.GetBackupShadowDocument(ctx, documentID, clientID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to get backup shadow: %w", err)
			}
			if backup == nil || backup.Version != serverVersion {
				desync := &DesyncError{
					DocumentID:    documentID,
					ClientID:      clientID,
					ServerVersion: serverVersion,
					BackupVersion: -1,
				}
				if backup != nil {
					desync.BackupVersion = backup.Version
				}
				return desync
			}

			if applied {
				if err := e.commit(ctx, base, shadow); err != nil {
					return err
				}
				applied = false
			}

			shadow = domain.NewShadowDocument(backup.Version, shadow.ClientVersion, backup.Shadow.Document)
			if err := e.saveShadow(ctx, shadow); err != nil {
				return err
			}
			// Server edits from the discarded versions were never seen.
			err = e.prunePending(ctx, documentID, clientID, func(p *domain.Edit[D]) bool {
				return p.ServerVersion >= backup.Version
			})
			if err != nil {
				return err
			}
			base = shadow
			rolledBack = true
			log.Printf("[Engine] Rolled back shadow of document %s client %s to server version %d",
				documentID, clientID, backup.Version)
		}

		if !rolledBack && serverVersion == before.ServerVersion {
			confirmed = true
		}

		if edit.ClientVersion < shadow.ClientVersion {
			log.Printf("[Engine] Dropping duplicate edit %d/%d for document %s client %s",
				edit.ServerVersion, edit.ClientVersion, documentID, clientID)
			continue
		}

		if serverVersion != shadow.ServerVersion || edit.ClientVersion != shadow.ClientVersion {
			log.Printf("[Engine] Skipping edit %d/%d for document %s client %s, shadow is at %d/%d",
				edit.ServerVersion, edit.ClientVersion, documentID, clientID,
				shadow.ServerVersion, shadow.ClientVersion)
			continue
		}

		if edit.Checksum != "" && edit.Checksum != e.sync.Checksum(shadow.Document.Content) {
			log.Printf("[Engine] Checksum mismatch on edit %d/%d for document %s client %s",
				edit.ServerVersion, edit.ClientVersion, documentID, clientID)
		}

		patched, err := e.sync.PatchShadow(edit, shadow)
		if err != nil {
			return fmt.Errorf("failed to patch shadow: %w", err)
		}
		patched.ClientVersion++
		shadow = patched
		applied = true
	}

	if applied {
		if err := e.commit(ctx, base, shadow); err != nil {
			return err
		}
	} else if confirmed && !rolledBack {
		// Nothing new was applied, so the client holds the shadow as it was.
		if err := e.store.SaveBackupShadowDocument(ctx, domain.NewBackupShadowDocument(&before)); err != nil {
			return fmt.Errorf("failed to save backup shadow: %w", err)
		}
	}
	return nil
}

// commit merges the edits applied to a shadow since base into the canonical
// document, then persists the shadow and its backup. The shadow is only
// written once the canonical document holds its edits, so a failed merge
// leaves the pair untouched and the client can resend the same batch.
func (e *SyncEngine[T, D]) commit(ctx context.Context, base, shadow *domain.ShadowDocument[T]) error {
	if err := e.mergeIntoDocument(ctx, base, shadow); err != nil {
		return err
	}
	if err := e.saveShadow(ctx, shadow); err != nil {
		return err
	}
	if err := e.store.SaveBackupShadowDocument(ctx, domain.NewBackupShadowDocument(shadow)); err != nil {
		return fmt.Errorf("failed to save backup shadow: %w", err)
	}
	return nil
}

// maxMergeAttempts bounds the retries of a canonical write that lost a race
// against another writer of the same store.
const maxMergeAttempts = 5

// mergeIntoDocument applies the change between two states of a shadow to
// the canonical document. The write is conditional on the revision that was
// read, and is redone on the fresh document if another node got there first.
func (e *SyncEngine[T, D]) mergeIntoDocument(ctx context.Context, from, to *domain.ShadowDocument[T]) error {
	edit, err := e.sync.ClientDiff(&domain.Document[T]{ID: from.DocumentID(), Content: from.Document.Content}, to)
	if err != nil {
		return fmt.Errorf("failed to diff shadow: %w", err)
	}

	unlock := e.docLocks.Lock(to.DocumentID())
	defer unlock()

	for attempt := 1; ; attempt++ {
		doc, err := e.getDocument(ctx, to.DocumentID())
		if err != nil {
			return err
		}
		patched, err := e.sync.PatchDocument(edit, doc)
		if err != nil {
			return fmt.Errorf("failed to patch document: %w", err)
		}
		patched.Revision = doc.Revision

		err = e.store.UpdateDocument(ctx, patched)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == maxMergeAttempts {
			return fmt.Errorf("failed to update document: %w", err)
		}
		log.Printf("[Engine] Document %s changed concurrently, retrying merge (attempt %d)",
			to.DocumentID(), attempt)
	}
}

// GetDocument returns the canonical document.
func (e *SyncEngine[T, D]) GetDocument(ctx context.Context, documentID string) (*domain.Document[T], error) {
	return e.getDocument(ctx, documentID)
}

func (e *SyncEngine[T, D]) getDocument(ctx context.Context, documentID string) (*domain.Document[T], error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (e *SyncEngine[T, D]) getShadow(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error) {
	shadow, err := e.store.GetShadowDocument(ctx, documentID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrShadowNotFound
		}
		return nil, fmt.Errorf("failed to get shadow: %w", err)
	}
	return shadow, nil
}

func (e *SyncEngine[T, D]) saveShadow(ctx context.Context, shadow *domain.ShadowDocument[T]) error {
	if err := e.store.SaveShadowDocument(ctx, shadow); err != nil {
		return fmt.Errorf("failed to save shadow: %w", err)
	}
	return nil
}

func (e *SyncEngine[T, D]) prunePending(ctx context.Context, documentID, clientID string, drop func(*domain.Edit[D]) bool) error {
	pending, err := e.store.GetEdits(ctx, documentID, clientID)
	if err != nil {
		return fmt.Errorf("failed to get edits: %w", err)
	}
	for _, p := range pending {
		if !drop(p) {
			continue
		}
		if err := e.store.RemoveEdit(ctx, p); err != nil {
			return fmt.Errorf("failed to remove edit: %w", err)
		}
	}
	return nil
}
