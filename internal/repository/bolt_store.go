package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"diffsync-server/internal/domain"

	bolt "go.etcd.io/bbolt"
)

var (
	documentsBucket = []byte("documents")
	shadowsBucket   = []byte("shadows")
	backupsBucket   = []byte("backups")
	editsBucket     = []byte("edits")
)

// BoltStore keeps values as JSON in a single bbolt file, one bucket per
// value kind.
type BoltStore[T, D any] struct {
	db *bolt.DB
}

func NewBoltStore[T, D any](path string) (*BoltStore[T, D], error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{documentsBucket, shadowsBucket, backupsBucket, editsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore[T, D]{db: db}, nil
}

// boltDocument is the stored form of a canonical document. The revision is
// kept next to the document since Document does not serialize it.
type boltDocument[T any] struct {
	Revision string             `json:"revision"`
	Document domain.Document[T] `json:"document"`
}

func (s *BoltStore[T, D]) GetDocument(ctx context.Context, id string) (*domain.Document[T], error) {
	var stored boltDocument[T]
	if err := s.get(documentsBucket, id, &stored); err != nil {
		return nil, err
	}
	doc := stored.Document
	doc.Revision = stored.Revision
	return &doc, nil
}

func (s *BoltStore[T, D]) SaveDocument(ctx context.Context, doc *domain.Document[T]) error {
	data, err := json.Marshal(boltDocument[T]{Revision: nextRevision(""), Document: *doc})
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(documentsBucket)
		if b.Get([]byte(doc.ID)) != nil {
			return ErrDocumentExists
		}
		return b.Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore[T, D]) UpdateDocument(ctx context.Context, doc *domain.Document[T]) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(documentsBucket)

		var current boltDocument[T]
		if data := b.Get([]byte(doc.ID)); data != nil {
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("failed to decode document: %w", err)
			}
		}
		if doc.Revision != "" && current.Revision != doc.Revision {
			return ErrConflict
		}

		data, err := json.Marshal(boltDocument[T]{Revision: nextRevision(current.Revision), Document: *doc})
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		return b.Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore[T, D]) GetShadowDocument(ctx context.Context, documentID, clientID string) (*domain.ShadowDocument[T], error) {
	var shadow domain.ShadowDocument[T]
	if err := s.get(shadowsBucket, pairKey(documentID, clientID), &shadow); err != nil {
		return nil, err
	}
	return &shadow, nil
}

func (s *BoltStore[T, D]) SaveShadowDocument(ctx context.Context, shadow *domain.ShadowDocument[T]) error {
	return s.put(shadowsBucket, pairKey(shadow.DocumentID(), shadow.ClientID()), shadow)
}

func (s *BoltStore[T, D]) GetBackupShadowDocument(ctx context.Context, documentID, clientID string) (*domain.BackupShadowDocument[T], error) {
	var backup domain.BackupShadowDocument[T]
	if err := s.get(backupsBucket, pairKey(documentID, clientID), &backup); err != nil {
		return nil, err
	}
	return &backup, nil
}

func (s *BoltStore[T, D]) SaveBackupShadowDocument(ctx context.Context, backup *domain.BackupShadowDocument[T]) error {
	return s.put(backupsBucket, pairKey(backup.Shadow.DocumentID(), backup.Shadow.ClientID()), backup)
}

func (s *BoltStore[T, D]) SaveEdits(ctx context.Context, edit *domain.Edit[D]) error {
	return s.updateEdits(pairKey(edit.DocumentID, edit.ClientID), func(edits []*domain.Edit[D]) []*domain.Edit[D] {
		return append(edits, edit)
	})
}

func (s *BoltStore[T, D]) GetEdits(ctx context.Context, documentID, clientID string) ([]*domain.Edit[D], error) {
	edits := []*domain.Edit[D]{}
	err := s.get(editsBucket, pairKey(documentID, clientID), &edits)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	return edits, nil
}

func (s *BoltStore[T, D]) RemoveEdit(ctx context.Context, edit *domain.Edit[D]) error {
	return s.updateEdits(pairKey(edit.DocumentID, edit.ClientID), func(edits []*domain.Edit[D]) []*domain.Edit[D] {
		return withoutEdit(edits, edit)
	})
}

func (s *BoltStore[T, D]) Close() error {
	return s.db.Close()
}

func (s *BoltStore[T, D]) get(bucket []byte, key string, dest interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("failed to decode %s/%s: %w", bucket, key, err)
		}
		return nil
	})
}

func (s *BoltStore[T, D]) put(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// updateEdits rewrites the pending edit list of a pair in one transaction.
func (s *BoltStore[T, D]) updateEdits(key string, change func([]*domain.Edit[D]) []*domain.Edit[D]) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(editsBucket)

		var edits []*domain.Edit[D]
		if data := b.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &edits); err != nil {
				return fmt.Errorf("failed to decode edits: %w", err)
			}
		}

		edits = change(edits)
		if len(edits) == 0 {
			return b.Delete([]byte(key))
		}

		data, err := json.Marshal(edits)
		if err != nil {
			return fmt.Errorf("failed to encode edits: %w", err)
		}
		return b.Put([]byte(key), data)
	})
}
