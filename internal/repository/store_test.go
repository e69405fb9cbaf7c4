package repository

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"diffsync-server/internal/domain"

	"github.com/sanity-io/litter"
)

type textStore = DataStore[string, domain.Diff]

func storeFactories() map[string]func(t *testing.T) textStore {
	return map[string]func(t *testing.T) textStore{
		"memory": func(t *testing.T) textStore {
			return NewMemoryStore[string, domain.Diff]()
		},
		"bolt": func(t *testing.T) textStore {
			store, err := NewBoltStore[string, domain.Diff](filepath.Join(t.TempDir(), "sync.db"))
			if err != nil {
				t.Fatalf("failed to open bolt store: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func forEachStore(t *testing.T, test func(t *testing.T, store textStore)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			test(t, factory(t))
		})
	}
}

func TestStore_Documents(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		if _, err := store.GetDocument(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		doc := &domain.Document[string]{ID: "doc-1", Content: "Do or do not, there is no try."}
		if err := store.SaveDocument(ctx, doc); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		err := store.SaveDocument(ctx, &domain.Document[string]{ID: "doc-1", Content: "anything else"})
		if !errors.Is(err, ErrDocumentExists) {
			t.Fatalf("expected ErrDocumentExists, got %v", err)
		}

		got, err := store.GetDocument(ctx, "doc-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Content != "Do or do not, there is no try." {
			t.Errorf("first writer must win, got %q", got.Content)
		}

		if err := store.UpdateDocument(ctx, &domain.Document[string]{ID: "doc-1", Content: "updated"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got, _ = store.GetDocument(ctx, "doc-1")
		if got.Content != "updated" {
			t.Errorf("expected updated content, got %q", got.Content)
		}
	})
}

func TestStore_Shadows(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		if _, err := store.GetShadowDocument(ctx, "doc-1", "client-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		shadow := domain.NewShadowDocument(2, 1, domain.ClientDocument[string]{
			ID: "doc-1", ClientID: "client-1", Content: "shadow",
		})
		if err := store.SaveShadowDocument(ctx, shadow); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		other := domain.NewShadowDocument(0, 0, domain.ClientDocument[string]{
			ID: "doc-1", ClientID: "client-2", Content: "other",
		})
		if err := store.SaveShadowDocument(ctx, other); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := store.GetShadowDocument(ctx, "doc-1", "client-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(got, shadow) {
			t.Errorf("shadow = %s", litter.Sdump(got))
		}

		// Mutating a returned value must not leak into the store.
		got.ServerVersion = 99
		again, _ := store.GetShadowDocument(ctx, "doc-1", "client-1")
		if again.ServerVersion != 2 {
			t.Errorf("store shares state with callers")
		}
	})
}

func TestStore_BackupShadows(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		if _, err := store.GetBackupShadowDocument(ctx, "doc-1", "client-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		shadow := domain.NewShadowDocument(3, 4, domain.ClientDocument[string]{
			ID: "doc-1", ClientID: "client-1", Content: "backup",
		})
		backup := domain.NewBackupShadowDocument(shadow)
		if err := store.SaveBackupShadowDocument(ctx, backup); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := store.GetBackupShadowDocument(ctx, "doc-1", "client-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Version != 3 || !reflect.DeepEqual(got.Shadow, *shadow) {
			t.Errorf("backup = %s", litter.Sdump(got))
		}
	})
}

func TestStore_Edits(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		edits, err := store.GetEdits(ctx, "doc-1", "client-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if edits == nil || len(edits) != 0 {
			t.Fatalf("expected an empty queue, got %s", litter.Sdump(edits))
		}

		newEdit := func(serverVersion int64, text string) *domain.Edit[domain.Diff] {
			return &domain.Edit[domain.Diff]{
				DocumentID:    "doc-1",
				ClientID:      "client-1",
				ServerVersion: serverVersion,
				ClientVersion: 0,
				Checksum:      "sum",
				Diffs:         []domain.Diff{{Operation: domain.OperationAdd, Text: text}},
			}
		}

		for i, text := range []string{"a", "b", "c"} {
			if err := store.SaveEdits(ctx, newEdit(int64(i), text)); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		}
		other := newEdit(0, "z")
		other.ClientID = "client-2"
		store.SaveEdits(ctx, other)

		edits, _ = store.GetEdits(ctx, "doc-1", "client-1")
		if len(edits) != 3 {
			t.Fatalf("expected 3 edits, got %d", len(edits))
		}
		for i, want := range []string{"a", "b", "c"} {
			if edits[i].ServerVersion != int64(i) || edits[i].Diffs[0].Text != want {
				t.Errorf("edits out of order: %s", litter.Sdump(edits))
			}
		}

		if err := store.RemoveEdit(ctx, newEdit(1, "")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		edits, _ = store.GetEdits(ctx, "doc-1", "client-1")
		if len(edits) != 2 || edits[0].ServerVersion != 0 || edits[1].ServerVersion != 2 {
			t.Errorf("unexpected edits after remove: %s", litter.Sdump(edits))
		}

		// Removing an edit that is not queued is a no-op.
		if err := store.RemoveEdit(ctx, newEdit(7, "")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		store.RemoveEdit(ctx, newEdit(0, ""))
		store.RemoveEdit(ctx, newEdit(2, ""))
		edits, _ = store.GetEdits(ctx, "doc-1", "client-1")
		if len(edits) != 0 {
			t.Errorf("expected an empty queue, got %s", litter.Sdump(edits))
		}

		edits, _ = store.GetEdits(ctx, "doc-1", "client-2")
		if len(edits) != 1 {
			t.Errorf("other pairs must be untouched, got %s", litter.Sdump(edits))
		}
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sync.db")

	store, err := NewBoltStore[string, domain.Diff](path)
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	store.SaveDocument(ctx, &domain.Document[string]{ID: "doc-1", Content: "persisted"})
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close bolt store: %v", err)
	}

	store, err = NewBoltStore[string, domain.Diff](path)
	if err != nil {
		t.Fatalf("failed to reopen bolt store: %v", err)
	}
	defer store.Close()

	doc, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if doc.Content != "persisted" {
		t.Errorf("expected persisted content, got %q", doc.Content)
	}
}

func TestStore_PairsWithSeparatorInIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		pairs := []struct {
			documentID string
			clientID   string
		}{
			{documentID: "a:b", clientID: "c"},
			{documentID: "a", clientID: "b:c"},
			{documentID: "1:a", clientID: "b"},
		}

		for i, p := range pairs {
			shadow := domain.NewShadowDocument(int64(i), 0, domain.ClientDocument[string]{
				ID: p.documentID, ClientID: p.clientID, Content: p.documentID + "|" + p.clientID,
			})
			if err := store.SaveShadowDocument(ctx, shadow); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := store.SaveBackupShadowDocument(ctx, domain.NewBackupShadowDocument(shadow)); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			err := store.SaveEdits(ctx, &domain.Edit[domain.Diff]{
				DocumentID:    p.documentID,
				ClientID:      p.clientID,
				ServerVersion: int64(i),
				Diffs:         []domain.Diff{{Operation: domain.OperationAdd, Text: p.clientID}},
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		}

		for i, p := range pairs {
			shadow, err := store.GetShadowDocument(ctx, p.documentID, p.clientID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if shadow.DocumentID() != p.documentID || shadow.ClientID() != p.clientID || shadow.ServerVersion != int64(i) {
				t.Errorf("pair (%q,%q) read shadow %s", p.documentID, p.clientID, litter.Sdump(shadow))
			}

			backup, err := store.GetBackupShadowDocument(ctx, p.documentID, p.clientID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if backup.Shadow.DocumentID() != p.documentID || backup.Shadow.ClientID() != p.clientID {
				t.Errorf("pair (%q,%q) read backup %s", p.documentID, p.clientID, litter.Sdump(backup))
			}

			edits, _ := store.GetEdits(ctx, p.documentID, p.clientID)
			if len(edits) != 1 || edits[0].ClientID != p.clientID || edits[0].DocumentID != p.documentID {
				t.Errorf("pair (%q,%q) read edits %s", p.documentID, p.clientID, litter.Sdump(edits))
			}
		}
	})
}

func TestStore_UpdateDocumentRevisions(t *testing.T) {
	forEachStore(t, func(t *testing.T, store textStore) {
		ctx := context.Background()

		store.SaveDocument(ctx, &domain.Document[string]{ID: "doc-1", Content: "v1"})

		first, err := store.GetDocument(ctx, "doc-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.Revision == "" {
			t.Fatal("expected the store to report a revision")
		}
		stale := *first

		first.Content = "v2"
		if err := store.UpdateDocument(ctx, first); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stale.Content = "lost"
		if err := store.UpdateDocument(ctx, &stale); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		got, _ := store.GetDocument(ctx, "doc-1")
		if got.Content != "v2" {
			t.Errorf("expected v2 to survive, got %q", got.Content)
		}
		if got.Revision == stale.Revision {
			t.Errorf("expected a new revision after the update, still %q", got.Revision)
		}

		if err := store.UpdateDocument(ctx, &domain.Document[string]{ID: "doc-2", Revision: "1"}); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for a missing document, got %v", err)
		}
	})
}

func TestPairKey(t *testing.T) {
	tests := []struct {
		a, b [2]string
	}{
		{a: [2]string{"a:b", "c"}, b: [2]string{"a", "b:c"}},
		{a: [2]string{"", "1:a:b"}, b: [2]string{"1:a", "b"}},
		{a: [2]string{"doc", ""}, b: [2]string{"do", "c"}},
	}

	for _, tt := range tests {
		if pairKey(tt.a[0], tt.a[1]) == pairKey(tt.b[0], tt.b[1]) {
			t.Errorf("pairs %q and %q share key %q", tt.a, tt.b, pairKey(tt.a[0], tt.a[1]))
		}
	}
}
