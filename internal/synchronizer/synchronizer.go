// Package synchronizer binds a diff algorithm to the document and shadow
// types. The engine is written against Synchronizer only, so content types
// plug in without engine changes.
package synchronizer

import (
	"encoding/json"

	"diffsync-server/internal/domain"
)

// Synchronizer computes and applies edits for content of type T whose edit
// scripts are sequences of D.
type Synchronizer[T, D any] interface {
	// ServerDiff diffs the shadow against the canonical document. The edit
	// is tagged with the shadow versions and the checksum of the shadow.
	ServerDiff(document *domain.Document[T], shadow *domain.ShadowDocument[T]) (*domain.Edit[D], error)
	// ClientDiff diffs the document against the shadow, the reverse of
	// ServerDiff. The checksum covers the document content.
	ClientDiff(document *domain.Document[T], shadow *domain.ShadowDocument[T]) (*domain.Edit[D], error)
	// PatchShadow applies edit to the shadow content. Versions are untouched.
	PatchShadow(edit *domain.Edit[D], shadow *domain.ShadowDocument[T]) (*domain.ShadowDocument[T], error)
	// PatchDocument applies edit to the document, tolerating drift.
	PatchDocument(edit *domain.Edit[D], document *domain.Document[T]) (*domain.Document[T], error)
	Checksum(content T) string
}

// ContentCodec turns the content field of a wire message into T.
type ContentCodec[T any] interface {
	DecodeContent(raw json.RawMessage) (T, error)
}

// Kind is the content type a server instance synchronizes.
type Kind string

const (
	KindText Kind = "text"
	KindJSON Kind = "json"
)

func newEdit[T, D any](shadow *domain.ShadowDocument[T], checksum string, diffs []D) *domain.Edit[D] {
	if diffs == nil {
		diffs = []D{}
	}
	return &domain.Edit[D]{
		DocumentID:    shadow.DocumentID(),
		ClientID:      shadow.ClientID(),
		ServerVersion: shadow.ServerVersion,
		ClientVersion: shadow.ClientVersion,
		Checksum:      checksum,
		Diffs:         diffs,
	}
}
