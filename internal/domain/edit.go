package domain

import "encoding/json"

type Operation string

const (
	OperationAdd       Operation = "ADD"
	OperationDelete    Operation = "DELETE"
	OperationUnchanged Operation = "UNCHANGED"
)

// Diff is one segment of a text edit script.
type Diff struct {
	Operation Operation `json:"operation" validate:"required,oneof=ADD DELETE UNCHANGED"`
	Text      string    `json:"text"`
}

// PatchOperation is one RFC 6902 operation of a structured-document edit.
type PatchOperation struct {
	Op    string          `json:"op" validate:"required,oneof=add remove replace move copy test"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Edit is a change computed against the shadow versions it is tagged with.
// Checksum covers the content the diffs were computed from.
type Edit[D any] struct {
	DocumentID    string `json:"id,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	ServerVersion int64  `json:"serverVersion" validate:"min=0"`
	ClientVersion int64  `json:"clientVersion" validate:"min=0"`
	Checksum      string `json:"checksum"`
	Diffs         []D    `json:"diffs" validate:"dive"`
}

// PatchMessage is an ordered batch of edits for one (document, client) pair.
type PatchMessage[D any] struct {
	DocumentID string     `json:"id"`
	ClientID   string     `json:"clientId"`
	Edits      []*Edit[D] `json:"edits"`
}

func NewPatchMessage[D any](documentID, clientID string, edits []*Edit[D]) *PatchMessage[D] {
	if edits == nil {
		edits = []*Edit[D]{}
	}
	return &PatchMessage[D]{
		DocumentID: documentID,
		ClientID:   clientID,
		Edits:      edits,
	}
}

// Same reports whether e and other address the same pair and versions.
func (e *Edit[D]) Same(other *Edit[D]) bool {
	return e.DocumentID == other.DocumentID &&
		e.ClientID == other.ClientID &&
		e.ServerVersion == other.ServerVersion &&
		e.ClientVersion == other.ClientVersion
}
