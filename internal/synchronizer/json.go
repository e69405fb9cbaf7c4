package synchronizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"reflect"

	"diffsync-server/internal/domain"
	"diffsync-server/pkg/hash"

	jsonpatch "github.com/evanphx/json-patch/v5"
	jsondiff "github.com/snorwin/jsonpatch"
)

var emptyObject = json.RawMessage(`{}`)

// JSONSynchronizer synchronizes JSON documents with RFC 6902 patches.
type JSONSynchronizer struct {
	applyOptions *jsonpatch.ApplyOptions
}

func NewJSONSynchronizer() *JSONSynchronizer {
	opts := jsonpatch.NewApplyOptions()
	// Drifted documents may already lack what a remove targets, or lack
	// the parent an add targets.
	opts.AllowMissingPathOnRemove = true
	opts.EnsurePathExistsOnAdd = true
	return &JSONSynchronizer{applyOptions: opts}
}

func (s *JSONSynchronizer) ServerDiff(document *domain.Document[json.RawMessage], shadow *domain.ShadowDocument[json.RawMessage]) (*domain.Edit[domain.PatchOperation], error) {
	ops, err := s.diff(shadow.Document.Content, document.Content)
	if err != nil {
		return nil, err
	}
	return newEdit(shadow, s.Checksum(shadow.Document.Content), ops), nil
}

func (s *JSONSynchronizer) ClientDiff(document *domain.Document[json.RawMessage], shadow *domain.ShadowDocument[json.RawMessage]) (*domain.Edit[domain.PatchOperation], error) {
	ops, err := s.diff(document.Content, shadow.Document.Content)
	if err != nil {
		return nil, err
	}
	return newEdit(shadow, s.Checksum(document.Content), ops), nil
}

func (s *JSONSynchronizer) PatchShadow(edit *domain.Edit[domain.PatchOperation], shadow *domain.ShadowDocument[json.RawMessage]) (*domain.ShadowDocument[json.RawMessage], error) {
	content, err := s.apply(edit, shadow.Document.Content)
	if err != nil {
		return nil, err
	}
	return shadow.WithContent(content), nil
}

func (s *JSONSynchronizer) PatchDocument(edit *domain.Edit[domain.PatchOperation], document *domain.Document[json.RawMessage]) (*domain.Document[json.RawMessage], error) {
	content, err := s.apply(edit, document.Content)
	if err != nil {
		return nil, err
	}
	return &domain.Document[json.RawMessage]{ID: document.ID, Content: content}, nil
}

// Checksum digests the canonical encoding, so key order does not matter.
func (s *JSONSynchronizer) Checksum(content json.RawMessage) string {
	value, err := decode(content)
	if err != nil {
		return hash.ChecksumBytes(content)
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return hash.ChecksumBytes(content)
	}
	return hash.ChecksumBytes(canonical)
}

func (s *JSONSynchronizer) DecodeContent(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return emptyObject, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON content")
	}
	return append(json.RawMessage(nil), raw...), nil
}

// diff returns the operations turning from into to.
func (s *JSONSynchronizer) diff(from, to json.RawMessage) ([]domain.PatchOperation, error) {
	current, err := decode(from)
	if err != nil {
		return nil, fmt.Errorf("failed to decode source document: %w", err)
	}
	modified, err := decode(to)
	if err != nil {
		return nil, fmt.Errorf("failed to decode target document: %w", err)
	}
	if reflect.DeepEqual(current, modified) {
		return []domain.PatchOperation{}, nil
	}

	_, currentIsObject := current.(map[string]interface{})
	_, modifiedIsObject := modified.(map[string]interface{})
	if !currentIsObject || !modifiedIsObject {
		return []domain.PatchOperation{{Op: "replace", Path: "", Value: normalized(to)}}, nil
	}

	patch, err := jsondiff.CreateJSONPatch(modified, current)
	if err != nil {
		return nil, fmt.Errorf("failed to create json patch: %w", err)
	}

	list := patch.List()
	ops := make([]domain.PatchOperation, 0, len(list))
	for _, p := range list {
		op := domain.PatchOperation{Op: p.Operation, Path: p.Path}
		if p.Operation != "remove" {
			value, err := json.Marshal(p.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode value at %s: %w", p.Path, err)
			}
			op.Value = value
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// apply runs each operation on its own so one failing operation does not
// discard the others.
func (s *JSONSynchronizer) apply(edit *domain.Edit[domain.PatchOperation], content json.RawMessage) (json.RawMessage, error) {
	doc := normalized(content)
	failed := 0
	for _, op := range edit.Diffs {
		if op.Path == "" {
			switch op.Op {
			case "add", "replace":
				doc = normalized(op.Value)
				continue
			case "remove":
				doc = emptyObject
				continue
			}
		}

		single, err := json.Marshal([]domain.PatchOperation{op})
		if err != nil {
			return nil, fmt.Errorf("failed to encode operation: %w", err)
		}
		patch, err := jsonpatch.DecodePatch(single)
		if err != nil {
			return nil, fmt.Errorf("invalid patch operation %s %s: %w", op.Op, op.Path, err)
		}
		next, err := patch.ApplyWithOptions(doc, s.applyOptions)
		if err != nil {
			failed++
			continue
		}
		doc = next
	}
	if failed > 0 {
		log.Printf("[Synchronizer] %d of %d operations did not apply for document %s (client %s)",
			failed, len(edit.Diffs), edit.DocumentID, edit.ClientID)
	}
	return doc, nil
}

func decode(raw json.RawMessage) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal(normalized(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func normalized(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return emptyObject
	}
	return raw
}
