package synchronizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"diffsync-server/internal/domain"
	"diffsync-server/pkg/hash"
	"diffsync-server/pkg/textdiff"
)

// TextSynchronizer synchronizes plain text with character level diffs.
type TextSynchronizer struct {
	dmp *textdiff.DiffMatchPatch
}

func NewTextSynchronizer(dmp *textdiff.DiffMatchPatch) *TextSynchronizer {
	if dmp == nil {
		dmp = textdiff.New()
	}
	return &TextSynchronizer{dmp: dmp}
}

func (s *TextSynchronizer) ServerDiff(document *domain.Document[string], shadow *domain.ShadowDocument[string]) (*domain.Edit[domain.Diff], error) {
	content := shadow.Document.Content
	diffs := s.dmp.Diff(content, document.Content)
	return newEdit(shadow, hash.Checksum(content), toDomainDiffs(diffs)), nil
}

func (s *TextSynchronizer) ClientDiff(document *domain.Document[string], shadow *domain.ShadowDocument[string]) (*domain.Edit[domain.Diff], error) {
	diffs := s.dmp.Diff(document.Content, shadow.Document.Content)
	return newEdit(shadow, hash.Checksum(document.Content), toDomainDiffs(diffs)), nil
}

func (s *TextSynchronizer) PatchShadow(edit *domain.Edit[domain.Diff], shadow *domain.ShadowDocument[string]) (*domain.ShadowDocument[string], error) {
	content, err := s.apply(edit, shadow.Document.Content)
	if err != nil {
		return nil, err
	}
	return shadow.WithContent(content), nil
}

func (s *TextSynchronizer) PatchDocument(edit *domain.Edit[domain.Diff], document *domain.Document[string]) (*domain.Document[string], error) {
	content, err := s.apply(edit, document.Content)
	if err != nil {
		return nil, err
	}
	return &domain.Document[string]{ID: document.ID, Content: content}, nil
}

func (s *TextSynchronizer) Checksum(content string) string {
	return hash.Checksum(content)
}

func (s *TextSynchronizer) apply(edit *domain.Edit[domain.Diff], content string) (string, error) {
	diffs, err := fromDomainDiffs(edit.Diffs)
	if err != nil {
		return "", err
	}
	patches := s.dmp.MakePatches(diffs)
	patched, results := s.dmp.ApplyPatches(patches, content)
	if failed := failedPatches(patches, results); len(failed) > 0 {
		log.Printf("[Synchronizer] %d of %d patches did not apply for document %s (client %s):\n%s",
			len(failed), len(results), edit.DocumentID, edit.ClientID, strings.Join(failed, ""))
	}
	return patched, nil
}

// DecodeContent accepts a JSON string or, for any other JSON value, its
// literal text.
func (s *TextSynchronizer) DecodeContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("invalid text content: %w", err)
		}
		return text, nil
	}
	return string(raw), nil
}

func toDomainDiffs(diffs []textdiff.Diff) []domain.Diff {
	out := make([]domain.Diff, len(diffs))
	for i, d := range diffs {
		var op domain.Operation
		switch d.Type {
		case textdiff.OpInsert:
			op = domain.OperationAdd
		case textdiff.OpDelete:
			op = domain.OperationDelete
		default:
			op = domain.OperationUnchanged
		}
		out[i] = domain.Diff{Operation: op, Text: d.Text}
	}
	return out
}

func fromDomainDiffs(diffs []domain.Diff) ([]textdiff.Diff, error) {
	out := make([]textdiff.Diff, len(diffs))
	for i, d := range diffs {
		var op textdiff.Operation
		switch d.Operation {
		case domain.OperationAdd:
			op = textdiff.OpInsert
		case domain.OperationDelete:
			op = textdiff.OpDelete
		case domain.OperationUnchanged:
			op = textdiff.OpEqual
		default:
			return nil, fmt.Errorf("unknown diff operation %q", d.Operation)
		}
		out[i] = textdiff.Diff{Type: op, Text: d.Text}
	}
	return out, nil
}

// failedPatches renders the patches whose result is false.
func failedPatches(patches []textdiff.Patch, results []bool) []string {
	var failed []string
	for i, ok := range results {
		if !ok {
			failed = append(failed, patches[i].String())
		}
	}
	return failed
}
