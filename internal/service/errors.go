package service

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrShadowNotFound   = errors.New("shadow document not found")
	ErrDesynchronized   = errors.New("client is desynchronized")
)

// DesyncError reports an edit whose serverVersion is older than the shadow
// and has no backup to roll back to. The pair has to be added again.
type DesyncError struct {
	DocumentID    string
	ClientID      string
	ServerVersion int64
	// BackupVersion is -1 when no backup exists.
	BackupVersion int64
}

func (e *DesyncError) Error() string {
	if e.BackupVersion < 0 {
		return fmt.Sprintf("no backup shadow for document %s client %s to restore server version %d",
			e.DocumentID, e.ClientID, e.ServerVersion)
	}
	return fmt.Sprintf("backup shadow version %d of document %s client %s does not match server version %d",
		e.BackupVersion, e.DocumentID, e.ClientID, e.ServerVersion)
}

func (e *DesyncError) Is(target error) bool {
	return target == ErrDesynchronized
}
