package domain

// Document is the canonical, server-owned value for an id. Revision is set by
// the store on reads and used to detect concurrent writers.
type Document[T any] struct {
	ID       string `json:"id"`
	Content  T      `json:"content"`
	Revision string `json:"-"`
}

// ClientDocument is a client-scoped view of a document. It is the content
// held by a shadow.
type ClientDocument[T any] struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
	Content  T      `json:"content"`
}

// ShadowDocument is the server's working copy for one (document, client) pair.
//
// ServerVersion counts edits the server generated for the client and
// ClientVersion counts client edits the server applied. Both only grow.
type ShadowDocument[T any] struct {
	ServerVersion int64             `json:"serverVersion"`
	ClientVersion int64             `json:"clientVersion"`
	Document      ClientDocument[T] `json:"document"`
}

// BackupShadowDocument is a snapshot of a shadow the client is known to have
// seen. Version is the shadow serverVersion at snapshot time.
type BackupShadowDocument[T any] struct {
	Version int64             `json:"version"`
	Shadow  ShadowDocument[T] `json:"shadow"`
}

func NewShadowDocument[T any](serverVersion, clientVersion int64, doc ClientDocument[T]) *ShadowDocument[T] {
	return &ShadowDocument[T]{
		ServerVersion: serverVersion,
		ClientVersion: clientVersion,
		Document:      doc,
	}
}

func NewBackupShadowDocument[T any](shadow *ShadowDocument[T]) *BackupShadowDocument[T] {
	return &BackupShadowDocument[T]{
		Version: shadow.ServerVersion,
		Shadow:  *shadow,
	}
}

func (s *ShadowDocument[T]) DocumentID() string {
	return s.Document.ID
}

func (s *ShadowDocument[T]) ClientID() string {
	return s.Document.ClientID
}

// WithContent returns a copy of the shadow holding content, versions unchanged.
func (s *ShadowDocument[T]) WithContent(content T) *ShadowDocument[T] {
	next := *s
	next.Document.Content = content
	return &next
}
