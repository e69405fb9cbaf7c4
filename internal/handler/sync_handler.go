package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"diffsync-server/internal/domain"
	"diffsync-server/internal/registry"
	"diffsync-server/internal/service"
	"diffsync-server/internal/synchronizer"
	"diffsync-server/internal/websocket"
	"diffsync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"golang.org/x/sync/semaphore"
)

// Engine is the part of service.SyncEngine the handlers use.
type Engine[T, D any] interface {
	AddDocument(ctx context.Context, doc *domain.Document[T], clientID string) (*domain.Edit[D], error)
	Patch(ctx context.Context, msg *domain.PatchMessage[D]) error
	Diffs(ctx context.Context, documentID, clientID string) (*domain.PatchMessage[D], error)
	GetDocument(ctx context.Context, documentID string) (*domain.Document[T], error)
}

// Publisher announces applied patches to other server nodes.
type Publisher interface {
	Publish(ctx context.Context, documentID, clientID string) error
}

// Listener is a client connection attached to a document.
type Listener struct {
	ClientID string
	Conn     *websocket.Client
}

type SyncHandler[T, D any] struct {
	engine    Engine[T, D]
	codec     synchronizer.ContentCodec[T]
	listeners *registry.Registry[Listener]
	validate  *validator.Validate
	fanOut    *semaphore.Weighted
	publisher Publisher

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

func NewSyncHandler[T, D any](
	engine Engine[T, D],
	codec synchronizer.ContentCodec[T],
	listeners *registry.Registry[Listener],
	fanOutConcurrency int64,
) *SyncHandler[T, D] {
	if fanOutConcurrency <= 0 {
		fanOutConcurrency = 1
	}
	return &SyncHandler[T, D]{
		engine:    engine,
		codec:     codec,
		listeners: listeners,
		validate:  validator.New(),
		fanOut:    semaphore.NewWeighted(fanOutConcurrency),
	}
}

func (h *SyncHandler[T, D]) SetPublisher(publisher Publisher) {
	h.publisher = publisher
}

func (h *SyncHandler[T, D]) HandleWebSocketMessage(client *websocket.Client, data []byte) error {
	ctx := context.Background()

	msg, err := websocket.ParseMessage(data)
	if err != nil {
		return client.SendJSON(websocket.NewErrorMessage("Invalid message: %v", err))
	}

	switch msg.Type {
	case websocket.TypeAdd:
		return h.handleAdd(ctx, client, msg)

	case websocket.TypePatch:
		return h.handlePatch(ctx, client, msg)

	case websocket.TypeDetach:
		if err := h.validate.Struct(msg); err != nil {
			return client.SendJSON(websocket.NewErrorMessage("Invalid message: %v", err))
		}
		h.listeners.RemoveListener(msg.DocumentID, Listener{ClientID: msg.ClientID, Conn: client})
		log.Printf("[Sync] Client %s detached from document %s", msg.ClientID, msg.DocumentID)
		return nil

	default:
		return client.SendJSON(websocket.NewErrorMessage("Unknown msgType '%s'", msg.Type))
	}
}

func (h *SyncHandler[T, D]) handleAdd(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	res, err := h.add(ctx, msg)
	if err != nil {
		return client.SendJSON(websocket.NewErrorMessage("%v", err))
	}

	h.listeners.AddListener(msg.DocumentID, Listener{ClientID: msg.ClientID, Conn: client})
	return client.SendJSON(websocket.NewPatchMessage(res))
}

func (h *SyncHandler[T, D]) handlePatch(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	if err := h.validate.Struct(msg); err != nil {
		return client.SendJSON(websocket.NewErrorMessage("Invalid message: %v", err))
	}

	res, err := h.patch(ctx, msg)
	if err != nil {
		return client.SendJSON(websocket.NewErrorMessage("%v", err))
	}

	// A patch on a connection that never added the document comes from a
	// client that reconnected. Only pairs the engine knows get attached.
	listener := Listener{ClientID: msg.ClientID, Conn: client}
	if !h.listeners.IsListening(msg.DocumentID, listener) {
		log.Printf("[Sync] Reconnected client %s, listening on document %s", msg.ClientID, msg.DocumentID)
		h.listeners.AddListener(msg.DocumentID, listener)
	}
	return client.SendJSON(websocket.NewPatchMessage(res))
}

// ClientDisconnected drops every registration of client.
func (h *SyncHandler[T, D]) ClientDisconnected(client *websocket.Client) {
	docs := h.listeners.RemoveMatching(func(l Listener) bool { return l.Conn == client })
	if len(docs) > 0 {
		log.Printf("[Sync] Client connection %s removed from %d document(s)", client.ID, len(docs))
	}
}

func (h *SyncHandler[T, D]) add(ctx context.Context, msg *websocket.Message) (*domain.PatchMessage[D], error) {
	if err := h.validate.Struct(msg); err != nil {
		return nil, invalidRequest("invalid message: %v", err)
	}
	content, err := h.codec.DecodeContent(msg.Content)
	if err != nil {
		return nil, invalidRequest("invalid content: %v", err)
	}

	doc := &domain.Document[T]{ID: msg.DocumentID, Content: content}
	edit, err := h.engine.AddDocument(ctx, doc, msg.ClientID)
	if err != nil {
		return nil, err
	}
	return domain.NewPatchMessage(msg.DocumentID, msg.ClientID, []*domain.Edit[D]{edit}), nil
}

// patch applies the client edits, answers with the pending server edits for
// the client and notifies everybody else.
func (h *SyncHandler[T, D]) patch(ctx context.Context, msg *websocket.Message) (*domain.PatchMessage[D], error) {
	if err := h.validate.Struct(msg); err != nil {
		return nil, invalidRequest("invalid message: %v", err)
	}
	edits, err := h.decodeEdits(msg)
	if err != nil {
		return nil, err
	}

	if err := h.engine.Patch(ctx, domain.NewPatchMessage(msg.DocumentID, msg.ClientID, edits)); err != nil {
		return nil, err
	}

	res, err := h.engine.Diffs(ctx, msg.DocumentID, msg.ClientID)
	if err != nil {
		return nil, err
	}

	// An empty patch only acknowledges server edits.
	if len(edits) > 0 {
		h.NotifyListeners(msg.DocumentID, msg.ClientID)
		if h.publisher != nil {
			if err := h.publisher.Publish(ctx, msg.DocumentID, msg.ClientID); err != nil {
				log.Printf("[Sync] Failed to publish patch of document %s: %v", msg.DocumentID, err)
			}
		}
	}
	return res, nil
}

func (h *SyncHandler[T, D]) decodeEdits(msg *websocket.Message) ([]*domain.Edit[D], error) {
	edits := []*domain.Edit[D]{}
	raw := bytes.TrimSpace(msg.Edits)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, invalidRequest("invalid edits: %v", err)
		}
	}

	for i, edit := range edits {
		if edit == nil {
			return nil, invalidRequest("invalid edits: edit %d is empty", i)
		}
		if err := h.validate.Struct(edit); err != nil {
			return nil, invalidRequest("invalid edits: %v", err)
		}
		edit.DocumentID = msg.DocumentID
		edit.ClientID = msg.ClientID
	}
	return edits, nil
}

// NotifyListeners pushes pending server edits to every listener of
// documentID except those of originClientID. Each listener is served by its
// own goroutine; at most fanOutConcurrency run at once.
func (h *SyncHandler[T, D]) NotifyListeners(documentID, originClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, l := range h.listeners.ListenersFor(documentID) {
		if l.ClientID == originClientID {
			continue
		}

		h.pending.Add(1)
		go func(l Listener) {
			defer h.pending.Done()

			ctx := context.Background()
			if err := h.fanOut.Acquire(ctx, 1); err != nil {
				return
			}
			defer h.fanOut.Release(1)

			res, err := h.engine.Diffs(ctx, documentID, l.ClientID)
			if err != nil {
				log.Printf("[Sync] Failed to diff document %s for client %s: %v", documentID, l.ClientID, err)
				return
			}
			if err := l.Conn.SendJSON(websocket.NewPatchMessage(res)); err != nil {
				log.Printf("[Sync] Failed to notify client %s: %v", l.ClientID, err)
			}
		}(l)
	}
}

// Wait blocks until every notification started so far has finished.
func (h *SyncHandler[T, D]) Wait() {
	h.pending.Wait()
}

// Shutdown stops new notifications and waits for the running ones.
func (h *SyncHandler[T, D]) Shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.pending.Wait()
}

// GetDocument handles GET /api/v1/documents/{id}.
func (h *SyncHandler[T, D]) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.engine.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, doc)
}

// Sync handles POST /api/v1/sync. The body is a single add or patch message.
func (h *SyncHandler[T, D]) Sync(w http.ResponseWriter, r *http.Request) {
	var msg websocket.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	var (
		res *domain.PatchMessage[D]
		err error
	)
	switch msg.Type {
	case websocket.TypeAdd:
		res, err = h.add(r.Context(), &msg)
	case websocket.TypePatch:
		res, err = h.patch(r.Context(), &msg)
	default:
		response.BadRequest(w, fmt.Sprintf("Unknown msgType '%s'", msg.Type))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, websocket.NewPatchMessage(res))
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func invalidRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func writeError(w http.ResponseWriter, err error) {
	var invalid *requestError
	switch {
	case errors.Is(err, service.ErrDocumentNotFound), errors.Is(err, service.ErrShadowNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrDesynchronized):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		response.BadRequest(w, err.Error())
	default:
		log.Printf("[Sync] Request failed: %v", err)
		response.InternalError(w, err.Error())
	}
}
