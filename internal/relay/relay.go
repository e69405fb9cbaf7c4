// Package relay forwards applied-patch notifications between server nodes
// over Redis pub/sub. Every node shares one channel; a node ignores its own
// announcements.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event announces that a client patched a document on Node.
type Event struct {
	DocumentID string `json:"documentId"`
	ClientID   string `json:"clientId"`
	Node       string `json:"node"`
}

// Notifier runs the local fan-out for a document.
type Notifier func(documentID, originClientID string)

type Relay struct {
	client  *redis.Client
	channel string
	nodeID  string
}

func New(client *redis.Client, channel string) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		nodeID:  uuid.New().String(),
	}
}

func (r *Relay) NodeID() string {
	return r.nodeID
}

func (r *Relay) Publish(ctx context.Context, documentID, clientID string) error {
	payload, err := json.Marshal(Event{DocumentID: documentID, ClientID: clientID, Node: r.nodeID})
	if err != nil {
		return fmt.Errorf("failed to encode relay event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish relay event: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and calls notify for every event from
// another node. A broken subscription is retried with exponential backoff.
// Run returns when ctx is done.
func (r *Relay) Run(ctx context.Context, notify Notifier) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		subscribed, err := r.subscribe(ctx, notify)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		// A subscription that was established starts the backoff over.
		if subscribed {
			policy.Reset()
		}
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		log.Printf("[Relay] Subscription to %s lost: %v, retrying in %v", r.channel, err, wait)
	})

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Relay) subscribe(ctx context.Context, notify Notifier) (bool, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Printf("[Relay] Node %s subscribed to %s", r.nodeID, r.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return true, errors.New("subscription closed")
			}
			r.handle(msg.Payload, notify)
		}
	}
}

// handle decodes one payload and reports whether it triggered a fan-out.
func (r *Relay) handle(payload string, notify Notifier) bool {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("[Relay] Dropping malformed event: %v", err)
		return false
	}
	if event.Node == r.nodeID || event.DocumentID == "" {
		return false
	}

	notify(event.DocumentID, event.ClientID)
	return true
}
