package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
	"github.com/formwright/formwright/internal/responses"
)

// Broker fans newly submitted form responses out to clients watching a
// form's live feed. A subscription's Collection field holds the form ID it
// watches, so the wire protocol and SubscriptionIndex need no change to
// move from the teacher's generic per-collection design to this
// single-purpose one.
type Broker struct {
	forms     *forms.Store
	responses *responses.Store

	clients       map[string]*Client
	subscriptions map[string]*Subscription
	index         *SubscriptionIndex

	mu sync.RWMutex
}

// BrokerConfig configures a Broker's limits. MaxConnections is not
// enforced: NewBroker does not keep cfg, and the number of connected
// clients is not capped.
type BrokerConfig struct {
	MaxConnections int
}

// NewBroker builds a Broker that serves live submission feeds backed by
// formStore and respStore.
func NewBroker(formStore *forms.Store, respStore *responses.Store, cfg *BrokerConfig) *Broker {
	if cfg == nil {
		cfg = &BrokerConfig{MaxConnections: 1000}
	}
	return &Broker{
		forms:         formStore,
		responses:     respStore,
		clients:       make(map[string]*Client),
		subscriptions: make(map[string]*Subscription),
		index:         NewSubscriptionIndex(),
	}
}

// Start is a no-op; the broker is push-driven by Publish rather than a
// polling loop, so there is no background goroutine to start.
func (b *Broker) Start(ctx context.Context) error {
	return nil
}

// Stop disconnects every connected client.
func (b *Broker) Stop() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.clients = make(map[string]*Client)
	b.subscriptions = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, client := range clients {
		client.CloseWithoutUnsubscribe()
	}
}

// RegisterClient adds a newly connected client to the broker.
func (b *Broker) RegisterClient(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client.ID] = client
	log.Debug().Str("client_id", client.ID).Int("total_clients", len(b.clients)).Msg("realtime client connected")
}

// UnregisterClient removes a disconnected client and its subscriptions.
func (b *Broker) UnregisterClient(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	client, ok := b.clients[clientID]
	if !ok {
		return
	}
	for _, sub := range client.Subscriptions() {
		delete(b.subscriptions, sub.ID)
		b.index.Remove(sub)
	}
	delete(b.clients, clientID)
	log.Debug().Str("client_id", clientID).Int("total_clients", len(b.clients)).Msg("realtime client disconnected")
}

// SubscriptionSnapshot holds the initial page of responses sent back when a
// subscription is created.
type SubscriptionSnapshot struct {
	Docs  []any
	Total int64
}

// Subscribe attaches client to the live feed for the form named in
// sub.Collection, gated by the same permissions.ActionView check the
// response-listing HTTP handlers use — only users who may view a form's
// responses may watch them stream in.
func (b *Broker) Subscribe(client *Client, actor *auth.User, sub *Subscription) (*SubscriptionSnapshot, error) {
	formID := sub.Collection
	form, err := b.forms.GetForm(context.Background(), formID)
	if err != nil {
		return nil, ErrCollectionNotFound
	}
	if !permissions.HasPermission(actor, form, permissions.ActionView) {
		return nil, ErrForbidden
	}

	if err := client.AddSubscription(sub); err != nil {
		return nil, err
	}

	limit := sub.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	page, err := b.responses.ListPaginated(context.Background(), responses.ListPaginatedFilter{FormID: formID, Limit: limit})
	if err != nil {
		client.RemoveSubscription(sub.ID)
		return nil, err
	}

	docs := make([]any, 0, len(page))
	for _, resp := range page {
		docs = append(docs, resp)
	}

	b.mu.Lock()
	b.subscriptions[sub.ID] = sub
	b.index.Add(sub)
	b.mu.Unlock()

	return &SubscriptionSnapshot{Docs: docs, Total: int64(len(docs))}, nil
}

// Unsubscribe removes a subscription by ID.
func (b *Broker) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscriptions[subID]
	if !ok {
		return
	}
	delete(b.subscriptions, subID)
	b.index.Remove(sub)
}

// Publish broadcasts a newly submitted or updated response to every client
// watching its form's feed. Called directly from responses.Store rather
// than detected by polling a changes table, since every mutation to a
// response already flows through that one in-process store.
func (b *Broker) Publish(resp *responses.FormResponse) {
	b.mu.RLock()
	candidates := b.index.GetCandidates(resp.FormID)
	b.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}

	for _, sub := range candidates {
		client := b.getClient(sub.ClientID)
		if client == nil {
			continue
		}

		payload, err := json.Marshal(&DeltaPayload{SubscriptionID: sub.ID, Changes: Changes{Inserts: []any{resp}}})
		if err != nil {
			log.Error().Err(err).Str("form_id", resp.FormID).Msg("marshaling realtime delta failed")
			continue
		}
		_ = client.Send(&Message{Type: MessageTypeDelta, Payload: payload})
	}
}

func (b *Broker) getClient(clientID string) *Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clients[clientID]
}

// ClientCount reports the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// SubscriptionCount reports the number of active subscriptions.
func (b *Broker) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// BrokerStats summarizes broker load for the health/metrics endpoints.
type BrokerStats struct {
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// Stats returns current broker load.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BrokerStats{Connections: len(b.clients), Subscriptions: len(b.subscriptions)}
}

// IsEmpty returns true if a delta carries no changes.
func (c *Changes) IsEmpty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}
