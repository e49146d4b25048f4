package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
	"github.com/formwright/formwright/internal/validator"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	tmpDir := t.TempDir()

	db, err := database.Open(&config.DatabaseConfig{Path: tmpDir + "/test.db"})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testStores(t *testing.T, db *database.DB) (*forms.Store, *responses.Store) {
	t.Helper()
	formStore := forms.NewStore(db)
	respStore := responses.NewStore(db, validator.New())
	return formStore, respStore
}

func testFormWithOwner(t *testing.T, formStore *forms.Store, owner string) *forms.Form {
	t.Helper()
	form, err := formStore.CreateForm(context.Background(), forms.CreateFormInput{
		Title: "Intake", Slug: "intake-" + owner, CreatedBy: owner,
	})
	if err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}
	return form
}

func TestSubscriptionIndex(t *testing.T) {
	idx := NewSubscriptionIndex()

	sub1 := &Subscription{ID: "sub1", Collection: "form1"}
	sub2 := &Subscription{ID: "sub2", Collection: "form1"}
	sub3 := &Subscription{ID: "sub3", Collection: "form2"}

	idx.Add(sub1)
	idx.Add(sub2)
	idx.Add(sub3)

	if idx.Count() != 3 {
		t.Errorf("Expected count 3, got %d", idx.Count())
	}

	if idx.CollectionCount("form1") != 2 {
		t.Errorf("Expected form1 count 2, got %d", idx.CollectionCount("form1"))
	}

	candidates := idx.GetCandidates("form1")
	if len(candidates) != 2 {
		t.Errorf("Expected 2 candidates, got %d", len(candidates))
	}

	idx.Remove(sub1)
	if idx.CollectionCount("form1") != 1 {
		t.Errorf("Expected form1 count 1 after removal, got %d", idx.CollectionCount("form1"))
	}
}

func TestNewSubscription(t *testing.T) {
	payload := &SubscribePayload{
		Collection: "form1",
		Limit:      50,
	}

	sub := NewSubscription("client1", payload)

	if sub.Collection != "form1" {
		t.Errorf("Expected collection form1, got %s", sub.Collection)
	}

	if sub.Limit != 50 {
		t.Errorf("Expected limit 50, got %d", sub.Limit)
	}

	if sub.State != SubscriptionStateActive {
		t.Errorf("Expected state active, got %s", sub.State)
	}
}

func TestNewSubscriptionLimitCapping(t *testing.T) {
	tests := []struct {
		name          string
		inputLimit    int
		expectedLimit int
	}{
		{"zero defaults to 50", 0, 50},
		{"negative defaults to 50", -1, 50},
		{"under max stays same", 100, 100},
		{"over max capped to 200", 500, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := &SubscribePayload{
				Collection: "form1",
				Limit:      tt.inputLimit,
			}
			sub := NewSubscription("client1", payload)
			if sub.Limit != tt.expectedLimit {
				t.Errorf("Expected limit %d, got %d", tt.expectedLimit, sub.Limit)
			}
		})
	}
}

func TestChangesIsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		changes  Changes
		expected bool
	}{
		{"empty", Changes{}, true},
		{"with insert", Changes{Inserts: []any{map[string]any{"id": "1"}}}, false},
		{"with update", Changes{Updates: []any{map[string]any{"id": "1"}}}, false},
		{"with delete", Changes{Deletes: []string{"1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.changes.IsEmpty() != tt.expected {
				t.Errorf("Expected IsEmpty() = %v, got %v", tt.expected, tt.changes.IsEmpty())
			}
		})
	}
}

func TestBrokerBasic(t *testing.T) {
	db := testDB(t)
	formStore, respStore := testStores(t, db)

	broker := NewBroker(formStore, respStore, &BrokerConfig{MaxConnections: 100})
	if broker == nil {
		t.Fatal("Failed to create broker")
	}

	if broker.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", broker.ClientCount())
	}

	if broker.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", broker.SubscriptionCount())
	}
}

func TestBrokerSubscribeRequiresViewPermission(t *testing.T) {
	db := testDB(t)
	formStore, respStore := testStores(t, db)
	form := testFormWithOwner(t, formStore, "owner1")

	broker := NewBroker(formStore, respStore, nil)
	client := NewClient(nil, broker, &auth.User{ID: "stranger"})

	sub := NewSubscription(client.ID, &SubscribePayload{Collection: form.ID, Limit: 10})
	sub.ID = "sub1"

	if _, err := broker.Subscribe(client, client.actor, sub); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for a user with no access, got %v", err)
	}
}

func TestBrokerSubscribeUnknownForm(t *testing.T) {
	db := testDB(t)
	formStore, respStore := testStores(t, db)

	broker := NewBroker(formStore, respStore, nil)
	client := NewClient(nil, broker, &auth.User{ID: "owner1"})

	sub := NewSubscription(client.ID, &SubscribePayload{Collection: "does-not-exist", Limit: 10})
	sub.ID = "sub1"

	if _, err := broker.Subscribe(client, client.actor, sub); err != ErrCollectionNotFound {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	db := testDB(t)
	formStore, respStore := testStores(t, db)
	form := testFormWithOwner(t, formStore, "owner1")

	version, err := formStore.CreateVersion(context.Background(), form.ID, forms.CreateVersionInput{
		Version: "v1", CreatedBy: "owner1",
		Sections: []forms.Section{{
			ID: "s1", Order: 0,
			Questions: []forms.Question{{ID: "q1", Label: "Name", FieldType: forms.FieldInput, Order: 0}},
		}},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if err := formStore.ActivateVersion(context.Background(), form.ID, version.Version); err != nil {
		t.Fatalf("ActivateVersion failed: %v", err)
	}
	if _, err := formStore.TransitionStatus(context.Background(), form.ID, forms.StatusPublished); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	form, err = formStore.GetForm(context.Background(), form.ID)
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}

	broker := NewBroker(formStore, respStore, nil)
	client := NewClient(nil, broker, &auth.User{ID: "owner1"})
	broker.RegisterClient(client)

	sub := NewSubscription(client.ID, &SubscribePayload{Collection: form.ID, Limit: 10})
	sub.ID = "sub1"

	snapshot, err := broker.Subscribe(client, client.actor, sub)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if snapshot.Total != 0 {
		t.Errorf("expected empty initial snapshot, got %d docs", snapshot.Total)
	}
	if broker.SubscriptionCount() != 1 {
		t.Errorf("expected 1 subscription, got %d", broker.SubscriptionCount())
	}

	resp, _, err := respStore.Submit(context.Background(), responses.SubmitInput{
		Form: form, Version: version, SubmittedBy: "anonymous",
		Payload: map[string]any{"s1": map[string]any{"q1": "hello"}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	broker.Publish(resp)

	select {
	case data := <-client.sendCh:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if msg.Type != MessageTypeDelta {
			t.Errorf("expected delta message, got %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a published delta to reach the client's send buffer")
	}

	broker.UnregisterClient(client.ID)
	if broker.SubscriptionCount() != 0 {
		t.Errorf("expected subscription to be cleaned up on unregister, got %d", broker.SubscriptionCount())
	}
}

func TestMessageTypes(t *testing.T) {
	tests := []struct {
		msgType  MessageType
		expected string
	}{
		{MessageTypeSubscribe, "subscribe"},
		{MessageTypeUnsubscribe, "unsubscribe"},
		{MessageTypePing, "ping"},
		{MessageTypeConnected, "connected"},
		{MessageTypeSnapshot, "snapshot"},
		{MessageTypeDelta, "delta"},
		{MessageTypeError, "error"},
		{MessageTypePong, "pong"},
	}

	for _, tt := range tests {
		if string(tt.msgType) != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, tt.msgType)
		}
	}
}

func TestMessageJSON(t *testing.T) {
	msg := Message{
		ID:   "msg1",
		Type: MessageTypeSubscribe,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if decoded.ID != msg.ID {
		t.Errorf("Expected ID %s, got %s", msg.ID, decoded.ID)
	}

	if decoded.Type != msg.Type {
		t.Errorf("Expected type %s, got %s", msg.Type, decoded.Type)
	}
}

func TestWebSocketHandshake(t *testing.T) {
	db := testDB(t)
	formStore, respStore := testStores(t, db)

	broker := NewBroker(formStore, respStore, &BrokerConfig{MaxConnections: 100})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker.Start(ctx)
	defer broker.Stop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			t.Errorf("Failed to accept WebSocket: %v", err)
			return
		}

		client := NewClient(conn, broker, &auth.User{ID: "owner1"})
		broker.RegisterClient(client)

		connPayload, _ := json.Marshal(&ConnectedPayload{ClientID: client.ID})

		payload := Message{
			Type:    MessageTypeConnected,
			Payload: connPayload,
		}
		data, _ := json.Marshal(payload)

		writeCtx, writeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer writeCancel()
		if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
			t.Errorf("Failed to write message: %v", err)
			return
		}

		time.Sleep(200 * time.Millisecond)
		broker.UnregisterClient(client.ID)
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()

	_, data, err := conn.Read(ctx2)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			t.Skip("Connection closed normally before message received")
		}
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if msg.Type != MessageTypeConnected {
		t.Errorf("Expected connected message, got %s", msg.Type)
	}
}
