package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, config *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsAnonymizationEvents(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastAnonymizations: true})

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.BroadcastEvent(Event{
		Type: EventTypeAnonymization,
		Data: AnonymizationEvent{Supplier: "acme", Kind: "documento", Anonymized: true, TotalReplacements: 3},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type EventType      `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventTypeAnonymization, got.Type)
	assert.Equal(t, "acme", got.Data["proveedor"])
	assert.EqualValues(t, 3, got.Data["total_replacements"])
}

func TestHubDropsDisabledEventTypes(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastAnonymizations: true}, zap.NewNop())
	hub.BroadcastEvent(Event{Type: EventTypeRequestLog})
	assert.Len(t, hub.broadcast, 0)
	hub.BroadcastEvent(Event{Type: EventTypeAnonymization})
	assert.Len(t, hub.broadcast, 1)
}

func TestHubBasicAuth(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{Username: "admin", Password: "s3cret"})

	_, resp, err := dial(t, srv, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "wrong")
	_, resp, err = dial(t, srv, req.Header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "s3cret")
	conn, _, err := dial(t, srv, req.Header)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)
}

func TestEventFilter(t *testing.T) {
	filter := &EventFilter{Suppliers: []string{"acme"}, OnlyFailures: true, ExcludeHealth: true}

	assert.False(t, applyEventFilter(filter, Event{Data: AnonymizationEvent{Supplier: "acme"}}))
	assert.True(t, applyEventFilter(filter, Event{Data: AnonymizationEvent{Supplier: "acme", Error: "boom"}}))
	assert.False(t, applyEventFilter(filter, Event{Data: AnonymizationEvent{Supplier: "otro", Error: "boom"}}))
	assert.True(t, applyEventFilter(filter, Event{Data: SupplierUpdateEvent{Action: "reload"}}))
	assert.False(t, applyEventFilter(filter, Event{Data: SupplierUpdateEvent{Supplier: "otro"}}))
	assert.False(t, applyEventFilter(filter, Event{Data: RequestLogEvent{Path: "/health", StatusCode: 500}}))
	assert.True(t, applyEventFilter(filter, Event{Data: RequestLogEvent{Path: "/extraer", StatusCode: 502}}))
}

func TestShouldSendToClientSubscription(t *testing.T) {
	client := &Client{}
	assert.True(t, shouldSendToClient(client, Event{Type: EventTypeConnection}))

	client.Subscription = &SubscriptionRequest{Events: []EventType{EventTypeSupplierUpdate}}
	assert.False(t, shouldSendToClient(client, Event{Type: EventTypeConnection}))
	assert.True(t, shouldSendToClient(client, Event{Type: EventTypeSupplierUpdate}))
}
