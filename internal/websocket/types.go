package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAnonymization is emitted after a document is redacted
	EventTypeAnonymization EventType = "anonymization"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeSupplierUpdate is emitted when supplier rules change
	EventTypeSupplierUpdate EventType = "supplier_update"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// AnonymizationEvent summarizes one processed document. It never carries
// document text.
type AnonymizationEvent struct {
	Supplier          string         `json:"proveedor,omitempty"`
	Kind              string         `json:"tipo"`
	Source            string         `json:"origen,omitempty"`
	Anonymized        bool           `json:"anonimizado"`
	TotalReplacements int            `json:"total_replacements"`
	ByType            map[string]int `json:"by_type,omitempty"`
	Records           int            `json:"registros"`
	CacheHit          bool           `json:"cache"`
	ProcessingMS      float64        `json:"processing_ms"`
	Error             string         `json:"error,omitempty"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	ClientIP   string        `json:"client_ip"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// SupplierUpdateEvent reports an admin mutation or a reload from disk
type SupplierUpdateEvent struct {
	Action    string `json:"action"` // put, add_value, delete, reload
	Supplier  string `json:"proveedor,omitempty"`
	Persisted bool   `json:"persistido"`
	Suppliers int    `json:"total_proveedores"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives
type EventFilter struct {
	Suppliers     []string `json:"proveedores,omitempty"`
	OnlyFailures  bool     `json:"only_failures,omitempty"`
	ExcludeHealth bool     `json:"exclude_health,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
