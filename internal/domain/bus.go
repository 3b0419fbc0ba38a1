package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require a scope (user ID) for isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, scope string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, scope string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// AllScopes is the subscription scope that receives events for every user.
const AllScopes = "_all"

// Standard topic names for the scan pipeline.
const (
	TopicScanRecorded         = "paysentry.scan.recorded"
	TopicScanRisky            = "paysentry.scan.risky"
	TopicGeoAnomaly           = "paysentry.geo.anomaly"
	TopicSuggestionsGenerated = "paysentry.suggestions.generated"
)

// ScanEvent is the payload published on TopicScanRecorded and TopicScanRisky.
type ScanEvent struct {
	UserID  string     `json:"userId"`
	TraceID string     `json:"traceId,omitempty"`
	Scan    ScanRecord `json:"scan"`
	Risk    RiskResult `json:"risk"`
}

// GeoEvent is the payload published on TopicGeoAnomaly.
type GeoEvent struct {
	UserID      string          `json:"userId"`
	ScanID      string          `json:"scanId"`
	Unusual     UnusualLocation `json:"unusual"`
	FraudAlerts []FraudAlert    `json:"fraudAlerts,omitempty"`
	ZoneExits   []SafeZone      `json:"zoneExits,omitempty"`
}

// SuggestionsEvent is the payload published on TopicSuggestionsGenerated.
type SuggestionsEvent struct {
	UserID      string       `json:"userId"`
	ScanID      string       `json:"scanId"`
	Suggestions []Suggestion `json:"suggestions"`
}
