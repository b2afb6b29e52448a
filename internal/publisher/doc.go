// Package publisher defines the message publisher used for run notifications.
package publisher

import "context"

// Publisher delivers a JSON-serialisable payload to topic and returns the
// broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Attributed payloads carry message attributes alongside the body.
type Attributed interface {
	Attributes() map[string]string
}
