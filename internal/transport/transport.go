// Package transport defines the interface for pluggable request transports.
//
// Each transport (HTTP/WebSocket, gRPC) accepts synthesis requests and hands
// them to the dispatcher through a Handler. The dispatcher doesn't care how
// requests arrive; it only works with the Transport contract.
package transport

import (
	"context"

	"github.com/nadzzz/htsbridge/internal/utterance"
)

// Handler processes an incoming synthesis request and returns a result.
// The dispatcher provides this handler to each transport.
type Handler func(ctx context.Context, req *utterance.Request) (*utterance.Result, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and dispatches them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
