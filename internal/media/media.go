// Package media defines the coordination layer's view of the media engine:
// opaque handles for workers, per-room routers and the per-peer resource
// graph (transports, producers, consumers). The engine only ever carries
// control messages here; media bytes flow inside the engine adapter.
package media

import (
	"context"
	"encoding/json"
	"errors"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindAudio || k == KindVideo }

var (
	ErrNoWorkersAvailable    = errors.New("media: no workers available")
	ErrTransportNotConnected = errors.New("media: transport not connected")
	ErrTransportClosed       = errors.New("media: transport closed")
	ErrProducerNotFound      = errors.New("media: producer not found")
)

// RTPCodecCapability describes one codec a router can route.
type RTPCodecCapability struct {
	Kind       Kind   `json:"kind"`
	MimeType   string `json:"mimeType"`
	ClockRate  uint32 `json:"clockRate"`
	Channels   uint16 `json:"channels,omitempty"`
	Parameters string `json:"parameters,omitempty"`
}

// RTPCapabilities is the read-only snapshot handed to newly joined peers
// and declared back by consumers.
type RTPCapabilities struct {
	Codecs []RTPCodecCapability `json:"codecs"`
}

// TransportOptions is what a client needs to connect to a server-side
// transport. The negotiation blobs are opaque to the coordination layer.
type TransportOptions struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// Worker is an opaque handle to one media engine instance. Workers are
// created once at process start and are never replaced; a value on Died
// is fatal for the whole server.
type Worker interface {
	ID() string
	CreateRouter(ctx context.Context) (Router, error)
	Died() <-chan error
	Close() error
}

// Router is the per-room routing context, bound to exactly one Worker for
// its whole lifetime.
type Router interface {
	ID() string
	RTPCapabilities() RTPCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether a consumer with the declared capabilities
	// can receive the given producer's media.
	CanConsume(producerID string, caps RTPCapabilities) bool
	Close() error
}

// Transport is a negotiated network endpoint. It must reach the connected
// state before it can carry a Producer or Consumer, and its state only
// moves forward: created, connected, closed.
type Transport interface {
	ID() string
	Options() TransportOptions
	// Connect completes the ICE/DTLS handshake using the client's
	// negotiation parameters (opaque blob, engine-defined shape).
	Connect(ctx context.Context, clientParameters json.RawMessage) error
	Produce(ctx context.Context, kind Kind, rtpParameters json.RawMessage) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities) (Consumer, error)
	Close() error
}

// Producer is an outbound media source attached to exactly one Transport.
type Producer interface {
	ID() string
	Kind() Kind
	Close() error
}

// Consumer is an inbound media sink bound to one remote Producer. Consumers
// are created paused and deliver nothing until Resume.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() json.RawMessage
	Resume() error
	Close() error
}
