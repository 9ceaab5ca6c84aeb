package media

import (
	"context"
	"errors"
)

var (
	// ErrIncompatibleCapabilities is the engine's refusal to consume a
	// producer with the capabilities the client advertised.
	ErrIncompatibleCapabilities = errors.New("cannot consume: incompatible rtp capabilities")
	ErrUnknownProducer          = errors.New("unknown producer")
	ErrClosed                   = errors.New("media resource closed")
)

type WorkerSettings struct {
	RTCMinPort  int
	RTCMaxPort  int
	AnnouncedIP string
}

// Engine spawns workers. Implementations wrap whatever actually moves
// RTP; the orchestrator never looks behind this interface.
type Engine interface {
	NewWorker(ctx context.Context, settings WorkerSettings) (Worker, error)
}

type Worker interface {
	// CreateSession makes a media session for one room.
	CreateSession(ctx context.Context) (Session, error)
	// OnDied registers a hook for unrecoverable worker failure.
	OnDied(func())
	Close()
}

// Session is the per-room media context. All transports of all peers
// in one room hang off the same session.
type Session interface {
	RTPCapabilities() RTPCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
}

type Transport interface {
	ID() string
	Params() TransportParams
	Connect(ctx context.Context, dtls DTLSParameters) error
	Produce(ctx context.Context, kind Kind, rtp RTPParameters) (Producer, error)
	// Consume creates a paused consumer; the caller must Resume it.
	Consume(ctx context.Context, producerID string, caps RTPCapabilities) (Consumer, error)
	Close()
}

type Producer interface {
	ID() string
	Kind() Kind
	Close()
}

type Consumer interface {
	ID() string
	ProducerID() string
	Params() ConsumerParams
	Resume(ctx context.Context) error
	Close()
}
