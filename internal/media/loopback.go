package media

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// OpusCapabilities is the audio-only codec set every room advertises.
func OpusCapabilities() RTPCapabilities {
	return RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}},
	}
}

// LoopbackEngine is an in-process Engine used for local runs and tests.
// It performs no real negotiation or forwarding; it only keeps the
// producer/consumer bookkeeping an external engine would.
type LoopbackEngine struct{}

func NewLoopbackEngine() *LoopbackEngine { return &LoopbackEngine{} }

func (*LoopbackEngine) NewWorker(_ context.Context, settings WorkerSettings) (Worker, error) {
	return &loopbackWorker{settings: settings}, nil
}

type loopbackWorker struct {
	settings WorkerSettings

	mu     sync.Mutex
	died   func()
	closed bool
}

func (w *loopbackWorker) CreateSession(context.Context) (Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	return &loopbackSession{
		caps:      OpusCapabilities(),
		producers: make(map[string]Kind),
	}, nil
}

func (w *loopbackWorker) OnDied(f func()) {
	w.mu.Lock()
	w.died = f
	w.mu.Unlock()
}

func (w *loopbackWorker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Die triggers the registered death hook. Test helper.
func (w *loopbackWorker) Die() {
	w.mu.Lock()
	f := w.died
	w.mu.Unlock()
	if f != nil {
		f()
	}
}

type loopbackSession struct {
	caps RTPCapabilities

	mu        sync.Mutex
	producers map[string]Kind
}

func (s *loopbackSession) RTPCapabilities() RTPCapabilities { return s.caps }

func (s *loopbackSession) CreateTransport(context.Context) (Transport, error) {
	return &loopbackTransport{
		id:   uuid.NewString(),
		sess: s,
		params: TransportParams{
			ICEParameters: webrtc.ICEParameters{
				UsernameFragment: uuid.NewString()[:8],
				Password:         uuid.NewString(),
			},
			ICECandidates: []webrtc.ICECandidateInit{
				{Candidate: "candidate:0 1 udp 2122260223 127.0.0.1 40000 typ host"},
			},
			DTLSParameters: DTLSParameters{
				Role: "auto",
				Fingerprints: []webrtc.DTLSFingerprint{
					{Algorithm: "sha-256", Value: uuid.NewString()},
				},
			},
		},
	}, nil
}

type loopbackTransport struct {
	id     string
	sess   *loopbackSession
	params TransportParams

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *loopbackTransport) ID() string { return t.id }

func (t *loopbackTransport) Params() TransportParams {
	p := t.params
	p.ID = t.id
	return p
}

func (t *loopbackTransport) Connect(_ context.Context, dtls DTLSParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.connected = true
	return nil
}

func (t *loopbackTransport) Produce(_ context.Context, kind Kind, _ RTPParameters) (Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.mu.Unlock()

	id := uuid.NewString()
	t.sess.mu.Lock()
	t.sess.producers[id] = kind
	t.sess.mu.Unlock()
	return &loopbackProducer{id: id, kind: kind, sess: t.sess}, nil
}

func (t *loopbackTransport) Consume(_ context.Context, producerID string, caps RTPCapabilities) (Consumer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.mu.Unlock()

	t.sess.mu.Lock()
	kind, ok := t.sess.producers[producerID]
	t.sess.mu.Unlock()
	if !ok {
		return nil, ErrUnknownProducer
	}
	if !canConsume(kind, caps) {
		return nil, ErrIncompatibleCapabilities
	}

	return &loopbackConsumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       kind,
		rtp: RTPParameters{
			Codecs: []webrtc.RTPCodecParameters{{
				RTPCodecCapability: t.sess.caps.Codecs[0],
				PayloadType:        111,
			}},
		},
		paused: true,
	}, nil
}

func (t *loopbackTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func canConsume(kind Kind, caps RTPCapabilities) bool {
	for _, c := range caps.Codecs {
		if strings.HasPrefix(strings.ToLower(c.MimeType), string(kind)+"/") {
			return true
		}
	}
	return false
}

type loopbackProducer struct {
	id   string
	kind Kind
	sess *loopbackSession
}

func (p *loopbackProducer) ID() string { return p.id }
func (p *loopbackProducer) Kind() Kind { return p.kind }

func (p *loopbackProducer) Close() {
	p.sess.mu.Lock()
	delete(p.sess.producers, p.id)
	p.sess.mu.Unlock()
}

type loopbackConsumer struct {
	id         string
	producerID string
	kind       Kind
	rtp        RTPParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *loopbackConsumer) ID() string         { return c.id }
func (c *loopbackConsumer) ProducerID() string { return c.producerID }

func (c *loopbackConsumer) Params() ConsumerParams {
	return ConsumerParams{
		ID:            c.id,
		ProducerID:    c.producerID,
		Kind:          c.kind,
		RTPParameters: c.rtp,
	}
}

func (c *loopbackConsumer) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.paused = false
	return nil
}

func (c *loopbackConsumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
