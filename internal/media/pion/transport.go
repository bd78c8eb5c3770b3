package pion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/iftarcode/sfu-server/internal/media"
)

const (
	transportCreated = iota
	transportConnected
	transportClosed
)

// clientParameters is the blob a client sends on connectTransport: its ICE
// credentials plus DTLS role and fingerprints.
type clientParameters struct {
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// produceParameters is the format blob a producing client declares.
type produceParameters struct {
	Encodings []webrtc.RTPCodingParameters `json:"encodings"`
	MID       string                       `json:"mid,omitempty"`
}

// transport is one negotiated endpoint: an ICE transport, a DTLS transport
// on top of it, and the receivers/senders attached to them. State moves
// created -> connected -> closed and never back.
type transport struct {
	id       string
	router   *router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	opts     media.TransportOptions
	log      zerolog.Logger

	mu        sync.Mutex
	state     int
	producers map[string]*producer
	consumers map[string]*consumer
}

func newTransport(ctx context.Context, r *router) (*transport, error) {
	api := r.worker.api

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("pion: new gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("pion: new dtls transport: %w", err)
	}

	gatherDone := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gatherDone)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("pion: gather: %w", err)
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("pion: local candidates: %w", err)
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("pion: local ice parameters: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("pion: local dtls parameters: %w", err)
	}

	id := uuid.NewString()
	opts := media.TransportOptions{ID: id}
	if opts.ICEParameters, err = json.Marshal(iceParams); err != nil {
		return nil, err
	}
	if opts.ICECandidates, err = json.Marshal(candidates); err != nil {
		return nil, err
	}
	if opts.DTLSParameters, err = json.Marshal(dtlsParams); err != nil {
		return nil, err
	}

	return &transport{
		id:        id,
		router:    r,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		opts:      opts,
		log:       r.log.With().Str("transport", id).Logger(),
		state:     transportCreated,
		producers: make(map[string]*producer),
		consumers: make(map[string]*consumer),
	}, nil
}

func (t *transport) ID() string { return t.id }

func (t *transport) Options() media.TransportOptions { return t.opts }

func (t *transport) Connect(ctx context.Context, raw json.RawMessage) error {
	t.mu.Lock()
	switch t.state {
	case transportClosed:
		t.mu.Unlock()
		return media.ErrTransportClosed
	case transportConnected:
		t.mu.Unlock()
		return fmt.Errorf("pion: transport %s already connected", t.id)
	}
	t.mu.Unlock()

	var params clientParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("pion: bad client parameters: %w", err)
	}

	// The server is ICE lite, so it takes the controlled role and the
	// client drives connectivity checks.
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, params.ICEParameters, &role); err != nil {
		return fmt.Errorf("pion: ice start: %w", err)
	}
	if err := t.dtls.Start(params.DTLSParameters); err != nil {
		return fmt.Errorf("pion: dtls start: %w", err)
	}

	t.mu.Lock()
	t.state = transportConnected
	t.mu.Unlock()
	t.log.Info().Msg("transport connected")
	return nil
}

func (t *transport) Produce(ctx context.Context, kind media.Kind, raw json.RawMessage) (media.Producer, error) {
	t.mu.Lock()
	if t.state != transportConnected {
		t.mu.Unlock()
		if t.state == transportClosed {
			return nil, media.ErrTransportClosed
		}
		return nil, media.ErrTransportNotConnected
	}
	t.mu.Unlock()

	codec, ok := codecFor(kind)
	if !ok {
		return nil, fmt.Errorf("pion: unsupported kind %q", kind)
	}
	var params produceParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("pion: bad rtp parameters: %w", err)
	}
	if len(params.Encodings) == 0 {
		return nil, fmt.Errorf("pion: rtp parameters carry no encodings")
	}

	codecType := webrtc.RTPCodecTypeAudio
	if kind == media.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	receiver, err := t.router.worker.api.NewRTPReceiver(codecType, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("pion: new receiver: %w", err)
	}
	encodings := make([]webrtc.RTPDecodingParameters, 0, len(params.Encodings))
	for _, enc := range params.Encodings {
		encodings = append(encodings, webrtc.RTPDecodingParameters{RTPCodingParameters: enc})
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{Encodings: encodings}); err != nil {
		return nil, fmt.Errorf("pion: receive: %w", err)
	}

	p := newProducer(t, kind, receiver, codec.capability)
	t.router.registerRelay(p.id, p.relay)

	t.mu.Lock()
	t.producers[p.id] = p
	t.mu.Unlock()
	t.log.Info().Str("producer", p.id).Str("kind", string(kind)).Msg("producer created")
	return p, nil
}

func (t *transport) Consume(ctx context.Context, producerID string, caps media.RTPCapabilities) (media.Consumer, error) {
	t.mu.Lock()
	if t.state != transportConnected {
		t.mu.Unlock()
		if t.state == transportClosed {
			return nil, media.ErrTransportClosed
		}
		return nil, media.ErrTransportNotConnected
	}
	t.mu.Unlock()

	rel, ok := t.router.relayFor(producerID)
	if !ok {
		return nil, media.ErrProducerNotFound
	}

	c, err := newConsumer(t, producerID, rel)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.consumers[c.id] = c
	t.mu.Unlock()
	t.log.Info().Str("consumer", c.id).Str("producer", producerID).Msg("consumer created paused")
	return c, nil
}

// Close cascades: every producer and consumer attached to the transport is
// closed as a side effect, then the ICE/DTLS pair is torn down.
func (t *transport) Close() error {
	t.mu.Lock()
	if t.state == transportClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = transportClosed
	producers := make([]*producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.producers = make(map[string]*producer)
	t.consumers = make(map[string]*consumer)
	t.mu.Unlock()

	for _, p := range producers {
		_ = p.Close()
	}
	for _, c := range consumers {
		_ = c.Close()
	}

	_ = t.dtls.Stop()
	_ = t.ice.Stop()
	_ = t.gatherer.Close()
	t.log.Info().Msg("transport closed")
	return nil
}

func (t *transport) dropProducer(id string) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *transport) dropConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}
