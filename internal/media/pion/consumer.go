package pion

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/iftarcode/sfu-server/internal/media"
)

// consumer owns an RTP sender fed by a producer's relay. It is created as
// a paused sink and yields no media until resumed.
type consumer struct {
	id         string
	producerID string
	kind       media.Kind
	transport  *transport
	sender     *webrtc.RTPSender
	relay      *relay
	rtpParams  json.RawMessage

	once sync.Once
}

func newConsumer(t *transport, producerID string, rel *relay) (*consumer, error) {
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(rel.codec, id, "sfu-"+producerID)
	if err != nil {
		return nil, fmt.Errorf("pion: new local track: %w", err)
	}
	sender, err := t.router.worker.api.NewRTPSender(local, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("pion: new sender: %w", err)
	}
	params := sender.GetParameters()
	if err := sender.Send(params); err != nil {
		return nil, fmt.Errorf("pion: send: %w", err)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	rel.addSink(id, local)
	return &consumer{
		id:         id,
		producerID: producerID,
		kind:       rel.kind,
		transport:  t,
		sender:     sender,
		relay:      rel,
		rtpParams:  raw,
	}, nil
}

func (c *consumer) ID() string                     { return c.id }
func (c *consumer) ProducerID() string             { return c.producerID }
func (c *consumer) Kind() media.Kind               { return c.kind }
func (c *consumer) RTPParameters() json.RawMessage { return c.rtpParams }

func (c *consumer) Resume() error {
	if !c.relay.resumeSink(c.id) {
		return fmt.Errorf("pion: consumer %s cannot resume", c.id)
	}
	return nil
}

func (c *consumer) Close() error {
	c.once.Do(func() {
		c.relay.removeSink(c.id)
		c.transport.dropConsumer(c.id)
		_ = c.sender.Stop()
	})
	return nil
}
