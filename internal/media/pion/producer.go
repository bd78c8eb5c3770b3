package pion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/iftarcode/sfu-server/internal/media"
)

// producer owns an RTP receiver and the relay pumping its packets out to
// consumer sinks on other transports.
type producer struct {
	id        string
	kind      media.Kind
	transport *transport
	receiver  *webrtc.RTPReceiver
	relay     *relay

	once sync.Once
}

func newProducer(t *transport, kind media.Kind, receiver *webrtc.RTPReceiver, codec webrtc.RTPCodecCapability) *producer {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	rel := newRelay(receiver.Track(), kind, codec, cancel, t.log.With().Str("producer", id).Logger())
	go rel.loop(ctx)
	return &producer{
		id:        id,
		kind:      kind,
		transport: t,
		receiver:  receiver,
		relay:     rel,
	}
}

func (p *producer) ID() string       { return p.id }
func (p *producer) Kind() media.Kind { return p.kind }

func (p *producer) Close() error {
	p.once.Do(func() {
		p.relay.stop()
		p.transport.router.unregisterRelay(p.id)
		p.transport.dropProducer(p.id)
		_ = p.receiver.Stop()
	})
	return nil
}
