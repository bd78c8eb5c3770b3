package pion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iftarcode/sfu-server/internal/media"
)

// router is the per-room routing context. It tracks the relays of every
// producer routed through it so consumers on other transports can subscribe.
type router struct {
	id     string
	worker *Worker
	caps   media.RTPCapabilities
	log    zerolog.Logger

	mu     sync.RWMutex
	relays map[string]*relay // producer id -> relay
	closed bool
}

func newRouter(w *Worker, seq int32) *router {
	id := fmt.Sprintf("%s-router-%d", w.id, seq)
	return &router{
		id:     id,
		worker: w,
		caps:   routerCapabilities(),
		log:    w.log.With().Str("router", id).Logger(),
		relays: make(map[string]*relay),
	}
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() media.RTPCapabilities { return r.caps }

func (r *router) CreateTransport(ctx context.Context) (media.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("pion: router %s is closed", r.id)
	}
	return newTransport(ctx, r)
}

// CanConsume requires the declared capabilities to carry the producer's
// codec; kind alone is not enough.
func (r *router) CanConsume(producerID string, caps media.RTPCapabilities) bool {
	r.mu.RLock()
	rel, ok := r.relays[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, rel.codec.MimeType) {
			return true
		}
	}
	return false
}

func (r *router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	relays := make([]*relay, 0, len(r.relays))
	for _, rel := range r.relays {
		relays = append(relays, rel)
	}
	r.relays = make(map[string]*relay)
	r.mu.Unlock()

	for _, rel := range relays {
		rel.stop()
	}
	r.log.Info().Msg("router closed")
	return nil
}

func (r *router) registerRelay(producerID string, rel *relay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays[producerID] = rel
}

func (r *router) unregisterRelay(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, producerID)
}

func (r *router) relayFor(producerID string) (*relay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relays[producerID]
	return rel, ok
}
