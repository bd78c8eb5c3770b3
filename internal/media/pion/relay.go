package pion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/iftarcode/sfu-server/internal/media"
)

const (
	sinkPaused int32 = iota
	sinkActive
	sinkClosed
)

// outTrack is a single outgoing track toward one consumer.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state int32 // accessed atomically (sinkPaused/Active/Closed)
}

func (o *outTrack) setState(s int32) { atomic.StoreInt32(&o.state, s) }
func (o *outTrack) loadState() int32 { return atomic.LoadInt32(&o.state) }

// relay pumps RTP from one producer's remote track to every consumer sink.
// Sinks start paused and deliver nothing until resumed.
type relay struct {
	src   *webrtc.TrackRemote
	kind  media.Kind
	codec webrtc.RTPCodecCapability

	mu    sync.RWMutex
	sinks map[string]*outTrack // consumer id -> sink

	cancel context.CancelFunc
	log    zerolog.Logger
}

func newRelay(src *webrtc.TrackRemote, kind media.Kind, codec webrtc.RTPCodecCapability, cancel context.CancelFunc, logger zerolog.Logger) *relay {
	return &relay{
		src:    src,
		kind:   kind,
		codec:  codec,
		sinks:  make(map[string]*outTrack),
		cancel: cancel,
		log:    logger,
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
func (r *relay) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.markAllClosed()
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			r.log.Debug().Err(err).Msg("relay read RTP error, stopping")
			r.markAllClosed()
			return
		}
		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	dirty := false
	for id, sink := range r.sinks {
		switch sink.loadState() {
		case sinkClosed:
			dirty = true
			continue
		case sinkPaused:
			continue
		}
		if err := sink.track.WriteRTP(pkt); err != nil {
			r.log.Debug().Err(err).Str("consumer", id).Msg("relay write RTP error, closing sink")
			sink.setState(sinkClosed)
			dirty = true
		}
	}
	r.mu.RUnlock()

	// Cleanup is done outside the RLock.
	if dirty {
		r.cleanupClosed()
	}
}

func (r *relay) cleanupClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sink := range r.sinks {
		if sink.loadState() == sinkClosed {
			delete(r.sinks, id)
		}
	}
}

func (r *relay) addSink(consumerID string, track *webrtc.TrackLocalStaticRTP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[consumerID] = &outTrack{track: track, state: sinkPaused}
}

func (r *relay) resumeSink(consumerID string) bool {
	r.mu.RLock()
	sink, ok := r.sinks[consumerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	// closed -> active would reverse the state machine
	return atomic.CompareAndSwapInt32(&sink.state, sinkPaused, sinkActive)
}

func (r *relay) removeSink(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink, ok := r.sinks[consumerID]; ok {
		sink.setState(sinkClosed)
		delete(r.sinks, consumerID)
	}
}

func (r *relay) markAllClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range r.sinks {
		sink.setState(sinkClosed)
	}
}

func (r *relay) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.markAllClosed()
}
