package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/media"
)

// ---- fake media engine ----

type fakeWorker struct {
	id   string
	died chan error
}

func (w *fakeWorker) ID() string         { return w.id }
func (w *fakeWorker) Died() <-chan error { return w.died }
func (w *fakeWorker) Close() error       { return nil }

func (w *fakeWorker) CreateRouter(context.Context) (media.Router, error) {
	return &fakeRouter{
		worker:    w.id,
		producers: make(map[string]*fakeProducer),
	}, nil
}

type fakeRouter struct {
	worker string
	mu     sync.Mutex
	seq    int
	// producers routed through this router, across all transports
	producers map[string]*fakeProducer
	closed    bool
}

func (r *fakeRouter) ID() string { return r.worker + "-router" }

func (r *fakeRouter) RTPCapabilities() media.RTPCapabilities {
	return media.RTPCapabilities{Codecs: []media.RTPCodecCapability{
		{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: media.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	}}
}

func (r *fakeRouter) CreateTransport(context.Context) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return &fakeTransport{
		id:     fmt.Sprintf("%s-transport-%d", r.worker, r.seq),
		router: r,
	}, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps media.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, c := range caps.Codecs {
		if c.Kind == p.kind {
			return true
		}
	}
	return false
}

func (r *fakeRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeTransport struct {
	id        string
	router    *fakeRouter
	mu        sync.Mutex
	connected bool
	closed    bool
	producers []*fakeProducer
	consumers []*fakeConsumer
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Options() media.TransportOptions {
	return media.TransportOptions{
		ID:             t.id,
		ICEParameters:  json.RawMessage(`{}`),
		ICECandidates:  json.RawMessage(`[]`),
		DTLSParameters: json.RawMessage(`{}`),
	}
}

func (t *fakeTransport) Connect(context.Context, json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return media.ErrTransportClosed
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, kind media.Kind, _ json.RawMessage) (media.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, media.ErrTransportNotConnected
	}
	p := &fakeProducer{
		id:        fmt.Sprintf("%s-producer-%d", t.id, len(t.producers)),
		kind:      kind,
		transport: t,
	}
	t.producers = append(t.producers, p)
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, producerID string, _ media.RTPCapabilities) (media.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, media.ErrTransportNotConnected
	}
	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, media.ErrProducerNotFound
	}
	c := &fakeConsumer{
		id:         fmt.Sprintf("%s-consumer-%d", t.id, len(t.consumers)),
		producerID: producerID,
		kind:       p.kind,
		paused:     true,
	}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, p := range t.producers {
		p.closed = true
		t.router.mu.Lock()
		delete(t.router.producers, p.id)
		t.router.mu.Unlock()
	}
	for _, c := range t.consumers {
		c.closed = true
	}
	return nil
}

type fakeProducer struct {
	id        string
	kind      media.Kind
	transport *fakeTransport
	closed    bool
}

func (p *fakeProducer) ID() string       { return p.id }
func (p *fakeProducer) Kind() media.Kind { return p.kind }
func (p *fakeProducer) Close() error     { p.closed = true; return nil }

type fakeConsumer struct {
	id         string
	producerID string
	kind       media.Kind
	paused     bool
	closed     bool
}

func (c *fakeConsumer) ID() string                     { return c.id }
func (c *fakeConsumer) ProducerID() string             { return c.producerID }
func (c *fakeConsumer) Kind() media.Kind               { return c.kind }
func (c *fakeConsumer) RTPParameters() json.RawMessage { return json.RawMessage(`{}`) }
func (c *fakeConsumer) Resume() error                  { c.paused = false; return nil }
func (c *fakeConsumer) Close() error                   { c.closed = true; return nil }

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	broadcast []any
	unicast   map[PeerID][]any
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{unicast: make(map[PeerID][]any)}
}

func (n *recordingNotifier) Broadcast(_ domain.RoomID, _ PeerID, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = append(n.broadcast, v)
}

func (n *recordingNotifier) Unicast(peerID PeerID, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unicast[peerID] = append(n.unicast[peerID], v)
}

func newTestRegistry(t *testing.T, poolSize int) (*Registry, *recordingNotifier) {
	t.Helper()
	workers := make([]media.Worker, poolSize)
	for i := range workers {
		workers[i] = &fakeWorker{id: fmt.Sprintf("worker-%d", i), died: make(chan error)}
	}
	n := newRecordingNotifier()
	return NewRegistry(media.NewPool(workers), n), n
}

func mustJoin(t *testing.T, g *Registry, room domain.RoomID, peer PeerID, name string) JoinResult {
	t.Helper()
	res, err := g.JoinRoom(context.Background(), room, peer, name)
	if err != nil {
		t.Fatalf("JoinRoom(%s, %s): %v", room, peer, err)
	}
	return res
}

func connectedTransport(t *testing.T, g *Registry, room domain.RoomID, peer PeerID) string {
	t.Helper()
	opts, err := g.CreateTransport(context.Background(), room, peer)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if err := g.ConnectTransport(context.Background(), room, peer, opts.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	return opts.ID
}

func audioCaps() media.RTPCapabilities {
	return media.RTPCapabilities{Codecs: []media.RTPCodecCapability{
		{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	}}
}

// ---- tests ----

// Scenario A: with a pool of 2, three distinct new rooms land on workers
// 0, 1, 0.
func TestRoomCreationRoundRobin(t *testing.T) {
	g, _ := newTestRegistry(t, 2)
	ctx := context.Background()

	for i, want := range []string{"worker-0", "worker-1", "worker-0"} {
		room := domain.RoomID(fmt.Sprintf("room-%d", i))
		if _, err := g.JoinRoom(ctx, room, PeerID(fmt.Sprintf("p%d", i)), "guest"); err != nil {
			t.Fatalf("JoinRoom: %v", err)
		}
		got, ok := g.WorkerOf(room)
		if !ok || got != want {
			t.Errorf("room %d bound to %q, want %q", i, got, want)
		}
	}
}

func TestJoinExistingRoomReusesRouter(t *testing.T) {
	g, n := newTestRegistry(t, 2)

	mustJoin(t, g, "room", "p1", "alice")
	mustJoin(t, g, "room", "p2", "bob")

	if got := g.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() = %d, want 1", got)
	}
	// p2's join announced to the room.
	n.mu.Lock()
	defer n.mu.Unlock()
	found := false
	for _, v := range n.broadcast {
		if ev, ok := v.(NewPeerEvent); ok && ev.PeerID == "p2" {
			found = true
		}
	}
	if !found {
		t.Error("newPeer event for p2 not broadcast")
	}
}

func TestProduceRequiresConnectedTransport(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()
	mustJoin(t, g, "room", "p1", "alice")

	opts, err := g.CreateTransport(ctx, "room", "p1")
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if _, err := g.Produce(ctx, "room", "p1", opts.ID, media.KindAudio, json.RawMessage(`{}`)); err != media.ErrTransportNotConnected {
		t.Fatalf("Produce on unconnected transport: got %v, want ErrTransportNotConnected", err)
	}
}

// Scenario B: P2 can consume P1's producer only through a connected
// transport, and the consumer starts paused.
func TestConsumeStartsPaused(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	mustJoin(t, g, "room", "p1", "alice")
	mustJoin(t, g, "room", "p2", "bob")

	t1 := connectedTransport(t, g, "room", "p1")
	producerID, err := g.Produce(ctx, "room", "p1", t1, media.KindAudio, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	// Consuming through an unconnected transport fails.
	opts, err := g.CreateTransport(ctx, "room", "p2")
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if _, err := g.Consume(ctx, "room", "p2", opts.ID, producerID, audioCaps()); err == nil {
		t.Fatal("Consume through unconnected transport succeeded")
	}

	if err := g.ConnectTransport(ctx, "room", "p2", opts.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	res, err := g.Consume(ctx, "room", "p2", opts.ID, producerID, audioCaps())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	room, _ := g.room("room")
	peer, _ := room.peer("p2")
	consumer := peer.consumers[res.ID].(*fakeConsumer)
	if !consumer.paused {
		t.Error("consumer active before resumeConsumer")
	}
	if err := g.ResumeConsumer("room", "p2", res.ID); err != nil {
		t.Fatalf("ResumeConsumer: %v", err)
	}
	if consumer.paused {
		t.Error("consumer still paused after resumeConsumer")
	}
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	mustJoin(t, g, "room", "p1", "alice")
	mustJoin(t, g, "room", "p2", "bob")

	t1 := connectedTransport(t, g, "room", "p1")
	producerID, err := g.Produce(ctx, "room", "p1", t1, media.KindVideo, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	t2 := connectedTransport(t, g, "room", "p2")
	// Audio-only capabilities against a video producer.
	if _, err := g.Consume(ctx, "room", "p2", t2, producerID, audioCaps()); err != ErrCannotConsume {
		t.Fatalf("Consume: got %v, want ErrCannotConsume", err)
	}
}

func TestNotFoundErrors(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	if _, err := g.Capabilities("nope"); err != ErrRoomNotFound {
		t.Errorf("Capabilities: got %v, want ErrRoomNotFound", err)
	}

	mustJoin(t, g, "room", "p1", "alice")
	if _, err := g.CreateTransport(ctx, "room", "ghost"); err != ErrPeerNotFound {
		t.Errorf("CreateTransport: got %v, want ErrPeerNotFound", err)
	}
	if err := g.ConnectTransport(ctx, "room", "p1", "nope", nil); err != ErrTransportNotFound {
		t.Errorf("ConnectTransport: got %v, want ErrTransportNotFound", err)
	}
	if _, err := g.Produce(ctx, "room", "p1", "nope", media.KindAudio, nil); err != ErrTransportNotFound {
		t.Errorf("Produce: got %v, want ErrTransportNotFound", err)
	}
	if err := g.ResumeConsumer("room", "p1", "nope"); err != ErrConsumerNotFound {
		t.Errorf("ResumeConsumer: got %v, want ErrConsumerNotFound", err)
	}
}

// Scenario D: P1 disconnects while P2 consumes P1's producer. P2 gets a
// consumerClosed notification and its consumer map no longer holds the id.
func TestRemovePeerCascades(t *testing.T) {
	g, n := newTestRegistry(t, 1)
	ctx := context.Background()

	mustJoin(t, g, "room", "p1", "alice")
	mustJoin(t, g, "room", "p2", "bob")

	t1 := connectedTransport(t, g, "room", "p1")
	producerID, err := g.Produce(ctx, "room", "p1", t1, media.KindAudio, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	t2 := connectedTransport(t, g, "room", "p2")
	res, err := g.Consume(ctx, "room", "p2", t2, producerID, audioCaps())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	g.RemovePeer(ctx, "room", "p1")

	room, ok := g.room("room")
	if !ok {
		t.Fatal("room destroyed while p2 still joined")
	}
	peer, _ := room.peer("p2")
	room.mu.RLock()
	_, stillThere := peer.consumers[res.ID]
	room.mu.RUnlock()
	if stillThere {
		t.Error("p2 still holds consumer of p1's closed producer")
	}

	n.mu.Lock()
	events := n.unicast["p2"]
	n.mu.Unlock()
	found := false
	for _, v := range events {
		if ev, ok := v.(ConsumerClosedEvent); ok && ev.ConsumerID == res.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("p2 did not receive consumerClosed for %s", res.ID)
	}
}

// Closing a transport leaves zero producers and consumers behind.
func TestRemovePeerClosesOwnResources(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	mustJoin(t, g, "room", "p1", "alice")
	mustJoin(t, g, "room", "p2", "bob")
	t1 := connectedTransport(t, g, "room", "p1")
	if _, err := g.Produce(ctx, "room", "p1", t1, media.KindAudio, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	room, _ := g.room("room")
	peer, _ := room.peer("p1")
	room.mu.RLock()
	transport := peer.transports[t1].(*fakeTransport)
	room.mu.RUnlock()

	g.RemovePeer(ctx, "room", "p1")

	if !transport.closed {
		t.Error("transport not closed on peer removal")
	}
	for _, p := range transport.producers {
		if !p.closed {
			t.Errorf("producer %s outlived its transport", p.id)
		}
	}
}

func TestLastPeerLeavingDestroysRoom(t *testing.T) {
	g, _ := newTestRegistry(t, 1)
	ctx := context.Background()

	mustJoin(t, g, "room", "p1", "alice")
	g.RemovePeer(ctx, "room", "p1")

	if got := g.RoomCount(); got != 0 {
		t.Fatalf("RoomCount() = %d after last peer left, want 0", got)
	}
	// A new join recreates the room from scratch.
	mustJoin(t, g, "room", "p2", "bob")
	if got := g.RoomCount(); got != 1 {
		t.Fatalf("RoomCount() = %d after rejoin, want 1", got)
	}
}
