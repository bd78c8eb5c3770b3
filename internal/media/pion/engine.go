// Package pion implements the media engine ports on pion/webrtc. A Worker
// is one in-process engine instance with its own slice of the configured
// UDP port range; transports are built from pion's ORTC-style primitives
// so clients connect with plain ICE/DTLS parameter objects instead of SDP.
package pion

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/media"
)

type Config struct {
	ListenIP       string
	AnnouncedIP    string
	RTCMinPort     uint16
	RTCMaxPort     uint16
	InitialBitrate int
	MinimumBitrate int
}

type engineCodec struct {
	kind        media.Kind
	capability  webrtc.RTPCodecCapability
	payloadType webrtc.PayloadType
}

var defaultCodecs = []engineCodec{
	{
		kind: media.KindAudio,
		capability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		payloadType: 111,
	},
	{
		kind: media.KindVideo,
		capability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		payloadType: 96,
	},
	{
		kind: media.KindVideo,
		capability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		payloadType: 102,
	},
}

func codecFor(kind media.Kind) (engineCodec, bool) {
	for _, c := range defaultCodecs {
		if c.kind == kind {
			return c, true
		}
	}
	return engineCodec{}, false
}

func routerCapabilities() media.RTPCapabilities {
	caps := media.RTPCapabilities{Codecs: make([]media.RTPCodecCapability, 0, len(defaultCodecs))}
	for _, c := range defaultCodecs {
		caps.Codecs = append(caps.Codecs, media.RTPCodecCapability{
			Kind:       c.kind,
			MimeType:   c.capability.MimeType,
			ClockRate:  c.capability.ClockRate,
			Channels:   c.capability.Channels,
			Parameters: c.capability.SDPFmtpLine,
		})
	}
	return caps
}

// Worker is one engine instance. It dies only on a fatal internal error;
// a value on Died escalates to process termination in the pool.
type Worker struct {
	id      string
	api     *webrtc.API
	cfg     Config
	died    chan error
	closed  atomic.Bool
	routers atomic.Int32
	log     zerolog.Logger
}

// NewWorkers builds the fixed worker set, splitting the RTC port range
// evenly so engine instances never contend for ports.
func NewWorkers(cfg Config, n int) ([]media.Worker, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pion: worker count must be positive, got %d", n)
	}
	if cfg.RTCMaxPort <= cfg.RTCMinPort {
		return nil, fmt.Errorf("pion: invalid RTC port range %d-%d", cfg.RTCMinPort, cfg.RTCMaxPort)
	}
	span := (cfg.RTCMaxPort - cfg.RTCMinPort + 1) / uint16(n)
	if span < 2 {
		return nil, fmt.Errorf("pion: RTC port range %d-%d too small for %d workers", cfg.RTCMinPort, cfg.RTCMaxPort, n)
	}

	workers := make([]media.Worker, 0, n)
	for i := 0; i < n; i++ {
		minPort := cfg.RTCMinPort + uint16(i)*span
		maxPort := minPort + span - 1
		w, err := newWorker(cfg, i, minPort, maxPort)
		if err != nil {
			return nil, fmt.Errorf("pion: worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func newWorker(cfg Config, idx int, minPort, maxPort uint16) (*Worker, error) {
	se := webrtc.SettingEngine{}
	if err := se.SetEphemeralUDPPortRange(minPort, maxPort); err != nil {
		return nil, err
	}
	// Server side is ICE lite: clients initiate connectivity checks against
	// the candidates handed out in TransportOptions.
	se.SetLite(true)
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	me := &webrtc.MediaEngine{}
	for _, c := range defaultCodecs {
		typ := webrtc.RTPCodecTypeAudio
		if c.kind == media.KindVideo {
			typ = webrtc.RTPCodecTypeVideo
		}
		if err := me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: c.capability,
			PayloadType:        c.payloadType,
		}, typ); err != nil {
			return nil, err
		}
	}

	id := fmt.Sprintf("worker-%d", idx)
	logger := log.With().Str("module", "media.pion").Str("worker", id).Logger()
	logger.Info().
		Uint16("min_port", minPort).
		Uint16("max_port", maxPort).
		Int("initial_bitrate", cfg.InitialBitrate).
		Int("minimum_bitrate", cfg.MinimumBitrate).
		Msg("media worker ready")

	return &Worker{
		id:   id,
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
		cfg:  cfg,
		died: make(chan error, 1),
		log:  logger,
	}, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) CreateRouter(ctx context.Context) (media.Router, error) {
	if w.closed.Load() {
		return nil, fmt.Errorf("pion: worker %s is closed", w.id)
	}
	n := w.routers.Add(1)
	return newRouter(w, n), nil
}

func (w *Worker) Died() <-chan error { return w.died }

// Close shuts the worker down gracefully. The died channel is closed, not
// signalled, so the pool does not treat this as a crash.
func (w *Worker) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.died)
	}
	return nil
}
