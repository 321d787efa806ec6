package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoMedia      = errors.New("no local media")
	ErrTrackStopped = errors.New("track stopped")
)

type TrackState int32

const (
	TrackLive TrackState = iota
	TrackMuted
	TrackStopped
)

// LocalTrack is one outbound capture track. Muting keeps the track
// negotiated but stops it emitting samples.
type LocalTrack struct {
	Track *webrtc.TrackLocalStaticSample

	state   atomic.Int32
	written atomic.Uint64
	stop    sync.Once
	done    chan struct{}
}

func NewLocalTrack(kind webrtc.RTPCodecType, streamID string) (*LocalTrack, error) {
	mime := webrtc.MimeTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		mime = webrtc.MimeTypeVP8
	}
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind.String(), streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{Track: t, done: make(chan struct{})}, nil
}

func (t *LocalTrack) State() TrackState { return TrackState(t.state.Load()) }

func (t *LocalTrack) Enabled() bool { return t.State() == TrackLive }

// SetEnabled has no effect on a stopped track.
func (t *LocalTrack) SetEnabled(on bool) {
	want, from := TrackMuted, TrackLive
	if on {
		want, from = TrackLive, TrackMuted
	}
	t.state.CompareAndSwap(int32(from), int32(want))
}

// Stop releases the track. Safe to call more than once.
func (t *LocalTrack) Stop() {
	t.stop.Do(func() {
		t.state.Store(int32(TrackStopped))
		close(t.done)
	})
}

func (t *LocalTrack) Done() <-chan struct{} { return t.done }

// Written counts samples actually handed to the transport.
func (t *LocalTrack) Written() uint64 { return t.written.Load() }

func (t *LocalTrack) WriteSample(s media.Sample) error {
	switch t.State() {
	case TrackStopped:
		return ErrTrackStopped
	case TrackMuted:
		return nil
	}
	if err := t.Track.WriteSample(s); err != nil {
		return err
	}
	t.written.Add(1)
	return nil
}

// LocalMedia is what one acquisition produced.
type LocalMedia struct {
	Audio *LocalTrack
	Video *LocalTrack
}

func (m *LocalMedia) Tracks() []*LocalTrack {
	out := make([]*LocalTrack, 0, 2)
	if m.Audio != nil {
		out = append(out, m.Audio)
	}
	if m.Video != nil {
		out = append(out, m.Video)
	}
	return out
}

func (m *LocalMedia) Stop() {
	for _, t := range m.Tracks() {
		t.Stop()
	}
}

type Constraints struct {
	Audio bool
	Video bool
}

// MediaDevices acquires local capture.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (*LocalMedia, error)
}

// FileDevices stands in for a camera and microphone. With a file configured
// the track plays it once and then goes quiet; without one the track is
// negotiated but silent.
type FileDevices struct {
	VideoFile string // IVF, VP8
	AudioFile string // Ogg, Opus
	StreamID  string
}

func (d FileDevices) GetUserMedia(ctx context.Context, c Constraints) (*LocalMedia, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: nothing requested", ErrNoMedia)
	}
	stream := d.StreamID
	if stream == "" {
		stream = "duet"
	}
	lm := &LocalMedia{}
	if c.Video {
		t, err := NewLocalTrack(webrtc.RTPCodecTypeVideo, stream)
		if err != nil {
			return nil, err
		}
		lm.Video = t
		if d.VideoFile != "" {
			next, closer, err := ivfSource(d.VideoFile)
			if err != nil {
				lm.Stop()
				return nil, err
			}
			go pump(ctx, t, next, closer, log.With().Str("module", "client.media").Str("kind", "video").Logger())
		}
	}
	if c.Audio {
		t, err := NewLocalTrack(webrtc.RTPCodecTypeAudio, stream)
		if err != nil {
			lm.Stop()
			return nil, err
		}
		lm.Audio = t
		if d.AudioFile != "" {
			next, closer, err := oggSource(d.AudioFile)
			if err != nil {
				lm.Stop()
				return nil, err
			}
			go pump(ctx, t, next, closer, log.With().Str("module", "client.media").Str("kind", "audio").Logger())
		}
	}
	return lm, nil
}

type sampleSource func() (media.Sample, error)

// pump feeds samples into t at their own pace until the track stops,
// ctx ends or the source is exhausted.
func pump(ctx context.Context, t *LocalTrack, next sampleSource, closer io.Closer, logger zerolog.Logger) {
	defer func() {
		if closer != nil {
			_ = closer.Close()
		}
	}()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("pump ctx done")
			return
		case <-t.Done():
			logger.Debug().Msg("track stopped, pump exits")
			return
		case <-timer.C:
		}
		s, err := next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error().Err(err).Msg("sample read error, stopping")
			}
			return
		}
		if err := t.WriteSample(s); err != nil {
			if !errors.Is(err, ErrTrackStopped) {
				logger.Error().Err(err).Msg("sample write error, stopping")
			}
			return
		}
		timer.Reset(s.Duration)
	}
}

func ivfSource(path string) (sampleSource, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, hdr, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	dur := time.Second / 30
	if hdr.TimebaseDenominator > 0 {
		dur = time.Duration(float64(hdr.TimebaseNumerator) / float64(hdr.TimebaseDenominator) * float64(time.Second))
	}
	return func() (media.Sample, error) {
		frame, _, err := r.ParseNextFrame()
		if err != nil {
			return media.Sample{}, err
		}
		return media.Sample{Data: frame, Duration: dur}, nil
	}, f, nil
}

func oggSource(path string) (sampleSource, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return oggPages(r), f, nil
}

// noGranule marks a page on which no packet completes.
const noGranule = ^uint64(0)

type pageReader interface {
	ParseNextPage() ([]byte, *oggreader.OggPageHeader, error)
}

// oggPages turns Opus pages into samples. Header pages are skipped and a
// page without a completed packet is carried into the next one.
func oggPages(r pageReader) sampleSource {
	var last uint64
	var carry []byte
	return func() (media.Sample, error) {
		for {
			page, hdr, err := r.ParseNextPage()
			if err != nil {
				return media.Sample{}, err
			}
			if bytes.HasPrefix(page, []byte("OpusHead")) || bytes.HasPrefix(page, []byte("OpusTags")) {
				continue
			}
			if hdr.GranulePosition == noGranule {
				carry = append(carry, page...)
				continue
			}
			if len(carry) > 0 {
				page = append(carry, page...)
				carry = nil
			}
			var dur time.Duration
			if hdr.GranulePosition > last {
				// Opus granule positions tick at 48kHz.
				dur = time.Duration(hdr.GranulePosition-last) * time.Second / 48000
			}
			last = hdr.GranulePosition
			return media.Sample{Data: page, Duration: dur}, nil
		}
	}
}

// mediaFuture resolves once local capture is acquired or has failed.
type mediaFuture struct {
	done  chan struct{}
	media *LocalMedia
	err   error
}

func acquire(ctx context.Context, d MediaDevices, c Constraints) *mediaFuture {
	f := &mediaFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.media, f.err = d.GetUserMedia(ctx, c)
		if f.err == nil && f.media == nil {
			f.err = ErrNoMedia
		}
	}()
	return f
}

// Wait blocks until the future resolves, ctx ends, or d elapses when d > 0.
func (f *mediaFuture) Wait(ctx context.Context, d time.Duration) (*LocalMedia, error) {
	if f == nil {
		return nil, ErrNoMedia
	}
	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-f.done:
		return f.media, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("%w: not ready after %s", ErrNoMedia, d)
	}
}

// Ready returns the media if acquisition already succeeded.
func (f *mediaFuture) Ready() (*LocalMedia, bool) {
	if f == nil {
		return nil, false
	}
	select {
	case <-f.done:
		return f.media, f.err == nil
	default:
		return nil, false
	}
}

// release stops whatever the acquisition yields, now or once it lands.
func (f *mediaFuture) release() {
	if f == nil {
		return
	}
	select {
	case <-f.done:
		if f.media != nil {
			f.media.Stop()
		}
	default:
		go func() {
			<-f.done
			if f.media != nil {
				f.media.Stop()
			}
		}()
	}
}

// RemoteStats counts what arrived on remote tracks.
type RemoteStats struct {
	Packets atomic.Uint64
	Bytes   atomic.Uint64
}

// drainRemote reads a remote track until it ends so the receive buffers
// never fill.
func drainRemote(ctx context.Context, track *webrtc.TrackRemote, stats *RemoteStats) {
	logger := log.With().Str("module", "client.media").Str("track_id", track.ID()).Str("kind", track.Kind().String()).Logger()
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := track.Read(buf)
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		stats.Packets.Add(1)
		stats.Bytes.Add(uint64(len(pkt.Payload)))
	}
}
