// Package client is the endpoint half of a call: it mirrors the server's
// call states locally, owns capture and the peer connection, and turns
// forwarded signaling events into media actions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultOfferMediaWait bounds how long an incoming offer waits for capture.
const DefaultOfferMediaWait = time.Second

const (
	noticeDeclined     = "Call was declined"
	noticeBusy         = "User is busy on another call"
	noticeDisconnected = "User disconnected"
	noticeEnded        = "Call ended"
	noticeMediaDenied  = "Failed to access camera/microphone."
	noticeOfferFailed  = "Failed to establish call."
	noticeAnswerFailed = "Failed to connect call."
)

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

// Signaler carries events to the server. Send must not call back into the Machine.
type Signaler interface {
	Send(protocol.Event) error
}

// PeerFactory opens a peer connection for one call.
type PeerFactory func(tag string) (core.MediaConnection, error)

type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
	NoticeIncoming
	NoticeMessage
)

// Notice is a user-facing message.
type Notice struct {
	Kind NoticeKind
	Text string
	From domain.UserID
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type Options struct {
	Self           domain.CallerInfo
	Constraints    Constraints
	OfferMediaWait time.Duration
	// OnRemoteTrack replaces the default drain of remote tracks.
	OnRemoteTrack func(ctx context.Context, track *webrtc.TrackRemote)
}

// Snapshot is a consistent copy of the machine's call state.
type Snapshot struct {
	Status       domain.CallStatus
	Role         Role
	Peer         domain.UserID
	Caller       domain.CallerInfo
	StartedAt    time.Time
	AudioEnabled bool
	VideoEnabled bool
	Buffered     int
}

// Machine drives one endpoint's calls. All state is guarded by mu; waits
// happen outside it and are re-validated against gen afterwards.
type Machine struct {
	sig     Signaler
	devices MediaDevices
	newPeer PeerFactory
	notify  Notifier
	opts    Options
	base    context.Context
	now     func() time.Time
	Remote  RemoteStats

	mu        sync.Mutex
	state     domain.CallStatus
	role      Role
	peer      domain.UserID
	caller    domain.CallerInfo
	gen       uint64
	callCtx   context.Context
	cancel    context.CancelFunc
	media     *mediaFuture
	pc        core.MediaConnection
	ice       *IceBuffer
	remoteSet bool
	audioOn   bool
	videoOn   bool
	startedAt time.Time
	online    []domain.UserID
	busy      []domain.UserID
}

func NewMachine(ctx context.Context, sig Signaler, devices MediaDevices, newPeer PeerFactory, notify Notifier, opts Options) *Machine {
	if opts.OfferMediaWait <= 0 {
		opts.OfferMediaWait = DefaultOfferMediaWait
	}
	if !opts.Constraints.Audio && !opts.Constraints.Video {
		opts.Constraints = Constraints{Audio: true, Video: true}
	}
	if notify == nil {
		notify = NotifierFunc(func(Notice) {})
	}
	return &Machine{
		sig:     sig,
		devices: devices,
		newPeer: newPeer,
		notify:  notify,
		opts:    opts,
		base:    ctx,
		now:     time.Now,
		state:   domain.CallIdle,
		audioOn: true,
		videoOn: true,
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Status:       m.state,
		Role:         m.role,
		Peer:         m.peer,
		Caller:       m.caller,
		StartedAt:    m.startedAt,
		AudioEnabled: m.audioOn,
		VideoEnabled: m.videoOn,
		Buffered:     m.ice.Len(),
	}
}

// Online returns the last presence set pushed by the server.
func (m *Machine) Online() (online, busy []domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.online), slices.Clone(m.busy)
}

// Call starts an outgoing call. Capture is acquired before the callee rings.
func (m *Machine) Call(callee domain.UserID) error {
	if !callee.Valid() {
		return domain.ErrInvalidIdentity
	}
	if callee == m.opts.Self.ID {
		return domain.ErrSelfCall
	}
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		return domain.ErrAlreadyInCall
	}
	gen, ctx := m.beginLocked(RoleCaller, callee)
	f := m.acquireLocked(ctx)
	m.mu.Unlock()

	_, err := f.Wait(ctx, 0)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.resetLocked()
		m.mu.Unlock()
		m.emit(Notice{Kind: NoticeError, Text: noticeMediaDenied})
		return fmt.Errorf("acquire media: %w: %w", domain.ErrTransportFailure, err)
	}
	if err := m.sendLocked(protocol.Initiate{CalleeID: callee, Caller: m.opts.Self}); err != nil {
		m.resetLocked()
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return nil
}

// Accept answers the ringing call. Capture starts now; the offer waits for it.
func (m *Machine) Accept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != RoleCallee || !m.stepLocked(domain.EventAccept) {
		return fmt.Errorf("accept in %s: %w", m.state, domain.ErrProtocolViolation)
	}
	f := m.acquireLocked(m.callCtx)
	go m.watchMedia(m.gen, f)
	return m.sendLocked(protocol.Accept{CallerID: m.peer})
}

// Reject declines the ringing call. Rejecting nothing is a no-op.
func (m *Machine) Reject() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.CallIdle {
		return nil
	}
	if m.role != RoleCallee || m.state != domain.CallRinging {
		return fmt.Errorf("reject in %s: %w", m.state, domain.ErrProtocolViolation)
	}
	err := m.sendLocked(protocol.Reject{CallerID: m.peer})
	m.resetLocked()
	return err
}

// End hangs up from any state. Ending an idle machine is a no-op.
func (m *Machine) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.CallIdle {
		return nil
	}
	err := m.sendLocked(protocol.End{RemoteUserID: m.peer})
	m.resetLocked()
	return err
}

// ToggleAudio flips the outbound audio track and reports the new state.
// The connection is not renegotiated.
func (m *Machine) ToggleAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lm, ok := m.media.Ready(); ok && lm.Audio != nil {
		m.audioOn = !m.audioOn
		lm.Audio.SetEnabled(m.audioOn)
	}
	return m.audioOn
}

func (m *Machine) ToggleVideo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lm, ok := m.media.Ready(); ok && lm.Video != nil {
		m.videoOn = !m.videoOn
		lm.Video.SetEnabled(m.videoOn)
	}
	return m.videoOn
}

// Handle reacts to one server event. It may block for up to
// Options.OfferMediaWait while an offer waits for capture.
func (m *Machine) Handle(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.OnlineUsers:
		m.mu.Lock()
		m.online, m.busy = slices.Clone(e.UserIDs), slices.Clone(e.BusyUserIDs)
		m.mu.Unlock()
	case protocol.Incoming:
		m.onIncoming(e)
	case protocol.Accepted:
		m.onAccepted(e)
	case protocol.Rejected:
		m.finish(e.CalleeID, Notice{Kind: NoticeInfo, Text: noticeDeclined})
	case protocol.Busy:
		m.finish(e.CalleeID, Notice{Kind: NoticeInfo, Text: noticeBusy})
	case protocol.CallError:
		m.finish("", Notice{Kind: NoticeError, Text: e.Message})
	case protocol.RemoteOffer:
		m.onOffer(e)
	case protocol.RemoteAnswer:
		m.onAnswer(e)
	case protocol.RemoteCandidate:
		m.onCandidate(e)
	case protocol.Ended:
		text := noticeEnded
		if e.Reason == protocol.ReasonDisconnected {
			text = noticeDisconnected
		}
		m.finish(e.UserID, Notice{Kind: NoticeInfo, Text: text, From: e.UserID})
	case protocol.NewMessage:
		text := ""
		if e.Text != nil {
			text = *e.Text
		}
		m.emit(Notice{Kind: NoticeMessage, Text: text, From: e.SenderID})
	case protocol.MessageDeleted:
		log.Debug().Str("module", "client.machine").Str("message", string(e.MessageID)).Msg("message deleted")
	case protocol.Pong:
	default:
		log.Debug().Str("module", "client.machine").Str("type", ev.Type()).Msg("unhandled event")
	}
}

func (m *Machine) onIncoming(e protocol.Incoming) {
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		log.Debug().Str("module", "client.machine").Str("peer", string(e.Caller.ID)).Msg("incoming while not idle, ignored")
		return
	}
	m.beginLocked(RoleCallee, e.Caller.ID)
	m.caller = e.Caller
	m.mu.Unlock()
	m.emit(Notice{Kind: NoticeIncoming, Text: e.Caller.DisplayName, From: e.Caller.ID})
}

func (m *Machine) onAccepted(e protocol.Accepted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != RoleCaller || e.CalleeID != m.peer || !m.stepLocked(domain.EventAccept) {
		return
	}
	if err := m.offerLocked(); err != nil {
		log.Error().Err(err).Str("module", "client.machine").Str("peer", string(m.peer)).Msg("offer failed")
		m.failLocked(noticeOfferFailed)
	}
}

func (m *Machine) offerLocked() error {
	pc, err := m.peerLocked()
	if err != nil {
		return err
	}
	desc, err := pc.CreateOffer()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	if !m.stepLocked(domain.EventOffer) {
		return domain.ErrProtocolViolation
	}
	return m.sendLocked(protocol.Offer{Offer: raw, CalleeID: m.peer})
}

func (m *Machine) onOffer(e protocol.RemoteOffer) {
	m.mu.Lock()
	if m.role != RoleCallee || e.CallerID != m.peer || !m.stepLocked(domain.EventOffer) {
		m.mu.Unlock()
		return
	}
	gen, ctx, f := m.gen, m.callCtx, m.media
	m.mu.Unlock()

	_, mediaErr := f.Wait(ctx, m.opts.OfferMediaWait)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		log.Debug().Str("module", "client.machine").Msg("offer outlived its call")
		return
	}
	if mediaErr != nil {
		log.Warn().Err(mediaErr).Str("module", "client.machine").Str("peer", string(m.peer)).Msg("no local media for offer")
		m.failLocked(noticeMediaDenied)
		return
	}
	if err := m.answerLocked(e.Offer); err != nil {
		log.Error().Err(err).Str("module", "client.machine").Str("peer", string(m.peer)).Msg("answer failed")
		m.failLocked(noticeAnswerFailed)
	}
}

func (m *Machine) answerLocked(raw json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return err
	}
	pc, err := m.peerLocked()
	if err != nil {
		return err
	}
	if err := m.setRemoteLocked(pc, offer); err != nil {
		return err
	}
	desc, err := pc.CreateAnswer()
	if err != nil {
		return err
	}
	out, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	if !m.stepLocked(domain.EventAnswer) {
		return domain.ErrProtocolViolation
	}
	return m.sendLocked(protocol.Answer{Answer: out, CallerID: m.peer})
}

func (m *Machine) onAnswer(e protocol.RemoteAnswer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != RoleCaller || e.CalleeID != m.peer || m.pc == nil || !m.stepLocked(domain.EventAnswer) {
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(e.Answer, &answer); err != nil {
		log.Error().Err(err).Str("module", "client.machine").Msg("bad answer")
		m.failLocked(noticeAnswerFailed)
		return
	}
	if err := m.setRemoteLocked(m.pc, answer); err != nil {
		log.Error().Err(err).Str("module", "client.machine").Str("peer", string(m.peer)).Msg("set remote answer failed")
		m.failLocked(noticeAnswerFailed)
	}
}

// setRemoteLocked applies the description then flushes queued candidates.
func (m *Machine) setRemoteLocked(pc core.MediaConnection, d webrtc.SessionDescription) error {
	if err := pc.SetRemoteDescription(d); err != nil {
		return err
	}
	m.remoteSet = true
	n := m.ice.Drain(pc.AddICECandidate)
	m.ice = nil
	if n > 0 {
		log.Debug().Str("module", "client.machine").Int("applied", n).Msg("queued candidates applied")
	}
	return nil
}

func (m *Machine) onCandidate(e protocol.RemoteCandidate) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(e.Candidate, &c); err != nil {
		log.Debug().Err(err).Str("module", "client.machine").Msg("bad candidate")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.UserID != m.peer || !m.stepLocked(domain.EventICECandidate) {
		return
	}
	if m.pc == nil || !m.remoteSet {
		if m.ice == nil {
			m.ice = &IceBuffer{}
		}
		m.ice.Push(c)
		return
	}
	if err := m.pc.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "client.machine").Str("candidate", c.Candidate).Msg("candidate rejected")
	}
}

// finish tears down after a terminal server event for the current call.
func (m *Machine) finish(from domain.UserID, n Notice) {
	m.mu.Lock()
	if m.state == domain.CallIdle || (from != "" && from != m.peer) {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	m.mu.Unlock()
	m.emit(n)
}

// failLocked ends the call locally and tells the peer.
func (m *Machine) failLocked(text string) {
	_ = m.sendLocked(protocol.End{RemoteUserID: m.peer})
	m.resetLocked()
	go m.emit(Notice{Kind: NoticeError, Text: text})
}

func (m *Machine) watchMedia(gen uint64, f *mediaFuture) {
	<-f.done
	if f.err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	log.Warn().Err(f.err).Str("module", "client.machine").Str("peer", string(m.peer)).Msg("media acquisition failed")
	m.failLocked(noticeMediaDenied)
}

func (m *Machine) onTransport(gen uint64, s webrtc.PeerConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if m.stepLocked(domain.EventTransportConnected) {
			m.startedAt = m.now()
			log.Info().Str("module", "client.machine").Str("peer", string(m.peer)).Msg("call connected")
		}
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		log.Warn().Str("module", "client.machine").Str("peer", string(m.peer)).Str("state", s.String()).Msg("transport lost")
		_ = m.sendLocked(protocol.End{RemoteUserID: m.peer})
		m.resetLocked()
	}
}

func (m *Machine) onLocalCandidate(gen uint64, c webrtc.ICECandidateInit) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	_ = m.sendLocked(protocol.Candidate{Candidate: raw, RemoteUserID: m.peer})
}

// peerLocked returns the call's peer connection, creating it with the
// local tracks attached on first use.
func (m *Machine) peerLocked() (core.MediaConnection, error) {
	if m.pc != nil {
		return m.pc, nil
	}
	lm, ok := m.media.Ready()
	if !ok {
		return nil, ErrNoMedia
	}
	pc, err := m.newPeer(domain.NewPairKey(m.opts.Self.ID, m.peer).String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}
	gen, ctx := m.gen, m.callCtx
	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { m.onLocalCandidate(gen, c) })
	pc.OnStateChange(func(s webrtc.PeerConnectionState) { m.onTransport(gen, s) })
	pc.OnTrack(func(tctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.opts.OnRemoteTrack != nil {
			m.opts.OnRemoteTrack(tctx, track)
			return
		}
		go drainRemote(tctx, track, &m.Remote)
	})
	if err := pc.Start(ctx); err != nil {
		pc.Close()
		return nil, err
	}
	for _, t := range lm.Tracks() {
		if _, err := pc.AddLocalTrack(t.Track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	}
	m.pc = pc
	return pc, nil
}

func (m *Machine) beginLocked(role Role, peer domain.UserID) (uint64, context.Context) {
	m.stepLocked(domain.EventInitiate)
	m.gen++
	m.role = role
	m.peer = peer
	m.callCtx, m.cancel = context.WithCancel(m.base)
	log.Info().Str("module", "client.machine").Str("peer", string(peer)).Str("role", role.String()).Msg("call started")
	return m.gen, m.callCtx
}

func (m *Machine) acquireLocked(ctx context.Context) *mediaFuture {
	if m.media == nil {
		m.media = acquire(ctx, m.devices, m.opts.Constraints)
	}
	return m.media
}

func (m *Machine) stepLocked(ev domain.CallEvent) bool {
	next, ok := domain.Transition(m.state, ev)
	if !ok {
		log.Debug().Str("module", "client.machine").Str("status", string(m.state)).Str("event", string(ev)).Msg("event ignored")
		return false
	}
	m.state = next
	return true
}

// resetLocked stops capture and closes the peer connection, then returns to
// idle. Continuations holding the old generation become no-ops.
func (m *Machine) resetLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.media.release()
	m.media = nil
	if m.pc != nil {
		m.pc.Close()
		m.pc = nil
	}
	m.ice = nil
	m.remoteSet = false
	log.Info().Str("module", "client.machine").Str("peer", string(m.peer)).Str("status", string(m.state)).Msg("call torn down")
	m.state = domain.CallIdle
	m.role = RoleNone
	m.peer = ""
	m.caller = domain.CallerInfo{}
	m.audioOn, m.videoOn = true, true
	m.startedAt = time.Time{}
}

func (m *Machine) sendLocked(ev protocol.Event) error {
	if err := m.sig.Send(ev); err != nil {
		log.Error().Err(err).Str("module", "client.machine").Str("type", ev.Type()).Msg("send failed")
		return err
	}
	return nil
}

func (m *Machine) emit(ns ...Notice) {
	for _, n := range ns {
		m.notify.Notify(n)
	}
}
