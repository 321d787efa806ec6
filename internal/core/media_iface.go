package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is one endpoint's peer connection.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	AddICECandidate(webrtc.ICECandidateInit) error
	SetRemoteDescription(webrtc.SessionDescription) error
	CreateOffer() (*webrtc.SessionDescription, error)
	CreateAnswer() (*webrtc.SessionDescription, error)
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange reports connected, disconnected and failed transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
}
