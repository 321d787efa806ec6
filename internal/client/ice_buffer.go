package client

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// IceBuffer queues remote candidates that arrived before the remote
// description was applied. It is not safe for concurrent use; the Machine
// guards it.
type IceBuffer struct {
	pending []webrtc.ICECandidateInit
}

func (b *IceBuffer) Push(c webrtc.ICECandidateInit) {
	b.pending = append(b.pending, c)
}

func (b *IceBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

// Drain applies every queued candidate in arrival order and forgets them.
// A candidate that fails to apply is logged and skipped.
func (b *IceBuffer) Drain(apply func(webrtc.ICECandidateInit) error) int {
	if b == nil {
		return 0
	}
	queued := b.pending
	b.pending = nil
	n := 0
	for _, c := range queued {
		if err := apply(c); err != nil {
			log.Warn().Err(err).Str("module", "client.ice").Str("candidate", c.Candidate).Msg("queued candidate rejected")
			continue
		}
		n++
	}
	return n
}
